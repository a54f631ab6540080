package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/codegangsta/cli"

	"github.com/polydawn/capsule/api/def"
)

// CapsuleCommandPattern drives the runtime directly: create, stop,
// restart, and inspect one capsule at a time. Surge is the declarative
// layer above this for whole projects; this is the single-capsule
// escape hatch for one-off work.
func CapsuleCommandPattern(env *Env, output io.Writer) cli.Command {
	return cli.Command{
		Name:  "capsule",
		Usage: "Create, stop, restart, and inspect capsules",
		Subcommands: []cli.Command{
			{
				Name:  "run",
				Usage: "Create a capsule from an image",
				Flags: []cli.Flag{
					cli.StringFlag{Name: "image, i", Usage: "Image reference to materialize as rootfs"},
					cli.StringFlag{Name: "hostname", Usage: "Hostname inside the capsule"},
					cli.StringFlag{Name: "policy", Value: string(def.PolicyRoutine), Usage: "Identity/capability policy: routine, uidzero, governor, sysad"},
					cli.Int64Flag{Name: "memory-mb", Value: 256, Usage: "Memory cap in MB"},
					cli.Float64Flag{Name: "cpu-cores", Value: 1, Usage: "CPU core cap"},
					cli.BoolFlag{Name: "rootless", Usage: "Run in a user namespace instead of as host root"},
				},
				Action: func(ctx *cli.Context) {
					image := ctx.String("image")
					if image == "" {
						panic(Error.NewWith("\"image\" is required for capsule run", SetExitCode(EXIT_BADARGS)))
					}
					cfg := def.CapsuleConfig{
						Hostname:    ctx.String("hostname"),
						RootfsImage: image,
						Entrypoint:  ctx.Args(),
						Policy:      def.Policy(ctx.String("policy")),
						Rootless:    ctx.Bool("rootless"),
						Caps: def.ResourceCaps{
							MemoryMB: ctx.Int64("memory-mb"),
							CPUCores: ctx.Float64("cpu-cores"),
						},
					}
					cap, err := env.Runtime.Create(cfg)
					if err != nil {
						panic(Error.NewWith(err.Error(), SetExitCode(EXIT_USER)))
					}
					fmt.Fprintf(output, "%s\n", cap.ID)
				},
			},
			{
				Name:  "stop",
				Usage: "Stop a running capsule",
				Action: func(ctx *cli.Context) {
					id := ctx.Args().First()
					if id == "" {
						panic(Error.NewWith("capsule stop requires a capsule id argument", SetExitCode(EXIT_BADARGS)))
					}
					if err := env.Runtime.Stop(id); err != nil {
						panic(Error.NewWith(err.Error(), SetExitCode(EXIT_USER)))
					}
				},
			},
			{
				Name:  "restart",
				Usage: "Stop and recreate a capsule from its original config",
				Action: func(ctx *cli.Context) {
					id := ctx.Args().First()
					if id == "" {
						panic(Error.NewWith("capsule restart requires a capsule id argument", SetExitCode(EXIT_BADARGS)))
					}
					cap, err := env.Runtime.Restart(id)
					if err != nil {
						panic(Error.NewWith(err.Error(), SetExitCode(EXIT_USER)))
					}
					fmt.Fprintf(output, "%s\n", cap.ID)
				},
			},
			{
				Name:  "inspect",
				Usage: "Print a capsule's tracked state as json",
				Action: func(ctx *cli.Context) {
					id := ctx.Args().First()
					if id == "" {
						panic(Error.NewWith("capsule inspect requires a capsule id argument", SetExitCode(EXIT_BADARGS)))
					}
					cap, ok := env.Runtime.Get(id)
					if !ok {
						panic(Error.NewWith("no such capsule: "+id, SetExitCode(EXIT_USER)))
					}
					msg, err := json.MarshalIndent(cap, "", "  ")
					if err != nil {
						panic(err)
					}
					output.Write(msg)
					output.Write([]byte{'\n'})
				},
			},
		},
	}
}
