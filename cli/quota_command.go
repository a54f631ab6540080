package cli

import (
	"encoding/json"
	"io"

	"github.com/codegangsta/cli"

	"github.com/polydawn/capsule/api/def"
	"github.com/polydawn/capsule/quota"
)

// QuotaCommandPattern inspects and checks quota scopes. Allocation
// itself happens implicitly as part of capsule/surge/build operations;
// "check" lets an operator ask "would this fit" without spending it.
func QuotaCommandPattern(env *Env, output io.Writer) cli.Command {
	return cli.Command{
		Name:  "quota",
		Usage: "Inspect quota scopes and check hypothetical allocations",
		Subcommands: []cli.Command{
			{
				Name:  "show",
				Usage: "Print a quota scope's current limits and usage",
				Flags: []cli.Flag{
					cli.StringFlag{Name: "scope", Value: string(def.ScopeCluster), Usage: "user, namespace, cluster, or node"},
					cli.StringFlag{Name: "id", Value: "default", Usage: "Scope id"},
				},
				Action: func(ctx *cli.Context) {
					q, ok := env.Quota.Get(def.ScopeRef{Scope: def.ScopeKind(ctx.String("scope")), ID: ctx.String("id")})
					if !ok {
						panic(Error.NewWith("no such quota scope", SetExitCode(EXIT_USER)))
					}
					msg, err := json.MarshalIndent(q, "", "  ")
					if err != nil {
						panic(err)
					}
					output.Write(msg)
					output.Write([]byte{'\n'})
				},
			},
			{
				Name:  "check",
				Usage: "Check whether cpu/memory amounts would fit the cluster scope without spending them",
				Flags: []cli.Flag{
					cli.Float64Flag{Name: "cpu-cores", Usage: "CPU cores to check"},
					cli.Int64Flag{Name: "memory-mb", Usage: "Memory in MB to check"},
				},
				Action: func(ctx *cli.Context) {
					err := env.Quota.Check(quota.Request{
						Scopes: []def.ScopeRef{def.DefaultClusterScope()},
						Amounts: map[def.ResourceKind]float64{
							def.ResourceCPU:    ctx.Float64("cpu-cores"),
							def.ResourceMemory: float64(ctx.Int64("memory-mb")),
						},
					})
					if err != nil {
						panic(Error.NewWith(err.Error(), SetExitCode(EXIT_USER)))
					}
				},
			},
		},
	}
}
