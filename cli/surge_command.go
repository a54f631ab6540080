package cli

import (
	"io"

	"github.com/codegangsta/cli"

	"github.com/polydawn/capsule/surge"
)

// SurgeCommandPattern drives a declarative project file's lifecycle:
// up brings every service up in dependency order, down tears it back
// down in reverse, kill stops everything regardless of order.
func SurgeCommandPattern(env *Env, output io.Writer) cli.Command {
	flags := []cli.Flag{
		cli.StringFlag{Name: "file, f", Value: "surge.yml", Usage: "Path to the project file"},
	}
	loadProject := func(ctx *cli.Context) *surge.Project {
		p, err := surge.LoadProject(ctx.String("file"))
		if err != nil {
			panic(Error.NewWith(err.Error(), SetExitCode(EXIT_USER)))
		}
		return p
	}

	return cli.Command{
		Name:  "surge",
		Usage: "Bring a declarative project's services up or down",
		Subcommands: []cli.Command{
			{
				Name:  "up",
				Usage: "Start every service in dependency order",
				Flags: flags,
				Action: func(ctx *cli.Context) {
					p := loadProject(ctx)
					if err := env.Surge.Up(p); err != nil {
						panic(Error.NewWith(err.Error(), SetExitCode(EXIT_USER)))
					}
				},
			},
			{
				Name:  "down",
				Usage: "Stop every service in reverse dependency order",
				Flags: flags,
				Action: func(ctx *cli.Context) {
					p := loadProject(ctx)
					if err := env.Surge.Down(p); err != nil {
						panic(Error.NewWith(err.Error(), SetExitCode(EXIT_USER)))
					}
				},
			},
			{
				Name:  "kill",
				Usage: "Stop every running service, ignoring dependency order",
				Flags: flags,
				Action: func(ctx *cli.Context) {
					p := loadProject(ctx)
					if err := env.Surge.Kill(p); err != nil {
						panic(Error.NewWith(err.Error(), SetExitCode(EXIT_USER)))
					}
				},
			},
		},
	}
}
