package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/codegangsta/cli"
)

func Main(env *Env, args []string, journal, output io.Writer) {
	App := cli.NewApp()

	App.Name = "capsulectl"
	App.Usage = "Build, run, and orchestrate capsules."
	App.Version = "0.1.0"

	App.Writer = journal

	App.Commands = []cli.Command{
		BuildCommandPattern(env, journal),
		ImageCommandPattern(env, journal),
		CapsuleCommandPattern(env, journal),
		SurgeCommandPattern(env, journal),
		SnapshotCommandPattern(env, journal),
		ClusterCommandPattern(env, journal),
		QuotaCommandPattern(env, journal),
	}

	// Reporting "no help topic for 'zyx'" and exiting with a *zero* is... silly.
	// A failure to hit a command should be an error: a script calling
	// `capsulectl somethingimportant` has no way to tell otherwise.
	App.CommandNotFound = func(ctx *cli.Context, command string) {
		fmt.Fprintf(ctx.App.Writer, "'%s %v' is not a capsulectl subcommand\n", ctx.App.Name, command)
		os.Exit(int(EXIT_BADARGS))
	}

	App.Run(args)
}
