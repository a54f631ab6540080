package cli

import (
	"fmt"
	"io"

	"github.com/codegangsta/cli"
)

// ImageCommandPattern resolves (and, on a cache miss, pulls) an image
// reference, printing the resulting manifest digest -- the minimal
// surface exposed directly rather than only through capsule/surge's
// internal Resolve calls.
func ImageCommandPattern(env *Env, output io.Writer) cli.Command {
	return cli.Command{
		Name:  "image",
		Usage: "Resolve and materialize image references",
		Subcommands: []cli.Command{
			{
				Name:  "pull",
				Usage: "Resolve a reference, pulling through the configured warehouse on a miss",
				Action: func(ctx *cli.Context) {
					ref := ctx.Args().First()
					if ref == "" {
						panic(Error.NewWith("image pull requires a reference argument", SetExitCode(EXIT_BADARGS)))
					}
					manifest, err := env.Images.Resolve(ref)
					if err != nil {
						panic(Error.NewWith(err.Error(), SetExitCode(EXIT_USER)))
					}
					fmt.Fprintf(output, "%s:%s %s (%d layers)\n", manifest.Name, manifest.Tag, manifest.Digest, len(manifest.Layers))
				},
			},
		},
	}
}
