package cli

import (
	"encoding/json"
	"io"
	"io/ioutil"

	"github.com/codegangsta/cli"

	"github.com/polydawn/capsule/api/def"
)

// BuildCommandPattern runs a build spec file through the build cache:
// parse args, load the spec off disk, invoke, then emit results as
// JSON on the configured writer so scripts can parse it mechanically.
func BuildCommandPattern(env *Env, output io.Writer) cli.Command {
	return cli.Command{
		Name:  "build",
		Usage: "Run a build spec through the deterministic build cache",
		Flags: []cli.Flag{
			cli.StringFlag{
				Name:  "input, i",
				Usage: "Path to the build spec (json format)",
			},
		},
		Action: func(ctx *cli.Context) {
			path := ctx.String("input")
			if path == "" {
				panic(Error.NewWith("\"input\" is a required parameter for build", SetExitCode(EXIT_BADARGS)))
			}
			spec := loadBuildSpec(path)

			results, err := env.Builder.Build(spec)
			if err != nil {
				panic(Error.NewWith(err.Error(), SetExitCode(EXIT_USER)))
			}

			msg, err := json.MarshalIndent(results, "", "  ")
			if err != nil {
				panic(err)
			}
			output.Write(msg)
			output.Write([]byte{'\n'})
		},
	}
}

func loadBuildSpec(path string) def.BuildSpec {
	content, err := ioutil.ReadFile(path)
	if err != nil {
		panic(Error.NewWith("could not read build spec "+path+": "+err.Error(), SetExitCode(EXIT_BADARGS)))
	}
	var spec def.BuildSpec
	if err := json.Unmarshal(content, &spec); err != nil {
		panic(Error.NewWith("malformed build spec "+path+": "+err.Error(), SetExitCode(EXIT_BADARGS)))
	}
	return spec
}
