package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/codegangsta/cli"

	"github.com/polydawn/capsule/api/def"
	"github.com/polydawn/capsule/cluster"
)

// ClusterCommandPattern exposes membership and placement: joining a
// node, listing active members, and dry-running a placement decision
// without actually creating a capsule there.
func ClusterCommandPattern(env *Env, output io.Writer) cli.Command {
	return cli.Command{
		Name:  "cluster",
		Usage: "Inspect and manage cluster membership and placement",
		Subcommands: []cli.Command{
			{
				Name:  "join",
				Usage: "Register a node as a cluster member (Joining until its first heartbeat)",
				Flags: []cli.Flag{
					cli.StringFlag{Name: "id", Usage: "Node id"},
					cli.StringFlag{Name: "address", Usage: "Node address"},
					cli.IntFlag{Name: "port", Usage: "Node port"},
					cli.Float64Flag{Name: "cpu-cores", Value: 1, Usage: "Total CPU cores available"},
					cli.Float64Flag{Name: "memory-gb", Value: 1, Usage: "Total memory available in GB"},
				},
				Action: func(ctx *cli.Context) {
					id := ctx.String("id")
					if id == "" {
						panic(Error.NewWith("\"id\" is required for cluster join", SetExitCode(EXIT_BADARGS)))
					}
					env.Members.Join(def.Node{
						ID:              id,
						Address:         ctx.String("address"),
						Port:            ctx.Int("port"),
						State:           def.NodeActive,
						Capacity:        def.Capacity{CPUCores: ctx.Float64("cpu-cores"), MemoryGB: ctx.Float64("memory-gb")},
						LastHeartbeatAt: time.Now(),
					})
					if env.Elector != nil {
						addr := fmt.Sprintf("%s:%d", ctx.String("address"), ctx.Int("port"))
						proposeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
						defer cancel()
						if err := env.Elector.ProposeJoin(proposeCtx, id, addr); err != nil {
							panic(Error.NewWith(err.Error(), SetExitCode(EXIT_USER)))
						}
					}
				},
			},
			{
				Name:  "members",
				Usage: "List active cluster members",
				Action: func(ctx *cli.Context) {
					msg, err := json.MarshalIndent(env.Members.Active(), "", "  ")
					if err != nil {
						panic(err)
					}
					output.Write(msg)
					output.Write([]byte{'\n'})
				},
			},
			{
				Name:  "place",
				Usage: "Dry-run a placement decision under the configured policy",
				Flags: []cli.Flag{
					cli.Float64Flag{Name: "cpu-cores", Usage: "Requested CPU cores"},
					cli.Int64Flag{Name: "memory-mb", Usage: "Requested memory in MB"},
					cli.StringFlag{Name: "affinity", Usage: "Affinity label to match for affinity-aware placement"},
				},
				Action: func(ctx *cli.Context) {
					node, err := env.Scheduler.Place(clusterPlacementRequest(ctx))
					if err != nil {
						panic(Error.NewWith(err.Error(), SetExitCode(EXIT_USER)))
					}
					fmt.Fprintf(output, "%s\n", node.ID)
				},
			},
		},
	}
}

func clusterPlacementRequest(ctx *cli.Context) cluster.PlacementRequest {
	return cluster.PlacementRequest{
		Caps: def.ResourceCaps{
			CPUCores: ctx.Float64("cpu-cores"),
			MemoryMB: ctx.Int64("memory-mb"),
		},
		AffinityLabel: ctx.String("affinity"),
	}
}
