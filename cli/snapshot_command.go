package cli

import (
	"encoding/json"
	"io"
	"time"

	"github.com/codegangsta/cli"

	"github.com/polydawn/capsule/api/def"
)

const timeLayout = time.RFC3339

// SnapshotCommandPattern exposes capture/restore/verify directly,
// outside of policy's automatic triggers -- an operator taking a manual
// snapshot before a risky change doesn't want to wait on a timer.
func SnapshotCommandPattern(env *Env, output io.Writer) cli.Command {
	return cli.Command{
		Name:  "snapshot",
		Usage: "Capture, restore, and verify capsule snapshots",
		Subcommands: []cli.Command{
			{
				Name:  "capture",
				Usage: "Capture a running capsule's rootfs, process, and network state",
				Flags: []cli.Flag{
					cli.StringFlag{Name: "capsule", Usage: "Capsule id to capture"},
					cli.StringFlag{Name: "rootfs", Usage: "Path to the capsule's merged rootfs"},
					cli.IntFlag{Name: "pid", Usage: "Root pid of the capsule's process tree"},
				},
				Action: func(ctx *cli.Context) {
					capsuleID := ctx.String("capsule")
					rootfs := ctx.String("rootfs")
					pid := ctx.Int("pid")
					if capsuleID == "" || rootfs == "" || pid == 0 {
						panic(Error.NewWith("snapshot capture requires --capsule, --rootfs, and --pid", SetExitCode(EXIT_BADARGS)))
					}
					snap, err := env.Snapshots.Capture(capsuleID, rootfs, pid)
					if err != nil {
						panic(Error.NewWith(err.Error(), SetExitCode(EXIT_USER)))
					}
					msg, err := json.MarshalIndent(snap, "", "  ")
					if err != nil {
						panic(err)
					}
					output.Write(msg)
					output.Write([]byte{'\n'})
				},
			},
			{
				Name:  "restore",
				Usage: "Restore a snapshot's filesystem into a destination directory",
				Flags: []cli.Flag{
					cli.StringFlag{Name: "capsule", Usage: "Capsule id the snapshot belongs to"},
					cli.StringFlag{Name: "taken-at", Usage: "RFC3339 timestamp identifying which snapshot of the capsule to restore"},
					cli.StringFlag{Name: "dest", Usage: "Destination directory"},
				},
				Action: func(ctx *cli.Context) {
					snap, ok := lookupSnapshot(env, ctx.String("capsule"), ctx.String("taken-at"))
					if !ok {
						panic(Error.NewWith("no such snapshot", SetExitCode(EXIT_USER)))
					}
					dest := ctx.String("dest")
					if dest == "" {
						panic(Error.NewWith("\"dest\" is required for snapshot restore", SetExitCode(EXIT_BADARGS)))
					}
					if err := env.Snapshots.Restore(snap, dest); err != nil {
						panic(Error.NewWith(err.Error(), SetExitCode(EXIT_USER)))
					}
				},
			},
			{
				Name:  "verify",
				Usage: "Re-verify a snapshot's stored digests are still intact in CAS",
				Flags: []cli.Flag{
					cli.StringFlag{Name: "capsule", Usage: "Capsule id the snapshot belongs to"},
					cli.StringFlag{Name: "taken-at", Usage: "RFC3339 timestamp identifying which snapshot of the capsule to verify"},
				},
				Action: func(ctx *cli.Context) {
					snap, ok := lookupSnapshot(env, ctx.String("capsule"), ctx.String("taken-at"))
					if !ok {
						panic(Error.NewWith("no such snapshot", SetExitCode(EXIT_USER)))
					}
					if err := env.Snapshots.Verify(snap); err != nil {
						panic(Error.NewWith(err.Error(), SetExitCode(EXIT_USER)))
					}
				},
			},
		},
	}
}

// lookupSnapshot resolves the (capsule, taken-at) pair the CLI accepts
// into the def.Snapshot that policy.Engine already holds in memory --
// capsulectl has no separate snapshot index of its own.
func lookupSnapshot(env *Env, capsuleID, takenAt string) (def.Snapshot, bool) {
	if capsuleID == "" || takenAt == "" {
		panic(Error.NewWith("\"capsule\" and \"taken-at\" are required", SetExitCode(EXIT_BADARGS)))
	}
	for _, s := range env.Policy.Known() {
		if s.CapsuleID == capsuleID && s.TakenAt.Format(timeLayout) == takenAt {
			return s, true
		}
	}
	return def.Snapshot{}, false
}
