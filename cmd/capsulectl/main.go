package main

import (
	"fmt"
	"io/ioutil"
	"os"
	"time"

	"github.com/spacemonkeygo/errors"
	"github.com/spacemonkeygo/errors/try"

	"github.com/polydawn/capsule/api/def"
	"github.com/polydawn/capsule/buildcache"
	"github.com/polydawn/capsule/capsule"
	"github.com/polydawn/capsule/cas"
	"github.com/polydawn/capsule/cli"
	"github.com/polydawn/capsule/cluster"
	"github.com/polydawn/capsule/config"
	"github.com/polydawn/capsule/fabric"
	"github.com/polydawn/capsule/image"
	"github.com/polydawn/capsule/policy"
	"github.com/polydawn/capsule/quota"
	"github.com/polydawn/capsule/snapshot"
	"github.com/polydawn/capsule/surge"
)

func main() {
	// Must come before any flag/command parsing: a reexec'd child's
	// argv[0] is this same binary, and it's the privileged child side of
	// a capsule.Runtime.Create, not a normal capsulectl invocation.
	capsule.MaybeRunInit()

	try.Do(func() {
		cli.Main(buildEnv(), os.Args, os.Stderr, os.Stdout)
	}).Catch(cli.Error, func(err *errors.Error) {
		if isDebugMode() {
			panic(err)
		}
		fmt.Fprintf(os.Stderr, "capsulectl was unable to complete your request!\n%s\n", err)
		os.Exit(int(cli.EXIT_USER))
	}).CatchAll(func(err error) {
		if isDebugMode() {
			panic(err)
		}
		logPath, saveErr := saveErrorReport(err)
		var saveMsg string
		if saveErr == nil {
			saveMsg = fmt.Sprintf("The full error has been logged to %q; please include it in any bug report.", logPath)
		} else {
			saveMsg = fmt.Sprintf("Additionally, we were unable to save a full log of the problem (%q).", saveErr)
		}
		fmt.Fprintf(os.Stderr,
			"capsulectl hit an unexpected error and was unable to complete your request!\n"+
				saveMsg+"\n\n"+
				"%s\n",
			err)
		os.Exit(int(cli.EXIT_UNKNOWNPANIC))
	})
}

// buildEnv wires every component into one cli.Env, reading connection
// details and storage roots from config.Load().
func buildEnv() *cli.Env {
	cfg := config.Load()

	casStore, err := cas.Open(cfg.CASRoot)
	if err != nil {
		panic(err)
	}

	warehouse := image.NewDirWarehouse(cfg.ImageIndex)
	imageStore, err := image.NewStore(casStore, warehouse, cfg.ImageIndex)
	if err != nil {
		panic(err)
	}

	runtime := capsule.NewRuntime(casStore, imageStore, cfg.WorkRoot)
	runtime.BuildImage = os.Getenv("CAPSULE_BUILD_IMAGE")

	builder, err := buildcache.NewBuilder(casStore, runtime, cfg.WorkRoot, cfg.CASRoot)
	if err != nil {
		panic(err)
	}

	registry := fabric.NewRegistry(cfg.FabricDomain)
	transport := fabric.NewTransport(nil, 64)
	resolver := fabric.NewResolver(registry, transport, func() []string { return cfg.FabricPeers }, cfg.FabricDomain)

	quotaMgr := quota.NewManager()

	members := cluster.NewMembership()
	scheduler := cluster.NewScheduler(members, cfg.PlacementPolicy)

	sg := surge.New(runtime, imageStore, registry, scheduler)

	elector := cluster.NewElector(cfg.ClusterSelfID, cfg.ClusterPeers, transport)
	monitor := cluster.NewMonitor(members, elector, cfg.ClusterSelfID, sg)
	monitor.Start()

	fabricServer := fabric.NewServer(registry, elector)
	go func() {
		if err := fabricServer.ListenAndServe(cfg.FabricListenAddr); err != nil {
			fmt.Fprintf(os.Stderr, "fabric server on %s stopped: %s\n", cfg.FabricListenAddr, err)
		}
	}()

	snapshots := snapshot.NewManager(casStore)
	retention := policy.RetentionRule{
		KeepPerBucket: map[policy.TimerInterval]int{
			policy.Hourly:  24,
			policy.Daily:   30,
			policy.Weekly:  12,
			policy.Monthly: 12,
		},
		CapTotal: cfg.PolicyRetentionCapTotal,
	}
	policyEngine := policy.NewEngine(snapshots, retention, func(key def.SnapshotKey) error {
		return nil
	})

	return &cli.Env{
		CAS:       casStore,
		Images:    imageStore,
		Runtime:   runtime,
		Builder:   builder,
		Registry:  registry,
		Resolver:  resolver,
		Quota:     quotaMgr,
		Members:   members,
		Scheduler: scheduler,
		Elector:   elector,
		Surge:     sg,
		Snapshots: snapshots,
		Policy:    policyEngine,
	}
}

func isDebugMode() bool {
	return len(os.Getenv("DEBUG")) != 0 || len(os.Getenv("CAPSULE_DEBUG")) != 0
}

func saveErrorReport(caught error) (string, error) {
	logFile, err := ioutil.TempFile(os.TempDir(), "capsulectl-error-report-")
	if err != nil {
		return "", err
	}
	defer logFile.Close()
	fmt.Fprintf(logFile, "capsulectl error report\n")
	fmt.Fprintf(logFile, "========================\n")
	fmt.Fprintf(logFile, "Date: %s\n\n", time.Now())
	fmt.Fprintf(logFile, "Full error:\n-----------\n%s\n", caught)
	return logFile.Name(), nil
}
