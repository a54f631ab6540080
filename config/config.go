package config

import (
	"os"
	"path/filepath"
	"strconv"

	"github.com/polydawn/capsule/cluster"
)

/*
Config gathers every knob the cmd/capsulectl entrypoint needs before
it can construct the CAS, image, capsule, fabric, quota, cluster,
surge, snapshot, and policy components and hand them to the cli
package.  Every field has an env var and a sane default -- there's no
config file format here because the whole surface is small enough
that one doesn't carry its weight yet.
*/
type Config struct {
	CASRoot    string // CAPSULE_CAS_ROOT
	ImageIndex string // CAPSULE_IMAGE_INDEX
	WorkRoot   string // CAPSULE_WORK_ROOT

	ClusterSelfID   string                  // CAPSULE_NODE_ID
	ClusterBindAddr string                  // CAPSULE_CLUSTER_BIND
	PlacementPolicy cluster.PlacementPolicy // CAPSULE_PLACEMENT_POLICY

	FabricListenAddr string   // CAPSULE_FABRIC_LISTEN
	FabricPeers      []string // CAPSULE_FABRIC_PEERS, comma separated
	FabricDomain     string   // CAPSULE_FABRIC_DOMAIN

	ClusterPeers map[string]string // CAPSULE_CLUSTER_PEERS, "id=addr,id=addr"

	PolicyRetentionCapTotal int // CAPSULE_RETENTION_CAP
}

// Load reads Config from the environment, filling in defaults for
// anything unset.  It never fails: a missing or malformed value just
// falls back to its default, the same tolerance GetRepeatrMemoPath gave
// a missing REPEATR_MEMODIR.
func Load() Config {
	c := Config{
		CASRoot:                 getOr("CAPSULE_CAS_ROOT", defaultUnder(".capsule", "cas")),
		ImageIndex:              getOr("CAPSULE_IMAGE_INDEX", defaultUnder(".capsule", "images")),
		WorkRoot:                getOr("CAPSULE_WORK_ROOT", defaultUnder(".capsule", "work")),
		ClusterSelfID:           getOr("CAPSULE_NODE_ID", "local"),
		ClusterBindAddr:         getOr("CAPSULE_CLUSTER_BIND", "127.0.0.1:7400"),
		PlacementPolicy:         cluster.PlacementPolicy(getOr("CAPSULE_PLACEMENT_POLICY", string(cluster.PolicyLeastLoaded))),
		FabricListenAddr:        getOr("CAPSULE_FABRIC_LISTEN", "127.0.0.1:7500"),
		FabricDomain:            getOr("CAPSULE_FABRIC_DOMAIN", "cluster.local"),
		PolicyRetentionCapTotal: 50,
	}
	if raw := os.Getenv("CAPSULE_FABRIC_PEERS"); raw != "" {
		c.FabricPeers = splitCSV(raw)
	}
	if raw := os.Getenv("CAPSULE_CLUSTER_PEERS"); raw != "" {
		c.ClusterPeers = splitPeerMap(raw)
	}
	if raw := os.Getenv("CAPSULE_RETENTION_CAP"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			c.PolicyRetentionCapTotal = n
		}
	}
	return c
}

func getOr(envVar, def string) string {
	if v := os.Getenv(envVar); v != "" {
		return v
	}
	return def
}

func defaultUnder(parts ...string) string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = os.TempDir()
	}
	return filepath.Join(append([]string{home}, parts...)...)
}

// splitPeerMap parses "id=addr,id=addr" into a node id -> fabric address
// map; a malformed entry (missing "=") is skipped rather than failing
// the whole config load.
func splitPeerMap(raw string) map[string]string {
	out := make(map[string]string)
	for _, pair := range splitCSV(raw) {
		for i := 0; i < len(pair); i++ {
			if pair[i] == '=' {
				out[pair[:i]] = pair[i+1:]
				break
			}
		}
	}
	return out
}

func splitCSV(raw string) []string {
	var out []string
	start := 0
	for i := 0; i <= len(raw); i++ {
		if i == len(raw) || raw[i] == ',' {
			if i > start {
				out = append(out, raw[start:i])
			}
			start = i + 1
		}
	}
	return out
}
