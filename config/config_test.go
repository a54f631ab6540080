package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/polydawn/capsule/cluster"
)

func TestLoadDefaults(t *testing.T) {
	os.Unsetenv("CAPSULE_CAS_ROOT")
	os.Unsetenv("CAPSULE_RETENTION_CAP")
	os.Unsetenv("CAPSULE_FABRIC_PEERS")

	c := Load()
	require.NotEmpty(t, c.CASRoot)
	require.Equal(t, "local", c.ClusterSelfID)
	require.Equal(t, cluster.PolicyLeastLoaded, c.PlacementPolicy)
	require.Equal(t, 50, c.PolicyRetentionCapTotal)
	require.Empty(t, c.FabricPeers)
}

func TestLoadOverrides(t *testing.T) {
	os.Setenv("CAPSULE_NODE_ID", "node-7")
	os.Setenv("CAPSULE_RETENTION_CAP", "200")
	os.Setenv("CAPSULE_FABRIC_PEERS", "10.0.0.1:7500,10.0.0.2:7500")
	defer os.Unsetenv("CAPSULE_NODE_ID")
	defer os.Unsetenv("CAPSULE_RETENTION_CAP")
	defer os.Unsetenv("CAPSULE_FABRIC_PEERS")

	c := Load()
	require.Equal(t, "node-7", c.ClusterSelfID)
	require.Equal(t, 200, c.PolicyRetentionCapTotal)
	require.Equal(t, []string{"10.0.0.1:7500", "10.0.0.2:7500"}, c.FabricPeers)
}

func TestLoadMalformedRetentionCapFallsBackToDefault(t *testing.T) {
	os.Setenv("CAPSULE_RETENTION_CAP", "not-a-number")
	defer os.Unsetenv("CAPSULE_RETENTION_CAP")

	c := Load()
	require.Equal(t, 50, c.PolicyRetentionCapTotal)
}
