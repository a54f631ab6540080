package surge

import "github.com/polydawn/capsule/api/def"

/*
	Project is the declarative shape a surge.yaml file parses into: a
	named set of services, each describing the image to run and the
	other services it depends on, plus the networks those services join.
	A Project has no notion of "currently running" -- that's Surge's job
	once it's executing one.
*/
type Project struct {
	Name     string                 `yaml:"name"`
	Services map[string]ServiceSpec `yaml:"services"`
	Networks map[string]NetworkSpec `yaml:"networks"`
}

type ServiceSpec struct {
	Image      string            `yaml:"image"`
	DependsOn  []string          `yaml:"dependsOn"`
	Command    []string          `yaml:"command"`
	Env        map[string]string `yaml:"env"`
	Network    string            `yaml:"network"`
	Policy     def.Policy        `yaml:"policy"`
	Caps       def.ResourceCaps  `yaml:"caps"`
	Mounts     []def.Mount       `yaml:"mounts"`
	Replicas   int               `yaml:"replicas"`
}

type NetworkSpec struct {
	Driver string `yaml:"driver"`
}

// defaultBridgeNetwork is synthesized into every Project that doesn't
// declare its own networks: a project always has at least one network
// to put services on.
const defaultBridgeNetwork = "bridge"

// DefaultNodeID names the identity of a single-node surge deployment;
// no code in this package registers anything under it.
const DefaultNodeID = "local"

// baseCapsuleName is a name reserved for a per-network anchor capsule;
// Surge does not create or start such a capsule, and each service
// capsule provisions its own namespaces.
const baseCapsuleName = "<base>"

// normalize fills in defaults an author is allowed to omit: a single
// implicit "bridge" network, every service attached to it if it named
// none, and a replica count of at least one.
func (p *Project) normalize() {
	if len(p.Networks) == 0 {
		p.Networks = map[string]NetworkSpec{defaultBridgeNetwork: {Driver: "bridge"}}
	}
	for name, svc := range p.Services {
		if svc.Network == "" {
			svc.Network = defaultBridgeNetwork
		}
		if svc.Replicas <= 0 {
			svc.Replicas = 1
		}
		p.Services[name] = svc
	}
}
