package surge

import (
	"sync"

	"github.com/inconshreveable/log15"

	"github.com/polydawn/capsule/api/def"
	"github.com/polydawn/capsule/capsule"
	"github.com/polydawn/capsule/cluster"
	"github.com/polydawn/capsule/fabric"
	"github.com/polydawn/capsule/image"
)

// Surge drives one project's worth of capsules through their lifecycle:
// resolve each service's image, place it (locally
// or via the cluster scheduler when one is configured), create the
// capsule, and register it in the fabric so dependent services can find
// it by name -- all in dependency order.
type Surge struct {
	Runtime   capsule.LifecycleRuntime
	Images    *image.Store
	Registry  *fabric.Registry
	Scheduler *cluster.Scheduler // nil for a single-node deployment

	mu      sync.Mutex
	running map[string][]string       // service name -> capsule ids (one per replica)
	byID    map[string]runningCapsule // capsule id -> what Reschedule needs to recreate it
	log     log15.Logger
}

// runningCapsule is what Reschedule needs to know to recreate a replica
// elsewhere: its service name (for registry bookkeeping) and the config
// it was created with.
type runningCapsule struct {
	service string
	cfg     def.CapsuleConfig
}

func New(runtime capsule.LifecycleRuntime, images *image.Store, registry *fabric.Registry, scheduler *cluster.Scheduler) *Surge {
	return &Surge{
		Runtime:   runtime,
		Images:    images,
		Registry:  registry,
		Scheduler: scheduler,
		running:   make(map[string][]string),
		byID:      make(map[string]runningCapsule),
		log:       log15.New("module", "surge"),
	}
}

// Up starts every service in a project in dependency order: networks
// first (a no-op beyond bookkeeping for the default bridge, but a real
// network driver would provision here), then each service's replicas,
// registering every replica's endpoint in the fabric the moment its
// capsule reports Running so later services in the order can resolve it
// immediately.
func (s *Surge) Up(p *Project) error {
	p.normalize()
	order, err := orderServices(p)
	if err != nil {
		return err
	}

	for _, name := range order {
		svc := p.Services[name]
		if err := s.startService(name, svc); err != nil {
			return ServiceStartFailed.Wrap(err)
		}
	}
	return nil
}

func (s *Surge) startService(name string, svc ServiceSpec) error {
	manifest, err := s.Images.Resolve(svc.Image)
	if err != nil {
		return err
	}

	for i := 0; i < svc.Replicas; i++ {
		cfg := def.CapsuleConfig{
			Hostname:    name,
			RootfsImage: manifest.Name + ":" + manifest.Tag,
			Entrypoint:  svc.Command,
			Env:         svc.Env,
			Policy:      svc.Policy,
			Caps:        svc.Caps,
			Mounts:      svc.Mounts,
		}
		if cfg.Policy == "" {
			cfg.Policy = def.PolicyRoutine
		}
		if cfg.Caps.MemoryMB == 0 {
			cfg.Caps.MemoryMB = 256
		}

		if s.Scheduler != nil {
			node, err := s.Scheduler.Place(placementFor(svc))
			if err != nil {
				return err
			}
			s.log.Info("placing service replica", "service", name, "node", node.ID)
		}

		cap, err := s.Runtime.Create(cfg)
		if err != nil {
			return err
		}

		s.Registry.Register(name, def.ServiceEndpoint{
			Name:     name,
			Address:  cap.ID, // address resolution for local capsules is by id until fabric's remote transport assigns a real one
			Protocol: def.ProtocolTCP,
		})

		s.mu.Lock()
		s.running[name] = append(s.running[name], cap.ID)
		s.byID[cap.ID] = runningCapsule{service: name, cfg: cfg}
		s.mu.Unlock()
	}
	return nil
}

// Reschedule satisfies cluster.Rescheduler: it recreates the capsule
// identified by capsuleID on a freshly placed node (excluding fromNode,
// which the cluster has just declared failed) using the config it was
// originally started with, then swaps the registry and bookkeeping over
// to the new instance. A capsule this Surge didn't start (capsuleID
// unknown to byID) is silently skipped -- Surge only owns replicas it
// created itself.
func (s *Surge) Reschedule(capsuleID, fromNode string) error {
	s.mu.Lock()
	rc, ok := s.byID[capsuleID]
	s.mu.Unlock()
	if !ok {
		return nil
	}

	if s.Scheduler != nil {
		node, err := s.Scheduler.Place(cluster.PlacementRequest{Caps: rc.cfg.Caps})
		if err != nil {
			return err
		}
		if node.ID == fromNode {
			return NodeUnavailable.New("scheduler re-placed capsule %s back onto the failed node %s", capsuleID, fromNode)
		}
		s.log.Info("rescheduling capsule", "capsule", capsuleID, "from", fromNode, "to", node.ID)
	}

	newCap, err := s.Runtime.Create(rc.cfg)
	if err != nil {
		return err
	}

	s.Registry.Deregister(rc.service, capsuleID, 0)
	s.Registry.Register(rc.service, def.ServiceEndpoint{
		Name:     rc.service,
		Address:  newCap.ID,
		Protocol: def.ProtocolTCP,
	})

	s.mu.Lock()
	delete(s.byID, capsuleID)
	s.byID[newCap.ID] = rc
	ids := s.running[rc.service]
	for i, id := range ids {
		if id == capsuleID {
			ids[i] = newCap.ID
			break
		}
	}
	s.running[rc.service] = ids
	s.mu.Unlock()
	return nil
}

func placementFor(svc ServiceSpec) cluster.PlacementRequest {
	return cluster.PlacementRequest{Caps: svc.Caps}
}

// Down stops every running capsule for a project in reverse dependency
// order, so a service is torn down only after everything depending on
// it already has been.
func (s *Surge) Down(p *Project) error {
	order, err := orderServices(p)
	if err != nil {
		return err
	}
	for i := len(order) - 1; i >= 0; i-- {
		name := order[i]
		if err := s.stopService(name); err != nil {
			return err
		}
	}
	return nil
}

func (s *Surge) stopService(name string) error {
	s.mu.Lock()
	ids := s.running[name]
	delete(s.running, name)
	s.mu.Unlock()

	for _, id := range ids {
		if err := s.Runtime.Stop(id); err != nil {
			return err
		}
		s.Registry.Deregister(name, id, 0)
		s.mu.Lock()
		delete(s.byID, id)
		s.mu.Unlock()
	}
	return nil
}

// Kill stops every service capsule this Surge has running, without
// regard to dependency order. It stops them through the same
// Runtime.Stop that Down uses (SIGTERM, then SIGKILL once the grace
// period runs out); there is no immediate SIGKILL.
func (s *Surge) Kill(p *Project) error {
	s.mu.Lock()
	names := make([]string, 0, len(s.running))
	for name := range s.running {
		names = append(names, name)
	}
	s.mu.Unlock()

	var firstErr error
	for _, name := range names {
		if err := s.stopService(name); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
