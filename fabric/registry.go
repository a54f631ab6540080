package fabric

import (
	"context"
	"sync"
	"time"

	"github.com/polydawn/capsule/api/def"
)

// Registry tracks every service endpoint this node knows about, whether
// registered locally by a capsule starting up or learned from a peer.
// It is the in-memory half of name resolution; Resolver layers TTL-aware
// lookup and remote queries on top of it.
//
// domain is this fabric's DNS-style suffix (e.g. "cluster.local"); every
// Register also files the entry under the fully-qualified
// "<name>.<domain>" form so a peer that only knows the FQDN spelling of
// a service still finds it with a direct Lookup, with no canonicalize
// retry required.
type Registry struct {
	mu        sync.RWMutex
	endpoints map[string][]def.ServiceEndpoint
	domain    string
}

func NewRegistry(domain string) *Registry {
	return &Registry{endpoints: make(map[string][]def.ServiceEndpoint), domain: domain}
}

func (r *Registry) Domain() string { return r.domain }

// Register adds or replaces a service's endpoint set. Multiple endpoints
// under one name are treated as load-balanced replicas of the same
// service. The entry is filed under both the bare name and its
// fully-qualified domain form.
func (r *Registry) Register(name string, ep def.ServiceEndpoint) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, key := range r.keysFor(name) {
		r.putLocked(key, ep)
	}
}

func (r *Registry) putLocked(key string, ep def.ServiceEndpoint) {
	for i, existing := range r.endpoints[key] {
		if existing.Address == ep.Address && existing.Port == ep.Port {
			r.endpoints[key][i] = ep
			return
		}
	}
	r.endpoints[key] = append(r.endpoints[key], ep)
}

// keysFor returns every key a Register/Deregister of name should touch:
// the bare name as given, and -- when a domain is configured and name
// isn't already fully qualified under it -- the "<name>.<domain>" form.
func (r *Registry) keysFor(name string) []string {
	keys := []string{name}
	if r.domain != "" {
		suffix := "." + r.domain
		if len(name) < len(suffix) || name[len(name)-len(suffix):] != suffix {
			keys = append(keys, name+suffix)
		}
	}
	return keys
}

func (r *Registry) Deregister(name string, addr string, port int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, key := range r.keysFor(name) {
		eps := r.endpoints[key]
		out := eps[:0]
		for _, ep := range eps {
			if ep.Address == addr && ep.Port == port {
				continue
			}
			out = append(out, ep)
		}
		if len(out) == 0 {
			delete(r.endpoints, key)
		} else {
			r.endpoints[key] = out
		}
	}
}

func (r *Registry) Lookup(name string) ([]def.ServiceEndpoint, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	eps, ok := r.endpoints[name]
	return eps, ok
}

// Query satisfies fabric.ResolverServer: it answers a peer's remote
// lookup with exactly what a local Lookup would return, so a query that
// arrives over the wire behaves identically to one served in-process.
func (r *Registry) Query(ctx context.Context, name string) ([]def.ServiceEndpoint, error) {
	eps, ok := r.Lookup(name)
	if !ok {
		return nil, UnknownService.New("no endpoints registered for %q", name)
	}
	return eps, nil
}

// Snapshot returns a copy of the whole registration table, every
// service name mapped to its endpoints.
func (r *Registry) Snapshot() map[string][]def.ServiceEndpoint {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string][]def.ServiceEndpoint, len(r.endpoints))
	for k, v := range r.endpoints {
		cp := make([]def.ServiceEndpoint, len(v))
		copy(cp, v)
		out[k] = cp
	}
	return out
}

// ttlFor picks the tier of TTL a cached resolution record gets:
// control-plane records (cluster/fabric's own bookkeeping entries) live
// a full day, records this node discovered via a remote peer are
// refreshed aggressively, and ordinary locally-registered services get
// the middle tier.
func ttlFor(isControl, remote bool) time.Duration {
	switch {
	case isControl:
		return def.TTLControl
	case remote:
		return def.TTLRemoteDiscovered
	default:
		return def.TTLService
	}
}
