package fabric

import (
	"context"
	"sync"
	"time"

	"github.com/inconshreveable/log15"

	"github.com/polydawn/capsule/api/def"
)

// PeerQuerier is how a Resolver reaches out to another node when a name
// isn't known locally; Transport implements it over the fabric's grpc
// connections (TLS only when the Transport has a tls.Config).
type PeerQuerier interface {
	QueryPeer(ctx context.Context, peerAddr, name string) ([]def.ServiceEndpoint, error)
}

// Resolver answers name lookups following a fallback chain: local
// registry first, then a canonical-form retry (in case the name was
// given with a different alias spelling), then a remote query to known
// peers, caching whatever it finds with the TTL tier appropriate to how
// it was found.
type Resolver struct {
	local    *Registry
	peers    PeerQuerier
	peerList func() []string
	domain   string

	mu    sync.Mutex
	cache map[string]def.ResolutionRecord
	log   log15.Logger
}

// NewResolver builds a Resolver against local (consulted first), peers
// (consulted for names local doesn't have), and domain, the DNS-style
// suffix used to build the canonical-form family a name is retried
// under: "<name>.<domain>" and the SRV-style
// "_app._transport.<name>.<domain>".
func NewResolver(local *Registry, peers PeerQuerier, peerList func() []string, domain string) *Resolver {
	return &Resolver{
		local:    local,
		peers:    peers,
		peerList: peerList,
		domain:   domain,
		cache:    make(map[string]def.ResolutionRecord),
		log:      log15.New("module", "fabric.resolver"),
	}
}

func (r *Resolver) Resolve(ctx context.Context, name string) ([]def.ServiceEndpoint, error) {
	if eps, ok := r.cached(name); ok {
		return eps, nil
	}

	candidates := canonicalForms(name, r.domain)

	for _, candidate := range candidates {
		if eps, ok := r.local.Lookup(candidate); ok {
			r.cacheResult(name, eps, false)
			return eps, nil
		}
	}

	if r.peers == nil || r.peerList == nil {
		return nil, ResolutionFailed.New("%q not found locally and no peer transport configured", name)
	}
	for _, peerAddr := range r.peerList() {
		for _, candidate := range candidates {
			eps, err := r.peers.QueryPeer(ctx, peerAddr, candidate)
			if err != nil || len(eps) == 0 {
				continue
			}
			r.cacheResult(name, eps, true)
			return eps, nil
		}
	}
	return nil, ResolutionFailed.New("%q not found on any of %d known peer(s)", name, len(r.peerList()))
}

func (r *Resolver) cached(name string) ([]def.ServiceEndpoint, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.cache[name]
	if !ok || rec.Expired(time.Now()) {
		return nil, false
	}
	return []def.ServiceEndpoint{{Name: rec.Name, Address: rec.Address, Port: rec.Port}}, true
}

func (r *Resolver) cacheResult(name string, eps []def.ServiceEndpoint, remote bool) {
	if len(eps) == 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	ttl := ttlFor(false, remote)
	r.cache[name] = def.ResolutionRecord{
		Name:      name,
		Kind:      def.RecordService,
		Address:   eps[0].Address,
		Port:      eps[0].Port,
		ExpiresAt: time.Now().Add(ttl),
	}
}

// canonicalize strips the trailing dot DNS-style fully-qualified names
// sometimes carry, and lowercases.
func canonicalize(name string) string {
	s := name
	if len(s) > 0 && s[len(s)-1] == '.' {
		s = s[:len(s)-1]
	}
	out := make([]byte, len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c >= 'A' && c <= 'Z' {
			c += 'a' - 'A'
		}
		out[i] = c
	}
	return string(out)
}

// canonicalForms builds the ordered family of spellings a name is tried
// under: the name as given (canonicalized), then -- when domain is
// configured and the name isn't already qualified under it -- the plain
// "<name>.<domain>" form and the SRV-style
// "_app._transport.<name>.<domain>" form, the two ways a service can be
// addressed by its fully-qualified domain name rather than its bare
// registered name.
func canonicalForms(name, domain string) []string {
	base := canonicalize(name)
	forms := []string{base}
	if domain == "" {
		return forms
	}
	suffix := "." + domain
	if len(base) >= len(suffix) && base[len(base)-len(suffix):] == suffix {
		return forms
	}
	forms = append(forms, base+suffix)
	forms = append(forms, "_app._transport."+base+suffix)
	return forms
}
