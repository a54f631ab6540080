package quota

import (
	"sort"
	"sync"
	"time"

	"github.com/inconshreveable/log15"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/polydawn/capsule/api/def"
)

// SoftWarning is emitted on the Manager's Warnings channel whenever an
// allocation pushes a limit's usage past its configured soft threshold,
// without yet exceeding the hard cap.
type SoftWarning struct {
	Quota    string
	Resource def.ResourceKind
	Used     float64
	Soft     float64
	Hard     float64
}

// Manager holds every quota a cluster knows about and arbitrates
// resource allocation against them. Every allocation names one or more
// quotas (e.g. a capsule create touches its user's quota, its
// namespace's, and the cluster's all at once); Allocate applies all of
// them atomically, either every named quota has room or none of them
// are touched.
type Manager struct {
	mu       sync.Mutex
	byKey    map[string]*def.Quota
	log      log15.Logger
	Warnings chan SoftWarning

	usageGauge *prometheus.GaugeVec
}

func key(scope def.ScopeKind, id string) string { return string(scope) + "/" + id }

func NewManager() *Manager {
	m := &Manager{
		byKey:    make(map[string]*def.Quota),
		log:      log15.New("module", "quota"),
		Warnings: make(chan SoftWarning, 64),
		usageGauge: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "capsule",
			Subsystem: "quota",
			Name:      "resource_used",
			Help:      "Current usage of a resource kind within a quota scope.",
		}, []string{"quota", "resource"}),
	}
	seedDefault(m, def.DefaultClusterScope())
	seedDefault(m, def.DefaultNamespaceScope())
	seedDefault(m, def.DefaultUserScope())
	return m
}

// Collector exposes the manager's usage gauge to a prometheus registerer.
func (m *Manager) Collector() prometheus.Collector { return m.usageGauge }

func seedDefault(m *Manager, scope def.ScopeRef) {
	q := &def.Quota{
		Name:    "default",
		Scope:   scope.Scope,
		ScopeID: scope.ID,
		Limits: map[def.ResourceKind]*def.Limit{
			def.ResourceCPU:     {Hard: 64},
			def.ResourceMemory:  {Hard: 256 * 1024},
			def.ResourceStorage: {Hard: 10 * 1024},
			def.ResourceBW:      {Hard: 10000},
		},
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	m.byKey[key(scope.Scope, scope.ID)] = q
}

// Put installs or replaces a quota definition wholesale.
func (m *Manager) Put(q def.Quota) {
	m.mu.Lock()
	defer m.mu.Unlock()
	q.UpdatedAt = time.Now()
	if existing, ok := m.byKey[key(q.Scope, q.ScopeID)]; ok {
		q.CreatedAt = existing.CreatedAt
	} else {
		q.CreatedAt = q.UpdatedAt
	}
	cp := q
	m.byKey[key(q.Scope, q.ScopeID)] = &cp
}

func (m *Manager) Get(scope def.ScopeRef) (def.Quota, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.byKey[key(scope.Scope, scope.ID)]
	if !ok {
		return def.Quota{}, false
	}
	return *q, true
}

// Request is a set of resource amounts to allocate against a set of
// scopes simultaneously -- e.g. a capsule create charges its user,
// namespace, and cluster quotas all for the same CPU/memory figures.
type Request struct {
	Scopes  []def.ScopeRef
	Amounts map[def.ResourceKind]float64
}

// Check reports whether a Request would succeed without applying it.
func (m *Manager) Check(req Request) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	quotas, err := m.resolve(req.Scopes)
	if err != nil {
		return err
	}
	return checkFits(quotas, req.Amounts)
}

// Allocate applies a Request atomically across every named scope: it
// locks the manager once (so no other allocation can interleave),
// resolves every quota in a name-sorted order, verifies every one has
// room, and only then commits the usage increments to all of them.
// Any single quota lacking room fails the whole request with none of
// the scopes touched.
func (m *Manager) Allocate(req Request) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	quotas, err := m.resolve(req.Scopes)
	if err != nil {
		return err
	}
	if err := checkFits(quotas, req.Amounts); err != nil {
		return err
	}

	now := time.Now()
	for _, q := range quotas {
		for kind, amt := range req.Amounts {
			lim := q.Limits[kind]
			if lim == nil {
				continue
			}
			lim.Used += amt
			m.usageGauge.WithLabelValues(q.Name, string(kind)).Set(lim.Used)
			if lim.Soft != nil && lim.Used > *lim.Soft {
				select {
				case m.Warnings <- SoftWarning{Quota: q.Name, Resource: kind, Used: lim.Used, Soft: *lim.Soft, Hard: lim.Hard}:
				default:
				}
			}
		}
		q.UpdatedAt = now
	}
	return nil
}

// Deallocate releases previously-allocated amounts back to every named
// scope, floored at zero so a double-release can't drive usage negative.
func (m *Manager) Deallocate(req Request) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	quotas, err := m.resolve(req.Scopes)
	if err != nil {
		return err
	}
	for _, q := range quotas {
		for kind, amt := range req.Amounts {
			lim := q.Limits[kind]
			if lim == nil {
				continue
			}
			lim.Used -= amt
			if lim.Used < 0 {
				lim.Used = 0
			}
			m.usageGauge.WithLabelValues(q.Name, string(kind)).Set(lim.Used)
		}
		q.UpdatedAt = time.Now()
	}
	return nil
}

// resolve looks up every scope's quota and returns them sorted by name,
// giving every caller the same deterministic commit ordering regardless
// of the order scopes were listed in the request; the manager's single
// mutex is what serializes concurrent allocations. A scope with no quota configured is
// treated as absent rather than infinite: it's silently skipped, not
// resolved as an error, so a request naming a scope nobody ever put a
// quota on just isn't constrained by it.
func (m *Manager) resolve(scopes []def.ScopeRef) ([]*def.Quota, error) {
	out := make([]*def.Quota, 0, len(scopes))
	for _, s := range scopes {
		q, ok := m.byKey[key(s.Scope, s.ID)]
		if !ok {
			continue
		}
		out = append(out, q)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func checkFits(quotas []*def.Quota, amounts map[def.ResourceKind]float64) error {
	for _, q := range quotas {
		for kind, amt := range amounts {
			lim := q.Limits[kind]
			if lim == nil {
				continue
			}
			if lim.Used+amt > lim.Hard {
				return Exceeded.New("quota %q would exceed hard cap on %s: %.2f + %.2f > %.2f",
					q.Name, kind, lim.Used, amt, lim.Hard)
			}
		}
	}
	return nil
}
