// Package registry implements C3: a stable map from endpoint id to loaded
// IR, with atomic-swap snapshot semantics for hot reload (spec §4.3).
package registry

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	"github.com/raw-labs/mxcp/internal/endpoint"
)

// Snapshot is an immutable view of every loaded endpoint at one load_time.
// Once published, a Snapshot is never mutated; a reload publishes a new one.
type Snapshot struct {
	Endpoints  map[string]*endpoint.Endpoint
	SchemaHash string
	LoadTime   time.Time
}

// Lookup returns the endpoint by id if present and enabled.
func (s *Snapshot) Lookup(id string) (*endpoint.Endpoint, bool) {
	ep, ok := s.Endpoints[id]
	if !ok || !ep.Enabled {
		return nil, false
	}
	return ep, true
}

// Counts returns the number of tools, resources, and prompts in the
// snapshot, used by the admin surface's /status and /config (spec §4.10).
func (s *Snapshot) Counts() (tools, resources, prompts int) {
	for _, ep := range s.Endpoints {
		switch ep.Kind {
		case endpoint.KindTool:
			tools++
		case endpoint.KindResource:
			resources++
		case endpoint.KindPrompt:
			prompts++
		}
	}
	return
}

// NewSnapshot builds a Snapshot from a loaded endpoint set, computing a
// deterministic schema hash over endpoint ids so callers can detect whether
// a reload actually changed anything (spec §4.3: "schema_hash").
func NewSnapshot(endpoints []*endpoint.Endpoint, loadTime time.Time) *Snapshot {
	m := make(map[string]*endpoint.Endpoint, len(endpoints))
	ids := make([]string, 0, len(endpoints))
	for _, ep := range endpoints {
		m[ep.ID] = ep
		ids = append(ids, ep.ID)
	}
	sort.Strings(ids)
	h := sha256.New()
	for _, id := range ids {
		fmt.Fprintf(h, "%s\x00%s\x00", id, m[id].Kind)
	}
	return &Snapshot{
		Endpoints:  m,
		SchemaHash: hex.EncodeToString(h.Sum(nil)),
		LoadTime:   loadTime,
	}
}

// Registry is an atomic-swap container around one Snapshot. Readers call
// Current() once per request and retain the returned pointer for the
// request's duration; replacement is O(1) and never blocks a reader holding
// an older snapshot (spec §4.3, §5 "the registry is swapped by pointer
// under a publication fence").
type Registry struct {
	current atomic.Pointer[Snapshot]
}

func New(initial *Snapshot) *Registry {
	r := &Registry{}
	if initial == nil {
		initial = &Snapshot{Endpoints: map[string]*endpoint.Endpoint{}}
	}
	r.current.Store(initial)
	return r
}

// Current returns the snapshot in effect right now. The returned pointer
// remains valid and internally consistent even after a later Publish.
func (r *Registry) Current() *Snapshot {
	return r.current.Load()
}

// Publish atomically replaces the current snapshot. Old snapshots are
// reclaimed by the garbage collector once their last reader releases them;
// no explicit reference counting is needed because Go pointers keep a
// snapshot alive for exactly as long as something holds it.
func (r *Registry) Publish(next *Snapshot) {
	r.current.Store(next)
}
