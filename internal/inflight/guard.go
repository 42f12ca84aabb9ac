// Package inflight tracks which (operation kind, plan) pairs have a network
// request outstanding, so the same operation is never issued twice.
package inflight

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/fpw-project/fpw/internal/types"
)

// ErrInFlight is returned by Track when the operation is already running.
var ErrInFlight = errors.New("operation already in flight")

// Change describes one guard transition, delivered to OnChange listeners.
type Change struct {
	Kind   types.OperationKind
	PlanID string
	Active bool
}

// Guard is a per-kind set of in-flight plan IDs. The zero value is not
// usable; construct one with New and pass it to the components sharing it.
type Guard struct {
	mu        sync.Mutex
	active    map[types.OperationKind]map[string]struct{}
	listeners []func(Change)
}

// New returns an empty guard.
func New() *Guard {
	return &Guard{active: make(map[types.OperationKind]map[string]struct{})}
}

// Begin marks (kind, id) in flight. It returns false, and changes nothing,
// when the pair is already active; the caller must not proceed.
func (g *Guard) Begin(kind types.OperationKind, id string) bool {
	g.mu.Lock()
	set, ok := g.active[kind]
	if !ok {
		set = make(map[string]struct{})
		g.active[kind] = set
	}
	if _, busy := set[id]; busy {
		g.mu.Unlock()
		return false
	}
	set[id] = struct{}{}
	listeners := g.listeners
	g.mu.Unlock()

	notify(listeners, Change{Kind: kind, PlanID: id, Active: true})
	return true
}

// End clears (kind, id). Ending a pair that is not active is a no-op.
func (g *Guard) End(kind types.OperationKind, id string) {
	g.mu.Lock()
	set := g.active[kind]
	if _, busy := set[id]; !busy {
		g.mu.Unlock()
		return
	}
	delete(set, id)
	listeners := g.listeners
	g.mu.Unlock()

	notify(listeners, Change{Kind: kind, PlanID: id, Active: false})
}

// IsActive reports whether (kind, id) is in flight.
func (g *Guard) IsActive(kind types.OperationKind, id string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, busy := g.active[kind][id]
	return busy
}

// Active returns the sorted IDs in flight for kind.
func (g *Guard) Active(kind types.OperationKind) []string {
	g.mu.Lock()
	ids := make([]string, 0, len(g.active[kind]))
	for id := range g.active[kind] {
		ids = append(ids, id)
	}
	g.mu.Unlock()
	sort.Strings(ids)
	return ids
}

// Busy returns the kinds currently in flight for a plan.
func (g *Guard) Busy(id string) []types.OperationKind {
	g.mu.Lock()
	var kinds []types.OperationKind
	for kind, set := range g.active {
		if _, ok := set[id]; ok {
			kinds = append(kinds, kind)
		}
	}
	g.mu.Unlock()
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

// Track runs fn with (kind, id) marked in flight and clears the mark when fn
// returns or panics. It returns ErrInFlight without calling fn when the pair
// is already active.
func (g *Guard) Track(kind types.OperationKind, id string, fn func() error) error {
	if !g.Begin(kind, id) {
		return fmt.Errorf("%s %s: %w", kind, id, ErrInFlight)
	}
	defer g.End(kind, id)
	return fn()
}

// OnChange registers fn to be called after every Begin and effective End.
// fn runs on the caller's goroutine without the guard's lock held.
func (g *Guard) OnChange(fn func(Change)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.listeners = append(g.listeners, fn)
}

func notify(listeners []func(Change), c Change) {
	for _, fn := range listeners {
		fn(c)
	}
}
