package gate

import (
	"fmt"
	"sync"

	"github.com/fpw-project/fpw/internal/types"
)

// Registry holds the gate for each transition kind.
type Registry struct {
	mu    sync.RWMutex
	gates map[TransitionKind]*Gate
}

// NewRegistry creates an empty gate registry.
func NewRegistry() *Registry {
	return &Registry{gates: make(map[TransitionKind]*Gate)}
}

// NewDefaultRegistry returns a registry with the built-in gates registered.
func NewDefaultRegistry() *Registry {
	reg := NewRegistry()
	RegisterBuiltinGates(reg)
	return reg
}

// Register adds a gate to the registry. Returns an error if a gate
// for the same kind is already registered.
func (r *Registry) Register(g *Gate) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.gates[g.Kind]; exists {
		return fmt.Errorf("gate %q already registered", g.Kind)
	}
	r.gates[g.Kind] = g
	return nil
}

// Unregister removes the gate for kind.
func (r *Registry) Unregister(kind TransitionKind) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.gates, kind)
}

// Get returns the gate for kind, or nil if not found.
func (r *Registry) Get(kind TransitionKind) *Gate {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.gates[kind]
}

// Request evaluates the gate for kind against plan. Preconditions are
// checked before any confirmation is asked for.
func (r *Registry) Request(kind TransitionKind, plan *types.FlightPlan) Decision {
	d := Decision{Kind: kind}
	if plan == nil {
		d.Outcome = RejectedPrecondition
		d.Reason = "no plan selected"
		return d
	}
	d.PlanID = plan.ID

	r.mu.RLock()
	g, ok := r.gates[kind]
	var (
		mode   GateMode
		prompt string
		check  func(*types.FlightPlan) error
	)
	if ok {
		mode, prompt, check = g.Mode, g.Prompt, g.Precondition
	}
	r.mu.RUnlock()

	if !ok {
		d.Outcome = RejectedPrecondition
		d.Reason = fmt.Sprintf("no gate registered for %s", kind)
		return d
	}
	if check != nil {
		if err := check(plan); err != nil {
			d.Outcome = RejectedPrecondition
			d.Reason = err.Error()
			return d
		}
	}
	if mode == GateModeAuto {
		d.Outcome = Proceed
		return d
	}
	d.Outcome = NeedsConfirmation
	d.Prompt = prompt
	return d
}
