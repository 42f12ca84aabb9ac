// Package gate implements confirm-then-execute gates for costly plan
// transitions.
//
// A caller asks the registry for a Decision before acting. Preconditions are
// checked first; only when they pass is the operator asked to confirm. The
// executing operation accepts a Ticket, which can only be obtained from a
// Decision that did not reject, so a transition cannot run unconfirmed.
package gate

import (
	"errors"
	"fmt"
	"strings"

	"github.com/fpw-project/fpw/internal/types"
)

// ErrNotConfirmed is returned by operations handed a missing or mismatched
// ticket.
var ErrNotConfirmed = errors.New("transition not confirmed")

// ErrRejected is returned by Decision.Confirm when preconditions failed.
var ErrRejected = errors.New("transition rejected")

// TransitionKind names a gated transition.
type TransitionKind string

const (
	TransitionProcess   TransitionKind = "process"
	TransitionAuthorize TransitionKind = "authorize"
	TransitionReset     TransitionKind = "reset"
)

// ValidTransitionKinds returns all gated transitions.
func ValidTransitionKinds() []TransitionKind {
	return []TransitionKind{TransitionProcess, TransitionAuthorize, TransitionReset}
}

// ParseTransitionKind parses a string into a TransitionKind, case-insensitive.
func ParseTransitionKind(s string) (TransitionKind, error) {
	lower := strings.ToLower(s)
	for _, k := range ValidTransitionKinds() {
		if string(k) == lower {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown transition %q (valid: process, authorize, reset)", s)
}

// GateMode determines whether a gate asks for confirmation.
type GateMode string

const (
	GateModeConfirm GateMode = "confirm" // ask the operator
	GateModeAuto    GateMode = "auto"    // proceed once preconditions hold
)

// Gate defines one gated transition.
type Gate struct {
	Kind         TransitionKind
	Description  string
	Prompt       string                        // shown when confirmation is needed
	Mode         GateMode                      // confirm or auto
	Precondition func(*types.FlightPlan) error // nil error means the transition may be offered
}

// Outcome is the kind of decision a gate returns.
type Outcome int

const (
	RejectedPrecondition Outcome = iota
	NeedsConfirmation
	Proceed
)

func (o Outcome) String() string {
	switch o {
	case RejectedPrecondition:
		return "rejected"
	case NeedsConfirmation:
		return "needs-confirmation"
	case Proceed:
		return "proceed"
	}
	return fmt.Sprintf("Outcome(%d)", int(o))
}

// Decision is the result of Registry.Request.
type Decision struct {
	Outcome Outcome
	Kind    TransitionKind
	PlanID  string
	Reason  string // set when rejected
	Prompt  string // set when confirmation is needed
}

// Confirm records the operator's confirmation and returns the ticket the
// transition requires. For Proceed decisions it returns the ticket directly.
func (d Decision) Confirm() (Ticket, error) {
	if d.Outcome == RejectedPrecondition {
		return Ticket{}, fmt.Errorf("%s %s: %s: %w", d.Kind, d.PlanID, d.Reason, ErrRejected)
	}
	return Ticket{kind: d.Kind, planID: d.PlanID, confirmed: true}, nil
}

// Ticket authorizes one gated transition on one plan.
type Ticket struct {
	kind      TransitionKind
	planID    string
	confirmed bool
}

// Kind returns the transition the ticket was issued for.
func (t Ticket) Kind() TransitionKind { return t.kind }

// PlanID returns the plan the ticket was issued for.
func (t Ticket) PlanID() string { return t.planID }

// Check returns ErrNotConfirmed unless t was issued for kind.
func (t Ticket) Check(kind TransitionKind) error {
	if !t.confirmed || t.kind != kind || t.planID == "" {
		return fmt.Errorf("%s: %w", kind, ErrNotConfirmed)
	}
	return nil
}
