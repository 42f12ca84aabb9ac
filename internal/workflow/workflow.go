// Package workflow derives the lifecycle stage of a flight plan from its
// persisted attributes. Everything here is pure and cheap enough to rerun on
// every snapshot refresh.
package workflow

import "github.com/fpw-project/fpw/internal/types"

// StepSet is a set of workflow steps.
type StepSet uint8

func bit(s types.WorkflowStep) StepSet {
	for i, step := range types.AllSteps {
		if step == s {
			return 1 << i
		}
	}
	return 0
}

// NewStepSet returns a set holding steps.
func NewStepSet(steps ...types.WorkflowStep) StepSet {
	var set StepSet
	for _, s := range steps {
		set |= bit(s)
	}
	return set
}

// Has reports whether s is in the set.
func (set StepSet) Has(s types.WorkflowStep) bool {
	b := bit(s)
	return b != 0 && set&b != 0
}

// Slice returns the members in lifecycle order.
func (set StepSet) Slice() []types.WorkflowStep {
	var out []types.WorkflowStep
	for _, s := range types.AllSteps {
		if set.Has(s) {
			out = append(out, s)
		}
	}
	return out
}

// Len returns the number of members.
func (set StepSet) Len() int {
	n := 0
	for _, s := range types.AllSteps {
		if set.Has(s) {
			n++
		}
	}
	return n
}

// State bundles everything derived from one plan snapshot.
type State struct {
	Step           types.WorkflowStep
	Completed      StepSet
	ScheduleLocked bool
}

// Derive computes the full workflow state for p. p may be nil.
func Derive(p *types.FlightPlan) State {
	return State{
		Step:           DeriveStep(p),
		Completed:      DeriveCompleted(p),
		ScheduleLocked: IsScheduleLocked(p),
	}
}

// DeriveStep returns the step the operator should act on next. Rules are
// evaluated in order and the first match wins.
func DeriveStep(p *types.FlightPlan) types.WorkflowStep {
	switch {
	case p == nil:
		return types.StepSelect
	case p.ScheduledAt == nil:
		return types.StepDatetime
	case p.ProcessingStatus == types.ProcessingUnprocessed,
		p.ProcessingStatus == types.ProcessingQueued,
		p.ProcessingStatus == types.ProcessingProcessing:
		return types.StepProcess
	case p.ProcessingStatus == types.ProcessingProcessed && p.AuthorizationStatus == types.AuthNone:
		return types.StepGeoawareness
	case p.AuthorizationStatus == types.AuthPending:
		return types.StepAuthorize
	}
	// Decided, or processing failed: nothing left to drive.
	return types.StepSelect
}

// DeriveCompleted returns the steps already satisfied by p. select is always
// included.
func DeriveCompleted(p *types.FlightPlan) StepSet {
	set := NewStepSet(types.StepSelect)
	if p == nil {
		return set
	}
	if p.ScheduledAt != nil {
		set |= bit(types.StepDatetime)
	}
	processed := p.ProcessingStatus == types.ProcessingProcessed
	if processed || p.ProcessingStatus == types.ProcessingProcessing {
		set |= bit(types.StepProcess)
	}
	if processed && p.AuthorizationStatus != types.AuthNone {
		set |= bit(types.StepGeoawareness)
	}
	if p.AuthorizationStatus.IsDecided() {
		set |= bit(types.StepAuthorize)
	}
	return set
}

// IsScheduleLocked reports whether the schedule can no longer change, which
// is the case as soon as processing has left unprocessed.
func IsScheduleLocked(p *types.FlightPlan) bool {
	return p != nil && p.ProcessingStatus != types.ProcessingUnprocessed
}
