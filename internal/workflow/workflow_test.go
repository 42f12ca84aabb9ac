package workflow

import (
	"reflect"
	"testing"
	"time"

	"github.com/fpw-project/fpw/internal/types"
)

var sched = time.Date(2025, 9, 1, 9, 0, 0, 0, time.UTC)

func plan(scheduled bool, ps types.ProcessingStatus, as types.AuthorizationStatus) *types.FlightPlan {
	p := &types.FlightPlan{ID: "p1", Name: "p", ProcessingStatus: ps, AuthorizationStatus: as}
	if scheduled {
		t := sched
		p.ScheduledAt = &t
	}
	return p
}

func TestDerive(t *testing.T) {
	tests := []struct {
		name      string
		plan      *types.FlightPlan
		step      types.WorkflowStep
		completed []types.WorkflowStep
		locked    bool
	}{
		{
			name:      "no plan",
			plan:      nil,
			step:      types.StepSelect,
			completed: []types.WorkflowStep{types.StepSelect},
		},
		{
			name:      "unscheduled",
			plan:      plan(false, types.ProcessingUnprocessed, types.AuthNone),
			step:      types.StepDatetime,
			completed: []types.WorkflowStep{types.StepSelect},
		},
		{
			name:      "scheduled unprocessed",
			plan:      plan(true, types.ProcessingUnprocessed, types.AuthNone),
			step:      types.StepProcess,
			completed: []types.WorkflowStep{types.StepSelect, types.StepDatetime},
		},
		{
			name:      "queued",
			plan:      plan(true, types.ProcessingQueued, types.AuthNone),
			step:      types.StepProcess,
			completed: []types.WorkflowStep{types.StepSelect, types.StepDatetime},
			locked:    true,
		},
		{
			name:      "processing",
			plan:      plan(true, types.ProcessingProcessing, types.AuthNone),
			step:      types.StepProcess,
			completed: []types.WorkflowStep{types.StepSelect, types.StepDatetime, types.StepProcess},
			locked:    true,
		},
		{
			name:      "processed awaiting geoawareness",
			plan:      plan(true, types.ProcessingProcessed, types.AuthNone),
			step:      types.StepGeoawareness,
			completed: []types.WorkflowStep{types.StepSelect, types.StepDatetime, types.StepProcess},
			locked:    true,
		},
		{
			name:      "pending",
			plan:      plan(true, types.ProcessingProcessed, types.AuthPending),
			step:      types.StepAuthorize,
			completed: []types.WorkflowStep{types.StepSelect, types.StepDatetime, types.StepProcess, types.StepGeoawareness},
			locked:    true,
		},
		{
			name:      "approved",
			plan:      plan(true, types.ProcessingProcessed, types.AuthApproved),
			step:      types.StepSelect,
			completed: types.AllSteps,
			locked:    true,
		},
		{
			name:      "denied",
			plan:      plan(true, types.ProcessingProcessed, types.AuthDenied),
			step:      types.StepSelect,
			completed: types.AllSteps,
			locked:    true,
		},
		{
			name:      "processing error",
			plan:      plan(true, types.ProcessingError, types.AuthNone),
			step:      types.StepSelect,
			completed: []types.WorkflowStep{types.StepSelect, types.StepDatetime},
			locked:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Derive(tt.plan)
			if got.Step != tt.step {
				t.Errorf("DeriveStep() = %s, want %s", got.Step, tt.step)
			}
			if !reflect.DeepEqual(got.Completed.Slice(), tt.completed) {
				t.Errorf("DeriveCompleted() = %v, want %v", got.Completed.Slice(), tt.completed)
			}
			if got.ScheduleLocked != tt.locked {
				t.Errorf("IsScheduleLocked() = %v, want %v", got.ScheduleLocked, tt.locked)
			}
		})
	}
}

// Every combination of attributes yields one known step, a completed set
// that contains select, and a lock flag tied to unprocessed.
func TestDeriveProperties(t *testing.T) {
	procs := []types.ProcessingStatus{
		types.ProcessingUnprocessed, types.ProcessingQueued, types.ProcessingProcessing,
		types.ProcessingProcessed, types.ProcessingError,
	}
	auths := []types.AuthorizationStatus{types.AuthNone, types.AuthPending, types.AuthApproved, types.AuthDenied}

	for _, scheduled := range []bool{false, true} {
		for _, ps := range procs {
			for _, as := range auths {
				p := plan(scheduled, ps, as)
				step := DeriveStep(p)
				if !step.IsValid() {
					t.Errorf("%v/%s/%s: invalid step %q", scheduled, ps, as, step)
				}
				done := DeriveCompleted(p)
				if !done.Has(types.StepSelect) {
					t.Errorf("%v/%s/%s: completed set lacks select", scheduled, ps, as)
				}
				if done.Len() > len(types.AllSteps) {
					t.Errorf("%v/%s/%s: completed set too large", scheduled, ps, as)
				}
				if IsScheduleLocked(p) == (ps == types.ProcessingUnprocessed) {
					t.Errorf("%v/%s/%s: IsScheduleLocked() = %v", scheduled, ps, as, IsScheduleLocked(p))
				}
			}
		}
	}
}

func TestStepSet(t *testing.T) {
	s := NewStepSet(types.StepAuthorize, types.StepSelect, types.StepSelect)
	if s.Len() != 2 {
		t.Errorf("Len() = %d, want 2", s.Len())
	}
	want := []types.WorkflowStep{types.StepSelect, types.StepAuthorize}
	if !reflect.DeepEqual(s.Slice(), want) {
		t.Errorf("Slice() = %v, want %v", s.Slice(), want)
	}
	if s.Has(types.WorkflowStep("bogus")) {
		t.Error("Has(bogus) = true")
	}
}
