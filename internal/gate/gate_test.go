package gate

import (
	"errors"
	"testing"
	"time"

	"github.com/fpw-project/fpw/internal/types"
)

func scheduledPlan(ps types.ProcessingStatus) *types.FlightPlan {
	at := time.Date(2025, 9, 1, 9, 0, 0, 0, time.UTC)
	return &types.FlightPlan{ID: "p1", Name: "p", ScheduledAt: &at, ProcessingStatus: ps, AuthorizationStatus: types.AuthNone}
}

func TestRequest(t *testing.T) {
	reg := NewDefaultRegistry()
	unscheduled := &types.FlightPlan{ID: "p2", Name: "p", ProcessingStatus: types.ProcessingUnprocessed}

	tests := []struct {
		name    string
		kind    TransitionKind
		plan    *types.FlightPlan
		outcome Outcome
		reason  string
		prompt  string
	}{
		{"process without schedule", TransitionProcess, unscheduled, RejectedPrecondition, "missing schedule", ""},
		{"process scheduled", TransitionProcess, scheduledPlan(types.ProcessingUnprocessed), NeedsConfirmation, "", PromptProcess},
		{"authorize unprocessed", TransitionAuthorize, scheduledPlan(types.ProcessingQueued), RejectedPrecondition, "plan is not processed (status queued)", ""},
		{"authorize processed", TransitionAuthorize, scheduledPlan(types.ProcessingProcessed), NeedsConfirmation, "", PromptAuthorize},
		{"reset anything", TransitionReset, unscheduled, NeedsConfirmation, "", PromptReset},
		{"no plan", TransitionReset, nil, RejectedPrecondition, "no plan selected", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := reg.Request(tt.kind, tt.plan)
			if d.Outcome != tt.outcome {
				t.Fatalf("Request(%s) outcome = %s, want %s", tt.kind, d.Outcome, tt.outcome)
			}
			if d.Reason != tt.reason {
				t.Errorf("Reason = %q, want %q", d.Reason, tt.reason)
			}
			if d.Prompt != tt.prompt {
				t.Errorf("Prompt = %q, want %q", d.Prompt, tt.prompt)
			}
		})
	}
}

func TestConfirmIssuesTicket(t *testing.T) {
	reg := NewDefaultRegistry()
	d := reg.Request(TransitionProcess, scheduledPlan(types.ProcessingUnprocessed))

	ticket, err := d.Confirm()
	if err != nil {
		t.Fatalf("Confirm() error = %v", err)
	}
	if err := ticket.Check(TransitionProcess); err != nil {
		t.Errorf("Check(process) = %v, want nil", err)
	}
	if ticket.PlanID() != "p1" {
		t.Errorf("PlanID() = %q, want p1", ticket.PlanID())
	}
	if err := ticket.Check(TransitionReset); !errors.Is(err, ErrNotConfirmed) {
		t.Errorf("Check(reset) = %v, want ErrNotConfirmed", err)
	}
}

func TestConfirmRejected(t *testing.T) {
	reg := NewDefaultRegistry()
	d := reg.Request(TransitionProcess, &types.FlightPlan{ID: "p1"})
	if _, err := d.Confirm(); !errors.Is(err, ErrRejected) {
		t.Errorf("Confirm() error = %v, want ErrRejected", err)
	}
}

func TestZeroTicketNotConfirmed(t *testing.T) {
	var ticket Ticket
	if err := ticket.Check(TransitionAuthorize); !errors.Is(err, ErrNotConfirmed) {
		t.Errorf("zero ticket Check() = %v, want ErrNotConfirmed", err)
	}
}

func TestUnregisteredKindRejected(t *testing.T) {
	reg := NewRegistry()
	d := reg.Request(TransitionReset, scheduledPlan(types.ProcessingProcessed))
	if d.Outcome != RejectedPrecondition {
		t.Errorf("outcome = %s, want rejected", d.Outcome)
	}
}

func TestParseTransitionKind(t *testing.T) {
	if k, err := ParseTransitionKind("Authorize"); err != nil || k != TransitionAuthorize {
		t.Errorf("ParseTransitionKind(Authorize) = %q, %v", k, err)
	}
	if _, err := ParseTransitionKind("launch"); err == nil {
		t.Error("expected error for unknown transition")
	}
}
