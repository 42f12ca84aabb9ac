package types

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/fpw-project/fpw/internal/uplan"
)

func TestFlightPlanValidation(t *testing.T) {
	sched := time.Date(2025, 9, 1, 9, 0, 0, 0, time.UTC)
	local := time.Date(2025, 9, 1, 9, 0, 0, 0, time.FixedZone("CEST", 2*3600))

	tests := []struct {
		name    string
		plan    FlightPlan
		wantErr bool
		errMsg  string
	}{
		{
			name: "valid unprocessed plan",
			plan: FlightPlan{Name: "survey", ProcessingStatus: ProcessingUnprocessed, AuthorizationStatus: AuthNone},
		},
		{
			name: "valid pending plan",
			plan: FlightPlan{Name: "survey", ScheduledAt: &sched, ProcessingStatus: ProcessingProcessed, AuthorizationStatus: AuthPending},
		},
		{
			name:    "missing name",
			plan:    FlightPlan{ProcessingStatus: ProcessingUnprocessed, AuthorizationStatus: AuthNone},
			wantErr: true,
			errMsg:  "name is required",
		},
		{
			name:    "invalid processing status",
			plan:    FlightPlan{Name: "x", ProcessingStatus: "done", AuthorizationStatus: AuthNone},
			wantErr: true,
			errMsg:  "invalid processing status",
		},
		{
			name:    "invalid authorization status",
			plan:    FlightPlan{Name: "x", ProcessingStatus: ProcessingProcessed, AuthorizationStatus: "maybe"},
			wantErr: true,
			errMsg:  "invalid authorization status",
		},
		{
			name:    "authorization before processing",
			plan:    FlightPlan{Name: "x", ProcessingStatus: ProcessingProcessing, AuthorizationStatus: AuthPending},
			wantErr: true,
			errMsg:  "requires processing status processed",
		},
		{
			name:    "non-UTC schedule",
			plan:    FlightPlan{Name: "x", ScheduledAt: &local, ProcessingStatus: ProcessingUnprocessed, AuthorizationStatus: AuthNone},
			wantErr: true,
			errMsg:  "must be UTC",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.plan.Validate()
			if tt.wantErr {
				if err == nil {
					t.Fatalf("Validate() expected error containing %q, got nil", tt.errMsg)
				}
				if !strings.Contains(err.Error(), tt.errMsg) {
					t.Errorf("Validate() error = %q, want substring %q", err, tt.errMsg)
				}
				return
			}
			if err != nil {
				t.Errorf("Validate() unexpected error: %v", err)
			}
		})
	}
}

func TestSetDefaults(t *testing.T) {
	var p FlightPlan
	if err := json.Unmarshal([]byte(`{"id":"p1","name":"n"}`), &p); err != nil {
		t.Fatal(err)
	}
	p.SetDefaults()
	if p.ProcessingStatus != ProcessingUnprocessed || p.AuthorizationStatus != AuthNone {
		t.Errorf("SetDefaults() = %s/%s, want unprocessed/none", p.ProcessingStatus, p.AuthorizationStatus)
	}
}

func TestPlanUpdateApply(t *testing.T) {
	folder := "f1"
	ctx := "LEVC"
	sched := time.Date(2025, 9, 1, 11, 0, 0, 0, time.FixedZone("CEST", 2*3600))
	base := FlightPlan{
		ID:               "p1",
		Name:             "old",
		ProcessingStatus: ProcessingUnprocessed,
		FolderID:         &folder,
		AirspaceContext:  &ctx,
	}

	name := "new"
	got := PlanUpdate{Name: &name, ScheduledAt: &sched, ClearFolderID: true}.Apply(base)

	if got.Name != "new" {
		t.Errorf("Name = %q, want new", got.Name)
	}
	if got.FolderID != nil {
		t.Errorf("FolderID = %v, want nil", *got.FolderID)
	}
	if got.ScheduledAt == nil || got.ScheduledAt.Location() != time.UTC || got.ScheduledAt.Hour() != 9 {
		t.Errorf("ScheduledAt = %v, want 09:00 UTC", got.ScheduledAt)
	}
	if got.AirspaceContext == nil || *got.AirspaceContext != "LEVC" {
		t.Error("untouched field changed")
	}
	if base.Name != "old" || base.FolderID == nil {
		t.Error("Apply modified its input")
	}
}

func TestPlanUpdateApplyClonesDocument(t *testing.T) {
	doc := &uplan.Document{OperatorID: "ESP1"}
	got := PlanUpdate{AuthorizationDocument: doc}.Apply(FlightPlan{})
	doc.OperatorID = "changed"
	if got.AuthorizationDocument.OperatorID != "ESP1" {
		t.Error("document aliased the caller's value")
	}
}

func TestPlanUpdateIsEmpty(t *testing.T) {
	if !(PlanUpdate{}).IsEmpty() {
		t.Error("zero update should be empty")
	}
	if (PlanUpdate{ClearTrajectoryRef: true}).IsEmpty() {
		t.Error("clear flag should make update non-empty")
	}
}

func TestPlanFilterMatches(t *testing.T) {
	f1 := "f1"
	processed := ProcessingProcessed
	p := &FlightPlan{Name: "Valencia Survey", FolderID: &f1, ProcessingStatus: ProcessingProcessed}

	tests := []struct {
		filter PlanFilter
		want   bool
	}{
		{PlanFilter{}, true},
		{PlanFilter{FolderID: &f1}, true},
		{PlanFilter{NameContains: "survey"}, true},
		{PlanFilter{ProcessingStatus: &processed}, true},
		{PlanFilter{NameContains: "madrid"}, false},
	}
	for i, tt := range tests {
		if got := tt.filter.Matches(p); got != tt.want {
			t.Errorf("case %d: Matches() = %v, want %v", i, got, tt.want)
		}
	}
	other := "f2"
	if (PlanFilter{FolderID: &other}).Matches(p) {
		t.Error("folder filter should reject other folder")
	}
}

func TestEnumValidity(t *testing.T) {
	for _, s := range AllSteps {
		if !s.IsValid() {
			t.Errorf("step %q should be valid", s)
		}
	}
	if OperationKind("flying").IsValid() {
		t.Error("unknown operation kind reported valid")
	}
	if !AuthApproved.IsDecided() || AuthPending.IsDecided() {
		t.Error("IsDecided mismatch")
	}
}
