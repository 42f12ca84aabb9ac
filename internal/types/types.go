// Package types defines core data structures for the fpw flight plan workflow.
package types

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/fpw-project/fpw/internal/uplan"
)

// FlightPlan is an operator's plan as persisted by the store.
type FlightPlan struct {
	ID                    string              `json:"id"`
	Name                  string              `json:"name"`
	ProcessingStatus      ProcessingStatus    `json:"processing_status"`
	AuthorizationStatus   AuthorizationStatus `json:"authorization_status"`
	ScheduledAt           *time.Time          `json:"scheduled_at,omitempty"` // always UTC
	AuthorizationDocument *uplan.Document     `json:"authorization_document,omitempty"`
	AirspaceContext       *string             `json:"airspace_context,omitempty"`
	AuthorizationMessage  json.RawMessage     `json:"authorization_message,omitempty"` // verbatim FAS payload
	TrajectoryRef         *string             `json:"trajectory_ref,omitempty"`
	FolderID              *string             `json:"folder_id,omitempty"`
	CreatedAt             time.Time           `json:"created_at"`
	UpdatedAt             time.Time           `json:"updated_at"`
}

// Validate checks enum values and the lifecycle invariants.
func (p *FlightPlan) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("name is required")
	}
	if len(p.Name) > 255 {
		return fmt.Errorf("name must be 255 characters or less (got %d)", len(p.Name))
	}
	if !p.ProcessingStatus.IsValid() {
		return fmt.Errorf("invalid processing status: %s", p.ProcessingStatus)
	}
	if !p.AuthorizationStatus.IsValid() {
		return fmt.Errorf("invalid authorization status: %s", p.AuthorizationStatus)
	}
	if p.AuthorizationStatus != AuthNone && p.ProcessingStatus != ProcessingProcessed {
		return fmt.Errorf("authorization status %s requires processing status processed (got %s)",
			p.AuthorizationStatus, p.ProcessingStatus)
	}
	if p.ScheduledAt != nil && p.ScheduledAt.Location() != time.UTC {
		return fmt.Errorf("scheduled_at must be UTC")
	}
	return nil
}

// SetDefaults fills the zero statuses of a freshly decoded plan.
func (p *FlightPlan) SetDefaults() {
	if p.ProcessingStatus == "" {
		p.ProcessingStatus = ProcessingUnprocessed
	}
	if p.AuthorizationStatus == "" {
		p.AuthorizationStatus = AuthNone
	}
}

// HasTrajectory reports whether a trajectory artifact is attached.
func (p *FlightPlan) HasTrajectory() bool {
	return p.TrajectoryRef != nil && *p.TrajectoryRef != ""
}

// ProcessingStatus is the trajectory processing state of a plan.
type ProcessingStatus string

// Processing status constants
const (
	ProcessingUnprocessed ProcessingStatus = "unprocessed"
	ProcessingQueued      ProcessingStatus = "queued"
	ProcessingProcessing  ProcessingStatus = "processing"
	ProcessingProcessed   ProcessingStatus = "processed"
	ProcessingError       ProcessingStatus = "error"
)

// IsValid checks if the processing status value is valid
func (s ProcessingStatus) IsValid() bool {
	switch s {
	case ProcessingUnprocessed, ProcessingQueued, ProcessingProcessing, ProcessingProcessed, ProcessingError:
		return true
	}
	return false
}

// AuthorizationStatus is the FAS authorization state of a plan.
type AuthorizationStatus string

// Authorization status constants
const (
	AuthNone     AuthorizationStatus = "none"
	AuthPending  AuthorizationStatus = "pending"
	AuthApproved AuthorizationStatus = "approved" // set only by a FAS decision
	AuthDenied   AuthorizationStatus = "denied"   // set only by a FAS decision
)

// IsValid checks if the authorization status value is valid
func (s AuthorizationStatus) IsValid() bool {
	switch s {
	case AuthNone, AuthPending, AuthApproved, AuthDenied:
		return true
	}
	return false
}

// IsDecided reports whether FAS has issued a final decision.
func (s AuthorizationStatus) IsDecided() bool {
	return s == AuthApproved || s == AuthDenied
}

// Folder groups plans. Deleting a folder deletes its plans.
type Folder struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// WorkflowStep is the lifecycle stage derived from a plan. Never persisted.
type WorkflowStep string

// Workflow steps in lifecycle order
const (
	StepSelect       WorkflowStep = "select"
	StepDatetime     WorkflowStep = "datetime"
	StepProcess      WorkflowStep = "process"
	StepGeoawareness WorkflowStep = "geoawareness"
	StepAuthorize    WorkflowStep = "authorize"
)

// AllSteps lists every workflow step in lifecycle order.
var AllSteps = []WorkflowStep{StepSelect, StepDatetime, StepProcess, StepGeoawareness, StepAuthorize}

// IsValid checks if the step value is valid
func (s WorkflowStep) IsValid() bool {
	switch s {
	case StepSelect, StepDatetime, StepProcess, StepGeoawareness, StepAuthorize:
		return true
	}
	return false
}

// OperationKind names a class of network operation tracked while in flight.
type OperationKind string

// Operation kinds
const (
	OpProcessing   OperationKind = "processing"
	OpAuthorizing  OperationKind = "authorizing"
	OpResetting    OperationKind = "resetting"
	OpGeoawareness OperationKind = "geoawareness"
	OpDownloading  OperationKind = "downloading"
	OpRenaming     OperationKind = "renaming"
	OpMoving       OperationKind = "moving"
	OpDeleting     OperationKind = "deleting"
)

// IsValid checks if the operation kind value is valid
func (k OperationKind) IsValid() bool {
	switch k {
	case OpProcessing, OpAuthorizing, OpResetting, OpGeoawareness,
		OpDownloading, OpRenaming, OpMoving, OpDeleting:
		return true
	}
	return false
}

// PlanUpdate is a partial update applied by Store.PatchPlan. Nil fields are
// left unchanged; the Clear flags null the matching column.
type PlanUpdate struct {
	Name                  *string
	ProcessingStatus      *ProcessingStatus
	AuthorizationStatus   *AuthorizationStatus
	ScheduledAt           *time.Time
	AuthorizationDocument *uplan.Document
	AirspaceContext       *string
	AuthorizationMessage  json.RawMessage
	TrajectoryRef         *string
	FolderID              *string

	ClearScheduledAt           bool
	ClearAuthorizationDocument bool
	ClearAirspaceContext       bool
	ClearAuthorizationMessage  bool
	ClearTrajectoryRef         bool
	ClearFolderID              bool
}

// IsEmpty reports whether the update changes nothing.
func (u PlanUpdate) IsEmpty() bool {
	return u.Name == nil && u.ProcessingStatus == nil && u.AuthorizationStatus == nil &&
		u.ScheduledAt == nil && u.AuthorizationDocument == nil && u.AirspaceContext == nil &&
		u.AuthorizationMessage == nil && u.TrajectoryRef == nil && u.FolderID == nil &&
		!u.ClearScheduledAt && !u.ClearAuthorizationDocument && !u.ClearAirspaceContext &&
		!u.ClearAuthorizationMessage && !u.ClearTrajectoryRef && !u.ClearFolderID
}

// Apply returns a copy of p with u applied. UpdatedAt is not touched.
func (u PlanUpdate) Apply(p FlightPlan) FlightPlan {
	if u.Name != nil {
		p.Name = *u.Name
	}
	if u.ProcessingStatus != nil {
		p.ProcessingStatus = *u.ProcessingStatus
	}
	if u.AuthorizationStatus != nil {
		p.AuthorizationStatus = *u.AuthorizationStatus
	}
	if u.ScheduledAt != nil {
		t := u.ScheduledAt.UTC()
		p.ScheduledAt = &t
	}
	if u.AuthorizationDocument != nil {
		p.AuthorizationDocument = u.AuthorizationDocument.Clone()
	}
	if u.AirspaceContext != nil {
		s := *u.AirspaceContext
		p.AirspaceContext = &s
	}
	if u.AuthorizationMessage != nil {
		p.AuthorizationMessage = append(json.RawMessage(nil), u.AuthorizationMessage...)
	}
	if u.TrajectoryRef != nil {
		s := *u.TrajectoryRef
		p.TrajectoryRef = &s
	}
	if u.FolderID != nil {
		s := *u.FolderID
		p.FolderID = &s
	}

	if u.ClearScheduledAt {
		p.ScheduledAt = nil
	}
	if u.ClearAuthorizationDocument {
		p.AuthorizationDocument = nil
	}
	if u.ClearAirspaceContext {
		p.AirspaceContext = nil
	}
	if u.ClearAuthorizationMessage {
		p.AuthorizationMessage = nil
	}
	if u.ClearTrajectoryRef {
		p.TrajectoryRef = nil
	}
	if u.ClearFolderID {
		p.FolderID = nil
	}
	return p
}

// Event records a state change of a plan for its history.
type Event struct {
	ID        int64     `json:"id"`
	PlanID    string    `json:"plan_id"`
	EventType EventType `json:"event_type"`
	OldValue  *string   `json:"old_value,omitempty"`
	NewValue  *string   `json:"new_value,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// EventType categorizes plan history entries
type EventType string

// Plan event types
const (
	EventCreated              EventType = "created"
	EventScheduled            EventType = "scheduled"
	EventProcessingChanged    EventType = "processing_changed"
	EventAuthorizationChanged EventType = "authorization_changed"
	EventRenamed              EventType = "renamed"
	EventMoved                EventType = "moved"
	EventReset                EventType = "reset"
)

// PlanFilter narrows ListPlans.
type PlanFilter struct {
	FolderID            *string
	ProcessingStatus    *ProcessingStatus
	AuthorizationStatus *AuthorizationStatus
	NameContains        string
	Limit               int
}

// Matches reports whether p passes the filter (Limit is ignored).
func (f PlanFilter) Matches(p *FlightPlan) bool {
	if f.FolderID != nil && (p.FolderID == nil || *p.FolderID != *f.FolderID) {
		return false
	}
	if f.ProcessingStatus != nil && p.ProcessingStatus != *f.ProcessingStatus {
		return false
	}
	if f.AuthorizationStatus != nil && p.AuthorizationStatus != *f.AuthorizationStatus {
		return false
	}
	if f.NameContains != "" && !strings.Contains(strings.ToLower(p.Name), strings.ToLower(f.NameContains)) {
		return false
	}
	return true
}
