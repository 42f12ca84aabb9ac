// Package storage provides the plan and folder store interface and the
// rules every implementation enforces.
//
// Concrete stores live in the memory and dolt sub-packages. The store is the
// single source of truth for plan state; everything else is derived from it.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/fpw-project/fpw/internal/types"
)

// ErrNotFound is returned when a requested entity does not exist in the database.
var ErrNotFound = errors.New("not found")

// ErrScheduleLocked is returned when a patch changes the schedule of a plan
// whose processing has already started.
var ErrScheduleLocked = errors.New("schedule is locked")

// ErrInvalidTransition is returned when a patch or decision would break a
// lifecycle invariant.
var ErrInvalidTransition = errors.New("invalid transition")

// Storage is the interface satisfied by *memory.MemoryStorage and
// *dolt.DoltStore. Consumers depend on this interface rather than on a
// concrete type.
type Storage interface {
	// Plans
	CreatePlan(ctx context.Context, plan *types.FlightPlan) error
	GetPlan(ctx context.Context, id string) (*types.FlightPlan, error)
	ListPlans(ctx context.Context, filter types.PlanFilter) ([]*types.FlightPlan, error)
	PatchPlan(ctx context.Context, id string, upd types.PlanUpdate) (*types.FlightPlan, error)
	ResetPlan(ctx context.Context, id string) (*types.FlightPlan, error)
	DeletePlan(ctx context.Context, id string) error

	// ApplyDecision records a FAS decision. It is the only way to set
	// approved or denied, and only applies to pending plans.
	ApplyDecision(ctx context.Context, id string, status types.AuthorizationStatus, message json.RawMessage) (*types.FlightPlan, error)

	// Folders
	CreateFolder(ctx context.Context, folder *types.Folder) error
	GetFolder(ctx context.Context, id string) (*types.Folder, error)
	ListFolders(ctx context.Context) ([]*types.Folder, error)
	RenameFolder(ctx context.Context, id, name string) error
	DeleteFolder(ctx context.Context, id string) (int, error) // returns number of plans deleted

	// History
	GetEvents(ctx context.Context, planID string, limit int) ([]*types.Event, error)

	// Lifecycle
	Close() error
}

// CheckPatch validates upd against the current state of a plan and returns
// the patched plan. Stores call it inside their write lock or transaction.
func CheckPatch(cur *types.FlightPlan, upd types.PlanUpdate) (types.FlightPlan, error) {
	if upd.AuthorizationStatus != nil && upd.AuthorizationStatus.IsDecided() {
		return types.FlightPlan{}, fmt.Errorf("%w: %s is only set by a FAS decision", ErrInvalidTransition, *upd.AuthorizationStatus)
	}
	if (upd.ScheduledAt != nil || upd.ClearScheduledAt) && cur.ProcessingStatus != types.ProcessingUnprocessed {
		return types.FlightPlan{}, fmt.Errorf("plan %s is %s: %w", cur.ID, cur.ProcessingStatus, ErrScheduleLocked)
	}
	if upd.FolderID != nil && *upd.FolderID == "" {
		return types.FlightPlan{}, fmt.Errorf("empty folder id (use ClearFolderID)")
	}
	next := upd.Apply(*cur)
	if err := next.Validate(); err != nil {
		return types.FlightPlan{}, fmt.Errorf("%w: %v", ErrInvalidTransition, err)
	}
	return next, nil
}

// CheckDecision validates a FAS decision for cur and returns the updated plan.
func CheckDecision(cur *types.FlightPlan, status types.AuthorizationStatus, message json.RawMessage) (types.FlightPlan, error) {
	if !status.IsDecided() {
		return types.FlightPlan{}, fmt.Errorf("%w: decision must be approved or denied, got %q", ErrInvalidTransition, status)
	}
	if cur.AuthorizationStatus != types.AuthPending {
		return types.FlightPlan{}, fmt.Errorf("%w: plan %s is %s, not pending", ErrInvalidTransition, cur.ID, cur.AuthorizationStatus)
	}
	next := *cur
	next.AuthorizationStatus = status
	if len(message) > 0 {
		next.AuthorizationMessage = append(json.RawMessage(nil), message...)
	}
	return next, nil
}

// ResetUpdate is the patch that returns a plan to unprocessed. Name and
// folder survive; everything produced by the workflow is cleared.
func ResetUpdate() types.PlanUpdate {
	unprocessed := types.ProcessingUnprocessed
	none := types.AuthNone
	return types.PlanUpdate{
		ProcessingStatus:           &unprocessed,
		AuthorizationStatus:        &none,
		ClearScheduledAt:           true,
		ClearAuthorizationDocument: true,
		ClearAirspaceContext:       true,
		ClearAuthorizationMessage:  true,
		ClearTrajectoryRef:         true,
	}
}

// PatchEvents returns the history entries implied by moving from old to next.
func PatchEvents(old, next *types.FlightPlan) []types.Event {
	var events []types.Event
	add := func(t types.EventType, from, to string) {
		events = append(events, types.Event{PlanID: next.ID, EventType: t, OldValue: &from, NewValue: &to})
	}
	if old.Name != next.Name {
		add(types.EventRenamed, old.Name, next.Name)
	}
	if scheduleString(old) != scheduleString(next) {
		add(types.EventScheduled, scheduleString(old), scheduleString(next))
	}
	if old.ProcessingStatus != next.ProcessingStatus {
		add(types.EventProcessingChanged, string(old.ProcessingStatus), string(next.ProcessingStatus))
	}
	if old.AuthorizationStatus != next.AuthorizationStatus {
		add(types.EventAuthorizationChanged, string(old.AuthorizationStatus), string(next.AuthorizationStatus))
	}
	if deref(old.FolderID) != deref(next.FolderID) {
		add(types.EventMoved, deref(old.FolderID), deref(next.FolderID))
	}
	return events
}

func scheduleString(p *types.FlightPlan) string {
	if p.ScheduledAt == nil {
		return ""
	}
	return p.ScheduledAt.UTC().Format("2006-01-02T15:04:05Z")
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
