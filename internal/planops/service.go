// Package planops implements the operator's plan actions on top of the
// store.
//
// Every action that reaches the store is registered with the in-flight guard
// under its operation kind, so a repeated click while a request is
// outstanding is refused instead of issued twice. Process, Reset and
// Authorize additionally require a gate.Ticket obtained from a confirmed
// gate decision.
package planops

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/fpw-project/fpw/internal/authorize"
	"github.com/fpw-project/fpw/internal/gate"
	"github.com/fpw-project/fpw/internal/inflight"
	"github.com/fpw-project/fpw/internal/storage"
	"github.com/fpw-project/fpw/internal/types"
	"github.com/fpw-project/fpw/internal/volumes"
	"github.com/fpw-project/fpw/internal/workflow"
)

// ErrPrecondition is returned when a plan is not in a state that allows the
// requested action.
var ErrPrecondition = errors.New("precondition failed")

// Overlay receives optimistic processing statuses. It is satisfied by
// *poller.Synchronizer.
type Overlay interface {
	SetOverlay(planID string, status types.ProcessingStatus)
	ClearOverlay(planID string)
}

// Authorizer submits a plan for authorization. It is satisfied by
// *authorize.Orchestrator.
type Authorizer interface {
	Submit(ctx context.Context, planID string, opts authorize.Options) authorize.Result
}

// Config wires a Service.
type Config struct {
	Store      storage.Storage
	Guard      *inflight.Guard
	Gates      *gate.Registry           // default registry when nil
	Overlay    Overlay                  // optional
	Authorizer Authorizer               // required for Authorize
	Artifacts  volumes.TrajectorySource // optional; Download omits the trajectory without it
	Log        *slog.Logger
}

// Service performs plan and folder operations.
type Service struct {
	store      storage.Storage
	guard      *inflight.Guard
	gates      *gate.Registry
	overlay    Overlay
	authorizer Authorizer
	artifacts  volumes.TrajectorySource
	log        *slog.Logger
}

// New creates a Service. A nil Guard gets a private one.
func New(cfg Config) *Service {
	s := &Service{
		store:      cfg.Store,
		guard:      cfg.Guard,
		gates:      cfg.Gates,
		overlay:    cfg.Overlay,
		authorizer: cfg.Authorizer,
		artifacts:  cfg.Artifacts,
		log:        cfg.Log,
	}
	if s.guard == nil {
		s.guard = inflight.New()
	}
	if s.gates == nil {
		s.gates = gate.NewDefaultRegistry()
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	return s
}

// Guard returns the in-flight guard shared by the service's operations.
func (s *Service) Guard() *inflight.Guard { return s.guard }

// Request loads the plan and asks the gate for kind whether the transition
// may run. A missing plan yields a rejected decision.
func (s *Service) Request(ctx context.Context, kind gate.TransitionKind, id string) (gate.Decision, error) {
	plan, err := s.store.GetPlan(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return s.gates.Request(kind, nil), nil
	}
	if err != nil {
		return gate.Decision{}, err
	}
	return s.gates.Request(kind, plan), nil
}

// State returns the plan together with its derived workflow state.
func (s *Service) State(ctx context.Context, id string) (*types.FlightPlan, workflow.State, error) {
	plan, err := s.store.GetPlan(ctx, id)
	if err != nil {
		return nil, workflow.State{}, err
	}
	return plan, workflow.Derive(plan), nil
}

// Upload creates an unprocessed plan. folderID may be empty.
func (s *Service) Upload(ctx context.Context, name, trajectoryRef, folderID string) (*types.FlightPlan, error) {
	plan := &types.FlightPlan{Name: strings.TrimSpace(name)}
	if trajectoryRef != "" {
		plan.TrajectoryRef = &trajectoryRef
	}
	if folderID != "" {
		plan.FolderID = &folderID
	}
	if err := s.store.CreatePlan(ctx, plan); err != nil {
		return nil, fmt.Errorf("failed to upload %q: %w", name, err)
	}
	s.log.Info("plan uploaded", "plan_id", plan.ID, "name", plan.Name)
	return plan, nil
}

// Schedule sets the plan's scheduled time, normalized to UTC. It fails with
// storage.ErrScheduleLocked once processing has started.
func (s *Service) Schedule(ctx context.Context, id string, at time.Time) (*types.FlightPlan, error) {
	if at.IsZero() {
		return nil, fmt.Errorf("schedule %s: %w: empty time", id, ErrPrecondition)
	}
	utc := at.UTC()
	return s.store.PatchPlan(ctx, id, types.PlanUpdate{ScheduledAt: &utc})
}

// Process queues trajectory processing. The overlay shows the plan as queued
// immediately; it is dropped again if the store write fails.
func (s *Service) Process(ctx context.Context, ticket gate.Ticket) (*types.FlightPlan, error) {
	if err := ticket.Check(gate.TransitionProcess); err != nil {
		return nil, err
	}
	id := ticket.PlanID()
	var out *types.FlightPlan
	err := s.guard.Track(types.OpProcessing, id, func() error {
		plan, err := s.store.GetPlan(ctx, id)
		if err != nil {
			return err
		}
		if plan.ScheduledAt == nil {
			return fmt.Errorf("process %s: %w: missing schedule", id, ErrPrecondition)
		}
		if plan.ProcessingStatus != types.ProcessingUnprocessed {
			return fmt.Errorf("process %s: %w: plan is already %s", id, ErrPrecondition, plan.ProcessingStatus)
		}
		if s.overlay != nil {
			s.overlay.SetOverlay(id, types.ProcessingQueued)
		}
		queued := types.ProcessingQueued
		out, err = s.store.PatchPlan(ctx, id, types.PlanUpdate{ProcessingStatus: &queued})
		if err != nil {
			if s.overlay != nil {
				s.overlay.ClearOverlay(id)
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("plan queued for processing", "plan_id", id)
	return out, nil
}

// Reset returns the plan to unprocessed, discarding the trajectory, the
// authorization document and status, the airspace context and the schedule.
func (s *Service) Reset(ctx context.Context, ticket gate.Ticket) (*types.FlightPlan, error) {
	if err := ticket.Check(gate.TransitionReset); err != nil {
		return nil, err
	}
	id := ticket.PlanID()
	var out *types.FlightPlan
	err := s.guard.Track(types.OpResetting, id, func() error {
		var err error
		out, err = s.store.ResetPlan(ctx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	if s.overlay != nil {
		s.overlay.ClearOverlay(id)
	}
	s.log.Info("plan reset", "plan_id", id)
	return out, nil
}

// Authorize submits the plan to FAS. The in-flight guard is held by the
// authorizer itself.
func (s *Service) Authorize(ctx context.Context, ticket gate.Ticket, opts authorize.Options) authorize.Result {
	if err := ticket.Check(gate.TransitionAuthorize); err != nil {
		return authorize.Result{
			Outcome: authorize.PreconditionFailed,
			PlanID:  ticket.PlanID(),
			Message: "authorization was not confirmed",
			Err:     err,
		}
	}
	if s.authorizer == nil {
		return authorize.Result{
			Outcome: authorize.PreconditionFailed,
			PlanID:  ticket.PlanID(),
			Message: "no FAS configured",
		}
	}
	return s.authorizer.Submit(ctx, ticket.PlanID(), opts)
}

// Rename changes a plan's display name.
func (s *Service) Rename(ctx context.Context, id, name string) (*types.FlightPlan, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("rename %s: %w: empty name", id, ErrPrecondition)
	}
	var out *types.FlightPlan
	err := s.guard.Track(types.OpRenaming, id, func() error {
		var err error
		out, err = s.store.PatchPlan(ctx, id, types.PlanUpdate{Name: &name})
		return err
	})
	return out, err
}

// Move puts the plan in folderID, or takes it out of any folder when
// folderID is empty.
func (s *Service) Move(ctx context.Context, id, folderID string) (*types.FlightPlan, error) {
	upd := types.PlanUpdate{ClearFolderID: folderID == ""}
	if folderID != "" {
		upd.FolderID = &folderID
	}
	var out *types.FlightPlan
	err := s.guard.Track(types.OpMoving, id, func() error {
		var err error
		out, err = s.store.PatchPlan(ctx, id, upd)
		return err
	})
	return out, err
}

// Delete removes a plan and its history.
func (s *Service) Delete(ctx context.Context, id string) error {
	err := s.guard.Track(types.OpDeleting, id, func() error {
		return s.store.DeletePlan(ctx, id)
	})
	if err != nil {
		return err
	}
	if s.overlay != nil {
		s.overlay.ClearOverlay(id)
	}
	s.log.Info("plan deleted", "plan_id", id)
	return nil
}
