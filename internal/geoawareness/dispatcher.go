// Package geoawareness checks a processed plan against the airspace
// restrictions of a chosen region and hands the result to a live view.
package geoawareness

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/fpw-project/fpw/internal/inflight"
	"github.com/fpw-project/fpw/internal/storage"
	"github.com/fpw-project/fpw/internal/types"
)

// Outcome classifies a dispatch.
type Outcome int

const (
	Opened Outcome = iota
	NeedsAirspaceSelection
	PreconditionFailed
	AlreadyInFlight
	CheckFailed
)

func (o Outcome) String() string {
	switch o {
	case Opened:
		return "opened"
	case NeedsAirspaceSelection:
		return "needs-airspace-selection"
	case PreconditionFailed:
		return "precondition-failed"
	case AlreadyInFlight:
		return "already-in-flight"
	case CheckFailed:
		return "check-failed"
	}
	return fmt.Sprintf("Outcome(%d)", int(o))
}

// LiveView identifies the realtime channel showing a check's results.
type LiveView struct {
	PlanID          string
	AirspaceContext string
	ChannelRef      string
}

// LiveViewOpener connects a presentation layer to a live view.
type LiveViewOpener interface {
	Open(ctx context.Context, view LiveView) error
}

// LiveViewOpenerFunc adapts a function to LiveViewOpener.
type LiveViewOpenerFunc func(ctx context.Context, view LiveView) error

// Open calls f(ctx, view).
func (f LiveViewOpenerFunc) Open(ctx context.Context, view LiveView) error { return f(ctx, view) }

// Result is returned by every Dispatcher method.
type Result struct {
	Outcome   Outcome
	Reason    string
	Airspaces []Airspace // candidates when NeedsAirspaceSelection
	Suggested []Airspace // subset of Airspaces containing the takeoff point
	View      *LiveView
	Err       error
}

// PlanStore is the slice of storage.Storage the dispatcher needs.
type PlanStore interface {
	GetPlan(ctx context.Context, id string) (*types.FlightPlan, error)
	PatchPlan(ctx context.Context, id string, upd types.PlanUpdate) (*types.FlightPlan, error)
}

// Dispatcher resolves the airspace context for a plan and runs the check.
type Dispatcher struct {
	store   PlanStore
	checker Checker
	guard   *inflight.Guard
	catalog *Catalog
	opener  LiveViewOpener
	log     *slog.Logger
	timeout time.Duration
}

// Config wires a Dispatcher.
type Config struct {
	Store   PlanStore
	Checker Checker
	Guard   *inflight.Guard
	Catalog *Catalog
	Opener  LiveViewOpener // optional
	Log     *slog.Logger
	Timeout time.Duration // per check; zero means DefaultTimeout
}

// NewDispatcher creates a dispatcher.
func NewDispatcher(cfg Config) *Dispatcher {
	d := &Dispatcher{
		store:   cfg.Store,
		checker: cfg.Checker,
		guard:   cfg.Guard,
		catalog: cfg.Catalog,
		opener:  cfg.Opener,
		log:     cfg.Log,
		timeout: cfg.Timeout,
	}
	if d.log == nil {
		d.log = slog.Default()
	}
	if d.timeout <= 0 {
		d.timeout = DefaultTimeout
	}
	if d.guard == nil {
		d.guard = inflight.New()
	}
	return d
}

func precondition(reason string) Result {
	return Result{Outcome: PreconditionFailed, Reason: reason}
}

// Check runs geoawareness for planID using its stored airspace context.
// Without one it returns NeedsAirspaceSelection; the caller picks an
// airspace and calls CheckWithContext.
func (d *Dispatcher) Check(ctx context.Context, planID string) Result {
	if !d.guard.Begin(types.OpGeoawareness, planID) {
		return alreadyInFlight()
	}
	defer d.guard.End(types.OpGeoawareness, planID)

	plan, err := d.store.GetPlan(ctx, planID)
	if errors.Is(err, storage.ErrNotFound) {
		return precondition(fmt.Sprintf("plan %s not found", planID))
	}
	if err != nil {
		return Result{Outcome: CheckFailed, Reason: "could not load plan", Err: err}
	}
	if r, ok := checkPlan(plan); !ok {
		return r
	}
	if plan.AirspaceContext == nil || *plan.AirspaceContext == "" {
		r := Result{Outcome: NeedsAirspaceSelection, Reason: "no airspace selected", Airspaces: d.catalog.List()}
		if loc := plan.AuthorizationDocument.TakeoffLocation; !loc.IsZero() {
			r.Suggested = d.catalog.Suggest(loc.Coordinates[1], loc.Coordinates[0])
		}
		return r
	}
	return d.run(ctx, plan.ID, *plan.AirspaceContext)
}

// CheckWithContext persists airspace as the plan's context and then runs
// the check.
func (d *Dispatcher) CheckWithContext(ctx context.Context, planID, airspace string) Result {
	if airspace == "" {
		return precondition("no airspace selected")
	}
	if len(d.catalog.List()) > 0 {
		if _, ok := d.catalog.Get(airspace); !ok {
			return precondition(fmt.Sprintf("unknown airspace %q", airspace))
		}
	}
	if !d.guard.Begin(types.OpGeoawareness, planID) {
		return alreadyInFlight()
	}
	defer d.guard.End(types.OpGeoawareness, planID)

	plan, err := d.store.GetPlan(ctx, planID)
	if errors.Is(err, storage.ErrNotFound) {
		return precondition(fmt.Sprintf("plan %s not found", planID))
	}
	if err != nil {
		return Result{Outcome: CheckFailed, Reason: "could not load plan", Err: err}
	}
	if r, ok := checkPlan(plan); !ok {
		return r
	}
	if plan.AirspaceContext == nil || *plan.AirspaceContext != airspace {
		if _, err := d.store.PatchPlan(ctx, planID, types.PlanUpdate{AirspaceContext: &airspace}); err != nil {
			return Result{Outcome: CheckFailed, Reason: "could not save airspace", Err: err}
		}
	}
	return d.run(ctx, planID, airspace)
}

func checkPlan(plan *types.FlightPlan) (Result, bool) {
	if plan.ProcessingStatus != types.ProcessingProcessed {
		return precondition(fmt.Sprintf("plan is not processed (status %s)", plan.ProcessingStatus)), false
	}
	if plan.AuthorizationDocument == nil {
		return precondition("plan has no authorization document"), false
	}
	return Result{}, true
}

func alreadyInFlight() Result {
	return Result{Outcome: AlreadyInFlight, Reason: "geoawareness check already running"}
}

// run calls the service. The caller holds the guard for planID.
func (d *Dispatcher) run(ctx context.Context, planID, airspace string) Result {
	// the check completes server-side even if the caller goes away
	callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.timeout)
	defer cancel()

	res, err := d.checker.Check(callCtx, planID, airspace)
	if err != nil {
		d.log.Warn("geoawareness check failed", "plan_id", planID, "airspace", airspace, "error", err)
		return Result{Outcome: CheckFailed, Reason: err.Error(), Err: err}
	}

	view := LiveView{PlanID: planID, AirspaceContext: airspace, ChannelRef: res.LiveChannelRef}
	if d.opener != nil {
		if err := d.opener.Open(ctx, view); err != nil {
			return Result{Outcome: CheckFailed, Reason: "could not open live view", View: &view, Err: err}
		}
	}
	d.log.Info("geoawareness live view ready", "plan_id", planID, "airspace", airspace)
	return Result{Outcome: Opened, View: &view}
}
