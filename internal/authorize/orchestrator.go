// Package authorize submits flight plans to the Flight Authorization
// Service.
//
// A submission runs three stages in order, each short-circuiting on
// failure: operation volumes are generated when the document lacks them,
// the document is checked for completeness, and the document is posted to
// FAS. Only an accepted submission changes the plan, and then only to
// pending. Approved and denied arrive later through the FAS callback.
package authorize

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/fpw-project/fpw/internal/fas"
	"github.com/fpw-project/fpw/internal/inflight"
	"github.com/fpw-project/fpw/internal/storage"
	"github.com/fpw-project/fpw/internal/telemetry"
	"github.com/fpw-project/fpw/internal/types"
	"github.com/fpw-project/fpw/internal/uplan"
	"github.com/fpw-project/fpw/internal/volumes"
)

const scopeName = "github.com/fpw-project/fpw/authorize"

// DefaultTimeout bounds each network stage.
const DefaultTimeout = 60 * time.Second

// Store is the slice of storage.Storage the orchestrator needs.
type Store interface {
	GetPlan(ctx context.Context, id string) (*types.FlightPlan, error)
	PatchPlan(ctx context.Context, id string, upd types.PlanUpdate) (*types.FlightPlan, error)
}

// Refresher refreshes the local snapshot after a state change.
type Refresher interface {
	Refresh(ctx context.Context) error
}

// Options alter a single submission.
type Options struct {
	// Randomize fills placeholders with test data and skips completeness
	// validation. Test mode only.
	Randomize bool
	Rand      *rand.Rand
}

// Config wires an Orchestrator.
type Config struct {
	Store     Store
	Volumes   volumes.Generator
	Validator uplan.Validator // nil means uplan.SchemaValidator
	FAS       fas.Submitter
	Guard     *inflight.Guard
	Refresher Refresher // optional
	Log       *slog.Logger
	Timeout   time.Duration
}

// Orchestrator runs FAS submissions.
type Orchestrator struct {
	store     Store
	volumes   volumes.Generator
	validator uplan.Validator
	fas       fas.Submitter
	guard     *inflight.Guard
	refresher Refresher
	log       *slog.Logger
	timeout   time.Duration

	tracer   trace.Tracer
	outcomes metric.Int64Counter
}

// New creates an orchestrator.
func New(cfg Config) *Orchestrator {
	o := &Orchestrator{
		store:     cfg.Store,
		volumes:   cfg.Volumes,
		validator: cfg.Validator,
		fas:       cfg.FAS,
		guard:     cfg.Guard,
		refresher: cfg.Refresher,
		log:       cfg.Log,
		timeout:   cfg.Timeout,
		tracer:    telemetry.Tracer(scopeName),
	}
	if o.validator == nil {
		o.validator = uplan.SchemaValidator{}
	}
	if o.guard == nil {
		o.guard = inflight.New()
	}
	if o.log == nil {
		o.log = slog.Default()
	}
	if o.timeout <= 0 {
		o.timeout = DefaultTimeout
	}
	o.outcomes, _ = telemetry.Meter(scopeName).Int64Counter("fpw.authorize.outcomes",
		metric.WithDescription("FAS submission attempts by outcome"),
	)
	return o
}

// Guard returns the guard the orchestrator registers with, so callers can
// disable duplicate submit affordances.
func (o *Orchestrator) Guard() *inflight.Guard {
	return o.guard
}

// Submit runs the submission pipeline for planID. It never panics and
// always releases its guard entry before returning.
func (o *Orchestrator) Submit(ctx context.Context, planID string, opts Options) Result {
	ctx, span := o.tracer.Start(ctx, "authorize.Submit",
		trace.WithAttributes(
			attribute.String("fpw.plan.id", planID),
			attribute.Bool("fpw.authorize.randomize", opts.Randomize),
		))
	defer span.End()

	res := o.submit(ctx, planID, opts)
	res.PlanID = planID
	if res.Outcome.Retryable() {
		res.Retry = func(ctx context.Context) Result { return o.Submit(ctx, planID, opts) }
	}

	attrs := metric.WithAttributes(attribute.String("outcome", res.Outcome.String()))
	o.outcomes.Add(ctx, 1, attrs)
	span.SetAttributes(attribute.String("fpw.authorize.outcome", res.Outcome.String()))
	if res.Err != nil {
		span.RecordError(res.Err)
	}
	if !res.OK() {
		span.SetStatus(codes.Error, res.Outcome.String())
	}
	o.log.Info("FAS submission finished",
		"plan_id", planID,
		"outcome", res.Outcome.String(),
		"status", res.StatusCode)
	return res
}

func (o *Orchestrator) submit(ctx context.Context, planID string, opts Options) (res Result) {
	if !o.guard.Begin(types.OpAuthorizing, planID) {
		return Result{Outcome: AlreadyInFlight, Message: "a submission for this plan is already in flight"}
	}
	defer o.guard.End(types.OpAuthorizing, planID)
	defer func() {
		if r := recover(); r != nil {
			res = Result{Outcome: NetworkOrUnknown, Message: "unexpected failure", Err: fmt.Errorf("panic: %v", r)}
		}
	}()

	plan, err := o.store.GetPlan(ctx, planID)
	if errors.Is(err, storage.ErrNotFound) {
		return Result{Outcome: PreconditionFailed, Message: fmt.Sprintf("plan %s not found", planID), Err: err}
	}
	if err != nil {
		return Result{Outcome: NetworkOrUnknown, Message: "could not load plan", Err: err}
	}
	if msg := checkPreconditions(plan); msg != "" {
		return Result{Outcome: PreconditionFailed, Message: msg, Plan: plan}
	}

	doc := plan.AuthorizationDocument
	generated := 0

	// 1. volumes
	if !doc.HasOperationVolumes() && plan.HasTrajectory() {
		if o.volumes == nil {
			return Result{Outcome: VolumeGenerationFailed, Message: "no volume generator configured", Plan: plan}
		}
		callCtx, cancel := o.detached(ctx)
		gen, err := o.volumes.Generate(callCtx, planID)
		cancel()
		if err != nil {
			o.log.Warn("volume generation failed", "plan_id", planID, "error", err)
			return Result{Outcome: VolumeGenerationFailed, Message: err.Error(), Plan: plan, Err: err}
		}
		doc = doc.MergeGenerated(gen.Document)
		generated = gen.VolumesGenerated
		plan, err = o.store.PatchPlan(ctx, planID, types.PlanUpdate{AuthorizationDocument: doc})
		if err != nil {
			return Result{Outcome: NetworkOrUnknown, Message: "could not save generated volumes", Err: err, VolumesGenerated: generated}
		}
		doc = plan.AuthorizationDocument
	}

	// 2. completeness
	if opts.Randomize {
		doc = uplan.Randomize(doc, opts.Rand)
	} else {
		report := o.validator.Validate(doc)
		if !report.IsComplete {
			return Result{
				Outcome:          ValidationFailed,
				Message:          fmt.Sprintf("authorization document is incomplete (%d missing)", len(report.MissingFields)),
				MissingFields:    report.MissingFields,
				FieldErrors:      report.FieldErrors,
				VolumesGenerated: generated,
				Plan:             plan,
			}
		}
	}

	// 3. FAS
	callCtx, cancel := o.detached(ctx)
	out, err := o.fas.Submit(callCtx, planID, doc)
	cancel()
	if err != nil {
		return Result{Outcome: NetworkOrUnknown, Message: "FAS did not respond", Err: err, VolumesGenerated: generated, Plan: plan}
	}

	switch {
	case out.Accepted():
		return o.accepted(ctx, plan, doc, opts, out, generated)
	case out.Unavailable():
		return Result{
			Outcome:          TransientUnavailable,
			Message:          "FAS is temporarily unavailable; try again later",
			StatusCode:       out.StatusCode,
			VolumesGenerated: generated,
			Plan:             plan,
		}
	default:
		msg := out.Message
		if msg == "" {
			msg = http.StatusText(out.StatusCode)
		}
		return Result{
			Outcome:          SubmissionFailed,
			Message:          msg,
			StatusCode:       out.StatusCode,
			VolumesGenerated: generated,
			Plan:             plan,
		}
	}
}

func (o *Orchestrator) accepted(ctx context.Context, plan *types.FlightPlan, doc *uplan.Document, opts Options, out fas.Outcome, generated int) Result {
	pending := types.AuthPending
	upd := types.PlanUpdate{AuthorizationStatus: &pending, ClearAuthorizationMessage: true}
	if opts.Randomize {
		upd.AuthorizationDocument = doc
	}
	res := Result{Outcome: Submitted, Message: out.Message, StatusCode: out.StatusCode, VolumesGenerated: generated, Plan: plan}

	updated, err := o.store.PatchPlan(ctx, plan.ID, upd)
	if err != nil {
		// FAS has the plan; resubmitting would duplicate it
		o.log.Error("FAS accepted plan but pending status was not saved", "plan_id", plan.ID, "error", err)
		res.Err = err
		res.Message = "submitted, but the pending status could not be saved"
		return res
	}
	res.Plan = updated

	if o.refresher != nil {
		if err := o.refresher.Refresh(ctx); err != nil {
			o.log.Debug("snapshot refresh after submission failed", "plan_id", plan.ID, "error", err)
		}
	}
	return res
}

// detached returns a context that survives caller cancellation but still
// times out.
func (o *Orchestrator) detached(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), o.timeout)
}

func checkPreconditions(p *types.FlightPlan) string {
	if p.ProcessingStatus != types.ProcessingProcessed {
		return fmt.Sprintf("plan is not processed (status %s)", p.ProcessingStatus)
	}
	switch p.AuthorizationStatus {
	case types.AuthPending:
		return "plan is already pending authorization"
	case types.AuthApproved:
		return "plan is already approved"
	}
	if p.AuthorizationDocument == nil && !p.HasTrajectory() {
		return "plan has no authorization document"
	}
	return ""
}
