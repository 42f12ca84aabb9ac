package telemetry

import (
	"context"
	"encoding/json"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/fpw-project/fpw/internal/storage"
	"github.com/fpw-project/fpw/internal/types"
)

const storageScopeName = "github.com/fpw-project/fpw/storage"

// InstrumentedStorage wraps storage.Storage with OTel tracing and metrics.
// Every method gets a span and is counted in fpw.storage.* metrics.
// Use WrapStorage to create one; it returns the original store unchanged when
// telemetry is disabled.
type InstrumentedStorage struct {
	inner  storage.Storage
	tracer trace.Tracer
	ops    metric.Int64Counter
	dur    metric.Float64Histogram
	errs   metric.Int64Counter
}

var _ storage.Storage = (*InstrumentedStorage)(nil)

// WrapStorage returns s decorated with OTel instrumentation.
// When telemetry is disabled, s is returned as-is.
func WrapStorage(s storage.Storage) storage.Storage {
	if !Enabled() {
		return s
	}
	return newInstrumentedStorage(s, Meter(storageScopeName), Tracer(storageScopeName))
}

func newInstrumentedStorage(s storage.Storage, m metric.Meter, tr trace.Tracer) *InstrumentedStorage {
	ops, _ := m.Int64Counter("fpw.storage.operations",
		metric.WithDescription("Total storage operations executed"),
	)
	dur, _ := m.Float64Histogram("fpw.storage.operation.duration",
		metric.WithDescription("Storage operation duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	errs, _ := m.Int64Counter("fpw.storage.errors",
		metric.WithDescription("Total storage operation errors"),
	)
	return &InstrumentedStorage{
		inner:  s,
		tracer: tr,
		ops:    ops,
		dur:    dur,
		errs:   errs,
	}
}

// op starts a span and records a metric for the named storage operation.
func (s *InstrumentedStorage) op(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span, time.Time) {
	all := append([]attribute.KeyValue{attribute.String("db.operation", name)}, attrs...)
	ctx, span := s.tracer.Start(ctx, "storage."+name,
		trace.WithAttributes(all...),
		trace.WithSpanKind(trace.SpanKindClient),
	)
	s.ops.Add(ctx, 1, metric.WithAttributes(all...))
	return ctx, span, time.Now()
}

// done ends the span, records duration and optional error.
func (s *InstrumentedStorage) done(ctx context.Context, span trace.Span, start time.Time, err error, attrs ...attribute.KeyValue) {
	ms := float64(time.Since(start).Milliseconds())
	s.dur.Record(ctx, ms, metric.WithAttributes(attrs...))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.errs.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
	span.End()
}

// ── Plans ───────────────────────────────────────────────────────────────────

func (s *InstrumentedStorage) CreatePlan(ctx context.Context, plan *types.FlightPlan) error {
	ctx, span, t := s.op(ctx, "CreatePlan")
	err := s.inner.CreatePlan(ctx, plan)
	s.done(ctx, span, t, err)
	return err
}

func (s *InstrumentedStorage) GetPlan(ctx context.Context, id string) (*types.FlightPlan, error) {
	attrs := []attribute.KeyValue{attribute.String("fpw.plan.id", id)}
	ctx, span, t := s.op(ctx, "GetPlan", attrs...)
	v, err := s.inner.GetPlan(ctx, id)
	s.done(ctx, span, t, err, attrs...)
	return v, err
}

func (s *InstrumentedStorage) ListPlans(ctx context.Context, filter types.PlanFilter) ([]*types.FlightPlan, error) {
	ctx, span, t := s.op(ctx, "ListPlans")
	v, err := s.inner.ListPlans(ctx, filter)
	span.SetAttributes(attribute.Int("fpw.plan.count", len(v)))
	s.done(ctx, span, t, err)
	return v, err
}

func (s *InstrumentedStorage) PatchPlan(ctx context.Context, id string, upd types.PlanUpdate) (*types.FlightPlan, error) {
	attrs := []attribute.KeyValue{attribute.String("fpw.plan.id", id)}
	ctx, span, t := s.op(ctx, "PatchPlan", attrs...)
	v, err := s.inner.PatchPlan(ctx, id, upd)
	s.done(ctx, span, t, err, attrs...)
	return v, err
}

func (s *InstrumentedStorage) ResetPlan(ctx context.Context, id string) (*types.FlightPlan, error) {
	attrs := []attribute.KeyValue{attribute.String("fpw.plan.id", id)}
	ctx, span, t := s.op(ctx, "ResetPlan", attrs...)
	v, err := s.inner.ResetPlan(ctx, id)
	s.done(ctx, span, t, err, attrs...)
	return v, err
}

func (s *InstrumentedStorage) DeletePlan(ctx context.Context, id string) error {
	attrs := []attribute.KeyValue{attribute.String("fpw.plan.id", id)}
	ctx, span, t := s.op(ctx, "DeletePlan", attrs...)
	err := s.inner.DeletePlan(ctx, id)
	s.done(ctx, span, t, err, attrs...)
	return err
}

func (s *InstrumentedStorage) ApplyDecision(ctx context.Context, id string, status types.AuthorizationStatus, message json.RawMessage) (*types.FlightPlan, error) {
	attrs := []attribute.KeyValue{
		attribute.String("fpw.plan.id", id),
		attribute.String("fpw.authorization.status", string(status)),
	}
	ctx, span, t := s.op(ctx, "ApplyDecision", attrs...)
	v, err := s.inner.ApplyDecision(ctx, id, status, message)
	s.done(ctx, span, t, err, attrs...)
	return v, err
}

// ── Folders ─────────────────────────────────────────────────────────────────

func (s *InstrumentedStorage) CreateFolder(ctx context.Context, folder *types.Folder) error {
	ctx, span, t := s.op(ctx, "CreateFolder")
	err := s.inner.CreateFolder(ctx, folder)
	s.done(ctx, span, t, err)
	return err
}

func (s *InstrumentedStorage) GetFolder(ctx context.Context, id string) (*types.Folder, error) {
	attrs := []attribute.KeyValue{attribute.String("fpw.folder.id", id)}
	ctx, span, t := s.op(ctx, "GetFolder", attrs...)
	v, err := s.inner.GetFolder(ctx, id)
	s.done(ctx, span, t, err, attrs...)
	return v, err
}

func (s *InstrumentedStorage) ListFolders(ctx context.Context) ([]*types.Folder, error) {
	ctx, span, t := s.op(ctx, "ListFolders")
	v, err := s.inner.ListFolders(ctx)
	s.done(ctx, span, t, err)
	return v, err
}

func (s *InstrumentedStorage) RenameFolder(ctx context.Context, id, name string) error {
	attrs := []attribute.KeyValue{attribute.String("fpw.folder.id", id)}
	ctx, span, t := s.op(ctx, "RenameFolder", attrs...)
	err := s.inner.RenameFolder(ctx, id, name)
	s.done(ctx, span, t, err, attrs...)
	return err
}

func (s *InstrumentedStorage) DeleteFolder(ctx context.Context, id string) (int, error) {
	attrs := []attribute.KeyValue{attribute.String("fpw.folder.id", id)}
	ctx, span, t := s.op(ctx, "DeleteFolder", attrs...)
	n, err := s.inner.DeleteFolder(ctx, id)
	span.SetAttributes(attribute.Int("fpw.plan.count", n))
	s.done(ctx, span, t, err, attrs...)
	return n, err
}

// ── History ─────────────────────────────────────────────────────────────────

func (s *InstrumentedStorage) GetEvents(ctx context.Context, planID string, limit int) ([]*types.Event, error) {
	attrs := []attribute.KeyValue{attribute.String("fpw.plan.id", planID)}
	ctx, span, t := s.op(ctx, "GetEvents", attrs...)
	v, err := s.inner.GetEvents(ctx, planID, limit)
	s.done(ctx, span, t, err, attrs...)
	return v, err
}

// ── Lifecycle ───────────────────────────────────────────────────────────────

func (s *InstrumentedStorage) Close() error {
	return s.inner.Close()
}

// Unwrap returns the underlying store.
func (s *InstrumentedStorage) Unwrap() storage.Storage {
	return s.inner
}
