package planops

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fpw-project/fpw/internal/authorize"
	"github.com/fpw-project/fpw/internal/gate"
	"github.com/fpw-project/fpw/internal/inflight"
	"github.com/fpw-project/fpw/internal/storage"
	"github.com/fpw-project/fpw/internal/storage/memory"
	"github.com/fpw-project/fpw/internal/types"
	"github.com/fpw-project/fpw/internal/uplan"
	"github.com/fpw-project/fpw/internal/volumes"
)

type recordingOverlay struct {
	mu      sync.Mutex
	set     map[string]types.ProcessingStatus
	cleared []string
}

func (o *recordingOverlay) SetOverlay(id string, status types.ProcessingStatus) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.set == nil {
		o.set = make(map[string]types.ProcessingStatus)
	}
	o.set[id] = status
}

func (o *recordingOverlay) ClearOverlay(id string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.set, id)
	o.cleared = append(o.cleared, id)
}

type fakeAuthorizer struct {
	calls []string
}

func (f *fakeAuthorizer) Submit(_ context.Context, id string, _ authorize.Options) authorize.Result {
	f.calls = append(f.calls, id)
	return authorize.Result{Outcome: authorize.Submitted, PlanID: id}
}

type fixture struct {
	svc     *Service
	store   *memory.MemoryStorage
	overlay *recordingOverlay
	auth    *fakeAuthorizer
	dir     string
}

func setup(t *testing.T) *fixture {
	t.Helper()
	store := memory.New()
	t.Cleanup(func() { _ = store.Close() })
	f := &fixture{
		store:   store,
		overlay: &recordingOverlay{},
		auth:    &fakeAuthorizer{},
		dir:     t.TempDir(),
	}
	f.svc = New(Config{
		Store:      store,
		Guard:      inflight.New(),
		Overlay:    f.overlay,
		Authorizer: f.auth,
		Artifacts:  volumes.DirSource{Dir: f.dir},
	})
	return f
}

func (f *fixture) confirm(t *testing.T, kind gate.TransitionKind, id string) gate.Ticket {
	t.Helper()
	d, err := f.svc.Request(context.Background(), kind, id)
	require.NoError(t, err)
	require.Equal(t, gate.NeedsConfirmation, d.Outcome, "reason: %s", d.Reason)
	ticket, err := d.Confirm()
	require.NoError(t, err)
	return ticket
}

func (f *fixture) scheduled(t *testing.T) *types.FlightPlan {
	t.Helper()
	ctx := context.Background()
	p, err := f.svc.Upload(ctx, "survey", "survey.csv", "")
	require.NoError(t, err)
	p, err = f.svc.Schedule(ctx, p.ID, time.Date(2025, 9, 1, 11, 0, 0, 0, time.FixedZone("CEST", 2*3600)))
	require.NoError(t, err)
	return p
}

func TestUploadAndSchedule(t *testing.T) {
	f := setup(t)
	p := f.scheduled(t)
	assert.Equal(t, types.ProcessingUnprocessed, p.ProcessingStatus)
	require.NotNil(t, p.ScheduledAt)
	assert.Equal(t, time.UTC, p.ScheduledAt.Location())
	assert.Equal(t, 9, p.ScheduledAt.Hour())

	_, err := f.svc.Schedule(context.Background(), p.ID, time.Time{})
	assert.ErrorIs(t, err, ErrPrecondition)
}

func TestProcessRequiresTicket(t *testing.T) {
	f := setup(t)
	p := f.scheduled(t)

	_, err := f.svc.Process(context.Background(), gate.Ticket{})
	assert.ErrorIs(t, err, gate.ErrNotConfirmed)

	wrongKind := f.confirm(t, gate.TransitionReset, p.ID)
	_, err = f.svc.Process(context.Background(), wrongKind)
	assert.ErrorIs(t, err, gate.ErrNotConfirmed)

	got, err := f.store.GetPlan(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, types.ProcessingUnprocessed, got.ProcessingStatus)
}

func TestProcessWithoutScheduleIsRejected(t *testing.T) {
	f := setup(t)
	p, err := f.svc.Upload(context.Background(), "survey", "", "")
	require.NoError(t, err)

	d, err := f.svc.Request(context.Background(), gate.TransitionProcess, p.ID)
	require.NoError(t, err)
	assert.Equal(t, gate.RejectedPrecondition, d.Outcome)
	assert.Equal(t, "missing schedule", d.Reason)
}

func TestProcessQueuesAndLocksSchedule(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	p := f.scheduled(t)

	got, err := f.svc.Process(ctx, f.confirm(t, gate.TransitionProcess, p.ID))
	require.NoError(t, err)
	assert.Equal(t, types.ProcessingQueued, got.ProcessingStatus)
	assert.Equal(t, types.ProcessingQueued, f.overlay.set[p.ID])
	assert.False(t, f.svc.Guard().IsActive(types.OpProcessing, p.ID))

	_, err = f.svc.Schedule(ctx, p.ID, time.Now())
	assert.ErrorIs(t, err, storage.ErrScheduleLocked)

	// a second process is refused by the state check
	_, err = f.svc.Process(ctx, f.confirm(t, gate.TransitionProcess, p.ID))
	assert.ErrorIs(t, err, ErrPrecondition)
}

func TestProcessRefusedWhileInFlight(t *testing.T) {
	f := setup(t)
	p := f.scheduled(t)
	ticket := f.confirm(t, gate.TransitionProcess, p.ID)

	require.True(t, f.svc.Guard().Begin(types.OpProcessing, p.ID))
	_, err := f.svc.Process(context.Background(), ticket)
	assert.ErrorIs(t, err, inflight.ErrInFlight)
	f.svc.Guard().End(types.OpProcessing, p.ID)

	_, err = f.svc.Process(context.Background(), ticket)
	assert.NoError(t, err)
}

func TestResetClearsEverything(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	p := f.scheduled(t)
	_, err := f.svc.Process(ctx, f.confirm(t, gate.TransitionProcess, p.ID))
	require.NoError(t, err)

	got, err := f.svc.Reset(ctx, f.confirm(t, gate.TransitionReset, p.ID))
	require.NoError(t, err)
	assert.Equal(t, types.ProcessingUnprocessed, got.ProcessingStatus)
	assert.Nil(t, got.ScheduledAt)
	assert.Nil(t, got.TrajectoryRef)
	assert.Contains(t, f.overlay.cleared, p.ID)

	// schedule can be set again
	_, err = f.svc.Schedule(ctx, p.ID, time.Now())
	assert.NoError(t, err)
}

func TestAuthorize(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	p := f.scheduled(t)

	res := f.svc.Authorize(ctx, gate.Ticket{}, authorize.Options{})
	assert.Equal(t, authorize.PreconditionFailed, res.Outcome)
	assert.ErrorIs(t, res.Err, gate.ErrNotConfirmed)
	assert.Empty(t, f.auth.calls)

	// the gate refuses unprocessed plans before any confirmation
	d, err := f.svc.Request(ctx, gate.TransitionAuthorize, p.ID)
	require.NoError(t, err)
	assert.Equal(t, gate.RejectedPrecondition, d.Outcome)

	processed := types.ProcessingProcessed
	_, err = f.store.PatchPlan(ctx, p.ID, types.PlanUpdate{ProcessingStatus: &processed})
	require.NoError(t, err)

	res = f.svc.Authorize(ctx, f.confirm(t, gate.TransitionAuthorize, p.ID), authorize.Options{})
	assert.True(t, res.OK())
	assert.Equal(t, []string{p.ID}, f.auth.calls)
}

func TestRenameMoveDelete(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	p, err := f.svc.Upload(ctx, "survey", "", "")
	require.NoError(t, err)
	folder, err := f.svc.CreateFolder(ctx, "ops")
	require.NoError(t, err)

	got, err := f.svc.Rename(ctx, p.ID, "  inspection ")
	require.NoError(t, err)
	assert.Equal(t, "inspection", got.Name)
	_, err = f.svc.Rename(ctx, p.ID, " ")
	assert.ErrorIs(t, err, ErrPrecondition)

	got, err = f.svc.Move(ctx, p.ID, folder.ID)
	require.NoError(t, err)
	require.NotNil(t, got.FolderID)
	assert.Equal(t, folder.ID, *got.FolderID)

	got, err = f.svc.Move(ctx, p.ID, "")
	require.NoError(t, err)
	assert.Nil(t, got.FolderID)

	_, err = f.svc.Move(ctx, p.ID, "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	require.NoError(t, f.svc.Delete(ctx, p.ID))
	assert.ErrorIs(t, f.svc.Delete(ctx, p.ID), storage.ErrNotFound)
}

func TestDeleteFolder(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	folder, err := f.svc.CreateFolder(ctx, "ops")
	require.NoError(t, err)
	a, err := f.svc.Upload(ctx, "a", "", folder.ID)
	require.NoError(t, err)
	_, err = f.svc.Upload(ctx, "b", "", folder.ID)
	require.NoError(t, err)

	require.True(t, f.svc.Guard().Begin(types.OpRenaming, a.ID))
	_, err = f.svc.DeleteFolder(ctx, folder.ID)
	assert.ErrorIs(t, err, ErrPrecondition)
	f.svc.Guard().End(types.OpRenaming, a.ID)

	n, err := f.svc.DeleteFolder(ctx, folder.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	plans, err := f.svc.ListPlans(ctx, types.PlanFilter{})
	require.NoError(t, err)
	assert.Empty(t, plans)
}

func TestDownloadBundle(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	csv := "SimTime,Lat,Lon,Alt\n0,39.5,-0.4,10\n"
	require.NoError(t, os.WriteFile(filepath.Join(f.dir, "survey.csv"), []byte(csv), 0o644))

	p := f.scheduled(t)
	processed := types.ProcessingProcessed
	_, err := f.store.PatchPlan(ctx, p.ID, types.PlanUpdate{
		ProcessingStatus:      &processed,
		AuthorizationDocument: &uplan.Document{OperatorID: "ESP1"},
	})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, f.svc.Download(ctx, p.ID, &buf))

	files, err := ReadBundle(&buf)
	require.NoError(t, err)
	assert.Len(t, files, 3)
	assert.Equal(t, csv, string(files[BundleTrajectory+"survey.csv"]))

	var doc uplan.Document
	require.NoError(t, json.Unmarshal(files[BundleUPlan], &doc))
	assert.Equal(t, "ESP1", doc.OperatorID)

	var plan types.FlightPlan
	require.NoError(t, json.Unmarshal(files[BundlePlan], &plan))
	assert.Equal(t, p.ID, plan.ID)
}

func TestDownloadWithoutDocument(t *testing.T) {
	f := setup(t)
	f.svc.artifacts = nil
	p, err := f.svc.Upload(context.Background(), "survey", "survey.csv", "")
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, f.svc.Download(context.Background(), p.ID, &buf))
	files, err := ReadBundle(&buf)
	require.NoError(t, err)
	assert.Len(t, files, 1)
	assert.Contains(t, files, BundlePlan)
}

func TestForEach(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	a, err := f.svc.Upload(ctx, "a", "", "")
	require.NoError(t, err)
	b, err := f.svc.Upload(ctx, "b", "", "")
	require.NoError(t, err)

	results := ForEach(ctx, []string{a.ID, "missing", b.ID}, f.svc.Delete)
	require.Len(t, results, 3)
	assert.NoError(t, results[0].Err)
	assert.ErrorIs(t, results[1].Err, storage.ErrNotFound)
	assert.NoError(t, results[2].Err)
	assert.ErrorIs(t, Errors(results), storage.ErrNotFound)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	results = ForEach(cancelled, []string{"x"}, func(context.Context, string) error {
		return errors.New("must not run")
	})
	assert.ErrorIs(t, results[0].Err, context.Canceled)
	assert.NoError(t, Errors(nil))
}
