package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fpw-project/fpw/internal/authorize"
	"github.com/fpw-project/fpw/internal/geoawareness"
	"github.com/fpw-project/fpw/internal/planops"
	"github.com/fpw-project/fpw/internal/poller"
	"github.com/fpw-project/fpw/internal/types"
	"github.com/fpw-project/fpw/internal/ui"
)

func init() {
	lipgloss.SetColorProfile(termenv.Ascii)
}

func TestPlanFilterFromFlags(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		wantErr bool
		check   func(t *testing.T, f types.PlanFilter)
	}{
		{
			name: "empty",
			check: func(t *testing.T, f types.PlanFilter) {
				assert.Nil(t, f.FolderID)
				assert.Nil(t, f.ProcessingStatus)
				assert.Zero(t, f.Limit)
			},
		},
		{
			name: "all filters",
			args: []string{"--folder", "f1", "--status", "Processed", "--auth", "pending", "--name", "survey", "--limit", "5"},
			check: func(t *testing.T, f types.PlanFilter) {
				require.NotNil(t, f.FolderID)
				assert.Equal(t, "f1", *f.FolderID)
				assert.Equal(t, types.ProcessingProcessed, *f.ProcessingStatus)
				assert.Equal(t, types.AuthPending, *f.AuthorizationStatus)
				assert.Equal(t, "survey", f.NameContains)
				assert.Equal(t, 5, f.Limit)
			},
		},
		{name: "bad status", args: []string{"--status", "done"}, wantErr: true},
		{name: "bad auth", args: []string{"--auth", "maybe"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := &cobra.Command{Use: "list"}
			addListFlags(cmd)
			require.NoError(t, cmd.ParseFlags(tt.args))

			f, err := planFilterFromFlags(cmd)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			tt.check(t, f)
		})
	}
}

func TestCopyTrajectory(t *testing.T) {
	src := filepath.Join(t.TempDir(), "flight1.csv")
	require.NoError(t, os.WriteFile(src, []byte("SimTime,Lat,Lon,Alt\n"), 0o600))
	dir := filepath.Join(t.TempDir(), "trajectories")

	ref, err := copyTrajectory(src, dir)
	require.NoError(t, err)
	assert.Equal(t, "flight1.csv", ref)
	assert.FileExists(t, filepath.Join(dir, ref))

	// same content again is fine
	_, err = copyTrajectory(src, dir)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(src, []byte("changed\n"), 0o600))
	_, err = copyTrajectory(src, dir)
	assert.Error(t, err)
}

func TestRenderWatch(t *testing.T) {
	at := time.Date(2025, 9, 1, 9, 0, 0, 0, time.UTC)
	snap := poller.Snapshot{
		Plans:     []*types.FlightPlan{{ID: "p1", Name: "survey", ProcessingStatus: types.ProcessingQueued, AuthorizationStatus: types.AuthNone, ScheduledAt: &at}},
		FetchedAt: at,
	}

	out := renderWatch(snap, 10*time.Second)
	assert.Contains(t, out, "FLIGHT PLANS")
	assert.Contains(t, out, "survey")
	assert.Contains(t, out, "queued")
	assert.NotContains(t, out, "consecutive refreshes failed")

	snap.Degraded, snap.ErrorCount, snap.LastError = true, 3, "connection refused"
	out = renderWatch(snap, 10*time.Second)
	assert.Contains(t, out, "3 consecutive refreshes failed")
	assert.Contains(t, out, "connection refused")
	assert.Contains(t, out, "survey", "last good data stays visible")
}

func TestDrawWatchRawNewlines(t *testing.T) {
	var buf bytes.Buffer
	drawWatch(&buf, poller.Snapshot{}, time.Second, true)
	out := buf.String()
	assert.Contains(t, out, "\r\n")
	assert.NotContains(t, strings.ReplaceAll(out, "\r\n", ""), "\n")
}

func TestFormatAuthorizeResult(t *testing.T) {
	ok := formatAuthorizeResult(authorize.Result{Outcome: authorize.Submitted, PlanID: "p1", VolumesGenerated: 4})
	assert.Contains(t, ok, "p1 submitted to FAS")
	assert.Contains(t, ok, "4 volumes generated")

	invalid := formatAuthorizeResult(authorize.Result{
		Outcome:       authorize.ValidationFailed,
		PlanID:        "p2",
		MissingFields: []string{"contactDetails.firstName"},
	})
	assert.Contains(t, invalid, "validation-failed")
	assert.Contains(t, invalid, "missing contactDetails.firstName")
	assert.NotContains(t, invalid, "retryable")

	transient := formatAuthorizeResult(authorize.Result{
		Outcome: authorize.TransientUnavailable,
		PlanID:  "p3",
		Message: "maintenance",
		Retry:   func(ctx context.Context) authorize.Result { return authorize.Result{} },
	})
	assert.Contains(t, transient, "maintenance")
	assert.Contains(t, transient, "retryable")
}

func TestFormatBulkLine(t *testing.T) {
	assert.Equal(t, ui.IconPass+" queued p1", formatBulkLine("queued", planops.BulkResult{PlanID: "p1"}))
	assert.Contains(t, formatBulkLine("queued", planops.BulkResult{PlanID: "p2", Err: ui.ErrDeclined}), "skipped")
	assert.Contains(t, formatBulkLine("queued", planops.BulkResult{PlanID: "p3", Err: errors.New("boom")}), "p3: boom")
}

func TestPrintGeoResult(t *testing.T) {
	var buf bytes.Buffer
	printGeoResult(&buf, "p1", geoawareness.Result{
		Outcome:   geoawareness.NeedsAirspaceSelection,
		Airspaces: []geoawareness.Airspace{{ID: "LEMD", Name: "Madrid"}, {ID: "LEBL", Name: "Barcelona"}},
		Suggested: []geoawareness.Airspace{{ID: "LEMD", Name: "Madrid"}},
	})
	out := buf.String()
	assert.Contains(t, out, "LEMD  Madrid (suggested)")
	assert.Contains(t, out, "LEBL  Barcelona\n")

	buf.Reset()
	printGeoResult(&buf, "p1", geoawareness.Result{
		Outcome: geoawareness.Opened,
		View:    &geoawareness.LiveView{PlanID: "p1", AirspaceContext: "LEMD", ChannelRef: "ws://geo/live/p1"},
	})
	assert.Contains(t, buf.String(), "channel: ws://geo/live/p1")
}
