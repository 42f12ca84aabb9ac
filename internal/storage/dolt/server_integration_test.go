//go:build integration

package dolt

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	doltmodule "github.com/testcontainers/testcontainers-go/modules/dolt"

	"github.com/fpw-project/fpw/internal/storage"
	"github.com/fpw-project/fpw/internal/types"
	"github.com/fpw-project/fpw/internal/uplan"
)

func setupServerStore(t *testing.T) *DoltStore {
	t.Helper()
	ctx := context.Background()

	ctr, err := doltmodule.Run(ctx, "dolthub/dolt-sql-server:1.32.4",
		doltmodule.WithDatabase("fpw"),
		doltmodule.WithUsername("fpw"),
		doltmodule.WithPassword("fpw-secret"),
	)
	t.Cleanup(func() { _ = testcontainers.TerminateContainer(ctr) })
	require.NoError(t, err)

	host, err := ctr.Host(ctx)
	require.NoError(t, err)
	port, err := ctr.MappedPort(ctx, "3306/tcp")
	require.NoError(t, err)

	store, err := New(ctx, &Config{
		ServerMode:     true,
		ServerHost:     host,
		ServerPort:     port.Int(),
		ServerUser:     "fpw",
		ServerPassword: "fpw-secret",
		Database:       "fpw",
		AutoCommit:     true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestServerStoreLifecycle(t *testing.T) {
	store := setupServerStore(t)
	ctx := context.Background()

	folder := &types.Folder{Name: "valencia"}
	require.NoError(t, store.CreateFolder(ctx, folder))

	plan := &types.FlightPlan{Name: "survey", FolderID: &folder.ID}
	require.NoError(t, store.CreatePlan(ctx, plan))

	at := time.Date(2025, 9, 1, 9, 0, 0, 0, time.UTC)
	_, err := store.PatchPlan(ctx, plan.ID, types.PlanUpdate{ScheduledAt: &at})
	require.NoError(t, err)

	processed := types.ProcessingProcessed
	doc := &uplan.Document{OperatorID: "ESP123"}
	got, err := store.PatchPlan(ctx, plan.ID, types.PlanUpdate{ProcessingStatus: &processed, AuthorizationDocument: doc})
	require.NoError(t, err)
	assert.Equal(t, "ESP123", got.AuthorizationDocument.OperatorID)

	later := at.Add(time.Hour)
	_, err = store.PatchPlan(ctx, plan.ID, types.PlanUpdate{ScheduledAt: &later})
	assert.ErrorIs(t, err, storage.ErrScheduleLocked)

	pending := types.AuthPending
	_, err = store.PatchPlan(ctx, plan.ID, types.PlanUpdate{AuthorizationStatus: &pending})
	require.NoError(t, err)

	got, err = store.ApplyDecision(ctx, plan.ID, types.AuthApproved, json.RawMessage(`{"ok":true}`))
	require.NoError(t, err)
	assert.Equal(t, types.AuthApproved, got.AuthorizationStatus)

	reloaded, err := store.GetPlan(ctx, plan.ID)
	require.NoError(t, err)
	require.NotNil(t, reloaded.ScheduledAt)
	assert.True(t, reloaded.ScheduledAt.Equal(at))
	assert.JSONEq(t, `{"ok":true}`, string(reloaded.AuthorizationMessage))

	events, err := store.GetEvents(ctx, plan.ID, 0)
	require.NoError(t, err)
	assert.NotEmpty(t, events)

	n, err := store.DeleteFolder(ctx, folder.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	_, err = store.GetPlan(ctx, plan.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}
