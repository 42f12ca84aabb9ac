package fas

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fpw-project/fpw/internal/storage/memory"
	"github.com/fpw-project/fpw/internal/types"
	"github.com/fpw-project/fpw/internal/uplan"
)

func setupTestServer(t *testing.T) (*CallbackServer, *memory.MemoryStorage, []byte) {
	t.Helper()
	store := memory.New()
	secret := []byte("test-secret")
	return NewCallbackServer(ServerConfig{Store: store, Secret: secret}), store, secret
}

// createPendingPlan walks a plan to processed + pending, the state in which
// FAS decisions apply.
func createPendingPlan(t *testing.T, store *memory.MemoryStorage) *types.FlightPlan {
	t.Helper()
	ctx := context.Background()
	at := time.Date(2025, 9, 1, 9, 0, 0, 0, time.UTC)
	p := &types.FlightPlan{Name: "survey", ScheduledAt: &at}
	require.NoError(t, store.CreatePlan(ctx, p))

	processed := types.ProcessingProcessed
	_, err := store.PatchPlan(ctx, p.ID, types.PlanUpdate{
		ProcessingStatus:      &processed,
		AuthorizationDocument: &uplan.Document{OperatorID: "ESP1"},
	})
	require.NoError(t, err)
	pending := types.AuthPending
	got, err := store.PatchPlan(ctx, p.ID, types.PlanUpdate{AuthorizationStatus: &pending})
	require.NoError(t, err)
	return got
}

func postDecision(t *testing.T, server *CallbackServer, planID string, req DecisionRequest) (*httptest.ResponseRecorder, DecisionResponse) {
	t.Helper()
	body, err := json.Marshal(req)
	require.NoError(t, err)
	r := httptest.NewRequest(http.MethodPost, "/api/fas/plans/"+planID+"/decision", bytes.NewReader(body))
	w := httptest.NewRecorder()
	server.Handler().ServeHTTP(w, r)

	var resp DecisionResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return w, resp
}

func TestHandleDecision_Success(t *testing.T) {
	server, store, secret := setupTestServer(t)
	plan := createPendingPlan(t, store)
	token, err := GenerateToken(plan.ID, time.Now().Add(time.Hour), secret)
	require.NoError(t, err)

	w, resp := postDecision(t, server, plan.ID, DecisionRequest{
		Status:  types.AuthApproved,
		Message: json.RawMessage(`{"reason":"clear airspace"}`),
		Token:   token,
	})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, resp.Success)
	assert.Equal(t, "approved", resp.Status)

	got, err := store.GetPlan(context.Background(), plan.ID)
	require.NoError(t, err)
	assert.Equal(t, types.AuthApproved, got.AuthorizationStatus)
	assert.JSONEq(t, `{"reason":"clear airspace"}`, string(got.AuthorizationMessage))
}

func TestHandleDecision_Rejections(t *testing.T) {
	server, store, secret := setupTestServer(t)
	plan := createPendingPlan(t, store)
	other := createPendingPlan(t, store)

	valid, err := GenerateToken(plan.ID, time.Now().Add(time.Hour), secret)
	require.NoError(t, err)
	forOther, err := GenerateToken(other.ID, time.Now().Add(time.Hour), secret)
	require.NoError(t, err)
	forbidden, err := GenerateToken(plan.ID, time.Now().Add(time.Hour), []byte("wrong"))
	require.NoError(t, err)
	missing, err := GenerateToken("missing", time.Now().Add(time.Hour), secret)
	require.NoError(t, err)

	tests := []struct {
		name   string
		planID string
		req    DecisionRequest
		code   int
	}{
		{"pending is not a decision", plan.ID, DecisionRequest{Status: types.AuthPending, Token: valid}, http.StatusBadRequest},
		{"missing token", plan.ID, DecisionRequest{Status: types.AuthDenied}, http.StatusUnauthorized},
		{"bad signature", plan.ID, DecisionRequest{Status: types.AuthDenied, Token: forbidden}, http.StatusUnauthorized},
		{"token for other plan", plan.ID, DecisionRequest{Status: types.AuthDenied, Token: forOther}, http.StatusForbidden},
		{"unknown plan", "missing", DecisionRequest{Status: types.AuthDenied, Token: missing}, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, resp := postDecision(t, server, tt.planID, tt.req)
			assert.Equal(t, tt.code, w.Code)
			assert.False(t, resp.Success)
			assert.NotEmpty(t, resp.Error)
		})
	}

	got, err := store.GetPlan(context.Background(), plan.ID)
	require.NoError(t, err)
	assert.Equal(t, types.AuthPending, got.AuthorizationStatus, "rejected callbacks leave the plan untouched")
}

func TestHandleDecision_OnlyOnce(t *testing.T) {
	server, store, secret := setupTestServer(t)
	plan := createPendingPlan(t, store)
	token, err := GenerateToken(plan.ID, time.Now().Add(time.Hour), secret)
	require.NoError(t, err)

	w, _ := postDecision(t, server, plan.ID, DecisionRequest{Status: types.AuthDenied, Token: token})
	require.Equal(t, http.StatusOK, w.Code)

	w, resp := postDecision(t, server, plan.ID, DecisionRequest{Status: types.AuthApproved, Token: token})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.False(t, resp.Success)

	got, err := store.GetPlan(context.Background(), plan.ID)
	require.NoError(t, err)
	assert.Equal(t, types.AuthDenied, got.AuthorizationStatus)
}

func TestHealth(t *testing.T) {
	server, _, _ := setupTestServer(t)
	w := httptest.NewRecorder()
	server.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "ok")
}
