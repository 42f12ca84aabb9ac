package fas

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/fpw-project/fpw/internal/storage"
	"github.com/fpw-project/fpw/internal/types"
)

// DecisionStore records FAS decisions. storage.Storage satisfies it.
type DecisionStore interface {
	ApplyDecision(ctx context.Context, id string, status types.AuthorizationStatus, message json.RawMessage) (*types.FlightPlan, error)
}

// CallbackServer receives FAS decisions. It is the only writer of the
// approved and denied authorization statuses.
type CallbackServer struct {
	store      DecisionStore
	secret     []byte
	log        *slog.Logger
	mux        *http.ServeMux
	httpServer *http.Server
	now        func() time.Time
}

// ServerConfig holds configuration for the callback server.
type ServerConfig struct {
	Store  DecisionStore
	Secret []byte // HMAC secret for token validation
	Log    *slog.Logger
}

// NewCallbackServer creates a new callback server.
func NewCallbackServer(cfg ServerConfig) *CallbackServer {
	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}
	s := &CallbackServer{
		store:  cfg.Store,
		secret: cfg.Secret,
		log:    log,
		mux:    http.NewServeMux(),
		now:    time.Now,
	}

	s.mux.HandleFunc("POST /api/fas/plans/{id}/decision", s.handleDecision)
	s.mux.HandleFunc("GET /health", s.handleHealth)

	return s
}

// Start serves on addr until Shutdown is called.
func (s *CallbackServer) Start(addr string) error {
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	s.log.Info("FAS callback server listening", "addr", addr)
	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown gracefully shuts down the server.
func (s *CallbackServer) Shutdown(ctx context.Context) error {
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}

// Handler returns the HTTP handler for use with custom servers.
func (s *CallbackServer) Handler() http.Handler {
	return s.mux
}

// DecisionRequest is the JSON body FAS posts with its decision.
type DecisionRequest struct {
	Status  types.AuthorizationStatus `json:"status"`  // approved or denied
	Message json.RawMessage           `json:"message"` // free-form, stored verbatim
	Token   string                    `json:"token"`   // callback token issued at submission
}

// DecisionResponse is the JSON response body.
type DecisionResponse struct {
	Success   bool   `json:"success"`
	PlanID    string `json:"plan_id,omitempty"`
	Status    string `json:"status,omitempty"`
	DecidedAt string `json:"decided_at,omitempty"`
	Error     string `json:"error,omitempty"`
}

// handleDecision handles POST /api/fas/plans/{id}/decision
func (s *CallbackServer) handleDecision(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	planID := r.PathValue("id")
	if planID == "" {
		s.writeError(w, http.StatusBadRequest, "missing plan ID in path")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "failed to read request body")
		return
	}
	defer func() { _ = r.Body.Close() }()

	var req DecisionRequest
	if err := json.Unmarshal(body, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %v", err))
		return
	}
	if !req.Status.IsDecided() {
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf("status must be approved or denied, got %q", req.Status))
		return
	}
	if req.Token == "" {
		s.writeError(w, http.StatusUnauthorized, "missing token")
		return
	}

	claims, err := ValidateToken(req.Token, s.secret, s.now())
	if err != nil {
		s.writeError(w, http.StatusUnauthorized, fmt.Sprintf("invalid token: %v", err))
		return
	}
	if claims.PlanID != planID {
		s.writeError(w, http.StatusForbidden, "token is for a different plan")
		return
	}

	var message json.RawMessage
	if len(req.Message) > 0 && string(req.Message) != "null" {
		message = req.Message
	}
	plan, err := s.store.ApplyDecision(r.Context(), planID, req.Status, message)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		s.writeError(w, http.StatusNotFound, fmt.Sprintf("plan %s not found", planID))
		return
	case errors.Is(err, storage.ErrInvalidTransition):
		s.writeError(w, http.StatusConflict, err.Error())
		return
	case err != nil:
		s.log.Error("failed to record FAS decision", "plan_id", planID, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to record decision")
		return
	}

	s.log.Info("FAS decision recorded", "plan_id", planID, "status", plan.AuthorizationStatus)
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(DecisionResponse{
		Success:   true,
		PlanID:    planID,
		Status:    string(plan.AuthorizationStatus),
		DecidedAt: plan.UpdatedAt.Format(time.RFC3339),
	})
}

// handleHealth handles GET /health for load balancer checks.
func (s *CallbackServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// writeError writes a JSON error response.
func (s *CallbackServer) writeError(w http.ResponseWriter, status int, message string) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(DecisionResponse{
		Success: false,
		Error:   message,
	})
}
