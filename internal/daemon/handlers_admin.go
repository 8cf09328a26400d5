package daemon

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"reqtrack/internal/logging"
	"reqtrack/internal/preflight"
	"reqtrack/internal/reconcile"
	"reqtrack/internal/requests"
)

type updateRequestBody struct {
	Status    string `json:"status"`
	AdminNote string `json:"admin_note"`
}

type updateUserBody struct {
	Role string `json:"role"`
}

// HealthResponse is the admin health payload.
type HealthResponse struct {
	Healthy bool               `json:"healthy"`
	Checks  []preflight.Result `json:"checks"`
}

// ReconcileResponse reports the last reconciliation pass, if any.
type ReconcileResponse struct {
	Enabled  bool                   `json:"enabled"`
	Running  bool                   `json:"running"`
	Interval string                 `json:"interval"`
	LastPass *reconcile.PassSummary `json:"last_pass"`
}

func (s *apiServer) handleAdminListRequests(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r)
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	filter.RequesterID = strings.TrimSpace(r.URL.Query().Get("user_id"))
	page, err := s.daemon.store.List(r.Context(), filter)
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, page)
}

func (s *apiServer) handleAdminUpdateRequest(w http.ResponseWriter, r *http.Request) {
	principal, _ := principalFrom(r.Context())
	id, err := requestID(r)
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	var body updateRequestBody
	if err := decodeJSON(w, r, &body); err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	status, ok := requests.ParseStatus(body.Status)
	if !ok {
		s.writeStoreError(w, r, fmt.Errorf("%w: %q", requests.ErrInvalidStatus, body.Status))
		return
	}

	req, err := s.daemon.store.Transition(r.Context(), id, status, principal.UserID, body.AdminNote)
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	s.log(r.Context()).Info("request status changed",
		logging.Int64(logging.FieldRequestID, req.ID),
		logging.String("status", string(req.Status)),
		logging.String("changed_by", principal.UserID),
	)
	s.daemon.notifyStatusChanged(r.Context(), req)
	s.writeJSON(w, http.StatusOK, req)
}

func (s *apiServer) handleAdminStats(w http.ResponseWriter, r *http.Request) {
	summary, err := s.daemon.store.Summary(r.Context())
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, summary)
}

func (s *apiServer) handleAdminListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.daemon.store.ListUsers(r.Context())
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	if users == nil {
		users = []*requests.User{}
	}
	s.writeJSON(w, http.StatusOK, users)
}

func (s *apiServer) handleAdminUpdateUser(w http.ResponseWriter, r *http.Request) {
	principal, _ := principalFrom(r.Context())
	userID := strings.TrimSpace(chi.URLParam(r, "id"))
	var body updateUserBody
	if err := decodeJSON(w, r, &body); err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	role, ok := requests.ParseRole(body.Role)
	if !ok {
		s.writeStoreError(w, r, fmt.Errorf("%w: role must be admin or user", requests.ErrInvalidRequest))
		return
	}
	if _, err := s.daemon.store.GetUser(r.Context(), userID); err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	if userID == principal.UserID && role != requests.RoleAdmin {
		s.writeStoreError(w, r, fmt.Errorf("%w: cannot remove your own admin access", requests.ErrInvalidRequest))
		return
	}

	user, err := s.daemon.store.SetRole(r.Context(), userID, role, principal.UserID)
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	s.log(r.Context()).Info("user role changed",
		logging.String("user_id", user.UserID),
		logging.String("role", string(user.Role)),
		logging.String("granted_by", principal.UserID),
	)
	s.writeJSON(w, http.StatusOK, user)
}

func (s *apiServer) handleAdminHealth(w http.ResponseWriter, r *http.Request) {
	results := s.daemon.Health(r.Context())
	s.writeJSON(w, http.StatusOK, HealthResponse{
		Healthy: preflight.AllPassed(results),
		Checks:  results,
	})
}

func (s *apiServer) handleAdminLastPass(w http.ResponseWriter, _ *http.Request) {
	status := s.daemon.Status()
	s.writeJSON(w, http.StatusOK, ReconcileResponse{
		Enabled:  status.ReconcileEnabled,
		Running:  status.ReconcileRunning,
		Interval: status.ReconcileEvery,
		LastPass: status.LastPass,
	})
}

func (s *apiServer) handleAdminReconcile(w http.ResponseWriter, r *http.Request) {
	summary, err := s.daemon.Reconcile(r.Context())
	if err != nil {
		logging.WarnWithContext(s.log(r.Context()), "manual reconciliation failed", "reconcile_manual_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "open requests were not checked"),
		)
		s.writeJSON(w, http.StatusBadGateway, summary)
		return
	}
	s.writeJSON(w, http.StatusOK, summary)
}
