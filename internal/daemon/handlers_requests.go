package daemon

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"reqtrack/internal/logging"
	"reqtrack/internal/requests"
)

type createRequestBody struct {
	CatalogID int64  `json:"catalog_id"`
	MediaType string `json:"media_type"`
	Title     string `json:"title"`
	PosterRef string `json:"poster_ref"`
}

// RequestDetail is a request together with its status history.
type RequestDetail struct {
	*requests.Request
	History []requests.HistoryEntry `json:"history"`
}

func (s *apiServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	state := "ok"
	if err := s.daemon.store.Ping(r.Context()); err != nil {
		status = http.StatusServiceUnavailable
		state = "degraded"
	}
	s.writeJSON(w, status, map[string]string{"status": state})
}

func (s *apiServer) handleCreateRequest(w http.ResponseWriter, r *http.Request) {
	principal, _ := principalFrom(r.Context())
	var body createRequestBody
	if err := decodeJSON(w, r, &body); err != nil {
		s.writeStoreError(w, r, err)
		return
	}

	ref := requests.MediaRef{CatalogID: body.CatalogID, MediaType: body.MediaType}
	existing, err := s.daemon.store.FindOpenForMedia(r.Context(), ref, principal.UserID)
	switch {
	case err == nil:
		s.writeStoreError(w, r, fmt.Errorf("%w: request %d is already %s", requests.ErrDuplicateRequest, existing.ID, existing.Status))
		return
	case !errors.Is(err, requests.ErrNotFound):
		s.writeStoreError(w, r, err)
		return
	}

	req, err := s.daemon.store.Create(r.Context(), requests.NewRequest{
		RequesterID:   principal.UserID,
		RequesterName: principal.Username,
		Media:         ref,
		Title:         body.Title,
		PosterRef:     body.PosterRef,
	})
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	s.log(r.Context()).Info("request created",
		logging.Int64(logging.FieldRequestID, req.ID),
		logging.String("requester", req.RequesterID),
		logging.String("media_type", req.Media.MediaType),
		logging.Int64("catalog_id", req.Media.CatalogID),
	)
	s.daemon.notifyCreated(r.Context(), req)
	s.writeJSON(w, http.StatusCreated, req)
}

func (s *apiServer) handleListOwnRequests(w http.ResponseWriter, r *http.Request) {
	principal, _ := principalFrom(r.Context())
	filter, err := parseFilter(r)
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	filter.RequesterID = principal.UserID
	page, err := s.daemon.store.List(r.Context(), filter)
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, page)
}

func (s *apiServer) handleGetRequest(w http.ResponseWriter, r *http.Request) {
	principal, _ := principalFrom(r.Context())
	id, err := requestID(r)
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	req, history, err := s.daemon.store.Detail(r.Context(), id)
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	// Other users' requests are reported as missing.
	if !principal.Admin && req.RequesterID != principal.UserID {
		s.writeStoreError(w, r, fmt.Errorf("request %d: %w", id, requests.ErrNotFound))
		return
	}
	s.writeJSON(w, http.StatusOK, RequestDetail{Request: req, History: history})
}

func requestID(r *http.Request) (int64, error) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: invalid request id %q", requests.ErrInvalidRequest, raw)
	}
	return id, nil
}

func parseFilter(r *http.Request) (requests.Filter, error) {
	query := r.URL.Query()
	var filter requests.Filter
	if raw := strings.TrimSpace(query.Get("status")); raw != "" {
		status, ok := requests.ParseStatus(raw)
		if !ok {
			return filter, fmt.Errorf("%w: %q", requests.ErrInvalidStatus, raw)
		}
		filter.Status = status
	}
	var err error
	if filter.Page, err = positiveInt(query.Get("page"), "page"); err != nil {
		return filter, err
	}
	if filter.PageSize, err = positiveInt(query.Get("limit"), "limit"); err != nil {
		return filter, err
	}
	return filter, nil
}

func positiveInt(raw, name string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 1 {
		return 0, fmt.Errorf("%w: %s must be a positive integer", requests.ErrInvalidRequest, name)
	}
	return value, nil
}
