package requests

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// Create validates and inserts a new pending request together with its
// initial history entry.
func (s *Store) Create(ctx context.Context, in NewRequest) (*Request, error) {
	req, err := s.validateNew(in)
	if err != nil {
		return nil, err
	}

	err = s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(
			ctx,
			`INSERT INTO requests (requester_id, requester_name, catalog_id, media_type, title, poster_ref, status, admin_note, created_at, updated_at)
             VALUES (?, ?, ?, ?, ?, ?, ?, NULL, ?, ?)`,
			req.RequesterID,
			req.RequesterName,
			req.Media.CatalogID,
			req.Media.MediaType,
			req.Title,
			nullableString(req.PosterRef),
			string(req.Status),
			formatTime(req.CreatedAt),
			formatTime(req.UpdatedAt),
		)
		if err != nil {
			return fmt.Errorf("insert request: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("request id: %w", err)
		}
		req.ID = id
		if err := insertHistory(ctx, tx, HistoryEntry{
			RequestID: id,
			NewStatus: StatusPending,
			ChangedBy: req.RequesterID,
			CreatedAt: req.CreatedAt,
		}); err != nil {
			return fmt.Errorf("insert initial history: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return req, nil
}

func (s *Store) validateNew(in NewRequest) (*Request, error) {
	requesterID := strings.TrimSpace(in.RequesterID)
	if requesterID == "" {
		return nil, fmt.Errorf("%w: requester id is required", ErrInvalidRequest)
	}
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, fmt.Errorf("%w: title is required", ErrInvalidRequest)
	}
	if in.Media.CatalogID <= 0 {
		return nil, fmt.Errorf("%w: catalog id must be positive", ErrInvalidRequest)
	}
	mediaType := strings.ToLower(strings.TrimSpace(in.Media.MediaType))
	if _, ok := s.mediaTypes[mediaType]; !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidMediaType, in.Media.MediaType)
	}
	name := strings.TrimSpace(in.RequesterName)
	if name == "" {
		name = requesterID
	}
	now := s.stamp()
	return &Request{
		RequesterID:   requesterID,
		RequesterName: name,
		Media:         MediaRef{CatalogID: in.Media.CatalogID, MediaType: mediaType},
		Title:         title,
		PosterRef:     strings.TrimSpace(in.PosterRef),
		Status:        StatusPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

// SupportsMediaType reports whether Create accepts the media type.
func (s *Store) SupportsMediaType(mediaType string) bool {
	_, ok := s.mediaTypes[strings.ToLower(strings.TrimSpace(mediaType))]
	return ok
}

// Get fetches a request by id.
func (s *Store) Get(ctx context.Context, id int64) (*Request, error) {
	return getRequest(ctx, s.db, id)
}

// ListOpen returns every pending or approved request, oldest first.
func (s *Store) ListOpen(ctx context.Context) ([]*Request, error) {
	rows, err := s.db.QueryContext(
		ctx,
		"SELECT "+requestColumns+" FROM requests WHERE status IN (?, ?) ORDER BY created_at ASC, id ASC",
		string(StatusPending),
		string(StatusApproved),
	)
	if err != nil {
		return nil, fmt.Errorf("list open requests: %w", err)
	}
	defer rows.Close()
	return collectRequests(rows)
}

// FindOpenForMedia returns the requester's open request for the media, if any.
func (s *Store) FindOpenForMedia(ctx context.Context, ref MediaRef, requesterID string) (*Request, error) {
	row := s.db.QueryRowContext(
		ctx,
		"SELECT "+requestColumns+` FROM requests
         WHERE catalog_id = ? AND media_type = ? AND requester_id = ? AND status IN (?, ?)
         ORDER BY created_at DESC, id DESC LIMIT 1`,
		ref.CatalogID,
		strings.ToLower(strings.TrimSpace(ref.MediaType)),
		requesterID,
		string(StatusPending),
		string(StatusApproved),
	)
	req, err := scanRequest(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("open request for %s %d: %w", ref.MediaType, ref.CatalogID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("find open request: %w", err)
	}
	return req, nil
}

// List returns one page of requests matching the filter, newest first.
// Page is 1-based and the page size is clamped to the configured maximum.
func (s *Store) List(ctx context.Context, filter Filter) (Page, error) {
	var (
		clauses []string
		args    []any
	)
	if filter.Status != "" {
		if !filter.Status.Valid() {
			return Page{}, fmt.Errorf("%w: %q", ErrInvalidStatus, filter.Status)
		}
		clauses = append(clauses, "status = ?")
		args = append(args, string(filter.Status))
	}
	if requester := strings.TrimSpace(filter.RequesterID); requester != "" {
		clauses = append(clauses, "requester_id = ?")
		args = append(args, requester)
	}
	where := ""
	if len(clauses) > 0 {
		where = " WHERE " + strings.Join(clauses, " AND ")
	}

	page := max(filter.Page, 1)
	size := filter.PageSize
	if size <= 0 {
		size = s.defaultPageSize
	}
	size = min(size, s.maxPageSize)

	var total int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM requests"+where, args...).Scan(&total); err != nil {
		return Page{}, fmt.Errorf("count requests: %w", err)
	}

	queryArgs := append(append([]any{}, args...), size, (page-1)*size)
	rows, err := s.db.QueryContext(
		ctx,
		"SELECT "+requestColumns+" FROM requests"+where+" ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?",
		queryArgs...,
	)
	if err != nil {
		return Page{}, fmt.Errorf("list requests: %w", err)
	}
	defer rows.Close()
	items, err := collectRequests(rows)
	if err != nil {
		return Page{}, err
	}

	return Page{
		Items:      items,
		Total:      total,
		Page:       page,
		PageSize:   size,
		TotalPages: (total + size - 1) / size,
	}, nil
}

// Stats returns request counts keyed by status. Every known status is present.
func (s *Store) Stats(ctx context.Context) (map[Status]int, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT status, COUNT(*) FROM requests GROUP BY status")
	if err != nil {
		return nil, fmt.Errorf("request stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[Status]int, len(allStatuses))
	for _, status := range allStatuses {
		stats[status] = 0
	}
	for rows.Next() {
		var (
			status string
			count  int
		)
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scan stats: %w", err)
		}
		stats[Status(status)] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate stats: %w", err)
	}
	return stats, nil
}

// Summary returns the total request count alongside per-status counts.
func (s *Store) Summary(ctx context.Context) (Summary, error) {
	stats, err := s.Stats(ctx)
	if err != nil {
		return Summary{}, err
	}
	summary := Summary{ByStatus: stats}
	for _, count := range stats {
		summary.Total += count
	}
	return summary, nil
}

func collectRequests(rows *sql.Rows) ([]*Request, error) {
	var items []*Request
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("scan request: %w", err)
		}
		items = append(items, req)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate requests: %w", err)
	}
	return items, nil
}
