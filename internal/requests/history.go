package requests

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// History returns every status change for the request in the order it
// happened. The first entry is the creation entry with an empty OldStatus.
func (s *Store) History(ctx context.Context, id int64) ([]HistoryEntry, error) {
	_, entries, err := s.Detail(ctx, id)
	return entries, err
}

// Detail returns the request and its history read in one transaction, so the
// history tail always matches the returned status.
func (s *Store) Detail(ctx context.Context, id int64) (*Request, []HistoryEntry, error) {
	var (
		req     *Request
		entries []HistoryEntry
	)
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		if req, err = getRequest(ctx, tx, id); err != nil {
			return err
		}
		entries, err = listHistory(ctx, tx, id)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return req, entries, nil
}

func getRequest(ctx context.Context, q queryer, id int64) (*Request, error) {
	row := q.QueryRowContext(ctx, "SELECT "+requestColumns+" FROM requests WHERE id = ?", id)
	req, err := scanRequest(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("request %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load request %d: %w", id, err)
	}
	return req, nil
}

func listHistory(ctx context.Context, q queryer, id int64) ([]HistoryEntry, error) {
	rows, err := q.QueryContext(
		ctx,
		"SELECT "+historyColumns+" FROM request_history WHERE request_id = ? ORDER BY created_at ASC, id ASC",
		id,
	)
	if err != nil {
		return nil, fmt.Errorf("list history for request %d: %w", id, err)
	}
	defer rows.Close()

	var entries []HistoryEntry
	for rows.Next() {
		entry, err := scanHistory(rows)
		if err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history: %w", err)
	}
	return entries, nil
}
