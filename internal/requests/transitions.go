package requests

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// Transition moves a request to status to and records who changed it.
//
// The read of the current status, the policy check, the row update, and the
// history insert share one immediate transaction; concurrent callers are
// serialized by SQLite and the last commit wins. A non-empty note replaces
// the request's admin note and an empty note leaves it untouched; the history
// entry always records the note passed to this call.
func (s *Store) Transition(ctx context.Context, id int64, to Status, changedBy, note string) (*Request, error) {
	if !to.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, to)
	}
	changedBy = strings.TrimSpace(changedBy)
	if changedBy == "" {
		return nil, fmt.Errorf("%w: changed_by is required", ErrInvalidRequest)
	}
	note = strings.TrimSpace(note)

	var updated *Request
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		req, err := getRequest(ctx, tx, id)
		if err != nil {
			return err
		}

		from := req.Status
		if err := s.policy(from, to); err != nil {
			if errors.Is(err, ErrTransitionRejected) {
				return err
			}
			return fmt.Errorf("%w: %s -> %s: %v", ErrTransitionRejected, from, to, err)
		}

		// Never move updated_at backwards, so history stays ordered even if
		// the wall clock steps back.
		now := s.stamp()
		if now.Before(req.UpdatedAt) {
			now = req.UpdatedAt
		}
		req.PreviousStatus = from
		req.Status = to
		req.UpdatedAt = now
		if note != "" {
			req.AdminNote = note
		}

		if _, err := tx.ExecContext(
			ctx,
			"UPDATE requests SET status = ?, admin_note = ?, updated_at = ? WHERE id = ?",
			string(req.Status),
			nullableString(req.AdminNote),
			formatTime(req.UpdatedAt),
			id,
		); err != nil {
			return fmt.Errorf("update request %d: %w", id, err)
		}
		if err := insertHistory(ctx, tx, HistoryEntry{
			RequestID: id,
			OldStatus: from,
			NewStatus: to,
			ChangedBy: changedBy,
			Note:      note,
			CreatedAt: now,
		}); err != nil {
			return fmt.Errorf("record history for request %d: %w", id, err)
		}
		updated = req
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}
