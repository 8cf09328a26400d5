package requests

import (
	"context"
	"database/sql"
)

const requestColumns = "id, requester_id, requester_name, catalog_id, media_type, title, poster_ref, status, admin_note, created_at, updated_at"

const historyColumns = "id, request_id, old_status, new_status, changed_by, note, created_at"

const userColumns = "user_id, username, role, granted_by, library_token, created_at, updated_at"

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRequest(scanner rowScanner) (*Request, error) {
	var (
		req        Request
		statusStr  string
		posterRef  sql.NullString
		adminNote  sql.NullString
		createdRaw string
		updatedRaw string
	)
	if err := scanner.Scan(
		&req.ID,
		&req.RequesterID,
		&req.RequesterName,
		&req.Media.CatalogID,
		&req.Media.MediaType,
		&req.Title,
		&posterRef,
		&statusStr,
		&adminNote,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}
	req.Status = Status(statusStr)
	req.PosterRef = posterRef.String
	req.AdminNote = adminNote.String
	req.CreatedAt = parseTime(createdRaw)
	req.UpdatedAt = parseTime(updatedRaw)
	return &req, nil
}

func scanHistory(scanner rowScanner) (HistoryEntry, error) {
	var (
		entry      HistoryEntry
		oldStatus  sql.NullString
		newStatus  string
		note       sql.NullString
		createdRaw string
	)
	if err := scanner.Scan(
		&entry.ID,
		&entry.RequestID,
		&oldStatus,
		&newStatus,
		&entry.ChangedBy,
		&note,
		&createdRaw,
	); err != nil {
		return HistoryEntry{}, err
	}
	entry.OldStatus = Status(oldStatus.String)
	entry.NewStatus = Status(newStatus)
	entry.Note = note.String
	entry.CreatedAt = parseTime(createdRaw)
	return entry, nil
}

func scanUser(scanner rowScanner) (*User, error) {
	var (
		user       User
		roleStr    string
		grantedBy  sql.NullString
		token      sql.NullString
		createdRaw string
		updatedRaw string
	)
	if err := scanner.Scan(
		&user.UserID,
		&user.Username,
		&roleStr,
		&grantedBy,
		&token,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}
	user.Role = Role(roleStr)
	user.GrantedBy = grantedBy.String
	user.LibraryToken = token.String
	user.CreatedAt = parseTime(createdRaw)
	user.UpdatedAt = parseTime(updatedRaw)
	return &user, nil
}

func insertHistory(ctx context.Context, tx *sql.Tx, entry HistoryEntry) error {
	var oldStatus sql.NullString
	if entry.OldStatus != "" {
		oldStatus = sql.NullString{String: string(entry.OldStatus), Valid: true}
	}
	_, err := tx.ExecContext(
		ctx,
		`INSERT INTO request_history (request_id, old_status, new_status, changed_by, note, created_at)
         VALUES (?, ?, ?, ?, ?, ?)`,
		entry.RequestID,
		oldStatus,
		string(entry.NewStatus),
		entry.ChangedBy,
		nullableString(entry.Note),
		formatTime(entry.CreatedAt),
	)
	return err
}
