package requests

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// LinkUser records a user's identity and latest library token, creating the
// user with RoleUser on first sight. An empty token leaves the stored token
// unchanged.
func (s *Store) LinkUser(ctx context.Context, link UserLink) (*User, error) {
	userID := strings.TrimSpace(link.UserID)
	if userID == "" {
		return nil, fmt.Errorf("%w: user id is required", ErrInvalidRequest)
	}
	username := strings.TrimSpace(link.Username)
	if username == "" {
		username = userID
	}
	now := formatTime(s.stamp())

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(
			ctx,
			`INSERT INTO user_roles (user_id, username, role, library_token, created_at, updated_at)
             VALUES (?, ?, ?, ?, ?, ?)
             ON CONFLICT(user_id) DO UPDATE SET
                 username = excluded.username,
                 library_token = COALESCE(excluded.library_token, user_roles.library_token),
                 updated_at = MAX(excluded.updated_at, user_roles.updated_at)`,
			userID,
			username,
			string(RoleUser),
			nullableString(strings.TrimSpace(link.LibraryToken)),
			now,
			now,
		)
		if err != nil {
			return fmt.Errorf("link user %s: %w", userID, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.GetUser(ctx, userID)
}

// SetRole changes a user's role and records who granted it.
func (s *Store) SetRole(ctx context.Context, userID string, role Role, grantedBy string) (*User, error) {
	if role != RoleUser && role != RoleAdmin {
		return nil, fmt.Errorf("%w: role must be user or admin", ErrInvalidRequest)
	}
	grantedBy = strings.TrimSpace(grantedBy)
	if grantedBy == "" {
		return nil, fmt.Errorf("%w: granted_by is required", ErrInvalidRequest)
	}

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(
			ctx,
			"UPDATE user_roles SET role = ?, granted_by = ?, updated_at = MAX(?, updated_at) WHERE user_id = ?",
			string(role),
			grantedBy,
			formatTime(s.stamp()),
			userID,
		)
		if err != nil {
			return fmt.Errorf("set role for %s: %w", userID, err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("set role for %s: %w", userID, err)
		}
		if affected == 0 {
			return fmt.Errorf("user %s: %w", userID, ErrNotFound)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.GetUser(ctx, userID)
}

// GetUser fetches a user by id.
func (s *Store) GetUser(ctx context.Context, userID string) (*User, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+userColumns+" FROM user_roles WHERE user_id = ?", userID)
	user, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("user %s: %w", userID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get user %s: %w", userID, err)
	}
	return user, nil
}

// ListUsers returns every known user ordered by username.
func (s *Store) ListUsers(ctx context.Context) ([]*User, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+userColumns+" FROM user_roles ORDER BY username ASC, user_id ASC")
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var users []*User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate users: %w", err)
	}
	return users, nil
}

// FirstAdminWithToken returns the most recently updated admin holding a
// library token. It returns ErrNotFound when no admin qualifies.
func (s *Store) FirstAdminWithToken(ctx context.Context) (*User, error) {
	row := s.db.QueryRowContext(
		ctx,
		"SELECT "+userColumns+` FROM user_roles
         WHERE role = ? AND library_token IS NOT NULL AND TRIM(library_token) != ''
         ORDER BY updated_at DESC, user_id ASC LIMIT 1`,
		string(RoleAdmin),
	)
	user, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("admin with library token: %w", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("find admin credential: %w", err)
	}
	return user, nil
}
