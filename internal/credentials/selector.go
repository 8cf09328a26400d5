// Package credentials picks the library service credential that background
// reconciliation acts with.
package credentials

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"reqtrack/internal/requests"
)

// Credential is an admin identity with a library service token.
type Credential struct {
	UserID   string
	Username string
	Token    string
}

// Directory is the read-only view of the user directory the selector needs.
// requests.Store implements it.
type Directory interface {
	FirstAdminWithToken(ctx context.Context) (*requests.User, error)
}

// Selector chooses the admin credential for a reconciliation pass.
type Selector struct {
	dir Directory
}

// NewSelector builds a Selector over dir.
func NewSelector(dir Directory) *Selector {
	return &Selector{dir: dir}
}

// Select returns the most recently authenticated admin holding a non-empty
// library token. ok is false when no admin qualifies; err reports directory
// failures only.
func (s *Selector) Select(ctx context.Context) (Credential, bool, error) {
	if s == nil || s.dir == nil {
		return Credential{}, false, errors.New("credential selector: directory unavailable")
	}
	user, err := s.dir.FirstAdminWithToken(ctx)
	if errors.Is(err, requests.ErrNotFound) {
		return Credential{}, false, nil
	}
	if err != nil {
		return Credential{}, false, fmt.Errorf("select admin credential: %w", err)
	}
	token := strings.TrimSpace(user.LibraryToken)
	if token == "" {
		return Credential{}, false, nil
	}
	return Credential{UserID: user.UserID, Username: user.Username, Token: token}, true, nil
}
