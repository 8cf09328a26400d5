package testsupport

import (
	"context"
	"testing"

	"reqtrack/internal/config"
	"reqtrack/internal/requests"
)

// MustOpenStore opens a requests.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config, opts ...requests.Option) *requests.Store {
	t.Helper()

	store, err := requests.Open(cfg, opts...)
	if err != nil {
		t.Fatalf("requests.Open: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})
	return store
}

// NewRequest creates a pending request for tests using the provided store.
func NewRequest(t testing.TB, store *requests.Store, requesterID string, catalogID int64, mediaType, title string) *requests.Request {
	t.Helper()

	req, err := store.Create(context.Background(), requests.NewRequest{
		RequesterID:   requesterID,
		RequesterName: requesterID,
		Media:         requests.MediaRef{CatalogID: catalogID, MediaType: mediaType},
		Title:         title,
	})
	if err != nil {
		t.Fatalf("store.Create: %v", err)
	}
	return req
}

// LinkAdmin records an admin user holding token.
func LinkAdmin(t testing.TB, store *requests.Store, userID, token string) *requests.User {
	t.Helper()

	ctx := context.Background()
	if _, err := store.LinkUser(ctx, requests.UserLink{UserID: userID, Username: userID, LibraryToken: token}); err != nil {
		t.Fatalf("store.LinkUser: %v", err)
	}
	user, err := store.SetRole(ctx, userID, requests.RoleAdmin, "test")
	if err != nil {
		t.Fatalf("store.SetRole: %v", err)
	}
	return user
}
