package library_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"reqtrack/internal/credentials"
	"reqtrack/internal/library"
	"reqtrack/internal/requests"
	"reqtrack/internal/services/jellyfin"
	"reqtrack/internal/testsupport"
)

type stubSearcher struct {
	items []jellyfin.Item
	err   error
	calls []jellyfin.SearchQuery
	auths []jellyfin.Auth
}

func (s *stubSearcher) Search(_ context.Context, auth jellyfin.Auth, q jellyfin.SearchQuery) ([]jellyfin.Item, error) {
	s.calls = append(s.calls, q)
	s.auths = append(s.auths, auth)
	return s.items, s.err
}

var adminCred = credentials.Credential{UserID: "admin-1", Username: "root", Token: "tok"}

func movieRequest(catalogID int64) *requests.Request {
	return &requests.Request{
		ID:     1,
		Title:  "Fight Club",
		Media:  requests.MediaRef{CatalogID: catalogID, MediaType: "movie"},
		Status: requests.StatusPending,
	}
}

func TestCheckMatchesOnProviderID(t *testing.T) {
	search := &stubSearcher{items: []jellyfin.Item{
		{ID: "x", Name: "Fight Club (fan edit)", ProviderIDs: map[string]string{"Imdb": "tt0137523"}},
		{ID: "y", Name: "Fight Club", ProviderIDs: map[string]string{"Tmdb": "550"}},
		{ID: "z", Name: "Fight Club", ProviderIDs: map[string]string{"Tmdb": "550"}},
	}}
	m := library.NewMatcher(testsupport.NewConfig(t), search, nil)

	res := m.Check(context.Background(), movieRequest(550), adminCred)
	if res.Outcome != library.OutcomeMatch {
		t.Fatalf("expected match, got %+v", res)
	}
	if res.ItemID != "y" {
		t.Fatalf("expected first matching item, got %q", res.ItemID)
	}
	if len(search.calls) != 1 {
		t.Fatalf("expected one search, got %d", len(search.calls))
	}
	q := search.calls[0]
	if q.Term != "Fight Club" || q.ItemType != "Movie" || q.Limit != 10 {
		t.Fatalf("unexpected query: %+v", q)
	}
	if search.auths[0] != (jellyfin.Auth{UserID: "admin-1", Token: "tok"}) {
		t.Fatalf("unexpected auth: %+v", search.auths[0])
	}
}

func TestCheckTitleAloneDoesNotMatch(t *testing.T) {
	search := &stubSearcher{items: []jellyfin.Item{
		{ID: "y", Name: "Fight Club", ProviderIDs: map[string]string{"Tmdb": "550"}},
	}}
	m := library.NewMatcher(testsupport.NewConfig(t), search, nil)

	res := m.Check(context.Background(), movieRequest(551), adminCred)
	if res.Outcome != library.OutcomeNoMatch {
		t.Fatalf("expected no_match, got %+v", res)
	}
}

func TestCheckTVUsesSeriesItemType(t *testing.T) {
	search := &stubSearcher{items: []jellyfin.Item{{ID: "s", ProviderIDs: map[string]string{"Tmdb": "1399"}}}}
	m := library.NewMatcher(testsupport.NewConfig(t), search, nil)

	req := &requests.Request{ID: 2, Title: "Game of Thrones", Media: requests.MediaRef{CatalogID: 1399, MediaType: "tv"}}
	res := m.Check(context.Background(), req, adminCred)
	if res.Outcome != library.OutcomeMatch {
		t.Fatalf("expected match, got %+v", res)
	}
	if search.calls[0].ItemType != "Series" {
		t.Fatalf("expected Series item type, got %q", search.calls[0].ItemType)
	}
}

func TestCheckUnsupportedMediaTypeSkipsNetwork(t *testing.T) {
	search := &stubSearcher{}
	m := library.NewMatcher(testsupport.NewConfig(t), search, nil)

	req := &requests.Request{ID: 3, Title: "Dune", Media: requests.MediaRef{CatalogID: 42, MediaType: "book"}}
	res := m.Check(context.Background(), req, adminCred)
	if res.Outcome != library.OutcomeNoMatch || res.Reason != library.ReasonUnsupportedMediaType {
		t.Fatalf("expected unsupported no_match, got %+v", res)
	}
	if len(search.calls) != 0 {
		t.Fatalf("expected no search for books, got %d", len(search.calls))
	}
}

func TestCheckClassifiesErrors(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want library.Outcome
	}{
		{name: "unauthorized", err: fmt.Errorf("search: %w", jellyfin.ErrUnauthorized), want: library.OutcomeAuthFailed},
		{name: "unavailable", err: fmt.Errorf("search: %w", jellyfin.ErrUnavailable), want: library.OutcomeError},
		{name: "other", err: errors.New("boom"), want: library.OutcomeError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			m := library.NewMatcher(testsupport.NewConfig(t), &stubSearcher{err: tc.err}, nil)
			res := m.Check(context.Background(), movieRequest(550), adminCred)
			if res.Outcome != tc.want {
				t.Fatalf("expected %s, got %+v", tc.want, res)
			}
			if !errors.Is(res.Err, tc.err) {
				t.Fatalf("expected error to be carried, got %v", res.Err)
			}
		})
	}
}

func TestCheckHonoursProviderKey(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Library.ProviderKey = "Tvdb"
	search := &stubSearcher{items: []jellyfin.Item{{ID: "a", ProviderIDs: map[string]string{"Tmdb": "550", "Tvdb": "81189"}}}}
	m := library.NewMatcher(cfg, search, nil)

	if res := m.Check(context.Background(), movieRequest(550), adminCred); res.Outcome != library.OutcomeNoMatch {
		t.Fatalf("expected Tmdb id to be ignored, got %+v", res)
	}
	if res := m.Check(context.Background(), movieRequest(81189), adminCred); res.Outcome != library.OutcomeMatch {
		t.Fatalf("expected Tvdb match, got %+v", res)
	}
}
