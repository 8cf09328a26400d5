package daemon

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"reqtrack/internal/reconcile"
	"reqtrack/internal/requests"
	"reqtrack/internal/services/jellyfin"
	"reqtrack/internal/testsupport"
)

type apiFixture struct {
	t       *testing.T
	daemon  *Daemon
	store   *requests.Store
	handler http.Handler
}

func newAPIFixture(t *testing.T, opts ...testsupport.ConfigOption) *apiFixture {
	t.Helper()
	cfg := testsupport.NewConfig(t, opts...)
	store := testsupport.MustOpenStore(t, cfg)
	d, err := New(cfg, store, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return &apiFixture{t: t, daemon: d, store: store, handler: d.api.handler}
}

func (f *apiFixture) token(userID string, admin bool) string {
	f.t.Helper()
	token, err := SignToken("test-secret", "", Claims{UserID: userID, Username: "name-" + userID, IsAdmin: admin})
	if err != nil {
		f.t.Fatalf("SignToken: %v", err)
	}
	return token
}

func (f *apiFixture) libraryToken(userID, libraryToken string) string {
	f.t.Helper()
	token, err := SignToken("test-secret", "", Claims{UserID: userID, Username: "name-" + userID, LibraryToken: libraryToken})
	if err != nil {
		f.t.Fatalf("SignToken: %v", err)
	}
	return token
}

func (f *apiFixture) do(method, path, token string, body any) *httptest.ResponseRecorder {
	f.t.Helper()
	var payload bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&payload).Encode(body); err != nil {
			f.t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &payload)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, req)
	return w
}

func decodeBody[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response %q: %v", w.Body.String(), err)
	}
	return out
}

func TestHealthNeedsNoToken(t *testing.T) {
	f := newAPIFixture(t)
	w := f.do(http.MethodGet, "/api/health", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if w.Header().Get(correlationHeader) == "" {
		t.Fatal("expected correlation id header")
	}
}

func TestRejectsMissingAndForgedTokens(t *testing.T) {
	f := newAPIFixture(t)
	if w := f.do(http.MethodGet, "/api/requests", "", nil); w.Code != http.StatusUnauthorized {
		t.Fatalf("missing token: expected 401, got %d", w.Code)
	}
	forged, err := SignToken("other-secret", "", Claims{UserID: "u1"})
	if err != nil {
		t.Fatalf("SignToken: %v", err)
	}
	if w := f.do(http.MethodGet, "/api/requests", forged, nil); w.Code != http.StatusUnauthorized {
		t.Fatalf("forged token: expected 401, got %d", w.Code)
	}
	noUser, err := SignToken("test-secret", "", Claims{Username: "ghost"})
	if err != nil {
		t.Fatalf("SignToken: %v", err)
	}
	if w := f.do(http.MethodGet, "/api/requests", noUser, nil); w.Code != http.StatusUnauthorized {
		t.Fatalf("token without user: expected 401, got %d", w.Code)
	}
}

func TestIssuerIsEnforcedWhenConfigured(t *testing.T) {
	f := newAPIFixture(t)
	f.daemon.api.verifier = newTokenVerifier("test-secret", "reqtrack")

	wrong, err := SignToken("test-secret", "elsewhere", Claims{UserID: "u1"})
	if err != nil {
		t.Fatalf("SignToken: %v", err)
	}
	if w := f.do(http.MethodGet, "/api/requests", wrong, nil); w.Code != http.StatusUnauthorized {
		t.Fatalf("wrong issuer: expected 401, got %d", w.Code)
	}
	right, err := SignToken("test-secret", "reqtrack", Claims{UserID: "u1"})
	if err != nil {
		t.Fatalf("SignToken: %v", err)
	}
	if w := f.do(http.MethodGet, "/api/requests", right, nil); w.Code != http.StatusOK {
		t.Fatalf("matching issuer: expected 200, got %d (%s)", w.Code, w.Body.String())
	}
}

func TestCreateRequestAndRejectDuplicate(t *testing.T) {
	f := newAPIFixture(t)
	token := f.token("u1", false)
	body := createRequestBody{CatalogID: 550, MediaType: "movie", Title: "Fight Club"}

	w := f.do(http.MethodPost, "/api/requests", token, body)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (%s)", w.Code, w.Body.String())
	}
	created := decodeBody[requests.Request](t, w)
	if created.Status != requests.StatusPending || created.RequesterID != "u1" || created.RequesterName != "name-u1" {
		t.Fatalf("unexpected request: %+v", created)
	}

	if w := f.do(http.MethodPost, "/api/requests", token, body); w.Code != http.StatusConflict {
		t.Fatalf("duplicate: expected 409, got %d", w.Code)
	}
	// Another user may request the same title.
	if w := f.do(http.MethodPost, "/api/requests", f.token("u2", false), body); w.Code != http.StatusCreated {
		t.Fatalf("second requester: expected 201, got %d", w.Code)
	}
}

func TestCreateRequestValidation(t *testing.T) {
	f := newAPIFixture(t)
	token := f.token("u1", false)
	cases := []struct {
		name string
		body any
	}{
		{name: "unknown media type", body: createRequestBody{CatalogID: 1, MediaType: "podcast", Title: "x"}},
		{name: "missing title", body: createRequestBody{CatalogID: 1, MediaType: "movie"}},
		{name: "bad catalog id", body: createRequestBody{CatalogID: 0, MediaType: "movie", Title: "x"}},
		{name: "unknown field", body: map[string]any{"catalog_id": 1, "media_type": "movie", "title": "x", "extra": true}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if w := f.do(http.MethodPost, "/api/requests", token, tc.body); w.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d (%s)", w.Code, w.Body.String())
			}
		})
	}
}

func TestUsersSeeOnlyTheirOwnRequests(t *testing.T) {
	f := newAPIFixture(t)
	mine := testsupport.NewRequest(t, f.store, "u1", 550, "movie", "Fight Club")
	theirs := testsupport.NewRequest(t, f.store, "u2", 603, "movie", "The Matrix")
	token := f.token("u1", false)

	w := f.do(http.MethodGet, "/api/requests", token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	page := decodeBody[requests.Page](t, w)
	if page.Total != 1 || len(page.Items) != 1 || page.Items[0].ID != mine.ID {
		t.Fatalf("unexpected page: %+v", page)
	}

	if w := f.do(http.MethodGet, fmt.Sprintf("/api/requests/%d", theirs.ID), token, nil); w.Code != http.StatusNotFound {
		t.Fatalf("foreign request: expected 404, got %d", w.Code)
	}
	w = f.do(http.MethodGet, fmt.Sprintf("/api/requests/%d", mine.ID), token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("own request: expected 200, got %d", w.Code)
	}
	detail := decodeBody[RequestDetail](t, w)
	if detail.Request == nil || detail.ID != mine.ID || len(detail.History) != 1 {
		t.Fatalf("unexpected detail: %+v", detail)
	}
	if w := f.do(http.MethodGet, "/api/requests/abc", token, nil); w.Code != http.StatusBadRequest {
		t.Fatalf("bad id: expected 400, got %d", w.Code)
	}
}

func TestAdminRoutesRequireAdmin(t *testing.T) {
	f := newAPIFixture(t)
	w := f.do(http.MethodGet, "/api/admin/stats", f.token("u1", false), nil)
	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", w.Code)
	}
}

func TestFirstSeenAdminClaimIsStored(t *testing.T) {
	f := newAPIFixture(t)
	token, err := SignToken("test-secret", "", Claims{UserID: "admin-1", Username: "root", IsAdmin: true, LibraryToken: "jf-token"})
	if err != nil {
		t.Fatalf("SignToken: %v", err)
	}
	if w := f.do(http.MethodGet, "/api/admin/stats", token, nil); w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	user, err := f.store.GetUser(context.Background(), "admin-1")
	if err != nil {
		t.Fatalf("GetUser: %v", err)
	}
	if user.Role != requests.RoleAdmin || user.LibraryToken != "jf-token" || user.GrantedBy != requests.SystemActor {
		t.Fatalf("unexpected stored admin: %+v", user)
	}
	cred, ok, err := f.daemon.selector.Select(context.Background())
	if err != nil || !ok || cred.UserID != "admin-1" {
		t.Fatalf("expected admin credential to be selectable, got %+v ok=%v err=%v", cred, ok, err)
	}
}

func TestAdminUpdatesRequestStatus(t *testing.T) {
	f := newAPIFixture(t)
	req := testsupport.NewRequest(t, f.store, "u1", 550, "movie", "Fight Club")
	admin := f.token("admin-1", true)
	path := fmt.Sprintf("/api/admin/requests/%d", req.ID)

	w := f.do(http.MethodPatch, path, admin, updateRequestBody{Status: "approved", AdminNote: "queued"})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", w.Code, w.Body.String())
	}
	updated := decodeBody[requests.Request](t, w)
	if updated.Status != requests.StatusApproved || updated.AdminNote != "queued" {
		t.Fatalf("unexpected update: %+v", updated)
	}
	history, err := f.store.History(context.Background(), req.ID)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	last := history[len(history)-1]
	if last.NewStatus != requests.StatusApproved || last.ChangedBy != "admin-1" || last.OldStatus != requests.StatusPending {
		t.Fatalf("unexpected history tail: %+v", last)
	}

	if w := f.do(http.MethodPatch, path, admin, updateRequestBody{Status: "archived"}); w.Code != http.StatusBadRequest {
		t.Fatalf("invalid status: expected 400, got %d", w.Code)
	}
	if w := f.do(http.MethodPatch, "/api/admin/requests/9999", admin, updateRequestBody{Status: "denied"}); w.Code != http.StatusNotFound {
		t.Fatalf("missing request: expected 404, got %d", w.Code)
	}
}

func TestAdminListFiltersAndStats(t *testing.T) {
	f := newAPIFixture(t)
	testsupport.NewRequest(t, f.store, "u1", 1, "movie", "One")
	second := testsupport.NewRequest(t, f.store, "u2", 2, "tv", "Two")
	testsupport.NewRequest(t, f.store, "u2", 3, "book", "Three")
	if _, err := f.store.Transition(context.Background(), second.ID, requests.StatusDenied, "admin-1", "no"); err != nil {
		t.Fatalf("Transition: %v", err)
	}
	admin := f.token("admin-1", true)

	page := decodeBody[requests.Page](t, f.do(http.MethodGet, "/api/admin/requests?user_id=u2&limit=1&page=2", admin, nil))
	if page.Total != 2 || page.TotalPages != 2 || page.PageSize != 1 || len(page.Items) != 1 {
		t.Fatalf("unexpected page: %+v", page)
	}
	denied := decodeBody[requests.Page](t, f.do(http.MethodGet, "/api/admin/requests?status=denied", admin, nil))
	if denied.Total != 1 || denied.Items[0].ID != second.ID {
		t.Fatalf("unexpected denied page: %+v", denied)
	}
	if w := f.do(http.MethodGet, "/api/admin/requests?status=bogus", admin, nil); w.Code != http.StatusBadRequest {
		t.Fatalf("bad status filter: expected 400, got %d", w.Code)
	}
	if w := f.do(http.MethodGet, "/api/admin/requests?limit=0", admin, nil); w.Code != http.StatusBadRequest {
		t.Fatalf("bad limit: expected 400, got %d", w.Code)
	}

	summary := decodeBody[requests.Summary](t, f.do(http.MethodGet, "/api/admin/stats", admin, nil))
	if summary.Total != 3 || summary.ByStatus[requests.StatusPending] != 2 || summary.ByStatus[requests.StatusDenied] != 1 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
}

func TestAdminRoleChanges(t *testing.T) {
	f := newAPIFixture(t)
	admin := f.token("admin-1", true)
	// Seen once so the directory knows the user.
	if w := f.do(http.MethodGet, "/api/requests", f.token("u1", false), nil); w.Code != http.StatusOK {
		t.Fatalf("seed user: expected 200, got %d", w.Code)
	}

	w := f.do(http.MethodPatch, "/api/admin/users/u1", admin, updateUserBody{Role: "admin"})
	if w.Code != http.StatusOK {
		t.Fatalf("promote: expected 200, got %d (%s)", w.Code, w.Body.String())
	}
	user := decodeBody[requests.User](t, w)
	if user.Role != requests.RoleAdmin || user.GrantedBy != "admin-1" {
		t.Fatalf("unexpected user: %+v", user)
	}

	if w := f.do(http.MethodPatch, "/api/admin/users/admin-1", admin, updateUserBody{Role: "user"}); w.Code != http.StatusBadRequest {
		t.Fatalf("self demotion: expected 400, got %d", w.Code)
	}
	if w := f.do(http.MethodPatch, "/api/admin/users/nobody", admin, updateUserBody{Role: "user"}); w.Code != http.StatusNotFound {
		t.Fatalf("unknown user: expected 404, got %d", w.Code)
	}
	if w := f.do(http.MethodPatch, "/api/admin/users/u1", admin, updateUserBody{Role: "owner"}); w.Code != http.StatusBadRequest {
		t.Fatalf("bad role: expected 400, got %d", w.Code)
	}

	users := decodeBody[[]requests.User](t, f.do(http.MethodGet, "/api/admin/users", admin, nil))
	if len(users) != 2 {
		t.Fatalf("expected 2 users, got %+v", users)
	}
}

func TestAdminReconcileFulfillsMatches(t *testing.T) {
	library := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"Items":[{"Id":"a1","Name":"Fight Club","Type":"Movie","ProviderIds":{"Tmdb":"550"}}]}`))
	}))
	defer library.Close()

	f := newAPIFixture(t, testsupport.WithLibraryURL(library.URL))
	testsupport.LinkAdmin(t, f.store, "admin-1", "jf-token")
	match := testsupport.NewRequest(t, f.store, "u1", 550, "movie", "Fight Club")
	miss := testsupport.NewRequest(t, f.store, "u1", 551, "movie", "Fight Club")
	admin := f.token("admin-1", true)

	w := f.do(http.MethodPost, "/api/admin/reconcile", admin, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", w.Code, w.Body.String())
	}
	summary := decodeBody[reconcile.PassSummary](t, w)
	if summary.Fulfilled != 1 || summary.NoMatch != 1 {
		t.Fatalf("unexpected summary: %+v", summary)
	}

	got, err := f.store.Get(context.Background(), match.ID)
	if err != nil || got.Status != requests.StatusFulfilled {
		t.Fatalf("expected match fulfilled, got %+v err=%v", got, err)
	}
	got, err = f.store.Get(context.Background(), miss.ID)
	if err != nil || got.Status != requests.StatusPending {
		t.Fatalf("expected miss pending, got %+v err=%v", got, err)
	}

	last := decodeBody[ReconcileResponse](t, f.do(http.MethodGet, "/api/admin/reconcile", admin, nil))
	if last.LastPass == nil || last.LastPass.PassID != summary.PassID {
		t.Fatalf("unexpected last pass: %+v", last)
	}
}

func TestAdminHealthReportsLibraryOutage(t *testing.T) {
	f := newAPIFixture(t)
	resp := decodeBody[HealthResponse](t, f.do(http.MethodGet, "/api/admin/health", f.token("admin-1", true), nil))
	if resp.Healthy {
		t.Fatalf("expected unhealthy with unreachable library, got %+v", resp)
	}
	found := false
	for _, check := range resp.Checks {
		if check.Name == "Database" && !check.Passed {
			t.Fatalf("database check failed: %+v", check)
		}
		if check.Name == "Jellyfin" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a Jellyfin check, got %+v", resp.Checks)
	}
}

func TestStatusForError(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{err: fmt.Errorf("x: %w", requests.ErrNotFound), want: http.StatusNotFound},
		{err: requests.ErrInvalidStatus, want: http.StatusBadRequest},
		{err: requests.ErrTransitionRejected, want: http.StatusConflict},
		{err: jellyfin.ErrUnauthorized, want: http.StatusUnauthorized},
		{err: fmt.Errorf("search: %w", jellyfin.ErrUnavailable), want: http.StatusBadGateway},
		{err: context.Canceled, want: http.StatusServiceUnavailable},
		{err: errors.New("disk on fire"), want: http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := statusForError(tc.err); got != tc.want {
			t.Fatalf("statusForError(%v) = %d, want %d", tc.err, got, tc.want)
		}
	}
}

func newLibraryServer(t *testing.T, wantToken string) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.Header.Get("Authorization"), `Token="`+wantToken+`"`) {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		q := r.URL.Query()
		switch {
		case r.URL.Path == "/Users/u1/Items/Latest":
			_, _ = w.Write([]byte(`[{"Id":"m9","Name":"Arrival","Type":"Movie","ProductionYear":2016},{"Id":"s9","Name":"Severance","Type":"Series"}]`))
		case r.URL.Path == "/Users/u1/Items" && q.Get("Limit") == "0":
			totals := map[string]string{"Movie": "120", "Series": "14", "Episode": "380"}
			_, _ = w.Write([]byte(`{"Items":[],"TotalRecordCount":` + totals[q.Get("IncludeItemTypes")] + `}`))
		case r.URL.Path == "/Users/u1/Items":
			if q.Get("StartIndex") != "10" || q.Get("Limit") != "10" || q.Get("SortBy") != "SortName" || q.Get("SortOrder") != "Ascending" {
				t.Errorf("unexpected paging query: %s", r.URL.RawQuery)
			}
			_, _ = w.Write([]byte(`{"Items":[{"Id":"i1","Name":"Title","Type":"` + q.Get("IncludeItemTypes") + `","ProductionYear":1999}],"TotalRecordCount":31}`))
		default:
			t.Errorf("unexpected library call: %s", r.URL.String())
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(server.Close)
	return server
}

func TestLibraryBrowseListsMoviesAndShows(t *testing.T) {
	library := newLibraryServer(t, "jf-u1")
	f := newAPIFixture(t, testsupport.WithLibraryURL(library.URL))
	token := f.libraryToken("u1", "jf-u1")

	cases := []struct {
		path      string
		mediaType string
	}{
		{path: "/api/library/movies?page=2&limit=10", mediaType: "movie"},
		{path: "/api/library/tvshows?page=2&limit=10", mediaType: "tv"},
	}
	for _, tc := range cases {
		t.Run(tc.mediaType, func(t *testing.T) {
			w := f.do(http.MethodGet, tc.path, token, nil)
			if w.Code != http.StatusOK {
				t.Fatalf("expected 200, got %d (%s)", w.Code, w.Body.String())
			}
			page := decodeBody[LibraryPage](t, w)
			if page.Total != 31 || page.Page != 2 || page.Limit != 10 || len(page.Items) != 1 {
				t.Fatalf("unexpected page: %+v", page)
			}
			item := page.Items[0]
			if item.LibraryID != "i1" || item.Year != 1999 || item.MediaType != tc.mediaType {
				t.Fatalf("unexpected item: %+v", item)
			}
			if item.PosterURL != library.URL+"/Items/i1/Images/Primary" {
				t.Fatalf("unexpected poster url %q", item.PosterURL)
			}
		})
	}
}

func TestLibraryStatsAndRecent(t *testing.T) {
	library := newLibraryServer(t, "jf-u1")
	f := newAPIFixture(t, testsupport.WithLibraryURL(library.URL))
	token := f.libraryToken("u1", "jf-u1")

	w := f.do(http.MethodGet, "/api/library/stats", token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("stats: expected 200, got %d (%s)", w.Code, w.Body.String())
	}
	stats := decodeBody[LibraryStats](t, w)
	if stats.TotalMovies != 120 || stats.TotalShows != 14 || stats.TotalEpisodes != 380 {
		t.Fatalf("unexpected stats: %+v", stats)
	}

	w = f.do(http.MethodGet, "/api/library/recent?limit=5", token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("recent: expected 200, got %d (%s)", w.Code, w.Body.String())
	}
	recent := decodeBody[[]LibraryItem](t, w)
	if len(recent) != 2 || recent[0].MediaType != "movie" || recent[1].MediaType != "tv" {
		t.Fatalf("unexpected recent items: %+v", recent)
	}
}

func TestLibraryUsesStoredTokenWhenClaimsOmitIt(t *testing.T) {
	library := newLibraryServer(t, "jf-u1")
	f := newAPIFixture(t, testsupport.WithLibraryURL(library.URL))

	if w := f.do(http.MethodGet, "/api/library/recent", f.token("u1", false), nil); w.Code != http.StatusUnauthorized {
		t.Fatalf("no token anywhere: expected 401, got %d", w.Code)
	}
	// A call carrying the token stores it for later calls without one.
	if w := f.do(http.MethodGet, "/api/library/recent", f.libraryToken("u1", "jf-u1"), nil); w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", w.Code, w.Body.String())
	}
	if w := f.do(http.MethodGet, "/api/library/recent", f.token("u1", false), nil); w.Code != http.StatusOK {
		t.Fatalf("stored token: expected 200, got %d (%s)", w.Code, w.Body.String())
	}
}

func TestLibraryErrorsMapToStatus(t *testing.T) {
	library := newLibraryServer(t, "jf-u1")
	f := newAPIFixture(t, testsupport.WithLibraryURL(library.URL))

	if w := f.do(http.MethodGet, "/api/library/movies", "", nil); w.Code != http.StatusUnauthorized {
		t.Fatalf("no bearer: expected 401, got %d", w.Code)
	}
	if w := f.do(http.MethodGet, "/api/library/movies", f.libraryToken("u1", "expired"), nil); w.Code != http.StatusUnauthorized {
		t.Fatalf("rejected library token: expected 401, got %d (%s)", w.Code, w.Body.String())
	}
	token := f.libraryToken("u1", "jf-u1")
	for _, path := range []string{
		"/api/library/movies?limit=101",
		"/api/library/tvshows?page=0",
		"/api/library/movies?sort_order=sideways",
		"/api/library/recent?limit=51",
	} {
		if w := f.do(http.MethodGet, path, token, nil); w.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", path, w.Code)
		}
	}

	down := newAPIFixture(t)
	if w := down.do(http.MethodGet, "/api/library/stats", down.libraryToken("u1", "jf-u1"), nil); w.Code != http.StatusBadGateway {
		t.Fatalf("unreachable library: expected 502, got %d (%s)", w.Code, w.Body.String())
	}
}
