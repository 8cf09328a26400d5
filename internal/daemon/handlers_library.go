package daemon

import (
	"fmt"
	"net/http"
	"strings"

	"reqtrack/internal/requests"
	"reqtrack/internal/services/jellyfin"
)

const (
	defaultLibraryPageSize = 50
	maxLibraryPageSize     = 100
	defaultRecentLimit     = 20
	maxRecentLimit         = 50
)

// LibraryItem is one library title as returned by the browse endpoints.
type LibraryItem struct {
	LibraryID string `json:"jellyfin_id"`
	Title     string `json:"title"`
	Year      int    `json:"year,omitempty"`
	PosterURL string `json:"poster_url,omitempty"`
	MediaType string `json:"media_type"`
}

// LibraryPage is one page of a movie or series listing.
type LibraryPage struct {
	Items []LibraryItem `json:"items"`
	Total int           `json:"total"`
	Page  int           `json:"page"`
	Limit int           `json:"limit"`
}

// LibraryStats counts the titles the caller can see.
type LibraryStats struct {
	TotalMovies   int `json:"total_movies"`
	TotalShows    int `json:"total_shows"`
	TotalEpisodes int `json:"total_episodes"`
}

func (s *apiServer) handleLibraryMovies(w http.ResponseWriter, r *http.Request) {
	s.listLibrary(w, r, "Movie", "movie")
}

func (s *apiServer) handleLibraryShows(w http.ResponseWriter, r *http.Request) {
	s.listLibrary(w, r, "Series", "tv")
}

func (s *apiServer) listLibrary(w http.ResponseWriter, r *http.Request, itemType, mediaType string) {
	auth, ok := s.libraryAuth(w, r)
	if !ok {
		return
	}
	query := r.URL.Query()
	page, err := boundedInt(query.Get("page"), "page", 1, 0)
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	limit, err := boundedInt(query.Get("limit"), "limit", defaultLibraryPageSize, maxLibraryPageSize)
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	sortOrder := strings.TrimSpace(query.Get("sort_order"))
	switch sortOrder {
	case "":
		sortOrder = "Ascending"
	case "Ascending", "Descending":
	default:
		s.writeStoreError(w, r, fmt.Errorf("%w: sort_order must be Ascending or Descending", requests.ErrInvalidRequest))
		return
	}
	sortBy := strings.TrimSpace(query.Get("sort_by"))
	if sortBy == "" {
		sortBy = "SortName"
	}

	result, err := s.daemon.library.Items(r.Context(), auth, jellyfin.ItemsQuery{
		ItemType:   itemType,
		SearchTerm: query.Get("search"),
		StartIndex: (page - 1) * limit,
		Limit:      limit,
		SortBy:     sortBy,
		SortOrder:  sortOrder,
	})
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	items := make([]LibraryItem, 0, len(result.Items))
	for _, item := range result.Items {
		items = append(items, s.libraryItem(item, mediaType))
	}
	s.writeJSON(w, http.StatusOK, LibraryPage{Items: items, Total: result.Total, Page: page, Limit: limit})
}

func (s *apiServer) handleLibraryStats(w http.ResponseWriter, r *http.Request) {
	auth, ok := s.libraryAuth(w, r)
	if !ok {
		return
	}
	var stats LibraryStats
	counts := []struct {
		itemType string
		dst      *int
	}{
		{"Movie", &stats.TotalMovies},
		{"Series", &stats.TotalShows},
		{"Episode", &stats.TotalEpisodes},
	}
	for _, c := range counts {
		n, err := s.daemon.library.Count(r.Context(), auth, c.itemType)
		if err != nil {
			s.writeStoreError(w, r, err)
			return
		}
		*c.dst = n
	}
	s.writeJSON(w, http.StatusOK, stats)
}

func (s *apiServer) handleLibraryRecent(w http.ResponseWriter, r *http.Request) {
	auth, ok := s.libraryAuth(w, r)
	if !ok {
		return
	}
	limit, err := boundedInt(r.URL.Query().Get("limit"), "limit", defaultRecentLimit, maxRecentLimit)
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	latest, err := s.daemon.library.Latest(r.Context(), auth, limit)
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	items := make([]LibraryItem, 0, len(latest))
	for _, item := range latest {
		mediaType := "tv"
		if item.Type == "Movie" {
			mediaType = "movie"
		}
		items = append(items, s.libraryItem(item, mediaType))
	}
	s.writeJSON(w, http.StatusOK, items)
}

// libraryAuth builds library credentials for the caller. Callers without a
// library token get 401 so clients send them back through login.
func (s *apiServer) libraryAuth(w http.ResponseWriter, r *http.Request) (jellyfin.Auth, bool) {
	principal, _ := principalFrom(r.Context())
	if principal.LibraryToken == "" {
		s.writeError(w, http.StatusUnauthorized, "no library session; log in again")
		return jellyfin.Auth{}, false
	}
	return jellyfin.Auth{UserID: principal.UserID, Token: principal.LibraryToken}, true
}

func (s *apiServer) libraryItem(item jellyfin.Item, mediaType string) LibraryItem {
	return LibraryItem{
		LibraryID: item.ID,
		Title:     item.Name,
		Year:      item.ProductionYear,
		PosterURL: s.daemon.library.ImageURL(item.ID),
		MediaType: mediaType,
	}
}

// boundedInt parses an optional positive integer query value. A zero ceiling
// leaves the value unbounded.
func boundedInt(raw, name string, fallback, ceiling int) (int, error) {
	value, err := positiveInt(raw, name)
	if err != nil {
		return 0, err
	}
	if value == 0 {
		return fallback, nil
	}
	if ceiling > 0 && value > ceiling {
		return 0, fmt.Errorf("%w: %s must be at most %d", requests.ErrInvalidRequest, name, ceiling)
	}
	return value, nil
}
