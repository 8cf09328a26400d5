package library

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"

	"reqtrack/internal/config"
	"reqtrack/internal/credentials"
	"reqtrack/internal/logging"
	"reqtrack/internal/requests"
	"reqtrack/internal/services/jellyfin"
)

// Outcome classifies a library check.
type Outcome string

const (
	OutcomeMatch      Outcome = "match"
	OutcomeNoMatch    Outcome = "no_match"
	OutcomeAuthFailed Outcome = "auth_failed"
	OutcomeError      Outcome = "error"
)

// ReasonUnsupportedMediaType marks requests whose media type has no library item type.
const ReasonUnsupportedMediaType = "unsupported_media_type"

// Result reports the outcome of checking one request.
type Result struct {
	Outcome  Outcome
	ItemID   string
	ItemName string
	Reason   string
	Err      error
}

// Searcher is the subset of the Jellyfin client the matcher uses.
type Searcher interface {
	Search(ctx context.Context, auth jellyfin.Auth, query jellyfin.SearchQuery) ([]jellyfin.Item, error)
}

// Matcher checks requests against the library.
type Matcher struct {
	search      Searcher
	itemTypes   map[string]string
	providerKey string
	limit       int
	logger      *slog.Logger
}

// NewMatcher builds a Matcher using the library section of cfg.
func NewMatcher(cfg *config.Config, search Searcher, logger *slog.Logger) *Matcher {
	m := &Matcher{
		search:      search,
		itemTypes:   map[string]string{},
		providerKey: "Tmdb",
		limit:       10,
		logger:      logging.NewComponentLogger(logger, "library"),
	}
	if cfg != nil {
		for mediaType, itemType := range cfg.Library.ItemTypes {
			m.itemTypes[strings.ToLower(mediaType)] = itemType
		}
		if key := strings.TrimSpace(cfg.Library.ProviderKey); key != "" {
			m.providerKey = key
		}
		if cfg.Library.SearchLimit > 0 {
			m.limit = cfg.Library.SearchLimit
		}
	}
	return m
}

// Check searches the library for req acting as cred.
func (m *Matcher) Check(ctx context.Context, req *requests.Request, cred credentials.Credential) Result {
	if req == nil {
		return Result{Outcome: OutcomeError, Err: errors.New("library check: nil request")}
	}
	itemType, ok := m.itemTypes[strings.ToLower(req.Media.MediaType)]
	if !ok || itemType == "" {
		return Result{Outcome: OutcomeNoMatch, Reason: ReasonUnsupportedMediaType}
	}

	items, err := m.search.Search(ctx, jellyfin.Auth{UserID: cred.UserID, Token: cred.Token}, jellyfin.SearchQuery{
		Term:     req.Title,
		ItemType: itemType,
		Limit:    m.limit,
	})
	if err != nil {
		if errors.Is(err, jellyfin.ErrUnauthorized) {
			return Result{Outcome: OutcomeAuthFailed, Reason: "credential rejected", Err: err}
		}
		return Result{Outcome: OutcomeError, Reason: "search failed", Err: err}
	}

	want := strconv.FormatInt(req.Media.CatalogID, 10)
	for _, item := range items {
		if item.ProviderIDs[m.providerKey] == want {
			m.logger.Debug("library match",
				logging.Int64(logging.FieldRequestID, req.ID),
				logging.String("item_id", item.ID),
				logging.String("item_name", item.Name),
			)
			return Result{Outcome: OutcomeMatch, ItemID: item.ID, ItemName: item.Name}
		}
	}
	return Result{Outcome: OutcomeNoMatch, Reason: "no item with matching provider id"}
}
