package jellyfin

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// ItemsQuery describes one page of a library listing. A zero Limit asks
// for the total only.
type ItemsQuery struct {
	ItemType   string
	SearchTerm string
	StartIndex int
	Limit      int
	SortBy     string
	SortOrder  string
}

// ItemPage is one page of items plus the total matching the query.
type ItemPage struct {
	Items []Item
	Total int
}

type rawItem struct {
	ID             string         `json:"Id"`
	Name           string         `json:"Name"`
	Type           string         `json:"Type"`
	ProductionYear int            `json:"ProductionYear"`
	ProviderIDs    map[string]any `json:"ProviderIds"`
}

func (r rawItem) item() Item {
	return Item{
		ID:             r.ID,
		Name:           r.Name,
		Type:           r.Type,
		ProductionYear: r.ProductionYear,
		ProviderIDs:    stringifyProviderIDs(r.ProviderIDs),
	}
}

func convertItems(raw []rawItem) []Item {
	items := make([]Item, 0, len(raw))
	for _, r := range raw {
		items = append(items, r.item())
	}
	return items
}

// Items lists library items of one type for auth's user, a page at a time.
func (c *Client) Items(ctx context.Context, auth Auth, query ItemsQuery) (ItemPage, error) {
	if c.baseURL == "" {
		return ItemPage{}, fmt.Errorf("%w: library url not configured", ErrUnavailable)
	}
	params := url.Values{}
	if query.ItemType != "" {
		params.Set("IncludeItemTypes", query.ItemType)
	}
	if term := strings.TrimSpace(query.SearchTerm); term != "" {
		params.Set("SearchTerm", term)
	}
	params.Set("Recursive", "true")
	if query.StartIndex > 0 {
		params.Set("StartIndex", strconv.Itoa(query.StartIndex))
	}
	if query.Limit >= 0 {
		params.Set("Limit", strconv.Itoa(query.Limit))
	}
	if query.SortBy != "" {
		params.Set("SortBy", query.SortBy)
	}
	if query.SortOrder != "" {
		params.Set("SortOrder", query.SortOrder)
	}
	params.Set("Fields", "ProviderIds")
	endpoint := fmt.Sprintf("%s/Users/%s/Items?%s", c.baseURL, url.PathEscape(auth.UserID), params.Encode())

	var payload struct {
		Items            []rawItem `json:"Items"`
		TotalRecordCount int       `json:"TotalRecordCount"`
	}
	if err := c.getJSON(ctx, endpoint, auth.Token, &payload); err != nil {
		return ItemPage{}, fmt.Errorf("list %s items: %w", query.ItemType, err)
	}
	return ItemPage{Items: convertItems(payload.Items), Total: payload.TotalRecordCount}, nil
}

// Count returns how many items of itemType the user can see.
func (c *Client) Count(ctx context.Context, auth Auth, itemType string) (int, error) {
	page, err := c.Items(ctx, auth, ItemsQuery{ItemType: itemType, Limit: 0})
	if err != nil {
		return 0, err
	}
	return page.Total, nil
}

// Latest returns the most recently added movies and series.
func (c *Client) Latest(ctx context.Context, auth Auth, limit int) ([]Item, error) {
	if c.baseURL == "" {
		return nil, fmt.Errorf("%w: library url not configured", ErrUnavailable)
	}
	params := url.Values{}
	params.Set("IncludeItemTypes", "Movie,Series")
	if limit > 0 {
		params.Set("Limit", strconv.Itoa(limit))
	}
	endpoint := fmt.Sprintf("%s/Users/%s/Items/Latest?%s", c.baseURL, url.PathEscape(auth.UserID), params.Encode())

	var payload []rawItem
	if err := c.getJSON(ctx, endpoint, auth.Token, &payload); err != nil {
		return nil, fmt.Errorf("latest items: %w", err)
	}
	return convertItems(payload), nil
}

// ImageURL returns the primary image address for an item.
func (c *Client) ImageURL(itemID string) string {
	if c.baseURL == "" || itemID == "" {
		return ""
	}
	return fmt.Sprintf("%s/Items/%s/Images/Primary", c.baseURL, url.PathEscape(itemID))
}
