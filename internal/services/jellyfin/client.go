package jellyfin

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"reqtrack/internal/config"
)

const maxResponseBytes = 4 << 20

// HTTPDoer describes the HTTP client used by the Jellyfin client.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Auth identifies the Jellyfin user a call acts as.
type Auth struct {
	UserID string
	Token  string
}

// SearchQuery describes an item search.
type SearchQuery struct {
	Term     string
	ItemType string
	Limit    int
}

// Item is one search hit. ProviderIDs maps provider names such as "Tmdb" to
// their ids rendered as strings.
type Item struct {
	ID             string
	Name           string
	Type           string
	ProductionYear int
	ProviderIDs    map[string]string
}

// ServerInfo is the public system information of a Jellyfin server.
type ServerInfo struct {
	ID         string `json:"Id"`
	ServerName string `json:"ServerName"`
	Version    string `json:"Version"`
}

// Client issues requests against one Jellyfin server.
type Client struct {
	baseURL    string
	clientName string
	deviceID   string
	version    string
	client     HTTPDoer
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(doer HTTPDoer) Option {
	return func(c *Client) {
		if doer != nil {
			c.client = doer
		}
	}
}

// WithVersion sets the client version reported in the Authorization header.
func WithVersion(version string) Option {
	return func(c *Client) {
		if v := strings.TrimSpace(version); v != "" {
			c.version = v
		}
	}
}

// WithDevice sets the client and device identity reported to Jellyfin.
func WithDevice(clientName, deviceID string) Option {
	return func(c *Client) {
		if v := strings.TrimSpace(clientName); v != "" {
			c.clientName = v
		}
		if v := strings.TrimSpace(deviceID); v != "" {
			c.deviceID = v
		}
	}
}

// NewClient constructs a client for the server at baseURL.
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		clientName: "reqtrack",
		deviceID:   "reqtrack",
		version:    "dev",
		client:     http.DefaultClient,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewConfiguredClient builds a client from the library section of cfg. The
// configured request timeout bounds every call.
func NewConfiguredClient(cfg *config.Config, opts ...Option) *Client {
	if cfg == nil {
		return NewClient("", opts...)
	}
	base := []Option{
		WithDevice(cfg.Library.ClientName, cfg.Library.DeviceID),
		WithHTTPClient(&http.Client{Timeout: cfg.LibraryTimeout()}),
	}
	return NewClient(cfg.Library.URL, append(base, opts...)...)
}

// BaseURL returns the server address the client targets.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Search runs a recursive item search for auth's user and returns the hits
// with their provider ids.
func (c *Client) Search(ctx context.Context, auth Auth, query SearchQuery) ([]Item, error) {
	if c.baseURL == "" {
		return nil, fmt.Errorf("%w: library url not configured", ErrUnavailable)
	}
	params := url.Values{}
	params.Set("SearchTerm", query.Term)
	if query.ItemType != "" {
		params.Set("IncludeItemTypes", query.ItemType)
	}
	params.Set("Recursive", "true")
	if query.Limit > 0 {
		params.Set("Limit", strconv.Itoa(query.Limit))
	}
	params.Set("Fields", "ProviderIds")
	endpoint := fmt.Sprintf("%s/Users/%s/Items?%s", c.baseURL, url.PathEscape(auth.UserID), params.Encode())

	var payload struct {
		Items []rawItem `json:"Items"`
	}
	if err := c.getJSON(ctx, endpoint, auth.Token, &payload); err != nil {
		return nil, fmt.Errorf("search %q: %w", query.Term, err)
	}
	return convertItems(payload.Items), nil
}

// PublicInfo fetches /System/Info/Public, which needs no token.
func (c *Client) PublicInfo(ctx context.Context) (ServerInfo, error) {
	if c.baseURL == "" {
		return ServerInfo{}, fmt.Errorf("%w: library url not configured", ErrUnavailable)
	}
	var info ServerInfo
	if err := c.getJSON(ctx, c.baseURL+"/System/Info/Public", "", &info); err != nil {
		return ServerInfo{}, fmt.Errorf("public info: %w", err)
	}
	return info, nil
}

func (c *Client) getJSON(ctx context.Context, endpoint, token string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("%w: build request: %w", ErrUnavailable, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", c.authorization(token))

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))
		return fmt.Errorf("%w: HTTP %d", ErrUnauthorized, resp.StatusCode)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))
		return fmt.Errorf("%w: HTTP %d", ErrUnavailable, resp.StatusCode)
	}

	decoder := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes))
	decoder.UseNumber()
	if err := decoder.Decode(out); err != nil {
		return fmt.Errorf("%w: decode response: %w", ErrUnavailable, err)
	}
	return nil
}

func (c *Client) authorization(token string) string {
	header := fmt.Sprintf(`MediaBrowser Client=%q, Device=%q, DeviceId=%q, Version=%q`,
		c.clientName, c.clientName, c.deviceID, c.version)
	if token != "" {
		header += fmt.Sprintf(`, Token=%q`, token)
	}
	return header
}

// stringifyProviderIDs renders provider ids as strings so that numeric and
// string encodings of the same id compare equal.
func stringifyProviderIDs(raw map[string]any) map[string]string {
	if len(raw) == 0 {
		return nil
	}
	out := make(map[string]string, len(raw))
	for key, value := range raw {
		switch v := value.(type) {
		case string:
			out[key] = v
		case json.Number:
			out[key] = v.String()
		case nil:
		default:
			out[key] = fmt.Sprint(v)
		}
	}
	return out
}
