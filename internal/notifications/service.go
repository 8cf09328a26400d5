package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"reqtrack/internal/config"
)

const userAgent = "reqtrack/0.1.0"

// Event names a request lifecycle milestone worth pushing to admins.
type Event string

const (
	EventRequestCreated   Event = "request_created"
	EventStatusChanged    Event = "status_changed"
	EventRequestFulfilled Event = "request_fulfilled"
	EventReconcileAborted Event = "reconcile_aborted"
	EventTest             Event = "test"
)

// Payload carries event details keyed by field name.
type Payload map[string]any

// Service publishes request events.
type Service interface {
	Publish(ctx context.Context, event Event, payload Payload) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	if cfg == nil {
		return noopService{}
	}
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint: topic,
		client:   &http.Client{Timeout: timeout},
	}
}

type message struct {
	title    string
	body     string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint string
	client   *http.Client
}

func (n *ntfyService) Publish(ctx context.Context, event Event, payload Payload) error {
	msg, ok := format(event, payload)
	if !ok {
		return nil
	}
	return n.send(ctx, msg)
}

func format(event Event, payload Payload) (message, bool) {
	switch event {
	case EventRequestCreated:
		requester := payload.text("requester")
		if requester == "" {
			requester = "someone"
		}
		return message{
			title: "reqtrack - New Request",
			body: fmt.Sprintf("%s requested %s (%s)\nRequest #%s",
				requester, payload.text("title"), payload.textOr("mediaType", "unknown"), payload.text("id")),
			tags: []string{"reqtrack", "request", "new"},
		}, true
	case EventStatusChanged:
		body := fmt.Sprintf("Request #%s %s is now %s", payload.text("id"), payload.text("title"), payload.text("status"))
		if note := payload.text("note"); note != "" {
			body += "\nNote: " + note
		}
		return message{
			title: "reqtrack - Request Updated",
			body:  body,
			tags:  []string{"reqtrack", "request", payload.textOr("status", "updated")},
		}, true
	case EventRequestFulfilled:
		return message{
			title: "reqtrack - Available",
			body:  fmt.Sprintf("Now in the library: %s\nRequest #%s", payload.text("title"), payload.text("id")),
			tags:  []string{"reqtrack", "library", "fulfilled"},
		}, true
	case EventReconcileAborted:
		return message{
			title:    "reqtrack - Reconcile Failed",
			body:     fmt.Sprintf("Library pass aborted: %s", payload.textOr("error", "unknown error")),
			tags:     []string{"reqtrack", "error", "alert"},
			priority: "high",
		}, true
	case EventTest:
		return message{
			title: "reqtrack - Test",
			body:  "Test notification from reqtrack",
			tags:  []string{"reqtrack", "test"},
		}, true
	default:
		return message{}, false
	}
}

func (p Payload) text(key string) string {
	if p == nil {
		return ""
	}
	value, ok := p[key]
	if !ok || value == nil {
		return ""
	}
	return strings.TrimSpace(fmt.Sprint(value))
}

func (p Payload) textOr(key, fallback string) string {
	if value := p.text(key); value != "" {
		return value
	}
	return fallback
}

func (n *ntfyService) send(ctx context.Context, data message) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.body))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) Publish(context.Context, Event, Payload) error { return nil }
