package daemon

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"reqtrack/internal/notifications"
	"reqtrack/internal/requests"
	"reqtrack/internal/testsupport"
)

type recordedEvent struct {
	event   notifications.Event
	payload notifications.Payload
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (r *recordingNotifier) Publish(_ context.Context, event notifications.Event, payload notifications.Payload) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, recordedEvent{event: event, payload: payload})
	return nil
}

func (r *recordingNotifier) snapshot() []recordedEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]recordedEvent(nil), r.events...)
}

func newNotifyFixture(t *testing.T, opts ...testsupport.ConfigOption) (*apiFixture, *recordingNotifier) {
	t.Helper()
	cfg := testsupport.NewConfig(t, opts...)
	store := testsupport.MustOpenStore(t, cfg)
	recorder := &recordingNotifier{}
	d, err := New(cfg, store, nil, WithNotifier(recorder))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return &apiFixture{t: t, daemon: d, store: store, handler: d.api.handler}, recorder
}

func TestCreateAndStatusChangePublishEvents(t *testing.T) {
	f, recorder := newNotifyFixture(t)

	w := f.do(http.MethodPost, "/api/requests", f.token("u1", false), createRequestBody{CatalogID: 603, MediaType: "movie", Title: "The Matrix"})
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (%s)", w.Code, w.Body.String())
	}
	created := decodeBody[requests.Request](t, w)
	path := fmt.Sprintf("/api/admin/requests/%d", created.ID)
	if w := f.do(http.MethodPatch, path, f.token("admin-1", true), updateRequestBody{Status: "denied", AdminNote: "not this one"}); w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", w.Code, w.Body.String())
	}
	f.daemon.notifyWG.Wait()

	events := recorder.snapshot()
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %+v", events)
	}
	if events[0].event != notifications.EventRequestCreated || events[0].payload["title"] != "The Matrix" || events[0].payload["requester"] != "name-u1" {
		t.Fatalf("unexpected create event: %+v", events[0])
	}
	if events[1].event != notifications.EventStatusChanged || events[1].payload["status"] != "denied" || events[1].payload["note"] != "not this one" {
		t.Fatalf("unexpected status event: %+v", events[1])
	}
}

func TestRejectedCreateDoesNotPublish(t *testing.T) {
	f, recorder := newNotifyFixture(t)
	if w := f.do(http.MethodPost, "/api/requests", f.token("u1", false), createRequestBody{CatalogID: 603, MediaType: "podcast", Title: "x"}); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	f.daemon.notifyWG.Wait()
	if events := recorder.snapshot(); len(events) != 0 {
		t.Fatalf("expected no events, got %+v", events)
	}
}

func TestPassHookPublishesFulfilledTitles(t *testing.T) {
	library := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"Items":[{"Id":"a1","Name":"Fight Club","Type":"Movie","ProviderIds":{"Tmdb":"550"}}]}`))
	}))
	defer library.Close()

	f, recorder := newNotifyFixture(t, testsupport.WithLibraryURL(library.URL))
	testsupport.LinkAdmin(t, f.store, "admin-1", "jf-token")
	match := testsupport.NewRequest(t, f.store, "u1", 550, "movie", "Fight Club")

	summary, err := f.daemon.Reconcile(context.Background())
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if summary.Fulfilled != 1 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
	f.daemon.notifyWG.Wait()

	events := recorder.snapshot()
	if len(events) != 1 || events[0].event != notifications.EventRequestFulfilled {
		t.Fatalf("expected one fulfilled event, got %+v", events)
	}
	if events[0].payload["id"] != match.ID || events[0].payload["title"] != "Fight Club" {
		t.Fatalf("unexpected payload: %+v", events[0].payload)
	}
}

func TestPassHookPublishesAbortReason(t *testing.T) {
	library := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer library.Close()

	f, recorder := newNotifyFixture(t, testsupport.WithLibraryURL(library.URL))
	testsupport.LinkAdmin(t, f.store, "admin-1", "stale-token")
	testsupport.NewRequest(t, f.store, "u1", 550, "movie", "Fight Club")

	summary, err := f.daemon.Reconcile(context.Background())
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if !summary.Aborted {
		t.Fatalf("expected aborted pass, got %+v", summary)
	}
	f.daemon.notifyWG.Wait()

	events := recorder.snapshot()
	if len(events) != 1 || events[0].event != notifications.EventReconcileAborted {
		t.Fatalf("expected abort event, got %+v", events)
	}
	reason, _ := events[0].payload["error"].(string)
	if !strings.Contains(reason, "rejected credentials") {
		t.Fatalf("expected library rejection in payload, got %q", reason)
	}
}
