package main

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"reqtrack/internal/testsupport"
)

func TestHealthCommandReportsChecks(t *testing.T) {
	library := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ServerName":"den","Version":"10.9.0"}`))
	}))
	defer library.Close()

	env := setupCLITestEnv(t, testsupport.WithLibraryURL(library.URL))
	testsupport.LinkAdmin(t, env.store, "admin-1", "jf-token")

	out, _, err := runCLI(t, []string{"health"}, env.configPath)
	if err != nil {
		t.Fatalf("health: %v\n%s", err, out)
	}
	requireContains(t, out, "== Health ==")
	requireContains(t, out, "den 10.9.0")
	requireContains(t, out, "[OK]")
}

func TestHealthCommandFailsWhenLibraryIsDown(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"health"}, env.configPath)
	if err == nil {
		t.Fatal("expected health to fail with unreachable library")
	}
	requireContains(t, out, "Jellyfin")
	requireContains(t, out, "[ERROR]")
}
