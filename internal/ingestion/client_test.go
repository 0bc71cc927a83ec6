package ingestion

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestNew_Validates(t *testing.T) {
	t.Parallel()

	if _, err := New("", "token"); err == nil {
		t.Fatal("expected base URL error")
	}
	if _, err := New("https://ingest.example.com", " "); err == nil {
		t.Fatal("expected token error")
	}
	c, err := New("https://ingest.example.com/", "token")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if c.BaseURL != "https://ingest.example.com" {
		t.Fatalf("BaseURL = %q, want trailing slash trimmed", c.BaseURL)
	}
}

func TestTriggerHistorical_SendsBearerAndDayCount(t *testing.T) {
	t.Parallel()

	var gotPath, gotAuth string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	c, err := New(srv.URL, "secret-token")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := c.TriggerHistorical(context.Background(), "bingads", "conn-1", 60*24*time.Hour); err != nil {
		t.Fatalf("TriggerHistorical() error = %v", err)
	}

	if gotPath != "/bingads/historical" {
		t.Fatalf("path = %q, want %q", gotPath, "/bingads/historical")
	}
	if gotAuth != "Bearer secret-token" {
		t.Fatalf("auth = %q, want bearer token", gotAuth)
	}
	if gotBody["connectorId"] != "conn-1" {
		t.Fatalf("connectorId = %v, want conn-1", gotBody["connectorId"])
	}
	if gotBody["duration"] != float64(60) {
		t.Fatalf("duration = %v, want 60", gotBody["duration"])
	}
}

func TestTriggerFuture_SendsResyncDuration(t *testing.T) {
	t.Parallel()

	var gotPath string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c, err := New(srv.URL, "token")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := c.TriggerFuture(context.Background(), "marketo", "conn-2", 15*24*time.Hour); err != nil {
		t.Fatalf("TriggerFuture() error = %v", err)
	}

	if gotPath != "/marketo/future" {
		t.Fatalf("path = %q, want %q", gotPath, "/marketo/future")
	}
	if gotBody["resyncDuration"] != float64(15) {
		t.Fatalf("resyncDuration = %v, want 15", gotBody["resyncDuration"])
	}
}

func TestTrigger_SurfacesErrorBody(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(`{"error":"warehouse unreachable"}`))
	}))
	defer srv.Close()

	c, err := New(srv.URL, "token")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	err = c.TriggerHistorical(context.Background(), "mixpanel", "conn-3", 24*time.Hour)
	if err == nil {
		t.Fatal("expected error for non-2xx response")
	}
	if !strings.Contains(err.Error(), "status 502") {
		t.Fatalf("error %q does not carry status", err)
	}
	if !strings.Contains(err.Error(), "warehouse unreachable") {
		t.Fatalf("error %q does not carry response body", err)
	}
}

func TestWholeDays_RoundsUpAndFloorsAtOne(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   time.Duration
		want int
	}{
		{45 * 24 * time.Hour, 45},
		{36 * time.Hour, 2},
		{time.Hour, 1},
		{0, 1},
	}
	for _, tc := range cases {
		if got := wholeDays(tc.in); got != tc.want {
			t.Fatalf("wholeDays(%s) = %d, want %d", tc.in, got, tc.want)
		}
	}
}
