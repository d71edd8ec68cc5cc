package service

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mmynk/mealboard/internal/schedule"
	"github.com/mmynk/mealboard/internal/storage/memory"
	"github.com/mmynk/mealboard/internal/storage/sqlite"
)

// fixedNow is Wednesday 2024-06-12 at noon local time.
var fixedNow = time.Date(2024, time.June, 12, 12, 0, 0, 0, time.Local)

type testServer struct {
	*httptest.Server
	model  *schedule.Model
	events *EventHub
}

// setupTestServer serves the API for a model over a temp SQLite snapshot.
func setupTestServer(t *testing.T) *testServer {
	t.Helper()

	store, err := sqlite.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	return serveBackend(t, schedule.NewLocalBackend(store))
}

// setupRemoteTestServer serves the API for a model over an in-memory group store.
func setupRemoteTestServer(t *testing.T) (*testServer, *memory.Store) {
	t.Helper()

	store := memory.New()
	return serveBackend(t, schedule.NewRemoteBackend(store)), store
}

func serveBackend(t *testing.T, backend schedule.Backend) *testServer {
	t.Helper()

	model, err := schedule.New(context.Background(), backend)
	if err != nil {
		t.Fatalf("failed to create model: %v", err)
	}

	events := NewEventHub(model, 0)
	r := chi.NewRouter()
	r.Mount("/api", Routes(
		NewGroupService(model),
		NewMealService(model, WithClock(func() time.Time { return fixedNow })),
		events,
	))
	server := httptest.NewServer(r)

	t.Cleanup(func() {
		events.Close()
		server.Close()
		model.Close()
	})

	return &testServer{Server: server, model: model, events: events}
}

// do sends a JSON request and decodes a JSON response into out, if non-nil.
func (s *testServer) do(t *testing.T, method, path string, body, out any) int {
	t.Helper()

	var reader io.Reader
	if body != nil {
		switch b := body.(type) {
		case string:
			reader = bytes.NewBufferString(b)
		default:
			raw, err := json.Marshal(body)
			if err != nil {
				t.Fatalf("failed to encode body: %v", err)
			}
			reader = bytes.NewReader(raw)
		}
	}

	req, err := http.NewRequest(method, s.URL+path, reader)
	if err != nil {
		t.Fatalf("failed to build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s failed: %v", method, path, err)
	}
	defer resp.Body.Close()

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("%s %s: failed to decode response: %v", method, path, err)
		}
	}
	return resp.StatusCode
}
