package middleware

import (
	"bytes"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func newRouter(mw ...func(http.Handler) http.Handler) *chi.Mux {
	r := chi.NewRouter()
	for _, m := range mw {
		r.Use(m)
	}
	r.Get("/api/meals/{date}/{meal}/count", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"count":1,"total":2}`))
	})
	r.Post("/api/users", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "name must not be empty", http.StatusBadRequest)
	})
	r.Get("/api/state", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "store unavailable", http.StatusServiceUnavailable)
	})
	return r
}

func serve(h http.Handler, method, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	return rec
}

func TestMetrics_Handler(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	router := newRouter(m.Handler)

	serve(router, http.MethodGet, "/api/meals/2024-06-12/lunch/count")
	serve(router, http.MethodGet, "/api/meals/2024-06-13/dinner/count")
	serve(router, http.MethodPost, "/api/users")
	serve(router, http.MethodGet, "/nope")

	tests := []struct {
		method, route, code string
		want                float64
	}{
		{"GET", "/api/meals/{date}/{meal}/count", "200", 2},
		{"POST", "/api/users", "400", 1},
		{"GET", "unmatched", "404", 1},
	}
	for _, tt := range tests {
		got := testutil.ToFloat64(m.requests.WithLabelValues(tt.method, tt.route, tt.code))
		if got != tt.want {
			t.Errorf("requests{%s %s %s} = %v, want %v", tt.method, tt.route, tt.code, got, tt.want)
		}
	}

	if n := testutil.CollectAndCount(m.duration); n != 3 {
		t.Errorf("expected 3 duration series, got %d", n)
	}
}

func TestMetrics_ObserveOp(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.ObserveOp("toggle_meal", nil)
	m.ObserveOp("toggle_meal", nil)
	m.ObserveOp("add_user", errors.New("group already has 10 users"))

	if got := testutil.ToFloat64(m.ops.WithLabelValues("toggle_meal", "ok")); got != 2 {
		t.Errorf("toggle_meal ok: got %v", got)
	}
	if got := testutil.ToFloat64(m.ops.WithLabelValues("add_user", "error")); got != 1 {
		t.Errorf("add_user error: got %v", got)
	}
}

func TestRequestLogger(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo})))
	defer slog.SetDefault(prev)

	router := newRouter(RequestLogger)

	tests := []struct {
		method, path string
		level        string
		status       string
	}{
		{http.MethodGet, "/api/meals/2024-06-12/lunch/count", "INFO", "status=200"},
		{http.MethodPost, "/api/users", "WARN", "status=400"},
		{http.MethodGet, "/api/state", "ERROR", "status=503"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			buf.Reset()
			serve(router, tt.method, tt.path)

			line := buf.String()
			if !strings.Contains(line, "level="+tt.level) {
				t.Errorf("expected level %s, got %q", tt.level, line)
			}
			if !strings.Contains(line, tt.status) {
				t.Errorf("expected %s, got %q", tt.status, line)
			}
		})
	}
}

func TestRequestLogger_RoutePattern(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, nil)))
	defer slog.SetDefault(prev)

	serve(newRouter(RequestLogger), http.MethodGet, "/api/meals/2024-06-12/lunch/count")

	if !strings.Contains(buf.String(), "route=/api/meals/{date}/{meal}/count") {
		t.Errorf("route pattern not logged: %q", buf.String())
	}
}

func TestCORS(t *testing.T) {
	router := newRouter(CORS)

	rec := serve(router, http.MethodOptions, "/api/users")
	if rec.Code != http.StatusOK {
		t.Errorf("preflight: got %d", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Error("missing allow-origin header")
	}

	rec = serve(router, http.MethodGet, "/api/meals/2024-06-12/lunch/count")
	if rec.Code != http.StatusOK || rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Errorf("GET: code %d, headers %v", rec.Code, rec.Header())
	}
}
