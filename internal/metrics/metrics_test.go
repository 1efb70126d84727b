package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func counterValue(t *testing.T, c prometheus.Collector) float64 {
	t.Helper()
	ch := make(chan prometheus.Metric, 1)
	c.Collect(ch)
	close(ch)
	var total float64
	for metric := range ch {
		var pb dto.Metric
		if err := metric.Write(&pb); err != nil {
			t.Fatalf("write metric: %v", err)
		}
		total += pb.GetCounter().GetValue()
	}
	return total
}

func TestCounters(t *testing.T) {
	m := New()
	m.ItemMoved("moved")
	m.ItemMoved("moved")
	m.ItemMoved("returned")
	m.CacheHit("transaction_items")
	m.CacheMiss("transaction_items")
	m.CacheMiss("transaction_items")
	m.RateLimited()
	m.PublishFailed()

	tests := []struct {
		name string
		got  float64
		want float64
	}{
		{"moved", counterValue(t, m.itemMovements.WithLabelValues("moved")), 2},
		{"returned", counterValue(t, m.itemMovements.WithLabelValues("returned")), 1},
		{"cache hit", counterValue(t, m.cacheRequests.WithLabelValues("transaction_items", "hit")), 1},
		{"cache miss", counterValue(t, m.cacheRequests.WithLabelValues("transaction_items", "miss")), 2},
		{"rate limited", counterValue(t, m.rateLimited), 1},
		{"publish errors", counterValue(t, m.publishErrors), 1},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s = %v, want %v", tt.name, tt.got, tt.want)
		}
	}
}

func TestMiddlewareAndHandler(t *testing.T) {
	m := New()
	h := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte("ok"))
	}))

	for _, path := range []string{"/", "/", "/missing"} {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	if got := counterValue(t, m.httpRequests.WithLabelValues("GET", "200")); got != 2 {
		t.Errorf("GET 200 = %v, want 2", got)
	}
	if got := counterValue(t, m.httpRequests.WithLabelValues("GET", "404")); got != 1 {
		t.Errorf("GET 404 = %v, want 1", got)
	}

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), "designledger_http_requests_total") {
		t.Errorf("metrics output missing request counter:\n%s", body)
	}
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.ItemMoved("moved")
	m.CacheHit("x")
	m.CacheMiss("x")
	m.RateLimited()
	m.PublishFailed()
	m.ObserveRequest("GET", 200)

	called := false
	next := http.HandlerFunc(func(http.ResponseWriter, *http.Request) { called = true })
	m.Middleware(next).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	if !called {
		t.Error("nil Metrics middleware must pass through")
	}
	if m.Registry() != nil {
		t.Error("nil Metrics has no registry")
	}
}
