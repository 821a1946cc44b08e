package httpapi

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"glbd/internal/admission"
	"glbd/internal/engine"
)

func scrape(t *testing.T) []byte {
	t.Helper()
	w := httptest.NewRecorder()
	promhttp.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("/metrics status=%d", w.Code)
	}
	return w.Body.Bytes()
}

func TestMetricsMiddleware_EmitsRequestCounters(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	MetricsMiddleware(next).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/test", nil))
	if got := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("/test", http.MethodGet, "418")); got < 1 {
		t.Fatalf("counter=%v", got)
	}
	if !bytes.Contains(scrape(t), []byte("glbd_http_requests_total")) {
		t.Fatalf("metric not exposed")
	}
}

func TestMetricsMiddleware_UsesRoutePattern(t *testing.T) {
	r := chi.NewRouter()
	r.Use(MetricsMiddleware)
	r.Post("/api/queue/{endpoint}/purge", func(w http.ResponseWriter, r *http.Request) {})
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/api/queue/optimize/purge", nil))
	if got := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("/api/queue/{endpoint}/purge", http.MethodPost, "200")); got < 1 {
		t.Fatalf("pattern label not used, counter=%v", got)
	}
}

func TestIncrementRejection(t *testing.T) {
	c := rejectionsTotal.WithLabelValues("analyze", "queue_full")
	before := testutil.ToFloat64(c)
	IncrementRejection("analyze", "queue_full")
	if got := testutil.ToFloat64(c); got != before+1 {
		t.Fatalf("counter=%v, want %v", got, before+1)
	}
	IncrementRejection("analyze", "")
	if testutil.ToFloat64(rejectionsTotal.WithLabelValues("analyze", "unspecified")) < 1 {
		t.Fatalf("empty reason not mapped")
	}
}

func TestEventMetrics(t *testing.T) {
	c := moduleEventsTotal.WithLabelValues("mesh", "reset")
	before := testutil.ToFloat64(c)
	var pub engine.EventPublisher = EventMetrics{}
	pub.Publish(engine.Event{Name: "reset", Module: "mesh", Fields: map[string]any{"errors": 3}})
	if got := testutil.ToFloat64(c); got != before+1 {
		t.Fatalf("counter=%v", got)
	}
}

type fakeReporter struct{}

func (fakeReporter) ModuleHealth() []engine.Health {
	return []engine.Health{
		{Module: "mesh", State: engine.StateReady, Inits: 1},
		{Module: "texture", State: engine.StateBlocked, ConsecutiveErrors: 2},
	}
}

func (fakeReporter) ExecutorStats() map[string]engine.ExecutorStats {
	return map[string]engine.ExecutorStats{
		"mesh":    {Processed: 4},
		"texture": {Queued: 1, Failed: 2, TimedOut: 1, Abandoned: 1},
	}
}

func TestServiceCollector(t *testing.T) {
	ctrl := admission.New(admission.Config{Policies: map[string]admission.Policy{
		EndpointOptimize: {MaxConcurrent: 2, MaxQueueSize: 4, QueueTimeout: time.Second},
		EndpointAnalyze:  {MaxConcurrent: 1, MaxQueueSize: 1},
	}})
	reg := prometheus.NewRegistry()
	if err := reg.Register(NewServiceCollector(ctrl, fakeReporter{})); err != nil {
		t.Fatal(err)
	}

	// 2 endpoints x (5 gauges + 6 outcomes) + 2 modules x (4 states + 2) + 2 executors x 5
	if n, err := testutil.GatherAndCount(reg); err != nil || n != 22+12+10 {
		t.Fatalf("count=%d err=%v", n, err)
	}
	if n, _ := testutil.GatherAndCount(reg, "glbd_admission_max_concurrent"); n != 2 {
		t.Fatalf("max_concurrent series=%d", n)
	}

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatal(err)
	}
	for _, mf := range mfs {
		if mf.GetName() != "glbd_module_state" {
			continue
		}
		for _, m := range mf.GetMetric() {
			labels := map[string]string{}
			for _, l := range m.GetLabel() {
				labels[l.GetName()] = l.GetValue()
			}
			want := 0.0
			if (labels["module"] == "mesh" && labels["state"] == "ready") || (labels["module"] == "texture" && labels["state"] == "blocked") {
				want = 1
			}
			if m.GetGauge().GetValue() != want {
				t.Fatalf("state %v=%v, want %v", labels, m.GetGauge().GetValue(), want)
			}
		}
		return
	}
	t.Fatalf("glbd_module_state missing")
}
