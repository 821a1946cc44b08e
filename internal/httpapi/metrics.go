package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"glbd/internal/admission"
	"glbd/internal/engine"
)

const metricsNamespace = "glbd"

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"path", "method", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds",
			Buckets:   []float64{.01, .05, .1, .5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"path", "method", "status"},
	)

	httpInflight = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "In-flight HTTP requests",
		},
		[]string{"path"},
	)

	rejectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "http",
			Name:      "rejections_total",
			Help:      "Requests refused by admission control",
		},
		[]string{"endpoint", "reason"},
	)

	compressedBytesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "bytes_total",
			Help:      "Payload bytes through compression endpoints",
		},
		[]string{"endpoint", "direction"},
	)

	moduleEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "module_events_total",
			Help:      "Codec module lifecycle events",
		},
		[]string{"module", "event"},
	)
)

func init() {
	prometheus.MustRegister(httpRequestsTotal, httpRequestDuration, httpInflight, rejectionsTotal, compressedBytesTotal, moduleEventsTotal)
}

// statusRecorder wraps http.ResponseWriter to capture status code
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.status = code
	sr.ResponseWriter.WriteHeader(code)
}

// MetricsMiddleware instruments requests for Prometheus
func MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sr := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(sr, r)
		// the route pattern is only known once chi has routed the request
		path := routePatternOrPath(r)
		statusLabel := strconv.Itoa(sr.status)
		httpRequestsTotal.WithLabelValues(path, r.Method, statusLabel).Inc()
		httpRequestDuration.WithLabelValues(path, r.Method, statusLabel).Observe(time.Since(start).Seconds())
	})
}

// inflight tracks in-flight requests for one route. Mounted per route so the
// label is the pattern rather than the raw path.
func inflight(pattern string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			g := httpInflight.WithLabelValues(pattern)
			g.Inc()
			defer g.Dec()
			next.ServeHTTP(w, r)
		})
	}
}

// routePatternOrPath returns the chi route pattern if available, otherwise
// falls back to URL path. This avoids high-cardinality label values.
func routePatternOrPath(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if p := rc.RoutePattern(); p != "" {
			return p
		}
	}
	return r.URL.Path
}

// IncrementRejection counts an admission refusal on endpoint.
func IncrementRejection(endpoint, reason string) {
	if reason == "" {
		reason = "unspecified"
	}
	rejectionsTotal.WithLabelValues(endpoint, reason).Inc()
}

func observeBytes(endpoint string, in, out int) {
	compressedBytesTotal.WithLabelValues(endpoint, "in").Add(float64(in))
	compressedBytesTotal.WithLabelValues(endpoint, "out").Add(float64(out))
}

// EventMetrics is an engine.EventPublisher that counts lifecycle events and
// logs them at debug level.
type EventMetrics struct{}

func (EventMetrics) Publish(e engine.Event) {
	moduleEventsTotal.WithLabelValues(e.Module, e.Name).Inc()
	ev := zlog.Debug().Str("module", e.Module).Str("event", e.Name)
	for k, v := range e.Fields {
		ev = ev.Interface(k, v)
	}
	ev.Msg("module event")
}

// ModuleReporter exposes codec module state for the metrics collector.
type ModuleReporter interface {
	ModuleHealth() []engine.Health
	ExecutorStats() map[string]engine.ExecutorStats
}

var (
	descEndpointActive = prometheus.NewDesc(
		prometheus.BuildFQName(metricsNamespace, "admission", "active"),
		"Requests admitted and processing", []string{"endpoint"}, nil)
	descEndpointQueued = prometheus.NewDesc(
		prometheus.BuildFQName(metricsNamespace, "admission", "queued"),
		"Requests waiting for admission", []string{"endpoint"}, nil)
	descEndpointCapacity = prometheus.NewDesc(
		prometheus.BuildFQName(metricsNamespace, "admission", "max_concurrent"),
		"Configured concurrency limit", []string{"endpoint"}, nil)
	descEndpointSaturated = prometheus.NewDesc(
		prometheus.BuildFQName(metricsNamespace, "admission", "saturated"),
		"1 when a new request would have to queue", []string{"endpoint"}, nil)
	descEndpointOutcomes = prometheus.NewDesc(
		prometheus.BuildFQName(metricsNamespace, "admission", "requests_total"),
		"Admission outcomes by endpoint", []string{"endpoint", "outcome"}, nil)
	descEndpointAvg = prometheus.NewDesc(
		prometheus.BuildFQName(metricsNamespace, "admission", "avg_processing_seconds"),
		"Average processing time of completed requests", []string{"endpoint"}, nil)

	descModuleState = prometheus.NewDesc(
		prometheus.BuildFQName(metricsNamespace, "module", "state"),
		"1 for the current lifecycle state of each module", []string{"module", "state"}, nil)
	descModuleErrors = prometheus.NewDesc(
		prometheus.BuildFQName(metricsNamespace, "module", "consecutive_errors"),
		"Consecutive invocation errors", []string{"module"}, nil)
	descModuleInits = prometheus.NewDesc(
		prometheus.BuildFQName(metricsNamespace, "module", "inits_total"),
		"Successful initializations", []string{"module"}, nil)
	descModuleQueued = prometheus.NewDesc(
		prometheus.BuildFQName(metricsNamespace, "module", "queued"),
		"Invocations waiting for the module", []string{"module"}, nil)
	descModuleInvocations = prometheus.NewDesc(
		prometheus.BuildFQName(metricsNamespace, "module", "invocations_total"),
		"Module invocations by result; failed includes timed_out", []string{"module", "result"}, nil)
	descModuleAbandoned = prometheus.NewDesc(
		prometheus.BuildFQName(metricsNamespace, "module", "abandoned"),
		"Timed-out invocations still running", []string{"module"}, nil)
)

var moduleStates = []engine.State{engine.StateUninitialized, engine.StateInitializing, engine.StateReady, engine.StateBlocked}

// serviceCollector reads admission and module state at scrape time.
type serviceCollector struct {
	ctrl *admission.Controller
	mods ModuleReporter
}

// NewServiceCollector returns a collector exporting per-endpoint admission
// statistics and per-module health.
func NewServiceCollector(ctrl *admission.Controller, mods ModuleReporter) prometheus.Collector {
	return &serviceCollector{ctrl: ctrl, mods: mods}
}

func (c *serviceCollector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range []*prometheus.Desc{
		descEndpointActive, descEndpointQueued, descEndpointCapacity, descEndpointSaturated,
		descEndpointOutcomes, descEndpointAvg, descModuleState, descModuleErrors,
		descModuleInits, descModuleQueued, descModuleInvocations, descModuleAbandoned,
	} {
		ch <- d
	}
}

func (c *serviceCollector) Collect(ch chan<- prometheus.Metric) {
	if c.ctrl != nil {
		for _, s := range c.ctrl.SnapshotAll() {
			ep := s.Endpoint
			ch <- prometheus.MustNewConstMetric(descEndpointActive, prometheus.GaugeValue, float64(s.Active), ep)
			ch <- prometheus.MustNewConstMetric(descEndpointQueued, prometheus.GaugeValue, float64(s.Queued), ep)
			ch <- prometheus.MustNewConstMetric(descEndpointCapacity, prometheus.GaugeValue, float64(s.MaxConcurrent), ep)
			ch <- prometheus.MustNewConstMetric(descEndpointSaturated, prometheus.GaugeValue, boolFloat(s.Saturated()), ep)
			for outcome, n := range map[string]uint64{
				"completed":       s.Completed,
				"failed":          s.Failed,
				"rejected":        s.Rejected,
				"queue_timeout":   s.QueueTimeouts,
				"request_timeout": s.RequestTimeouts,
				"cancelled":       s.Cancelled,
			} {
				ch <- prometheus.MustNewConstMetric(descEndpointOutcomes, prometheus.CounterValue, float64(n), ep, outcome)
			}
			ch <- prometheus.MustNewConstMetric(descEndpointAvg, prometheus.GaugeValue, s.AvgProcessing.Seconds(), ep)
		}
	}
	if c.mods == nil {
		return
	}
	for _, h := range c.mods.ModuleHealth() {
		for _, st := range moduleStates {
			ch <- prometheus.MustNewConstMetric(descModuleState, prometheus.GaugeValue, boolFloat(h.State == st), h.Module, string(st))
		}
		ch <- prometheus.MustNewConstMetric(descModuleErrors, prometheus.GaugeValue, float64(h.ConsecutiveErrors), h.Module)
		ch <- prometheus.MustNewConstMetric(descModuleInits, prometheus.CounterValue, float64(h.Inits), h.Module)
	}
	for name, s := range c.mods.ExecutorStats() {
		ch <- prometheus.MustNewConstMetric(descModuleQueued, prometheus.GaugeValue, float64(s.Queued), name)
		ch <- prometheus.MustNewConstMetric(descModuleInvocations, prometheus.CounterValue, float64(s.Processed), name, "processed")
		ch <- prometheus.MustNewConstMetric(descModuleInvocations, prometheus.CounterValue, float64(s.Failed), name, "failed")
		ch <- prometheus.MustNewConstMetric(descModuleInvocations, prometheus.CounterValue, float64(s.TimedOut), name, "timed_out")
		ch <- prometheus.MustNewConstMetric(descModuleAbandoned, prometheus.GaugeValue, float64(s.Abandoned), name)
	}
}

func boolFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
