package types

import "glbd/internal/glb"

// ErrorResponse is a consistent JSON error payload.
type ErrorResponse struct {
	// Error class.
	// example: queue_full
	Error string `json:"error" example:"queue_full"`
	// Human-readable detail.
	// example: endpoint optimize: queue full (active=1 queued=10)
	Message string `json:"message,omitempty" example:"endpoint optimize: queue full (active=1 queued=10)"`
	// HTTP status code.
	// example: 503
	Code int `json:"code" example:"503"`
	// Endpoint state at rejection time, for overload responses.
	Queue *EndpointStatus `json:"queue,omitempty"`
	// Suggested client back-off in seconds.
	// example: 4
	RetryAfterSeconds int `json:"retry_after_seconds,omitempty" example:"4"`
}

// EndpointStatus summarizes one admission-controlled endpoint.
type EndpointStatus struct {
	// Endpoint key.
	// example: optimize
	Endpoint string `json:"endpoint" example:"optimize"`
	// Requests currently admitted and processing.
	// example: 1
	Active int `json:"active" example:"1"`
	// Requests waiting for admission.
	// example: 2
	Queued int `json:"queued" example:"2"`
	// example: 1
	MaxConcurrent int `json:"max_concurrent" example:"1"`
	// example: 10
	MaxQueueSize int `json:"max_queue_size" example:"10"`
	// example: 60000
	QueueTimeoutMs int64 `json:"queue_timeout_ms" example:"60000"`
	// example: 120000
	RequestTimeoutMs int64 `json:"request_timeout_ms" example:"120000"`
	// example: 42
	Completed uint64 `json:"completed" example:"42"`
	// example: 1
	Failed uint64 `json:"failed" example:"1"`
	// Rejections: queue full, queue timeout or purge.
	// example: 3
	Rejected uint64 `json:"rejected" example:"3"`
	// example: 1
	QueueTimeouts uint64 `json:"queue_timeouts" example:"1"`
	// example: 0
	RequestTimeouts uint64 `json:"request_timeouts" example:"0"`
	// Callers that disconnected while queued.
	// example: 0
	Cancelled uint64 `json:"cancelled" example:"0"`
	// example: 850
	AvgProcessingMs int64 `json:"avg_processing_ms" example:"850"`
	// example: 4200
	MaxProcessingMs int64 `json:"max_processing_ms" example:"4200"`
	// Deepest queue observed.
	// example: 5
	MaxQueued int `json:"max_queued" example:"5"`
}

// QueueStatusResponse is returned by GET /api/queue/status.
type QueueStatusResponse struct {
	Endpoints []EndpointStatus `json:"endpoints"`
	// example: 1700000000
	ServerTimeUnix int64 `json:"server_time_unix" example:"1700000000"`
}

// ModuleStatus summarizes one codec module and its executor.
type ModuleStatus struct {
	// example: mesh
	Name string `json:"name" example:"mesh"`
	// Lifecycle state: uninitialized, initializing, ready or blocked.
	// example: ready
	State string `json:"state" example:"ready"`
	// example: 0
	ConsecutiveErrors int `json:"consecutive_errors" example:"0"`
	// example: 0
	InitFailures int `json:"init_failures" example:"0"`
	// Last initialization error, if any.
	LastInitError string `json:"last_init_error,omitempty"`
	// Remaining circuit-breaker cooldown while blocked.
	// example: 0
	CooldownRemainingMs int64 `json:"cooldown_remaining_ms" example:"0"`
	// example: 1
	Inits uint64 `json:"inits" example:"1"`
	// example: 0
	Resets uint64 `json:"resets" example:"0"`
	// Invocations waiting for the module.
	// example: 0
	Queued int `json:"queued" example:"0"`
	// example: false
	InFlight bool `json:"in_flight" example:"false"`
	// example: 40
	Processed uint64 `json:"processed" example:"40"`
	// example: 2
	Failed uint64 `json:"failed" example:"2"`
	// example: 0
	TimedOut uint64 `json:"timed_out" example:"0"`
	// Timed-out invocations still running.
	// example: 0
	Abandoned int64 `json:"abandoned" example:"0"`
}

// StatusResponse is returned by GET /status.
type StatusResponse struct {
	// Overall state: ready or degraded.
	// example: ready
	State     string           `json:"state" example:"ready"`
	Modules   []ModuleStatus   `json:"modules"`
	Endpoints []EndpointStatus `json:"endpoints,omitempty"`
	// Last processing error observed (if any).
	LastError string `json:"last_error,omitempty"`
	// example: 3600
	UptimeSeconds int64 `json:"uptime_seconds" example:"3600"`
	// example: 1700000000
	ServerTimeUnix int64 `json:"server_time_unix" example:"1700000000"`
	// example: 12
	OptimizationsTotal uint64 `json:"optimizations_total" example:"12"`
	// Bytes received by compression operations.
	// example: 104857600
	BytesInTotal uint64 `json:"bytes_in_total" example:"104857600"`
	// Bytes returned by compression operations.
	// example: 20971520
	BytesOutTotal uint64 `json:"bytes_out_total" example:"20971520"`
}

// AnalyzeResponse is returned by POST /api/analyze.
type AnalyzeResponse struct {
	Analysis glb.Analysis      `json:"analysis"`
	Strategy glb.Strategy      `json:"strategy"`
	Textures []glb.TextureInfo `json:"textures,omitempty"`
}

// ModuleResetResponse is returned by POST /api/modules/{name}/reset.
type ModuleResetResponse struct {
	// example: texture
	Module string `json:"module" example:"texture"`
	// example: uninitialized
	State string `json:"state" example:"uninitialized"`
}

// QueuePolicy is the admission policy of one endpoint, as read and written by
// GET/PUT /api/queue/{endpoint}/policy. Zero timeouts mean unbounded.
type QueuePolicy struct {
	// example: 1
	MaxConcurrent int `json:"max_concurrent" example:"1"`
	// example: 10
	MaxQueueSize int `json:"max_queue_size" example:"10"`
	// example: 60000
	QueueTimeoutMs int64 `json:"queue_timeout_ms" example:"60000"`
	// example: 120000
	RequestTimeoutMs int64 `json:"request_timeout_ms" example:"120000"`
}

// QueuePurgeResponse is returned by POST /api/queue/{endpoint}/purge.
type QueuePurgeResponse struct {
	// example: optimize
	Endpoint string `json:"endpoint" example:"optimize"`
	// Waiters rejected by the purge.
	// example: 3
	Purged int `json:"purged" example:"3"`
}
