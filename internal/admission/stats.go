package admission

import "time"

// EndpointStats is a point-in-time view of one endpoint.
type EndpointStats struct {
	Endpoint       string
	Active         int
	Queued         int
	MaxConcurrent  int
	MaxQueueSize   int
	QueueTimeout   time.Duration
	RequestTimeout time.Duration

	Completed       uint64
	Failed          uint64
	Rejected        uint64
	QueueTimeouts   uint64
	RequestTimeouts uint64
	Cancelled       uint64
	AvgProcessing   time.Duration
	MaxProcessing   time.Duration
	MaxQueued       int
}

// Saturated reports whether a new request would have to queue.
func (s EndpointStats) Saturated() bool { return s.Active >= s.MaxConcurrent }

func (ep *endpoint) snapshot() EndpointStats {
	s := EndpointStats{
		Endpoint:        ep.key,
		Active:          ep.active,
		Queued:          ep.queue.Len(),
		MaxConcurrent:   ep.policy.MaxConcurrent,
		MaxQueueSize:    ep.policy.MaxQueueSize,
		QueueTimeout:    ep.policy.QueueTimeout,
		RequestTimeout:  ep.policy.RequestTimeout,
		Completed:       ep.completed,
		Failed:          ep.failed,
		Rejected:        ep.rejected,
		QueueTimeouts:   ep.queueTimeouts,
		RequestTimeouts: ep.requestTimeouts,
		Cancelled:       ep.cancelled,
		MaxProcessing:   ep.maxProcessing,
		MaxQueued:       ep.maxQueued,
	}
	if n := ep.completed + ep.failed; n > 0 {
		s.AvgProcessing = ep.totalProcessing / time.Duration(n)
	}
	return s
}
