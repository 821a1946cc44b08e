package manager

import (
	"time"

	"glbd/internal/engine"
	"glbd/pkg/types"
)

// Status builds the module part of the /status response. The HTTP layer adds
// endpoint statistics.
func (m *Manager) Status() types.StatusResponse {
	m.mu.RLock()
	lastErr := m.lastErr
	m.mu.RUnlock()
	resp := types.StatusResponse{
		State:              "ready",
		LastError:          lastErr,
		UptimeSeconds:      int64(time.Since(m.startTime).Seconds()),
		ServerTimeUnix:     time.Now().Unix(),
		OptimizationsTotal: m.optimizations.Load(),
		BytesInTotal:       m.bytesIn.Load(),
		BytesOutTotal:      m.bytesOut.Load(),
		Modules: []types.ModuleStatus{
			moduleStatus(m.mesh.Lifecycle().Health(), m.mesh.Stats()),
			moduleStatus(m.texture.Lifecycle().Health(), m.texture.Stats()),
		},
	}
	if !m.Ready() {
		resp.State = "degraded"
	}
	return resp
}

// ModuleHealth returns the lifecycle snapshot of both modules.
func (m *Manager) ModuleHealth() []engine.Health {
	return []engine.Health{m.mesh.Lifecycle().Health(), m.texture.Lifecycle().Health()}
}

// ExecutorStats returns executor counters keyed by module name.
func (m *Manager) ExecutorStats() map[string]engine.ExecutorStats {
	return map[string]engine.ExecutorStats{
		ModuleMesh:    m.mesh.Stats(),
		ModuleTexture: m.texture.Stats(),
	}
}

func moduleStatus(h engine.Health, s engine.ExecutorStats) types.ModuleStatus {
	return types.ModuleStatus{
		Name:                h.Module,
		State:               string(h.State),
		ConsecutiveErrors:   h.ConsecutiveErrors,
		InitFailures:        h.InitFailures,
		LastInitError:       h.LastInitError,
		CooldownRemainingMs: h.CooldownRemaining.Milliseconds(),
		Inits:               h.Inits,
		Resets:              h.Resets,
		Queued:              s.Queued,
		InFlight:            s.InFlight,
		Processed:           s.Processed,
		Failed:              s.Failed,
		TimedOut:            s.TimedOut,
		Abandoned:           s.Abandoned,
	}
}
