package manager

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"glbd/internal/codec"
	"glbd/internal/engine"
	"glbd/internal/glb"
)

// Manager orchestrates analysis, strategy selection and the codec modules.
// Each module is reached only through its single-flight executor.
type Manager struct {
	log             zerolog.Logger
	textureDefaults codec.TextureSettings
	mesh            *engine.Executor[codec.MeshModule]
	texture         *engine.Executor[codec.TextureModule]
	startTime       time.Time

	mu      sync.RWMutex
	lastErr string
	closed  bool

	optimizations atomic.Uint64
	bytesIn       atomic.Uint64
	bytesOut      atomic.Uint64
}

// Analyze inspects a GLB and returns the plan Optimize would follow.
func (m *Manager) Analyze(data []byte, ignoreDraco bool) (glb.Analysis, glb.Strategy) {
	a := glb.Analyze(data)
	return a, glb.Select(a, ignoreDraco)
}

// Ready reports whether the manager accepts work: not closed and no module
// blocked by its circuit breaker. Modules that were never loaded count as
// ready since they load on first use.
func (m *Manager) Ready() bool {
	m.mu.RLock()
	closed := m.closed
	m.mu.RUnlock()
	if closed {
		return false
	}
	return m.mesh.Lifecycle().State() != engine.StateBlocked &&
		m.texture.Lifecycle().State() != engine.StateBlocked
}

// Warmup loads both modules ahead of the first request.
func (m *Manager) Warmup(ctx context.Context) error {
	_, errMesh := m.mesh.Lifecycle().EnsureReady(ctx)
	_, errTex := m.texture.Lifecycle().EnsureReady(ctx)
	return errors.Join(errMesh, errTex)
}

// ResetModule drops the named module's handle; the next request reloads it.
func (m *Manager) ResetModule(name string) (engine.State, error) {
	switch name {
	case ModuleMesh:
		m.mesh.Lifecycle().Reset()
		return m.mesh.Lifecycle().State(), nil
	case ModuleTexture:
		m.texture.Lifecycle().Reset()
		return m.texture.Lifecycle().State(), nil
	default:
		return "", ErrModuleNotFound(name)
	}
}

// Close stops both executors and releases the module handles.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()
	m.mesh.Close()
	m.texture.Close()
	return errors.Join(m.mesh.Lifecycle().Close(), m.texture.Lifecycle().Close())
}

func (m *Manager) noteError(err error) {
	if err == nil || IsInvalidInput(err) || errors.Is(err, context.Canceled) {
		return
	}
	m.mu.Lock()
	m.lastErr = err.Error()
	m.mu.Unlock()
}
