package manager

import (
	"time"

	"github.com/rs/zerolog"

	"glbd/internal/codec"
	"glbd/internal/engine"
)

// Module names used in logs, metrics and the reset endpoint.
const (
	ModuleMesh    = "mesh"
	ModuleTexture = "texture"
)

// ModuleConfig tunes one codec module. Zero fields use engine defaults.
type ModuleConfig struct {
	MaxInitFailures    int
	InitCooldown       time.Duration
	ErrorThreshold     int
	ErrorResetInterval time.Duration
	InitTimeout        time.Duration
	InvocationTimeout  time.Duration
	ReclaimMemory      bool
}

func (c ModuleConfig) lifecycle(name string, log zerolog.Logger, pub engine.EventPublisher) engine.LifecycleConfig {
	return engine.LifecycleConfig{
		Name:               name,
		MaxInitFailures:    c.MaxInitFailures,
		InitCooldown:       c.InitCooldown,
		ErrorThreshold:     c.ErrorThreshold,
		ErrorResetInterval: c.ErrorResetInterval,
		InitTimeout:        c.InitTimeout,
		ReclaimMemory:      c.ReclaimMemory,
		Logger:             log,
		Publisher:          pub,
	}
}

// ManagerConfig encapsulates all tunables for Manager construction.
type ManagerConfig struct {
	// MeshLoader and TextureLoader perform the expensive module load. They
	// run lazily on first use.
	MeshLoader    engine.Loader[codec.MeshModule]
	TextureLoader engine.Loader[codec.TextureModule]
	Mesh          ModuleConfig
	Texture       ModuleConfig
	// TextureDefaults fills zero-valued settings of texture requests.
	TextureDefaults codec.TextureSettings
	Logger          zerolog.Logger
	Publisher       engine.EventPublisher
}

// NewWithConfig constructs a Manager from ManagerConfig. Loaders default to
// the subprocess toolchain found on PATH.
func NewWithConfig(cfg ManagerConfig) *Manager {
	if cfg.MeshLoader == nil {
		cfg.MeshLoader = codec.MeshLoader(codec.ToolConfig{Logger: cfg.Logger})
	}
	if cfg.TextureLoader == nil {
		cfg.TextureLoader = codec.TextureLoader(codec.ToolConfig{Logger: cfg.Logger})
	}
	if cfg.TextureDefaults == (codec.TextureSettings{}) {
		cfg.TextureDefaults = codec.DefaultTextureSettings()
	}
	log := cfg.Logger.With().Str("component", "manager").Logger()
	meshLC := engine.NewLifecycle(cfg.MeshLoader, cfg.Mesh.lifecycle(ModuleMesh, cfg.Logger, cfg.Publisher))
	texLC := engine.NewLifecycle(cfg.TextureLoader, cfg.Texture.lifecycle(ModuleTexture, cfg.Logger, cfg.Publisher))
	return &Manager{
		log:             log,
		textureDefaults: cfg.TextureDefaults,
		mesh:            engine.NewExecutor(meshLC, engine.ExecutorConfig{Timeout: cfg.Mesh.InvocationTimeout, Logger: cfg.Logger}),
		texture:         engine.NewExecutor(texLC, engine.ExecutorConfig{Timeout: cfg.Texture.InvocationTimeout, Logger: cfg.Logger}),
		startTime:       time.Now(),
	}
}
