package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"glbd/internal/admission"
	"glbd/internal/codec"
	"glbd/internal/manager"
)

// Config holds runtime parameters for the service.
// Zero values mean "unspecified" and will be replaced by defaults in main.
// Durations are expressed in milliseconds.
type Config struct {
	Addr                   string `json:"addr" yaml:"addr" toml:"addr"`
	LogLevel               string `json:"log_level" yaml:"log_level" toml:"log_level"`
	LogFormat              string `json:"log_format" yaml:"log_format" toml:"log_format"`
	AccessLog              string `json:"access_log" yaml:"access_log" toml:"access_log"`
	MaxBodyMB              int    `json:"max_body_mb" yaml:"max_body_mb" toml:"max_body_mb"`
	ShutdownTimeoutSeconds int    `json:"shutdown_timeout_seconds" yaml:"shutdown_timeout_seconds" toml:"shutdown_timeout_seconds"`

	CORS      CORS      `json:"cors" yaml:"cors" toml:"cors"`
	Admission Admission `json:"admission" yaml:"admission" toml:"admission"`
	Modules   Modules   `json:"modules" yaml:"modules" toml:"modules"`
	Codecs    Codecs    `json:"codecs" yaml:"codecs" toml:"codecs"`
	Texture   Texture   `json:"texture" yaml:"texture" toml:"texture"`
}

type CORS struct {
	Enabled bool     `json:"enabled" yaml:"enabled" toml:"enabled"`
	Origins []string `json:"origins" yaml:"origins" toml:"origins"`
	Methods []string `json:"methods" yaml:"methods" toml:"methods"`
	Headers []string `json:"headers" yaml:"headers" toml:"headers"`
}

// Admission configures per-endpoint admission control. Endpoints without an
// entry use Default.
type Admission struct {
	Default   EndpointPolicy            `json:"default" yaml:"default" toml:"default"`
	Endpoints map[string]EndpointPolicy `json:"endpoints" yaml:"endpoints" toml:"endpoints"`
}

type EndpointPolicy struct {
	MaxConcurrent    int   `json:"max_concurrent" yaml:"max_concurrent" toml:"max_concurrent"`
	MaxQueueSize     int   `json:"max_queue_size" yaml:"max_queue_size" toml:"max_queue_size"`
	QueueTimeoutMs   int64 `json:"queue_timeout_ms" yaml:"queue_timeout_ms" toml:"queue_timeout_ms"`
	RequestTimeoutMs int64 `json:"request_timeout_ms" yaml:"request_timeout_ms" toml:"request_timeout_ms"`
}

// Policy converts to an admission policy.
func (p EndpointPolicy) Policy() admission.Policy {
	return admission.Policy{
		MaxConcurrent:  p.MaxConcurrent,
		MaxQueueSize:   p.MaxQueueSize,
		QueueTimeout:   ms(p.QueueTimeoutMs),
		RequestTimeout: ms(p.RequestTimeoutMs),
	}
}

type Modules struct {
	Mesh    Module `json:"mesh" yaml:"mesh" toml:"mesh"`
	Texture Module `json:"texture" yaml:"texture" toml:"texture"`
}

// Module tunes one codec module's lifecycle and executor.
type Module struct {
	MaxInitFailures      int   `json:"max_init_failures" yaml:"max_init_failures" toml:"max_init_failures"`
	InitCooldownMs       int64 `json:"init_cooldown_ms" yaml:"init_cooldown_ms" toml:"init_cooldown_ms"`
	ErrorThreshold       int   `json:"error_threshold" yaml:"error_threshold" toml:"error_threshold"`
	ErrorResetIntervalMs int64 `json:"error_reset_interval_ms" yaml:"error_reset_interval_ms" toml:"error_reset_interval_ms"`
	InitTimeoutMs        int64 `json:"init_timeout_ms" yaml:"init_timeout_ms" toml:"init_timeout_ms"`
	InvocationTimeoutMs  int64 `json:"invocation_timeout_ms" yaml:"invocation_timeout_ms" toml:"invocation_timeout_ms"`
	ReclaimMemory        bool  `json:"reclaim_memory" yaml:"reclaim_memory" toml:"reclaim_memory"`
}

// Manager converts to the manager's module configuration.
func (m Module) Manager() manager.ModuleConfig {
	return manager.ModuleConfig{
		MaxInitFailures:    m.MaxInitFailures,
		InitCooldown:       ms(m.InitCooldownMs),
		ErrorThreshold:     m.ErrorThreshold,
		ErrorResetInterval: ms(m.ErrorResetIntervalMs),
		InitTimeout:        ms(m.InitTimeoutMs),
		InvocationTimeout:  ms(m.InvocationTimeoutMs),
		ReclaimMemory:      m.ReclaimMemory,
	}
}

// Codecs locates the external encoder binaries. Empty paths are looked up on PATH.
type Codecs struct {
	GltfTransformBin string `json:"gltf_transform_bin" yaml:"gltf_transform_bin" toml:"gltf_transform_bin"`
	ToktxBin         string `json:"toktx_bin" yaml:"toktx_bin" toml:"toktx_bin"`
	ScratchDir       string `json:"scratch_dir" yaml:"scratch_dir" toml:"scratch_dir"`
	ProbeTimeoutMs   int64  `json:"probe_timeout_ms" yaml:"probe_timeout_ms" toml:"probe_timeout_ms"`
}

// Texture holds the default texture settings applied to requests that leave
// fields unset.
type Texture struct {
	Format           string `json:"format" yaml:"format" toml:"format"`
	Quality          int    `json:"quality" yaml:"quality" toml:"quality"`
	CompressionLevel int    `json:"compression_level" yaml:"compression_level" toml:"compression_level"`
}

// Settings converts to codec texture settings, filling unset fields from the
// codec defaults.
func (t Texture) Settings() codec.TextureSettings {
	s := codec.DefaultTextureSettings()
	if t.Format != "" {
		s.Format = codec.Format(strings.ToLower(t.Format))
	}
	switch {
	case t.Quality != 0:
		s.Quality = t.Quality
	case s.Format == codec.FormatUASTC:
		s.Quality = defaultUASTCLevel
	}
	if t.CompressionLevel != 0 {
		s.CompressionLevel = t.CompressionLevel
	}
	return s
}

// defaultUASTCLevel is the UASTC quality level used when none is configured.
const defaultUASTCLevel = 2

func ms(v int64) time.Duration { return time.Duration(v) * time.Millisecond }

// Validate reports every invalid field, joined. Unset fields are valid.
func (c Config) Validate() error {
	var errs []error
	switch c.LogFormat {
	case "", "console", "json":
	default:
		errs = append(errs, fmt.Errorf("log_format: want console or json, got %q", c.LogFormat))
	}
	switch c.AccessLog {
	case "", "off", "error", "info", "debug":
	default:
		errs = append(errs, fmt.Errorf("access_log: want off, error, info or debug, got %q", c.AccessLog))
	}
	if c.MaxBodyMB < 0 {
		errs = append(errs, fmt.Errorf("max_body_mb must not be negative, got %d", c.MaxBodyMB))
	}
	if c.Admission.Default != (EndpointPolicy{}) {
		if err := c.Admission.Default.Policy().Validate(); err != nil {
			errs = append(errs, fmt.Errorf("admission.default: %w", err))
		}
	}
	for k, p := range c.Admission.Endpoints {
		if err := p.Policy().Validate(); err != nil {
			errs = append(errs, fmt.Errorf("admission.endpoints.%s: %w", k, err))
		}
	}
	if c.Texture != (Texture{}) {
		if err := c.Texture.Settings().Validate(); err != nil {
			errs = append(errs, fmt.Errorf("texture: %w", err))
		}
	}
	return errors.Join(errs...)
}

// Load reads a configuration file based on its extension.
// Supports: .yaml/.yml, .json, .toml
func Load(path string) (Config, error) {
	var cfg Config
	if path == "" {
		return cfg, fmt.Errorf("empty config path")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".json":
		if err := json.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".toml":
		if err := toml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	default:
		return cfg, fmt.Errorf("unsupported config extension: %s", ext)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}
