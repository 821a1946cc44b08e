package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"glbd/internal/admission"
	"glbd/internal/codec"
	"glbd/internal/config"
	"glbd/internal/httpapi"
	"glbd/internal/manager"
)

// endpoints lists every admission key the HTTP surface uses.
var endpoints = []string{
	httpapi.EndpointOptimize,
	httpapi.EndpointMesh,
	httpapi.EndpointTexture,
	httpapi.EndpointTextures,
	httpapi.EndpointAnalyze,
}

// admissionConfig pre-registers every endpoint so status reports list them
// before their first request.
func admissionConfig(cfg config.Admission, log zerolog.Logger) admission.Config {
	def := admission.DefaultPolicy()
	if cfg.Default != (config.EndpointPolicy{}) {
		def = cfg.Default.Policy()
	}
	policies := make(map[string]admission.Policy, len(endpoints))
	for _, ep := range endpoints {
		policies[ep] = def
	}
	for ep, p := range cfg.Endpoints {
		policies[ep] = p.Policy()
	}
	return admission.Config{Default: def, Policies: policies, Logger: log}
}

func newManager(cfg config.Config, log zerolog.Logger) *manager.Manager {
	tools := codec.ToolConfig{
		GltfTransformBin: cfg.Codecs.GltfTransformBin,
		ToktxBin:         cfg.Codecs.ToktxBin,
		ScratchDir:       cfg.Codecs.ScratchDir,
		ProbeTimeout:     time.Duration(cfg.Codecs.ProbeTimeoutMs) * time.Millisecond,
		Logger:           log,
	}
	return manager.NewWithConfig(manager.ManagerConfig{
		MeshLoader:      codec.MeshLoader(tools),
		TextureLoader:   codec.TextureLoader(tools),
		Mesh:            cfg.Modules.Mesh.Manager(),
		Texture:         cfg.Modules.Texture.Manager(),
		TextureDefaults: cfg.Texture.Settings(),
		Logger:          log,
		Publisher:       httpapi.EventMetrics{},
	})
}

// configureHTTP applies process-wide HTTP settings.
func configureHTTP(cfg config.Config, log zerolog.Logger) {
	httpapi.SetLogger(log)
	httpapi.SetAccessLogLevel(cfg.AccessLog)
	httpapi.SetMaxBodyBytes(int64(cfg.MaxBodyMB) << 20)
	httpapi.SetCORSOptions(cfg.CORS.Enabled, cfg.CORS.Origins, cfg.CORS.Methods, cfg.CORS.Headers)
}

func runServe(parent context.Context, cfg config.Config, log zerolog.Logger, warmup bool) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	configureHTTP(cfg, log)
	ctrl := admission.New(admissionConfig(cfg.Admission, log))
	mgr := newManager(cfg, log)
	defer func() {
		if err := mgr.Close(); err != nil {
			log.Warn().Err(err).Msg("closing codec modules")
		}
	}()
	if err := prometheus.Register(httpapi.NewServiceCollector(ctrl, mgr)); err != nil {
		log.Warn().Err(err).Msg("service metrics not registered")
	}

	// Processing contexts derive from baseCtx so a forced shutdown aborts
	// codec runs that outlive the grace period.
	baseCtx, cancelBase := context.WithCancel(context.Background())
	defer cancelBase()
	httpapi.SetBaseContext(baseCtx)

	if warmup {
		if err := mgr.Warmup(ctx); err != nil {
			log.Warn().Err(err).Msg("warmup incomplete; modules load on first use")
		}
	}

	ln, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		return err
	}
	srv := &http.Server{
		Handler:           httpapi.NewMux(mgr, ctrl),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", ln.Addr().String()).Msg("glbd listening")
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	timeout := time.Duration(cfg.ShutdownTimeoutSeconds) * time.Second
	log.Info().Dur("grace", timeout).Msg("shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		log.Warn().Err(err).Msg("graceful shutdown incomplete; aborting in-flight work")
		cancelBase()
		for _, ep := range endpoints {
			if n := ctrl.Purge(ep); n > 0 {
				log.Info().Str("endpoint", ep).Int("purged", n).Msg("queue purged")
			}
		}
		_ = srv.Close()
	}
	return nil
}
