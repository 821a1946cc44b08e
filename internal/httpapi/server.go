package httpapi

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"glbd/internal/admission"
	"glbd/internal/codec"
	"glbd/internal/engine"
	"glbd/internal/glb"
	"glbd/internal/manager"
	"glbd/pkg/types"
)

// Service is the compression core behind the HTTP API. *manager.Manager
// implements it.
type Service interface {
	Analyze(data []byte, ignoreDraco bool) (glb.Analysis, glb.Strategy)
	Optimize(ctx context.Context, data []byte, opts manager.OptimizeOptions) (*manager.Result, error)
	CompressMesh(ctx context.Context, data []byte, force bool) (*manager.Result, error)
	CompressTexture(ctx context.Context, image []byte, s codec.TextureSettings) (*manager.Result, error)
	CompressContainerTextures(ctx context.Context, data []byte, s codec.TextureSettings) (*manager.Result, error)
	ResetModule(name string) (engine.State, error)
	Status() types.StatusResponse
	Ready() bool
}

// Endpoint keys used for admission control.
const (
	EndpointOptimize = "optimize"
	EndpointMesh     = "mesh"
	EndpointTexture  = "texture"
	EndpointTextures = "textures"
	EndpointAnalyze  = "analyze"
)

// NewMux builds the HTTP API. Every processing route is admitted through ctrl.
func NewMux(svc Service, ctrl *admission.Controller) http.Handler {
	h := &handlers{svc: svc, ctrl: ctrl}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(AccessLog)
	r.Use(MetricsMiddleware)
	r.Use(middleware.Recoverer)
	if corsEnabled {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: corsOrDefault(corsAllowedOrigins, []string{"*"}),
			AllowedMethods: corsOrDefault(corsAllowedMethods, []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions}),
			AllowedHeaders: corsOrDefault(corsAllowedHeaders, []string{"Content-Type", "X-Log-Level", "X-Request-Id"}),
			ExposedHeaders: []string{
				types.HeaderOriginalSize, types.HeaderCompressedSize, types.HeaderCompressionRatio,
				types.HeaderSizeReduction, types.HeaderStrategy, types.HeaderTexturesProcessed,
				types.HeaderWarnings, "Content-Disposition", "Retry-After",
			},
			MaxAge: 300,
		}))
	}
	r.Use(newCompressor().Handler)
	// Security headers
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			next.ServeHTTP(w, r)
		})
	})

	r.Route("/api", func(r chi.Router) {
		r.With(inflight("/api/optimize")).Post("/optimize", h.optimize)
		r.With(inflight("/api/compress/mesh")).Post("/compress/mesh", h.compressMesh)
		r.With(inflight("/api/compress/texture")).Post("/compress/texture", h.compressTexture)
		r.With(inflight("/api/compress/textures")).Post("/compress/textures", h.compressTextures)
		r.With(inflight("/api/analyze")).Post("/analyze", h.analyze)

		r.Get("/queue/status", h.queueStatus)
		r.Get("/queue/{endpoint}/policy", h.getPolicy)
		r.Put("/queue/{endpoint}/policy", h.putPolicy)
		r.Post("/queue/{endpoint}/purge", h.purge)
		r.Post("/modules/{name}/reset", h.resetModule)
	})

	r.Get("/status", h.status)
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		if svc.Ready() {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ready"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("degraded"))
	})
	r.Handle("/metrics", promhttp.Handler())
	MountSwagger(r)
	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zlog.Error().Err(err).Msg("encode response")
	}
}
