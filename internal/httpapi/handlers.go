package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"glbd/internal/admission"
	"glbd/internal/glb"
	"glbd/internal/manager"
	"glbd/pkg/types"
)

const (
	contentTypeGLB  = "model/gltf-binary"
	contentTypeKTX2 = "image/ktx2"
)

type handlers struct {
	svc  Service
	ctrl *admission.Controller
}

// operation runs one admitted unit of work and returns its result.
type operation func(ctx context.Context) (*manager.Result, error)

// prepare validates the request parameters and binds the upload into an
// operation. It runs before admission so malformed requests never hold a slot.
type prepare func(up upload) (operation, error)

// Optimize godoc
// @Summary      Optimize a GLB
// @Description  Analyses the upload, picks a strategy and applies Draco mesh and KTX2 texture compression as needed.
// @Tags         compression
// @Accept       application/octet-stream,multipart/form-data
// @Produce      model/gltf-binary
// @Param        file               formData  file    false  "GLB file (or send the raw body)"
// @Param        ignore_draco       query     bool    false  "Plan as if no Draco compression were present"
// @Param        skip_mesh          query     bool    false  "Skip the mesh pass"
// @Param        skip_textures      query     bool    false  "Skip the texture pass"
// @Param        format             query     string  false  "Texture format: etc1s or uastc"
// @Param        quality            query     int     false  "Texture quality"
// @Param        compression_level  query     int     false  "Texture compression level"
// @Success      200  {file}    binary
// @Failure      400  {object}  types.ErrorResponse
// @Failure      503  {object}  types.ErrorResponse
// @Failure      504  {object}  types.ErrorResponse
// @Router       /api/optimize [post]
func (h *handlers) optimize(w http.ResponseWriter, r *http.Request) {
	h.process(w, r, EndpointOptimize, "_optimized", func(up upload) (operation, error) {
		opts, err := optimizeParams(up.params)
		if err != nil {
			return nil, err
		}
		return func(ctx context.Context) (*manager.Result, error) { return h.svc.Optimize(ctx, up.data, opts) }, nil
	})
}

// CompressMesh godoc
// @Summary      Draco-compress the meshes of a GLB
// @Tags         compression
// @Accept       application/octet-stream,multipart/form-data
// @Produce      model/gltf-binary
// @Param        force  query  bool  false  "Recompress even if already Draco-compressed"
// @Success      200  {file}    binary
// @Failure      400  {object}  types.ErrorResponse
// @Failure      503  {object}  types.ErrorResponse
// @Router       /api/compress/mesh [post]
func (h *handlers) compressMesh(w http.ResponseWriter, r *http.Request) {
	h.process(w, r, EndpointMesh, "_draco", func(up upload) (operation, error) {
		force, err := boolParam(up.params, "force")
		if err != nil {
			return nil, err
		}
		return func(ctx context.Context) (*manager.Result, error) { return h.svc.CompressMesh(ctx, up.data, force) }, nil
	})
}

// CompressTexture godoc
// @Summary      Encode one PNG or JPEG image to KTX2
// @Tags         compression
// @Accept       application/octet-stream,multipart/form-data
// @Produce      image/ktx2
// @Param        format  query  string  false  "etc1s or uastc"
// @Param        flip_y  query  bool    false  "Flip the image vertically"
// @Success      200  {file}    binary
// @Failure      415  {object}  types.ErrorResponse
// @Router       /api/compress/texture [post]
func (h *handlers) compressTexture(w http.ResponseWriter, r *http.Request) {
	h.process(w, r, EndpointTexture, "", func(up upload) (operation, error) {
		s, err := textureParams(up.params)
		if err != nil {
			return nil, err
		}
		return func(ctx context.Context) (*manager.Result, error) { return h.svc.CompressTexture(ctx, up.data, s) }, nil
	})
}

// CompressTextures godoc
// @Summary      Re-encode the textures embedded in a GLB
// @Tags         compression
// @Accept       application/octet-stream,multipart/form-data
// @Produce      model/gltf-binary
// @Param        format        query  string  false  "etc1s or uastc"
// @Param        force_format  query  bool    false  "Do not upgrade normal maps to uastc"
// @Success      200  {file}    binary
// @Failure      400  {object}  types.ErrorResponse
// @Router       /api/compress/textures [post]
func (h *handlers) compressTextures(w http.ResponseWriter, r *http.Request) {
	h.process(w, r, EndpointTextures, "_ktx2", func(up upload) (operation, error) {
		s, err := textureParams(up.params)
		if err != nil {
			return nil, err
		}
		return func(ctx context.Context) (*manager.Result, error) { return h.svc.CompressContainerTextures(ctx, up.data, s) }, nil
	})
}

// process reads the upload, runs the prepared operation under admission
// control and writes the binary result.
func (h *handlers) process(w http.ResponseWriter, r *http.Request, endpoint, suffix string, prep prepare) {
	up, err := readUpload(w, r)
	if err != nil {
		h.fail(w, r, endpoint, err)
		return
	}
	op, err := prep(up)
	if err != nil {
		h.fail(w, r, endpoint, err)
		return
	}
	ctx, cancel := joinContexts(serverBaseCtx, r.Context())
	defer cancel()

	var res *manager.Result
	err = h.ctrl.Do(ctx, endpoint, func(ctx context.Context) error {
		out, err := op(ctx)
		if err != nil {
			return err
		}
		res = out
		return nil
	})
	if err != nil {
		if r.Context().Err() != nil {
			logger := requestLogger(r)
			logger.Debug().Str("endpoint", endpoint).Err(err).Msg("client gone")
			return
		}
		if shuttingDown() {
			err = errShuttingDown
		}
		h.fail(w, r, endpoint, err)
		return
	}
	observeBytes(endpoint, res.OriginalSize, res.CompressedSize)

	ct, ext := contentTypeGLB, ".glb"
	if endpoint == EndpointTexture {
		ct, ext = contentTypeKTX2, ".ktx2"
	}
	hdr := w.Header()
	hdr.Set("Content-Type", ct)
	hdr.Set("Content-Length", strconv.Itoa(len(res.Data)))
	hdr.Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": outputName(up.filename, suffix, ext)}))
	setResultHeaders(hdr, res)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(res.Data)
}

func setResultHeaders(hdr http.Header, res *manager.Result) {
	hdr.Set(types.HeaderOriginalSize, strconv.Itoa(res.OriginalSize))
	hdr.Set(types.HeaderCompressedSize, strconv.Itoa(res.CompressedSize))
	hdr.Set(types.HeaderCompressionRatio, strconv.FormatFloat(res.Ratio(), 'f', 2, 64))
	hdr.Set(types.HeaderSizeReduction, strconv.FormatFloat(res.SavingsPercent(), 'f', 1, 64)+"%")
	hdr.Set(types.HeaderStrategy, string(res.Strategy.Route))
	hdr.Set(types.HeaderTexturesProcessed, strconv.Itoa(res.TexturesProcessed))
	if len(res.Warnings) > 0 {
		hdr.Set(types.HeaderWarnings, headerSafe(strings.Join(res.Warnings, "; ")))
	}
}

// headerSafe strips control characters and bounds the length of a header value.
func headerSafe(s string) string {
	const maxLen = 1024
	s = strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7f {
			return ' '
		}
		return r
	}, s)
	if len(s) > maxLen {
		s = s[:maxLen]
	}
	return s
}

// fail writes the error response for err and logs it.
func (h *handlers) fail(w http.ResponseWriter, r *http.Request, endpoint string, err error) {
	resp := errorResponse(err)
	if re, ok := admission.IsOverloaded(err); ok {
		IncrementRejection(endpoint, rejectionClass(re.Reason))
	}
	log := requestLogger(r)
	ev := log.Warn()
	if resp.Code >= 500 && resp.Code != http.StatusServiceUnavailable {
		ev = log.Error()
	}
	ev.Str("endpoint", endpoint).Int("status", resp.Code).Str("class", resp.Error).Err(err).Msg("request failed")
	writeErrorResponse(w, resp)
}

// Analyze godoc
// @Summary      Analyse a GLB and report the recommended strategy
// @Tags         analysis
// @Accept       application/octet-stream,multipart/form-data
// @Produce      json
// @Param        ignore_draco  query  bool  false  "Plan as if no Draco compression were present"
// @Success      200  {object}  types.AnalyzeResponse
// @Failure      400  {object}  types.ErrorResponse
// @Router       /api/analyze [post]
func (h *handlers) analyze(w http.ResponseWriter, r *http.Request) {
	up, err := readUpload(w, r)
	if err != nil {
		h.fail(w, r, EndpointAnalyze, err)
		return
	}
	ignoreDraco, err := boolParam(up.params, "ignore_draco")
	if err != nil {
		h.fail(w, r, EndpointAnalyze, err)
		return
	}
	ctx, cancel := joinContexts(serverBaseCtx, r.Context())
	defer cancel()

	var resp types.AnalyzeResponse
	err = h.ctrl.Do(ctx, EndpointAnalyze, func(ctx context.Context) error {
		a, s := h.svc.Analyze(up.data, ignoreDraco)
		if !a.Valid {
			return manager.ErrInvalidInput("analyze", fmt.Errorf("%w: %s", manager.ErrInvalidContainer, a.Reason))
		}
		resp = types.AnalyzeResponse{Analysis: a, Strategy: s, Textures: glb.Textures(up.data)}
		return nil
	})
	if err != nil {
		if r.Context().Err() != nil {
			return
		}
		if shuttingDown() {
			err = errShuttingDown
		}
		h.fail(w, r, EndpointAnalyze, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// QueueStatus godoc
// @Summary      Admission queue status per endpoint
// @Tags         status
// @Produce      json
// @Success      200  {object}  types.QueueStatusResponse
// @Router       /api/queue/status [get]
func (h *handlers) queueStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, types.QueueStatusResponse{
		Endpoints:      h.endpoints(),
		ServerTimeUnix: time.Now().Unix(),
	})
}

func (h *handlers) endpoints() []types.EndpointStatus {
	snaps := h.ctrl.SnapshotAll()
	out := make([]types.EndpointStatus, 0, len(snaps))
	for _, s := range snaps {
		out = append(out, endpointStatus(s))
	}
	return out
}

func endpointStatus(s admission.EndpointStats) types.EndpointStatus {
	return types.EndpointStatus{
		Endpoint:         s.Endpoint,
		Active:           s.Active,
		Queued:           s.Queued,
		MaxConcurrent:    s.MaxConcurrent,
		MaxQueueSize:     s.MaxQueueSize,
		QueueTimeoutMs:   s.QueueTimeout.Milliseconds(),
		RequestTimeoutMs: s.RequestTimeout.Milliseconds(),
		Completed:        s.Completed,
		Failed:           s.Failed,
		Rejected:         s.Rejected,
		QueueTimeouts:    s.QueueTimeouts,
		RequestTimeouts:  s.RequestTimeouts,
		Cancelled:        s.Cancelled,
		AvgProcessingMs:  s.AvgProcessing.Milliseconds(),
		MaxProcessingMs:  s.MaxProcessing.Milliseconds(),
		MaxQueued:        s.MaxQueued,
	}
}

func (h *handlers) getPolicy(w http.ResponseWriter, r *http.Request) {
	p := h.ctrl.Policy(chi.URLParam(r, "endpoint"))
	writeJSON(w, http.StatusOK, types.QueuePolicy{
		MaxConcurrent:    p.MaxConcurrent,
		MaxQueueSize:     p.MaxQueueSize,
		QueueTimeoutMs:   p.QueueTimeout.Milliseconds(),
		RequestTimeoutMs: p.RequestTimeout.Milliseconds(),
	})
}

// PutPolicy godoc
// @Summary      Replace the admission policy of an endpoint
// @Tags         admin
// @Accept       json
// @Produce      json
// @Param        endpoint  path  string             true  "Endpoint key"
// @Param        policy    body  types.QueuePolicy  true  "New policy"
// @Success      200  {object}  types.QueuePolicy
// @Failure      400  {object}  types.ErrorResponse
// @Router       /api/queue/{endpoint}/policy [put]
func (h *handlers) putPolicy(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "endpoint")
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	var in types.QueuePolicy
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	p := admission.Policy{
		MaxConcurrent:  in.MaxConcurrent,
		MaxQueueSize:   in.MaxQueueSize,
		QueueTimeout:   time.Duration(in.QueueTimeoutMs) * time.Millisecond,
		RequestTimeout: time.Duration(in.RequestTimeoutMs) * time.Millisecond,
	}
	if err := h.ctrl.SetPolicy(key, p); err != nil {
		writeErrorResponse(w, types.ErrorResponse{Error: errClassInvalidInput, Message: err.Error(), Code: http.StatusBadRequest})
		return
	}
	logger := requestLogger(r)
	logger.Info().Str("endpoint", key).Interface("policy", in).Msg("admission policy updated")
	h.getPolicy(w, r)
}

// Purge godoc
// @Summary      Reject every request waiting on an endpoint
// @Tags         admin
// @Produce      json
// @Param        endpoint  path  string  true  "Endpoint key"
// @Success      200  {object}  types.QueuePurgeResponse
// @Router       /api/queue/{endpoint}/purge [post]
func (h *handlers) purge(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "endpoint")
	n := h.ctrl.Purge(key)
	writeJSON(w, http.StatusOK, types.QueuePurgeResponse{Endpoint: key, Purged: n})
}

// ResetModule godoc
// @Summary      Reset a codec module and its circuit breaker
// @Tags         admin
// @Produce      json
// @Param        name  path  string  true  "mesh or texture"
// @Success      200  {object}  types.ModuleResetResponse
// @Failure      404  {object}  types.ErrorResponse
// @Router       /api/modules/{name}/reset [post]
func (h *handlers) resetModule(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	st, err := h.svc.ResetModule(name)
	if err != nil {
		h.fail(w, r, "modules", err)
		return
	}
	writeJSON(w, http.StatusOK, types.ModuleResetResponse{Module: name, State: string(st)})
}

// Status godoc
// @Summary      Service status
// @Tags         status
// @Produce      json
// @Success      200  {object}  types.StatusResponse
// @Router       /status [get]
func (h *handlers) status(w http.ResponseWriter, r *http.Request) {
	st := h.svc.Status()
	st.Endpoints = h.endpoints()
	writeJSON(w, http.StatusOK, st)
}
