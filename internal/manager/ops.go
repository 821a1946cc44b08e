package manager

import (
	"context"
	"fmt"

	"glbd/internal/codec"
	"glbd/internal/engine"
	"glbd/internal/glb"
)

// OptimizeOptions overrides the analysed strategy.
type OptimizeOptions struct {
	// IgnoreDraco plans as if the file carried no Draco compression.
	IgnoreDraco  bool
	SkipMesh     bool
	SkipTextures bool
	// Texture settings; zero fields take the manager defaults.
	Texture codec.TextureSettings
}

// Optimize analyses data, selects a strategy and runs the mesh pass then the
// texture pass. A texture failure after a successful mesh pass keeps the mesh
// result and is reported as a warning.
func (m *Manager) Optimize(ctx context.Context, data []byte, opts OptimizeOptions) (*Result, error) {
	a := glb.Analyze(data)
	if !a.Valid {
		return nil, ErrInvalidInput("optimize", fmt.Errorf("%w: %s", ErrInvalidContainer, a.Reason))
	}
	s := glb.Select(a, opts.IgnoreDraco)
	if opts.SkipMesh && s.CompressMesh {
		s.CompressMesh = false
		s.Reason += "; mesh skipped by request"
	}
	if opts.SkipTextures && s.CompressTextures {
		s.CompressTextures = false
		s.Reason += "; textures skipped by request"
	}
	s.Route = routeOf(s)
	settings := m.textureSettings(opts.Texture)
	if s.CompressTextures {
		if err := settings.Validate(); err != nil {
			return nil, err
		}
	}

	res := &Result{Data: data, Strategy: s}
	log := m.log.With().Str("op", "optimize").Str("route", string(s.Route)).Int("size", len(data)).Logger()
	if s.CompressMesh {
		out, err := m.compressMesh(ctx, data)
		if err != nil {
			m.noteError(err)
			log.Error().Err(err).Msg("mesh pass failed")
			return nil, fmt.Errorf("mesh compression: %w", err)
		}
		res.Data = out
		res.MeshCompressed = true
	}
	if s.CompressTextures {
		cr, err := m.compressContainer(ctx, res.Data, settings)
		switch {
		case err != nil && !res.MeshCompressed:
			m.noteError(err)
			log.Error().Err(err).Msg("texture pass failed")
			return nil, fmt.Errorf("texture compression: %w", err)
		case err != nil:
			m.noteError(err)
			log.Warn().Err(err).Msg("texture pass failed; keeping mesh result")
			res.Warnings = append(res.Warnings, "texture compression failed: "+err.Error())
		default:
			res.Data = cr.Data
			res.TexturesProcessed = cr.TexturesProcessed
			res.Warnings = append(res.Warnings, cr.Errors...)
		}
	}
	m.account(res, len(data))
	log.Info().Int("out", len(res.Data)).Int("textures", res.TexturesProcessed).Msg("optimized")
	return res, nil
}

// CompressMesh applies Draco compression. Files already Draco-compressed, or
// without meshes, pass through untouched unless force is set.
func (m *Manager) CompressMesh(ctx context.Context, data []byte, force bool) (*Result, error) {
	a := glb.Analyze(data)
	if !a.Valid {
		return nil, ErrInvalidInput("compress mesh", fmt.Errorf("%w: %s", ErrInvalidContainer, a.Reason))
	}
	res := &Result{Data: data, Strategy: glb.Strategy{Route: glb.RouteNone}}
	switch {
	case a.HasDracoCompression && !force:
		res.Strategy.Reason = "mesh already Draco-compressed"
	case !a.HasMeshes:
		res.Strategy.Reason = "no meshes"
	default:
		out, err := m.compressMesh(ctx, data)
		if err != nil {
			m.noteError(err)
			return nil, err
		}
		res.Data = out
		res.MeshCompressed = true
		res.Strategy = glb.Strategy{CompressMesh: true, Reason: "mesh compression requested", Route: glb.RouteMesh}
	}
	m.account(res, len(data))
	return res, nil
}

// CompressTexture encodes one PNG or JPEG image to KTX2.
func (m *Manager) CompressTexture(ctx context.Context, image []byte, s codec.TextureSettings) (*Result, error) {
	if _, err := codec.SniffImage(image); err != nil {
		return nil, invalidInputError{msg: "compress texture", err: err, unsupported: true}
	}
	s = m.textureSettings(s)
	if err := s.Validate(); err != nil {
		return nil, err
	}
	tr, err := engine.Call(ctx, m.texture, func(ctx context.Context, mod codec.TextureModule) (codec.TextureResult, error) {
		return mod.CompressTexture(ctx, image, s)
	})
	if err != nil {
		m.noteError(err)
		return nil, err
	}
	res := &Result{
		Data:              tr.Data,
		TexturesProcessed: 1,
		Format:            tr.Format,
		Strategy:          glb.Strategy{CompressTextures: true, Reason: "single texture", Route: glb.RouteTextures},
	}
	m.account(res, len(image))
	return res, nil
}

// CompressContainerTextures re-encodes the textures embedded in a GLB.
func (m *Manager) CompressContainerTextures(ctx context.Context, data []byte, s codec.TextureSettings) (*Result, error) {
	a := glb.Analyze(data)
	if !a.Valid {
		return nil, ErrInvalidInput("compress textures", fmt.Errorf("%w: %s", ErrInvalidContainer, a.Reason))
	}
	s = m.textureSettings(s)
	if err := s.Validate(); err != nil {
		return nil, err
	}
	res := &Result{Data: data, Format: s.Format, Strategy: glb.Strategy{Reason: "no textures", Route: glb.RouteNone}}
	if a.HasTextures {
		cr, err := m.compressContainer(ctx, data, s)
		if err != nil {
			m.noteError(err)
			return nil, err
		}
		res.Data = cr.Data
		res.TexturesProcessed = cr.TexturesProcessed
		res.Warnings = cr.Errors
		res.Strategy = glb.Strategy{CompressTextures: true, Reason: "texture compression requested", Route: glb.RouteTextures}
	}
	m.account(res, len(data))
	return res, nil
}

func (m *Manager) compressMesh(ctx context.Context, data []byte) ([]byte, error) {
	return engine.Call(ctx, m.mesh, func(ctx context.Context, mod codec.MeshModule) ([]byte, error) {
		return mod.CompressMesh(ctx, data)
	})
}

func (m *Manager) compressContainer(ctx context.Context, data []byte, s codec.TextureSettings) (codec.ContainerResult, error) {
	return engine.Call(ctx, m.texture, func(ctx context.Context, mod codec.TextureModule) (codec.ContainerResult, error) {
		return mod.CompressContainerTextures(ctx, data, s)
	})
}

// textureSettings fills unset fields from the manager defaults.
func (m *Manager) textureSettings(s codec.TextureSettings) codec.TextureSettings {
	d := m.textureDefaults
	if s.Format == "" {
		s.Format = d.Format
	}
	if s.Quality == 0 && s.Format == d.Format {
		s.Quality = d.Quality
	}
	if s.CompressionLevel == 0 {
		s.CompressionLevel = d.CompressionLevel
	}
	return s
}

func routeOf(s glb.Strategy) glb.Route {
	switch {
	case s.CompressMesh && s.CompressTextures:
		return glb.RouteFull
	case s.CompressMesh:
		return glb.RouteMesh
	case s.CompressTextures:
		return glb.RouteTextures
	default:
		return glb.RouteNone
	}
}

func (m *Manager) account(res *Result, in int) {
	res.OriginalSize = in
	res.CompressedSize = len(res.Data)
	m.optimizations.Add(1)
	m.bytesIn.Add(uint64(in))
	m.bytesOut.Add(uint64(res.CompressedSize))
}
