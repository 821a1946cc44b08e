package codec

import (
	"context"

	"glbd/internal/engine"
)

// GltfTransform drives the gltf-transform CLI for Draco mesh compression.
type GltfTransform struct {
	t   *tool
	tmp *scratch
}

// LoadGltfTransform locates and probes gltf-transform and prepares a scratch
// directory. This is the expensive load-and-validate step of the mesh module.
func LoadGltfTransform(ctx context.Context, cfg ToolConfig) (*GltfTransform, error) {
	bin, err := discover(cfg.GltfTransformBin, binGltfTransform)
	if err != nil {
		return nil, err
	}
	t, err := probe(ctx, binGltfTransform, bin, cfg.ProbeTimeout, cfg.Logger)
	if err != nil {
		return nil, err
	}
	tmp, err := newScratch(cfg.ScratchDir, "glbd-gltf-*")
	if err != nil {
		return nil, err
	}
	return &GltfTransform{t: t, tmp: tmp}, nil
}

// Version returns the probed tool version.
func (g *GltfTransform) Version() string { return g.t.version }

// CompressMesh applies Draco geometry compression.
func (g *GltfTransform) CompressMesh(ctx context.Context, data []byte) ([]byte, error) {
	return g.tmp.transform(data, ".glb", ".glb", func(in, out string) error {
		return g.t.run(ctx, g.tmp.dir, "draco", in, out)
	})
}

// encodeTextures runs one KTX2 pass over the container at in.
func (g *GltfTransform) encodeTextures(ctx context.Context, in, out string, p pass) error {
	return g.t.run(ctx, g.tmp.dir, textureArgs(in, out, p)...)
}

func textureArgs(in, out string, p pass) []string {
	s := p.settings
	args := []string{string(s.Format), in, out}
	switch s.Format {
	case FormatETC1S:
		args = append(args, "--quality", itoa(s.Quality), "--compression", itoa(s.CompressionLevel))
	case FormatUASTC:
		args = append(args, "--level", itoa(s.Quality))
	}
	if p.slots != "" {
		args = append(args, "--slots", p.slots)
	}
	if p.filter != "" {
		args = append(args, "--filter", p.filter)
	}
	return args
}

// Close removes the scratch directory.
func (g *GltfTransform) Close() error { return g.tmp.Close() }

// MeshLoader adapts LoadGltfTransform to an engine loader.
func MeshLoader(cfg ToolConfig) engine.Loader[MeshModule] {
	return func(ctx context.Context) (MeshModule, error) {
		return LoadGltfTransform(ctx, cfg)
	}
}
