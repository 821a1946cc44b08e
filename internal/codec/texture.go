package codec

import (
	"context"
	"fmt"
	"strconv"

	"glbd/internal/engine"
	"glbd/internal/glb"
)

// Textures combines toktx for standalone images with gltf-transform for
// textures embedded in a container.
type Textures struct {
	toktx *tool
	gltf  *GltfTransform
}

// LoadTextures locates and probes both encoders.
func LoadTextures(ctx context.Context, cfg ToolConfig) (*Textures, error) {
	bin, err := discover(cfg.ToktxBin, binToktx)
	if err != nil {
		return nil, err
	}
	tk, err := probe(ctx, binToktx, bin, cfg.ProbeTimeout, cfg.Logger)
	if err != nil {
		return nil, err
	}
	g, err := LoadGltfTransform(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &Textures{toktx: tk, gltf: g}, nil
}

// CompressTexture encodes a PNG or JPEG image to KTX2.
func (x *Textures) CompressTexture(ctx context.Context, image []byte, s TextureSettings) (TextureResult, error) {
	if err := s.Validate(); err != nil {
		return TextureResult{}, err
	}
	ext, err := SniffImage(image)
	if err != nil {
		return TextureResult{}, err
	}
	tmp := x.gltf.tmp
	out, err := tmp.transform(image, ext, ".ktx2", func(in, out string) error {
		return x.toktx.run(ctx, tmp.dir, toktxArgs(in, out, s)...)
	})
	if err != nil {
		return TextureResult{}, err
	}
	return TextureResult{
		Data:           out,
		Format:         s.Format,
		OriginalSize:   len(image),
		CompressedSize: len(out),
		Ratio:          ratio(len(image), len(out)),
	}, nil
}

func toktxArgs(in, out string, s TextureSettings) []string {
	args := []string{"--t2", "--genmipmap", "--encode", string(s.Format)}
	switch s.Format {
	case FormatETC1S:
		args = append(args, "--clevel", itoa(s.CompressionLevel), "--qlevel", itoa(s.Quality))
	case FormatUASTC:
		args = append(args, "--uastc_quality", itoa(s.Quality), "--zcmp", "18")
	}
	if s.FlipY {
		args = append(args, "--lower_left_maps_to_s0t0")
	}
	return append(args, out, in)
}

// CompressContainerTextures re-encodes every texture of a GLB. A failed pass
// is reported in Errors and leaves its textures unchanged.
func (x *Textures) CompressContainerTextures(ctx context.Context, data []byte, s TextureSettings) (ContainerResult, error) {
	if err := s.Validate(); err != nil {
		return ContainerResult{}, err
	}
	passes := planPasses(PlanTextures(glb.Textures(data), s), s)
	res := ContainerResult{Data: data}
	tmp := x.gltf.tmp
	for _, p := range passes {
		out, err := tmp.transform(res.Data, ".glb", ".glb", func(in, out string) error {
			return x.gltf.encodeTextures(ctx, in, out, p)
		})
		if err != nil {
			if ctx.Err() != nil {
				return ContainerResult{}, err
			}
			res.Errors = append(res.Errors, fmt.Sprintf("%s pass: %v", p.settings.Format, err))
			continue
		}
		res.Data = out
		res.TexturesProcessed += p.count
	}
	if len(passes) > 0 && res.TexturesProcessed == 0 {
		return res, fmt.Errorf("texture compression failed: %s", res.Errors[0])
	}
	return res, nil
}

// Close releases the gltf-transform scratch directory.
func (x *Textures) Close() error { return x.gltf.Close() }

// TextureLoader adapts LoadTextures to an engine loader.
func TextureLoader(cfg ToolConfig) engine.Loader[TextureModule] {
	return func(ctx context.Context) (TextureModule, error) {
		return LoadTextures(ctx, cfg)
	}
}

func ratio(orig, compressed int) float64 {
	if compressed == 0 {
		return 0
	}
	return float64(orig) / float64(compressed)
}

func itoa(n int) string { return strconv.Itoa(n) }
