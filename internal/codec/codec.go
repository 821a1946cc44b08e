// Package codec defines the compression engines driven by the service and a
// subprocess-backed implementation of them.
//
// Engines are stateful and non-reentrant: callers must serialize access
// (see internal/engine) and drop a handle after repeated failures.
package codec

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
)

// MeshModule compresses mesh geometry inside a GLB container.
type MeshModule interface {
	CompressMesh(ctx context.Context, glb []byte) ([]byte, error)
	Close() error
}

// TextureModule encodes textures to KTX2 / Basis Universal.
type TextureModule interface {
	CompressTexture(ctx context.Context, image []byte, s TextureSettings) (TextureResult, error)
	CompressContainerTextures(ctx context.Context, glb []byte, s TextureSettings) (ContainerResult, error)
	Close() error
}

// Format is a Basis Universal supercompression mode.
type Format string

const (
	// FormatETC1S favours size.
	FormatETC1S Format = "etc1s"
	// FormatUASTC favours fidelity; used for normal maps.
	FormatUASTC Format = "uastc"
)

// TextureSettings tunes texture encoding.
type TextureSettings struct {
	Format Format `json:"format"`
	// Quality is the ETC1S quality level (1-255) or the UASTC level (0-4).
	Quality int `json:"quality"`
	// CompressionLevel is the ETC1S effort level (0-5).
	CompressionLevel int  `json:"compression_level"`
	FlipY            bool `json:"flip_y"`
	// ForceFormat disables the normal-map upgrade to UASTC.
	ForceFormat bool `json:"force_format"`
}

// DefaultTextureSettings mirrors the encoder defaults.
func DefaultTextureSettings() TextureSettings {
	return TextureSettings{Format: FormatETC1S, Quality: 128, CompressionLevel: 2}
}

// ErrInvalidSettings is wrapped by Validate failures.
var ErrInvalidSettings = errors.New("invalid texture settings")

// Validate checks ranges for the selected format.
func (s TextureSettings) Validate() error {
	switch s.Format {
	case FormatETC1S:
		if s.Quality < 1 || s.Quality > 255 {
			return fmt.Errorf("%w: etc1s quality %d out of range 1-255", ErrInvalidSettings, s.Quality)
		}
		if s.CompressionLevel < 0 || s.CompressionLevel > 5 {
			return fmt.Errorf("%w: compression level %d out of range 0-5", ErrInvalidSettings, s.CompressionLevel)
		}
	case FormatUASTC:
		if s.Quality < 0 || s.Quality > 4 {
			return fmt.Errorf("%w: uastc level %d out of range 0-4", ErrInvalidSettings, s.Quality)
		}
	default:
		return fmt.Errorf("%w: unknown format %q", ErrInvalidSettings, s.Format)
	}
	return nil
}

// highFidelity returns the settings used for textures upgraded to UASTC.
func (s TextureSettings) highFidelity() TextureSettings {
	hf := s
	hf.Format = FormatUASTC
	if s.Format != FormatUASTC {
		hf.Quality = 2
	}
	return hf
}

// TextureResult describes one encoded image.
type TextureResult struct {
	Data           []byte
	Format         Format
	OriginalSize   int
	CompressedSize int
	Ratio          float64
}

// ContainerResult describes a GLB whose textures were re-encoded. Errors
// lists passes that failed; textures in those passes are left untouched.
type ContainerResult struct {
	Data              []byte
	TexturesProcessed int
	Errors            []string
}

// IsNormalMapName reports whether a texture or image name looks like a
// normal map.
func IsNormalMapName(name string) bool {
	n := strings.ToLower(name)
	return strings.Contains(n, "normal") || strings.Contains(n, "nrm") || strings.Contains(n, "_n.")
}

// ErrUnsupportedImage is returned for inputs that are neither PNG nor JPEG.
var ErrUnsupportedImage = errors.New("unsupported image format")

var (
	pngMagic  = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}
	jpegMagic = []byte{0xff, 0xd8, 0xff}
)

// SniffImage returns the file extension for a PNG or JPEG payload.
func SniffImage(data []byte) (string, error) {
	switch {
	case bytes.HasPrefix(data, pngMagic):
		return ".png", nil
	case bytes.HasPrefix(data, jpegMagic):
		return ".jpg", nil
	default:
		return "", ErrUnsupportedImage
	}
}
