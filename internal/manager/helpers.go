package manager

import (
	"glbd/internal/codec"
	"glbd/internal/glb"
)

// Result is the outcome of a compression operation.
type Result struct {
	Data              []byte
	OriginalSize      int
	CompressedSize    int
	Strategy          glb.Strategy
	MeshCompressed    bool
	TexturesProcessed int
	// Format is the texture format, when textures were encoded.
	Format   codec.Format
	Warnings []string
}

// Ratio is original size over compressed size; 0 for empty output.
func (r *Result) Ratio() float64 {
	if r.CompressedSize == 0 {
		return 0
	}
	return float64(r.OriginalSize) / float64(r.CompressedSize)
}

// SavingsPercent is the size reduction in percent; negative when the output grew.
func (r *Result) SavingsPercent() float64 {
	if r.OriginalSize == 0 {
		return 0
	}
	return (1 - float64(r.CompressedSize)/float64(r.OriginalSize)) * 100
}
