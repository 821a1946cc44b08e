package httpapi

import (
	"io"

	"github.com/andybalholm/brotli"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/klauspost/compress/zstd"
)

// compressLevel applies to gzip/deflate and brotli. zstd maps it onto its own
// speed tiers.
const compressLevel = 5

// compressedTypes lists the response types worth encoding. Binary GLB and KTX2
// payloads are already compressed and pass through.
var compressedTypes = []string{"application/json", "text/plain", "text/html"}

// newCompressor returns chi's compressor with brotli and zstd registered in
// addition to gzip and deflate. Encoders added later take precedence.
func newCompressor() *middleware.Compressor {
	c := middleware.NewCompressor(compressLevel, compressedTypes...)
	c.SetEncoder("zstd", encoderZstd)
	c.SetEncoder("br", encoderBrotli)
	return c
}

func encoderBrotli(w io.Writer, level int) io.Writer {
	return brotli.NewWriterLevel(w, level)
}

func encoderZstd(w io.Writer, level int) io.Writer {
	enc, err := zstd.NewWriter(w,
		zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(level)),
		zstd.WithEncoderConcurrency(1),
	)
	if err != nil {
		// chi skips an encoding whose factory returns nil
		return nil
	}
	return enc
}
