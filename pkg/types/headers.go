package types

// Response headers set on compressed binary responses.
const (
	HeaderOriginalSize      = "X-Original-Size"
	HeaderCompressedSize    = "X-Compressed-Size"
	HeaderCompressionRatio  = "X-Compression-Ratio"
	HeaderSizeReduction     = "X-Size-Reduction"
	HeaderStrategy          = "X-Compression-Strategy"
	HeaderTexturesProcessed = "X-Textures-Processed"
	HeaderWarnings          = "X-Compression-Warnings"
)
