package compress

// ZstdCompressor provides Zstandard compression for template payloads.
//
// Zstd favors compression ratio over speed, making it the right default for
// templates that are stored or transmitted and decoded infrequently. The
// implementation is selected at build time: the pure-Go klauspost encoder by
// default, or the cgo gozstd binding when the gozstd build tag is set.
type ZstdCompressor struct{}

var _ Codec = (*ZstdCompressor)(nil)

// NewZstdCompressor creates a new Zstd compressor with default settings.
func NewZstdCompressor() ZstdCompressor {
	return ZstdCompressor{}
}
