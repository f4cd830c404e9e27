// Package templatecodec serializes templates and global dictionaries to a
// compact binary wire format.
//
// The abstract template model is the contract; this codec is one faithful
// encoding of it, provided so templates and dictionaries can be stored and
// exchanged. The layout is a fixed header (see Header) followed by a
// compressed payload of varint-encoded sections: metadata, contexts,
// dictionary entries, rules and the top-level sequence. Override maps are
// serialized against the sorted context table, so encoding is deterministic:
// the same template always produces the same bytes under the same options.
//
// Decoding re-validates the template before returning it, so a decoded
// template carries the same structural guarantees as an assembled one.
package templatecodec

import (
	"github.com/arloliu/templar/compress"
	"github.com/arloliu/templar/internal/options"
)

// CodecConfig holds the wire-format options applied when encoding.
type CodecConfig struct {
	compression compress.Type
	bigEndian   bool
}

// Option configures encoding.
type Option = options.Option[*CodecConfig]

// NewCodecConfig creates a config with default settings: Zstd compression,
// little-endian payload integers.
func NewCodecConfig() *CodecConfig {
	return &CodecConfig{
		compression: compress.TypeZstd,
	}
}

// WithCompression selects the payload compression algorithm.
func WithCompression(t compress.Type) Option {
	return options.New(func(cfg *CodecConfig) error {
		if _, err := compress.GetCodec(t); err != nil {
			return err
		}
		cfg.compression = t

		return nil
	})
}

// WithLittleEndian encodes payload integers in little-endian byte order.
// This is the default.
func WithLittleEndian() Option {
	return options.NoError(func(cfg *CodecConfig) {
		cfg.bigEndian = false
	})
}

// WithBigEndian encodes payload integers in big-endian byte order.
func WithBigEndian() Option {
	return options.NoError(func(cfg *CodecConfig) {
		cfg.bigEndian = true
	})
}
