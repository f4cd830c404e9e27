package templatecodec

import (
	"fmt"

	"github.com/arloliu/templar/compress"
	"github.com/arloliu/templar/endian"
	"github.com/arloliu/templar/errs"
	"github.com/arloliu/templar/template"
)

const (
	// HeaderSize is the fixed byte length of the wire header.
	HeaderSize = 24

	// MagicTemplate marks a serialized template artifact.
	MagicTemplate uint16 = 0xEC11
	// MagicDictionary marks a serialized global-dictionary artifact.
	MagicDictionary uint16 = 0xEC1D
)

const (
	flagBigEndian       = 0x01
	compressionShift    = 1
	compressionFlagMask = 0x07
)

// Header is the fixed-size section preceding the compressed payload.
//
// Layout:
//   - bytes 0-1: magic number, always little-endian
//   - byte 2: format version
//   - byte 3: flags (bit 0: big-endian payload integers, bits 1-3:
//     compression type)
//   - bytes 4-23: dictionary entry count, rule count, top-sequence length,
//     context count and uncompressed payload size, each uint32 in the
//     flagged byte order
type Header struct {
	Magic        uint16
	Version      uint8
	Flags        uint8
	DictCount    uint32
	RuleCount    uint32
	TopLength    uint32
	ContextCount uint32
	PayloadSize  uint32
}

func newHeader(magic uint16) *Header {
	h := &Header{
		Magic:   magic,
		Version: template.FormatVersion,
	}
	h.SetCompression(compress.TypeZstd)

	return h
}

// Compression returns the compression type recorded in the flags.
func (h *Header) Compression() compress.Type {
	return compress.Type((h.Flags >> compressionShift) & compressionFlagMask)
}

// SetCompression records the compression type in the flags.
func (h *Header) SetCompression(t compress.Type) {
	h.Flags = (h.Flags &^ (compressionFlagMask << compressionShift)) | (uint8(t) << compressionShift)
}

// IsBigEndian reports whether payload integers use big-endian byte order.
func (h *Header) IsBigEndian() bool {
	return h.Flags&flagBigEndian != 0
}

// SetBigEndian sets the payload byte order flag.
func (h *Header) SetBigEndian(bigEndian bool) {
	if bigEndian {
		h.Flags |= flagBigEndian
	} else {
		h.Flags &^= flagBigEndian
	}
}

// Engine returns the endian engine matching the header flags.
func (h *Header) Engine() endian.EndianEngine {
	if h.IsBigEndian() {
		return endian.GetBigEndianEngine()
	}

	return endian.GetLittleEndianEngine()
}

// Bytes serializes the header.
func (h *Header) Bytes() []byte {
	b := make([]byte, HeaderSize)

	// Magic, version and flags are byte-order independent so the decoder
	// can read them before knowing the endianness.
	b[0] = byte(h.Magic)
	b[1] = byte(h.Magic >> 8)
	b[2] = h.Version
	b[3] = h.Flags

	engine := h.Engine()
	engine.PutUint32(b[4:8], h.DictCount)
	engine.PutUint32(b[8:12], h.RuleCount)
	engine.PutUint32(b[12:16], h.TopLength)
	engine.PutUint32(b[16:20], h.ContextCount)
	engine.PutUint32(b[20:24], h.PayloadSize)

	return b
}

// Parse reads the header from data and validates magic, version and flags.
func (h *Header) Parse(data []byte, wantMagic uint16) error {
	if len(data) < HeaderSize {
		return fmt.Errorf("%w: need %d bytes, have %d", errs.ErrInvalidHeaderSize, HeaderSize, len(data))
	}

	h.Magic = uint16(data[0]) | uint16(data[1])<<8
	if h.Magic != wantMagic {
		return fmt.Errorf("%w: %#04x", errs.ErrInvalidMagicNumber, h.Magic)
	}

	h.Version = data[2]
	if h.Version != template.FormatVersion {
		return fmt.Errorf("%w: version %d, supported %d", errs.ErrInvalidFormatVersion, h.Version, template.FormatVersion)
	}

	h.Flags = data[3]
	if !h.Compression().Valid() {
		return fmt.Errorf("%w: %d", errs.ErrInvalidCompressionType, h.Compression())
	}

	engine := h.Engine()
	h.DictCount = engine.Uint32(data[4:8])
	h.RuleCount = engine.Uint32(data[8:12])
	h.TopLength = engine.Uint32(data[12:16])
	h.ContextCount = engine.Uint32(data[16:20])
	h.PayloadSize = engine.Uint32(data[20:24])

	return nil
}
