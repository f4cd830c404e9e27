package templatecodec

import (
	"encoding/binary"
	"fmt"
	"slices"

	"github.com/arloliu/templar/chunk"
	"github.com/arloliu/templar/compress"
	"github.com/arloliu/templar/internal/options"
	"github.com/arloliu/templar/internal/pool"
	"github.com/arloliu/templar/template"
)

// Encode serializes a template to the binary wire format.
//
// The template is validated first; a malformed template is never encoded.
// Encoding is deterministic for a given template and option set.
//
// Parameters:
//   - t: Template to serialize
//   - opts: Optional configuration (compression, byte order)
//
// Returns:
//   - []byte: The serialized artifact (header + compressed payload)
//   - error: Validation or compression error
func Encode(t *template.Template, opts ...Option) ([]byte, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}

	cfg := NewCodecConfig()
	if err := options.Apply(cfg, opts...); err != nil {
		return nil, err
	}

	h := newHeader(MagicTemplate)
	h.SetCompression(cfg.compression)
	h.SetBigEndian(cfg.bigEndian)
	h.DictCount = uint32(len(t.Dictionary))   //nolint:gosec
	h.RuleCount = uint32(len(t.Rules))        //nolint:gosec
	h.TopLength = uint32(len(t.TopSequence))  //nolint:gosec
	h.ContextCount = uint32(len(t.Contexts))  //nolint:gosec
	engine := h.Engine()

	buf := pool.GetPayloadBuffer()
	defer pool.PutPayloadBuffer(buf)

	b := buf.B
	b = binary.AppendUvarint(b, uint64(t.ChunkSize))   //nolint:gosec
	b = binary.AppendUvarint(b, uint64(t.TotalChunks)) //nolint:gosec

	for _, key := range t.Contexts {
		b = appendString(b, key)
	}

	for _, entry := range t.Dictionary {
		b = engine.AppendUint64(b, entry.Addr)
		var flag byte
		if entry.Inline() {
			flag |= entryFlagInline
		}
		b = append(b, flag)
		b = binary.AppendUvarint(b, uint64(entry.Size))
		if entry.Inline() {
			b = append(b, entry.Bytes...)
		}
		b = appendOverrides(b, t.Contexts, entry.Overrides)
	}

	for _, rule := range t.Rules {
		b = binary.AppendUvarint(b, uint64(rule.Left))
		b = binary.AppendUvarint(b, uint64(rule.Right))
		b = appendOverrides(b, t.Contexts, rule.Overrides)
	}

	for _, ref := range t.TopSequence {
		b = binary.AppendUvarint(b, uint64(ref))
	}
	buf.B = b

	return finish(h, cfg, b)
}

// EncodeDictionary serializes a global dictionary to a reusable artifact.
func EncodeDictionary(d *chunk.Dictionary, opts ...Option) ([]byte, error) {
	cfg := NewCodecConfig()
	if err := options.Apply(cfg, opts...); err != nil {
		return nil, err
	}

	h := newHeader(MagicDictionary)
	h.SetCompression(cfg.compression)
	h.SetBigEndian(cfg.bigEndian)
	h.DictCount = uint32(d.Len()) //nolint:gosec
	engine := h.Engine()

	buf := pool.GetPayloadBuffer()
	defer pool.PutPayloadBuffer(buf)

	b := buf.B
	b = binary.AppendUvarint(b, uint64(d.ChunkSize())) //nolint:gosec

	for _, entry := range d.Entries() {
		b = engine.AppendUint64(b, entry.Addr)
		b = binary.AppendUvarint(b, uint64(entry.Freq)) //nolint:gosec
		b = binary.AppendUvarint(b, uint64(len(entry.Bytes)))
		b = append(b, entry.Bytes...)
		b = appendKeyedOverrides(b, entry.Overrides)
	}
	buf.B = b

	return finish(h, cfg, b)
}

// finish compresses the payload and prepends the header.
func finish(h *Header, cfg *CodecConfig, payload []byte) ([]byte, error) {
	h.PayloadSize = uint32(len(payload)) //nolint:gosec

	codec, err := compress.GetCodec(cfg.compression)
	if err != nil {
		return nil, err
	}
	compressed, err := codec.Compress(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to compress payload: %w", err)
	}
	if len(compressed) == 0 && len(payload) > 0 {
		// LZ4 block compression yields no output for incompressible data;
		// store the payload uncompressed instead.
		h.SetCompression(compress.TypeNone)
		compressed = payload
	}

	out := make([]byte, HeaderSize+len(compressed))
	copy(out, h.Bytes())
	copy(out[HeaderSize:], compressed)

	return out, nil
}

const entryFlagInline = 0x01

func appendString(b []byte, s string) []byte {
	b = binary.AppendUvarint(b, uint64(len(s)))
	return append(b, s...)
}

// appendOverrides serializes an override map against the sorted context
// table: a count followed by (context index, payload) pairs in table order.
func appendOverrides(b []byte, contexts []string, overrides map[string][]byte) []byte {
	b = binary.AppendUvarint(b, uint64(len(overrides)))
	for i, key := range contexts {
		payload, ok := overrides[key]
		if !ok {
			continue
		}
		b = binary.AppendUvarint(b, uint64(i)) //nolint:gosec
		b = binary.AppendUvarint(b, uint64(len(payload)))
		b = append(b, payload...)
	}

	return b
}

// appendKeyedOverrides serializes an override map with inline string keys,
// in sorted key order. Used by the dictionary artifact, which carries no
// context table.
func appendKeyedOverrides(b []byte, overrides map[string][]byte) []byte {
	b = binary.AppendUvarint(b, uint64(len(overrides)))
	for _, key := range sortedKeys(overrides) {
		b = appendString(b, key)
		payload := overrides[key]
		b = binary.AppendUvarint(b, uint64(len(payload)))
		b = append(b, payload...)
	}

	return b
}

func sortedKeys(m map[string][]byte) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	return keys
}
