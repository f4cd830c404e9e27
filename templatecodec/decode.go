package templatecodec

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/arloliu/templar/chunk"
	"github.com/arloliu/templar/compress"
	"github.com/arloliu/templar/endian"
	"github.com/arloliu/templar/errs"
	"github.com/arloliu/templar/template"
)

// Decode deserializes a template artifact produced by Encode.
//
// The decoded template is re-validated before being returned, so it carries
// the same structural guarantees as a freshly assembled one. Truncated or
// corrupt payloads are rejected with an error wrapping
// errs.ErrMalformedTemplate.
//
// Note: The decoded template may retain references into data (in particular
// with no-op compression); callers must not modify data afterwards.
//
// Parameters:
//   - data: The serialized artifact (header + compressed payload)
//
// Returns:
//   - *template.Template: The decoded template
//   - error: Header, decompression, parse or validation error
func Decode(data []byte) (*template.Template, error) {
	var h Header
	if err := h.Parse(data, MagicTemplate); err != nil {
		return nil, err
	}

	payload, err := decompressPayload(&h, data[HeaderSize:])
	if err != nil {
		return nil, err
	}

	r := payloadReader{data: payload, engine: h.Engine()}

	chunkSize, err := r.uvarint()
	if err != nil {
		return nil, err
	}
	totalChunks, err := r.uvarint()
	if err != nil {
		return nil, err
	}

	contexts := make([]string, 0, capHint(h.ContextCount))
	for i := uint32(0); i < h.ContextCount; i++ {
		key, serr := r.str()
		if serr != nil {
			return nil, serr
		}
		contexts = append(contexts, key)
	}

	dictionary := make([]template.DictionaryEntry, 0, capHint(h.DictCount))
	for i := uint32(0); i < h.DictCount; i++ {
		entry, derr := r.dictEntry(contexts)
		if derr != nil {
			return nil, derr
		}
		dictionary = append(dictionary, entry)
	}

	rules := make([]template.Rule, 0, capHint(h.RuleCount))
	for i := uint32(0); i < h.RuleCount; i++ {
		left, lerr := r.ref()
		if lerr != nil {
			return nil, lerr
		}
		right, rerr := r.ref()
		if rerr != nil {
			return nil, rerr
		}
		overrides, oerr := r.overrides(contexts)
		if oerr != nil {
			return nil, oerr
		}
		rules = append(rules, template.Rule{Left: left, Right: right, Overrides: overrides})
	}

	top := make([]uint32, 0, capHint(h.TopLength))
	for i := uint32(0); i < h.TopLength; i++ {
		ref, rerr := r.ref()
		if rerr != nil {
			return nil, rerr
		}
		top = append(top, ref)
	}

	if r.pos != len(r.data) {
		return nil, fmt.Errorf("%w: %d trailing payload bytes", errs.ErrMalformedTemplate, len(r.data)-r.pos)
	}

	tpl := &template.Template{
		FormatVersion: int(h.Version),
		ChunkSize:     int(chunkSize),   //nolint:gosec
		TotalChunks:   int(totalChunks), //nolint:gosec
		Dictionary:    dictionary,
		Rules:         rules,
		TopSequence:   top,
		Contexts:      contexts,
	}
	if err := tpl.Validate(); err != nil {
		return nil, err
	}

	return tpl, nil
}

// DecodeDictionary deserializes a global-dictionary artifact produced by
// EncodeDictionary.
func DecodeDictionary(data []byte) (*chunk.Dictionary, error) {
	var h Header
	if err := h.Parse(data, MagicDictionary); err != nil {
		return nil, err
	}

	payload, err := decompressPayload(&h, data[HeaderSize:])
	if err != nil {
		return nil, err
	}

	r := payloadReader{data: payload, engine: h.Engine()}

	chunkSize, err := r.uvarint()
	if err != nil {
		return nil, err
	}

	entries := make([]chunk.Entry, 0, capHint(h.DictCount))
	for i := uint32(0); i < h.DictCount; i++ {
		addr, aerr := r.uint64()
		if aerr != nil {
			return nil, aerr
		}
		freq, ferr := r.uvarint()
		if ferr != nil {
			return nil, ferr
		}
		content, cerr := r.blob()
		if cerr != nil {
			return nil, cerr
		}
		overrides, oerr := r.keyedOverrides()
		if oerr != nil {
			return nil, oerr
		}
		entries = append(entries, chunk.Entry{
			Addr:      addr,
			Bytes:     content,
			Freq:      int(freq), //nolint:gosec
			Overrides: overrides,
		})
	}

	if r.pos != len(r.data) {
		return nil, fmt.Errorf("%w: %d trailing payload bytes", errs.ErrMalformedTemplate, len(r.data)-r.pos)
	}

	return chunk.NewDictionaryWithEntries(int(chunkSize), entries), nil //nolint:gosec
}

func decompressPayload(h *Header, compressed []byte) ([]byte, error) {
	codec, err := compress.GetCodec(h.Compression())
	if err != nil {
		return nil, err
	}
	payload, err := codec.Decompress(compressed)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrMalformedTemplate, err)
	}
	if uint32(len(payload)) != h.PayloadSize { //nolint:gosec
		return nil, fmt.Errorf("%w: payload size %d, header declares %d",
			errs.ErrMalformedTemplate, len(payload), h.PayloadSize)
	}

	return payload, nil
}

// capHint bounds the preallocation for a header-declared count so a corrupt
// header cannot force a huge allocation before parsing fails.
func capHint(count uint32) int {
	const maxPrealloc = 1 << 16
	if count > maxPrealloc {
		return maxPrealloc
	}

	return int(count)
}

// payloadReader is a bounds-checked cursor over the decompressed payload.
// Every read failure wraps errs.ErrMalformedTemplate.
type payloadReader struct {
	data   []byte
	engine endian.EndianEngine
	pos    int
}

func (r *payloadReader) uvarint() (uint64, error) {
	v, n := binary.Uvarint(r.data[r.pos:])
	if n <= 0 {
		return 0, fmt.Errorf("%w: truncated varint at offset %d", errs.ErrMalformedTemplate, r.pos)
	}
	r.pos += n

	return v, nil
}

func (r *payloadReader) ref() (uint32, error) {
	v, err := r.uvarint()
	if err != nil {
		return 0, err
	}
	if v > math.MaxUint32 {
		return 0, fmt.Errorf("%w: symbol reference %d out of range", errs.ErrMalformedTemplate, v)
	}

	return uint32(v), nil
}

func (r *payloadReader) uint64() (uint64, error) {
	if len(r.data)-r.pos < 8 {
		return 0, fmt.Errorf("%w: truncated payload at offset %d", errs.ErrMalformedTemplate, r.pos)
	}
	v := r.engine.Uint64(r.data[r.pos : r.pos+8])
	r.pos += 8

	return v, nil
}

func (r *payloadReader) byte() (byte, error) {
	if r.pos >= len(r.data) {
		return 0, fmt.Errorf("%w: truncated payload at offset %d", errs.ErrMalformedTemplate, r.pos)
	}
	b := r.data[r.pos]
	r.pos++

	return b, nil
}

// take returns the next n payload bytes without copying. The payload buffer
// is owned by the decoder, so subslices are safe to retain.
func (r *payloadReader) take(n uint64) ([]byte, error) {
	if n > uint64(len(r.data)-r.pos) { //nolint:gosec
		return nil, fmt.Errorf("%w: truncated payload at offset %d", errs.ErrMalformedTemplate, r.pos)
	}
	b := r.data[r.pos : r.pos+int(n)] //nolint:gosec
	r.pos += int(n)                   //nolint:gosec

	return b, nil
}

func (r *payloadReader) str() (string, error) {
	b, err := r.blob()
	if err != nil {
		return "", err
	}

	return string(b), nil
}

func (r *payloadReader) blob() ([]byte, error) {
	n, err := r.uvarint()
	if err != nil {
		return nil, err
	}

	return r.take(n)
}

func (r *payloadReader) dictEntry(contexts []string) (template.DictionaryEntry, error) {
	var entry template.DictionaryEntry

	addr, err := r.uint64()
	if err != nil {
		return entry, err
	}
	flag, err := r.byte()
	if err != nil {
		return entry, err
	}
	size, err := r.uvarint()
	if err != nil {
		return entry, err
	}
	if size > math.MaxUint32 {
		return entry, fmt.Errorf("%w: chunk size %d out of range", errs.ErrMalformedTemplate, size)
	}

	entry.Addr = addr
	entry.Size = uint32(size)
	if flag&entryFlagInline != 0 {
		content, cerr := r.take(size)
		if cerr != nil {
			return entry, cerr
		}
		entry.Bytes = content
	}

	overrides, err := r.overrides(contexts)
	if err != nil {
		return entry, err
	}
	entry.Overrides = overrides

	return entry, nil
}

// overrides parses a context-indexed override map. Indices must resolve into
// the declared context table.
func (r *payloadReader) overrides(contexts []string) (map[string][]byte, error) {
	count, err := r.uvarint()
	if err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, nil
	}

	m := make(map[string][]byte, capHint32(count))
	for i := uint64(0); i < count; i++ {
		idx, ierr := r.uvarint()
		if ierr != nil {
			return nil, ierr
		}
		if idx >= uint64(len(contexts)) {
			return nil, fmt.Errorf("%w: override context index %d out of range", errs.ErrMalformedTemplate, idx)
		}
		payload, perr := r.blob()
		if perr != nil {
			return nil, perr
		}
		m[contexts[idx]] = payload
	}

	return m, nil
}

// keyedOverrides parses an override map with inline string keys.
func (r *payloadReader) keyedOverrides() (map[string][]byte, error) {
	count, err := r.uvarint()
	if err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, nil
	}

	m := make(map[string][]byte, capHint32(count))
	for i := uint64(0); i < count; i++ {
		key, kerr := r.str()
		if kerr != nil {
			return nil, kerr
		}
		payload, perr := r.blob()
		if perr != nil {
			return nil, perr
		}
		m[key] = payload
	}

	return m, nil
}

func capHint32(count uint64) int {
	if count > math.MaxUint32 {
		return math.MaxUint32
	}

	return capHint(uint32(count))
}
