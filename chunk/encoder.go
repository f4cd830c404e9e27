// Package chunk implements the chunker and dictionary builder: it splits a
// byte stream into chunks, deduplicates them through content addresses, and
// emits the flat symbol sequence that rule induction contracts.
//
// The Encoder consumes the stream in bounded memory and captures the raw
// bytes of each new symbol at its first occurrence, so no second pass over
// the input is needed. Identical chunk content anywhere in the stream, or
// content already present in a preloaded global dictionary, always maps to
// the same symbol id. Content addresses are never trusted alone: every hash
// hit is verified with a full byte comparison, and distinct contents sharing
// an address keep distinct symbol ids.
package chunk

import (
	"fmt"
	"io"
	"math"

	"github.com/arloliu/templar/errs"
	"github.com/arloliu/templar/grammar"
	"github.com/arloliu/templar/internal/collision"
	"github.com/arloliu/templar/internal/hash"
	"github.com/arloliu/templar/internal/options"
	"github.com/arloliu/templar/template"
)

// MaxSymbolCount caps the dictionary id space. Reaching it means a colliding
// chunk cannot be assigned a fresh id.
const MaxSymbolCount = math.MaxUint32 - 1

// Encoder ingests a byte stream and produces a Template.
//
// Feed the stream with Write (the Encoder implements io.Writer), then call
// Finish to run rule induction and assemble the template. Any structural
// failure aborts the whole encode: Finish either returns a complete template
// or no template at all.
//
// Note: The Encoder is NOT thread-safe. Each encoder instance should be used
// by a single goroutine at a time.
//
// Note: The Encoder is NOT reusable. After calling Finish, a new encoder must
// be created for further encoding.
type Encoder struct {
	cfg *EncoderConfig

	split   *splitter
	tracker *collision.Tracker

	entries     []template.DictionaryEntry
	seq         []uint32
	totalChunks int

	finished bool
	err      error // sticky; Finish refuses to assemble after a failed Write
}

// NewEncoder creates a new Encoder with the given options.
//
// Parameters:
//   - opts: Optional configuration (chunk size, pair-frequency threshold,
//     content-defined chunking, contexts, global dictionary, overrides)
//
// Returns:
//   - *Encoder: New encoder instance ready for streaming input
//   - error: ErrInvalidChunkSize, ErrInvalidPairFrequency,
//     ErrInvalidContext or ErrChunkSizeMismatch on invalid configuration
func NewEncoder(opts ...Option) (*Encoder, error) {
	cfg := NewEncoderConfig()
	if err := options.Apply(cfg, opts...); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	e := &Encoder{
		cfg:     cfg,
		tracker: collision.NewTracker(),
	}
	e.split = newSplitter(cfg.chunkSize, cfg.cdc, e.emitChunk)

	return e, nil
}

// Write feeds stream bytes to the encoder. It implements io.Writer, so the
// input can be streamed with io.Copy without buffering the whole file.
func (e *Encoder) Write(p []byte) (int, error) {
	if e.finished {
		return 0, errs.ErrEncoderFinished
	}
	if e.err != nil {
		return 0, e.err
	}

	if err := e.split.write(p); err != nil {
		e.err = err
		return 0, err
	}

	return len(p), nil
}

// emitChunk resolves one chunk to a symbol id, capturing its bytes at first
// occurrence. The chunk slice is owned by the splitter and copied here.
func (e *Encoder) emitChunk(chunk []byte) error {
	e.totalChunks++
	addr := hash.Addr(chunk)

	// Previously seen content, whether captured locally or copied from the
	// global dictionary, reuses its symbol id after byte verification.
	if id, ok := e.tracker.Lookup(addr, chunk); ok {
		e.seq = append(e.seq, id)
		return nil
	}

	if e.tracker.Count() >= MaxSymbolCount {
		return fmt.Errorf("%w: symbol id space exhausted at %d entries", errs.ErrHashCollision, e.tracker.Count())
	}

	// First occurrence: consult the global dictionary, then allocate a
	// local symbol. Either way the bytes are captured now, in this pass.
	if e.cfg.global != nil {
		if idx, ok := e.cfg.global.Lookup(addr, chunk); ok {
			entry := e.cfg.global.Entry(idx)
			id := e.tracker.Track(addr, entry.Bytes)
			e.entries = append(e.entries, template.DictionaryEntry{
				Addr:      addr,
				Bytes:     entry.Bytes,
				Size:      uint32(len(entry.Bytes)), //nolint:gosec
				Overrides: e.filterOverrides(entry.Overrides),
			})
			e.seq = append(e.seq, id)

			return nil
		}
	}

	captured := make([]byte, len(chunk))
	copy(captured, chunk)
	id := e.tracker.Track(addr, captured)
	e.entries = append(e.entries, template.DictionaryEntry{
		Addr:  addr,
		Bytes: captured,
		Size:  uint32(len(captured)), //nolint:gosec
	})
	e.seq = append(e.seq, id)

	return nil
}

// filterOverrides keeps only overrides for contexts this encode declares.
func (e *Encoder) filterOverrides(overrides map[string][]byte) map[string][]byte {
	if len(overrides) == 0 {
		return nil
	}

	var filtered map[string][]byte
	for _, key := range e.cfg.contexts {
		if payload, ok := overrides[key]; ok {
			if filtered == nil {
				filtered = make(map[string][]byte)
			}
			filtered[key] = payload
		}
	}

	return filtered
}

// Finish flushes the trailing partial chunk, runs rule induction on the
// symbol sequence and assembles the immutable template.
//
// Returns:
//   - *template.Template: The assembled template
//   - error: ErrEncoderFinished on reuse, the sticky Write error if any, or
//     a structural error from induction or assembly. No partial template is
//     ever returned.
func (e *Encoder) Finish() (*template.Template, error) {
	if e.finished {
		return nil, errs.ErrEncoderFinished
	}
	e.finished = true

	defer e.split.release()

	if e.err != nil {
		return nil, e.err
	}
	if err := e.split.flush(); err != nil {
		return nil, err
	}

	e.applyOverrides()

	rules, top, err := grammar.Induce(e.seq, uint32(len(e.entries)), e.cfg.minPairFreq) //nolint:gosec
	if err != nil {
		return nil, err
	}

	return template.Assemble(e.entries, rules, top, e.cfg.contexts,
		template.WithChunkSize(e.cfg.chunkSize),
		template.WithTotalChunks(e.totalChunks),
	)
}

// applyOverrides attaches configured per-context payloads to the dictionary
// entries whose content occurred in the stream.
func (e *Encoder) applyOverrides() {
	for _, ov := range e.cfg.overrides {
		id, ok := e.tracker.Lookup(ov.addr, ov.content)
		if !ok {
			continue // content never occurred; nothing to override
		}

		entry := &e.entries[id]
		if entry.Overrides == nil {
			entry.Overrides = make(map[string][]byte)
		}
		entry.Overrides[ov.contextKey] = ov.payload
	}
}

// Ingest streams r through the encoder. It is a convenience wrapper around
// io.Copy that preserves the bounded-memory guarantee.
func (e *Encoder) Ingest(r io.Reader) error {
	_, err := io.Copy(e, r)
	return err
}
