package chunk

import (
	"bytes"
	"context"
	"io"
	"runtime"
	"slices"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/arloliu/templar/internal/hash"
	"github.com/arloliu/templar/internal/options"
)

// Entry is one global-dictionary record: a chunk's content address, its
// bytes, the number of times it was seen across the sample streams, and any
// per-context replacement payloads.
type Entry struct {
	Addr      uint64
	Bytes     []byte
	Freq      int
	Overrides map[string][]byte
}

// Dictionary is a content-address-indexed chunk dictionary.
//
// During encoding it is consulted read-only before the encoder's local
// dictionary. Lookups verify full byte equality on every hash hit; distinct
// contents sharing an address are kept as distinct entries.
//
// A Dictionary is safe for concurrent read access once built.
type Dictionary struct {
	chunkSize int
	byAddr    map[uint64][]int
	entries   []Entry
}

// NewDictionary creates an empty dictionary for the given chunk size.
func NewDictionary(chunkSize int) *Dictionary {
	return &Dictionary{
		chunkSize: chunkSize,
		byAddr:    make(map[uint64][]int),
	}
}

// NewDictionaryWithEntries creates a dictionary holding the given entries in
// order. The entries are used as-is without copying; this is the rebuild path
// for dictionaries decoded from a serialized artifact.
func NewDictionaryWithEntries(chunkSize int, entries []Entry) *Dictionary {
	d := NewDictionary(chunkSize)
	for _, entry := range entries {
		idx := len(d.entries)
		d.byAddr[entry.Addr] = append(d.byAddr[entry.Addr], idx)
		d.entries = append(d.entries, entry)
	}

	return d
}

// ChunkSize returns the chunk size the dictionary was built with.
func (d *Dictionary) ChunkSize() int {
	return d.chunkSize
}

// Len returns the number of entries.
func (d *Dictionary) Len() int {
	return len(d.entries)
}

// Lookup returns the index of the entry holding content, verified
// byte-for-byte. A hash hit with differing bytes is not a match.
func (d *Dictionary) Lookup(addr uint64, content []byte) (int, bool) {
	for _, idx := range d.byAddr[addr] {
		if bytes.Equal(d.entries[idx].Bytes, content) {
			return idx, true
		}
	}

	return 0, false
}

// Entry returns the entry at index idx.
func (d *Dictionary) Entry(idx int) Entry {
	return d.entries[idx]
}

// Entries returns the entries in order. The returned slice is the
// dictionary's own storage and must not be modified.
func (d *Dictionary) Entries() []Entry {
	return d.entries
}

// add appends content as a new entry, copying the bytes, and returns its
// index. Colliding contents remain distinct entries.
func (d *Dictionary) add(addr uint64, content []byte) int {
	captured := make([]byte, len(content))
	copy(captured, content)

	idx := len(d.entries)
	d.byAddr[addr] = append(d.byAddr[addr], idx)
	d.entries = append(d.entries, Entry{Addr: addr, Bytes: captured})

	return idx
}

// SetOverride registers a per-context replacement payload for the entry
// holding content. It reports whether the content was found.
func (d *Dictionary) SetOverride(content []byte, contextKey string, payload []byte) bool {
	idx, ok := d.Lookup(hash.Addr(content), content)
	if !ok {
		return false
	}

	entry := &d.entries[idx]
	if entry.Overrides == nil {
		entry.Overrides = make(map[string][]byte)
	}
	entry.Overrides[contextKey] = payload

	return true
}

// BuildGlobalDictionary scans the given sample streams and builds a
// dictionary of the chunks seen at least WithMinChunkFrequency times.
//
// The samples are scanned in parallel, one goroutine per stream bounded by
// GOMAXPROCS; only the dictionary insertion is serialized behind a single
// writer lock. The resulting entry order is deterministic regardless of
// scheduling: entries are sorted by content address, with colliding contents
// ordered by their bytes.
//
// Parameters:
//   - ctx: Cancels the scan between chunks
//   - samples: Independent sample streams, each consumed exactly once
//   - opts: Optional configuration (chunk size, content-defined chunking,
//     minimum chunk frequency)
//
// Returns:
//   - *Dictionary: The built dictionary
//   - error: Configuration error, context cancellation, or a read error
//     from one of the samples
func BuildGlobalDictionary(ctx context.Context, samples []io.Reader, opts ...Option) (*Dictionary, error) {
	cfg := NewEncoderConfig()
	if err := options.Apply(cfg, opts...); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	var mu sync.Mutex
	acc := NewDictionary(cfg.chunkSize)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))

	for _, sample := range samples {
		g.Go(func() error {
			split := newSplitter(cfg.chunkSize, cfg.cdc, func(chunk []byte) error {
				if err := gctx.Err(); err != nil {
					return err
				}
				addr := hash.Addr(chunk)

				mu.Lock()
				idx, ok := acc.Lookup(addr, chunk)
				if !ok {
					idx = acc.add(addr, chunk)
				}
				acc.entries[idx].Freq++
				mu.Unlock()

				return nil
			})
			defer split.release()

			buf := make([]byte, 32*1024)
			for {
				n, err := sample.Read(buf)
				if n > 0 {
					if werr := split.write(buf[:n]); werr != nil {
						return werr
					}
				}
				if err == io.EOF {
					return split.flush()
				}
				if err != nil {
					return err
				}
			}
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	retained := make([]Entry, 0, len(acc.entries))
	for _, entry := range acc.entries {
		if entry.Freq >= cfg.minChunkFreq {
			retained = append(retained, entry)
		}
	}
	slices.SortFunc(retained, func(a, b Entry) int {
		if a.Addr != b.Addr {
			if a.Addr < b.Addr {
				return -1
			}

			return 1
		}

		return bytes.Compare(a.Bytes, b.Bytes)
	})

	dict := NewDictionary(cfg.chunkSize)
	for _, entry := range retained {
		idx := len(dict.entries)
		dict.byAddr[entry.Addr] = append(dict.byAddr[entry.Addr], idx)
		dict.entries = append(dict.entries, entry)
	}

	return dict, nil
}
