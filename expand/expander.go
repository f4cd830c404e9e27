// Package expand implements the streaming, context-aware template expander.
//
// An Expander binds a validated template to one declared context. Expansion
// is iterative (an explicit work stack, no recursion), emits bytes as each
// leaf resolves, and never starts if the template is structurally invalid.
// The template is treated as read-only: one Expander, and any number of
// Readers derived from it, may be used concurrently.
//
// Seeking is supported through a per-context table of expanded subtree
// lengths computed at construction, so skipped subtrees are never
// materialized. Context overrides change subtree lengths, which is why the
// table belongs to the Expander (one context) rather than the template.
package expand

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/arloliu/templar/errs"
	"github.com/arloliu/templar/internal/hash"
	"github.com/arloliu/templar/internal/options"
	"github.com/arloliu/templar/template"
)

// DefaultFetchRetries is the number of additional fetch attempts made
// against the chunk source before ErrMissingData is surfaced as fatal.
const DefaultFetchRetries = 2

// ChunkSource supplies bytes for dictionary entries that reference their
// payload by content address instead of carrying it inline.
//
// Implementations must be safe for concurrent use.
type ChunkSource interface {
	// Fetch returns the bytes stored under the given content address.
	Fetch(addr uint64) ([]byte, error)
}

// Option configures an Expander.
type Option = options.Option[*Expander]

// WithChunkSource supplies the source used to fetch external chunk payloads.
// Without one, expanding a non-inline dictionary entry fails with
// ErrMissingData.
func WithChunkSource(src ChunkSource) Option {
	return options.NoError(func(x *Expander) {
		x.source = src
	})
}

// WithFetchRetries sets how many additional attempts are made when the chunk
// source fails, before ErrMissingData becomes fatal.
func WithFetchRetries(retries int) Option {
	return options.New(func(x *Expander) error {
		if retries < 0 {
			return fmt.Errorf("fetch retries must be non-negative, got %d", retries)
		}
		x.retries = retries

		return nil
	})
}

// Expander resolves a template's symbols into output bytes for one context.
type Expander struct {
	tpl     *template.Template
	ctxKey  string
	source  ChunkSource
	retries int

	lengths []int64 // expanded byte length per symbol id, under ctxKey
	total   int64
}

// New creates an Expander for the given template and context.
//
// The template is validated up front: a rule referencing an id greater than
// or equal to its own, or any dangling reference, is rejected before any
// expansion begins. The context must be declared by the template.
//
// Parameters:
//   - tpl: The template to expand, treated as read-only
//   - contextKey: Member of tpl.Contexts controlling override resolution
//   - opts: Optional configuration (chunk source, fetch retries)
//
// Returns:
//   - *Expander: Ready expander; safe for concurrent use
//   - error: ErrInvalidGrammar or ErrMalformedTemplate on structural
//     failure, ErrUnsupportedContext if contextKey is not declared
func New(tpl *template.Template, contextKey string, opts ...Option) (*Expander, error) {
	if err := tpl.Validate(); err != nil {
		return nil, err
	}
	if !tpl.HasContext(contextKey) {
		return nil, fmt.Errorf("%w: %q", errs.ErrUnsupportedContext, contextKey)
	}

	x := &Expander{
		tpl:     tpl,
		ctxKey:  contextKey,
		retries: DefaultFetchRetries,
	}
	if err := options.Apply(x, opts...); err != nil {
		return nil, err
	}

	x.computeLengths()

	return x, nil
}

// computeLengths fills the per-symbol expanded-length table for the bound
// context. Rules reference only smaller ids, so a single pass in id order
// suffices.
func (x *Expander) computeLengths() {
	x.lengths = make([]int64, x.tpl.NumSymbols())

	for id, entry := range x.tpl.Dictionary {
		if payload, ok := entry.Overrides[x.ctxKey]; ok {
			x.lengths[id] = int64(len(payload))
			continue
		}
		x.lengths[id] = int64(entry.Size)
	}

	for i, rule := range x.tpl.Rules {
		id := x.tpl.RuleID(i)
		if payload, ok := rule.Overrides[x.ctxKey]; ok {
			x.lengths[id] = int64(len(payload))
			continue
		}
		x.lengths[id] = x.lengths[rule.Left] + x.lengths[rule.Right]
	}

	x.total = 0
	for _, ref := range x.tpl.TopSequence {
		x.total += x.lengths[ref]
	}
}

// Size returns the total expanded byte length under the bound context.
func (x *Expander) Size() int64 {
	return x.total
}

// Context returns the context key the expander is bound to.
func (x *Expander) Context() string {
	return x.ctxKey
}

// leaf resolves ref if it is a leaf under the bound context: a dictionary
// entry, or a rule whose own override short-circuits its children. For a
// rule without an override it reports isLeaf=false and the caller descends.
func (x *Expander) leaf(ref uint32) (payload []byte, isLeaf bool, err error) {
	if x.tpl.IsRule(ref) {
		rule := x.tpl.Rule(ref)
		if b, ok := rule.Overrides[x.ctxKey]; ok {
			return b, true, nil
		}

		return nil, false, nil
	}

	b, err := x.entryBytes(ref)

	return b, true, err
}

// entryBytes resolves a dictionary entry's payload under the bound context:
// the context override if present, else the inline base bytes, else a fetch
// by content address.
func (x *Expander) entryBytes(id uint32) ([]byte, error) {
	entry := x.tpl.Dictionary[id]
	if payload, ok := entry.Overrides[x.ctxKey]; ok {
		return payload, nil
	}
	if entry.Inline() {
		return entry.Bytes, nil
	}

	return x.fetch(entry.Addr, int(entry.Size))
}

// fetch retrieves external chunk bytes with bounded retries, verifying the
// content address of whatever the source returns.
func (x *Expander) fetch(addr uint64, size int) ([]byte, error) {
	if x.source == nil {
		return nil, fmt.Errorf("%w: no chunk source configured for address %016x", errs.ErrMissingData, addr)
	}

	var lastErr error
	for attempt := 0; attempt <= x.retries; attempt++ {
		payload, err := x.source.Fetch(addr)
		if err != nil {
			lastErr = err
			continue
		}
		if hash.Addr(payload) != addr || len(payload) != size {
			lastErr = fmt.Errorf("fetched payload does not match address %016x", addr)
			continue
		}

		return payload, nil
	}

	return nil, fmt.Errorf("%w: address %016x after %d attempts: %v", errs.ErrMissingData, addr, x.retries+1, lastErr)
}

// WriteTo expands the template into w under the bound context.
//
// Bytes are emitted incrementally as leaves resolve. Cancellation is checked
// between top-level symbol resolutions, so long expansions can be aborted
// without corrupting already-emitted bytes. On failure the returned count is
// the exact number of bytes emitted, and the error reports the offset
// reached; emitted bytes are never retracted.
func (x *Expander) WriteTo(ctx context.Context, w io.Writer) (int64, error) {
	var written int64
	stack := make([]uint32, 0, 64)

	for _, top := range x.tpl.TopSequence {
		if err := ctx.Err(); err != nil {
			return written, fmt.Errorf("expansion aborted at offset %d: %w", written, err)
		}

		stack = append(stack[:0], top)
		for len(stack) > 0 {
			ref := stack[len(stack)-1]
			stack = stack[:len(stack)-1]

			payload, isLeaf, err := x.leaf(ref)
			if err != nil {
				return written, fmt.Errorf("at offset %d: %w", written, err)
			}
			if !isLeaf {
				rule := x.tpl.Rule(ref)
				stack = append(stack, rule.Right, rule.Left)

				continue
			}

			n, err := w.Write(payload)
			written += int64(n)
			if err != nil {
				return written, fmt.Errorf("at offset %d: %w", written, err)
			}
		}
	}

	return written, nil
}

// Bytes expands the whole template into memory. Intended for templates whose
// expanded size is known to be manageable; streams should use WriteTo or
// Reader.
func (x *Expander) Bytes(ctx context.Context) ([]byte, error) {
	buf := bytes.NewBuffer(make([]byte, 0, x.total))
	if _, err := x.WriteTo(ctx, buf); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// ExpandRange writes the expanded bytes in [offset, offset+length) to w,
// skipping everything before offset without materializing it. Independent
// ranges may be expanded concurrently and written to a random-access target
// without ordering constraints.
func (x *Expander) ExpandRange(ctx context.Context, w io.Writer, offset, length int64) (int64, error) {
	r := x.Reader()
	if _, err := r.Seek(offset, io.SeekStart); err != nil {
		return 0, err
	}

	var written int64
	buf := make([]byte, 32*1024)
	for written < length {
		if err := ctx.Err(); err != nil {
			return written, fmt.Errorf("expansion aborted at offset %d: %w", offset+written, err)
		}

		chunk := buf
		if remaining := length - written; remaining < int64(len(buf)) {
			chunk = buf[:remaining]
		}

		n, err := r.Read(chunk)
		if n > 0 {
			wn, werr := w.Write(chunk[:n])
			written += int64(wn)
			if werr != nil {
				return written, fmt.Errorf("at offset %d: %w", offset+written, werr)
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return written, err
		}
	}

	return written, nil
}
