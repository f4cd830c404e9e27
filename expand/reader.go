package expand

import (
	"fmt"
	"io"
)

// Reader streams the expanded bytes of a template under the expander's
// context. It implements io.Reader, io.Seeker and io.WriterTo.
//
// A Reader is restartable (Seek to 0) and cheap to create; independent
// Readers over the same Expander may run concurrently. A Reader itself must
// be used by a single goroutine at a time.
type Reader struct {
	x *Expander

	topIdx int      // next top-sequence position
	stack  []uint32 // pending refs, top of stack expands next
	cur    []byte   // unread remainder of the current leaf
	off    int64
	err    error
}

// Reader returns a new Reader positioned at offset 0.
func (x *Expander) Reader() *Reader {
	return &Reader{x: x}
}

// Read fills p with the next expanded bytes. A resolution failure is
// reported after all bytes resolved before it have been delivered; the error
// is sticky and carries the byte offset reached.
func (r *Reader) Read(p []byte) (int, error) {
	if r.err != nil {
		return 0, r.err
	}

	total := 0
	for total < len(p) {
		if len(r.cur) > 0 {
			n := copy(p[total:], r.cur)
			r.cur = r.cur[n:]
			r.off += int64(n)
			total += n

			continue
		}

		leaf, err := r.nextLeaf()
		if err == io.EOF {
			if total > 0 {
				return total, nil
			}

			return 0, io.EOF
		}
		if err != nil {
			r.err = fmt.Errorf("at offset %d: %w", r.off, err)
			if total > 0 {
				return total, nil
			}

			return 0, r.err
		}
		r.cur = leaf
	}

	return total, nil
}

// nextLeaf advances the work stack to the next leaf payload, loading
// top-level symbols as the stack drains.
func (r *Reader) nextLeaf() ([]byte, error) {
	for {
		for len(r.stack) == 0 {
			if r.topIdx >= len(r.x.tpl.TopSequence) {
				return nil, io.EOF
			}
			r.stack = append(r.stack, r.x.tpl.TopSequence[r.topIdx])
			r.topIdx++
		}

		ref := r.stack[len(r.stack)-1]
		r.stack = r.stack[:len(r.stack)-1]

		payload, isLeaf, err := r.x.leaf(ref)
		if err != nil {
			return nil, err
		}
		if !isLeaf {
			rule := r.x.tpl.Rule(ref)
			r.stack = append(r.stack, rule.Right, rule.Left)

			continue
		}

		return payload, nil
	}
}

// Seek repositions the reader, skipping whole subtrees using the expander's
// precomputed length table; skipped bytes are never materialized. Seeking
// clears a sticky error.
func (r *Reader) Seek(offset int64, whence int) (int64, error) {
	var target int64
	switch whence {
	case io.SeekStart:
		target = offset
	case io.SeekCurrent:
		target = r.off + offset
	case io.SeekEnd:
		target = r.x.total + offset
	default:
		return 0, fmt.Errorf("invalid whence %d", whence)
	}
	if target < 0 {
		return 0, fmt.Errorf("invalid offset %d", target)
	}

	r.stack = r.stack[:0]
	r.cur = nil
	r.err = nil

	if target >= r.x.total {
		// Positioned at or past the end; reads return EOF.
		r.topIdx = len(r.x.tpl.TopSequence)
		r.off = target

		return target, nil
	}

	r.off = 0
	remaining := target

	// Skip whole top-level subtrees.
	r.topIdx = 0
	for remaining >= r.x.lengths[r.x.tpl.TopSequence[r.topIdx]] {
		skip := r.x.lengths[r.x.tpl.TopSequence[r.topIdx]]
		remaining -= skip
		r.off += skip
		r.topIdx++
	}

	// Descend into the subtree containing the target, skipping left
	// children that end before it.
	ref := r.x.tpl.TopSequence[r.topIdx]
	r.topIdx++
	for {
		payload, isLeaf, err := r.x.leaf(ref)
		if err != nil {
			r.reset()
			return 0, err
		}
		if isLeaf {
			r.cur = payload[remaining:]
			r.off += remaining

			return target, nil
		}

		rule := r.x.tpl.Rule(ref)
		if left := r.x.lengths[rule.Left]; remaining >= left {
			remaining -= left
			r.off += left
			ref = rule.Right

			continue
		}
		r.stack = append(r.stack, rule.Right)
		ref = rule.Left
	}
}

// reset returns the reader to offset 0.
func (r *Reader) reset() {
	r.topIdx = 0
	r.stack = r.stack[:0]
	r.cur = nil
	r.off = 0
	r.err = nil
}

// WriteTo drains the remaining expansion into w, emitting bytes as leaves
// resolve.
func (r *Reader) WriteTo(w io.Writer) (int64, error) {
	if r.err != nil {
		return 0, r.err
	}

	var written int64
	for {
		if len(r.cur) > 0 {
			n, err := w.Write(r.cur)
			r.cur = r.cur[n:]
			r.off += int64(n)
			written += int64(n)
			if err != nil {
				return written, fmt.Errorf("at offset %d: %w", r.off, err)
			}

			continue
		}

		leaf, err := r.nextLeaf()
		if err == io.EOF {
			return written, nil
		}
		if err != nil {
			r.err = fmt.Errorf("at offset %d: %w", r.off, err)
			return written, r.err
		}
		r.cur = leaf
	}
}
