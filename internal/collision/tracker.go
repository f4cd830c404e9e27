package collision

import "bytes"

// Tracker maps content addresses to symbol ids during encoding and detects
// hash collisions. A content address is never trusted as identity on its own:
// every hash hit is verified with a full byte comparison before a symbol id
// is reused. Distinct contents that happen to share an address each keep
// their own symbol id.
type Tracker struct {
	byAddr   map[uint64][]uint32 // address → candidate symbol ids
	contents [][]byte            // symbol id → captured chunk bytes
	collided bool
}

// NewTracker creates a new collision tracker.
func NewTracker() *Tracker {
	return &Tracker{
		byAddr: make(map[uint64][]uint32),
	}
}

// Lookup returns the symbol id previously assigned to content, if any.
// Candidates sharing the address are compared byte-for-byte; a hash hit with
// differing bytes is not a match.
func (t *Tracker) Lookup(addr uint64, content []byte) (uint32, bool) {
	for _, id := range t.byAddr[addr] {
		if bytes.Equal(t.contents[id], content) {
			return id, true
		}
	}

	return 0, false
}

// Track assigns the next dense symbol id to content under addr.
// The caller must own content; the tracker stores the slice as given.
// If another content already occupies the same address, both entries remain
// distinct and the collision flag is set.
func (t *Tracker) Track(addr uint64, content []byte) uint32 {
	id := uint32(len(t.contents)) //nolint:gosec

	if len(t.byAddr[addr]) > 0 {
		t.collided = true
	}

	t.byAddr[addr] = append(t.byAddr[addr], id)
	t.contents = append(t.contents, content)

	return id
}

// HasCollision reports whether two distinct contents were tracked under the
// same content address.
func (t *Tracker) HasCollision() bool {
	return t.collided
}

// Count returns the number of tracked symbols.
func (t *Tracker) Count() int {
	return len(t.contents)
}

// Content returns the captured bytes for the given symbol id.
func (t *Tracker) Content(id uint32) []byte {
	return t.contents[id]
}

// Reset clears all tracked symbols and collision state, allowing the tracker
// to be reused for a new encode.
func (t *Tracker) Reset() {
	for k := range t.byAddr {
		delete(t.byAddr, k)
	}
	t.contents = t.contents[:0]
	t.collided = false
}
