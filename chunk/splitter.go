package chunk

import "github.com/arloliu/templar/internal/pool"

// gearTable is the fixed random table driving the content-defined rolling
// hash. It is generated from a fixed seed with splitmix64 and must never
// change: chunk boundaries, and therefore templates, depend on it.
var gearTable = func() [256]uint64 {
	var t [256]uint64
	seed := uint64(0x243f6a8885a308d3)
	for i := range t {
		seed += 0x9e3779b97f4a7c15
		z := seed
		z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
		z = (z ^ (z >> 27)) * 0x94d049bb133111eb
		t[i] = z ^ (z >> 31)
	}

	return t
}()

// splitter cuts a byte stream into chunks and hands each chunk to the emit
// callback. The chunk slice passed to emit is only valid for the duration of
// the call; the callback must copy what it keeps.
//
// Fixed-size mode cuts exact chunkSize boundaries. Content-defined mode cuts
// where the gear hash matches a mask sized for an average of chunkSize,
// bounded to [chunkSize/4, chunkSize*4]. Either way the stream is processed
// in bounded memory: at most one maximum-size chunk is pending.
type splitter struct {
	chunkSize int
	cdc       bool
	minSize   int
	maxSize   int
	mask      uint64

	pending *pool.ByteBuffer
	scanPos int    // next unscanned offset in pending (cdc only)
	gear    uint64 // rolling hash state (cdc only)

	emit func([]byte) error
}

func newSplitter(chunkSize int, cdc bool, emit func([]byte) error) *splitter {
	s := &splitter{
		chunkSize: chunkSize,
		cdc:       cdc,
		pending:   pool.GetChunkBuffer(),
		emit:      emit,
	}

	if cdc {
		s.minSize = max(chunkSize/4, 1)
		s.maxSize = chunkSize * 4
		// Mask with roughly log2(chunkSize) bits so the expected distance
		// between boundaries is the configured chunk size.
		mask := uint64(1)
		for mask < uint64(chunkSize) { //nolint:gosec
			mask <<= 1
		}
		s.mask = mask - 1
	}

	return s
}

// write appends p and emits every complete chunk it contains.
func (s *splitter) write(p []byte) error {
	s.pending.MustWrite(p)

	if s.cdc {
		return s.cutContentDefined()
	}

	return s.cutFixed()
}

func (s *splitter) cutFixed() error {
	for s.pending.Len() >= s.chunkSize {
		if err := s.emit(s.pending.Bytes()[:s.chunkSize]); err != nil {
			return err
		}
		s.pending.Discard(s.chunkSize)
	}

	return nil
}

func (s *splitter) cutContentDefined() error {
	for {
		buf := s.pending.Bytes()
		cut := -1
		for i := s.scanPos; i < len(buf); i++ {
			s.gear = s.gear<<1 + gearTable[buf[i]]
			if i+1 >= s.minSize && s.gear&s.mask == 0 {
				cut = i + 1
				break
			}
			if i+1 >= s.maxSize {
				cut = i + 1
				break
			}
		}
		if cut < 0 {
			s.scanPos = len(buf)
			return nil
		}

		if err := s.emit(buf[:cut]); err != nil {
			return err
		}
		s.pending.Discard(cut)
		s.scanPos = 0
		s.gear = 0
	}
}

// flush emits the trailing partial chunk, if any.
func (s *splitter) flush() error {
	if s.pending.Len() == 0 {
		return nil
	}

	err := s.emit(s.pending.Bytes())
	s.pending.Reset()
	s.scanPos = 0
	s.gear = 0

	return err
}

// release returns the pending buffer to the pool. The splitter must not be
// used afterwards.
func (s *splitter) release() {
	if s.pending != nil {
		pool.PutChunkBuffer(s.pending)
		s.pending = nil
	}
}
