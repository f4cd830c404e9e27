package chunk

import (
	"bytes"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

// collectChunks runs data through a splitter in the given write sizes and
// returns the emitted chunks.
func collectChunks(t *testing.T, chunkSize int, cdc bool, data []byte, writeSize int) [][]byte {
	t.Helper()

	var chunks [][]byte
	s := newSplitter(chunkSize, cdc, func(chunk []byte) error {
		chunks = append(chunks, bytes.Clone(chunk))
		return nil
	})
	defer s.release()

	for off := 0; off < len(data); off += writeSize {
		end := min(off+writeSize, len(data))
		require.NoError(t, s.write(data[off:end]))
	}
	require.NoError(t, s.flush())

	return chunks
}

func TestSplitter_Fixed(t *testing.T) {
	t.Run("exact boundaries", func(t *testing.T) {
		chunks := collectChunks(t, 4, false, []byte("AAAABBBBAAAABBBB"), 16)
		require.Equal(t, [][]byte{
			[]byte("AAAA"), []byte("BBBB"), []byte("AAAA"), []byte("BBBB"),
		}, chunks)
	})

	t.Run("trailing partial chunk", func(t *testing.T) {
		chunks := collectChunks(t, 4, false, []byte("AAAABB"), 6)
		require.Equal(t, [][]byte{[]byte("AAAA"), []byte("BB")}, chunks)
	})

	t.Run("boundaries independent of write sizes", func(t *testing.T) {
		data := []byte("AAAABBBBCCCCDDDDEE")
		whole := collectChunks(t, 4, false, data, len(data))
		byOne := collectChunks(t, 4, false, data, 1)
		require.Equal(t, whole, byOne)
	})

	t.Run("empty input emits nothing", func(t *testing.T) {
		chunks := collectChunks(t, 4, false, nil, 1)
		require.Empty(t, chunks)
	})
}

func TestSplitter_ContentDefined(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	data := make([]byte, 64*1024)
	_, _ = rng.Read(data)

	const chunkSize = 1024

	t.Run("lossless and bounded", func(t *testing.T) {
		chunks := collectChunks(t, chunkSize, true, data, len(data))
		require.NotEmpty(t, chunks)

		var joined []byte
		for i, chunk := range chunks {
			joined = append(joined, chunk...)
			if i < len(chunks)-1 {
				require.GreaterOrEqual(t, len(chunk), chunkSize/4)
				require.LessOrEqual(t, len(chunk), chunkSize*4)
			}
		}
		require.Equal(t, data, joined)
	})

	t.Run("boundaries independent of write sizes", func(t *testing.T) {
		whole := collectChunks(t, chunkSize, true, data, len(data))
		pieces := collectChunks(t, chunkSize, true, data, 313)
		require.Equal(t, whole, pieces)
	})

	t.Run("boundaries shift with content, not position", func(t *testing.T) {
		// Prepending bytes must leave the chunking of the unchanged tail
		// mostly intact; fixed-size chunking would shift every boundary.
		shifted := append([]byte("prefix"), data...)
		base := collectChunks(t, chunkSize, true, data, len(data))
		moved := collectChunks(t, chunkSize, true, shifted, len(shifted))

		baseSet := make(map[string]struct{}, len(base))
		for _, chunk := range base {
			baseSet[string(chunk)] = struct{}{}
		}
		common := 0
		for _, chunk := range moved {
			if _, ok := baseSet[string(chunk)]; ok {
				common++
			}
		}
		require.Greater(t, common, len(base)/2)
	})
}
