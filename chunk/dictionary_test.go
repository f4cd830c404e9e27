package chunk

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arloliu/templar/internal/hash"
)

func readers(samples ...string) []io.Reader {
	rs := make([]io.Reader, len(samples))
	for i, s := range samples {
		rs[i] = strings.NewReader(s)
	}

	return rs
}

func TestBuildGlobalDictionary(t *testing.T) {
	t.Run("frequency floor", func(t *testing.T) {
		// AAAA appears three times across the samples, BBBB once: with the
		// default floor of two only AAAA is retained.
		dict, err := BuildGlobalDictionary(context.Background(),
			readers("AAAAAAAA", "AAAABBBB"),
			WithChunkSize(4),
		)
		require.NoError(t, err)

		require.Equal(t, 1, dict.Len())
		entry := dict.Entry(0)
		require.Equal(t, []byte("AAAA"), entry.Bytes)
		require.Equal(t, 3, entry.Freq)
		require.Equal(t, hash.Addr([]byte("AAAA")), entry.Addr)
	})

	t.Run("floor of one keeps everything", func(t *testing.T) {
		dict, err := BuildGlobalDictionary(context.Background(),
			readers("AAAABBBB"),
			WithChunkSize(4),
			WithMinChunkFrequency(1),
		)
		require.NoError(t, err)
		require.Equal(t, 2, dict.Len())
	})

	t.Run("deterministic across schedules", func(t *testing.T) {
		samples := []string{
			strings.Repeat("AAAABBBBCCCC", 50),
			strings.Repeat("CCCCDDDDAAAA", 50),
			strings.Repeat("BBBBEEEE", 50),
		}

		first, err := BuildGlobalDictionary(context.Background(),
			readers(samples...), WithChunkSize(4))
		require.NoError(t, err)

		for range 10 {
			again, aerr := BuildGlobalDictionary(context.Background(),
				readers(samples...), WithChunkSize(4))
			require.NoError(t, aerr)
			require.Equal(t, first.Entries(), again.Entries())
		}
	})

	t.Run("cancellation aborts the scan", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := BuildGlobalDictionary(ctx,
			readers(strings.Repeat("AAAA", 100)),
			WithChunkSize(4),
		)
		require.ErrorIs(t, err, context.Canceled)
	})

	t.Run("no samples", func(t *testing.T) {
		dict, err := BuildGlobalDictionary(context.Background(), nil, WithChunkSize(4))
		require.NoError(t, err)
		require.Equal(t, 0, dict.Len())
		require.Equal(t, 4, dict.ChunkSize())
	})
}

func TestDictionary_Lookup(t *testing.T) {
	dict := NewDictionary(4)
	idx := dict.add(hash.Addr([]byte("AAAA")), []byte("AAAA"))

	t.Run("hit requires byte equality", func(t *testing.T) {
		got, ok := dict.Lookup(hash.Addr([]byte("AAAA")), []byte("AAAA"))
		require.True(t, ok)
		require.Equal(t, idx, got)

		// Same address, different bytes: a hash hit alone is not a match.
		_, ok = dict.Lookup(hash.Addr([]byte("AAAA")), []byte("ZZZZ"))
		require.False(t, ok)
	})

	t.Run("colliding contents stay distinct", func(t *testing.T) {
		addr := hash.Addr([]byte("AAAA"))
		other := dict.add(addr, []byte("ZZZZ"))
		require.NotEqual(t, idx, other)

		got, ok := dict.Lookup(addr, []byte("ZZZZ"))
		require.True(t, ok)
		require.Equal(t, other, got)
	})
}

func TestDictionary_SetOverride(t *testing.T) {
	dict, err := BuildGlobalDictionary(context.Background(),
		readers("AAAAAAAA"), WithChunkSize(4))
	require.NoError(t, err)

	require.True(t, dict.SetOverride([]byte("AAAA"), "prod", []byte("PPPP")))
	require.Equal(t, []byte("PPPP"), dict.Entry(0).Overrides["prod"])

	require.False(t, dict.SetOverride([]byte("BBBB"), "prod", []byte("PPPP")))
}
