package chunk

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arloliu/templar/errs"
	"github.com/arloliu/templar/internal/hash"
	"github.com/arloliu/templar/template"
)

func encode(t *testing.T, data string, opts ...Option) *template.Template {
	t.Helper()

	enc, err := NewEncoder(opts...)
	require.NoError(t, err)
	require.NoError(t, enc.Ingest(strings.NewReader(data)))

	tpl, err := enc.Finish()
	require.NoError(t, err)

	return tpl
}

func TestEncoder_AlternatingChunks(t *testing.T) {
	tpl := encode(t, "AAAABBBBAAAABBBB", WithChunkSize(4))

	require.Len(t, tpl.Dictionary, 2)
	require.Equal(t, []byte("AAAA"), tpl.Dictionary[0].Bytes)
	require.Equal(t, []byte("BBBB"), tpl.Dictionary[1].Bytes)
	require.Equal(t, hash.Addr([]byte("AAAA")), tpl.Dictionary[0].Addr)

	require.Equal(t, []template.Rule{{Left: 0, Right: 1}}, tpl.Rules)
	require.Equal(t, []uint32{2, 2}, tpl.TopSequence)

	require.Equal(t, 4, tpl.ChunkSize)
	require.Equal(t, 4, tpl.TotalChunks)
}

func TestEncoder_Deduplication(t *testing.T) {
	// Twelve chunks, two distinct contents: the dictionary holds each
	// content exactly once regardless of how often it repeats.
	tpl := encode(t, strings.Repeat("AAAA", 11)+"BBBB", WithChunkSize(4))

	require.Len(t, tpl.Dictionary, 2)
	require.Equal(t, 12, tpl.TotalChunks)
}

func TestEncoder_TrailingPartialChunk(t *testing.T) {
	tpl := encode(t, "AAAABB", WithChunkSize(4))

	require.Len(t, tpl.Dictionary, 2)
	require.Equal(t, []byte("AAAA"), tpl.Dictionary[0].Bytes)
	require.Equal(t, []byte("BB"), tpl.Dictionary[1].Bytes)
	require.Equal(t, uint32(2), tpl.Dictionary[1].Size)
	require.Equal(t, []uint32{0, 1}, tpl.TopSequence)
}

func TestEncoder_EmptyInput(t *testing.T) {
	tpl := encode(t, "", WithChunkSize(4))

	require.Empty(t, tpl.Dictionary)
	require.Empty(t, tpl.Rules)
	require.Empty(t, tpl.TopSequence)
	require.Equal(t, 0, tpl.TotalChunks)
}

func TestEncoder_StreamedWrites(t *testing.T) {
	// Byte-at-a-time writes must produce the same template as one call.
	data := "AAAABBBBAAAABBBB"

	enc, err := NewEncoder(WithChunkSize(4))
	require.NoError(t, err)
	for i := 0; i < len(data); i++ {
		n, werr := enc.Write([]byte{data[i]})
		require.NoError(t, werr)
		require.Equal(t, 1, n)
	}
	streamed, err := enc.Finish()
	require.NoError(t, err)

	whole := encode(t, data, WithChunkSize(4))
	require.Equal(t, whole, streamed)
}

func TestEncoder_NotReusable(t *testing.T) {
	enc, err := NewEncoder(WithChunkSize(4))
	require.NoError(t, err)

	_, err = enc.Finish()
	require.NoError(t, err)

	_, werr := enc.Write([]byte("AAAA"))
	require.ErrorIs(t, werr, errs.ErrEncoderFinished)

	_, ferr := enc.Finish()
	require.ErrorIs(t, ferr, errs.ErrEncoderFinished)
}

func TestEncoder_ConfigErrors(t *testing.T) {
	tests := []struct {
		name    string
		opts    []Option
		wantErr error
	}{
		{
			name:    "zero chunk size",
			opts:    []Option{WithChunkSize(0)},
			wantErr: errs.ErrInvalidChunkSize,
		},
		{
			name:    "negative chunk size",
			opts:    []Option{WithChunkSize(-1)},
			wantErr: errs.ErrInvalidChunkSize,
		},
		{
			name:    "pair frequency below two",
			opts:    []Option{WithMinPairFrequency(1)},
			wantErr: errs.ErrInvalidPairFrequency,
		},
		{
			name:    "empty context key",
			opts:    []Option{WithContexts("prod", "")},
			wantErr: errs.ErrInvalidContext,
		},
		{
			name: "override targets undeclared context",
			opts: []Option{
				WithOverride([]byte("AAAA"), "ghost", []byte("XXXX")),
			},
			wantErr: errs.ErrInvalidContext,
		},
		{
			name: "global dictionary chunk size mismatch",
			opts: []Option{
				WithChunkSize(8),
				WithGlobalDictionary(NewDictionary(4)),
			},
			wantErr: errs.ErrChunkSizeMismatch,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			enc, err := NewEncoder(tt.opts...)
			require.ErrorIs(t, err, tt.wantErr)
			require.Nil(t, enc)
		})
	}
}

func TestEncoder_Overrides(t *testing.T) {
	t.Run("attached to occurring content", func(t *testing.T) {
		tpl := encode(t, "AAAABBBB",
			WithChunkSize(4),
			WithContexts("prod"),
			WithOverride([]byte("AAAA"), "prod", []byte("XXXX")),
		)

		require.Equal(t, []string{template.DefaultContext, "prod"}, tpl.Contexts)
		require.Equal(t, []byte("XXXX"), tpl.Dictionary[0].Overrides["prod"])
		require.Empty(t, tpl.Dictionary[1].Overrides)
	})

	t.Run("dropped for absent content", func(t *testing.T) {
		tpl := encode(t, "AAAABBBB",
			WithChunkSize(4),
			WithContexts("prod"),
			WithOverride([]byte("CCCC"), "prod", []byte("XXXX")),
		)

		for _, entry := range tpl.Dictionary {
			require.Empty(t, entry.Overrides)
		}
	})

	t.Run("default context override allowed", func(t *testing.T) {
		tpl := encode(t, "AAAABBBB",
			WithChunkSize(4),
			WithOverride([]byte("BBBB"), template.DefaultContext, []byte("YYYY")),
		)

		require.Equal(t, []byte("YYYY"), tpl.Dictionary[1].Overrides[template.DefaultContext])
	})
}

func TestEncoder_GlobalDictionary(t *testing.T) {
	global := NewDictionaryWithEntries(4, []Entry{
		{
			Addr:  hash.Addr([]byte("AAAA")),
			Bytes: []byte("AAAA"),
			Freq:  3,
			Overrides: map[string][]byte{
				"prod":  []byte("PPPP"),
				"ghost": []byte("GGGG"),
			},
		},
	})

	tpl := encode(t, "AAAABBBB",
		WithChunkSize(4),
		WithContexts("prod"),
		WithGlobalDictionary(global),
	)

	// The global hit is re-issued a dense local id and its bytes are carried
	// into the template; only overrides for declared contexts survive.
	require.Len(t, tpl.Dictionary, 2)
	require.Equal(t, []byte("AAAA"), tpl.Dictionary[0].Bytes)
	require.Equal(t, []byte("PPPP"), tpl.Dictionary[0].Overrides["prod"])
	require.NotContains(t, tpl.Dictionary[0].Overrides, "ghost")
	require.Equal(t, []byte("BBBB"), tpl.Dictionary[1].Bytes)
}

func TestEncoder_HashCollision(t *testing.T) {
	// Distinct contents behind one address must keep distinct symbol ids,
	// with full byte verification steering each occurrence to its entry.
	enc, err := NewEncoder(WithChunkSize(4))
	require.NoError(t, err)

	addr := hash.Addr([]byte("AAAA"))
	id1 := enc.tracker.Track(addr, []byte("AAAA"))
	id2 := enc.tracker.Track(addr, []byte("ZZZZ"))
	require.NotEqual(t, id1, id2)
	require.True(t, enc.tracker.HasCollision())

	got, ok := enc.tracker.Lookup(addr, []byte("ZZZZ"))
	require.True(t, ok)
	require.Equal(t, id2, got)
}

func TestEncoder_ContentDefinedChunking(t *testing.T) {
	data := strings.Repeat("the quick brown fox jumps over the lazy dog. ", 200)

	tpl := encode(t, data, WithChunkSize(64), WithContentDefinedChunking())
	again := encode(t, data, WithChunkSize(64), WithContentDefinedChunking())
	require.Equal(t, tpl, again)

	// The dictionary plus sequence must reproduce the stream exactly.
	var joined bytes.Buffer
	var emitLeaves func(ref uint32)
	emitLeaves = func(ref uint32) {
		if tpl.IsRule(ref) {
			rule := tpl.Rule(ref)
			emitLeaves(rule.Left)
			emitLeaves(rule.Right)
			return
		}
		joined.Write(tpl.Dictionary[ref].Bytes)
	}
	for _, ref := range tpl.TopSequence {
		emitLeaves(ref)
	}
	require.Equal(t, data, joined.String())
}
