package grammar

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arloliu/templar/errs"
	"github.com/arloliu/templar/template"
)

func TestInduce_RepeatedPair(t *testing.T) {
	// Two chunks alternating twice: the pair (0,1) repeats and contracts
	// into a single rule covering the whole stream.
	rules, top, err := Induce([]uint32{0, 1, 0, 1}, 2, 2)
	require.NoError(t, err)

	require.Equal(t, []template.Rule{{Left: 0, Right: 1}}, rules)
	require.Equal(t, []uint32{2, 2}, top)
}

func TestInduce_ChainedRules(t *testing.T) {
	// Four repetitions: (0,1) contracts first, then the new symbol pairs
	// with itself and contracts again.
	rules, top, err := Induce([]uint32{0, 1, 0, 1, 0, 1, 0, 1}, 2, 2)
	require.NoError(t, err)

	require.Equal(t, []template.Rule{{Left: 0, Right: 1}, {Left: 4, Right: 4}}, rules)
	require.Equal(t, []uint32{5, 5}, top)
}

func TestInduce_TieBreak(t *testing.T) {
	// (0,1) and (2,3) both occur twice; the lexicographically smaller pair
	// must contract first, so rule id 4 is (0,1) and rule id 5 is (2,3).
	rules, top, err := Induce([]uint32{0, 1, 0, 1, 2, 3, 2, 3}, 4, 2)
	require.NoError(t, err)

	require.Equal(t, []template.Rule{{Left: 0, Right: 1}, {Left: 2, Right: 3}}, rules)
	require.Equal(t, []uint32{4, 4, 5, 5}, top)
}

func TestInduce_EqualSymbolRuns(t *testing.T) {
	tests := []struct {
		name      string
		run       int
		wantRules []template.Rule
		wantTop   []uint32
	}{
		{
			// One non-overlapping occurrence is below the threshold.
			name:    "run of three stays",
			run:     3,
			wantTop: []uint32{7, 7, 7},
		},
		{
			name:      "run of four halves once",
			run:       4,
			wantRules: []template.Rule{{Left: 7, Right: 7}},
			wantTop:   []uint32{8, 8},
		},
		{
			// floor(6/2) = 3 replacements; the resulting run of three has
			// only one non-overlapping occurrence and stays.
			name:      "run of six halves once",
			run:       6,
			wantRules: []template.Rule{{Left: 7, Right: 7}},
			wantTop:   []uint32{8, 8, 8},
		},
		{
			name: "run of eight halves twice",
			run:  8,
			wantRules: []template.Rule{
				{Left: 7, Right: 7},
				{Left: 8, Right: 8},
			},
			wantTop: []uint32{9, 9},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seq := make([]uint32, tt.run)
			for i := range seq {
				seq[i] = 7
			}

			rules, top, err := Induce(seq, 8, 2)
			require.NoError(t, err)
			require.Equal(t, tt.wantRules, rules)
			require.Equal(t, tt.wantTop, top)
		})
	}
}

func TestInduce_FrequencyThreshold(t *testing.T) {
	t.Run("below threshold keeps sequence", func(t *testing.T) {
		rules, top, err := Induce([]uint32{0, 1, 2, 3}, 4, 2)
		require.NoError(t, err)
		require.Empty(t, rules)
		require.Equal(t, []uint32{0, 1, 2, 3}, top)
	})

	t.Run("raised threshold suppresses contraction", func(t *testing.T) {
		rules, top, err := Induce([]uint32{0, 1, 0, 1}, 2, 3)
		require.NoError(t, err)
		require.Empty(t, rules)
		require.Equal(t, []uint32{0, 1, 0, 1}, top)
	})

	t.Run("threshold below two rejected", func(t *testing.T) {
		_, _, err := Induce([]uint32{0, 1, 0, 1}, 2, 1)
		require.ErrorIs(t, err, errs.ErrInvalidPairFrequency)
	})
}

func TestInduce_ShortSequences(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		rules, top, err := Induce(nil, 0, 2)
		require.NoError(t, err)
		require.Empty(t, rules)
		require.Empty(t, top)
	})

	t.Run("single symbol", func(t *testing.T) {
		rules, top, err := Induce([]uint32{3}, 4, 2)
		require.NoError(t, err)
		require.Empty(t, rules)
		require.Equal(t, []uint32{3}, top)
	})
}

func TestInduce_RejectsOutOfRangeReference(t *testing.T) {
	_, _, err := Induce([]uint32{0, 5, 0, 5}, 2, 2)
	require.ErrorIs(t, err, errs.ErrInvalidGrammar)
}

func TestInduce_InputNotModified(t *testing.T) {
	seq := []uint32{0, 1, 0, 1}
	_, _, err := Induce(seq, 2, 2)
	require.NoError(t, err)
	require.Equal(t, []uint32{0, 1, 0, 1}, seq)
}

// expandRef resolves a symbol reference back to its leaf sequence.
func expandRef(t *testing.T, ref, firstRuleID uint32, rules []template.Rule, out *[]uint32) {
	t.Helper()
	if ref < firstRuleID {
		*out = append(*out, ref)
		return
	}

	rule := rules[ref-firstRuleID]
	require.Less(t, rule.Left, ref, "rule must reference smaller ids")
	require.Less(t, rule.Right, ref, "rule must reference smaller ids")
	expandRef(t, rule.Left, firstRuleID, rules, out)
	expandRef(t, rule.Right, firstRuleID, rules, out)
}

func TestInduce_RandomSequencesRoundTrip(t *testing.T) {
	// Contraction must be lossless: expanding every rule back out has to
	// reproduce the input, and runs on identical input must agree exactly.
	rng := rand.New(rand.NewSource(42))

	for trial := 0; trial < 50; trial++ {
		n := 2 + rng.Intn(400)
		alphabet := uint32(1 + rng.Intn(8))
		seq := make([]uint32, n)
		for i := range seq {
			seq[i] = rng.Uint32() % alphabet
		}

		rules, top, err := Induce(seq, alphabet, 2)
		require.NoError(t, err)

		var expanded []uint32
		for _, ref := range top {
			expandRef(t, ref, alphabet, rules, &expanded)
		}
		require.Equal(t, seq, expanded, "trial %d", trial)

		rules2, top2, err := Induce(seq, alphabet, 2)
		require.NoError(t, err)
		require.Equal(t, rules, rules2, "trial %d not deterministic", trial)
		require.Equal(t, top, top2, "trial %d not deterministic", trial)
	}
}

func BenchmarkInduce(b *testing.B) {
	rng := rand.New(rand.NewSource(1))
	seq := make([]uint32, 64*1024)
	for i := range seq {
		seq[i] = rng.Uint32() % 64
	}
	b.ResetTimer()

	for b.Loop() {
		_, _, _ = Induce(seq, 64, 2)
	}
}
