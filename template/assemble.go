package template

import (
	"slices"

	"github.com/arloliu/templar/internal/options"
)

// AssembleOption configures optional template metadata during assembly.
type AssembleOption = options.Option[*Template]

// WithChunkSize records the chunk size the stream was split with.
func WithChunkSize(size int) AssembleOption {
	return options.NoError(func(t *Template) {
		t.ChunkSize = size
	})
}

// WithTotalChunks records the number of chunks observed in the original stream.
func WithTotalChunks(count int) AssembleOption {
	return options.NoError(func(t *Template) {
		t.TotalChunks = count
	})
}

// Assemble packages a dictionary, rule list, top-level sequence and context
// set into an immutable Template.
//
// Assembly is pure packaging plus validation: every reference in rules and
// topSequence must resolve to a declared dictionary entry or an earlier rule,
// and every context key used in an override map must be a member of the
// declared context set. DefaultContext is always declared, whether or not it
// appears in contexts. On any structural failure no template is returned.
//
// The input slices are copied shallowly; entry payloads and override maps are
// shared with the caller and must not be mutated afterwards.
//
// Parameters:
//   - dictionary: Leaf symbols indexed by symbol id
//   - rules: Grammar rules ordered by id (rule i has id len(dictionary)+i)
//   - topSequence: Final symbol sequence after rule induction
//   - contexts: Context keys to declare, in any order
//   - opts: Optional metadata (WithChunkSize, WithTotalChunks)
//
// Returns:
//   - *Template: The assembled, validated template
//   - error: ErrMalformedTemplate, ErrDanglingReference, ErrUndeclaredContext
//     or ErrInvalidGrammar on structural failure
func Assemble(dictionary []DictionaryEntry, rules []Rule, topSequence []uint32, contexts []string, opts ...AssembleOption) (*Template, error) {
	ctxSet := make([]string, 0, len(contexts)+1)
	ctxSet = append(ctxSet, contexts...)
	if !slices.Contains(ctxSet, DefaultContext) {
		ctxSet = append(ctxSet, DefaultContext)
	}
	slices.Sort(ctxSet)
	ctxSet = slices.Compact(ctxSet)

	t := &Template{
		FormatVersion: FormatVersion,
		Dictionary:    slices.Clone(dictionary),
		Rules:         slices.Clone(rules),
		TopSequence:   slices.Clone(topSequence),
		Contexts:      ctxSet,
	}

	if err := options.Apply(t, opts...); err != nil {
		return nil, err
	}

	if err := t.Validate(); err != nil {
		return nil, err
	}

	return t, nil
}
