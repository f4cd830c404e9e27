// Package template defines the immutable template artifact produced by the
// encoder and consumed by the streaming expander.
//
// A template is a content-addressed dictionary of byte chunks, a hierarchy of
// binary grammar rules over symbols, and a top-level symbol sequence. Symbols
// and rules share one dense id space: ids [0, len(Dictionary)) reference
// dictionary entries (leaves), ids [len(Dictionary), NumSymbols()) reference
// rules (internal nodes). Every rule references only strictly smaller ids,
// so the rule graph is a DAG and expansion always terminates.
//
// Templates are value objects: once assembled (or decoded) they are never
// mutated. All readers, including concurrent ones, may share a template.
package template

import "slices"

// FormatVersion is the current template format version.
const FormatVersion = 1

// DefaultContext is the context key every template declares. Symbols without
// an override for the requested context resolve to their base bytes, which
// is equivalent to resolving under DefaultContext.
const DefaultContext = "DEFAULT"

// DictionaryEntry is a leaf symbol: a contiguous byte run identified by its
// content address. The entry either carries its bytes inline or references
// them by content address for retrieval from an external chunk source.
type DictionaryEntry struct {
	// Addr is the xxHash64 content address of the base payload.
	Addr uint64
	// Bytes is the inline base payload. Nil for external entries, whose
	// bytes are fetched by content address at expansion time.
	Bytes []byte
	// Size is the byte length of the base payload. For inline entries it
	// must equal len(Bytes); for external entries it enables seek support
	// without fetching.
	Size uint32
	// Overrides maps context keys to replacement payloads. A symbol with an
	// override for context C resolves to the override bytes when expanded
	// under C, and to the base payload otherwise.
	Overrides map[string][]byte
}

// Inline reports whether the entry carries its base payload inline.
func (e DictionaryEntry) Inline() bool {
	return e.Bytes != nil
}

// Rule is a binary production: the rule's symbol expands to Left followed by
// Right. Both references must be strictly smaller than the rule's own id.
// A rule may carry context overrides of its own; an override short-circuits
// expansion of the rule's children for that context.
type Rule struct {
	Left  uint32
	Right uint32
	// Overrides maps context keys to payloads replacing the whole subtree.
	Overrides map[string][]byte
}

// Template is the complete artifact sufficient to reconstruct the original
// byte stream for any declared context. It is immutable once assembled.
type Template struct {
	// FormatVersion identifies the template format revision.
	FormatVersion int
	// ChunkSize is the chunk size the stream was split with, kept for
	// diagnostics and global-dictionary compatibility checks.
	ChunkSize int
	// TotalChunks is the number of chunks observed in the original stream.
	TotalChunks int
	// Dictionary holds leaf symbols; the slice index is the symbol id.
	Dictionary []DictionaryEntry
	// Rules holds grammar rules ordered by id; rule i has id
	// len(Dictionary)+i.
	Rules []Rule
	// TopSequence is the final symbol sequence after rule induction.
	TopSequence []uint32
	// Contexts is the sorted set of declared context keys.
	Contexts []string
}

// NumSymbols returns the size of the combined id space (dictionary entries
// plus rules).
func (t *Template) NumSymbols() int {
	return len(t.Dictionary) + len(t.Rules)
}

// RuleID returns the symbol id of rule index i.
func (t *Template) RuleID(i int) uint32 {
	return uint32(len(t.Dictionary) + i) //nolint:gosec
}

// IsRule reports whether ref targets a rule rather than a dictionary entry.
func (t *Template) IsRule(ref uint32) bool {
	return ref >= uint32(len(t.Dictionary)) //nolint:gosec
}

// Rule returns the rule referenced by ref. The caller must ensure IsRule(ref).
func (t *Template) Rule(ref uint32) Rule {
	return t.Rules[int(ref)-len(t.Dictionary)]
}

// HasContext reports whether the given context key is declared.
func (t *Template) HasContext(contextKey string) bool {
	_, found := slices.BinarySearch(t.Contexts, contextKey)
	return found
}
