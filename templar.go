// Package templar compresses byte streams into templates: a content-addressed
// chunk dictionary, a grammar of pairing rules over the chunk symbols, and a
// top-level symbol sequence. A template expands back to the exact original
// stream, or to a context-specific variant of it when per-context overrides
// are attached.
//
// The pipeline has four stages, each usable on its own through its package:
//
//   - chunk: splits a stream into chunks, deduplicates them through verified
//     content addresses, and emits the flat symbol sequence
//   - grammar: contracts the most frequent adjacent symbol pairs into rules
//     until no pair repeats often enough
//   - template: the immutable, validated artifact tying dictionary, rules,
//     top sequence and declared contexts together
//   - expand: streams a template back out for one context, with seeking and
//     range expansion that never materialize skipped subtrees
//
// The templatecodec package serializes templates and global dictionaries to
// a compact compressed wire format.
//
// This file provides convenience wrappers for the common whole-pipeline
// paths. Streaming or incremental callers should use the stage packages
// directly.
package templar

import (
	"bytes"
	"context"
	"io"

	"github.com/arloliu/templar/chunk"
	"github.com/arloliu/templar/expand"
	"github.com/arloliu/templar/internal/hash"
	"github.com/arloliu/templar/template"
	"github.com/arloliu/templar/templatecodec"
)

// ContentID returns the content address of a chunk payload. It is the address
// recorded in dictionary entries and presented to a ChunkSource.
func ContentID(chunk []byte) uint64 {
	return hash.Addr(chunk)
}

// Encode streams r through a chunk encoder and returns the assembled
// template.
//
// Parameters:
//   - r: Input stream, consumed exactly once in bounded memory
//   - opts: Optional encoder configuration (chunk size, pair-frequency
//     threshold, content-defined chunking, contexts, global dictionary,
//     overrides)
//
// Returns:
//   - *template.Template: The assembled template
//   - error: Configuration, read or structural error; no partial template is
//     ever returned
func Encode(r io.Reader, opts ...chunk.Option) (*template.Template, error) {
	enc, err := chunk.NewEncoder(opts...)
	if err != nil {
		return nil, err
	}
	if err := enc.Ingest(r); err != nil {
		return nil, err
	}

	return enc.Finish()
}

// EncodeBytes encodes an in-memory payload. See Encode.
func EncodeBytes(data []byte, opts ...chunk.Option) (*template.Template, error) {
	return Encode(bytes.NewReader(data), opts...)
}

// BuildGlobalDictionary scans sample streams in parallel and builds a shared
// chunk dictionary for use with chunk.WithGlobalDictionary. See
// chunk.BuildGlobalDictionary.
func BuildGlobalDictionary(ctx context.Context, samples []io.Reader, opts ...chunk.Option) (*chunk.Dictionary, error) {
	return chunk.BuildGlobalDictionary(ctx, samples, opts...)
}

// NewExpander creates a streaming expander binding tpl to one declared
// context. See expand.New.
func NewExpander(tpl *template.Template, contextKey string, opts ...expand.Option) (*expand.Expander, error) {
	return expand.New(tpl, contextKey, opts...)
}

// Expand writes the full expansion of tpl under contextKey to w.
//
// Returns the number of bytes written. On failure the count is exact and the
// error reports the offset reached; if contextKey is not declared by the
// template, no bytes are written at all.
func Expand(ctx context.Context, tpl *template.Template, contextKey string, w io.Writer, opts ...expand.Option) (int64, error) {
	x, err := expand.New(tpl, contextKey, opts...)
	if err != nil {
		return 0, err
	}

	return x.WriteTo(ctx, w)
}

// Marshal serializes a template to its binary wire format. See
// templatecodec.Encode.
func Marshal(tpl *template.Template, opts ...templatecodec.Option) ([]byte, error) {
	return templatecodec.Encode(tpl, opts...)
}

// Unmarshal deserializes and re-validates a template artifact. See
// templatecodec.Decode.
func Unmarshal(data []byte) (*template.Template, error) {
	return templatecodec.Decode(data)
}
