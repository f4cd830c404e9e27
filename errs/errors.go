// Package errs defines the sentinel errors returned by templar packages.
//
// All errors are matchable with errors.Is. Call sites wrap these sentinels
// with fmt.Errorf("%w: detail") to attach context without breaking matching.
package errs

import (
	"errors"
	"fmt"
)

// Configuration errors. Returned eagerly when an encoder, dictionary builder
// or codec is constructed with invalid parameters.
var (
	ErrInvalidChunkSize     = errors.New("chunk size must be positive")
	ErrInvalidPairFrequency = errors.New("minimum pair frequency must be at least 2")
	ErrInvalidContext       = errors.New("context key must be non-empty")
	ErrChunkSizeMismatch    = errors.New("global dictionary chunk size does not match encoder chunk size")
	ErrEncoderFinished      = errors.New("encoder already finished")
)

// Encoding errors.
var (
	// ErrHashCollision is returned when two distinct chunk contents share a
	// content address and no separate symbol id can be assigned.
	ErrHashCollision = errors.New("content address collision")
)

// Template structure errors. These reject a template before any expansion
// is attempted; a partial, inconsistent expansion is never started.
var (
	ErrMalformedTemplate = errors.New("malformed template")
	ErrInvalidGrammar    = errors.New("invalid grammar")

	// ErrDanglingReference indicates a rule or top-sequence reference that
	// does not resolve to a declared dictionary entry or earlier rule.
	ErrDanglingReference = fmt.Errorf("%w: dangling reference", ErrMalformedTemplate)

	// ErrUndeclaredContext indicates a context_overrides key that is not a
	// member of the template's declared context set.
	ErrUndeclaredContext = fmt.Errorf("%w: undeclared context in override map", ErrMalformedTemplate)
)

// Expansion errors.
var (
	// ErrMissingData is returned when content-addressed chunk bytes cannot
	// be fetched. It is the one transient-retriable kind; the expander
	// retries a bounded number of times before surfacing it as fatal.
	ErrMissingData = errors.New("content-addressed data unavailable")

	// ErrUnsupportedContext is returned when the requested context is not
	// declared by the template. No bytes are emitted.
	ErrUnsupportedContext = errors.New("unsupported context")
)

// Wire codec errors.
var (
	ErrInvalidMagicNumber     = errors.New("invalid magic number")
	ErrInvalidHeaderSize      = errors.New("invalid header size")
	ErrInvalidFormatVersion   = errors.New("unsupported format version")
	ErrInvalidCompressionType = errors.New("invalid compression type")
)
