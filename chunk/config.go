package chunk

import (
	"fmt"

	"github.com/arloliu/templar/errs"
	"github.com/arloliu/templar/internal/hash"
	"github.com/arloliu/templar/internal/options"
	"github.com/arloliu/templar/template"
)

// DefaultChunkSize is the chunk size used when no option overrides it.
const DefaultChunkSize = 4096

// DefaultMinPairFrequency is the rule-induction threshold used when no
// option overrides it.
const DefaultMinPairFrequency = 2

// DefaultMinChunkFrequency is the inclusion floor for global-dictionary
// entries used when no option overrides it.
const DefaultMinChunkFrequency = 2

// Option configures an Encoder or a global-dictionary build.
type Option = options.Option[*EncoderConfig]

type overrideSpec struct {
	addr       uint64
	content    []byte
	contextKey string
	payload    []byte
}

// EncoderConfig holds the validated configuration shared by the encoder and
// the global-dictionary builder.
type EncoderConfig struct {
	chunkSize    int
	minPairFreq  int
	minChunkFreq int
	cdc          bool
	contexts     []string
	global       *Dictionary
	overrides    []overrideSpec
}

// NewEncoderConfig creates a config with default settings.
func NewEncoderConfig() *EncoderConfig {
	return &EncoderConfig{
		chunkSize:    DefaultChunkSize,
		minPairFreq:  DefaultMinPairFrequency,
		minChunkFreq: DefaultMinChunkFrequency,
	}
}

// WithChunkSize sets the chunk size in bytes. With fixed-size chunking this
// is the exact boundary; with content-defined chunking it is the target
// average (actual chunks range from size/4 to size*4).
func WithChunkSize(size int) Option {
	return options.New(func(cfg *EncoderConfig) error {
		if size <= 0 {
			return fmt.Errorf("%w: got %d", errs.ErrInvalidChunkSize, size)
		}
		cfg.chunkSize = size

		return nil
	})
}

// WithMinPairFrequency sets the rule-induction threshold: a symbol pair must
// occur at least this many times (non-overlapping) for a rule to be created.
func WithMinPairFrequency(freq int) Option {
	return options.New(func(cfg *EncoderConfig) error {
		if freq < 2 {
			return fmt.Errorf("%w: got %d", errs.ErrInvalidPairFrequency, freq)
		}
		cfg.minPairFreq = freq

		return nil
	})
}

// WithMinChunkFrequency sets the global-dictionary inclusion floor: a chunk
// must be seen at least this many times across the sample streams to be
// retained. Only BuildGlobalDictionary consults it.
func WithMinChunkFrequency(freq int) Option {
	return options.New(func(cfg *EncoderConfig) error {
		if freq < 1 {
			return fmt.Errorf("%w: minimum chunk frequency must be at least 1, got %d", errs.ErrInvalidPairFrequency, freq)
		}
		cfg.minChunkFreq = freq

		return nil
	})
}

// WithContentDefinedChunking switches chunk boundaries from fixed-size to a
// gear rolling hash. This is an explicitly flagged extension: boundaries
// become content-dependent, so streams encoded with and without it produce
// different templates. Fixed-size chunking remains the default.
func WithContentDefinedChunking() Option {
	return options.NoError(func(cfg *EncoderConfig) {
		cfg.cdc = true
	})
}

// WithContexts declares the context keys the template will carry, in
// addition to the always-declared default context.
func WithContexts(contextKeys ...string) Option {
	return options.New(func(cfg *EncoderConfig) error {
		for _, key := range contextKeys {
			if key == "" {
				return errs.ErrInvalidContext
			}
		}
		cfg.contexts = append(cfg.contexts, contextKeys...)

		return nil
	})
}

// WithGlobalDictionary supplies a preloaded read-only dictionary consulted
// before the local dictionary during ingestion. Its chunk size must match
// the encoder's.
func WithGlobalDictionary(dict *Dictionary) Option {
	return options.NoError(func(cfg *EncoderConfig) {
		cfg.global = dict
	})
}

// WithOverride registers a per-context replacement payload for the chunk
// with the given content. If the content never occurs in the stream (and is
// not reused from the global dictionary), the override has no symbol to
// attach to and is dropped. The context key must be declared via
// WithContexts.
func WithOverride(chunkContent []byte, contextKey string, payload []byte) Option {
	return options.New(func(cfg *EncoderConfig) error {
		if contextKey == "" {
			return errs.ErrInvalidContext
		}
		cfg.overrides = append(cfg.overrides, overrideSpec{
			addr:       hash.Addr(chunkContent),
			content:    chunkContent,
			contextKey: contextKey,
			payload:    payload,
		})

		return nil
	})
}

// validate checks cross-option constraints after all options are applied.
func (cfg *EncoderConfig) validate() error {
	if cfg.global != nil && cfg.global.ChunkSize() != cfg.chunkSize {
		return fmt.Errorf("%w: dictionary %d, encoder %d",
			errs.ErrChunkSizeMismatch, cfg.global.ChunkSize(), cfg.chunkSize)
	}

	declared := make(map[string]struct{}, len(cfg.contexts)+1)
	declared[template.DefaultContext] = struct{}{}
	for _, key := range cfg.contexts {
		declared[key] = struct{}{}
	}
	for _, ov := range cfg.overrides {
		if _, ok := declared[ov.contextKey]; !ok {
			return fmt.Errorf("%w: override targets undeclared context %q", errs.ErrInvalidContext, ov.contextKey)
		}
	}

	return nil
}
