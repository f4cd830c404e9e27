package template

import (
	"fmt"
	"slices"

	"github.com/arloliu/templar/errs"
)

// Validate checks the structural invariants of the template.
//
// It verifies, in order:
//   - the format version is supported
//   - the context set is sorted, non-empty and free of empty keys
//   - every inline dictionary entry's Size matches its payload length
//   - every override map key resolves to a declared context
//   - every rule references only strictly smaller ids (acyclicity)
//   - every top-sequence reference resolves to a declared symbol
//
// Validation happens before any expansion is attempted, so a partial,
// inconsistent expansion is never started.
//
// Returns:
//   - error: ErrInvalidFormatVersion, ErrMalformedTemplate,
//     ErrUndeclaredContext, ErrInvalidGrammar or ErrDanglingReference
func (t *Template) Validate() error {
	if t.FormatVersion != FormatVersion {
		return fmt.Errorf("%w: version %d, supported %d", errs.ErrInvalidFormatVersion, t.FormatVersion, FormatVersion)
	}

	if len(t.Contexts) == 0 {
		return fmt.Errorf("%w: empty context set", errs.ErrMalformedTemplate)
	}
	if !slices.IsSorted(t.Contexts) {
		return fmt.Errorf("%w: context set not sorted", errs.ErrMalformedTemplate)
	}
	for i, key := range t.Contexts {
		if key == "" {
			return fmt.Errorf("%w: empty context key", errs.ErrMalformedTemplate)
		}
		if i > 0 && t.Contexts[i-1] == key {
			return fmt.Errorf("%w: duplicate context key %q", errs.ErrMalformedTemplate, key)
		}
	}

	for id, entry := range t.Dictionary {
		if entry.Inline() && int(entry.Size) != len(entry.Bytes) {
			return fmt.Errorf("%w: entry %d size %d does not match payload length %d",
				errs.ErrMalformedTemplate, id, entry.Size, len(entry.Bytes))
		}
		if err := t.validateOverrides(entry.Overrides, "entry", id); err != nil {
			return err
		}
	}

	numSymbols := uint32(t.NumSymbols()) //nolint:gosec
	for i, rule := range t.Rules {
		ruleID := t.RuleID(i)
		if rule.Left >= ruleID || rule.Right >= ruleID {
			return fmt.Errorf("%w: rule %d references (%d, %d), both must be < %d",
				errs.ErrInvalidGrammar, ruleID, rule.Left, rule.Right, ruleID)
		}
		if err := t.validateOverrides(rule.Overrides, "rule", int(ruleID)); err != nil {
			return err
		}
	}

	for pos, ref := range t.TopSequence {
		if ref >= numSymbols {
			return fmt.Errorf("%w: top sequence position %d references %d, declared symbols %d",
				errs.ErrDanglingReference, pos, ref, numSymbols)
		}
	}

	return nil
}

func (t *Template) validateOverrides(overrides map[string][]byte, kind string, id int) error {
	for key := range overrides {
		if !t.HasContext(key) {
			return fmt.Errorf("%w: %s %d overrides context %q", errs.ErrUndeclaredContext, kind, id, key)
		}
	}

	return nil
}
