// Package patch implements the JSON-Patch operation algebra: apply, invert,
// compose, and transform over a small RFC 6902-flavored op language
// extended with commutative numeric/bitmask ops and a delegated rich-text
// op. It is pure and stateless — every function takes a document value and
// returns a new one, sharing unchanged substructure with the input.
package patch

import (
	"fmt"

	"github.com/relaydoc/core/errs"
)

// Kind identifies an operation's behavior.
type Kind string

const (
	Add     Kind = "add"
	Remove  Kind = "remove"
	Replace Kind = "replace"
	Copy    Kind = "copy"
	Move    Kind = "move"
	Inc     Kind = "@inc"
	Bit     Kind = "@bit"
	Min     Kind = "@min"
	Max     Kind = "@max"
	Txt     Kind = "@txt"
)

// combinable reports whether two ops of this kind at the same path may be
// folded into one (client-side pending combination, and compose()).
func (k Kind) combinable() bool {
	switch k {
	case Inc, Bit, Min, Max:
		return true
	default:
		return false
	}
}

// Combinable reports whether two ops of this kind at the same path may be
// folded into one, exported for callers outside the package (lww's
// consolidation needs this check).
func (k Kind) Combinable() bool { return k.combinable() }

// Op is one operation in the patch algebra.
type Op struct {
	Kind Kind `json:"op"`
	Path Path `json:"path"`

	// From is the source path for copy/move.
	From Path `json:"from,omitempty"`

	// Value carries the payload for add/replace (any JSON value), and for
	// the commutative ops: @inc/@min/@max carry a float64, @bit carries a
	// uint64 mask.
	Value any `json:"value,omitempty"`

	// Delta carries the rich-text delta for @txt.
	Delta TextDelta `json:"delta,omitempty"`

	// Soft, only meaningful on add, means "do not overwrite an existing
	// non-empty value" — used for optimistic initialization of shared
	// substructure (e.g. "create this object if it doesn't exist yet").
	Soft bool `json:"soft,omitempty"`
}

func (o Op) String() string {
	return fmt.Sprintf("%s %s", o.Kind, o.Path)
}

// IsNumeric reports whether the op's Kind carries a float64 scalar.
func (k Kind) IsNumeric() bool {
	return k == Inc || k == Min || k == Max
}

func errValidationf(format string, args ...any) error {
	return errs.ValidationError{Message: fmt.Sprintf(format, args...)}
}

// asFloat64 coerces an op value that should be numeric.
func asFloat64(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	default:
		return 0, errValidationf("expected numeric value, got %T", v)
	}
}

func asUint64(v any) (uint64, error) {
	switch n := v.(type) {
	case uint64:
		return n, nil
	case int:
		return uint64(n), nil
	case int64:
		return uint64(n), nil
	case float64:
		return uint64(n), nil
	default:
		return 0, errValidationf("expected bitmask value, got %T", v)
	}
}

// isEmptyValue reports whether v is nil or a zero-length object/array/string
// (false and zero are not empty) — the "non-empty value" test transform and
// soft-add rely on.
func isEmptyValue(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case map[string]any:
		return len(t) == 0
	case []any:
		return len(t) == 0
	case string:
		return t == ""
	default:
		return false
	}
}

// isEmptyObject reports whether v is specifically `{}` — the "soft merge"
// shape transform's add rule distinguishes from other empty values.
func isEmptyObject(v any) bool {
	m, ok := v.(map[string]any)
	return ok && len(m) == 0
}
