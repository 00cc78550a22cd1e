package shaping

import (
	"time"

	"github.com/relaydoc/core/change"
	"github.com/relaydoc/core/errs"
	"github.com/relaydoc/core/patch"
)

// MakeChangeOptions parameterizes MakeChange.
type MakeChangeOptions struct {
	// State is the document's current live state (committed ⊕ pending).
	State any
	// BaseRev is the committed rev the client last observed.
	BaseRev int64
	// LastPendingRev is the rev of the most recent still-pending change, if
	// any; 0 means there is none and BaseRev is used as the base for rev
	// assignment.
	LastPendingRev int64
	Mutator        func(*Builder)
	Metadata       map[string]any
	// MaxBytes, if nonzero, routes the result through BreakChange.
	MaxBytes int
	// IDFactory mints the new change's id. Required.
	IDFactory func() string
	// Now overrides the creation timestamp; defaults to time.Now.
	Now func() time.Time
}

// MakeChange runs mutator against a Builder, validates the resulting ops by
// re-applying them to the live state, and returns zero or more Change
// records (more than one only when MaxBytes triggers a split). A mutator
// that records no ops yields no change.
func MakeChange(opts MakeChangeOptions) ([]change.Change, error) {
	if opts.Mutator == nil {
		return nil, errs.ValidationError{Message: "makeChange: mutator is required"}
	}
	if opts.IDFactory == nil {
		return nil, errs.ValidationError{Message: "makeChange: IDFactory is required"}
	}

	b := NewBuilder()
	opts.Mutator(b)
	ops := b.Ops()
	if len(ops) == 0 {
		return nil, nil
	}

	if _, err := patch.ApplyAll(opts.State, ops, patch.Strict); err != nil {
		return nil, errs.ValidationError{Message: "makeChange: mutator produced an invalid op sequence", Cause: err}
	}

	rev := opts.BaseRev + 1
	if opts.LastPendingRev > 0 {
		rev = opts.LastPendingRev + 1
	}

	now := time.Now
	if opts.Now != nil {
		now = opts.Now
	}

	c := change.Change{
		ID:        opts.IDFactory(),
		Rev:       rev,
		BaseRev:   opts.BaseRev,
		Ops:       ops,
		CreatedAt: now().UnixMilli(),
		Metadata:  opts.Metadata,
	}

	if opts.MaxBytes > 0 {
		return BreakChange(c, opts.MaxBytes)
	}
	return []change.Change{c}, nil
}
