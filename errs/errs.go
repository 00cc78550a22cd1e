// Package errs defines the sync core's error taxonomy. Each kind is a
// distinct exported struct type so callers can dispatch on it with
// errors.As, following the same pattern the patch/change algebra's
// grounding package uses for its own node/operation errors.
package errs

import "fmt"

// ValidationError reports a malformed op, an undefined value for add/replace,
// an invalid path, or a batch whose changes disagree on baseRev. Non-fatal:
// callers may drop the offending change and continue.
type ValidationError struct {
	Message string
	Cause   error
}

func (e ValidationError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("validation: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("validation: %s", e.Message)
}

func (e ValidationError) Unwrap() error { return e.Cause }

// StaleBaseError reports a client-submitted baseRev that is ahead of the
// server's current rev. The caller must reload the document before retrying.
// ot.CommitChanges does not raise it for baseRev=0 against a document that
// already has committed history; such a batch is transformed against the
// whole committed log.
type StaleBaseError struct {
	DocID        string
	ClientBase   int64
	ServerCommit int64
}

func (e StaleBaseError) Error() string {
	return fmt.Sprintf("stale base: doc %s baseRev=%d server rev=%d", e.DocID, e.ClientBase, e.ServerCommit)
}

// TransformApplyError reports that a transformed op failed to apply. The
// packages that raise it return it to their caller; none of them drops the
// failing change or logs the failure.
type TransformApplyError struct {
	Path string
	Op   string
	Err  error
}

func (e TransformApplyError) Error() string {
	return fmt.Sprintf("transform-apply: op %s at %s: %v", e.Op, e.Path, e.Err)
}

func (e TransformApplyError) Unwrap() error { return e.Err }

// StorageError wraps a backend failure. Atomic transactions must roll back
// entirely when this occurs; clients retry the operation on their next
// sync cycle.
type StorageError struct {
	Op  string
	Err error
}

func (e StorageError) Error() string { return fmt.Sprintf("storage: %s: %v", e.Op, e.Err) }

func (e StorageError) Unwrap() error { return e.Err }

// SessionMissingError reports a server catchup gap: the first server change
// a client observes does not continue from its own committedRev, and it is
// not a root-replace catchup snapshot either. Fatal to the doc session —
// the caller must trigger a full reload.
type SessionMissingError struct {
	DocID       string
	ExpectedRev int64
	GotRev      int64
}

func (e SessionMissingError) Error() string {
	return fmt.Sprintf("session missing: doc %s expected rev %d, got %d", e.DocID, e.ExpectedRev, e.GotRev)
}

// NotFoundError reports a missing document, change, version, or branch.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e NotFoundError) Error() string { return fmt.Sprintf("%s not found: %s", e.Kind, e.ID) }
