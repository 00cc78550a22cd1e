// Package docstate holds the client-side in-memory projection of a document
// under either reconciliation strategy: committed state, the pending queue
// (OT) or pending ops (LWW), and change/update signals the sync coordinator
// subscribes to.
package docstate

import (
	"sync"

	"github.com/relaydoc/core/change"
	"github.com/relaydoc/core/errs"
	"github.com/relaydoc/core/ot"
	"github.com/relaydoc/core/patch"
)

// Listener is notified after a Doc's live state changes, carrying the new
// live state.
type Listener func(liveState any)

type signal struct {
	mu        sync.Mutex
	listeners []Listener
}

func (s *signal) subscribe(l Listener) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, l)
	idx := len(s.listeners) - 1
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.listeners[idx] = nil
	}
}

func (s *signal) emit(state any) {
	s.mu.Lock()
	ls := append([]Listener(nil), s.listeners...)
	s.mu.Unlock()
	for _, l := range ls {
		if l != nil {
			l(state)
		}
	}
}

// OTDoc is the OT-reconciled document replica: committed state at
// committedRev, plus a pending queue of changes not yet acknowledged by the
// server.
type OTDoc struct {
	mu sync.RWMutex

	ID           string
	state        any
	committedRev int64
	pending      []change.Change
	syncing      bool

	changeSignal signal // fires with the live state after a local change is captured
	liveSignal   signal // fires with the recomputed live state
}

// NewOTDoc creates a document seeded at committedRev with no pending changes.
func NewOTDoc(id string, state any, committedRev int64) *OTDoc {
	return &OTDoc{ID: id, state: state, committedRev: committedRev}
}

func (d *OTDoc) State() any {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.state
}

func (d *OTDoc) CommittedRev() int64 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.committedRev
}

func (d *OTDoc) HasPending() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.pending) > 0
}

func (d *OTDoc) Syncing() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.syncing
}

func (d *OTDoc) SetSyncing(v bool) {
	d.mu.Lock()
	d.syncing = v
	d.mu.Unlock()
}

func (d *OTDoc) Pending() []change.Change {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]change.Change(nil), d.pending...)
}

// SubscribeLive registers l to be called with the live state (committed +
// pending) whenever it changes, and returns an unsubscribe func.
func (d *OTDoc) SubscribeLive(l Listener) func() { return d.liveSignal.subscribe(l) }

// SubscribeChange registers l to be called with the live state whenever a
// local mutation records new ops, for the coordinator to pick up and commit.
func (d *OTDoc) SubscribeChange(l Listener) func() { return d.changeSignal.subscribe(l) }

// Append records an already-built local Change (produced by
// shaping.MakeChange against LiveState()) into pending, fires change and
// live signals, and returns the new live state.
func (d *OTDoc) Append(c change.Change) (any, error) {
	d.mu.Lock()
	d.pending = append(d.pending, c)
	live, err := ot.LiveState(ot.Snapshot{State: d.state, Rev: d.committedRev}, d.pending)
	d.mu.Unlock()
	if err != nil {
		return nil, err
	}
	d.changeSignal.emit(live)
	d.liveSignal.emit(live)
	return live, nil
}

// LiveState returns committed state with all pending changes' ops applied.
func (d *OTDoc) LiveState() (any, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return ot.LiveState(ot.Snapshot{State: d.state, Rev: d.committedRev}, d.pending)
}

// ApplyChanges dispatches server-originated changes: a committed
// (CommittedAt>0) leading run is folded into committed state and used to
// rebase the remainder of pending; an uncommitted (local echo) leading
// change is simply appended to pending.
func (d *OTDoc) ApplyChanges(changes []change.Change) (any, error) {
	if len(changes) == 0 {
		return d.LiveState()
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if changes[0].Committed() {
		oldState := d.state
		state := d.state
		for i, c := range changes {
			if !c.Committed() {
				return nil, errs.ValidationError{Message: "applyChanges: committed run interrupted by a local change"}
			}
			if i == 0 && c.Rev != d.committedRev+1 {
				return nil, errs.SessionMissingError{DocID: d.ID, ExpectedRev: d.committedRev + 1, GotRev: c.Rev}
			}
			next, err := patch.ApplyAll(state, c.Ops, patch.Strict)
			if err != nil {
				return nil, errs.TransformApplyError{Op: "apply-committed", Err: err}
			}
			state = next
		}
		newRev := changes[len(changes)-1].Rev

		rebased, err := ot.RebaseChanges(oldState, changes, d.pending, newRev)
		if err != nil {
			return nil, err
		}

		d.state = state
		d.committedRev = newRev
		d.pending = rebased
	} else {
		d.pending = append(d.pending, changes...)
	}

	live, err := ot.LiveState(ot.Snapshot{State: d.state, Rev: d.committedRev}, d.pending)
	if err != nil {
		return nil, err
	}
	d.liveSignal.emit(live)
	return live, nil
}

// Import resets state and pending from a server-provided full snapshot,
// used for catchup and recovery.
func (d *OTDoc) Import(state any, rev int64) {
	d.mu.Lock()
	d.state = state
	d.committedRev = rev
	d.pending = nil
	d.mu.Unlock()
	d.liveSignal.emit(state)
}
