package docstate

import (
	"sync"

	"github.com/relaydoc/core/change"
	"github.com/relaydoc/core/lww"
	"github.com/relaydoc/core/patch"
)

// LWWDoc is the LWW-reconciled document replica: a baked-in snapshot plus a
// set of timed ops not yet folded into it, reconstructed on read.
type LWWDoc struct {
	mu sync.RWMutex

	ID       string
	snapshot any
	pending  map[string]change.TimedOp // path -> op, local not-yet-sent

	liveSignal   signal
	changeSignal signal
}

// NewLWWDoc creates a document seeded with an already-reconstructed snapshot.
func NewLWWDoc(id string, snapshot any) *LWWDoc {
	return &LWWDoc{ID: id, snapshot: snapshot, pending: make(map[string]change.TimedOp)}
}

func (d *LWWDoc) SubscribeLive(l Listener) func()   { return d.liveSignal.subscribe(l) }
func (d *LWWDoc) SubscribeChange(l Listener) func() { return d.changeSignal.subscribe(l) }

// State returns the baked snapshot, with no pending ops overlaid.
func (d *LWWDoc) State() any {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.snapshot
}

// Import resets the snapshot and discards all pending ops, used for catchup
// and recovery.
func (d *LWWDoc) Import(snapshot any) {
	d.mu.Lock()
	d.snapshot = snapshot
	d.pending = make(map[string]change.TimedOp)
	d.mu.Unlock()
	d.liveSignal.emit(snapshot)
}

// HasPending reports whether any local op has not yet been acknowledged.
func (d *LWWDoc) HasPending() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.pending) > 0
}

func (d *LWWDoc) PendingOps() []change.TimedOp {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]change.TimedOp, 0, len(d.pending))
	for _, op := range d.pending {
		out = append(out, op)
	}
	return out
}

// RecordLocalOps consolidates newly captured local ops into pending and
// fires both signals with the recomputed live state.
func (d *LWWDoc) RecordLocalOps(ops []change.TimedOp) (any, error) {
	d.mu.Lock()
	existing := make([]change.TimedOp, 0, len(d.pending))
	for _, op := range d.pending {
		existing = append(existing, op)
	}
	result := lww.ConsolidateOps(existing, ops)
	for _, path := range result.PathsToDelete {
		delPath := patch.ParsePath(path)
		for key := range d.pending {
			if delPath.Under(patch.ParsePath(key)) {
				delete(d.pending, key)
			}
		}
	}
	for _, op := range result.OpsToSave {
		d.pending[op.Op.Path.String()] = op
	}
	live, err := d.liveLocked()
	d.mu.Unlock()
	if err != nil {
		return nil, err
	}
	d.changeSignal.emit(live)
	d.liveSignal.emit(live)
	return live, nil
}

// ApplyServerChanges folds newly committed server ops into the snapshot and
// re-resolves local pending ops against them: a local op only survives if
// its ts ties or exceeds the server op's ts at that path.
func (d *LWWDoc) ApplyServerChanges(serverOps []change.TimedOp) (any, error) {
	d.mu.Lock()

	var err error
	if len(serverOps) > 0 {
		var overlay any
		overlay, err = lww.Reconstruct(nil, serverOps)
		if err == nil {
			d.snapshot = mergeOverlay(d.snapshot, overlay)
		}
	}

	pendingList := make([]change.TimedOp, 0, len(d.pending))
	for _, op := range d.pending {
		pendingList = append(pendingList, op)
	}
	winners := lww.MergeServerWithLocal(serverOps, pendingList)
	newPending := make(map[string]change.TimedOp, len(winners))
	for _, op := range winners {
		if isLocalSurvivor(op, pendingList) {
			newPending[op.Op.Path.String()] = op
		}
	}
	d.pending = newPending

	live, liveErr := d.liveLocked()
	d.mu.Unlock()
	if err != nil {
		return nil, err
	}
	if liveErr != nil {
		return nil, liveErr
	}
	d.liveSignal.emit(live)
	return live, nil
}

func isLocalSurvivor(op change.TimedOp, local []change.TimedOp) bool {
	for _, l := range local {
		if l.Op.Path.Equal(op.Op.Path) && l.TS == op.TS {
			return true
		}
	}
	return false
}

func (d *LWWDoc) liveLocked() (any, error) {
	ops := make([]change.TimedOp, 0, len(d.pending))
	for _, op := range d.pending {
		ops = append(ops, op)
	}
	if len(ops) == 0 {
		return d.snapshot, nil
	}
	overlay, err := lww.Reconstruct(nil, ops)
	if err != nil {
		return nil, err
	}
	return mergeOverlay(d.snapshot, overlay), nil
}

// mergeOverlay merges overlay's top-level keys on top of base, each
// overlay key winning outright (matching a field op overriding everything
// under its path). Deeper than one level, this only keeps the client view
// approximately correct between full resyncs: a nested object replaced on
// the server will not shed stale grandchildren from the local snapshot
// until the next getDoc/import round-trip, since client-side reconciliation
// here deliberately trades nested precision for not needing the original
// per-path op history just to fold an update in.
func mergeOverlay(base, overlay any) any {
	baseMap, baseOk := base.(map[string]any)
	overlayMap, overlayOk := overlay.(map[string]any)
	if !baseOk || !overlayOk {
		if overlay != nil {
			return overlay
		}
		return base
	}
	out := make(map[string]any, len(baseMap)+len(overlayMap))
	for k, v := range baseMap {
		out[k] = v
	}
	for k, v := range overlayMap {
		out[k] = v
	}
	return out
}
