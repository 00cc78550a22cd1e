package clientstore

import (
	"context"
	"sync"

	"github.com/relaydoc/core/change"
	"github.com/relaydoc/core/errs"
	"github.com/relaydoc/core/patch"
)

type docEntry struct {
	rec       DocRecord
	snapshot  any
	changes   []change.Change
	pending   []change.Change

	pendingLWW map[string]change.TimedOp
	sendingLWW *change.Change
}

// MemStore is an in-process reference implementing both Store and LWWStore,
// used by docstate/syncx tests and suitable for a browser-tab-lifetime
// client with no persistence-across-reload requirement.
type MemStore struct {
	mu   sync.Mutex
	docs map[string]*docEntry
}

// NewMemStore returns an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{docs: make(map[string]*docEntry)}
}

func (s *MemStore) TrackDocs(_ context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		e, ok := s.docs[id]
		if !ok {
			s.docs[id] = &docEntry{rec: DocRecord{ID: id}, pendingLWW: make(map[string]change.TimedOp)}
			continue
		}
		e.rec.Deleted = false
	}
	return nil
}

func (s *MemStore) UntrackDocs(_ context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		delete(s.docs, id)
	}
	return nil
}

func (s *MemStore) ListDocs(_ context.Context, includeDeleted bool) ([]DocRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []DocRecord
	for _, e := range s.docs {
		if e.rec.Deleted && !includeDeleted {
			continue
		}
		out = append(out, e.rec)
	}
	return out, nil
}

func (s *MemStore) GetDoc(_ context.Context, id string) (DocSnapshot, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.docs[id]
	if !ok || e.rec.Deleted {
		return DocSnapshot{}, false, nil
	}
	snap := DocSnapshot{
		State:      e.snapshot,
		Rev:        e.rec.CommittedRev,
		Changes:    append([]change.Change(nil), e.changes...),
		Pending:    append([]change.Change(nil), e.pending...),
		SendingLWW: e.sendingLWW,
	}
	for _, op := range e.pendingLWW {
		snap.PendingLWW = append(snap.PendingLWW, op)
	}
	return snap, true, nil
}

func (s *MemStore) SavePendingChanges(_ context.Context, id string, changes []change.Change) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.docs[id]
	if e == nil {
		e = &docEntry{rec: DocRecord{ID: id}, pendingLWW: make(map[string]change.TimedOp)}
		s.docs[id] = e
	}
	e.rec.Deleted = false
	e.pending = append(e.pending, changes...)
	return nil
}

func (s *MemStore) GetPendingChanges(_ context.Context, id string) ([]change.Change, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.docs[id]
	if !ok {
		return nil, nil
	}
	return append([]change.Change(nil), e.pending...), nil
}

func (s *MemStore) ApplyServerChanges(_ context.Context, id string, serverChanges []change.Change, rebasedPending []change.Change, snapshotInterval int, fold func(state any, changes []change.Change) (any, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.docs[id]
	if !ok {
		return errs.NotFoundError{Kind: "doc", ID: id}
	}

	e.changes = append(e.changes, serverChanges...)
	e.pending = rebasedPending
	if len(serverChanges) > 0 {
		e.rec.CommittedRev = serverChanges[len(serverChanges)-1].Rev
	}

	if snapshotInterval > 0 && len(e.changes) >= snapshotInterval {
		newState, err := fold(e.snapshot, e.changes)
		if err != nil {
			return err
		}
		e.snapshot = newState
		e.changes = nil
	}
	return nil
}

func (s *MemStore) DeleteDoc(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.docs[id]
	if !ok {
		return errs.NotFoundError{Kind: "doc", ID: id}
	}
	e.rec.Deleted = true
	e.snapshot = nil
	e.changes = nil
	e.pending = nil
	e.pendingLWW = make(map[string]change.TimedOp)
	e.sendingLWW = nil
	return nil
}

func (s *MemStore) ConfirmDeleteDoc(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.docs, id)
	return nil
}

func (s *MemStore) Close() error { return nil }

// --- LWWStore surface ---

func (s *MemStore) GetPendingOps(_ context.Context, id string, pathPrefixes []string) ([]change.TimedOp, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.docs[id]
	if !ok {
		return nil, nil
	}
	if len(pathPrefixes) == 0 {
		out := make([]change.TimedOp, 0, len(e.pendingLWW))
		for _, op := range e.pendingLWW {
			out = append(out, op)
		}
		return out, nil
	}
	var out []change.TimedOp
	for path, op := range e.pendingLWW {
		for _, prefix := range pathPrefixes {
			if len(path) >= len(prefix) && path[:len(prefix)] == prefix {
				out = append(out, op)
				break
			}
		}
	}
	return out, nil
}

func (s *MemStore) SavePendingOps(_ context.Context, id string, opsToSave []change.TimedOp, pathsToDelete []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.docs[id]
	if e == nil {
		e = &docEntry{rec: DocRecord{ID: id}, pendingLWW: make(map[string]change.TimedOp)}
		s.docs[id] = e
	}
	e.rec.Deleted = false
	for _, path := range pathsToDelete {
		delPath := patch.ParsePath(path)
		for key := range e.pendingLWW {
			if delPath.Under(patch.ParsePath(key)) {
				delete(e.pendingLWW, key)
			}
		}
	}
	for _, op := range opsToSave {
		e.pendingLWW[op.Op.Path.String()] = op
	}
	return nil
}

func (s *MemStore) GetSendingChange(_ context.Context, id string) (change.Change, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.docs[id]
	if !ok || e.sendingLWW == nil {
		return change.Change{}, false, nil
	}
	return *e.sendingLWW, true, nil
}

func (s *MemStore) SaveSendingChange(_ context.Context, id string, c change.Change) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.docs[id]
	if e == nil {
		e = &docEntry{rec: DocRecord{ID: id}, pendingLWW: make(map[string]change.TimedOp)}
		s.docs[id] = e
	}
	cp := c
	e.sendingLWW = &cp
	e.pendingLWW = make(map[string]change.TimedOp)
	return nil
}

func (s *MemStore) ApplyServerOps(_ context.Context, id string, serverOps []change.TimedOp, fold func(state any, ops []change.TimedOp) (any, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.docs[id]
	if !ok {
		return errs.NotFoundError{Kind: "doc", ID: id}
	}
	newState, err := fold(e.snapshot, serverOps)
	if err != nil {
		return err
	}
	e.snapshot = newState
	return nil
}

func (s *MemStore) ConfirmSendingChange(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.docs[id]
	if !ok {
		return errs.NotFoundError{Kind: "doc", ID: id}
	}
	e.sendingLWW = nil
	return nil
}
