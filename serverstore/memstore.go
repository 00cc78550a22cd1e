package serverstore

import (
	"context"
	"sort"
	"sync"

	"github.com/relaydoc/core/change"
	"github.com/relaydoc/core/errs"
	"github.com/relaydoc/core/patch"
)

// MemStore is an in-process reference Store, safe for concurrent use. It
// backs the package's own tests and is a reasonable default for a single
// server process; a multi-process deployment needs serverstore/redisstore
// instead.
type MemStore struct {
	mu sync.Mutex

	committed map[string][]change.Change            // docID -> ascending rev
	fieldOps  map[string]map[string]change.TimedOp   // docID -> path -> op
	fieldSeq  map[string]int64                       // docID -> next LWW rev
	versions  map[string]map[string]change.VersionMetadata
	versionState map[string]map[string]any
	branches  map[string]change.Branch
}

// NewMemStore returns an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{
		committed:    make(map[string][]change.Change),
		fieldOps:     make(map[string]map[string]change.TimedOp),
		fieldSeq:     make(map[string]int64),
		versions:     make(map[string]map[string]change.VersionMetadata),
		versionState: make(map[string]map[string]any),
		branches:     make(map[string]change.Branch),
	}
}

func (s *MemStore) CurrentRev(_ context.Context, docID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.committed[docID]
	if len(list) == 0 {
		return 0, nil
	}
	return list[len(list)-1].Rev, nil
}

func (s *MemStore) ChangesSince(_ context.Context, docID string, afterRev int64) ([]change.Change, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []change.Change
	for _, c := range s.committed[docID] {
		if c.Rev > afterRev {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *MemStore) ChangesInRange(_ context.Context, docID string, fromRev, toRev int64) ([]change.Change, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []change.Change
	for _, c := range s.committed[docID] {
		if c.Rev > fromRev && c.Rev <= toRev {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *MemStore) AppendCommitted(_ context.Context, docID string, changes []change.Change) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.committed[docID] = append(s.committed[docID], changes...)
	return nil
}

func (s *MemStore) ListFieldOps(_ context.Context, docID string) ([]change.TimedOp, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ops := make([]change.TimedOp, 0, len(s.fieldOps[docID]))
	for _, op := range s.fieldOps[docID] {
		ops = append(ops, op)
	}
	sort.Slice(ops, func(i, j int) bool { return ops[i].Op.Path.String() < ops[j].Op.Path.String() })
	return ops, nil
}

func (s *MemStore) SaveFieldOps(_ context.Context, docID string, opsToSave []change.TimedOp, pathsToDelete []string) ([]change.TimedOp, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	byPath := s.fieldOps[docID]
	if byPath == nil {
		byPath = make(map[string]change.TimedOp)
		s.fieldOps[docID] = byPath
	}

	for _, del := range pathsToDelete {
		delPath := patch.ParsePath(del)
		for key := range byPath {
			if delPath.Under(patch.ParsePath(key)) {
				delete(byPath, key)
			}
		}
	}

	saved := make([]change.TimedOp, len(opsToSave))
	for i, op := range opsToSave {
		s.fieldSeq[docID]++
		op.Rev = s.fieldSeq[docID]
		byPath[op.Op.Path.String()] = op
		saved[i] = op
	}
	return saved, nil
}

func (s *MemStore) SaveVersion(_ context.Context, docID string, v change.VersionMetadata, state any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.versions[docID] == nil {
		s.versions[docID] = make(map[string]change.VersionMetadata)
		s.versionState[docID] = make(map[string]any)
	}
	s.versions[docID][v.ID] = v
	s.versionState[docID][v.ID] = state
	return nil
}

func (s *MemStore) GetVersion(_ context.Context, docID, versionID string) (change.VersionMetadata, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.versions[docID][versionID]
	if !ok {
		return change.VersionMetadata{}, errs.NotFoundError{Kind: "version", ID: versionID}
	}
	return v, nil
}

func (s *MemStore) LatestMainVersionAtOrBefore(_ context.Context, docID string, rev int64) (change.VersionMetadata, any, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var best change.VersionMetadata
	var bestState any
	found := false
	for _, v := range s.versions[docID] {
		if v.Origin != change.OriginMain {
			continue
		}
		if v.EndRev > rev {
			continue
		}
		if !found || v.EndRev > best.EndRev {
			best = v
			bestState = s.versionState[docID][v.ID]
			found = true
		}
	}
	return best, bestState, found, nil
}

func (s *MemStore) ListVersions(_ context.Context, docID string, opts ListVersionsOptions) ([]change.VersionMetadata, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []change.VersionMetadata
	for _, v := range s.versions[docID] {
		if opts.Origin != "" && v.Origin != opts.Origin {
			continue
		}
		if opts.GroupID != "" && v.GroupID != opts.GroupID {
			continue
		}
		if opts.StartAfter > 0 && v.EndRev <= opts.StartAfter {
			continue
		}
		if opts.EndBefore > 0 && v.EndRev >= opts.EndBefore {
			continue
		}
		out = append(out, v)
	}
	orderBy := opts.OrderBy
	if orderBy == "" {
		orderBy = "endRev"
	}
	sort.Slice(out, func(i, j int) bool {
		var less bool
		if orderBy == "startedAt" {
			less = out[i].StartedAt < out[j].StartedAt
		} else {
			less = out[i].EndRev < out[j].EndRev
		}
		if opts.Reverse {
			return !less
		}
		return less
	})
	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out, nil
}

func (s *MemStore) SaveBranch(_ context.Context, b change.Branch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.branches[b.ID] = b
	return nil
}

func (s *MemStore) GetBranch(_ context.Context, branchID string) (change.Branch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.branches[branchID]
	if !ok {
		return change.Branch{}, errs.NotFoundError{Kind: "branch", ID: branchID}
	}
	return b, nil
}

func (s *MemStore) ListBranches(_ context.Context, docID string) ([]change.Branch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []change.Branch
	for _, b := range s.branches {
		if b.DocID == docID {
			out = append(out, b)
		}
	}
	return out, nil
}

func (s *MemStore) UpdateBranchStatus(_ context.Context, branchID string, status change.BranchStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.branches[branchID]
	if !ok {
		return errs.NotFoundError{Kind: "branch", ID: branchID}
	}
	b.Status = status
	s.branches[branchID] = b
	return nil
}
