// Package redisstore implements serverstore.Store over Redis, matching
// spec.md §6's storage back-end contract: the committed change log as a
// range-scannable list keyed by docId, version metadata and LWW field ops
// as hashes, each version's state under its own key, and branches in their
// own key namespace; it stores no tombstones. It follows
// the teacher's go-redis/v8 client usage (crdtserver's RedisDatastore,
// luvjson/crdtstorage's RedisAdapter).
package redisstore

import (
	"context"
	"encoding/json"
	"sort"

	"github.com/go-redis/redis/v8"
	logging "github.com/ipfs/go-log/v2"
	"github.com/pkg/errors"

	"github.com/relaydoc/core/change"
	"github.com/relaydoc/core/errs"
	"github.com/relaydoc/core/patch"
	"github.com/relaydoc/core/serverstore"
)

var logger = logging.Logger("redisstore")

// Store is a serverstore.Store backed by a Redis client.
type Store struct {
	client *redis.Client
}

// New wraps an already-configured *redis.Client.
func New(client *redis.Client) *Store { return &Store{client: client} }

func committedKey(docID string) string { return "doc:" + docID + ":committed" }
func fieldOpsKey(docID string) string  { return "doc:" + docID + ":fieldops" }
func fieldSeqKey(docID string) string  { return "doc:" + docID + ":fieldseq" }
func versionsKey(docID string) string  { return "doc:" + docID + ":versions" }
func versionStateKey(docID, versionID string) string {
	return "doc:" + docID + ":versionstate:" + versionID
}
func branchKey(branchID string) string  { return "branch:" + branchID }
func branchIndexKey(docID string) string { return "doc:" + docID + ":branches" }

func (s *Store) CurrentRev(ctx context.Context, docID string) (int64, error) {
	n, err := s.client.LLen(ctx, committedKey(docID)).Result()
	if err != nil {
		return 0, errs.StorageError{Op: "current-rev", Err: err}
	}
	if n == 0 {
		return 0, nil
	}
	raw, err := s.client.LIndex(ctx, committedKey(docID), -1).Result()
	if err != nil {
		return 0, errs.StorageError{Op: "current-rev", Err: err}
	}
	var c change.Change
	if err := json.Unmarshal([]byte(raw), &c); err != nil {
		return 0, errs.StorageError{Op: "current-rev", Err: err}
	}
	return c.Rev, nil
}

func (s *Store) allCommitted(ctx context.Context, docID string) ([]change.Change, error) {
	raws, err := s.client.LRange(ctx, committedKey(docID), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	out := make([]change.Change, 0, len(raws))
	for _, raw := range raws {
		var c change.Change
		if err := json.Unmarshal([]byte(raw), &c); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

func (s *Store) ChangesSince(ctx context.Context, docID string, afterRev int64) ([]change.Change, error) {
	all, err := s.allCommitted(ctx, docID)
	if err != nil {
		return nil, errs.StorageError{Op: "changes-since", Err: err}
	}
	var out []change.Change
	for _, c := range all {
		if c.Rev > afterRev {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *Store) ChangesInRange(ctx context.Context, docID string, fromRev, toRev int64) ([]change.Change, error) {
	all, err := s.allCommitted(ctx, docID)
	if err != nil {
		return nil, errs.StorageError{Op: "changes-in-range", Err: err}
	}
	var out []change.Change
	for _, c := range all {
		if c.Rev > fromRev && c.Rev <= toRev {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *Store) AppendCommitted(ctx context.Context, docID string, changes []change.Change) error {
	if len(changes) == 0 {
		return nil
	}
	pipe := s.client.Pipeline()
	for _, c := range changes {
		data, err := json.Marshal(c)
		if err != nil {
			return errs.StorageError{Op: "append-committed", Err: errors.Wrap(err, "marshal change")}
		}
		pipe.RPush(ctx, committedKey(docID), data)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return errs.StorageError{Op: "append-committed", Err: errors.Wrap(err, "redis pipeline exec")}
	}
	logger.Debugf("appended %d committed changes for doc %s, last rev %d", len(changes), docID, changes[len(changes)-1].Rev)
	return nil
}

func (s *Store) ListFieldOps(ctx context.Context, docID string) ([]change.TimedOp, error) {
	raws, err := s.client.HGetAll(ctx, fieldOpsKey(docID)).Result()
	if err != nil {
		return nil, errs.StorageError{Op: "list-field-ops", Err: err}
	}
	out := make([]change.TimedOp, 0, len(raws))
	for _, raw := range raws {
		var op change.TimedOp
		if err := json.Unmarshal([]byte(raw), &op); err != nil {
			return nil, errs.StorageError{Op: "list-field-ops", Err: err}
		}
		out = append(out, op)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Op.Path.String() < out[j].Op.Path.String() })
	return out, nil
}

func (s *Store) SaveFieldOps(ctx context.Context, docID string, opsToSave []change.TimedOp, pathsToDelete []string) ([]change.TimedOp, error) {
	existing, err := s.ListFieldOps(ctx, docID)
	if err != nil {
		return nil, err
	}

	pipe := s.client.TxPipeline()
	for _, del := range pathsToDelete {
		delPath := patch.ParsePath(del)
		for _, op := range existing {
			if delPath.Under(op.Op.Path) {
				pipe.HDel(ctx, fieldOpsKey(docID), op.Op.Path.String())
			}
		}
	}

	saved := make([]change.TimedOp, len(opsToSave))
	for i, op := range opsToSave {
		rev, err := s.client.Incr(ctx, fieldSeqKey(docID)).Result()
		if err != nil {
			return nil, errs.StorageError{Op: "save-field-ops", Err: err}
		}
		op.Rev = rev
		data, err := json.Marshal(op)
		if err != nil {
			return nil, errs.StorageError{Op: "save-field-ops", Err: err}
		}
		pipe.HSet(ctx, fieldOpsKey(docID), op.Op.Path.String(), data)
		saved[i] = op
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return nil, errs.StorageError{Op: "save-field-ops", Err: err}
	}
	return saved, nil
}

func (s *Store) SaveVersion(ctx context.Context, docID string, v change.VersionMetadata, state any) error {
	meta, err := json.Marshal(v)
	if err != nil {
		return errs.StorageError{Op: "save-version", Err: err}
	}
	stateData, err := json.Marshal(state)
	if err != nil {
		return errs.StorageError{Op: "save-version", Err: err}
	}
	pipe := s.client.Pipeline()
	pipe.HSet(ctx, versionsKey(docID), v.ID, meta)
	pipe.Set(ctx, versionStateKey(docID, v.ID), stateData, 0)
	if _, err := pipe.Exec(ctx); err != nil {
		return errs.StorageError{Op: "save-version", Err: err}
	}
	return nil
}

func (s *Store) GetVersion(ctx context.Context, docID, versionID string) (change.VersionMetadata, error) {
	raw, err := s.client.HGet(ctx, versionsKey(docID), versionID).Result()
	if err == redis.Nil {
		return change.VersionMetadata{}, errs.NotFoundError{Kind: "version", ID: versionID}
	}
	if err != nil {
		return change.VersionMetadata{}, errs.StorageError{Op: "get-version", Err: err}
	}
	var v change.VersionMetadata
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return change.VersionMetadata{}, errs.StorageError{Op: "get-version", Err: err}
	}
	return v, nil
}

func (s *Store) allVersions(ctx context.Context, docID string) ([]change.VersionMetadata, error) {
	raws, err := s.client.HGetAll(ctx, versionsKey(docID)).Result()
	if err != nil {
		return nil, err
	}
	out := make([]change.VersionMetadata, 0, len(raws))
	for _, raw := range raws {
		var v change.VersionMetadata
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func (s *Store) LatestMainVersionAtOrBefore(ctx context.Context, docID string, rev int64) (change.VersionMetadata, any, bool, error) {
	versions, err := s.allVersions(ctx, docID)
	if err != nil {
		return change.VersionMetadata{}, nil, false, errs.StorageError{Op: "latest-main-version", Err: err}
	}
	var best change.VersionMetadata
	found := false
	for _, v := range versions {
		if v.Origin != change.OriginMain || v.EndRev > rev {
			continue
		}
		if !found || v.EndRev > best.EndRev {
			best = v
			found = true
		}
	}
	if !found {
		return change.VersionMetadata{}, nil, false, nil
	}
	raw, err := s.client.Get(ctx, versionStateKey(docID, best.ID)).Result()
	if err != nil {
		return change.VersionMetadata{}, nil, false, errs.StorageError{Op: "latest-main-version", Err: err}
	}
	var state any
	if err := json.Unmarshal([]byte(raw), &state); err != nil {
		return change.VersionMetadata{}, nil, false, errs.StorageError{Op: "latest-main-version", Err: err}
	}
	return best, state, true, nil
}

func (s *Store) ListVersions(ctx context.Context, docID string, opts serverstore.ListVersionsOptions) ([]change.VersionMetadata, error) {
	versions, err := s.allVersions(ctx, docID)
	if err != nil {
		return nil, errs.StorageError{Op: "list-versions", Err: err}
	}
	var out []change.VersionMetadata
	for _, v := range versions {
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

func (s *Store) SaveBranch(ctx context.Context, b change.Branch) error {
	data, err := json.Marshal(b)
	if err != nil {
		return errs.StorageError{Op: "save-branch", Err: err}
	}
	pipe := s.client.Pipeline()
	pipe.Set(ctx, branchKey(b.ID), data, 0)
	pipe.SAdd(ctx, branchIndexKey(b.DocID), b.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return errs.StorageError{Op: "save-branch", Err: err}
	}
	return nil
}

func (s *Store) GetBranch(ctx context.Context, branchID string) (change.Branch, error) {
	raw, err := s.client.Get(ctx, branchKey(branchID)).Result()
	if err == redis.Nil {
		return change.Branch{}, errs.NotFoundError{Kind: "branch", ID: branchID}
	}
	if err != nil {
		return change.Branch{}, errs.StorageError{Op: "get-branch", Err: err}
	}
	var b change.Branch
	if err := json.Unmarshal([]byte(raw), &b); err != nil {
		return change.Branch{}, errs.StorageError{Op: "get-branch", Err: err}
	}
	return b, nil
}

func (s *Store) ListBranches(ctx context.Context, docID string) ([]change.Branch, error) {
	ids, err := s.client.SMembers(ctx, branchIndexKey(docID)).Result()
	if err != nil {
		return nil, errs.StorageError{Op: "list-branches", Err: err}
	}
	out := make([]change.Branch, 0, len(ids))
	for _, id := range ids {
		b, err := s.GetBranch(ctx, id)
		if err != nil {
			if _, ok := err.(errs.NotFoundError); ok {
				continue
			}
			return nil, err
		}
		out = append(out, b)
	}
	return out, nil
}

func (s *Store) UpdateBranchStatus(ctx context.Context, branchID string, status change.BranchStatus) error {
	b, err := s.GetBranch(ctx, branchID)
	if err != nil {
		return err
	}
	b.Status = status
	return s.SaveBranch(ctx, b)
}

var _ serverstore.Store = (*Store)(nil)
