// Package kvstore adapts clientstore.Store onto an embedded key-value
// store, so an offline-capable client keeps its document index, committed
// tail, and pending queue across process restarts. It follows the same
// JSON-blob-per-key shape the teacher's BadgerDB cache layer uses.
package kvstore

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"github.com/relaydoc/core/change"
	"github.com/relaydoc/core/clientstore"
	"github.com/relaydoc/core/errs"
)

// Options configures a Store.
type Options struct {
	// Path is the on-disk directory BadgerDB stores its files under.
	// Ignored when InMemory is set.
	Path string
	// InMemory runs BadgerDB with no persistent files, useful for tests.
	InMemory bool
}

// Store is a clientstore.Store backed by BadgerDB.
type Store struct {
	db *badger.DB
}

// Open creates or opens the BadgerDB-backed store at opts.Path.
func Open(opts Options) (*Store, error) {
	badgerOpts := badger.DefaultOptions(opts.Path)
	badgerOpts.Logger = nil
	if opts.InMemory {
		badgerOpts = badgerOpts.WithInMemory(true)
	}
	db, err := badger.Open(badgerOpts)
	if err != nil {
		return nil, fmt.Errorf("kvstore: open badger: %w", err)
	}
	return &Store{db: db}, nil
}

func recKey(id string) []byte      { return []byte("doc:" + id + ":rec") }
func snapshotKey(id string) []byte { return []byte("doc:" + id + ":snapshot") }
func changesKey(id string) []byte  { return []byte("doc:" + id + ":changes") }
func pendingKey(id string) []byte  { return []byte("doc:" + id + ":pending") }

func getJSON(txn *badger.Txn, key []byte, out any) (bool, error) {
	item, err := txn.Get(key)
	if err == badger.ErrKeyNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, item.Value(func(val []byte) error {
		if len(val) == 0 {
			return nil
		}
		return json.Unmarshal(val, out)
	})
}

func setJSON(txn *badger.Txn, key []byte, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return txn.Set(key, data)
}

func (s *Store) TrackDocs(_ context.Context, ids []string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		for _, id := range ids {
			var rec clientstore.DocRecord
			found, err := getJSON(txn, recKey(id), &rec)
			if err != nil {
				return err
			}
			if !found {
				rec = clientstore.DocRecord{ID: id}
			}
			rec.Deleted = false
			if err := setJSON(txn, recKey(id), rec); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) UntrackDocs(_ context.Context, ids []string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		for _, id := range ids {
			for _, key := range [][]byte{recKey(id), snapshotKey(id), changesKey(id), pendingKey(id)} {
				if err := txn.Delete(key); err != nil && err != badger.ErrKeyNotFound {
					return err
				}
			}
		}
		return nil
	})
}

func (s *Store) ListDocs(_ context.Context, includeDeleted bool) ([]clientstore.DocRecord, error) {
	var out []clientstore.DocRecord
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte("doc:")
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			key := string(item.Key())
			if len(key) < 5 || key[len(key)-4:] != ":rec" {
				continue
			}
			var rec clientstore.DocRecord
			if err := item.Value(func(val []byte) error { return json.Unmarshal(val, &rec) }); err != nil {
				return err
			}
			if rec.Deleted && !includeDeleted {
				continue
			}
			out = append(out, rec)
		}
		return nil
	})
	return out, err
}

func (s *Store) GetDoc(_ context.Context, id string) (clientstore.DocSnapshot, bool, error) {
	var snap clientstore.DocSnapshot
	var found bool
	err := s.db.View(func(txn *badger.Txn) error {
		var rec clientstore.DocRecord
		ok, err := getJSON(txn, recKey(id), &rec)
		if err != nil || !ok || rec.Deleted {
			return err
		}
		found = true
		snap.Rev = rec.CommittedRev

		if _, err := getJSON(txn, snapshotKey(id), &snap.State); err != nil {
			return err
		}
		if _, err := getJSON(txn, changesKey(id), &snap.Changes); err != nil {
			return err
		}
		if _, err := getJSON(txn, pendingKey(id), &snap.Pending); err != nil {
			return err
		}
		return nil
	})
	return snap, found, err
}

func (s *Store) SavePendingChanges(_ context.Context, id string, changes []change.Change) error {
	return s.db.Update(func(txn *badger.Txn) error {
		var rec clientstore.DocRecord
		found, err := getJSON(txn, recKey(id), &rec)
		if err != nil {
			return err
		}
		if !found {
			rec = clientstore.DocRecord{ID: id}
		}
		rec.Deleted = false
		if err := setJSON(txn, recKey(id), rec); err != nil {
			return err
		}

		var pending []change.Change
		if _, err := getJSON(txn, pendingKey(id), &pending); err != nil {
			return err
		}
		pending = append(pending, changes...)
		return setJSON(txn, pendingKey(id), pending)
	})
}

func (s *Store) GetPendingChanges(_ context.Context, id string) ([]change.Change, error) {
	var pending []change.Change
	err := s.db.View(func(txn *badger.Txn) error {
		_, err := getJSON(txn, pendingKey(id), &pending)
		return err
	})
	return pending, err
}

func (s *Store) ApplyServerChanges(_ context.Context, id string, serverChanges []change.Change, rebasedPending []change.Change, snapshotInterval int, fold func(state any, changes []change.Change) (any, error)) error {
	return s.db.Update(func(txn *badger.Txn) error {
		var rec clientstore.DocRecord
		found, err := getJSON(txn, recKey(id), &rec)
		if err != nil {
			return err
		}
		if !found {
			return errs.NotFoundError{Kind: "doc", ID: id}
		}

		var changes []change.Change
		if _, err := getJSON(txn, changesKey(id), &changes); err != nil {
			return err
		}
		changes = append(changes, serverChanges...)
		if len(serverChanges) > 0 {
			rec.CommittedRev = serverChanges[len(serverChanges)-1].Rev
		}

		if snapshotInterval > 0 && len(changes) >= snapshotInterval {
			var state any
			if _, err := getJSON(txn, snapshotKey(id), &state); err != nil {
				return err
			}
			newState, err := fold(state, changes)
			if err != nil {
				return err
			}
			if err := setJSON(txn, snapshotKey(id), newState); err != nil {
				return err
			}
			changes = nil
			// A fresh compaction marker lets a host application correlate
			// independently taken snapshots across storage generations.
			rec.SnapshotID = uuid.NewString()
		}

		if err := setJSON(txn, changesKey(id), changes); err != nil {
			return err
		}
		if err := setJSON(txn, pendingKey(id), rebasedPending); err != nil {
			return err
		}
		return setJSON(txn, recKey(id), rec)
	})
}

func (s *Store) DeleteDoc(_ context.Context, id string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		var rec clientstore.DocRecord
		found, err := getJSON(txn, recKey(id), &rec)
		if err != nil {
			return err
		}
		if !found {
			return errs.NotFoundError{Kind: "doc", ID: id}
		}
		rec.Deleted = true
		for _, key := range [][]byte{snapshotKey(id), changesKey(id), pendingKey(id)} {
			if err := txn.Delete(key); err != nil && err != badger.ErrKeyNotFound {
				return err
			}
		}
		return setJSON(txn, recKey(id), rec)
	})
}

func (s *Store) ConfirmDeleteDoc(_ context.Context, id string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(recKey(id))
	})
}

func (s *Store) Close() error { return s.db.Close() }
