// Package syncx implements SyncCoordinator: the thin orchestrator that
// connects a document's store-backed commit pipeline to its transport
// broadcasts, serializing commits per document and ref-counting open
// handles so the last closer releases the document's resources
// (spec.md §5).
package syncx

import (
	"context"
	"sync"
	"time"

	logging "github.com/ipfs/go-log/v2"

	"github.com/relaydoc/core/change"
	"github.com/relaydoc/core/ot"
	"github.com/relaydoc/core/serverstore"
)

var logger = logging.Logger("syncx")

// ChangesCommittedMsg is the notification fanned out to subscribers after a
// successful commit, mirroring the changesCommitted(docId, newChanges) RPC
// notification (spec.md §6). OriginClientID lets a Broadcaster filter the
// originating client out of its own delivery.
type ChangesCommittedMsg struct {
	DocID          string
	Changes        []change.Change
	OriginClientID string
}

// Broadcaster fans out commit notifications to subscribed clients. The
// coordinator calls Publish after every commit that produced new changes;
// a subscriber implementation is responsible for skipping deliveries back
// to OriginClientID.
type Broadcaster interface {
	Publish(ctx context.Context, msg ChangesCommittedMsg) error
	Subscribe(ctx context.Context, docID, subscriberID string, handler func(ChangesCommittedMsg)) error
	Unsubscribe(ctx context.Context, docID, subscriberID string) error
	Close() error
}

// Config holds the coordinator's operating parameters (spec.md §6's
// "Environment" configuration surface).
type Config struct {
	SessionTimeout   time.Duration
	MaxPayloadBytes  int
	MaxStorageBytes  int
	SnapshotInterval int
}

// docHandle is one document's single-writer command queue: every commit
// against the doc runs inside the same goroutine, in submission order,
// satisfying §5's "commitChanges serializes per document" requirement
// without a cross-process lock.
type docHandle struct {
	refCount int
	cmds     chan func()
	done     chan struct{}
}

// Coordinator manages open document handles and serializes commits per
// document.
type Coordinator struct {
	store       serverstore.Store
	broadcaster Broadcaster
	config      Config

	mu   sync.Mutex
	docs map[string]*docHandle
}

// NewCoordinator builds a Coordinator over store, notifying commits through
// broadcaster.
func NewCoordinator(store serverstore.Store, broadcaster Broadcaster, config Config) *Coordinator {
	return &Coordinator{
		store:       store,
		broadcaster: broadcaster,
		config:      config,
		docs:        make(map[string]*docHandle),
	}
}

// Open registers interest in docID, starting its command-processing
// goroutine if this is the first open handle, and returns a release
// function the caller must call exactly once when done.
func (c *Coordinator) Open(docID string) func() {
	c.mu.Lock()
	h, ok := c.docs[docID]
	if !ok {
		h = &docHandle{
			cmds: make(chan func(), 64),
			done: make(chan struct{}),
		}
		c.docs[docID] = h
		go h.run()
	}
	h.refCount++
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { c.release(docID) })
	}
}

func (h *docHandle) run() {
	for {
		select {
		case fn := <-h.cmds:
			fn()
		case <-h.done:
			return
		}
	}
}

func (c *Coordinator) release(docID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	h, ok := c.docs[docID]
	if !ok {
		return
	}
	h.refCount--
	if h.refCount <= 0 {
		close(h.done)
		delete(c.docs, docID)
		logger.Debugf("closed doc handle for %s", docID)
	}
}

type commitResult struct {
	changes []change.Change
	err     error
}

// CommitChanges runs the OT commit pipeline for docID against a handle
// opened with Open, serialized against every other commit on the same
// document, and broadcasts the newly committed changes on success.
func (c *Coordinator) CommitChanges(ctx context.Context, docID string, changes []change.Change, originClientID string, opts ot.CommitOptions) ([]change.Change, error) {
	c.mu.Lock()
	h, ok := c.docs[docID]
	c.mu.Unlock()
	if !ok {
		release := c.Open(docID)
		defer release()
		c.mu.Lock()
		h = c.docs[docID]
		c.mu.Unlock()
	}

	resultCh := make(chan commitResult, 1)
	var revBefore int64
	cmd := func() {
		var err error
		if revBefore, err = c.store.CurrentRev(ctx, docID); err != nil {
			resultCh <- commitResult{err: err}
			return
		}
		out, err := ot.CommitChanges(ctx, c.store, docID, changes, opts)
		resultCh <- commitResult{changes: out, err: err}
	}

	select {
	case h.cmds <- cmd:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case res := <-resultCh:
		if res.err != nil {
			return nil, res.err
		}
		// Catchup changes (rev <= revBefore) were already broadcast when
		// they were committed; only the newly committed ones go out.
		var fresh []change.Change
		for _, ch := range res.changes {
			if ch.Rev > revBefore {
				fresh = append(fresh, ch)
			}
		}
		if c.broadcaster != nil && hasCommittedChanges(fresh) {
			_ = c.broadcaster.Publish(ctx, ChangesCommittedMsg{
				DocID:          docID,
				Changes:        fresh,
				OriginClientID: originClientID,
			})
		}
		return res.changes, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// hasCommittedChanges reports whether CommitChanges returned anything worth
// telling subscribers about.
func hasCommittedChanges(result []change.Change) bool {
	return len(result) > 0
}
