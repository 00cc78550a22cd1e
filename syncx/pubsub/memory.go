// Package pubsub implements syncx.Broadcaster: an in-memory reference
// broadcaster grounded in the teacher's crdtpubsub/memory package, plus a
// Redis Pub/Sub-backed implementation for multi-process deployments,
// mirroring crdtsync.PubSubBroadcaster / crdtsync.RedisStreamsBroadcaster.
package pubsub

import (
	"context"
	"fmt"
	"sync"

	"github.com/relaydoc/core/syncx"
)

// MemoryBroadcaster fans out commit notifications to in-process
// subscribers. Useful for tests and single-process deployments.
type MemoryBroadcaster struct {
	mu          sync.RWMutex
	subscribers map[string]map[string]func(syncx.ChangesCommittedMsg)
	closed      bool
}

// NewMemoryBroadcaster creates an empty MemoryBroadcaster.
func NewMemoryBroadcaster() *MemoryBroadcaster {
	return &MemoryBroadcaster{
		subscribers: make(map[string]map[string]func(syncx.ChangesCommittedMsg)),
	}
}

func (b *MemoryBroadcaster) Publish(ctx context.Context, msg syncx.ChangesCommittedMsg) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return fmt.Errorf("pubsub: broadcaster closed")
	}
	for subscriberID, handler := range b.subscribers[msg.DocID] {
		if subscriberID == msg.OriginClientID {
			continue
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			handler(msg)
		}
	}
	return nil
}

func (b *MemoryBroadcaster) Subscribe(_ context.Context, docID, subscriberID string, handler func(syncx.ChangesCommittedMsg)) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return fmt.Errorf("pubsub: broadcaster closed")
	}
	if _, ok := b.subscribers[docID]; !ok {
		b.subscribers[docID] = make(map[string]func(syncx.ChangesCommittedMsg))
	}
	b.subscribers[docID][subscriberID] = handler
	return nil
}

func (b *MemoryBroadcaster) Unsubscribe(_ context.Context, docID, subscriberID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs, ok := b.subscribers[docID]
	if !ok {
		return nil
	}
	delete(subs, subscriberID)
	if len(subs) == 0 {
		delete(b.subscribers, docID)
	}
	return nil
}

func (b *MemoryBroadcaster) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.subscribers = nil
	return nil
}

var _ syncx.Broadcaster = (*MemoryBroadcaster)(nil)
