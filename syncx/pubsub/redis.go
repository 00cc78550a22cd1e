package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/go-redis/redis/v8"

	"github.com/relaydoc/core/change"
	"github.com/relaydoc/core/syncx"
)

// RedisBroadcaster fans out commit notifications over Redis Pub/Sub so
// multiple server processes behind the same Redis instance see each
// other's commits, mirroring crdtsync.RedisStreamsBroadcaster's role but
// built on go-redis's native Pub/Sub rather than streams — redisstore
// already uses the same client for the committed log, so subscribers get
// the notification at roughly the same time the data becomes readable.
type RedisBroadcaster struct {
	client *redis.Client

	mu   sync.Mutex
	subs map[string]map[string]context.CancelFunc
}

// NewRedisBroadcaster wraps an existing go-redis client.
func NewRedisBroadcaster(client *redis.Client) *RedisBroadcaster {
	return &RedisBroadcaster{
		client: client,
		subs:   make(map[string]map[string]context.CancelFunc),
	}
}

func channelFor(docID string) string { return "doc-changes:" + docID }

type wireMsg struct {
	Changes        json.RawMessage `json:"changes"`
	OriginClientID string          `json:"originClientId"`
}

func (b *RedisBroadcaster) Publish(ctx context.Context, msg syncx.ChangesCommittedMsg) error {
	changesJSON, err := json.Marshal(msg.Changes)
	if err != nil {
		return fmt.Errorf("pubsub: encode changes: %w", err)
	}
	payload, err := json.Marshal(wireMsg{Changes: changesJSON, OriginClientID: msg.OriginClientID})
	if err != nil {
		return fmt.Errorf("pubsub: encode message: %w", err)
	}
	return b.client.Publish(ctx, channelFor(msg.DocID), payload).Err()
}

func (b *RedisBroadcaster) Subscribe(ctx context.Context, docID, subscriberID string, handler func(syncx.ChangesCommittedMsg)) error {
	sub := b.client.Subscribe(ctx, channelFor(docID))
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("pubsub: subscribe: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	b.mu.Lock()
	if _, ok := b.subs[docID]; !ok {
		b.subs[docID] = make(map[string]context.CancelFunc)
	}
	b.subs[docID][subscriberID] = cancel
	b.mu.Unlock()

	ch := sub.Channel()
	go func() {
		defer sub.Close()
		for {
			select {
			case <-runCtx.Done():
				return
			case raw, ok := <-ch:
				if !ok {
					return
				}
				var w wireMsg
				if err := json.Unmarshal([]byte(raw.Payload), &w); err != nil {
					continue
				}
				if w.OriginClientID == subscriberID {
					continue
				}
				var changes []change.Change
				if err := json.Unmarshal(w.Changes, &changes); err != nil {
					continue
				}
				handler(syncx.ChangesCommittedMsg{DocID: docID, Changes: changes, OriginClientID: w.OriginClientID})
			}
		}
	}()
	return nil
}

func (b *RedisBroadcaster) Unsubscribe(_ context.Context, docID, subscriberID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs, ok := b.subs[docID]
	if !ok {
		return nil
	}
	if cancel, ok := subs[subscriberID]; ok {
		cancel()
		delete(subs, subscriberID)
	}
	if len(subs) == 0 {
		delete(b.subs, docID)
	}
	return nil
}

func (b *RedisBroadcaster) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, subs := range b.subs {
		for _, cancel := range subs {
			cancel()
		}
	}
	b.subs = nil
	return nil
}

var _ syncx.Broadcaster = (*RedisBroadcaster)(nil)
