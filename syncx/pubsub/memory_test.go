package pubsub

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/relaydoc/core/change"
	"github.com/relaydoc/core/syncx"
)

func TestMemoryBroadcasterDeliversToOtherSubscribersOnly(t *testing.T) {
	ctx := context.Background()
	b := NewMemoryBroadcaster()

	received := make(chan syncx.ChangesCommittedMsg, 1)
	require.NoError(t, b.Subscribe(ctx, "doc-1", "client-b", func(msg syncx.ChangesCommittedMsg) {
		received <- msg
	}))
	originReceived := make(chan syncx.ChangesCommittedMsg, 1)
	require.NoError(t, b.Subscribe(ctx, "doc-1", "client-a", func(msg syncx.ChangesCommittedMsg) {
		originReceived <- msg
	}))

	msg := syncx.ChangesCommittedMsg{
		DocID:          "doc-1",
		Changes:        []change.Change{{ID: "c1", Rev: 1}},
		OriginClientID: "client-a",
	}
	require.NoError(t, b.Publish(ctx, msg))

	select {
	case got := <-received:
		require.Equal(t, "doc-1", got.DocID)
	case <-time.After(time.Second):
		t.Fatal("expected delivery to client-b")
	}

	select {
	case <-originReceived:
		t.Fatal("origin client should not receive its own broadcast")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestMemoryBroadcasterUnsubscribeStopsDelivery(t *testing.T) {
	ctx := context.Background()
	b := NewMemoryBroadcaster()

	received := make(chan syncx.ChangesCommittedMsg, 1)
	require.NoError(t, b.Subscribe(ctx, "doc-1", "client-b", func(msg syncx.ChangesCommittedMsg) {
		received <- msg
	}))
	require.NoError(t, b.Unsubscribe(ctx, "doc-1", "client-b"))
	require.NoError(t, b.Publish(ctx, syncx.ChangesCommittedMsg{DocID: "doc-1", OriginClientID: "client-a"}))

	select {
	case <-received:
		t.Fatal("unsubscribed client should not receive broadcast")
	case <-time.After(50 * time.Millisecond):
	}
}
