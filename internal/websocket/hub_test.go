package websocket

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(topics ...string) *Client {
	return &Client{
		send:   make(chan Message, sendBufferSize),
		topics: topics,
	}
}

func TestHub_PublishDeliversToSubscribedTopic(t *testing.T) {
	h := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.Run(ctx)

	c := newTestClient("agent:123")
	h.Subscribe(c)

	require.Eventually(t, func() bool { return h.ConnectedCount() == 1 }, time.Second, time.Millisecond)

	h.Publish("agent:123", Message{Type: MsgAgentStatus, Topic: "agent:123", Payload: map[string]string{"status": "online"}})

	select {
	case msg := <-c.send:
		assert.Equal(t, MsgAgentStatus, msg.Type)
	case <-time.After(time.Second):
		t.Fatal("expected message was not delivered")
	}
}

func TestHub_PublishIgnoresUnrelatedTopic(t *testing.T) {
	h := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.Run(ctx)

	c := newTestClient("agent:123")
	h.Subscribe(c)
	require.Eventually(t, func() bool { return h.ConnectedCount() == 1 }, time.Second, time.Millisecond)

	h.Publish("audit", Message{Type: MsgAuditAppended})

	select {
	case <-c.send:
		t.Fatal("client should not have received a message for a topic it did not subscribe to")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHub_UnsubscribeClosesSendChannel(t *testing.T) {
	h := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.Run(ctx)

	c := newTestClient("agent:123")
	h.Subscribe(c)
	require.Eventually(t, func() bool { return h.ConnectedCount() == 1 }, time.Second, time.Millisecond)

	h.Unsubscribe(c)
	require.Eventually(t, func() bool { return h.ConnectedCount() == 0 }, time.Second, time.Millisecond)

	_, ok := <-c.send
	assert.False(t, ok, "send channel should be closed after unsubscribe")
}
