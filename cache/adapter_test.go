package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPubSub_LocalRoundTrip(t *testing.T) {
	ps, err := NewPubSub(Config{LocalPubSubBuf: 8})
	require.NoError(t, err)

	ctx := context.Background()
	ch, cancel, err := ps.Subscribe(ctx, "guild:tags")
	require.NoError(t, err)

	require.NoError(t, ps.Publish(ctx, "guild:tags", `{"identity":1}`))
	select {
	case msg := <-ch:
		assert.Equal(t, "guild:tags", msg.Channel)
		assert.Equal(t, `{"identity":1}`, msg.Payload)
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for message")
	}

	cancel()
	select {
	case _, ok := <-ch:
		assert.False(t, ok, "adapter channel should close after cancel")
	case <-time.After(time.Second):
		t.Fatal("adapter channel not closed")
	}
}

func TestNewPubSub_BadRedis(t *testing.T) {
	_, err := NewPubSub(Config{RedisAddr: "127.0.0.1:1"})
	assert.Error(t, err)
}
