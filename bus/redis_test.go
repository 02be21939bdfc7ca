package bus

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupBus(t *testing.T) (*RedisBus, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	b, err := NewRedisBus(Options{Addr: "redis://" + mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { b.Close() })
	return b, mr
}

func TestRedisBusRejectsBadAddress(t *testing.T) {
	_, err := NewRedisBus(Options{Addr: "://not-a-url"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CONFIG_ERROR")
}

func TestRedisBusPublishPollAck(t *testing.T) {
	b, _ := setupBus(t)
	ctx := context.Background()
	topic := "dev.acme.search.searchRequested"

	require.NoError(t, b.Publish(ctx, topic, "raw:k1", []byte(`{"n":1}`)))
	require.NoError(t, b.Subscribe(ctx, []string{topic}, "controller", "c-1"))

	msg, err := b.Poll(ctx, 100*time.Millisecond)
	require.NoError(t, err)
	require.NotNil(t, msg, "group starts at the stream head, backlog included")
	assert.Equal(t, topic, msg.Topic)
	assert.Equal(t, "raw:k1", msg.Key)
	assert.Equal(t, []byte(`{"n":1}`), msg.Value)

	require.NoError(t, b.Ack(ctx, msg))

	msg, err = b.Poll(ctx, 10*time.Millisecond)
	require.NoError(t, err)
	assert.Nil(t, msg, "acked entry is not redelivered")
}

func TestRedisBusRotatesTopics(t *testing.T) {
	b, _ := setupBus(t)
	ctx := context.Background()
	topics := []string{"dev.acme.a.e1", "dev.acme.b.e2"}

	for _, topic := range topics {
		require.NoError(t, b.Publish(ctx, topic, "k", []byte("v")))
	}
	require.NoError(t, b.Subscribe(ctx, topics, "g", "c-1"))

	seen := map[string]bool{}
	for i := 0; i < 2; i++ {
		msg, err := b.Poll(ctx, 100*time.Millisecond)
		require.NoError(t, err)
		require.NotNil(t, msg)
		seen[msg.Topic] = true
		require.NoError(t, b.Ack(ctx, msg))
	}
	assert.Len(t, seen, 2, "both topics are drained despite one-entry polls")
}

func TestRedisBusPollBeforeSubscribe(t *testing.T) {
	b, _ := setupBus(t)
	_, err := b.Poll(context.Background(), 10*time.Millisecond)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "BUS_ERROR")
}

func TestRedisBusResubscribeIsIdempotent(t *testing.T) {
	b, _ := setupBus(t)
	ctx := context.Background()
	topic := "dev.acme.search.searchRequested"

	require.NoError(t, b.Subscribe(ctx, []string{topic}, "g", "c-1"))
	require.NoError(t, b.Subscribe(ctx, []string{topic}, "g", "c-1"),
		"an existing group is not an error")
}
