package stream

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dyluth/stacks/pkg/event"
)

// setupTestClient creates a stream client connected to a miniredis instance
func setupTestClient(t *testing.T) (*Client, *miniredis.Miniredis) {
	mr := miniredis.NewMiniRedis()
	err := mr.Start()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client, err := NewClient(&redis.Options{Addr: mr.Addr()}, "test-instance")
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	return client, mr
}

func TestNewClient(t *testing.T) {
	t.Run("creates client successfully", func(t *testing.T) {
		client, _ := setupTestClient(t)
		assert.NotNil(t, client)
		assert.Equal(t, "test-instance", client.instanceName)
	})

	t.Run("rejects empty instance name", func(t *testing.T) {
		_, err := NewClient(&redis.Options{Addr: "localhost:6379"}, "")
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "instance name cannot be empty")
	})
}

func TestEventsChannel(t *testing.T) {
	assert.Equal(t, "stacks:prod:simulation_events", EventsChannel("prod"))
}

func TestPublish(t *testing.T) {
	client, _ := setupTestClient(t)
	ctx := context.Background()

	t.Run("publishes valid events", func(t *testing.T) {
		ev := event.New(event.TypeSpeaking, "Emma", "hello", nil)
		assert.NoError(t, client.Publish(ctx, ev))
	})

	t.Run("rejects invalid events", func(t *testing.T) {
		ev := event.SimulationEvent{ID: "not-a-uuid", Type: event.TypeSpeaking, Content: "x"}
		err := client.Publish(ctx, ev)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid event")
	})
}

func TestPublishSubscribeRoundTrip(t *testing.T) {
	client, _ := setupTestClient(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sub, err := client.Subscribe(ctx)
	require.NoError(t, err)
	defer sub.Close()

	sent := event.New(event.TypeAction, "Alex", "borrowed a book", map[string]string{
		event.DetailErrorKind: "timeout",
	})
	require.NoError(t, client.Publish(ctx, sent))

	select {
	case got := <-sub.Events():
		assert.Equal(t, sent.ID, got.ID)
		assert.Equal(t, sent.Type, got.Type)
		assert.Equal(t, sent.Content, got.Content)
		assert.Equal(t, "timeout", got.Details[event.DetailErrorKind])
	case err := <-sub.Errors():
		t.Fatalf("unexpected subscription error: %v", err)
	case <-ctx.Done():
		t.Fatal("timed out waiting for event")
	}
}

func TestSubscriptionClose(t *testing.T) {
	client, _ := setupTestClient(t)

	sub, err := client.Subscribe(context.Background())
	require.NoError(t, err)
	require.NoError(t, sub.Close())

	// The events channel drains and closes after Close.
	select {
	case _, ok := <-sub.Events():
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("events channel did not close")
	}
}

func TestForwardDropsOnFailure(t *testing.T) {
	client, mr := setupTestClient(t)
	ctx := context.Background()

	forward := client.Forward(ctx)

	// A healthy mirror forwards without panicking.
	forward(event.New(event.TypeSystemMessage, "System", "ok", nil))

	// A dead Redis must not panic or block the caller.
	mr.Close()
	done := make(chan struct{})
	go func() {
		forward(event.New(event.TypeSystemMessage, "System", "dropped", nil))
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("forward blocked on a dead redis")
	}
}
