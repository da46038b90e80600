package blackboard

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestClient creates a test client connected to a miniredis instance.
func setupTestClient(t *testing.T, runID string) (*Client, *miniredis.Miniredis) {
	mr := miniredis.NewMiniRedis()
	err := mr.Start()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client, err := NewClient(&redis.Options{Addr: mr.Addr()}, runID)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	return client, mr
}

func TestNewClient(t *testing.T) {
	t.Run("creates client successfully", func(t *testing.T) {
		client, _ := setupTestClient(t, "run-1")
		assert.NotNil(t, client)
		assert.Equal(t, "run-1", client.RunID())
	})

	t.Run("rejects empty run ID", func(t *testing.T) {
		_, err := NewClient(&redis.Options{Addr: "localhost:6379"}, "")
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "run ID cannot be empty")
	})
}

func TestClientPing(t *testing.T) {
	client, _ := setupTestClient(t, "run-1")
	assert.NoError(t, client.Ping(context.Background()))
}

func TestClientWriteReadReset(t *testing.T) {
	client, _ := setupTestClient(t, "run-1")
	ctx := context.Background()

	t.Run("read of absent namespace returns not found", func(t *testing.T) {
		_, err := client.Read(ctx, NamespacePlan)
		assert.True(t, IsNotFound(err))
	})

	t.Run("write then read round-trips", func(t *testing.T) {
		require.NoError(t, client.Write(ctx, NamespacePlan, Document(`{"query":"q"}`)))

		doc, err := client.Read(ctx, NamespacePlan)
		require.NoError(t, err)
		assert.JSONEq(t, `{"query":"q"}`, string(doc))
	})

	t.Run("write replaces prior document", func(t *testing.T) {
		require.NoError(t, client.Write(ctx, NamespacePlan, Document(`{"query":"q2"}`)))

		doc, err := client.Read(ctx, NamespacePlan)
		require.NoError(t, err)
		assert.JSONEq(t, `{"query":"q2"}`, string(doc))
	})

	t.Run("reset clears a single namespace", func(t *testing.T) {
		require.NoError(t, client.Write(ctx, NamespaceRetrieval, Document(`{"status":"success"}`)))
		require.NoError(t, client.Reset(ctx, NamespacePlan))

		_, err := client.Read(ctx, NamespacePlan)
		assert.True(t, IsNotFound(err))

		_, err = client.Read(ctx, NamespaceRetrieval)
		assert.NoError(t, err)
	})

	t.Run("reset all clears the board", func(t *testing.T) {
		require.NoError(t, client.ResetAll(ctx))

		snap, err := client.Snapshot(ctx)
		require.NoError(t, err)
		assert.Empty(t, snap)
	})

	t.Run("rejects unknown namespace", func(t *testing.T) {
		assert.Error(t, client.Write(ctx, "scratch", Document(`{}`)))
	})
}

func TestClientRunIsolation(t *testing.T) {
	mr := miniredis.NewMiniRedis()
	require.NoError(t, mr.Start())
	t.Cleanup(mr.Close)

	ctx := context.Background()

	clientA, err := NewClient(&redis.Options{Addr: mr.Addr()}, "run-a")
	require.NoError(t, err)
	t.Cleanup(func() { clientA.Close() })

	clientB, err := NewClient(&redis.Options{Addr: mr.Addr()}, "run-b")
	require.NoError(t, err)
	t.Cleanup(func() { clientB.Close() })

	require.NoError(t, clientA.Write(ctx, NamespacePlan, Document(`{"query":"a"}`)))
	require.NoError(t, clientB.Write(ctx, NamespacePlan, Document(`{"query":"b"}`)))

	docA, err := clientA.Read(ctx, NamespacePlan)
	require.NoError(t, err)
	assert.JSONEq(t, `{"query":"a"}`, string(docA))

	docB, err := clientB.Read(ctx, NamespacePlan)
	require.NoError(t, err)
	assert.JSONEq(t, `{"query":"b"}`, string(docB))

	// Resetting run A must not touch run B.
	require.NoError(t, clientA.ResetAll(ctx))
	_, err = clientB.Read(ctx, NamespacePlan)
	assert.NoError(t, err)
}

func TestSubscribeBoardEvents(t *testing.T) {
	client, _ := setupTestClient(t, "run-1")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sub, err := client.SubscribeBoardEvents(ctx)
	require.NoError(t, err)
	defer sub.Close()

	// Give the subscriber goroutine time to attach before publishing.
	time.Sleep(50 * time.Millisecond)

	require.NoError(t, client.Write(ctx, NamespacePlan, Document(`{"query":"q"}`)))

	select {
	case event := <-sub.Events():
		require.NotNil(t, event)
		assert.Equal(t, "run-1", event.RunID)
		assert.Equal(t, BoardOpWrite, event.Op)
		assert.Equal(t, NamespacePlan, event.Namespace)
		assert.JSONEq(t, `{"query":"q"}`, string(event.Document))
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for board event")
	}

	require.NoError(t, client.Reset(ctx, NamespacePlan))

	select {
	case event := <-sub.Events():
		require.NotNil(t, event)
		assert.Equal(t, BoardOpReset, event.Op)
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for reset event")
	}
}

func TestSubscriptionCloseIsIdempotent(t *testing.T) {
	client, _ := setupTestClient(t, "run-1")

	sub, err := client.SubscribeBoardEvents(context.Background())
	require.NoError(t, err)

	assert.NoError(t, sub.Close())
	assert.NoError(t, sub.Close())
}
