package queue

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemory_PublishConsume(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q := NewInMemory(4)

	msg, err := NewMessage(TypeReport, map[string]string{"jobId": "j1"})
	require.NoError(t, err)
	require.NoError(t, q.Publish(ctx, msg))

	msgs, err := q.Consume(ctx)
	require.NoError(t, err)

	select {
	case got := <-msgs:
		assert.Equal(t, TypeReport, got.Type)
		var body struct {
			JobID string `json:"jobId"`
		}
		require.NoError(t, got.Decode(&body))
		assert.Equal(t, "j1", body.JobID)
	case <-time.After(time.Second):
		t.Fatal("message not delivered")
	}

	cancel()
	for range msgs {
	}
}

func TestInMemory_PublishRespectsContext(t *testing.T) {
	q := NewInMemory(1)
	require.NoError(t, q.Publish(context.Background(), Message{Type: TypeReport}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, q.Publish(ctx, Message{Type: TypeReport}), context.Canceled)
}

func newRedisQueue(t *testing.T) (*RedisQueue, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisQueue(client, ""), mr
}

func TestRedisQueue_PublishConsume(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q, mr := newRedisQueue(t)

	first, err := NewMessage(TypeReport, map[string]string{"jobId": "j1"})
	require.NoError(t, err)
	second, err := NewMessage(TypeReport, map[string]string{"jobId": "j2"})
	require.NoError(t, err)
	require.NoError(t, q.Publish(ctx, first))
	require.NoError(t, q.Publish(ctx, second))

	pending, err := mr.List("clubhub:jobs")
	require.NoError(t, err)
	assert.Len(t, pending, 2)

	msgs, err := q.Consume(ctx)
	require.NoError(t, err)
	for _, want := range []string{"j1", "j2"} {
		select {
		case got := <-msgs:
			assert.Equal(t, TypeReport, got.Type)
			var body struct {
				JobID string `json:"jobId"`
			}
			require.NoError(t, got.Decode(&body))
			assert.Equal(t, want, body.JobID)
		case <-time.After(2 * time.Second):
			t.Fatalf("message %s not delivered", want)
		}
	}
}

func TestRedisQueue_SkipsUndecodableEntries(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q, mr := newRedisQueue(t)

	_, err := mr.Lpush("clubhub:jobs", "not json")
	require.NoError(t, err)
	msg, err := NewMessage(TypeReport, map[string]string{"jobId": "j3"})
	require.NoError(t, err)
	require.NoError(t, q.Publish(ctx, msg))

	msgs, err := q.Consume(ctx)
	require.NoError(t, err)
	select {
	case got := <-msgs:
		var body struct {
			JobID string `json:"jobId"`
		}
		require.NoError(t, got.Decode(&body))
		assert.Equal(t, "j3", body.JobID)
	case <-time.After(2 * time.Second):
		t.Fatal("valid message behind a bad entry not delivered")
	}
}
