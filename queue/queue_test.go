package queue

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var base = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func runQueueContract(t *testing.T, newQueue func(t *testing.T) Queue) {
	t.Run("claims due submissions once", func(t *testing.T) {
		q := newQueue(t)
		ctx := context.Background()

		first, err := q.Submit(ctx, Submission{Payload: []byte(`{"a":1}`), DeliverAt: base, CreatedAt: base})
		require.NoError(t, err)
		require.NotEmpty(t, first.ID)
		_, err = q.Submit(ctx, Submission{Payload: []byte(`{"b":2}`), DeliverAt: base.Add(30 * time.Second), CreatedAt: base})
		require.NoError(t, err)

		claimed, err := q.Claim(ctx, ClaimFilter{WorkerID: "w1", Now: base.Add(time.Second), Lease: time.Minute})
		require.NoError(t, err)
		require.Len(t, claimed, 1)
		assert.Equal(t, first.ID, claimed[0].ID)
		assert.Equal(t, `{"a":1}`, string(claimed[0].Payload))
		assert.Equal(t, 1, claimed[0].Attempts)
		assert.Equal(t, "w1", claimed[0].LeaseOwner)

		again, err := q.Claim(ctx, ClaimFilter{WorkerID: "w2", Now: base.Add(2 * time.Second), Lease: time.Minute})
		require.NoError(t, err)
		assert.Empty(t, again)

		later, err := q.Claim(ctx, ClaimFilter{WorkerID: "w2", Now: base.Add(31 * time.Second), Lease: time.Minute})
		require.NoError(t, err)
		require.Len(t, later, 1)
		assert.Equal(t, `{"b":2}`, string(later[0].Payload))
	})

	t.Run("expired lease is reclaimable until acked", func(t *testing.T) {
		q := newQueue(t)
		ctx := context.Background()

		sub, err := q.Submit(ctx, Submission{Payload: []byte("x"), DeliverAt: base, CreatedAt: base})
		require.NoError(t, err)

		claimed, err := q.Claim(ctx, ClaimFilter{WorkerID: "w1", Now: base, Lease: time.Minute})
		require.NoError(t, err)
		require.Len(t, claimed, 1)

		reclaimed, err := q.Claim(ctx, ClaimFilter{WorkerID: "w2", Now: base.Add(2 * time.Minute), Lease: time.Minute})
		require.NoError(t, err)
		require.Len(t, reclaimed, 1)
		assert.Equal(t, 2, reclaimed[0].Attempts)

		require.NoError(t, q.Ack(ctx, sub.ID))
		pending, err := q.Pending(ctx)
		require.NoError(t, err)
		assert.Empty(t, pending)
	})

	t.Run("affinity role and zone filter claims", func(t *testing.T) {
		q := newQueue(t)
		ctx := context.Background()

		_, err := q.Submit(ctx, Submission{Payload: []byte("pinned"), DeliverAt: base, CreatedAt: base, ServerGUID: "guid-a", Role: "automate"})
		require.NoError(t, err)
		_, err = q.Submit(ctx, Submission{Payload: []byte("zoned"), DeliverAt: base, CreatedAt: base.Add(time.Millisecond), Role: "automate", Zone: "east"})
		require.NoError(t, err)

		other, err := q.Claim(ctx, ClaimFilter{ServerGUID: "guid-b", Zone: "west", Roles: []string{"automate"}, Now: base})
		require.NoError(t, err)
		assert.Empty(t, other)

		noRole, err := q.Claim(ctx, ClaimFilter{ServerGUID: "guid-a", Zone: "east", Now: base})
		require.NoError(t, err)
		assert.Empty(t, noRole)

		owner, err := q.Claim(ctx, ClaimFilter{ServerGUID: "guid-a", Zone: "east", Roles: []string{"Automate"}, Now: base})
		require.NoError(t, err)
		require.Len(t, owner, 2)
		assert.Equal(t, "pinned", string(owner[0].Payload))
		assert.Equal(t, "guid-a", owner[0].LeaseOwner)
	})

	t.Run("pending lists everything in deliver order", func(t *testing.T) {
		q := newQueue(t)
		ctx := context.Background()

		_, err := q.Submit(ctx, Submission{ID: "late", DeliverAt: base.Add(time.Hour), CreatedAt: base, Timeout: time.Hour})
		require.NoError(t, err)
		_, err = q.Submit(ctx, Submission{ID: "soon", DeliverAt: base, CreatedAt: base})
		require.NoError(t, err)

		pending, err := q.Pending(ctx)
		require.NoError(t, err)
		require.Len(t, pending, 2)
		assert.Equal(t, "soon", pending[0].ID)
		assert.Equal(t, "late", pending[1].ID)
		assert.Equal(t, time.Hour, pending[1].Timeout)
		assert.True(t, pending[1].DeliverAt.Equal(base.Add(time.Hour)))
	})
}

func TestMemoryQueue(t *testing.T) {
	runQueueContract(t, func(*testing.T) Queue { return NewMemory() })
}

func TestSQLiteQueue(t *testing.T) {
	runQueueContract(t, func(t *testing.T) Queue {
		db, err := OpenSQLite(":memory:")
		require.NoError(t, err)
		t.Cleanup(func() { _ = db.Close() })
		return NewSQLite(db, "")
	})
}

func TestRedisQueue(t *testing.T) {
	addr := os.Getenv("AUTOMATE_REDIS_ADDR")
	if addr == "" {
		t.Skip("AUTOMATE_REDIS_ADDR not set")
	}
	runQueueContract(t, func(t *testing.T) Queue {
		client := redis.NewClient(&redis.Options{Addr: addr})
		t.Cleanup(func() { _ = client.Close() })
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		require.NoError(t, client.Ping(ctx).Err())

		prefix := "automate:test:" + t.Name() + ":"
		q := NewRedis(client, prefix)
		require.NoError(t, client.Del(context.Background(), q.dueKey(), q.leasedKey(), q.jobsKey()).Err())
		return q
	})
}

func TestNormalizeAssignsDefaults(t *testing.T) {
	s := Normalize(Submission{}, base)
	assert.NotEmpty(t, s.ID)
	assert.True(t, s.CreatedAt.Equal(base))
	assert.True(t, s.DeliverAt.Equal(base))
}
