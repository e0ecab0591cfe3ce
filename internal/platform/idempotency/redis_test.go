package idempotency

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisStore(client, WithKeyPrefix("test:idem:")), server
}

func TestRedisStoreClaimLifecycle(t *testing.T) {
	ctx := context.Background()
	store, _ := newRedisStore(t)

	outcome, _, err := store.Claim(ctx, "ops:key-1", "fp-1", fixedTime, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, Claimed, outcome)

	outcome, _, err = store.Claim(ctx, "ops:key-1", "fp-1", fixedTime, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, InFlight, outcome)

	_, _, err = store.Claim(ctx, "ops:key-1", "fp-other", fixedTime, time.Hour)
	assert.ErrorIs(t, err, ErrKeyReused)

	resp := Response{
		Status: http.StatusCreated,
		Header: http.Header{"Content-Type": {"application/json"}, "Content-Length": {"14"}},
		Body:   []byte(`{"id":"ret_1"}`),
	}
	require.NoError(t, store.Complete(ctx, "ops:key-1", "fp-1", resp, fixedTime.Add(time.Second), time.Hour))

	outcome, stored, err := store.Claim(ctx, "ops:key-1", "fp-1", fixedTime.Add(2*time.Second), time.Hour)
	require.NoError(t, err)
	assert.Equal(t, Replayable, outcome)
	require.NotNil(t, stored)
	assert.Equal(t, http.StatusCreated, stored.Status)
	assert.Equal(t, `{"id":"ret_1"}`, string(stored.Body))
	assert.Equal(t, "application/json", stored.Header.Get("Content-Type"))
	assert.Empty(t, stored.Header.Get("Content-Length"))
}

func TestRedisStoreCompleteRejectsOtherFingerprint(t *testing.T) {
	ctx := context.Background()
	store, _ := newRedisStore(t)

	_, _, err := store.Claim(ctx, "k", "fp-1", fixedTime, time.Hour)
	require.NoError(t, err)
	err = store.Complete(ctx, "k", "fp-2", Response{Status: http.StatusOK}, fixedTime, time.Hour)
	assert.ErrorIs(t, err, ErrKeyReused)
}

func TestRedisStoreEntriesExpire(t *testing.T) {
	ctx := context.Background()
	store, server := newRedisStore(t)

	_, _, err := store.Claim(ctx, "ttl", "fp", fixedTime, time.Minute)
	require.NoError(t, err)
	server.FastForward(2 * time.Minute)

	outcome, _, err := store.Claim(ctx, "ttl", "fp-new", fixedTime.Add(2*time.Minute), time.Minute)
	require.NoError(t, err)
	assert.Equal(t, Claimed, outcome)
}

func TestRedisStoreRelease(t *testing.T) {
	ctx := context.Background()
	store, server := newRedisStore(t)

	_, _, err := store.Claim(ctx, "k", "fp", fixedTime, time.Hour)
	require.NoError(t, err)
	require.NoError(t, store.Release(ctx, "k"))
	assert.Empty(t, server.Keys())

	outcome, _, err := store.Claim(ctx, "k", "fp", fixedTime, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, Claimed, outcome)
}

func TestRedisStorePingAndOutage(t *testing.T) {
	ctx := context.Background()
	store, server := newRedisStore(t)
	require.NoError(t, store.Ping(ctx))

	server.Close()
	_, _, err := store.Claim(ctx, "down", "fp", fixedTime, time.Hour)
	assert.Error(t, err)
}

func TestMiddlewareReplaysFromRedis(t *testing.T) {
	store, _ := newRedisStore(t)
	calls := 0
	h := Middleware(store, WithClock(fixedClock))(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"approved"}`))
	}))

	rq := request{path: "/api/v1/returns/ret_1/approve", key: "approve-1"}
	first := rq.serve(h)
	second := rq.serve(h)

	assert.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, http.StatusOK, second.Code)
	assert.Equal(t, "true", second.Header().Get(ReplayHeader))
	assert.Equal(t, 1, calls)
}
