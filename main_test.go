package main

import (
	"context"
	"testing"
	"time"

	"docrelay/internal/document/service"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoomLockerWithoutRedisIsLocal(t *testing.T) {
	_, ok := newRoomLocker(nil, 5*time.Second).(*service.LocalLocker)
	assert.True(t, ok)
}

func TestRoomLockerLeaseCoversStoreTimeout(t *testing.T) {
	s := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: s.Addr()})
	t.Cleanup(func() { rdb.Close() })

	locker, ok := newRoomLocker(rdb, 30*time.Second).(*service.RedisLocker)
	require.True(t, ok)
	assert.Equal(t, 90*time.Second, locker.TTL)

	unlock, err := locker.Lock(context.Background(), "r1")
	require.NoError(t, err)
	defer unlock()
	assert.Equal(t, 90*time.Second, s.TTL("docrelay:lock:r1"))

	// A lock outliving a lookup plus an insert must still be held.
	s.FastForward(2 * 30 * time.Second)
	assert.True(t, s.Exists("docrelay:lock:r1"))
}

func TestRoomLockerKeepsMinimumLease(t *testing.T) {
	s := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: s.Addr()})
	t.Cleanup(func() { rdb.Close() })

	locker := newRoomLocker(rdb, time.Second).(*service.RedisLocker)
	assert.Equal(t, 10*time.Second, locker.TTL)
}
