package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"docrelay/pkg/logger"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RoomLocker serializes the load-or-create step per room.
type RoomLocker interface {
	Lock(ctx context.Context, roomID string) (unlock func(), err error)
}

// LocalLocker is a per-room mutex for a single process. Entries are dropped
// once nobody holds or waits on them.
type LocalLocker struct {
	mu    sync.Mutex
	rooms map[string]*roomLock
}

type roomLock struct {
	ch   chan struct{}
	refs int
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{rooms: make(map[string]*roomLock)}
}

func (l *LocalLocker) Lock(ctx context.Context, roomID string) (func(), error) {
	l.mu.Lock()
	rl, ok := l.rooms[roomID]
	if !ok {
		rl = &roomLock{ch: make(chan struct{}, 1)}
		l.rooms[roomID] = rl
	}
	rl.refs++
	l.mu.Unlock()

	select {
	case rl.ch <- struct{}{}:
	case <-ctx.Done():
		l.release(roomID, rl)
		return nil, fmt.Errorf("lock room %s: %w", roomID, ctx.Err())
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-rl.ch
			l.release(roomID, rl)
		})
	}, nil
}

func (l *LocalLocker) release(roomID string, rl *roomLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	rl.refs--
	if rl.refs == 0 {
		delete(l.rooms, roomID)
	}
}

// size is the number of rooms with a holder or waiter.
func (l *LocalLocker) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.rooms)
}

// releaseScript deletes the key only if it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker extends the local lock across relay instances sharing one
// database. The key expires after TTL so a crashed holder cannot wedge a room.
type RedisLocker struct {
	client *redis.Client
	local  *LocalLocker
	prefix string
	TTL    time.Duration
	Retry  time.Duration
}

func NewRedisLocker(client *redis.Client) *RedisLocker {
	return &RedisLocker{
		client: client,
		local:  NewLocalLocker(),
		prefix: "docrelay:lock:",
		TTL:    10 * time.Second,
		Retry:  50 * time.Millisecond,
	}
}

func (l *RedisLocker) key(roomID string) string {
	return l.prefix + roomID
}

func (l *RedisLocker) Lock(ctx context.Context, roomID string) (func(), error) {
	unlockLocal, err := l.local.Lock(ctx, roomID)
	if err != nil {
		return nil, err
	}

	key := l.key(roomID)
	token := uuid.NewString()
	for {
		ok, err := l.client.SetNX(ctx, key, token, l.TTL).Result()
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				err = ctxErr
			}
			unlockLocal()
			return nil, fmt.Errorf("lock room %s: %w", roomID, err)
		}
		if ok {
			break
		}

		timer := time.NewTimer(l.Retry)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			unlockLocal()
			return nil, fmt.Errorf("lock room %s: %w", roomID, ctx.Err())
		}
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			// The caller's context may already be done; release on a fresh one.
			rctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := releaseScript.Run(rctx, l.client, []string{key}, token).Err(); err != nil && !errors.Is(err, redis.Nil) {
				logger.Sugar.Warnf("Failed to release room lock %s: %v", roomID, err)
			}
			unlockLocal()
		})
	}, nil
}
