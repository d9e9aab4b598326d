package socket

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"docrelay/pkg/logger"

	"github.com/redis/go-redis/v9"
)

// BusMessage is one relayed frame crossing instances.
type BusMessage struct {
	Origin string `json:"origin"`
	RoomID string `json:"roomId"`
	Frame  []byte `json:"frame"`
}

// Bus carries relayed frames between relay instances.
type Bus interface {
	Publish(ctx context.Context, m BusMessage) error
	// Subscribe returns once the subscription is live; fn then runs for every
	// message until ctx is done.
	Subscribe(ctx context.Context, fn func(BusMessage)) error
	Close() error
}

type RedisBus struct {
	rdb    *redis.Client
	prefix string
}

// NewRedisBus connects to redisURL and verifies connectivity.
func NewRedisBus(ctx context.Context, redisURL string) (*RedisBus, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return NewRedisBusWithClient(rdb), nil
}

// NewRedisBusWithClient builds a bus on an existing client.
func NewRedisBusWithClient(rdb *redis.Client) *RedisBus {
	return &RedisBus{rdb: rdb, prefix: "docrelay:room:"}
}

// Client exposes the underlying connection so other components can share it.
func (b *RedisBus) Client() *redis.Client { return b.rdb }

func (b *RedisBus) channel(roomID string) string { return b.prefix + roomID }

func (b *RedisBus) Publish(ctx context.Context, m BusMessage) error {
	raw, err := json.Marshal(m)
	if err != nil {
		return err
	}
	return b.rdb.Publish(ctx, b.channel(m.RoomID), raw).Err()
}

func (b *RedisBus) Subscribe(ctx context.Context, fn func(BusMessage)) error {
	pubsub := b.rdb.PSubscribe(ctx, b.channel("*"))
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return fmt.Errorf("subscribe to room channels: %w", err)
	}
	ch := pubsub.Channel()

	go func() {
		defer pubsub.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var bm BusMessage
				if err := json.Unmarshal([]byte(msg.Payload), &bm); err != nil {
					logger.Sugar.Warnf("Dropping malformed bus message on %s: %v", msg.Channel, err)
					continue
				}
				if bm.RoomID == "" {
					bm.RoomID = strings.TrimPrefix(msg.Channel, b.prefix)
				}
				fn(bm)
			}
		}
	}()
	return nil
}

func (b *RedisBus) Close() error { return b.rdb.Close() }
