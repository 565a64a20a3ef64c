// Package memo remembers the last committed milestone fingerprint per
// invitation so a recomputation with an unchanged milestone set does not
// write progress again.
package memo

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

type Memo interface {
	Last(ctx context.Context, invitationID string) (uint64, bool, error)
	Remember(ctx context.Context, invitationID string, fingerprint uint64) error
}

type InMemory struct {
	mu     sync.RWMutex
	values map[string]uint64
}

func NewInMemory() *InMemory {
	return &InMemory{values: map[string]uint64{}}
}

func (m *InMemory) Last(_ context.Context, invitationID string) (uint64, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[invitationID]
	return v, ok, nil
}

func (m *InMemory) Remember(_ context.Context, invitationID string, fingerprint uint64) error {
	m.mu.Lock()
	m.values[invitationID] = fingerprint
	m.mu.Unlock()
	return nil
}

const (
	defaultKeyPrefix = "collab:progress:"
	defaultTTL       = 7 * 24 * time.Hour
)

// Redis shares the memo between API replicas and the lifecycle engine.
type Redis struct {
	Client *redis.Client
	Prefix string
	TTL    time.Duration
}

func NewRedis(client *redis.Client) *Redis {
	return &Redis{Client: client, Prefix: defaultKeyPrefix, TTL: defaultTTL}
}

func NewRedisFromURL(url string) (*Redis, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return NewRedis(redis.NewClient(opts)), nil
}

func (r *Redis) key(invitationID string) string {
	return r.Prefix + invitationID
}

func (r *Redis) Last(ctx context.Context, invitationID string) (uint64, bool, error) {
	raw, err := r.Client.Get(ctx, r.key(invitationID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, false, nil
		}
		return 0, false, err
	}
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("decode memo value %q: %w", raw, err)
	}
	return v, true, nil
}

func (r *Redis) Remember(ctx context.Context, invitationID string, fingerprint uint64) error {
	return r.Client.Set(ctx, r.key(invitationID), strconv.FormatUint(fingerprint, 10), r.TTL).Err()
}

func (r *Redis) Ping(ctx context.Context) error {
	return r.Client.Ping(ctx).Err()
}

func (r *Redis) Close() error {
	return r.Client.Close()
}
