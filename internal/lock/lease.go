// Package lock grants time-bounded exclusive claims on a post id in Redis.
package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/redis/go-redis/v9"
)

const (
	keyPrefix = "post-lease:"

	releaseScript = "if redis.call('get', KEYS[1]) == ARGV[1] then return redis.call('del', KEYS[1]) else return 0 end"
	extendScript  = "if redis.call('get', KEYS[1]) == ARGV[1] then return redis.call('pexpire', KEYS[1], ARGV[2]) else return 0 end"
)

var (
	ErrLeaseHeld = errors.New("lease is held by another worker")
	ErrLeaseLost = errors.New("lease expired or taken over")
)

// Lease is a held claim. A crashed holder's lease lapses after its TTL.
type Lease interface {
	Key() string
	Extend(ctx context.Context, ttl time.Duration) error
	Release(ctx context.Context) error
}

type Leaser struct {
	client redis.UniversalClient
	ttl    time.Duration
}

func NewLeaser(client redis.UniversalClient, ttl time.Duration) *Leaser {
	return &Leaser{client: client, ttl: ttl}
}

func Key(postID int64) string {
	return fmt.Sprintf("%s%d", keyPrefix, postID)
}

// Acquire claims postID for the leaser's TTL or returns ErrLeaseHeld.
func (l *Leaser) Acquire(ctx context.Context, postID int64) (Lease, error) {
	owner, err := gonanoid.New()
	if err != nil {
		return nil, fmt.Errorf("generate lease owner: %w", err)
	}
	return l.acquire(ctx, Key(postID), owner)
}

func (l *Leaser) acquire(ctx context.Context, key, owner string) (Lease, error) {
	ok, err := l.client.SetNX(ctx, key, owner, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire lease %s: %w", key, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrLeaseHeld, key)
	}
	return &redisLease{client: l.client, key: key, owner: owner}, nil
}

type redisLease struct {
	client redis.UniversalClient
	key    string
	owner  string
}

func (r *redisLease) Key() string {
	return r.key
}

func (r *redisLease) Extend(ctx context.Context, ttl time.Duration) error {
	result, err := r.client.Eval(ctx, extendScript, []string{r.key}, r.owner, fmt.Sprintf("%d", ttl.Milliseconds())).Result()
	if err != nil {
		return fmt.Errorf("extend lease %s: %w", r.key, err)
	}
	if result == int64(0) {
		return fmt.Errorf("%w: %s", ErrLeaseLost, r.key)
	}
	return nil
}

func (r *redisLease) Release(ctx context.Context) error {
	result, err := r.client.Eval(ctx, releaseScript, []string{r.key}, r.owner).Result()
	if err != nil {
		return fmt.Errorf("release lease %s: %w", r.key, err)
	}
	if result == int64(0) {
		return fmt.Errorf("%w: %s", ErrLeaseLost, r.key)
	}
	return nil
}
