package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrLeaseLost is returned by Renew when another holder owns the lease.
var ErrLeaseLost = errors.New("lease lost or stolen")

const (
	renewScript = `
		if redis.call("GET", KEYS[1]) == ARGV[1] then
			return redis.call("PEXPIRE", KEYS[1], ARGV[2])
		else
			return 0
		end
	`
	releaseScript = `
		if redis.call("GET", KEYS[1]) == ARGV[1] then
			return redis.call("DEL", KEYS[1])
		else
			return 0
		end
	`
)

// RedisLocker serializes commands on a session across daemons sharing one
// Redis. Each lock is a lease with a TTL so a crashed holder cannot wedge a
// session.
type RedisLocker struct {
	client *redis.Client
	ttl    time.Duration
	retry  time.Duration
	logger *slog.Logger
}

func NewRedisLocker(client *redis.Client, ttl time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = 5 * time.Second
	}
	return &RedisLocker{
		client: client,
		ttl:    ttl,
		retry:  10 * time.Millisecond,
		logger: slog.New(slog.DiscardHandler),
	}
}

// WithLogger sets where contention is reported, at debug level.
func (l *RedisLocker) WithLogger(logger *slog.Logger) *RedisLocker {
	l.logger = logger
	return l
}

func (l *RedisLocker) makeKey(id string) string {
	return fmt.Sprintf("tpuzzle:lock:%s", id)
}

// Acquire tries once to take the lease for holderID. Re-acquiring a lease
// already held by holderID renews it.
func (l *RedisLocker) Acquire(ctx context.Context, id, holderID string) (bool, error) {
	key := l.makeKey(id)
	ok, err := l.client.SetNX(ctx, key, holderID, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire lease: %w", err)
	}
	if ok {
		return true, nil
	}

	val, err := l.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		// Expired between SETNX and GET; the caller retries.
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check existing lease: %w", err)
	}
	if val == holderID {
		return true, l.Renew(ctx, id, holderID)
	}
	return false, nil
}

// Renew extends a lease held by holderID.
func (l *RedisLocker) Renew(ctx context.Context, id, holderID string) error {
	res, err := l.client.Eval(ctx, renewScript, []string{l.makeKey(id)}, holderID, l.ttl.Milliseconds()).Result()
	if err != nil {
		return fmt.Errorf("failed to execute renew script: %w", err)
	}
	n, ok := res.(int64)
	if !ok {
		return fmt.Errorf("unexpected return type from renew script")
	}
	if n != 1 {
		return ErrLeaseLost
	}
	return nil
}

// Release drops the lease if holderID still holds it.
func (l *RedisLocker) Release(ctx context.Context, id, holderID string) error {
	if _, err := l.client.Eval(ctx, releaseScript, []string{l.makeKey(id)}, holderID).Result(); err != nil {
		return fmt.Errorf("failed to execute release script: %w", err)
	}
	return nil
}

// Holder returns the current lease holder, or "" if the session is free.
func (l *RedisLocker) Holder(ctx context.Context, id string) (string, error) {
	val, err := l.client.Get(ctx, l.makeKey(id)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get lease: %w", err)
	}
	return val, nil
}

// Lock polls until the lease is acquired or ctx is done. The first failed
// attempt logs who holds the session.
func (l *RedisLocker) Lock(ctx context.Context, id string) (func(), error) {
	holder := uuid.NewString()
	ticker := time.NewTicker(l.retry)
	defer ticker.Stop()
	start := time.Now()
	for attempt := 0; ; attempt++ {
		ok, err := l.Acquire(ctx, id, holder)
		if err != nil {
			return nil, err
		}
		if ok {
			if attempt > 0 {
				l.logger.Debug("lock_acquired_after_wait", "session_id", id, "attempts", attempt+1, "waited", time.Since(start).String())
			}
			return func() {
				// The command context may already be cancelled; release anyway.
				_ = l.Release(context.WithoutCancel(ctx), id, holder)
			}, nil
		}
		if attempt == 0 {
			current, err := l.Holder(ctx, id)
			if err != nil {
				return nil, err
			}
			l.logger.Debug("lock_contended", "session_id", id, "holder", current)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
