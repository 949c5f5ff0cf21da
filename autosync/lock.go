package autosync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"
)

// TenantLocker serializes tenant passes across service instances.
type TenantLocker interface {
	// Acquire returns ErrLockNotObtained when another holder owns the tenant.
	Acquire(ctx context.Context, clientId string, ttl time.Duration) (release func(), err error)
}

type noopLocker struct{}

func (noopLocker) Acquire(context.Context, string, time.Duration) (func(), error) {
	return func() {}, nil
}

type RedisTenantLocker struct {
	client *redislock.Client
	prefix string
}

func NewRedisTenantLocker(client *redislock.Client) *RedisTenantLocker {
	return &RedisTenantLocker{client: client, prefix: "autosync:tenant"}
}

func (l *RedisTenantLocker) Acquire(ctx context.Context, clientId string, ttl time.Duration) (func(), error) {
	if l == nil || l.client == nil {
		return nil, errors.New("redis lock not initialized")
	}
	lockKey := fmt.Sprintf("%s:%s", l.prefix, clientId)
	lock, err := l.client.Obtain(ctx, lockKey, ttl, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, ErrLockNotObtained
	} else if err != nil {
		return nil, err
	}
	return func() {
		// The pass context may be done by now; release on a fresh one.
		releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = lock.Release(releaseCtx)
	}, nil
}
