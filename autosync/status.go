package autosync

import (
	"context"
	"time"

	"github.com/mmdatafocus/autosync_backend/config"
)

const statusKeyPrefix = "autosync:status:"

// StatusPublisher shares a worker's status snapshot with the other instances.
type StatusPublisher interface {
	Publish(ctx context.Context, status Status) error
	List(ctx context.Context) ([]Status, error)
}

type noopPublisher struct{}

func (noopPublisher) Publish(context.Context, Status) error  { return nil }
func (noopPublisher) List(context.Context) ([]Status, error) { return nil, nil }

// RedisStatusPublisher keeps one key per worker, expiring when the worker stops ticking.
type RedisStatusPublisher struct {
	TTL time.Duration
}

func NewRedisStatusPublisher(interval time.Duration) *RedisStatusPublisher {
	ttl := 3 * interval
	if ttl < 30*time.Second {
		ttl = 30 * time.Second
	}
	return &RedisStatusPublisher{TTL: ttl}
}

func (p *RedisStatusPublisher) Publish(ctx context.Context, status Status) error {
	return config.SetRedisObject(ctx, statusKeyPrefix+status.WorkerId, status, p.TTL)
}

func (p *RedisStatusPublisher) List(ctx context.Context) ([]Status, error) {
	keys, err := config.ScanRedisKeys(ctx, statusKeyPrefix+"*")
	if err != nil {
		return nil, err
	}
	statuses := make([]Status, 0, len(keys))
	for _, key := range keys {
		var s Status
		found, err := config.GetRedisObject(ctx, key, &s)
		if err != nil {
			return nil, err
		}
		if found {
			statuses = append(statuses, s)
		}
	}
	return statuses, nil
}
