package snapshot

import (
	"FinChat/internal/entity"
	"FinChat/pkg/redis"
	"context"
	"errors"
	"fmt"
	"sync"
)

const defaultRedisKey = "assistant:snapshot"

type redisProvider struct {
	mu  sync.Mutex
	rdb redis.IRedis
	key string
}

// NewRedis keeps the snapshot as one JSON document so the cache survives
// process restarts alongside the message log.
func NewRedis(rdb redis.IRedis, key string) Provider {
	if key == "" {
		key = defaultRedisKey
	}
	return &redisProvider{rdb: rdb, key: key}
}

func (p *redisProvider) Get(ctx context.Context) (entity.Snapshot, error) {
	snap := entity.NewSnapshot()
	if err := p.rdb.GetJSON(ctx, p.key, &snap); err != nil {
		if errors.Is(err, redis.ErrNotFound) {
			return entity.NewSnapshot(), nil
		}
		return entity.Snapshot{}, fmt.Errorf("load snapshot: %w", err)
	}
	return entity.NewSnapshot().Merge(snap), nil
}

func (p *redisProvider) Merge(ctx context.Context, fresh entity.Snapshot) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	cur, err := p.Get(ctx)
	if err != nil {
		return err
	}
	return p.rdb.SetJSON(ctx, p.key, cur.Merge(fresh), 0)
}

func (p *redisProvider) Replace(ctx context.Context, snap entity.Snapshot) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.rdb.SetJSON(ctx, p.key, entity.NewSnapshot().Merge(snap), 0)
}
