package snapshot

import (
	"FinChat/internal/entity"
	"context"
	"sync"
)

// Provider exposes the cached balances and cards. Only successful remote
// responses and full syncs write it; the resolver only reads it.
type Provider interface {
	Get(ctx context.Context) (entity.Snapshot, error)
	Merge(ctx context.Context, fresh entity.Snapshot) error
	Replace(ctx context.Context, snap entity.Snapshot) error
}

type memoryProvider struct {
	mu   sync.RWMutex
	snap entity.Snapshot
}

func NewMemory() Provider {
	return &memoryProvider{snap: entity.NewSnapshot()}
}

func (p *memoryProvider) Get(_ context.Context) (entity.Snapshot, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return p.snap.Clone(), nil
}

func (p *memoryProvider) Merge(_ context.Context, fresh entity.Snapshot) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.snap = p.snap.Merge(fresh)
	return nil
}

func (p *memoryProvider) Replace(_ context.Context, snap entity.Snapshot) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.snap = entity.NewSnapshot().Merge(snap)
	return nil
}
