package snapshot

import (
	"FinChat/internal/entity"
	"FinChat/pkg/redis"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRedis struct {
	mu     sync.Mutex
	values map[string][]byte
	getErr error
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{values: make(map[string][]byte)}
}

func (f *fakeRedis) SetJSON(_ context.Context, key string, value interface{}, _ time.Duration) error {
	raw, err := jsoniter.Marshal(value)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.values[key] = raw
	return nil
}

func (f *fakeRedis) GetJSON(_ context.Context, key string, dest interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return f.getErr
	}
	raw, ok := f.values[key]
	if !ok {
		return redis.ErrNotFound
	}
	return jsoniter.Unmarshal(raw, dest)
}

func (f *fakeRedis) Delete(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.values, key)
	return nil
}

func (f *fakeRedis) Close() error { return nil }

func account(id string, balance int64, syncedAt time.Time) entity.AccountBalance {
	return entity.AccountBalance{
		ID:       id,
		Name:     id,
		Balance:  decimal.NewFromInt(balance),
		Currency: "BRL",
		SyncedAt: syncedAt,
	}
}

func snapshotWith(accounts ...entity.AccountBalance) entity.Snapshot {
	s := entity.NewSnapshot()
	for _, a := range accounts {
		s.Accounts[a.ID] = a
	}
	return s
}

func providers(t *testing.T) map[string]Provider {
	t.Helper()
	return map[string]Provider{
		"memory": NewMemory(),
		"redis":  NewRedis(newFakeRedis(), ""),
	}
}

func TestProvider_EmptyByDefault(t *testing.T) {
	for name, p := range providers(t) {
		t.Run(name, func(t *testing.T) {
			snap, err := p.Get(context.Background())
			require.NoError(t, err)
			assert.True(t, snap.IsEmpty())
			assert.NotNil(t, snap.Accounts)
			assert.NotNil(t, snap.Cards)
		})
	}
}

func TestProvider_MergeKeepsNewest(t *testing.T) {
	t0 := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	ctx := context.Background()

	for name, p := range providers(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, p.Merge(ctx, snapshotWith(account("nubank", 100, t0.Add(time.Hour)))))
			require.NoError(t, p.Merge(ctx, snapshotWith(
				account("nubank", 50, t0),
				account("itau", 300, t0),
			)))

			snap, err := p.Get(ctx)
			require.NoError(t, err)
			require.Len(t, snap.Accounts, 2)
			assert.True(t, snap.Accounts["nubank"].Balance.Equal(decimal.NewFromInt(100)))
			assert.True(t, snap.Accounts["itau"].Balance.Equal(decimal.NewFromInt(300)))
		})
	}
}

func TestProvider_ReplaceDropsPrevious(t *testing.T) {
	t0 := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	ctx := context.Background()

	for name, p := range providers(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, p.Merge(ctx, snapshotWith(account("nubank", 100, t0.Add(time.Hour)))))
			require.NoError(t, p.Replace(ctx, snapshotWith(account("itau", 20, t0))))

			snap, err := p.Get(ctx)
			require.NoError(t, err)
			require.Len(t, snap.Accounts, 1)
			assert.Contains(t, snap.Accounts, "itau")
		})
	}
}

func TestMemory_GetReturnsCopy(t *testing.T) {
	ctx := context.Background()
	p := NewMemory()
	require.NoError(t, p.Merge(ctx, snapshotWith(account("nubank", 100, time.Now()))))

	snap, err := p.Get(ctx)
	require.NoError(t, err)
	delete(snap.Accounts, "nubank")

	again, err := p.Get(ctx)
	require.NoError(t, err)
	assert.Contains(t, again.Accounts, "nubank")
}

func TestRedis_LoadFailure(t *testing.T) {
	rdb := newFakeRedis()
	rdb.getErr = errors.New("connection refused")
	p := NewRedis(rdb, "custom")

	_, err := p.Get(context.Background())
	assert.ErrorIs(t, err, rdb.getErr)

	err = p.Merge(context.Background(), entity.NewSnapshot())
	assert.Error(t, err)
}

func TestRedis_UsesKey(t *testing.T) {
	rdb := newFakeRedis()
	p := NewRedis(rdb, "custom")

	require.NoError(t, p.Replace(context.Background(), snapshotWith(account("nubank", 1, time.Now()))))
	assert.Contains(t, rdb.values, "custom")
	assert.NotContains(t, rdb.values, defaultRedisKey)
}
