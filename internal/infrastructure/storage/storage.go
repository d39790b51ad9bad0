package storage

import (
	"context"
	"sync"
	"time"

	"mdrelay/internal/application/port"
	"mdrelay/internal/domain/model"
)

type poolEntry struct {
	pools   []model.PoolRef
	savedAt time.Time
}

// Memory is a process-local port.Repository used when no durable backend is configured.
type Memory struct {
	mu     sync.RWMutex
	quotes map[model.AssetID]model.PriceQuote
	pools  map[model.AssetID]poolEntry
	now    func() time.Time
}

// NewMemory creates an empty in-memory repository
func NewMemory() *Memory {
	return &Memory{
		quotes: make(map[model.AssetID]model.PriceQuote),
		pools:  make(map[model.AssetID]poolEntry),
		now:    time.Now,
	}
}

func (m *Memory) UpsertLatestQuote(_ context.Context, q model.PriceQuote) error {
	if q.PriceInQuoteAsset != nil {
		v := *q.PriceInQuoteAsset
		q.PriceInQuoteAsset = &v
	}
	m.mu.Lock()
	m.quotes[q.AssetID] = q
	m.mu.Unlock()
	return nil
}

func (m *Memory) LatestQuote(_ context.Context, asset model.AssetID) (*model.PriceQuote, error) {
	m.mu.RLock()
	q, ok := m.quotes[asset]
	m.mu.RUnlock()
	if !ok {
		return nil, port.ErrNoRecord
	}
	return &q, nil
}

func (m *Memory) SavePools(_ context.Context, asset model.AssetID, pools []model.PoolRef) error {
	cp := make([]model.PoolRef, len(pools))
	copy(cp, pools)
	m.mu.Lock()
	m.pools[asset] = poolEntry{pools: cp, savedAt: m.now()}
	m.mu.Unlock()
	return nil
}

func (m *Memory) LoadPools(_ context.Context, asset model.AssetID, maxAge time.Duration) ([]model.PoolRef, error) {
	m.mu.RLock()
	e, ok := m.pools[asset]
	m.mu.RUnlock()
	if !ok || len(e.pools) == 0 {
		return nil, port.ErrNoRecord
	}
	if maxAge > 0 && m.now().Sub(e.savedAt) > maxAge {
		return nil, port.ErrNoRecord
	}
	out := make([]model.PoolRef, len(e.pools))
	copy(out, e.pools)
	return out, nil
}

func (m *Memory) Close() error { return nil }

var _ port.Repository = (*Memory)(nil)
