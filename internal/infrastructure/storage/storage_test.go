package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mdrelay/internal/application/port"
	"mdrelay/internal/domain/model"
)

func TestMemoryLatestQuote(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	_, err := m.LatestQuote(ctx, "MINT")
	assert.ErrorIs(t, err, port.ErrNoRecord)

	ratio := 0.1
	require.NoError(t, m.UpsertLatestQuote(ctx, model.PriceQuote{AssetID: "MINT", PriceUSD: 2, PriceInQuoteAsset: &ratio}))
	ratio = 9

	q, err := m.LatestQuote(ctx, "MINT")
	require.NoError(t, err)
	assert.Equal(t, 2.0, q.PriceUSD)
	assert.Equal(t, 0.1, *q.PriceInQuoteAsset)
}

func TestMemoryPoolsMaxAge(t *testing.T) {
	m := NewMemory()
	now := time.Unix(1700000000, 0)
	m.now = func() time.Time { return now }
	ctx := context.Background()

	pools := []model.PoolRef{{Chain: "solana", Address: "P1"}}
	require.NoError(t, m.SavePools(ctx, "MINT", pools))

	got, err := m.LoadPools(ctx, "MINT", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, pools, got)

	now = now.Add(2 * time.Minute)
	_, err = m.LoadPools(ctx, "MINT", time.Minute)
	assert.ErrorIs(t, err, port.ErrNoRecord)

	got, err = m.LoadPools(ctx, "MINT", 0)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}
