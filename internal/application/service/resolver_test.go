package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mdrelay/internal/domain/model"
)

func fivePools() []model.PoolCandidate {
	return []model.PoolCandidate{
		{Pool: model.PoolRef{Chain: "solana", Address: "p1"}, LiquidityUSD: 10},
		{Pool: model.PoolRef{Chain: "solana", Address: "p2"}, LiquidityUSD: 50},
		{Pool: model.PoolRef{Chain: "solana", Address: "p3"}, LiquidityUSD: 30},
		{Pool: model.PoolRef{Chain: "solana", Address: "p4"}, LiquidityUSD: 40},
		{Pool: model.PoolRef{Chain: "solana", Address: "p5"}, LiquidityUSD: 20},
	}
}

func TestResolverNativeSinglePool(t *testing.T) {
	gw := &fakeGateway{candidates: fivePools()}
	r := NewCachedResolver(gw, nil, ResolverConfig{}, nil)

	pools := r.Resolve(context.Background(), model.NormalizeAsset("solana"))
	require.Len(t, pools, 1)
	assert.Equal(t, "p2", pools[0].Address)
}

func TestResolverTopThree(t *testing.T) {
	gw := &fakeGateway{candidates: fivePools()}
	repo := newMockRepository()
	r := NewCachedResolver(gw, repo, ResolverConfig{}, nil)
	ctx := context.Background()

	pools := r.Resolve(ctx, "TOKEN")
	require.Len(t, pools, 3)
	assert.Equal(t, []string{"p2", "p4", "p3"}, []string{pools[0].Address, pools[1].Address, pools[2].Address})

	// 第二次命中进程内缓存
	again := r.Resolve(ctx, "TOKEN")
	assert.Equal(t, pools, again)
	assert.Equal(t, 1, gw.poolCalls)

	saved, err := repo.LoadPools(ctx, "TOKEN", 0)
	require.NoError(t, err)
	assert.Equal(t, pools, saved)
}

func TestResolverUsesRepositoryCache(t *testing.T) {
	gw := &fakeGateway{candidates: fivePools()}
	repo := newMockRepository()
	require.NoError(t, repo.SavePools(context.Background(), "TOKEN", []model.PoolRef{{Chain: "solana", Address: "stored"}}))
	r := NewCachedResolver(gw, repo, ResolverConfig{}, nil)

	pools := r.Resolve(context.Background(), "TOKEN")
	require.Len(t, pools, 1)
	assert.Equal(t, "stored", pools[0].Address)
	assert.Equal(t, 0, gw.poolCalls)
}

func TestResolverFallbackNotCached(t *testing.T) {
	gw := &fakeGateway{poolsErr: errProvider}
	r := NewCachedResolver(gw, nil, ResolverConfig{Chain: "solana"}, nil)
	ctx := context.Background()

	pools := r.Resolve(ctx, "MINT")
	assert.Equal(t, []model.PoolRef{{Chain: "solana", Address: "MINT"}}, pools)

	// 没有候选池同样回退
	gw.poolsErr = nil
	pools = r.Resolve(ctx, "MINT")
	assert.Equal(t, []model.PoolRef{{Chain: "solana", Address: "MINT"}}, pools)
	assert.Equal(t, 2, gw.poolCalls)

	gw.candidates = fivePools()
	pools = r.Resolve(ctx, "MINT")
	assert.Len(t, pools, 3)
}
