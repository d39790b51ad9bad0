package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mdrelay/internal/application/port"
	"mdrelay/internal/domain/model"
)

func newTestRepo(t *testing.T) (*Repo, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	repo := New(rdb, "mdrelay", time.Hour, time.Minute, "")
	t.Cleanup(func() { _ = repo.Close() })
	return repo, mr
}

func TestRedisLatestQuote(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()

	sub := repo.rdb.Subscribe(ctx, repo.QuoteChannel())
	defer sub.Close()
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	ratio := 0.5
	q := model.PriceQuote{AssetID: "MINT", PriceUSD: 4, PriceInQuoteAsset: &ratio, Symbol: "TKN", ObservedAt: time.UnixMilli(1700000000000).UTC()}
	require.NoError(t, repo.UpsertLatestQuote(ctx, q))

	got, err := repo.LatestQuote(ctx, "MINT")
	require.NoError(t, err)
	assert.Equal(t, 4.0, got.PriceUSD)
	require.NotNil(t, got.PriceInQuoteAsset)
	assert.Equal(t, 0.5, *got.PriceInQuoteAsset)
	assert.True(t, got.ObservedAt.Equal(q.ObservedAt))

	select {
	case msg := <-sub.Channel():
		assert.Contains(t, msg.Payload, `"tokenAddress":"MINT"`)
	case <-time.After(2 * time.Second):
		t.Fatal("quote not published")
	}

	_, err = repo.LatestQuote(ctx, "NONE")
	assert.True(t, errors.Is(err, port.ErrNoRecord))
}

func TestRedisPoolsExpire(t *testing.T) {
	repo, mr := newTestRepo(t)
	ctx := context.Background()

	pools := []model.PoolRef{{Chain: "solana", Address: "P1"}, {Chain: "solana", Address: "P2"}}
	require.NoError(t, repo.SavePools(ctx, "MINT", pools))

	got, err := repo.LoadPools(ctx, "MINT", 0)
	require.NoError(t, err)
	assert.Equal(t, pools, got)

	mr.FastForward(2 * time.Minute)
	_, err = repo.LoadPools(ctx, "MINT", 0)
	assert.ErrorIs(t, err, port.ErrNoRecord)
}
