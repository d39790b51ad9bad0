package redis

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"

	"mdrelay/internal/application/port"
	"mdrelay/internal/domain/model"
)

type Repo struct {
	rdb       *redis.Client
	prefix    string
	ttl       time.Duration // latest hash 过期时间
	poolTTL   time.Duration
	keyLatest string // prefix + ":latest"
	quoteChan string
}

func New(rdb *redis.Client, prefix string, ttl, poolTTL time.Duration, quoteChan string) *Repo {
	if strings.TrimSpace(quoteChan) == "" {
		quoteChan = prefix + ":quotes:pub"
	}
	return &Repo{
		rdb:       rdb,
		prefix:    prefix,
		ttl:       ttl,
		poolTTL:   poolTTL,
		keyLatest: prefix + ":latest",
		quoteChan: quoteChan,
	}
}

// UpsertLatestQuote Hash field = 资产地址，同时发布到 pub/sub
func (r *Repo) UpsertLatestQuote(ctx context.Context, q model.PriceQuote) error {
	b, err := sonic.Marshal(q)
	if err != nil {
		return err
	}

	pipe := r.rdb.Pipeline()
	pipe.HSet(ctx, r.keyLatest, string(q.AssetID), string(b))
	if r.ttl > 0 {
		pipe.Expire(ctx, r.keyLatest, r.ttl)
	}
	pipe.Publish(ctx, r.quoteChan, string(b))
	_, err = pipe.Exec(ctx)
	return err
}

func (r *Repo) LatestQuote(ctx context.Context, asset model.AssetID) (*model.PriceQuote, error) {
	s, err := r.rdb.HGet(ctx, r.keyLatest, string(asset)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, port.ErrNoRecord
	}
	if err != nil {
		return nil, err
	}
	var q model.PriceQuote
	if err := sonic.UnmarshalString(s, &q); err != nil {
		return nil, err
	}
	return &q, nil
}

// SavePools 过期交给 redis TTL
func (r *Repo) SavePools(ctx context.Context, asset model.AssetID, pools []model.PoolRef) error {
	b, err := sonic.Marshal(pools)
	if err != nil {
		return err
	}
	return r.rdb.Set(ctx, r.poolKey(asset), string(b), r.poolTTL).Err()
}

func (r *Repo) LoadPools(ctx context.Context, asset model.AssetID, _ time.Duration) ([]model.PoolRef, error) {
	s, err := r.rdb.Get(ctx, r.poolKey(asset)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, port.ErrNoRecord
	}
	if err != nil {
		return nil, err
	}
	var pools []model.PoolRef
	if err := sonic.UnmarshalString(s, &pools); err != nil {
		return nil, err
	}
	if len(pools) == 0 {
		return nil, port.ErrNoRecord
	}
	return pools, nil
}

// QuoteChannel 报价发布的频道名
func (r *Repo) QuoteChannel() string { return r.quoteChan }

func (r *Repo) Close() error { return r.rdb.Close() }

func (r *Repo) poolKey(asset model.AssetID) string {
	return r.prefix + ":pools:" + string(asset)
}

var _ port.Repository = (*Repo)(nil)
