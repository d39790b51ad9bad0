package service

import (
	"context"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/rs/zerolog/log"

	"mdrelay/internal/application/port"
	"mdrelay/internal/domain/model"
	domainsvc "mdrelay/internal/domain/service"
)

// PoolSource 候选池发现
type PoolSource interface {
	FetchPools(ctx context.Context, asset model.AssetID, chain string) ([]model.PoolCandidate, error)
}

// ResolverConfig 池子解析参数
type ResolverConfig struct {
	Chain    string
	MaxPools int
	CacheTTL time.Duration
	Timeout  time.Duration
}

// CachedResolver 池子解析器
// 一级缓存为进程内 go-cache，二级为仓储（可为空），回退结果不缓存
type CachedResolver struct {
	source  PoolSource
	repo    port.Repository
	local   *cache.Cache
	cfg     ResolverConfig
	metrics port.Metrics
}

func NewCachedResolver(source PoolSource, repo port.Repository, cfg ResolverConfig, metrics port.Metrics) *CachedResolver {
	if cfg.Chain == "" {
		cfg.Chain = model.DefaultChain
	}
	if cfg.MaxPools <= 0 {
		cfg.MaxPools = domainsvc.DefaultMaxPools
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 10 * time.Minute
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if metrics == nil {
		metrics = port.NopMetrics{}
	}
	return &CachedResolver{
		source:  source,
		repo:    repo,
		local:   cache.New(cfg.CacheTTL, time.Minute),
		cfg:     cfg,
		metrics: metrics,
	}
}

// Resolve 不会失败：出错或没有池子时回退为资产地址本身
func (r *CachedResolver) Resolve(ctx context.Context, asset model.AssetID) []model.PoolRef {
	key := string(asset)
	if v, ok := r.local.Get(key); ok {
		return clonePools(v.([]model.PoolRef))
	}

	if r.repo != nil {
		pools, err := r.repo.LoadPools(ctx, asset, r.cfg.CacheTTL)
		if err == nil && len(pools) > 0 {
			r.local.SetDefault(key, clonePools(pools))
			return pools
		}
	}

	fctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	candidates, err := r.source.FetchPools(fctx, asset, r.cfg.Chain)
	pools := domainsvc.RankPools(candidates, model.IsNative(asset), r.cfg.MaxPools)
	if err != nil || len(pools) == 0 {
		r.metrics.ResolveFallback()
		log.Warn().Err(err).Str("asset", key).Msg("pool discovery failed, using asset address as pool")
		return []model.PoolRef{r.Fallback(asset)}
	}

	r.local.SetDefault(key, clonePools(pools))
	if r.repo != nil {
		if err := r.repo.SavePools(ctx, asset, pools); err != nil {
			log.Warn().Err(err).Str("asset", key).Msg("save pools failed")
		}
	}
	log.Debug().Str("asset", key).Int("pools", len(pools)).Str("primary", pools[0].String()).Msg("pools resolved")
	return pools
}

// Fallback 直接把资产地址当作池子地址
func (r *CachedResolver) Fallback(asset model.AssetID) model.PoolRef {
	return model.PoolRef{Chain: r.cfg.Chain, Address: string(asset)}
}

func clonePools(in []model.PoolRef) []model.PoolRef {
	out := make([]model.PoolRef, len(in))
	copy(out, in)
	return out
}
