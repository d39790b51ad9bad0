package service

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"mdrelay/internal/application/port"
	"mdrelay/internal/domain/model"
	domainsvc "mdrelay/internal/domain/service"
)

// RelayConfig 快照参数
type RelayConfig struct {
	SnapshotTimeout time.Duration
	TradeLimit      int
}

// Relay 面向 viewer 的订阅入口
// 订阅前先投递一次快照，再登记到注册表接收后续推送
type Relay struct {
	registry   *Registry
	dispatcher *Dispatcher
	gateway    port.QuoteGateway
	repo       port.Repository
	cfg        RelayConfig
}

func NewRelay(registry *Registry, dispatcher *Dispatcher, gateway port.QuoteGateway, repo port.Repository, cfg RelayConfig) *Relay {
	if cfg.SnapshotTimeout <= 0 {
		cfg.SnapshotTimeout = 5 * time.Second
	}
	if cfg.TradeLimit <= 0 {
		cfg.TradeLimit = domainsvc.DefaultHistorySize
	}
	return &Relay{
		registry:   registry,
		dispatcher: dispatcher,
		gateway:    gateway,
		repo:       repo,
		cfg:        cfg,
	}
}

// SubscribeQuote 订阅价格
func (r *Relay) SubscribeQuote(ctx context.Context, raw string, viewer port.Viewer) (model.AssetID, error) {
	asset := model.NormalizeAsset(raw)
	if asset == "" {
		return "", ErrEmptyAsset
	}
	if viewer == nil {
		return "", ErrNilViewer
	}

	if q, ok := r.QuoteSnapshot(ctx, asset); ok {
		viewer.DeliverQuote(q)
	}
	return asset, r.registry.Subscribe(ctx, asset, viewer, port.TopicQuote)
}

// SubscribeTrades 订阅成交
func (r *Relay) SubscribeTrades(ctx context.Context, raw string, viewer port.Viewer) (model.AssetID, error) {
	asset := model.NormalizeAsset(raw)
	if asset == "" {
		return "", ErrEmptyAsset
	}
	if viewer == nil {
		return "", ErrNilViewer
	}

	if trades := r.TradesSnapshot(ctx, asset); len(trades) > 0 {
		viewer.DeliverTrades(asset, trades)
	}
	return asset, r.registry.Subscribe(ctx, asset, viewer, port.TopicTrades)
}

func (r *Relay) UnsubscribeQuote(raw string, viewer port.Viewer) {
	r.registry.Unsubscribe(model.NormalizeAsset(raw), viewer.ID(), port.TopicQuote)
}

func (r *Relay) UnsubscribeTrades(raw string, viewer port.Viewer) {
	r.registry.Unsubscribe(model.NormalizeAsset(raw), viewer.ID(), port.TopicTrades)
}

// Disconnect viewer 断开时清理全部订阅
func (r *Relay) Disconnect(viewer port.Viewer) {
	r.registry.RemoveViewer(viewer.ID())
}

// QuoteSnapshot 内存最新价 -> 服务商查询 -> 仓储中的最后报价
func (r *Relay) QuoteSnapshot(ctx context.Context, asset model.AssetID) (model.PriceQuote, bool) {
	if q, ok := r.dispatcher.Latest(asset); ok {
		return q, true
	}

	fctx, cancel := context.WithTimeout(ctx, r.cfg.SnapshotTimeout)
	defer cancel()

	q, err := r.gateway.FetchQuote(fctx, asset)
	if err == nil && q != nil {
		return *q, true
	}
	log.Warn().Err(err).Str("asset", string(asset)).Msg("quote snapshot unavailable")

	if r.repo == nil {
		return model.PriceQuote{}, false
	}
	rctx, rcancel := context.WithTimeout(ctx, r.cfg.SnapshotTimeout)
	defer rcancel()
	last, rerr := r.repo.LatestQuote(rctx, asset)
	if rerr != nil {
		if !errors.Is(rerr, port.ErrNoRecord) {
			log.Warn().Err(rerr).Str("asset", string(asset)).Msg("load last quote failed")
		}
		return model.PriceQuote{}, false
	}
	return *last, true
}

// TradesSnapshot 内存历史为空时拉取一次最近成交并写入历史
func (r *Relay) TradesSnapshot(ctx context.Context, asset model.AssetID) []model.Trade {
	if trades := r.dispatcher.Trades(asset); len(trades) > 0 {
		return trades
	}

	fctx, cancel := context.WithTimeout(ctx, r.cfg.SnapshotTimeout)
	defer cancel()

	fetched := r.gateway.FetchRecentTrades(fctx, asset, r.cfg.TradeLimit)
	if len(fetched) == 0 {
		return nil
	}
	return r.dispatcher.SeedTrades(asset, fetched)
}
