package service

import (
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"mdrelay/internal/application/port"
	"mdrelay/internal/domain/model"
	domainsvc "mdrelay/internal/domain/service"
)

// RouteTable 池子 -> 资产 -> viewer 路由
type RouteTable interface {
	AssetsForPool(pool string) []model.AssetID
	Viewers(asset model.AssetID, topic port.Topic) []port.Viewer
	ViewerCount(asset model.AssetID) int
}

// QuoteSink 接收最新报价（写库等）
type QuoteSink interface {
	Record(q model.PriceQuote)
}

// Dispatcher 把上游事件扇出给订阅者，并维护每个资产的最近成交
type Dispatcher struct {
	routes      RouteTable
	sink        QuoteSink
	metrics     port.Metrics
	historySize int

	mu        sync.Mutex
	histories map[model.AssetID]*domainsvc.TradeHistory
	latest    map[model.AssetID]model.PriceQuote
}

func NewDispatcher(routes RouteTable, historySize int, metrics port.Metrics) *Dispatcher {
	if historySize <= 0 {
		historySize = domainsvc.DefaultHistorySize
	}
	if metrics == nil {
		metrics = port.NopMetrics{}
	}
	return &Dispatcher{
		routes:      routes,
		metrics:     metrics,
		historySize: historySize,
		histories:   make(map[model.AssetID]*domainsvc.TradeHistory),
		latest:      make(map[model.AssetID]model.PriceQuote),
	}
}

// SetQuoteSink 设置报价落地
func (d *Dispatcher) SetQuoteSink(s QuoteSink) {
	d.sink = s
}

// HandleFeedEvent 实现 port.FeedHandler
func (d *Dispatcher) HandleFeedEvent(ev port.FeedEvent) {
	assets := d.routes.AssetsForPool(ev.Pool)
	if len(assets) == 0 {
		log.Debug().Str("pool", ev.Pool).Msg("event for unknown pool dropped")
		return
	}
	for _, asset := range assets {
		if ev.Price != nil {
			d.dispatchQuote(BuildQuote(asset, ev.Price, ev.ReceivedAt))
		}
		if ev.Trade != nil {
			d.dispatchTrade(BuildTrade(asset, ev.Trade))
		}
	}
}

// dispatchQuote 订阅已被移除的资产不再保留状态，Forget 与写入都在 d.mu 下
func (d *Dispatcher) dispatchQuote(q model.PriceQuote) {
	d.mu.Lock()
	if d.routes.ViewerCount(q.AssetID) == 0 {
		d.mu.Unlock()
		return
	}
	d.latest[q.AssetID] = q
	d.mu.Unlock()

	if d.sink != nil {
		d.sink.Record(q)
	}
	for _, v := range d.routes.Viewers(q.AssetID, port.TopicQuote) {
		d.metrics.Delivery(port.TopicQuote, v.DeliverQuote(q))
	}
}

func (d *Dispatcher) dispatchTrade(t model.Trade) {
	d.mu.Lock()
	if d.routes.ViewerCount(t.AssetID) == 0 {
		d.mu.Unlock()
		return
	}
	added := d.historyLocked(t.AssetID).Add(t)
	d.mu.Unlock()

	if !added {
		d.metrics.DuplicateTrade()
		return
	}
	batch := []model.Trade{t}
	for _, v := range d.routes.Viewers(t.AssetID, port.TopicTrades) {
		d.metrics.Delivery(port.TopicTrades, v.DeliverTrades(t.AssetID, batch))
	}
}

// Latest 内存中的最新报价
func (d *Dispatcher) Latest(asset model.AssetID) (model.PriceQuote, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	q, ok := d.latest[asset]
	return q, ok
}

// Trades 最近成交快照（新 -> 旧）
func (d *Dispatcher) Trades(asset model.AssetID) []model.Trade {
	d.mu.Lock()
	defer d.mu.Unlock()
	h, ok := d.histories[asset]
	if !ok {
		return nil
	}
	return h.Snapshot()
}

// SeedTrades 合并 REST 拉取的成交并返回合并后的快照
func (d *Dispatcher) SeedTrades(asset model.AssetID, trades []model.Trade) []model.Trade {
	d.mu.Lock()
	defer d.mu.Unlock()
	h := d.historyLocked(asset)
	h.Seed(trades)
	return h.Snapshot()
}

// Forget 订阅销毁时丢弃该资产的内存状态
func (d *Dispatcher) Forget(asset model.AssetID) {
	d.mu.Lock()
	delete(d.histories, asset)
	delete(d.latest, asset)
	d.mu.Unlock()
}

func (d *Dispatcher) historyLocked(asset model.AssetID) *domainsvc.TradeHistory {
	h, ok := d.histories[asset]
	if !ok {
		h = domainsvc.NewTradeHistory(d.historySize)
		d.histories[asset] = h
	}
	return h
}

// BuildQuote 由 pairData 构造报价
func BuildQuote(asset model.AssetID, p *port.PairPrice, at time.Time) model.PriceQuote {
	q := model.PriceQuote{
		AssetID:           asset,
		PriceUSD:          model.NonNegative(p.PriceUSD),
		PriceChange24hPct: model.RoundPct(p.PriceChange24hPct),
		Symbol:            orUnknown(p.Symbol),
		Name:              orUnknown(p.Name),
		ObservedAt:        at,
	}
	if isNativeBase(asset, p) {
		one := 1.0
		q.Symbol, q.Name, q.PriceInQuoteAsset = "SOL", "Solana", &one
		return q
	}
	if p.PriceInQuote > 0 {
		v := p.PriceInQuote
		q.PriceInQuoteAsset = &v
	}
	return q
}

// BuildTrade 由上游成交字段构造成交
func BuildTrade(asset model.AssetID, t *port.TradeTick) model.Trade {
	return model.Trade{
		DedupeKey:  model.TradeDedupeKey(t.TxHash, t.Discriminator, t.OccurredAt),
		TxHash:     t.TxHash,
		AssetID:    asset,
		From:       t.From,
		To:         t.To,
		Amount:     model.NonNegative(t.Amount),
		OccurredAt: t.OccurredAt,
		Side:       t.Side,
	}
}

// isNativeBase 池子的 base 是原生资产时价格以自身计价
func isNativeBase(asset model.AssetID, p *port.PairPrice) bool {
	if model.IsNative(asset) || model.AssetID(p.BaseAddress) == model.NativeAsset {
		return true
	}
	return strings.EqualFold(p.Symbol, "SOL") || strings.EqualFold(p.Name, "solana")
}

func orUnknown(s string) string {
	if s == "" {
		return "Unknown"
	}
	return s
}
