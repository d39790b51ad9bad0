package mobula

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc/pool"
	"github.com/tidwall/gjson"

	"mdrelay/internal/domain/model"
)

const refPriceKey = "ref:native"

// Config 行情服务地址
type Config struct {
	RestURL     string        // https://api.mobula.io/api/1
	TradesURL   string        // https://api.mobula.io/api/2
	RefPriceTTL time.Duration // 参考资产价格缓存时间
}

// Gateway 实现 port.QuoteGateway
type Gateway struct {
	client *Client
	cfg    Config
	cache  *cache.Cache
}

func NewGateway(client *Client, cfg Config) *Gateway {
	cfg.RestURL = strings.TrimRight(cfg.RestURL, "/")
	cfg.TradesURL = strings.TrimRight(cfg.TradesURL, "/")
	if cfg.RefPriceTTL <= 0 {
		cfg.RefPriceTTL = 30 * time.Second
	}
	return &Gateway{
		client: client,
		cfg:    cfg,
		cache:  cache.New(cfg.RefPriceTTL, time.Minute),
	}
}

// FetchQuote 查询价格，同时并发获取参考资产价格用于计算 priceInQuoteAsset
func (g *Gateway) FetchQuote(ctx context.Context, asset model.AssetID) (*model.PriceQuote, error) {
	var (
		data gjson.Result
		ref  float64
	)

	p := pool.New().WithErrors().WithContext(ctx)
	p.Go(func(ctx context.Context) error {
		var err error
		data, err = g.marketData(ctx, asset)
		return err
	})
	if !model.IsNative(asset) {
		p.Go(func(ctx context.Context) error {
			ref = g.ReferencePrice(ctx)
			return nil
		})
	}
	if err := p.Wait(); err != nil {
		return nil, err
	}

	q := &model.PriceQuote{
		AssetID:           asset,
		PriceUSD:          model.NonNegative(data.Get("price").Float()),
		PriceChange24hPct: model.RoundPct(data.Get("price_change_24h").Float()),
		Symbol:            data.Get("symbol").String(),
		Name:              defaultString(data.Get("name").String(), "Unknown"),
		ObservedAt:        time.Now(),
	}
	if model.IsNative(asset) || strings.EqualFold(q.Symbol, "SOL") {
		one := 1.0
		q.PriceInQuoteAsset = &one
		return q, nil
	}
	q.PriceInQuoteAsset = model.QuoteRatio(q.PriceUSD, ref)
	return q, nil
}

// ReferencePrice 原生资产 USD 价格，不可用时为 0
func (g *Gateway) ReferencePrice(ctx context.Context) float64 {
	if v, ok := g.cache.Get(refPriceKey); ok {
		return v.(float64)
	}
	data, err := g.marketData(ctx, model.NativeAsset)
	if err != nil {
		log.Warn().Err(err).Msg("reference price unavailable")
		return 0
	}
	price := model.NonNegative(data.Get("price").Float())
	if price > 0 {
		g.cache.SetDefault(refPriceKey, price)
	}
	return price
}

func (g *Gateway) marketData(ctx context.Context, asset model.AssetID) (gjson.Result, error) {
	root, err := g.client.GetJSON(ctx, g.cfg.RestURL+"/market/data", map[string]string{
		"asset": string(asset),
	})
	if err != nil {
		return gjson.Result{}, err
	}
	data := root.Get("data")
	if !data.IsObject() {
		return gjson.Result{}, ErrNotFound
	}
	return data, nil
}

// FetchRecentTrades 最近成交，任何失败都返回空
func (g *Gateway) FetchRecentTrades(ctx context.Context, asset model.AssetID, limit int) []model.Trade {
	if limit <= 0 {
		limit = 20
	}
	root, err := g.client.GetJSON(ctx, g.cfg.TradesURL+"/token/trades", map[string]string{
		"blockchain": model.DefaultChain,
		"address":    string(asset),
		"limit":      strconv.Itoa(limit),
		"mode":       "asset",
	})
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			log.Warn().Err(err).Str("asset", string(asset)).Msg("fetch recent trades failed")
		}
		return []model.Trade{}
	}

	items := root.Get("data").Array()
	out := make([]model.Trade, 0, len(items))
	for _, it := range items {
		t, ok := parseTrade(asset, it)
		if !ok {
			continue
		}
		out = append(out, t)
		if len(out) == limit {
			break
		}
	}
	return out
}

func parseTrade(asset model.AssetID, it gjson.Result) (model.Trade, bool) {
	hash := firstString(it, "transactionHash", "hash")
	if hash == "" {
		return model.Trade{}, false
	}
	occurred := parseTime(it.Get("date"))
	return model.Trade{
		DedupeKey:  model.TradeDedupeKey(hash, firstString(it, model.TradeIndexFields...), occurred),
		TxHash:     hash,
		AssetID:    asset,
		From:       defaultString(firstString(it, "swapSenderAddress", "from", "sender"), "Unknown"),
		To:         defaultString(firstString(it, "to", "receiver", "swapRecipient"), "Unknown"),
		Amount:     model.NonNegative(firstNumber(it, "baseTokenAmount", "amount", "token_amount")),
		OccurredAt: occurred,
		Side:       model.ParseSide(strings.ToLower(it.Get("type").String())),
	}, true
}

// FetchPools 发现资产的交易池
func (g *Gateway) FetchPools(ctx context.Context, asset model.AssetID, chain string) ([]model.PoolCandidate, error) {
	if chain == "" {
		chain = model.DefaultChain
	}
	root, err := g.client.GetJSON(ctx, g.cfg.RestURL+"/market/pairs", map[string]string{
		"asset":      string(asset),
		"blockchain": chain,
	})
	if err != nil {
		return nil, err
	}

	pairs := root.Get("data.pairs").Array()
	out := make([]model.PoolCandidate, 0, len(pairs))
	for _, p := range pairs {
		addr := p.Get("address").String()
		if addr == "" {
			continue
		}
		out = append(out, model.PoolCandidate{
			Pool: model.PoolRef{
				Chain:   defaultString(p.Get("blockchain").String(), chain),
				Address: addr,
			},
			LiquidityUSD: p.Get("liquidity").Float(),
		})
	}
	return out, nil
}

func parseTime(v gjson.Result) time.Time {
	if !v.Exists() {
		return time.Time{}
	}
	if v.Type == gjson.Number {
		return time.UnixMilli(v.Int())
	}
	if t, err := time.Parse(time.RFC3339Nano, v.String()); err == nil {
		return t
	}
	return time.Time{}
}

func firstString(it gjson.Result, paths ...string) string {
	for _, p := range paths {
		if s := strings.TrimSpace(it.Get(p).String()); s != "" {
			return s
		}
	}
	return ""
}

func firstNumber(it gjson.Result, paths ...string) float64 {
	for _, p := range paths {
		if v := it.Get(p); v.Exists() && v.Type != gjson.Null {
			return v.Float()
		}
	}
	return 0
}

func defaultString(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
