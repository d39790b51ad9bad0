package model

import (
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// ========== Market Models ==========

// AssetID 资产标识（代币地址或别名归一化后的地址）
type AssetID string

func (a AssetID) String() string { return string(a) }

// PoolRef 具体的链上交易池
// JSON 字段名与上游协议保持一致（blockchain/address）
type PoolRef struct {
	Chain   string `json:"blockchain"`
	Address string `json:"address"`
}

func (p PoolRef) String() string { return p.Chain + ":" + p.Address }

// PoolCandidate 上游发现的候选池及其流动性
type PoolCandidate struct {
	Pool         PoolRef
	LiquidityUSD float64
}

// PriceQuote 价格快照
type PriceQuote struct {
	AssetID           AssetID   `json:"tokenAddress"`
	PriceUSD          float64   `json:"price"`
	PriceChange24hPct float64   `json:"priceChange24h"`
	PriceInQuoteAsset *float64  `json:"priceSol"` // nil 表示参考资产价格不可用
	Symbol            string    `json:"symbol"`
	Name              string    `json:"name"`
	ObservedAt        time.Time `json:"observedAt"`
}

// Side 成交方向
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// ParseSide 非 "sell" 一律视为买入
func ParseSide(s string) Side {
	if s == string(SideSell) {
		return SideSell
	}
	return SideBuy
}

// Trade 单笔成交
type Trade struct {
	DedupeKey  string    `json:"hash"`
	TxHash     string    `json:"originalHash"`
	AssetID    AssetID   `json:"tokenAddress"`
	From       string    `json:"from"`
	To         string    `json:"to"`
	Amount     float64   `json:"amount"`
	OccurredAt time.Time `json:"timestamp"`
	Side       Side      `json:"type"`
}

// DedupeKey 由交易哈希和上游序号组成，同一事件在不同来源下得到相同的 key
func DedupeKey(txHash, discriminator string) string {
	if discriminator == "" {
		return txHash
	}
	return txHash + "-" + discriminator
}

// TradeIndexFields 上游成交序号字段，按优先级取第一个非空值
var TradeIndexFields = []string{"logIndex", "swapIndex", "index"}

// TradeDedupeKey REST 和推送两条路径共用，序号缺失时退回成交时间毫秒
func TradeDedupeKey(txHash, index string, occurred time.Time) string {
	if index == "" && !occurred.IsZero() {
		index = strconv.FormatInt(occurred.UnixMilli(), 10)
	}
	return DedupeKey(txHash, index)
}

// ConnState 上游连接状态
type ConnState int

const (
	Disconnected ConnState = iota
	Connecting
	Open
	Closing
)

func (s ConnState) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Open:
		return "open"
	case Closing:
		return "closing"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// RoundPct 百分比保留两位小数
func RoundPct(v float64) float64 {
	return decimal.NewFromFloat(v).Round(2).InexactFloat64()
}

// NonNegative 负数和 NaN 归零
func NonNegative(v float64) float64 {
	if v > 0 {
		return v
	}
	return 0
}

// QuoteRatio 计算 price/ref，参考价格不可用时返回 nil
func QuoteRatio(price, ref float64) *float64 {
	if ref <= 0 {
		return nil
	}
	r := decimal.NewFromFloat(price).Div(decimal.NewFromFloat(ref)).InexactFloat64()
	return &r
}
