package port

import (
	"time"

	"mdrelay/internal/domain/model"
)

// PairPrice 上游 pairData 解码结果
type PairPrice struct {
	BaseAddress       string
	PriceUSD          float64
	PriceInQuote      float64 // priceToken，以池子报价资产计价
	PriceChange24hPct float64
	Symbol            string
	Name              string
}

// TradeTick 上游成交字段解码结果
type TradeTick struct {
	TxHash        string
	Discriminator string // 上游序号，缺失时为成交时间(ms)
	From          string
	To            string
	Amount        float64
	OccurredAt    time.Time
	Side          model.Side
}

// FeedEvent 一帧上游消息，Price/Trade 可能同时存在
type FeedEvent struct {
	Pool       string // 池子地址
	Price      *PairPrice
	Trade      *TradeTick
	ReceivedAt time.Time
}

// FeedHandler 接收解码后的事件，实现必须非阻塞
type FeedHandler interface {
	HandleFeedEvent(ev FeedEvent)
}

// Upstream 上游行情连接
type Upstream interface {
	State() model.ConnState
	// Connect 触发一次连接，Connecting/Open 状态下为空操作
	Connect()
	// SubscribePools 声明完整的池子集合（market-details）
	SubscribePools(pools []model.PoolRef) error
	UnsubscribePools(pools []model.PoolRef) error
}

// ActivePools 重连后需要重放的订阅集合
type ActivePools interface {
	ReplayActive(send func(pools []model.PoolRef) error) error
}
