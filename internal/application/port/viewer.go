package port

import "mdrelay/internal/domain/model"

// Topic 订阅主题
type Topic int

const (
	TopicQuote Topic = iota
	TopicTrades
)

func (t Topic) String() string {
	if t == TopicTrades {
		return "trades"
	}
	return "quote"
}

// Viewer 下游消费者（前端组件、控制台等）
// Deliver* 不能阻塞，投递失败返回 false
type Viewer interface {
	ID() string
	DeliverQuote(q model.PriceQuote) bool
	DeliverTrades(asset model.AssetID, trades []model.Trade) bool
}
