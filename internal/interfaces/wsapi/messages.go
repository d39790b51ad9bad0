package wsapi

import "mdrelay/internal/domain/model"

// 入站消息类型
const (
	msgSubscribe         = "subscribe"
	msgUnsubscribe       = "unsubscribe"
	msgSubscribeTrades   = "subscribe_trades"
	msgUnsubscribeTrades = "unsubscribe_trades"
)

type inbound struct {
	Type         string `json:"type"`
	TokenAddress string `json:"tokenAddress"`
}

type priceUpdate struct {
	Type string           `json:"type"`
	Data model.PriceQuote `json:"data"`
}

type tradesUpdate struct {
	Type         string        `json:"type"`
	TokenAddress string        `json:"tokenAddress"`
	Data         []model.Trade `json:"data"`
}

type errorMessage struct {
	Type         string `json:"type"`
	TokenAddress string `json:"tokenAddress,omitempty"`
	Message      string `json:"message"`
}

// Health /healthz 响应
type Health struct {
	Status  string `json:"status"`
	Feed    string `json:"feed"`
	Assets  int    `json:"assets"`
	Viewers int    `json:"viewers"`
	Pools   int    `json:"pools"`
}
