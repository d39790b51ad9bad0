package feed

import (
	"strconv"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/tidwall/gjson"

	"mdrelay/internal/application/port"
	"mdrelay/internal/domain/model"
)

const (
	frameMarketDetails = "market-details"
	frameUnsubscribe   = "unsubscribe"
)

var pingFrame = []byte(`{"event":"ping"}`)

type subscribePayload struct {
	Pools                []model.PoolRef `json:"pools"`
	SubscriptionTracking bool            `json:"subscriptionTracking"`
}

type subscribeFrame struct {
	Type          string           `json:"type"`
	Authorization string           `json:"authorization"`
	Payload       subscribePayload `json:"payload"`
}

type unsubscribePayload struct {
	Type  string          `json:"type"`
	Pools []model.PoolRef `json:"pools"`
}

type unsubscribeFrame struct {
	Type          string             `json:"type"`
	Authorization string             `json:"authorization"`
	Payload       unsubscribePayload `json:"payload"`
}

// EncodeSubscribe 声明完整池子集合
func EncodeSubscribe(apiKey string, pools []model.PoolRef) ([]byte, error) {
	return sonic.Marshal(subscribeFrame{
		Type:          frameMarketDetails,
		Authorization: apiKey,
		Payload:       subscribePayload{Pools: pools, SubscriptionTracking: true},
	})
}

// EncodeUnsubscribe 退订池子
func EncodeUnsubscribe(apiKey string, pools []model.PoolRef) ([]byte, error) {
	return sonic.Marshal(unsubscribeFrame{
		Type:          frameUnsubscribe,
		Authorization: apiKey,
		Payload:       unsubscribePayload{Type: frameMarketDetails, Pools: pools},
	})
}

// DecodeFrame 解析上游消息
// 价格来自 pairData.base，成交来自顶层 hash/token_amount 字段，两者都没有时返回 false
func DecodeFrame(b []byte, at time.Time) (port.FeedEvent, bool) {
	if !gjson.ValidBytes(b) {
		return port.FeedEvent{}, false
	}
	root := gjson.ParseBytes(b)
	if !root.IsObject() {
		return port.FeedEvent{}, false
	}

	ev := port.FeedEvent{
		Pool:       firstString(root, "pair.address", "pair", "pairData.address", "pool"),
		ReceivedAt: at,
	}
	if ev.Pool == "" {
		return port.FeedEvent{}, false
	}

	if base := root.Get("pairData.base"); base.IsObject() {
		ev.Price = &port.PairPrice{
			BaseAddress:       base.Get("address").String(),
			PriceUSD:          base.Get("priceUSD").Float(),
			PriceInQuote:      base.Get("priceToken").Float(),
			PriceChange24hPct: root.Get("pairData.priceChange24hPercentage").Float(),
			Symbol:            base.Get("symbol").String(),
			Name:              base.Get("name").String(),
		}
	}

	hash := root.Get("hash").String()
	amount := root.Get("token_amount")
	if hash != "" && amount.Exists() {
		occurred := parseTime(root.Get("date"))
		if occurred.IsZero() {
			occurred = at
		}
		ev.Trade = &port.TradeTick{
			TxHash:        hash,
			Discriminator: firstString(root, model.TradeIndexFields...),
			From:          orUnknown(root.Get("sender").String()),
			To:            orUnknown(root.Get("swapRecipient").String()),
			Amount:        amount.Float(),
			OccurredAt:    occurred,
			Side:          model.ParseSide(strings.ToLower(root.Get("type").String())),
		}
	}

	if ev.Price == nil && ev.Trade == nil {
		return port.FeedEvent{}, false
	}
	return ev, true
}

// parseTime 支持毫秒时间戳和 RFC3339
func parseTime(v gjson.Result) time.Time {
	if !v.Exists() {
		return time.Time{}
	}
	if v.Type == gjson.Number {
		return time.UnixMilli(v.Int())
	}
	s := v.String()
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.UnixMilli(ms)
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t
	}
	return time.Time{}
}

func firstString(root gjson.Result, paths ...string) string {
	for _, p := range paths {
		if v := root.Get(p); v.Exists() && v.Type != gjson.Null {
			if s := strings.TrimSpace(v.String()); s != "" {
				return s
			}
		}
	}
	return ""
}

func orUnknown(s string) string {
	if s == "" {
		return "Unknown"
	}
	return s
}
