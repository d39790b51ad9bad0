package monitor

import (
	"context"
	"time"

	"mdrelay/internal/application/port"
	"mdrelay/internal/domain/model"
)

// Relay 控制台监视所需的订阅入口（service.Relay 实现）
type Relay interface {
	SubscribeQuote(ctx context.Context, raw string, viewer port.Viewer) (model.AssetID, error)
	SubscribeTrades(ctx context.Context, raw string, viewer port.Viewer) (model.AssetID, error)
	Disconnect(viewer port.Viewer)
}

type ServiceDeps struct {
	Relay           Relay
	Assets          []string
	PrintEvery      time.Duration
	ChangeThreshold float64 // 24h 涨跌幅着色阈值（%）
	Sink            port.Sink
}
