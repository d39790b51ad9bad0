package port

import (
	"context"

	"mdrelay/internal/domain/model"
)

// QuoteGateway 行情服务商的 HTTP 查询
type QuoteGateway interface {
	// FetchQuote 查询当前价格，资产不存在时返回 ErrNotFound
	FetchQuote(ctx context.Context, asset model.AssetID) (*model.PriceQuote, error)
	// FetchRecentTrades 最近成交（新 -> 旧），失败返回空
	FetchRecentTrades(ctx context.Context, asset model.AssetID, limit int) []model.Trade
	// FetchPools 按资产和链发现候选池
	FetchPools(ctx context.Context, asset model.AssetID, chain string) ([]model.PoolCandidate, error)
}
