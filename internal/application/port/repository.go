package port

import (
	"context"
	"errors"
	"time"

	"mdrelay/internal/domain/model"
)

// ErrNoRecord 仓储中没有对应记录
var ErrNoRecord = errors.New("no record")

type Repository interface {
	// Latest quote，每个资产一行
	UpsertLatestQuote(ctx context.Context, q model.PriceQuote) error
	LatestQuote(ctx context.Context, asset model.AssetID) (*model.PriceQuote, error)

	// Pool cache，maxAge 之前写入的视为过期
	SavePools(ctx context.Context, asset model.AssetID, pools []model.PoolRef) error
	LoadPools(ctx context.Context, asset model.AssetID, maxAge time.Duration) ([]model.PoolRef, error)

	// Connection management
	Close() error
}
