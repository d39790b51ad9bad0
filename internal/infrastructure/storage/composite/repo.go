package composite

import (
	"context"
	"errors"
	"time"

	"mdrelay/internal/application/port"
	"mdrelay/internal/domain/model"
)

// Repo 写入扇出到所有后端，读取按顺序取第一个命中
type Repo struct {
	repos []port.Repository
}

func New(repos ...port.Repository) *Repo {
	out := make([]port.Repository, 0, len(repos))
	for _, r := range repos {
		if r != nil {
			out = append(out, r)
		}
	}
	return &Repo{repos: out}
}

// Len 实际生效的后端数量
func (r *Repo) Len() int { return len(r.repos) }

func (r *Repo) UpsertLatestQuote(ctx context.Context, q model.PriceQuote) error {
	var firstErr error
	for _, repo := range r.repos {
		if err := repo.UpsertLatestQuote(ctx, q); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (r *Repo) LatestQuote(ctx context.Context, asset model.AssetID) (*model.PriceQuote, error) {
	lastErr := port.ErrNoRecord
	for _, repo := range r.repos {
		q, err := repo.LatestQuote(ctx, asset)
		if err == nil {
			return q, nil
		}
		if !errors.Is(err, port.ErrNoRecord) {
			lastErr = err
		}
	}
	return nil, lastErr
}

func (r *Repo) SavePools(ctx context.Context, asset model.AssetID, pools []model.PoolRef) error {
	var firstErr error
	for _, repo := range r.repos {
		if err := repo.SavePools(ctx, asset, pools); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (r *Repo) LoadPools(ctx context.Context, asset model.AssetID, maxAge time.Duration) ([]model.PoolRef, error) {
	lastErr := port.ErrNoRecord
	for _, repo := range r.repos {
		pools, err := repo.LoadPools(ctx, asset, maxAge)
		if err == nil && len(pools) > 0 {
			return pools, nil
		}
		if err != nil && !errors.Is(err, port.ErrNoRecord) {
			lastErr = err
		}
	}
	return nil, lastErr
}

func (r *Repo) Close() error {
	var errs []error
	for _, repo := range r.repos {
		if err := repo.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

var _ port.Repository = (*Repo)(nil)
