package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"mdrelay/internal/application/port"
	"mdrelay/internal/domain/model"
)

type Repo struct {
	db *sql.DB
}

func New(dsn string) (*Repo, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)

	r, err := NewWithDB(context.Background(), db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return r, nil
}

// NewWithDB 使用已有连接并执行建表
func NewWithDB(ctx context.Context, db *sql.DB) (*Repo, error) {
	r := &Repo{db: db}
	if err := r.migrate(ctx); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Repo) Close() error { return r.db.Close() }

func (r *Repo) migrate(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS latest_quotes (
  asset TEXT PRIMARY KEY,
  price_usd DOUBLE PRECISION NOT NULL,
  change_24h DOUBLE PRECISION NOT NULL,
  price_in_quote DOUBLE PRECISION,
  symbol TEXT NOT NULL,
  name TEXT NOT NULL,
  observed_ms BIGINT NOT NULL,
  updated_at BIGINT NOT NULL
);

CREATE TABLE IF NOT EXISTS pool_cache (
  asset TEXT NOT NULL,
  rank INTEGER NOT NULL,
  chain TEXT NOT NULL,
  address TEXT NOT NULL,
  created_at BIGINT NOT NULL,
  PRIMARY KEY(asset, rank)
);
CREATE INDEX IF NOT EXISTS idx_pool_cache_created ON pool_cache(created_at);
`)
	return err
}

func (r *Repo) UpsertLatestQuote(ctx context.Context, q model.PriceQuote) error {
	var inQuote sql.NullFloat64
	if q.PriceInQuoteAsset != nil {
		inQuote = sql.NullFloat64{Float64: *q.PriceInQuoteAsset, Valid: true}
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO latest_quotes(asset, price_usd, change_24h, price_in_quote, symbol, name, observed_ms, updated_at)
		VALUES($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT(asset) DO UPDATE SET
		price_usd=EXCLUDED.price_usd, change_24h=EXCLUDED.change_24h, price_in_quote=EXCLUDED.price_in_quote,
		symbol=EXCLUDED.symbol, name=EXCLUDED.name, observed_ms=EXCLUDED.observed_ms, updated_at=EXCLUDED.updated_at
	`, string(q.AssetID), q.PriceUSD, q.PriceChange24hPct, inQuote, q.Symbol, q.Name,
		q.ObservedAt.UnixMilli(), time.Now().UnixMilli())
	return err
}

func (r *Repo) LatestQuote(ctx context.Context, asset model.AssetID) (*model.PriceQuote, error) {
	var (
		q        model.PriceQuote
		id       string
		inQuote  sql.NullFloat64
		observed int64
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT asset, price_usd, change_24h, price_in_quote, symbol, name, observed_ms
		FROM latest_quotes WHERE asset=$1
	`, string(asset)).Scan(&id, &q.PriceUSD, &q.PriceChange24hPct, &inQuote, &q.Symbol, &q.Name, &observed)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, port.ErrNoRecord
	}
	if err != nil {
		return nil, err
	}
	q.AssetID = model.AssetID(id)
	if inQuote.Valid {
		v := inQuote.Float64
		q.PriceInQuoteAsset = &v
	}
	q.ObservedAt = time.UnixMilli(observed)
	return &q, nil
}

func (r *Repo) SavePools(ctx context.Context, asset model.AssetID, pools []model.PoolRef) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM pool_cache WHERE asset=$1`, string(asset)); err != nil {
		return err
	}
	now := time.Now().UnixMilli()
	for i, p := range pools {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO pool_cache(asset, rank, chain, address, created_at) VALUES($1, $2, $3, $4, $5)`,
			string(asset), i, p.Chain, p.Address, now); err != nil {
			return fmt.Errorf("insert pool %s: %w", p.Address, err)
		}
	}
	return tx.Commit()
}

func (r *Repo) LoadPools(ctx context.Context, asset model.AssetID, maxAge time.Duration) ([]model.PoolRef, error) {
	minCreated := int64(0)
	if maxAge > 0 {
		minCreated = time.Now().Add(-maxAge).UnixMilli()
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT chain, address FROM pool_cache
		WHERE asset=$1 AND created_at>=$2
		ORDER BY rank ASC
	`, string(asset), minCreated)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var pools []model.PoolRef
	for rows.Next() {
		var p model.PoolRef
		if err := rows.Scan(&p.Chain, &p.Address); err != nil {
			return nil, err
		}
		pools = append(pools, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(pools) == 0 {
		return nil, port.ErrNoRecord
	}
	return pools, nil
}

var _ port.Repository = (*Repo)(nil)
