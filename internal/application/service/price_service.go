package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"mdrelay/internal/application/port"
	"mdrelay/internal/domain/model"
)

// PriceService 合并每个资产的最新报价并定期落库
// 只保留最新一条，不记录历史
type PriceService struct {
	repo     port.Repository
	interval time.Duration

	mu      sync.Mutex
	pending map[model.AssetID]model.PriceQuote
	onFlush func(n int)
}

func NewPriceService(repo port.Repository, interval time.Duration) *PriceService {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &PriceService{
		repo:     repo,
		interval: interval,
		pending:  make(map[model.AssetID]model.PriceQuote),
	}
}

// OnFlush 每次成功写入后回调（用于指标）
func (s *PriceService) OnFlush(fn func(n int)) {
	s.mu.Lock()
	s.onFlush = fn
	s.mu.Unlock()
}

// Record 实现 QuoteSink，只覆盖内存中的待写入值
func (s *PriceService) Record(q model.PriceQuote) {
	s.mu.Lock()
	s.pending[q.AssetID] = q
	s.mu.Unlock()
}

// Flush 写入所有待写入报价，返回写入条数
func (s *PriceService) Flush(ctx context.Context) (int, error) {
	s.mu.Lock()
	batch := s.pending
	s.pending = make(map[model.AssetID]model.PriceQuote, len(batch))
	hook := s.onFlush
	s.mu.Unlock()

	var errs []error
	n := 0
	for _, q := range batch {
		if err := s.repo.UpsertLatestQuote(ctx, q); err != nil {
			errs = append(errs, err)
			continue
		}
		n++
	}
	if hook != nil && n > 0 {
		hook(n)
	}
	return n, errors.Join(errs...)
}

// Run 周期性落库，ctx 结束时再刷一次
func (s *PriceService) Run(ctx context.Context) {
	t := time.NewTicker(s.interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			fctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			if _, err := s.Flush(fctx); err != nil {
				log.Warn().Err(err).Msg("final quote flush failed")
			}
			cancel()
			return
		case <-t.C:
			n, err := s.Flush(ctx)
			if err != nil {
				log.Warn().Err(err).Msg("quote flush failed")
			}
			if n > 0 {
				log.Debug().Int("quotes", n).Msg("latest quotes saved")
			}
		}
	}
}
