package monitor

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"mdrelay/internal/domain/model"
)

const viewerID = "console"

type update struct {
	quote  *model.PriceQuote
	asset  model.AssetID
	trades []model.Trade
}

// Service 控制台监视器，本身是一个 viewer
type Service struct {
	deps    ServiceDeps
	st      *State
	fmt     *Formatter
	updates chan update
}

func NewService(deps ServiceDeps) *Service {
	if deps.PrintEvery <= 0 {
		deps.PrintEvery = time.Minute
	}
	return &Service{
		deps:    deps,
		st:      NewState(),
		fmt:     NewFormatter(deps.ChangeThreshold),
		updates: make(chan update, 256),
	}
}

func (s *Service) ID() string { return viewerID }

func (s *Service) DeliverQuote(q model.PriceQuote) bool {
	select {
	case s.updates <- update{quote: &q}:
		return true
	default:
		return false
	}
}

func (s *Service) DeliverTrades(asset model.AssetID, trades []model.Trade) bool {
	select {
	case s.updates <- update{asset: asset, trades: trades}:
		return true
	default:
		return false
	}
}

func (s *Service) Run(ctx context.Context) error {
	if len(s.deps.Assets) == 0 {
		return errors.New("no assets to watch")
	}

	for _, raw := range s.deps.Assets {
		asset := model.NormalizeAsset(raw)
		s.st.Track(asset, raw)
		if _, err := s.deps.Relay.SubscribeQuote(ctx, raw, s); err != nil {
			return err
		}
		if _, err := s.deps.Relay.SubscribeTrades(ctx, raw, s); err != nil {
			return err
		}
		log.Info().Str("asset", string(asset)).Msg("watching")
	}
	defer s.deps.Relay.Disconnect(s)

	snapTicker := time.NewTicker(s.deps.PrintEvery)
	defer snapTicker.Stop()

	// initial live line
	_ = s.deps.Sink.WriteLive(s.fmt.Render(s.st, RenderLive))

	for {
		select {
		case <-ctx.Done():
			_ = s.deps.Sink.NewLine()
			return ctx.Err()

		case now := <-snapTicker.C:
			_ = s.deps.Sink.WriteSnapshot(now, s.fmt.Render(s.st, RenderSnapshot))

		case u := <-s.updates:
			var changed bool
			if u.quote != nil {
				changed = s.st.ApplyQuote(*u.quote)
			} else {
				changed = s.st.ApplyTrades(u.asset, u.trades)
			}
			if changed {
				_ = s.deps.Sink.WriteLive(s.fmt.Render(s.st, RenderLive))
			}
		}
	}
}
