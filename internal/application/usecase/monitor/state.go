package monitor

import (
	"sync"

	"mdrelay/internal/domain"
	"mdrelay/internal/domain/model"
)

type assetState struct {
	label     string
	price     domain.PriceState
	change24h float64
	lastTrade *model.Trade
}

type State struct {
	mu sync.Mutex

	order  []model.AssetID
	assets map[model.AssetID]*assetState
}

func NewState() *State {
	return &State{assets: make(map[model.AssetID]*assetState)}
}

// Track 按订阅顺序登记资产，label 在收到报价前用于显示
func (s *State) Track(asset model.AssetID, label string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.assets[asset]; ok {
		return
	}
	s.order = append(s.order, asset)
	s.assets[asset] = &assetState{label: label}
}

func (s *State) Assets() []model.AssetID {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.AssetID, len(s.order))
	copy(out, s.order)
	return out
}

// ApplyQuote 返回显示内容是否变化
func (s *State) ApplyQuote(q model.PriceQuote) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.assets[q.AssetID]
	if st == nil {
		return false
	}
	changed := st.price.Update(q.PriceUSD)
	if q.Symbol != "" && q.Symbol != st.label {
		st.label = q.Symbol
		changed = true
	}
	if q.PriceChange24hPct != st.change24h {
		st.change24h = q.PriceChange24hPct
		changed = true
	}
	return changed
}

// ApplyTrades 只保留最新一笔
func (s *State) ApplyTrades(asset model.AssetID, trades []model.Trade) bool {
	if len(trades) == 0 {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.assets[asset]
	if st == nil {
		return false
	}
	latest := trades[0]
	if st.lastTrade != nil && st.lastTrade.DedupeKey == latest.DedupeKey {
		return false
	}
	st.lastTrade = &latest
	return true
}

func (s *State) Snapshot() map[model.AssetID]assetState {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[model.AssetID]assetState, len(s.assets))
	for k, v := range s.assets {
		out[k] = *v
	}
	return out
}
