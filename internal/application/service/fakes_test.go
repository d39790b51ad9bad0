package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"mdrelay/internal/application/port"
	"mdrelay/internal/domain/model"
)

type sentFrame struct {
	kind  string
	pools []model.PoolRef
}

// fakeUpstream 记录发往上游的帧
type fakeUpstream struct {
	mu       sync.Mutex
	state    model.ConnState
	connects int
	frames   []sentFrame
}

func (f *fakeUpstream) State() model.ConnState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakeUpstream) Connect() {
	f.mu.Lock()
	f.connects++
	f.mu.Unlock()
}

func (f *fakeUpstream) SubscribePools(pools []model.PoolRef) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.frames = append(f.frames, sentFrame{kind: "market-details", pools: clonePools(pools)})
	return nil
}

func (f *fakeUpstream) UnsubscribePools(pools []model.PoolRef) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.frames = append(f.frames, sentFrame{kind: "unsubscribe", pools: clonePools(pools)})
	return nil
}

func (f *fakeUpstream) setState(s model.ConnState) {
	f.mu.Lock()
	f.state = s
	f.mu.Unlock()
}

func (f *fakeUpstream) sent() []sentFrame {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]sentFrame, len(f.frames))
	copy(out, f.frames)
	return out
}

// believed 按帧序列推算上游认为已订阅的池子集合
func (f *fakeUpstream) believed() map[string]struct{} {
	set := make(map[string]struct{})
	for _, fr := range f.sent() {
		switch fr.kind {
		case "market-details":
			set = make(map[string]struct{})
			for _, p := range fr.pools {
				set[p.Address] = struct{}{}
			}
		case "unsubscribe":
			for _, p := range fr.pools {
				delete(set, p.Address)
			}
		}
	}
	return set
}

// staticResolver 固定的池子映射，未配置的资产回退为自身地址
type staticResolver struct {
	mu    sync.Mutex
	pools map[model.AssetID][]model.PoolRef
	calls int
}

func (s *staticResolver) Resolve(_ context.Context, asset model.AssetID) []model.PoolRef {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if p, ok := s.pools[asset]; ok {
		return p
	}
	return []model.PoolRef{{Chain: "sol", Address: "pool-" + string(asset)}}
}

// recordingViewer 记录收到的推送
type recordingViewer struct {
	id     string
	mu     sync.Mutex
	quotes []model.PriceQuote
	trades []model.Trade
}

func newViewer(id string) *recordingViewer { return &recordingViewer{id: id} }

func (v *recordingViewer) ID() string { return v.id }

func (v *recordingViewer) DeliverQuote(q model.PriceQuote) bool {
	v.mu.Lock()
	v.quotes = append(v.quotes, q)
	v.mu.Unlock()
	return true
}

func (v *recordingViewer) DeliverTrades(_ model.AssetID, trades []model.Trade) bool {
	v.mu.Lock()
	v.trades = append(v.trades, trades...)
	v.mu.Unlock()
	return true
}

func (v *recordingViewer) quoteCount() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.quotes)
}

func (v *recordingViewer) tradeCount() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.trades)
}

// fakeGateway 可控的行情服务
type fakeGateway struct {
	quote      *model.PriceQuote
	quoteErr   error
	trades     []model.Trade
	candidates []model.PoolCandidate
	poolsErr   error
	poolCalls  int
	quoteCalls int
}

func (g *fakeGateway) FetchQuote(context.Context, model.AssetID) (*model.PriceQuote, error) {
	g.quoteCalls++
	if g.quoteErr != nil {
		return nil, g.quoteErr
	}
	return g.quote, nil
}

func (g *fakeGateway) FetchRecentTrades(context.Context, model.AssetID, int) []model.Trade {
	return g.trades
}

func (g *fakeGateway) FetchPools(context.Context, model.AssetID, string) ([]model.PoolCandidate, error) {
	g.poolCalls++
	return g.candidates, g.poolsErr
}

var errProvider = errors.New("provider down")

// mockRepository 内存仓储
type mockRepository struct {
	mu     sync.Mutex
	quotes map[model.AssetID]model.PriceQuote
	pools  map[model.AssetID][]model.PoolRef
	failOn model.AssetID
}

func newMockRepository() *mockRepository {
	return &mockRepository{
		quotes: make(map[model.AssetID]model.PriceQuote),
		pools:  make(map[model.AssetID][]model.PoolRef),
	}
}

func (m *mockRepository) UpsertLatestQuote(_ context.Context, q model.PriceQuote) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if q.AssetID == m.failOn {
		return errors.New("write failed")
	}
	m.quotes[q.AssetID] = q
	return nil
}

func (m *mockRepository) LatestQuote(_ context.Context, asset model.AssetID) (*model.PriceQuote, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.quotes[asset]
	if !ok {
		return nil, port.ErrNoRecord
	}
	return &q, nil
}

func (m *mockRepository) SavePools(_ context.Context, asset model.AssetID, pools []model.PoolRef) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pools[asset] = clonePools(pools)
	return nil
}

func (m *mockRepository) LoadPools(_ context.Context, asset model.AssetID, _ time.Duration) ([]model.PoolRef, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.pools[asset]
	if !ok {
		return nil, port.ErrNoRecord
	}
	return clonePools(p), nil
}

func (m *mockRepository) Close() error { return nil }
