package service

import (
	"context"
	"sort"
	"sync"

	"github.com/rs/zerolog/log"

	"mdrelay/internal/application/port"
	"mdrelay/internal/domain/model"
)

// PoolResolver 资产 -> 交易池
type PoolResolver interface {
	Resolve(ctx context.Context, asset model.AssetID) []model.PoolRef
}

// interest 单个 viewer 对某资产各主题的订阅次数
type interest struct {
	viewer port.Viewer
	refs   [2]int
}

func (i *interest) total() int { return i.refs[port.TopicQuote] + i.refs[port.TopicTrades] }

// subscription 一个资产的上游订阅
type subscription struct {
	asset       model.AssetID
	pool        model.PoolRef
	viewerCount int
	viewers     map[string]*interest
}

// RegistryStats 注册表统计
type RegistryStats struct {
	Assets  int `json:"assets"`
	Viewers int `json:"viewers"`
	Pools   int `json:"pools"`
}

// Registry 订阅注册表
// 维护 资产 -> 订阅 和 池子 -> 资产 两个索引，修改在 mu 下串行
// 发往上游的帧在 sendMu 下串行且不持有 mu，每帧发送前按当前状态重新取池子集合
// 加锁顺序 sendMu -> mu
type Registry struct {
	sendMu   sync.Mutex
	mu       sync.RWMutex
	resolver PoolResolver
	upstream port.Upstream
	metrics  port.Metrics

	subs   map[model.AssetID]*subscription
	byPool map[string]map[model.AssetID]struct{}

	onRemoved []func(asset model.AssetID)
}

func NewRegistry(resolver PoolResolver, metrics port.Metrics) *Registry {
	if metrics == nil {
		metrics = port.NopMetrics{}
	}
	return &Registry{
		resolver: resolver,
		metrics:  metrics,
		subs:     make(map[model.AssetID]*subscription),
		byPool:   make(map[string]map[model.AssetID]struct{}),
	}
}

// BindUpstream 注入上游连接（连接本身又依赖注册表做重放）
func (r *Registry) BindUpstream(u port.Upstream) {
	r.mu.Lock()
	r.upstream = u
	r.mu.Unlock()
}

// OnRemoved 订阅被销毁后回调（在锁外执行）
func (r *Registry) OnRemoved(fn func(asset model.AssetID)) {
	r.mu.Lock()
	r.onRemoved = append(r.onRemoved, fn)
	r.mu.Unlock()
}

// Subscribe 记录 viewer 对资产的兴趣
// 首个兴趣会解析池子并向上游发送完整的池子集合，后续兴趣只计数
func (r *Registry) Subscribe(ctx context.Context, asset model.AssetID, viewer port.Viewer, topic port.Topic) error {
	if asset == "" {
		return ErrEmptyAsset
	}
	if viewer == nil {
		return ErrNilViewer
	}

	r.mu.Lock()
	if sub, ok := r.subs[asset]; ok {
		r.addInterestLocked(sub, viewer, topic)
		r.mu.Unlock()
		return nil
	}
	r.mu.Unlock()

	// 解析可能走网络，不持锁
	pools := r.resolver.Resolve(ctx, asset)

	r.mu.Lock()
	// 解析期间其他 viewer 可能已经建立了订阅
	if sub, ok := r.subs[asset]; ok {
		r.addInterestLocked(sub, viewer, topic)
		r.mu.Unlock()
		return nil
	}
	if len(pools) == 0 {
		pools = []model.PoolRef{{Chain: model.DefaultChain, Address: string(asset)}}
	}

	sub := &subscription{
		asset:   asset,
		pool:    pools[0],
		viewers: make(map[string]*interest),
	}
	r.subs[asset] = sub
	r.indexLocked(sub)
	r.addInterestLocked(sub, viewer, topic)
	r.metrics.ActiveSubscriptions(len(r.subs))
	up := r.upstream
	r.mu.Unlock()

	log.Info().
		Str("asset", string(asset)).
		Str("pool", sub.pool.String()).
		Str("viewer", viewer.ID()).
		Msg("subscription created")

	if up == nil {
		return ErrUpstreamNotBound
	}
	if up.State() != model.Open {
		up.Connect()
		return nil
	}
	r.announce(up)
	return nil
}

// Unsubscribe 撤销一次兴趣，未订阅的资产或 viewer 为空操作
func (r *Registry) Unsubscribe(asset model.AssetID, viewerID string, topic port.Topic) {
	r.mu.Lock()
	sub, ok := r.subs[asset]
	if !ok {
		r.mu.Unlock()
		return
	}
	in, ok := sub.viewers[viewerID]
	if !ok || in.refs[topic] == 0 {
		r.mu.Unlock()
		return
	}

	in.refs[topic]--
	sub.viewerCount--
	if in.total() == 0 {
		delete(sub.viewers, viewerID)
	}

	var removed []model.AssetID
	var orphaned []model.PoolRef
	if sub.viewerCount <= 0 {
		removed, orphaned = r.dropLocked([]*subscription{sub})
	}
	hooks, up := r.onRemoved, r.upstream
	r.mu.Unlock()

	r.withdraw(up, orphaned)
	fire(hooks, removed)
}

// RemoveViewer 移除 viewer 的全部兴趣（连接断开时调用）
func (r *Registry) RemoveViewer(viewerID string) {
	r.mu.Lock()
	var empty []*subscription
	for _, sub := range r.subs {
		in, ok := sub.viewers[viewerID]
		if !ok {
			continue
		}
		sub.viewerCount -= in.total()
		delete(sub.viewers, viewerID)
		if sub.viewerCount <= 0 {
			empty = append(empty, sub)
		}
	}

	var removed []model.AssetID
	var orphaned []model.PoolRef
	if len(empty) > 0 {
		removed, orphaned = r.dropLocked(empty)
	}
	hooks, up := r.onRemoved, r.upstream
	r.mu.Unlock()

	r.withdraw(up, orphaned)
	fire(hooks, removed)
}

// ReplayActive 把当前完整池子集合交给 send（连接 Open 时调用）
func (r *Registry) ReplayActive(send func(pools []model.PoolRef) error) error {
	r.sendMu.Lock()
	defer r.sendMu.Unlock()

	pools := r.ActivePools()
	if len(pools) == 0 {
		return nil
	}
	if err := send(pools); err != nil {
		return err
	}
	r.metrics.UpstreamFrame("market-details")
	log.Info().Int("pools", len(pools)).Msg("active subscriptions replayed")
	return nil
}

// AssetsForPool 池子地址反查资产（一个池子可能对应多个资产）
func (r *Registry) AssetsForPool(pool string) []model.AssetID {
	r.mu.RLock()
	defer r.mu.RUnlock()

	set := r.byPool[pool]
	if len(set) == 0 {
		return nil
	}
	out := make([]model.AssetID, 0, len(set))
	for a := range set {
		out = append(out, a)
	}
	return out
}

// Viewers 返回订阅了资产某主题的 viewer 快照
func (r *Registry) Viewers(asset model.AssetID, topic port.Topic) []port.Viewer {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sub, ok := r.subs[asset]
	if !ok {
		return nil
	}
	out := make([]port.Viewer, 0, len(sub.viewers))
	for _, in := range sub.viewers {
		if in.refs[topic] > 0 {
			out = append(out, in.viewer)
		}
	}
	return out
}

// ViewerCount 资产当前的兴趣计数，无订阅时为 0
func (r *Registry) ViewerCount(asset model.AssetID) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if sub, ok := r.subs[asset]; ok {
		return sub.viewerCount
	}
	return 0
}

// Pool 资产当前订阅的池子
func (r *Registry) Pool(asset model.AssetID) (model.PoolRef, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if sub, ok := r.subs[asset]; ok {
		return sub.pool, true
	}
	return model.PoolRef{}, false
}

// ActivePools 当前需要在上游订阅的池子集合
func (r *Registry) ActivePools() []model.PoolRef {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.activePoolsLocked()
}

func (r *Registry) Stats() RegistryStats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	viewers := make(map[string]struct{})
	for _, sub := range r.subs {
		for id := range sub.viewers {
			viewers[id] = struct{}{}
		}
	}
	return RegistryStats{
		Assets:  len(r.subs),
		Viewers: len(viewers),
		Pools:   len(r.byPool),
	}
}

func (r *Registry) addInterestLocked(sub *subscription, viewer port.Viewer, topic port.Topic) {
	in, ok := sub.viewers[viewer.ID()]
	if !ok {
		in = &interest{viewer: viewer}
		sub.viewers[viewer.ID()] = in
	}
	in.refs[topic]++
	sub.viewerCount++
}

func (r *Registry) indexLocked(sub *subscription) {
	set, ok := r.byPool[sub.pool.Address]
	if !ok {
		set = make(map[model.AssetID]struct{})
		r.byPool[sub.pool.Address] = set
	}
	set[sub.asset] = struct{}{}
}

// dropLocked 销毁订阅，返回被移除的资产和不再被任何资产使用的池子
func (r *Registry) dropLocked(subs []*subscription) ([]model.AssetID, []model.PoolRef) {
	removed := make([]model.AssetID, 0, len(subs))
	var orphaned []model.PoolRef

	for _, sub := range subs {
		delete(r.subs, sub.asset)
		removed = append(removed, sub.asset)

		set := r.byPool[sub.pool.Address]
		delete(set, sub.asset)
		if len(set) == 0 {
			delete(r.byPool, sub.pool.Address)
			orphaned = append(orphaned, sub.pool)
		}
		log.Info().Str("asset", string(sub.asset)).Str("pool", sub.pool.String()).Msg("subscription removed")
	}
	r.metrics.ActiveSubscriptions(len(r.subs))
	return removed, orphaned
}

// announce 发送当前完整池子集合
func (r *Registry) announce(up port.Upstream) {
	r.sendMu.Lock()
	defer r.sendMu.Unlock()

	pools := r.ActivePools()
	if len(pools) == 0 {
		return
	}
	if err := up.SubscribePools(pools); err != nil {
		// 重连后会整体重放
		log.Warn().Err(err).Int("pools", len(pools)).Msg("send market-details failed")
		return
	}
	r.metrics.UpstreamFrame("market-details")
}

// withdraw 退订池子，发送前跳过已被新订阅重新使用的池子
func (r *Registry) withdraw(up port.Upstream, orphaned []model.PoolRef) {
	if len(orphaned) == 0 || up == nil || up.State() != model.Open {
		return
	}
	r.sendMu.Lock()
	defer r.sendMu.Unlock()

	r.mu.RLock()
	stale := make([]model.PoolRef, 0, len(orphaned))
	for _, p := range orphaned {
		if _, used := r.byPool[p.Address]; !used {
			stale = append(stale, p)
		}
	}
	r.mu.RUnlock()
	if len(stale) == 0 {
		return
	}

	if err := up.UnsubscribePools(stale); err != nil {
		log.Warn().Err(err).Int("pools", len(stale)).Msg("send unsubscribe failed")
		return
	}
	r.metrics.UpstreamFrame("unsubscribe")
}

func (r *Registry) activePoolsLocked() []model.PoolRef {
	pools := make([]model.PoolRef, 0, len(r.byPool))
	seen := make(map[string]struct{}, len(r.byPool))
	for _, sub := range r.subs {
		if sub.viewerCount <= 0 {
			continue
		}
		if _, dup := seen[sub.pool.Address]; dup {
			continue
		}
		seen[sub.pool.Address] = struct{}{}
		pools = append(pools, sub.pool)
	}
	sort.Slice(pools, func(i, j int) bool { return pools[i].Address < pools[j].Address })
	return pools
}

func fire(hooks []func(model.AssetID), removed []model.AssetID) {
	for _, asset := range removed {
		for _, fn := range hooks {
			fn(asset)
		}
	}
}
