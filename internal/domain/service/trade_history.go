package service

import (
	"sort"

	"mdrelay/internal/domain/model"
)

// DefaultHistorySize 每个资产保留的最近成交条数
const DefaultHistorySize = 20

// TradeHistory 单个资产的最近成交（新 -> 旧），带去重
// 去重集合与历史同步淘汰，大小不超过 cap
// 非并发安全，由调用方加锁
type TradeHistory struct {
	cap     int
	entries []model.Trade
	seen    map[string]struct{}
}

// NewTradeHistory 创建成交历史
func NewTradeHistory(size int) *TradeHistory {
	if size <= 0 {
		size = DefaultHistorySize
	}
	return &TradeHistory{
		cap:     size,
		entries: make([]model.Trade, 0, size),
		seen:    make(map[string]struct{}, size),
	}
}

// Add 插入一笔成交，重复返回 false
func (h *TradeHistory) Add(t model.Trade) bool {
	if t.DedupeKey == "" {
		return false
	}
	if _, dup := h.seen[t.DedupeKey]; dup {
		return false
	}

	if len(h.entries) == h.cap {
		oldest := h.entries[len(h.entries)-1]
		delete(h.seen, oldest.DedupeKey)
		h.entries = h.entries[:len(h.entries)-1]
	}

	h.entries = append(h.entries, model.Trade{})
	copy(h.entries[1:], h.entries[:len(h.entries)-1])
	h.entries[0] = t
	h.seen[t.DedupeKey] = struct{}{}
	return true
}

// Seed 把 REST 快照合并进历史，按成交时间重新排序（新 -> 旧）后截断
// 返回新加入的条数
func (h *TradeHistory) Seed(trades []model.Trade) int {
	merged := h.Snapshot()
	n := 0
	for _, t := range trades {
		if t.DedupeKey == "" || h.Contains(t.DedupeKey) {
			continue
		}
		h.seen[t.DedupeKey] = struct{}{}
		merged = append(merged, t)
		n++
	}
	if n == 0 {
		return 0
	}

	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].OccurredAt.After(merged[j].OccurredAt)
	})
	if len(merged) > h.cap {
		merged = merged[:h.cap]
	}

	h.entries = merged
	h.seen = make(map[string]struct{}, h.cap)
	for _, t := range merged {
		h.seen[t.DedupeKey] = struct{}{}
	}
	return n
}

// Contains 是否已经见过该 key
func (h *TradeHistory) Contains(key string) bool {
	_, ok := h.seen[key]
	return ok
}

// Snapshot 返回副本
func (h *TradeHistory) Snapshot() []model.Trade {
	out := make([]model.Trade, len(h.entries))
	copy(out, h.entries)
	return out
}

func (h *TradeHistory) Len() int { return len(h.entries) }

func (h *TradeHistory) Cap() int { return h.cap }
