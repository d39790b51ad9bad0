package service

import (
	"fmt"
	"testing"
	"time"

	"mdrelay/internal/domain/model"
)

func mkTrade(i int) model.Trade {
	return model.Trade{
		DedupeKey:  fmt.Sprintf("tx%d-0", i),
		TxHash:     fmt.Sprintf("tx%d", i),
		Amount:     float64(i),
		OccurredAt: time.Unix(int64(1700000000+i), 0),
		Side:       model.SideBuy,
	}
}

// TestTradeHistoryCap 第 21 笔成交淘汰最旧的一笔
func TestTradeHistoryCap(t *testing.T) {
	h := NewTradeHistory(20)
	for i := 0; i < 20; i++ {
		if !h.Add(mkTrade(i)) {
			t.Fatalf("trade %d rejected", i)
		}
	}
	if h.Len() != 20 {
		t.Fatalf("expected 20 entries, got %d", h.Len())
	}

	h.Add(mkTrade(20))
	if h.Len() != 20 {
		t.Fatalf("history exceeded cap: %d", h.Len())
	}
	snap := h.Snapshot()
	if snap[0].DedupeKey != "tx20-0" {
		t.Errorf("newest first expected, got %s", snap[0].DedupeKey)
	}
	if snap[19].DedupeKey != "tx1-0" {
		t.Errorf("oldest should be tx1-0 after eviction, got %s", snap[19].DedupeKey)
	}
	if h.Contains("tx0-0") {
		t.Error("evicted key must leave the dedupe set")
	}
}

func TestTradeHistoryManyEvents(t *testing.T) {
	h := NewTradeHistory(0)
	for i := 0; i < 500; i++ {
		h.Add(mkTrade(i))
		if h.Len() > DefaultHistorySize {
			t.Fatalf("history grew to %d", h.Len())
		}
	}
}

func TestTradeHistoryDuplicate(t *testing.T) {
	h := NewTradeHistory(20)
	if !h.Add(mkTrade(1)) {
		t.Fatal("first insert rejected")
	}
	if h.Add(mkTrade(1)) {
		t.Fatal("duplicate accepted")
	}
	if h.Len() != 1 {
		t.Errorf("expected 1 entry, got %d", h.Len())
	}
	if h.Add(model.Trade{}) {
		t.Error("trade without key must be rejected")
	}
}

func TestTradeHistorySeedMergesByTime(t *testing.T) {
	h := NewTradeHistory(5)
	h.Add(mkTrade(10))

	// 快照里包含一笔已存在的成交和更早的成交
	added := h.Seed([]model.Trade{mkTrade(10), mkTrade(9), mkTrade(8), mkTrade(7), mkTrade(6), mkTrade(5)})
	if added != 5 {
		t.Errorf("expected 5 new trades, got %d", added)
	}
	snap := h.Snapshot()
	if len(snap) != 5 {
		t.Fatalf("expected 5 entries, got %d", len(snap))
	}
	for i, want := range []string{"tx10-0", "tx9-0", "tx8-0", "tx7-0", "tx6-0"} {
		if snap[i].DedupeKey != want {
			t.Errorf("entry %d: got %s, want %s", i, snap[i].DedupeKey, want)
		}
	}
	if h.Contains("tx5-0") {
		t.Error("trade truncated by the cap must not stay in the dedupe set")
	}
}
