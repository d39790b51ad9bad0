package service

import (
	"testing"

	"mdrelay/internal/domain/model"
)

func candidates() []model.PoolCandidate {
	return []model.PoolCandidate{
		{Pool: model.PoolRef{Chain: "solana", Address: "A"}, LiquidityUSD: 100},
		{Pool: model.PoolRef{Chain: "solana", Address: "B"}, LiquidityUSD: 5000},
		{Pool: model.PoolRef{Chain: "solana", Address: "C"}, LiquidityUSD: 50},
		{Pool: model.PoolRef{Chain: "solana", Address: "D"}, LiquidityUSD: 900},
		{Pool: model.PoolRef{Chain: "solana", Address: "E"}, LiquidityUSD: 2500},
	}
}

func TestRankPoolsTopThree(t *testing.T) {
	got := RankPools(candidates(), false, 3)
	want := []string{"B", "E", "D"}
	if len(got) != len(want) {
		t.Fatalf("expected %d pools, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i].Address != want[i] {
			t.Errorf("pool %d: got %s, want %s", i, got[i].Address, want[i])
		}
	}
}

func TestRankPoolsNativeSingle(t *testing.T) {
	got := RankPools(candidates(), true, 3)
	if len(got) != 1 || got[0].Address != "B" {
		t.Fatalf("expected only deepest pool B, got %+v", got)
	}
}

func TestRankPoolsSkipsBlankAndDuplicates(t *testing.T) {
	in := []model.PoolCandidate{
		{Pool: model.PoolRef{Chain: "solana", Address: " "}, LiquidityUSD: 1e9},
		{Pool: model.PoolRef{Chain: "solana", Address: "X"}, LiquidityUSD: 1},
		{Pool: model.PoolRef{Chain: "solana", Address: "X"}, LiquidityUSD: 2},
	}
	got := RankPools(in, false, 0)
	if len(got) != 1 || got[0].Address != "X" {
		t.Fatalf("unexpected result %+v", got)
	}
}
