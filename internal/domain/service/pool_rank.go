package service

import (
	"sort"
	"strings"

	"mdrelay/internal/domain/model"
)

// DefaultMaxPools 单个资产最多订阅候选池数量
const DefaultMaxPools = 3

// RankPools 按流动性降序排序并截断
// 原生资产的交易对多且噪音大，只保留流动性最深的一个
func RankPools(candidates []model.PoolCandidate, native bool, max int) []model.PoolRef {
	if max <= 0 {
		max = DefaultMaxPools
	}
	if native {
		max = 1
	}

	valid := make([]model.PoolCandidate, 0, len(candidates))
	seen := make(map[string]struct{}, len(candidates))
	for _, c := range candidates {
		addr := strings.TrimSpace(c.Pool.Address)
		if addr == "" {
			continue
		}
		if _, ok := seen[addr]; ok {
			continue
		}
		seen[addr] = struct{}{}
		c.Pool.Address = addr
		valid = append(valid, c)
	}

	sort.SliceStable(valid, func(i, j int) bool {
		return valid[i].LiquidityUSD > valid[j].LiquidityUSD
	})

	if len(valid) > max {
		valid = valid[:max]
	}
	out := make([]model.PoolRef, 0, len(valid))
	for _, c := range valid {
		out = append(out, c.Pool)
	}
	return out
}
