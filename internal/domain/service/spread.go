package service

// ChangePct 相对前值的涨跌幅（%），前值无效时为 0
func ChangePct(prev, next float64) float64 {
	if prev <= 0 {
		return 0
	}
	return (next - prev) / prev * 100
}

func ChangeColor(pct, threshold float64) int {
	// -1 red, 0 yellow, +1 green (pure decision)
	if threshold <= 0 {
		threshold = 0.01
	}
	if pct >= threshold {
		return +1
	}
	if pct <= -threshold {
		return -1
	}
	return 0
}
