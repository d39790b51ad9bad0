package service

import "testing"

func TestChangePct(t *testing.T) {
	if got := ChangePct(0, 5); got != 0 {
		t.Errorf("ChangePct(0, 5) = %v", got)
	}
	if got := ChangePct(2, 3); got != 50 {
		t.Errorf("ChangePct(2, 3) = %v", got)
	}
}

func TestChangeColor(t *testing.T) {
	cases := []struct {
		pct, threshold float64
		want           int
	}{
		{5, 1, +1},
		{-5, 1, -1},
		{0.5, 1, 0},
		{0.02, 0, +1},
	}
	for _, c := range cases {
		if got := ChangeColor(c.pct, c.threshold); got != c.want {
			t.Errorf("ChangeColor(%v, %v) = %d, want %d", c.pct, c.threshold, got, c.want)
		}
	}
}
