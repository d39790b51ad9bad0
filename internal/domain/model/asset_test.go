package model

import (
	"testing"
	"time"
)

func TestNormalizeAssetAliases(t *testing.T) {
	for _, in := range []string{"sol", "SOL", " Solana ", "wsol", "So11111111111111111111111111111111111111112"} {
		if got := NormalizeAsset(in); got != NativeAsset {
			t.Errorf("NormalizeAsset(%q) = %q, want %q", in, got, NativeAsset)
		}
	}
}

func TestNormalizeAssetPassThrough(t *testing.T) {
	if got := NormalizeAsset("  not-a-key  "); got != "not-a-key" {
		t.Errorf("expected trimmed passthrough, got %q", got)
	}
	if got := NormalizeAsset("   "); got != "" {
		t.Errorf("expected empty asset, got %q", got)
	}
	if IsNative(NormalizeAsset("EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v")) {
		t.Error("USDC mint must not be native")
	}
}

func TestQuoteRatioGuardsZero(t *testing.T) {
	if r := QuoteRatio(10, 0); r != nil {
		t.Errorf("expected nil ratio for zero reference, got %v", *r)
	}
	r := QuoteRatio(10, 4)
	if r == nil || *r != 2.5 {
		t.Errorf("expected 2.5, got %v", r)
	}
}

func TestRoundPct(t *testing.T) {
	if got := RoundPct(1.23456); got != 1.23 {
		t.Errorf("RoundPct = %v, want 1.23", got)
	}
	if got := RoundPct(-4.005); got != -4.01 && got != -4 {
		t.Errorf("RoundPct(-4.005) = %v", got)
	}
}

func TestTradeDedupeKey(t *testing.T) {
	at := time.UnixMilli(1714557600000)
	if got := TradeDedupeKey("h", "7", at); got != "h-7" {
		t.Errorf("index should win over time, got %q", got)
	}
	if got := TradeDedupeKey("h", "", at); got != "h-1714557600000" {
		t.Errorf("expected time fallback, got %q", got)
	}
	if got := TradeDedupeKey("h", "", time.Time{}); got != "h" {
		t.Errorf("expected bare hash, got %q", got)
	}
}
