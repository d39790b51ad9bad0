package service

import (
	"context"
	"testing"
	"time"

	"mdrelay/internal/domain/model"
)

func TestPriceServiceCoalesces(t *testing.T) {
	mock := newMockRepository()
	svc := NewPriceService(mock, time.Hour)
	flushed := 0
	svc.OnFlush(func(n int) { flushed += n })

	svc.Record(model.PriceQuote{AssetID: "X", PriceUSD: 1})
	svc.Record(model.PriceQuote{AssetID: "X", PriceUSD: 2})
	svc.Record(model.PriceQuote{AssetID: "Y", PriceUSD: 3})

	ctx := context.Background()
	n, err := svc.Flush(ctx)
	if err != nil {
		t.Fatalf("Flush failed: %v", err)
	}
	if n != 2 || flushed != 2 {
		t.Errorf("expected 2 writes, got %d (hook saw %d)", n, flushed)
	}

	q, err := mock.LatestQuote(ctx, "X")
	if err != nil || q.PriceUSD != 2 {
		t.Errorf("expected latest price 2, got %v (err %v)", q, err)
	}

	if n, _ := svc.Flush(ctx); n != 0 {
		t.Errorf("second flush should be empty, wrote %d", n)
	}
}

func TestPriceServiceFlushError(t *testing.T) {
	mock := newMockRepository()
	mock.failOn = "BAD"
	svc := NewPriceService(mock, time.Hour)

	svc.Record(model.PriceQuote{AssetID: "BAD"})
	svc.Record(model.PriceQuote{AssetID: "OK"})

	n, err := svc.Flush(context.Background())
	if err == nil {
		t.Fatal("expected error from failing asset")
	}
	if n != 1 {
		t.Errorf("expected 1 successful write, got %d", n)
	}
}

func TestPriceServiceRunFlushesOnStop(t *testing.T) {
	mock := newMockRepository()
	svc := NewPriceService(mock, time.Hour)
	svc.Record(model.PriceQuote{AssetID: "X", PriceUSD: 5})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		svc.Run(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return")
	}
	if _, err := mock.LatestQuote(context.Background(), "X"); err != nil {
		t.Errorf("quote not flushed on stop: %v", err)
	}
}
