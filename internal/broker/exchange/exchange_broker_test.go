package exchange

import (
	"context"
	"errors"
	"testing"
	"time"

	"futures-trading-agent/internal/store"
	"futures-trading-agent/internal/types"
)

// fakeExchange is a scripted interfaces.Exchange used to drive the
// Protected-Order Protocol state machine deterministically.
type fakeExchange struct {
	tickerPrice   float64
	tickerErr     error
	createOrderFn func(req types.OrderRequest) (string, error)
	createCalls   []types.OrderRequest
}

func (f *fakeExchange) Ticker(ctx context.Context, symbol types.Symbol) (float64, error) {
	return f.tickerPrice, f.tickerErr
}

func (f *fakeExchange) CreateOrder(ctx context.Context, req types.OrderRequest) (string, error) {
	f.createCalls = append(f.createCalls, req)
	return f.createOrderFn(req)
}

func (f *fakeExchange) FetchPositions(ctx context.Context, symbols []types.Symbol) ([]types.Position, error) {
	return nil, nil
}

func (f *fakeExchange) FetchBalance(ctx context.Context) (types.AccountSnapshot, error) {
	return types.AccountSnapshot{}, nil
}

func (f *fakeExchange) SetLeverage(ctx context.Context, symbol types.Symbol, leverage int) error {
	return nil
}

func (f *fakeExchange) SetMarginMode(ctx context.Context, symbol types.Symbol, mode types.MarginMode) error {
	return nil
}

// noSleepClock records requested durations without blocking, so protection
// retry tests run instantly.
type noSleepClock struct {
	slept []time.Duration
}

func (c *noSleepClock) Sleep(d time.Duration) { c.slept = append(c.slept, d) }

func mainOrderOK(id string) func(req types.OrderRequest) (string, error) {
	return func(req types.OrderRequest) (string, error) {
		if req.ReduceOnly {
			return "", errors.New("unexpected reduce-only call in this test path")
		}
		return id, nil
	}
}

func TestPlaceOrderSucceedsWithoutProtection(t *testing.T) {
	ex := &fakeExchange{tickerPrice: 100, createOrderFn: mainOrderOK("main-1")}
	b := New(ex, store.Instruments{})

	res, err := b.PlaceOrder(context.Background(), types.OrderRequest{
		Symbol: "BTC/USDT", Side: types.SideBuy, Cost: 100, Leverage: 5,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Success || res.OrderID != "main-1" {
		t.Fatalf("expected successful order main-1, got %+v", res)
	}
}

func TestPlaceOrderRunsProtectionAndSucceeds(t *testing.T) {
	calls := 0
	ex := &fakeExchange{
		tickerPrice: 100,
		createOrderFn: func(req types.OrderRequest) (string, error) {
			calls++
			if !req.ReduceOnly {
				return "main-1", nil
			}
			return "protect-1", nil
		},
	}
	b := New(ex, store.Instruments{})

	res, err := b.PlaceOrder(context.Background(), types.OrderRequest{
		Symbol: "BTC/USDT", Side: types.SideBuy, Cost: 100, Leverage: 5, StopLoss: 90, TakeProfit: 110,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Success {
		t.Fatalf("expected success, got %+v", res)
	}
	if calls != 3 {
		t.Fatalf("expected main + stop-loss + take-profit = 3 exchange calls, got %d", calls)
	}
}

func TestPlaceOrderRollsBackWhenStopLossFailsAllAttempts(t *testing.T) {
	clock := &noSleepClock{}
	ex := &fakeExchange{
		tickerPrice: 100,
		createOrderFn: func(req types.OrderRequest) (string, error) {
			if !req.ReduceOnly {
				return "main-1", nil
			}
			if req.Price > 0 {
				return "", errors.New("venue rejected protective order")
			}
			return "rollback-1", nil
		},
	}
	b := New(ex, store.Instruments{}).WithClock(clock)

	res, err := b.PlaceOrder(context.Background(), types.OrderRequest{
		Symbol: "BTC/USDT", Side: types.SideBuy, Cost: 100, Leverage: 5, StopLoss: 90,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Success {
		t.Fatal("expected failure after rollback")
	}
	if res.Critical {
		t.Fatal("expected non-critical result: rollback itself succeeded")
	}
	// Three stop-loss attempts, then one successful rollback close.
	if len(ex.createCalls) != 5 {
		t.Fatalf("expected 1 main + 3 stop-loss attempts + 1 rollback = 5 calls, got %d", len(ex.createCalls))
	}
	if len(clock.slept) != 2 {
		t.Fatalf("expected linear backoff before attempts 2 and 3 (2 sleeps), got %d", len(clock.slept))
	}
	if clock.slept[0] != backoffUnit || clock.slept[1] != 2*backoffUnit {
		t.Fatalf("expected backoff of 1x then 2x the unit, got %v", clock.slept)
	}
}

func TestPlaceOrderReturnsCriticalWhenRollbackAlsoFails(t *testing.T) {
	clock := &noSleepClock{}
	ex := &fakeExchange{
		tickerPrice: 100,
		createOrderFn: func(req types.OrderRequest) (string, error) {
			if !req.ReduceOnly {
				return "main-1", nil
			}
			return "", errors.New("venue rejected reduce-only order")
		},
	}
	b := New(ex, store.Instruments{}).WithClock(clock)

	res, err := b.PlaceOrder(context.Background(), types.OrderRequest{
		Symbol: "BTC/USDT", Side: types.SideBuy, Cost: 100, Leverage: 5, StopLoss: 90,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Success || !res.Critical {
		t.Fatalf("expected a critical failure result, got %+v", res)
	}
}

func TestPlaceOrderFailsFastWhenMainOrderErrors(t *testing.T) {
	ex := &fakeExchange{
		tickerPrice: 100,
		createOrderFn: func(req types.OrderRequest) (string, error) {
			return "", errors.New("insufficient margin")
		},
	}
	b := New(ex, store.Instruments{})

	res, err := b.PlaceOrder(context.Background(), types.OrderRequest{
		Symbol: "BTC/USDT", Side: types.SideBuy, Cost: 100, Leverage: 5, StopLoss: 90,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Success {
		t.Fatal("expected failure when main order errors")
	}
	if len(ex.createCalls) != 1 {
		t.Fatalf("expected no protection attempts after main order failure, got %d calls", len(ex.createCalls))
	}
}

func TestPlaceOrderReduceOnlySkipsProtection(t *testing.T) {
	ex := &fakeExchange{
		tickerPrice: 100,
		createOrderFn: func(req types.OrderRequest) (string, error) {
			return "close-1", nil
		},
	}
	b := New(ex, store.Instruments{})

	res, err := b.PlaceOrder(context.Background(), types.OrderRequest{
		Symbol: "BTC/USDT", Side: types.SideSell, Amount: 1, ReduceOnly: true,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Success || len(ex.createCalls) != 1 {
		t.Fatalf("expected single reduce-only call with no protection, got %+v calls=%d", res, len(ex.createCalls))
	}
}

func TestRoundToStepRejectsBelowMinNotional(t *testing.T) {
	inst := store.Instruments{"BTC/USDT": store.InstrumentMeta{StepSize: 0.01, MinNotional: 100}}
	ex := &fakeExchange{tickerPrice: 10, createOrderFn: mainOrderOK("main-1")}
	b := New(ex, inst)

	res, err := b.PlaceOrder(context.Background(), types.OrderRequest{
		Symbol: "BTC/USDT", Side: types.SideBuy, Cost: 5, Leverage: 1,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Success {
		t.Fatal("expected order below minimum notional to be rejected")
	}
}
