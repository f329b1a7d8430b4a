package bridge

import (
	"context"
	"testing"

	"futures-trading-agent/internal/types"
)

type fakeBroker struct {
	placeResult types.OrderResult
	placeErr    error
	lastReq     types.OrderRequest
}

func (f *fakeBroker) PlaceOrder(ctx context.Context, req types.OrderRequest) (types.OrderResult, error) {
	f.lastReq = req
	return f.placeResult, f.placeErr
}
func (f *fakeBroker) GetPositions(ctx context.Context, symbols []types.Symbol) ([]types.Position, error) {
	return nil, nil
}
func (f *fakeBroker) GetAccountInfo(ctx context.Context) (types.AccountSnapshot, error) {
	return types.AccountSnapshot{Balance: 1000, AvailableMargin: 1000}, nil
}
func (f *fakeBroker) SetLeverage(ctx context.Context, symbol types.Symbol, leverage int) error {
	return nil
}
func (f *fakeBroker) SetMarginMode(ctx context.Context, symbol types.Symbol, mode types.MarginMode) error {
	return nil
}

type fakePositions struct {
	canOpen  bool
	position types.Position
	has      bool
}

func (f *fakePositions) SyncPositions(ctx context.Context, symbols []types.Symbol) error { return nil }
func (f *fakePositions) ForceSync(ctx context.Context, symbols []types.Symbol) error     { return nil }
func (f *fakePositions) GetPosition(symbol types.Symbol) (types.Position, bool) {
	return f.position, f.has
}
func (f *fakePositions) HasPosition(symbol types.Symbol) bool      { return f.has }
func (f *fakePositions) HasLongPosition(symbol types.Symbol) bool  { return f.has && f.position.Side == types.PositionLong }
func (f *fakePositions) HasShortPosition(symbol types.Symbol) bool { return f.has && f.position.Side == types.PositionShort }
func (f *fakePositions) GetAllPositions() []types.Position         { return nil }
func (f *fakePositions) GetPositionCount() int                     { return 0 }
func (f *fakePositions) GetTotalUnrealizedPnL() float64            { return 0 }
func (f *fakePositions) GetTotalMarginUsed() float64               { return 0 }
func (f *fakePositions) CanOpenPosition(symbol types.Symbol) bool  { return f.canOpen }
func (f *fakePositions) ShouldClosePosition(symbol types.Symbol, maxLossPercent float64) bool {
	return false
}

type fakeRisk struct {
	ok     bool
	reason string
}

func (f *fakeRisk) Validate(symbol types.Symbol, cost float64, leverage int) (bool, string) {
	return f.ok, f.reason
}
func (f *fakeRisk) MaxLeverage() int          { return 10 }
func (f *fakeRisk) MaxCostPerTrade() float64  { return 100 }
func (f *fakeRisk) WhitelistSlice() []string  { return []string{"BTC/USDT"} }

func TestPlaceOrderOpenLongSucceeds(t *testing.T) {
	b := New(
		&fakeBroker{placeResult: types.OrderResult{Success: true, OrderID: "abc"}},
		&fakePositions{canOpen: true},
		&fakeRisk{ok: true},
		nil, nil, 10000,
	)
	tool := &placeOrderTool{b}
	out, err := tool.Invoke(context.Background(), map[string]any{
		"symbol": "BTC/USDT", "action": "open_long", "cost": 50.0, "leverage": 5.0,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if success, _ := out["success"].(bool); !success {
		t.Fatalf("expected success, got %+v", out)
	}
}

func TestPlaceOrderRejectedByRiskGuard(t *testing.T) {
	b := New(
		&fakeBroker{},
		&fakePositions{canOpen: true},
		&fakeRisk{ok: false, reason: "symbol not whitelisted"},
		nil, nil, 10000,
	)
	tool := &placeOrderTool{b}
	out, err := tool.Invoke(context.Background(), map[string]any{
		"symbol": "DOGE/USDT", "action": "open_long", "cost": 50.0, "leverage": 5.0,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if success, _ := out["success"].(bool); success {
		t.Fatal("expected rejection")
	}
	if rejected, _ := out["rejected"].(bool); !rejected {
		t.Fatal("expected the rejected flag to be set for a risk-guard denial")
	}
}

func TestPlaceOrderCloseWithNoPositionFails(t *testing.T) {
	b := New(
		&fakeBroker{},
		&fakePositions{has: false},
		&fakeRisk{ok: true},
		nil, nil, 10000,
	)
	tool := &placeOrderTool{b}
	out, err := tool.Invoke(context.Background(), map[string]any{
		"symbol": "BTC/USDT", "action": "close_long",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if success, _ := out["success"].(bool); success {
		t.Fatal("expected failure closing a position that does not exist")
	}
}

func TestPlaceOrderDeniedByAdmissionControl(t *testing.T) {
	b := New(
		&fakeBroker{},
		&fakePositions{canOpen: false},
		&fakeRisk{ok: true},
		nil, nil, 10000,
	)
	tool := &placeOrderTool{b}
	out, err := tool.Invoke(context.Background(), map[string]any{
		"symbol": "BTC/USDT", "action": "open_long", "cost": 50.0, "leverage": 5.0,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if success, _ := out["success"].(bool); success {
		t.Fatal("expected denial when the position manager refuses admission")
	}
}

func TestPlaceOrderSurfacesCriticalFlagFromBroker(t *testing.T) {
	b := New(
		&fakeBroker{placeResult: types.OrderResult{Success: false, Critical: true, Error: "manual intervention required"}},
		&fakePositions{canOpen: true},
		&fakeRisk{ok: true},
		nil, nil, 10000,
	)
	tool := &placeOrderTool{b}
	out, err := tool.Invoke(context.Background(), map[string]any{
		"symbol": "BTC/USDT", "action": "open_long", "cost": 50.0, "leverage": 5.0,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if critical, _ := out["critical"].(bool); !critical {
		t.Fatal("expected the critical flag to be surfaced to the caller")
	}
}

func TestPlaceOrderUnknownActionIsRejected(t *testing.T) {
	b := New(&fakeBroker{}, &fakePositions{}, &fakeRisk{ok: true}, nil, nil, 10000)
	tool := &placeOrderTool{b}
	out, err := tool.Invoke(context.Background(), map[string]any{"symbol": "BTC/USDT", "action": "do_a_backflip"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rejected, _ := out["rejected"].(bool); !rejected {
		t.Fatal("expected an unrecognized action to be rejected")
	}
}
