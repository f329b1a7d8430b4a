package position

import (
	"context"
	"errors"
	"testing"

	"futures-trading-agent/internal/types"
)

// fakeBroker is a scripted interfaces.Broker recording every GetPositions
// call so sync-cooldown behavior can be asserted deterministically.
type fakeBroker struct {
	positions   []types.Position
	err         error
	syncCalls   int
}

func (f *fakeBroker) PlaceOrder(ctx context.Context, req types.OrderRequest) (types.OrderResult, error) {
	return types.OrderResult{}, nil
}

func (f *fakeBroker) GetPositions(ctx context.Context, symbols []types.Symbol) ([]types.Position, error) {
	f.syncCalls++
	return f.positions, f.err
}

func (f *fakeBroker) GetAccountInfo(ctx context.Context) (types.AccountSnapshot, error) {
	return types.AccountSnapshot{}, nil
}

func (f *fakeBroker) SetLeverage(ctx context.Context, symbol types.Symbol, leverage int) error {
	return nil
}

func (f *fakeBroker) SetMarginMode(ctx context.Context, symbol types.Symbol, mode types.MarginMode) error {
	return nil
}

func TestSyncPositionsHonorsCooldown(t *testing.T) {
	broker := &fakeBroker{positions: []types.Position{{Symbol: "BTC/USDT", Side: types.PositionLong, Amount: 1}}}
	m := New(broker)
	ctx := context.Background()

	if err := m.SyncPositions(ctx, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := m.SyncPositions(ctx, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if broker.syncCalls != 1 {
		t.Fatalf("expected the second SyncPositions within the cooldown window to be a no-op, got %d broker calls", broker.syncCalls)
	}
}

func TestForceSyncBypassesCooldown(t *testing.T) {
	broker := &fakeBroker{positions: []types.Position{{Symbol: "BTC/USDT", Side: types.PositionLong, Amount: 1}}}
	m := New(broker)
	ctx := context.Background()

	if err := m.SyncPositions(ctx, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := m.ForceSync(ctx, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if broker.syncCalls != 2 {
		t.Fatalf("expected ForceSync to bypass the cooldown, got %d broker calls", broker.syncCalls)
	}
}

func TestForceSyncPropagatesBrokerError(t *testing.T) {
	broker := &fakeBroker{err: errors.New("network error")}
	m := New(broker)
	if err := m.ForceSync(context.Background(), nil); err == nil {
		t.Fatal("expected ForceSync to propagate the broker error")
	}
}

func TestCanOpenPositionDeniesDuplicateSymbol(t *testing.T) {
	broker := &fakeBroker{positions: []types.Position{{Symbol: "BTC/USDT", Side: types.PositionLong, Amount: 1}}}
	m := New(broker)
	if err := m.ForceSync(context.Background(), nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if m.CanOpenPosition("BTC/USDT") {
		t.Error("expected duplicate symbol to be denied admission")
	}
	if !m.CanOpenPosition("ETH/USDT") {
		t.Error("expected a fresh symbol to be admitted")
	}
}

func TestCanOpenPositionDeniesAtMaxPositions(t *testing.T) {
	positions := make([]types.Position, 0, defaultMaxPositions)
	symbols := []string{"BTC/USDT", "ETH/USDT", "SOL/USDT", "BNB/USDT", "DOGE/USDT"}
	for _, s := range symbols {
		positions = append(positions, types.Position{Symbol: types.Symbol(s), Side: types.PositionLong, Amount: 1})
	}
	broker := &fakeBroker{positions: positions}
	m := New(broker)
	if err := m.ForceSync(context.Background(), nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if m.CanOpenPosition("XRP/USDT") {
		t.Error("expected admission to be denied once max positions is reached")
	}
}

func TestShouldClosePositionHonorsLossThreshold(t *testing.T) {
	broker := &fakeBroker{positions: []types.Position{
		{Symbol: "BTC/USDT", Side: types.PositionLong, Amount: 1, EntryPrice: 100, UnrealizedPnl: -30},
	}}
	m := New(broker)
	if err := m.ForceSync(context.Background(), nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !m.ShouldClosePosition("BTC/USDT", 0.20) {
		t.Error("expected a 30% loss to exceed a 20% threshold")
	}
	if m.ShouldClosePosition("BTC/USDT", 0.50) {
		t.Error("expected a 30% loss to stay under a 50% threshold")
	}
}

func TestShouldClosePositionIgnoresProfitablePosition(t *testing.T) {
	broker := &fakeBroker{positions: []types.Position{
		{Symbol: "BTC/USDT", Side: types.PositionLong, Amount: 1, EntryPrice: 100, UnrealizedPnl: 30},
	}}
	m := New(broker)
	if err := m.ForceSync(context.Background(), nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.ShouldClosePosition("BTC/USDT", 0.01) {
		t.Error("expected a profitable position to never be flagged for closure")
	}
}

func TestForceSyncWithSymbolsOnlyReplacesThoseSymbols(t *testing.T) {
	broker := &fakeBroker{positions: []types.Position{{Symbol: "BTC/USDT", Side: types.PositionLong, Amount: 1}}}
	m := New(broker)
	if err := m.ForceSync(context.Background(), []types.Symbol{"BTC/USDT"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !m.HasPosition("BTC/USDT") {
		t.Fatal("expected BTC/USDT to be cached")
	}

	// A targeted sync for a different, empty symbol must not evict BTC/USDT.
	broker.positions = nil
	if err := m.ForceSync(context.Background(), []types.Symbol{"ETH/USDT"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !m.HasPosition("BTC/USDT") {
		t.Error("expected BTC/USDT to survive a targeted sync of an unrelated symbol")
	}
}
