package simulation

import (
	"context"
	"testing"

	"futures-trading-agent/internal/types"
)

func TestPlaceOrderOpensLongPosition(t *testing.T) {
	b := New(10000)
	res, err := b.PlaceOrder(context.Background(), types.OrderRequest{
		Symbol: "BTC/USDT", Side: types.SideBuy, Cost: 1000, Leverage: 5,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Success {
		t.Fatalf("expected success, got %+v", res)
	}

	state := b.GetState()
	pos, ok := state.Positions["BTC/USDT"]
	if !ok {
		t.Fatal("expected an open BTC/USDT position")
	}
	if pos.Side != types.PositionLong {
		t.Errorf("expected long side, got %s", pos.Side)
	}
	if pos.Leverage != 5 {
		t.Errorf("expected leverage 5, got %d", pos.Leverage)
	}
}

func TestPlaceOrderOppositeSideClosesPosition(t *testing.T) {
	b := New(10000)
	ctx := context.Background()

	if _, err := b.PlaceOrder(ctx, types.OrderRequest{Symbol: "BTC/USDT", Side: types.SideBuy, Cost: 1000, Leverage: 5}); err != nil {
		t.Fatalf("unexpected error opening: %v", err)
	}

	res, err := b.PlaceOrder(ctx, types.OrderRequest{Symbol: "BTC/USDT", Side: types.SideSell, Amount: 1, ReduceOnly: true})
	if err != nil {
		t.Fatalf("unexpected error closing: %v", err)
	}
	if !res.Success {
		t.Fatalf("expected close to succeed, got %+v", res)
	}

	if _, ok := b.GetState().Positions["BTC/USDT"]; ok {
		t.Fatal("expected position to be gone after opposite-side close")
	}
}

func TestReduceOnlyWithNoPositionIsNoopSuccess(t *testing.T) {
	b := New(10000)
	res, err := b.PlaceOrder(context.Background(), types.OrderRequest{
		Symbol: "ETH/USDT", Side: types.SideSell, Amount: 1, ReduceOnly: true,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Success {
		t.Fatal("expected reduce-only no-op to succeed")
	}
}

func TestPlaceOrderFailsWithNoSizeInformation(t *testing.T) {
	b := New(10000)
	res, err := b.PlaceOrder(context.Background(), types.OrderRequest{Symbol: "BTC/USDT", Side: types.SideBuy})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Success {
		t.Fatal("expected failure when order has neither amount nor cost")
	}
}

func TestLiquidationPriceLongBelowEntryShortAboveEntry(t *testing.T) {
	longLiq := liquidationPrice(100, 10, types.PositionLong)
	if longLiq >= 100 {
		t.Errorf("expected long liquidation price below entry, got %f", longLiq)
	}
	shortLiq := liquidationPrice(100, 10, types.PositionShort)
	if shortLiq <= 100 {
		t.Errorf("expected short liquidation price above entry, got %f", shortLiq)
	}
}

func TestGetAccountInfoReflectsUnrealizedPnL(t *testing.T) {
	b := New(10000)
	ctx := context.Background()
	if _, err := b.PlaceOrder(ctx, types.OrderRequest{Symbol: "BTC/USDT", Side: types.SideBuy, Cost: 1000, Leverage: 5}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	snap, err := b.GetAccountInfo(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if snap.Balance != 10000+snap.TotalPnL {
		t.Errorf("expected balance == initial balance + unrealized PnL, got balance=%f pnl=%f",
			snap.Balance, snap.TotalPnL)
	}
	if snap.Balance != snap.AvailableMargin+snap.UsedMargin+snap.TotalPnL {
		t.Errorf("expected balance == available + used margin + unrealized PnL, got balance=%f available=%f used=%f pnl=%f",
			snap.Balance, snap.AvailableMargin, snap.UsedMargin, snap.TotalPnL)
	}
}

func TestPlaceOrderCarriesStopLossAndTakeProfitOntoPosition(t *testing.T) {
	b := New(10000)
	ctx := context.Background()
	_, err := b.PlaceOrder(ctx, types.OrderRequest{
		Symbol: "BTC/USDT", Side: types.SideBuy, Cost: 1000, Leverage: 5,
		StopLoss: 90000, TakeProfit: 120000,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	pos, ok := b.GetState().Positions["BTC/USDT"]
	if !ok {
		t.Fatal("expected an open BTC/USDT position")
	}
	if pos.StopLoss != 90000 {
		t.Errorf("expected stop-loss 90000, got %f", pos.StopLoss)
	}
	if pos.TakeProfit != 120000 {
		t.Errorf("expected take-profit 120000, got %f", pos.TakeProfit)
	}
}

func TestPlaceOrderWithoutProtectiveLevelsLeavesPositionUnprotected(t *testing.T) {
	b := New(10000)
	if _, err := b.PlaceOrder(context.Background(), types.OrderRequest{
		Symbol: "ETH/USDT", Side: types.SideBuy, Cost: 500, Leverage: 3,
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	pos, ok := b.GetState().Positions["ETH/USDT"]
	if !ok {
		t.Fatal("expected an open ETH/USDT position")
	}
	if pos.StopLoss != 0 || pos.TakeProfit != 0 {
		t.Errorf("expected no protective levels, got stop=%f take=%f", pos.StopLoss, pos.TakeProfit)
	}
}

func TestCheckProtectiveLevelsTriggersStopLossForLong(t *testing.T) {
	b := New(10000)
	ctx := context.Background()
	b.positions["BTC/USDT"] = types.Position{
		Symbol: "BTC/USDT", Side: types.PositionLong, Amount: 1,
		EntryPrice: 100000, StopLoss: 95000, TakeProfit: 110000,
	}

	b.mu.Lock()
	triggered, res := b.checkProtectiveLevels(ctx, "BTC/USDT", 94000)
	b.mu.Unlock()

	if !triggered {
		t.Fatal("expected stop-loss to trigger")
	}
	if !res.Success {
		t.Fatalf("expected triggered close to succeed, got %+v", res)
	}
	if _, ok := b.GetState().Positions["BTC/USDT"]; ok {
		t.Fatal("expected position to be closed after stop-loss trigger")
	}
}

func TestCheckProtectiveLevelsTriggersTakeProfitForShort(t *testing.T) {
	b := New(10000)
	ctx := context.Background()
	b.positions["ETH/USDT"] = types.Position{
		Symbol: "ETH/USDT", Side: types.PositionShort, Amount: 2,
		EntryPrice: 3800, StopLoss: 4000, TakeProfit: 3500,
	}

	b.mu.Lock()
	triggered, res := b.checkProtectiveLevels(ctx, "ETH/USDT", 3400)
	b.mu.Unlock()

	if !triggered {
		t.Fatal("expected take-profit to trigger")
	}
	if !res.Success {
		t.Fatalf("expected triggered close to succeed, got %+v", res)
	}
	if _, ok := b.GetState().Positions["ETH/USDT"]; ok {
		t.Fatal("expected position to be closed after take-profit trigger")
	}
}

func TestCheckProtectiveLevelsDoesNotTriggerWithinRange(t *testing.T) {
	b := New(10000)
	ctx := context.Background()
	b.positions["BTC/USDT"] = types.Position{
		Symbol: "BTC/USDT", Side: types.PositionLong, Amount: 1,
		EntryPrice: 100000, StopLoss: 95000, TakeProfit: 110000,
	}

	b.mu.Lock()
	triggered, _ := b.checkProtectiveLevels(ctx, "BTC/USDT", 100500)
	b.mu.Unlock()

	if triggered {
		t.Fatal("expected no trigger while mark is between stop-loss and take-profit")
	}
	if _, ok := b.GetState().Positions["BTC/USDT"]; !ok {
		t.Fatal("expected position to remain open")
	}
}

func TestGetPositionsAutoClosesOnStopLossCross(t *testing.T) {
	b := New(10000)
	ctx := context.Background()
	b.positions["SOL/USDT"] = types.Position{
		Symbol: "SOL/USDT", Side: types.PositionLong, Amount: 10,
		EntryPrice: 180, StopLoss: 999999, TakeProfit: 0,
	}
	b.mockPrices["SOL/USDT"] = 100

	if _, err := b.GetPositions(ctx, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := b.GetState().Positions["SOL/USDT"]; ok {
		t.Fatal("expected GetPositions to auto-close a position whose stop-loss the drifted mark crossed")
	}
}

func TestResetClearsPositionsAndReseedsBalance(t *testing.T) {
	b := New(10000)
	ctx := context.Background()
	if _, err := b.PlaceOrder(ctx, types.OrderRequest{Symbol: "BTC/USDT", Side: types.SideBuy, Cost: 1000, Leverage: 5}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	b.Reset(5000)
	state := b.GetState()
	if len(state.Positions) != 0 {
		t.Errorf("expected no positions after reset, got %d", len(state.Positions))
	}
	if state.Balance != 5000 {
		t.Errorf("expected reseeded balance 5000, got %f", state.Balance)
	}
}
