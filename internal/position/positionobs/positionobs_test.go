package positionobs

import (
	"context"
	"testing"

	"futures-trading-agent/internal/types"
)

type fakePositions struct {
	canOpen      bool
	shouldClose  bool
	positionByID map[types.Symbol]types.Position
}

func (f *fakePositions) SyncPositions(ctx context.Context, symbols []types.Symbol) error { return nil }
func (f *fakePositions) ForceSync(ctx context.Context, symbols []types.Symbol) error      { return nil }
func (f *fakePositions) GetPosition(symbol types.Symbol) (types.Position, bool) {
	p, ok := f.positionByID[symbol]
	return p, ok
}
func (f *fakePositions) HasPosition(symbol types.Symbol) bool      { return false }
func (f *fakePositions) HasLongPosition(symbol types.Symbol) bool  { return false }
func (f *fakePositions) HasShortPosition(symbol types.Symbol) bool { return false }
func (f *fakePositions) GetAllPositions() []types.Position         { return nil }
func (f *fakePositions) GetPositionCount() int                     { return 0 }
func (f *fakePositions) GetTotalUnrealizedPnL() float64            { return 0 }
func (f *fakePositions) GetTotalMarginUsed() float64               { return 0 }
func (f *fakePositions) CanOpenPosition(symbol types.Symbol) bool  { return f.canOpen }
func (f *fakePositions) ShouldClosePosition(symbol types.Symbol, maxLossPercent float64) bool {
	return f.shouldClose
}

func TestWrapPassesThroughCanOpenPosition(t *testing.T) {
	inner := &fakePositions{canOpen: true}
	wrapped := Wrap(inner)

	if !wrapped.CanOpenPosition("BTC/USDT") {
		t.Error("expected the inner CanOpenPosition result of true to pass through")
	}
}

func TestWrapPassesThroughShouldClosePosition(t *testing.T) {
	inner := &fakePositions{shouldClose: true}
	wrapped := Wrap(inner)

	if !wrapped.ShouldClosePosition("BTC/USDT", 0.1) {
		t.Error("expected the inner ShouldClosePosition result of true to pass through")
	}
}

func TestWrapPassesThroughGetPosition(t *testing.T) {
	want := types.Position{Symbol: "BTC/USDT", Amount: 1}
	inner := &fakePositions{positionByID: map[types.Symbol]types.Position{"BTC/USDT": want}}
	wrapped := Wrap(inner)

	got, ok := wrapped.GetPosition("BTC/USDT")
	if !ok || got.Amount != 1 {
		t.Errorf("expected the inner position to pass through unchanged, got %+v, %v", got, ok)
	}
}
