package agentobs

import (
	"context"
	"errors"
	"testing"

	"futures-trading-agent/internal/types"
)

type fakeAgent struct {
	err       error
	gotSymbol []types.Symbol
}

func (f *fakeAgent) Run(ctx context.Context, symbols []types.Symbol) error {
	f.gotSymbol = symbols
	return f.err
}

func TestWrapForwardsSymbolsAndSucceeds(t *testing.T) {
	inner := &fakeAgent{}
	wrapped := Wrap(inner)

	symbols := []types.Symbol{"BTC/USDT", "ETH/USDT"}
	if err := wrapped.Run(context.Background(), symbols); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(inner.gotSymbol) != 2 {
		t.Errorf("expected the inner agent to receive both symbols, got %v", inner.gotSymbol)
	}
}

func TestWrapPropagatesError(t *testing.T) {
	inner := &fakeAgent{err: errors.New("cycle failed")}
	wrapped := Wrap(inner)

	err := wrapped.Run(context.Background(), []types.Symbol{"BTC/USDT"})
	if err == nil || err.Error() != "cycle failed" {
		t.Errorf("expected the inner agent's error to propagate, got %v", err)
	}
}
