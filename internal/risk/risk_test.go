package risk

import (
	"testing"

	"futures-trading-agent/internal/store"
	"futures-trading-agent/internal/types"
)

func testConfig() *store.RiskConfig {
	return &store.RiskConfig{
		Mode:            store.ModePaper,
		MaxLeverage:     10,
		MaxCostPerTrade: 100,
		SymbolWhitelist: map[types.Symbol]bool{"BTC/USDT": true, "ETH/USDT": true},
		IntervalMs:      1000,
	}
}

func TestValidateAcceptsInBoundsOrder(t *testing.T) {
	g := New(testConfig())
	ok, reason := g.Validate("BTC/USDT", 50, 5)
	if !ok {
		t.Fatalf("expected order to be accepted, got rejection: %s", reason)
	}
}

func TestValidateRejectsNonWhitelistedSymbol(t *testing.T) {
	g := New(testConfig())
	ok, _ := g.Validate("DOGE/USDT", 50, 5)
	if ok {
		t.Fatal("expected non-whitelisted symbol to be rejected")
	}
}

func TestValidateRejectsLeverageOutOfRange(t *testing.T) {
	g := New(testConfig())
	if ok, _ := g.Validate("BTC/USDT", 50, 0); ok {
		t.Error("expected leverage 0 to be rejected")
	}
	if ok, _ := g.Validate("BTC/USDT", 50, 11); ok {
		t.Error("expected leverage above max to be rejected")
	}
}

func TestValidateRejectsNonPositiveCost(t *testing.T) {
	g := New(testConfig())
	if ok, _ := g.Validate("BTC/USDT", 0, 5); ok {
		t.Error("expected zero cost to be rejected")
	}
	if ok, _ := g.Validate("BTC/USDT", -10, 5); ok {
		t.Error("expected negative cost to be rejected")
	}
}

func TestValidateRejectsCostAboveMax(t *testing.T) {
	g := New(testConfig())
	if ok, _ := g.Validate("BTC/USDT", 150, 5); ok {
		t.Error("expected cost above max to be rejected")
	}
}

func TestValidateNormalizesSymbolBeforeWhitelistCheck(t *testing.T) {
	g := New(testConfig())
	ok, reason := g.Validate("BTC", 50, 5)
	if !ok {
		t.Fatalf("expected bare base symbol to normalize onto whitelist entry, got: %s", reason)
	}
}

func TestValidateIsTotalOverBoundaryValues(t *testing.T) {
	g := New(testConfig())
	cases := []struct {
		cost     float64
		leverage int
	}{
		{100, 10}, {100.01, 10}, {50, 1}, {50, 20},
	}
	for _, c := range cases {
		// Every combination must return a definite verdict, never panic.
		_, _ = g.Validate("BTC/USDT", c.cost, c.leverage)
	}
}
