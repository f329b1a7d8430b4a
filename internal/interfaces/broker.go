// Package interfaces holds the contracts shared across the trading agent's
// components so implementations stay substitutable at construction time.
package interfaces

import (
	"context"

	"futures-trading-agent/internal/types"
)

// Broker is the polymorphic contract implemented by both the live
// ExchangeBroker and the in-memory SimulationBroker.
type Broker interface {
	PlaceOrder(ctx context.Context, req types.OrderRequest) (types.OrderResult, error)
	GetPositions(ctx context.Context, symbols []types.Symbol) ([]types.Position, error)
	GetAccountInfo(ctx context.Context) (types.AccountSnapshot, error)
	SetLeverage(ctx context.Context, symbol types.Symbol, leverage int) error
	SetMarginMode(ctx context.Context, symbol types.Symbol, mode types.MarginMode) error
}

// Exchange is the abstract wire contract a concrete venue adapter satisfies.
// ExchangeBroker is written against this interface, never against a
// specific SDK, so the venue adapter stays swappable.
type Exchange interface {
	Ticker(ctx context.Context, symbol types.Symbol) (lastPrice float64, err error)
	CreateOrder(ctx context.Context, req types.OrderRequest) (orderID string, err error)
	FetchPositions(ctx context.Context, symbols []types.Symbol) ([]types.Position, error)
	FetchBalance(ctx context.Context) (types.AccountSnapshot, error)
	SetLeverage(ctx context.Context, symbol types.Symbol, leverage int) error
	SetMarginMode(ctx context.Context, symbol types.Symbol, mode types.MarginMode) error
}
