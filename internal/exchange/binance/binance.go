// Package binance adapts github.com/adshao/go-binance/v2's USDT-M futures
// client to the interfaces.Exchange wire contract, the way the teacher's
// zerodha adapter sat behind internal/broker/zerodha/izerodha.go: all venue
// SDK types stop at this package's boundary.
package binance

import (
	"context"
	"fmt"
	"math"
	"strconv"

	"github.com/adshao/go-binance/v2/futures"

	"futures-trading-agent/internal/interfaces"
	"futures-trading-agent/internal/logger"
	"futures-trading-agent/internal/types"
)

// Adapter implements interfaces.Exchange against Binance USDT-M futures.
type Adapter struct {
	client *futures.Client
}

var _ interfaces.Exchange = (*Adapter)(nil)

// New builds an Adapter from API credentials.
func New(apiKey, secretKey string) *Adapter {
	return &Adapter{client: futures.NewClient(apiKey, secretKey)}
}

// toFloat coerces a stringly-typed SDK numeric field. Non-finite or
// unparsable values become 0, per the specification's loose-numeric-
// handling design note: this prevents a malformed venue field from
// panicking the PnL/sizing math upstream.
func toFloat(s string) float64 {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}

func venueSymbol(s types.Symbol) string {
	sym := string(s.Normalize())
	out := make([]byte, 0, len(sym))
	for i := 0; i < len(sym); i++ {
		if sym[i] == '/' {
			continue
		}
		if sym[i] == ':' {
			break
		}
		out = append(out, sym[i])
	}
	return string(out)
}

// Ticker returns the last traded price for symbol.
func (a *Adapter) Ticker(ctx context.Context, symbol types.Symbol) (float64, error) {
	prices, err := a.client.NewListPricesService().Symbol(venueSymbol(symbol)).Do(ctx)
	if err != nil {
		return 0, fmt.Errorf("fetch ticker for %s: %w", symbol, err)
	}
	if len(prices) == 0 {
		return 0, fmt.Errorf("no ticker returned for %s", symbol)
	}
	return toFloat(prices[0].Price), nil
}

// CreateOrder submits a main, protective or rollback order. Protective
// orders arrive as reduce-only requests carrying a trigger price; those are
// routed as STOP_MARKET so the venue enforces the trigger rather than
// filling immediately. Rollback and close orders are reduce-only with no
// price and go out as plain market orders.
func (a *Adapter) CreateOrder(ctx context.Context, req types.OrderRequest) (string, error) {
	side := futures.SideTypeBuy
	if req.Side == types.SideSell {
		side = futures.SideTypeSell
	}

	svc := a.client.NewCreateOrderService().
		Symbol(venueSymbol(req.Symbol)).
		Side(side).
		Quantity(strconv.FormatFloat(req.Amount, 'f', -1, 64)).
		ReduceOnly(req.ReduceOnly)

	switch {
	case req.ReduceOnly && req.Price > 0:
		// Stop-loss / take-profit carrying a trigger price.
		svc = svc.Type(futures.OrderTypeStopMarket).
			StopPrice(strconv.FormatFloat(req.Price, 'f', -1, 64))
	case req.Type == types.OrderLimit:
		svc = svc.Type(futures.OrderTypeLimit).
			TimeInForce(futures.TimeInForceTypeGTC).
			Price(strconv.FormatFloat(req.Price, 'f', -1, 64))
	default:
		svc = svc.Type(futures.OrderTypeMarket)
	}

	resp, err := svc.Do(ctx)
	if err != nil {
		return "", fmt.Errorf("create order for %s: %w", req.Symbol, err)
	}
	return strconv.FormatInt(resp.OrderID, 10), nil
}

// FetchPositions returns the venue's open futures positions, optionally
// filtered to symbols.
func (a *Adapter) FetchPositions(ctx context.Context, symbols []types.Symbol) ([]types.Position, error) {
	risks, err := a.client.NewGetPositionRiskService().Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch position risk: %w", err)
	}

	filter := make(map[string]bool, len(symbols))
	for _, s := range symbols {
		filter[venueSymbol(s)] = true
	}

	out := make([]types.Position, 0, len(risks))
	for _, r := range risks {
		if len(filter) > 0 && !filter[r.Symbol] {
			continue
		}
		amount := toFloat(r.PositionAmt)
		if amount == 0 {
			continue
		}
		side := types.PositionLong
		if amount < 0 {
			side = types.PositionShort
			amount = -amount
		}
		out = append(out, types.Position{
			Symbol:           types.Symbol(r.Symbol).Normalize(),
			Side:             side,
			Amount:           amount,
			EntryPrice:       toFloat(r.EntryPrice),
			MarkPrice:        toFloat(r.MarkPrice),
			UnrealizedPnl:    toFloat(r.UnRealizedProfit),
			Leverage:         int(toFloat(r.Leverage)),
			LiquidationPrice: toFloat(r.LiquidationPrice),
		})
	}
	return out, nil
}

// FetchBalance aggregates the venue's USDT-margined futures balance and
// account-level margin usage into an AccountSnapshot.
func (a *Adapter) FetchBalance(ctx context.Context) (types.AccountSnapshot, error) {
	balances, err := a.client.NewGetBalanceService().Do(ctx)
	if err != nil {
		return types.AccountSnapshot{}, fmt.Errorf("fetch balance: %w", err)
	}

	for _, b := range balances {
		if b.Asset != "USDT" {
			continue
		}
		total := toFloat(b.Balance)
		available := toFloat(b.AvailableBalance)
		used := total - available
		if used < 0 {
			used = 0
		}
		return types.AccountSnapshot{
			Balance:         total,
			UsedMargin:      used,
			AvailableMargin: available,
			TotalMargin:     used,
		}, nil
	}

	// Missing currency lookup: the zero triple, per the loose-numeric-
	// handling design note, rather than an error that would abort a cycle.
	logger.Warn(ctx, "USDT balance entry not found in venue response")
	return types.AccountSnapshot{}, nil
}

// SetLeverage is idempotent at the venue; "no change" responses are not
// treated as errors by callers (ExchangeBroker logs them as warnings).
func (a *Adapter) SetLeverage(ctx context.Context, symbol types.Symbol, leverage int) error {
	_, err := a.client.NewChangeLeverageService().
		Symbol(venueSymbol(symbol)).
		Leverage(leverage).
		Do(ctx)
	return err
}

// SetMarginMode is idempotent at the venue for the same reason.
func (a *Adapter) SetMarginMode(ctx context.Context, symbol types.Symbol, mode types.MarginMode) error {
	marginType := futures.MarginTypeIsolated
	if mode == types.MarginCross {
		marginType = futures.MarginTypeCrossed
	}
	return a.client.NewChangeMarginTypeService().
		Symbol(venueSymbol(symbol)).
		MarginType(marginType).
		Do(ctx)
}
