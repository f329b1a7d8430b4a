// Package position tracks the broker's open positions in memory between
// sync-cooldown windows, the way the teacher's engine.positionManager
// tracked average price and stop state between steps.
package position

import (
	"context"
	"sync"
	"time"

	"futures-trading-agent/internal/interfaces"
	"futures-trading-agent/internal/logger"
	"futures-trading-agent/internal/types"
)

const (
	defaultSyncCooldown = 5 * time.Second
	defaultMaxPositions = 5
)

// Manager is the Position Manager described in the specification: a cache
// of the broker's open positions, refreshed at most once per sync cooldown
// unless a caller forces a refresh immediately after placing an order.
type Manager struct {
	mu           sync.Mutex
	broker       interfaces.Broker
	positions    map[types.Symbol]types.Position
	lastSyncTime time.Time
	syncCooldown time.Duration
	maxPositions int
}

var _ interfaces.PositionManager = (*Manager)(nil)

// New creates a Manager backed by the given Broker.
func New(broker interfaces.Broker) *Manager {
	return &Manager{
		broker:       broker,
		positions:    make(map[types.Symbol]types.Position),
		syncCooldown: defaultSyncCooldown,
		maxPositions: defaultMaxPositions,
	}
}

// SyncPositions refreshes the cache from the broker, but is a no-op if the
// sync cooldown has not elapsed since the last sync.
func (m *Manager) SyncPositions(ctx context.Context, symbols []types.Symbol) error {
	m.mu.Lock()
	if time.Since(m.lastSyncTime) < m.syncCooldown {
		m.mu.Unlock()
		return nil
	}
	m.mu.Unlock()
	return m.ForceSync(ctx, symbols)
}

// ForceSync refreshes the cache immediately, bypassing the cooldown. The
// Tool Bridge calls this after every order placement so the LLM never sees
// stale positions.
func (m *Manager) ForceSync(ctx context.Context, symbols []types.Symbol) error {
	fresh, err := m.broker.GetPositions(ctx, symbols)
	if err != nil {
		logger.ErrorWithErr(ctx, "Position sync failed", err, "symbols", symbols)
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if len(symbols) == 0 {
		m.positions = make(map[types.Symbol]types.Position, len(fresh))
	} else {
		for _, s := range symbols {
			delete(m.positions, s.Normalize())
		}
	}
	for _, p := range fresh {
		m.positions[p.Symbol.Normalize()] = p
	}
	m.lastSyncTime = time.Now()

	logger.Debug(ctx, "Position cache refreshed", "symbols", symbols, "cached_count", len(m.positions))
	return nil
}

// GetPosition returns the cached position for a symbol, if any.
func (m *Manager) GetPosition(symbol types.Symbol) (types.Position, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.positions[symbol.Normalize()]
	return p, ok
}

// HasPosition reports whether any open position exists for the symbol.
func (m *Manager) HasPosition(symbol types.Symbol) bool {
	_, ok := m.GetPosition(symbol)
	return ok
}

// HasLongPosition reports whether an open long position exists for the symbol.
func (m *Manager) HasLongPosition(symbol types.Symbol) bool {
	p, ok := m.GetPosition(symbol)
	return ok && p.Side == types.PositionLong
}

// HasShortPosition reports whether an open short position exists for the symbol.
func (m *Manager) HasShortPosition(symbol types.Symbol) bool {
	p, ok := m.GetPosition(symbol)
	return ok && p.Side == types.PositionShort
}

// GetAllPositions returns a snapshot slice of all cached positions.
func (m *Manager) GetAllPositions() []types.Position {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]types.Position, 0, len(m.positions))
	for _, p := range m.positions {
		out = append(out, p)
	}
	return out
}

// GetPositionCount returns the number of open positions.
func (m *Manager) GetPositionCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.positions)
}

// GetTotalUnrealizedPnL sums unrealized PnL across all cached positions.
func (m *Manager) GetTotalUnrealizedPnL() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	var total float64
	for _, p := range m.positions {
		total += p.UnrealizedPnl
	}
	return total
}

// GetTotalMarginUsed sums amount*entry/leverage across all cached positions.
func (m *Manager) GetTotalMarginUsed() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	var total float64
	for _, p := range m.positions {
		if p.Leverage > 0 {
			total += p.Amount * p.EntryPrice / float64(p.Leverage)
		}
	}
	return total
}

// CanOpenPosition denies admission when the symbol already has an open
// position or the portfolio is already at the max position count.
func (m *Manager) CanOpenPosition(symbol types.Symbol) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.positions[symbol.Normalize()]; exists {
		return false
	}
	return len(m.positions) < m.maxPositions
}

// ShouldClosePosition reports whether the cached position for symbol has
// lost more than maxLossPercent of its notional.
func (m *Manager) ShouldClosePosition(symbol types.Symbol, maxLossPercent float64) bool {
	p, ok := m.GetPosition(symbol)
	if !ok || p.UnrealizedPnl >= 0 {
		return false
	}
	notional := p.Amount * p.EntryPrice
	if notional <= 0 {
		return false
	}
	lossPct := -p.UnrealizedPnl / notional
	return lossPct > maxLossPercent
}
