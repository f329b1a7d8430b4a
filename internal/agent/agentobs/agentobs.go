// Package agentobs wraps an Agent with logging and tracing around its
// per-cycle Run call, grounded on the teacher's engineobs decorator over
// its Engine.Step.
package agentobs

import (
	"context"
	"time"

	"futures-trading-agent/internal/interfaces"
	"futures-trading-agent/internal/logger"
	"futures-trading-agent/internal/types"
)

type observableAgent struct {
	agent interfaces.Agent
}

var _ interfaces.Agent = (*observableAgent)(nil)

// Wrap wraps an Agent with observability middleware.
func Wrap(agent interfaces.Agent) interfaces.Agent {
	return &observableAgent{agent: agent}
}

func (oa *observableAgent) Run(ctx context.Context, symbols []types.Symbol) error {
	ctx, span := logger.StartSpan(ctx, "agent.Run")
	defer span.End()

	start := time.Now()
	logger.InfoSkip(ctx, 1, "Starting trading cycle", "symbols", symbols, "count", len(symbols))

	err := oa.agent.Run(ctx, symbols)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Trading cycle failed", err, "duration_ms", time.Since(start).Milliseconds())
		return err
	}

	logger.InfoSkip(ctx, 1, "Trading cycle completed", "duration_ms", time.Since(start).Milliseconds())
	return nil
}
