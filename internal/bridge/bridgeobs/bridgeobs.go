// Package bridgeobs wraps a ToolBridge's tools with logging and tracing
// around every invocation, following the same decorator idiom as
// brokerobs and llmobs.
package bridgeobs

import (
	"context"

	"futures-trading-agent/internal/interfaces"
	"futures-trading-agent/internal/logger"
)

type observableBridge struct {
	bridge interfaces.ToolBridge
}

var _ interfaces.ToolBridge = (*observableBridge)(nil)

// Wrap wraps a ToolBridge so every tool it exposes logs and traces its
// invocations.
func Wrap(bridge interfaces.ToolBridge) interfaces.ToolBridge {
	return &observableBridge{bridge: bridge}
}

func (ob *observableBridge) Tools() []interfaces.Tool {
	tools := ob.bridge.Tools()
	wrapped := make([]interfaces.Tool, len(tools))
	for i, t := range tools {
		wrapped[i] = &observableTool{tool: t}
	}
	return wrapped
}

type observableTool struct {
	tool interfaces.Tool
}

var _ interfaces.Tool = (*observableTool)(nil)

func (ot *observableTool) Name() string                { return ot.tool.Name() }
func (ot *observableTool) Description() string         { return ot.tool.Description() }
func (ot *observableTool) ParamSchema() map[string]any { return ot.tool.ParamSchema() }

func (ot *observableTool) Invoke(ctx context.Context, args map[string]any) (map[string]any, error) {
	ctx, span := logger.StartSpan(ctx, "tool."+ot.tool.Name())
	defer span.End()

	logger.DebugSkip(ctx, 1, "Invoking tool", "tool", ot.tool.Name(), "args", args)

	result, err := ot.tool.Invoke(ctx, args)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Tool invocation failed", err, "tool", ot.tool.Name())
		return result, err
	}

	logger.DebugSkip(ctx, 1, "Tool invocation completed", "tool", ot.tool.Name())
	return result, nil
}
