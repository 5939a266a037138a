package agent

import (
	"context"

	"github.com/flemzord/tgmcp/internal/provider"
)

// Observer receives loop events. Metrics, tracing and the live event
// stream are observers.
type Observer interface {
	// ToolStarted is called before a tool runs. The returned context is
	// used for the call, so observers can attach spans to it.
	ToolStarted(ctx context.Context, call provider.ToolCall) context.Context

	// ToolFinished is called with the context returned by ToolStarted.
	ToolFinished(ctx context.Context, rec ToolCallRecord)

	// Completed is called after every provider response.
	Completed(ctx context.Context, iteration int, resp provider.CompletionResponse)
}

// Observers fans events out to several observers.
type Observers []Observer

// ToolStarted implements Observer.
func (o Observers) ToolStarted(ctx context.Context, call provider.ToolCall) context.Context {
	for _, obs := range o {
		ctx = obs.ToolStarted(ctx, call)
	}
	return ctx
}

// ToolFinished implements Observer.
func (o Observers) ToolFinished(ctx context.Context, rec ToolCallRecord) {
	for _, obs := range o {
		obs.ToolFinished(ctx, rec)
	}
}

// Completed implements Observer.
func (o Observers) Completed(ctx context.Context, iteration int, resp provider.CompletionResponse) {
	for _, obs := range o {
		obs.Completed(ctx, iteration, resp)
	}
}
