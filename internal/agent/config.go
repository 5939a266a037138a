package agent

import "time"

const (
	DefaultMaxIterations = 10
	DefaultTimeout       = 5 * time.Minute
	DefaultLoopThreshold = 3
	DefaultMaxToolOutput = 32 << 10
)

// LoopConfig bounds one agent run. Zero values take the defaults above;
// a zero TokenBudget means no budget.
type LoopConfig struct {
	MaxIterations int
	TokenBudget   int
	Timeout       time.Duration

	// LoopThreshold is both the number of identical calls and the number
	// of consecutive failures of one tool that end the run.
	LoopThreshold int

	// MaxToolOutput caps each tool result fed back to the model, in bytes.
	MaxToolOutput int

	Temperature *float64
}

func (c LoopConfig) withDefaults() LoopConfig {
	c.MaxIterations = positiveOr(c.MaxIterations, DefaultMaxIterations)
	c.LoopThreshold = positiveOr(c.LoopThreshold, DefaultLoopThreshold)
	c.MaxToolOutput = positiveOr(c.MaxToolOutput, DefaultMaxToolOutput)
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	return c
}

func positiveOr(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}
