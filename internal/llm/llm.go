package llm

import (
	"context"
	"time"
)

// Client is a minimal text-generation interface to allow pluggable providers.
// Implementations must return within a bounded time or fail.
type Client interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Options holds generation settings shared by all providers.
type Options struct {
	Model       string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
}

// DefaultTimeout bounds a single generation call when Options.Timeout is unset.
const DefaultTimeout = 120 * time.Second

func (o Options) timeout() time.Duration {
	if o.Timeout <= 0 {
		return DefaultTimeout
	}
	return o.Timeout
}
