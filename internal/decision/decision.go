// Package decision turns (persona, observed content) into a structured
// reaction via a hosted language model, degrading to deterministic local
// behaviour whenever the external call cannot be trusted. A failed decision
// call never propagates to the caller; the agent loop always gets a Decision.
package decision

import (
	"context"

	"github.com/xkilldash9x/crowdsim-cli/api/schemas"
)

// Client is the single entry point the agent loop uses.
type Client interface {
	// Decide returns a decision for the observed content. The error return
	// is reserved for context cancellation; provider failures degrade to the
	// fallback decision instead.
	Decide(ctx context.Context, persona schemas.Persona, observed schemas.ObservedContent) (schemas.Decision, error)
}

// provider is one hosted text-generation backend. Implementations own their
// request/response plumbing and report capability quirks through caps().
type provider interface {
	name() string
	caps() capabilities
	generate(ctx context.Context, prompt string) (string, error)
}

// capabilities describes provider quirks so that model-specific branching
// stays out of the agent loop and the resilient client.
type capabilities struct {
	supportsTemperature bool
	supportsJSONFormat  bool
}
