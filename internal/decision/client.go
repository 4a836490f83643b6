package decision

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/xkilldash9x/crowdsim-cli/api/schemas"
	"github.com/xkilldash9x/crowdsim-cli/internal/config"
)

// resilientClient wraps a provider with a bounded timeout, retry with
// backoff, response normalization, and the fallback path.
type resilientClient struct {
	provider provider
	goal     string
	timeout  time.Duration
	logger   *zap.Logger
}

// NewClient builds the decision client for the configured provider. In dry-run
// mode no provider is constructed and no outbound call is ever made.
func NewClient(cfg *config.Config, logger *zap.Logger) (Client, error) {
	if cfg.Simulation.DryRun {
		return NewRuleClient(cfg.Simulation.Goal), nil
	}

	var (
		p   provider
		err error
	)
	switch cfg.LLM.Provider {
	case "openai":
		p, err = newOpenAIProvider(cfg.LLM)
	case "gemini":
		p, err = newGeminiProvider(cfg.LLM)
	default:
		return nil, schemas.NewConfigError("llm.provider", fmt.Sprintf("unknown provider %q", cfg.LLM.Provider))
	}
	if err != nil {
		return nil, err
	}

	timeout := cfg.Agent.DecisionTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &resilientClient{
		provider: p,
		goal:     cfg.Simulation.Goal,
		timeout:  timeout,
		logger:   logger.Named("decision").With(zap.String("provider", p.name())),
	}, nil
}

// Decide asks the provider for a reaction and normalizes the response. Any
// transport failure, timeout, or malformed payload degrades to the fallback
// skip decision; only cancellation of the parent context is returned as an
// error.
func (c *resilientClient) Decide(ctx context.Context, persona schemas.Persona, observed schemas.ObservedContent) (schemas.Decision, error) {
	if err := ctx.Err(); err != nil {
		return schemas.Decision{}, err
	}

	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	prompt := BuildPrompt(persona, observed, c.goal)
	if !c.provider.caps().supportsJSONFormat {
		prompt += "\nReturn only the JSON object, with no surrounding prose."
	}

	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = c.timeout
	b.MaxInterval = 5 * time.Second

	var raw string
	operation := func() error {
		var err error
		raw, err = c.provider.generate(callCtx, prompt)
		if err != nil {
			if callCtx.Err() != nil {
				return backoff.Permanent(err)
			}
			return err
		}
		return nil
	}

	if err := backoff.Retry(operation, backoff.WithContext(b, callCtx)); err != nil {
		// The run must never abort because one decision call failed.
		dErr := &schemas.DecisionError{Provider: c.provider.name(), Err: err}
		c.logger.Warn("Decision call failed, using fallback",
			zap.String("persona", persona.ID),
			zap.Error(dErr))
		if parentErr := ctx.Err(); parentErr != nil && errors.Is(err, parentErr) {
			return schemas.Decision{}, parentErr
		}
		return Fallback("decision call failed; skipping"), nil
	}

	parsed, ok := ExtractJSON(raw)
	if !ok {
		c.logger.Warn("Malformed decision payload, using fallback",
			zap.String("persona", persona.ID),
			zap.String("raw_response", truncate(raw, 400)))
		return Fallback("malformed decision payload; skipping"), nil
	}

	return Normalize(parsed, persona.ReactionBias), nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// Fallback is the deterministic decision used whenever the external call
// fails, times out, or returns garbage.
func Fallback(reason string) schemas.Decision {
	return schemas.Decision{
		Action:    schemas.ActionSkip,
		Reasoning: reason,
		Sentiment: schemas.BiasNeutral,
		Fallback:  true,
	}
}
