package schemas

import "fmt"

// The engine's error taxonomy. Only ConfigError and EvaluationInputError ever
// reach the CLI as process failures; everything else is contained at the
// agent boundary and reflected as data in the ledger and run document.

// ConfigError marks invalid input configuration. Fatal before any run
// artifact is created.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("invalid configuration: %s", e.Reason)
	}
	return fmt.Sprintf("invalid configuration: %s: %s", e.Field, e.Reason)
}

// NewConfigError builds a ConfigError for a specific field.
func NewConfigError(field, reason string) *ConfigError {
	return &ConfigError{Field: field, Reason: reason}
}

// DecisionError marks a failed, timed-out, or malformed external decision
// call. Recovered locally via the fallback decision; never propagates past
// the decision client.
type DecisionError struct {
	Provider string
	Err      error
}

func (e *DecisionError) Error() string {
	return fmt.Sprintf("decision call failed (provider %s): %v", e.Provider, e.Err)
}

func (e *DecisionError) Unwrap() error { return e.Err }

// TransportError marks an executor-level failure that makes further actions
// by one agent impossible (session crash, surface unreachable). Fatal to that
// agent only; the orchestrator records it and continues.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("executor transport failure during %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// EvaluationInputError marks a missing ledger or malformed expected document.
// Fatal to the evaluator invocation only.
type EvaluationInputError struct {
	Reason string
}

func (e *EvaluationInputError) Error() string {
	return fmt.Sprintf("evaluation input error: %s", e.Reason)
}
