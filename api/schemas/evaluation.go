package schemas

import "time"

// -- Evaluation Schemas --

// ExpectedInput is the externally supplied engagement baseline. At least one
// metric must be present. Weights and perPersona blocks are optional.
type ExpectedInput struct {
	LikeCount    *float64                    `json:"likeCount,omitempty"`
	CommentCount *float64                    `json:"commentCount,omitempty"`
	LikeRate     *float64                    `json:"likeRate,omitempty"`
	CommentRate  *float64                    `json:"commentRate,omitempty"`
	Weights      map[string]float64          `json:"weights,omitempty"`
	PerPersona   map[string]PersonaExpected  `json:"perPersona,omitempty"`
}

// PersonaExpected is an optional per-persona slice of the baseline.
type PersonaExpected struct {
	LikeCount    *float64 `json:"likeCount,omitempty"`
	CommentCount *float64 `json:"commentCount,omitempty"`
}

// ObservedMetrics are the engagement figures computed from a run's ledgers,
// counting only act records with status ok.
type ObservedMetrics struct {
	TotalActs    int     `json:"totalActs"`
	LikeCount    int     `json:"likeCount"`
	CommentCount int     `json:"commentCount"`
	LikeRate     float64 `json:"likeRate"`
	CommentRate  float64 `json:"commentRate"`
}

// MetricComparison scores one metric against its expected value. Similarity
// is always within [0,1].
type MetricComparison struct {
	Expected   float64 `json:"expected"`
	Actual     float64 `json:"actual"`
	AbsError   float64 `json:"absError"`
	RelError   float64 `json:"relError"`
	Similarity float64 `json:"similarity"`
	Weight     float64 `json:"weight"`
}

// PersonaBreakdown compares one persona's observed acts against its expected slice.
type PersonaBreakdown struct {
	Observed ObservedMetrics             `json:"observed"`
	Metrics  map[string]MetricComparison `json:"metrics"`
}

// EvaluationResult is written once per evaluator invocation and never
// mutated; re-running produces a new document with a new EvaluationID.
type EvaluationResult struct {
	SchemaVersion     int                         `json:"schemaVersion"`
	EvaluationID      string                      `json:"evaluationId"`
	RunID             string                      `json:"runId,omitempty"`
	CreatedAt         time.Time                   `json:"createdAt"`
	ExpectedPath      string                      `json:"expectedPath,omitempty"`
	Expected          ExpectedInput               `json:"expected"`
	Actual            ObservedMetrics             `json:"actual"`
	Metrics           map[string]MetricComparison `json:"metrics"`
	OverallSimilarity float64                     `json:"overallSimilarity"`
	PerPersona        map[string]PersonaBreakdown `json:"perPersona,omitempty"`
}
