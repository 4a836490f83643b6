// Package evaluate scores a finished run's ledgers against an externally
// supplied engagement baseline. Evaluation is read-only with respect to the
// run: each invocation writes a fresh, immutable result document.
package evaluate

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/crowdsim-cli/api/schemas"
	"github.com/xkilldash9x/crowdsim-cli/internal/ledger"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// defaultWeights apply when the baseline carries no weights block.
var defaultWeights = map[string]float64{
	"likeCount":    0.5,
	"commentCount": 0.5,
}

// LoadExpected reads and validates the baseline document.
func LoadExpected(path string) (schemas.ExpectedInput, error) {
	var expected schemas.ExpectedInput
	data, err := os.ReadFile(path)
	if err != nil {
		return expected, &schemas.EvaluationInputError{Reason: fmt.Sprintf("read expected input: %v", err)}
	}
	if err := json.Unmarshal(data, &expected); err != nil {
		return expected, &schemas.EvaluationInputError{Reason: fmt.Sprintf("parse expected input %s: %v", filepath.Base(path), err)}
	}
	if expected.LikeCount == nil && expected.CommentCount == nil &&
		expected.LikeRate == nil && expected.CommentRate == nil {
		return expected, &schemas.EvaluationInputError{Reason: "expected input names no metric"}
	}
	for name, w := range expected.Weights {
		if w < 0 {
			return expected, &schemas.EvaluationInputError{Reason: fmt.Sprintf("weight for %s is negative", name)}
		}
	}
	return expected, nil
}

// ResolveRunDir picks the run directory to evaluate. Explicit dir wins, then
// run id under the output dir, then the run document's own directory, then
// the most recently modified run under the output dir.
func ResolveRunDir(outputDir, runDir, runID, simulationFile string) (string, error) {
	switch {
	case runDir != "":
		return runDir, nil
	case runID != "":
		return filepath.Join(outputDir, runID), nil
	case simulationFile != "":
		return filepath.Dir(simulationFile), nil
	}
	dir, err := ledger.LatestRunDir(outputDir)
	if err != nil {
		return "", &schemas.EvaluationInputError{Reason: fmt.Sprintf("no run to evaluate: %v", err)}
	}
	return dir, nil
}

// Run evaluates one run directory against the baseline and persists the
// result document next to the run document.
func Run(runDir, expectedPath string, logger *zap.Logger) (schemas.EvaluationResult, error) {
	expected, err := LoadExpected(expectedPath)
	if err != nil {
		return schemas.EvaluationResult{}, err
	}

	ledgers, err := ledger.ReadRunLedgers(runDir)
	if err != nil || len(ledgers) == 0 {
		return schemas.EvaluationResult{}, &schemas.EvaluationInputError{
			Reason: fmt.Sprintf("no agent ledgers under %s", runDir),
		}
	}

	var all []schemas.ActionRecord
	for _, records := range ledgers {
		all = append(all, records...)
	}
	actual := Observe(all)

	result := schemas.EvaluationResult{
		SchemaVersion: schemas.SchemaVersion,
		EvaluationID:  uuid.NewString(),
		CreatedAt:     time.Now().UTC(),
		ExpectedPath:  expectedPath,
		Expected:      expected,
		Actual:        actual,
		Metrics:       map[string]schemas.MetricComparison{},
	}

	doc, docErr := readRunDocument(runDir)
	if docErr == nil {
		result.RunID = doc.RunID
	}

	weights := expected.Weights
	if len(weights) == 0 {
		weights = defaultWeights
	}

	if expected.LikeCount != nil {
		result.Metrics["likeCount"] = compareCount(*expected.LikeCount, float64(actual.LikeCount), weights["likeCount"])
	}
	if expected.CommentCount != nil {
		result.Metrics["commentCount"] = compareCount(*expected.CommentCount, float64(actual.CommentCount), weights["commentCount"])
	}
	if expected.LikeRate != nil {
		result.Metrics["likeRate"] = compareRate(*expected.LikeRate, actual.LikeRate, weights["likeRate"])
	}
	if expected.CommentRate != nil {
		result.Metrics["commentRate"] = compareRate(*expected.CommentRate, actual.CommentRate, weights["commentRate"])
	}
	result.OverallSimilarity = overall(result.Metrics)

	if len(expected.PerPersona) > 0 && docErr == nil {
		result.PerPersona = perPersona(expected.PerPersona, ledgers, doc)
	}

	path := filepath.Join(runDir, fmt.Sprintf("evaluation_%s.json", result.EvaluationID[:8]))
	if err := ledger.WriteJSONAtomic(path, result); err != nil {
		return result, err
	}
	logger.Info("Evaluation written",
		zap.String("path", path),
		zap.Float64("overall_similarity", result.OverallSimilarity))
	return result, nil
}

// Observe derives engagement figures from ledger records, counting only
// successful act records.
func Observe(records []schemas.ActionRecord) schemas.ObservedMetrics {
	var m schemas.ObservedMetrics
	for _, r := range records {
		if r.Type != schemas.RecordAct || r.Status != schemas.StatusOK {
			continue
		}
		success, _ := r.Output["success"].(bool)
		if !success {
			continue
		}
		m.TotalActs++
		if liked, _ := r.Output["liked"].(bool); liked {
			m.LikeCount++
		}
		if commented, _ := r.Output["commented"].(bool); commented {
			m.CommentCount++
		}
	}
	if m.TotalActs > 0 {
		m.LikeRate = float64(m.LikeCount) / float64(m.TotalActs)
		m.CommentRate = float64(m.CommentCount) / float64(m.TotalActs)
	}
	return m
}

// compareCount scores an absolute count: similarity decays with the relative
// error against the expected value, floored at zero.
func compareCount(expected, actual, weight float64) schemas.MetricComparison {
	absErr := math.Abs(actual - expected)
	relErr := absErr / math.Max(expected, 1)
	return schemas.MetricComparison{
		Expected:   expected,
		Actual:     actual,
		AbsError:   absErr,
		RelError:   relErr,
		Similarity: clamp01(1 - relErr),
		Weight:     weight,
	}
}

// compareRate scores a rate in [0,1]: the absolute difference is already the
// natural error scale.
func compareRate(expected, actual, weight float64) schemas.MetricComparison {
	absErr := math.Abs(actual - expected)
	return schemas.MetricComparison{
		Expected:   expected,
		Actual:     actual,
		AbsError:   absErr,
		RelError:   absErr,
		Similarity: clamp01(1 - absErr),
		Weight:     weight,
	}
}

func overall(metrics map[string]schemas.MetricComparison) float64 {
	var weighted, total float64
	for _, m := range metrics {
		weighted += m.Similarity * m.Weight
		total += m.Weight
	}
	if total == 0 {
		// All-zero weights degenerate to an unweighted mean.
		if len(metrics) == 0 {
			return 0
		}
		var sum float64
		for _, m := range metrics {
			sum += m.Similarity
		}
		return sum / float64(len(metrics))
	}
	return weighted / total
}

func perPersona(expected map[string]schemas.PersonaExpected, ledgers map[string][]schemas.ActionRecord, doc schemas.RunDocument) map[string]schemas.PersonaBreakdown {
	if doc.Result == nil {
		return nil
	}
	personaOf := make(map[string]string, len(doc.Result.AgentLogs))
	for _, log := range doc.Result.AgentLogs {
		personaOf[log.AgentID] = log.PersonaID
	}

	grouped := map[string][]schemas.ActionRecord{}
	for agentID, records := range ledgers {
		if personaID, ok := personaOf[agentID]; ok {
			grouped[personaID] = append(grouped[personaID], records...)
		}
	}

	out := make(map[string]schemas.PersonaBreakdown, len(expected))
	for personaID, exp := range expected {
		observed := Observe(grouped[personaID])
		metrics := map[string]schemas.MetricComparison{}
		if exp.LikeCount != nil {
			metrics["likeCount"] = compareCount(*exp.LikeCount, float64(observed.LikeCount), 1)
		}
		if exp.CommentCount != nil {
			metrics["commentCount"] = compareCount(*exp.CommentCount, float64(observed.CommentCount), 1)
		}
		out[personaID] = schemas.PersonaBreakdown{Observed: observed, Metrics: metrics}
	}
	return out
}

func readRunDocument(runDir string) (schemas.RunDocument, error) {
	var doc schemas.RunDocument
	data, err := os.ReadFile(filepath.Join(runDir, "simulation.json"))
	if err != nil {
		return doc, err
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return doc, err
	}
	return doc, nil
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
