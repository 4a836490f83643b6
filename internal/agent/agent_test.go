package agent

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/crowdsim-cli/api/schemas"
	"github.com/xkilldash9x/crowdsim-cli/internal/config"
	"github.com/xkilldash9x/crowdsim-cli/internal/decision"
	"github.com/xkilldash9x/crowdsim-cli/internal/ledger"
	"github.com/xkilldash9x/crowdsim-cli/internal/stigmergy"
)

type deciderFunc func(ctx context.Context, persona schemas.Persona, observed schemas.ObservedContent) (schemas.Decision, error)

func (f deciderFunc) Decide(ctx context.Context, persona schemas.Persona, observed schemas.ObservedContent) (schemas.Decision, error) {
	return f(ctx, persona, observed)
}

func alwaysDecide(action schemas.DecisionAction, comment string) deciderFunc {
	return func(ctx context.Context, persona schemas.Persona, observed schemas.ObservedContent) (schemas.Decision, error) {
		return schemas.Decision{
			Action:      action,
			CommentText: comment,
			Reasoning:   "test decision",
			Sentiment:   schemas.BiasPositive,
		}, nil
	}
}

// fakeExecutor scripts executor behaviour step by step.
type fakeExecutor struct {
	observed    schemas.ObservedContent
	observeErr  error
	executeFn   func(dec schemas.Decision) (schemas.ActionResult, error)
	observes    int
	executes    int
	lastPriorCt int
}

func (f *fakeExecutor) Observe(ctx context.Context) (schemas.ObservedContent, error) {
	f.observes++
	if f.observeErr != nil {
		return schemas.ObservedContent{}, f.observeErr
	}
	return f.observed, nil
}

func (f *fakeExecutor) Execute(ctx context.Context, dec schemas.Decision) (schemas.ActionResult, error) {
	f.executes++
	return f.executeFn(dec)
}

func (f *fakeExecutor) Close(ctx context.Context) error { return nil }

func fastAgentConfig(maxSteps int) config.AgentConfig {
	return config.AgentConfig{
		MaxSteps:        maxSteps,
		MaxRuntime:      10 * time.Second,
		DecisionTimeout: time.Second,
		SleepMin:        time.Millisecond,
		SleepMax:        2 * time.Millisecond,
	}
}

func newTestAgent(t *testing.T, id string, exec *fakeExecutor, decider deciderFunc, comments *stigmergy.Log, cfg config.AgentConfig) (*Agent, *ledger.Writer) {
	t.Helper()
	lw, err := ledger.NewWriter(t.TempDir(), "run-test", id)
	require.NoError(t, err)
	t.Cleanup(func() { lw.Close() })

	persona := schemas.Persona{ID: "vegan-mom", Name: "Vegan Mom", EngagementLevel: 0.5}
	return New(id, schemas.RoleCrowd, persona, decider, exec, lw, comments, cfg, zap.NewNop()), lw
}

func TestAgentRunsAllSteps(t *testing.T) {
	exec := &fakeExecutor{
		observed: schemas.ObservedContent{PostID: "p1", Author: "x", Text: "post"},
		executeFn: func(dec schemas.Decision) (schemas.ActionResult, error) {
			return schemas.ActionResult{Action: dec.Action, Target: "p1", Success: true, Liked: true}, nil
		},
	}
	a, lw := newTestAgent(t, "crowd-1", exec, alwaysDecide(schemas.ActionLike, ""), stigmergy.NewLog(), fastAgentConfig(3))

	outcome := a.Run(context.Background())

	assert.Equal(t, schemas.AgentStopped, outcome.Log.State)
	assert.Equal(t, 3, outcome.Log.Steps)
	assert.Empty(t, outcome.Log.Error)
	assert.Equal(t, 3, outcome.Tally.LikesAttempted)
	assert.Equal(t, 3, outcome.Tally.LikesSucceeded)

	records, err := ledger.ReadAgentLedger(filepath.Join(lw.Dir(), "actions.jsonl"))
	require.NoError(t, err)
	require.Len(t, records, 9, "three records per cycle")
	for i, r := range records {
		assert.Equal(t, i+1, r.Seq)
		assert.Equal(t, schemas.StatusOK, r.Status)
	}
	assert.Equal(t, schemas.RecordObserve, records[0].Type)
	assert.Equal(t, schemas.RecordDecide, records[1].Type)
	assert.Equal(t, schemas.RecordAct, records[2].Type)
}

func TestAgentTransportErrorLeavesTrailingRecord(t *testing.T) {
	exec := &fakeExecutor{
		observed: schemas.ObservedContent{PostID: "p1", Text: "post"},
		executeFn: func(dec schemas.Decision) (schemas.ActionResult, error) {
			return schemas.ActionResult{}, &schemas.TransportError{Op: "browser like", Err: context.DeadlineExceeded}
		},
	}
	a, lw := newTestAgent(t, "hero", exec, alwaysDecide(schemas.ActionLike, ""), stigmergy.NewLog(), fastAgentConfig(5))

	outcome := a.Run(context.Background())

	assert.Equal(t, schemas.AgentErrored, outcome.Log.State)
	assert.NotEmpty(t, outcome.Log.Error)

	records, err := ledger.ReadAgentLedger(filepath.Join(lw.Dir(), "actions.jsonl"))
	require.NoError(t, err)
	require.NotEmpty(t, records)
	last := records[len(records)-1]
	assert.Equal(t, schemas.StatusError, last.Status)
	assert.Equal(t, len(records), last.Seq)
}

func TestAgentRejectedActRecordIsError(t *testing.T) {
	exec := &fakeExecutor{
		observed: schemas.ObservedContent{PostID: "p1", Text: "post"},
		executeFn: func(dec schemas.Decision) (schemas.ActionResult, error) {
			return schemas.ActionResult{Action: dec.Action, Target: "p1", Success: false, Detail: "surface rejected like"}, nil
		},
	}
	a, lw := newTestAgent(t, "crowd-6", exec, alwaysDecide(schemas.ActionLike, ""), stigmergy.NewLog(), fastAgentConfig(1))

	outcome := a.Run(context.Background())
	assert.Equal(t, schemas.AgentStopped, outcome.Log.State)

	records, err := ledger.ReadAgentLedger(filepath.Join(lw.Dir(), "actions.jsonl"))
	require.NoError(t, err)
	require.Len(t, records, 3)
	act := records[2]
	require.Equal(t, schemas.RecordAct, act.Type)
	assert.Equal(t, schemas.StatusError, act.Status)
	assert.Equal(t, false, act.Output["success"])
	assert.Equal(t, "surface rejected like", act.Output["detail"])
	assert.Equal(t, schemas.StatusOK, records[0].Status)
	assert.Equal(t, schemas.StatusOK, records[1].Status)
}

func TestAgentConsecutiveLogicalFailuresEndLoop(t *testing.T) {
	exec := &fakeExecutor{
		observed: schemas.ObservedContent{PostID: "p1", Text: "post"},
		executeFn: func(dec schemas.Decision) (schemas.ActionResult, error) {
			return schemas.ActionResult{Action: dec.Action, Success: false, Detail: "rejected"}, nil
		},
	}
	a, _ := newTestAgent(t, "crowd-2", exec, alwaysDecide(schemas.ActionLike, ""), stigmergy.NewLog(), fastAgentConfig(10))

	outcome := a.Run(context.Background())

	assert.Equal(t, schemas.AgentErrored, outcome.Log.State)
	assert.Equal(t, 3, exec.executes)
	assert.Contains(t, outcome.Log.Error, "consecutive failures")
}

func TestAgentCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	exec := &fakeExecutor{
		observed: schemas.ObservedContent{PostID: "p1", Text: "post"},
		executeFn: func(dec schemas.Decision) (schemas.ActionResult, error) {
			return schemas.ActionResult{Success: true}, nil
		},
	}
	a, _ := newTestAgent(t, "crowd-3", exec, alwaysDecide(schemas.ActionSkip, ""), stigmergy.NewLog(), fastAgentConfig(5))

	outcome := a.Run(ctx)
	assert.Equal(t, schemas.AgentErrored, outcome.Log.State)
	assert.Zero(t, exec.executes)
}

func TestAgentSharesCommentsThroughLog(t *testing.T) {
	comments := stigmergy.NewLog()

	first := &fakeExecutor{
		observed: schemas.ObservedContent{PostID: "p1", Text: "post"},
		executeFn: func(dec schemas.Decision) (schemas.ActionResult, error) {
			return schemas.ActionResult{Action: dec.Action, Success: true, Commented: true}, nil
		},
	}
	a1, _ := newTestAgent(t, "crowd-a", first, alwaysDecide(schemas.ActionComment, "love this"), comments, fastAgentConfig(1))
	a1.Run(context.Background())
	require.Equal(t, 1, comments.Len())

	var sawPrior []string
	second := &fakeExecutor{
		observed: schemas.ObservedContent{PostID: "p1", Text: "post"},
		executeFn: func(dec schemas.Decision) (schemas.ActionResult, error) {
			return schemas.ActionResult{Action: dec.Action, Success: true}, nil
		},
	}
	decider := deciderFunc(func(ctx context.Context, persona schemas.Persona, observed schemas.ObservedContent) (schemas.Decision, error) {
		sawPrior = observed.PriorComments
		return schemas.Decision{Action: schemas.ActionSkip, Reasoning: "done", Sentiment: schemas.BiasNeutral}, nil
	})
	a2, _ := newTestAgent(t, "crowd-b", second, decider, comments, fastAgentConfig(1))
	a2.Run(context.Background())

	assert.Equal(t, []string{"love this"}, sawPrior)
}

func TestAgentFallbackDecisionStillCompletes(t *testing.T) {
	exec := &fakeExecutor{
		observed: schemas.ObservedContent{PostID: "p1", Text: "post"},
		executeFn: func(dec schemas.Decision) (schemas.ActionResult, error) {
			return schemas.ActionResult{Action: dec.Action, Success: true}, nil
		},
	}
	decider := deciderFunc(func(ctx context.Context, persona schemas.Persona, observed schemas.ObservedContent) (schemas.Decision, error) {
		return decision.Fallback("decision call failed; skipping"), nil
	})
	a, lw := newTestAgent(t, "crowd-5", exec, decider, stigmergy.NewLog(), fastAgentConfig(2))

	outcome := a.Run(context.Background())

	assert.Equal(t, schemas.AgentStopped, outcome.Log.State)
	assert.Equal(t, 2, outcome.Log.Steps)

	records, err := ledger.ReadAgentLedger(filepath.Join(lw.Dir(), "actions.jsonl"))
	require.NoError(t, err)
	require.Len(t, records, 6)
	decide := records[1]
	assert.Equal(t, schemas.RecordDecide, decide.Type)
	assert.Equal(t, schemas.StatusOK, decide.Status)
	assert.Equal(t, "skip", decide.Output["action"])
	assert.Equal(t, true, decide.Output["fallback"])
}

func TestAgentRecoversFromPanic(t *testing.T) {
	exec := &fakeExecutor{
		observed: schemas.ObservedContent{PostID: "p1", Text: "post"},
		executeFn: func(dec schemas.Decision) (schemas.ActionResult, error) {
			panic("executor blew up")
		},
	}
	a, _ := newTestAgent(t, "crowd-4", exec, alwaysDecide(schemas.ActionLike, ""), stigmergy.NewLog(), fastAgentConfig(5))

	outcome := a.Run(context.Background())

	assert.Equal(t, schemas.AgentErrored, outcome.Log.State)
	assert.Contains(t, outcome.Log.Error, "panic")
}
