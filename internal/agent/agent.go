// Package agent runs one persona through the observe-decide-act loop,
// leaving a complete ledger trail behind regardless of how the loop ends.
package agent

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/crowdsim-cli/api/schemas"
	"github.com/xkilldash9x/crowdsim-cli/internal/config"
	"github.com/xkilldash9x/crowdsim-cli/internal/decision"
	"github.com/xkilldash9x/crowdsim-cli/internal/executor"
	"github.com/xkilldash9x/crowdsim-cli/internal/ledger"
	"github.com/xkilldash9x/crowdsim-cli/internal/stigmergy"
)

// maxConsecutiveFailures is how many failed cycles in a row an agent
// tolerates before giving up on its loop.
const maxConsecutiveFailures = 3

// Tally counts attempted and succeeded writes for run aggregation.
type Tally struct {
	LikesAttempted    int
	LikesSucceeded    int
	CommentsAttempted int
	CommentsSucceeded int
	FollowsAttempted  int
	FollowsSucceeded  int
}

// Merge folds another tally into this one.
func (t *Tally) Merge(other Tally) {
	t.LikesAttempted += other.LikesAttempted
	t.LikesSucceeded += other.LikesSucceeded
	t.CommentsAttempted += other.CommentsAttempted
	t.CommentsSucceeded += other.CommentsSucceeded
	t.FollowsAttempted += other.FollowsAttempted
	t.FollowsSucceeded += other.FollowsSucceeded
}

// Outcome is everything the orchestrator needs from a finished agent.
type Outcome struct {
	Log   schemas.AgentLog
	Tally Tally
}

// Agent is one simulated audience member. Construct per run; Run may be
// called once.
type Agent struct {
	id       string
	role     schemas.AgentRole
	persona  schemas.Persona
	decider  decision.Client
	exec     executor.Executor
	ledger   *ledger.Writer
	comments *stigmergy.Log
	cfg      config.AgentConfig
	logger   *zap.Logger
	rng      *rand.Rand
}

func New(id string, role schemas.AgentRole, persona schemas.Persona, decider decision.Client, exec executor.Executor, lw *ledger.Writer, comments *stigmergy.Log, cfg config.AgentConfig, logger *zap.Logger) *Agent {
	return &Agent{
		id:       id,
		role:     role,
		persona:  persona,
		decider:  decider,
		exec:     exec,
		ledger:   lw,
		comments: comments,
		cfg:      cfg,
		logger:   logger.Named("agent").With(zap.String("agent_id", id), zap.String("persona", persona.ID)),
		rng:      rand.New(rand.NewSource(time.Now().UnixNano() ^ int64(len(id)))),
	}
}

// Run drives the agent until it exhausts its steps, hits its deadline, or
// errors out. It never panics outward and never returns an error: every way
// the loop can end is captured in the outcome and the ledger.
func (a *Agent) Run(ctx context.Context) (outcome Outcome) {
	if a.cfg.MaxRuntime > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.cfg.MaxRuntime)
		defer cancel()
	}

	state := schemas.AgentStarting
	steps := 0
	var tally Tally
	var loopErr string

	defer func() {
		if r := recover(); r != nil {
			a.logger.Error("Agent panicked", zap.Any("panic", r))
			state = schemas.AgentErrored
			loopErr = fmt.Sprintf("panic: %v", r)
			a.recordError(schemas.RecordAct, steps, loopErr)
		}
		if state != schemas.AgentErrored {
			state = schemas.AgentStopped
		}
		outcome = Outcome{
			Log: schemas.AgentLog{
				AgentID:   a.id,
				Role:      a.role,
				PersonaID: a.persona.ID,
				State:     state,
				Steps:     steps,
				Error:     loopErr,
			},
			Tally: tally,
		}
	}()

	a.logger.Info("Agent starting", zap.String("role", string(a.role)), zap.Int("max_steps", a.cfg.MaxSteps))

	consecutive := 0
	for steps < a.cfg.MaxSteps {
		if err := ctx.Err(); err != nil {
			state = schemas.AgentErrored
			loopErr = deadlineReason(err)
			a.recordError(schemas.RecordObserve, steps, loopErr)
			return
		}

		state = schemas.AgentObserving
		observed, err := a.exec.Observe(ctx)
		if err != nil {
			if isFatal(ctx, err) {
				state = schemas.AgentErrored
				loopErr = err.Error()
				a.recordError(schemas.RecordObserve, steps, loopErr)
				return
			}
			a.logger.Warn("Observe failed", zap.Error(err))
			a.recordError(schemas.RecordObserve, steps, err.Error())
			consecutive++
			if consecutive >= maxConsecutiveFailures {
				state = schemas.AgentErrored
				loopErr = fmt.Sprintf("%d consecutive failures, last: %v", consecutive, err)
				return
			}
			steps++
			if !a.rest(ctx) {
				state = schemas.AgentErrored
				loopErr = deadlineReason(ctx.Err())
				return
			}
			continue
		}
		observed.PriorComments = a.priorComments()
		a.recordObserve(steps, observed)

		state = schemas.AgentDeciding
		dec, err := a.decider.Decide(ctx, a.persona, observed)
		if err != nil {
			// Decide only errors on cancellation; call failures fall back.
			state = schemas.AgentErrored
			loopErr = err.Error()
			a.recordError(schemas.RecordDecide, steps, loopErr)
			return
		}
		a.recordDecide(steps, dec)

		state = schemas.AgentActing
		result, err := a.exec.Execute(ctx, dec)
		if err != nil {
			state = schemas.AgentErrored
			loopErr = err.Error()
			a.recordError(schemas.RecordAct, steps, loopErr)
			return
		}
		a.recordAct(steps, dec, result)
		tally.Merge(tallyFor(dec, result))

		if result.Success && result.Commented && dec.CommentText != "" {
			a.comments.Append(stigmergy.Comment{
				AgentID:   a.id,
				PersonaID: a.persona.ID,
				Text:      dec.CommentText,
			})
		}
		if result.Success {
			consecutive = 0
		} else {
			consecutive++
			if consecutive >= maxConsecutiveFailures {
				state = schemas.AgentErrored
				loopErr = fmt.Sprintf("%d consecutive failures, last: %s", consecutive, result.Detail)
				steps++
				return
			}
		}

		steps++
		if steps >= a.cfg.MaxSteps {
			break
		}
		state = schemas.AgentResting
		if !a.rest(ctx) {
			state = schemas.AgentErrored
			loopErr = deadlineReason(ctx.Err())
			return
		}
	}

	a.logger.Info("Agent finished", zap.Int("steps", steps))
	return
}

// rest sleeps a randomized interval, shortened for highly engaged personas.
// Returns false if the context ended mid-rest.
func (a *Agent) rest(ctx context.Context) bool {
	min, max := a.cfg.SleepMin, a.cfg.SleepMax
	if max <= min {
		max = min + time.Millisecond
	}
	d := min + time.Duration(a.rng.Int63n(int64(max-min)))
	if level := a.persona.EngagementLevel; level > 0 {
		// 0.5 engagement keeps the full interval; 1.0 halves it.
		d = time.Duration(float64(d) * (1.5 - level))
	}

	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func (a *Agent) priorComments() []string {
	snapshot := a.comments.Snapshot()
	texts := make([]string, 0, len(snapshot))
	for _, c := range snapshot {
		texts = append(texts, c.Text)
	}
	return texts
}

func (a *Agent) recordObserve(step int, observed schemas.ObservedContent) {
	output := map[string]any{
		"postId":        observed.PostID,
		"author":        observed.Author,
		"text":          observed.Text,
		"priorComments": len(observed.PriorComments),
	}
	var artifacts []string
	if observed.Screenshot != "" {
		artifacts = append(artifacts, observed.Screenshot)
	}
	a.record(schemas.RecordObserve, schemas.StatusOK, step, nil, output, artifacts)
}

func (a *Agent) recordDecide(step int, dec schemas.Decision) {
	output := map[string]any{
		"action":    string(dec.Action),
		"sentiment": string(dec.Sentiment),
		"reasoning": dec.Reasoning,
		"fallback":  dec.Fallback,
	}
	if dec.CommentText != "" {
		output["commentText"] = dec.CommentText
	}
	a.record(schemas.RecordDecide, schemas.StatusOK, step, nil, output, nil)
}

func (a *Agent) recordAct(step int, dec schemas.Decision, result schemas.ActionResult) {
	input := map[string]any{"action": string(dec.Action)}
	output := map[string]any{
		"action":  string(result.Action),
		"target":  result.Target,
		"success": result.Success,
	}
	if result.Liked {
		output["liked"] = true
	}
	if result.Commented {
		output["commented"] = true
	}
	if result.Followed {
		output["followed"] = true
	}
	if result.Detail != "" {
		output["detail"] = result.Detail
	}
	// An attempted effect that was not confirmed must not read back as ok.
	status := schemas.StatusOK
	if !result.Success {
		status = schemas.StatusError
	}
	a.record(schemas.RecordAct, status, step, input, output, nil)
}

func (a *Agent) recordError(recordType schemas.RecordType, step int, message string) {
	a.record(recordType, schemas.StatusError, step, nil, map[string]any{"error": message}, nil)
}

func (a *Agent) record(recordType schemas.RecordType, status schemas.RecordStatus, step int, input, output map[string]any, artifacts []string) {
	if input == nil {
		input = map[string]any{}
	}
	input["step"] = step + 1
	if _, err := a.ledger.Record(recordType, status, input, output, artifacts); err != nil {
		a.logger.Error("Failed to write ledger record", zap.Error(err))
	}
}

func tallyFor(dec schemas.Decision, result schemas.ActionResult) Tally {
	var t Tally
	switch dec.Action {
	case schemas.ActionLike:
		t.LikesAttempted = 1
		if result.Liked {
			t.LikesSucceeded = 1
		}
	case schemas.ActionComment:
		t.CommentsAttempted = 1
		if result.Commented {
			t.CommentsSucceeded = 1
		}
	case schemas.ActionFollow:
		t.FollowsAttempted = 1
		if result.Followed {
			t.FollowsSucceeded = 1
		}
	}
	return t
}

// isFatal reports whether an observe error should end the loop instead of
// counting as one failed cycle.
func isFatal(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return true
	}
	var transport *schemas.TransportError
	return errors.As(err, &transport)
}

func deadlineReason(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "agent runtime limit exceeded"
	}
	return "run cancelled"
}
