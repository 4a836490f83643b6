// Package orchestrator fans a simulation out across one browser-backed hero
// and a crowd of direct agents, bounds their concurrency, and keeps the run
// document on disk consistent while they work.
package orchestrator

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/xkilldash9x/crowdsim-cli/api/schemas"
	"github.com/xkilldash9x/crowdsim-cli/internal/agent"
	"github.com/xkilldash9x/crowdsim-cli/internal/browser"
	"github.com/xkilldash9x/crowdsim-cli/internal/config"
	"github.com/xkilldash9x/crowdsim-cli/internal/decision"
	"github.com/xkilldash9x/crowdsim-cli/internal/executor"
	"github.com/xkilldash9x/crowdsim-cli/internal/ledger"
	"github.com/xkilldash9x/crowdsim-cli/internal/persona"
	"github.com/xkilldash9x/crowdsim-cli/internal/sns"
	"github.com/xkilldash9x/crowdsim-cli/internal/stigmergy"
)

// RunDocumentName is the run document's filename inside the run directory.
const RunDocumentName = "simulation.json"

// executorFactory builds the acting strategy for one agent. Overridable in
// tests so runs exercise the full pipeline without a browser or a surface.
type executorFactory func(ctx context.Context, role schemas.AgentRole, p schemas.Persona, account sns.Account, lw *ledger.Writer) (executor.Executor, error)

// Orchestrator owns one simulation run end to end.
type Orchestrator struct {
	cfg    *config.Config
	logger *zap.Logger

	newDecider  func() (decision.Client, error)
	newExecutor executorFactory
	noBrowser   bool

	browserMgr *browser.Manager

	mu       sync.Mutex
	doc      schemas.RunDocument
	docPath  string
	progress int
}

func New(cfg *config.Config, logger *zap.Logger) *Orchestrator {
	o := &Orchestrator{
		cfg:    cfg,
		logger: logger.Named("orchestrator"),
	}
	o.newDecider = func() (decision.Client, error) {
		return decision.NewClient(cfg, logger)
	}
	o.newExecutor = o.defaultExecutorFactory
	return o
}

// Run executes the whole simulation and returns the terminal run document.
// Configuration problems surface before any artifact is written.
func (o *Orchestrator) Run(ctx context.Context) (schemas.RunDocument, error) {
	if err := o.cfg.Validate(); err != nil {
		return schemas.RunDocument{}, err
	}

	sim := o.cfg.Simulation
	runID := sim.RunID
	if runID == "" {
		runID = fmt.Sprintf("run-%s", uuid.NewString()[:8])
	}

	personas, err := persona.Load(sim.PersonaFile)
	if err != nil {
		return schemas.RunDocument{}, err
	}
	heroPersona, err := persona.Choose(personas, sim.TargetPersona)
	if err != nil {
		return schemas.RunDocument{}, err
	}

	runDir := filepath.Join(sim.OutputDir, runID)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return schemas.RunDocument{}, fmt.Errorf("create run dir: %w", err)
	}
	o.docPath = filepath.Join(runDir, RunDocumentName)
	o.doc = schemas.RunDocument{
		SchemaVersion: schemas.SchemaVersion,
		RunID:         runID,
		Status:        schemas.RunStatusRunning,
		Progress:      5,
		CreatedAt:     time.Now().UTC(),
		UpdatedAt:     time.Now().UTC(),
		Config: schemas.RunConfigSnapshot{
			Goal:           sim.Goal,
			TargetPersona:  heroPersona.ID,
			CrowdCount:     sim.CrowdCount,
			HeroEnabled:    sim.HeroEnabled,
			MaxConcurrency: sim.MaxConcurrency,
			DryRun:         sim.DryRun,
			PostContext:    sim.PostContext,
		},
	}
	o.progress = 5
	if err := o.writeDoc(); err != nil {
		return schemas.RunDocument{}, err
	}

	if sim.HeroEnabled && !sim.DryRun && !o.noBrowser {
		mgr, err := browser.NewManager(ctx, o.cfg.Browser, o.logger)
		if err != nil {
			return o.finishFailed(fmt.Errorf("launch browser: %w", err))
		}
		o.browserMgr = mgr
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			if err := mgr.Shutdown(shutdownCtx); err != nil {
				o.logger.Warn("Browser shutdown incomplete", zap.Error(err))
			}
		}()
	}

	pool := sns.NewPool(sns.AgentAccounts(o.cfg.SNS.AccountPool, o.cfg.SNS.Password))
	comments := stigmergy.NewLog()
	sem := semaphore.NewWeighted(int64(o.cfg.Simulation.MaxConcurrency))

	type job struct {
		id      string
		role    schemas.AgentRole
		persona schemas.Persona
	}
	var jobs []job
	if sim.HeroEnabled {
		jobs = append(jobs, job{id: "hero", role: schemas.RoleHero, persona: heroPersona})
	}
	for i, p := range persona.Cycle(personas, sim.CrowdCount) {
		jobs = append(jobs, job{id: fmt.Sprintf("crowd-%d", i+1), role: schemas.RoleCrowd, persona: p})
	}

	outcomes := make([]agent.Outcome, len(jobs))
	var wg sync.WaitGroup
	done := 0

	for i, j := range jobs {
		wg.Add(1)
		go func(i int, j job) {
			defer wg.Done()
			outcome := o.runAgent(ctx, sem, pool, comments, runID, j.id, j.role, j.persona)
			outcomes[i] = outcome

			o.mu.Lock()
			done++
			o.bumpProgressLocked(5 + (85*done)/len(jobs))
			o.mu.Unlock()
		}(i, j)
	}
	wg.Wait()

	return o.finish(outcomes)
}

func (o *Orchestrator) runAgent(ctx context.Context, sem *semaphore.Weighted, pool *sns.Pool, comments *stigmergy.Log, runID, agentID string, role schemas.AgentRole, p schemas.Persona) agent.Outcome {
	failed := func(msg string) agent.Outcome {
		return agent.Outcome{Log: schemas.AgentLog{
			AgentID:   agentID,
			Role:      role,
			PersonaID: p.ID,
			State:     schemas.AgentErrored,
			Error:     msg,
		}}
	}

	// The slot is held for the agent's whole loop: concurrency bounds live
	// agents, not just loop starts.
	if err := sem.Acquire(ctx, 1); err != nil {
		return failed("run cancelled before start")
	}
	defer sem.Release(1)

	account, err := pool.Checkout(ctx)
	if err != nil {
		return failed("no account available before cancellation")
	}
	defer pool.Return(account)

	lw, err := ledger.NewWriter(o.cfg.Simulation.OutputDir, runID, agentID)
	if err != nil {
		o.logger.Error("Ledger unavailable for agent", zap.String("agent_id", agentID), zap.Error(err))
		return failed(err.Error())
	}
	defer lw.Close()

	exec, err := o.newExecutor(ctx, role, p, account, lw)
	if err != nil {
		o.logger.Error("Executor construction failed", zap.String("agent_id", agentID), zap.Error(err))
		return failed(err.Error())
	}
	defer exec.Close(context.Background())

	decider, err := o.newDecider()
	if err != nil {
		return failed(err.Error())
	}

	a := agent.New(agentID, role, p, decider, exec, lw, comments, o.cfg.Agent, o.logger)
	return a.Run(ctx)
}

func (o *Orchestrator) defaultExecutorFactory(ctx context.Context, role schemas.AgentRole, p schemas.Persona, account sns.Account, lw *ledger.Writer) (executor.Executor, error) {
	if o.cfg.Simulation.DryRun {
		return executor.NewDryRunExecutor(p, o.cfg.Simulation.PostContext, o.logger), nil
	}

	client, err := sns.NewClient(o.cfg.SNS, account, o.logger)
	if err != nil {
		return nil, err
	}
	if role == schemas.RoleHero && o.browserMgr != nil {
		session, err := o.browserMgr.NewSession(ctx)
		if err != nil {
			return nil, err
		}
		return executor.NewBrowserExecutor(session, client, o.cfg.SNS.BaseURL, account.Username, p, lw.SaveArtifact, o.logger), nil
	}
	return executor.NewDirectExecutor(client, p, o.logger), nil
}

// bumpProgressLocked moves progress forward only; a slow agent finishing late
// can never roll the document backwards.
func (o *Orchestrator) bumpProgressLocked(p int) {
	if p > 90 {
		p = 90
	}
	if p <= o.progress {
		return
	}
	o.progress = p
	o.doc.Progress = p
	o.doc.UpdatedAt = time.Now().UTC()
	if err := ledger.WriteJSONAtomic(o.docPath, o.doc); err != nil {
		o.logger.Warn("Failed to update run document", zap.Error(err))
	}
}

func (o *Orchestrator) finish(outcomes []agent.Outcome) (schemas.RunDocument, error) {
	var tally agent.Tally
	logs := make([]schemas.AgentLog, 0, len(outcomes))
	stopped := 0
	for _, outcome := range outcomes {
		logs = append(logs, outcome.Log)
		tally.Merge(outcome.Tally)
		if outcome.Log.State == schemas.AgentStopped {
			stopped++
		}
	}

	engagement := tally.LikesSucceeded + tally.CommentsSucceeded + tally.FollowsSucceeded
	result := &schemas.RunResult{
		LikesAttempted:    tally.LikesAttempted,
		LikesSucceeded:    tally.LikesSucceeded,
		CommentsAttempted: tally.CommentsAttempted,
		CommentsSucceeded: tally.CommentsSucceeded,
		FollowsAttempted:  tally.FollowsAttempted,
		FollowsSucceeded:  tally.FollowsSucceeded,
		Metrics: schemas.RunMetrics{
			Reach:              len(outcomes),
			Engagement:         engagement,
			ConversionEstimate: float64(engagement) * 0.05,
			ROAS:               float64(engagement) * 0.02,
		},
		ConfidenceLevel: confidence(len(outcomes), stopped),
		AgentLogs:       logs,
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if stopped > 0 {
		o.doc.Status = schemas.RunStatusCompleted
		o.doc.Result = result
	} else {
		// A failed run carries no result block, only the error.
		o.doc.Status = schemas.RunStatusFailed
		o.doc.Error = "no agent finished its loop"
	}
	o.doc.Progress = 100
	o.doc.UpdatedAt = time.Now().UTC()
	if err := ledger.WriteJSONAtomic(o.docPath, o.doc); err != nil {
		return o.doc, err
	}
	o.logger.Info("Run finished",
		zap.String("run_id", o.doc.RunID),
		zap.String("status", string(o.doc.Status)),
		zap.Int("engagement", engagement))
	return o.doc, nil
}

func (o *Orchestrator) finishFailed(cause error) (schemas.RunDocument, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.doc.Status = schemas.RunStatusFailed
	o.doc.Progress = 100
	o.doc.Error = cause.Error()
	o.doc.UpdatedAt = time.Now().UTC()
	if err := ledger.WriteJSONAtomic(o.docPath, o.doc); err != nil {
		return o.doc, err
	}
	return o.doc, cause
}

func (o *Orchestrator) writeDoc() error {
	return ledger.WriteJSONAtomic(o.docPath, o.doc)
}

func confidence(total, stopped int) string {
	switch {
	case total == 0:
		return "low"
	case stopped == total:
		return "high"
	case stopped*2 >= total:
		return "medium"
	default:
		return "low"
	}
}
