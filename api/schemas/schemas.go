package schemas

import "time"

// SchemaVersion is stamped into every durable document the engine writes.
const SchemaVersion = 1

// AgentRole distinguishes the browser-backed hero agent from text-only crowd agents.
type AgentRole string

const (
	RoleHero  AgentRole = "hero"
	RoleCrowd AgentRole = "crowd"
)

// RunStatus is the lifecycle state of a simulation run.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// Terminal reports whether the status can never change again.
func (s RunStatus) Terminal() bool {
	return s == RunStatusCompleted || s == RunStatusFailed
}

// AgentState is the observable state of one agent's observe-decide-act loop.
type AgentState string

const (
	AgentStarting  AgentState = "STARTING"
	AgentObserving AgentState = "OBSERVING"
	AgentDeciding  AgentState = "DECIDING"
	AgentActing    AgentState = "ACTING"
	AgentResting   AgentState = "RESTING"
	AgentErrored   AgentState = "ERROR"
	AgentStopped   AgentState = "STOPPED"
)

// ReactionBias shapes a persona's deterministic fallback behaviour.
type ReactionBias string

const (
	BiasPositive ReactionBias = "positive"
	BiasNeutral  ReactionBias = "neutral"
	BiasNegative ReactionBias = "negative"
)

// Persona is a fixed audience identity. Immutable once loaded; agents hold it
// by value so siblings share no mutable state.
type Persona struct {
	ID              string       `json:"id"`
	Name            string       `json:"name"`
	Interests       []string     `json:"interests"`
	Tone            string       `json:"tone"`
	ReactionBias    ReactionBias `json:"reactionBias"`
	Goal            string       `json:"goal,omitempty"`
	CommentStyle    string       `json:"commentStyle,omitempty"`
	EngagementLevel float64      `json:"engagementLevel,omitempty"`
}

// ObservedContent is what an agent sees during its observe phase: the post
// under reaction plus a snapshot of comments earlier agents left behind.
type ObservedContent struct {
	PostID        string   `json:"postId,omitempty"`
	Author        string   `json:"author,omitempty"`
	Text          string   `json:"text"`
	Hashtags      []string `json:"hashtags,omitempty"`
	PriorComments []string `json:"priorComments,omitempty"`
	Screenshot    string   `json:"screenshot,omitempty"`
}

// DecisionAction is the closed action vocabulary. Anything a model emits
// outside this set normalizes to ActionSkip.
type DecisionAction string

const (
	ActionLike    DecisionAction = "like"
	ActionComment DecisionAction = "comment"
	ActionFollow  DecisionAction = "follow"
	ActionSkip    DecisionAction = "skip"
)

// Decision is the structured outcome of one decide phase.
type Decision struct {
	Action      DecisionAction `json:"action"`
	CommentText string         `json:"commentText,omitempty"`
	Reasoning   string         `json:"reasoning"`
	Sentiment   ReactionBias   `json:"sentiment"`
	// Fallback marks a decision produced locally after the external call
	// failed or was bypassed (dry run).
	Fallback bool `json:"fallback,omitempty"`
}

// ActionResult is the uniform outcome of executing a decision, regardless of
// strategy. Success=false is a normal, loggable outcome; transport failures
// surface as errors instead.
type ActionResult struct {
	Action    DecisionAction `json:"action"`
	Target    string         `json:"target,omitempty"`
	Success   bool           `json:"success"`
	Liked     bool           `json:"liked,omitempty"`
	Commented bool           `json:"commented,omitempty"`
	Followed  bool           `json:"followed,omitempty"`
	Detail    string         `json:"detail,omitempty"`
}

// RecordType tags the three phases an agent logs per cycle.
type RecordType string

const (
	RecordObserve RecordType = "observe"
	RecordDecide  RecordType = "decide"
	RecordAct     RecordType = "act"
)

// RecordStatus marks a ledger record as successful or failed.
type RecordStatus string

const (
	StatusOK    RecordStatus = "ok"
	StatusError RecordStatus = "error"
)

// ActionRecord is one line of an agent's append-only ledger. Seq is
// contiguous from 1 within an agent; AgentID+Seq is the natural key.
type ActionRecord struct {
	RunID     string         `json:"runId"`
	AgentID   string         `json:"agentId"`
	Seq       int            `json:"seq"`
	Timestamp time.Time      `json:"timestamp"`
	Type      RecordType     `json:"type"`
	Status    RecordStatus   `json:"status"`
	Input     map[string]any `json:"input,omitempty"`
	Output    map[string]any `json:"output,omitempty"`
	Artifacts []string       `json:"artifacts,omitempty"`
}

// RunConfigSnapshot is the portion of the engine configuration frozen into
// the run document at creation time.
type RunConfigSnapshot struct {
	Goal           string `json:"goal"`
	TargetPersona  string `json:"targetPersona,omitempty"`
	CrowdCount     int    `json:"crowdCount"`
	HeroEnabled    bool   `json:"heroEnabled"`
	MaxConcurrency int    `json:"maxConcurrency"`
	DryRun         bool   `json:"dryRun"`
	PostContext    string `json:"postContext,omitempty"`
}

// AgentLog is the per-agent summary embedded in a terminal run document.
type AgentLog struct {
	AgentID   string     `json:"agentId"`
	Role      AgentRole  `json:"role"`
	PersonaID string     `json:"personaId"`
	State     AgentState `json:"state"`
	Steps     int        `json:"steps"`
	Error     string     `json:"error,omitempty"`
}

// RunMetrics are the derived campaign projections in a run result.
type RunMetrics struct {
	Reach              int     `json:"reach"`
	Engagement         int     `json:"engagement"`
	ConversionEstimate float64 `json:"conversionEstimate"`
	ROAS               float64 `json:"roas"`
}

// RunResult is populated only once a run reaches a terminal status.
type RunResult struct {
	LikesAttempted    int        `json:"likesAttempted"`
	LikesSucceeded    int        `json:"likesSucceeded"`
	CommentsAttempted int        `json:"commentsAttempted"`
	CommentsSucceeded int        `json:"commentsSucceeded"`
	FollowsAttempted  int        `json:"followsAttempted"`
	FollowsSucceeded  int        `json:"followsSucceeded"`
	Metrics           RunMetrics `json:"metrics"`
	ConfidenceLevel   string     `json:"confidenceLevel"`
	AgentLogs         []AgentLog `json:"agentLogs"`
}

// RunDocument is the shared run-level status document. The orchestrator is
// its only writer; every update is renamed into place atomically so readers
// never observe a partial document.
type RunDocument struct {
	SchemaVersion int               `json:"schemaVersion"`
	RunID         string            `json:"runId"`
	Status        RunStatus         `json:"status"`
	Progress      int               `json:"progress"`
	CreatedAt     time.Time         `json:"createdAt"`
	UpdatedAt     time.Time         `json:"updatedAt"`
	Config        RunConfigSnapshot `json:"config"`
	Error         string            `json:"error,omitempty"`
	Result        *RunResult        `json:"result,omitempty"`
}
