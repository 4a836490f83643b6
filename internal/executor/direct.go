package executor

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/crowdsim-cli/api/schemas"
	"github.com/xkilldash9x/crowdsim-cli/internal/sns"
)

const timelineLimit = 20

// DirectExecutor acts through the surface's JSON endpoints. This is the
// crowd strategy: cheap enough to run many agents side by side.
type DirectExecutor struct {
	client   *sns.Client
	persona  schemas.Persona
	logger   *zap.Logger
	loggedIn bool
	lastPost *sns.Post
}

var _ Executor = (*DirectExecutor)(nil)

func NewDirectExecutor(client *sns.Client, persona schemas.Persona, logger *zap.Logger) *DirectExecutor {
	return &DirectExecutor{
		client:  client,
		persona: persona,
		logger:  logger.Named("direct_executor"),
	}
}

func (e *DirectExecutor) Observe(ctx context.Context) (schemas.ObservedContent, error) {
	if err := e.ensureLogin(ctx); err != nil {
		return schemas.ObservedContent{}, err
	}

	posts, err := e.client.Timeline(ctx, timelineLimit)
	if err != nil {
		return schemas.ObservedContent{}, err
	}

	post, ok := selectPost(posts, e.persona)
	if !ok {
		e.lastPost = nil
		return schemas.ObservedContent{}, nil
	}
	e.lastPost = &post
	return observedFromPost(post), nil
}

func (e *DirectExecutor) Execute(ctx context.Context, decision schemas.Decision) (schemas.ActionResult, error) {
	if decision.Action == schemas.ActionSkip {
		return resultSkip(decision.Reasoning), nil
	}
	if e.lastPost == nil {
		return schemas.ActionResult{
			Action:  decision.Action,
			Success: false,
			Detail:  "no post observed; nothing to act on",
		}, nil
	}
	post := *e.lastPost

	result := schemas.ActionResult{Action: decision.Action, Target: post.ID}
	var resp sns.WriteResponse
	var err error

	switch decision.Action {
	case schemas.ActionLike:
		resp, err = e.client.Like(ctx, post.ID)
		result.Liked = err == nil && resp.OK
	case schemas.ActionComment:
		resp, err = e.client.Comment(ctx, post.ID, decision.CommentText)
		result.Commented = err == nil && resp.OK
	case schemas.ActionFollow:
		result.Target = post.AccountID
		resp, err = e.client.Follow(ctx, post.AccountID)
		result.Followed = err == nil && resp.OK
	default:
		return schemas.ActionResult{}, fmt.Errorf("unknown action %q", decision.Action)
	}
	if err != nil {
		return schemas.ActionResult{}, err
	}

	result.Success = resp.OK
	result.Detail = resp.Detail
	if !resp.OK && result.Detail == "" {
		result.Detail = fmt.Sprintf("surface rejected %s with status %d", decision.Action, resp.Status)
	}
	return result, nil
}

func (e *DirectExecutor) Close(ctx context.Context) error {
	return nil
}

func (e *DirectExecutor) ensureLogin(ctx context.Context) error {
	if e.loggedIn {
		return nil
	}
	if err := e.client.Login(ctx); err != nil {
		return err
	}
	e.loggedIn = true
	return nil
}
