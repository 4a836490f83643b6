package executor

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/crowdsim-cli/api/schemas"
	"github.com/xkilldash9x/crowdsim-cli/internal/browser"
	"github.com/xkilldash9x/crowdsim-cli/internal/sns"
)

// BrowserExecutor is the hero strategy: a real browser tab clicking the
// surface's actual controls, with a screenshot of what the agent saw.
// Timeline reads go through the same JSON endpoint the page itself uses.
type BrowserExecutor struct {
	session  *browser.Session
	client   *sns.Client
	baseURL  string
	username string
	persona  schemas.Persona
	logger   *zap.Logger

	// saveArtifact persists screenshot bytes and returns the stored path.
	// Nil disables screenshots.
	saveArtifact func(filename string, content []byte) (string, error)

	loggedIn bool
	observes int
	lastPost *sns.Post
}

var _ Executor = (*BrowserExecutor)(nil)

func NewBrowserExecutor(session *browser.Session, client *sns.Client, baseURL, username string, persona schemas.Persona, saveArtifact func(string, []byte) (string, error), logger *zap.Logger) *BrowserExecutor {
	return &BrowserExecutor{
		session:      session,
		client:       client,
		baseURL:      baseURL,
		username:     username,
		persona:      persona,
		saveArtifact: saveArtifact,
		logger:       logger.Named("browser_executor"),
	}
}

func (e *BrowserExecutor) Observe(ctx context.Context) (schemas.ObservedContent, error) {
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

	observed := observedFromPost(post)
	e.observes++
	if e.saveArtifact != nil {
		shot, err := e.session.Screenshot(ctx)
		if err != nil {
			return schemas.ObservedContent{}, &schemas.TransportError{Op: "screenshot", Err: err}
		}
		path, err := e.saveArtifact(fmt.Sprintf("observe_%02d.png", e.observes), shot)
		if err != nil {
			return schemas.ObservedContent{}, err
		}
		observed.Screenshot = path
	}
	return observed, nil
}

func (e *BrowserExecutor) Execute(ctx context.Context, decision schemas.Decision) (schemas.ActionResult, error) {
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

	var primary string
	switch decision.Action {
	case schemas.ActionLike:
		primary = fmt.Sprintf("#like-button-%s", post.ID)
	case schemas.ActionComment:
		primary = fmt.Sprintf("#comment-input-%s", post.ID)
	case schemas.ActionFollow:
		result.Target = post.AccountID
		primary = fmt.Sprintf("#follow-%s", post.AccountID)
	default:
		return schemas.ActionResult{}, fmt.Errorf("unknown action %q", decision.Action)
	}

	// A missing control on a live page is a loggable miss, not a dead session.
	present, err := e.session.Exists(ctx, primary)
	if err != nil {
		return schemas.ActionResult{}, &schemas.TransportError{Op: "probe target", Err: err}
	}
	if !present {
		result.Detail = fmt.Sprintf("target element %s not found", primary)
		return result, nil
	}

	switch decision.Action {
	case schemas.ActionLike:
		err = e.session.Click(ctx, primary)
		result.Liked = err == nil
	case schemas.ActionComment:
		if err = e.session.Type(ctx, primary, decision.CommentText); err == nil {
			err = e.session.Click(ctx, fmt.Sprintf("#comment-button-%s", post.ID))
		}
		result.Commented = err == nil
	case schemas.ActionFollow:
		err = e.session.Click(ctx, primary)
		result.Followed = err == nil
	}
	if err != nil {
		return schemas.ActionResult{}, &schemas.TransportError{
			Op:  fmt.Sprintf("browser %s", decision.Action),
			Err: err,
		}
	}

	result.Success = true
	return result, nil
}

func (e *BrowserExecutor) Close(ctx context.Context) error {
	e.session.Close()
	return nil
}

func (e *BrowserExecutor) ensureLogin(ctx context.Context) error {
	if e.loggedIn {
		return nil
	}
	if err := e.session.Login(ctx, e.baseURL, e.username); err != nil {
		return &schemas.TransportError{Op: "browser login", Err: err}
	}
	if err := e.client.Login(ctx); err != nil {
		return err
	}
	e.loggedIn = true
	return nil
}
