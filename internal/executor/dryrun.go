package executor

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/crowdsim-cli/api/schemas"
)

// DryRunExecutor never touches the network. It serves a fixed synthetic post
// and records the effect each action would have had, so a full run can be
// rehearsed offline.
type DryRunExecutor struct {
	persona schemas.Persona
	post    schemas.ObservedContent
	logger  *zap.Logger
}

var _ Executor = (*DryRunExecutor)(nil)

// NewDryRunExecutor derives the synthetic post from the campaign's post
// context, so rule-based decisions still have real text to score.
func NewDryRunExecutor(persona schemas.Persona, postContext string, logger *zap.Logger) *DryRunExecutor {
	if postContext == "" {
		postContext = "New drop from the campaign. Tell us what you think!"
	}
	return &DryRunExecutor{
		persona: persona,
		post: schemas.ObservedContent{
			PostID: "dry-run-post",
			Author: "influencer_dryrun",
			Text:   postContext,
		},
		logger: logger.Named("dryrun_executor"),
	}
}

func (e *DryRunExecutor) Observe(ctx context.Context) (schemas.ObservedContent, error) {
	if err := ctx.Err(); err != nil {
		return schemas.ObservedContent{}, err
	}
	return e.post, nil
}

func (e *DryRunExecutor) Execute(ctx context.Context, decision schemas.Decision) (schemas.ActionResult, error) {
	if err := ctx.Err(); err != nil {
		return schemas.ActionResult{}, err
	}
	if decision.Action == schemas.ActionSkip {
		return resultSkip(decision.Reasoning), nil
	}

	result := schemas.ActionResult{
		Action:  decision.Action,
		Target:  e.post.PostID,
		Success: true,
		Detail:  fmt.Sprintf("dry run: would %s", decision.Action),
	}
	switch decision.Action {
	case schemas.ActionLike:
		result.Liked = true
	case schemas.ActionComment:
		result.Commented = true
	case schemas.ActionFollow:
		result.Target = e.post.Author
		result.Followed = true
	}
	return result, nil
}

func (e *DryRunExecutor) Close(ctx context.Context) error {
	return nil
}
