// Package executor turns decisions into effects on the social surface. The
// crowd talks to the surface's JSON endpoints directly, the hero drives a
// real browser, and dry runs touch nothing at all.
package executor

import (
	"context"
	"strings"

	"github.com/xkilldash9x/crowdsim-cli/api/schemas"
	"github.com/xkilldash9x/crowdsim-cli/internal/sns"
)

// Executor is the surface an agent acts through. Observe picks the post the
// agent will react to; Execute applies the decision to that post.
type Executor interface {
	Observe(ctx context.Context) (schemas.ObservedContent, error)
	Execute(ctx context.Context, decision schemas.Decision) (schemas.ActionResult, error)
	Close(ctx context.Context) error
}

// selectPost scores the timeline against the persona's interests and returns
// the best match, falling back to the first post.
func selectPost(posts []sns.Post, persona schemas.Persona) (sns.Post, bool) {
	if len(posts) == 0 {
		return sns.Post{}, false
	}
	best := posts[0]
	bestScore := -1
	for _, p := range posts {
		if p.CommentsDisabled {
			continue
		}
		score := scorePost(p, persona)
		if score > bestScore {
			best = p
			bestScore = score
		}
	}
	return best, true
}

func scorePost(p sns.Post, persona schemas.Persona) int {
	text := strings.ToLower(p.Content)
	score := 0
	for _, interest := range persona.Interests {
		needle := strings.ToLower(interest)
		if needle == "" {
			continue
		}
		if strings.Contains(text, needle) {
			score++
		}
		for _, tag := range p.Hashtags {
			if strings.EqualFold(tag, interest) {
				score += 2
			}
		}
	}
	if strings.HasPrefix(strings.ToLower(p.Author), "influencer") {
		score += 2
	}
	return score
}

func observedFromPost(p sns.Post) schemas.ObservedContent {
	return schemas.ObservedContent{
		PostID:   p.ID,
		Author:   p.Author,
		Text:     p.Content,
		Hashtags: p.Hashtags,
	}
}

func resultSkip(detail string) schemas.ActionResult {
	return schemas.ActionResult{
		Action:  schemas.ActionSkip,
		Success: true,
		Detail:  detail,
	}
}
