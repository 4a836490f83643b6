package decision

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/xkilldash9x/crowdsim-cli/api/schemas"
)

var (
	wordRe    = regexp.MustCompile(`[A-Za-z0-9]+`)
	hashtagRe = regexp.MustCompile(`#([A-Za-z0-9_]+)`)
)

// RuleClient decides deterministically from interest affinity, with no
// outbound calls. It backs dry runs and smoke tests.
type RuleClient struct {
	goal string
}

// NewRuleClient returns a rule-based decision client for the given campaign goal.
func NewRuleClient(goal string) *RuleClient {
	return &RuleClient{goal: goal}
}

var _ Client = (*RuleClient)(nil)

// Decide scores the observed content against the persona's interests and
// applies bias-dependent thresholds.
func (c *RuleClient) Decide(ctx context.Context, persona schemas.Persona, observed schemas.ObservedContent) (schemas.Decision, error) {
	if err := ctx.Err(); err != nil {
		return schemas.Decision{}, err
	}
	return DecideWithRules(persona, observed, c.goal), nil
}

// DecideWithRules is the deterministic decision procedure: interest token
// overlap, hashtags at double weight, an influencer bonus, and goal keywords
// at half weight, folded into an affinity in [0,1].
func DecideWithRules(persona schemas.Persona, observed schemas.ObservedContent, goal string) schemas.Decision {
	score := scoreContent(persona, observed, goal)
	interestCount := len(persona.Interests)
	if interestCount < 1 {
		interestCount = 1
	}
	affinity := score / float64(interestCount)
	if affinity > 1 {
		affinity = 1
	}

	bias := persona.ReactionBias
	likeThreshold := 0.2
	if bias == schemas.BiasNegative {
		likeThreshold = 0.6
	}
	commentThreshold := 0.6
	if bias == schemas.BiasPositive {
		commentThreshold = 0.45
	}
	followThreshold := 0.85
	if bias == schemas.BiasPositive {
		followThreshold = 0.7
	}

	isInfluencer := strings.HasPrefix(observed.Author, "influencer")

	d := schemas.Decision{
		Action:    schemas.ActionSkip,
		Sentiment: schemas.BiasNeutral,
		Fallback:  true,
	}
	switch {
	case isInfluencer && affinity >= followThreshold:
		d.Action = schemas.ActionFollow
	case affinity >= commentThreshold:
		d.Action = schemas.ActionComment
		d.CommentText = buildRuleComment(persona, observed)
	case affinity >= likeThreshold:
		d.Action = schemas.ActionLike
	}

	if affinity >= 0.6 {
		d.Sentiment = schemas.BiasPositive
	} else if bias == schemas.BiasNegative && affinity < 0.2 {
		d.Sentiment = schemas.BiasNegative
	}

	d.Reasoning = fmt.Sprintf("rule_based affinity=%.2f score=%.2f influencer=%t bias=%s",
		affinity, score, isInfluencer, bias)
	return d
}

func scoreContent(persona schemas.Persona, observed schemas.ObservedContent, goal string) float64 {
	if observed.Text == "" && len(observed.Hashtags) == 0 {
		return 0
	}

	postTokens := keywords(observed.Text)
	postTags := make(map[string]struct{}, len(observed.Hashtags))
	for _, tag := range observed.Hashtags {
		postTags[strings.ToLower(strings.TrimPrefix(tag, "#"))] = struct{}{}
	}
	for _, tag := range hashtagRe.FindAllStringSubmatch(observed.Text, -1) {
		postTags[strings.ToLower(tag[1])] = struct{}{}
	}

	interestTokens := make(map[string]struct{})
	for _, interest := range persona.Interests {
		for token := range keywords(interest) {
			interestTokens[token] = struct{}{}
		}
	}

	var score float64
	for token := range interestTokens {
		if _, ok := postTokens[token]; ok {
			score++
		}
		if _, ok := postTags[token]; ok {
			score += 2
		}
	}
	if strings.HasPrefix(observed.Author, "influencer") {
		score += 2
	}
	for token := range keywords(goal) {
		if _, ok := postTokens[token]; ok {
			score += 0.5
		}
	}
	return score
}

func keywords(text string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, token := range wordRe.FindAllString(text, -1) {
		out[strings.ToLower(token)] = struct{}{}
	}
	return out
}

// buildRuleComment synthesizes a short comment around the first interest
// keyword found in the post, toned by the persona.
func buildRuleComment(persona schemas.Persona, observed schemas.ObservedContent) string {
	postTokens := keywords(observed.Text)
	var keyword string
	for _, interest := range persona.Interests {
		for token := range keywords(interest) {
			if _, ok := postTokens[token]; ok {
				keyword = token
				break
			}
		}
		if keyword != "" {
			break
		}
	}
	if keyword == "" && len(persona.Interests) > 0 {
		for token := range keywords(persona.Interests[0]) {
			keyword = token
			break
		}
	}
	if keyword == "" {
		keyword = "this"
	}

	tone := strings.ToLower(persona.Tone)
	switch {
	case strings.Contains(tone, "bold") || strings.Contains(tone, "confident"):
		return fmt.Sprintf("Love the %s angle. Strong post.", keyword)
	case strings.Contains(tone, "playful"):
		return fmt.Sprintf("Fun take on %s. Nice work.", keyword)
	case strings.Contains(tone, "skeptical") || strings.Contains(tone, "dry"):
		return fmt.Sprintf("Okay, the %s bit actually works.", keyword)
	default:
		return fmt.Sprintf("Nice perspective on %s. Thanks for sharing.", keyword)
	}
}
