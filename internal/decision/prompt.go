package decision

import (
	"fmt"
	"strings"

	jsoniter "github.com/json-iterator/go"

	"github.com/xkilldash9x/crowdsim-cli/api/schemas"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// BuildPrompt renders the decision request for one persona and one piece of
// observed content. The response contract is a single JSON object.
func BuildPrompt(persona schemas.Persona, observed schemas.ObservedContent, goal string) string {
	var sb strings.Builder
	sb.WriteString("You are a social media user with the persona below. ")
	sb.WriteString("Decide how you would react to the post context for an influencer marketing campaign. ")
	sb.WriteString("Respond ONLY with a JSON object with keys: ")
	sb.WriteString("action (one of \"like\", \"comment\", \"follow\", \"skip\"), ")
	sb.WriteString("commentText (string, required when action is \"comment\"), ")
	sb.WriteString("sentiment (one of \"positive\", \"neutral\", \"negative\"), ")
	sb.WriteString("reasoning (string).\n\n")

	fmt.Fprintf(&sb, "Name: %s\n", persona.Name)
	fmt.Fprintf(&sb, "Interests: %s\n", strings.Join(persona.Interests, ", "))
	fmt.Fprintf(&sb, "Tone: %s\n", persona.Tone)
	fmt.Fprintf(&sb, "Campaign goal: %s\n", goal)
	fmt.Fprintf(&sb, "Post context: %s\n", observed.Text)

	if len(observed.PriorComments) > 0 {
		sb.WriteString("Comments other users already left on this post:\n")
		for _, c := range observed.PriorComments {
			fmt.Fprintf(&sb, "- %s\n", c)
		}
	}
	return sb.String()
}

// ExtractJSON pulls the first JSON object out of a model response, tolerating
// markdown fences and surrounding prose.
func ExtractJSON(text string) (map[string]any, bool) {
	text = strings.TrimSpace(text)
	if fenced := strings.Index(text, "```"); fenced != -1 {
		rest := text[fenced+3:]
		rest = strings.TrimPrefix(rest, "json")
		if end := strings.Index(rest, "```"); end != -1 {
			text = strings.TrimSpace(rest[:end])
		}
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start == -1 || end <= start {
		return nil, false
	}

	var parsed map[string]any
	if err := json.Unmarshal([]byte(text[start:end+1]), &parsed); err != nil {
		return nil, false
	}
	return parsed, true
}

// Normalize coerces a parsed model payload into the closed decision
// vocabulary. It accepts both the action-keyed shape the prompt asks for and
// the boolean like/comment/follow shape older models tend to produce.
func Normalize(parsed map[string]any, bias schemas.ReactionBias) schemas.Decision {
	d := schemas.Decision{
		Action:    schemas.ActionSkip,
		Sentiment: schemas.BiasNeutral,
	}

	commentText := strings.TrimSpace(asString(parsed["commentText"]))
	if commentText == "" {
		commentText = strings.TrimSpace(asString(parsed["comment_text"]))
	}

	switch strings.ToLower(strings.TrimSpace(asString(parsed["action"]))) {
	case "like":
		d.Action = schemas.ActionLike
	case "comment":
		d.Action = schemas.ActionComment
	case "follow":
		d.Action = schemas.ActionFollow
	case "skip":
		d.Action = schemas.ActionSkip
	default:
		// Boolean shape: comment text wins over follow, follow over like.
		if comment := strings.TrimSpace(asString(parsed["comment"])); comment != "" {
			d.Action = schemas.ActionComment
			commentText = comment
		} else if asBool(parsed["follow"]) {
			d.Action = schemas.ActionFollow
		} else if asBool(parsed["like"]) {
			d.Action = schemas.ActionLike
		}
	}

	if d.Action == schemas.ActionComment {
		if commentText == "" {
			// A comment with no text is not actionable; only a positively
			// biased persona still leaves a like.
			if bias == schemas.BiasPositive {
				d.Action = schemas.ActionLike
			} else {
				d.Action = schemas.ActionSkip
			}
		} else {
			d.CommentText = commentText
		}
	}

	switch strings.ToLower(strings.TrimSpace(asString(parsed["sentiment"]))) {
	case "positive":
		d.Sentiment = schemas.BiasPositive
	case "negative":
		d.Sentiment = schemas.BiasNegative
	case "neutral":
		d.Sentiment = schemas.BiasNeutral
	default:
		if d.Action == schemas.ActionLike || d.Action == schemas.ActionComment {
			d.Sentiment = schemas.BiasPositive
		}
	}

	d.Reasoning = strings.TrimSpace(asString(parsed["reasoning"]))
	if d.Reasoning == "" {
		d.Reasoning = "no reasoning provided"
	}
	return d
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

func asBool(v any) bool {
	b, _ := v.(bool)
	return b
}
