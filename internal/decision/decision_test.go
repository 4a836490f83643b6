package decision

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/crowdsim-cli/api/schemas"
	"github.com/xkilldash9x/crowdsim-cli/internal/config"
)

func positivePersona() schemas.Persona {
	return schemas.Persona{
		ID:           "vegan-mom",
		Name:         "Vegan Mom",
		Interests:    []string{"animal welfare", "environment", "healthy food"},
		Tone:         "positive and supportive",
		ReactionBias: schemas.BiasPositive,
	}
}

// -- Parsing and normalization --

func TestExtractJSON(t *testing.T) {
	cases := []struct {
		name string
		in   string
		ok   bool
	}{
		{"raw object", `{"action": "like"}`, true},
		{"fenced", "```json\n{\"action\": \"like\"}\n```", true},
		{"surrounded by prose", `Sure! Here you go: {"action": "like"} Hope that helps.`, true},
		{"no json", "I would like this post.", false},
		{"broken json", `{"action": `, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			parsed, ok := ExtractJSON(tc.in)
			require.Equal(t, tc.ok, ok)
			if ok {
				assert.Equal(t, "like", parsed["action"])
			}
		})
	}
}

func TestNormalize(t *testing.T) {
	t.Run("action keyed shape", func(t *testing.T) {
		d := Normalize(map[string]any{
			"action": "Comment", "commentText": "nice!", "sentiment": "positive", "reasoning": "relevant",
		}, schemas.BiasNeutral)
		assert.Equal(t, schemas.ActionComment, d.Action)
		assert.Equal(t, "nice!", d.CommentText)
		assert.Equal(t, schemas.BiasPositive, d.Sentiment)
	})

	t.Run("boolean legacy shape", func(t *testing.T) {
		d := Normalize(map[string]any{"like": true, "comment": "", "follow": false}, schemas.BiasNeutral)
		assert.Equal(t, schemas.ActionLike, d.Action)
		// Liking implies positive sentiment when none was given.
		assert.Equal(t, schemas.BiasPositive, d.Sentiment)

		d = Normalize(map[string]any{"like": true, "comment": "love it", "follow": true}, schemas.BiasNeutral)
		assert.Equal(t, schemas.ActionComment, d.Action)
		assert.Equal(t, "love it", d.CommentText)
	})

	t.Run("unknown action becomes skip", func(t *testing.T) {
		d := Normalize(map[string]any{"action": "repost"}, schemas.BiasNeutral)
		assert.Equal(t, schemas.ActionSkip, d.Action)
		assert.Equal(t, schemas.BiasNeutral, d.Sentiment)
	})

	t.Run("comment without text follows bias", func(t *testing.T) {
		d := Normalize(map[string]any{"action": "comment"}, schemas.BiasPositive)
		assert.Equal(t, schemas.ActionLike, d.Action)

		d = Normalize(map[string]any{"action": "comment"}, schemas.BiasNeutral)
		assert.Equal(t, schemas.ActionSkip, d.Action)

		d = Normalize(map[string]any{"action": "comment"}, schemas.BiasNegative)
		assert.Equal(t, schemas.ActionSkip, d.Action)
	})
}

// -- Fallback behaviour --

type stubProvider struct {
	response string
	err      error
	calls    int
}

func (s *stubProvider) name() string       { return "stub" }
func (s *stubProvider) caps() capabilities { return capabilities{} }
func (s *stubProvider) generate(ctx context.Context, prompt string) (string, error) {
	s.calls++
	if s.err != nil {
		return "", s.err
	}
	return s.response, nil
}

func newTestClient(p provider) *resilientClient {
	return &resilientClient{
		provider: p,
		goal:     "promote eco skincare",
		timeout:  200 * time.Millisecond,
		logger:   zap.NewNop(),
	}
}

func TestDecideSuccess(t *testing.T) {
	stub := &stubProvider{response: `{"action": "like", "sentiment": "positive", "reasoning": "on brand"}`}
	c := newTestClient(stub)

	d, err := c.Decide(context.Background(), positivePersona(), schemas.ObservedContent{Text: "eco skincare launch"})
	require.NoError(t, err)
	assert.Equal(t, schemas.ActionLike, d.Action)
	assert.False(t, d.Fallback)
}

func TestDecideFailureFallsBackToSkip(t *testing.T) {
	stub := &stubProvider{err: errors.New("connection refused")}
	c := newTestClient(stub)

	d, err := c.Decide(context.Background(), positivePersona(), schemas.ObservedContent{Text: "anything"})
	require.NoError(t, err, "a failed decision call must not surface an error")
	assert.Equal(t, schemas.ActionSkip, d.Action)
	assert.True(t, d.Fallback)
	assert.NotEmpty(t, d.Reasoning)
	assert.GreaterOrEqual(t, stub.calls, 1)
}

func TestDecideMalformedPayloadFallsBack(t *testing.T) {
	stub := &stubProvider{response: "I cannot answer in JSON, sorry."}
	c := newTestClient(stub)

	d, err := c.Decide(context.Background(), positivePersona(), schemas.ObservedContent{Text: "x"})
	require.NoError(t, err)
	assert.Equal(t, schemas.ActionSkip, d.Action)
	assert.True(t, d.Fallback)
}

func TestDecideHonoursBoundedTimeout(t *testing.T) {
	slow := providerFunc(func(ctx context.Context, prompt string) (string, error) {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(5 * time.Second):
			return `{"action":"like"}`, nil
		}
	})
	c := newTestClient(slow)

	start := time.Now()
	d, err := c.Decide(context.Background(), positivePersona(), schemas.ObservedContent{Text: "x"})
	require.NoError(t, err)
	assert.True(t, d.Fallback)
	assert.Less(t, time.Since(start), 2*time.Second, "must not block past the decision timeout")
}

func TestDecideCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c := newTestClient(&stubProvider{response: `{"action":"like"}`})

	_, err := c.Decide(ctx, positivePersona(), schemas.ObservedContent{Text: "x"})
	assert.ErrorIs(t, err, context.Canceled)
}

type providerFunc func(ctx context.Context, prompt string) (string, error)

func (f providerFunc) name() string       { return "func" }
func (f providerFunc) caps() capabilities { return capabilities{} }
func (f providerFunc) generate(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

// -- Rule based decisions --

func TestRuleClientDeterminism(t *testing.T) {
	c := NewRuleClient("promote vegan skincare")
	observed := schemas.ObservedContent{
		Author:   "influencer_ami",
		Text:     "New vegan skincare drop, all natural ingredients #skincare #environment",
		Hashtags: []string{"skincare", "environment"},
	}

	first, err := c.Decide(context.Background(), positivePersona(), observed)
	require.NoError(t, err)
	second, err := c.Decide(context.Background(), positivePersona(), observed)
	require.NoError(t, err)
	assert.Equal(t, first, second, "rule decisions must be deterministic")
	assert.True(t, first.Fallback)
	assert.NotEqual(t, schemas.ActionSkip, first.Action,
		"a high-affinity post should trigger engagement, got %s (%s)", first.Action, first.Reasoning)
}

func TestRuleClientNegativeBiasIsHarderToPlease(t *testing.T) {
	observed := schemas.ObservedContent{Text: "mildly interesting memes post"}
	memer := schemas.Persona{
		ID:           "cynical-memer",
		Interests:    []string{"memes", "authenticity", "pop culture"},
		Tone:         "dry and skeptical",
		ReactionBias: schemas.BiasNegative,
	}

	d := DecideWithRules(memer, observed, "sell product")
	// One weak interest hit over three interests stays under the negative-bias
	// like threshold.
	assert.Equal(t, schemas.ActionSkip, d.Action, d.Reasoning)
}

func TestRuleClientZeroAffinity(t *testing.T) {
	d := DecideWithRules(positivePersona(), schemas.ObservedContent{Text: "quarterly earnings report"}, "")
	assert.Equal(t, schemas.ActionSkip, d.Action)
}

// -- Provider plumbing --

func TestGeminiProviderAgainstFake(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-key", r.Header.Get("x-goog-api-key"))
		fmt.Fprint(w, `{"candidates": [{"content": {"parts": [{"text": "{\"action\":\"like\"}"}]}}]}`)
	}))
	defer srv.Close()

	p, err := newGeminiProvider(config.LLMConfig{
		APIKey:  "test-key",
		BaseURL: srv.URL,
		Model:   "gemini-test",
		Timeout: 5 * time.Second,
	})
	require.NoError(t, err)

	out, err := p.generate(context.Background(), "prompt")
	require.NoError(t, err)
	assert.Contains(t, out, `"action"`)
}

func TestGeminiProviderPermanentErrorOn4xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad request", http.StatusBadRequest)
	}))
	defer srv.Close()

	p, err := newGeminiProvider(config.LLMConfig{
		APIKey: "k", BaseURL: srv.URL, Model: "m", Timeout: 5 * time.Second,
	})
	require.NoError(t, err)

	_, genErr := p.generate(context.Background(), "prompt")
	require.Error(t, genErr)

	// backoff wraps permanent errors; feeding the error back through Retry
	// must stop after a single attempt.
	attempts := 0
	_ = backoff.Retry(func() error {
		attempts++
		return genErr
	}, backoff.WithMaxRetries(backoff.NewConstantBackOff(time.Millisecond), 5))
	assert.Equal(t, 1, attempts, "4xx responses must not be retried")
}
