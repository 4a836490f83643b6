package sns

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/crowdsim-cli/api/schemas"
	"github.com/xkilldash9x/crowdsim-cli/internal/config"
)

func testConfig(baseURL string) config.SNSConfig {
	return config.SNSConfig{
		BaseURL:     baseURL,
		Password:    "password",
		WriteRate:   1000, // effectively unlimited in tests
		AccountPool: 10,
	}
}

func newTestClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	c, err := NewClient(testConfig(baseURL), Account{
		Email: "agent1@local.dev", Username: "agent1", Password: "password",
	}, zap.NewNop())
	require.NoError(t, err)
	return c
}

// fakeSurface is a minimal stand-in for the social network.
type fakeSurface struct {
	mu       sync.Mutex
	likes    []string
	comments []string
	follows  []string
	failNext bool
}

func (f *fakeSurface) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><head><meta name="csrf-token" content="tok-123"></head><body></body></html>`)
	})
	mux.HandleFunc("/login", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/feed", http.StatusFound)
	})
	mux.HandleFunc("/feed", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "<html><body>feed</body></html>")
	})
	mux.HandleFunc("/api/pixelfed/v1/timelines/home", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[
			{"id": "p1", "content": "<p>Vegan <b>skincare</b> launch</p>", "account": {"id": "a9", "username": "influencer_ami"}, "tags": [{"name": "skincare"}]},
			{"id": "p2", "content": "plain post", "account": {"id": "a2", "username": "someone"}}
		]`)
	})
	mux.HandleFunc("/i/like", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		if r.Header.Get("X-CSRF-TOKEN") != "tok-123" {
			http.Error(w, "csrf", http.StatusForbidden)
			return
		}
		if f.failNext {
			f.failNext = false
			http.Error(w, "nope", http.StatusUnprocessableEntity)
			return
		}
		var payload map[string]any
		_ = jsonDecode(r, &payload)
		f.likes = append(f.likes, fmt.Sprint(payload["item"]))
		fmt.Fprint(w, `{"ok": true}`)
	})
	mux.HandleFunc("/i/comment", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		var payload map[string]any
		_ = jsonDecode(r, &payload)
		f.comments = append(f.comments, fmt.Sprint(payload["comment"]))
		fmt.Fprint(w, `{"ok": true}`)
	})
	mux.HandleFunc("/api/v1/accounts/", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.follows = append(f.follows, r.URL.Path)
		fmt.Fprint(w, `{"ok": true}`)
	})
	return mux
}

func jsonDecode(r *http.Request, v any) error {
	return json.NewDecoder(r.Body).Decode(v)
}

func TestLoginAndWrites(t *testing.T) {
	surface := &fakeSurface{}
	srv := httptest.NewServer(surface.handler())
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	ctx := context.Background()

	require.NoError(t, c.Login(ctx))
	assert.Equal(t, "tok-123", c.csrfToken)

	resp, err := c.Like(ctx, "p1")
	require.NoError(t, err)
	assert.True(t, resp.OK)

	resp, err = c.Comment(ctx, "p1", "love it")
	require.NoError(t, err)
	assert.True(t, resp.OK)

	resp, err = c.Follow(ctx, "a9")
	require.NoError(t, err)
	assert.True(t, resp.OK)

	assert.Equal(t, []string{"p1"}, surface.likes)
	assert.Equal(t, []string{"love it"}, surface.comments)
}

func TestRejectedWriteIsLogicalFailure(t *testing.T) {
	surface := &fakeSurface{failNext: true}
	srv := httptest.NewServer(surface.handler())
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	require.NoError(t, c.Login(context.Background()))

	resp, err := c.Like(context.Background(), "p1")
	require.NoError(t, err, "a rejected write is data, not an error")
	assert.False(t, resp.OK)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.Status)
}

func TestUnreachableSurfaceIsTransportError(t *testing.T) {
	c := newTestClient(t, "http://127.0.0.1:1")

	_, err := c.Like(context.Background(), "p1")
	require.Error(t, err)
	var transport *schemas.TransportError
	assert.True(t, errors.As(err, &transport))
}

func TestTimeline(t *testing.T) {
	surface := &fakeSurface{}
	srv := httptest.NewServer(surface.handler())
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	posts, err := c.Timeline(context.Background(), 12)
	require.NoError(t, err)
	require.Len(t, posts, 2)
	assert.Equal(t, "p1", posts[0].ID)
	assert.Equal(t, "influencer_ami", posts[0].Author)
	assert.Equal(t, "Vegan skincare launch", posts[0].Content)
	assert.Equal(t, []string{"skincare"}, posts[0].Hashtags)
}

func TestBrotliResponseDecoding(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var buf bytes.Buffer
		bw := brotli.NewWriter(&buf)
		_, _ = bw.Write([]byte(`[]`))
		require.NoError(t, bw.Close())
		w.Header().Set("Content-Encoding", "br")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(buf.Bytes())
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	posts, err := c.Timeline(context.Background(), 5)
	require.NoError(t, err)
	assert.Empty(t, posts)
}

func TestExtractText(t *testing.T) {
	assert.Equal(t, "Vegan skincare launch",
		ExtractText("<p>Vegan <b>skincare</b>\n launch</p>"))
	assert.Equal(t, "plain", ExtractText("plain"))
	assert.Equal(t, "", ExtractText(""))
	assert.Equal(t, "visible", ExtractText("<div>visible<script>hidden()</script></div>"))
}

func TestAccountPool(t *testing.T) {
	pool := NewPool(AgentAccounts(2, "password"))
	ctx := context.Background()

	first, err := pool.Checkout(ctx)
	require.NoError(t, err)
	second, err := pool.Checkout(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, first.Username, second.Username)
	assert.Zero(t, pool.Available())

	// An exhausted pool blocks until a return or cancellation.
	blocked, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	_, err = pool.Checkout(blocked)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	pool.Return(first)
	third, err := pool.Checkout(ctx)
	require.NoError(t, err)
	assert.Equal(t, first.Username, third.Username)
}

func TestAgentAccountsClamped(t *testing.T) {
	assert.Len(t, AgentAccounts(0, "p"), 1)
	assert.Len(t, AgentAccounts(25, "p"), 10)
	assert.Equal(t, "agent1", AgentAccounts(3, "p")[0].Username)
}
