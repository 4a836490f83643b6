package sns

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/andybalholm/brotli"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/crowdsim-cli/api/schemas"
	"github.com/xkilldash9x/crowdsim-cli/internal/config"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var csrfMetaRe = regexp.MustCompile(`<meta\s+name="csrf-token"\s+content="([^"]+)"`)

// Post is one timeline status, normalized from the surface's API shape.
type Post struct {
	ID               string
	AccountID        string
	Author           string
	Content          string
	Hashtags         []string
	CommentsDisabled bool
}

// WriteResponse is the uniform outcome of one write call. OK=false is a
// logical failure (the surface rejected the write), not a transport error.
type WriteResponse struct {
	OK     bool
	Status int
	Detail string
}

// Client drives the surface's HTTP interface directly, without a browser.
// One client per agent; not safe for concurrent use by multiple agents.
type Client struct {
	baseURL    string
	account    Account
	httpClient *http.Client
	limiter    *rate.Limiter
	csrfToken  string
	logger     *zap.Logger
}

// NewClient builds a client bound to one account. The write limiter keeps
// direct agents from hammering the surface faster than a human plausibly would.
func NewClient(cfg config.SNSConfig, account Account, logger *zap.Logger) (*Client, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}

	writeRate := cfg.WriteRate
	if writeRate <= 0 {
		writeRate = 4.0
	}

	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		account: account,
		httpClient: &http.Client{
			Jar:     jar,
			Timeout: 30 * time.Second,
		},
		limiter: rate.NewLimiter(rate.Limit(writeRate), 1),
		logger:  logger.Named("sns").With(zap.String("account", account.Username)),
	}, nil
}

// Login establishes a session. The surface is a username-first prototype: it
// accepts the username on its landing form and redirects to /feed.
func (c *Client) Login(ctx context.Context) error {
	body, _, err := c.get(ctx, "/")
	if err != nil {
		return &schemas.TransportError{Op: "login", Err: err}
	}
	c.rememberCSRF(body)

	form := url.Values{}
	form.Set("username", c.account.Username)
	form.Set("password", c.account.Password)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/login", strings.NewReader(form.Encode()))
	if err != nil {
		return &schemas.TransportError{Op: "login", Err: err}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if c.csrfToken != "" {
		req.Header.Set("X-CSRF-TOKEN", c.csrfToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &schemas.TransportError{Op: "login", Err: err}
	}
	defer resp.Body.Close()
	respBody, err := readBody(resp)
	if err != nil {
		return &schemas.TransportError{Op: "login", Err: err}
	}

	if resp.StatusCode >= 400 {
		return &schemas.TransportError{Op: "login",
			Err: fmt.Errorf("login rejected with status %d", resp.StatusCode)}
	}
	c.rememberCSRF(respBody)

	c.logger.Debug("Login complete", zap.Int("status", resp.StatusCode))
	return nil
}

// Timeline fetches up to limit statuses from the home timeline.
func (c *Client) Timeline(ctx context.Context, limit int) ([]Post, error) {
	if limit < 1 {
		limit = 12
	}
	body, status, err := c.get(ctx, fmt.Sprintf("/api/pixelfed/v1/timelines/home?limit=%d", limit))
	if err != nil {
		return nil, &schemas.TransportError{Op: "timeline", Err: err}
	}
	if status >= 400 {
		return nil, &schemas.TransportError{Op: "timeline",
			Err: fmt.Errorf("timeline fetch returned status %d", status)}
	}

	var statuses []struct {
		ID      string `json:"id"`
		Content string `json:"content"`
		Account struct {
			ID       string `json:"id"`
			Username string `json:"username"`
		} `json:"account"`
		Tags []struct {
			Name string `json:"name"`
		} `json:"tags"`
		CommentsDisabled bool `json:"comments_disabled"`
	}
	if err := json.Unmarshal(body, &statuses); err != nil {
		return nil, &schemas.TransportError{Op: "timeline",
			Err: fmt.Errorf("parse timeline payload: %w", err)}
	}

	posts := make([]Post, 0, len(statuses))
	for _, s := range statuses {
		post := Post{
			ID:               s.ID,
			AccountID:        s.Account.ID,
			Author:           s.Account.Username,
			Content:          ExtractText(s.Content),
			CommentsDisabled: s.CommentsDisabled,
		}
		for _, tag := range s.Tags {
			post.Hashtags = append(post.Hashtags, tag.Name)
		}
		posts = append(posts, post)
	}
	return posts, nil
}

// Like marks a post as liked.
func (c *Client) Like(ctx context.Context, postID string) (WriteResponse, error) {
	return c.postJSON(ctx, "/i/like", map[string]any{"item": postID})
}

// Comment leaves a comment on a post.
func (c *Client) Comment(ctx context.Context, postID, text string) (WriteResponse, error) {
	return c.postJSON(ctx, "/i/comment", map[string]any{
		"item":      postID,
		"comment":   text,
		"sensitive": false,
	})
}

// Follow follows the given account.
func (c *Client) Follow(ctx context.Context, accountID string) (WriteResponse, error) {
	return c.postJSON(ctx, fmt.Sprintf("/api/v1/accounts/%s/follow", accountID), map[string]any{})
}

func (c *Client) postJSON(ctx context.Context, path string, payload map[string]any) (WriteResponse, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return WriteResponse{}, err
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return WriteResponse{}, fmt.Errorf("marshal payload for %s: %w", path, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return WriteResponse{}, &schemas.TransportError{Op: path, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Requested-With", "XMLHttpRequest")
	if c.csrfToken != "" {
		req.Header.Set("X-CSRF-TOKEN", c.csrfToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Surface unreachable: fatal to this agent.
		return WriteResponse{}, &schemas.TransportError{Op: path, Err: err}
	}
	defer resp.Body.Close()
	respBody, err := readBody(resp)
	if err != nil {
		return WriteResponse{}, &schemas.TransportError{Op: path, Err: err}
	}

	out := WriteResponse{
		OK:     resp.StatusCode >= 200 && resp.StatusCode < 300,
		Status: resp.StatusCode,
	}
	if !out.OK {
		out.Detail = strings.TrimSpace(truncate(string(respBody), 200))
		c.logger.Warn("Write rejected by surface",
			zap.String("path", path),
			zap.Int("status", resp.StatusCode))
	}
	return out, nil
}

func (c *Client) get(ctx context.Context, path string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Accept-Encoding", "br")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()
	body, err := readBody(resp)
	if err != nil {
		return nil, resp.StatusCode, err
	}
	return body, resp.StatusCode, nil
}

func (c *Client) rememberCSRF(body []byte) {
	if m := csrfMetaRe.FindSubmatch(body); m != nil {
		c.csrfToken = string(m[1])
	}
}

// readBody drains a response body, transparently decoding brotli when the
// surface (or a proxy in front of it) compressed the payload.
func readBody(resp *http.Response) ([]byte, error) {
	var reader io.Reader = resp.Body
	if strings.EqualFold(resp.Header.Get("Content-Encoding"), "br") {
		reader = brotli.NewReader(resp.Body)
	}
	return io.ReadAll(reader)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
