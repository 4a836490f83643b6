package browser

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/crowdsim-cli/internal/config"
)

// Session is one isolated browser tab. It is used by a single agent and is
// not safe for concurrent use.
type Session struct {
	cfg    config.BrowserConfig
	logger *zap.Logger

	allocatorCtx context.Context
	ctx          context.Context
	cancel       context.CancelFunc

	closeOnce sync.Once
	onClose   func()
}

func newSession(allocatorCtx context.Context, cfg config.BrowserConfig, logger *zap.Logger) *Session {
	return &Session{
		cfg:          cfg,
		logger:       logger.Named("browser_session"),
		allocatorCtx: allocatorCtx,
	}
}

func (s *Session) initialize(ctx context.Context) error {
	tabCtx, cancel := chromedp.NewContext(s.allocatorCtx)
	s.ctx = tabCtx
	s.cancel = cancel

	// Force tab creation now so a broken browser surfaces here, not later.
	combined, cancelCombined := combineContext(tabCtx, ctx)
	defer cancelCombined()
	initCtx, cancelInit := context.WithTimeout(combined, 30*time.Second)
	defer cancelInit()
	if err := chromedp.Run(initCtx, chromedp.Navigate("about:blank")); err != nil {
		cancel()
		return fmt.Errorf("open tab: %w", err)
	}
	return nil
}

// run executes chromedp actions against the tab while honoring the caller's
// context cancellation.
func (s *Session) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := combineContext(s.ctx, ctx)
	defer cancel()
	return chromedp.Run(runCtx, actions...)
}

// Navigate loads the given URL and waits for the body to be ready.
func (s *Session) Navigate(ctx context.Context, url string) error {
	navCtx, cancel := context.WithTimeout(ctx, s.navigationTimeout())
	defer cancel()
	return s.run(navCtx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
}

// Login signs in on the surface's landing form and verifies the redirect to
// the feed.
func (s *Session) Login(ctx context.Context, baseURL, username string) error {
	if err := s.Navigate(ctx, baseURL); err != nil {
		return fmt.Errorf("navigate to login: %w", err)
	}

	var location string
	err := s.run(ctx,
		chromedp.WaitVisible("#username", chromedp.ByID),
		chromedp.Clear("#username", chromedp.ByID),
		chromedp.SendKeys("#username", username, chromedp.ByID),
		chromedp.Click(`button[type="submit"]`, chromedp.ByQuery),
		chromedp.Sleep(1500*time.Millisecond),
		chromedp.Location(&location),
	)
	if err != nil {
		return fmt.Errorf("submit login form: %w", err)
	}
	if !strings.Contains(location, "/feed") {
		return fmt.Errorf("login did not reach the feed (at %s)", location)
	}

	s.logger.Debug("Login complete", zap.String("location", location))
	return nil
}

// Screenshot captures the visible viewport as PNG bytes.
func (s *Session) Screenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	err := s.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		buf, err = page.CaptureScreenshot().WithFormat(page.CaptureScreenshotFormatPng).Do(ctx)
		return err
	}))
	if err != nil {
		return nil, fmt.Errorf("capture screenshot: %w", err)
	}
	return buf, nil
}

// Click clicks the first element matching the selector.
func (s *Session) Click(ctx context.Context, selector string) error {
	return s.run(ctx,
		chromedp.WaitVisible(selector, chromedp.ByQuery),
		chromedp.Click(selector, chromedp.ByQuery),
	)
}

// Type fills the first element matching the selector with text.
func (s *Session) Type(ctx context.Context, selector, text string) error {
	return s.run(ctx,
		chromedp.WaitVisible(selector, chromedp.ByQuery),
		chromedp.Clear(selector, chromedp.ByQuery),
		chromedp.SendKeys(selector, text, chromedp.ByQuery),
	)
}

// Exists reports whether the selector matches at least one node right now.
func (s *Session) Exists(ctx context.Context, selector string) (bool, error) {
	var count int
	script := fmt.Sprintf(`document.querySelectorAll(%q).length`, selector)
	if err := s.run(ctx, chromedp.Evaluate(script, &count)); err != nil {
		return false, err
	}
	return count > 0, nil
}

// Close tears down the tab. Safe to call more than once.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		if s.cancel != nil {
			s.cancel()
		}
		if s.onClose != nil {
			s.onClose()
		}
	})
}

func (s *Session) navigationTimeout() time.Duration {
	if s.cfg.NavigationTimeout > 0 {
		return s.cfg.NavigationTimeout
	}
	return 90 * time.Second
}

// combineContext derives a context from primary that is also cancelled when
// secondary is done. chromedp requires the tab's context chain, so plain
// context.WithCancel(secondary) would not do.
func combineContext(primary, secondary context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(primary)
	stop := context.AfterFunc(secondary, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}
