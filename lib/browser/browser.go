// Package browser wraps a single headless chrome page. One Session is
// one page in one browser process; sessions are never pooled or shared,
// a hung page is thrown away together with its process.
package browser

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
)

type Options struct {
	Headless bool `json:"headless"`
	// required on most container runtimes
	NoSandbox bool   `json:"no_sandbox"`
	UserAgent string `json:"user_agent"`
	// how long to let in-flight requests settle after a navigation,
	// the target SPA keeps loading well past the load event
	NetworkSettle time.Duration `json:"-"`

	WindowWidth  int `json:"window_width"`
	WindowHeight int `json:"window_height"`
}

func DefaultOptions() Options {
	return Options{
		Headless:      true,
		NoSandbox:     true,
		NetworkSettle: time.Second,
		WindowWidth:   1280,
		WindowHeight:  800,
	}
}

type Session struct {
	opts Options

	browserCtx    context.Context
	browserCancel context.CancelFunc
	allocCancel   context.CancelFunc
}

// Launch starts a fresh browser process and opens one page.
func Launch(ctx context.Context, opts Options) (*Session, error) {
	if opts.NetworkSettle <= 0 {
		opts.NetworkSettle = time.Second
	}
	if opts.WindowWidth <= 0 || opts.WindowHeight <= 0 {
		opts.WindowWidth = 1280
		opts.WindowHeight = 800
	}

	allocOpts := append(
		chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", opts.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("no-zygote", true),
		chromedp.WindowSize(opts.WindowWidth, opts.WindowHeight),
	)
	if opts.NoSandbox {
		allocOpts = append(allocOpts,
			chromedp.Flag("no-sandbox", true),
			chromedp.Flag("disable-setuid-sandbox", true),
		)
	}
	if opts.UserAgent != "" {
		allocOpts = append(allocOpts, chromedp.UserAgent(opts.UserAgent))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, allocOpts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	// an empty Run forces the browser process to actually start, so
	// launch failures surface here instead of on the first navigation
	if err := chromedp.Run(browserCtx, network.Enable()); err != nil {
		browserCancel()
		allocCancel()
		return nil, err
	}

	return &Session{
		opts:          opts,
		browserCtx:    browserCtx,
		browserCancel: browserCancel,
		allocCancel:   allocCancel,
	}, nil
}

// Close tears down the page and its browser process, aborting any
// in-flight operations.
func (s *Session) Close() error {
	s.browserCancel()
	s.allocCancel()
	return nil
}

// run executes actions against the page, bounded both by the step
// timeout and by the caller's context.
func (s *Session) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithTimeout(s.browserCtx, timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	return chromedp.Run(runCtx, actions...)
}

func (s *Session) Navigate(ctx context.Context, url string, timeout time.Duration) error {
	return s.run(ctx, timeout,
		chromedp.Navigate(url),
		chromedp.Sleep(s.opts.NetworkSettle),
	)
}

func (s *Session) Location(ctx context.Context) (string, error) {
	var loc string
	err := s.run(ctx, 10*time.Second, chromedp.Location(&loc))
	return loc, err
}

func (s *Session) WaitVisible(ctx context.Context, sel string, timeout time.Duration) error {
	return s.run(ctx, timeout, chromedp.WaitVisible(sel, chromedp.ByQuery))
}

func (s *Session) SendKeys(ctx context.Context, sel, value string, timeout time.Duration) error {
	return s.run(ctx, timeout, chromedp.SendKeys(sel, value, chromedp.ByQuery))
}

func (s *Session) Click(ctx context.Context, sel string, timeout time.Duration) error {
	return s.run(ctx, timeout, chromedp.Click(sel, chromedp.ByQuery))
}

func (s *Session) Eval(ctx context.Context, js string, out any, timeout time.Duration) error {
	return s.run(ctx, timeout, chromedp.Evaluate(js, out))
}

func (s *Session) HTML(ctx context.Context, timeout time.Duration) (string, error) {
	var html string
	err := s.run(ctx, timeout, chromedp.OuterHTML("html", &html, chromedp.ByQuery))
	return html, err
}

// FrameHTML returns the rendered html of the first same-origin frame
// whose URL contains urlSubstr, falling back to the main document when
// no frame matches. The portal serves result grids inside legacy
// framesets, sometimes directly in the page.
func (s *Session) FrameHTML(ctx context.Context, urlSubstr string, timeout time.Duration) (string, error) {
	js := `(function(needle) {
		for (let i = 0; i < window.frames.length; i++) {
			try {
				const f = window.frames[i];
				if (f.location.href.indexOf(needle) !== -1) {
					return f.document.documentElement.outerHTML;
				}
			} catch (e) {}
		}
		return document.documentElement.outerHTML;
	})(` + strconv.Quote(urlSubstr) + `)`

	var html string
	err := s.run(ctx, timeout, chromedp.Evaluate(js, &html))
	return html, err
}

// Cookies exports the page's cookies so that direct (non-browser)
// requests can reuse the authenticated session.
func (s *Session) Cookies(ctx context.Context, urls ...string) ([]*http.Cookie, error) {
	var raw []*network.Cookie
	err := s.run(ctx, 10*time.Second, chromedp.ActionFunc(func(ctx context.Context) error {
		req := network.GetCookies()
		if len(urls) > 0 {
			req = req.WithUrls(urls)
		}
		var err error
		raw, err = req.Do(ctx)
		return err
	}))
	if err != nil {
		return nil, err
	}

	cookies := make([]*http.Cookie, len(raw))
	for i, c := range raw {
		cookies[i] = &http.Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Secure:   c.Secure,
			HttpOnly: c.HTTPOnly,
		}
		if c.Expires > 0 {
			cookies[i].Expires = time.Unix(int64(c.Expires), 0)
		}
	}
	return cookies, nil
}

// Screenshot is best-effort diagnostic capture; failures are reported
// but never fatal to the operation being diagnosed.
func (s *Session) Screenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	err := s.run(ctx, 10*time.Second, chromedp.CaptureScreenshot(&buf))
	if err != nil {
		slog.WarnContext(ctx, "screenshot capture failed", "err", err)
		return nil, err
	}
	return buf, nil
}
