package srt

import (
	"context"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"time"

	"srtrelay-backend/lib/telemetry"

	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("lib/srt")

// Page is the subset of the browser session the client drives. Tests
// substitute a scripted fake.
type Page interface {
	Navigate(ctx context.Context, url string, timeout time.Duration) error
	Location(ctx context.Context) (string, error)
	WaitVisible(ctx context.Context, sel string, timeout time.Duration) error
	SendKeys(ctx context.Context, sel, value string, timeout time.Duration) error
	Click(ctx context.Context, sel string, timeout time.Duration) error
	FrameHTML(ctx context.Context, urlSubstr string, timeout time.Duration) (string, error)
	Cookies(ctx context.Context, urls ...string) ([]*http.Cookie, error)
	Screenshot(ctx context.Context) ([]byte, error)
	HTML(ctx context.Context, timeout time.Duration) (string, error)
}

// Timeouts bounds each step of the login state machine. The entry
// navigation is generous because the IdP redirect chain is slow; the
// intermediate "next" navigation may not happen at all (single-page
// variants of the form), so its failure is tolerated.
type Timeouts struct {
	EntryNavigation  time.Duration
	SelectorWait     time.Duration
	NextNavigation   time.Duration
	SubmitNavigation time.Duration
	ListNavigation   time.Duration
	Settle           time.Duration
	PostLoginSettle  time.Duration
}

func DefaultTimeouts() Timeouts {
	return Timeouts{
		EntryNavigation:  60 * time.Second,
		SelectorWait:     10 * time.Second,
		NextNavigation:   15 * time.Second,
		SubmitNavigation: 30 * time.Second,
		ListNavigation:   30 * time.Second,
		Settle:           time.Second,
		PostLoginSettle:  3 * time.Second,
	}
}

type Options struct {
	Endpoints Endpoints
	Timeouts  Timeouts
	// optional; receives screenshot + html dumps on login failure
	Diagnostics DiagnosticSink
}

// Client drives an authenticated portal session: the browser page for
// login and frame navigation, a resty client carrying the exported
// session cookies for direct resource fetches.
type Client struct {
	page      Page
	endpoints Endpoints
	timeouts  Timeouts
	diag      DiagnosticSink
	http      *resty.Client
}

func NewClient(page Page, opts Options) (*Client, error) {
	if opts.Endpoints == (Endpoints{}) {
		opts.Endpoints = DefaultEndpoints()
	}
	if opts.Timeouts == (Timeouts{}) {
		opts.Timeouts = DefaultTimeouts()
	}

	base, err := url.Parse(opts.Endpoints.EServiciosHome)
	if err != nil {
		return nil, err
	}

	client := resty.New()
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	client.SetCookieJar(jar)
	client.SetRedirectPolicy(resty.DomainCheckRedirectPolicy(base.Hostname()))
	client.SetTimeout(30 * time.Second)
	telemetry.InstrumentResty(client, "lib/srt/http")

	return &Client{
		page:      page,
		endpoints: opts.Endpoints,
		timeouts:  opts.Timeouts,
		diag:      opts.Diagnostics,
		http:      client,
	}, nil
}

// syncCookies copies the browser's session cookies into the resty jar
// so direct fetches ride the logged-in session.
func (c *Client) syncCookies(ctx context.Context) error {
	cookies, err := c.page.Cookies(ctx, c.endpoints.EServiciosHome)
	if err != nil {
		return err
	}
	base, err := url.Parse(c.endpoints.EServiciosHome)
	if err != nil {
		return err
	}
	c.http.GetClient().Jar.SetCookies(base, cookies)
	return nil
}
