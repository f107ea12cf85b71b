package srt

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// fakePage scripts a browser: Location reports the head of the
// scripted sequence, each click advances it, and only selectors in
// `visible` resolve.
type fakePage struct {
	locations []string
	visible   map[string]bool

	navigated []string
	typed     map[string]string
	clicked   []string
	frameHtml string
}

func newFakePage(locations []string, visible ...string) *fakePage {
	vis := map[string]bool{}
	for _, sel := range visible {
		vis[sel] = true
	}
	return &fakePage{locations: locations, visible: vis, typed: map[string]string{}}
}

func (p *fakePage) advance() {
	if len(p.locations) > 1 {
		p.locations = p.locations[1:]
	}
}

func (p *fakePage) Navigate(ctx context.Context, url string, timeout time.Duration) error {
	p.navigated = append(p.navigated, url)
	return nil
}

func (p *fakePage) Location(ctx context.Context) (string, error) {
	return p.locations[0], nil
}

func (p *fakePage) WaitVisible(ctx context.Context, sel string, timeout time.Duration) error {
	if p.visible[sel] {
		return nil
	}
	return errors.New("selector did not become visible")
}

func (p *fakePage) SendKeys(ctx context.Context, sel, value string, timeout time.Duration) error {
	p.typed[sel] = value
	return nil
}

func (p *fakePage) Click(ctx context.Context, sel string, timeout time.Duration) error {
	p.clicked = append(p.clicked, sel)
	p.advance()
	return nil
}

func (p *fakePage) FrameHTML(ctx context.Context, urlSubstr string, timeout time.Duration) (string, error) {
	return p.frameHtml, nil
}

func (p *fakePage) Cookies(ctx context.Context, urls ...string) ([]*http.Cookie, error) {
	return []*http.Cookie{{Name: "ASP.NET_SessionId", Value: "abc123"}}, nil
}

func (p *fakePage) Screenshot(ctx context.Context) ([]byte, error) { return nil, nil }

func (p *fakePage) HTML(ctx context.Context, timeout time.Duration) (string, error) {
	return "<html></html>", nil
}

func fastTimeouts() Timeouts {
	return Timeouts{
		EntryNavigation:  time.Second,
		SelectorWait:     10 * time.Millisecond,
		NextNavigation:   10 * time.Millisecond,
		SubmitNavigation: 10 * time.Millisecond,
		ListNavigation:   time.Second,
		Settle:           time.Millisecond,
		PostLoginSettle:  time.Millisecond,
	}
}

func TestLoginViaIdp(t *testing.T) {
	page := newFakePage(
		[]string{
			"https://auth.afip.gob.ar/contribuyente_/login.xhtml",
			"https://auth.afip.gob.ar/contribuyente_/clave.xhtml",
			"https://eservicios.srt.gob.ar/home/Servicios.aspx",
		},
		`#F1\:username`, `#F1\:btnSiguiente`, `#F1\:password`, `#F1\:btnIngresar`,
	)
	client, err := NewClient(page, Options{Timeouts: fastTimeouts()})
	require.NoError(t, err)

	err = client.Login(context.Background(), "20123456789", "hunter2")
	require.NoError(t, err)
	require.Equal(t, "20123456789", page.typed[`#F1\:username`])
	require.Equal(t, "hunter2", page.typed[`#F1\:password`])
	require.Equal(t, []string{`#F1\:btnSiguiente`, `#F1\:btnIngresar`}, page.clicked)
}

func TestLoginAlreadyAuthenticated(t *testing.T) {
	page := newFakePage([]string{"https://eservicios.srt.gob.ar/home/Servicios.aspx"})
	client, err := NewClient(page, Options{Timeouts: fastTimeouts()})
	require.NoError(t, err)

	require.NoError(t, client.Login(context.Background(), "20123456789", "hunter2"))
	require.Empty(t, page.clicked, "no form interaction when the session is alive")
}

func TestLoginStuckOnIdp(t *testing.T) {
	// bad credentials: the submit lands back on the idp
	page := newFakePage(
		[]string{
			"https://auth.afip.gob.ar/contribuyente_/login.xhtml",
			"https://auth.afip.gob.ar/contribuyente_/clave.xhtml",
			"https://auth.afip.gob.ar/contribuyente_/login.xhtml?error=1",
		},
		`#F1\:username`, `#F1\:btnSiguiente`, `#F1\:password`, `#F1\:btnIngresar`,
	)
	client, err := NewClient(page, Options{Timeouts: fastTimeouts()})
	require.NoError(t, err)

	err = client.Login(context.Background(), "20123456789", "wrong")
	require.ErrorIs(t, err, ErrLoginFailed)
}

func TestLoginUnexpectedHost(t *testing.T) {
	page := newFakePage([]string{"https://maintenance.example.com/"})
	client, err := NewClient(page, Options{Timeouts: fastTimeouts()})
	require.NoError(t, err)

	err = client.Login(context.Background(), "20123456789", "hunter2")
	require.ErrorIs(t, err, ErrLoginFailed)
}

func TestLoginFallbackSelector(t *testing.T) {
	// primary username id rotated away; the name-based fallback works
	page := newFakePage(
		[]string{
			"https://auth.afip.gob.ar/contribuyente_/login.xhtml",
			"https://auth.afip.gob.ar/contribuyente_/clave.xhtml",
			"https://eservicios.srt.gob.ar/home/Servicios.aspx",
		},
		`input[name="F1:username"]`, `#F1\:btnSiguiente`, `#F1\:password`, `#F1\:btnIngresar`,
	)
	client, err := NewClient(page, Options{Timeouts: fastTimeouts()})
	require.NoError(t, err)

	require.NoError(t, client.Login(context.Background(), "20123456789", "hunter2"))
	require.Equal(t, "20123456789", page.typed[`input[name="F1:username"]`])
}

func TestNavigateExpedientesInvalidSession(t *testing.T) {
	page := newFakePage([]string{
		"https://eservicios.srt.gob.ar/MiVentanilla/SesionInvalida.aspx",
	})
	client, err := NewClient(page, Options{Timeouts: fastTimeouts()})
	require.NoError(t, err)

	err = client.NavigateExpedientes(context.Background())
	require.ErrorIs(t, err, ErrNavigation)
}
