package srt

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var (
	ErrLoginFailed = errors.New("login to the portal failed")
	ErrNavigation  = errors.New("portal navigation landed on an error page")
)

func (c *Client) settle(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}

// Login navigates to the portal entry point and, when bounced to the
// AFIP identity provider, walks the two-step credential form. Success
// is judged purely by where the browser ends up: back on the portal
// means logged in, anywhere else means failure. No retries; the caller
// owns retry policy.
func (c *Client) Login(ctx context.Context, cuit, password string) error {
	ctx, span := tracer.Start(ctx, "client:Login")
	defer span.End()

	err := c.page.Navigate(ctx, c.endpoints.EServiciosHome, c.timeouts.EntryNavigation)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "entry navigation failed")
		return err
	}

	loc, err := c.page.Location(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to read location")
		return err
	}

	switch ClassifyLocation(loc) {
	case LocationTarget:
		// an earlier session is still alive
		slog.InfoContext(ctx, "already authenticated", "url", loc)
	case LocationIdp:
		if err := c.submitIdpForm(ctx, cuit, password); err != nil {
			return err
		}
	default:
		span.SetStatus(codes.Error, "entry landed on unexpected host")
		c.capture(ctx, "login-unexpected-host")
		return ErrLoginFailed
	}

	loc, err = c.page.Location(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to read post-login location")
		return err
	}
	span.SetAttributes(attribute.String("post_login_url", loc))

	if ClassifyLocation(loc) != LocationTarget {
		slog.WarnContext(ctx, "login did not reach the portal", "url", loc)
		span.SetStatus(codes.Error, "login failed")
		c.capture(ctx, "login-failed")
		return ErrLoginFailed
	}

	if err := c.syncCookies(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to export session cookies")
		return err
	}

	slog.InfoContext(ctx, "authenticated", "url", loc)
	return nil
}

// submitIdpForm types the CUIT, advances to the password step and
// submits. The intermediate navigation after "next" is best effort:
// some IdP variants swap the form in place without navigating.
func (c *Client) submitIdpForm(ctx context.Context, cuit, password string) error {
	ctx, span := tracer.Start(ctx, "client:submitIdpForm")
	defer span.End()

	fail := func(stage string, err error) error {
		span.RecordError(err)
		span.SetStatus(codes.Error, stage)
		c.capture(ctx, "idp-"+stage)
		return err
	}

	sel, err := c.locate(ctx, locatorUsername)
	if err != nil {
		return fail("username-field", err)
	}
	if err := c.page.SendKeys(ctx, sel, cuit, c.timeouts.SelectorWait); err != nil {
		return fail("username-type", err)
	}
	c.settle(ctx, c.timeouts.Settle/2)

	sel, err = c.locate(ctx, locatorNext)
	if err != nil {
		return fail("next-button", err)
	}
	if err := c.page.Click(ctx, sel, c.timeouts.NextNavigation); err != nil {
		slog.WarnContext(ctx, "next step did not navigate, continuing", "err", err)
	}
	c.settle(ctx, c.timeouts.Settle)

	sel, err = c.locate(ctx, locatorPassword)
	if err != nil {
		return fail("password-field", err)
	}
	if err := c.page.SendKeys(ctx, sel, password, c.timeouts.SelectorWait); err != nil {
		return fail("password-type", err)
	}
	c.settle(ctx, c.timeouts.Settle/2)

	sel, err = c.locate(ctx, locatorSubmit)
	if err != nil {
		return fail("submit-button", err)
	}
	if err := c.page.Click(ctx, sel, c.timeouts.SubmitNavigation); err != nil {
		return fail("submit", err)
	}
	c.settle(ctx, c.timeouts.PostLoginSettle)

	return nil
}

// NavigateExpedientes opens the case listing page, which the list and
// PDF endpoints require as referer context.
func (c *Client) NavigateExpedientes(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "client:NavigateExpedientes")
	defer span.End()

	err := c.page.Navigate(ctx, c.endpoints.Expedientes, c.timeouts.ListNavigation)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "navigation failed")
		return err
	}
	c.settle(ctx, c.timeouts.Settle)

	loc, err := c.page.Location(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to read location")
		return err
	}
	if ClassifyLocation(loc) != LocationTarget {
		slog.WarnContext(ctx, "case listing unreachable", "url", loc)
		span.SetStatus(codes.Error, "landed off the portal")
		return ErrNavigation
	}
	return nil
}
