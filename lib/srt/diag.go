package srt

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// DiagnosticSink receives page state captured when a login attempt
// fails. Captures are best effort.
type DiagnosticSink interface {
	Capture(ctx context.Context, label string, screenshot []byte, html string)
}

// DirSink writes captures under a directory, one pair of files per
// capture.
type DirSink struct {
	Dir string
}

func (s DirSink) Capture(ctx context.Context, label string, screenshot []byte, html string) {
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		slog.WarnContext(ctx, "failed to create diagnostics dir", "dir", s.Dir, "err", err)
		return
	}
	stamp := time.Now().Format("20060102-150405")
	prefix := filepath.Join(s.Dir, fmt.Sprintf("%s-%s", stamp, label))

	if len(screenshot) > 0 {
		if err := os.WriteFile(prefix+".png", screenshot, 0o644); err != nil {
			slog.WarnContext(ctx, "failed to write diagnostic screenshot", "err", err)
		}
	}
	if html != "" {
		if err := os.WriteFile(prefix+".html", []byte(html), 0o644); err != nil {
			slog.WarnContext(ctx, "failed to write diagnostic html", "err", err)
		}
	}
}

// capture dumps the current page to the configured sink, if any.
func (c *Client) capture(ctx context.Context, label string) {
	if c.diag == nil {
		return
	}
	screenshot, _ := c.page.Screenshot(ctx)
	html, _ := c.page.HTML(ctx, 10*time.Second)
	c.diag.Capture(ctx, label, screenshot, html)
}
