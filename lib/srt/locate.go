package srt

import (
	"context"
	"log/slog"
	"time"
)

// The IdP form ids are JSF-generated and have shifted between portal
// releases. Each field carries an ordered fallback list; the first
// selector that becomes visible wins and the choice is logged so a
// selector rot shows up in the logs before it becomes an outage.
type fieldLocator struct {
	name      string
	selectors []string
}

var (
	locatorUsername = fieldLocator{
		name: "username",
		selectors: []string{
			`#F1\:username`,
			`input[name="F1:username"]`,
			`input[type="text"][id*="username"]`,
		},
	}
	locatorNext = fieldLocator{
		name: "next",
		selectors: []string{
			`#F1\:btnSiguiente`,
			`input[name="F1:btnSiguiente"]`,
			`input[type="submit"][value*="Siguiente"]`,
		},
	}
	locatorPassword = fieldLocator{
		name: "password",
		selectors: []string{
			`#F1\:password`,
			`input[name="F1:password"]`,
			`input[type="password"]`,
		},
	}
	locatorSubmit = fieldLocator{
		name: "submit",
		selectors: []string{
			`#F1\:btnIngresar`,
			`input[name="F1:btnIngresar"]`,
			`input[type="submit"][value*="Ingresar"]`,
		},
	}
)

// locate waits for the first selector in the fallback list to become
// visible. The full wait timeout is granted to the primary selector;
// fallbacks get a short probe each since by then the form is loaded.
func (c *Client) locate(ctx context.Context, loc fieldLocator) (string, error) {
	var lastErr error
	for i, sel := range loc.selectors {
		timeout := c.timeouts.SelectorWait
		if i > 0 {
			timeout = 2 * time.Second
		}
		err := c.page.WaitVisible(ctx, sel, timeout)
		if err == nil {
			if i > 0 {
				slog.WarnContext(ctx, "idp field found via fallback selector",
					"field", loc.name, "selector", sel)
			}
			return sel, nil
		}
		lastErr = err
	}
	return "", lastErr
}
