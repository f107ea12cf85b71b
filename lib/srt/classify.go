package srt

import (
	"net/url"
	"strings"
)

// Location tags where a navigation landed. Login success and session
// validity are judged by the resulting URL, never by page content.
type Location int

const (
	LocationUnknown Location = iota
	// the AFIP identity provider
	LocationIdp
	// anywhere on the e-Servicios portal
	LocationTarget
	// a portal page that signals a dead session
	LocationErrorPage
)

func (l Location) String() string {
	switch l {
	case LocationIdp:
		return "idp"
	case LocationTarget:
		return "target"
	case LocationErrorPage:
		return "error_page"
	default:
		return "unknown"
	}
}

var errorPageMarkers = []string{
	"sesioninvalida",
	"sessioninvalida",
	"/error.aspx",
}

// ClassifyLocation maps a browser URL to a Location. Unparseable URLs
// and third-party hosts classify as unknown.
func ClassifyLocation(rawurl string) Location {
	u, err := url.Parse(rawurl)
	if err != nil {
		return LocationUnknown
	}
	host := strings.ToLower(u.Hostname())
	path := strings.ToLower(u.Path)

	if host == "afip.gob.ar" || strings.HasSuffix(host, ".afip.gob.ar") {
		return LocationIdp
	}
	if host == "srt.gob.ar" || strings.HasSuffix(host, ".srt.gob.ar") {
		for _, marker := range errorPageMarkers {
			if strings.Contains(path, marker) {
				return LocationErrorPage
			}
		}
		return LocationTarget
	}
	return LocationUnknown
}
