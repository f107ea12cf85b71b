package srt

import (
	"bytes"
	"regexp"
	"strconv"
	"strings"
	"time"

	"srtrelay-backend/lib/timezone"
)

var dotNetDateRegex = regexp.MustCompile(`\/Date\((\d+)\)\/`)

// ParseDotNetDate parses the legacy ASP.NET json date encoding
// `/Date(<millis>)/`. Malformed input yields nil, never an error; the
// portal emits these inconsistently and a bad date must not sink a
// whole record.
func ParseDotNetDate(raw string) *time.Time {
	groups := dotNetDateRegex.FindStringSubmatch(raw)
	if len(groups) < 2 {
		return nil
	}
	millis, err := strconv.ParseInt(groups[1], 10, 64)
	if err != nil {
		return nil
	}
	t := time.UnixMilli(millis).In(timezone.Location)
	return &t
}

var fechaSrtRegex = regexp.MustCompile(`(\d{2})\/(\d{2})\/(\d{4})\s*(\d{2})?:?(\d{2})?`)

// ParseFechaSrt parses the display format `dd/mm/yyyy hh:mm` used in
// the communications grid. The time part is optional. Dates are taken
// as portal-local.
func ParseFechaSrt(raw string) *time.Time {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	groups := fechaSrtRegex.FindStringSubmatch(raw)
	if groups == nil {
		return nil
	}
	day, _ := strconv.Atoi(groups[1])
	month, _ := strconv.Atoi(groups[2])
	year, _ := strconv.Atoi(groups[3])
	hour := 0
	if groups[4] != "" {
		hour, _ = strconv.Atoi(groups[4])
	}
	minute := 0
	if groups[5] != "" {
		minute, _ = strconv.Atoi(groups[5])
	}

	t := time.Date(year, time.Month(month), day, hour, minute, 0, 0, timezone.Location)
	return &t
}

var (
	jurisdictionRegex = regexp.MustCompile(`(?i)^(CABA|MATANZA|LOMAS|QUILMES|MORON|SAN MARTIN|LA PLATA|AVELLANEDA)?\s*\/?\s*`)
	numeroSrtRegex    = regexp.MustCompile(`(\d+)\s*\/\s*(\d+)`)
)

// NormalizeNumero canonicalizes a case number to `NNNNNN/YY`: strips
// the jurisdiction prefix, folds `-` separators to `/` and drops
// surrounding noise. Returns "" when no number can be recognized.
// Idempotent, so already-normalized values pass through unchanged.
func NormalizeNumero(numero string) string {
	clean := jurisdictionRegex.ReplaceAllString(numero, "")
	clean = strings.TrimSpace(clean)
	clean = strings.ReplaceAll(clean, "-", "/")
	groups := numeroSrtRegex.FindStringSubmatch(clean)
	if groups == nil {
		return ""
	}
	return groups[1] + "/" + groups[2]
}

var pdfMagic = []byte("%PDF")

// IsPdf reports whether data starts with the PDF magic bytes. The
// portal answers download requests for missing documents with html
// error pages and a 200 status, so the body has to be sniffed.
func IsPdf(data []byte) bool {
	return bytes.HasPrefix(data, pdfMagic)
}
