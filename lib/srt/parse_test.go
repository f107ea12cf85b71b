package srt

import (
	"testing"
	"time"

	"srtrelay-backend/lib/timezone"

	"github.com/stretchr/testify/require"
)

func TestParseDotNetDate(t *testing.T) {
	got := ParseDotNetDate("/Date(1700000000000)/")
	require.NotNil(t, got)
	require.Equal(t, time.UnixMilli(1700000000000).In(timezone.Location), *got)

	require.Nil(t, ParseDotNetDate(""))
	require.Nil(t, ParseDotNetDate("2023-11-14"))
	require.Nil(t, ParseDotNetDate("/Date()/"))
	require.Nil(t, ParseDotNetDate("/Date(abc)/"))
}

func TestParseFechaSrt(t *testing.T) {
	got := ParseFechaSrt("14/03/2024 09:15")
	require.NotNil(t, got)
	require.Equal(t, time.Date(2024, 3, 14, 9, 15, 0, 0, timezone.Location), *got)

	got = ParseFechaSrt("14/03/2024")
	require.NotNil(t, got)
	require.Equal(t, time.Date(2024, 3, 14, 0, 0, 0, 0, timezone.Location), *got)

	// grid cells sometimes carry trailing status text
	got = ParseFechaSrt("  01/12/2023 18:05 hs")
	require.NotNil(t, got)
	require.Equal(t, time.Date(2023, 12, 1, 18, 5, 0, 0, timezone.Location), *got)

	require.Nil(t, ParseFechaSrt(""))
	require.Nil(t, ParseFechaSrt("   "))
	require.Nil(t, ParseFechaSrt("sin fecha"))
}

func TestNormalizeNumero(t *testing.T) {
	cases := map[string]string{
		"123456/24":          "123456/24",
		"123456-24":          "123456/24",
		"CABA / 123456/24":   "123456/24",
		"MATANZA 9876-23":    "9876/23",
		"la plata 555/21":    "555/21",
		"  4321 / 22 ":       "4321/22",
		"expediente sin nro": "",
		"":                   "",
	}
	for input, want := range cases {
		require.Equal(t, want, NormalizeNumero(input), "input %q", input)
	}

	// normalizing twice must be a no-op
	once := NormalizeNumero("QUILMES 777-20")
	require.Equal(t, once, NormalizeNumero(once))
}

func TestIsPdf(t *testing.T) {
	require.True(t, IsPdf([]byte("%PDF-1.7\n...")))
	require.False(t, IsPdf([]byte("<html><body>error</body></html>")))
	require.False(t, IsPdf([]byte("%PD")))
	require.False(t, IsPdf(nil))
}
