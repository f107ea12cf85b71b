package srt

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClassifyLocation(t *testing.T) {
	cases := []struct {
		url  string
		want Location
	}{
		{"https://auth.afip.gob.ar/contribuyente_/login.xhtml", LocationIdp},
		{"https://afip.gob.ar/landing", LocationIdp},
		{"https://eservicios.srt.gob.ar/home/Servicios.aspx", LocationTarget},
		{"https://eservicios.srt.gob.ar/Patrocinio/Expedientes/Expedientes.aspx", LocationTarget},
		{"https://eservicios.srt.gob.ar/MiVentanilla/SesionInvalida.aspx", LocationErrorPage},
		{"https://eservicios.srt.gob.ar/Error.aspx?code=500", LocationErrorPage},
		{"https://www.google.com/", LocationUnknown},
		// suffix match must not accept lookalike hosts
		{"https://eservicios.srt.gob.ar.evil.com/", LocationUnknown},
		{"://nonsense", LocationUnknown},
		{"", LocationUnknown},
	}
	for _, c := range cases {
		require.Equal(t, c.want, ClassifyLocation(c.url), "url %q", c.url)
	}
}
