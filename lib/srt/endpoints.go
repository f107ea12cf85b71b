package srt

// Endpoints collects the portal URLs so tests can point the client at
// an httptest server.
type Endpoints struct {
	EServiciosHome       string
	Expedientes          string
	ComunicacionesFiltro string
	ApiExpedientes       string
	ApiExpedientePdf     string
	DetalleComunicacion  string
	DownloadBase         string
}

func DefaultEndpoints() Endpoints {
	return Endpoints{
		EServiciosHome:       "https://eservicios.srt.gob.ar/home/Servicios.aspx",
		Expedientes:          "https://eservicios.srt.gob.ar/Patrocinio/Expedientes/Expedientes.aspx",
		ComunicacionesFiltro: "https://eservicios.srt.gob.ar/MiVentanilla/ComunicacionesFiltroV2.aspx",
		ApiExpedientes:       "https://eservicios.srt.gob.ar/Patrocinio/Expedientes/Expedientes.aspx/ObtenerExpedientesMedicos",
		ApiExpedientePdf:     "https://eservicios.srt.gob.ar/Patrocinio/Expedientes/Expedientes.aspx/ObtenerPDF",
		DetalleComunicacion:  "https://eservicios.srt.gob.ar/MiVentanilla/DetalleComunicacion.aspx",
		DownloadBase:         "https://eservicios.srt.gob.ar/MiVentanilla/",
	}
}
