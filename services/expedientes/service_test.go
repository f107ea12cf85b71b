package expedientes

import (
	"context"
	"errors"
	"testing"

	"srtrelay-backend/lib/srt"
	"srtrelay-backend/lib/testutil"
	"srtrelay-backend/services/expedientes/db"

	"github.com/stretchr/testify/require"
)

type fakeSession struct {
	failLogin   bool
	expedientes []srt.Expediente
	// keyed by expediente oid
	comunicaciones map[int64][]srt.Comunicacion
	// keyed by traID
	detalles  map[string]srt.Detalle
	descargas map[string]srt.Descarga
	pdf       []byte

	logins int
	closed bool
}

func (f *fakeSession) Login(ctx context.Context, cuit, password string) error {
	f.logins++
	if f.failLogin {
		return srt.ErrLoginFailed
	}
	return nil
}

func (f *fakeSession) NavigateExpedientes(ctx context.Context) error { return nil }

func (f *fakeSession) ListExpedientes(ctx context.Context) []srt.Expediente {
	return f.expedientes
}

func (f *fakeSession) ListComunicaciones(ctx context.Context, oid int64) []srt.Comunicacion {
	return f.comunicaciones[oid]
}

func (f *fakeSession) FetchDetalle(ctx context.Context, traId, catId, tipoActor string) srt.Detalle {
	return f.detalles[traId]
}

func (f *fakeSession) DownloadAdjuntoById(ctx context.Context, id string) srt.Descarga {
	return f.descargas[id]
}

func (f *fakeSession) FetchExpedientePdf(ctx context.Context, oid int64) ([]byte, error) {
	if f.pdf == nil {
		return nil, errors.New("pdf not available")
	}
	return f.pdf, nil
}

func (f *fakeSession) Close() error {
	f.closed = true
	return nil
}

type fixture struct {
	service  *Service
	store    *db.Store
	session  *fakeSession
	launches int
}

func setup(t *testing.T, session *fakeSession, config Config) *fixture {
	result, cleanup := testutil.SetupService(t, testutil.ServiceParams{
		Name:     "expedientes",
		DbSchema: db.Schema,
	})
	t.Cleanup(cleanup)

	f := &fixture{store: db.New(result.DB), session: session}
	factory := func(ctx context.Context) (ScrapeSession, error) {
		f.launches++
		return session, nil
	}
	f.service = NewService(result.DB, factory, config)
	return f
}

func testCreds() Credentials {
	return Credentials{Usuario: "20123456789", Password: "hunter2"}
}

func TestLinkCases(t *testing.T) {
	session := &fakeSession{
		expedientes: []srt.Expediente{
			{OID: 101, Numero: "123456/24", Motivo: "Recalificación"},
			{OID: 102, Numero: "CABA 777-20"},
		},
	}
	f := setup(t, session, Config{PdfBaseUrl: "https://relay.example.com"})
	ctx := context.Background()

	matchId, err := f.store.CreateCase(ctx, "CABA 123456-24")
	require.NoError(t, err)
	_, err = f.store.CreateCase(ctx, "999/99")
	require.NoError(t, err)

	stats, summaries, err := f.service.LinkCases(ctx, testCreds())
	require.NoError(t, err)
	require.Equal(t, LinkStats{
		CasosEncontrados: 2,
		CasosVinculados:  1,
		CasosSinMatch:    1,
	}, stats)
	require.Len(t, summaries, 2)
	require.True(t, session.closed)

	linked, err := f.store.LinkedCases(ctx, 10)
	require.NoError(t, err)
	require.Len(t, linked, 1)
	require.Equal(t, matchId, linked[0].ID)
	require.Equal(t, int64(101), linked[0].ExpedienteOid)
}

func TestLinkCasesLoginFailed(t *testing.T) {
	f := setup(t, &fakeSession{failLogin: true}, Config{})

	_, _, err := f.service.LinkCases(context.Background(), testCreds())
	require.ErrorIs(t, err, srt.ErrLoginFailed)
	require.True(t, f.session.closed)
}

func importFixture(t *testing.T, config Config) *fixture {
	session := &fakeSession{
		comunicaciones: map[int64][]srt.Comunicacion{
			101: {
				{
					FechaNotificacion: "14/03/2024 09:15",
					Expediente:        "123456/24",
					TipoComunicacion:  "Citación Audiencia",
					Estado:            "Leída",
					TraID:             "4401",
					CatID:             "2",
					TipoActor:         "1",
				},
				// header rows come through without a transaction id
				{TipoComunicacion: "Notificación"},
			},
		},
		detalles: map[string]srt.Detalle{
			"4401": {
				Detalle: "Presentarse el 20/03 a las 10hs.",
				Adjuntos: []srt.Adjunto{
					{ID: "77", Nombre: "citacion.pdf", Href: "https://eservicios.srt.gob.ar/MiVentanilla/Download.aspx?id=77"},
				},
			},
		},
	}
	return setup(t, session, config)
}

func TestImportCommunications(t *testing.T) {
	f := importFixture(t, Config{})
	ctx := context.Background()

	casoId, err := f.store.CreateCase(ctx, "123456/24")
	require.NoError(t, err)
	require.NoError(t, f.store.LinkCase(ctx, casoId, 101, ""))

	stats, err := f.service.ImportCommunications(ctx, testCreds(), 0)
	require.NoError(t, err)
	require.Equal(t, 1, stats.Procesados)
	require.Equal(t, 1, stats.ComunicacionesNuevas)
	require.Equal(t, 0, stats.Existentes)
	require.Equal(t, 1, stats.Adjuntos)
	require.Empty(t, stats.Errores)

	stored, err := f.service.Communications(ctx, 101)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	require.Equal(t, "4401", stored[0].TraId)
	require.Equal(t, "Presentarse el 20/03 a las 10hs.", stored[0].Detalle)
	require.NotNil(t, stored[0].FechaNotificacion)
	require.Len(t, stored[0].Adjuntos, 1)

	// a second run finds everything already imported
	stats, err = f.service.ImportCommunications(ctx, testCreds(), 0)
	require.NoError(t, err)
	require.Equal(t, 0, stats.ComunicacionesNuevas)
	require.Equal(t, 1, stats.Existentes)
}

func TestImportRelogin(t *testing.T) {
	f := importFixture(t, Config{ReloginEvery: 2})
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		casoId, err := f.store.CreateCase(ctx, "999/99")
		require.NoError(t, err)
		require.NoError(t, f.store.LinkCase(ctx, casoId, int64(200+i), ""))
	}

	stats, err := f.service.ImportCommunications(ctx, testCreds(), 0)
	require.NoError(t, err)
	require.Equal(t, 5, stats.Procesados)
	// initial session plus a fresh one after every second case
	require.Equal(t, 3, f.launches)
	require.Equal(t, 3, f.session.logins)
}

func TestImportCaseCommunications(t *testing.T) {
	f := importFixture(t, Config{})
	ctx := context.Background()

	stats, err := f.service.ImportCaseCommunications(ctx, testCreds(), 101, nil)
	require.NoError(t, err)
	require.Equal(t, 1, stats.ComunicacionesNuevas)
	require.Equal(t, 1, stats.Adjuntos)

	stored, err := f.service.Communications(ctx, 101)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	require.Nil(t, stored[0].CasoSrtId)
}

func TestCasePdf(t *testing.T) {
	pdf := []byte("%PDF-1.4 expediente")
	f := setup(t, &fakeSession{pdf: pdf}, Config{Credentials: testCreds()})

	data, err := f.service.CasePdf(context.Background(), 101)
	require.NoError(t, err)
	require.Equal(t, pdf, data)
	require.False(t, f.service.QueueBusy(), "gate released after retrieval")
}

func TestAttachmentPdf(t *testing.T) {
	pdf := []byte("%PDF-1.4 adjunto")
	session := &fakeSession{
		descargas: map[string]srt.Descarga{
			"77": {Data: pdf, Size: len(pdf), IsPdf: true},
			"78": {Err: "HTTP 500"},
		},
	}
	f := setup(t, session, Config{Credentials: testCreds()})
	ctx := context.Background()

	descarga, err := f.service.AttachmentPdf(ctx, "77")
	require.NoError(t, err)
	require.True(t, descarga.IsPdf)
	require.Equal(t, pdf, descarga.Data)

	_, err = f.service.AttachmentPdf(ctx, "78")
	require.Error(t, err)
	require.False(t, f.service.QueueBusy())
}
