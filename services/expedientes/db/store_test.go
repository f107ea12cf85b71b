package db

import (
	"context"
	"testing"
	"time"

	"srtrelay-backend/lib/testutil"
	"srtrelay-backend/lib/timezone"

	"github.com/stretchr/testify/require"
)

func setup(t *testing.T) *Store {
	result, cleanup := testutil.SetupService(t, testutil.ServiceParams{
		Name:     "expedientes/db",
		DbSchema: Schema,
	})
	t.Cleanup(cleanup)
	return New(result.DB)
}

func TestLinkCase(t *testing.T) {
	store := setup(t)
	ctx := context.Background()

	id, err := store.CreateCase(ctx, "CABA 123456-24")
	require.NoError(t, err)

	unlinked, err := store.UnlinkedCases(ctx)
	require.NoError(t, err)
	require.Len(t, unlinked, 1)
	require.Equal(t, id, unlinked[0].ID)

	err = store.LinkCase(ctx, id, 101, "https://relay.example.com/srt/expediente-pdf/101")
	require.NoError(t, err)

	unlinked, err = store.UnlinkedCases(ctx)
	require.NoError(t, err)
	require.Empty(t, unlinked)

	linked, err := store.LinkedCases(ctx, 10)
	require.NoError(t, err)
	require.Len(t, linked, 1)
	require.Equal(t, int64(101), linked[0].ExpedienteOid)
}

func TestCommunicationDedup(t *testing.T) {
	store := setup(t)
	ctx := context.Background()

	exists, err := store.CommunicationExists(ctx, "4401")
	require.NoError(t, err)
	require.False(t, exists)

	notificacion := time.Date(2024, 3, 14, 9, 15, 0, 0, timezone.Location)
	_, err = store.InsertCommunication(ctx, InsertCommunicationParams{
		ExpedienteOid:     101,
		ExpedienteNro:     "123456/24",
		TraId:             "4401",
		FechaNotificacion: &notificacion,
		TipoComunicacion:  "Citación Audiencia",
		Estado:            "Leída",
	})
	require.NoError(t, err)

	exists, err = store.CommunicationExists(ctx, "4401")
	require.NoError(t, err)
	require.True(t, exists)

	// the transaction id is the unique key
	_, err = store.InsertCommunication(ctx, InsertCommunicationParams{
		ExpedienteOid: 101,
		TraId:         "4401",
	})
	require.Error(t, err)
}

func TestCommunicationsByOid(t *testing.T) {
	store := setup(t)
	ctx := context.Background()

	older := time.Date(2024, 1, 2, 10, 0, 0, 0, timezone.Location)
	newer := time.Date(2024, 3, 14, 9, 15, 0, 0, timezone.Location)

	oldId, err := store.InsertCommunication(ctx, InsertCommunicationParams{
		ExpedienteOid:     101,
		TraId:             "4400",
		FechaNotificacion: &older,
	})
	require.NoError(t, err)
	_, err = store.InsertCommunication(ctx, InsertCommunicationParams{
		ExpedienteOid:     101,
		TraId:             "4401",
		FechaNotificacion: &newer,
	})
	require.NoError(t, err)
	_, err = store.InsertCommunication(ctx, InsertCommunicationParams{
		ExpedienteOid: 999,
		TraId:         "5000",
	})
	require.NoError(t, err)

	err = store.InsertAttachment(ctx, InsertAttachmentParams{
		ComunicacionId: oldId,
		AdjuntoId:      "77",
		Nombre:         "citacion.pdf",
		UrlDescarga:    "https://eservicios.srt.gob.ar/MiVentanilla/Download.aspx?id=77",
	})
	require.NoError(t, err)

	comunicaciones, err := store.CommunicationsByOid(ctx, 101)
	require.NoError(t, err)
	require.Len(t, comunicaciones, 2)
	require.Equal(t, "4401", comunicaciones[0].TraId, "newest notification first")
	require.Equal(t, "4400", comunicaciones[1].TraId)
	require.Len(t, comunicaciones[1].Adjuntos, 1)
	require.Equal(t, "citacion.pdf", comunicaciones[1].Adjuntos[0].Nombre)
}
