package expedientes

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"srtrelay-backend/lib/browser"
	"srtrelay-backend/lib/singleflight"
	"srtrelay-backend/lib/srt"
	"srtrelay-backend/services/expedientes/db"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("services/expedientes")

type Credentials struct {
	Usuario  string `json:"usuario"`
	Password string `json:"password"`
}

// ScrapeSession is one authenticated pass over the portal. Implemented
// by the browser-backed srt client; tests substitute a fake.
type ScrapeSession interface {
	Login(ctx context.Context, cuit, password string) error
	NavigateExpedientes(ctx context.Context) error
	ListExpedientes(ctx context.Context) []srt.Expediente
	ListComunicaciones(ctx context.Context, expedienteOid int64) []srt.Comunicacion
	FetchDetalle(ctx context.Context, traId, catId, tipoActor string) srt.Detalle
	DownloadAdjuntoById(ctx context.Context, id string) srt.Descarga
	FetchExpedientePdf(ctx context.Context, expedienteOid int64) ([]byte, error)
	Close() error
}

// SessionFactory launches a fresh session. Every top-level operation
// gets its own browser; relogin during a batch replaces the session
// wholesale.
type SessionFactory func(ctx context.Context) (ScrapeSession, error)

type browserSession struct {
	*srt.Client
	session *browser.Session
}

func (s browserSession) Close() error {
	return s.session.Close()
}

// BrowserSessionFactory builds sessions backed by a headless browser.
func BrowserSessionFactory(browserOpts browser.Options, srtOpts srt.Options) SessionFactory {
	return func(ctx context.Context) (ScrapeSession, error) {
		session, err := browser.Launch(ctx, browserOpts)
		if err != nil {
			return nil, err
		}
		client, err := srt.NewClient(session, srtOpts)
		if err != nil {
			session.Close()
			return nil, err
		}
		return browserSession{Client: client, session: session}, nil
	}
}

type Config struct {
	// base url of this relay, used to build the stored pdf links
	PdfBaseUrl string `json:"pdf_base_url"`
	// service credentials used for gate-serialized pdf retrieval
	Credentials Credentials `json:"credentials"`
	// a fresh login every N cases keeps the portal session alive
	// through long batches
	ReloginEvery int `json:"relogin_every"`
	// default batch size for bulk imports
	ImportLimit int `json:"import_limit"`
}

type Service struct {
	store      *db.Store
	gate       *singleflight.Gate
	newSession SessionFactory
	config     Config
}

func NewService(database *sql.DB, newSession SessionFactory, config Config) *Service {
	if config.ReloginEvery <= 0 {
		config.ReloginEvery = 50
	}
	if config.ImportLimit <= 0 {
		config.ImportLimit = 500
	}
	return &Service{
		store:      db.New(database),
		gate:       singleflight.NewGate(),
		newSession: newSession,
		config:     config,
	}
}

// QueueLen reports the pdf gate queue depth, for the health endpoint.
func (s *Service) QueueLen() int { return s.gate.Len() }

// QueueBusy reports whether a pdf retrieval is in flight.
func (s *Service) QueueBusy() bool { return s.gate.Busy() }

type LinkStats struct {
	CasosEncontrados int `json:"casosEncontrados"`
	CasosVinculados  int `json:"casosVinculados"`
	CasosSinMatch    int `json:"casosSinMatch"`
}

type ExpedienteSummary struct {
	Numero string `json:"numero"`
	Oid    int64  `json:"oid"`
	Nombre string `json:"nombre,omitempty"`
	Cuil   string `json:"cuil,omitempty"`
	Motivo string `json:"motivo,omitempty"`
}

// LinkCases logs into the portal, lists the expedientes and matches
// them against stored cases that lack a portal id, by normalized case
// number.
func (s *Service) LinkCases(ctx context.Context, creds Credentials) (LinkStats, []ExpedienteSummary, error) {
	ctx, span := tracer.Start(ctx, "LinkCases")
	defer span.End()

	stats := LinkStats{}

	session, err := s.newSession(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to launch session")
		return stats, nil, err
	}
	defer session.Close()

	if err := session.Login(ctx, creds.Usuario, creds.Password); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "login failed")
		return stats, nil, err
	}
	if err := session.NavigateExpedientes(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "case listing unreachable")
		return stats, nil, err
	}

	expedientes := session.ListExpedientes(ctx)
	span.SetAttributes(attribute.Int("expedientes", len(expedientes)))
	slog.InfoContext(ctx, "fetched portal case list", "count", len(expedientes))

	byNumero := map[string]srt.Expediente{}
	summaries := make([]ExpedienteSummary, 0, len(expedientes))
	for _, exp := range expedientes {
		if numero := srt.NormalizeNumero(exp.Numero); numero != "" {
			byNumero[numero] = exp
		}
		summaries = append(summaries, ExpedienteSummary{
			Numero: exp.Numero,
			Oid:    exp.OID,
			Nombre: exp.Damnificado.Nombre,
			Cuil:   exp.Damnificado.Cuil,
			Motivo: exp.Motivo,
		})
	}

	casos, err := s.store.UnlinkedCases(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to query unlinked cases")
		return stats, nil, err
	}
	stats.CasosEncontrados = len(casos)

	for _, caso := range casos {
		exp, ok := byNumero[srt.NormalizeNumero(caso.NumeroSrt)]
		if !ok {
			stats.CasosSinMatch++
			continue
		}
		pdfUrl := fmt.Sprintf("%s/srt/expediente-pdf/%d", s.config.PdfBaseUrl, exp.OID)
		if err := s.store.LinkCase(ctx, caso.ID, exp.OID, pdfUrl); err != nil {
			span.RecordError(err)
			slog.WarnContext(ctx, "failed to link case",
				"caso", caso.NumeroSrt, "oid", exp.OID, "err", err)
			stats.CasosSinMatch++
			continue
		}
		stats.CasosVinculados++
	}

	return stats, summaries, nil
}

type ImportStats struct {
	Procesados           int      `json:"procesados"`
	ComunicacionesNuevas int      `json:"comunicacionesNuevas"`
	Existentes           int      `json:"existentes"`
	Adjuntos             int      `json:"adjuntos"`
	Errores              []string `json:"errores"`
}

// ImportCommunications walks every linked case, scraping and storing
// the communications that are not known yet. One broken case never
// aborts the batch; it lands in the stats instead.
func (s *Service) ImportCommunications(ctx context.Context, creds Credentials, limit int) (ImportStats, error) {
	ctx, span := tracer.Start(ctx, "ImportCommunications")
	defer span.End()

	stats := ImportStats{}
	if limit <= 0 {
		limit = s.config.ImportLimit
	}

	casos, err := s.store.LinkedCases(ctx, limit)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to query linked cases")
		return stats, err
	}
	if len(casos) == 0 {
		return stats, nil
	}
	span.SetAttributes(attribute.Int("casos", len(casos)))

	session, err := s.newSession(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to launch session")
		return stats, err
	}
	defer func() { session.Close() }()

	if err := session.Login(ctx, creds.Usuario, creds.Password); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "login failed")
		return stats, err
	}
	if err := session.NavigateExpedientes(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "case listing unreachable")
		return stats, err
	}

	for i, caso := range casos {
		if err := ctx.Err(); err != nil {
			span.RecordError(err)
			return stats, err
		}

		// the portal expires sessions mid-batch; a periodic fresh
		// login keeps long imports alive
		if i > 0 && i%s.config.ReloginEvery == 0 {
			slog.InfoContext(ctx, "relogin", "processed", i)
			session.Close()
			session, err = s.newSession(ctx)
			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, "failed to relaunch session")
				return stats, err
			}
			if err := session.Login(ctx, creds.Usuario, creds.Password); err != nil {
				stats.Errores = append(stats.Errores,
					fmt.Sprintf("%s: relogin fallido", caso.NumeroSrt))
				continue
			}
			if err := session.NavigateExpedientes(ctx); err != nil {
				stats.Errores = append(stats.Errores,
					fmt.Sprintf("%s: %s", caso.NumeroSrt, err))
				continue
			}
		}

		slog.InfoContext(ctx, "importing case communications",
			"index", i+1, "total", len(casos), "caso", caso.NumeroSrt)
		stats.Procesados++

		casoId := sql.NullInt64{Int64: caso.ID, Valid: true}
		if err := s.importCase(ctx, session, casoId, caso.ExpedienteOid, &stats); err != nil {
			slog.WarnContext(ctx, "case import failed", "caso", caso.NumeroSrt, "err", err)
			stats.Errores = append(stats.Errores, caso.NumeroSrt)
		}
	}

	slog.InfoContext(ctx, "import finished",
		"processed", stats.Procesados,
		"new", stats.ComunicacionesNuevas,
		"existing", stats.Existentes,
		"attachments", stats.Adjuntos,
		"errors", len(stats.Errores))
	return stats, nil
}

// ImportCaseCommunications imports a single expediente, optionally
// associating the stored rows with a known case id.
func (s *Service) ImportCaseCommunications(ctx context.Context, creds Credentials, expedienteOid int64, casoSrtId *int64) (ImportStats, error) {
	ctx, span := tracer.Start(ctx, "ImportCaseCommunications")
	defer span.End()
	span.SetAttributes(attribute.Int64("expediente_oid", expedienteOid))

	stats := ImportStats{}

	session, err := s.newSession(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to launch session")
		return stats, err
	}
	defer session.Close()

	if err := session.Login(ctx, creds.Usuario, creds.Password); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "login failed")
		return stats, err
	}
	if err := session.NavigateExpedientes(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "case listing unreachable")
		return stats, err
	}

	casoId := sql.NullInt64{}
	if casoSrtId != nil {
		casoId = sql.NullInt64{Int64: *casoSrtId, Valid: true}
	}
	stats.Procesados = 1
	if err := s.importCase(ctx, session, casoId, expedienteOid, &stats); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "import failed")
		return stats, err
	}
	return stats, nil
}

// importCase stores the not-yet-known communications of one
// expediente. Grid rows without a transaction id cannot be imported
// and are skipped.
func (s *Service) importCase(ctx context.Context, session ScrapeSession, casoSrtId sql.NullInt64, expedienteOid int64, stats *ImportStats) error {
	comunicaciones := session.ListComunicaciones(ctx, expedienteOid)

	for _, com := range comunicaciones {
		if com.TraID == "" {
			continue
		}

		exists, err := s.store.CommunicationExists(ctx, com.TraID)
		if err != nil {
			return err
		}
		if exists {
			stats.Existentes++
			continue
		}

		detalle := session.FetchDetalle(ctx, com.TraID, com.CatID, com.TipoActor)

		comId, err := s.store.InsertCommunication(ctx, db.InsertCommunicationParams{
			CasoSrtId:         casoSrtId,
			ExpedienteOid:     expedienteOid,
			ExpedienteNro:     com.Expediente,
			TraId:             com.TraID,
			FechaNotificacion: srt.ParseFechaSrt(com.FechaNotificacion),
			Remitente:         com.Remitente,
			Sector:            com.Sector,
			TipoComunicacion:  com.TipoComunicacion,
			Estado:            com.Estado,
			FechaEstado:       srt.ParseFechaSrt(com.FechaUltEstado),
			Detalle:           detalle.Detalle,
		})
		if err != nil {
			slog.WarnContext(ctx, "failed to insert communication",
				"tra_id", com.TraID, "err", err)
			continue
		}
		stats.ComunicacionesNuevas++

		for _, adj := range detalle.Adjuntos {
			err := s.store.InsertAttachment(ctx, db.InsertAttachmentParams{
				ComunicacionId: comId,
				AdjuntoId:      adj.ID,
				IdTipoRef:      adj.IDTipoRef,
				Nombre:         adj.Nombre,
				UrlDescarga:    adj.Href,
			})
			if err != nil {
				slog.WarnContext(ctx, "failed to insert attachment",
					"tra_id", com.TraID, "adjunto", adj.ID, "err", err)
				continue
			}
			stats.Adjuntos++
		}
	}
	return nil
}

// withPdfTurn runs fn while holding the pdf gate with a fresh
// authenticated session. The portal tolerates exactly one concurrent
// scraping browser, so every pdf retrieval waits its turn.
func (s *Service) withPdfTurn(ctx context.Context, fn func(session ScrapeSession) error) error {
	if err := s.gate.Acquire(ctx); err != nil {
		return err
	}
	defer s.gate.Release()

	session, err := s.newSession(ctx)
	if err != nil {
		return err
	}
	defer session.Close()

	creds := s.config.Credentials
	if err := session.Login(ctx, creds.Usuario, creds.Password); err != nil {
		return err
	}
	return fn(session)
}

// CasePdf retrieves the consolidated pdf of one expediente.
func (s *Service) CasePdf(ctx context.Context, expedienteOid int64) ([]byte, error) {
	ctx, span := tracer.Start(ctx, "CasePdf")
	defer span.End()
	span.SetAttributes(
		attribute.Int64("expediente_oid", expedienteOid),
		attribute.Int("queue", s.gate.Len()),
	)

	var data []byte
	err := s.withPdfTurn(ctx, func(session ScrapeSession) error {
		if err := session.NavigateExpedientes(ctx); err != nil {
			return err
		}
		var err error
		data, err = session.FetchExpedientePdf(ctx, expedienteOid)
		return err
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "case pdf retrieval failed")
		return nil, err
	}
	return data, nil
}

// AttachmentPdf retrieves a communication attachment by portal
// document id. The typed result carries the magic-byte sniff so the
// transport layer can pick the content type.
func (s *Service) AttachmentPdf(ctx context.Context, id string) (srt.Descarga, error) {
	ctx, span := tracer.Start(ctx, "AttachmentPdf")
	defer span.End()
	span.SetAttributes(
		attribute.String("adjunto_id", id),
		attribute.Int("queue", s.gate.Len()),
	)

	var descarga srt.Descarga
	err := s.withPdfTurn(ctx, func(session ScrapeSession) error {
		descarga = session.DownloadAdjuntoById(ctx, id)
		if descarga.Err != "" {
			return fmt.Errorf("attachment download: %s", descarga.Err)
		}
		if len(descarga.Data) == 0 {
			return fmt.Errorf("attachment %s not available", id)
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "attachment retrieval failed")
		return srt.Descarga{}, err
	}
	return descarga, nil
}

// Communications serves the stored communications of one expediente.
func (s *Service) Communications(ctx context.Context, expedienteOid int64) ([]db.Comunicacion, error) {
	ctx, span := tracer.Start(ctx, "Communications")
	defer span.End()
	span.SetAttributes(attribute.Int64("expediente_oid", expedienteOid))

	comunicaciones, err := s.store.CommunicationsByOid(ctx, expedienteOid)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "store query failed")
		return nil, err
	}
	return comunicaciones, nil
}
