package db

import (
	"context"
	"database/sql"
	"time"
)

// Store wraps the relay datastore. Communications are keyed by the
// portal's transaction id (srt_tra_id), which is the dedup boundary
// for imports.
type Store struct {
	db *sql.DB
}

func New(database *sql.DB) *Store {
	return &Store{db: database}
}

type Caso struct {
	ID            int64
	NumeroSrt     string
	ExpedienteOid int64
}

// UnlinkedCases returns cases that carry a case number but have not
// been matched to a portal expediente yet.
func (s *Store) UnlinkedCases(ctx context.Context) ([]Caso, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, numero_srt FROM casos_srt
		WHERE srt_expediente_oid IS NULL AND numero_srt IS NOT NULL
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var casos []Caso
	for rows.Next() {
		var c Caso
		if err := rows.Scan(&c.ID, &c.NumeroSrt); err != nil {
			return nil, err
		}
		casos = append(casos, c)
	}
	return casos, rows.Err()
}

// LinkedCases returns cases already matched to an expediente, up to
// limit.
func (s *Store) LinkedCases(ctx context.Context, limit int) ([]Caso, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, numero_srt, srt_expediente_oid FROM casos_srt
		WHERE srt_expediente_oid IS NOT NULL
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var casos []Caso
	for rows.Next() {
		var c Caso
		if err := rows.Scan(&c.ID, &c.NumeroSrt, &c.ExpedienteOid); err != nil {
			return nil, err
		}
		casos = append(casos, c)
	}
	return casos, rows.Err()
}

func (s *Store) CreateCase(ctx context.Context, numeroSrt string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO casos_srt (numero_srt) VALUES (?)
	`, numeroSrt)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (s *Store) LinkCase(ctx context.Context, id, expedienteOid int64, pdfUrl string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE casos_srt
		SET srt_expediente_oid = ?, url_pdf_expediente = ?
		WHERE id = ?
	`, expedienteOid, pdfUrl, id)
	return err
}

func (s *Store) CommunicationExists(ctx context.Context, traId string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `
		SELECT 1 FROM comunicaciones_srt WHERE srt_tra_id = ?
	`, traId).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

type InsertCommunicationParams struct {
	CasoSrtId         sql.NullInt64
	ExpedienteOid     int64
	ExpedienteNro     string
	TraId             string
	FechaNotificacion *time.Time
	Remitente         string
	Sector            string
	TipoComunicacion  string
	Estado            string
	FechaEstado       *time.Time
	Detalle           string
}

func nullUnix(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.Unix(), Valid: true}
}

func (s *Store) InsertCommunication(ctx context.Context, params InsertCommunicationParams) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO comunicaciones_srt (
			caso_srt_id, srt_expediente_oid, srt_expediente_nro, srt_tra_id,
			fecha_notificacion, remitente, sector, tipo_comunicacion,
			estado, fecha_estado, detalle
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		params.CasoSrtId, params.ExpedienteOid, params.ExpedienteNro, params.TraId,
		nullUnix(params.FechaNotificacion), params.Remitente, params.Sector,
		params.TipoComunicacion, params.Estado, nullUnix(params.FechaEstado),
		params.Detalle,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

type InsertAttachmentParams struct {
	ComunicacionId int64
	AdjuntoId      string
	IdTipoRef      string
	Nombre         string
	UrlDescarga    string
}

func (s *Store) InsertAttachment(ctx context.Context, params InsertAttachmentParams) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO adjuntos_comunicacion_srt (
			comunicacion_id, srt_adjunto_id, srt_id_tipo_ref, nombre, url_descarga
		) VALUES (?, ?, ?, ?, ?)
	`,
		params.ComunicacionId, params.AdjuntoId, params.IdTipoRef,
		params.Nombre, params.UrlDescarga,
	)
	return err
}

type Adjunto struct {
	ID          int64  `json:"id"`
	AdjuntoId   string `json:"srt_adjunto_id"`
	IdTipoRef   string `json:"srt_id_tipo_ref"`
	Nombre      string `json:"nombre"`
	UrlDescarga string `json:"url_descarga"`
}

type Comunicacion struct {
	ID                int64      `json:"id"`
	CasoSrtId         *int64     `json:"caso_srt_id"`
	ExpedienteOid     int64      `json:"srt_expediente_oid"`
	ExpedienteNro     string     `json:"srt_expediente_nro"`
	TraId             string     `json:"srt_tra_id"`
	FechaNotificacion *time.Time `json:"fecha_notificacion"`
	Remitente         string     `json:"remitente"`
	Sector            string     `json:"sector"`
	TipoComunicacion  string     `json:"tipo_comunicacion"`
	Estado            string     `json:"estado"`
	FechaEstado       *time.Time `json:"fecha_estado"`
	Detalle           string     `json:"detalle"`
	Adjuntos          []Adjunto  `json:"adjuntos"`
}

// CommunicationsByOid returns the stored communications of one
// expediente with their attachments, newest notification first.
func (s *Store) CommunicationsByOid(ctx context.Context, expedienteOid int64) ([]Comunicacion, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, caso_srt_id, srt_expediente_oid, srt_expediente_nro, srt_tra_id,
			fecha_notificacion, remitente, sector, tipo_comunicacion,
			estado, fecha_estado, detalle
		FROM comunicaciones_srt
		WHERE srt_expediente_oid = ?
		ORDER BY fecha_notificacion DESC
	`, expedienteOid)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var comunicaciones []Comunicacion
	for rows.Next() {
		var c Comunicacion
		var casoId sql.NullInt64
		var notificacion, estado sql.NullInt64
		var nro, remitente, sector, tipo, estadoTxt, detalle sql.NullString
		err := rows.Scan(
			&c.ID, &casoId, &c.ExpedienteOid, &nro, &c.TraId,
			&notificacion, &remitente, &sector, &tipo,
			&estadoTxt, &estado, &detalle,
		)
		if err != nil {
			return nil, err
		}
		if casoId.Valid {
			c.CasoSrtId = &casoId.Int64
		}
		if notificacion.Valid {
			t := time.Unix(notificacion.Int64, 0)
			c.FechaNotificacion = &t
		}
		if estado.Valid {
			t := time.Unix(estado.Int64, 0)
			c.FechaEstado = &t
		}
		c.ExpedienteNro = nro.String
		c.Remitente = remitente.String
		c.Sector = sector.String
		c.TipoComunicacion = tipo.String
		c.Estado = estadoTxt.String
		c.Detalle = detalle.String
		comunicaciones = append(comunicaciones, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range comunicaciones {
		adjuntos, err := s.attachments(ctx, comunicaciones[i].ID)
		if err != nil {
			return nil, err
		}
		comunicaciones[i].Adjuntos = adjuntos
	}
	return comunicaciones, nil
}

func (s *Store) attachments(ctx context.Context, comunicacionId int64) ([]Adjunto, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, srt_adjunto_id, srt_id_tipo_ref, nombre, url_descarga
		FROM adjuntos_comunicacion_srt
		WHERE comunicacion_id = ?
	`, comunicacionId)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var adjuntos []Adjunto
	for rows.Next() {
		var a Adjunto
		var adjId, tipoRef, nombre, url sql.NullString
		if err := rows.Scan(&a.ID, &adjId, &tipoRef, &nombre, &url); err != nil {
			return nil, err
		}
		a.AdjuntoId = adjId.String
		a.IdTipoRef = tipoRef.String
		a.Nombre = nombre.String
		a.UrlDescarga = url.String
		adjuntos = append(adjuntos, a)
	}
	return adjuntos, rows.Err()
}
