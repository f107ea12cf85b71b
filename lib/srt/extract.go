package srt

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"regexp"
	"strings"
	"time"

	"srtrelay-backend/lib/htmlutil"

	"github.com/PuerkitoBio/goquery"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

type Expediente struct {
	OID         int64
	Numero      string
	Motivo      string
	Damnificado struct {
		Cuil   string
		Nombre string
	}
	Inicio     *time.Time
	SinLectura int
}

// Comunicacion is one row of the communications grid. Display fields
// are kept as shown; TraID/CatID/TipoActor come from the inline detail
// handler and are empty when the row carries none (header rows, pager
// rows), which callers must tolerate.
type Comunicacion struct {
	FechaNotificacion string
	Expediente        string
	Remitente         string
	Sector            string
	TipoComunicacion  string
	Estado            string
	FechaUltEstado    string

	TraID     string
	CatID     string
	TipoActor string
}

type Adjunto struct {
	ID        string
	IDTipoRef string
	Nombre    string
	Href      string
}

type Detalle struct {
	TipoComunicacion string
	Fecha            string
	Detalle          string
	Adjuntos         []Adjunto
}

// Descarga is the typed result of an attachment download. Err is a
// string rather than an error so the zero value is meaningful across
// the service boundary.
type Descarga struct {
	Data  []byte
	Size  int
	IsPdf bool
	Err   string
}

// ListExpedientes fetches the case list through the portal's json
// endpoint, riding the exported session cookies. Any failure yields an
// empty list: the portal intermittently drops the `d` envelope and one
// bad response must not abort a batch.
func (c *Client) ListExpedientes(ctx context.Context) []Expediente {
	ctx, span := tracer.Start(ctx, "client:ListExpedientes")
	defer span.End()

	var envelope struct {
		D []struct {
			OID         int64  `json:"OID"`
			Nro         string `json:"Nro"`
			Motivo      string `json:"Motivo"`
			Damnificado *struct {
				Cuil   string `json:"Cuil"`
				Nombre string `json:"Nombre"`
			} `json:"Damnificado"`
			Inicio                   string `json:"Inicio"`
			ComunicacionessinLectura int    `json:"ComunicacionessinLectura"`
		} `json:"d"`
	}

	res, err := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json;charset=UTF-8").
		SetBody(map[string]any{"numExpdte": nil, "numAnio": nil}).
		SetResult(&envelope).
		Post(c.endpoints.ApiExpedientes)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "case list request failed")
		slog.WarnContext(ctx, "case list request failed", "err", err)
		return nil
	}
	if res.StatusCode() >= 400 {
		span.SetStatus(codes.Error, "case list request rejected")
		slog.WarnContext(ctx, "case list request rejected", "status", res.StatusCode())
		return nil
	}
	if envelope.D == nil {
		slog.WarnContext(ctx, "case list response missing payload envelope")
		return nil
	}

	out := make([]Expediente, 0, len(envelope.D))
	for _, raw := range envelope.D {
		exp := Expediente{
			OID:        raw.OID,
			Numero:     raw.Nro,
			Motivo:     raw.Motivo,
			Inicio:     ParseDotNetDate(raw.Inicio),
			SinLectura: raw.ComunicacionessinLectura,
		}
		if raw.Damnificado != nil {
			exp.Damnificado.Cuil = raw.Damnificado.Cuil
			exp.Damnificado.Nombre = raw.Damnificado.Nombre
		}
		out = append(out, exp)
	}
	span.SetAttributes(attribute.Int("count", len(out)))
	return out
}

var detalleHandlerRegex = regexp.MustCompile(`DetalleComunicacion\((\d+),(\d+),(\d+)\)`)
var totalConsultaRegex = regexp.MustCompile(`Total Consulta:\s*(\d+)`)

// ListComunicaciones opens the filtered communications grid for one
// case and scrapes its rows. The grid renders inside a legacy frameset
// whose result frame may or may not be present.
func (c *Client) ListComunicaciones(ctx context.Context, expedienteOid int64) []Comunicacion {
	ctx, span := tracer.Start(ctx, "client:ListComunicaciones")
	defer span.End()
	span.SetAttributes(attribute.Int64("expediente_oid", expedienteOid))

	filtro := fmt.Sprintf("%s?return=expedientesPatrocinantes&idExpediente=%d",
		c.endpoints.ComunicacionesFiltro, expedienteOid)
	if err := c.page.Navigate(ctx, filtro, c.timeouts.ListNavigation); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "grid navigation failed")
		slog.WarnContext(ctx, "communications grid navigation failed",
			"oid", expedienteOid, "err", err)
		return nil
	}
	c.settle(ctx, 2*c.timeouts.Settle)

	html, err := c.page.FrameHTML(ctx, "ComunicacionesListado", c.timeouts.SelectorWait)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to read grid html")
		slog.WarnContext(ctx, "failed to read communications grid",
			"oid", expedienteOid, "err", err)
		return nil
	}

	comunicaciones, total := parseComunicacionesTable(ctx, html)
	span.SetAttributes(
		attribute.Int("rows", len(comunicaciones)),
		attribute.Int("total", total),
	)
	if total > len(comunicaciones) {
		slog.WarnContext(ctx, "grid shows fewer rows than the reported total",
			"oid", expedienteOid, "rows", len(comunicaciones), "total", total)
	}
	return comunicaciones
}

// parseComunicacionesTable extracts grid rows and the `Total Consulta`
// figure from rendered html. Rows with fewer than 5 cells are layout
// noise and dropped; rows without the inline detail handler are kept
// with an empty TraID.
func parseComunicacionesTable(ctx context.Context, html string) ([]Comunicacion, int) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		slog.WarnContext(ctx, "failed to parse communications grid html", "err", err)
		return nil, 0
	}

	var comunicaciones []Comunicacion
	doc.Find("table tbody tr").Each(func(_ int, row *goquery.Selection) {
		cells := row.Find("td")
		if cells.Length() < 5 {
			return
		}

		cell := func(i int) string {
			if i >= cells.Length() {
				return ""
			}
			return htmlutil.CleanText(cells.Eq(i).Text())
		}
		com := Comunicacion{
			FechaNotificacion: cell(0),
			Expediente:        cell(1),
			Remitente:         cell(2),
			Sector:            cell(3),
			TipoComunicacion:  cell(4),
			Estado:            cell(5),
			FechaUltEstado:    cell(6),
		}

		markup, _ := goquery.OuterHtml(row)
		if groups := detalleHandlerRegex.FindStringSubmatch(markup); groups != nil {
			com.TraID = groups[1]
			com.CatID = groups[2]
			com.TipoActor = groups[3]
		}
		comunicaciones = append(comunicaciones, com)
	})

	total := len(comunicaciones)
	if groups := totalConsultaRegex.FindStringSubmatch(htmlutil.RenderedText(doc)); groups != nil {
		fmt.Sscanf(groups[1], "%d", &total)
	}
	return comunicaciones, total
}

// FetchDetalle fetches the detail page of one communication. Labels
// are matched by prefix on the rendered text; a failed fetch yields a
// zero-value Detalle since a missing detail must not sink the row.
func (c *Client) FetchDetalle(ctx context.Context, traID, catID, tipoActor string) Detalle {
	ctx, span := tracer.Start(ctx, "client:FetchDetalle")
	defer span.End()
	span.SetAttributes(attribute.String("tra_id", traID))

	if catID == "" {
		catID = "2"
	}
	if tipoActor == "" {
		tipoActor = "1"
	}

	res, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"traID":           traID,
			"catID":           catID,
			"ttraIDTIPOACTOR": tipoActor,
		}).
		Get(c.endpoints.DetalleComunicacion)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "detail request failed")
		slog.WarnContext(ctx, "communication detail request failed", "tra_id", traID, "err", err)
		return Detalle{}
	}
	if res.StatusCode() >= 400 {
		span.SetStatus(codes.Error, "detail request rejected")
		slog.WarnContext(ctx, "communication detail rejected", "tra_id", traID, "status", res.StatusCode())
		return Detalle{}
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(res.Body())))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to parse detail html")
		slog.WarnContext(ctx, "failed to parse communication detail", "tra_id", traID, "err", err)
		return Detalle{}
	}
	return c.parseDetalle(doc)
}

func (c *Client) parseDetalle(doc *goquery.Document) Detalle {
	detalle := Detalle{}

	for _, line := range strings.Split(htmlutil.RenderedText(doc), "\n") {
		line = strings.TrimSpace(line)
		if v, ok := strings.CutPrefix(line, "Tipo de Comunicación:"); ok && detalle.TipoComunicacion == "" {
			detalle.TipoComunicacion = strings.TrimSpace(v)
		}
		if v, ok := strings.CutPrefix(line, "Fecha:"); ok && detalle.Fecha == "" {
			detalle.Fecha = strings.TrimSpace(v)
		}
		if v, ok := strings.CutPrefix(line, "Detalle:"); ok && detalle.Detalle == "" {
			detalle.Detalle = strings.TrimSpace(v)
		}
	}

	doc.Find(`a[href*="Download"]`).Each(func(_ int, link *goquery.Selection) {
		href, ok := link.Attr("href")
		if !ok {
			return
		}
		full := c.resolveDownloadHref(href)

		adj := Adjunto{Href: full, Nombre: htmlutil.CleanText(link.Text())}
		if u, err := url.Parse(full); err == nil {
			q := u.Query()
			adj.ID = q.Get("id")
			adj.IDTipoRef = q.Get("idTipoRef")
			if nombre := q.Get("nombre"); nombre != "" {
				adj.Nombre = nombre
			}
		}
		detalle.Adjuntos = append(detalle.Adjuntos, adj)
	})
	return detalle
}

// resolveDownloadHref resolves the relative hrefs the detail page uses
// against the portal's document area.
func (c *Client) resolveDownloadHref(href string) string {
	switch {
	case strings.HasPrefix(href, "http://"), strings.HasPrefix(href, "https://"):
		return href
	case strings.HasPrefix(href, "/"):
		base, err := url.Parse(c.endpoints.DownloadBase)
		if err != nil {
			return href
		}
		return base.Scheme + "://" + base.Host + href
	default:
		return c.endpoints.DownloadBase + href
	}
}

// DownloadAdjunto fetches an attachment body. The portal answers
// requests for purged documents with an html page and 200, hence the
// magic-byte sniff instead of trusting the content type.
func (c *Client) DownloadAdjunto(ctx context.Context, href string) Descarga {
	ctx, span := tracer.Start(ctx, "client:DownloadAdjunto")
	defer span.End()

	res, err := c.http.R().
		SetContext(ctx).
		Get(href)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "download failed")
		return Descarga{Err: err.Error()}
	}
	if res.StatusCode() >= 400 {
		span.SetStatus(codes.Error, "download rejected")
		return Descarga{Err: fmt.Sprintf("HTTP %d", res.StatusCode())}
	}

	data := res.Body()
	return Descarga{
		Data:  data,
		Size:  len(data),
		IsPdf: IsPdf(data),
	}
}

// DownloadAdjuntoById fetches an attachment by its portal document id,
// for callers that never saw the detail page anchor.
func (c *Client) DownloadAdjuntoById(ctx context.Context, id string) Descarga {
	return c.DownloadAdjunto(ctx, c.endpoints.DownloadBase+"Download.aspx?id="+url.QueryEscape(id))
}

// FetchExpedientePdf retrieves the consolidated case PDF, which the
// portal serves base64-encoded under the json envelope.
func (c *Client) FetchExpedientePdf(ctx context.Context, expedienteOid int64) ([]byte, error) {
	ctx, span := tracer.Start(ctx, "client:FetchExpedientePdf")
	defer span.End()
	span.SetAttributes(attribute.Int64("expediente_oid", expedienteOid))

	var envelope struct {
		D string `json:"d"`
	}
	res, err := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json;charset=UTF-8").
		SetBody(map[string]int64{"OID": expedienteOid}).
		SetResult(&envelope).
		Post(c.endpoints.ApiExpedientePdf)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "pdf request failed")
		return nil, err
	}
	if res.StatusCode() >= 400 {
		span.SetStatus(codes.Error, "pdf request rejected")
		return nil, fmt.Errorf("case pdf request: HTTP %d", res.StatusCode())
	}
	if envelope.D == "" {
		span.SetStatus(codes.Error, "empty pdf payload")
		return nil, errors.New("case pdf not available")
	}

	data, err := base64.StdEncoding.DecodeString(envelope.D)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "pdf payload is not valid base64")
		return nil, err
	}
	return data, nil
}
