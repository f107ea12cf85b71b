// Package server exposes the expedientes service over the rest
// surface its consumers already speak.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"srtrelay-backend/lib/srt"
	"srtrelay-backend/services/expedientes"
	"srtrelay-backend/services/expedientes/db"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// API is the service surface the router needs; *expedientes.Service
// satisfies it.
type API interface {
	LinkCases(ctx context.Context, creds expedientes.Credentials) (expedientes.LinkStats, []expedientes.ExpedienteSummary, error)
	ImportCommunications(ctx context.Context, creds expedientes.Credentials, limit int) (expedientes.ImportStats, error)
	ImportCaseCommunications(ctx context.Context, creds expedientes.Credentials, expedienteOid int64, casoSrtId *int64) (expedientes.ImportStats, error)
	CasePdf(ctx context.Context, expedienteOid int64) ([]byte, error)
	AttachmentPdf(ctx context.Context, id string) (srt.Descarga, error)
	Communications(ctx context.Context, expedienteOid int64) ([]db.Comunicacion, error)
	QueueLen() int
	QueueBusy() bool
}

type Server struct {
	api API
}

func NewServer(api API) *Server {
	return &Server{api: api}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/", s.handleHealth)
	r.Post("/srt/vincular-casos", s.handleLinkCases)
	r.Post("/srt/importar-comunicaciones", s.handleImport)
	r.Post("/srt/importar-comunicaciones-expediente", s.handleImportCase)
	r.Get("/srt/comunicaciones/{oid}", s.handleCommunications)
	r.Get("/srt/expediente-pdf/{oid}", s.handleCasePdf)
	r.Get("/srt/adjunto-pdf/{id}", s.handleAttachmentPdf)

	return r
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":          "ok",
		"service":         "srt-relay",
		"pdfQueueLength":  s.api.QueueLen(),
		"pdfBrowserEnUso": s.api.QueueBusy(),
	})
}

type credentialsBody struct {
	Usuario  string `json:"usuario"`
	Password string `json:"password"`
}

func (b credentialsBody) creds() expedientes.Credentials {
	return expedientes.Credentials{Usuario: b.Usuario, Password: b.Password}
}

func (s *Server) handleLinkCases(w http.ResponseWriter, r *http.Request) {
	var body credentialsBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Usuario == "" || body.Password == "" {
		writeError(w, http.StatusBadRequest, "Faltan credenciales")
		return
	}

	stats, expedientes, err := s.api.LinkCases(r.Context(), body.creds())
	if err != nil {
		if errors.Is(err, srt.ErrLoginFailed) {
			writeError(w, http.StatusUnauthorized, "Login fallido")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":     true,
		"stats":       stats,
		"expedientes": expedientes,
	})
}

func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	var body struct {
		credentialsBody
		Limit int `json:"limit"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Usuario == "" || body.Password == "" {
		writeError(w, http.StatusBadRequest, "Faltan credenciales")
		return
	}

	stats, err := s.api.ImportCommunications(r.Context(), body.creds(), body.Limit)
	if err != nil {
		if errors.Is(err, srt.ErrLoginFailed) {
			writeError(w, http.StatusUnauthorized, "Login fallido")
			return
		}
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"error": err.Error(),
			"stats": stats,
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "stats": stats})
}

func (s *Server) handleImportCase(w http.ResponseWriter, r *http.Request) {
	var body struct {
		credentialsBody
		ExpedienteOid int64  `json:"expedienteOid"`
		CasoSrtId     *int64 `json:"casoSrtId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil ||
		body.Usuario == "" || body.Password == "" || body.ExpedienteOid == 0 {
		writeError(w, http.StatusBadRequest, "Faltan credenciales o expedienteOid")
		return
	}

	stats, err := s.api.ImportCaseCommunications(r.Context(), body.creds(), body.ExpedienteOid, body.CasoSrtId)
	if err != nil {
		if errors.Is(err, srt.ErrLoginFailed) {
			writeError(w, http.StatusUnauthorized, "Login fallido")
			return
		}
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"error": err.Error(),
			"stats": stats,
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "stats": stats})
}

func (s *Server) handleCommunications(w http.ResponseWriter, r *http.Request) {
	oid, err := strconv.ParseInt(chi.URLParam(r, "oid"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "expedienteOid inválido")
		return
	}

	comunicaciones, err := s.api.Communications(r.Context(), oid)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if comunicaciones == nil {
		comunicaciones = []db.Comunicacion{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"comunicaciones": comunicaciones})
}

func (s *Server) handleCasePdf(w http.ResponseWriter, r *http.Request) {
	oid, err := strconv.ParseInt(chi.URLParam(r, "oid"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "expedienteOid inválido")
		return
	}

	data, err := s.api.CasePdf(r.Context(), oid)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`inline; filename="expediente_%d.pdf"`, oid))
	w.Write(data)
}

func (s *Server) handleAttachmentPdf(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	descarga, err := s.api.AttachmentPdf(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	// non-pdf bodies still get served, just not as pdf
	contentType := "application/octet-stream"
	if descarga.IsPdf {
		contentType = "application/pdf"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`inline; filename="adjunto_%s.pdf"`, id))
	w.Write(descarga.Data)
}
