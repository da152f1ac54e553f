package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/starford/raido/internal/apperr"
	"github.com/starford/raido/internal/engine"
	"github.com/starford/raido/internal/index"
	"github.com/starford/raido/internal/models"
	"github.com/starford/raido/internal/records"
)

// Handler holds API route handlers.
type Handler struct {
	eng *engine.Engine
	log *records.Store
	idx *index.DB // optional; records queries fall back to the log
}

// NewHandler creates a new Handler. idx may be nil.
func NewHandler(eng *engine.Engine, log *records.Store, idx *index.DB) *Handler {
	return &Handler{eng: eng, log: log, idx: idx}
}

// ListItems handles GET /api/items: the current tracked state.
func (h *Handler) ListItems(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.eng.Snapshot())
}

// SetDocument handles POST /api/document. An empty path clears the
// active document.
func (h *Handler) SetDocument(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	var req struct {
		Path string `json:"path"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	h.eng.SetDocument(req.Path)
	writeJSON(w, http.StatusOK, h.eng.Snapshot())
}

// Refresh handles POST /api/refresh: an authoritative, immediate
// reconcile of the active document.
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	h.eng.Refresh()
	writeJSON(w, http.StatusOK, h.eng.Snapshot())
}

// Upload handles POST /api/uploads: trigger a single-item upload by raw
// reference text.
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	raw, ok := rawFromBody(w, r)
	if !ok {
		return
	}
	if err := h.eng.Upload(r.Context(), raw); err != nil {
		writeTransferError(w, raw, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// UploadAll handles POST /api/uploads/all.
func (h *Handler) UploadAll(w http.ResponseWriter, r *http.Request) {
	n, err := h.eng.UploadAll(r.Context())
	if err != nil {
		writeTransferError(w, "", err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]int{"queued": n})
}

// Download handles POST /api/downloads: trigger a single-item download
// by raw reference text.
func (h *Handler) Download(w http.ResponseWriter, r *http.Request) {
	raw, ok := rawFromBody(w, r)
	if !ok {
		return
	}
	if err := h.eng.Download(raw); err != nil {
		writeTransferError(w, raw, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// DownloadAll handles POST /api/downloads/all.
func (h *Handler) DownloadAll(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusAccepted, map[string]int{"queued": h.eng.DownloadAll()})
}

// Reveal handles GET /api/reveal?raw=: the document position of a
// tracked reference.
func (h *Handler) Reveal(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("raw")
	if raw == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'raw' is required"))
		return
	}
	pos, ok := h.eng.Reveal(raw)
	if !ok {
		writeJSON(w, http.StatusNotFound, errorBody("not tracked"))
		return
	}
	writeJSON(w, http.StatusOK, pos)
}

// ListRecords handles GET /api/records with optional pagination and
// filtering. Served from the SQLite index when available, otherwise
// from the JSON transfer log.
func (h *Handler) ListRecords(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))
	kind := q.Get("kind")
	document := q.Get("document")

	if h.idx != nil {
		rows, total, err := h.idx.List(limit, offset, kind, document)
		if err != nil {
			slog.Error("list records failed", slog.String("error", err.Error()))
			writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"records": rows,
			"total":   total,
		})
		return
	}

	all, err := h.log.All()
	if err != nil {
		slog.Error("read transfer log failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	filtered := filterRecords(all, kind, document)
	writeJSON(w, http.StatusOK, map[string]any{
		"records": paginate(filtered, limit, offset),
		"total":   len(filtered),
	})
}

// filterRecords returns matching records newest-first.
func filterRecords(all []models.TransferRecord, kind, document string) []models.TransferRecord {
	out := make([]models.TransferRecord, 0, len(all))
	for i := len(all) - 1; i >= 0; i-- {
		rec := all[i]
		if kind != "" && string(rec.Kind) != kind {
			continue
		}
		if document != "" && rec.DocumentPath != document {
			continue
		}
		out = append(out, rec)
	}
	return out
}

func paginate(recs []models.TransferRecord, limit, offset int) []models.TransferRecord {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(recs) {
		return []models.TransferRecord{}
	}
	recs = recs[offset:]
	if limit > 0 && limit < len(recs) {
		recs = recs[:limit]
	}
	return recs
}

func rawFromBody(w http.ResponseWriter, r *http.Request) (string, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	var req struct {
		Raw string `json:"raw"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return "", false
	}
	if req.Raw == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("raw is required"))
		return "", false
	}
	return req.Raw, true
}

func writeTransferError(w http.ResponseWriter, raw string, err error) {
	switch {
	case errors.Is(err, apperr.ErrNotTracked):
		writeJSON(w, http.StatusNotFound, errorBody("not tracked"))
	case errors.Is(err, apperr.ErrNoSourceFile):
		writeJSON(w, http.StatusConflict, errorBody("source file not found in vault"))
	case errors.Is(err, apperr.ErrMissingConfig), errors.Is(err, apperr.ErrNoPublicBase):
		writeJSON(w, http.StatusConflict, errorBody(err.Error()))
	default:
		slog.Error("transfer trigger failed",
			slog.String("raw", raw),
			slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
	}
}
