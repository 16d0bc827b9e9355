package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"

	"github.com/xtxerr/gridpower/internal/errors"
	"github.com/xtxerr/gridpower/internal/logging"
	"github.com/xtxerr/gridpower/internal/storage/parquet"
	"github.com/xtxerr/gridpower/internal/storage/query"
	"github.com/xtxerr/gridpower/internal/storage/types"
)

const defaultRejectsLimit = 100

// =============================================================================
// Ingest
// =============================================================================

// handleIngest streams a text/plain body into one ingest session.
func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	if !isTextPlain(r.Header.Get("Content-Type")) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusBadRequest)
		io.WriteString(w, "Invalid content type")
		return
	}

	var body io.Reader = r.Body
	if s.cfg.MaxBodyBytes > 0 {
		body = http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes)
	}

	stats, err := s.backend.Ingest(r.Context(), body, "http")
	if stats.ID != "" {
		w.Header().Set(headerSessionID, stats.ID)
	}

	if err != nil {
		status := errors.HTTPStatus(err)
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			status = http.StatusRequestEntityTooLarge
		}

		logging.FromContext(r.Context(), log).Warn("ingest failed", "status", status, "error", err)
		writeJSON(w, status, map[string]bool{"success": false})
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func isTextPlain(contentType string) bool {
	mt, _, err := mime.ParseMediaType(contentType)
	return err == nil && mt == "text/plain"
}

// =============================================================================
// Query
// =============================================================================

// handleQuery returns raw readings and daily power as one flat array.
func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	win, ok := s.window(w, r)
	if !ok {
		return
	}

	res, err := s.backend.Query(r.Context(), win)
	if err != nil {
		s.queryError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, res)
}

// handleDaily returns per-day, per-channel summaries.
func (s *Server) handleDaily(w http.ResponseWriter, r *http.Request) {
	win, ok := s.window(w, r)
	if !ok {
		return
	}

	summaries, err := s.backend.Daily(r.Context(), win)
	if err != nil {
		s.queryError(w, r, err)
		return
	}
	if summaries == nil {
		summaries = []types.DaySummary{}
	}

	writeJSON(w, http.StatusOK, summaries)
}

// handleExport returns the readings of the window as a Parquet file.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	win, ok := s.window(w, r)
	if !ok {
		return
	}

	// Buffered so a failed export still gets an error status
	var buf bytes.Buffer
	n, err := s.backend.Export(r.Context(), win, &buf)
	if err != nil {
		s.queryError(w, r, err)
		return
	}

	filename := fmt.Sprintf("gridpower-%s.parquet", win.From.UTC().Format("20060102T150405Z"))

	w.Header().Set("Content-Type", parquet.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.Header().Set("X-Row-Count", strconv.FormatInt(n, 10))
	w.WriteHeader(http.StatusOK)
	buf.WriteTo(w)
}

func (s *Server) window(w http.ResponseWriter, r *http.Request) (query.Window, bool) {
	q := r.URL.Query()

	win, err := query.ParseWindow(q.Get("from"), q.Get("to"), q.Get("period"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return query.Window{}, false
	}
	return win, true
}

func (s *Server) queryError(w http.ResponseWriter, r *http.Request, err error) {
	status := errors.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		logging.FromContext(r.Context(), log).Error("query failed", "path", r.URL.Path, "error", err)
	}
	writeError(w, status, err.Error())
}

// =============================================================================
// Rejects, stats, health
// =============================================================================

// handleRejects returns recently rejected rows. With session set, the
// rows of that session are returned oldest first.
func (s *Server) handleRejects(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	limit := defaultRejectsLimit
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid limit %q", v))
			return
		}
		limit = n
	}

	var rejects []types.Rejection
	if session := q.Get("session"); session != "" {
		rejects = s.backend.SessionRejections(session, limit)
	} else {
		rejects = s.backend.Rejections(limit)
	}
	if rejects == nil {
		rejects = []types.Rejection{}
	}

	writeJSON(w, http.StatusOK, rejects)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.backend.Stats())
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if !s.backend.IsRunning() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "stopped"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// Helpers
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Debug("write response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
