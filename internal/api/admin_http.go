package api

import (
	"bytes"
	"net/http"
	"strings"

	"retreat/internal/export"
	"retreat/internal/models"
	"retreat/internal/service"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

func (s *HTTPServer) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.deps.Reservations.GetStats(r.Context())
	if err != nil {
		writeServiceError(w, &s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *HTTPServer) handleExport(w http.ResponseWriter, r *http.Request) {
	if s.deps.Exporter == nil {
		writeError(w, http.StatusNotImplemented, "export is not configured")
		return
	}

	fields := map[string]string{}
	for _, name := range []string{"from", "to"} {
		if strings.TrimSpace(r.URL.Query().Get(name)) == "" {
			fields[name] = "This field is required"
		}
	}
	if len(fields) > 0 {
		writeServiceError(w, &s.log, &service.ValidationError{Fields: fields})
		return
	}
	from, err := queryDate(r, "from")
	if err != nil {
		writeServiceError(w, &s.log, err)
		return
	}
	to, err := queryDate(r, "to")
	if err != nil {
		writeServiceError(w, &s.log, err)
		return
	}

	// заголовки отдаём только после успешной сборки книги
	var buf bytes.Buffer
	if err := s.deps.Exporter.Write(r.Context(), &buf, from, to); err != nil {
		writeServiceError(w, &s.log, err)
		return
	}

	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+export.FileName(from, to)+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func (s *HTTPServer) handleDeadLetters(w http.ResponseWriter, r *http.Request) {
	if s.deps.DeadLetters == nil {
		writeJSON(w, http.StatusOK, map[string]any{"tasks": []models.SyncTask{}})
		return
	}
	limit, err := queryInt(r, "limit")
	if err != nil {
		writeServiceError(w, &s.log, err)
		return
	}
	if limit == 0 || limit > 500 {
		limit = 100
	}

	tasks, err := s.deps.DeadLetters.DeadLetters(r.Context(), limit)
	if err != nil {
		writeServiceError(w, &s.log, err)
		return
	}
	if tasks == nil {
		tasks = []models.SyncTask{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"tasks": tasks})
}
