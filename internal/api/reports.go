package api

import (
	"bytes"
	"fmt"
	"net/http"
	"time"

	"taskdesk/pkg/apperr"
	"taskdesk/pkg/report"
	"taskdesk/pkg/user"
)

func (s *Server) handleReportTasks(w http.ResponseWriter, r *http.Request, _ *user.User) error {
	q := r.URL.Query()
	from, to, err := report.ParseRange(q.Get("from"), q.Get("to"))
	if err != nil {
		return err
	}
	tbl, err := s.reports.TaskRows(r.Context(), from, to)
	if err != nil {
		return err
	}
	return writeReport(w, r, tbl, "tasks_report")
}

func (s *Server) handleReportUsers(w http.ResponseWriter, r *http.Request, _ *user.User) error {
	tbl, err := s.reports.UserRows(r.Context())
	if err != nil {
		return err
	}
	return writeReport(w, r, tbl, "users_report")
}

// writeReport renders tbl in the format named by ?format (json or xlsx).
// The body is buffered so a render failure still produces a clean error.
func writeReport(w http.ResponseWriter, r *http.Request, tbl *report.Table, base string) error {
	format := r.URL.Query().Get("format")
	if format == "" {
		format = "json"
	}

	var buf bytes.Buffer
	switch format {
	case "json":
		if err := report.WriteJSON(&buf, tbl); err != nil {
			return apperr.Internal(err, "failed to render report")
		}
		w.Header().Set("Content-Type", "application/json")
	case "xlsx":
		if err := report.WriteXLSX(&buf, tbl); err != nil {
			return apperr.Internal(err, "failed to render report")
		}
		name := fmt.Sprintf("%s_%s.xlsx", base, time.Now().UTC().Format("20060102"))
		w.Header().Set("Content-Type", report.XLSXContentType)
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	default:
		return apperr.Validation("format must be json or xlsx")
	}

	w.WriteHeader(http.StatusOK)
	_, err := buf.WriteTo(w)
	return err
}
