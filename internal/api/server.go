package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"taskdesk/pkg/access"
	"taskdesk/pkg/activity"
	"taskdesk/pkg/apperr"
	"taskdesk/pkg/auth"
	"taskdesk/pkg/report"
	"taskdesk/pkg/task"
	"taskdesk/pkg/user"
)

// maxJSONBody caps JSON request bodies.
const maxJSONBody = 1 << 20

// Deps are the services the API is built on.
type Deps struct {
	Auth      *auth.Service
	Tasks     *task.Engine
	Users     user.Store
	Reports   *report.Builder
	Activity  activity.Store
	UploadDir string
	ClientURL string
	Debug     bool
	Log       *log.Entry
}

// Server is the HTTP API server.
type Server struct {
	auth      *auth.Service
	tasks     *task.Engine
	users     user.Store
	reports   *report.Builder
	activity  activity.Store
	uploadDir string
	debug     bool
	log       *log.Entry

	streamEvery time.Duration

	mux     *http.ServeMux
	handler http.Handler
}

// New creates a new Server.
func New(d Deps) *Server {
	logger := d.Log
	if logger == nil {
		logger = log.NewEntry(log.StandardLogger())
	}
	s := &Server{
		auth:      d.Auth,
		tasks:     d.Tasks,
		users:     d.Users,
		reports:   d.Reports,
		activity:  d.Activity,
		uploadDir: d.UploadDir,
		debug:     d.Debug,
		log:       logger,

		streamEvery: 2 * time.Second,
		mux:         http.NewServeMux(),
	}
	s.routes()
	s.handler = withCORS(d.ClientURL, s.recoverer(s.requestLogger(s.mux)))
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

func (s *Server) routes() {
	// Auth
	s.handle("POST /auth/register", access.Public, s.handleRegister)
	s.handle("POST /auth/login", access.Public, s.handleLogin)
	s.handle("GET /auth/profile", access.Member, s.handleProfileGet)
	s.handle("PUT /auth/profile", access.Member, s.handleProfileUpdate)
	s.handle("POST /auth/upload-image", access.Member, s.handleUploadImage)

	// Tasks
	s.handle("GET /tasks", access.Member, s.handleTaskList)
	s.handle("POST /tasks", access.Member, s.handleTaskCreate)
	s.handle("GET /tasks/dashboard", access.AdminOnly, s.handleDashboard)
	s.handle("GET /tasks/dashboard/me", access.Member, s.handleDashboardMe)
	s.handle("GET /tasks/{id}", access.Member, s.handleTaskGet)
	s.handle("PUT /tasks/{id}", access.Member, s.handleTaskUpdate)
	s.handle("DELETE /tasks/{id}", access.AdminOnly, s.handleTaskDelete)
	s.handle("PUT /tasks/{id}/status", access.Member, s.handleTaskStatus)
	s.handle("PUT /tasks/{id}/checklist", access.Member, s.handleTaskChecklist)
	s.handle("GET /tasks/{id}/activity", access.Member, s.handleTaskActivity)

	// Users
	s.handle("GET /users", access.AdminOnly, s.handleUserList)
	s.handle("GET /users/{id}", access.AdminOnly, s.handleUserGet)
	s.handle("DELETE /users/{id}", access.AdminOnly, s.handleUserDelete)

	// Reports
	s.handle("GET /reports/tasks", access.AdminOnly, s.handleReportTasks)
	s.handle("GET /reports/users", access.AdminOnly, s.handleReportUsers)

	// System
	s.handle("GET /health", access.Public, s.handleHealth)
	s.handle("GET /status", access.AdminOnly, s.handleStatus)
	s.handle("GET /activity/stream", access.AdminOnly, s.handleActivityStream)

	// Uploaded images
	if s.uploadDir != "" {
		s.mux.Handle("GET /uploads/{name}", http.StripPrefix("/uploads/", http.FileServer(http.Dir(s.uploadDir))))
	}
}

// handlerFunc is a route handler that receives the resolved caller (nil on
// public routes) and reports failures by returning them.
type handlerFunc func(w http.ResponseWriter, r *http.Request, caller *user.User) error

// handle registers h behind policy. The policy is evaluated once, before
// the handler runs.
func (s *Server) handle(pattern string, policy access.Policy, h handlerFunc) {
	s.mux.HandleFunc(pattern, func(w http.ResponseWriter, r *http.Request) {
		var caller *user.User
		if policy.NeedsIdentity() {
			u, err := s.auth.ResolveIdentity(r.Context(), bearerToken(r))
			if err != nil {
				s.fail(w, r, err)
				return
			}
			caller = u
		}
		if err := policy.Check(caller); err != nil {
			s.fail(w, r, err)
			return
		}
		if err := h(w, r, caller); err != nil {
			s.fail(w, r, err)
		}
	})
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "Bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}

// fail writes err as a JSON error. Unclassified errors become a generic 500;
// their detail is only exposed in debug mode.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	kind := apperr.KindOf(err)
	status := apperr.StatusOf(kind)

	entry := s.log.WithField("operation", r.Method+" "+r.URL.Path).WithField("kind", kind)
	msg := err.Error()
	var ae *apperr.Error
	if errors.As(err, &ae) {
		msg = ae.Message
	}

	switch kind {
	case apperr.KindInternal, apperr.KindConfiguration:
		entry.WithError(err).Error("request failed")
		body := map[string]string{"error": "internal server error"}
		if kind == apperr.KindConfiguration {
			body["error"] = "server is not configured for this request"
		}
		if s.debug {
			body["detail"] = err.Error()
		}
		writeJSON(w, status, body)
		return
	default:
		entry.WithField("status", status).Debug(msg)
	}
	writeError(w, status, msg)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.WithError(err).Warn("write json")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
