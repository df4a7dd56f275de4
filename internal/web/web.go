package web

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"eventocc/internal/civil"
	"eventocc/internal/config"
	appLog "eventocc/internal/log"
	"eventocc/internal/model"
	"eventocc/internal/recurrence"
	"eventocc/internal/storage"
)

const (
	maxJSONBody = 1 << 20
	maxICSBody  = 4 << 20
)

// Repository is the persistence the API reads and writes.
type Repository interface {
	SaveRule(ctx context.Context, rule model.RecurrenceRule) error
	GetRule(ctx context.Context, id string) (model.RecurrenceRule, error)
	ListRules(ctx context.Context) ([]model.RecurrenceRule, error)
	ReplaceOccurrences(ctx context.Context, ruleID string, occs []model.Occurrence) error
	ListOccurrences(ctx context.Context, ruleID string) ([]model.Occurrence, error)
	SetOccurrenceState(ctx context.Context, ruleID string, d civil.Date, state model.State) error
}

// Server exposes rule expansion, stored occurrences and iCalendar
// import/export over HTTP.
type Server struct {
	cfg   *config.Config
	repo  Repository
	mux   *http.ServeMux
	now   func() time.Time
	newID func() string
}

func NewServer(cfg *config.Config, repo Repository) *Server {
	s := &Server{
		cfg:   cfg,
		repo:  repo,
		mux:   http.NewServeMux(),
		now:   time.Now,
		newID: uuid.NewString,
	}
	s.registerRoutes()
	return s
}

// Handler returns the underlying http.Handler for this server.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.mux)
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled", "listen", "http://"+s.cfg.Listen)
		return s.basicAuthMiddleware(h)
	}
	return h
}

func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	return s.cfg.BasicAuth.Username != "" && s.cfg.BasicAuth.Password != ""
}

// basicAuthMiddleware wraps all handlers except /health with HTTP Basic Auth.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	username := s.cfg.BasicAuth.Username
	password := s.cfg.BasicAuth.Password

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="eventocc", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)

	s.mux.HandleFunc("POST /api/expand", s.handleExpand)
	s.mux.HandleFunc("POST /api/rules", s.handleCreateRule)
	s.mux.HandleFunc("GET /api/rules", s.handleListRules)
	s.mux.HandleFunc("GET /api/rules/{id}/occurrences", s.handleOccurrences)
	s.mux.HandleFunc("GET /api/rules/{id}/badge", s.handleBadge)
	s.mux.HandleFunc("PUT /api/rules/{id}/occurrences/{date}/state", s.handleSetState)
	s.mux.HandleFunc("GET /api/rules/{id}/calendar.ics", s.handleCalendar)

	s.mux.HandleFunc("POST /api/import", s.handleImport)
	s.mux.HandleFunc("POST /api/authoring/submit", s.handleAuthoringSubmit)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// materialize expands rule against today's horizon and stores both the rule
// and its occurrences.
func (s *Server) materialize(ctx context.Context, rule model.RecurrenceRule) ([]model.Occurrence, error) {
	exp := s.cfg.Expansion()
	exp.Reference = civil.TodayUTC(s.now())
	occs, err := recurrence.Expand(rule, exp)
	if err != nil {
		return nil, err
	}
	if err := s.repo.SaveRule(ctx, rule); err != nil {
		return nil, err
	}
	if err := s.repo.ReplaceOccurrences(ctx, rule.ID, occs); err != nil {
		return nil, err
	}
	return occs, nil
}

// loadRule fetches the rule named by the {id} path segment, writing a 404 or
// 500 itself when it cannot.
func (s *Server) loadRule(w http.ResponseWriter, r *http.Request) (model.RecurrenceRule, bool) {
	id := r.PathValue("id")
	rule, err := s.repo.GetRule(r.Context(), id)
	if err != nil {
		writeStoreError(w, err)
		return model.RecurrenceRule{}, false
	}
	return rule, true
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

type errorResponse struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// writeExpandError maps validation failures to 400 and everything else to 500.
func writeExpandError(w http.ResponseWriter, err error) {
	var ve *recurrence.ValidationError
	if errors.As(err, &ve) {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: ve.Msg, Field: ve.Field})
		return
	}
	writeStoreError(w, err)
}

func writeStoreError(w http.ResponseWriter, err error) {
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	appLog.Error("api request failed", err)
	writeError(w, http.StatusInternalServerError, "internal error")
}

func readBody(w http.ResponseWriter, r *http.Request, limit int64) ([]byte, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, limit))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
		return nil, false
	}
	if strings.TrimSpace(string(body)) == "" {
		writeError(w, http.StatusBadRequest, "request body is empty")
		return nil, false
	}
	return body, true
}
