package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hamed0406/uptimeworker/internal/domain"
	apimw "github.com/hamed0406/uptimeworker/internal/httpapi/middleware"
	"github.com/hamed0406/uptimeworker/internal/repo"
	"github.com/hamed0406/uptimeworker/internal/validate"
)

// MaxChecksPerUser caps how many checks one user may own.
const MaxChecksPerUser = 5

// LogStore is the part of checklog.Store the API reads and cleans up.
type LogStore interface {
	List(includeCompressed bool) ([]string, error)
	Read(name string) (string, error)
	IsCompressed(name string) bool
	Decompress(fileID string) (string, error)
	Remove(logID string) error
}

type Limits struct {
	PublicRPM, PublicBurst int
	AdminRPM, AdminBurst   int
}

type Server struct {
	Logger *zap.Logger
	Store  repo.RecordStore
	Logs   LogStore
	Hub    *Hub

	auth apimw.Auth
}

func NewServer(l *zap.Logger, store repo.RecordStore, logs LogStore, hub *Hub) *Server {
	if l == nil {
		l = zap.NewNop()
	}
	return &Server{Logger: l, Store: store, Logs: logs, Hub: hub}
}

type access int

const (
	accessOpen access = iota
	accessRead
	accessAdmin
	// accessSession is rate limited only; the handler authorizes the caller.
	accessSession
)

type route struct {
	method  string
	pattern string
	access  access
	handler http.HandlerFunc
}

// routes is the full dispatch table; Router registers it once.
func (s *Server) routes() []route {
	rs := []route{
		{http.MethodGet, "/ping", accessOpen, s.handlePing},
		{http.MethodGet, "/healthz", accessOpen, s.handleHealth},
		{http.MethodGet, "/api/checks", accessRead, s.handleListChecks},
		{http.MethodGet, "/api/checks/{id}", accessRead, s.handleGetCheck},
		{http.MethodPost, "/api/checks", accessAdmin, s.handleCreateCheck},
		{http.MethodDelete, "/api/checks/{id}", accessAdmin, s.handleDeleteCheck},
		{http.MethodGet, "/api/logs", accessRead, s.handleListLogs},
		{http.MethodGet, "/api/logs/{name}", accessRead, s.handleGetLog},
		{http.MethodPost, "/api/users", accessSession, s.handleCreateUser},
		{http.MethodGet, "/api/users/{phone}", accessSession, s.handleGetUser},
		{http.MethodPut, "/api/users/{phone}", accessSession, s.handleUpdateUser},
		{http.MethodDelete, "/api/users/{phone}", accessSession, s.handleDeleteUser},
		{http.MethodPost, "/api/tokens", accessSession, s.handleCreateToken},
		{http.MethodGet, "/api/tokens/{id}", accessSession, s.handleGetToken},
		{http.MethodPut, "/api/tokens/{id}", accessSession, s.handleExtendToken},
		{http.MethodDelete, "/api/tokens/{id}", accessSession, s.handleDeleteToken},
	}
	if s.Hub != nil {
		rs = append(rs, route{http.MethodGet, "/api/stream", accessRead, s.Hub.ServeWS})
	}
	return rs
}

func (s *Server) Router(keys apimw.Keys, limits Limits) http.Handler {
	auth := apimw.Auth{Keys: keys, Tokens: s.tokenValid}
	s.auth = auth

	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-API-Key", "token"},
		MaxAge:         300,
	}))

	readMW := chi.Chain(auth.RequireAny(), apimw.RateLimit(limits.PublicRPM, limits.PublicBurst))
	adminMW := chi.Chain(auth.RequireAny(), auth.RequireAdmin(), apimw.RateLimit(limits.AdminRPM, limits.AdminBurst))
	sessionMW := chi.Chain(apimw.RateLimit(limits.PublicRPM, limits.PublicBurst))

	for _, rt := range s.routes() {
		var h http.Handler = rt.handler
		switch rt.access {
		case accessRead:
			h = readMW.Handler(h)
		case accessAdmin:
			h = adminMW.Handler(h)
		case accessSession:
			h = sessionMW.Handler(h)
		}
		r.Method(rt.method, rt.pattern, h)
	}
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})
	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) tokenValid(ctx context.Context, id string) bool {
	_, ok := s.liveToken(ctx, id)
	return ok
}

func (s *Server) liveToken(ctx context.Context, id string) (domain.Token, bool) {
	var tok domain.Token
	if repo.ValidKey(domain.CollectionTokens, id) != nil {
		return tok, false
	}
	if err := repo.ReadJSON(ctx, s.Store, domain.CollectionTokens, id, &tok); err != nil {
		return tok, false
	}
	return tok, tok.Valid(domain.NowMillis())
}

func (s *Server) handlePing(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if _, err := s.Store.List(r.Context(), domain.CollectionChecks); err != nil {
		writeError(w, http.StatusServiceUnavailable, "store unavailable")
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleListChecks(w http.ResponseWriter, r *http.Request) {
	filter := domain.State(r.URL.Query().Get("state"))
	if filter != "" && filter != domain.StateUp && filter != domain.StateDown {
		writeError(w, http.StatusBadRequest, "state must be up or down")
		return
	}
	checks, err := LoadChecks(r.Context(), s.Store)
	if err != nil {
		s.Logger.Warn("api_list_checks_failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "list error")
		return
	}
	out := make([]domain.Check, 0, len(checks))
	for _, c := range checks {
		if filter == "" || c.State == filter {
			out = append(out, c)
		}
	}
	writeJSON(w, http.StatusOK, out)
}

// LoadChecks reads every stored check, skipping ones that vanish or fail
// to decode between list and read.
func LoadChecks(ctx context.Context, store repo.RecordStore) ([]domain.Check, error) {
	ids, err := store.List(ctx, domain.CollectionChecks)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Check, 0, len(ids))
	for _, id := range ids {
		var c domain.Check
		if err := repo.ReadJSON(ctx, store, domain.CollectionChecks, id, &c); err != nil {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

func (s *Server) handleGetCheck(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var c domain.Check
	err := repo.ReadJSON(r.Context(), s.Store, domain.CollectionChecks, id, &c)
	switch {
	case errors.Is(err, repo.ErrNotFound):
		writeError(w, http.StatusNotFound, "check not found")
	case err != nil:
		writeError(w, http.StatusInternalServerError, "read error")
	default:
		writeJSON(w, http.StatusOK, c)
	}
}

func (s *Server) handleCreateCheck(w http.ResponseWriter, r *http.Request) {
	var raw map[string]any
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&raw); err != nil || raw == nil {
		writeError(w, http.StatusBadRequest, "bad payload")
		return
	}
	delete(raw, "state")
	delete(raw, "lastChecked")
	raw["id"] = strings.ReplaceAll(uuid.NewString(), "-", "")

	c, violations := validate.Check(raw)
	if len(violations) > 0 {
		writeJSON(w, http.StatusBadRequest, map[string]any{"errors": violations})
		return
	}

	ctx := r.Context()
	var u domain.User
	if err := repo.ReadJSON(ctx, s.Store, domain.CollectionUsers, c.UserPhone, &u); err != nil {
		writeError(w, http.StatusBadRequest, "unknown user")
		return
	}
	if len(u.Checks) >= MaxChecksPerUser {
		writeError(w, http.StatusBadRequest, "the user already has the maximum number of checks")
		return
	}

	c.State = ""
	if err := repo.CreateJSON(ctx, s.Store, domain.CollectionChecks, c.ID, c); err != nil {
		s.Logger.Warn("api_create_check_failed", zap.String("check_id", c.ID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not create the check")
		return
	}
	u.Checks = append(u.Checks, c.ID)
	if err := repo.UpdateJSON(ctx, s.Store, domain.CollectionUsers, u.Phone, u); err != nil {
		s.Logger.Warn("api_user_update_failed", zap.String("phone", u.Phone), zap.Error(err))
		// Roll back: every stored check must be listed on its owner.
		if derr := s.Store.Delete(ctx, domain.CollectionChecks, c.ID); derr != nil {
			s.Logger.Error("api_orphan_check", zap.String("check_id", c.ID), zap.Error(derr))
		}
		writeError(w, http.StatusInternalServerError, "could not link the check to its user")
		return
	}

	s.Logger.Info("check_created",
		zap.String("check_id", c.ID),
		zap.String("target", c.Target()),
		zap.String("method", c.HTTPMethod()),
	)
	writeJSON(w, http.StatusCreated, c)
}

func (s *Server) handleDeleteCheck(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")
	var c domain.Check
	if err := repo.ReadJSON(ctx, s.Store, domain.CollectionChecks, id, &c); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			writeError(w, http.StatusNotFound, "check not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "read error")
		return
	}
	if err := s.Store.Delete(ctx, domain.CollectionChecks, id); err != nil && !errors.Is(err, repo.ErrNotFound) {
		writeError(w, http.StatusInternalServerError, "could not delete the check")
		return
	}

	var u domain.User
	if err := repo.ReadJSON(ctx, s.Store, domain.CollectionUsers, c.UserPhone, &u); err == nil {
		kept := u.Checks[:0]
		for _, cid := range u.Checks {
			if cid != id {
				kept = append(kept, cid)
			}
		}
		u.Checks = kept
		if err := repo.UpdateJSON(ctx, s.Store, domain.CollectionUsers, u.Phone, u); err != nil {
			s.Logger.Warn("api_user_update_failed", zap.String("phone", u.Phone), zap.Error(err))
		}
	}
	if s.Logs != nil {
		if err := s.Logs.Remove(id); err != nil {
			s.Logger.Warn("check_log_remove_failed", zap.String("check_id", id), zap.Error(err))
		}
	}

	s.Logger.Info("check_deleted", zap.String("check_id", id))
	writeJSON(w, http.StatusOK, map[string]any{})
}

func (s *Server) handleListLogs(w http.ResponseWriter, r *http.Request) {
	if s.Logs == nil {
		writeJSON(w, http.StatusOK, []string{})
		return
	}
	names, err := s.Logs.List(true)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "list error")
		return
	}
	if names == nil {
		names = []string{}
	}
	writeJSON(w, http.StatusOK, names)
}

func (s *Server) handleGetLog(w http.ResponseWriter, r *http.Request) {
	if s.Logs == nil {
		writeError(w, http.StatusNotFound, "log not found")
		return
	}
	name := chi.URLParam(r, "name")
	var (
		content string
		err     error
	)
	if s.Logs.IsCompressed(name) {
		content, err = s.Logs.Decompress(name)
	} else {
		content, err = s.Logs.Read(name)
	}
	if err != nil {
		writeError(w, http.StatusNotFound, "log not found")
		return
	}
	w.Header().Set("Content-Type", "application/x-ndjson")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(content))
}
