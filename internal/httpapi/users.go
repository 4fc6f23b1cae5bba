package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/hamed0406/uptimeworker/internal/domain"
	"github.com/hamed0406/uptimeworker/internal/repo"
)

// TokenTTL is how long a new or extended session token stays valid.
const TokenTTL = time.Hour

const minPhoneLen = 10

var passwordCost = bcrypt.DefaultCost

type userPayload struct {
	FirstName    string `json:"firstName"`
	LastName     string `json:"lastName"`
	Phone        string `json:"phone"`
	Password     string `json:"password"`
	TOSAgreement bool   `json:"tosAgreement"`
}

type tokenPayload struct {
	Phone    string `json:"phone"`
	Password string `json:"password"`
	Extend   bool   `json:"extend"`
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "bad payload")
		return false
	}
	return true
}

func validPhone(phone string) bool {
	return len(phone) >= minPhoneLen && repo.ValidKey(domain.CollectionUsers, phone) == nil
}

func publicUser(u domain.User) domain.User {
	u.HashedPassword = ""
	return u
}

// actsFor reports whether the caller may manage the user with this phone:
// an admin key, or a live session token issued to that phone.
func (s *Server) actsFor(r *http.Request, phone string) bool {
	if s.auth.IsAdmin(r) {
		return true
	}
	tok, ok := s.liveToken(r.Context(), strings.TrimSpace(r.Header.Get("token")))
	return ok && tok.Phone == phone
}

func (s *Server) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var p userPayload
	if !decodeBody(w, r, &p) {
		return
	}
	p.FirstName, p.LastName, p.Phone = strings.TrimSpace(p.FirstName), strings.TrimSpace(p.LastName), strings.TrimSpace(p.Phone)
	if p.FirstName == "" || p.LastName == "" || !validPhone(p.Phone) || strings.TrimSpace(p.Password) == "" || !p.TOSAgreement {
		writeError(w, http.StatusBadRequest, "missing required fields")
		return
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(p.Password), passwordCost)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "could not hash the password")
		return
	}
	u := domain.User{
		FirstName:      p.FirstName,
		LastName:       p.LastName,
		Phone:          p.Phone,
		HashedPassword: string(hash),
		TOSAgreement:   true,
	}
	err = repo.CreateJSON(r.Context(), s.Store, domain.CollectionUsers, u.Phone, u)
	switch {
	case errors.Is(err, repo.ErrExists):
		writeError(w, http.StatusBadRequest, "a user with that phone number already exists")
		return
	case err != nil:
		s.Logger.Warn("api_create_user_failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not create the user")
		return
	}
	s.Logger.Info("user_created", zap.String("phone", u.Phone))
	writeJSON(w, http.StatusCreated, publicUser(u))
}

// loadUser resolves {phone}, authorizes the caller and reads the record.
// It writes the error response itself and reports false on any failure.
func (s *Server) loadUser(w http.ResponseWriter, r *http.Request) (domain.User, bool) {
	var u domain.User
	phone := chi.URLParam(r, "phone")
	if !validPhone(phone) {
		writeError(w, http.StatusBadRequest, "invalid phone")
		return u, false
	}
	if !s.actsFor(r, phone) {
		writeError(w, http.StatusForbidden, "missing or invalid token")
		return u, false
	}
	err := repo.ReadJSON(r.Context(), s.Store, domain.CollectionUsers, phone, &u)
	switch {
	case errors.Is(err, repo.ErrNotFound):
		writeError(w, http.StatusNotFound, "user not found")
		return u, false
	case err != nil:
		writeError(w, http.StatusInternalServerError, "read error")
		return u, false
	}
	return u, true
}

func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	u, ok := s.loadUser(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, publicUser(u))
}

func (s *Server) handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	var p userPayload
	if !decodeBody(w, r, &p) {
		return
	}
	p.FirstName, p.LastName = strings.TrimSpace(p.FirstName), strings.TrimSpace(p.LastName)
	if p.FirstName == "" && p.LastName == "" && strings.TrimSpace(p.Password) == "" {
		writeError(w, http.StatusBadRequest, "missing fields to update")
		return
	}
	u, ok := s.loadUser(w, r)
	if !ok {
		return
	}
	if p.FirstName != "" {
		u.FirstName = p.FirstName
	}
	if p.LastName != "" {
		u.LastName = p.LastName
	}
	if strings.TrimSpace(p.Password) != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(p.Password), passwordCost)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "could not hash the password")
			return
		}
		u.HashedPassword = string(hash)
	}
	if err := repo.UpdateJSON(r.Context(), s.Store, domain.CollectionUsers, u.Phone, u); err != nil {
		s.Logger.Warn("api_user_update_failed", zap.String("phone", u.Phone), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not update the user")
		return
	}
	writeJSON(w, http.StatusOK, publicUser(u))
}

// handleDeleteUser removes the user's checks and their logs, revokes the
// user's tokens and then removes the user. Checks that fail to delete stay
// linked to the user and the request fails.
func (s *Server) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	u, ok := s.loadUser(w, r)
	if !ok {
		return
	}
	ctx := r.Context()

	var (
		errs error
		kept []string
	)
	for _, id := range u.Checks {
		if err := s.Store.Delete(ctx, domain.CollectionChecks, id); err != nil && !errors.Is(err, repo.ErrNotFound) {
			errs = multierr.Append(errs, err)
			kept = append(kept, id)
			continue
		}
		if s.Logs != nil {
			if err := s.Logs.Remove(id); err != nil {
				s.Logger.Warn("check_log_remove_failed", zap.String("check_id", id), zap.Error(err))
			}
		}
	}
	if errs != nil {
		s.Logger.Warn("api_delete_user_checks_failed", zap.String("phone", u.Phone), zap.Error(errs))
		u.Checks = kept
		if err := repo.UpdateJSON(ctx, s.Store, domain.CollectionUsers, u.Phone, u); err != nil {
			s.Logger.Warn("api_user_update_failed", zap.String("phone", u.Phone), zap.Error(err))
		}
		writeError(w, http.StatusInternalServerError, "could not delete the user's checks")
		return
	}

	s.revokeTokens(r, u.Phone)
	if err := s.Store.Delete(ctx, domain.CollectionUsers, u.Phone); err != nil && !errors.Is(err, repo.ErrNotFound) {
		s.Logger.Warn("api_delete_user_failed", zap.String("phone", u.Phone), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not delete the user")
		return
	}
	s.Logger.Info("user_deleted", zap.String("phone", u.Phone), zap.Int("checks", len(u.Checks)))
	writeJSON(w, http.StatusOK, map[string]any{})
}

func (s *Server) revokeTokens(r *http.Request, phone string) {
	ctx := r.Context()
	ids, err := s.Store.List(ctx, domain.CollectionTokens)
	if err != nil {
		s.Logger.Warn("token_list_failed", zap.Error(err))
		return
	}
	for _, id := range ids {
		var tok domain.Token
		if repo.ReadJSON(ctx, s.Store, domain.CollectionTokens, id, &tok) != nil || tok.Phone != phone {
			continue
		}
		if err := s.Store.Delete(ctx, domain.CollectionTokens, id); err != nil && !errors.Is(err, repo.ErrNotFound) {
			s.Logger.Warn("token_revoke_failed", zap.String("token_id", id), zap.Error(err))
		}
	}
}

func (s *Server) handleCreateToken(w http.ResponseWriter, r *http.Request) {
	var p tokenPayload
	if !decodeBody(w, r, &p) {
		return
	}
	p.Phone = strings.TrimSpace(p.Phone)
	if !validPhone(p.Phone) || p.Password == "" {
		writeError(w, http.StatusBadRequest, "missing required fields")
		return
	}
	ctx := r.Context()
	var u domain.User
	if err := repo.ReadJSON(ctx, s.Store, domain.CollectionUsers, p.Phone, &u); err != nil {
		writeError(w, http.StatusBadRequest, "could not find the specified user")
		return
	}
	if bcrypt.CompareHashAndPassword([]byte(u.HashedPassword), []byte(p.Password)) != nil {
		writeError(w, http.StatusBadRequest, "password did not match")
		return
	}
	tok := domain.Token{
		ID:      strings.ReplaceAll(uuid.NewString(), "-", ""),
		Phone:   u.Phone,
		Expires: time.Now().Add(TokenTTL).UnixMilli(),
	}
	if err := repo.CreateJSON(ctx, s.Store, domain.CollectionTokens, tok.ID, tok); err != nil {
		s.Logger.Warn("api_create_token_failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not create the token")
		return
	}
	s.Logger.Info("token_created", zap.String("phone", u.Phone))
	writeJSON(w, http.StatusCreated, tok)
}

func (s *Server) readToken(w http.ResponseWriter, r *http.Request) (domain.Token, bool) {
	var tok domain.Token
	id := chi.URLParam(r, "id")
	if repo.ValidKey(domain.CollectionTokens, id) != nil {
		writeError(w, http.StatusBadRequest, "invalid token id")
		return tok, false
	}
	err := repo.ReadJSON(r.Context(), s.Store, domain.CollectionTokens, id, &tok)
	switch {
	case errors.Is(err, repo.ErrNotFound):
		writeError(w, http.StatusNotFound, "token not found")
		return tok, false
	case err != nil:
		writeError(w, http.StatusInternalServerError, "read error")
		return tok, false
	}
	return tok, true
}

func (s *Server) handleGetToken(w http.ResponseWriter, r *http.Request) {
	if tok, ok := s.readToken(w, r); ok {
		writeJSON(w, http.StatusOK, tok)
	}
}

func (s *Server) handleExtendToken(w http.ResponseWriter, r *http.Request) {
	var p tokenPayload
	if !decodeBody(w, r, &p) {
		return
	}
	if !p.Extend {
		writeError(w, http.StatusBadRequest, "missing required fields")
		return
	}
	tok, ok := s.readToken(w, r)
	if !ok {
		return
	}
	if !tok.Valid(domain.NowMillis()) {
		writeError(w, http.StatusBadRequest, "the token has already expired")
		return
	}
	tok.Expires = time.Now().Add(TokenTTL).UnixMilli()
	if err := repo.UpdateJSON(r.Context(), s.Store, domain.CollectionTokens, tok.ID, tok); err != nil {
		s.Logger.Warn("api_extend_token_failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not extend the token")
		return
	}
	writeJSON(w, http.StatusOK, tok)
}

func (s *Server) handleDeleteToken(w http.ResponseWriter, r *http.Request) {
	tok, ok := s.readToken(w, r)
	if !ok {
		return
	}
	if err := s.Store.Delete(r.Context(), domain.CollectionTokens, tok.ID); err != nil && !errors.Is(err, repo.ErrNotFound) {
		writeError(w, http.StatusInternalServerError, "could not delete the token")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{})
}
