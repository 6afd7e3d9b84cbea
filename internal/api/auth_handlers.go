package api

import (
	"net/http"
	"time"

	"github.com/flowpbx/sccpd/internal/api/middleware"
	"github.com/flowpbx/sccpd/internal/database"
	"github.com/flowpbx/sccpd/internal/database/models"
)

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token     string `json:"token"`
	ExpiresAt string `json:"expires_at"`
}

// handleLogin exchanges admin credentials for a bearer token.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if msg := readJSON(r, &req); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}
	if msg := firstError(
		validateRequiredStringLen("username", req.Username, maxUsernameLen),
		validateRequiredStringLen("password", req.Password, maxPasswordLen),
	); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	user, err := s.opts.AdminUsers.GetByUsername(r.Context(), req.Username)
	if err != nil {
		s.logger.Error("login: failed to query admin user", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if user == nil {
		s.logger.Warn("login failed", "username", req.Username, "reason", "unknown user")
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	ok, err := database.CheckPassword(req.Password, user.PasswordHash)
	if err != nil {
		s.logger.Error("login: failed to check password", "user_id", user.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if !ok {
		s.logger.Warn("login failed", "username", req.Username, "reason", "bad password")
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	if database.NeedsRehash(user.PasswordHash) {
		s.upgradePasswordHash(r, user, req.Password)
	}

	token, expiresAt, err := middleware.GenerateToken(s.opts.JWTSecret, user.ID, user.Username, time.Now())
	if err != nil {
		s.logger.Error("login: failed to sign token", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	s.logger.Info("admin logged in", "user_id", user.ID, "username", user.Username)
	writeJSON(w, http.StatusOK, loginResponse{
		Token:     token,
		ExpiresAt: expiresAt.UTC().Format(time.RFC3339),
	})
}

// upgradePasswordHash re-hashes a stored password made with older costs.
// Failures are logged; the login itself still succeeds.
func (s *Server) upgradePasswordHash(r *http.Request, user *models.AdminUser, password string) {
	hash, err := database.HashPassword(password)
	if err != nil {
		s.logger.Error("login: failed to rehash password", "user_id", user.ID, "error", err)
		return
	}
	user.PasswordHash = hash
	if err := s.opts.AdminUsers.Update(r.Context(), user); err != nil {
		s.logger.Error("login: failed to store rehashed password", "user_id", user.ID, "error", err)
		return
	}
	s.logger.Info("admin password hash upgraded", "user_id", user.ID)
}

// handleMe returns the authenticated admin.
func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	u := middleware.AdminUserFromContext(r.Context())
	if u == nil {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": u.ID, "username": u.Username})
}
