package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/nikhilbhutani/articlegen/internal/auth"
	"github.com/nikhilbhutani/articlegen/internal/backend"
	"github.com/nikhilbhutani/articlegen/internal/config"
)

type AuthHandler struct {
	svc    *auth.Service
	cookie config.SessionConfig
}

func NewAuthHandler(svc *auth.Service, cookie config.SessionConfig) *AuthHandler {
	return &AuthHandler{svc: svc, cookie: cookie}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	req.Email = strings.TrimSpace(req.Email)
	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "email and password required")
		return
	}

	sess, err := h.svc.Login(r.Context(), req.Email, req.Password)
	if errors.Is(err, backend.ErrInvalidCredentials) {
		writeError(w, http.StatusUnauthorized, "invalid email or password")
		return
	}
	if err != nil {
		slog.Error("login failed", "error", err)
		writeError(w, http.StatusBadGateway, "authentication service unavailable")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     h.cookie.CookieName,
		Value:    sess.ID,
		Path:     "/",
		Expires:  sess.ExpiresAt,
		HttpOnly: true,
		Secure:   h.cookie.Secure,
		SameSite: http.SameSiteLaxMode,
	})
	writeJSON(w, http.StatusOK, map[string]any{
		"success":    true,
		"session":    sess.ID,
		"expires_at": sess.ExpiresAt,
		"user":       sess.User,
	})
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if sess := auth.SessionFromContext(r.Context()); sess != nil {
		if err := h.svc.Logout(r.Context(), sess); err != nil {
			slog.Error("logout failed", "error", err)
			writeError(w, http.StatusInternalServerError, "logout failed")
			return
		}
	}
	http.SetCookie(w, &http.Cookie{
		Name:     h.cookie.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.cookie.Secure,
		SameSite: http.SameSiteLaxMode,
	})
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	sess := auth.SessionFromContext(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{
		"success":    true,
		"user":       sess.User,
		"expires_at": sess.ExpiresAt,
	})
}
