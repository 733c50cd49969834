package handlers

import (
	"context"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nikhilbhutani/articlegen/internal/auth"
)

// Forwarder relays calls to the backend's admin API. *backend.Client
// implements it.
type Forwarder interface {
	Forward(ctx context.Context, token, method, path string, body []byte) (int, []byte, error)
}

// AdminHandler proxies user management and stats to the backend, which owns
// the users table. Status codes and bodies pass through unchanged.
type AdminHandler struct {
	backend Forwarder
}

func NewAdminHandler(b Forwarder) *AdminHandler {
	return &AdminHandler{backend: b}
}

func (h *AdminHandler) Users(w http.ResponseWriter, r *http.Request) {
	h.forward(w, r, "users")
}

func (h *AdminHandler) User(w http.ResponseWriter, r *http.Request) {
	if _, err := intParam(r, "id"); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.forward(w, r, "users/"+chi.URLParam(r, "id"))
}

func (h *AdminHandler) Stats(w http.ResponseWriter, r *http.Request) {
	h.forward(w, r, "stats")
}

func (h *AdminHandler) forward(w http.ResponseWriter, r *http.Request, path string) {
	var body []byte
	if r.Method == http.MethodPost || r.Method == http.MethodPut {
		var err error
		body, err = io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}
	if q := r.URL.RawQuery; q != "" {
		path += "?" + q
	}

	sess := auth.SessionFromContext(r.Context())
	status, resp, err := h.backend.Forward(r.Context(), sess.Token, r.Method, path, body)
	if err != nil {
		slog.Error("admin proxy failed", "path", path, "error", err)
		writeError(w, http.StatusBadGateway, "user service unavailable")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(resp)
}
