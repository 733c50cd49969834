package auth

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/nikhilbhutani/articlegen/internal/backend"
)

type SessionMiddleware struct {
	svc            *Service
	cookieName     string
	verifyInterval time.Duration
}

func NewSessionMiddleware(svc *Service, cookieName string, verifyInterval time.Duration) *SessionMiddleware {
	return &SessionMiddleware{
		svc:            svc,
		cookieName:     cookieName,
		verifyInterval: verifyInterval,
	}
}

// RequireSession resolves the session from the cookie or an
// "Authorization: Bearer <session-id>" header. Sessions not verified with
// the backend for longer than the verify interval are checked again; a
// token the backend rejects ends the session.
func (m *SessionMiddleware) RequireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := m.SessionID(r)
		if id == "" {
			writeError(w, http.StatusUnauthorized, "authentication required")
			return
		}

		ctx := r.Context()
		store := m.svc.sessions
		sess, err := store.Get(ctx, id)
		if errors.Is(err, ErrNoSession) {
			writeError(w, http.StatusUnauthorized, "session expired")
			return
		}
		if err != nil {
			slog.Error("session lookup failed", "error", err)
			writeError(w, http.StatusInternalServerError, "session lookup failed")
			return
		}

		if m.verifyInterval > 0 && store.now().Sub(sess.VerifiedAt) >= m.verifyInterval {
			user, err := m.svc.backend.Verify(ctx, sess.Token)
			switch {
			case errors.Is(err, backend.ErrUnauthorized):
				_ = store.Delete(ctx, sess.ID)
				writeError(w, http.StatusUnauthorized, "session expired")
				return
			case err != nil:
				// Backend unreachable: keep serving until the token expires.
				slog.Warn("session re-verification failed", "user_id", sess.User.ID, "error", err)
			default:
				sess.User = *user
				sess.VerifiedAt = store.now()
				if err := store.Save(ctx, sess); err != nil {
					slog.Warn("session refresh failed", "user_id", sess.User.ID, "error", err)
				}
			}
		}

		next.ServeHTTP(w, r.WithContext(WithSession(ctx, sess)))
	})
}

func (m *SessionMiddleware) SessionID(r *http.Request) string {
	if c, err := r.Cookie(m.cookieName); err == nil && c.Value != "" {
		return c.Value
	}
	return extractBearerToken(r)
}

func extractBearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return ""
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{"success": false, "error": msg})
}
