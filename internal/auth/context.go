package auth

import (
	"context"

	"github.com/nikhilbhutani/articlegen/internal/models"
)

type contextKey string

const sessionKey contextKey = "session"

func WithSession(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, sessionKey, s)
}

func SessionFromContext(ctx context.Context) *Session {
	s, _ := ctx.Value(sessionKey).(*Session)
	return s
}

func UserFromContext(ctx context.Context) *models.User {
	if s := SessionFromContext(ctx); s != nil {
		return &s.User
	}
	return nil
}

// UserIDFromContext returns 0 when the request is unauthenticated.
func UserIDFromContext(ctx context.Context) int64 {
	if u := UserFromContext(ctx); u != nil {
		return u.ID
	}
	return 0
}
