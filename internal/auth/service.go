package auth

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nikhilbhutani/articlegen/internal/backend"
	"github.com/nikhilbhutani/articlegen/internal/models"
)

// Backend is the part of the generation API that owns identities.
type Backend interface {
	Login(ctx context.Context, email, password string) (*backend.LoginResult, error)
	Verify(ctx context.Context, token string) (*models.User, error)
	Logout(ctx context.Context, token string) error
}

type Service struct {
	backend  Backend
	sessions *SessionStore
}

func NewService(b Backend, sessions *SessionStore) *Service {
	return &Service{backend: b, sessions: sessions}
}

func (s *Service) Sessions() *SessionStore {
	return s.sessions
}

// Login authenticates against the backend and opens a session. Bad
// credentials surface as backend.ErrInvalidCredentials.
func (s *Service) Login(ctx context.Context, email, password string) (*Session, error) {
	res, err := s.backend.Login(ctx, email, password)
	if err != nil {
		return nil, err
	}
	sess, err := s.sessions.Create(ctx, res.Token, res.User)
	if err != nil {
		return nil, fmt.Errorf("login %s: %w", email, err)
	}
	slog.Info("user logged in", "user_id", res.User.ID, "role", res.User.Role)
	return sess, nil
}

// Logout ends the session locally even when the backend cannot be reached.
func (s *Service) Logout(ctx context.Context, sess *Session) error {
	if err := s.backend.Logout(ctx, sess.Token); err != nil {
		slog.Warn("backend logout failed", "user_id", sess.User.ID, "error", err)
	}
	return s.sessions.Delete(ctx, sess.ID)
}
