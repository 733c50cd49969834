package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/nikhilbhutani/articlegen/internal/cache"
	"github.com/nikhilbhutani/articlegen/internal/models"
)

var ErrNoSession = errors.New("session not found or expired")

// Session is the server-side half of a login. The browser only ever sees ID;
// the backend token stays in Redis.
type Session struct {
	ID         string      `json:"id"`
	Token      string      `json:"token"`
	User       models.User `json:"user"`
	CreatedAt  time.Time   `json:"created_at"`
	ExpiresAt  time.Time   `json:"expires_at"`
	VerifiedAt time.Time   `json:"verified_at"`
}

type SessionStore struct {
	cache *cache.Cache
	ttl   time.Duration
	now   func() time.Time
}

func NewSessionStore(c *cache.Cache, ttl time.Duration) *SessionStore {
	return &SessionStore{cache: c, ttl: ttl, now: time.Now}
}

// Create stores a new session for token. Its lifetime is the configured TTL,
// shortened to the token's own expiry when the token carries one.
func (s *SessionStore) Create(ctx context.Context, token string, user models.User) (*Session, error) {
	now := s.now()
	expires := now.Add(s.ttl)
	if exp, ok := tokenExpiry(token); ok && exp.Before(expires) {
		expires = exp
	}
	if !expires.After(now) {
		return nil, fmt.Errorf("create session: token already expired")
	}

	sess := &Session{
		ID:         uuid.NewString(),
		Token:      token,
		User:       user,
		CreatedAt:  now,
		ExpiresAt:  expires,
		VerifiedAt: now,
	}
	if err := s.Save(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

func (s *SessionStore) Get(ctx context.Context, id string) (*Session, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrNoSession
	}
	var sess Session
	err := s.cache.Get(ctx, id, &sess)
	if errors.Is(err, cache.ErrMiss) {
		return nil, ErrNoSession
	}
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	if !sess.ExpiresAt.After(s.now()) {
		_ = s.cache.Delete(ctx, id)
		return nil, ErrNoSession
	}
	return &sess, nil
}

// Save writes sess back with whatever lifetime it has left.
func (s *SessionStore) Save(ctx context.Context, sess *Session) error {
	ttl := sess.ExpiresAt.Sub(s.now())
	if ttl <= 0 {
		return ErrNoSession
	}
	if err := s.cache.Set(ctx, sess.ID, sess, ttl); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

func (s *SessionStore) Delete(ctx context.Context, id string) error {
	if err := s.cache.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// tokenExpiry reads the exp claim without checking the signature. The
// backend owns the signing key; this only bounds how long we keep a token.
func tokenExpiry(token string) (time.Time, bool) {
	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return time.Time{}, false
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, false
	}
	return claims.ExpiresAt.Time, true
}
