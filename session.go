package bank

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// sessionTokenBytes is the entropy of a session token, 256 bits
const sessionTokenBytes = 32

// SessionMeta describes the client a session is issued to
type SessionMeta struct {
	IP        string
	UserAgent string
}

// SessionStoreOption customizes a SessionStore
type SessionStoreOption func(*SessionStore)

// WithSessionClock injects a custom clock (useful for tests).
func WithSessionClock(clock func() time.Time) SessionStoreOption {
	return func(s *SessionStore) {
		if clock != nil {
			s.now = clock
		}
	}
}

// WithSessionTokenGenerator overrides how session tokens are minted
func WithSessionTokenGenerator(gen func() (string, error)) SessionStoreOption {
	return func(s *SessionStore) {
		if gen != nil {
			s.tokens = gen
		}
	}
}

// SessionStore issues, resolves and revokes bearer sessions. Expiry is
// checked when a session is read: an expired row stays in the table until
// the next lookup of that token deletes it, or DeleteExpired sweeps it.
type SessionStore struct {
	sessions Sessions
	ttl      time.Duration
	now      func() time.Time
	tokens   func() (string, error)
}

// NewSessionStore creates a store issuing sessions valid for ttl
func NewSessionStore(sessions Sessions, ttl time.Duration, opts ...SessionStoreOption) *SessionStore {
	if ttl <= 0 {
		ttl = DefaultOptions().SessionTTL
	}
	s := &SessionStore{
		sessions: sessions,
		ttl:      ttl,
		now:      utcNow,
		tokens:   NewSessionToken,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// TTL returns the lifetime of new sessions
func (s *SessionStore) TTL() time.Duration {
	return s.ttl
}

// Issue creates a new session for userID
func (s *SessionStore) Issue(ctx context.Context, userID uuid.UUID, meta SessionMeta) (*Session, error) {
	return s.issue(ctx, nil, userID, meta)
}

// IssueTx creates a new session inside tx
func (s *SessionStore) IssueTx(ctx context.Context, tx bun.IDB, userID uuid.UUID, meta SessionMeta) (*Session, error) {
	return s.issue(ctx, tx, userID, meta)
}

func (s *SessionStore) issue(ctx context.Context, tx bun.IDB, userID uuid.UUID, meta SessionMeta) (*Session, error) {
	token, err := s.tokens()
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to generate session token")
	}

	now := s.now()
	record := &Session{
		ID:        token,
		UserID:    userID,
		IP:        meta.IP,
		UserAgent: truncate(meta.UserAgent, 255),
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}

	if tx != nil {
		return s.sessions.CreateTx(ctx, tx, record)
	}
	return s.sessions.Create(ctx, record)
}

// Lookup returns the live session for token. Unknown tokens fail with
// ErrInvalidSession; expired ones are deleted and fail with ErrSessionExpired.
func (s *SessionStore) Lookup(ctx context.Context, token string) (*Session, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrUnauthenticated
	}

	session, err := s.sessions.Get(ctx, token)
	if err != nil {
		if goerrors.IsNotFound(err) || isNotFound(err) {
			return nil, ErrInvalidSession
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to load session")
	}

	if session.IsExpired(s.now()) {
		if err := s.sessions.Delete(ctx, session.ID); err != nil {
			return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to delete expired session")
		}
		return nil, ErrSessionExpired
	}

	return session, nil
}

// Revoke deletes the session for token
func (s *SessionStore) Revoke(ctx context.Context, token string) error {
	return s.sessions.Delete(ctx, token)
}

// RevokeAllTx deletes every session of userID inside tx
func (s *SessionStore) RevokeAllTx(ctx context.Context, tx bun.IDB, userID uuid.UUID) (int64, error) {
	return s.sessions.DeleteByUserTx(ctx, tx, userID)
}

// DeleteExpired removes every session past its expiry
func (s *SessionStore) DeleteExpired(ctx context.Context) (int64, error) {
	return s.sessions.DeleteExpired(ctx, s.now())
}

// NewSessionToken returns a random URL safe token with 256 bits of entropy
func NewSessionToken() (string, error) {
	b := make([]byte, sessionTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
