package bank

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

// AuthResult is returned by a successful sign in or sign up
type AuthResult struct {
	User      *User     `json:"user"`
	SessionID string    `json:"session_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

func newAuthResult(user *User, session *Session) *AuthResult {
	return &AuthResult{
		User:      user,
		SessionID: session.ID,
		ExpiresAt: session.ExpiresAt,
	}
}

// Authenticator signs users in and out and resolves bearer tokens
type Authenticator struct {
	repo     RepositoryManager
	cfg      Config
	sessions *SessionStore
	provider *UserProvider
	logger   Logger
	activity ActivitySink
}

var _ SessionResolver = (*Authenticator)(nil)

// NewAuthenticator returns a new Authenticator
func NewAuthenticator(repo RepositoryManager, cfg Config) *Authenticator {
	return &Authenticator{
		repo:     repo,
		cfg:      cfg,
		sessions: NewSessionStore(repo.Sessions(), cfg.GetSessionTTL()),
		provider: NewUserProvider(repo.Users(), cfg),
		logger:   defLogger{},
		activity: noopActivitySink{},
	}
}

func (s *Authenticator) WithLogger(logger Logger) *Authenticator {
	s.logger = resolveLogger(logger)
	s.provider.WithLogger(logger)
	return s
}

// WithActivitySink configures an ActivitySink for emitting auth events.
func (s *Authenticator) WithActivitySink(sink ActivitySink) *Authenticator {
	s.activity = normalizeActivitySink(sink)
	return s
}

// WithSessionStore replaces the session store
func (s *Authenticator) WithSessionStore(store *SessionStore) *Authenticator {
	if store != nil {
		s.sessions = store
	}
	return s
}

// WithUserProvider replaces the credential verifier
func (s *Authenticator) WithUserProvider(provider *UserProvider) *Authenticator {
	if provider != nil {
		s.provider = provider
	}
	return s
}

// Sessions returns the session store used by the authenticator
func (s *Authenticator) Sessions() *SessionStore {
	return s.sessions
}

// Config returns the authenticator options
func (s *Authenticator) Config() Config {
	return s.cfg
}

// SignIn checks credentials and account status and issues a fresh session.
func (s *Authenticator) SignIn(ctx context.Context, identifier, password string, meta SessionMeta) (*AuthResult, error) {
	user, err := s.provider.VerifyIdentity(ctx, identifier, password)
	if err != nil {
		signInTotal.WithLabelValues(signInOutcome(err)).Inc()
		s.logger.Info("sign in rejected", "identifier", identifier, "error", err)
		s.record(ctx, ActivityEvent{
			EventType: ActivityEventLoginFailure,
			Actor:     ActorRef{Type: "unknown"},
			Metadata: map[string]any{
				"identifier": identifier,
				"error":      err.Error(),
			},
		})
		return nil, err
	}

	if err := CheckSignInAllowed(user, s.cfg); err != nil {
		signInTotal.WithLabelValues("not_active").Inc()
		s.logger.Warn("sign in blocked due to user status", "user_id", user.ID.String(), "status", string(user.Status))
		s.record(ctx, ActivityEvent{
			EventType: ActivityEventLoginFailure,
			Actor:     ActorFromUser(user),
			UserID:    user.ID.String(),
			Metadata: map[string]any{
				"identifier": identifier,
				"status":     string(user.Status),
			},
		})
		return nil, err
	}

	session, err := s.sessions.Issue(ctx, user.ID, meta)
	if err != nil {
		signInTotal.WithLabelValues("error").Inc()
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to issue session")
	}

	signInTotal.WithLabelValues("success").Inc()
	s.record(ctx, ActivityEvent{
		EventType: ActivityEventLoginSuccess,
		Actor:     ActorFromUser(user),
		UserID:    user.ID.String(),
		Metadata: map[string]any{
			"ip": meta.IP,
		},
	})

	return newAuthResult(user, session), nil
}

// SignOut revokes the session behind the principal
func (s *Authenticator) SignOut(ctx context.Context, principal *Principal) error {
	if principal == nil || principal.Session == nil {
		return ErrUnauthenticated
	}
	if err := s.sessions.Revoke(ctx, principal.Session.ID); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to revoke session")
	}
	s.record(ctx, ActivityEvent{
		EventType: ActivityEventLogout,
		Actor:     ActorFromUser(principal.User),
		UserID:    principal.UserID(),
	})
	return nil
}

// Resolve turns a bearer token into the caller. A session whose user no
// longer exists is rejected as unauthenticated.
func (s *Authenticator) Resolve(ctx context.Context, token string) (*Principal, error) {
	session, err := s.sessions.Lookup(ctx, token)
	if err != nil {
		return nil, err
	}

	user, err := s.repo.Users().GetByID(ctx, session.UserID)
	if err != nil {
		if goerrors.IsNotFound(err) || isNotFound(err) {
			return nil, ErrUnauthenticated
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to load session user")
	}

	return &Principal{User: user, Session: session}, nil
}

func (s *Authenticator) record(ctx context.Context, event ActivityEvent) {
	activityRecorder{sink: s.activity, logger: s.logger}.record(ctx, event)
}

// CheckSignInAllowed gates sign in on the account status. Approved users
// pass, the admin passes when configured to bypass the lifecycle, pending
// users pass only when pending sign in is enabled.
func CheckSignInAllowed(user *User, cfg Config) error {
	if user == nil {
		return ErrMismatchedHashAndPassword
	}

	if user.IsAdmin && cfg.GetAdminBypassesLifecycle() {
		return nil
	}

	user.EnsureStatus()
	switch user.Status {
	case UserStatusApproved:
		return nil
	case UserStatusPending:
		if cfg.GetAllowPendingSignIn() {
			return nil
		}
	}

	return NewAccountNotActiveError(user.Status, user.StatusReason)
}

func signInOutcome(err error) string {
	switch {
	case HasTextCode(err, TextCodeTooManyLoginAttempts):
		return "throttled"
	case HasTextCode(err, TextCodeInvalidCredentials):
		return "invalid_credentials"
	default:
		return "error"
	}
}
