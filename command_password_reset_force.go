package bank

import (
	"context"
	"time"

	"github.com/go-ozzo/ozzo-validation"
	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// ForcePasswordResetMessage replaces a user's password. When Password is
// empty a temporary password is generated and returned once.
type ForcePasswordResetMessage struct {
	Actor      ActorRef                          `json:"-"`
	UserID     uuid.UUID                         `json:"-"`
	Password   string                            `json:"password"`
	OnResponse func(*ForcePasswordResetResponse) `json:"-"`
}

func (p ForcePasswordResetMessage) Type() string { return "user.password_reset.force" }

// Validate will run validation rules
func (p ForcePasswordResetMessage) Validate() error {
	return validatePayload(func() error {
		return validation.ValidateStruct(&p,
			validation.Field(&p.Password, validation.Length(8, 128)),
		)
	}, "invalid password reset payload")
}

// ForcePasswordResetResponse is the outcome of a forced reset
type ForcePasswordResetResponse struct {
	User              *User  `json:"user"`
	TemporaryPassword string `json:"temporary_password,omitempty"`
	SessionsRevoked   int64  `json:"sessions_revoked"`
}

// ForcePasswordResetHandler resets a password and revokes every session of
// the user in one transaction.
type ForcePasswordResetHandler struct {
	repo     RepositoryManager
	sessions *SessionStore
	activity ActivitySink
	logger   Logger
}

// NewForcePasswordResetHandler creates a handler with sane defaults.
func NewForcePasswordResetHandler(repo RepositoryManager, sessions *SessionStore) *ForcePasswordResetHandler {
	return &ForcePasswordResetHandler{
		repo:     repo,
		sessions: sessions,
		activity: noopActivitySink{},
		logger:   defLogger{},
	}
}

// WithActivitySink sets the sink used to emit password reset events.
func (h *ForcePasswordResetHandler) WithActivitySink(sink ActivitySink) *ForcePasswordResetHandler {
	h.activity = normalizeActivitySink(sink)
	return h
}

// WithLogger overrides the logger used by the handler.
func (h *ForcePasswordResetHandler) WithLogger(logger Logger) *ForcePasswordResetHandler {
	h.logger = resolveLogger(logger)
	return h
}

func (h *ForcePasswordResetHandler) Execute(ctx context.Context, event ForcePasswordResetMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during forced password reset",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *ForcePasswordResetHandler) execute(ctx context.Context, event ForcePasswordResetMessage) error {
	if err := event.Validate(); err != nil {
		return err
	}

	resp := &ForcePasswordResetResponse{}

	password := event.Password
	if password == "" {
		tmp, err := TemporaryPassword()
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to generate temporary password")
		}
		password = tmp
		resp.TemporaryPassword = tmp
	}

	hash, err := HashPassword(password)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to hash password")
	}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	err = h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if err := h.repo.Users().ResetPasswordTx(ctx, tx, event.UserID, hash); err != nil {
			return err
		}

		revoked, err := h.sessions.RevokeAllTx(ctx, tx, event.UserID)
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to revoke sessions")
		}
		resp.SessionsRevoked = revoked

		resp.User, err = h.repo.Users().GetByIDTx(ctx, tx, event.UserID)
		return err
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to reset password")
	}

	h.logger.Info("password reset forced",
		"user_id", event.UserID.String(),
		"actor_id", event.Actor.ID,
		"sessions_revoked", resp.SessionsRevoked,
	)

	activityRecorder{sink: h.activity, logger: h.logger}.record(ctx, ActivityEvent{
		EventType: ActivityEventPasswordResetForced,
		Actor:     event.Actor,
		UserID:    event.UserID.String(),
		Metadata: map[string]any{
			"generated": resp.TemporaryPassword != "",
		},
	})

	if event.OnResponse != nil {
		event.OnResponse(resp)
	}

	return nil
}
