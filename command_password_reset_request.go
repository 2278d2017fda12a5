package bank

import (
	"context"
	"strings"
	"time"

	"github.com/go-ozzo/ozzo-validation"
	goerrors "github.com/goliatone/go-errors"
)

// RequestPasswordResetMessage asks the admin to reset a forgotten password
type RequestPasswordResetMessage struct {
	Identifier string `json:"identifier"`
}

func (p RequestPasswordResetMessage) Type() string { return "user.password_reset.request" }

// Validate will run validation rules
func (p RequestPasswordResetMessage) Validate() error {
	return validatePayload(func() error {
		return validation.ValidateStruct(&p,
			validation.Field(&p.Identifier, validation.Required, validation.Length(3, 254)),
		)
	}, "invalid password reset request")
}

// RequestPasswordResetHandler records the request and notifies the admin.
// Unknown identifiers succeed silently so the endpoint does not reveal
// which accounts exist.
type RequestPasswordResetHandler struct {
	repo     RepositoryManager
	activity ActivitySink
	logger   Logger
}

// NewRequestPasswordResetHandler creates a handler with sane defaults.
func NewRequestPasswordResetHandler(repo RepositoryManager) *RequestPasswordResetHandler {
	return &RequestPasswordResetHandler{
		repo:     repo,
		activity: noopActivitySink{},
		logger:   defLogger{},
	}
}

// WithActivitySink sets the sink used to emit password reset events.
func (h *RequestPasswordResetHandler) WithActivitySink(sink ActivitySink) *RequestPasswordResetHandler {
	h.activity = normalizeActivitySink(sink)
	return h
}

// WithLogger overrides the logger used by the handler.
func (h *RequestPasswordResetHandler) WithLogger(logger Logger) *RequestPasswordResetHandler {
	h.logger = resolveLogger(logger)
	return h
}

func (h *RequestPasswordResetHandler) Execute(ctx context.Context, event RequestPasswordResetMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during password reset request",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *RequestPasswordResetHandler) execute(ctx context.Context, event RequestPasswordResetMessage) error {
	event.Identifier = strings.TrimSpace(event.Identifier)
	if err := event.Validate(); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	user, err := h.repo.Users().GetByIdentifier(ctx, event.Identifier)
	if err != nil {
		if goerrors.IsNotFound(err) || isNotFound(err) {
			h.logger.Info("password reset requested for unknown identifier", "identifier", event.Identifier)
			return nil
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to retrieve user for password reset")
	}

	activityRecorder{sink: h.activity, logger: h.logger}.record(ctx, ActivityEvent{
		EventType: ActivityEventPasswordResetRequested,
		Actor:     ActorFromUser(user),
		UserID:    user.ID.String(),
	})

	return nil
}
