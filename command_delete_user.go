package bank

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// DeleteUserMessage removes a user and everything that references it
type DeleteUserMessage struct {
	Actor      ActorRef
	UserID     uuid.UUID
	OnResponse func(*DeleteUserResponse)
}

func (e DeleteUserMessage) Type() string { return "user.delete" }

// DeleteUserResponse reports how many dependent rows were removed
type DeleteUserResponse struct {
	UserID        uuid.UUID `json:"user_id"`
	Sessions      int64     `json:"sessions"`
	Notifications int64     `json:"notifications"`
	Messages      int64     `json:"messages"`
	Cards         int64     `json:"cards"`
}

// DeleteUserHandler runs the cascading delete in a single transaction so a
// failure leaves every store untouched.
type DeleteUserHandler struct {
	repo     RepositoryManager
	activity ActivitySink
	logger   Logger
}

// NewDeleteUserHandler creates the delete handler
func NewDeleteUserHandler(repo RepositoryManager) *DeleteUserHandler {
	return &DeleteUserHandler{
		repo:     repo,
		activity: noopActivitySink{},
		logger:   defLogger{},
	}
}

// WithActivitySink sets the sink used to emit deletion events.
func (h *DeleteUserHandler) WithActivitySink(sink ActivitySink) *DeleteUserHandler {
	h.activity = normalizeActivitySink(sink)
	return h
}

func (h *DeleteUserHandler) WithLogger(logger Logger) *DeleteUserHandler {
	h.logger = resolveLogger(logger)
	return h
}

func (h *DeleteUserHandler) Execute(ctx context.Context, event DeleteUserMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during user deletion",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *DeleteUserHandler) execute(ctx context.Context, event DeleteUserMessage) error {
	if event.UserID == uuid.Nil {
		return NewValidationError("user id required", map[string]any{"field": "id"})
	}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	resp := &DeleteUserResponse{UserID: event.UserID}
	var deleted *User

	err := h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		user, err := h.repo.Users().GetByIDTx(ctx, tx, event.UserID)
		if err != nil {
			return err
		}

		if user.IsAdmin {
			return ErrAdminImmutable
		}

		if resp.Sessions, err = h.repo.Sessions().DeleteByUserTx(ctx, tx, user.ID); err != nil {
			return err
		}
		if resp.Notifications, err = h.repo.Notifications().DeleteByUserTx(ctx, tx, user.ID); err != nil {
			return err
		}
		if resp.Messages, err = h.repo.Messages().DeleteByUserTx(ctx, tx, user.ID); err != nil {
			return err
		}
		if resp.Cards, err = h.repo.Cards().DeleteByUserTx(ctx, tx, user.ID); err != nil {
			return err
		}

		deleted = user
		return h.repo.Users().DeleteTx(ctx, tx, user.ID)
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "user deletion transaction failed")
	}

	h.logger.Info("user deleted",
		"user_id", event.UserID.String(),
		"actor_id", event.Actor.ID,
		"sessions", resp.Sessions,
		"notifications", resp.Notifications,
		"messages", resp.Messages,
		"cards", resp.Cards,
	)

	activityRecorder{sink: h.activity, logger: h.logger}.record(ctx, ActivityEvent{
		EventType:  ActivityEventUserDeleted,
		Actor:      event.Actor,
		UserID:     event.UserID.String(),
		FromStatus: deleted.Status,
		Metadata: map[string]any{
			"username": deleted.Username,
		},
	})

	if event.OnResponse != nil {
		event.OnResponse(resp)
	}

	return nil
}
