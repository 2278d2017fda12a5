package bank

import (
	"context"
	"strings"
	"time"

	"github.com/go-ozzo/ozzo-validation"
	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

// ChangeStatusMessage moves a user through the account lifecycle
type ChangeStatusMessage struct {
	Actor      ActorRef    `json:"-"`
	UserID     uuid.UUID   `json:"-"`
	Status     string      `json:"status"`
	Reason     string      `json:"reason"`
	OnResponse func(*User) `json:"-"`
}

func (e ChangeStatusMessage) Type() string { return "user.status.change" }

// Validate will run validation rules
func (e ChangeStatusMessage) Validate() error {
	statuses := make([]any, 0, len(UserStatuses))
	for _, s := range UserStatuses {
		statuses = append(statuses, string(s))
	}
	return validatePayload(func() error {
		return validation.ValidateStruct(&e,
			validation.Field(&e.Status, validation.Required, validation.In(statuses...)),
			validation.Field(&e.Reason, validation.Length(0, 500)),
		)
	}, "invalid status change payload")
}

// ChangeStatusHandler loads the user and hands it to the state machine
type ChangeStatusHandler struct {
	users   Users
	machine UserStateMachine
	logger  Logger
}

// NewChangeStatusHandler creates the handler. The state machine carries the
// activity sink that fans transitions out to the relay.
func NewChangeStatusHandler(users Users, machine UserStateMachine) *ChangeStatusHandler {
	return &ChangeStatusHandler{
		users:   users,
		machine: machine,
		logger:  defLogger{},
	}
}

func (h *ChangeStatusHandler) WithLogger(logger Logger) *ChangeStatusHandler {
	h.logger = resolveLogger(logger)
	return h
}

func (h *ChangeStatusHandler) Execute(ctx context.Context, event ChangeStatusMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during status change",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *ChangeStatusHandler) execute(ctx context.Context, event ChangeStatusMessage) error {
	event.Status = strings.ToLower(strings.TrimSpace(event.Status))
	event.Reason = strings.TrimSpace(event.Reason)

	if err := event.Validate(); err != nil {
		return err
	}

	target, _ := ParseUserStatus(event.Status)

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	user, err := h.users.GetByID(ctx, event.UserID)
	if err != nil {
		return err
	}

	from := user.Status
	user, err = h.machine.Transition(ctx, event.Actor, user, target,
		WithTransitionReason(event.Reason),
	)
	if err != nil {
		return err
	}

	h.logger.Info("user status changed",
		"user_id", user.ID.String(),
		"from", string(from),
		"to", string(user.Status),
		"actor_id", event.Actor.ID,
	)

	if event.OnResponse != nil {
		event.OnResponse(user)
	}

	return nil
}
