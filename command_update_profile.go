package bank

import (
	"context"
	"strings"
	"time"

	"github.com/go-ozzo/ozzo-validation"
	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

// UpdateProfileMessage changes the profile fields a user owns. Nil fields
// are left untouched. Identity, role and status are not reachable here.
type UpdateProfileMessage struct {
	Actor       ActorRef    `json:"-"`
	UserID      uuid.UUID   `json:"-"`
	FirstName   *string     `json:"first_name"`
	LastName    *string     `json:"last_name"`
	Phone       *string     `json:"phone_number"`
	Address     *string     `json:"address"`
	City        *string     `json:"city"`
	Country     *string     `json:"country"`
	DateOfBirth *string     `json:"date_of_birth"`
	OnResponse  func(*User) `json:"-"`
}

func (e UpdateProfileMessage) Type() string { return "user.profile.update" }

// Validate will run validation rules
func (e UpdateProfileMessage) Validate() error {
	return validatePayload(func() error {
		return validation.ValidateStruct(&e,
			validation.Field(&e.FirstName, validation.Length(0, 100)),
			validation.Field(&e.LastName, validation.Length(0, 100)),
			validation.Field(&e.Address, validation.Length(0, 200)),
			validation.Field(&e.City, validation.Length(0, 100)),
			validation.Field(&e.Country, validation.Length(0, 100)),
			validation.Field(&e.DateOfBirth, validation.Date("2006-01-02")),
		)
	}, "invalid profile payload")
}

// UpdateProfileHandler applies profile changes
type UpdateProfileHandler struct {
	users    Users
	activity ActivitySink
	logger   Logger
}

// NewUpdateProfileHandler creates the handler
func NewUpdateProfileHandler(users Users) *UpdateProfileHandler {
	return &UpdateProfileHandler{
		users:    users,
		activity: noopActivitySink{},
		logger:   defLogger{},
	}
}

// WithActivitySink sets the sink used to emit profile events.
func (h *UpdateProfileHandler) WithActivitySink(sink ActivitySink) *UpdateProfileHandler {
	h.activity = normalizeActivitySink(sink)
	return h
}

func (h *UpdateProfileHandler) WithLogger(logger Logger) *UpdateProfileHandler {
	h.logger = resolveLogger(logger)
	return h
}

func (h *UpdateProfileHandler) Execute(ctx context.Context, event UpdateProfileMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during profile update",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *UpdateProfileHandler) execute(ctx context.Context, event UpdateProfileMessage) error {
	if err := event.Validate(); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	user, err := h.users.GetByID(ctx, event.UserID)
	if err != nil {
		return err
	}

	changed := []string{}
	apply := func(field string, dst *string, src *string) {
		if src == nil {
			return
		}
		v := strings.TrimSpace(*src)
		if v != *dst {
			*dst = v
			changed = append(changed, field)
		}
	}

	if event.Phone != nil {
		phone, err := NormalizePhone(*event.Phone)
		if err != nil {
			return err
		}
		event.Phone = &phone
	}

	apply("first_name", &user.FirstName, event.FirstName)
	apply("last_name", &user.LastName, event.LastName)
	apply("phone_number", &user.Phone, event.Phone)
	apply("address", &user.Address, event.Address)
	apply("city", &user.City, event.City)
	apply("country", &user.Country, event.Country)
	apply("date_of_birth", &user.DateOfBirth, event.DateOfBirth)

	if len(changed) > 0 {
		if user, err = h.users.UpdateProfile(ctx, user); err != nil {
			var richErr *goerrors.Error
			if goerrors.As(err, &richErr) {
				return richErr
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to update profile")
		}

		h.logger.Info("profile updated", "user_id", user.ID.String(), "fields", strings.Join(changed, ","))

		activityRecorder{sink: h.activity, logger: h.logger}.record(ctx, ActivityEvent{
			EventType: ActivityEventUserProfileUpdated,
			Actor:     event.Actor,
			UserID:    user.ID.String(),
			Metadata: map[string]any{
				"fields": changed,
			},
		})
	}

	if event.OnResponse != nil {
		event.OnResponse(user)
	}

	return nil
}
