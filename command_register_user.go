package bank

import (
	"context"
	"strings"
	"time"

	"github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type RegisterUserMessage struct {
	Username    string            `json:"username"`
	Email       string            `json:"email"`
	Password    string            `json:"password"`
	FirstName   string            `json:"first_name"`
	LastName    string            `json:"last_name"`
	Phone       string            `json:"phone_number"`
	Address     string            `json:"address"`
	City        string            `json:"city"`
	Country     string            `json:"country"`
	DateOfBirth string            `json:"date_of_birth"`
	Session     SessionMeta       `json:"-"`
	OnResponse  func(*AuthResult) `json:"-"`
}

func (e RegisterUserMessage) Type() string { return "user.register" }

// Validate will run validation rules
func (e RegisterUserMessage) Validate() error {
	return validatePayload(func() error {
		return validation.ValidateStruct(&e,
			validation.Field(&e.Username, validation.Required, validation.Length(3, 32), validation.Match(usernamePattern)),
			validation.Field(&e.Email, validation.Required, validation.Length(3, 254), is.Email),
			validation.Field(&e.Password, validation.Required, validation.Length(8, 128)),
			validation.Field(&e.FirstName, validation.Length(0, 100)),
			validation.Field(&e.LastName, validation.Length(0, 100)),
			validation.Field(&e.Address, validation.Length(0, 200)),
			validation.Field(&e.City, validation.Length(0, 100)),
			validation.Field(&e.Country, validation.Length(0, 100)),
			validation.Field(&e.DateOfBirth, validation.Date("2006-01-02")),
		)
	}, "invalid registration payload")
}

// RegisterUserHandler creates a pending account and signs it in
type RegisterUserHandler struct {
	repo     RepositoryManager
	sessions *SessionStore
	activity ActivitySink
	logger   Logger
}

// NewRegisterUserHandler creates the signup handler
func NewRegisterUserHandler(repo RepositoryManager, sessions *SessionStore) *RegisterUserHandler {
	return &RegisterUserHandler{
		repo:     repo,
		sessions: sessions,
		activity: noopActivitySink{},
		logger:   defLogger{},
	}
}

// WithActivitySink sets the sink used to emit signup events.
func (h *RegisterUserHandler) WithActivitySink(sink ActivitySink) *RegisterUserHandler {
	h.activity = normalizeActivitySink(sink)
	return h
}

func (h *RegisterUserHandler) WithLogger(logger Logger) *RegisterUserHandler {
	h.logger = resolveLogger(logger)
	return h
}

func (h *RegisterUserHandler) Execute(ctx context.Context, event RegisterUserMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during user registration",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *RegisterUserHandler) execute(ctx context.Context, event RegisterUserMessage) error {
	event.Username = strings.TrimSpace(event.Username)
	event.Email = normalizeEmail(event.Email)

	if err := event.Validate(); err != nil {
		return err
	}

	phone, err := NormalizePhone(event.Phone)
	if err != nil {
		return err
	}

	hash, err := HashPassword(event.Password)
	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to hash password")
	}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	user := &User{
		ID:           uuid.New(),
		Username:     event.Username,
		Email:        event.Email,
		PasswordHash: hash,
		Status:       UserStatusPending,
		FirstName:    strings.TrimSpace(event.FirstName),
		LastName:     strings.TrimSpace(event.LastName),
		Phone:        phone,
		Address:      strings.TrimSpace(event.Address),
		City:         strings.TrimSpace(event.City),
		Country:      strings.TrimSpace(event.Country),
		DateOfBirth:  event.DateOfBirth,
	}

	var session *Session
	err = h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		taken, err := h.repo.Users().IdentityTakenTx(ctx, tx, user.Username, user.Email)
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to check identity")
		}
		if taken {
			return ErrDuplicateIdentity
		}

		if user, err = h.repo.Users().CreateTx(ctx, tx, user); err != nil {
			return err
		}

		if session, err = h.sessions.IssueTx(ctx, tx, user.ID, event.Session); err != nil {
			return err
		}

		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "user registration transaction failed")
	}

	h.logger.Info("user registered", "user_id", user.ID.String(), "username", user.Username)

	activityRecorder{sink: h.activity, logger: h.logger}.record(ctx, ActivityEvent{
		EventType: ActivityEventUserSignup,
		Actor:     ActorFromUser(user),
		UserID:    user.ID.String(),
		ToStatus:  user.Status,
	})

	if event.OnResponse != nil {
		event.OnResponse(newAuthResult(user, session))
	}

	return nil
}
