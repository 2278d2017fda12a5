package bank

import (
	"context"
	"time"

	"github.com/goliatone/go-errors"
)

// UserTracker is a store we can use to retrieve users
type UserTracker interface {
	GetByIdentifier(ctx context.Context, identifier string) (*User, error)
	TrackAttemptedLogin(ctx context.Context, user *User) error
	TrackSuccessfulLogin(ctx context.Context, user *User) error
}

// UserProvider verifies credentials and throttles repeated failures
type UserProvider struct {
	store            UserTracker
	passwords        PasswordAuthenticator
	logger           Logger
	maxLoginAttempts int
	cooldown         time.Duration
	adminUnthrottled bool
	now              func() time.Time
}

// NewUserProvider will create a new UserProvider
func NewUserProvider(store UserTracker, cfg Config) *UserProvider {
	defaults := DefaultOptions()
	p := &UserProvider{
		store:            store,
		passwords:        NewPasswordAuthenticator(),
		logger:           defLogger{},
		maxLoginAttempts: defaults.MaxLoginAttempts,
		cooldown:         defaults.LoginCooldown,
		now:              utcNow,
	}
	if cfg != nil {
		if cfg.GetMaxLoginAttempts() > 0 {
			p.maxLoginAttempts = cfg.GetMaxLoginAttempts()
		}
		if cfg.GetLoginCooldown() > 0 {
			p.cooldown = cfg.GetLoginCooldown()
		}
		p.adminUnthrottled = cfg.GetAdminBypassesLifecycle()
	}
	return p
}

func (u *UserProvider) WithLogger(l Logger) *UserProvider {
	u.logger = resolveLogger(l)
	return u
}

// WithClock injects a custom clock (useful for tests).
func (u *UserProvider) WithClock(clock func() time.Time) *UserProvider {
	if clock != nil {
		u.now = clock
	}
	return u
}

// VerifyIdentity finds the user and checks the password. Unknown
// identifiers and wrong passwords fail the same way. Account status is not
// checked here. When the admin bypasses the lifecycle its failures are not
// counted, so nobody can lock it out.
func (u *UserProvider) VerifyIdentity(ctx context.Context, identifier, password string) (*User, error) {
	user, err := u.store.GetByIdentifier(ctx, identifier)
	if err != nil {
		if errors.IsNotFound(err) || isNotFound(err) {
			return nil, ErrMismatchedHashAndPassword
		}
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to retrieve user during verification")
	}

	throttled := !(user.IsAdmin && u.adminUnthrottled)

	if user.LoginAttemptAt != nil && IsOutsideThresholdPeriod(*user.LoginAttemptAt, u.now(), u.cooldown) {
		user.LoginAttempts = 0
	}

	//if we have too many attempts in the given window, cool off!
	if throttled && user.LoginAttempts >= u.maxLoginAttempts {
		return nil, ErrTooManyLoginAttempts
	}

	if err := u.passwords.ComparePasswordAndHash(password, user.PasswordHash); err != nil {
		if !throttled {
			return nil, ErrMismatchedHashAndPassword
		}
		if err2 := u.store.TrackAttemptedLogin(ctx, user); err2 != nil {
			return nil, errors.Wrap(err2, errors.CategoryInternal, "failed to track login attempt")
		}
		return nil, ErrMismatchedHashAndPassword
	}

	if err := u.store.TrackSuccessfulLogin(ctx, user); err != nil {
		u.logger.Error("failed to track successful login", "error", err)
	}

	return user, nil
}
