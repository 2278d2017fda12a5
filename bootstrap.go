package bank

import (
	"context"
	"strings"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/google/uuid"
)

// AdminSeed describes the bootstrap admin account
type AdminSeed struct {
	Username string
	Email    string
	Password string
}

// EnsureAdmin creates the bootstrap admin when none exists. The id is
// derived from the email so repeated seeding against a fresh database yields
// the same account. An existing admin is returned untouched.
func EnsureAdmin(ctx context.Context, users Users, seed AdminSeed, logger Logger) (*User, error) {
	logger = resolveLogger(logger)

	admin, err := users.GetAdmin(ctx)
	if err == nil {
		logger.Debug("admin account present", "user_id", admin.ID.String())
		return admin, nil
	}
	if !goerrors.IsNotFound(err) && !isNotFound(err) {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to look up admin")
	}

	seed.Username = strings.TrimSpace(seed.Username)
	seed.Email = normalizeEmail(seed.Email)
	if seed.Username == "" || seed.Email == "" || seed.Password == "" {
		return nil, NewValidationError("admin seed requires username, email and password", nil)
	}

	hash, err := HashPassword(seed.Password)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to hash admin password")
	}

	id, err := hashid.NewUUID(seed.Email)
	if err != nil {
		id = uuid.New()
	}

	admin, err = users.Create(ctx, &User{
		ID:           id,
		IsAdmin:      true,
		Username:     seed.Username,
		Email:        seed.Email,
		PasswordHash: hash,
		Status:       UserStatusApproved,
	})
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to create admin")
	}

	logger.Info("admin account created", "user_id", admin.ID.String(), "username", admin.Username)
	return admin, nil
}
