package bank

import (
	"context"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Users is the credential and profile store
type Users interface {
	GetByID(ctx context.Context, id uuid.UUID) (*User, error)
	GetByIDTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (*User, error)
	GetByIdentifier(ctx context.Context, identifier string) (*User, error)
	GetByIdentifierTx(ctx context.Context, tx bun.IDB, identifier string) (*User, error)
	GetAdmin(ctx context.Context) (*User, error)
	GetAdminTx(ctx context.Context, tx bun.IDB) (*User, error)
	List(ctx context.Context, filter UserFilter) ([]*User, error)
	IdentityTakenTx(ctx context.Context, tx bun.IDB, username, email string) (bool, error)

	Create(ctx context.Context, record *User) (*User, error)
	CreateTx(ctx context.Context, tx bun.IDB, record *User) (*User, error)
	UpdateProfile(ctx context.Context, record *User) (*User, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status UserStatus, opts ...StatusUpdateOption) (*User, error)
	UpdateStatusTx(ctx context.Context, tx bun.IDB, id uuid.UUID, status UserStatus, opts ...StatusUpdateOption) (*User, error)
	ResetPassword(ctx context.Context, id uuid.UUID, passwordHash string) error
	ResetPasswordTx(ctx context.Context, tx bun.IDB, id uuid.UUID, passwordHash string) error
	DeleteTx(ctx context.Context, tx bun.IDB, id uuid.UUID) error

	TrackAttemptedLogin(ctx context.Context, user *User) error
	TrackAttemptedLoginTx(ctx context.Context, tx bun.IDB, user *User) error
	TrackSuccessfulLogin(ctx context.Context, user *User) error
	TrackSuccessfulLoginTx(ctx context.Context, tx bun.IDB, user *User) error
}

// UserFilter narrows admin listings
type UserFilter struct {
	Status UserStatus
}

type users struct {
	base repository.Repository[*User]
	db   *bun.DB
	now  func() time.Time
}

var _ Users = (*users)(nil)

// NewUsersRepository returns the bun backed Users store
func NewUsersRepository(db *bun.DB) Users {
	base := repository.NewRepository[*User](db, repository.ModelHandlers[*User]{
		NewRecord: func() *User { return &User{} },
		GetID: func(u *User) uuid.UUID {
			if u == nil {
				return uuid.Nil
			}
			return u.ID
		},
		SetID: func(u *User, id uuid.UUID) {
			if u != nil {
				u.ID = id
			}
		},
		GetIdentifier: func() string {
			return "email"
		},
	})

	return &users{
		base: base,
		db:   db,
		now:  utcNow,
	}
}

func (a *users) GetByID(ctx context.Context, id uuid.UUID) (*User, error) {
	user, err := a.base.GetByID(ctx, id.String())
	if err != nil {
		if isNotFound(err) {
			return nil, NewNotFoundError("user", id.String())
		}
		return nil, err
	}
	return user, nil
}

func (a *users) GetByIDTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (*User, error) {
	record := &User{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNotFound(err) {
			return nil, NewNotFoundError("user", id.String())
		}
		return nil, err
	}
	return record, nil
}

func (a *users) GetByIdentifier(ctx context.Context, identifier string) (*User, error) {
	return a.GetByIdentifierTx(ctx, a.db, identifier)
}

func (a *users) GetByIdentifierTx(ctx context.Context, tx bun.IDB, identifier string) (*User, error) {
	for _, opt := range resolveUserIdentifier(identifier) {
		where := fmt.Sprintf("?TableAlias.%s = ?", opt.column)
		if opt.fold {
			where = fmt.Sprintf("lower(?TableAlias.%s) = lower(?)", opt.column)
		}

		record := &User{}
		err := tx.NewSelect().
			Model(record).
			Where(where, opt.value).
			Limit(1).
			Scan(ctx)

		if err != nil {
			if isNotFound(err) {
				continue
			}
			return nil, err
		}

		return record, nil
	}

	return nil, NewNotFoundError("user", identifier)
}

func (a *users) GetAdmin(ctx context.Context) (*User, error) {
	return a.GetAdminTx(ctx, a.db)
}

func (a *users) GetAdminTx(ctx context.Context, tx bun.IDB) (*User, error) {
	record := &User{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.is_admin = ?", true).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNotFound(err) {
			return nil, NewNotFoundError("admin", "")
		}
		return nil, err
	}
	return record, nil
}

func (a *users) List(ctx context.Context, filter UserFilter) ([]*User, error) {
	records := []*User{}
	q := a.db.NewSelect().Model(&records)
	if filter.Status != "" {
		q = q.Where("?TableAlias.status = ?", filter.Status)
	}
	if err := q.Order("created_at DESC", "username ASC").Scan(ctx); err != nil {
		return nil, err
	}
	return records, nil
}

func (a *users) IdentityTakenTx(ctx context.Context, tx bun.IDB, username, email string) (bool, error) {
	return tx.NewSelect().
		Model((*User)(nil)).
		Where("lower(username) = lower(?) OR lower(email) = lower(?)", username, email).
		Exists(ctx)
}

func (a *users) Create(ctx context.Context, record *User) (*User, error) {
	return a.CreateTx(ctx, a.db, record)
}

func (a *users) CreateTx(ctx context.Context, tx bun.IDB, record *User) (*User, error) {
	a.prepareUserDefaults(record)
	created, err := a.base.CreateTx(ctx, tx, record)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicateIdentity
		}
		return nil, err
	}
	return created, nil
}

func (a *users) UpdateProfile(ctx context.Context, record *User) (*User, error) {
	record.UpdatedAt = a.now()
	res, err := a.db.NewUpdate().
		Model(record).
		Column("first_name", "last_name", "phone_number", "address", "city", "country", "date_of_birth", "updated_at").
		WherePK().
		Exec(ctx)
	if err != nil {
		return nil, err
	}
	if err := expectAffected(res, "user", record.ID.String()); err != nil {
		return nil, err
	}
	return a.GetByIDTx(ctx, a.db, record.ID)
}

func (a *users) UpdateStatus(ctx context.Context, id uuid.UUID, status UserStatus, opts ...StatusUpdateOption) (*User, error) {
	var updated *User
	err := a.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var err error
		updated, err = a.UpdateStatusTx(ctx, tx, id, status, opts...)
		return err
	})
	return updated, err
}

// UpdateStatusTx writes the status, reason and change time in one
// statement and returns the stored record.
func (a *users) UpdateStatusTx(ctx context.Context, tx bun.IDB, id uuid.UUID, status UserStatus, opts ...StatusUpdateOption) (*User, error) {
	if !status.IsValid() {
		return nil, ErrInvalidStatus
	}

	update := &statusUpdate{changedAt: a.now()}
	for _, opt := range opts {
		if opt != nil {
			opt(update)
		}
	}

	res, err := tx.NewUpdate().
		Model((*User)(nil)).
		Set("status = ?", status).
		Set("status_reason = ?", update.reason).
		Set("status_changed_at = ?", update.changedAt).
		Set("updated_at = ?", update.changedAt).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return nil, err
	}

	if err := expectAffected(res, "user", id.String()); err != nil {
		return nil, err
	}

	return a.GetByIDTx(ctx, tx, id)
}

func (a *users) ResetPassword(ctx context.Context, id uuid.UUID, passwordHash string) error {
	return a.ResetPasswordTx(ctx, a.db, id, passwordHash)
}

func (a *users) ResetPasswordTx(ctx context.Context, tx bun.IDB, id uuid.UUID, passwordHash string) error {
	now := a.now()
	res, err := tx.NewUpdate().
		Model((*User)(nil)).
		Set("password_hash = ?", passwordHash).
		Set("password_reset_at = ?", now).
		Set("login_attempts = 0").
		Set("login_attempt_at = NULL").
		Set("updated_at = ?", now).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return err
	}
	return expectAffected(res, "user", id.String())
}

func (a *users) DeleteTx(ctx context.Context, tx bun.IDB, id uuid.UUID) error {
	res, err := tx.NewDelete().
		Model((*User)(nil)).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return err
	}
	return expectAffected(res, "user", id.String())
}

func (a *users) TrackSuccessfulLogin(ctx context.Context, user *User) error {
	return a.TrackSuccessfulLoginTx(ctx, a.db, user)
}

func (a *users) TrackSuccessfulLoginTx(ctx context.Context, tx bun.IDB, user *User) error {
	_, err := tx.NewUpdate().
		Model((*User)(nil)).
		Set("loggedin_at = ?", a.now()).
		Set("login_attempt_at = NULL").
		Set("login_attempts = 0").
		Where("id = ?", user.ID).
		Exec(ctx)
	return err
}

func (a *users) TrackAttemptedLogin(ctx context.Context, user *User) error {
	return a.TrackAttemptedLoginTx(ctx, a.db, user)
}

func (a *users) TrackAttemptedLoginTx(ctx context.Context, tx bun.IDB, user *User) error {
	_, err := tx.NewUpdate().
		Model((*User)(nil)).
		Set("login_attempts = ?", user.LoginAttempts+1).
		Set("login_attempt_at = ?", a.now()).
		Where("id = ?", user.ID).
		Exec(ctx)
	return err
}

// StatusUpdateOption customizes the columns written with a status change
type StatusUpdateOption func(*statusUpdate)

type statusUpdate struct {
	reason    string
	changedAt time.Time
}

// WithStatusReason records why the status changed
func WithStatusReason(reason string) StatusUpdateOption {
	return func(u *statusUpdate) {
		u.reason = strings.TrimSpace(reason)
	}
}

// WithStatusChangedAt overrides the recorded change time
func WithStatusChangedAt(at time.Time) StatusUpdateOption {
	return func(u *statusUpdate) {
		if !at.IsZero() {
			u.changedAt = at.UTC()
		}
	}
}

func (a *users) prepareUserDefaults(record *User) {
	if record == nil {
		return
	}

	record.EnsureStatus()

	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}

	now := a.now()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	if record.UpdatedAt.IsZero() {
		record.UpdatedAt = now
	}
}

type identifierOption struct {
	column string
	value  string
	fold   bool
}

func resolveUserIdentifier(identifier string) []identifierOption {
	trimmed := strings.TrimSpace(identifier)
	if trimmed == "" {
		return nil
	}

	options := make([]identifierOption, 0, 3)

	if isUUID(trimmed) {
		options = append(options, identifierOption{column: "id", value: trimmed})
	}

	if isEmail(trimmed) {
		options = append(options, identifierOption{column: "email", value: trimmed, fold: true})
	}

	// usernames and emails are unique case insensitively, see IdentityTakenTx
	options = append(options, identifierOption{column: "username", value: trimmed, fold: true})

	return options
}

func isEmail(email string) bool {
	_, err := mail.ParseAddress(email)
	return err == nil
}

func isUUID(identifier string) bool {
	_, err := uuid.Parse(identifier)
	return err == nil
}
