package bank

import (
	"context"
	"database/sql"
	"errors"
	"log"

	"github.com/oklog/ulid/v2"
	"github.com/uptrace/bun"
)

// RepositoryManager exposes all repositories
type RepositoryManager interface {
	Validate() error
	MustValidate()
	RunInTx(ctx context.Context, opts *sql.TxOptions, f func(ctx context.Context, tx bun.Tx) error) error
	Users() Users
	Sessions() Sessions
	Notifications() Notifications
	Messages() Messages
	Cards() Cards
}

type mngr struct {
	db            *bun.DB
	users         Users
	sessions      Sessions
	notifications Notifications
	messages      Messages
	cards         Cards
}

// NewRepositoryManager wires every bun repository over db
func NewRepositoryManager(db *bun.DB) RepositoryManager {
	return &mngr{
		db:            db,
		users:         NewUsersRepository(db),
		sessions:      NewSessionsRepository(db),
		notifications: NewNotificationsRepository(db),
		messages:      NewMessagesRepository(db),
		cards:         NewCardsRepository(db),
	}
}

func (m mngr) Validate() error {
	if m.db == nil {
		return errors.New("repository database should be initialized")
	}

	if m.users == nil {
		return errors.New("repository users should be initialized")
	}

	if m.sessions == nil {
		return errors.New("repository sessions should be initialized")
	}

	if m.notifications == nil {
		return errors.New("repository notifications should be initialized")
	}

	if m.messages == nil {
		return errors.New("repository messages should be initialized")
	}

	if m.cards == nil {
		return errors.New("repository cards should be initialized")
	}

	return nil
}

func (m mngr) MustValidate() {
	if err := m.Validate(); err != nil {
		log.Panic(err)
	}
}

func (m mngr) RunInTx(ctx context.Context, opts *sql.TxOptions, f func(ctx context.Context, tx bun.Tx) error) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return m.db.RunInTx(ctx, opts, f)
	}
}

func (m mngr) Users() Users {
	return m.users
}

func (m mngr) Sessions() Sessions {
	return m.sessions
}

func (m mngr) Notifications() Notifications {
	return m.notifications
}

func (m mngr) Messages() Messages {
	return m.messages
}

func (m mngr) Cards() Cards {
	return m.cards
}

// newRecordID returns a sortable id for notifications and messages
func newRecordID() string {
	return ulid.Make().String()
}

func rowsAffected(res sql.Result) int64 {
	if res == nil {
		return 0
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0
	}
	return n
}

func expectAffected(res sql.Result, kind, id string) error {
	if rowsAffected(res) == 0 {
		return NewNotFoundError(kind, id)
	}
	return nil
}
