package bank

import (
	"context"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Notifications stores one way system notifications
type Notifications interface {
	Create(ctx context.Context, record *Notification) (*Notification, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]*Notification, error)
	CountUnread(ctx context.Context, userID uuid.UUID) (int, error)
	MarkRead(ctx context.Context, userID uuid.UUID, ids ...string) (int64, error)
	DeleteByUserTx(ctx context.Context, tx bun.IDB, userID uuid.UUID) (int64, error)
}

type notifications struct {
	db *bun.DB
}

var _ Notifications = (*notifications)(nil)

// NewNotificationsRepository returns the bun backed Notifications store
func NewNotificationsRepository(db *bun.DB) Notifications {
	return &notifications{db: db}
}

func (n *notifications) Create(ctx context.Context, record *Notification) (*Notification, error) {
	if record.ID == "" {
		record.ID = newRecordID()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = utcNow()
	}
	if _, err := n.db.NewInsert().Model(record).Exec(ctx); err != nil {
		return nil, err
	}
	return record, nil
}

func (n *notifications) ListByUser(ctx context.Context, userID uuid.UUID) ([]*Notification, error) {
	records := []*Notification{}
	err := n.db.NewSelect().
		Model(&records).
		Where("?TableAlias.user_id = ?", userID).
		Order("created_at DESC", "id DESC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return records, nil
}

func (n *notifications) CountUnread(ctx context.Context, userID uuid.UUID) (int, error) {
	return n.db.NewSelect().
		Model((*Notification)(nil)).
		Where("user_id = ?", userID).
		Where("is_read = ?", false).
		Count(ctx)
}

// MarkRead flags the given notifications as read. With no ids every
// notification of the user is marked.
func (n *notifications) MarkRead(ctx context.Context, userID uuid.UUID, ids ...string) (int64, error) {
	q := n.db.NewUpdate().
		Model((*Notification)(nil)).
		Set("is_read = ?", true).
		Where("user_id = ?", userID).
		Where("is_read = ?", false)

	if len(ids) > 0 {
		q = q.Where("id IN (?)", bun.In(ids))
	}

	res, err := q.Exec(ctx)
	if err != nil {
		return 0, err
	}
	return rowsAffected(res), nil
}

func (n *notifications) DeleteByUserTx(ctx context.Context, tx bun.IDB, userID uuid.UUID) (int64, error) {
	res, err := tx.NewDelete().
		Model((*Notification)(nil)).
		Where("user_id = ?", userID).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	return rowsAffected(res), nil
}
