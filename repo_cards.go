package bank

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Cards stores tokenized card submissions
type Cards interface {
	Create(ctx context.Context, record *CreditCard) (*CreditCard, error)
	GetByID(ctx context.Context, id uuid.UUID) (*CreditCard, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]*CreditCard, error)
	List(ctx context.Context, filter CardFilter) ([]*CreditCard, error)
	SetApproval(ctx context.Context, id uuid.UUID, approved bool, at time.Time) (*CreditCard, error)
	DeleteByUserTx(ctx context.Context, tx bun.IDB, userID uuid.UUID) (int64, error)
}

// CardFilter narrows admin card listings
type CardFilter struct {
	Approved *bool
}

type cards struct {
	db *bun.DB
}

var _ Cards = (*cards)(nil)

// NewCardsRepository returns the bun backed Cards store
func NewCardsRepository(db *bun.DB) Cards {
	return &cards{db: db}
}

func (c *cards) Create(ctx context.Context, record *CreditCard) (*CreditCard, error) {
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	now := utcNow()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	record.UpdatedAt = now

	if _, err := c.db.NewInsert().Model(record).Exec(ctx); err != nil {
		return nil, err
	}
	return record, nil
}

func (c *cards) GetByID(ctx context.Context, id uuid.UUID) (*CreditCard, error) {
	record := &CreditCard{}
	err := c.db.NewSelect().
		Model(record).
		Where("?TableAlias.id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNotFound(err) {
			return nil, NewNotFoundError("card", id.String())
		}
		return nil, err
	}
	return record, nil
}

func (c *cards) ListByUser(ctx context.Context, userID uuid.UUID) ([]*CreditCard, error) {
	records := []*CreditCard{}
	err := c.db.NewSelect().
		Model(&records).
		Where("?TableAlias.user_id = ?", userID).
		Order("created_at DESC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return records, nil
}

func (c *cards) List(ctx context.Context, filter CardFilter) ([]*CreditCard, error) {
	records := []*CreditCard{}
	q := c.db.NewSelect().Model(&records)
	if filter.Approved != nil {
		q = q.Where("?TableAlias.is_approved = ?", *filter.Approved)
	}
	if err := q.Order("created_at DESC").Scan(ctx); err != nil {
		return nil, err
	}
	return records, nil
}

func (c *cards) SetApproval(ctx context.Context, id uuid.UUID, approved bool, at time.Time) (*CreditCard, error) {
	var approvedAt *time.Time
	if approved {
		t := at.UTC()
		approvedAt = &t
	}

	res, err := c.db.NewUpdate().
		Model((*CreditCard)(nil)).
		Set("is_approved = ?", approved).
		Set("approved_at = ?", approvedAt).
		Set("updated_at = ?", at.UTC()).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return nil, err
	}
	if err := expectAffected(res, "card", id.String()); err != nil {
		return nil, err
	}
	return c.GetByID(ctx, id)
}

func (c *cards) DeleteByUserTx(ctx context.Context, tx bun.IDB, userID uuid.UUID) (int64, error) {
	res, err := tx.NewDelete().
		Model((*CreditCard)(nil)).
		Where("user_id = ?", userID).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	return rowsAffected(res), nil
}
