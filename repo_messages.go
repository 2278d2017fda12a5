package bank

import (
	"context"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Messages stores direct messages
type Messages interface {
	Create(ctx context.Context, record *Message) (*Message, error)
	Thread(ctx context.Context, userID, partnerID uuid.UUID) ([]*Message, error)
	Conversations(ctx context.Context, userID uuid.UUID) ([]*Conversation, error)
	CountUnread(ctx context.Context, userID uuid.UUID) (int, error)
	MarkThreadRead(ctx context.Context, userID, partnerID uuid.UUID) (int64, error)
	DeleteByUserTx(ctx context.Context, tx bun.IDB, userID uuid.UUID) (int64, error)
}

type messages struct {
	db *bun.DB
}

var _ Messages = (*messages)(nil)

// NewMessagesRepository returns the bun backed Messages store
func NewMessagesRepository(db *bun.DB) Messages {
	return &messages{db: db}
}

func (m *messages) Create(ctx context.Context, record *Message) (*Message, error) {
	if record.ID == "" {
		record.ID = newRecordID()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = utcNow()
	}
	if _, err := m.db.NewInsert().Model(record).Exec(ctx); err != nil {
		return nil, err
	}
	return record, nil
}

// Thread returns the exchange between two users, oldest first
func (m *messages) Thread(ctx context.Context, userID, partnerID uuid.UUID) ([]*Message, error) {
	records := []*Message{}
	err := m.db.NewSelect().
		Model(&records).
		Where("(sender_id = ? AND receiver_id = ?) OR (sender_id = ? AND receiver_id = ?)",
			userID, partnerID, partnerID, userID).
		Order("created_at ASC", "id ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return records, nil
}

// Conversations groups every message of the user by partner. Each entry
// carries the latest message and the count of unread messages received
// from that partner. Entries are ordered by latest activity.
func (m *messages) Conversations(ctx context.Context, userID uuid.UUID) ([]*Conversation, error) {
	records := []*Message{}
	err := m.db.NewSelect().
		Model(&records).
		Where("sender_id = ? OR receiver_id = ?", userID, userID).
		Order("created_at DESC", "id DESC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}

	index := map[uuid.UUID]*Conversation{}
	out := []*Conversation{}
	for _, msg := range records {
		partner := msg.PartnerOf(userID)
		conv, ok := index[partner]
		if !ok {
			conv = &Conversation{PartnerID: partner, LastMessage: msg}
			index[partner] = conv
			out = append(out, conv)
		}
		if msg.ReceiverID == userID && !msg.IsRead {
			conv.UnreadCount++
		}
	}

	if len(out) == 0 {
		return out, nil
	}

	partnerIDs := make([]uuid.UUID, 0, len(out))
	for _, conv := range out {
		partnerIDs = append(partnerIDs, conv.PartnerID)
	}

	partners := []*User{}
	err = m.db.NewSelect().
		Model(&partners).
		Column("id", "username").
		Where("?TableAlias.id IN (?)", bun.In(partnerIDs)).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	for _, p := range partners {
		if conv, ok := index[p.ID]; ok {
			conv.PartnerUsername = p.Username
		}
	}

	return out, nil
}

func (m *messages) CountUnread(ctx context.Context, userID uuid.UUID) (int, error) {
	return m.db.NewSelect().
		Model((*Message)(nil)).
		Where("receiver_id = ?", userID).
		Where("is_read = ?", false).
		Count(ctx)
}

// MarkThreadRead marks every message the partner sent to the user as read
func (m *messages) MarkThreadRead(ctx context.Context, userID, partnerID uuid.UUID) (int64, error) {
	res, err := m.db.NewUpdate().
		Model((*Message)(nil)).
		Set("is_read = ?", true).
		Where("receiver_id = ?", userID).
		Where("sender_id = ?", partnerID).
		Where("is_read = ?", false).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	return rowsAffected(res), nil
}

func (m *messages) DeleteByUserTx(ctx context.Context, tx bun.IDB, userID uuid.UUID) (int64, error) {
	res, err := tx.NewDelete().
		Model((*Message)(nil)).
		Where("sender_id = ? OR receiver_id = ?", userID, userID).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	return rowsAffected(res), nil
}
