package bank

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// UserStatus is the account lifecycle state
type UserStatus string

const (
	// UserStatusPending is the state of a freshly registered account
	UserStatusPending UserStatus = "pending"
	// UserStatusApproved accounts can sign in and use gated features
	UserStatusApproved UserStatus = "approved"
	// UserStatusRejected accounts were declined by the admin
	UserStatusRejected UserStatus = "rejected"
	// UserStatusSuspended accounts were approved and later frozen
	UserStatusSuspended UserStatus = "suspended"
)

// UserStatuses lists every lifecycle state
var UserStatuses = []UserStatus{
	UserStatusPending,
	UserStatusApproved,
	UserStatusRejected,
	UserStatusSuspended,
}

// IsValid reports whether s is a known status
func (s UserStatus) IsValid() bool {
	switch s {
	case UserStatusPending, UserStatusApproved, UserStatusRejected, UserStatusSuspended:
		return true
	}
	return false
}

// ParseUserStatus normalizes a raw status string
func ParseUserStatus(raw string) (UserStatus, bool) {
	s := UserStatus(strings.ToLower(strings.TrimSpace(raw)))
	return s, s.IsValid()
}

// User is the user model
type User struct {
	bun.BaseModel   `bun:"table:users,alias:usr"`
	ID              uuid.UUID  `bun:"id,pk,type:uuid" json:"id"`
	IsAdmin         bool       `bun:"is_admin,notnull" json:"is_admin"`
	Username        string     `bun:"username,notnull,unique" json:"username"`
	Email           string     `bun:"email,notnull,unique" json:"email"`
	PasswordHash    string     `bun:"password_hash,notnull" json:"-"`
	Status          UserStatus `bun:"status,notnull" json:"status"`
	StatusReason    string     `bun:"status_reason" json:"status_reason,omitempty"`
	FirstName       string     `bun:"first_name" json:"first_name,omitempty"`
	LastName        string     `bun:"last_name" json:"last_name,omitempty"`
	Phone           string     `bun:"phone_number" json:"phone_number,omitempty"`
	Address         string     `bun:"address" json:"address,omitempty"`
	City            string     `bun:"city" json:"city,omitempty"`
	Country         string     `bun:"country" json:"country,omitempty"`
	DateOfBirth     string     `bun:"date_of_birth" json:"date_of_birth,omitempty"`
	LoginAttempts   int        `bun:"login_attempts,notnull" json:"-"`
	LoginAttemptAt  *time.Time `bun:"login_attempt_at,nullzero" json:"-"`
	LoggedInAt      *time.Time `bun:"loggedin_at,nullzero" json:"loggedin_at,omitempty"`
	StatusChangedAt *time.Time `bun:"status_changed_at,nullzero" json:"status_changed_at,omitempty"`
	PasswordResetAt *time.Time `bun:"password_reset_at,nullzero" json:"password_reset_at,omitempty"`
	CreatedAt       time.Time  `bun:"created_at,notnull" json:"created_at"`
	UpdatedAt       time.Time  `bun:"updated_at,notnull" json:"updated_at"`
}

// EnsureStatus defaults an empty status to pending
func (u *User) EnsureStatus() {
	if u != nil && u.Status == "" {
		u.Status = UserStatusPending
	}
}

// IsApproved reports whether the user may use gated features
func (u *User) IsApproved() bool {
	return u != nil && u.Status == UserStatusApproved
}

// DisplayName is the name shown in notifications
func (u *User) DisplayName() string {
	if u == nil {
		return ""
	}
	full := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if full != "" {
		return full
	}
	return u.Username
}

// Session is an opaque bearer token bound to a user
type Session struct {
	bun.BaseModel `bun:"table:sessions,alias:ses"`
	ID            string    `bun:"id,pk" json:"id"`
	UserID        uuid.UUID `bun:"user_id,notnull,type:uuid" json:"user_id"`
	IP            string    `bun:"ip" json:"ip,omitempty"`
	UserAgent     string    `bun:"user_agent" json:"user_agent,omitempty"`
	CreatedAt     time.Time `bun:"created_at,notnull" json:"created_at"`
	ExpiresAt     time.Time `bun:"expires_at,notnull" json:"expires_at"`
}

// IsExpired reports whether now is strictly after the expiry
func (s *Session) IsExpired(now time.Time) bool {
	return s == nil || now.After(s.ExpiresAt)
}

// NotificationKind classifies notifications
type NotificationKind string

const (
	NotificationKindSignup        NotificationKind = "signup"
	NotificationKindStatus        NotificationKind = "status"
	NotificationKindCard          NotificationKind = "card"
	NotificationKindPasswordReset NotificationKind = "password_reset"
	NotificationKindSystem        NotificationKind = "system"
)

// Notification is a one way system message to a user
type Notification struct {
	bun.BaseModel `bun:"table:notifications,alias:ntf"`
	ID            string           `bun:"id,pk" json:"id"`
	UserID        uuid.UUID        `bun:"user_id,notnull,type:uuid" json:"user_id"`
	Kind          NotificationKind `bun:"kind,notnull" json:"kind"`
	Message       string           `bun:"message,notnull" json:"message"`
	IsRead        bool             `bun:"is_read,notnull" json:"is_read"`
	CreatedAt     time.Time        `bun:"created_at,notnull" json:"created_at"`
}

// Message is a direct message between two users
type Message struct {
	bun.BaseModel `bun:"table:messages,alias:msg"`
	ID            string    `bun:"id,pk" json:"id"`
	SenderID      uuid.UUID `bun:"sender_id,notnull,type:uuid" json:"sender_id"`
	ReceiverID    uuid.UUID `bun:"receiver_id,notnull,type:uuid" json:"receiver_id"`
	Content       string    `bun:"content,notnull" json:"content"`
	IsRead        bool      `bun:"is_read,notnull" json:"is_read"`
	CreatedAt     time.Time `bun:"created_at,notnull" json:"created_at"`
}

// PartnerOf returns the other participant of the message
func (m *Message) PartnerOf(userID uuid.UUID) uuid.UUID {
	if m.SenderID == userID {
		return m.ReceiverID
	}
	return m.SenderID
}

// Conversation summarizes the exchange with one partner
type Conversation struct {
	PartnerID       uuid.UUID `json:"partner_id"`
	PartnerUsername string    `json:"partner_username,omitempty"`
	LastMessage     *Message  `json:"last_message"`
	UnreadCount     int       `json:"unread_count"`
}

// CreditCard is a tokenized card submission. The full number and the CVV
// are never stored.
type CreditCard struct {
	bun.BaseModel `bun:"table:credit_cards,alias:crd"`
	ID            uuid.UUID  `bun:"id,pk,type:uuid" json:"id"`
	UserID        uuid.UUID  `bun:"user_id,notnull,type:uuid" json:"user_id"`
	Token         string     `bun:"card_token,notnull" json:"-"`
	Last4         string     `bun:"last4,notnull" json:"last4"`
	Brand         string     `bun:"brand,notnull" json:"brand"`
	HolderName    string     `bun:"holder_name,notnull" json:"holder_name"`
	ExpMonth      int        `bun:"exp_month,notnull" json:"exp_month"`
	ExpYear       int        `bun:"exp_year,notnull" json:"exp_year"`
	IsApproved    bool       `bun:"is_approved,notnull" json:"is_approved"`
	ApprovedAt    *time.Time `bun:"approved_at,nullzero" json:"approved_at,omitempty"`
	CreatedAt     time.Time  `bun:"created_at,notnull" json:"created_at"`
	UpdatedAt     time.Time  `bun:"updated_at,notnull" json:"updated_at"`
}

// MaskedNumber renders the card the way it is shown to admins
func (c *CreditCard) MaskedNumber() string {
	if c == nil {
		return ""
	}
	return "**** **** **** " + c.Last4
}
