package bank

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Logger is the logging contract used across the package. Messages take
// key/value pairs after the message, the way slog style loggers do.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Config holds bank service options
type Config interface {
	GetSessionTTL() time.Duration
	GetContextKey() string
	GetTokenLookup() string
	GetAuthScheme() string
	GetAdminBypassesLifecycle() bool
	GetAllowPendingSignIn() bool
	GetMaxLoginAttempts() int
	GetLoginCooldown() time.Duration
	GetCardTokenKey() string
}

// SessionResolver resolves a bearer token into the caller's user and session
type SessionResolver interface {
	Resolve(ctx context.Context, token string) (*Principal, error)
}

// PasswordAuthenticator authenticates passwords
type PasswordAuthenticator interface {
	HashPassword(password string) (string, error)
	ComparePasswordAndHash(password, hash string) error
}

// Principal is the authenticated caller attached to a request.
type Principal struct {
	User    *User
	Session *Session
}

// UserID returns the caller id as a string
func (p *Principal) UserID() string {
	if p == nil || p.User == nil {
		return ""
	}
	return p.User.ID.String()
}

// UserUUID returns the caller id
func (p *Principal) UserUUID() uuid.UUID {
	if p == nil || p.User == nil {
		return uuid.Nil
	}
	return p.User.ID
}

// SessionID returns the bearer token backing the request
func (p *Principal) SessionID() string {
	if p == nil || p.Session == nil {
		return ""
	}
	return p.Session.ID
}

// IsAdmin reports whether the caller is the bootstrap admin
func (p *Principal) IsAdmin() bool {
	return p != nil && p.User != nil && p.User.IsAdmin
}

// IsApproved reports whether the caller may use gated features
func (p *Principal) IsApproved() bool {
	return p != nil && p.User != nil && (p.User.IsAdmin || p.User.Status == UserStatusApproved)
}

// Options is a plain Config implementation
type Options struct {
	SessionTTL             time.Duration
	ContextKey             string
	TokenLookup            string
	AuthScheme             string
	AdminBypassesLifecycle bool
	AllowPendingSignIn     bool
	MaxLoginAttempts       int
	LoginCooldown          time.Duration
	CardTokenKey           string
}

// DefaultOptions returns the options used when nothing is configured
func DefaultOptions() Options {
	return Options{
		SessionTTL:             24 * time.Hour,
		ContextKey:             "principal",
		TokenLookup:            "header:Authorization",
		AuthScheme:             "Bearer",
		AdminBypassesLifecycle: true,
		MaxLoginAttempts:       5,
		LoginCooldown:          15 * time.Minute,
		CardTokenKey:           "change-me",
	}
}

func (o Options) GetSessionTTL() time.Duration    { return o.SessionTTL }
func (o Options) GetContextKey() string           { return o.ContextKey }
func (o Options) GetTokenLookup() string          { return o.TokenLookup }
func (o Options) GetAuthScheme() string           { return o.AuthScheme }
func (o Options) GetAdminBypassesLifecycle() bool { return o.AdminBypassesLifecycle }
func (o Options) GetAllowPendingSignIn() bool     { return o.AllowPendingSignIn }
func (o Options) GetMaxLoginAttempts() int        { return o.MaxLoginAttempts }
func (o Options) GetLoginCooldown() time.Duration { return o.LoginCooldown }
func (o Options) GetCardTokenKey() string         { return o.CardTokenKey }

type defLogger struct{}

func (d defLogger) Debug(msg string, args ...any) {
	fmt.Print("[DBG] BANK " + format(msg, args...))
}

func (d defLogger) Info(msg string, args ...any) {
	fmt.Print("[INF] BANK " + format(msg, args...))
}

func (d defLogger) Warn(msg string, args ...any) {
	fmt.Print("[WRN] BANK " + format(msg, args...))
}

func (d defLogger) Error(msg string, args ...any) {
	fmt.Print("[ERR] BANK " + format(msg, args...))
}

func format(msg string, args ...any) string {
	var b strings.Builder
	b.WriteString(msg)
	for i := 0; i < len(args); i += 2 {
		if i+1 < len(args) {
			fmt.Fprintf(&b, " %v=%v", args[i], args[i+1])
		} else {
			fmt.Fprintf(&b, " %v", args[i])
		}
	}
	return newline(b.String())
}

func newline(s string) string {
	if len(s) > 0 && s[len(s)-1] != '\n' {
		s += "\n"
	}
	return s
}

func resolveLogger(l Logger) Logger {
	if l == nil {
		return defLogger{}
	}
	return l
}
