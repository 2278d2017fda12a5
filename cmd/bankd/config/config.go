package config

import (
	"fmt"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/goliatone/go-errors"
)

// BaseConfig is loaded from config/app.json and the environment
type BaseConfig struct {
	Name        string      `koanf:"name" json:"name"`
	Debug       bool        `koanf:"debug" json:"debug"`
	Auth        Auth        `koanf:"auth" json:"auth"`
	Admin       Admin       `koanf:"admin" json:"admin"`
	Persistence Persistence `koanf:"persistence" json:"persistence"`
	Server      Server      `koanf:"server" json:"server"`
}

// Auth holds the session and lifecycle options
type Auth struct {
	SessionTTLExpression    string `koanf:"session_ttl" json:"session_ttl"`
	ContextKey              string `koanf:"context_key" json:"context_key"`
	TokenLookup             string `koanf:"token_lookup" json:"token_lookup"`
	AuthScheme              string `koanf:"auth_scheme" json:"auth_scheme"`
	AdminBypassesLifecycle  bool   `koanf:"admin_bypasses_lifecycle" json:"admin_bypasses_lifecycle"`
	AllowPendingSignIn      bool   `koanf:"allow_pending_signin" json:"allow_pending_signin"`
	MaxLoginAttempts        int    `koanf:"max_login_attempts" json:"max_login_attempts"`
	LoginCooldownExpression string `koanf:"login_cooldown" json:"login_cooldown"`
	CardTokenKey            string `koanf:"card_token_key" json:"card_token_key"`
}

// Admin is the bootstrap administrator seeded at start
type Admin struct {
	Username string `koanf:"username" json:"username"`
	Email    string `koanf:"email" json:"email"`
	Password string `koanf:"password" json:"-"`
}

type Persistence struct {
	Driver                string `koanf:"driver" json:"driver"`
	DSN                   string `koanf:"dsn" json:"dsn"`
	Debug                 bool   `koanf:"debug" json:"debug"`
	PingTimeoutExpression string `koanf:"ping_timeout" json:"ping_timeout"`
}

type Server struct {
	Address                   string `koanf:"address" json:"address"`
	ShutdownTimeoutExpression string `koanf:"shutdown_timeout" json:"shutdown_timeout"`
}

func (a BaseConfig) Validate() error {
	return errors.ValidateWithOzzo(func() error {
		return validation.ValidateStruct(&a,
			validation.Field(&a.Admin),
			validation.Field(&a.Persistence),
			validation.Field(&a.Server),
		)
	}, "invalid configuration")
}

func (a Admin) Validate() error {
	return validation.ValidateStruct(&a,
		validation.Field(&a.Username, validation.Required),
		validation.Field(&a.Email, validation.Required, is.Email),
		validation.Field(&a.Password, validation.Required, validation.Length(8, 128)),
	)
}

func (p Persistence) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.Driver, validation.Required, validation.In("sqlite", "postgres")),
		validation.Field(&p.DSN, validation.Required),
	)
}

func (s Server) Validate() error {
	return validation.ValidateStruct(&s,
		validation.Field(&s.Address, validation.Required),
	)
}

func (a BaseConfig) GetName() string             { return a.Name }
func (a BaseConfig) GetDebug() bool              { return a.Debug }
func (a BaseConfig) GetAuth() Auth               { return a.Auth }
func (a BaseConfig) GetAdmin() Admin             { return a.Admin }
func (a BaseConfig) GetPersistence() Persistence { return a.Persistence }
func (a BaseConfig) GetServer() Server           { return a.Server }

func (a Auth) GetSessionTTL() time.Duration {
	return mustDuration(a.SessionTTLExpression, 24*time.Hour)
}
func (a Auth) GetContextKey() string           { return a.ContextKey }
func (a Auth) GetTokenLookup() string          { return a.TokenLookup }
func (a Auth) GetAuthScheme() string           { return a.AuthScheme }
func (a Auth) GetAdminBypassesLifecycle() bool { return a.AdminBypassesLifecycle }
func (a Auth) GetAllowPendingSignIn() bool     { return a.AllowPendingSignIn }
func (a Auth) GetMaxLoginAttempts() int        { return a.MaxLoginAttempts }
func (a Auth) GetLoginCooldown() time.Duration {
	return mustDuration(a.LoginCooldownExpression, 15*time.Minute)
}
func (a Auth) GetCardTokenKey() string { return a.CardTokenKey }

func (a Admin) GetUsername() string { return a.Username }
func (a Admin) GetEmail() string    { return strings.ToLower(strings.TrimSpace(a.Email)) }
func (a Admin) GetPassword() string { return a.Password }

func (p Persistence) GetDriver() string { return p.Driver }
func (p Persistence) GetDSN() string    { return p.DSN }
func (p Persistence) GetDebug() bool    { return p.Debug }

func (p Persistence) GetPingTimeout() time.Duration {
	return mustDuration(p.PingTimeoutExpression, 5*time.Second)
}

func (s Server) GetAddress() string { return s.Address }

func (s Server) GetShutdownTimeout() time.Duration {
	return mustDuration(s.ShutdownTimeoutExpression, 10*time.Second)
}

// mustDuration returns def for an empty expression and panics on a bad one
func mustDuration(expr string, def time.Duration) time.Duration {
	if strings.TrimSpace(expr) == "" {
		return def
	}
	dur, err := time.ParseDuration(expr)
	if err != nil {
		panic(
			fmt.Sprintf("unable to parse time: expr %s", expr),
		)
	}
	return dur
}
