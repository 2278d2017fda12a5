package bank

import (
	"database/sql"
	"errors"
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
)

const (
	TextCodeUnauthenticated      = "UNAUTHENTICATED"
	TextCodeInvalidSession       = "INVALID_SESSION"
	TextCodeSessionExpired       = "SESSION_EXPIRED"
	TextCodeInvalidCredentials   = "INVALID_CREDENTIALS"
	TextCodeTooManyLoginAttempts = "TOO_MANY_LOGIN_ATTEMPTS"
	TextCodeForbidden            = "FORBIDDEN"
	TextCodeAdminImmutable       = "ADMIN_IMMUTABLE"
	TextCodeAccountNotActive     = "ACCOUNT_NOT_ACTIVE"
	TextCodeNotFound             = "NOT_FOUND"
	TextCodeValidation           = "VALIDATION_ERROR"
	TextCodeDuplicateIdentity    = "DUPLICATE_IDENTITY"
	TextCodeInvalidStatus        = "INVALID_STATUS"
	TextCodeInternal             = "INTERNAL"
)

// ErrUnauthenticated is returned when a request carries no bearer token
var ErrUnauthenticated = goerrors.New("authentication required", goerrors.CategoryAuth).
	WithCode(goerrors.CodeUnauthorized).
	WithTextCode(TextCodeUnauthenticated)

// ErrInvalidSession is returned when the token does not match a session
var ErrInvalidSession = goerrors.New("invalid session", goerrors.CategoryAuth).
	WithCode(goerrors.CodeUnauthorized).
	WithTextCode(TextCodeInvalidSession)

// ErrSessionExpired is returned when the session is past its expiry
var ErrSessionExpired = goerrors.New("session expired", goerrors.CategoryAuth).
	WithCode(goerrors.CodeUnauthorized).
	WithTextCode(TextCodeSessionExpired)

// ErrMismatchedHashAndPassword is returned on a failed password check.
// Unknown identifiers return the same error.
var ErrMismatchedHashAndPassword = goerrors.New("invalid credentials", goerrors.CategoryAuth).
	WithCode(goerrors.CodeUnauthorized).
	WithTextCode(TextCodeInvalidCredentials)

// ErrTooManyLoginAttempts is returned while the account is cooling down
var ErrTooManyLoginAttempts = goerrors.New("too many login attempts", goerrors.CategoryRateLimit).
	WithCode(http.StatusTooManyRequests).
	WithTextCode(TextCodeTooManyLoginAttempts)

// ErrForbidden is returned when the caller lacks the required role or status
var ErrForbidden = goerrors.New("forbidden", goerrors.CategoryAuthz).
	WithCode(goerrors.CodeForbidden).
	WithTextCode(TextCodeForbidden)

// ErrAdminImmutable is returned when an operation targets the admin account
var ErrAdminImmutable = goerrors.New("the admin account cannot be modified this way", goerrors.CategoryAuthz).
	WithCode(goerrors.CodeForbidden).
	WithTextCode(TextCodeAdminImmutable)

// ErrNotFound is returned when a referenced record does not exist
var ErrNotFound = goerrors.New("not found", goerrors.CategoryNotFound).
	WithCode(goerrors.CodeNotFound).
	WithTextCode(TextCodeNotFound)

// ErrDuplicateIdentity is returned when the username or email is taken
var ErrDuplicateIdentity = goerrors.New("username or email already registered", goerrors.CategoryConflict).
	WithCode(goerrors.CodeBadRequest).
	WithTextCode(TextCodeDuplicateIdentity)

// ErrInvalidStatus is returned for unknown status values
var ErrInvalidStatus = goerrors.New("invalid account status", goerrors.CategoryValidation).
	WithCode(goerrors.CodeBadRequest).
	WithTextCode(TextCodeInvalidStatus)

// ErrNoEmptyString is returned when hashing an empty password
var ErrNoEmptyString = goerrors.New("password can not be empty", goerrors.CategoryValidation).
	WithCode(goerrors.CodeBadRequest).
	WithTextCode(TextCodeValidation)

// NewAccountNotActiveError reports a sign in or gated request by an
// account that is not approved.
func NewAccountNotActiveError(status UserStatus, reason string) *goerrors.Error {
	meta := map[string]any{"status": string(status)}
	if reason != "" {
		meta["reason"] = reason
	}
	return goerrors.New("account is "+string(status), goerrors.CategoryAuthz).
		WithCode(goerrors.CodeForbidden).
		WithTextCode(TextCodeAccountNotActive).
		WithMetadata(meta)
}

// NewValidationError reports malformed input
func NewValidationError(message string, meta map[string]any) *goerrors.Error {
	err := goerrors.New(message, goerrors.CategoryValidation).
		WithCode(goerrors.CodeBadRequest).
		WithTextCode(TextCodeValidation)
	if len(meta) > 0 {
		err = err.WithMetadata(meta)
	}
	return err
}

// NewNotFoundError reports a missing record of the given kind
func NewNotFoundError(kind, id string) *goerrors.Error {
	return goerrors.New(kind+" not found", goerrors.CategoryNotFound).
		WithCode(goerrors.CodeNotFound).
		WithTextCode(TextCodeNotFound).
		WithMetadata(map[string]any{"kind": kind, "id": id})
}

// HasTextCode reports whether err is a rich error with the given text code
func HasTextCode(err error, code string) bool {
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		return false
	}
	return richErr.TextCode == code
}

// HTTPStatus resolves the status code for an error
func HTTPStatus(err error) int {
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		return http.StatusInternalServerError
	}
	if richErr.Code > 0 {
		return richErr.Code
	}
	switch richErr.Category {
	case goerrors.CategoryAuth:
		return http.StatusUnauthorized
	case goerrors.CategoryAuthz:
		return http.StatusForbidden
	case goerrors.CategoryNotFound:
		return http.StatusNotFound
	case goerrors.CategoryValidation, goerrors.CategoryBadInput, goerrors.CategoryConflict:
		return http.StatusBadRequest
	case goerrors.CategoryRateLimit:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

func isNotFound(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, sql.ErrNoRows) || repository.IsRecordNotFound(err)
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") ||
		strings.Contains(msg, "duplicate key") ||
		strings.Contains(msg, "sqlstate 23505")
}
