package bank

import (
	"context"
	"errors"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"
	"github.com/goliatone/go-router"

	"github.com/goliatone/go-bank/middleware/sessionware"
)

// RouteAuthenticator builds the session middlewares and renders their
// failures as JSON errors.
type RouteAuthenticator struct {
	auth         SessionResolver
	cfg          Config
	Logger       Logger
	ErrorHandler func(c router.Context, err error) error
}

// NewHTTPAuthenticator creates the route guards for auther
func NewHTTPAuthenticator(auther SessionResolver, cfg Config) *RouteAuthenticator {
	if cfg == nil {
		cfg = DefaultOptions()
	}

	a := &RouteAuthenticator{
		auth:   auther,
		cfg:    cfg,
		Logger: defLogger{},
	}

	a.ErrorHandler = a.defaultErrHandler

	return a
}

// WithLogger overrides the logger used for rejected requests
func (a *RouteAuthenticator) WithLogger(logger Logger) *RouteAuthenticator {
	a.Logger = resolveLogger(logger)
	return a
}

// ProtectedRoute requires a live session
func (a *RouteAuthenticator) ProtectedRoute() router.MiddlewareFunc {
	return a.sessionRoute()
}

// AdminRoute requires a live session owned by the admin
func (a *RouteAuthenticator) AdminRoute() router.MiddlewareFunc {
	return a.sessionRoute(sessionware.RequireAdmin(ErrForbidden))
}

// ApprovedRoute requires a live session owned by an approved account or
// the admin
func (a *RouteAuthenticator) ApprovedRoute() router.MiddlewareFunc {
	return a.sessionRoute(requireApproved)
}

func (a *RouteAuthenticator) sessionRoute(authorizers ...sessionware.Authorizer) router.MiddlewareFunc {
	return sessionware.New(sessionware.Config{
		ErrorHandler:    a.handleError,
		Resolver:        a.resolve,
		ContextKey:      a.cfg.GetContextKey(),
		TokenLookup:     a.cfg.GetTokenLookup(),
		AuthScheme:      a.cfg.GetAuthScheme(),
		Authorizers:     authorizers,
		ContextEnricher: enrichContext,
	})
}

func (a *RouteAuthenticator) handleError(c router.Context, err error) error {
	return a.ErrorHandler(c, err)
}

func (a *RouteAuthenticator) resolve(ctx context.Context, token string) (sessionware.Principal, error) {
	principal, err := a.auth.Resolve(ctx, token)
	if err != nil {
		sessionRejectionsTotal.WithLabelValues(rejectionReason(err)).Inc()
		return nil, err
	}
	return principal, nil
}

func (a *RouteAuthenticator) defaultErrHandler(c router.Context, err error) error {
	richErr := AsRichError(err)

	a.Logger.Info(
		"Middleware error handler",
		"error", richErr.Message,
		"text_code", richErr.TextCode,
		"path", c.OriginalURL(),
		"details", print.MaybePrettyJSON(richErr.Metadata),
	)

	return WriteError(c, richErr)
}

func requireApproved(_ router.Context, p sessionware.Principal) error {
	principal, ok := p.(*Principal)
	if !ok || principal.User == nil {
		return ErrUnauthenticated
	}
	if principal.IsApproved() {
		return nil
	}
	return NewAccountNotActiveError(principal.User.Status, principal.User.StatusReason)
}

func enrichContext(c context.Context, p sessionware.Principal) context.Context {
	if principal, ok := p.(*Principal); ok {
		return WithContext(c, principal)
	}
	return c
}

func rejectionReason(err error) string {
	switch {
	case HasTextCode(err, TextCodeSessionExpired):
		return "expired"
	case HasTextCode(err, TextCodeInvalidSession):
		return "invalid"
	case HasTextCode(err, TextCodeUnauthenticated):
		return "unauthenticated"
	default:
		return "error"
	}
}

// ErrorBody is the JSON shape of every error response
type ErrorBody struct {
	TextCode   string         `json:"text_code"`
	Message    string         `json:"message"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Validation any            `json:"validation,omitempty"`
}

// ErrorResponse wraps ErrorBody under an "error" key
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

// AsRichError maps any error to the package taxonomy. A malformed or
// missing bearer token counts as unauthenticated.
func AsRichError(err error) *goerrors.Error {
	if errors.Is(err, sessionware.ErrMissingOrMalformed) {
		return ErrUnauthenticated
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return richErr
	}

	return goerrors.Wrap(err, goerrors.CategoryInternal, "An unexpected server error occurred").
		WithCode(goerrors.CodeInternal).
		WithTextCode(TextCodeInternal)
}

// WriteError renders err as an ErrorResponse with its HTTP status
func WriteError(c router.Context, err error) error {
	richErr := AsRichError(err)

	body := ErrorBody{
		TextCode: richErr.TextCode,
		Message:  richErr.Message,
		Metadata: richErr.Metadata,
	}
	if body.TextCode == "" {
		body.TextCode = TextCodeInternal
	}
	if v := richErr.ValidationMap(); len(v) > 0 {
		body.Validation = v
	}

	return c.JSON(HTTPStatus(richErr), ErrorResponse{Error: body})
}
