package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	apperrors "github.com/utafrali/VideoTube/pkg/errors"
	"github.com/utafrali/VideoTube/pkg/httputil"
	"github.com/utafrali/VideoTube/pkg/logger"
)

type contextKeyType string

const identityKey contextKeyType = "identity"

// AccessTokenCookie is the cookie that carries the access token.
const AccessTokenCookie = "accessToken"

// Identity is the authenticated caller resolved from an access token.
type Identity struct {
	UserID   string `json:"user_id"`
	Email    string `json:"email"`
	Username string `json:"username"`
	FullName string `json:"full_name"`
}

// IdentityResolver turns a raw access token into an Identity. Implementations
// verify the token and confirm the user still exists. Returned errors should
// be *apperrors.AppError values; anything else is reported as unauthorized.
type IdentityResolver func(ctx context.Context, token string) (*Identity, error)

// Auth rejects requests that do not carry a valid access token. The token is
// read from the accessToken cookie first and then from a Bearer header.
func Auth(resolve IdentityResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := ExtractToken(r)
			if token == "" {
				authFailuresTotal.WithLabelValues("missing_token").Inc()
				httputil.WriteError(w, r, apperrors.Unauthorized("unauthorized request"), nil)
				return
			}

			id, err := resolve(r.Context(), token)
			if err != nil {
				authFailuresTotal.WithLabelValues(failureReason(err)).Inc()
				httputil.WriteError(w, r, asAuthError(err), nil)
				return
			}

			next.ServeHTTP(w, r.WithContext(withIdentity(r.Context(), id)))
		})
	}
}

// OptionalAuth attaches an Identity when a valid token is present and lets
// anonymous or invalid-token requests through untouched.
func OptionalAuth(resolve IdentityResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := ExtractToken(r)
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}

			id, err := resolve(r.Context(), token)
			if err != nil {
				logger.FromContext(r.Context()).DebugContext(r.Context(), "ignoring invalid optional token",
					slog.String("error", err.Error()),
				)
				next.ServeHTTP(w, r)
				return
			}

			next.ServeHTTP(w, r.WithContext(withIdentity(r.Context(), id)))
		})
	}
}

// ExtractToken returns the access token from the cookie or the
// Authorization header, or "" when neither carries one.
func ExtractToken(r *http.Request) string {
	if c, err := r.Cookie(AccessTokenCookie); err == nil && c.Value != "" {
		return c.Value
	}

	authHeader := r.Header.Get("Authorization")
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// IdentityFromContext returns the authenticated caller, if any.
func IdentityFromContext(ctx context.Context) (*Identity, bool) {
	id, ok := ctx.Value(identityKey).(*Identity)
	return id, ok && id != nil
}

// UserIDFromContext extracts the authenticated user ID from the request context.
func UserIDFromContext(ctx context.Context) string {
	if id, ok := IdentityFromContext(ctx); ok {
		return id.UserID
	}
	return ""
}

// WithIdentity stores id in ctx. Exposed for handler tests.
func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return withIdentity(ctx, id)
}

func withIdentity(ctx context.Context, id *Identity) context.Context {
	ctx = context.WithValue(ctx, identityKey, id)
	trace.SpanFromContext(ctx).SetAttributes(attribute.String("enduser.id", id.UserID))
	ctx = logger.WithUserID(ctx, id.UserID)
	// Re-derive the request logger so later log lines carry user_id.
	l := logger.FromContext(ctx)
	if l != slog.Default() {
		ctx = logger.NewContext(ctx, l.With(slog.String("user_id", id.UserID)))
	}
	return ctx
}

func asAuthError(err error) error {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) && appErr.Status == http.StatusUnauthorized {
		return appErr
	}
	if errors.As(err, &appErr) && appErr.Status >= http.StatusInternalServerError {
		return appErr
	}
	return apperrors.Unauthorized("invalid access token")
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, apperrors.ErrInvalidToken):
		return "invalid_token"
	case errors.Is(err, apperrors.ErrUnauthorized):
		return "unknown_user"
	default:
		return "error"
	}
}
