package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/buddyapp/buddy-client-go/internal/audit"
	apperrors "github.com/buddyapp/buddy-client-go/internal/errors"
	"github.com/buddyapp/buddy-client-go/internal/httputil"
)

type contextKey string

const EmailContextKey contextKey = "email"

// GetEmail returns the authenticated user's email, or "".
func GetEmail(ctx context.Context) string {
	if email, ok := ctx.Value(EmailContextKey).(string); ok {
		return email
	}
	return ""
}

// WithEmail returns ctx carrying email as the authenticated user.
func WithEmail(ctx context.Context, email string) context.Context {
	return context.WithValue(ctx, EmailContextKey, email)
}

// TokenVerifier resolves an access token to the email it was issued for.
type TokenVerifier interface {
	VerifyAccessToken(token string) (string, error)
}

type AuthMiddleware struct {
	verifier TokenVerifier
}

func NewAuthMiddleware(verifier TokenVerifier) *AuthMiddleware {
	return &AuthMiddleware{verifier: verifier}
}

func (m *AuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := BearerToken(r)
		if token == "" {
			httputil.WriteError(w, apperrors.Unauthorized("Missing authentication token"))
			return
		}

		email, err := m.verifier.VerifyAccessToken(token)
		if err != nil {
			log.Warn().Err(err).Msg("auth middleware: invalid token attempt")
			audit.LogFromRequest(r, audit.Event{
				Type:    audit.EventAuthFailure,
				Details: map[string]interface{}{"path": r.URL.Path},
			})
			if !apperrors.IsAppError(err) {
				err = apperrors.InvalidToken("Invalid token")
			}
			httputil.WriteError(w, err)
			return
		}

		next.ServeHTTP(w, r.WithContext(WithEmail(r.Context(), email)))
	})
}

// BearerToken returns the token of an "Authorization: Bearer" header, or "".
func BearerToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	}
	return ""
}
