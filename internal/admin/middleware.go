package admin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/connectlist/contentgw/internal/logging"
	"github.com/connectlist/contentgw/internal/metrics"
)

type contextKey string

const sessionContextKey contextKey = "session"

// Session roles.
const (
	RoleAdmin = "admin"
	RoleUser  = "user"
)

// SessionClaims are the claims carried by a session token. Role mirrors the
// profile role of the signed-in user.
type SessionClaims struct {
	Role string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// SessionFromContext retrieves the authenticated session from the request context.
func SessionFromContext(ctx context.Context) (*SessionClaims, bool) {
	claims, ok := ctx.Value(sessionContextKey).(*SessionClaims)
	return claims, ok
}

// ParseSession validates an HS256 session token signed with secret. A token
// is valid iff its signature verifies and it carries an unexpired exp claim.
func ParseSession(token string, secret []byte) (*SessionClaims, error) {
	parsed, err := jwt.ParseWithClaims(token, &SessionClaims{}, func(*jwt.Token) (interface{}, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return nil, fmt.Errorf("failed to parse session token: %w", err)
	}
	claims, ok := parsed.Claims.(*SessionClaims)
	if !ok || !parsed.Valid {
		return nil, errors.New("invalid session claims")
	}
	return claims, nil
}

// SessionMiddleware returns a chi-compatible middleware that requires a valid
// bearer session token and stores its claims in the request context. An
// empty secret disables the check.
func SessionMiddleware(secret []byte) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if len(secret) == 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth := r.Header.Get("Authorization")
			if auth == "" || !strings.HasPrefix(auth, "Bearer ") {
				metrics.HTTPRejections.WithLabelValues("unauthorized").Inc()
				WriteError(w, http.StatusUnauthorized, "missing or invalid authorization header", "authentication_error", "missing_session")
				return
			}

			claims, err := ParseSession(strings.TrimPrefix(auth, "Bearer "), secret)
			if err != nil {
				metrics.HTTPRejections.WithLabelValues("unauthorized").Inc()
				logging.FromContext(r.Context()).Debug("session rejected", "error", err.Error())
				code := "invalid_session"
				if errors.Is(err, jwt.ErrTokenExpired) {
					code = "session_expired"
				}
				WriteError(w, http.StatusUnauthorized, "invalid or expired session", "authentication_error", code)
				return
			}

			ctx := context.WithValue(r.Context(), sessionContextKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole returns a middleware that checks whether the session carries
// one of the given roles.
func RequireRole(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := SessionFromContext(r.Context())
			if !ok {
				metrics.HTTPRejections.WithLabelValues("unauthorized").Inc()
				WriteError(w, http.StatusUnauthorized, "authentication required", "authentication_error", "authentication_required")
				return
			}

			for _, role := range roles {
				if claims.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}

			metrics.HTTPRejections.WithLabelValues("forbidden").Inc()
			WriteError(w, http.StatusForbidden, "insufficient permissions", "permission_error", "insufficient_role")
		})
	}
}

// WriteError writes the unified JSON error response:
//
//	{"error":{"message":"...","type":"...","code":"..."}}
//
// errType and code may be empty; defaults are derived from the HTTP status.
func WriteError(w http.ResponseWriter, status int, message, errType, code string) {
	if errType == "" {
		errType = defaultErrType(status)
	}
	if code == "" {
		code = errType
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"error": map[string]string{
			"message": message,
			"type":    errType,
			"code":    code,
		},
	})
}

func defaultErrType(status int) string {
	switch {
	case status == http.StatusUnauthorized:
		return "authentication_error"
	case status == http.StatusForbidden:
		return "permission_error"
	case status == http.StatusNotFound:
		return "not_found_error"
	case status == http.StatusTooManyRequests:
		return "rate_limit_error"
	case status >= 400 && status < 500:
		return "invalid_request_error"
	case status == http.StatusServiceUnavailable:
		return "unavailable_error"
	default:
		return "server_error"
	}
}
