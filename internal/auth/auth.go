// Package auth guards the HTTP API. Admin routes require an HS256 JWT
// carrying role "admin"; the cron trigger requires the shared bearer
// secret. Subscriber self-service routes require a link token carrying
// role "subscriber", which newsletters embed in their footer links.
package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/newsly/newsly/internal/pkg/httputil"
	"github.com/newsly/newsly/internal/pkg/logger"
)

const (
	// RoleAdmin is the role claim admin endpoints require.
	RoleAdmin = "admin"

	// RoleSubscriber marks email link tokens. The subject is the
	// subscriber's email.
	RoleSubscriber = "subscriber"
)

// LinkTTL bounds how long a link in a sent newsletter keeps working.
const LinkTTL = 180 * 24 * time.Hour

var (
	// ErrMissingToken is returned when no bearer token is present.
	ErrMissingToken = errors.New("missing bearer token")

	// ErrInvalidToken is returned for a token that fails verification.
	ErrInvalidToken = errors.New("invalid token")
)

// Claims are the JWT claims Newsly issues to operators.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Verifier checks admin tokens signed with a shared HMAC secret.
type Verifier struct {
	secret []byte
}

// NewVerifier returns a Verifier for secret. An empty secret rejects
// every token.
func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

// Verify parses and validates a token string.
func (v *Verifier) Verify(token string) (*Claims, error) {
	if len(v.secret) == 0 {
		return nil, fmt.Errorf("%w: signing secret not configured", ErrInvalidToken)
	}
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !parsed.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// Issue signs a token for subject with role, valid for ttl.
func Issue(secret, subject, role string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// LinkSigner returns a function that signs subscriber link tokens with
// secret, or nil when secret is empty.
func LinkSigner(secret string) func(email string) (string, error) {
	if secret == "" {
		return nil
	}
	return func(email string) (string, error) {
		return Issue(secret, email, RoleSubscriber, LinkTTL)
	}
}

// BearerToken extracts the token from an "Authorization: Bearer" header.
func BearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

type ctxKey struct{}

// FromContext returns the claims RequireAdmin or RequireSubscriber stored
// on the request.
func FromContext(ctx context.Context) (*Claims, bool) {
	c, ok := ctx.Value(ctxKey{}).(*Claims)
	return c, ok
}

// RequireAdmin rejects requests without a valid admin token.
func RequireAdmin(v *Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := BearerToken(r)
			if token == "" {
				httputil.Unauthorized(w, ErrMissingToken.Error())
				return
			}
			claims, err := v.Verify(token)
			if err != nil {
				logger.Debug("auth: token rejected", "path", r.URL.Path, "error", err)
				httputil.Unauthorized(w, "invalid token")
				return
			}
			if claims.Role != RoleAdmin {
				httputil.Forbidden(w, "admin role required")
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, claims)))
		})
	}
}

// RequireSubscriber rejects requests without a valid link token, read from
// the "token" query parameter or the Authorization header.
func RequireSubscriber(v *Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := r.URL.Query().Get("token")
			if token == "" {
				token = BearerToken(r)
			}
			if token == "" {
				httputil.Unauthorized(w, "missing link token")
				return
			}
			claims, err := v.Verify(token)
			if err != nil || claims.Subject == "" {
				logger.Debug("auth: link token rejected", "path", r.URL.Path, "error", err)
				httputil.Unauthorized(w, "invalid link token")
				return
			}
			if claims.Role != RoleSubscriber {
				httputil.Forbidden(w, "subscriber link required")
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, claims)))
		})
	}
}

// RequireCronSecret guards the scheduled trigger. With no secret set the
// route is open unless require is true, in which case every call fails
// with 500 until one is configured.
func RequireCronSecret(secret string, require bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if secret == "" {
				if require {
					httputil.Error(w, http.StatusInternalServerError, "cron secret not configured")
					return
				}
				next.ServeHTTP(w, r)
				return
			}
			got := BearerToken(r)
			if subtle.ConstantTimeCompare([]byte(got), []byte(secret)) != 1 {
				httputil.Unauthorized(w, "unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
