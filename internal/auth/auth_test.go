package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const secret = "test-secret"

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if c, ok := FromContext(r.Context()); ok {
			w.Header().Set("X-Subject", c.Subject)
		}
		w.WriteHeader(http.StatusOK)
	})
}

func call(h http.Handler, bearer string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRequireAdmin(t *testing.T) {
	admin, err := Issue(secret, "ops@newsly.app", RoleAdmin, time.Hour)
	require.NoError(t, err)
	reader, err := Issue(secret, "reader@newsly.app", "reader", time.Hour)
	require.NoError(t, err)
	expired, err := Issue(secret, "ops@newsly.app", RoleAdmin, -time.Minute)
	require.NoError(t, err)
	foreign, err := Issue("other-secret", "ops@newsly.app", RoleAdmin, time.Hour)
	require.NoError(t, err)

	h := RequireAdmin(NewVerifier(secret))(okHandler())

	tests := []struct {
		name  string
		token string
		want  int
	}{
		{"admin", admin, http.StatusOK},
		{"missing", "", http.StatusUnauthorized},
		{"wrong role", reader, http.StatusForbidden},
		{"expired", expired, http.StatusUnauthorized},
		{"wrong key", foreign, http.StatusUnauthorized},
		{"garbage", "not.a.jwt", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := call(h, tt.token)
			assert.Equal(t, tt.want, rec.Code)
		})
	}

	rec := call(h, admin)
	assert.Equal(t, "ops@newsly.app", rec.Header().Get("X-Subject"))
}

func TestVerifyRejectsOtherAlgorithms(t *testing.T) {
	tok := jwt.NewWithClaims(jwt.SigningMethodHS512, Claims{
		Role:             RoleAdmin,
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
	})
	s, err := tok.SignedString([]byte(secret))
	require.NoError(t, err)

	_, err = NewVerifier(secret).Verify(s)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyWithoutSecret(t *testing.T) {
	tok, err := Issue(secret, "ops", RoleAdmin, time.Hour)
	require.NoError(t, err)
	_, err = NewVerifier("").Verify(tok)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestRequireCronSecret(t *testing.T) {
	tests := []struct {
		name    string
		secret  string
		require bool
		bearer  string
		want    int
	}{
		{"match", "s3cret", false, "s3cret", http.StatusOK},
		{"mismatch", "s3cret", false, "guess", http.StatusUnauthorized},
		{"missing header", "s3cret", false, "", http.StatusUnauthorized},
		{"unset and optional", "", false, "", http.StatusOK},
		{"unset but required", "", true, "anything", http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := call(RequireCronSecret(tt.secret, tt.require)(okHandler()), tt.bearer)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestBearerToken(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "bearer abc")
	assert.Equal(t, "abc", BearerToken(req))

	req.Header.Set("Authorization", "Basic abc")
	assert.Empty(t, BearerToken(req))
}

func TestRequireSubscriber(t *testing.T) {
	sign := LinkSigner(secret)
	require.NotNil(t, sign)
	link, err := sign("ada@example.com")
	require.NoError(t, err)
	admin, err := Issue(secret, "ops@newsly.app", RoleAdmin, time.Hour)
	require.NoError(t, err)
	h := RequireSubscriber(NewVerifier(secret))(okHandler())

	req := httptest.NewRequest(http.MethodPost, "/?token="+link, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ada@example.com", rec.Header().Get("X-Subject"))

	rec = call(h, link)
	assert.Equal(t, http.StatusOK, rec.Code, "header token")

	assert.Equal(t, http.StatusUnauthorized, call(h, "").Code)
	assert.Equal(t, http.StatusUnauthorized, call(h, "garbage").Code)
	assert.Equal(t, http.StatusForbidden, call(h, admin).Code)

	other, err := LinkSigner("other-secret")("ada@example.com")
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, call(h, other).Code)
}

func TestLinkSignerWithoutSecret(t *testing.T) {
	assert.Nil(t, LinkSigner(""))
}
