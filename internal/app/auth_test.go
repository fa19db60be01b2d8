package app

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/odyssey-erp/odyssey-gl/internal/shared"
)

func hashToken(t *testing.T, secret string) string {
	t.Helper()
	h, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.MinCost)
	require.NoError(t, err)
	return string(h)
}

func TestParseAPITokens(t *testing.T) {
	auth, err := ParseAPITokens("7:" + hashToken(t, "s3cret") + ", 9:" + hashToken(t, "other"))
	require.NoError(t, err)
	require.True(t, auth.Enabled())

	actor, err := auth.Authenticate("7.s3cret")
	require.NoError(t, err)
	require.EqualValues(t, 7, actor)

	for _, bad := range []string{"7.wrong", "9.s3cret", "8.s3cret", "s3cret", "x.s3cret", "7."} {
		_, err := auth.Authenticate(bad)
		require.True(t, errors.Is(err, shared.ErrInvalidCredentials), bad)
	}

	_, err = ParseAPITokens("7:not-a-hash")
	require.Error(t, err)
	_, err = ParseAPITokens("seven:" + hashToken(t, "x"))
	require.Error(t, err)

	empty, err := ParseAPITokens("")
	require.NoError(t, err)
	require.False(t, empty.Enabled())
}

func TestAuthMiddlewareSetsActor(t *testing.T) {
	auth, err := ParseAPITokens("7:" + hashToken(t, "s3cret"))
	require.NoError(t, err)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	var seen int64 = -1
	h := auth.Middleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = shared.ActorFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/accounts", nil)
	req.Header.Set("Authorization", "Bearer 7.s3cret")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)
	require.EqualValues(t, 7, seen)

	for _, header := range []string{"", "Basic abc", "Bearer 7.nope"} {
		seen = -1
		req := httptest.NewRequest(http.MethodGet, "/api/v1/accounts", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		require.Equal(t, http.StatusUnauthorized, rr.Code, header)
		require.EqualValues(t, -1, seen)
		require.NotEmpty(t, rr.Header().Get("WWW-Authenticate"))
	}
}

func TestAuthMiddlewareDisabledRunsAsSystem(t *testing.T) {
	var auth *TokenAuthenticator
	called := false
	h := auth.Middleware(slog.Default())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		require.Zero(t, shared.ActorFromContext(r.Context()))
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	require.True(t, called)
}
