package app

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/odyssey-erp/odyssey-gl/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-gl/internal/shared"
)

// TokenAuthenticator verifies bearer tokens of the form "<actor id>.<secret>" against
// bcrypt hashes keyed by actor id.
type TokenAuthenticator struct {
	hashes map[int64][]byte
}

// ParseAPITokens reads the API_TOKENS format "7:<bcrypt hash>,9:<bcrypt hash>".
func ParseAPITokens(raw string) (*TokenAuthenticator, error) {
	auth := &TokenAuthenticator{hashes: map[int64][]byte{}}
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		idStr, hash, ok := strings.Cut(part, ":")
		if !ok {
			return nil, fmt.Errorf("api token %q: expected <actor id>:<bcrypt hash>", part)
		}
		id, err := strconv.ParseInt(strings.TrimSpace(idStr), 10, 64)
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("api token %q: invalid actor id", part)
		}
		if _, err := bcrypt.Cost([]byte(hash)); err != nil {
			return nil, fmt.Errorf("api token for actor %d: %w", id, err)
		}
		auth.hashes[id] = []byte(hash)
	}
	return auth, nil
}

// Enabled reports whether any token is configured.
func (a *TokenAuthenticator) Enabled() bool {
	return a != nil && len(a.hashes) > 0
}

// Authenticate returns the actor owning token.
func (a *TokenAuthenticator) Authenticate(token string) (int64, error) {
	if a == nil {
		return 0, shared.ErrInvalidCredentials
	}
	idStr, secret, ok := strings.Cut(token, ".")
	if !ok || secret == "" {
		return 0, shared.ErrInvalidCredentials
	}
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		return 0, shared.ErrInvalidCredentials
	}
	hash, ok := a.hashes[id]
	if !ok {
		return 0, shared.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword(hash, []byte(secret)); err != nil {
		return 0, shared.ErrInvalidCredentials
	}
	return id, nil
}

// Middleware resolves the actor of every request. Without configured tokens requests run
// as the system actor (0).
func (a *TokenAuthenticator) Middleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !a.Enabled() {
				next.ServeHTTP(w, r)
				return
			}
			scheme, token, _ := strings.Cut(r.Header.Get("Authorization"), " ")
			if !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
				w.Header().Set("WWW-Authenticate", `Bearer realm="odyssey-gl"`)
				httpx.RespondError(w, fmt.Errorf("%w: bearer token required", httpx.ErrUnauthorized))
				return
			}
			actor, err := a.Authenticate(strings.TrimSpace(token))
			if err != nil {
				logger.Warn("rejected api token", slog.String("path", r.URL.Path), slog.String("remote", r.RemoteAddr))
				w.Header().Set("WWW-Authenticate", `Bearer realm="odyssey-gl", error="invalid_token"`)
				httpx.RespondError(w, fmt.Errorf("%w: %v", httpx.ErrUnauthorized, err))
				return
			}
			next.ServeHTTP(w, r.WithContext(shared.ContextWithActor(r.Context(), actor)))
		})
	}
}
