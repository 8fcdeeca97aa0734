// Copyright (c) 2026 Pressdeck. All rights reserved.

package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/pressdeck/pressdeck/internal/platform/apperr"
	"github.com/pressdeck/pressdeck/internal/platform/constants"
	"github.com/pressdeck/pressdeck/internal/platform/ctxutil"
	"github.com/pressdeck/pressdeck/internal/platform/respond"
	"github.com/pressdeck/pressdeck/internal/platform/sec"
)

// SessionValidator defines the interface needed to validate session tokens
// in middleware.
//
// # Why an interface?
//
// Defining SessionValidator here decouples the middleware from the session
// service implementation, allowing us to inject mocks during unit testing.
// The implementation performs the full check: signature, absolute expiry,
// revocation, and idle timeout — and records activity on success.
type SessionValidator interface {
	Validate(ctx context.Context, token string) (*sec.SessionClaims, error)
}

// Authenticate extracts and validates the session token from the request.
//
// # Flow
//  1. Look for the session cookie, falling back to 'Authorization: Bearer'.
//  2. If absent, the request proceeds as anonymous.
//  3. If present, validate via [SessionValidator]. This is the
//     revocation-sensitive path: a revoked or idle-expired session is
//     rejected here even if the JWT itself is still cryptographically valid.
//  4. Inject [*sec.SessionClaims] into the request context for downstream use.
func Authenticate(validator SessionValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			token := extractSessionToken(request)

			// ── 1. Anonymous Access ───────────────────────────────────────────
			if token == "" {
				next.ServeHTTP(writer, request)
				return
			}

			// ── 2. Session Validation ─────────────────────────────────────────
			claims, err := validator.Validate(request.Context(), token)
			if err != nil {
				respond.Error(writer, request, err)
				return
			}

			// ── 3. Context Injection ──────────────────────────────────────────
			ctx := ctxutil.WithAuthUser(request.Context(), claims)
			next.ServeHTTP(writer, request.WithContext(ctx))
		})
	}
}

// RequireAuth blocks requests that are not authenticated.
//
// # Usage
//
// Must be registered in the router AFTER [Authenticate].
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		claims := ctxutil.GetAuthUser(request.Context())
		if claims == nil {
			respond.Error(writer, request, apperr.Unauthorized("Authentication required"))
			return
		}
		next.ServeHTTP(writer, request)
	})
}

// RequireRole blocks requests if the authenticated user doesn't have the required role.
//
// # Usage
//
// Must be registered in the router AFTER [Authenticate]. It automatically implies
// [RequireAuth] so you don't need to mount both.
func RequireRole(role sec.UserRole) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			claims := ctxutil.GetAuthUser(request.Context())

			// ── 1. Authentication Check ───────────────────────────────────────
			if claims == nil {
				respond.Error(writer, request, apperr.Unauthorized("Authentication required"))
				return
			}

			// ── 2. Authorization Check ────────────────────────────────────────
			userRole := sec.UserRole(claims.Role)
			if !userRole.AtLeast(role) {
				respond.Error(writer, request, apperr.Forbidden("Insufficient permissions"))
				return
			}

			next.ServeHTTP(writer, request)
		})
	}
}

// extractSessionToken pulls the bearer token from the session cookie or,
// for API clients, the Authorization header.
func extractSessionToken(request *http.Request) string {
	if cookie, err := request.Cookie(constants.SessionCookieName); err == nil && cookie.Value != "" {
		return cookie.Value
	}

	authHeader := request.Header.Get("Authorization")
	if authHeader == "" {
		return ""
	}

	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return ""
	}
	return parts[1]
}
