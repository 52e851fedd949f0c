package auth

import (
	"context"
	"errors"
	"net/http"

	"github.com/zhaochy1990/auth/internal/httputil"
)

type claimsCtxKey struct{}
type clientAppCtxKey struct{}
type authedAppCtxKey struct{}

// ClientApp returns middleware that resolves the X-Client-Id header to an
// active application. First-party auth endpoints identify the relying
// application this way without proof of possession.
func ClientApp(svc *Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			clientID := r.Header.Get("X-Client-Id")
			if clientID == "" {
				WriteError(w, svc.logger, ErrMissingClientID)
				return
			}

			app, err := svc.ApplicationByClientID(r.Context(), clientID)
			if err != nil {
				WriteError(w, svc.logger, err)
				return
			}
			if !app.IsActive {
				WriteError(w, svc.logger, ErrApplicationNotActive)
				return
			}

			ctx := context.WithValue(r.Context(), clientAppCtxKey{}, app)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// AuthenticatedApp returns middleware that authenticates an application by
// HTTP Basic client_id:client_secret. OAuth endpoints require it.
func AuthenticatedApp(svc *Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			clientID, clientSecret, ok := r.BasicAuth()
			if !ok {
				WriteError(w, svc.logger, ErrInvalidCredentials)
				return
			}

			app, err := svc.ApplicationByClientID(r.Context(), clientID)
			if err != nil {
				// An unknown client_id reads the same as a bad secret:
				// Basic auth failures never reveal whether the client exists.
				if errors.Is(err, ErrApplicationNotFound) {
					err = ErrInvalidCredentials
				}
				WriteError(w, svc.logger, err)
				return
			}
			if !app.IsActive {
				WriteError(w, svc.logger, ErrApplicationNotActive)
				return
			}
			if !VerifyClientSecret(clientSecret, app.ClientSecretHash) {
				WriteError(w, svc.logger, ErrInvalidCredentials)
				return
			}

			ctx := context.WithValue(r.Context(), authedAppCtxKey{}, app)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAuth returns middleware that rejects requests without a valid
// Bearer access token and attaches the verified claims to the context.
func RequireAuth(svc *Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := httputil.ExtractBearerToken(r)
			if !ok {
				WriteError(w, svc.logger, ErrUnauthorized)
				return
			}

			claims, err := svc.jwt.VerifyAccessToken(token)
			if err != nil {
				WriteError(w, svc.logger, ErrUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), claimsCtxKey{}, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAdmin returns middleware that rejects authenticated users whose
// token lacks the admin role. It must run after RequireAuth.
func RequireAdmin(svc *Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := ClaimsFromContext(r.Context())
			if claims == nil {
				WriteError(w, svc.logger, ErrUnauthorized)
				return
			}
			if claims.Role != "admin" {
				WriteError(w, svc.logger, ErrForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ClaimsFromContext retrieves verified access token claims from the request
// context. Returns nil if no claims are present.
func ClaimsFromContext(ctx context.Context) *Claims {
	claims, _ := ctx.Value(claimsCtxKey{}).(*Claims)
	return claims
}

// ContextWithClaims returns a new context with the given claims attached.
// This is primarily useful for testing.
func ContextWithClaims(ctx context.Context, claims *Claims) context.Context {
	return context.WithValue(ctx, claimsCtxKey{}, claims)
}

// ClientAppFromContext retrieves the application resolved by the ClientApp
// middleware. Returns nil if absent.
func ClientAppFromContext(ctx context.Context) *Application {
	app, _ := ctx.Value(clientAppCtxKey{}).(*Application)
	return app
}

// ContextWithClientApp returns a new context with the given application
// attached as the X-Client-Id identity.
func ContextWithClientApp(ctx context.Context, app *Application) context.Context {
	return context.WithValue(ctx, clientAppCtxKey{}, app)
}

// AuthedAppFromContext retrieves the application authenticated by the
// AuthenticatedApp middleware. Returns nil if absent.
func AuthedAppFromContext(ctx context.Context) *Application {
	app, _ := ctx.Value(authedAppCtxKey{}).(*Application)
	return app
}

// ContextWithAuthedApp returns a new context with the given application
// attached as the Basic-auth identity.
func ContextWithAuthedApp(ctx context.Context, app *Application) context.Context {
	return context.WithValue(ctx, authedAppCtxKey{}, app)
}
