package auth

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/zhaochy1990/auth/internal/httputil"
)

// Sentinel errors for the authentication service. Every failure a caller can
// observe is one of these; WriteError translates them into the wire taxonomy.
var (
	ErrInvalidCredentials       = errors.New("invalid credentials")
	ErrUserNotFound             = errors.New("user not found")
	ErrUserAlreadyExists        = errors.New("user already exists")
	ErrApplicationNotFound      = errors.New("application not found")
	ErrApplicationNotActive     = errors.New("application not active")
	ErrProviderNotSupported     = errors.New("provider not supported")
	ErrProviderNotConfigured    = errors.New("provider not configured for this application")
	ErrInvalidAuthorizationCode = errors.New("invalid authorization code")
	ErrAuthorizationCodeExpired = errors.New("authorization code expired")
	ErrInvalidRedirectURI       = errors.New("invalid redirect URI")
	ErrInvalidCodeVerifier      = errors.New("invalid PKCE code verifier")
	ErrInvalidToken             = errors.New("invalid or expired token")
	ErrTokenRevoked             = errors.New("token revoked")
	ErrRefreshTokenExpired      = errors.New("refresh token expired")
	ErrInvalidScope             = errors.New("invalid scope")
	ErrMissingClientID          = errors.New("missing X-Client-Id header")
	ErrUnauthorized             = errors.New("unauthorized")
	ErrForbidden                = errors.New("forbidden")
	ErrUserDisabled             = errors.New("user account is disabled")
	ErrAccountAlreadyLinked     = errors.New("account already linked")
	ErrAccountNotFound          = errors.New("account not found")
	ErrCannotUnlinkLastAccount  = errors.New("cannot unlink last account")
	ErrValidation               = errors.New("validation error")
	ErrProvider                 = errors.New("provider error")
)

// errorKind maps a sentinel onto its wire slug, HTTP status, and the
// user-facing message. Order matters: first match wins.
type errorKind struct {
	err     error
	status  int
	slug    string
	message string
}

var errorKinds = []errorKind{
	{ErrInvalidCredentials, http.StatusUnauthorized, "invalid_credentials", "Invalid credentials"},
	{ErrUserNotFound, http.StatusNotFound, "user_not_found", "User not found"},
	{ErrUserAlreadyExists, http.StatusConflict, "user_already_exists", "User already exists"},
	{ErrApplicationNotFound, http.StatusNotFound, "application_not_found", "Application not found"},
	{ErrApplicationNotActive, http.StatusForbidden, "application_not_active", "Application not active"},
	{ErrProviderNotSupported, http.StatusBadRequest, "provider_not_supported", "Provider not supported"},
	{ErrProviderNotConfigured, http.StatusBadRequest, "provider_not_configured", "Provider not configured for this application"},
	{ErrInvalidAuthorizationCode, http.StatusBadRequest, "invalid_authorization_code", "Invalid authorization code"},
	{ErrAuthorizationCodeExpired, http.StatusBadRequest, "authorization_code_expired", "Authorization code expired"},
	{ErrInvalidRedirectURI, http.StatusBadRequest, "invalid_redirect_uri", "Invalid redirect URI"},
	{ErrInvalidCodeVerifier, http.StatusBadRequest, "invalid_code_verifier", "Invalid PKCE code verifier"},
	{ErrInvalidToken, http.StatusUnauthorized, "invalid_token", "Invalid or expired token"},
	{ErrTokenRevoked, http.StatusUnauthorized, "token_revoked", "Token revoked"},
	{ErrRefreshTokenExpired, http.StatusUnauthorized, "refresh_token_expired", "Refresh token expired"},
	{ErrInvalidScope, http.StatusBadRequest, "invalid_scope", "Invalid scope"},
	{ErrMissingClientID, http.StatusBadRequest, "missing_client_id", "Missing X-Client-Id header"},
	{ErrUnauthorized, http.StatusUnauthorized, "unauthorized", "Unauthorized"},
	{ErrForbidden, http.StatusForbidden, "forbidden", "Forbidden"},
	{ErrUserDisabled, http.StatusForbidden, "user_disabled", "User account is disabled"},
	{ErrAccountAlreadyLinked, http.StatusConflict, "account_already_linked", "Account already linked"},
	{ErrAccountNotFound, http.StatusNotFound, "account_not_found", "Account not found"},
	{ErrCannotUnlinkLastAccount, http.StatusBadRequest, "cannot_unlink_last_account", "Cannot unlink last account"},
	{ErrValidation, http.StatusBadRequest, "bad_request", "Bad request"},
	{ErrProvider, http.StatusBadGateway, "provider_error", "External provider error"},
}

// WriteError classifies err against the sentinel taxonomy and writes the
// mapped response. Wrapped detail after a sentinel (fmt.Errorf("%w: ...")) is
// surfaced for provider_not_supported and bad_request, which carry dynamic
// text. Anything unclassified is logged and returned as a generic
// internal_error.
func WriteError(w http.ResponseWriter, logger *slog.Logger, err error) {
	for _, k := range errorKinds {
		if !errors.Is(err, k.err) {
			continue
		}
		msg := k.message
		switch k.err {
		case ErrValidation, ErrProviderNotSupported:
			if detail := strings.TrimPrefix(err.Error(), k.err.Error()+": "); detail != err.Error() {
				if k.err == ErrProviderNotSupported {
					msg = "Provider not supported: " + detail
				} else {
					msg = detail
				}
			}
		case ErrProvider:
			// The response body stays generic; the cause goes to the log.
			logger.Error("provider error", "error", err)
		}
		httputil.WriteError(w, k.status, k.slug, msg)
		return
	}

	logger.Error("internal error", "error", err)
	httputil.WriteError(w, http.StatusInternalServerError, "internal_error", "Internal server error")
}
