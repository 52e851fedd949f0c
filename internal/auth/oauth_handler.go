package auth

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/zhaochy1990/auth/internal/httputil"
)

// OAuthHandler serves the OAuth 2.0 protocol endpoints mounted under /oauth.
// Every endpoint authenticates the calling application by HTTP Basic
// client_id:client_secret.
type OAuthHandler struct {
	svc    *Service
	logger *slog.Logger
}

// NewOAuthHandler creates the OAuth handler.
func NewOAuthHandler(svc *Service, logger *slog.Logger) *OAuthHandler {
	return &OAuthHandler{svc: svc, logger: logger}
}

// Routes returns a chi.Router with the OAuth endpoints mounted.
func (h *OAuthHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(AuthenticatedApp(h.svc))
	r.Post("/token", h.handleToken)
	r.Post("/revoke", h.handleRevoke)
	r.Post("/introspect", h.handleIntrospect)
	return r
}

func (h *OAuthHandler) handleToken(w http.ResponseWriter, r *http.Request) {
	var req TokenRequest
	if !httputil.DecodeJSON(w, r, &req) {
		return
	}

	resp, err := h.svc.Token(r.Context(), AuthedAppFromContext(r.Context()), &req)
	if err != nil {
		WriteError(w, h.logger, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

type revokeRequest struct {
	Token string `json:"token"`
}

// handleRevoke revokes a refresh token. Per RFC 7009 §2.2 the response is
// 200 regardless of whether the token was known; revocation must not be an
// oracle for token validity.
func (h *OAuthHandler) handleRevoke(w http.ResponseWriter, r *http.Request) {
	var req revokeRequest
	if !httputil.DecodeJSON(w, r, &req) {
		return
	}

	if err := h.svc.RevokeRefreshToken(r.Context(), req.Token); err != nil && !errors.Is(err, ErrInvalidToken) {
		h.logger.Error("revoking token", "error", err)
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{})
}

func (h *OAuthHandler) handleIntrospect(w http.ResponseWriter, r *http.Request) {
	var req revokeRequest
	if !httputil.DecodeJSON(w, r, &req) {
		return
	}
	httputil.WriteJSON(w, http.StatusOK, h.svc.Introspect(req.Token))
}
