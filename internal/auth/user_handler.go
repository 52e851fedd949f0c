package auth

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/zhaochy1990/auth/internal/httputil"
)

// UserHandler serves the self-service profile and account endpoints mounted
// under /api/users. Every endpoint requires a bearer access token.
type UserHandler struct {
	svc    *Service
	logger *slog.Logger
}

// NewUserHandler creates the user handler.
func NewUserHandler(svc *Service, logger *slog.Logger) *UserHandler {
	return &UserHandler{svc: svc, logger: logger}
}

// Routes returns a chi.Router with the user endpoints mounted.
func (h *UserHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(RequireAuth(h.svc))
	r.Get("/me", h.handleMe)
	r.Patch("/me", h.handleUpdateMe)
	r.Get("/me/accounts", h.handleListAccounts)
	r.Post("/me/accounts/{provider_id}/link", h.handleLinkAccount)
	r.Delete("/me/accounts/{provider_id}", h.handleUnlinkAccount)
	return r
}

func (h *UserHandler) handleMe(w http.ResponseWriter, r *http.Request) {
	claims := ClaimsFromContext(r.Context())
	user, err := h.svc.UserByID(r.Context(), claims.Subject)
	if err != nil {
		WriteError(w, h.logger, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, user)
}

type updateProfileRequest struct {
	Name      *string `json:"name"`
	AvatarURL *string `json:"avatar_url"`
}

func (h *UserHandler) handleUpdateMe(w http.ResponseWriter, r *http.Request) {
	var req updateProfileRequest
	if !httputil.DecodeJSON(w, r, &req) {
		return
	}

	claims := ClaimsFromContext(r.Context())
	user, err := h.svc.UpdateProfile(r.Context(), claims.Subject, req.Name, req.AvatarURL)
	if err != nil {
		WriteError(w, h.logger, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, user)
}

func (h *UserHandler) handleListAccounts(w http.ResponseWriter, r *http.Request) {
	claims := ClaimsFromContext(r.Context())
	accounts, err := h.svc.ListAccounts(r.Context(), claims.Subject)
	if err != nil {
		WriteError(w, h.logger, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, accounts)
}

type linkAccountRequest struct {
	Credential json.RawMessage `json:"credential"`
}

// handleLinkAccount binds an additional provider identity to the caller. The
// provider is resolved against the application the access token was issued
// through (the aud claim).
func (h *UserHandler) handleLinkAccount(w http.ResponseWriter, r *http.Request) {
	providerID := chi.URLParam(r, "provider_id")
	var req linkAccountRequest
	if !httputil.DecodeJSON(w, r, &req) {
		return
	}
	if len(req.Credential) == 0 {
		httputil.WriteError(w, http.StatusBadRequest, "bad_request", "Missing 'credential' field")
		return
	}

	claims := ClaimsFromContext(r.Context())
	account, err := h.svc.LinkAccount(r.Context(), claims.Subject, claims.Audience[0], providerID, req.Credential)
	if err != nil {
		WriteError(w, h.logger, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, account)
}

func (h *UserHandler) handleUnlinkAccount(w http.ResponseWriter, r *http.Request) {
	providerID := chi.URLParam(r, "provider_id")
	claims := ClaimsFromContext(r.Context())

	if err := h.svc.UnlinkAccount(r.Context(), claims.Subject, providerID); err != nil {
		WriteError(w, h.logger, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "unlinked"})
}
