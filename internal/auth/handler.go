package auth

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/zhaochy1990/auth/internal/httputil"
)

// Handler serves the first-party auth endpoints mounted under /api/auth.
// Every endpoint except logout identifies the relying application through
// the X-Client-Id header; logout identifies the caller by bearer token.
type Handler struct {
	svc    *Service
	logger *slog.Logger
}

// NewHandler creates the auth handler.
func NewHandler(svc *Service, logger *slog.Logger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

// Routes returns a chi.Router with the auth endpoints mounted.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Group(func(r chi.Router) {
		r.Use(ClientApp(h.svc))
		r.Post("/register", h.handleRegister)
		r.Post("/login", h.handleLogin)
		r.Post("/provider/{provider_id}/login", h.handleProviderLogin)
		r.Post("/refresh", h.handleRefresh)
	})
	r.With(RequireAuth(h.svc)).Post("/logout", h.handleLogout)
	return r
}

type registerRequest struct {
	Email    string  `json:"email"`
	Password string  `json:"password"`
	Name     *string `json:"name"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type providerLoginRequest struct {
	Credential json.RawMessage `json:"credential"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !httputil.DecodeJSON(w, r, &req) {
		return
	}

	result, err := h.svc.Register(r.Context(), ClientAppFromContext(r.Context()), req.Email, req.Password, req.Name)
	if err != nil {
		WriteError(w, h.logger, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, result)
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !httputil.DecodeJSON(w, r, &req) {
		return
	}

	pair, err := h.svc.Login(r.Context(), ClientAppFromContext(r.Context()), req.Email, req.Password)
	if err != nil {
		WriteError(w, h.logger, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, pair)
}

func (h *Handler) handleProviderLogin(w http.ResponseWriter, r *http.Request) {
	providerID := chi.URLParam(r, "provider_id")
	var req providerLoginRequest
	if !httputil.DecodeJSON(w, r, &req) {
		return
	}
	if len(req.Credential) == 0 {
		httputil.WriteError(w, http.StatusBadRequest, "bad_request", "Missing 'credential' field")
		return
	}

	pair, err := h.svc.ProviderLogin(r.Context(), ClientAppFromContext(r.Context()), providerID, req.Credential)
	if err != nil {
		WriteError(w, h.logger, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, pair)
}

func (h *Handler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if !httputil.DecodeJSON(w, r, &req) {
		return
	}
	if req.RefreshToken == "" {
		httputil.WriteError(w, http.StatusBadRequest, "bad_request", "Missing 'refresh_token' field")
		return
	}

	pair, err := h.svc.Refresh(r.Context(), ClientAppFromContext(r.Context()), req.RefreshToken)
	if err != nil {
		WriteError(w, h.logger, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, pair)
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if !httputil.DecodeJSON(w, r, &req) {
		return
	}
	if req.RefreshToken == "" {
		httputil.WriteError(w, http.StatusBadRequest, "bad_request", "Missing 'refresh_token' field")
		return
	}

	if err := h.svc.Logout(r.Context(), req.RefreshToken); err != nil {
		WriteError(w, h.logger, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
