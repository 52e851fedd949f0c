package server

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/zhaochy1990/auth/internal/auth"
	"github.com/zhaochy1990/auth/internal/httputil"
)

type createApplicationRequest struct {
	Name          string   `json:"name"`
	RedirectURIs  []string `json:"redirect_uris"`
	AllowedScopes []string `json:"allowed_scopes"`
}

// applicationWithSecret is the create/rotate response: the application plus
// the plaintext client secret, shown exactly once.
type applicationWithSecret struct {
	*auth.Application
	ClientSecret string `json:"client_secret"`
}

func (s *Server) handleCreateApplication(w http.ResponseWriter, r *http.Request) {
	var req createApplicationRequest
	if !httputil.DecodeJSON(w, r, &req) {
		return
	}

	app, secret, err := s.authSvc.CreateApplication(r.Context(), req.Name, req.RedirectURIs, req.AllowedScopes)
	if err != nil {
		auth.WriteError(w, s.logger, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, applicationWithSecret{Application: app, ClientSecret: secret})
}

func (s *Server) handleListApplications(w http.ResponseWriter, r *http.Request) {
	apps, err := s.authSvc.ListApplications(r.Context())
	if err != nil {
		auth.WriteError(w, s.logger, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, apps)
}

// appIDParam extracts the {id} route param, rejecting anything that is not
// a UUID before it reaches the uuid-typed query. A malformed id reads the
// same as an unknown one.
func (s *Server) appIDParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := chi.URLParam(r, "id")
	if !httputil.IsValidUUID(id) {
		auth.WriteError(w, s.logger, auth.ErrApplicationNotFound)
		return "", false
	}
	return id, true
}

func (s *Server) handleUpdateApplication(w http.ResponseWriter, r *http.Request) {
	id, ok := s.appIDParam(w, r)
	if !ok {
		return
	}
	var params auth.UpdateApplicationParams
	if !httputil.DecodeJSON(w, r, &params) {
		return
	}

	app, err := s.authSvc.UpdateApplication(r.Context(), id, params)
	if err != nil {
		auth.WriteError(w, s.logger, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, app)
}

func (s *Server) handleRotateSecret(w http.ResponseWriter, r *http.Request) {
	id, ok := s.appIDParam(w, r)
	if !ok {
		return
	}
	app, secret, err := s.authSvc.RotateClientSecret(r.Context(), id)
	if err != nil {
		auth.WriteError(w, s.logger, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, applicationWithSecret{Application: app, ClientSecret: secret})
}

type addProviderRequest struct {
	ProviderID string          `json:"provider_id"`
	Config     json.RawMessage `json:"config"`
}

func (s *Server) handleAddProvider(w http.ResponseWriter, r *http.Request) {
	id, ok := s.appIDParam(w, r)
	if !ok {
		return
	}
	var req addProviderRequest
	if !httputil.DecodeJSON(w, r, &req) {
		return
	}
	if req.ProviderID == "" {
		httputil.WriteError(w, http.StatusBadRequest, "bad_request", "Missing 'provider_id' field")
		return
	}

	provider, err := s.authSvc.AddProvider(r.Context(), id, req.ProviderID, req.Config)
	if err != nil {
		auth.WriteError(w, s.logger, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, provider)
}

func (s *Server) handleListProviders(w http.ResponseWriter, r *http.Request) {
	id, ok := s.appIDParam(w, r)
	if !ok {
		return
	}
	providers, err := s.authSvc.ListProviders(r.Context(), id)
	if err != nil {
		auth.WriteError(w, s.logger, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, providers)
}

func (s *Server) handleRemoveProvider(w http.ResponseWriter, r *http.Request) {
	id, ok := s.appIDParam(w, r)
	if !ok {
		return
	}
	err := s.authSvc.RemoveProvider(r.Context(), id, chi.URLParam(r, "provider_id"))
	if err != nil {
		auth.WriteError(w, s.logger, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}
