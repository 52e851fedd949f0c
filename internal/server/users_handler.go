package server

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/zhaochy1990/auth/internal/auth"
	"github.com/zhaochy1990/auth/internal/httputil"
)

type listUsersResponse struct {
	Users   []auth.User `json:"users"`
	Total   int64       `json:"total"`
	Page    int         `json:"page"`
	PerPage int         `json:"per_page"`
}

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	perPage, _ := strconv.Atoi(q.Get("per_page"))
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 20
	}
	if perPage > 100 {
		perPage = 100
	}

	users, total, err := s.authSvc.ListUsers(r.Context(), auth.ListUsersParams{
		Page:    page,
		PerPage: perPage,
		Search:  q.Get("search"),
	})
	if err != nil {
		auth.WriteError(w, s.logger, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, listUsersResponse{
		Users:   users,
		Total:   total,
		Page:    page,
		PerPage: perPage,
	})
}

func (s *Server) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var params auth.CreateUserParams
	if !httputil.DecodeJSON(w, r, &params) {
		return
	}

	user, err := s.authSvc.CreateUser(r.Context(), params)
	if err != nil {
		auth.WriteError(w, s.logger, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, user)
}

// userIDParam extracts the {id} route param, rejecting anything that is not
// a UUID before it reaches the uuid-typed query. A malformed id reads the
// same as an unknown one.
func (s *Server) userIDParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := chi.URLParam(r, "id")
	if !httputil.IsValidUUID(id) {
		auth.WriteError(w, s.logger, auth.ErrUserNotFound)
		return "", false
	}
	return id, true
}

func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	id, ok := s.userIDParam(w, r)
	if !ok {
		return
	}
	user, err := s.authSvc.UserByID(r.Context(), id)
	if err != nil {
		auth.WriteError(w, s.logger, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, user)
}

func (s *Server) handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	id, ok := s.userIDParam(w, r)
	if !ok {
		return
	}
	var params auth.UpdateUserParams
	if !httputil.DecodeJSON(w, r, &params) {
		return
	}

	user, err := s.authSvc.UpdateUser(r.Context(), id, params)
	if err != nil {
		auth.WriteError(w, s.logger, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, user)
}

func (s *Server) handleListUserAccounts(w http.ResponseWriter, r *http.Request) {
	id, ok := s.userIDParam(w, r)
	if !ok {
		return
	}
	accounts, err := s.authSvc.AccountsForUser(r.Context(), id)
	if err != nil {
		auth.WriteError(w, s.logger, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, accounts)
}

func (s *Server) handleAdminUnlinkAccount(w http.ResponseWriter, r *http.Request) {
	id, ok := s.userIDParam(w, r)
	if !ok {
		return
	}
	err := s.authSvc.AdminUnlinkAccount(r.Context(), id, chi.URLParam(r, "provider_id"))
	if err != nil {
		auth.WriteError(w, s.logger, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "unlinked"})
}
