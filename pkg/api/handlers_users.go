package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/Azure/ai-gateway/pkg/users"
)

const invalidUserID = "Invalid user ID format"

func userIDParam(r *http.Request) (uuid.UUID, error) {
	return parseUUID("user_id", chi.URLParam(r, "userID"), invalidUserID)
}

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	skip, err := queryInt(r, "skip", 0)
	if err != nil {
		s.sendError(w, err)
		return
	}
	limit, err := queryInt(r, "limit", users.DefaultListLimit)
	if err != nil {
		s.sendError(w, err)
		return
	}
	active, err := queryBool(r, "is_active")
	if err != nil {
		s.sendError(w, err)
		return
	}

	list, err := s.deps.Users.List(r.Context(), users.ListOptions{Skip: skip, Limit: limit, IsActive: active})
	if err != nil {
		s.sendError(w, err)
		return
	}
	s.sendJSON(w, http.StatusOK, list)
}

func (s *Server) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var in users.CreateInput
	if err := decodeBody(r, &in); err != nil {
		s.sendError(w, err)
		return
	}
	user, err := s.deps.Users.Create(r.Context(), in)
	if err != nil {
		s.sendError(w, err)
		return
	}
	s.sendJSON(w, http.StatusCreated, user)
}

func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	id, err := userIDParam(r)
	if err != nil {
		s.sendError(w, err)
		return
	}
	user, err := s.deps.Users.Get(r.Context(), id)
	if err != nil {
		s.sendError(w, err)
		return
	}
	s.sendJSON(w, http.StatusOK, user)
}

func (s *Server) handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	id, err := userIDParam(r)
	if err != nil {
		s.sendError(w, err)
		return
	}
	var in users.UpdateInput
	if err := decodeBody(r, &in); err != nil {
		s.sendError(w, err)
		return
	}
	user, err := s.deps.Users.Update(r.Context(), id, in)
	if err != nil {
		s.sendError(w, err)
		return
	}
	s.sendJSON(w, http.StatusOK, user)
}

func (s *Server) handleUserRequests(w http.ResponseWriter, r *http.Request) {
	id, err := userIDParam(r)
	if err != nil {
		s.sendError(w, err)
		return
	}
	limit, err := queryInt(r, "limit", users.DefaultRequestsLimit)
	if err != nil {
		s.sendError(w, err)
		return
	}
	exchanges, err := s.deps.Users.Requests(r.Context(), id, limit)
	if err != nil {
		s.sendError(w, err)
		return
	}
	s.sendJSON(w, http.StatusOK, exchanges)
}

func (s *Server) handleUserStats(w http.ResponseWriter, r *http.Request) {
	id, err := userIDParam(r)
	if err != nil {
		s.sendError(w, err)
		return
	}
	stats, err := s.deps.Users.Stats(r.Context(), id)
	if err != nil {
		s.sendError(w, err)
		return
	}
	s.sendJSON(w, http.StatusOK, stats)
}
