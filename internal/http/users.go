package http

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/bass5068/bottle-redeem/internal/ledger"
	"github.com/bass5068/bottle-redeem/internal/model"
)

type updateAccountRequest struct {
	Name  string  `json:"name"`
	Image *string `json:"image"`
}

type createUserRequest struct {
	Email string `json:"email"`
	Name  string `json:"name"`
	Role  string `json:"role"`
}

type pointsResponse struct {
	Points int64   `json:"points"`
	Name   string  `json:"name"`
	Image  *string `json:"image"`
}

// handleSyncUser creates the caller's row from the verified session on first sign-in.
func (s *Server) handleSyncUser(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	user, created, err := s.svc.SyncUser(r.Context(), ledger.NewUser{
		ID:    claims.UserID,
		Email: claims.Email,
		Name:  claims.Name,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, toUserView(user))
}

func (s *Server) handleGetAccount(w http.ResponseWriter, r *http.Request) {
	actor, _ := actorFromContext(r.Context())
	user, err := s.svc.GetUser(r.Context(), actor.UserID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserView(user))
}

func (s *Server) handleUpdateAccount(w http.ResponseWriter, r *http.Request) {
	var req updateAccountRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	actor, _ := actorFromContext(r.Context())
	user, err := s.svc.UpdateProfile(r.Context(), actor.UserID, req.Name, req.Image)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserView(user))
}

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.svc.ListUsers(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	out := make([]userView, 0, len(users))
	for _, user := range users {
		out = append(out, toUserView(user))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	role := model.RoleUser
	if req.Role != "" {
		parsed, err := model.ParseRole(req.Role)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_role")
			return
		}
		role = parsed
	}
	user, err := s.svc.CreateUser(r.Context(), ledger.NewUser{Email: req.Email, Name: req.Name, Role: role})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toUserView(user))
}

// targetUser resolves the user a request is about from the path or ?userId=, defaulting to the caller.
func targetUser(r *http.Request, actor model.Actor) string {
	if id := chi.URLParam(r, "userID"); id != "" {
		return id
	}
	if id := r.URL.Query().Get("userId"); id != "" {
		return id
	}
	return actor.UserID
}

func (s *Server) handleGetPoints(w http.ResponseWriter, r *http.Request) {
	actor, _ := actorFromContext(r.Context())
	userID := targetUser(r, actor)
	if !actsFor(actor, userID) {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}
	summary, err := s.svc.PointsSummary(r.Context(), userID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pointsResponse{Points: summary.Points, Name: summary.Name, Image: summary.Image})
}

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	actor, _ := actorFromContext(r.Context())
	userID := targetUser(r, actor)
	if !actsFor(actor, userID) {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	entries, err := s.svc.ListTransactions(r.Context(), userID, limit)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	out := make([]ledgerEntryView, 0, len(entries))
	for _, entry := range entries {
		out = append(out, ledgerEntryView{
			ID:           entry.ID,
			Delta:        entry.Delta,
			Reason:       string(entry.Reason),
			Reference:    entry.Reference,
			BalanceAfter: entry.BalanceAfter,
			CreatedAt:    entry.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, out)
}
