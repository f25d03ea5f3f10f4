package http

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/bass5068/bottle-redeem/internal/ledger"
)

type deviceTokenRequest struct {
	PETBig       int `json:"PETbig"`
	PETSmall     int `json:"PETsmall"`
	ValidMinutes int `json:"validMinutes"`
}

type issueTokenRequest struct {
	Points       int64 `json:"points"`
	PETBig       int   `json:"PETbig"`
	PETSmall     int   `json:"PETsmall"`
	ValidMinutes int   `json:"validMinutes"`
}

type validateTokenRequest struct {
	Token string `json:"token"`
}

type validateTokenResponse struct {
	Valid    bool   `json:"valid"`
	Points   int64  `json:"points"`
	PETBig   int    `json:"PETbig"`
	PETSmall int    `json:"PETsmall"`
	UsedAt   string `json:"usedAt,omitempty"`
}

type addPointsRequest struct {
	UserID string `json:"userId"`
	Points int64  `json:"points"`
	Token  string `json:"token"`
}

type addPointsResponse struct {
	Message     string   `json:"message"`
	PointsAdded int64    `json:"pointsAdded"`
	TotalPoints int64    `json:"totalPoints"`
	User        userView `json:"user"`
}

// handleDeviceToken issues a short-lived token for the authenticated kiosk. An empty body is allowed.
func (s *Server) handleDeviceToken(w http.ResponseWriter, r *http.Request) {
	var req deviceTokenRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	device, _ := deviceFromContext(r.Context())
	validFor := s.cfg.DeviceTokenTTL
	if req.ValidMinutes > 0 {
		validFor = time.Duration(req.ValidMinutes) * time.Minute
	}
	token, err := s.svc.IssueToken(r.Context(), ledger.IssueTokenParams{
		ValidFor: validFor,
		PETBig:   req.PETBig,
		PETSmall: req.PETSmall,
		DeviceID: device.ID,
		Source:   "device",
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toTokenView(token))
}

func (s *Server) handleIssueToken(w http.ResponseWriter, r *http.Request) {
	var req issueTokenRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	token, err := s.svc.IssueToken(r.Context(), ledger.IssueTokenParams{
		ValidFor: time.Duration(req.ValidMinutes) * time.Minute,
		Points:   req.Points,
		PETBig:   req.PETBig,
		PETSmall: req.PETSmall,
		Source:   "admin",
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toTokenView(token))
}

var tokenMessages = map[error]string{
	ledger.ErrTokenNotFound:    "Token not found",
	ledger.ErrTokenAlreadyUsed: "Token already used",
	ledger.ErrTokenExpired:     "Token expired",
	ledger.ErrInvalidInput:     "Token is required",
}

// handleValidateToken keeps the {valid:false,...} body shape kiosk clients already parse.
func (s *Server) handleValidateToken(w http.ResponseWriter, r *http.Request) {
	var req validateTokenRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	actor, _ := actorFromContext(r.Context())
	token, err := s.svc.ValidateToken(r.Context(), req.Token, actor.UserID)
	if err != nil {
		for sentinel, message := range tokenMessages {
			if errors.Is(err, sentinel) {
				status := http.StatusBadRequest
				if sentinel == ledger.ErrTokenNotFound {
					status = http.StatusNotFound
				}
				writeJSON(w, status, map[string]interface{}{
					"valid":   false,
					"error":   sentinel.Error(),
					"message": message,
				})
				return
			}
		}
		writeServiceError(w, r, err)
		return
	}
	resp := validateTokenResponse{
		Valid:    true,
		Points:   token.Points,
		PETBig:   token.PETBig,
		PETSmall: token.PETSmall,
	}
	if token.UsedAt != nil {
		resp.UsedAt = token.UsedAt.Format(time.RFC3339)
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleAddPoints claims a token for userId, or credits points directly when the caller is an admin.
func (s *Server) handleAddPoints(w http.ResponseWriter, r *http.Request) {
	var req addPointsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	actor, _ := actorFromContext(r.Context())
	if req.UserID == "" {
		req.UserID = actor.UserID
	}
	if !actsFor(actor, req.UserID) {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}

	var added, total int64
	if req.Token != "" {
		result, err := s.svc.ClaimToken(r.Context(), req.UserID, req.Token, req.Points)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		added, total = result.PointsAdded, result.TotalPoints
	} else {
		if !actor.IsAdmin() {
			writeError(w, http.StatusForbidden, "forbidden")
			return
		}
		balance, err := s.svc.CreditPoints(r.Context(), req.UserID, req.Points)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		added, total = req.Points, balance
	}

	user, err := s.svc.GetUser(r.Context(), req.UserID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, addPointsResponse{
		Message:     "points added",
		PointsAdded: added,
		TotalPoints: total,
		User:        toUserView(user),
	})
}
