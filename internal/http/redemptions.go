package http

import (
	"net/http"

	"github.com/bass5068/bottle-redeem/internal/model"
)

type redeemRequest struct {
	UserID   string `json:"userId"`
	RewardID string `json:"rewardId"`
}

type redeemResponse struct {
	Message         string         `json:"message"`
	Redemption      redemptionView `json:"redemption"`
	RemainingPoints int64          `json:"remainingPoints"`
	RemainingStock  int            `json:"remainingStock"`
}

type updateRedemptionRequest struct {
	RedemptionID string `json:"redemptionId"`
	Status       string `json:"status"`
}

func (s *Server) handleRedeem(w http.ResponseWriter, r *http.Request) {
	var req redeemRequest
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
	result, err := s.svc.Redeem(r.Context(), req.UserID, req.RewardID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	view := toRedemptionView(result.Redemption)
	reward := toRewardView(result.Reward)
	view.Reward = &reward
	writeJSON(w, http.StatusOK, redeemResponse{
		Message:         "Reward redeemed successfully",
		Redemption:      view,
		RemainingPoints: result.RemainingPoints,
		RemainingStock:  result.RemainingStock,
	})
}

func (s *Server) handleUpdateRedemption(w http.ResponseWriter, r *http.Request) {
	var req updateRedemptionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	actor, _ := actorFromContext(r.Context())
	updated, err := s.svc.UpdateRedemptionStatus(r.Context(), actor, req.RedemptionID, req.Status)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toRedemptionView(updated))
}

func (s *Server) handleUserHistory(w http.ResponseWriter, r *http.Request) {
	actor, _ := actorFromContext(r.Context())
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		userID = actor.UserID
	}
	if !actsFor(actor, userID) {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}
	history, err := s.svc.UserHistory(r.Context(), userID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toHistoryViews(history))
}

func (s *Server) handleAllHistory(w http.ResponseWriter, r *http.Request) {
	history, err := s.svc.AllHistory(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	views := toHistoryViews(history)
	if status := r.URL.Query().Get("status"); status != "" {
		parsed, err := model.ParseRedemptionStatus(status)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_status")
			return
		}
		filtered := views[:0]
		for _, view := range views {
			if view.Status == string(parsed) {
				filtered = append(filtered, view)
			}
		}
		views = filtered
	}
	writeJSON(w, http.StatusOK, views)
}
