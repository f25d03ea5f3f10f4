package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/bass5068/bottle-redeem/internal/importer"
	"github.com/bass5068/bottle-redeem/internal/ledger"
)

type rewardRequest struct {
	Name        string  `json:"name"`
	Points      int64   `json:"points"`
	Stock       int     `json:"stock"`
	Description *string `json:"description"`
	Image       *string `json:"image"`
}

func (req rewardRequest) input() ledger.RewardInput {
	return ledger.RewardInput{
		Name:        req.Name,
		Points:      req.Points,
		Stock:       req.Stock,
		Description: req.Description,
		Image:       req.Image,
	}
}

type importResponse struct {
	Created int                 `json:"created"`
	Rewards []rewardView        `json:"rewards"`
	Errors  []importer.RowError `json:"errors"`
}

// rewardID accepts both /rewards/{rewardID} and /rewards?id=.
func rewardID(r *http.Request) string {
	if id := chi.URLParam(r, "rewardID"); id != "" {
		return id
	}
	return r.URL.Query().Get("id")
}

func (s *Server) handleListRewards(w http.ResponseWriter, r *http.Request) {
	rewards, err := s.svc.ListRewards(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toRewardViews(rewards))
}

func (s *Server) handleGetReward(w http.ResponseWriter, r *http.Request) {
	reward, err := s.svc.GetReward(r.Context(), rewardID(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toRewardView(reward))
}

func (s *Server) handleCreateReward(w http.ResponseWriter, r *http.Request) {
	var req rewardRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	reward, err := s.svc.CreateReward(r.Context(), req.input())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toRewardView(reward))
}

func (s *Server) handleUpdateReward(w http.ResponseWriter, r *http.Request) {
	id := rewardID(r)
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing_id")
		return
	}
	var req rewardRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	reward, err := s.svc.UpdateReward(r.Context(), id, req.input())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toRewardView(reward))
}

func (s *Server) handleDeleteReward(w http.ResponseWriter, r *http.Request) {
	id := rewardID(r)
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing_id")
		return
	}
	if err := s.svc.DeleteReward(r.Context(), id); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "reward deleted"})
}

func (s *Server) handleImportRewards(w http.ResponseWriter, r *http.Request) {
	file, _, ok := s.formFile(w, r, "file")
	if !ok {
		return
	}
	defer file.Close()

	inputs, rowErrors, err := importer.ParseRewards(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_workbook")
		return
	}
	if rowErrors == nil {
		rowErrors = []importer.RowError{}
	}
	if len(inputs) == 0 {
		writeJSON(w, http.StatusBadRequest, importResponse{Rewards: []rewardView{}, Errors: rowErrors})
		return
	}
	created, err := s.svc.ImportRewards(r.Context(), inputs)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	slog.Info("rewards imported", "created", len(created), "skipped", len(rowErrors))
	writeJSON(w, http.StatusOK, importResponse{
		Created: len(created),
		Rewards: toRewardViews(created),
		Errors:  rowErrors,
	})
}

func (s *Server) handleImportTemplate(w http.ResponseWriter, r *http.Request) {
	book, err := importer.Template()
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	defer book.Close()
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="rewards.xlsx"`)
	if err := book.Write(w); err != nil {
		slog.Warn("template write failed", "error", err)
	}
}
