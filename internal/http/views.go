package http

import (
	"time"

	"github.com/bass5068/bottle-redeem/internal/model"
)

type userView struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Image     *string   `json:"image"`
	Role      string    `json:"role"`
	Points    int64     `json:"points"`
	CreatedAt time.Time `json:"createdAt"`
}

func toUserView(user model.User) userView {
	return userView{
		ID:        user.ID,
		Email:     user.Email,
		Name:      user.Name,
		Image:     user.Image,
		Role:      string(user.Role),
		Points:    user.Points,
		CreatedAt: user.CreatedAt,
	}
}

type rewardView struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Points      int64     `json:"points"`
	Stock       int       `json:"stock"`
	Description *string   `json:"description"`
	Image       *string   `json:"image"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

func toRewardView(reward model.Reward) rewardView {
	return rewardView{
		ID:          reward.ID,
		Name:        reward.Name,
		Points:      reward.Points,
		Stock:       reward.Stock,
		Description: reward.Description,
		Image:       reward.Image,
		CreatedAt:   reward.CreatedAt,
		UpdatedAt:   reward.UpdatedAt,
	}
}

func toRewardViews(rewards []model.Reward) []rewardView {
	out := make([]rewardView, 0, len(rewards))
	for _, reward := range rewards {
		out = append(out, toRewardView(reward))
	}
	return out
}

type tokenView struct {
	Token     string    `json:"token"`
	Points    int64     `json:"points"`
	PETBig    int       `json:"PETbig"`
	PETSmall  int       `json:"PETsmall"`
	ExpiresAt time.Time `json:"expiresAt"`
}

func toTokenView(token model.QRToken) tokenView {
	return tokenView{
		Token:     token.Token,
		Points:    token.Points,
		PETBig:    token.PETBig,
		PETSmall:  token.PETSmall,
		ExpiresAt: token.ExpiresAt,
	}
}

type redemptionView struct {
	ID        string      `json:"id"`
	UserID    string      `json:"userId"`
	RewardID  string      `json:"rewardId"`
	Points    int64       `json:"points"`
	Status    string      `json:"status"`
	CreatedAt time.Time   `json:"createdAt"`
	UpdatedAt time.Time   `json:"updatedAt"`
	User      *userView   `json:"user,omitempty"`
	Reward    *rewardView `json:"reward"`
}

func toRedemptionView(redemption model.Redemption) redemptionView {
	return redemptionView{
		ID:        redemption.ID,
		UserID:    redemption.UserID,
		RewardID:  redemption.RewardID,
		Points:    redemption.Points,
		Status:    string(redemption.Status),
		CreatedAt: redemption.CreatedAt,
		UpdatedAt: redemption.UpdatedAt,
	}
}

func toHistoryViews(details []model.RedemptionDetail) []redemptionView {
	out := make([]redemptionView, 0, len(details))
	for _, detail := range details {
		view := toRedemptionView(detail.Redemption)
		if detail.User != nil {
			user := toUserView(*detail.User)
			view.User = &user
		}
		if detail.Reward != nil {
			reward := toRewardView(*detail.Reward)
			view.Reward = &reward
		}
		out = append(out, view)
	}
	return out
}

type ledgerEntryView struct {
	ID           string    `json:"id"`
	Delta        int64     `json:"delta"`
	Reason       string    `json:"reason"`
	Reference    *string   `json:"reference"`
	BalanceAfter int64     `json:"balanceAfter"`
	CreatedAt    time.Time `json:"createdAt"`
}

type deviceView struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	CreatedAt  time.Time  `json:"createdAt"`
	LastSeenAt *time.Time `json:"lastSeenAt"`
	RevokedAt  *time.Time `json:"revokedAt"`
}

func toDeviceView(device model.Device) deviceView {
	return deviceView{
		ID:         device.ID,
		Name:       device.Name,
		CreatedAt:  device.CreatedAt,
		LastSeenAt: device.LastSeenAt,
		RevokedAt:  device.RevokedAt,
	}
}
