package ledger

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/bass5068/bottle-redeem/internal/metrics"
	"github.com/bass5068/bottle-redeem/internal/model"
)

type RedeemResult struct {
	Redemption      model.Redemption
	Reward          model.Reward
	RemainingPoints int64
	RemainingStock  int
}

// Redeem debits the reward cost, takes one unit of stock and records a PENDING
// redemption in one transaction. Both decrements are conditional so a concurrent
// redeem that slipped past the read checks still cannot drive either value negative.
func (s *Service) Redeem(ctx context.Context, userID, rewardID string) (RedeemResult, error) {
	if userID == "" || rewardID == "" {
		return RedeemResult{}, fmt.Errorf("%w: userId and rewardId are required", ErrInvalidInput)
	}
	var result RedeemResult
	err := s.store.WithinTx(ctx, func(q Queries) error {
		user, err := q.GetUser(ctx, userID)
		if err != nil {
			return notFound(err, ErrUserNotFound)
		}
		reward, err := q.GetReward(ctx, rewardID)
		if err != nil {
			return notFound(err, ErrRewardNotFound)
		}
		if user.Points < reward.Points {
			return ErrInsufficientPoints
		}
		if reward.Stock <= 0 {
			return ErrOutOfStock
		}

		now := s.clock()
		balance, ok, err := q.DebitUserPoints(ctx, userID, reward.Points, now)
		if err != nil {
			return err
		}
		if !ok {
			return ErrInsufficientPoints
		}
		stock, ok, err := q.DecrementRewardStock(ctx, rewardID, now)
		if err != nil {
			return err
		}
		if !ok {
			return ErrOutOfStock
		}

		redemption := model.Redemption{
			ID:        uuid.NewString(),
			UserID:    userID,
			RewardID:  rewardID,
			Points:    reward.Points,
			Status:    model.StatusPending,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := q.CreateRedemption(ctx, redemption); err != nil {
			return err
		}
		reference := redemption.ID
		if err := q.InsertLedgerEntry(ctx, model.LedgerEntry{
			ID:           uuid.NewString(),
			UserID:       userID,
			Delta:        -reward.Points,
			Reason:       model.ReasonRedemption,
			Reference:    &reference,
			BalanceAfter: balance,
			CreatedAt:    now,
		}); err != nil {
			return err
		}

		reward.Stock = stock
		reward.UpdatedAt = now
		result = RedeemResult{
			Redemption:      redemption,
			Reward:          reward,
			RemainingPoints: balance,
			RemainingStock:  stock,
		}
		return nil
	})
	metrics.Redemptions.WithLabelValues(resultLabel(err)).Inc()
	if err != nil {
		return RedeemResult{}, err
	}

	s.alert(ctx, fmt.Sprintf("New redemption %s: %s (%d points) by user %s",
		result.Redemption.ID, result.Reward.Name, result.Reward.Points, userID))
	if result.RemainingStock <= s.opts.LowStockThreshold {
		s.alert(ctx, fmt.Sprintf("Low stock: %s has %d left", result.Reward.Name, result.RemainingStock))
	}
	return result, nil
}

// UpdateRedemptionStatus moves a redemption to status on behalf of actor. The write is
// conditional on the status that was read, so a concurrent change yields ErrConflict.
func (s *Service) UpdateRedemptionStatus(ctx context.Context, actor model.Actor, id, status string) (model.Redemption, error) {
	if id == "" {
		return model.Redemption{}, fmt.Errorf("%w: redemptionId is required", ErrInvalidInput)
	}
	target, err := model.ParseRedemptionStatus(status)
	if err != nil {
		return model.Redemption{}, ErrInvalidStatus
	}

	var updated model.Redemption
	changed := false
	err = s.store.WithinTx(ctx, func(q Queries) error {
		current, err := q.GetRedemption(ctx, id)
		if err != nil {
			return notFound(err, ErrRedemptionNotFound)
		}
		if err := s.authorizeTransition(actor, current, target); err != nil {
			return err
		}
		if current.Status == target {
			updated = current
			return nil
		}
		next, ok, err := q.UpdateRedemptionStatus(ctx, id, current.Status, target, s.clock())
		if err != nil {
			return err
		}
		if !ok {
			return ErrConflict
		}
		updated = next
		changed = true
		return nil
	})
	if err != nil {
		return model.Redemption{}, err
	}
	if changed {
		metrics.StatusTransitions.WithLabelValues(string(updated.Status)).Inc()
	}
	return updated, nil
}

func (s *Service) authorizeTransition(actor model.Actor, current model.Redemption, target model.RedemptionStatus) error {
	if actor.IsAdmin() {
		if !s.opts.AdminForwardOnly || current.Status == target {
			return nil
		}
		if next, ok := current.Status.Next(); ok && next == target {
			return nil
		}
		return ErrInvalidTransition
	}
	if actor.UserID == "" || actor.UserID != current.UserID {
		return ErrForbidden
	}
	if current.Status == model.StatusShipped && target == model.StatusCompleted {
		return nil
	}
	return ErrForbidden
}

func (s *Service) UserHistory(ctx context.Context, userID string) ([]model.RedemptionDetail, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: userId is required", ErrInvalidInput)
	}
	return s.store.Reader().ListRedemptionsByUser(ctx, userID)
}

func (s *Service) AllHistory(ctx context.Context) ([]model.RedemptionDetail, error) {
	return s.store.Reader().ListRedemptions(ctx)
}
