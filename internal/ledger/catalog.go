package ledger

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/bass5068/bottle-redeem/internal/model"
)

type RewardInput struct {
	Name        string
	Points      int64
	Stock       int
	Description *string
	Image       *string
}

func (in RewardInput) validate() error {
	if strings.TrimSpace(in.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	if in.Points <= 0 {
		return fmt.Errorf("%w: points must be positive", ErrInvalidInput)
	}
	if in.Stock < 0 {
		return fmt.Errorf("%w: stock must not be negative", ErrInvalidInput)
	}
	return nil
}

func (s *Service) ListRewards(ctx context.Context) ([]model.Reward, error) {
	return s.store.Reader().ListRewards(ctx)
}

func (s *Service) GetReward(ctx context.Context, id string) (model.Reward, error) {
	reward, err := s.store.Reader().GetReward(ctx, id)
	if err != nil {
		return model.Reward{}, notFound(err, ErrRewardNotFound)
	}
	return reward, nil
}

func (s *Service) CreateReward(ctx context.Context, in RewardInput) (model.Reward, error) {
	var reward model.Reward
	err := s.store.WithinTx(ctx, func(q Queries) error {
		created, err := s.createReward(ctx, q, in)
		reward = created
		return err
	})
	return reward, err
}

func (s *Service) createReward(ctx context.Context, q Queries, in RewardInput) (model.Reward, error) {
	if err := in.validate(); err != nil {
		return model.Reward{}, err
	}
	now := s.clock()
	reward := model.Reward{
		ID:          uuid.NewString(),
		Name:        strings.TrimSpace(in.Name),
		Points:      in.Points,
		Stock:       in.Stock,
		Description: in.Description,
		Image:       in.Image,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := q.CreateReward(ctx, reward); err != nil {
		return model.Reward{}, err
	}
	return reward, nil
}

// UpdateReward replaces the mutable fields. The stored image is kept unless in.Image is set.
func (s *Service) UpdateReward(ctx context.Context, id string, in RewardInput) (model.Reward, error) {
	if err := in.validate(); err != nil {
		return model.Reward{}, err
	}
	var updated model.Reward
	err := s.store.WithinTx(ctx, func(q Queries) error {
		current, err := q.GetReward(ctx, id)
		if err != nil {
			return notFound(err, ErrRewardNotFound)
		}
		current.Name = strings.TrimSpace(in.Name)
		current.Points = in.Points
		current.Stock = in.Stock
		current.Description = in.Description
		if in.Image != nil {
			current.Image = in.Image
		}
		current.UpdatedAt = s.clock()
		updated, err = q.UpdateReward(ctx, current)
		return notFound(err, ErrRewardNotFound)
	})
	if err != nil {
		return model.Reward{}, err
	}
	return updated, nil
}

// DeleteReward removes the row outright; redemptions keep their rewardId.
func (s *Service) DeleteReward(ctx context.Context, id string) error {
	if err := s.store.Reader().DeleteReward(ctx, id); err != nil {
		return notFound(err, ErrRewardNotFound)
	}
	return nil
}

func (s *Service) SetRewardImage(ctx context.Context, id, imageURL string) (model.Reward, error) {
	reward, err := s.store.Reader().SetRewardImage(ctx, id, imageURL, s.clock())
	if err != nil {
		return model.Reward{}, notFound(err, ErrRewardNotFound)
	}
	return reward, nil
}

// ImportRewards creates every input in a single transaction; one invalid row aborts the batch.
func (s *Service) ImportRewards(ctx context.Context, inputs []RewardInput) ([]model.Reward, error) {
	if len(inputs) == 0 {
		return nil, fmt.Errorf("%w: no rewards to import", ErrInvalidInput)
	}
	created := make([]model.Reward, 0, len(inputs))
	err := s.store.WithinTx(ctx, func(q Queries) error {
		for i, in := range inputs {
			reward, err := s.createReward(ctx, q, in)
			if err != nil {
				return fmt.Errorf("reward %d: %w", i+1, err)
			}
			created = append(created, reward)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}
