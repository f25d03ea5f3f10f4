package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/bass5068/bottle-redeem/internal/metrics"
	"github.com/bass5068/bottle-redeem/internal/model"
)

type ClaimResult struct {
	Token       model.QRToken
	PointsAdded int64
	TotalPoints int64
}

// CreditPoints adds delta to the user's balance as a relative update.
func (s *Service) CreditPoints(ctx context.Context, userID string, delta int64) (int64, error) {
	if userID == "" {
		return 0, fmt.Errorf("%w: userId is required", ErrInvalidInput)
	}
	if delta <= 0 {
		return 0, ErrInvalidAmount
	}
	var balance int64
	err := s.store.WithinTx(ctx, func(q Queries) error {
		total, err := s.credit(ctx, q, userID, delta, model.ReasonManualCredit, nil)
		if err != nil {
			return err
		}
		balance = total
		return nil
	})
	if err != nil {
		return 0, err
	}
	metrics.PointsCredited.WithLabelValues(string(model.ReasonManualCredit)).Add(float64(delta))
	return balance, nil
}

// ClaimToken consumes a token and credits its points to userID in one transaction. A token
// the same user already validated is credited once. Tokens issued without a payload are
// credited with requested, bounded by MaxClaimPoints.
func (s *Service) ClaimToken(ctx context.Context, userID, value string, requested int64) (ClaimResult, error) {
	value = strings.TrimSpace(value)
	if userID == "" || value == "" {
		return ClaimResult{}, fmt.Errorf("%w: token and userId are required", ErrInvalidInput)
	}
	var result ClaimResult
	err := s.store.WithinTx(ctx, func(q Queries) error {
		if _, err := q.GetUser(ctx, userID); err != nil {
			return notFound(err, ErrUserNotFound)
		}
		if _, err := s.consumeToken(ctx, q, value, userID); err != nil && !errors.Is(err, ErrTokenAlreadyUsed) {
			return err
		}
		token, ok, err := q.MarkTokenCredited(ctx, value, userID, s.clock())
		if err != nil {
			return err
		}
		if !ok {
			return ErrTokenAlreadyUsed
		}
		points := token.Points
		if points == 0 {
			if requested <= 0 || requested > s.opts.MaxClaimPoints {
				return ErrInvalidAmount
			}
			points = requested
		}
		reference := token.Token
		total, err := s.credit(ctx, q, userID, points, model.ReasonTokenClaim, &reference)
		if err != nil {
			return err
		}
		result = ClaimResult{Token: token, PointsAdded: points, TotalPoints: total}
		return nil
	})
	metrics.TokenValidations.WithLabelValues(resultLabel(err)).Inc()
	if err != nil {
		return ClaimResult{}, err
	}
	metrics.PointsCredited.WithLabelValues(string(model.ReasonTokenClaim)).Add(float64(result.PointsAdded))
	return result, nil
}

func (s *Service) credit(ctx context.Context, q Queries, userID string, delta int64, reason model.LedgerReason, reference *string) (int64, error) {
	now := s.clock()
	balance, err := q.CreditUserPoints(ctx, userID, delta, now)
	if err != nil {
		return 0, notFound(err, ErrUserNotFound)
	}
	if err := q.InsertLedgerEntry(ctx, model.LedgerEntry{
		ID:           uuid.NewString(),
		UserID:       userID,
		Delta:        delta,
		Reason:       reason,
		Reference:    reference,
		BalanceAfter: balance,
		CreatedAt:    now,
	}); err != nil {
		return 0, err
	}
	return balance, nil
}

func (s *Service) ListTransactions(ctx context.Context, userID string, limit int) ([]model.LedgerEntry, error) {
	if _, err := s.store.Reader().GetUser(ctx, userID); err != nil {
		return nil, notFound(err, ErrUserNotFound)
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.store.Reader().ListLedgerEntries(ctx, userID, limit)
}
