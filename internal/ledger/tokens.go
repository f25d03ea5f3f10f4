package ledger

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bass5068/bottle-redeem/internal/crypto"
	"github.com/bass5068/bottle-redeem/internal/metrics"
	"github.com/bass5068/bottle-redeem/internal/model"
)

type IssueTokenParams struct {
	ValidFor time.Duration
	Points   int64
	PETBig   int
	PETSmall int
	DeviceID string
	Source   string
}

// BottlePoints converts bottle counts into the points a token carries.
func (s *Service) BottlePoints(big, small int) int64 {
	return int64(big)*s.opts.BigBottlePoints + int64(small)*s.opts.SmallBottlePoints
}

func (s *Service) IssueToken(ctx context.Context, p IssueTokenParams) (model.QRToken, error) {
	if p.Points < 0 || p.PETBig < 0 || p.PETSmall < 0 {
		return model.QRToken{}, fmt.Errorf("%w: negative token payload", ErrInvalidInput)
	}
	if s.opts.MaxBottles > 0 && p.PETBig+p.PETSmall > s.opts.MaxBottles {
		return model.QRToken{}, fmt.Errorf("%w: more than %d bottles in one token", ErrInvalidInput, s.opts.MaxBottles)
	}
	validFor := p.ValidFor
	if validFor <= 0 {
		validFor = s.opts.DefaultTokenTTL
	}
	if s.opts.MaxTokenTTL > 0 && validFor > s.opts.MaxTokenTTL {
		return model.QRToken{}, fmt.Errorf("%w: validity exceeds %s", ErrInvalidInput, s.opts.MaxTokenTTL)
	}
	points := p.Points
	if points == 0 {
		points = s.BottlePoints(p.PETBig, p.PETSmall)
	}

	value, err := crypto.NewQRToken()
	if err != nil {
		return model.QRToken{}, err
	}
	now := s.clock()
	token := model.QRToken{
		Token:     value,
		Points:    points,
		PETBig:    p.PETBig,
		PETSmall:  p.PETSmall,
		ExpiresAt: now.Add(validFor),
		CreatedAt: now,
	}
	if p.DeviceID != "" {
		deviceID := p.DeviceID
		token.DeviceID = &deviceID
	}
	if err := s.store.Reader().CreateToken(ctx, token); err != nil {
		return model.QRToken{}, err
	}
	source := p.Source
	if source == "" {
		source = "manual"
	}
	metrics.TokensIssued.WithLabelValues(source).Inc()
	return token, nil
}

// ValidateToken consumes a token at most once and returns its payload. userID, when
// set, is recorded as the consumer.
func (s *Service) ValidateToken(ctx context.Context, value, userID string) (model.QRToken, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return model.QRToken{}, fmt.Errorf("%w: token is required", ErrInvalidInput)
	}
	var consumed model.QRToken
	err := s.store.WithinTx(ctx, func(q Queries) error {
		token, err := s.consumeToken(ctx, q, value, userID)
		if err != nil {
			return err
		}
		consumed = token
		return nil
	})
	metrics.TokenValidations.WithLabelValues(resultLabel(err)).Inc()
	if err != nil {
		return model.QRToken{}, err
	}
	return consumed, nil
}

// consumeToken flips used=false to true in a single conditional update; only when no
// row matched does it read the token back to explain why.
func (s *Service) consumeToken(ctx context.Context, q Queries, value, userID string) (model.QRToken, error) {
	now := s.clock()
	var consumer *string
	if userID != "" {
		consumer = &userID
	}
	token, ok, err := q.ConsumeToken(ctx, value, consumer, now)
	if err != nil {
		return model.QRToken{}, err
	}
	if ok {
		return token, nil
	}
	existing, err := q.GetToken(ctx, value)
	if err != nil {
		return model.QRToken{}, notFound(err, ErrTokenNotFound)
	}
	if existing.Used {
		return model.QRToken{}, ErrTokenAlreadyUsed
	}
	if !now.Before(existing.ExpiresAt) {
		return model.QRToken{}, ErrTokenExpired
	}
	return model.QRToken{}, ErrTokenAlreadyUsed
}

// PurgeExpiredTokens removes unused tokens that expired before now-retention.
func (s *Service) PurgeExpiredTokens(ctx context.Context, retention time.Duration) (int64, error) {
	return s.store.Reader().DeleteExpiredTokens(ctx, s.clock().Add(-retention))
}
