package ledger

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/bass5068/bottle-redeem/internal/config"
	"github.com/bass5068/bottle-redeem/internal/notify"
)

type Options struct {
	DefaultTokenTTL   time.Duration
	MaxTokenTTL       time.Duration
	BigBottlePoints   int64
	SmallBottlePoints int64
	MaxClaimPoints    int64
	MaxBottles        int
	AdminForwardOnly  bool
	LowStockThreshold int
}

func OptionsFromConfig(cfg config.Config) Options {
	return Options{
		DefaultTokenTTL:   cfg.ManualTokenTTL,
		MaxTokenTTL:       cfg.MaxTokenTTL,
		BigBottlePoints:   cfg.BigBottlePoints,
		SmallBottlePoints: cfg.SmallBottlePoints,
		MaxClaimPoints:    cfg.MaxClaimPoints,
		MaxBottles:        cfg.MaxBottles,
		AdminForwardOnly:  cfg.AdminForwardOnly,
		LowStockThreshold: cfg.LowStockThreshold,
	}
}

func DefaultOptions() Options {
	return Options{
		DefaultTokenTTL:   30 * time.Minute,
		MaxTokenTTL:       24 * time.Hour,
		BigBottlePoints:   200,
		SmallBottlePoints: 100,
		MaxClaimPoints:    1000,
		MaxBottles:        100,
		LowStockThreshold: 3,
	}
}

type Service struct {
	store    Store
	notifier notify.Notifier
	opts     Options
	now      func() time.Time
}

func NewService(store Store, notifier notify.Notifier, opts Options) *Service {
	if notifier == nil {
		notifier = notify.Nop{}
	}
	return &Service{
		store:    store,
		notifier: notifier,
		opts:     opts,
		now:      time.Now,
	}
}

// WithClock replaces the time source; tests use it to move past token expiry.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

func (s *Service) Options() Options {
	return s.opts
}

func (s *Service) clock() time.Time {
	return s.now().UTC()
}

// alert delivers an admin notification outside the request's cancellation. Failures are logged only.
func (s *Service) alert(ctx context.Context, text string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := s.notifier.Notify(ctx, text); err != nil {
		slog.Warn("notification failed", "error", err)
	}
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
