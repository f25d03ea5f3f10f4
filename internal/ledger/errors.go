package ledger

import (
	"errors"

	"github.com/jackc/pgx/v5"
)

var (
	ErrUserNotFound       = errors.New("user_not_found")
	ErrRewardNotFound     = errors.New("reward_not_found")
	ErrTokenNotFound      = errors.New("token_not_found")
	ErrRedemptionNotFound = errors.New("redemption_not_found")
	ErrDeviceNotFound     = errors.New("device_not_found")

	ErrTokenAlreadyUsed   = errors.New("token_already_used")
	ErrTokenExpired       = errors.New("token_expired")
	ErrInsufficientPoints = errors.New("insufficient_points")
	ErrOutOfStock         = errors.New("out_of_stock")

	ErrInvalidStatus      = errors.New("invalid_status")
	ErrInvalidTransition  = errors.New("invalid_transition")
	ErrInvalidAmount      = errors.New("invalid_amount")
	ErrInvalidInput       = errors.New("invalid_input")
	ErrForbidden          = errors.New("forbidden")
	ErrConflict           = errors.New("conflict")
	ErrDeviceUnauthorized = errors.New("device_unauthorized")
)

func notFound(err, target error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return target
	}
	return err
}

var knownErrors = []error{
	ErrUserNotFound, ErrRewardNotFound, ErrTokenNotFound, ErrRedemptionNotFound, ErrDeviceNotFound,
	ErrTokenAlreadyUsed, ErrTokenExpired, ErrInsufficientPoints, ErrOutOfStock,
	ErrInvalidStatus, ErrInvalidTransition, ErrInvalidAmount, ErrInvalidInput,
	ErrForbidden, ErrConflict, ErrDeviceUnauthorized,
}

// resultLabel keeps metric label cardinality bounded to the sentinel set.
func resultLabel(err error) string {
	if err == nil {
		return "ok"
	}
	for _, known := range knownErrors {
		if errors.Is(err, known) {
			return known.Error()
		}
	}
	return "error"
}
