package ledger

import (
	"context"
	"time"

	"github.com/bass5068/bottle-redeem/internal/model"
)

// Queries is the storage port. Missing rows are reported as pgx.ErrNoRows. Methods
// returning a bool perform a conditional update and report whether a row matched.
type Queries interface {
	GetUser(ctx context.Context, id string) (model.User, error)
	GetUserByEmail(ctx context.Context, email string) (model.User, error)
	ListUsers(ctx context.Context) ([]model.User, error)
	CreateUser(ctx context.Context, user model.User) error
	UpdateUserProfile(ctx context.Context, id, name string, image *string, now time.Time) (model.User, error)
	CreditUserPoints(ctx context.Context, id string, delta int64, now time.Time) (int64, error)
	DebitUserPoints(ctx context.Context, id string, amount int64, now time.Time) (int64, bool, error)

	CreateToken(ctx context.Context, token model.QRToken) error
	GetToken(ctx context.Context, token string) (model.QRToken, error)
	ConsumeToken(ctx context.Context, token string, userID *string, now time.Time) (model.QRToken, bool, error)
	// MarkTokenCredited stamps credited_at on a token consumed by userID that has not been credited yet.
	MarkTokenCredited(ctx context.Context, token, userID string, now time.Time) (model.QRToken, bool, error)
	DeleteExpiredTokens(ctx context.Context, before time.Time) (int64, error)

	ListRewards(ctx context.Context) ([]model.Reward, error)
	GetReward(ctx context.Context, id string) (model.Reward, error)
	CreateReward(ctx context.Context, reward model.Reward) error
	UpdateReward(ctx context.Context, reward model.Reward) (model.Reward, error)
	DeleteReward(ctx context.Context, id string) error
	SetRewardImage(ctx context.Context, id, imageURL string, now time.Time) (model.Reward, error)
	DecrementRewardStock(ctx context.Context, id string, now time.Time) (int, bool, error)

	CreateRedemption(ctx context.Context, redemption model.Redemption) error
	GetRedemption(ctx context.Context, id string) (model.Redemption, error)
	UpdateRedemptionStatus(ctx context.Context, id string, from, to model.RedemptionStatus, now time.Time) (model.Redemption, bool, error)
	ListRedemptionsByUser(ctx context.Context, userID string) ([]model.RedemptionDetail, error)
	ListRedemptions(ctx context.Context) ([]model.RedemptionDetail, error)

	InsertLedgerEntry(ctx context.Context, entry model.LedgerEntry) error
	ListLedgerEntries(ctx context.Context, userID string, limit int) ([]model.LedgerEntry, error)

	CreateDevice(ctx context.Context, device model.Device) error
	GetDevice(ctx context.Context, id string) (model.Device, error)
	ListDevices(ctx context.Context) ([]model.Device, error)
	RevokeDevice(ctx context.Context, id string, now time.Time) (bool, error)
	TouchDevice(ctx context.Context, id string, now time.Time) error
}

// Store hands out non-transactional queries and runs fn inside one transaction,
// rolling back when fn returns an error.
type Store interface {
	Reader() Queries
	WithinTx(ctx context.Context, fn func(Queries) error) error
}
