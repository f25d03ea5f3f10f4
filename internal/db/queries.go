package db

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/bass5068/bottle-redeem/internal/model"
)

// DBTX is satisfied by *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

type Queries struct {
	db DBTX
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

func (q *Queries) WithTx(tx pgx.Tx) *Queries {
	return &Queries{db: tx}
}

// matched turns the ErrNoRows of a conditional UPDATE ... RETURNING into ok=false.
func matched(err error) (bool, error) {
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	return err == nil, err
}

const userColumns = `id, email, name, image, role, points, created_at, updated_at`

func scanUser(row pgx.Row) (model.User, error) {
	var user model.User
	var role string
	err := row.Scan(&user.ID, &user.Email, &user.Name, &user.Image, &role, &user.Points, &user.CreatedAt, &user.UpdatedAt)
	user.Role = model.Role(role)
	return user, err
}

func (q *Queries) GetUser(ctx context.Context, id string) (model.User, error) {
	return scanUser(q.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
}

func (q *Queries) GetUserByEmail(ctx context.Context, email string) (model.User, error) {
	return scanUser(q.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email))
}

func (q *Queries) ListUsers(ctx context.Context) ([]model.User, error) {
	rows, err := q.db.Query(ctx, `SELECT `+userColumns+` FROM users ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	users := []model.User{}
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

func (q *Queries) CreateUser(ctx context.Context, user model.User) error {
	_, err := q.db.Exec(ctx, `
		INSERT INTO users (id, email, name, image, role, points, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, user.ID, user.Email, user.Name, user.Image, string(user.Role), user.Points, user.CreatedAt, user.UpdatedAt)
	return err
}

func (q *Queries) UpdateUserProfile(ctx context.Context, id, name string, image *string, now time.Time) (model.User, error) {
	return scanUser(q.db.QueryRow(ctx, `
		UPDATE users SET name = $2, image = $3, updated_at = $4
		WHERE id = $1
		RETURNING `+userColumns, id, name, image, now))
}

func (q *Queries) CreditUserPoints(ctx context.Context, id string, delta int64, now time.Time) (int64, error) {
	var balance int64
	err := q.db.QueryRow(ctx, `
		UPDATE users SET points = points + $2, updated_at = $3
		WHERE id = $1
		RETURNING points
	`, id, delta, now).Scan(&balance)
	return balance, err
}

func (q *Queries) DebitUserPoints(ctx context.Context, id string, amount int64, now time.Time) (int64, bool, error) {
	var balance int64
	err := q.db.QueryRow(ctx, `
		UPDATE users SET points = points - $2, updated_at = $3
		WHERE id = $1 AND points >= $2
		RETURNING points
	`, id, amount, now).Scan(&balance)
	ok, err := matched(err)
	return balance, ok, err
}

const tokenColumns = `token, points, pet_big, pet_small, used, used_at, used_by, credited_at, device_id, expires_at, created_at`

func scanToken(row pgx.Row) (model.QRToken, error) {
	var token model.QRToken
	err := row.Scan(&token.Token, &token.Points, &token.PETBig, &token.PETSmall, &token.Used, &token.UsedAt,
		&token.UsedBy, &token.CreditedAt, &token.DeviceID, &token.ExpiresAt, &token.CreatedAt)
	return token, err
}

func (q *Queries) CreateToken(ctx context.Context, token model.QRToken) error {
	_, err := q.db.Exec(ctx, `
		INSERT INTO qr_tokens (token, points, pet_big, pet_small, used, device_id, expires_at, created_at)
		VALUES ($1, $2, $3, $4, false, $5, $6, $7)
	`, token.Token, token.Points, token.PETBig, token.PETSmall, token.DeviceID, token.ExpiresAt, token.CreatedAt)
	return err
}

func (q *Queries) GetToken(ctx context.Context, token string) (model.QRToken, error) {
	return scanToken(q.db.QueryRow(ctx, `SELECT `+tokenColumns+` FROM qr_tokens WHERE token = $1`, token))
}

func (q *Queries) ConsumeToken(ctx context.Context, token string, userID *string, now time.Time) (model.QRToken, bool, error) {
	consumed, err := scanToken(q.db.QueryRow(ctx, `
		UPDATE qr_tokens SET used = true, used_at = $3, used_by = $2
		WHERE token = $1 AND used = false AND expires_at > $3
		RETURNING `+tokenColumns, token, userID, now))
	ok, err := matched(err)
	return consumed, ok, err
}

func (q *Queries) MarkTokenCredited(ctx context.Context, token, userID string, now time.Time) (model.QRToken, bool, error) {
	credited, err := scanToken(q.db.QueryRow(ctx, `
		UPDATE qr_tokens SET credited_at = $3
		WHERE token = $1 AND used = true AND used_by = $2 AND credited_at IS NULL
		RETURNING `+tokenColumns, token, userID, now))
	ok, err := matched(err)
	return credited, ok, err
}

func (q *Queries) DeleteExpiredTokens(ctx context.Context, before time.Time) (int64, error) {
	tag, err := q.db.Exec(ctx, `DELETE FROM qr_tokens WHERE used = false AND expires_at < $1`, before)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

const rewardColumns = `id, name, points, stock, description, image, created_at, updated_at`

func scanReward(row pgx.Row) (model.Reward, error) {
	var reward model.Reward
	err := row.Scan(&reward.ID, &reward.Name, &reward.Points, &reward.Stock, &reward.Description, &reward.Image,
		&reward.CreatedAt, &reward.UpdatedAt)
	return reward, err
}

func (q *Queries) ListRewards(ctx context.Context) ([]model.Reward, error) {
	rows, err := q.db.Query(ctx, `SELECT `+rewardColumns+` FROM rewards ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	rewards := []model.Reward{}
	for rows.Next() {
		reward, err := scanReward(rows)
		if err != nil {
			return nil, err
		}
		rewards = append(rewards, reward)
	}
	return rewards, rows.Err()
}

func (q *Queries) GetReward(ctx context.Context, id string) (model.Reward, error) {
	return scanReward(q.db.QueryRow(ctx, `SELECT `+rewardColumns+` FROM rewards WHERE id = $1`, id))
}

func (q *Queries) CreateReward(ctx context.Context, reward model.Reward) error {
	_, err := q.db.Exec(ctx, `
		INSERT INTO rewards (id, name, points, stock, description, image, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, reward.ID, reward.Name, reward.Points, reward.Stock, reward.Description, reward.Image, reward.CreatedAt, reward.UpdatedAt)
	return err
}

func (q *Queries) UpdateReward(ctx context.Context, reward model.Reward) (model.Reward, error) {
	return scanReward(q.db.QueryRow(ctx, `
		UPDATE rewards SET name = $2, points = $3, stock = $4, description = $5, image = $6, updated_at = $7
		WHERE id = $1
		RETURNING `+rewardColumns,
		reward.ID, reward.Name, reward.Points, reward.Stock, reward.Description, reward.Image, reward.UpdatedAt))
}

func (q *Queries) DeleteReward(ctx context.Context, id string) error {
	tag, err := q.db.Exec(ctx, `DELETE FROM rewards WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (q *Queries) SetRewardImage(ctx context.Context, id, imageURL string, now time.Time) (model.Reward, error) {
	return scanReward(q.db.QueryRow(ctx, `
		UPDATE rewards SET image = $2, updated_at = $3
		WHERE id = $1
		RETURNING `+rewardColumns, id, imageURL, now))
}

func (q *Queries) DecrementRewardStock(ctx context.Context, id string, now time.Time) (int, bool, error) {
	var stock int
	err := q.db.QueryRow(ctx, `
		UPDATE rewards SET stock = stock - 1, updated_at = $2
		WHERE id = $1 AND stock > 0
		RETURNING stock
	`, id, now).Scan(&stock)
	ok, err := matched(err)
	return stock, ok, err
}

const redemptionColumns = `id, user_id, reward_id, points, status, created_at, updated_at`

func scanRedemption(row pgx.Row) (model.Redemption, error) {
	var redemption model.Redemption
	var status string
	err := row.Scan(&redemption.ID, &redemption.UserID, &redemption.RewardID, &redemption.Points, &status,
		&redemption.CreatedAt, &redemption.UpdatedAt)
	redemption.Status = model.RedemptionStatus(status)
	return redemption, err
}

func (q *Queries) CreateRedemption(ctx context.Context, redemption model.Redemption) error {
	_, err := q.db.Exec(ctx, `
		INSERT INTO redemptions (id, user_id, reward_id, points, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, redemption.ID, redemption.UserID, redemption.RewardID, redemption.Points, string(redemption.Status),
		redemption.CreatedAt, redemption.UpdatedAt)
	return err
}

func (q *Queries) GetRedemption(ctx context.Context, id string) (model.Redemption, error) {
	return scanRedemption(q.db.QueryRow(ctx, `SELECT `+redemptionColumns+` FROM redemptions WHERE id = $1 FOR UPDATE`, id))
}

func (q *Queries) UpdateRedemptionStatus(ctx context.Context, id string, from, to model.RedemptionStatus, now time.Time) (model.Redemption, bool, error) {
	redemption, err := scanRedemption(q.db.QueryRow(ctx, `
		UPDATE redemptions SET status = $3, updated_at = $4
		WHERE id = $1 AND status = $2
		RETURNING `+redemptionColumns, id, string(from), string(to), now))
	ok, err := matched(err)
	return redemption, ok, err
}

const historyQuery = `
	SELECT r.id, r.user_id, r.reward_id, r.points, r.status, r.created_at, r.updated_at,
	       u.id, u.email, u.name, u.image, u.role, u.points, u.created_at, u.updated_at,
	       w.id, w.name, w.points, w.stock, w.description, w.image, w.created_at, w.updated_at
	FROM redemptions r
	JOIN users u ON u.id = r.user_id
	LEFT JOIN rewards w ON w.id = r.reward_id
`

func (q *Queries) ListRedemptionsByUser(ctx context.Context, userID string) ([]model.RedemptionDetail, error) {
	return q.listHistory(ctx, historyQuery+` WHERE r.user_id = $1 ORDER BY r.created_at DESC, r.id DESC`, userID)
}

func (q *Queries) ListRedemptions(ctx context.Context) ([]model.RedemptionDetail, error) {
	return q.listHistory(ctx, historyQuery+` ORDER BY r.created_at DESC, r.id DESC`)
}

func (q *Queries) listHistory(ctx context.Context, query string, args ...interface{}) ([]model.RedemptionDetail, error) {
	rows, err := q.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	details := []model.RedemptionDetail{}
	for rows.Next() {
		var (
			detail       model.RedemptionDetail
			status, role string
			user         model.User
			rewardID     *string
			rewardName   *string
			rewardPoints *int64
			rewardStock  *int
			rewardDesc   *string
			rewardImage  *string
			rewardCreate *time.Time
			rewardUpdate *time.Time
		)
		if err := rows.Scan(
			&detail.ID, &detail.UserID, &detail.RewardID, &detail.Points, &status, &detail.CreatedAt, &detail.UpdatedAt,
			&user.ID, &user.Email, &user.Name, &user.Image, &role, &user.Points, &user.CreatedAt, &user.UpdatedAt,
			&rewardID, &rewardName, &rewardPoints, &rewardStock, &rewardDesc, &rewardImage, &rewardCreate, &rewardUpdate,
		); err != nil {
			return nil, err
		}
		detail.Status = model.RedemptionStatus(status)
		user.Role = model.Role(role)
		detail.User = &user
		if rewardID != nil {
			detail.Reward = &model.Reward{
				ID:          *rewardID,
				Name:        *rewardName,
				Points:      *rewardPoints,
				Stock:       *rewardStock,
				Description: rewardDesc,
				Image:       rewardImage,
				CreatedAt:   *rewardCreate,
				UpdatedAt:   *rewardUpdate,
			}
		}
		details = append(details, detail)
	}
	return details, rows.Err()
}

func (q *Queries) InsertLedgerEntry(ctx context.Context, entry model.LedgerEntry) error {
	_, err := q.db.Exec(ctx, `
		INSERT INTO points_ledger (id, user_id, delta, reason, reference, balance_after, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, entry.ID, entry.UserID, entry.Delta, string(entry.Reason), entry.Reference, entry.BalanceAfter, entry.CreatedAt)
	return err
}

func (q *Queries) ListLedgerEntries(ctx context.Context, userID string, limit int) ([]model.LedgerEntry, error) {
	rows, err := q.db.Query(ctx, `
		SELECT id, user_id, delta, reason, reference, balance_after, created_at
		FROM points_ledger
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	entries := []model.LedgerEntry{}
	for rows.Next() {
		var entry model.LedgerEntry
		var reason string
		if err := rows.Scan(&entry.ID, &entry.UserID, &entry.Delta, &reason, &entry.Reference, &entry.BalanceAfter, &entry.CreatedAt); err != nil {
			return nil, err
		}
		entry.Reason = model.LedgerReason(reason)
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

const deviceColumns = `id, name, key_hash, created_at, last_seen_at, revoked_at`

func scanDevice(row pgx.Row) (model.Device, error) {
	var device model.Device
	err := row.Scan(&device.ID, &device.Name, &device.KeyHash, &device.CreatedAt, &device.LastSeenAt, &device.RevokedAt)
	return device, err
}

func (q *Queries) CreateDevice(ctx context.Context, device model.Device) error {
	_, err := q.db.Exec(ctx, `
		INSERT INTO devices (id, name, key_hash, created_at)
		VALUES ($1, $2, $3, $4)
	`, device.ID, device.Name, device.KeyHash, device.CreatedAt)
	return err
}

func (q *Queries) GetDevice(ctx context.Context, id string) (model.Device, error) {
	return scanDevice(q.db.QueryRow(ctx, `SELECT `+deviceColumns+` FROM devices WHERE id = $1`, id))
}

func (q *Queries) ListDevices(ctx context.Context) ([]model.Device, error) {
	rows, err := q.db.Query(ctx, `SELECT `+deviceColumns+` FROM devices ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	devices := []model.Device{}
	for rows.Next() {
		device, err := scanDevice(rows)
		if err != nil {
			return nil, err
		}
		devices = append(devices, device)
	}
	return devices, rows.Err()
}

func (q *Queries) RevokeDevice(ctx context.Context, id string, now time.Time) (bool, error) {
	tag, err := q.db.Exec(ctx, `UPDATE devices SET revoked_at = $2 WHERE id = $1 AND revoked_at IS NULL`, id, now)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (q *Queries) TouchDevice(ctx context.Context, id string, now time.Time) error {
	_, err := q.db.Exec(ctx, `UPDATE devices SET last_seen_at = $2 WHERE id = $1`, id, now)
	return err
}
