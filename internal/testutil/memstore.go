package testutil

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/bass5068/bottle-redeem/internal/ledger"
	"github.com/bass5068/bottle-redeem/internal/model"
)

// MemStore is an in-memory ledger.Store. A transaction holds the store lock for its
// whole duration and restores a snapshot when fn fails, so tests observe the same
// all-or-nothing behavior PostgreSQL gives.
type MemStore struct {
	mu     sync.Mutex
	state  memState
	failOn map[string]error
}

type memState struct {
	users       map[string]model.User
	tokens      map[string]model.QRToken
	rewards     map[string]model.Reward
	redemptions map[string]model.Redemption
	entries     []model.LedgerEntry
	devices     map[string]model.Device
}

func NewMemStore() *MemStore {
	return &MemStore{
		state: memState{
			users:       map[string]model.User{},
			tokens:      map[string]model.QRToken{},
			rewards:     map[string]model.Reward{},
			redemptions: map[string]model.Redemption{},
			devices:     map[string]model.Device{},
		},
		failOn: map[string]error{},
	}
}

func (s memState) clone() memState {
	out := memState{
		users:       make(map[string]model.User, len(s.users)),
		tokens:      make(map[string]model.QRToken, len(s.tokens)),
		rewards:     make(map[string]model.Reward, len(s.rewards)),
		redemptions: make(map[string]model.Redemption, len(s.redemptions)),
		entries:     append([]model.LedgerEntry(nil), s.entries...),
		devices:     make(map[string]model.Device, len(s.devices)),
	}
	for k, v := range s.users {
		out.users[k] = v
	}
	for k, v := range s.tokens {
		out.tokens[k] = v
	}
	for k, v := range s.rewards {
		out.rewards[k] = v
	}
	for k, v := range s.redemptions {
		out.redemptions[k] = v
	}
	for k, v := range s.devices {
		out.devices[k] = v
	}
	return out
}

func (s *MemStore) Reader() ledger.Queries {
	return &memQueries{store: s}
}

func (s *MemStore) WithinTx(ctx context.Context, fn func(ledger.Queries) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	snapshot := s.state.clone()
	if err := fn(&memQueries{store: s, tx: true}); err != nil {
		s.state = snapshot
		return err
	}
	return nil
}

// FailOn makes the next call to the named query method return err.
func (s *MemStore) FailOn(method string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failOn[method] = err
}

func (s *MemStore) PutUser(user model.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.users[user.ID] = user
}

func (s *MemStore) PutReward(reward model.Reward) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.rewards[reward.ID] = reward
}

func (s *MemStore) PutToken(token model.QRToken) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.tokens[token.Token] = token
}

func (s *MemStore) PutRedemption(redemption model.Redemption) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.redemptions[redemption.ID] = redemption
}

func (s *MemStore) User(id string) (model.User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.state.users[id]
	return user, ok
}

func (s *MemStore) Reward(id string) (model.Reward, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	reward, ok := s.state.rewards[id]
	return reward, ok
}

func (s *MemStore) Token(value string) (model.QRToken, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	token, ok := s.state.tokens[value]
	return token, ok
}

func (s *MemStore) Redemption(id string) (model.Redemption, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	redemption, ok := s.state.redemptions[id]
	return redemption, ok
}

func (s *MemStore) Redemptions() []model.Redemption {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Redemption, 0, len(s.state.redemptions))
	for _, r := range s.state.redemptions {
		out = append(out, r)
	}
	return out
}

func (s *MemStore) Entries() []model.LedgerEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.LedgerEntry(nil), s.state.entries...)
}

type memQueries struct {
	store *MemStore
	tx    bool
}

// begin locks the store for non-transactional calls and consumes any injected failure.
func (q *memQueries) begin(method string) (func(), error) {
	unlock := func() {}
	if !q.tx {
		q.store.mu.Lock()
		unlock = q.store.mu.Unlock
	}
	if err, ok := q.store.failOn[method]; ok {
		delete(q.store.failOn, method)
		return unlock, err
	}
	return unlock, nil
}

func uniqueViolation(constraint string) error {
	return &pgconn.PgError{Code: "23505", ConstraintName: constraint}
}

func (q *memQueries) GetUser(_ context.Context, id string) (model.User, error) {
	done, err := q.begin("GetUser")
	defer done()
	if err != nil {
		return model.User{}, err
	}
	user, ok := q.store.state.users[id]
	if !ok {
		return model.User{}, pgx.ErrNoRows
	}
	return user, nil
}

func (q *memQueries) GetUserByEmail(_ context.Context, email string) (model.User, error) {
	done, err := q.begin("GetUserByEmail")
	defer done()
	if err != nil {
		return model.User{}, err
	}
	for _, user := range q.store.state.users {
		if user.Email == email {
			return user, nil
		}
	}
	return model.User{}, pgx.ErrNoRows
}

func (q *memQueries) ListUsers(_ context.Context) ([]model.User, error) {
	done, err := q.begin("ListUsers")
	defer done()
	if err != nil {
		return nil, err
	}
	out := make([]model.User, 0, len(q.store.state.users))
	for _, user := range q.store.state.users {
		out = append(out, user)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (q *memQueries) CreateUser(_ context.Context, user model.User) error {
	done, err := q.begin("CreateUser")
	defer done()
	if err != nil {
		return err
	}
	if _, ok := q.store.state.users[user.ID]; ok {
		return uniqueViolation("users_pkey")
	}
	for _, existing := range q.store.state.users {
		if existing.Email == user.Email {
			return uniqueViolation("users_email_key")
		}
	}
	q.store.state.users[user.ID] = user
	return nil
}

func (q *memQueries) UpdateUserProfile(_ context.Context, id, name string, image *string, now time.Time) (model.User, error) {
	done, err := q.begin("UpdateUserProfile")
	defer done()
	if err != nil {
		return model.User{}, err
	}
	user, ok := q.store.state.users[id]
	if !ok {
		return model.User{}, pgx.ErrNoRows
	}
	user.Name = name
	user.Image = image
	user.UpdatedAt = now
	q.store.state.users[id] = user
	return user, nil
}

func (q *memQueries) CreditUserPoints(_ context.Context, id string, delta int64, now time.Time) (int64, error) {
	done, err := q.begin("CreditUserPoints")
	defer done()
	if err != nil {
		return 0, err
	}
	user, ok := q.store.state.users[id]
	if !ok {
		return 0, pgx.ErrNoRows
	}
	user.Points += delta
	user.UpdatedAt = now
	q.store.state.users[id] = user
	return user.Points, nil
}

func (q *memQueries) DebitUserPoints(_ context.Context, id string, amount int64, now time.Time) (int64, bool, error) {
	done, err := q.begin("DebitUserPoints")
	defer done()
	if err != nil {
		return 0, false, err
	}
	user, ok := q.store.state.users[id]
	if !ok || user.Points < amount {
		return 0, false, nil
	}
	user.Points -= amount
	user.UpdatedAt = now
	q.store.state.users[id] = user
	return user.Points, true, nil
}

func (q *memQueries) CreateToken(_ context.Context, token model.QRToken) error {
	done, err := q.begin("CreateToken")
	defer done()
	if err != nil {
		return err
	}
	if _, ok := q.store.state.tokens[token.Token]; ok {
		return uniqueViolation("qr_tokens_pkey")
	}
	q.store.state.tokens[token.Token] = token
	return nil
}

func (q *memQueries) GetToken(_ context.Context, value string) (model.QRToken, error) {
	done, err := q.begin("GetToken")
	defer done()
	if err != nil {
		return model.QRToken{}, err
	}
	token, ok := q.store.state.tokens[value]
	if !ok {
		return model.QRToken{}, pgx.ErrNoRows
	}
	return token, nil
}

func (q *memQueries) ConsumeToken(_ context.Context, value string, userID *string, now time.Time) (model.QRToken, bool, error) {
	done, err := q.begin("ConsumeToken")
	defer done()
	if err != nil {
		return model.QRToken{}, false, err
	}
	token, ok := q.store.state.tokens[value]
	if !ok || token.Used || !now.Before(token.ExpiresAt) {
		return model.QRToken{}, false, nil
	}
	token.Used = true
	token.UsedAt = &now
	token.UsedBy = userID
	q.store.state.tokens[value] = token
	return token, true, nil
}

func (q *memQueries) MarkTokenCredited(_ context.Context, value, userID string, now time.Time) (model.QRToken, bool, error) {
	done, err := q.begin("MarkTokenCredited")
	defer done()
	if err != nil {
		return model.QRToken{}, false, err
	}
	token, ok := q.store.state.tokens[value]
	if !ok || !token.Used || token.UsedBy == nil || *token.UsedBy != userID || token.CreditedAt != nil {
		return model.QRToken{}, false, nil
	}
	token.CreditedAt = &now
	q.store.state.tokens[value] = token
	return token, true, nil
}

func (q *memQueries) DeleteExpiredTokens(_ context.Context, before time.Time) (int64, error) {
	done, err := q.begin("DeleteExpiredTokens")
	defer done()
	if err != nil {
		return 0, err
	}
	var n int64
	for value, token := range q.store.state.tokens {
		if !token.Used && token.ExpiresAt.Before(before) {
			delete(q.store.state.tokens, value)
			n++
		}
	}
	return n, nil
}

func (q *memQueries) ListRewards(_ context.Context) ([]model.Reward, error) {
	done, err := q.begin("ListRewards")
	defer done()
	if err != nil {
		return nil, err
	}
	out := make([]model.Reward, 0, len(q.store.state.rewards))
	for _, reward := range q.store.state.rewards {
		out = append(out, reward)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (q *memQueries) GetReward(_ context.Context, id string) (model.Reward, error) {
	done, err := q.begin("GetReward")
	defer done()
	if err != nil {
		return model.Reward{}, err
	}
	reward, ok := q.store.state.rewards[id]
	if !ok {
		return model.Reward{}, pgx.ErrNoRows
	}
	return reward, nil
}

func (q *memQueries) CreateReward(_ context.Context, reward model.Reward) error {
	done, err := q.begin("CreateReward")
	defer done()
	if err != nil {
		return err
	}
	if _, ok := q.store.state.rewards[reward.ID]; ok {
		return uniqueViolation("rewards_pkey")
	}
	q.store.state.rewards[reward.ID] = reward
	return nil
}

func (q *memQueries) UpdateReward(_ context.Context, reward model.Reward) (model.Reward, error) {
	done, err := q.begin("UpdateReward")
	defer done()
	if err != nil {
		return model.Reward{}, err
	}
	current, ok := q.store.state.rewards[reward.ID]
	if !ok {
		return model.Reward{}, pgx.ErrNoRows
	}
	reward.CreatedAt = current.CreatedAt
	q.store.state.rewards[reward.ID] = reward
	return reward, nil
}

func (q *memQueries) DeleteReward(_ context.Context, id string) error {
	done, err := q.begin("DeleteReward")
	defer done()
	if err != nil {
		return err
	}
	if _, ok := q.store.state.rewards[id]; !ok {
		return pgx.ErrNoRows
	}
	delete(q.store.state.rewards, id)
	return nil
}

func (q *memQueries) SetRewardImage(_ context.Context, id, imageURL string, now time.Time) (model.Reward, error) {
	done, err := q.begin("SetRewardImage")
	defer done()
	if err != nil {
		return model.Reward{}, err
	}
	reward, ok := q.store.state.rewards[id]
	if !ok {
		return model.Reward{}, pgx.ErrNoRows
	}
	reward.Image = &imageURL
	reward.UpdatedAt = now
	q.store.state.rewards[id] = reward
	return reward, nil
}

func (q *memQueries) DecrementRewardStock(_ context.Context, id string, now time.Time) (int, bool, error) {
	done, err := q.begin("DecrementRewardStock")
	defer done()
	if err != nil {
		return 0, false, err
	}
	reward, ok := q.store.state.rewards[id]
	if !ok || reward.Stock <= 0 {
		return 0, false, nil
	}
	reward.Stock--
	reward.UpdatedAt = now
	q.store.state.rewards[id] = reward
	return reward.Stock, true, nil
}

func (q *memQueries) CreateRedemption(_ context.Context, redemption model.Redemption) error {
	done, err := q.begin("CreateRedemption")
	defer done()
	if err != nil {
		return err
	}
	if _, ok := q.store.state.redemptions[redemption.ID]; ok {
		return uniqueViolation("redemptions_pkey")
	}
	q.store.state.redemptions[redemption.ID] = redemption
	return nil
}

func (q *memQueries) GetRedemption(_ context.Context, id string) (model.Redemption, error) {
	done, err := q.begin("GetRedemption")
	defer done()
	if err != nil {
		return model.Redemption{}, err
	}
	redemption, ok := q.store.state.redemptions[id]
	if !ok {
		return model.Redemption{}, pgx.ErrNoRows
	}
	return redemption, nil
}

func (q *memQueries) UpdateRedemptionStatus(_ context.Context, id string, from, to model.RedemptionStatus, now time.Time) (model.Redemption, bool, error) {
	done, err := q.begin("UpdateRedemptionStatus")
	defer done()
	if err != nil {
		return model.Redemption{}, false, err
	}
	redemption, ok := q.store.state.redemptions[id]
	if !ok || redemption.Status != from {
		return model.Redemption{}, false, nil
	}
	redemption.Status = to
	redemption.UpdatedAt = now
	q.store.state.redemptions[id] = redemption
	return redemption, true, nil
}

func (q *memQueries) ListRedemptionsByUser(_ context.Context, userID string) ([]model.RedemptionDetail, error) {
	done, err := q.begin("ListRedemptionsByUser")
	defer done()
	if err != nil {
		return nil, err
	}
	return q.details(func(r model.Redemption) bool { return r.UserID == userID }), nil
}

func (q *memQueries) ListRedemptions(_ context.Context) ([]model.RedemptionDetail, error) {
	done, err := q.begin("ListRedemptions")
	defer done()
	if err != nil {
		return nil, err
	}
	return q.details(func(model.Redemption) bool { return true }), nil
}

// details joins redemptions with users and rewards, newest first.
func (q *memQueries) details(keep func(model.Redemption) bool) []model.RedemptionDetail {
	out := []model.RedemptionDetail{}
	for _, r := range q.store.state.redemptions {
		if !keep(r) {
			continue
		}
		detail := model.RedemptionDetail{Redemption: r}
		if user, ok := q.store.state.users[r.UserID]; ok {
			detail.User = &user
		}
		if reward, ok := q.store.state.rewards[r.RewardID]; ok {
			detail.Reward = &reward
		}
		out = append(out, detail)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

func (q *memQueries) InsertLedgerEntry(_ context.Context, entry model.LedgerEntry) error {
	done, err := q.begin("InsertLedgerEntry")
	defer done()
	if err != nil {
		return err
	}
	q.store.state.entries = append(q.store.state.entries, entry)
	return nil
}

func (q *memQueries) ListLedgerEntries(_ context.Context, userID string, limit int) ([]model.LedgerEntry, error) {
	done, err := q.begin("ListLedgerEntries")
	defer done()
	if err != nil {
		return nil, err
	}
	out := []model.LedgerEntry{}
	for i := len(q.store.state.entries) - 1; i >= 0 && len(out) < limit; i-- {
		if entry := q.store.state.entries[i]; entry.UserID == userID {
			out = append(out, entry)
		}
	}
	return out, nil
}

func (q *memQueries) CreateDevice(_ context.Context, device model.Device) error {
	done, err := q.begin("CreateDevice")
	defer done()
	if err != nil {
		return err
	}
	if _, ok := q.store.state.devices[device.ID]; ok {
		return uniqueViolation("devices_pkey")
	}
	q.store.state.devices[device.ID] = device
	return nil
}

func (q *memQueries) GetDevice(_ context.Context, id string) (model.Device, error) {
	done, err := q.begin("GetDevice")
	defer done()
	if err != nil {
		return model.Device{}, err
	}
	device, ok := q.store.state.devices[id]
	if !ok {
		return model.Device{}, pgx.ErrNoRows
	}
	return device, nil
}

func (q *memQueries) ListDevices(_ context.Context) ([]model.Device, error) {
	done, err := q.begin("ListDevices")
	defer done()
	if err != nil {
		return nil, err
	}
	out := make([]model.Device, 0, len(q.store.state.devices))
	for _, device := range q.store.state.devices {
		out = append(out, device)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (q *memQueries) RevokeDevice(_ context.Context, id string, now time.Time) (bool, error) {
	done, err := q.begin("RevokeDevice")
	defer done()
	if err != nil {
		return false, err
	}
	device, ok := q.store.state.devices[id]
	if !ok || device.RevokedAt != nil {
		return false, nil
	}
	device.RevokedAt = &now
	q.store.state.devices[id] = device
	return true, nil
}

func (q *memQueries) TouchDevice(_ context.Context, id string, now time.Time) error {
	done, err := q.begin("TouchDevice")
	defer done()
	if err != nil {
		return err
	}
	device, ok := q.store.state.devices[id]
	if !ok {
		return pgx.ErrNoRows
	}
	device.LastSeenAt = &now
	q.store.state.devices[id] = device
	return nil
}

var _ ledger.Store = (*MemStore)(nil)
