package ledger_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	promtest "github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/bass5068/bottle-redeem/internal/ledger"
	"github.com/bass5068/bottle-redeem/internal/metrics"
	"github.com/bass5068/bottle-redeem/internal/model"
	"github.com/bass5068/bottle-redeem/internal/testutil"
)

func TestRedeemDebitsPointsAndStock(t *testing.T) {
	svc, store, recorder, _ := newService(t)
	ctx := context.Background()
	testutil.SeedUser(store, "u1", model.RoleUser, 500)
	testutil.SeedReward(store, "r1", 300, 2)

	result, err := svc.Redeem(ctx, "u1", "r1")
	if err != nil {
		t.Fatalf("redeem: %v", err)
	}
	if result.RemainingPoints != 200 || result.RemainingStock != 1 {
		t.Fatalf("unexpected result %+v", result)
	}
	if result.Redemption.Status != model.StatusPending {
		t.Fatalf("expected PENDING, got %s", result.Redemption.Status)
	}
	user, _ := store.User("u1")
	reward, _ := store.Reward("r1")
	if user.Points != 200 || reward.Stock != 1 {
		t.Fatalf("expected points 200 and stock 1, got %d and %d", user.Points, reward.Stock)
	}
	entries := store.Entries()
	if len(entries) != 1 || entries[0].Delta != -300 || entries[0].Reason != model.ReasonRedemption {
		t.Fatalf("unexpected ledger entries %+v", entries)
	}
	if !anyContains(recorder.Messages(), "Low stock") {
		t.Fatalf("expected low stock alert, got %v", recorder.Messages())
	}
}

func TestRedeemFailuresLeaveNoMutation(t *testing.T) {
	svc, store, _, _ := newService(t)
	ctx := context.Background()
	testutil.SeedUser(store, "u1", model.RoleUser, 500)
	testutil.SeedReward(store, "empty", 300, 0)
	testutil.SeedReward(store, "pricey", 900, 5)

	cases := []struct {
		reward string
		want   error
	}{
		{"empty", ledger.ErrOutOfStock},
		{"pricey", ledger.ErrInsufficientPoints},
		{"missing", ledger.ErrRewardNotFound},
	}
	for _, tc := range cases {
		if _, err := svc.Redeem(ctx, "u1", tc.reward); !errors.Is(err, tc.want) {
			t.Fatalf("reward %s: expected %v, got %v", tc.reward, tc.want, err)
		}
	}
	if _, err := svc.Redeem(ctx, "ghost", "pricey"); !errors.Is(err, ledger.ErrUserNotFound) {
		t.Fatalf("expected user_not_found, got %v", err)
	}

	user, _ := store.User("u1")
	pricey, _ := store.Reward("pricey")
	if user.Points != 500 || pricey.Stock != 5 {
		t.Fatalf("failed redeem mutated state: points=%d stock=%d", user.Points, pricey.Stock)
	}
	if len(store.Redemptions()) != 0 || len(store.Entries()) != 0 {
		t.Fatalf("failed redeem left records behind")
	}
}

func TestRedeemRollsBackOnStorageError(t *testing.T) {
	svc, store, recorder, _ := newService(t)
	ctx := context.Background()
	testutil.SeedUser(store, "u1", model.RoleUser, 500)
	testutil.SeedReward(store, "r1", 300, 2)
	boom := errors.New("disk full")
	store.FailOn("CreateRedemption", boom)

	if _, err := svc.Redeem(ctx, "u1", "r1"); !errors.Is(err, boom) {
		t.Fatalf("expected storage error, got %v", err)
	}
	user, _ := store.User("u1")
	reward, _ := store.Reward("r1")
	if user.Points != 500 || reward.Stock != 2 {
		t.Fatalf("partial mutation observed: points=%d stock=%d", user.Points, reward.Stock)
	}
	if len(recorder.Messages()) != 0 {
		t.Fatalf("no alert expected for a failed redemption")
	}
}

func TestConcurrentRedeemOfLastUnit(t *testing.T) {
	svc, store, _, _ := newService(t)
	ctx := context.Background()
	testutil.SeedReward(store, "last", 100, 1)
	for i := 0; i < 10; i++ {
		testutil.SeedUser(store, "u"+string(rune('a'+i)), model.RoleUser, 1000)
	}

	var wins, outOfStock int32
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_, err := svc.Redeem(ctx, id, "last")
			switch {
			case err == nil:
				atomic.AddInt32(&wins, 1)
			case errors.Is(err, ledger.ErrOutOfStock):
				atomic.AddInt32(&outOfStock, 1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}("u" + string(rune('a'+i)))
	}
	wg.Wait()
	if wins != 1 || outOfStock != 9 {
		t.Fatalf("expected exactly one winner, got wins=%d out_of_stock=%d", wins, outOfStock)
	}
	reward, _ := store.Reward("last")
	if reward.Stock != 0 {
		t.Fatalf("expected stock 0, got %d", reward.Stock)
	}
}

func TestConcurrentRedeemNeverOverdrawsPoints(t *testing.T) {
	svc, store, _, _ := newService(t)
	ctx := context.Background()
	testutil.SeedUser(store, "u1", model.RoleUser, 250)
	testutil.SeedReward(store, "r1", 100, 50)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = svc.Redeem(ctx, "u1", "r1")
		}()
	}
	wg.Wait()
	user, _ := store.User("u1")
	if user.Points != 50 {
		t.Fatalf("expected 50 points left, got %d", user.Points)
	}
	if len(store.Redemptions()) != 2 {
		t.Fatalf("expected 2 redemptions, got %d", len(store.Redemptions()))
	}
}

func seedRedemption(store *testutil.MemStore, id, userID string, status model.RedemptionStatus) {
	store.PutRedemption(model.Redemption{ID: id, UserID: userID, RewardID: "r1", Points: 100, Status: status})
}

func TestRedemptionStatusLifecycle(t *testing.T) {
	svc, store, _, _ := newService(t)
	ctx := context.Background()
	seedRedemption(store, "red1", "owner", model.StatusPending)
	admin := model.Actor{UserID: "admin", Role: model.RoleAdmin}
	owner := model.Actor{UserID: "owner", Role: model.RoleUser}
	stranger := model.Actor{UserID: "stranger", Role: model.RoleUser}

	updated, err := svc.UpdateRedemptionStatus(ctx, admin, "red1", "SHIPPED")
	if err != nil || updated.Status != model.StatusShipped {
		t.Fatalf("admin ship: status=%s err=%v", updated.Status, err)
	}
	if _, err := svc.UpdateRedemptionStatus(ctx, stranger, "red1", "COMPLETED"); !errors.Is(err, ledger.ErrForbidden) {
		t.Fatalf("expected forbidden for stranger, got %v", err)
	}
	if current, _ := store.Redemption("red1"); current.Status != model.StatusShipped {
		t.Fatalf("forbidden update changed the record to %s", current.Status)
	}
	updated, err = svc.UpdateRedemptionStatus(ctx, owner, "red1", "completed")
	if err != nil || updated.Status != model.StatusCompleted {
		t.Fatalf("owner complete: status=%s err=%v", updated.Status, err)
	}
}

func TestOwnerCannotSkipOrReverse(t *testing.T) {
	svc, store, _, _ := newService(t)
	ctx := context.Background()
	seedRedemption(store, "pending", "owner", model.StatusPending)
	seedRedemption(store, "shipped", "owner", model.StatusShipped)
	owner := model.Actor{UserID: "owner", Role: model.RoleUser}

	if _, err := svc.UpdateRedemptionStatus(ctx, owner, "pending", "COMPLETED"); !errors.Is(err, ledger.ErrForbidden) {
		t.Fatalf("expected forbidden skipping PENDING->COMPLETED, got %v", err)
	}
	if _, err := svc.UpdateRedemptionStatus(ctx, owner, "pending", "SHIPPED"); !errors.Is(err, ledger.ErrForbidden) {
		t.Fatalf("expected forbidden for PENDING->SHIPPED, got %v", err)
	}
	if _, err := svc.UpdateRedemptionStatus(ctx, owner, "shipped", "PENDING"); !errors.Is(err, ledger.ErrForbidden) {
		t.Fatalf("expected forbidden for reverse, got %v", err)
	}
}

func TestStatusValidationErrors(t *testing.T) {
	svc, store, _, _ := newService(t)
	ctx := context.Background()
	seedRedemption(store, "red1", "owner", model.StatusPending)
	admin := model.Actor{UserID: "admin", Role: model.RoleAdmin}

	if _, err := svc.UpdateRedemptionStatus(ctx, admin, "red1", "LOST"); !errors.Is(err, ledger.ErrInvalidStatus) {
		t.Fatalf("expected invalid_status, got %v", err)
	}
	if _, err := svc.UpdateRedemptionStatus(ctx, admin, "missing", "SHIPPED"); !errors.Is(err, ledger.ErrRedemptionNotFound) {
		t.Fatalf("expected redemption_not_found, got %v", err)
	}
	// admins may jump directly unless forward-only is configured
	if _, err := svc.UpdateRedemptionStatus(ctx, admin, "red1", "COMPLETED"); err != nil {
		t.Fatalf("admin direct set: %v", err)
	}
}

func TestAdminForwardOnly(t *testing.T) {
	store := testutil.NewMemStore()
	opts := ledger.DefaultOptions()
	opts.AdminForwardOnly = true
	svc := ledger.NewService(store, nil, opts)
	ctx := context.Background()
	seedRedemption(store, "red1", "owner", model.StatusPending)
	admin := model.Actor{UserID: "admin", Role: model.RoleAdmin}

	if _, err := svc.UpdateRedemptionStatus(ctx, admin, "red1", "COMPLETED"); !errors.Is(err, ledger.ErrInvalidTransition) {
		t.Fatalf("expected invalid_transition, got %v", err)
	}
	if _, err := svc.UpdateRedemptionStatus(ctx, admin, "red1", "SHIPPED"); err != nil {
		t.Fatalf("forward step: %v", err)
	}
	if _, err := svc.UpdateRedemptionStatus(ctx, admin, "red1", "PENDING"); !errors.Is(err, ledger.ErrInvalidTransition) {
		t.Fatalf("expected invalid_transition on reverse, got %v", err)
	}
}

func TestHistoryKeepsDeletedRewards(t *testing.T) {
	svc, store, _, _ := newService(t)
	ctx := context.Background()
	testutil.SeedUser(store, "u1", model.RoleUser, 1000)
	testutil.SeedReward(store, "r1", 100, 5)
	if _, err := svc.Redeem(ctx, "u1", "r1"); err != nil {
		t.Fatalf("redeem: %v", err)
	}
	if err := svc.DeleteReward(ctx, "r1"); err != nil {
		t.Fatalf("delete reward: %v", err)
	}
	history, err := svc.UserHistory(ctx, "u1")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 1 || history[0].Reward != nil || history[0].RewardID != "r1" {
		t.Fatalf("expected dangling reward reference, got %+v", history)
	}
	all, err := svc.AllHistory(ctx)
	if err != nil || len(all) != 1 || all[0].User == nil {
		t.Fatalf("unexpected admin history %+v err=%v", all, err)
	}
}

func anyContains(messages []string, part string) bool {
	for _, msg := range messages {
		if strings.Contains(msg, part) {
			return true
		}
	}
	return false
}

func TestSameStatusUpdateIsNotCounted(t *testing.T) {
	svc, store, _, _ := newService(t)
	ctx := context.Background()
	seedRedemption(store, "red1", "owner", model.StatusPending)
	admin := model.Actor{UserID: "admin", Role: model.RoleAdmin}
	shipped := metrics.StatusTransitions.WithLabelValues(string(model.StatusShipped))
	before := promtest.ToFloat64(shipped)

	if _, err := svc.UpdateRedemptionStatus(ctx, admin, "red1", "SHIPPED"); err != nil {
		t.Fatalf("ship: %v", err)
	}
	if _, err := svc.UpdateRedemptionStatus(ctx, admin, "red1", "SHIPPED"); err != nil {
		t.Fatalf("repeat ship should be a no-op, got %v", err)
	}
	if got := promtest.ToFloat64(shipped) - before; got != 1 {
		t.Fatalf("expected one counted transition, got %v", got)
	}
}
