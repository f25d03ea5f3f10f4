package ledger_test

import (
	"context"
	"errors"
	"testing"

	"github.com/bass5068/bottle-redeem/internal/ledger"
	"github.com/bass5068/bottle-redeem/internal/model"
	"github.com/bass5068/bottle-redeem/internal/testutil"
)

func TestSyncUserCreatesOnce(t *testing.T) {
	svc, _, _, _ := newService(t)
	ctx := context.Background()

	user, created, err := svc.SyncUser(ctx, ledger.NewUser{ID: "cuid1", Email: "A@Example.com", Name: "Ann", Role: model.RoleAdmin})
	if err != nil || !created {
		t.Fatalf("first sync: created=%v err=%v", created, err)
	}
	if user.Role != model.RoleUser || user.Points != 0 || user.Email != "a@example.com" {
		t.Fatalf("unexpected new user %+v", user)
	}
	again, created, err := svc.SyncUser(ctx, ledger.NewUser{ID: "cuid1", Email: "a@example.com"})
	if err != nil || created || again.ID != "cuid1" {
		t.Fatalf("second sync: created=%v err=%v user=%+v", created, err, again)
	}
}

func TestCreateUserConflict(t *testing.T) {
	svc, _, _, _ := newService(t)
	ctx := context.Background()
	if _, err := svc.CreateUser(ctx, ledger.NewUser{Email: "b@example.com", Name: "B", Role: model.RoleAdmin}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := svc.CreateUser(ctx, ledger.NewUser{Email: "B@example.com", Name: "B2"}); !errors.Is(err, ledger.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if _, err := svc.CreateUser(ctx, ledger.NewUser{Email: "not-an-email"}); !errors.Is(err, ledger.ErrInvalidInput) {
		t.Fatalf("expected invalid_input, got %v", err)
	}
}

func TestUpdateProfileKeepsImage(t *testing.T) {
	svc, store, _, _ := newService(t)
	ctx := context.Background()
	testutil.SeedUser(store, "u1", model.RoleUser, 40)
	if _, err := svc.SetUserImage(ctx, "u1", "/uploads/u1.png"); err != nil {
		t.Fatalf("set image: %v", err)
	}
	user, err := svc.UpdateProfile(ctx, "u1", "New Name", nil)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if user.Name != "New Name" || user.Image == nil || *user.Image != "/uploads/u1.png" {
		t.Fatalf("unexpected profile %+v", user)
	}
	summary, err := svc.PointsSummary(ctx, "u1")
	if err != nil || summary.Points != 40 || summary.Name != "New Name" {
		t.Fatalf("summary %+v err=%v", summary, err)
	}
	if _, err := svc.UpdateProfile(ctx, "u1", " ", nil); !errors.Is(err, ledger.ErrInvalidInput) {
		t.Fatalf("expected invalid_input, got %v", err)
	}
	if _, err := svc.PointsSummary(ctx, "ghost"); !errors.Is(err, ledger.ErrUserNotFound) {
		t.Fatalf("expected user_not_found, got %v", err)
	}
}
