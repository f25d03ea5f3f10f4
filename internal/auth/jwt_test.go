package auth

import (
	"testing"
	"time"

	"github.com/bass5068/bottle-redeem/internal/model"
)

func TestAccessTokenRoundTrip(t *testing.T) {
	token, err := NewAccessToken("secret", "issuer", time.Minute, Claims{
		UserID: "user-1",
		Email:  "user@example.com",
		Role:   "admin",
	})
	if err != nil {
		t.Fatalf("token error: %v", err)
	}

	claims, err := ParseToken("secret", "issuer", token)
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	if claims.UserID != "user-1" || claims.Email != "user@example.com" {
		t.Fatalf("unexpected claims")
	}
	actor := claims.Actor()
	if actor.Role != model.RoleAdmin || !actor.IsAdmin() {
		t.Fatalf("expected lower-case admin role to normalize, got %s", actor.Role)
	}
}

func TestParseTokenRejects(t *testing.T) {
	token, err := NewAccessToken("secret", "issuer", time.Minute, Claims{UserID: "user-1", Role: "USER"})
	if err != nil {
		t.Fatalf("token error: %v", err)
	}
	if _, err := ParseToken("other", "issuer", token); err == nil {
		t.Fatalf("expected signature mismatch")
	}
	if _, err := ParseToken("secret", "other-issuer", token); err == nil {
		t.Fatalf("expected issuer mismatch")
	}
	expired, err := NewAccessToken("secret", "issuer", -time.Minute, Claims{UserID: "user-1"})
	if err != nil {
		t.Fatalf("token error: %v", err)
	}
	if _, err := ParseToken("secret", "issuer", expired); err == nil {
		t.Fatalf("expected expired token to fail")
	}
}

func TestUnknownRoleDegradesToUser(t *testing.T) {
	claims := &Claims{UserID: "u", Role: "superuser"}
	if claims.Actor().Role != model.RoleUser {
		t.Fatalf("expected USER fallback")
	}
}
