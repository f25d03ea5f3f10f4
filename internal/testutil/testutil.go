package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/bass5068/bottle-redeem/internal/auth"
	"github.com/bass5068/bottle-redeem/internal/model"
)

const JWTSecret = "test-secret"

// Recorder is a notify.Notifier that keeps every alert.
type Recorder struct {
	mu       sync.Mutex
	messages []string
	Err      error
}

func (r *Recorder) Notify(_ context.Context, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, text)
	return r.Err
}

func (r *Recorder) Messages() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.messages...)
}

// Clock is a settable time source for Service.WithClock.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

func NewClock(start time.Time) *Clock {
	return &Clock{now: start}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func SeedUser(store *MemStore, id string, role model.Role, points int64) model.User {
	now := time.Now().UTC()
	user := model.User{
		ID:        id,
		Email:     id + "@example.com",
		Name:      "User " + id,
		Role:      role,
		Points:    points,
		CreatedAt: now,
		UpdatedAt: now,
	}
	store.PutUser(user)
	return user
}

func SeedReward(store *MemStore, id string, points int64, stock int) model.Reward {
	now := time.Now().UTC()
	reward := model.Reward{
		ID:        id,
		Name:      "Reward " + id,
		Points:    points,
		Stock:     stock,
		CreatedAt: now,
		UpdatedAt: now,
	}
	store.PutReward(reward)
	return reward
}

func MustToken(t *testing.T, userID string, role model.Role) string {
	t.Helper()
	token, err := auth.NewAccessToken(JWTSecret, "", time.Hour, auth.Claims{
		UserID: userID,
		Email:  userID + "@example.com",
		Role:   string(role),
	})
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

// DoReq sends payload as JSON (nil sends no body) and returns the response with its body read.
func DoReq(t *testing.T, method, url, token string, payload interface{}, headers ...string) (*http.Response, []byte) {
	t.Helper()
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal payload: %v", err)
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, url, body)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read response: %v", err)
	}
	return resp, raw
}

func Decode(t *testing.T, body []byte, into interface{}) {
	t.Helper()
	if err := json.Unmarshal(body, into); err != nil {
		t.Fatalf("decode %s: %v", string(body), err)
	}
}
