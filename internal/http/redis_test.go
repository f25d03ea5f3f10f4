package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"

	"github.com/bass5068/bottle-redeem/internal/config"
	"github.com/bass5068/bottle-redeem/internal/ledger"
	"github.com/bass5068/bottle-redeem/internal/model"
	"github.com/bass5068/bottle-redeem/internal/testutil"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, client
}

func redisConfig(rateLimit int) config.Config {
	return config.Config{
		JWTSecret:       testutil.JWTSecret,
		DeviceTokenTTL:  5 * time.Minute,
		DeviceRateLimit: rateLimit,
		IdempotencyTTL:  24 * time.Hour,
	}
}

func newRedisApp(t *testing.T, rateLimit int) (*testApp, *miniredis.Miniredis) {
	t.Helper()
	mr, client := newTestRedis(t)
	store := testutil.NewMemStore()
	recorder := &testutil.Recorder{}
	svc := ledger.NewService(store, recorder, ledger.DefaultOptions())
	app := httptest.NewServer(NewServer(redisConfig(rateLimit), svc, nil, client).Router())
	t.Cleanup(app.Close)
	return &testApp{url: app.URL, store: store, svc: svc, alert: recorder}, mr
}

func idempotencyKeys(mr *miniredis.Miniredis) []string {
	var keys []string
	for _, key := range mr.Keys() {
		if strings.HasPrefix(key, "idempotency:") {
			keys = append(keys, key)
		}
	}
	return keys
}

func TestIdempotentRedeemReplays(t *testing.T) {
	app, mr := newRedisApp(t, 0)
	testutil.SeedUser(app.store, "u1", model.RoleUser, 500)
	testutil.SeedReward(app.store, "r1", 300, 5)
	token := testutil.MustToken(t, "u1", model.RoleUser)

	first, firstBody := testutil.DoReq(t, http.MethodPost, app.url+"/api/routers/redeem", token, map[string]string{"rewardId": "r1"}, "Idempotency-Key", "k1")
	if first.StatusCode != http.StatusOK {
		t.Fatalf("first redeem: %d %s", first.StatusCode, firstBody)
	}
	second, secondBody := testutil.DoReq(t, http.MethodPost, app.url+"/api/routers/redeem", token, map[string]string{"rewardId": "r1"}, "Idempotency-Key", "k1")
	if second.StatusCode != http.StatusOK || second.Header.Get("Idempotent-Replayed") != "true" {
		t.Fatalf("retry should replay, got %d headers %v", second.StatusCode, second.Header)
	}
	var a, b redeemResponse
	testutil.Decode(t, firstBody, &a)
	testutil.Decode(t, secondBody, &b)
	if a.Redemption.ID != b.Redemption.ID {
		t.Fatalf("replay returned a different redemption")
	}
	if user, _ := app.store.User("u1"); user.Points != 200 {
		t.Fatalf("retry debited twice: points %d", user.Points)
	}
	if len(app.store.Redemptions()) != 1 {
		t.Fatalf("expected one redemption, got %d", len(app.store.Redemptions()))
	}
	keys := idempotencyKeys(mr)
	if len(keys) != 1 {
		t.Fatalf("expected one stored key, got %v", keys)
	}
	if ttl := mr.TTL(keys[0]); ttl != 24*time.Hour {
		t.Fatalf("stored response should live for the idempotency ttl, got %s", ttl)
	}
}

func TestIdempotentStoresAfterClientGoesAway(t *testing.T) {
	mr, client := newTestRedis(t)
	s := &Server{cfg: redisConfig(0), redis: client}
	calls := 0
	handler := s.idempotent(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		writeJSON(w, http.StatusOK, map[string]int{"calls": calls})
		if cancel, ok := r.Context().Value(cancelKey{}).(context.CancelFunc); ok {
			cancel()
		}
	}))

	ctx, cancel := context.WithCancel(context.Background())
	ctx = context.WithValue(ctx, cancelKey{}, cancel)
	req := httptest.NewRequest(http.MethodPost, "/api/routers/redeem", nil).WithContext(ctx)
	req.Header.Set("Idempotency-Key", "k1")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	keys := idempotencyKeys(mr)
	if len(keys) != 1 {
		t.Fatalf("expected one key, got %v", keys)
	}
	if value, _ := mr.Get(keys[0]); value == idempotencyPending {
		t.Fatalf("response was not stored after cancellation")
	}

	retry := httptest.NewRequest(http.MethodPost, "/api/routers/redeem", nil)
	retry.Header.Set("Idempotency-Key", "k1")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, retry)
	if rec.Code != http.StatusOK || rec.Header().Get("Idempotent-Replayed") != "true" || calls != 1 {
		t.Fatalf("retry should replay: status %d calls %d body %s", rec.Code, calls, rec.Body.String())
	}
}

type cancelKey struct{}

func TestIdempotentReleasesOnServerError(t *testing.T) {
	mr, client := newTestRedis(t)
	s := &Server{cfg: redisConfig(0), redis: client}
	calls := 0
	handler := s.idempotent(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			writeError(w, http.StatusInternalServerError, "server_error")
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}))

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/add-points", nil)
		req.Header.Set("Idempotency-Key", "k1")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if i == 0 && rec.Code != http.StatusInternalServerError {
			t.Fatalf("first call: expected 500, got %d", rec.Code)
		}
		if i == 0 && len(idempotencyKeys(mr)) != 0 {
			t.Fatalf("failed request should release its key")
		}
		if i == 1 && (rec.Code != http.StatusOK || rec.Header().Get("Idempotent-Replayed") != "") {
			t.Fatalf("retry after 500 should run the handler, got %d", rec.Code)
		}
	}
	if calls != 2 {
		t.Fatalf("expected handler to run twice, ran %d", calls)
	}
}

func TestIdempotentReleasesOnPanic(t *testing.T) {
	mr, client := newTestRedis(t)
	s := &Server{cfg: redisConfig(0), redis: client}
	handler := middleware.Recoverer(s.idempotent(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	})))
	req := httptest.NewRequest(http.MethodPost, "/api/add-points", nil)
	req.Header.Set("Idempotency-Key", "k1")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	if keys := idempotencyKeys(mr); len(keys) != 0 {
		t.Fatalf("panicking request left key %v", keys)
	}
}

func TestIdempotentPendingReservationExpires(t *testing.T) {
	mr, client := newTestRedis(t)
	s := &Server{cfg: redisConfig(0), redis: client}
	release := make(chan struct{})
	started := make(chan struct{})
	handler := s.idempotent(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(started)
		<-release
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}))

	done := make(chan struct{})
	go func() {
		defer close(done)
		req := httptest.NewRequest(http.MethodPost, "/api/add-points", nil)
		req.Header.Set("Idempotency-Key", "k1")
		handler.ServeHTTP(httptest.NewRecorder(), req)
	}()
	<-started

	dup := httptest.NewRequest(http.MethodPost, "/api/add-points", nil)
	dup.Header.Set("Idempotency-Key", "k1")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, dup)
	if rec.Code != http.StatusConflict || !strings.Contains(rec.Body.String(), "request_in_progress") {
		t.Fatalf("concurrent duplicate: expected 409 request_in_progress, got %d %s", rec.Code, rec.Body.String())
	}
	keys := idempotencyKeys(mr)
	if len(keys) != 1 || mr.TTL(keys[0]) != idempotencyPendingTTL {
		t.Fatalf("reservation should use the pending ttl, got %v", keys)
	}
	close(release)
	<-done
}

func TestDeviceRateLimit(t *testing.T) {
	app, mr := newRedisApp(t, 2)
	device, key, err := app.svc.RegisterDevice(context.Background(), "kiosk")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	for i := 0; i < 3; i++ {
		resp, _ := testutil.DoReq(t, http.MethodPost, app.url+"/api/esp-request-token", "", nil, "X-Device-ID", device.ID, "X-Device-Key", key)
		want := http.StatusOK
		if i == 2 {
			want = http.StatusTooManyRequests
		}
		if resp.StatusCode != want {
			t.Fatalf("request %d: expected %d, got %d", i, want, resp.StatusCode)
		}
	}
	for _, k := range mr.Keys() {
		if strings.HasPrefix(k, "device_rate:") && mr.TTL(k) != time.Minute {
			t.Fatalf("rate window %s should expire after a minute, ttl %s", k, mr.TTL(k))
		}
	}
}

func TestMiddlewareFailsOpenWhenRedisDown(t *testing.T) {
	mr, client := newTestRedis(t)
	s := &Server{cfg: redisConfig(0), redis: client}
	mr.Close()
	calls := 0
	handler := s.idempotent(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}))
	req := httptest.NewRequest(http.MethodPost, "/api/add-points", nil)
	req.Header.Set("Idempotency-Key", "k1")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || calls != 1 {
		t.Fatalf("expected pass-through with redis down, got %d calls %d", rec.Code, calls)
	}
}
