package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"

	"github.com/bass5068/bottle-redeem/internal/crypto"
)

const (
	idempotencyPending = "pending"
	// a reservation whose request never finished frees itself after this long
	idempotencyPendingTTL = time.Minute
)

type idempotentResponse struct {
	Status int             `json:"status"`
	Body   json.RawMessage `json:"body"`
}

// deviceRateLimit allows cfg.DeviceRateLimit requests per device per minute. Without
// Redis, or when Redis fails, requests pass.
func (s *Server) deviceRateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		device, ok := deviceFromContext(r.Context())
		if s.redis == nil || !ok || s.cfg.DeviceRateLimit <= 0 {
			next.ServeHTTP(w, r)
			return
		}
		window := time.Now().UTC().Unix() / 60
		key := fmt.Sprintf("device_rate:%s:%d", device.ID, window)
		count, err := s.redis.Incr(r.Context(), key).Result()
		if err != nil {
			slog.Warn("rate limit check failed", "device_id", device.ID, "error", err)
			next.ServeHTTP(w, r)
			return
		}
		if count == 1 {
			if err := s.redis.Expire(r.Context(), key, time.Minute).Err(); err != nil {
				slog.Warn("rate limit expire failed", "device_id", device.ID, "error", err)
			}
		}
		if count > int64(s.cfg.DeviceRateLimit) {
			w.Header().Set("Retry-After", "60")
			writeError(w, http.StatusTooManyRequests, "rate_limited")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// idempotent replays the stored response for a repeated Idempotency-Key. The key is
// reserved with SET NX before the handler runs so concurrent duplicates get 409. The
// reservation is released when the handler fails with 5xx, panics, or the result cannot
// be stored. Writes after the handler ignore client cancellation.
func (s *Server) idempotent(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
		if s.redis == nil || header == "" {
			next.ServeHTTP(w, r)
			return
		}
		actor, _ := actorFromContext(r.Context())
		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		key := "idempotency:" + crypto.HashKey(actor.UserID+"|"+route+"|"+header)

		reserved, err := s.redis.SetNX(r.Context(), key, idempotencyPending, s.pendingTTL()).Result()
		if err != nil {
			slog.Warn("idempotency reserve failed", "error", err)
			next.ServeHTTP(w, r)
			return
		}
		if !reserved {
			s.replay(w, r, key)
			return
		}

		ctx := context.WithoutCancel(r.Context())
		stored := false
		defer func() {
			if stored {
				return
			}
			if err := s.redis.Del(ctx, key).Err(); err != nil {
				slog.Warn("idempotency release failed", "error", err)
			}
		}()

		rec := &bufferedWriter{header: http.Header{}, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		rec.flush(w)

		if rec.status >= http.StatusInternalServerError {
			return
		}
		data, err := json.Marshal(idempotentResponse{Status: rec.status, Body: json.RawMessage(bytes.TrimSpace(rec.body.Bytes()))})
		if err != nil {
			slog.Warn("idempotency encode failed", "error", err)
			return
		}
		if err := s.redis.Set(ctx, key, data, s.cfg.IdempotencyTTL).Err(); err != nil {
			slog.Warn("idempotency store failed", "error", err)
			return
		}
		stored = true
	})
}

func (s *Server) pendingTTL() time.Duration {
	if s.cfg.IdempotencyTTL > 0 && s.cfg.IdempotencyTTL < idempotencyPendingTTL {
		return s.cfg.IdempotencyTTL
	}
	return idempotencyPendingTTL
}

func (s *Server) replay(w http.ResponseWriter, r *http.Request, key string) {
	value, err := s.redis.Get(r.Context(), key).Result()
	if err == redis.Nil || value == idempotencyPending {
		writeError(w, http.StatusConflict, "request_in_progress")
		return
	}
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	var stored idempotentResponse
	if err := json.Unmarshal([]byte(value), &stored); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Idempotent-Replayed", "true")
	w.WriteHeader(stored.Status)
	_, _ = w.Write(append(stored.Body, '\n'))
}

// bufferedWriter holds a handler's response so it can be both sent and stored.
type bufferedWriter struct {
	header http.Header
	status int
	body   bytes.Buffer
}

func (b *bufferedWriter) Header() http.Header { return b.header }

func (b *bufferedWriter) WriteHeader(status int) { b.status = status }

func (b *bufferedWriter) Write(p []byte) (int, error) { return b.body.Write(p) }

func (b *bufferedWriter) flush(w http.ResponseWriter) {
	for k, v := range b.header {
		w.Header()[k] = v
	}
	w.WriteHeader(b.status)
	_, _ = w.Write(b.body.Bytes())
}
