package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"google.golang.org/grpc"

	"github.com/bass5068/bottle-redeem/internal/config"
	"github.com/bass5068/bottle-redeem/internal/db"
	redeemgrpc "github.com/bass5068/bottle-redeem/internal/grpc"
	internalhttp "github.com/bass5068/bottle-redeem/internal/http"
	"github.com/bass5068/bottle-redeem/internal/jobs"
	"github.com/bass5068/bottle-redeem/internal/ledger"
	"github.com/bass5068/bottle-redeem/internal/notify"
	"github.com/bass5068/bottle-redeem/internal/storage"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Fatalf("load .env: %v", err)
	}
	cfg := config.Load()
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db connection failed: %v", err)
	}
	defer pool.Close()
	if err := db.CreateSchema(ctx, pool); err != nil {
		log.Fatalf("schema setup failed: %v", err)
	}
	store := db.NewStore(pool)

	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		if err := redisClient.Ping(pingCtx).Err(); err != nil {
			cancel()
			log.Fatalf("redis ping failed: %v", err)
		}
		cancel()
		defer func() {
			if err := redisClient.Close(); err != nil {
				slog.Warn("redis close error", "error", err)
			}
		}()
	}

	var notifier notify.Notifier = notify.Log{}
	if cfg.TelegramBotToken != "" && cfg.TelegramChatID != 0 {
		telegram, err := notify.NewTelegram(cfg.TelegramBotToken, cfg.TelegramChatID)
		if err != nil {
			log.Fatalf("telegram init failed: %v", err)
		}
		notifier = telegram
	}

	var images storage.ImageStore
	if cfg.CloudinaryURL != "" {
		images, err = storage.NewCloudinary(cfg.CloudinaryURL)
	} else {
		images, err = storage.NewLocal(cfg.UploadDir, cfg.UploadBaseURL)
	}
	if err != nil {
		log.Fatalf("image storage init failed: %v", err)
	}

	svc := ledger.NewService(store, notifier, ledger.OptionsFromConfig(cfg))
	server := internalhttp.NewServer(cfg, svc, images, redisClient)
	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           server.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	jobs.StartTokenPurgeJob(ctx, cfg, svc)

	go func() {
		slog.Info("http listening", "addr", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("http server error: %v", err)
		}
	}()

	var grpcServer *grpc.Server
	if cfg.GRPCAddr != "" {
		srv, health, err := redeemgrpc.NewServer(cfg.ServiceAuthToken)
		if err != nil {
			log.Fatalf("grpc init failed: %v", err)
		}
		jobs.StartHealthJob(ctx, cfg.HealthCheckInterval, store, health, "", redeemgrpc.ServiceName)
		grpcServer = srv
		go func() {
			listener, err := net.Listen("tcp", cfg.GRPCAddr)
			if err != nil {
				log.Fatalf("grpc listen error: %v", err)
			}
			slog.Info("grpc listening", "addr", cfg.GRPCAddr)
			if err := srv.Serve(listener); err != nil {
				log.Fatalf("grpc server error: %v", err)
			}
		}()
	}

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "error", err)
	}
	if grpcServer != nil {
		grpcServer.GracefulStop()
	}
}
