package http

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/bass5068/bottle-redeem/internal/config"
	"github.com/bass5068/bottle-redeem/internal/ledger"
	"github.com/bass5068/bottle-redeem/internal/model"
	"github.com/bass5068/bottle-redeem/internal/storage"
)

type Server struct {
	cfg    config.Config
	svc    *ledger.Service
	images storage.ImageStore
	redis  *redis.Client
}

// NewServer wires the HTTP API. images and redisClient may be nil; uploads then fail
// with 503 and rate limiting and idempotent replay are skipped.
func NewServer(cfg config.Config, svc *ledger.Service, images storage.ImageStore, redisClient *redis.Client) *Server {
	return &Server{
		cfg:    cfg,
		svc:    svc,
		images: images,
		redis:  redisClient,
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "not_found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed")
	})

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())
	if _, ok := s.images.(*storage.Local); ok && strings.HasPrefix(s.cfg.UploadBaseURL, "/") {
		files := http.StripPrefix(s.cfg.UploadBaseURL, http.FileServer(http.Dir(s.cfg.UploadDir)))
		r.Handle(s.cfg.UploadBaseURL+"/*", files)
	}

	admin := requireRole(model.RoleAdmin)

	r.Route("/api", func(r chi.Router) {
		r.With(s.authMiddleware).Post("/auth/sync", s.handleSyncUser)
		r.With(s.authMiddleware).Get("/account", s.handleGetAccount)
		r.With(s.authMiddleware).Put("/account", s.handleUpdateAccount)
		r.With(s.authMiddleware).Put("/account/update", s.handleUpdateAccount)

		r.With(s.authMiddleware, admin).Get("/users", s.handleListUsers)
		r.With(s.authMiddleware, admin).Post("/users", s.handleCreateUser)
		r.With(s.authMiddleware, admin).Post("/create-user", s.handleCreateUser)
		r.With(s.authMiddleware).Get("/users/{userID}/points", s.handleGetPoints)
		r.With(s.authMiddleware).Get("/routers/get-points", s.handleGetPoints)
		r.With(s.authMiddleware).Get("/users/{userID}/transactions", s.handleListTransactions)

		r.With(s.deviceMiddleware, s.deviceRateLimit).Post("/esp-request-token", s.handleDeviceToken)
		r.With(s.deviceMiddleware).Post("/device/bin-full", s.handleBinFull)
		r.With(s.deviceMiddleware).Post("/routers/lineNotify", s.handleBinFull)
		r.With(s.authMiddleware, admin).Post("/tokens", s.handleIssueToken)
		r.With(s.authMiddleware, admin).Post("/createqrtoken", s.handleIssueToken)

		for _, path := range []string{"/validate-token", "/routers/validate-token"} {
			r.With(s.authMiddleware).Post(path, s.handleValidateToken)
		}
		for _, path := range []string{"/add-points", "/routers/add-points", "/pointADD", "/routers/pointADD"} {
			r.With(s.authMiddleware, s.idempotent).Post(path, s.handleAddPoints)
		}

		r.Get("/rewards", s.handleListRewards)
		r.Get("/rewards/{rewardID}", s.handleGetReward)
		r.With(s.authMiddleware, admin).Post("/rewards", s.handleCreateReward)
		r.With(s.authMiddleware, admin).Put("/rewards", s.handleUpdateReward)
		r.With(s.authMiddleware, admin).Put("/rewards/{rewardID}", s.handleUpdateReward)
		r.With(s.authMiddleware, admin).Delete("/rewards", s.handleDeleteReward)
		r.With(s.authMiddleware, admin).Delete("/rewards/{rewardID}", s.handleDeleteReward)
		r.With(s.authMiddleware, admin).Post("/rewards/import", s.handleImportRewards)
		r.With(s.authMiddleware, admin).Get("/rewards/import/template", s.handleImportTemplate)

		r.With(s.authMiddleware, s.idempotent).Post("/routers/redeem", s.handleRedeem)
		for _, path := range []string{"/redemptions/update", "/routers/redemptions/update", "/update"} {
			r.With(s.authMiddleware).Put(path, s.handleUpdateRedemption)
		}
		r.With(s.authMiddleware).Get("/get-history", s.handleUserHistory)
		r.With(s.authMiddleware).Get("/routers/get-history", s.handleUserHistory)
		r.With(s.authMiddleware, admin).Get("/admin/get-history", s.handleAllHistory)

		r.With(s.authMiddleware, admin).Get("/devices", s.handleListDevices)
		r.With(s.authMiddleware, admin).Post("/devices", s.handleRegisterDevice)
		r.With(s.authMiddleware, admin).Delete("/devices/{deviceID}", s.handleRevokeDevice)

		r.With(s.authMiddleware, admin).Post("/upload-reward-image", s.handleUploadRewardImage)
		r.With(s.authMiddleware).Post("/upload", s.handleUpload)
		r.With(s.authMiddleware).Post("/upload/profile", s.handleUploadProfile)
	})

	return r
}
