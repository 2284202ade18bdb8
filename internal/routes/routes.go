package routes

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/givetag/givetag/internal/authgate"
	"github.com/givetag/givetag/internal/config"
	"github.com/givetag/givetag/internal/ledger"
	"github.com/givetag/givetag/internal/metrics"
	"github.com/givetag/givetag/internal/middleware"
	"github.com/givetag/givetag/internal/notification"
	"github.com/givetag/givetag/internal/payments"
	"github.com/givetag/givetag/internal/tag"
)

// Deps aggregates shared dependencies required to wire routes.
type Deps struct {
	Cfg    config.Config
	DB     *pgxpool.Pool
	Cache  *redis.Client
	Logger *slog.Logger
}

// Setup configures middlewares and all application routes.
func Setup(app *fiber.App, d Deps) error {
	if !d.Cfg.IsDev() {
		if d.DB == nil {
			return fiber.NewError(http.StatusInternalServerError, "database is required outside development")
		}
		if d.Cache == nil {
			return fiber.NewError(http.StatusInternalServerError, "redis is required outside development")
		}
	}

	// Middlewares
	app.Use(recover.New())
	app.Use(middleware.RequestID())
	app.Use(logger.New(logger.Config{
		Format:     "[${time}] ${status} -  ${latency} ${method} ${path}\n",
		TimeFormat: "15:04:05",
		TimeZone:   "Local",
	}))
	app.Use(middleware.Audit(d.Logger))

	// Metrics registry; a private one so repeated Setup calls in tests never
	// collide on registration.
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	m := metrics.New(registry)

	RegisterHealthRoutes(app, d)
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))

	// Storage backends: Postgres + Redis in deployed environments, in-memory
	// in dev mode.
	var ledgerBackend ledger.Ledger
	if d.DB != nil {
		ledgerBackend = ledger.NewPostgresLedger(d.DB)
	} else {
		ledgerBackend = ledger.NewInMemory()
	}

	var tagRepo tag.Repository
	if d.DB != nil {
		tagRepo = tag.NewPostgresRepository(d.DB)
	} else {
		tagRepo = tag.NewMemoryRepository()
	}

	var challengeStore authgate.ChallengeStore
	if d.Cache != nil {
		challengeStore = authgate.NewRedisChallengeStore(d.Cache)
	} else {
		challengeStore = authgate.NewMemoryChallengeStore()
	}

	// Services and handlers
	tagSvc := tag.NewService(tagRepo, ledgerBackend)
	gate := authgate.NewService(authgate.Config{
		SessionSecret: []byte(d.Cfg.SessionSecret),
		SessionTTL:    d.Cfg.SessionTTL,
		ChallengeTTL:  d.Cfg.ChallengeTTL,
	}, tagRepo, nil, challengeStore, d.Logger)
	notifier := notification.NewLoggerNotifier(d.Logger)
	paymentSvc := payments.NewService(ledgerBackend, tagSvc, notifier, m, nil, d.Cfg.PendingPaymentTTL, d.Logger)

	tagHandler := tag.NewHandler(tagSvc)
	authHandler := authgate.NewHandler(gate)
	paymentHandler := payments.NewHandler(paymentSvc)

	// API routes
	api := app.Group("/api/v1")
	api.Get("/ping", func(c *fiber.Ctx) error {
		reqID, _ := c.Locals("X-Request-ID").(string)
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"status":     "ok",
			"request_id": reqID,
			"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
		})
	})

	var idem fiber.Handler
	if d.Cache != nil {
		idem = middleware.Idempotency(d.Cache, d.Cfg.IdempotencyTTL, d.Logger)
	} else {
		idem = func(c *fiber.Ctx) error { return c.Next() }
	}

	pinRateLimit := middleware.PINRateLimit(d.Cache, d.Cfg.PINRateLimit)
	session := middleware.Session([]byte(d.Cfg.SessionSecret))

	RegisterAuthRoutes(api, authHandler, pinRateLimit)
	RegisterTagRoutes(api, tagHandler, session)
	RegisterPaymentRoutes(api, paymentHandler, idem, session)

	return nil
}
