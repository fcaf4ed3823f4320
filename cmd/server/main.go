package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	sentryhttp "github.com/getsentry/sentry-go/http"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"orgkit-backend/internal/auth"
	"orgkit-backend/internal/cache"
	"orgkit-backend/internal/config"
	"orgkit-backend/internal/handlers"
	"orgkit-backend/internal/invite"
	"orgkit-backend/internal/logging"
	"orgkit-backend/internal/middleware"
	"orgkit-backend/internal/natsbus"
	"orgkit-backend/internal/notify"
	"orgkit-backend/internal/storage"
	"orgkit-backend/internal/workers"
)

func main() {
	cfg := config.Load()

	logger, err := logging.NewLogger(cfg.Log.Level, cfg.Log.Format, "orgkit-backend")
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer logger.Sync()

	if err := cfg.Validate(); err != nil {
		logger.Fatal("invalid configuration", zap.Error(err))
	}

	if cfg.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:              cfg.SentryDSN,
			Environment:      cfg.Environment,
			EnableTracing:    true,
			TracesSampleRate: 0.2,
		}); err != nil {
			logger.Error("sentry init failed", zap.Error(err))
		} else {
			defer sentry.Flush(2 * time.Second)
		}
	}

	// Database connection (with retries)
	var db *sqlx.DB
	for i := 0; i < 10; i++ {
		db, err = sqlx.Connect("postgres", cfg.DSN())
		if err == nil {
			break
		}
		logger.Warn("database connection attempt failed", zap.Int("attempt", i+1), zap.Error(err))
		time.Sleep(2 * time.Second)
	}
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer db.Close()
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	store := storage.NewStorage(db)
	migrateCtx, migrateCancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := store.Migrate(migrateCtx); err != nil {
		migrateCancel()
		logger.Fatal("failed to apply schema", zap.Error(err))
	}
	migrateCancel()
	logger.Info("connected to database")

	// Redis backs rate limiting only
	redisClient, err := cache.NewRedisClient(cfg.RedisURL)
	if err != nil {
		logger.Fatal("failed to connect to Redis", zap.Error(err))
	}
	defer redisClient.Close()

	natsClient, err := natsbus.Connect(cfg.NATSURL, logger)
	if err != nil {
		logger.Fatal("failed to connect to NATS", zap.Error(err))
	}
	defer natsClient.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Notifications
	mailer := notify.NewMailer(cfg.Mailer.URL, cfg.Mailer.APIKey, cfg.Mailer.From, logger)
	slack := notify.NewSlackClient(cfg.SlackWebhookURL, logger)
	dispatcher := notify.NewDispatcher(mailer, slack, natsClient.KV(), logger)
	consumer := notify.NewConsumer(natsClient.JS(), dispatcher, logger)
	if err := consumer.Start(ctx); err != nil {
		logger.Fatal("failed to start notification consumer", zap.Error(err))
	}

	workers.StartInviteReaper(ctx, store, cfg.InviteReaperEvery, logger)

	sessionKey, err := cfg.DeriveKey("session")
	if err != nil {
		logger.Fatal("failed to derive session key", zap.Error(err))
	}
	cookieKey, err := cfg.DeriveKey("invite-cookie")
	if err != nil {
		logger.Fatal("failed to derive invite cookie key", zap.Error(err))
	}

	sessions := auth.NewSessions(sessionKey, cfg.SessionTTL, cfg.CookieSecure)
	codec := invite.NewCodec(cookieKey, cfg.CookieSecure)

	h := handlers.New(handlers.Deps{
		Store:     store,
		Provider:  auth.NewProviderClient(cfg.AuthProvider.URL, cfg.AuthProvider.APIKey, logger),
		Sessions:  sessions,
		Codec:     codec,
		Invites:   invite.NewService(store, natsClient, logger),
		Publisher: natsClient,
		Limiter:   redisClient,
		Logger:    logger,
		Options: handlers.Options{
			SiteURL:        cfg.SiteURL,
			InviteLinkTTL:  cfg.InviteLinkTTL,
			EmailInviteTTL: cfg.EmailInviteTTL,
			CookieSecure:   cfg.CookieSecure,
		},
	})

	// Router
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.RequestLogger(logger))
	r.Use(chimw.Recoverer)
	r.Use(sentryhttp.New(sentryhttp.Options{Repanic: true}).Handle)
	h.RegisterRoutes(r)

	server := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		logger.Info("shutting down")
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()

		_ = consumer.Stop()
		_ = server.Shutdown(shutdownCtx)
	}()

	logger.Info("server starting", zap.String("addr", cfg.HTTP.Addr), zap.String("env", cfg.Environment))
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		logger.Fatal("server error", zap.Error(err))
	}
	logger.Info("server stopped")
}
