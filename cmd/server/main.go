package main // Entry point package

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/iliyamo/milsim-portal/internal/authz"
	"github.com/iliyamo/milsim-portal/internal/config"
	"github.com/iliyamo/milsim-portal/internal/database"
	"github.com/iliyamo/milsim-portal/internal/handler"
	"github.com/iliyamo/milsim-portal/internal/logging"
	"github.com/iliyamo/milsim-portal/internal/middleware"
	"github.com/iliyamo/milsim-portal/internal/perscom"
	"github.com/iliyamo/milsim-portal/internal/queue"
	"github.com/iliyamo/milsim-portal/internal/repository"
	"github.com/iliyamo/milsim-portal/internal/router"
	"github.com/iliyamo/milsim-portal/internal/service"
	"github.com/iliyamo/milsim-portal/internal/session"
)

func main() {
	_ = godotenv.Load() // .env is optional outside local development

	cfg := config.Load()
	logger := logging.Must(cfg.Env, cfg.LogLevel)
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rdb := config.NewRedisClient()
	if rdb == nil {
		logger.Warn("redis unavailable; using in-process cache and rate limiter")
	} else {
		defer func() { _ = rdb.Close() }()
	}

	client := perscom.New(perscom.Config{
		BaseURL:         cfg.Perscom.BaseURL,
		APIKey:          cfg.Perscom.APIKey,
		Timeout:         cfg.Perscom.Timeout,
		MaxRetries:      cfg.Perscom.MaxRetries,
		RetryBackoff:    cfg.Perscom.RetryBackoff,
		PageConcurrency: cfg.Perscom.PageConcurrency,
		MaxPages:        cfg.Perscom.MaxPages,
		CacheTTL:        cfg.Cache.TTL,
	}, newCache(cfg.Cache, rdb), logger)

	codec := session.NewCodec(cfg.SessionSecret, cfg.SessionMaxAge, session.IsSecureURL(cfg.AppURL))
	oauth := &oauth2.Config{
		ClientID:     cfg.OAuth.ClientID,
		ClientSecret: cfg.OAuth.ClientSecret,
		Endpoint:     oauth2.Endpoint{TokenURL: cfg.OAuth.TokenURL},
	}

	var audit handler.AuditLog
	if cfg.AuditEnabled() {
		db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
		if err != nil {
			logger.Fatal("open database", zap.Error(err))
		}
		defer func(db *sql.DB) { _ = db.Close() }(db)
		repo := repository.NewAuditRepo(db)
		if err := repo.EnsureSchema(ctx); err != nil {
			logger.Fatal("create audit table", zap.Error(err))
		}
		audit = repo
	} else {
		logger.Info("DB_HOST not set; admin audit log disabled")
	}

	var events service.EventPublisher
	if cfg.AMQPURL != "" {
		events = service.NewRabbitPublisher(cfg.AMQPURL, logger)
		if cfg.AMQPConsumer {
			go func() {
				if err := queue.StartRecruitmentConsumer(ctx, cfg.AMQPURL, cfg.EventLogDir, logger); err != nil && !errors.Is(err, context.Canceled) {
					logger.Error("recruitment consumer stopped", zap.Error(err))
				}
			}()
		}
	}

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.RequestID())
	e.Use(middleware.RequestLogger(logger))
	e.Use(echomw.Recover())
	e.Use(middleware.NewAuth(middleware.AuthConfig{
		Codec:     codec,
		Table:     authz.DefaultTable(),
		Refresher: middleware.NewHTTPRefresher(cfg.AppURL, &http.Client{Timeout: 15 * time.Second}),
		Logger:    logger,
	}))
	e.Use(middleware.NewTokenBucket(cfg.RateLimit, rdb, logger))

	router.RegisterRoutes(e)
	router.RegisterAuth(e, handler.NewAuthHandler(codec, oauth, logger))
	router.RegisterPublic(e, handler.NewPublicHandler(client))
	router.RegisterMember(e, handler.NewMemberHandler(client, events, cfg.RecruitmentFormID, logger))
	router.RegisterAdmin(e, handler.NewAdminHandler(client, audit, events, logger))

	addr := ":" + cfg.Port
	go func() {
		logger.Info("listening", zap.String("addr", addr), zap.String("env", cfg.Env))
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown", zap.Error(err))
	}
}

// newCache picks the PERSCOM cache backend. Redis is used only when it was
// both requested and reachable.
func newCache(cfg config.CacheConfig, rdb *redis.Client) perscom.Cache {
	if cfg.Backend == "redis" && rdb != nil {
		return perscom.NewRedisCache(rdb, cfg.Prefix, cfg.TTL)
	}
	return perscom.NewMemoryCache()
}
