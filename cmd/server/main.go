package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/hongminglow/expense-be/internal/config"
	"github.com/hongminglow/expense-be/internal/logger"
	"github.com/hongminglow/expense-be/internal/mail"
	"github.com/hongminglow/expense-be/internal/media"
	"github.com/hongminglow/expense-be/internal/middleware"
	"github.com/hongminglow/expense-be/internal/server"
	"github.com/hongminglow/expense-be/internal/storage/postgres"
	"github.com/hongminglow/expense-be/internal/telemetry"
)

func main() {
	loadLocalEnv()

	cfg, err := config.Load()
	if err != nil {
		logger.Log.Fatal().Err(err).Msg("load config")
	}
	logger.SetLevel(cfg.LogLevel)
	if cfg.LogFormat == "json" {
		logger.SetJSON()
	}
	logger.SetHashSalt(cfg.LogHashSalt)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := telemetry.Setup(ctx, telemetry.Options{Exporter: cfg.OTelExporter, ServiceName: "expense-backend"})
	if err != nil {
		logger.Log.Fatal().Err(err).Msg("init telemetry")
	}

	store, err := postgres.NewStore(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Log.Fatal().Err(err).Msg("init database")
	}
	defer store.Close()

	objects, err := media.NewDiskStore(cfg.UploadDir, cfg.PublicURL+server.UploadsPath)
	if err != nil {
		logger.Log.Fatal().Err(err).Msg("init upload store")
	}

	limiter, closeLimiter := newLimiter(ctx, cfg)
	defer closeLimiter()

	srv := server.New(cfg, server.Deps{
		Store:   store,
		Mailer:  newMailer(cfg),
		Limiter: limiter,
		Objects: objects,
		Ping:    store.Ping,
	})

	go func() {
		logger.Log.Info().Str("addr", cfg.HTTPAddress()).Str("env", cfg.Env).Msg("expense backend listening")
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Log.Fatal().Err(err).Msg("http server error")
		}
	}()

	<-ctx.Done()
	logger.Log.Info().Msg("shutting down")

	ctxShutdown, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctxShutdown); err != nil {
		logger.Log.Error().Err(err).Msg("graceful shutdown error")
	}
	if err := shutdownTelemetry(ctxShutdown); err != nil {
		logger.Log.Error().Err(err).Msg("telemetry shutdown error")
	}
}

func loadLocalEnv() {
	if err := godotenv.Load(); err != nil {
		logger.Log.Info().Msg("no .env file found; relying on existing environment")
	}
}

func newMailer(cfg config.Config) mail.Mailer {
	if cfg.SMTPHost != "" {
		return mail.NewSMTPMailer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPass, cfg.MailFrom)
	}
	if cfg.IsProduction() {
		logger.Log.Fatal().Msg("SMTP_HOST is required in production")
	}
	logger.Log.Warn().Msg("SMTP_HOST not set; emails will be logged")
	return mail.LogMailer{}
}

// newLimiter prefers the shared Redis limiter and falls back to per-process
// token buckets.
func newLimiter(ctx context.Context, cfg config.Config) (middleware.Limiter, func()) {
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.Log.Fatal().Err(err).Msg("parse REDIS_URL")
		}
		client := redis.NewClient(opts)
		if err := client.Ping(ctx).Err(); err != nil {
			logger.Log.Warn().Err(err).Msg("redis unreachable; rate limiting fails open until it recovers")
		}
		window := time.Duration(float64(cfg.AuthRateBurst) / cfg.AuthRatePerS * float64(time.Second))
		return middleware.NewRedisLimiter(client, "ratelimit:auth", cfg.AuthRateBurst, window), func() { _ = client.Close() }
	}
	limiter := middleware.NewMemoryLimiter(cfg.AuthRatePerS, cfg.AuthRateBurst)
	go limiter.Run(ctx)
	return limiter, func() {}
}
