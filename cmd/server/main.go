package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"attendance/internal/auth"
	"attendance/internal/config"
	"attendance/internal/database"
	"attendance/internal/email"
	"attendance/internal/logging"
	"attendance/internal/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	logger, logCloser, err := logging.New(cfg.Log)
	if err != nil {
		log.Fatalf("log setup error: %v", err)
	}
	defer logCloser.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("database error", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Error("redis url error", "error", err)
		os.Exit(1)
	}
	redisClient := redis.NewClient(redisOpts)
	defer redisClient.Close()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Warn("redis unreachable, throttled auth endpoints will return 500", "error", err)
	}

	mailer := email.NewSender(cfg.Email)
	if !cfg.Email.Enabled() {
		logger.Warn("email is not configured; signup and password reset will fail with delivery errors")
	}

	svc := auth.NewService(auth.Options{
		Store:    auth.NewPostgresStore(db),
		Hasher:   auth.NewBcryptHasher(),
		Tokens:   auth.NewTokenIssuer(),
		Sessions: auth.NewSessionIssuer(cfg.JWTSecret, cfg.SessionTTL),
		Mailer:   mailer,
		From:     mailer.DefaultFrom(),
		BaseURL:  cfg.BaseURL,
		Logger:   logger,
	})

	api := server.NewServer(cfg, server.Deps{
		Auth:        svc,
		RateLimiter: auth.NewRateLimiter(redisClient),
		Audit:       &auth.AuditLogger{Redis: redisClient, MaxLen: 1000},
		Logger:      logger,
		Health: map[string]server.HealthCheck{
			"postgres": db.Ping,
			"redis": func(ctx context.Context) error {
				return redisClient.Ping(ctx).Err()
			},
		},
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           api.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		ErrorLog:          logging.StdLogger(logger),
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
		}
	case <-ctx.Done():
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown error", "error", err)
		}
	}

	// let welcome and reset-confirmation mail finish
	svc.Wait()
}
