package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/kidlearn/server/internal/auth"
	"github.com/kidlearn/server/internal/config"
	"github.com/kidlearn/server/internal/db"
	"github.com/kidlearn/server/internal/email"
	httphandler "github.com/kidlearn/server/internal/http"
	"github.com/kidlearn/server/internal/http/handlers"
	"github.com/kidlearn/server/internal/logging"
	"github.com/kidlearn/server/internal/ratelimit"
	"github.com/kidlearn/server/internal/repo"
	"github.com/kidlearn/server/internal/trial"
)

func main() {
	// Load .env from CWD or server/ so it works from repo root or server/ (env vars override)
	_ = godotenv.Load(".env")
	_ = godotenv.Load("server/.env")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := logging.New(cfg.IsDevelopment(), cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	accounts, otps, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to open store", zap.Error(err))
	}
	defer closeStore()

	mailer := email.NewClient(cfg.PostmarkServerToken, cfg.EmailFrom, email.WithAPIURL(cfg.PostmarkAPIURL))
	if !mailer.Configured() {
		logger.Warn("POSTMARK_SERVER_TOKEN or EMAIL_FROM not set; password reset emails will fail")
	}

	otpEngine := auth.NewOtpEngine(otps, mailer, cfg.OTPSalt, logger.Named("otp"))
	jwtService := auth.NewJWTService(cfg.JWTSecret, cfg.JWTRefreshSecret, cfg.AccessTokenTTL, cfg.RefreshTokenTTL)
	authService := auth.NewAuthService(accounts, otpEngine, jwtService, auth.NewBcryptHasher(0), logger.Named("auth"), auth.Options{
		AllowAdminSignup: cfg.AllowAdminSignup,
		DefaultLanguage:  cfg.DefaultLanguage,
	})
	trials := trial.NewEngine(accounts, logger.Named("trial"), nil)

	if cfg.AdminEmail != "" {
		if _, err := authService.EnsureAdmin(ctx, cfg.AdminName, cfg.AdminEmail, cfg.AdminPassword); err != nil {
			logger.Fatal("failed to bootstrap admin account", zap.Error(err))
		}
	}

	loginLimiter, otpLimiter, closeLimiters := newLimiters(ctx, cfg, logger)
	defer closeLimiters()

	go purgeExpiredChallenges(ctx, otpEngine, cfg.OTPPurgeInterval, logger)

	router := httphandler.NewRouter(httphandler.RouterDeps{
		AuthHandler:     handlers.NewAuthHandler(authService, logger),
		AdminHandler:    handlers.NewAdminHandler(trials, authService, logger),
		JWTService:      jwtService,
		Logger:          logger,
		DefaultLanguage: cfg.DefaultLanguage,
		LoginLimiter:    loginLimiter,
		OTPLimiter:      otpLimiter,
	})

	// Create HTTP server with timeouts
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		logger.Info("server starting", zap.String("port", cfg.Port), zap.String("store", cfg.Store))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server failed to start", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
		os.Exit(1)
	}

	logger.Info("server exited")
}

// openStore returns Postgres-backed repositories, or in-memory ones when STORE=memory
func openStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (repo.AccountRepo, repo.OtpRepo, func(), error) {
	if cfg.Store == config.StoreMemory {
		logger.Warn("using in-memory store; data is lost on restart")
		store := repo.NewMemoryStore()
		return store.Accounts(), store.Otps(), func() {}, nil
	}

	database, err := db.Open(ctx, cfg.DatabaseURL, logger.Named("db"))
	if err != nil {
		return nil, nil, nil, err
	}
	if err := db.Migrate(database); err != nil {
		_ = database.Close()
		return nil, nil, nil, err
	}
	return repo.NewAccountRepo(database), repo.NewOtpRepo(database), closeDB(database, logger), nil
}

func closeDB(database *sql.DB, logger *zap.Logger) func() {
	return func() {
		if err := database.Close(); err != nil {
			logger.Warn("closing database", zap.Error(err))
		}
	}
}

// newLimiters uses Redis when REDIS_URL is set so limits hold across instances
func newLimiters(ctx context.Context, cfg *config.Config, logger *zap.Logger) (ratelimit.Limiter, ratelimit.Limiter, func()) {
	const (
		loginWindow = 15 * time.Minute
		loginMax    = 20
		otpWindow   = 10 * time.Minute
		otpMax      = 10
	)

	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.Fatal("invalid REDIS_URL", zap.Error(err))
		}
		client := redis.NewClient(opts)
		if err := client.Ping(ctx).Err(); err != nil {
			logger.Warn("redis ping failed; limiter will fail open until it recovers", zap.Error(err))
		}
		return ratelimit.NewRedis(client, "rl:login:", loginWindow, loginMax),
			ratelimit.NewRedis(client, "rl:otp:", otpWindow, otpMax),
			func() { _ = client.Close() }
	}

	login := ratelimit.NewMemory(loginWindow, loginMax)
	otp := ratelimit.NewMemory(otpWindow, otpMax)
	go login.Run(ctx, time.Hour)
	go otp.Run(ctx, time.Hour)
	return login, otp, func() {}
}

// purgeExpiredChallenges deletes expired OTP challenges every interval until ctx is done
func purgeExpiredChallenges(ctx context.Context, otpEngine *auth.OtpEngine, interval time.Duration, logger *zap.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := otpEngine.PurgeExpired(ctx)
			if err != nil {
				logger.Warn("purge expired challenges", zap.Error(err))
				continue
			}
			if n > 0 {
				logger.Debug("purged expired challenges", zap.Int64("count", n))
			}
		}
	}
}
