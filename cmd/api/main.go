package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"

	"medcare.org/internal/audit"
	"medcare.org/internal/auth"
	"medcare.org/internal/config"
	"medcare.org/internal/httpapi"
	"medcare.org/internal/obs"
	"medcare.org/internal/otp"
)

var (
	version = "1.0.0"
	commit  = "dev"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	obs.Init()
	obs.InitBuildInfo(version, commit)
	obs.SetLevel(cfg.LogLevel)

	db, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	db.SetMaxOpenConns(cfg.DBPoolMax)
	db.SetMaxIdleConns(cfg.DBPoolMin)
	db.SetConnMaxLifetime(30 * time.Minute)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	auditor := audit.NewLogger(audit.NewPGStore(db))

	tokens, err := auth.NewTokenService(cfg.JWTSecret, cfg.JWTRefreshSecret)
	if err != nil {
		log.Fatalf("token service: %v", err)
	}
	authSvc := auth.NewService(
		auth.NewPGStore(db),
		tokens,
		auth.NewHasher(cfg.BcryptCost),
		auditor,
		auth.WithSessionTTL(cfg.SessionMaxAge),
		auth.WithRefreshTTL(cfg.RefreshMaxAge),
	)

	otpSvc := buildOTPService(ctx, cfg)

	var oauth *auth.OAuthManager
	if cfg.OAuthEnabled() {
		oauth = auth.NewOAuthManager(cfg.GoogleClientID, cfg.GoogleClientSecret, cfg.OAuthRedirectURL)
	}

	api := httpapi.New(cfg, authSvc, otpSvc, auditor, oauth, httpapi.ReadyProbe{DB: db}, version)

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	obs.Info("server starting", map[string]any{
		"addr":    cfg.ListenAddr,
		"env":     cfg.Env,
		"version": version,
	})

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	<-ctx.Done()
	obs.Info("server shutting down", nil)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(shutdownCtx)
	_ = db.Close()
	obs.Info("server stopped", nil)
}

// buildOTPService wires the OTP stack: redis-backed store and limiter when a
// redis address is configured, in-process fallbacks with background sweepers
// otherwise. A missing SMS gateway degrades to a warning gateway rather than
// failing startup.
func buildOTPService(ctx context.Context, cfg config.Config) *otp.Service {
	var (
		store   otp.Store
		limiter otp.Limiter
	)
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		store = otp.NewRedisStore(client)
		limiter = otp.NewRedisLimiter(client)
	} else {
		memStore := otp.NewMemoryStore()
		memLimiter := otp.NewMemoryLimiter()
		go memStore.RunSweeper(ctx, 5*time.Minute)
		go memLimiter.RunSweeper(ctx, 5*time.Minute)
		store = memStore
		limiter = memLimiter
	}

	var gateway otp.Gateway
	if cfg.SMSEnabled() {
		gateway = otp.NewTwilioGateway(cfg.TwilioAccountSID, cfg.TwilioAuthToken, cfg.TwilioPhoneNumber)
	} else {
		obs.Warn("sms credentials missing, otp delivery disabled", nil)
		gateway = otp.DisabledGateway{}
	}

	return otp.NewService(store, limiter, gateway)
}
