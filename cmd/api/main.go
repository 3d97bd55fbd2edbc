package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"clubhub/internal/app"
	"clubhub/internal/auth"
	"clubhub/internal/checkin"
	"clubhub/internal/config"
	"clubhub/internal/event"
	"clubhub/internal/feedback"
	"clubhub/internal/httpapi"
	"clubhub/internal/judging"
	"clubhub/internal/logger"
	"clubhub/internal/quiz"
	"clubhub/internal/registration"
	"clubhub/internal/report"
	"clubhub/internal/student"
	"clubhub/internal/verifyclient"
)

func main() {
	cfg := config.Load()
	if cfg.Production() {
		gin.SetMode(gin.ReleaseMode)
	}

	zl, err := logger.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatalf("logger init failed: %v", err)
	}
	defer zl.Sync()

	if err := runHTTP(cfg, zl); err != nil {
		zl.Fatal("http server failed", zap.Error(err))
	}
}

func runHTTP(cfg config.App, zl *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Production() && cfg.JWTSigningKey == "dev-signing-secret-change" {
		return errors.New("JWT_SIGNING_KEY must be set in production")
	}

	backends, err := app.Open(ctx, cfg, zl)
	if err != nil {
		return err
	}
	defer backends.Close()

	accounts := auth.NewAccounts(backends.Store, zl)
	if err := accounts.EnsureAdmin(ctx, cfg.AdminUsername, cfg.AdminPassword); err != nil {
		return err
	}

	cdn := app.Cloudinary(cfg)
	if cdn == nil {
		zl.Info("cloudinary not configured; posters disabled and reports written to disk", zap.String("dir", cfg.ReportDir))
	}

	students := student.NewDirectory(backends.Store, zl)
	events := event.NewService(backends.Store, zl)
	regs := registration.NewService(backends.Store, events, zl)
	var verify checkin.RollFetcher
	if len(cfg.VerifyAllowedHost) > 0 {
		verify = verifyclient.New(cfg.VerifyTimeout, cfg.VerifyAllowedHost)
	} else {
		zl.Info("verification links disabled; set VERIFY_ALLOWED_HOSTS to enable")
	}
	resolver := checkin.NewResolver(verify)
	consoles := checkin.NewConsoles(regs, students, events, resolver, zl, checkin.Options{Cooldown: cfg.CheckinCooldown})
	defer consoles.Close()
	reports := report.NewService(backends.Store, events, regs, backends.Queue, app.ReportStorage(cfg, cdn), zl)

	// An in-memory queue only reaches consumers in this process.
	if cfg.QueueBackend != "redis" {
		msgs, err := backends.Queue.Consume(ctx)
		if err != nil {
			return err
		}
		go reports.Run(ctx, msgs)
	}

	srv := httpapi.New(httpapi.Options{
		JWTIssuer:       cfg.JWTIssuer,
		JWTSigningKey:   cfg.JWTSigningKey,
		AccessTTL:       cfg.AccessTTL,
		RateLimitPerMin: cfg.RateLimitPerMin,
		CORSOrigins:     cfg.CORSOrigins,
		Health:          backends.Health,
	}, httpapi.Services{
		Accounts:      accounts,
		Students:      students,
		Events:        events,
		Registrations: regs,
		Consoles:      consoles,
		Judging:       judging.NewService(backends.Store, events, regs, zl),
		Reports:       reports,
		Feedback:      feedback.NewService(backends.Store, regs, zl),
		Quiz:          quiz.NewService(backends.Store, events, regs, zl),
		Posters:       cdn,
	}, zl)

	// WriteTimeout stays zero so SSE streams are not cut off.
	server := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	server.RegisterOnShutdown(srv.CloseStreams)

	errCh := make(chan error, 1)
	go func() {
		zl.Info("starting server", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	zl.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		zl.Warn("server forced shutdown", zap.Error(err))
	}
	zl.Info("server exited")
	return nil
}
