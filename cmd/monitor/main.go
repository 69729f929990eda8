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

	"go.uber.org/zap"

	"github.com/hamed0406/uptimemonitor/internal/config"
	"github.com/hamed0406/uptimemonitor/internal/httpapi"
	apimw "github.com/hamed0406/uptimemonitor/internal/httpapi/middleware"
	"github.com/hamed0406/uptimemonitor/internal/logging"
	"github.com/hamed0406/uptimemonitor/internal/monitor"
	"github.com/hamed0406/uptimemonitor/internal/notify"
	"github.com/hamed0406/uptimemonitor/internal/probe"
	"github.com/hamed0406/uptimemonitor/internal/scheduler"
)

func main() {
	cfg := config.FromEnv()
	logger, err := logging.NewLogger(cfg.LogDir, cfg.LogLevel)
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx, cfg, logger.Named("store"))
	if err != nil {
		logger.Fatal("store_open_failed", zap.Error(err))
	}
	defer store.Close()

	if cfg.MonitorsFile != "" {
		ms, err := config.LoadMonitors(cfg.MonitorsFile)
		if err != nil {
			logger.Fatal("monitors_file_invalid", zap.String("path", cfg.MonitorsFile), zap.Error(err))
		}
		if err := seedMonitors(ctx, store, ms); err != nil {
			logger.Fatal("monitors_seed_failed", zap.Error(err))
		}
		logger.Info("monitors_seeded", zap.Int("count", len(ms)))
	}

	// alerts
	email := notify.NewEmail(cfg.SMTPHost, cfg.SMTPPort, cfg.EmailUser, cfg.EmailPass, cfg.EmailFrom)
	email.Timeout = cfg.AlertTimeout
	if !email.Configured() {
		logger.Warn("email_alerts_disabled", zap.String("reason", "ALERT_EMAIL_USER or ALERT_EMAIL_PASS not set"))
	}
	hook := notify.NewWebhook(cfg.WebhookURL, notify.WebhookFormat(cfg.WebhookFormat), cfg.AlertTimeout)
	if hook.URL == "" {
		logger.Info("webhook_alerts_disabled")
	}
	dispatcher := notify.NewDispatcher(logger.Named("notify"), email, hook)

	// engine
	prober := probe.NewRetryChecker(probe.NewHTTPChecker(cfg.ProbeTimeout), cfg.RetryAttempts, cfg.RetryBackoff)
	checker := monitor.NewChecker(logger.Named("checker"), store, prober, dispatcher)
	sched := scheduler.New(logger.Named("scheduler"), checker, store, cfg.CycleTimeout, nil)

	active, err := store.ListActive(ctx)
	if err != nil {
		logger.Fatal("monitors_load_failed", zap.Error(err))
	}
	sched.Start(ctx, active)

	go sched.RunReconcile(ctx, cfg.ReconcileInterval)
	retention := time.Duration(cfg.RetentionDays) * 24 * time.Hour
	go scheduler.NewEvictor(logger.Named("evictor"), store, retention, time.Hour).Run(ctx)
	if cfg.MonitorsFile != "" {
		go watchMonitors(ctx, logger, store, sched, cfg.MonitorsFile)
	}

	// ops API
	keys := apimw.Keys{Public: cfg.PublicAPIKeys, Admin: cfg.AdminAPIKeys}
	api := httpapi.NewServer(logger.Named("httpapi"), sched, store)
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.Router(keys, cfg.AllowedOrigins, cfg.AdminRPM, cfg.AdminBurst),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("api_listen", zap.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("api_listen_failed", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown_started")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("api_shutdown_error", zap.Error(err))
	}
	sched.Stop()
	logger.Info("shutdown_complete")
}
