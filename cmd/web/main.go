package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	sentryhttp "github.com/getsentry/sentry-go/http"
	"github.com/joho/godotenv"

	"moyun-danqing/internal/app"
	"moyun-danqing/internal/config"
	"moyun-danqing/internal/session"
	"moyun-danqing/internal/web"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)
	flush := app.InitSentry(cfg, logger)
	defer flush()

	pipeline, err := app.Pipeline(cfg, logger)
	if err != nil {
		logger.Error("pipeline init failed", "err", err)
		os.Exit(1)
	}

	secret := []byte(cfg.SessionSecret)
	if len(secret) == 0 {
		if cfg.IsProduction() {
			logger.Error("SESSION_SECRET is required in production")
			os.Exit(1)
		}
		logger.Warn("SESSION_SECRET not set, cookies will not survive a restart")
		secret = []byte(randomSecret())
	}

	sessions := session.NewStore(session.Options{
		IdleTTL: cfg.SessionIdle,
		Logger:  logger,
	})

	srv, err := web.New(web.Options{
		Pipeline:       pipeline,
		Sessions:       sessions,
		Secret:         secret,
		SecureCookie:   cfg.IsProduction(),
		CookieMaxAge:   cfg.SessionIdle,
		HistoryDisplay: cfg.HistoryDisplay,
		Logger:         logger,
	})
	if err != nil {
		logger.Error("web init failed", "err", err)
		os.Exit(1)
	}

	routes, err := srv.Routes()
	if err != nil {
		logger.Error("web routes failed", "err", err)
		os.Exit(1)
	}

	handler := sentryhttp.New(sentryhttp.Options{Repanic: false}).Handle(routes)

	httpSrv := &http.Server{
		Addr:              cfg.WebAddr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      cfg.GenerateTimeout + cfg.FetchTimeout + 30*time.Second,
		IdleTimeout:       90 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown failed", "err", err)
		}
	}()

	logger.Info("web started", "addr", cfg.WebAddr, "model", cfg.Model)
	if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server error", "err", err)
		os.Exit(1)
	}
	logger.Info("shutting down")
}
