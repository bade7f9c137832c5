package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/joho/godotenv"

	"moyun-danqing/internal/app"
	"moyun-danqing/internal/config"
	"moyun-danqing/internal/fetch"
	"moyun-danqing/internal/handlers"
	"moyun-danqing/internal/session"
	"moyun-danqing/internal/stanza"
	"moyun-danqing/internal/telegram"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err == nil {
		err = cfg.RequireTelegram()
	}
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

	tg, err := telegram.New(telegram.Options{
		Token: cfg.TelegramToken,
		HTTPClient: fetch.NewHTTPClient(fetch.Options{
			PreferIPv4: cfg.PreferIPv4,
			Timeout:    90 * time.Second,
		}),
		Logger: logger,
		Debug:  cfg.Debug,
	})
	if err != nil {
		logger.Error("telegram init failed", "err", err)
		os.Exit(1)
	}

	sessions := session.NewStore(session.Options{
		IdleTTL: cfg.SessionIdle,
		Logger:  logger,
	})

	handler := handlers.New(handlers.Options{
		Telegram:       tg,
		Pipeline:       pipeline,
		Sessions:       sessions,
		HistoryDisplay: cfg.HistoryDisplay,
		Logger:         logger,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	requestTimeout := cfg.GenerateTimeout + cfg.FetchTimeout + 30*time.Second

	sem := make(chan struct{}, cfg.MaxConcurrent)
	if cfg.StanzaDebounce > 0 {
		// Flushes can fire from inside an update goroutine that already
		// holds a slot, so the slot is taken on the new goroutine.
		onPoem := func(poem stanza.Poem) {
			go func() {
				select {
				case sem <- struct{}{}:
				case <-ctx.Done():
					return
				}
				defer func() { <-sem }()

				reqCtx, cancel := context.WithTimeout(ctx, requestTimeout)
				defer cancel()

				handler.HandlePoem(reqCtx, poem)
			}()
		}

		handler.SetCollector(stanza.New(stanza.Options{
			Debounce: cfg.StanzaDebounce,
			OnFlush:  onPoem,
		}))
	}

	logger.Info("bot started", "username", tg.Username(), "model", cfg.Model)

	updates := tg.Updates(telegram.UpdatesOptions{
		Timeout: 30 * time.Second,
	})
	defer tg.StopUpdates()

	for {
		select {
		case <-ctx.Done():
			logger.Info("shutting down")
			return
		case update, ok := <-updates:
			if !ok {
				logger.Info("updates channel closed")
				return
			}

			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				return
			}

			go func(update telegram.Update) {
				defer func() { <-sem }()

				reqCtx, cancel := context.WithTimeout(ctx, requestTimeout)
				defer cancel()

				if err := handler.HandleUpdate(reqCtx, update); err != nil && !errors.Is(err, context.Canceled) {
					logger.Error("handle update failed", "err", err)
					sentry.CaptureException(err)
				}
			}(update)
		}
	}
}
