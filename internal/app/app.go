package app

import (
	"log/slog"
	"os"
	"time"

	"github.com/getsentry/sentry-go"

	"moyun-danqing/internal/config"
	"moyun-danqing/internal/creation"
	"moyun-danqing/internal/dashscope"
	"moyun-danqing/internal/fetch"
	"moyun-danqing/internal/prompt"
)

func NewLogger(cfg config.Config) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
}

// InitSentry enables error reporting when a DSN is configured. The returned
// func flushes pending events and is safe to call either way.
func InitSentry(cfg config.Config, logger *slog.Logger) func() {
	if cfg.SentryDSN == "" {
		return func() {}
	}

	err := sentry.Init(sentry.ClientOptions{
		Dsn:              cfg.SentryDSN,
		Environment:      cfg.Environment,
		AttachStacktrace: true,
		Debug:            cfg.Debug,
	})
	if err != nil {
		logger.Warn("sentry init failed", "err", err)
		return func() {}
	}

	logger.Info("sentry enabled", "environment", cfg.Environment)
	return func() { sentry.Flush(2 * time.Second) }
}

// Pipeline wires the shared HTTP transport, the DashScope client, the
// byte fetcher and the keyword tagger into one creation pipeline.
func Pipeline(cfg config.Config, logger *slog.Logger) (*creation.Pipeline, error) {
	httpClient := fetch.NewHTTPClient(fetch.Options{
		PreferIPv4: cfg.PreferIPv4,
		Timeout:    cfg.GenerateTimeout,
	})

	service := dashscope.New(dashscope.Options{
		APIKey:            cfg.DashScopeAPIKey,
		BaseURL:           cfg.DashScopeBaseURL,
		Model:             cfg.Model,
		Size:              cfg.ImageSize,
		PollInterval:      cfg.PollInterval,
		RequestsPerMinute: cfg.RequestsPerMinute,
		HTTPClient:        httpClient,
		Logger:            logger,
	})

	fetcher := fetch.New(httpClient, fetch.Options{Logger: logger})

	tagger, err := prompt.NewGseTagger()
	if err != nil {
		return nil, err
	}

	return creation.NewPipeline(creation.Options{
		Builder:         prompt.NewBuilder(tagger),
		Service:         service,
		Fetcher:         fetcher,
		GenerateTimeout: cfg.GenerateTimeout,
		FetchTimeout:    cfg.FetchTimeout,
		Logger:          logger,
	}), nil
}
