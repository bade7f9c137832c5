package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

var ErrMissingAPIKey = errors.New(`DASHSCOPE_API_KEY is required
  1. create a .env file in the project root
  2. add the line DASHSCOPE_API_KEY=<your key>`)

var ErrMissingTelegramToken = errors.New("TELEGRAM_BOT_TOKEN is required")

type Config struct {
	DashScopeAPIKey  string
	DashScopeBaseURL string
	Model            string
	ImageSize        string

	TelegramToken  string
	StanzaDebounce time.Duration

	Environment string
	LogLevel    string
	Debug       bool
	SentryDSN   string

	WebAddr       string
	SessionSecret string
	SessionIdle   time.Duration

	PreferIPv4        bool
	GenerateTimeout   time.Duration
	FetchTimeout      time.Duration
	PollInterval      time.Duration
	RequestsPerMinute float64

	HistoryDisplay int
	MaxConcurrent  int
}

func Load() (Config, error) {
	cfg := Config{
		DashScopeBaseURL:  strings.TrimSpace(getEnv("DASHSCOPE_BASE_URL", "https://dashscope.aliyuncs.com")),
		Model:             strings.TrimSpace(getEnv("DASHSCOPE_MODEL", "wanx2.1-t2i-turbo")),
		ImageSize:         strings.TrimSpace(getEnv("IMAGE_SIZE", "1440*960")),
		Environment:       strings.ToLower(getEnv("ENVIRONMENT", "development")),
		LogLevel:          strings.ToLower(strings.TrimSpace(getEnv("LOG_LEVEL", "info"))),
		Debug:             getEnvBool("DEBUG", false),
		SentryDSN:         getEnv("SENTRY_DSN", ""),
		WebAddr:           getEnv("WEB_ADDR", ":8080"),
		SessionSecret:     getEnv("SESSION_SECRET", ""),
		SessionIdle:       time.Duration(getEnvInt("SESSION_IDLE_MINUTES", 60)) * time.Minute,
		PreferIPv4:        getEnvBool("PREFER_IPV4", true),
		GenerateTimeout:   time.Duration(getEnvInt("GENERATE_TIMEOUT_SECONDS", 180)) * time.Second,
		FetchTimeout:      time.Duration(getEnvInt("FETCH_TIMEOUT_SECONDS", 60)) * time.Second,
		PollInterval:      time.Duration(getEnvInt("POLL_INTERVAL_MS", 2000)) * time.Millisecond,
		RequestsPerMinute: getEnvFloat("REQUESTS_PER_MINUTE", 20),
		StanzaDebounce:    time.Duration(getEnvInt("STANZA_DEBOUNCE_MS", 1500)) * time.Millisecond,
		HistoryDisplay:    getEnvInt("HISTORY_DISPLAY", 6),
		MaxConcurrent:     getEnvInt("MAX_CONCURRENT", 4),
	}

	cfg.DashScopeAPIKey = strings.TrimSpace(os.Getenv("DASHSCOPE_API_KEY"))
	cfg.TelegramToken = strings.TrimSpace(os.Getenv("TELEGRAM_BOT_TOKEN"))

	if cfg.DashScopeAPIKey == "" {
		return Config{}, ErrMissingAPIKey
	}

	if cfg.SessionIdle <= 0 {
		cfg.SessionIdle = time.Hour
	}
	if cfg.GenerateTimeout <= 0 {
		cfg.GenerateTimeout = 180 * time.Second
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = 60 * time.Second
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if cfg.RequestsPerMinute <= 0 {
		cfg.RequestsPerMinute = 20
	}
	if cfg.StanzaDebounce < 0 {
		cfg.StanzaDebounce = 0
	}
	if cfg.HistoryDisplay < 1 {
		cfg.HistoryDisplay = 6
	}
	if cfg.MaxConcurrent < 1 {
		cfg.MaxConcurrent = 1
	}

	return cfg, nil
}

// RequireTelegram is checked by the bot entrypoint only; the web and CLI
// surfaces run without a bot token.
func (c Config) RequireTelegram() error {
	if c.TelegramToken == "" {
		return ErrMissingTelegramToken
	}
	return nil
}

func (c Config) IsProduction() bool {
	return c.Environment == "production"
}

func getEnv(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvFloat(key string, fallback float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvBool(key string, fallback bool) bool {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}
