// Package config loads scanner settings from the environment, optionally
// seeded from a .env file.
package config

import (
	"sort"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/pkg/errors"

	"rsi-divergence/internal/divergence"
	"rsi-divergence/internal/indicator"
	"rsi-divergence/internal/model"
)

// ErrMissingCredentials is returned by Validate when an Angel One login
// setting is empty.
var ErrMissingCredentials = errors.New("missing Angel One credentials")

// Config holds all application configuration loaded from environment variables.
type Config struct {
	// Angel One credentials
	AngelAPIKey     string `envconfig:"ANGEL_API_KEY"`
	AngelClientID   string `envconfig:"ANGEL_CLIENT_ID"`
	AngelPassword   string `envconfig:"ANGEL_PASSWORD"`
	AngelTOTPSecret string `envconfig:"ANGEL_TOTP_SECRET"`

	// Instrument; NIFTY 50 on NSE by default
	Symbol      string `envconfig:"SYMBOL" default:"NIFTY 50"`
	SymbolToken string `envconfig:"SYMBOL_TOKEN" default:"99926000"`
	Exchange    string `envconfig:"EXCHANGE" default:"NSE"`
	Timeframe   string `envconfig:"TIMEFRAME" default:"FIVE_MINUTE"`

	LookbackDays int `envconfig:"LOOKBACK_DAYS" default:"5"`

	RSIPeriod int     `envconfig:"RSI_PERIOD" default:"14"`
	BBPeriod  int     `envconfig:"BB_PERIOD" default:"20"`
	BBStdDev  float64 `envconfig:"BB_STD_DEV" default:"2.0"`

	CandleBufferSeconds int           `envconfig:"CANDLE_BUFFER_SECONDS" default:"15"`
	FetchTimeout        time.Duration `envconfig:"FETCH_TIMEOUT" default:"30s"`
	FetchRetries        int           `envconfig:"FETCH_RETRIES" default:"3"`
	WindowSize          int           `envconfig:"WINDOW_SIZE" default:"200"`

	// Notifiers; each is disabled while its settings are empty
	TelegramBotToken string `envconfig:"TELEGRAM_BOT_TOKEN"`
	TelegramChatID   string `envconfig:"TELEGRAM_CHAT_ID"`
	SlackToken       string `envconfig:"SLACK_TOKEN"`
	SlackChannel     string `envconfig:"SLACK_CHANNEL"`
	WebhookURL       string `envconfig:"WEBHOOK_URL"`

	// Infrastructure
	RedisAddr     string `envconfig:"REDIS_ADDR"`
	RedisPassword string `envconfig:"REDIS_PASSWORD"`
	SQLitePath    string `envconfig:"SQLITE_PATH" default:"data/candles.db"`
	MetricsAddr   string `envconfig:"METRICS_ADDR" default:":9090"`

	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
	LogFile  string `envconfig:"LOG_FILE" default:"logs/rsi_divergence.log"`
}

// Load reads envFile (".env" when empty, ignored if absent) into the process
// environment and then maps the environment onto Config. Variables already
// set in the environment win over the file.
func Load(envFile string) (*Config, error) {
	if envFile == "" {
		_ = godotenv.Load()
	} else if err := godotenv.Load(envFile); err != nil {
		return nil, errors.Wrapf(err, "load %s", envFile)
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, errors.Wrap(err, "process environment")
	}
	return &cfg, nil
}

// Validate checks credentials and parameter ranges.
func (c *Config) Validate() error {
	var missing []string
	for name, v := range map[string]string{
		"ANGEL_API_KEY":   c.AngelAPIKey,
		"ANGEL_CLIENT_ID": c.AngelClientID,
		"ANGEL_PASSWORD":  c.AngelPassword,
	} {
		if strings.TrimSpace(v) == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return errors.Wrap(ErrMissingCredentials, strings.Join(missing, ", "))
	}

	if _, err := model.ParseTimeframe(c.Timeframe); err != nil {
		return errors.Wrap(err, "TIMEFRAME")
	}
	if err := c.Indicators().Validate(); err != nil {
		return err
	}
	if c.LookbackDays <= 0 {
		return errors.Errorf("LOOKBACK_DAYS must be positive, got %d", c.LookbackDays)
	}
	if c.WindowSize < divergence.MinSeriesLen {
		return errors.Errorf("WINDOW_SIZE must be at least %d, got %d", divergence.MinSeriesLen, c.WindowSize)
	}
	if c.CandleBufferSeconds < 0 || c.CandleBufferSeconds > 59 {
		return errors.Errorf("CANDLE_BUFFER_SECONDS must be in [0, 59], got %d", c.CandleBufferSeconds)
	}
	if c.FetchTimeout <= 0 {
		return errors.Errorf("FETCH_TIMEOUT must be positive, got %s", c.FetchTimeout)
	}
	if c.FetchRetries < 1 {
		return errors.Errorf("FETCH_RETRIES must be at least 1, got %d", c.FetchRetries)
	}
	if (c.TelegramBotToken == "") != (c.TelegramChatID == "") {
		return errors.New("TELEGRAM_BOT_TOKEN and TELEGRAM_CHAT_ID must be set together")
	}
	if (c.SlackToken == "") != (c.SlackChannel == "") {
		return errors.New("SLACK_TOKEN and SLACK_CHANNEL must be set together")
	}
	return nil
}

// Instrument returns the scanned instrument.
func (c *Config) Instrument() model.Instrument {
	return model.Instrument{
		Token:    c.SymbolToken,
		Exchange: strings.ToUpper(c.Exchange),
		Symbol:   c.Symbol,
	}
}

// TF returns the parsed timeframe. Call Validate first.
func (c *Config) TF() model.Timeframe {
	tf, _ := model.ParseTimeframe(c.Timeframe)
	return tf
}

// Indicators returns the indicator parameters.
func (c *Config) Indicators() indicator.Config {
	return indicator.Config{
		RSIPeriod: c.RSIPeriod,
		BBPeriod:  c.BBPeriod,
		BBStdDev:  c.BBStdDev,
	}
}

// Lookback is the history window fetched each cycle.
func (c *Config) Lookback() time.Duration {
	return time.Duration(c.LookbackDays) * 24 * time.Hour
}

// CandleBuffer is the delay after a bar close before scanning.
func (c *Config) CandleBuffer() time.Duration {
	return time.Duration(c.CandleBufferSeconds) * time.Second
}

// TelegramEnabled reports whether Telegram alerts are configured.
func (c *Config) TelegramEnabled() bool { return c.TelegramBotToken != "" }

// SlackEnabled reports whether Slack alerts are configured.
func (c *Config) SlackEnabled() bool { return c.SlackToken != "" }

// RedisEnabled reports whether Redis publishing and state are configured.
func (c *Config) RedisEnabled() bool { return c.RedisAddr != "" }
