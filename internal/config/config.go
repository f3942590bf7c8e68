package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"trendr/internal/backtest"
	"trendr/internal/ml"
)

type Config struct {
	DatabaseURL      string
	RedisURL         string
	HTTPAddr         string
	MetricsAddr      string
	APIKey           string
	LogLevel         string
	LogFormat        string
	TelegramBotToken string
	DataDir          string
	TracingEnabled   bool
	OTLPEndpoint     string

	Symbols        []string
	Interval       string
	Start          time.Time
	Model          string
	TestDays       int
	RefreshHourUTC int
	Backtest       backtest.Params

	StrategyFile string
}

var defaultStart = time.Date(2016, 1, 1, 0, 0, 0, 0, time.UTC)

func Load() *Config {
	cfg := &Config{
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		RedisURL:         os.Getenv("REDIS_URL"),
		APIKey:           os.Getenv("API_KEY"),
		TelegramBotToken: os.Getenv("TELEGRAM_BOT_TOKEN"),
		MetricsAddr:      strings.TrimSpace(os.Getenv("METRICS_ADDR")),
		StrategyFile:     strings.TrimSpace(os.Getenv("TRENDR_STRATEGY_FILE")),
	}

	if cfg.DatabaseURL == "" {
		log.Warn().Msg("DATABASE_URL not set, bars and models will not be persisted")
	}
	if cfg.RedisURL == "" {
		log.Warn().Msg("REDIS_URL not set, defaulting to localhost:6379")
		cfg.RedisURL = "localhost:6379"
	}
	if cfg.APIKey == "" {
		log.Warn().Msg("API_KEY not set, API routes are unauthenticated")
	}

	cfg.HTTPAddr = strings.TrimSpace(os.Getenv("HTTP_ADDR"))
	if cfg.HTTPAddr == "" {
		cfg.HTTPAddr = ":8080"
	}

	cfg.LogLevel = strings.ToLower(strings.TrimSpace(os.Getenv("LOG_LEVEL")))
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}

	cfg.LogFormat = strings.ToLower(strings.TrimSpace(os.Getenv("LOG_FORMAT")))
	if cfg.LogFormat != "console" {
		cfg.LogFormat = "json"
	}

	cfg.TracingEnabled = strings.TrimSpace(os.Getenv("TRACING_ENABLED")) != "false"
	cfg.OTLPEndpoint = strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"))
	if cfg.OTLPEndpoint == "" {
		cfg.OTLPEndpoint = "localhost:4317"
	}

	cfg.DataDir = strings.TrimSpace(os.Getenv("DATA_DIR"))
	if cfg.DataDir == "" {
		cfg.DataDir = "data"
	}

	cfg.Symbols = parseSymbols(os.Getenv("TRENDR_SYMBOLS"))
	if len(cfg.Symbols) == 0 {
		cfg.Symbols = []string{"ETH-USD"}
	}

	cfg.Interval = strings.TrimSpace(os.Getenv("TRENDR_INTERVAL"))
	if cfg.Interval == "" {
		cfg.Interval = "1d"
	}

	cfg.Start = defaultStart
	if v := strings.TrimSpace(os.Getenv("TRENDR_START")); v != "" {
		if t, err := time.Parse(time.DateOnly, v); err == nil {
			cfg.Start = t
		} else {
			log.Warn().Str("value", v).Msg("invalid TRENDR_START, using 2016-01-01")
		}
	}

	cfg.Model = ml.DefaultModel
	if v := strings.TrimSpace(os.Getenv("TRENDR_MODEL")); v != "" {
		if name, err := ml.ParseModelName(v); err == nil {
			cfg.Model = name
		} else {
			log.Warn().Str("value", v).Msg("unsupported TRENDR_MODEL, using gbc")
		}
	}

	cfg.TestDays = 365
	if v := strings.TrimSpace(os.Getenv("TRENDR_TEST_DAYS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.TestDays = n
		}
	}

	cfg.RefreshHourUTC = 0
	if v := strings.TrimSpace(os.Getenv("TRENDR_REFRESH_HOUR_UTC")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 && n <= 23 {
			cfg.RefreshHourUTC = n
		}
	}

	cfg.Backtest = backtest.DefaultParams()
	if v := strings.TrimSpace(os.Getenv("TRENDR_THRESHOLD_LONG")); v != "" {
		if n, err := strconv.ParseFloat(v, 64); err == nil && n > 0 && n < 1 {
			cfg.Backtest.ThresholdLong = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("TRENDR_THRESHOLD_SHORT")); v != "" {
		if n, err := strconv.ParseFloat(v, 64); err == nil && n > 0 && n < 1 {
			cfg.Backtest.ThresholdShort = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("TRENDR_TX_COST_BPS")); v != "" {
		if n, err := strconv.ParseFloat(v, 64); err == nil && n >= 0 {
			cfg.Backtest.TxCostBps = n
		}
	}
	if err := cfg.Backtest.Validate(); err != nil {
		log.Warn().Err(err).Msg("threshold overrides rejected, using defaults")
		cfg.Backtest = backtest.DefaultParams()
	}

	if cfg.StrategyFile != "" {
		if err := cfg.LoadStrategy(cfg.StrategyFile); err != nil {
			log.Warn().Err(err).Str("path", cfg.StrategyFile).Msg("strategy file ignored")
		}
	}

	return cfg
}

func parseSymbols(raw string) []string {
	var out []string
	seen := map[string]bool{}
	for _, part := range strings.Split(raw, ",") {
		sym := strings.ToUpper(strings.TrimSpace(part))
		if sym == "" || seen[sym] {
			continue
		}
		seen[sym] = true
		out = append(out, sym)
	}
	return out
}
