package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/dingeii/binance-signal-bot/internal/logging"
)

// Config materialises application configuration.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Logging   logging.Config  `mapstructure:"logging"`
	Exchange  ExchangeConfig  `mapstructure:"exchange"`
	Fetch     FetchConfig     `mapstructure:"fetch"`
	Baseline  BaselineConfig  `mapstructure:"baseline"`
	Detector  DetectorConfig  `mapstructure:"detector"`
	Movement  MovementConfig  `mapstructure:"movement"`
	Report    ReportConfig    `mapstructure:"report"`
	Alerting  AlertingConfig  `mapstructure:"alerting"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Server    ServerConfig    `mapstructure:"server"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name" validate:"required"`
	Environment string `mapstructure:"environment"`
}

// ExchangeConfig selects the Binance market and the symbol universe.
type ExchangeConfig struct {
	Market          string        `mapstructure:"market" validate:"oneof=futures spot"`
	BaseURL         string        `mapstructure:"base_url" validate:"omitempty,url"`
	Mode            string        `mapstructure:"mode" validate:"oneof=trades depth"`
	DepthLevels     int           `mapstructure:"depth_levels" validate:"gt=0,lte=1000"`
	TradeWindow     time.Duration `mapstructure:"trade_window" validate:"gt=0"`
	TradeLimit      int           `mapstructure:"trade_limit" validate:"gt=0,lte=1000"`
	QuoteAsset      string        `mapstructure:"quote_asset" validate:"required"`
	ExcludeSuffixes []string      `mapstructure:"exclude_suffixes"`
	ExcludeBases    []string      `mapstructure:"exclude_bases"`
	UniverseRetries int           `mapstructure:"universe_retries" validate:"gte=0"`
}

// FetchConfig bounds the per-cycle fan-out.
type FetchConfig struct {
	Concurrency int `mapstructure:"concurrency" validate:"gt=0"`
	// MaxSymbols limits the net-flow fetch to the most liquid symbols by
	// quote volume; 0 fetches the whole universe.
	MaxSymbols        int           `mapstructure:"max_symbols" validate:"gte=0"`
	Timeout           time.Duration `mapstructure:"timeout" validate:"gt=0"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second" validate:"gte=0"`
	Burst             int           `mapstructure:"burst" validate:"gte=0"`
}

// BaselineConfig configures the rolling history and where it is kept.
type BaselineConfig struct {
	Backend       string        `mapstructure:"backend" validate:"oneof=file redis postgres memory"`
	Path          string        `mapstructure:"path"`
	HistoryWindow int           `mapstructure:"history_window" validate:"gt=0"`
	MinHistory    int           `mapstructure:"min_history" validate:"gt=0"`
	MaxAge        time.Duration `mapstructure:"max_age" validate:"gte=0"`
	Redis         RedisConfig   `mapstructure:"redis"`
}

// RedisConfig holds Redis connectivity for the redis backend.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db" validate:"gte=0"`
	Key      string `mapstructure:"key"`
}

// DetectorConfig holds the net-flow anomaly thresholds.
type DetectorConfig struct {
	AbsoluteThreshold float64 `mapstructure:"absolute_threshold" validate:"gt=0"`
	Multiplier        float64 `mapstructure:"multiplier" validate:"gt=0"`
}

// MovementConfig holds the 24h price movement bounds.
type MovementConfig struct {
	Enabled   bool    `mapstructure:"enabled"`
	SurgePct  float64 `mapstructure:"surge_pct" validate:"gt=0"`
	PlungePct float64 `mapstructure:"plunge_pct" validate:"lt=0"`
}

// ReportConfig shapes the cycle report.
type ReportConfig struct {
	TopN   int  `mapstructure:"top_n" validate:"gt=0,lte=50"`
	Charts bool `mapstructure:"charts"`
}

// AlertingConfig defines report routing.
type AlertingConfig struct {
	Enabled  bool           `mapstructure:"enabled"`
	Timeout  time.Duration  `mapstructure:"timeout"`
	Telegram TelegramConfig `mapstructure:"telegram"`
	Discord  DiscordConfig  `mapstructure:"discord"`
}

// TelegramConfig 描述 Telegram 告警参数。
type TelegramConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
	APIBase  string `mapstructure:"api_base"`
}

// DiscordConfig 描述 Discord webhook 参数。
type DiscordConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	WebhookURL string `mapstructure:"webhook_url"`
}

// SchedulerConfig governs cycle cadence.
type SchedulerConfig struct {
	Interval        time.Duration `mapstructure:"interval" validate:"gt=0"`
	AlignToInterval bool          `mapstructure:"align_to_interval"`
	RunImmediately  bool          `mapstructure:"run_immediately"`
	AdvisoryLockKey int64         `mapstructure:"advisory_lock_key"`
	StartupDelay    time.Duration `mapstructure:"startup_delay" validate:"gte=0"`
}

// DatabaseConfig encapsulates PostgreSQL connectivity.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	AuditAlerts     bool          `mapstructure:"audit_alerts"`
}

// ServerConfig controls the status HTTP server.
type ServerConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	ListenAddr string `mapstructure:"listen_addr"`
}

// legacyEnv maps keys to the environment names the old scripts read.
var legacyEnv = map[string][]string{
	"alerting.telegram.bot_token": {"TELEGRAM_BOT_TOKEN", "BOT_TOKEN"},
	"alerting.telegram.chat_id":   {"TELEGRAM_CHAT_ID", "CHAT_ID"},
}

// Load builds configuration from file, environment, and defaults. A .env
// file in the working directory is loaded first when present.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	v.SetEnvPrefix("SIGNALBOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	if err := bindLegacyEnv(v); err != nil {
		return nil, err
	}

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func bindLegacyEnv(v *viper.Viper) error {
	for key, names := range legacyEnv {
		args := append([]string{key, "SIGNALBOT_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))}, names...)
		if err := v.BindEnv(args...); err != nil {
			return fmt.Errorf("bind env %s: %w", key, err)
		}
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "signalbot")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")

	v.SetDefault("exchange.market", "futures")
	v.SetDefault("exchange.mode", "trades")
	v.SetDefault("exchange.depth_levels", 50)
	v.SetDefault("exchange.trade_window", "5m")
	v.SetDefault("exchange.trade_limit", 1000)
	v.SetDefault("exchange.quote_asset", "USDT")
	v.SetDefault("exchange.exclude_suffixes", []string{"_PERP"})
	v.SetDefault("exchange.exclude_bases", []string{})
	v.SetDefault("exchange.universe_retries", 3)

	v.SetDefault("fetch.concurrency", 10)
	v.SetDefault("fetch.timeout", "5s")
	v.SetDefault("fetch.max_symbols", 20)
	v.SetDefault("fetch.requests_per_second", 10)
	v.SetDefault("fetch.burst", 5)

	v.SetDefault("baseline.backend", "file")
	v.SetDefault("baseline.path", "data/baseline.json")
	v.SetDefault("baseline.history_window", 10)
	v.SetDefault("baseline.min_history", 3)
	v.SetDefault("baseline.max_age", "72h")
	v.SetDefault("baseline.redis.addr", "localhost:6379")
	v.SetDefault("baseline.redis.db", 0)
	v.SetDefault("baseline.redis.key", "signalbot:baseline")

	v.SetDefault("detector.absolute_threshold", 10000.0)
	v.SetDefault("detector.multiplier", 3.0)

	v.SetDefault("movement.enabled", true)
	v.SetDefault("movement.surge_pct", 100.0)
	v.SetDefault("movement.plunge_pct", -60.0)

	v.SetDefault("report.top_n", 10)
	v.SetDefault("report.charts", false)

	v.SetDefault("alerting.enabled", false)
	v.SetDefault("alerting.timeout", "10s")
	v.SetDefault("alerting.telegram.enabled", false)
	v.SetDefault("alerting.telegram.api_base", "https://api.telegram.org")
	v.SetDefault("alerting.discord.enabled", false)

	v.SetDefault("scheduler.interval", "5m")
	v.SetDefault("scheduler.align_to_interval", true)
	v.SetDefault("scheduler.run_immediately", false)
	v.SetDefault("scheduler.advisory_lock_key", int64(0x5347424f54))
	v.SetDefault("scheduler.startup_delay", "0s")

	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 2)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.audit_alerts", true)

	v.SetDefault("server.enabled", false)
	v.SetDefault("server.listen_addr", ":9090")
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

var validate = validator.New()

// Validate runs the struct tag rules, then the cross-field checks.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("invalid config %s: failed %q (value %v)", fe.Namespace(), fe.Tag(), fe.Value())
		}
		return fmt.Errorf("validate config: %w", err)
	}

	if c.Baseline.MinHistory > c.Baseline.HistoryWindow {
		return fmt.Errorf("baseline.min_history (%d) cannot exceed baseline.history_window (%d)", c.Baseline.MinHistory, c.Baseline.HistoryWindow)
	}
	switch c.Baseline.Backend {
	case "file":
		if c.Baseline.Path == "" {
			return fmt.Errorf("baseline.path 必须配置 (backend=file)")
		}
	case "redis":
		if c.Baseline.Redis.Addr == "" {
			return fmt.Errorf("baseline.redis.addr 必须配置 (backend=redis)")
		}
	case "postgres":
		if c.Database.DSN == "" {
			return fmt.Errorf("database.dsn 必须配置 (backend=postgres)")
		}
	}
	if c.Movement.SurgePct <= c.Movement.PlungePct {
		return fmt.Errorf("movement.surge_pct must be greater than movement.plunge_pct")
	}
	if c.Alerting.Telegram.Enabled {
		if c.Alerting.Telegram.BotToken == "" {
			return fmt.Errorf("alerting.telegram.bot_token 必须配置")
		}
		if c.Alerting.Telegram.ChatID == "" {
			return fmt.Errorf("alerting.telegram.chat_id 必须配置")
		}
	}
	if c.Alerting.Discord.Enabled && c.Alerting.Discord.WebhookURL == "" {
		return fmt.Errorf("alerting.discord.webhook_url 必须配置")
	}
	if c.Server.Enabled && c.Server.ListenAddr == "" {
		return fmt.Errorf("server.listen_addr 必须配置")
	}
	return nil
}

// DatabaseEnabled reports whether a Postgres DSN is configured.
func (c *Config) DatabaseEnabled() bool {
	return strings.TrimSpace(c.Database.DSN) != ""
}
