package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

const (
	configFilePathENV = "CONFIG_FILE"
	configDirENV      = "CONFIG_DIR"
	tokenTelegramENV  = "TELEGRAM_TOKEN"
	databaseDSN       = "DATABASE_DSN"

	envPrefix = "BOT"
)

// Источники календаря.
const (
	SourceFile   = "file"
	SourceHTTP   = "http"
	SourceStream = "ws"
)

// Config ...
type Config struct {
	BotName  string `mapstructure:"bot_name"`
	LogLevel string `mapstructure:"log_level"`
	DB       string `mapstructure:"db_dsn"`

	Telegram struct {
		Token   string  `mapstructure:"token"`
		ChatIDs []int64 `mapstructure:"chat_ids"`
		// сообщений в секунду на бота
		RateLimit float64 `mapstructure:"rate_limit"`
	} `mapstructure:"telegram"`

	Economic EconomicConfig `mapstructure:"economic"`

	Broker struct {
		WorkingDir     string  `mapstructure:"working_dir"`
		TimezoneOffset float64 `mapstructure:"timezone_offset"` // часы
		MagicNumber    int64   `mapstructure:"magic_number"`
	} `mapstructure:"broker"`

	Sentinel struct {
		Symbols               []string `mapstructure:"symbols"`
		Importance            int      `mapstructure:"importance"`
		ClosePositionsOnEvent bool     `mapstructure:"close_positions_on_event"`
	} `mapstructure:"sentinel"`

	Tracing struct {
		Enabled bool   `mapstructure:"enabled"`
		Host    string `mapstructure:"host"`
		Port    int    `mapstructure:"port"`
	} `mapstructure:"tracing"`

	Service struct {
		Host      string `mapstructure:"host"`
		AdminPort int    `mapstructure:"admin_port"`
	} `mapstructure:"service"`
}

// EconomicConfig drives the calendar monitor.
type EconomicConfig struct {
	Interval        time.Duration `mapstructure:"interval"`
	Backoff         time.Duration `mapstructure:"backoff"`
	Retention       time.Duration `mapstructure:"retention"`
	ReferenceSymbol string        `mapstructure:"reference_symbol"`
	MaxConcurrency  int           `mapstructure:"max_concurrency"`
	CallbackTimeout time.Duration `mapstructure:"callback_timeout"`

	Source struct {
		Kind       string        `mapstructure:"kind"` // file | http | ws
		Path       string        `mapstructure:"path"`
		URL        string        `mapstructure:"url"`
		TimeLayout string        `mapstructure:"time_layout"`
		Timeout    time.Duration `mapstructure:"timeout"`
	} `mapstructure:"source"`
}

// AdminAddr: адрес health/metrics сервера.
func (c *Config) AdminAddr() string {
	return fmt.Sprintf("%s:%d", c.Service.Host, c.Service.AdminPort)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("bot_name", "sentinel")
	v.SetDefault("log_level", "info")
	v.SetDefault("db_dsn", "")

	v.SetDefault("telegram.token", "")
	v.SetDefault("telegram.chat_ids", []int64{})
	v.SetDefault("telegram.rate_limit", 20.0)

	v.SetDefault("economic.interval", "5m")
	v.SetDefault("economic.backoff", "5s")
	v.SetDefault("economic.retention", "24h")
	v.SetDefault("economic.reference_symbol", "EURUSD")
	v.SetDefault("economic.max_concurrency", 16)
	v.SetDefault("economic.callback_timeout", "0s")
	v.SetDefault("economic.source.kind", SourceFile)
	v.SetDefault("economic.source.path", "")
	v.SetDefault("economic.source.url", "")
	v.SetDefault("economic.source.time_layout", "2006.01.02 15:04")
	v.SetDefault("economic.source.timeout", "10s")

	v.SetDefault("broker.working_dir", ".")
	v.SetDefault("broker.timezone_offset", 0.0)
	v.SetDefault("broker.magic_number", 0)

	v.SetDefault("sentinel.symbols", []string{})
	v.SetDefault("sentinel.importance", 3)
	v.SetDefault("sentinel.close_positions_on_event", false)

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.host", "localhost")
	v.SetDefault("tracing.port", 6831)

	v.SetDefault("service.host", "")
	v.SetDefault("service.admin_port", 8080)
}

// NewConfig читает configs/$CONFIG_FILE (по умолчанию values_local.yaml) и накатывает env.
func NewConfig() (*Config, error) {
	_ = godotenv.Load()

	configFileName := os.Getenv(configFilePathENV)
	if configFileName == "" {
		configFileName = "values_local.yaml"
	}
	configDir := os.Getenv(configDirENV)
	if configDir == "" {
		configDir = "configs"
	}
	return Load(filepath.Join(configDir, configFileName))
}

// Load reads a single config file. A missing file is not an error: defaults and env
// still apply.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("telegram.token", envPrefix+"_TELEGRAM_TOKEN", tokenTelegramENV)
	_ = v.BindEnv("db_dsn", envPrefix+"_DB_DSN", databaseDSN)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			if !os.IsNotExist(err) && !errors.As(err, new(viper.ConfigFileNotFoundError)) {
				return nil, errors.Wrapf(err, "read config %s", path)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "decode config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	e := c.Economic
	if e.Interval <= 0 {
		return fmt.Errorf("economic.interval must be > 0, got %s", e.Interval)
	}
	if e.Backoff <= 0 {
		return fmt.Errorf("economic.backoff must be > 0, got %s", e.Backoff)
	}
	if e.Retention <= 0 {
		return fmt.Errorf("economic.retention must be > 0, got %s", e.Retention)
	}
	if e.MaxConcurrency <= 0 {
		return fmt.Errorf("economic.max_concurrency must be > 0, got %d", e.MaxConcurrency)
	}
	switch e.Source.Kind {
	case SourceFile:
	case SourceHTTP, SourceStream:
		if e.Source.URL == "" {
			return fmt.Errorf("economic.source.url is required for %q source", e.Source.Kind)
		}
	default:
		return fmt.Errorf("unknown economic.source.kind %q", e.Source.Kind)
	}
	if c.Sentinel.Importance < 1 || c.Sentinel.Importance > 3 {
		return fmt.Errorf("sentinel.importance must be in 1..3, got %d", c.Sentinel.Importance)
	}
	return nil
}
