package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config es la configuración completa del bot.
type Config struct {
	Bot     BotConfig     `yaml:"bot"`
	API     APIConfig     `yaml:"api"`
	Ticker  TickerConfig  `yaml:"ticker"`
	Storage StorageConfig `yaml:"storage"`
	Log     LogConfig     `yaml:"log"`
}

// BotConfig controla la conexión con Telegram y el reparto de comandos.
type BotConfig struct {
	Token         string  `yaml:"token"`          // mejor vía TELEGRAM_BOT_TOKEN
	CommandPrefix string  `yaml:"command_prefix"` // además de /comando
	Debug         bool    `yaml:"debug"`
	AllowedChats  []int64 `yaml:"allowed_chats"` // vacío = todos
	Workers       int     `yaml:"workers"`       // comandos en paralelo
}

// APIConfig contiene el feed de precios.
type APIConfig struct {
	TickerBase     string  `yaml:"ticker_base"`
	TimeoutSeconds int     `yaml:"timeout_seconds"`
	RatePerSec     float64 `yaml:"rate_per_sec"`
}

// TickerConfig controla la caché de precios.
type TickerConfig struct {
	TTLSeconds            int `yaml:"ttl_seconds"`
	RefreshTimeoutSeconds int `yaml:"refresh_timeout_seconds"`
}

// StorageConfig controla dónde se persisten los datos.
type StorageConfig struct {
	DSN string `yaml:"dsn"` // ruta al archivo SQLite, o ":memory:"
}

// LogConfig controla el formato, nivel y rotación del logging.
type LogConfig struct {
	Level      string `yaml:"level"`  // debug | info | warn | error
	Format     string `yaml:"format"` // text | json
	File       string `yaml:"file"`   // vacío = sólo stdout
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

// Load carga la configuración desde el archivo YAML y el archivo .env si existe.
// Las variables de entorno sobreescriben los valores del YAML.
func Load(path string) (*Config, error) {
	// Cargar .env si existe (silencia error si no hay archivo)
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config.Load: read %q: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config.Load: parse YAML: %w", err)
	}

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)

	return &cfg, nil
}

// Validate comprueba la configuración. requireToken sólo es necesario para arrancar el bot.
func (c *Config) Validate(requireToken bool) error {
	var errs []error
	if requireToken && c.Bot.Token == "" {
		errs = append(errs, errors.New("bot.token is required (or TELEGRAM_BOT_TOKEN)"))
	}
	if c.Ticker.TTLSeconds <= 0 {
		errs = append(errs, fmt.Errorf("ticker.ttl_seconds must be positive, got %d", c.Ticker.TTLSeconds))
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log.level %q is not one of debug|info|warn|error", c.Log.Level))
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format %q is not one of text|json", c.Log.Format))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("config.Validate: %w", err)
	}
	return nil
}

// APITimeout devuelve el timeout por request al feed.
func (c *Config) APITimeout() time.Duration {
	return time.Duration(c.API.TimeoutSeconds) * time.Second
}

// TickerTTL devuelve la vida máxima de la tabla de precios.
func (c *Config) TickerTTL() time.Duration {
	return time.Duration(c.Ticker.TTLSeconds) * time.Second
}

// RefreshTimeout devuelve el tope de un refresco de la tabla.
func (c *Config) RefreshTimeout() time.Duration {
	return time.Duration(c.Ticker.RefreshTimeoutSeconds) * time.Second
}

// applyEnvOverrides sobreescribe valores con variables de entorno si están presentes.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		cfg.Bot.Token = v
	}
	if v := os.Getenv("CALLBOT_DSN"); v != "" {
		cfg.Storage.DSN = v
	}
	if v := os.Getenv("CALLBOT_DEBUG"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Bot.Debug = b
		}
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
}

// setDefaults asegura que los valores requeridos tengan valores sensatos.
func setDefaults(cfg *Config) {
	if cfg.Bot.CommandPrefix == "" {
		cfg.Bot.CommandPrefix = "!"
	}
	if cfg.Bot.Workers <= 0 {
		cfg.Bot.Workers = 8
	}
	if cfg.API.TickerBase == "" {
		cfg.API.TickerBase = "https://api.coinmarketcap.com/v1"
	}
	if cfg.API.TimeoutSeconds <= 0 {
		cfg.API.TimeoutSeconds = 5
	}
	if cfg.API.RatePerSec <= 0 {
		cfg.API.RatePerSec = 0.4
	}
	if cfg.Ticker.TTLSeconds == 0 {
		cfg.Ticker.TTLSeconds = 10
	}
	if cfg.Ticker.RefreshTimeoutSeconds <= 0 {
		cfg.Ticker.RefreshTimeoutSeconds = 15
	}
	if cfg.Storage.DSN == "" {
		cfg.Storage.DSN = "callbot.db"
	}
	cfg.Log.Level = strings.ToLower(strings.TrimSpace(cfg.Log.Level))
	cfg.Log.Format = strings.ToLower(strings.TrimSpace(cfg.Log.Format))
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
	if cfg.Log.MaxSizeMB <= 0 {
		cfg.Log.MaxSizeMB = 50
	}
	if cfg.Log.MaxBackups <= 0 {
		cfg.Log.MaxBackups = 3
	}
	if cfg.Log.MaxAgeDays <= 0 {
		cfg.Log.MaxAgeDays = 28
	}
}
