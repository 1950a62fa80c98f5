// Package config reúne la configuración del servidor. Los valores salen de las
// variables de entorno (con .env opcional) y tienen valores por defecto
// pensados para desarrollo local.
package config

import (
	"strings"
	"time"

	"github.com/backsoul/trivia-duel/pkg/errs"
	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

const (
	DriverRedis    = "redis"
	DriverPostgres = "postgres"
)

// Config configuración completa del servidor
type Config struct {
	HTTPAddr      string
	StoreDriver   string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	DatabaseURL   string
	QuestionsFile string

	WinThreshold  int
	LobbyTTL      time.Duration
	SweepInterval time.Duration
	NotifyTimeout time.Duration

	OneSignalAppID  string
	OneSignalAPIKey string
	OneSignalURL    string

	LogLevel  string
	LogFormat string
}

// Default devuelve la configuración por defecto
func Default() Config {
	return Config{
		HTTPAddr:      ":8080",
		StoreDriver:   DriverRedis,
		RedisAddr:     "localhost:6379",
		RedisDB:       0,
		QuestionsFile: "answers.json",
		WinThreshold:  3,
		LobbyTTL:      30 * time.Minute,
		SweepInterval: time.Minute,
		NotifyTimeout: 5 * time.Second,
		LogLevel:      "info",
		LogFormat:     "text",
	}
}

// SetDefaults registra los valores por defecto en v
func SetDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("http_addr", d.HTTPAddr)
	v.SetDefault("store_driver", d.StoreDriver)
	v.SetDefault("redis_addr", d.RedisAddr)
	v.SetDefault("redis_password", d.RedisPassword)
	v.SetDefault("redis_db", d.RedisDB)
	v.SetDefault("database_url", d.DatabaseURL)
	v.SetDefault("questions_file", d.QuestionsFile)
	v.SetDefault("win_threshold", d.WinThreshold)
	v.SetDefault("lobby_ttl", d.LobbyTTL)
	v.SetDefault("sweep_interval", d.SweepInterval)
	v.SetDefault("notify_timeout", d.NotifyTimeout)
	v.SetDefault("onesignal_app_id", "")
	v.SetDefault("onesignal_api_key", "")
	v.SetDefault("onesignal_url", "")
	v.SetDefault("log_level", d.LogLevel)
	v.SetDefault("log_format", d.LogFormat)
}

// Load lee .env si existe y construye la configuración desde el entorno
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Debug("⚠️  No se encontró .env, usando variables de entorno")
	}

	v := viper.New()
	SetDefaults(v)
	v.AutomaticEnv()
	return FromViper(v)
}

// FromViper lee y valida la configuración de una instancia de viper
func FromViper(v *viper.Viper) (Config, error) {
	cfg := Config{
		HTTPAddr:        v.GetString("http_addr"),
		StoreDriver:     strings.ToLower(strings.TrimSpace(v.GetString("store_driver"))),
		RedisAddr:       v.GetString("redis_addr"),
		RedisPassword:   v.GetString("redis_password"),
		RedisDB:         v.GetInt("redis_db"),
		DatabaseURL:     v.GetString("database_url"),
		QuestionsFile:   v.GetString("questions_file"),
		WinThreshold:    v.GetInt("win_threshold"),
		LobbyTTL:        v.GetDuration("lobby_ttl"),
		SweepInterval:   v.GetDuration("sweep_interval"),
		NotifyTimeout:   v.GetDuration("notify_timeout"),
		OneSignalAppID:  v.GetString("onesignal_app_id"),
		OneSignalAPIKey: v.GetString("onesignal_api_key"),
		OneSignalURL:    v.GetString("onesignal_url"),
		LogLevel:        strings.ToLower(v.GetString("log_level")),
		LogFormat:       strings.ToLower(v.GetString("log_format")),
	}
	return cfg, cfg.Validate()
}

// Validate comprueba que los valores tengan sentido
func (c Config) Validate() error {
	switch c.StoreDriver {
	case DriverRedis:
		if c.RedisAddr == "" {
			return errs.Validation("REDIS_ADDR es requerido con STORE_DRIVER=redis")
		}
	case DriverPostgres:
		if c.DatabaseURL == "" {
			return errs.Validation("DATABASE_URL es requerido con STORE_DRIVER=postgres")
		}
	default:
		return errs.Validation("STORE_DRIVER inválido: %q", c.StoreDriver)
	}

	if c.RedisDB < 0 {
		return errs.Validation("REDIS_DB no puede ser negativo")
	}
	if c.WinThreshold < 1 {
		return errs.Validation("WIN_THRESHOLD debe ser al menos 1")
	}
	if c.LobbyTTL <= 0 {
		return errs.Validation("LOBBY_TTL debe ser una duración positiva")
	}
	if c.SweepInterval <= 0 {
		return errs.Validation("SWEEP_INTERVAL debe ser una duración positiva")
	}
	if c.NotifyTimeout <= 0 {
		return errs.Validation("NOTIFY_TIMEOUT debe ser una duración positiva")
	}
	if c.OneSignalAppID != "" && c.OneSignalAPIKey == "" {
		return errs.Validation("ONESIGNAL_API_KEY es requerido cuando se define ONESIGNAL_APP_ID")
	}
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		return errs.Validation("LOG_LEVEL inválido: %q", c.LogLevel)
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		return errs.Validation("LOG_FORMAT debe ser text o json")
	}
	return nil
}

// PushEnabled indica si hay credenciales de OneSignal
func (c Config) PushEnabled() bool {
	return c.OneSignalAppID != ""
}

// ConfigureLogger aplica nivel y formato a logrus
func (c Config) ConfigureLogger() {
	level, err := log.ParseLevel(c.LogLevel)
	if err != nil {
		level = log.InfoLevel
	}
	log.SetLevel(level)

	if c.LogFormat == "json" {
		log.SetFormatter(&log.JSONFormatter{})
		return
	}
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
}
