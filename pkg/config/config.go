package config

import (
	"errors"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	Env string

	Database  DatabaseConfig
	Log       LogConfig
	Migration MigrationConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

type LogConfig struct {
	Level  string
	Format string
}

// MigrationConfig tunes batch migration runs.
type MigrationConfig struct {
	BatchSize     int
	DryRun        bool
	ReportFormat  string
	ReviewQueue   bool
	RunTimeout    time.Duration
	LegacyIDField string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
	}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Migration = MigrationConfig{
		BatchSize:     v.GetInt("MIGRATION_BATCH_SIZE"),
		DryRun:        v.GetBool("MIGRATION_DRY_RUN"),
		ReportFormat:  v.GetString("MIGRATION_REPORT_FORMAT"),
		ReviewQueue:   v.GetBool("MIGRATION_REVIEW_QUEUE"),
		RunTimeout:    parseDuration(v.GetString("MIGRATION_RUN_TIMEOUT"), 2*time.Hour),
		LegacyIDField: v.GetString("MIGRATION_LEGACY_ID_FIELD"),
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "naga_sis")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("MIGRATION_BATCH_SIZE", 500)
	v.SetDefault("MIGRATION_DRY_RUN", false)
	v.SetDefault("MIGRATION_REPORT_FORMAT", "text")
	v.SetDefault("MIGRATION_REVIEW_QUEUE", true)
	v.SetDefault("MIGRATION_RUN_TIMEOUT", "2h")
	v.SetDefault("MIGRATION_LEGACY_ID_FIELD", "ipk")
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}
