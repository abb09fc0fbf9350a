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

// Persistence driver names.
const (
	DriverFile     = "file"
	DriverPostgres = "postgres"
	DriverRedis    = "redis"
)

type Config struct {
	Env string

	Log         LogConfig
	Grid        GridConfig
	Undo        UndoConfig
	Generator   GeneratorConfig
	Optimizer   OptimizerConfig
	Persistence PersistenceConfig
	Database    DatabaseConfig
	Redis       RedisConfig
}

type LogConfig struct {
	Level  string
	Format string
}

// GridConfig shapes the weekly grid the core operates on.
type GridConfig struct {
	Days      []string
	Slots     []string // "key=HH:MM-HH:MM" entries, ordered
	BreakSlot string
}

// UndoConfig bounds the snapshot history.
type UndoConfig struct {
	Depth int
}

// GeneratorConfig carries default generator toggles.
type GeneratorConfig struct {
	RespectWishes  bool
	AvoidConflicts bool
}

// OptimizerConfig bounds the local search.
type OptimizerConfig struct {
	MaxSteps  int
	Budget    time.Duration
	Tolerance float64
}

// PersistenceConfig selects the state collaborator.
type PersistenceConfig struct {
	Driver string
	Dir    string
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

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
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

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Grid = GridConfig{
		Days:      splitAndTrim(v.GetString("GRID_DAYS")),
		Slots:     splitAndTrim(v.GetString("GRID_SLOTS")),
		BreakSlot: v.GetString("GRID_BREAK_SLOT"),
	}

	cfg.Undo = UndoConfig{
		Depth: v.GetInt("UNDO_DEPTH"),
	}

	cfg.Generator = GeneratorConfig{
		RespectWishes:  v.GetBool("GENERATOR_RESPECT_WISHES"),
		AvoidConflicts: v.GetBool("GENERATOR_AVOID_CONFLICTS"),
	}

	cfg.Optimizer = OptimizerConfig{
		MaxSteps:  v.GetInt("OPTIMIZER_MAX_STEPS"),
		Budget:    parseDuration(v.GetString("OPTIMIZER_BUDGET"), 10*time.Second),
		Tolerance: v.GetFloat64("OPTIMIZER_TOLERANCE"),
	}

	cfg.Persistence = PersistenceConfig{
		Driver: v.GetString("PERSISTENCE_DRIVER"),
		Dir:    v.GetString("PERSISTENCE_DIR"),
	}

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

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)

	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("GRID_DAYS", "MONDAY,TUESDAY,WEDNESDAY,THURSDAY,FRIDAY,SATURDAY")
	v.SetDefault("GRID_SLOTS", "08:00=08:00-10:00,10:00=10:00-12:00,12:00=12:00-14:00,14:00=14:00-16:00,16:00=16:00-18:00")
	v.SetDefault("GRID_BREAK_SLOT", "12:00")

	v.SetDefault("UNDO_DEPTH", 50)

	v.SetDefault("GENERATOR_RESPECT_WISHES", true)
	v.SetDefault("GENERATOR_AVOID_CONFLICTS", true)

	v.SetDefault("OPTIMIZER_MAX_STEPS", 500)
	v.SetDefault("OPTIMIZER_BUDGET", "10s")
	v.SetDefault("OPTIMIZER_TOLERANCE", 0.5)

	v.SetDefault("PERSISTENCE_DRIVER", DriverFile)
	v.SetDefault("PERSISTENCE_DIR", "./data")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "timetable_core")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
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

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
