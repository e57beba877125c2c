package config

import (
	"errors"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// Selection store backends.
const (
	StoreMemory   = "memory"
	StoreFile     = "file"
	StoreRedis    = "redis"
	StorePostgres = "postgres"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database  DatabaseConfig
	Redis     RedisConfig
	CORS      CORSConfig
	Log       LogConfig
	Upstream  UpstreamConfig
	Timetable TimetableConfig
	Selection SelectionConfig
	ListCache ListCacheConfig
	Exports   ExportsConfig
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

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// UpstreamConfig points the fetch gateway at the timetable hosts.
type UpstreamConfig struct {
	PrimaryURL    string
	FallbackURL   string
	Timeout       time.Duration
	FacultiesPath string
	GroupsPath    string
	SchedulePath  string
}

// TimetableConfig holds calendar settings of the institution.
type TimetableConfig struct {
	ScheduleDays     int
	Timezone         string
	DefaultFacultyID string
}

// SelectionConfig selects where the last faculty/group survive restarts and
// how the selection engine schedules its fetches.
type SelectionConfig struct {
	Store           string
	FileDir         string
	FetchWorkers    int
	RefreshInterval time.Duration
}

// ListCacheConfig toggles caching of faculty and group lists.
type ListCacheConfig struct {
	Enabled bool
	TTL     time.Duration
}

// ExportsConfig configures schedule exports.
type ExportsConfig struct {
	Enabled         bool
	StorageDir      string
	SignedURLSecret string
	SignedURLTTL    time.Duration
	PDFFontPath     string
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
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	return fromViper(v), nil
}

func fromViper(v *viper.Viper) *Config {
	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

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

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Upstream = UpstreamConfig{
		PrimaryURL:    strings.TrimRight(v.GetString("UPSTREAM_PRIMARY_URL"), "/"),
		FallbackURL:   strings.TrimRight(v.GetString("UPSTREAM_FALLBACK_URL"), "/"),
		Timeout:       parseDuration(v.GetString("UPSTREAM_TIMEOUT"), 20*time.Second),
		FacultiesPath: v.GetString("UPSTREAM_FACULTIES_PATH"),
		GroupsPath:    v.GetString("UPSTREAM_GROUPS_PATH"),
		SchedulePath:  v.GetString("UPSTREAM_SCHEDULE_PATH"),
	}

	days := v.GetInt("SCHEDULE_DAYS")
	if days <= 0 {
		days = 7
	}
	cfg.Timetable = TimetableConfig{
		ScheduleDays:     days,
		Timezone:         v.GetString("INSTITUTION_TIMEZONE"),
		DefaultFacultyID: v.GetString("DEFAULT_FACULTY_ID"),
	}

	cfg.Selection = SelectionConfig{
		Store:           strings.ToLower(strings.TrimSpace(v.GetString("SELECTION_STORE"))),
		FileDir:         v.GetString("SELECTION_FILE_DIR"),
		FetchWorkers:    v.GetInt("FETCH_WORKERS"),
		RefreshInterval: parseDuration(v.GetString("REFRESH_INTERVAL"), 0),
	}

	cfg.ListCache = ListCacheConfig{
		Enabled: v.GetBool("ENABLE_LIST_CACHE"),
		TTL:     parseDuration(v.GetString("LIST_CACHE_TTL"), 6*time.Hour),
	}

	cfg.Exports = ExportsConfig{
		Enabled:         v.GetBool("ENABLE_EXPORTS"),
		StorageDir:      v.GetString("EXPORTS_STORAGE_DIR"),
		SignedURLSecret: v.GetString("EXPORTS_SIGNED_URL_SECRET"),
		SignedURLTTL:    parseDuration(v.GetString("EXPORTS_SIGNED_URL_TTL"), time.Hour),
		PDFFontPath:     v.GetString("EXPORTS_PDF_FONT"),
	}

	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "schedule_sync")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 5)
	v.SetDefault("DB_MAX_IDLE_CONNS", 2)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("UPSTREAM_PRIMARY_URL", "")
	v.SetDefault("UPSTREAM_FALLBACK_URL", "")
	v.SetDefault("UPSTREAM_TIMEOUT", "20s")
	v.SetDefault("UPSTREAM_FACULTIES_PATH", "faculties")
	v.SetDefault("UPSTREAM_GROUPS_PATH", "groups")
	v.SetDefault("UPSTREAM_SCHEDULE_PATH", "schedule")

	v.SetDefault("SCHEDULE_DAYS", 7)
	v.SetDefault("INSTITUTION_TIMEZONE", "Europe/Moscow")
	v.SetDefault("DEFAULT_FACULTY_ID", "")

	v.SetDefault("SELECTION_STORE", StoreMemory)
	v.SetDefault("SELECTION_FILE_DIR", "./data")
	v.SetDefault("FETCH_WORKERS", 4)
	v.SetDefault("REFRESH_INTERVAL", "0")

	v.SetDefault("ENABLE_LIST_CACHE", false)
	v.SetDefault("LIST_CACHE_TTL", "6h")

	v.SetDefault("ENABLE_EXPORTS", false)
	v.SetDefault("EXPORTS_STORAGE_DIR", "./exports")
	v.SetDefault("EXPORTS_SIGNED_URL_SECRET", "dev_exports_secret")
	v.SetDefault("EXPORTS_SIGNED_URL_TTL", "1h")
	v.SetDefault("EXPORTS_PDF_FONT", "")
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
