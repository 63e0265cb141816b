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

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database  DatabaseConfig
	Redis     RedisConfig
	JWT       JWTConfig
	CORS      CORSConfig
	Log       LogConfig
	Ledger    LedgerConfig
	Reconcile ReconcileConfig
	Export    ExportConfig
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
	Enabled  bool
	URL      string
	Host     string
	Port     int
	Password string
	DB       int
	PoolSize int
	Timeout  time.Duration
}

type JWTConfig struct {
	Secret   string
	Issuer   string
	Audience []string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// LedgerConfig points the sync subsystem at the spreadsheet ledger.
type LedgerConfig struct {
	Enabled         bool
	BaseURL         string
	SpreadsheetID   string
	Tab             string
	CredentialsFile string
	StaticToken     string
	Timeout         time.Duration
	Retries         int
	IncludeStatus   bool
	KeyPrefix       string
	Timezone        string
	LockTTL         time.Duration
	LockWait        time.Duration
	TabCacheTTL     time.Duration
}

// ReconcileConfig tunes the catch-up job.
type ReconcileConfig struct {
	BatchLimit int
	Interval   time.Duration
	PageSize   int
}

// ExportConfig controls offline ledger snapshots.
type ExportConfig struct {
	PDFFontPath string
	Dir         string
	LinkTTL     time.Duration
	Retention   time.Duration
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
		Enabled:  v.GetBool("ENABLE_REDIS"),
		URL:      v.GetString("REDIS_URL"),
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
		PoolSize: v.GetInt("REDIS_POOL_SIZE"),
		Timeout:  parseDuration(v.GetString("REDIS_TIMEOUT"), time.Second),
	}

	cfg.JWT = JWTConfig{
		Secret:   v.GetString("JWT_SECRET"),
		Issuer:   v.GetString("JWT_ISSUER"),
		Audience: splitAndTrim(v.GetString("JWT_AUDIENCE")),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Ledger = LedgerConfig{
		Enabled:         v.GetBool("LEDGER_ENABLED"),
		BaseURL:         v.GetString("SHEETS_BASE_URL"),
		SpreadsheetID:   v.GetString("SHEETS_SPREADSHEET_ID"),
		Tab:             v.GetString("SHEETS_TAB"),
		CredentialsFile: v.GetString("SHEETS_CREDENTIALS_FILE"),
		StaticToken:     v.GetString("SHEETS_STATIC_TOKEN"),
		Timeout:         parseDuration(v.GetString("LEDGER_TIMEOUT"), 10*time.Second),
		Retries:         v.GetInt("LEDGER_RETRIES"),
		IncludeStatus:   v.GetBool("LEDGER_INCLUDE_STATUS"),
		KeyPrefix:       v.GetString("LEDGER_KEY_PREFIX"),
		Timezone:        v.GetString("LEDGER_TIMEZONE"),
		LockTTL:         parseDuration(v.GetString("LEDGER_LOCK_TTL"), 30*time.Second),
		LockWait:        parseDuration(v.GetString("LEDGER_LOCK_WAIT"), 5*time.Second),
		TabCacheTTL:     parseDuration(v.GetString("LEDGER_TAB_CACHE_TTL"), time.Hour),
	}

	cfg.Reconcile = ReconcileConfig{
		BatchLimit: v.GetInt("RECONCILE_BATCH_LIMIT"),
		Interval:   parseDuration(v.GetString("RECONCILE_INTERVAL"), 0),
		PageSize:   v.GetInt("RECONCILE_PAGE_SIZE"),
	}

	cfg.Export = ExportConfig{
		PDFFontPath: v.GetString("EXPORT_PDF_FONT_PATH"),
		Dir:         v.GetString("EXPORT_DIR"),
		LinkTTL:     parseDuration(v.GetString("EXPORT_LINK_TTL"), time.Hour),
		Retention:   parseDuration(v.GetString("EXPORT_RETENTION"), 24*time.Hour),
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "edu_portal")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("ENABLE_REDIS", false)
	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("REDIS_URL", "")
	v.SetDefault("REDIS_POOL_SIZE", 10)
	v.SetDefault("REDIS_TIMEOUT", "1s")

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_ISSUER", "")
	v.SetDefault("JWT_AUDIENCE", "")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("LEDGER_ENABLED", true)
	v.SetDefault("SHEETS_BASE_URL", "https://sheets.googleapis.com")
	v.SetDefault("SHEETS_SPREADSHEET_ID", "")
	v.SetDefault("SHEETS_TAB", "Заявки")
	v.SetDefault("SHEETS_CREDENTIALS_FILE", "")
	v.SetDefault("SHEETS_STATIC_TOKEN", "")
	v.SetDefault("LEDGER_TIMEOUT", "10s")
	v.SetDefault("LEDGER_RETRIES", 2)
	v.SetDefault("LEDGER_INCLUDE_STATUS", false)
	v.SetDefault("LEDGER_KEY_PREFIX", "PR-")
	v.SetDefault("LEDGER_TIMEZONE", "Europe/Moscow")
	v.SetDefault("LEDGER_LOCK_TTL", "30s")
	v.SetDefault("LEDGER_LOCK_WAIT", "5s")
	v.SetDefault("LEDGER_TAB_CACHE_TTL", "1h")

	v.SetDefault("RECONCILE_BATCH_LIMIT", 100)
	v.SetDefault("RECONCILE_INTERVAL", "0")
	v.SetDefault("RECONCILE_PAGE_SIZE", 200)

	v.SetDefault("EXPORT_PDF_FONT_PATH", "")
	v.SetDefault("EXPORT_DIR", "./exports")
	v.SetDefault("EXPORT_LINK_TTL", "1h")
	v.SetDefault("EXPORT_RETENTION", "24h")
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
