package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// Secrets shipped as defaults. They keep a fresh checkout runnable and are refused in production.
const (
	devJWTSecret     = "dev_secret"
	devPhotosSecret  = "dev_photos_secret"
	devImportsSecret = "dev_imports_secret"
)

type Config struct {
	Env             string
	Port            int
	APIPrefix       string
	ShutdownTimeout time.Duration

	Database   DatabaseConfig
	Redis      RedisConfig
	JWT        JWTConfig
	CORS       CORSConfig
	Log        LogConfig
	Statistics StatisticsConfig
	Photos     PhotosConfig
	Imports    ImportsConfig
	Jobs       JobsConfig
}

// DatabaseConfig accepts either DATABASE_URL or the discrete DB_* settings.
type DatabaseConfig struct {
	URL             string
	Host            string
	Port            int
	User            string
	Password        string
	Name            string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// DSN renders the lib/pq connection string.
func (c DatabaseConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		quoteDSN(c.Host), c.Port, quoteDSN(c.User), quoteDSN(c.Password), quoteDSN(c.Name), quoteDSN(c.SSLMode))
}

// RedisConfig backs the statistics cache. URL wins over the discrete fields.
type RedisConfig struct {
	Enabled   bool
	URL       string
	Host      string
	Port      int
	Password  string
	DB        int
	KeyPrefix string
}

type JWTConfig struct {
	Secret            string
	Issuer            string
	Expiration        time.Duration
	RefreshExpiration time.Duration
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// StatisticsConfig governs the photo report statistics cache.
type StatisticsConfig struct {
	CacheEnabled bool
	CacheTTL     time.Duration
}

// PhotosConfig controls photo storage, validation and quality thresholds.
type PhotosConfig struct {
	StorageDir       string
	SignedURLSecret  string
	SignedURLTTL     time.Duration
	MaxFileSizeBytes int64
	MaxPerAnswer     int
	MaxPerReport     int
	AllowedMIMEs     []string
	MinWidth         int
	MinHeight        int
}

// ImportsConfig controls the two-phase client import.
type ImportsConfig struct {
	StorageDir       string
	TokenSecret      string
	PreviewTTL       time.Duration
	MaxFileSizeBytes int64
}

// JobsConfig sizes the background statistics worker.
type JobsConfig struct {
	Workers    int
	MaxRetries int
	RetryDelay time.Duration
}

// Load reads .env (when present) and the process environment, then validates the result.
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
		if !errors.As(err, &notFound) && !isMissingFile(err) {
			return nil, fmt.Errorf("read .env: %w", err)
		}
	}

	cfg := fromViper(v)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) IsProduction() bool {
	return c.Env == EnvProduction
}

// Validate rejects settings the server cannot run with. Production additionally refuses the
// development secrets.
func (c *Config) Validate() error {
	var problems []string
	if c.Port <= 0 || c.Port > 65535 {
		problems = append(problems, fmt.Sprintf("PORT %d is out of range", c.Port))
	}
	if !strings.HasPrefix(c.APIPrefix, "/") {
		problems = append(problems, "API_PREFIX must start with /")
	}
	if c.Photos.MinWidth < 0 || c.Photos.MinHeight < 0 {
		problems = append(problems, "photo quality thresholds must not be negative")
	}
	if c.IsProduction() {
		secrets := map[string][2]string{
			"JWT_SECRET":               {c.JWT.Secret, devJWTSecret},
			"PHOTOS_SIGNED_URL_SECRET": {c.Photos.SignedURLSecret, devPhotosSecret},
			"IMPORTS_TOKEN_SECRET":     {c.Imports.TokenSecret, devImportsSecret},
		}
		for _, key := range []string{"JWT_SECRET", "PHOTOS_SIGNED_URL_SECRET", "IMPORTS_TOKEN_SECRET"} {
			value, dev := secrets[key][0], secrets[key][1]
			if value == dev || len(value) < 32 {
				problems = append(problems, key+" must be set to at least 32 characters in production")
			}
		}
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

func fromViper(v *viper.Viper) *Config {
	cfg := &Config{
		Env:             strings.ToLower(v.GetString("ENV")),
		Port:            v.GetInt("PORT"),
		APIPrefix:       strings.TrimRight(v.GetString("API_PREFIX"), "/"),
		ShutdownTimeout: durationOr(v, "SHUTDOWN_TIMEOUT", 15*time.Second),
	}

	cfg.Database = DatabaseConfig{
		URL:             v.GetString("DATABASE_URL"),
		Host:            v.GetString("DB_HOST"),
		Port:            v.GetInt("DB_PORT"),
		User:            v.GetString("DB_USER"),
		Password:        v.GetString("DB_PASSWORD"),
		Name:            v.GetString("DB_NAME"),
		SSLMode:         v.GetString("DB_SSL_MODE"),
		MaxOpenConns:    positiveInt(v, "DB_MAX_OPEN_CONNS", 10),
		MaxIdleConns:    positiveInt(v, "DB_MAX_IDLE_CONNS", 5),
		ConnMaxLifetime: durationOr(v, "DB_CONN_MAX_LIFETIME", time.Hour),
	}

	cfg.Redis = RedisConfig{
		Enabled:   v.GetBool("ENABLE_REDIS"),
		URL:       v.GetString("REDIS_URL"),
		Host:      v.GetString("REDIS_HOST"),
		Port:      v.GetInt("REDIS_PORT"),
		Password:  v.GetString("REDIS_PASSWORD"),
		DB:        v.GetInt("REDIS_DB"),
		KeyPrefix: v.GetString("REDIS_KEY_PREFIX"),
	}

	cfg.JWT = JWTConfig{
		Secret:            v.GetString("JWT_SECRET"),
		Issuer:            v.GetString("JWT_ISSUER"),
		Expiration:        durationOr(v, "JWT_EXPIRATION", 24*time.Hour),
		RefreshExpiration: durationOr(v, "REFRESH_TOKEN_EXPIRATION", 7*24*time.Hour),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}
	cfg.Log = LogConfig{Level: v.GetString("LOG_LEVEL"), Format: v.GetString("LOG_FORMAT")}

	cfg.Statistics = StatisticsConfig{
		CacheEnabled: v.GetBool("STATISTICS_CACHE_ENABLED"),
		CacheTTL:     durationOr(v, "STATISTICS_CACHE_TTL", 5*time.Minute),
	}

	cfg.Photos = PhotosConfig{
		StorageDir:       v.GetString("PHOTOS_STORAGE_DIR"),
		SignedURLSecret:  v.GetString("PHOTOS_SIGNED_URL_SECRET"),
		SignedURLTTL:     durationOr(v, "PHOTOS_SIGNED_URL_TTL", 30*time.Minute),
		MaxFileSizeBytes: positiveInt64(v, "PHOTOS_MAX_FILE_SIZE", 20<<20),
		MaxPerAnswer:     positiveInt(v, "PHOTOS_MAX_PER_ANSWER", 10),
		MaxPerReport:     positiveInt(v, "PHOTOS_MAX_PER_REPORT", 30),
		AllowedMIMEs:     splitAndTrim(v.GetString("PHOTOS_ALLOWED_MIME_TYPES")),
		MinWidth:         v.GetInt("PHOTOS_MIN_WIDTH"),
		MinHeight:        v.GetInt("PHOTOS_MIN_HEIGHT"),
	}

	cfg.Imports = ImportsConfig{
		StorageDir:       v.GetString("IMPORTS_STORAGE_DIR"),
		TokenSecret:      v.GetString("IMPORTS_TOKEN_SECRET"),
		PreviewTTL:       durationOr(v, "IMPORTS_PREVIEW_TTL", time.Hour),
		MaxFileSizeBytes: positiveInt64(v, "IMPORTS_MAX_FILE_SIZE", 10<<20),
	}

	cfg.Jobs = JobsConfig{
		Workers:    positiveInt(v, "JOBS_WORKERS", 1),
		MaxRetries: v.GetInt("JOBS_MAX_RETRIES"),
		RetryDelay: durationOr(v, "JOBS_RETRY_DELAY", 5*time.Second),
	}

	return cfg
}

func setDefaults(v *viper.Viper) {
	defaults := map[string]interface{}{
		"ENV":              EnvDevelopment,
		"PORT":             8080,
		"API_PREFIX":       "/api/v1",
		"SHUTDOWN_TIMEOUT": "15s",

		"DB_HOST":              "localhost",
		"DB_PORT":              5432,
		"DB_USER":              "postgres",
		"DB_PASSWORD":          "postgres",
		"DB_NAME":              "fieldops",
		"DB_SSL_MODE":          "disable",
		"DB_MAX_OPEN_CONNS":    10,
		"DB_MAX_IDLE_CONNS":    5,
		"DB_CONN_MAX_LIFETIME": "1h",

		"ENABLE_REDIS":     true,
		"REDIS_HOST":       "localhost",
		"REDIS_PORT":       6379,
		"REDIS_DB":         0,
		"REDIS_KEY_PREFIX": "fieldops:",

		"JWT_SECRET":               devJWTSecret,
		"JWT_ISSUER":               "fieldops-api",
		"JWT_EXPIRATION":           "24h",
		"REFRESH_TOKEN_EXPIRATION": "168h",

		"LOG_LEVEL":  "info",
		"LOG_FORMAT": "json",

		"STATISTICS_CACHE_ENABLED": true,
		"STATISTICS_CACHE_TTL":     "5m",

		"PHOTOS_STORAGE_DIR":        "./media",
		"PHOTOS_SIGNED_URL_SECRET":  devPhotosSecret,
		"PHOTOS_SIGNED_URL_TTL":     "30m",
		"PHOTOS_MAX_FILE_SIZE":      20 << 20,
		"PHOTOS_MAX_PER_ANSWER":     10,
		"PHOTOS_MAX_PER_REPORT":     30,
		"PHOTOS_ALLOWED_MIME_TYPES": "image/jpeg,image/png",
		"PHOTOS_MIN_WIDTH":          1920,
		"PHOTOS_MIN_HEIGHT":         1080,

		"IMPORTS_STORAGE_DIR":   "./imports",
		"IMPORTS_TOKEN_SECRET":  devImportsSecret,
		"IMPORTS_PREVIEW_TTL":   "1h",
		"IMPORTS_MAX_FILE_SIZE": 10 << 20,

		"JOBS_WORKERS":     1,
		"JOBS_MAX_RETRIES": 3,
		"JOBS_RETRY_DELAY": "5s",
	}
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
}

func isMissingFile(err error) bool {
	return err != nil && strings.Contains(err.Error(), "no such file or directory")
}

// durationOr parses key as a Go duration. Unparsable or non-positive values fall back.
func durationOr(v *viper.Viper, key string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(strings.TrimSpace(v.GetString(key)))
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

func positiveInt(v *viper.Viper, key string, fallback int) int {
	if n := v.GetInt(key); n > 0 {
		return n
	}
	return fallback
}

func positiveInt64(v *viper.Viper, key string, fallback int64) int64 {
	if n := v.GetInt64(key); n > 0 {
		return n
	}
	return fallback
}

func splitAndTrim(raw string) []string {
	var result []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

// quoteDSN escapes a value for the key=value connection string format.
func quoteDSN(value string) string {
	if value != "" && !strings.ContainsAny(value, ` '\`) {
		return value
	}
	return "'" + strings.NewReplacer(`\`, `\\`, `'`, `\'`).Replace(value) + "'"
}
