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

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database DatabaseConfig
	Redis    RedisConfig
	JWT      JWTConfig
	CORS     CORSConfig
	Log      LogConfig
	School   SchoolConfig
	Rankings RankingsConfig
	Imports  ImportsConfig
	Exports  ExportsConfig
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

type JWTConfig struct {
	Secret     string
	Expiration time.Duration
	Issuer     string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// SchoolConfig carries institution-wide defaults applied when records omit them.
type SchoolConfig struct {
	CurrentYear        string
	DefaultCapacity    int
	PlaceholderTeacher string
	DefaultNationality string
}

// RankingsConfig tunes caching of class ranking computations.
type RankingsConfig struct {
	CacheEnabled bool
	CacheTTL     time.Duration
}

// ImportsConfig bounds the preview sample returned before an import is committed.
type ImportsConfig struct {
	PreviewSampleSize int
}

// ExportsConfig controls the on-disk archive of generated documents. An
// empty ArchiveDir disables archiving.
type ExportsConfig struct {
	ArchiveDir string
	ArchiveTTL time.Duration
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

	cfg.JWT = JWTConfig{
		Secret:     v.GetString("JWT_SECRET"),
		Expiration: parseDuration(v.GetString("JWT_EXPIRATION"), 24*time.Hour),
		Issuer:     v.GetString("JWT_ISSUER"),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.School = SchoolConfig{
		CurrentYear:        v.GetString("SCHOOL_YEAR"),
		DefaultCapacity:    v.GetInt("SCHOOL_DEFAULT_CAPACITY"),
		PlaceholderTeacher: v.GetString("SCHOOL_PLACEHOLDER_TEACHER"),
		DefaultNationality: v.GetString("SCHOOL_DEFAULT_NATIONALITY"),
	}

	cfg.Rankings = RankingsConfig{
		CacheEnabled: v.GetBool("RANKINGS_CACHE_ENABLED"),
		CacheTTL:     parseDuration(v.GetString("RANKINGS_CACHE_TTL"), 10*time.Minute),
	}

	cfg.Imports = ImportsConfig{
		PreviewSampleSize: v.GetInt("IMPORTS_PREVIEW_SAMPLE_SIZE"),
	}
	if cfg.Imports.PreviewSampleSize <= 0 {
		cfg.Imports.PreviewSampleSize = 5
	}

	cfg.Exports = ExportsConfig{
		ArchiveDir: v.GetString("EXPORTS_ARCHIVE_DIR"),
		ArchiveTTL: parseDuration(v.GetString("EXPORTS_ARCHIVE_TTL"), 30*24*time.Hour),
	}

	if cfg.School.CurrentYear == "" {
		cfg.School.CurrentYear = defaultSchoolYear(time.Now())
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
	v.SetDefault("DB_NAME", "gesco")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_EXPIRATION", "24h")
	v.SetDefault("JWT_ISSUER", "gesco-api")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("SCHOOL_YEAR", "")
	v.SetDefault("SCHOOL_DEFAULT_CAPACITY", 40)
	v.SetDefault("SCHOOL_PLACEHOLDER_TEACHER", "À définir")
	v.SetDefault("SCHOOL_DEFAULT_NATIONALITY", "Sénégalaise")

	v.SetDefault("RANKINGS_CACHE_ENABLED", false)
	v.SetDefault("RANKINGS_CACHE_TTL", "10m")

	v.SetDefault("IMPORTS_PREVIEW_SAMPLE_SIZE", 5)

	v.SetDefault("EXPORTS_ARCHIVE_DIR", "")
	v.SetDefault("EXPORTS_ARCHIVE_TTL", "720h")
}

// defaultSchoolYear formats the school year spanning the civil year the
// term starts in, e.g. "2024-2025".
func defaultSchoolYear(now time.Time) string {
	year := now.Year()
	// The Senegalese school year starts in October.
	if now.Month() < time.October {
		year--
	}
	return fmt.Sprintf("%d-%d", year, year+1)
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
