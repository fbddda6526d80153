// internal/config/config.go
package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	App      AppConfig
	Cache    CacheConfig
	Health   HealthConfig
	Storage  StorageConfig
}

type ServerConfig struct {
	Port           string
	Mode           string
	ReadTimeout    int
	WriteTimeout   int
	AllowedOrigins []string
}

type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

type AppConfig struct {
	ReportDir string
	LogLevel  string
}

type CacheConfig struct {
	Enabled          bool
	RedisURL         string
	RedisHost        string
	RedisPort        string
	RedisPassword    string
	RedisDB          int
	HealthTTLSeconds int
}

// HealthConfig controls how order history is turned into a verdict.
type HealthConfig struct {
	// HistoryLimit is how many of the latest orders form the revenue series.
	HistoryLimit int
	// RevenueMonths is the trailing window averaged into monthly revenue.
	RevenueMonths int
	// TierSensitiveBands threads tier alpha/k-sigma into the band fields.
	TierSensitiveBands bool
	// SnapshotMaxAge bounds how old a persisted snapshot may be when served.
	SnapshotMaxAge time.Duration
	WorkerCount    int
	BatchSize      int
	// RecomputeRate caps customers refreshed per second; 0 is unlimited.
	RecomputeRate float64
	// RecomputeCron schedules in-process recomputes of RecomputeTenants.
	RecomputeCron    string
	RecomputeTenants []int64
}

// StorageConfig describes the S3-compatible bucket for recompute reports.
type StorageConfig struct {
	Enabled   bool
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	UseSSL    bool
}

var (
	once     sync.Once
	instance *Config
)

func Load() *Config {
	once.Do(func() {
		// Load .env file if it exists
		_ = godotenv.Load()

		setDefaults()

		// Read from environment variables
		viper.AutomaticEnv()

		ensureDir(viper.GetString("APP_REPORT_DIR"))

		instance = fromViper()
	})

	return instance
}

func setDefaults() {
	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("SERVER_MODE", "debug")
	viper.SetDefault("SERVER_READ_TIMEOUT", 15)
	viper.SetDefault("SERVER_WRITE_TIMEOUT", 15)
	viper.SetDefault("SERVER_ALLOWED_ORIGINS", []string{"*"})
	viper.SetDefault("DB_HOST", "localhost")
	viper.SetDefault("DB_PORT", "5432")
	viper.SetDefault("DB_USER", "postgres")
	viper.SetDefault("DB_PASSWORD", "postgres")
	viper.SetDefault("DB_NAME", "distributor")
	viper.SetDefault("DB_SSLMODE", "disable")
	viper.SetDefault("APP_REPORT_DIR", "./data/reports")
	viper.SetDefault("LOG_LEVEL", "info")
	viper.SetDefault("CACHE_ENABLED", false)
	viper.SetDefault("REDIS_URL", "")
	viper.SetDefault("REDIS_HOST", "127.0.0.1")
	viper.SetDefault("REDIS_PORT", "6379")
	viper.SetDefault("REDIS_PASSWORD", "")
	viper.SetDefault("REDIS_DB", 0)
	viper.SetDefault("CACHE_HEALTH_TTL_SECONDS", 60)
	viper.SetDefault("HEALTH_HISTORY_LIMIT", 24)
	viper.SetDefault("HEALTH_REVENUE_MONTHS", 3)
	viper.SetDefault("HEALTH_TIER_SENSITIVE_BANDS", false)
	viper.SetDefault("HEALTH_SNAPSHOT_MAX_AGE", "24h")
	viper.SetDefault("HEALTH_WORKER_COUNT", 4)
	viper.SetDefault("HEALTH_BATCH_SIZE", 200)
	viper.SetDefault("HEALTH_RECOMPUTE_RATE", 0)
	viper.SetDefault("HEALTH_RECOMPUTE_CRON", "")
	viper.SetDefault("HEALTH_RECOMPUTE_TENANTS", "")
	viper.SetDefault("STORAGE_ENABLED", false)
	viper.SetDefault("STORAGE_REGION", "us-east-1")
	viper.SetDefault("STORAGE_USE_SSL", true)
}

func fromViper() *Config {
	return &Config{
		Server: ServerConfig{
			Port:           viper.GetString("SERVER_PORT"),
			Mode:           viper.GetString("SERVER_MODE"),
			ReadTimeout:    viper.GetInt("SERVER_READ_TIMEOUT"),
			WriteTimeout:   viper.GetInt("SERVER_WRITE_TIMEOUT"),
			AllowedOrigins: viper.GetStringSlice("SERVER_ALLOWED_ORIGINS"),
		},
		Database: DatabaseConfig{
			Host:     viper.GetString("DB_HOST"),
			Port:     viper.GetString("DB_PORT"),
			User:     viper.GetString("DB_USER"),
			Password: viper.GetString("DB_PASSWORD"),
			DBName:   viper.GetString("DB_NAME"),
			SSLMode:  viper.GetString("DB_SSLMODE"),
		},
		App: AppConfig{
			ReportDir: viper.GetString("APP_REPORT_DIR"),
			LogLevel:  viper.GetString("LOG_LEVEL"),
		},
		Cache: CacheConfig{
			Enabled:          viper.GetBool("CACHE_ENABLED"),
			RedisURL:         viper.GetString("REDIS_URL"),
			RedisHost:        viper.GetString("REDIS_HOST"),
			RedisPort:        viper.GetString("REDIS_PORT"),
			RedisPassword:    viper.GetString("REDIS_PASSWORD"),
			RedisDB:          viper.GetInt("REDIS_DB"),
			HealthTTLSeconds: viper.GetInt("CACHE_HEALTH_TTL_SECONDS"),
		},
		Health: HealthConfig{
			HistoryLimit:       viper.GetInt("HEALTH_HISTORY_LIMIT"),
			RevenueMonths:      viper.GetInt("HEALTH_REVENUE_MONTHS"),
			TierSensitiveBands: viper.GetBool("HEALTH_TIER_SENSITIVE_BANDS"),
			SnapshotMaxAge:     viper.GetDuration("HEALTH_SNAPSHOT_MAX_AGE"),
			WorkerCount:        viper.GetInt("HEALTH_WORKER_COUNT"),
			BatchSize:          viper.GetInt("HEALTH_BATCH_SIZE"),
			RecomputeRate:      viper.GetFloat64("HEALTH_RECOMPUTE_RATE"),
			RecomputeCron:      strings.TrimSpace(viper.GetString("HEALTH_RECOMPUTE_CRON")),
			RecomputeTenants:   parseIDList(viper.GetString("HEALTH_RECOMPUTE_TENANTS")),
		},
		Storage: StorageConfig{
			Enabled:   viper.GetBool("STORAGE_ENABLED"),
			Endpoint:  viper.GetString("STORAGE_ENDPOINT"),
			AccessKey: viper.GetString("STORAGE_ACCESS_KEY"),
			SecretKey: viper.GetString("STORAGE_SECRET_KEY"),
			Bucket:    viper.GetString("STORAGE_BUCKET"),
			Region:    viper.GetString("STORAGE_REGION"),
			UseSSL:    viper.GetBool("STORAGE_USE_SSL"),
		},
	}
}

// parseIDList reads a comma-separated list of ids, skipping blanks and
// anything that is not a positive integer.
func parseIDList(raw string) []int64 {
	var ids []int64
	for _, part := range strings.Split(raw, ",") {
		id, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
		if err != nil || id <= 0 {
			continue
		}
		ids = append(ids, id)
	}
	return ids
}

func ensureDir(dir string) {
	if dir == "" {
		return
	}
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		if err := os.MkdirAll(dir, 0755); err != nil {
			log.Fatalf("Failed to create directory %s: %v", dir, err)
		}
	}
}
