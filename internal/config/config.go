package config

import (
	"os"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

type Config struct {
	Server      ServerConfig
	Database    DatabaseConfig
	App         AppConfig
	Cache       CacheConfig
	Storage     StorageConfig
	Drive       DriveConfig
	Pipeline    PipelineConfig
	Ranking     RankingConfig
	Criticality CriticalityFileConfig
}

type ServerConfig struct {
	Port           string
	Mode           string
	ReadTimeout    int
	WriteTimeout   int
	AllowedOrigins []string
	MaxUploadMB    int
}

type DatabaseConfig struct {
	Host        string
	Port        string
	User        string
	Password    string
	DBName      string
	SSLMode     string
	AutoMigrate bool
}

type AppConfig struct {
	UploadDir string
	DataDir   string
	LogLevel  string
}

type CacheConfig struct {
	Enabled           bool
	RedisURL          string
	RedisHost         string
	RedisPort         string
	RedisPassword     string
	RedisDB           int
	FiltersTTLSeconds int
	SessionTTLHours   int
}

// StorageConfig points at an S3-compatible bucket used to archive uploads.
type StorageConfig struct {
	Enabled   bool
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	UseSSL    bool
	Prefix    string
}

type DriveConfig struct {
	CredentialsFile string
	FolderID        string
	PollInterval    time.Duration
}

type PipelineConfig struct {
	WorkerCount   int
	BatchSize     int
	BatchRows     int
	RetryAttempts int
}

type RankingConfig struct {
	DefaultLimit int
	MaxLimit     int
}

// CriticalityFileConfig locates the persisted criticality rules.
type CriticalityFileConfig struct {
	Path string
}

var (
	once     sync.Once
	instance *Config
)

func Load() *Config {
	once.Do(func() {
		// Load .env file if it exists
		_ = godotenv.Load()

		viper.SetDefault("SERVER_PORT", "8080")
		viper.SetDefault("SERVER_MODE", "debug")
		viper.SetDefault("SERVER_READ_TIMEOUT", 30)
		viper.SetDefault("SERVER_WRITE_TIMEOUT", 60)
		viper.SetDefault("SERVER_ALLOWED_ORIGINS", []string{"*"})
		viper.SetDefault("SERVER_MAX_UPLOAD_MB", 20)
		viper.SetDefault("DB_HOST", "localhost")
		viper.SetDefault("DB_PORT", "5432")
		viper.SetDefault("DB_USER", "postgres")
		viper.SetDefault("DB_PASSWORD", "postgres")
		viper.SetDefault("DB_NAME", "stockrisk")
		viper.SetDefault("DB_SSLMODE", "disable")
		viper.SetDefault("DB_AUTO_MIGRATE", true)
		viper.SetDefault("APP_UPLOAD_DIR", "./data/uploads")
		viper.SetDefault("APP_DATA_DIR", "./data/output")
		viper.SetDefault("APP_LOG_LEVEL", "info")
		viper.SetDefault("CACHE_ENABLED", false)
		viper.SetDefault("REDIS_URL", "")
		viper.SetDefault("REDIS_HOST", "127.0.0.1")
		viper.SetDefault("REDIS_PORT", "6379")
		viper.SetDefault("REDIS_PASSWORD", "")
		viper.SetDefault("REDIS_DB", 0)
		viper.SetDefault("CACHE_FILTERS_TTL_SECONDS", 300)
		viper.SetDefault("CACHE_SESSION_TTL_HOURS", 24)
		viper.SetDefault("STORAGE_ENABLED", false)
		viper.SetDefault("STORAGE_ENDPOINT", "localhost:9000")
		viper.SetDefault("STORAGE_BUCKET", "ledgers")
		viper.SetDefault("STORAGE_REGION", "us-east-1")
		viper.SetDefault("STORAGE_USE_SSL", false)
		viper.SetDefault("STORAGE_PREFIX", "ledgers/")
		viper.SetDefault("DRIVE_CREDENTIALS_FILE", "")
		viper.SetDefault("DRIVE_FOLDER_ID", "")
		viper.SetDefault("DRIVE_POLL_INTERVAL", "15m")
		viper.SetDefault("PIPELINE_WORKER_COUNT", 4)
		viper.SetDefault("PIPELINE_BATCH_SIZE", 5)
		viper.SetDefault("PIPELINE_BATCH_ROWS", 5000)
		viper.SetDefault("PIPELINE_RETRY_ATTEMPTS", 3)
		viper.SetDefault("RANKING_DEFAULT_LIMIT", 3)
		viper.SetDefault("RANKING_MAX_LIMIT", 100)
		viper.SetDefault("CRITICALITY_CONFIG_PATH", "./data/criticality_config.json")

		// Read from environment variables
		viper.AutomaticEnv()

		ensureDir(viper.GetString("APP_UPLOAD_DIR"))
		ensureDir(viper.GetString("APP_DATA_DIR"))

		instance = &Config{
			Server: ServerConfig{
				Port:           viper.GetString("SERVER_PORT"),
				Mode:           viper.GetString("SERVER_MODE"),
				ReadTimeout:    viper.GetInt("SERVER_READ_TIMEOUT"),
				WriteTimeout:   viper.GetInt("SERVER_WRITE_TIMEOUT"),
				AllowedOrigins: viper.GetStringSlice("SERVER_ALLOWED_ORIGINS"),
				MaxUploadMB:    viper.GetInt("SERVER_MAX_UPLOAD_MB"),
			},
			Database: DatabaseConfig{
				Host:        viper.GetString("DB_HOST"),
				Port:        viper.GetString("DB_PORT"),
				User:        viper.GetString("DB_USER"),
				Password:    viper.GetString("DB_PASSWORD"),
				DBName:      viper.GetString("DB_NAME"),
				SSLMode:     viper.GetString("DB_SSLMODE"),
				AutoMigrate: viper.GetBool("DB_AUTO_MIGRATE"),
			},
			App: AppConfig{
				UploadDir: viper.GetString("APP_UPLOAD_DIR"),
				DataDir:   viper.GetString("APP_DATA_DIR"),
				LogLevel:  viper.GetString("APP_LOG_LEVEL"),
			},
			Cache: CacheConfig{
				Enabled:           viper.GetBool("CACHE_ENABLED"),
				RedisURL:          viper.GetString("REDIS_URL"),
				RedisHost:         viper.GetString("REDIS_HOST"),
				RedisPort:         viper.GetString("REDIS_PORT"),
				RedisPassword:     viper.GetString("REDIS_PASSWORD"),
				RedisDB:           viper.GetInt("REDIS_DB"),
				FiltersTTLSeconds: viper.GetInt("CACHE_FILTERS_TTL_SECONDS"),
				SessionTTLHours:   viper.GetInt("CACHE_SESSION_TTL_HOURS"),
			},
			Storage: StorageConfig{
				Enabled:   viper.GetBool("STORAGE_ENABLED"),
				Endpoint:  viper.GetString("STORAGE_ENDPOINT"),
				AccessKey: viper.GetString("STORAGE_ACCESS_KEY"),
				SecretKey: viper.GetString("STORAGE_SECRET_KEY"),
				Bucket:    viper.GetString("STORAGE_BUCKET"),
				Region:    viper.GetString("STORAGE_REGION"),
				UseSSL:    viper.GetBool("STORAGE_USE_SSL"),
				Prefix:    viper.GetString("STORAGE_PREFIX"),
			},
			Drive: DriveConfig{
				CredentialsFile: viper.GetString("DRIVE_CREDENTIALS_FILE"),
				FolderID:        viper.GetString("DRIVE_FOLDER_ID"),
				PollInterval:    viper.GetDuration("DRIVE_POLL_INTERVAL"),
			},
			Pipeline: PipelineConfig{
				WorkerCount:   viper.GetInt("PIPELINE_WORKER_COUNT"),
				BatchSize:     viper.GetInt("PIPELINE_BATCH_SIZE"),
				BatchRows:     viper.GetInt("PIPELINE_BATCH_ROWS"),
				RetryAttempts: viper.GetInt("PIPELINE_RETRY_ATTEMPTS"),
			},
			Ranking: RankingConfig{
				DefaultLimit: viper.GetInt("RANKING_DEFAULT_LIMIT"),
				MaxLimit:     viper.GetInt("RANKING_MAX_LIMIT"),
			},
			Criticality: CriticalityFileConfig{
				Path: viper.GetString("CRITICALITY_CONFIG_PATH"),
			},
		}
	})

	return instance
}

func ensureDir(dir string) {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		if err := os.MkdirAll(dir, 0755); err != nil {
			log.Fatal().Err(err).Str("dir", dir).Msg("failed to create directory")
		}
	}
}
