package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	defaultTimezone = "UTC"
	configPathEnv   = "TELEGRAM_WAREHOUSE_CONFIG"
	dotenvPath      = ".env"

	databaseDSNEnv      = "DATABASE_DSN"
	postgresHostEnv     = "POSTGRES_HOST"
	postgresPortEnv     = "POSTGRES_PORT"
	postgresDBEnv       = "POSTGRES_DB"
	postgresUserEnv     = "POSTGRES_USER"
	postgresPasswordEnv = "POSTGRES_PASSWORD"
	telegramTokenEnv    = "TELEGRAM_BOT_TOKEN"
	telegramChatIDEnv   = "TELEGRAM_CHAT_ID"
	mlInferenceURLEnv   = "ML_INFERENCE_URL"
	mlAPIKeyEnv         = "ML_API_KEY"
	minioAccessKeyEnv   = "MINIO_ACCESS_KEY"
	minioSecretKeyEnv   = "MINIO_SECRET_KEY"
	channelsEnv         = "PIPELINE_CHANNELS"
)

// Config holds high-level settings required across the application.
type Config struct {
	Logging       LoggingConfig      `yaml:"logging"`
	Database      DatabaseConfig     `yaml:"database"`
	Scraper       ScraperConfig      `yaml:"scraper"`
	Store         StoreConfig        `yaml:"store"`
	Transform     TransformConfig    `yaml:"transform"`
	ML            MLConfig           `yaml:"ml"`
	Notifications NotificationConfig `yaml:"notifications"`
	Archive       ArchiveConfig      `yaml:"archive"`
	Scheduler     SchedulerConfig    `yaml:"scheduler"`
	Metrics       MetricsConfig      `yaml:"metrics"`
	Pipeline      PipelineConfig     `yaml:"pipeline"`
}

// LoggingConfig selects slog level, format and optional file output.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Dir    string `yaml:"dir"`
}

// DatabaseConfig describes Postgres connection details and load paging.
type DatabaseConfig struct {
	DSN               string `yaml:"dsn"`
	Host              string `yaml:"host"`
	Port              string `yaml:"port"`
	Name              string `yaml:"name"`
	User              string `yaml:"user"`
	Password          string `yaml:"password"`
	SSLMode           string `yaml:"sslMode"`
	PageSize          int    `yaml:"pageSize"`
	DetectionPageSize int    `yaml:"detectionPageSize"`
}

// ScraperConfig paces the upstream channel client.
type ScraperConfig struct {
	Channels         []string      `yaml:"channels"`
	Limit            int           `yaml:"limit"`
	MessageDelay     time.Duration `yaml:"messageDelay"`
	ChannelDelay     time.Duration `yaml:"channelDelay"`
	MaxThrottleWaits int           `yaml:"maxThrottleWaits"`
	BaseURL          string        `yaml:"baseUrl"`
	Timeout          time.Duration `yaml:"timeout"`
}

// StoreConfig roots the data lake.
type StoreConfig struct {
	BasePath string `yaml:"basePath"`
	Entity   string `yaml:"entity"`
}

// TransformConfig locates the dbt project.
type TransformConfig struct {
	Binary         string        `yaml:"binary"`
	ProjectDir     string        `yaml:"projectDir"`
	ProfilesDir    string        `yaml:"profilesDir"`
	Target         string        `yaml:"target"`
	Timeout        time.Duration `yaml:"timeout"`
	DetectionModel string        `yaml:"detectionModel"`
}

// MLConfig describes the detection service integration.
type MLConfig struct {
	InferenceURL string        `yaml:"inferenceUrl"`
	APIKey       string        `yaml:"apiKey"`
	Threshold    float64       `yaml:"threshold"`
	Timeout      time.Duration `yaml:"timeout"`
}

// NotificationConfig encapsulates outbound channels (Telegram, etc.).
type NotificationConfig struct {
	Telegram TelegramConfig `yaml:"telegram"`
}

// TelegramConfig wires all data required to send messages.
type TelegramConfig struct {
	BotToken string `yaml:"botToken"`
	ChatID   string `yaml:"chatId"`
}

// ArchiveConfig enables mirroring partitions to object storage.
type ArchiveConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Endpoint  string `yaml:"endpoint"`
	Bucket    string `yaml:"bucket"`
	AccessKey string `yaml:"accessKey"`
	SecretKey string `yaml:"secretKey"`
	UseSSL    bool   `yaml:"useSsl"`
}

// SchedulerConfig defines when the pipeline should run.
type SchedulerConfig struct {
	CronExpression string         `yaml:"cronExpression"`
	Timezone       string         `yaml:"timezone"`
	RunOnStart     bool           `yaml:"runOnStart"`
	Job            string         `yaml:"job"`
	location       *time.Location `yaml:"-"`
}

// Location resolves the scheduler timezone string to a time.Location.
func (s SchedulerConfig) Location() *time.Location {
	if s.location != nil {
		return s.location
	}
	loc, _ := time.LoadLocation(defaultTimezone)
	return loc
}

// MetricsConfig exposes Prometheus metrics in schedule mode.
type MetricsConfig struct {
	ListenAddr string `yaml:"listenAddr"`
}

// PipelineConfig tunes the orchestrator.
type PipelineConfig struct {
	MaxFilesPerLoad int `yaml:"maxFilesPerLoad"`
	// RetryDelayScale multiplies every stage retry delay; 0 keeps them as is.
	RetryDelayScale float64 `yaml:"retryDelayScale"`
}

// DatabaseDSN returns the explicit DSN or one assembled from parts.
func (c Config) DatabaseDSN() string {
	db := c.Database
	if db.DSN != "" {
		return db.DSN
	}
	if db.Host == "" {
		return ""
	}
	sslMode := db.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		db.Host, db.Port, db.User, db.Password, db.Name, sslMode)
}

// Load reads .env and YAML configuration (if present) and applies
// environment overrides on top of the defaults.
func Load() Config {
	if err := godotenv.Load(dotenvPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Printf("config: cannot read %s: %v", dotenvPath, err)
	}

	cfg := defaultConfig()

	if path := os.Getenv(configPathEnv); path != "" {
		if raw, err := os.ReadFile(path); err != nil {
			log.Printf("config: cannot read %s: %v (falling back to defaults)", path, err)
		} else {
			overlay := cfg
			if err := yaml.Unmarshal(raw, &overlay); err != nil {
				log.Printf("config: cannot parse %s: %v (falling back to defaults)", path, err)
			} else {
				cfg = overlay
			}
		}
	}

	cfg.applyEnvOverrides()
	cfg.bindTimezone()

	if len(cfg.Scraper.Channels) == 0 {
		cfg.Scraper.Channels = defaultConfig().Scraper.Channels
	}

	return cfg
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(databaseDSNEnv); v != "" {
		c.Database.DSN = v
	}
	overrideString(&c.Database.Host, postgresHostEnv)
	overrideString(&c.Database.Port, postgresPortEnv)
	overrideString(&c.Database.Name, postgresDBEnv)
	overrideString(&c.Database.User, postgresUserEnv)
	overrideString(&c.Database.Password, postgresPasswordEnv)

	overrideString(&c.Notifications.Telegram.BotToken, telegramTokenEnv)
	overrideString(&c.Notifications.Telegram.ChatID, telegramChatIDEnv)

	overrideString(&c.ML.InferenceURL, mlInferenceURLEnv)
	overrideString(&c.ML.APIKey, mlAPIKeyEnv)

	overrideString(&c.Archive.AccessKey, minioAccessKeyEnv)
	overrideString(&c.Archive.SecretKey, minioSecretKeyEnv)

	if v := os.Getenv(channelsEnv); v != "" {
		var channels []string
		for _, ch := range strings.Split(v, ",") {
			if ch = strings.TrimSpace(ch); ch != "" {
				channels = append(channels, ch)
			}
		}
		c.Scraper.Channels = channels
	}
}

func overrideString(dst *string, env string) {
	if v := os.Getenv(env); v != "" {
		*dst = v
	}
}

func (c *Config) bindTimezone() {
	tz := c.Scheduler.Timezone
	if tz == "" {
		tz = defaultTimezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		log.Printf("config: unknown timezone %s, reverting to %s", tz, defaultTimezone)
		loc, _ = time.LoadLocation(defaultTimezone)
	}
	c.Scheduler.location = loc
}

func defaultConfig() Config {
	tz, _ := time.LoadLocation(defaultTimezone)
	return Config{
		Logging: LoggingConfig{Level: "info", Format: "text"},
		Database: DatabaseConfig{
			Port:              "5432",
			SSLMode:           "disable",
			PageSize:          1000,
			DetectionPageSize: 500,
		},
		Scraper: ScraperConfig{
			Channels:         []string{"@cheMed123", "@lobelia4cosmetics", "@tikvahpharma"},
			Limit:            200,
			MessageDelay:     500 * time.Millisecond,
			ChannelDelay:     3 * time.Second,
			MaxThrottleWaits: 5,
			BaseURL:          "https://t.me",
			Timeout:          20 * time.Second,
		},
		Store: StoreConfig{BasePath: "data", Entity: "telegram_messages"},
		Transform: TransformConfig{
			Binary:         "dbt",
			ProjectDir:     "dbt",
			Timeout:        30 * time.Minute,
			DetectionModel: "fct_image_detections",
		},
		ML: MLConfig{Threshold: 0.15, Timeout: 30 * time.Second},
		Archive: ArchiveConfig{
			Endpoint: "localhost:9000",
			Bucket:   "telegram-warehouse",
		},
		Scheduler: SchedulerConfig{
			CronExpression: "0 6 * * *",
			Timezone:       defaultTimezone,
			Job:            "daily",
			location:       tz,
		},
		Metrics:  MetricsConfig{ListenAddr: ":9102"},
		Pipeline: PipelineConfig{MaxFilesPerLoad: 50},
	}
}
