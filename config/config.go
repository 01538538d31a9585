package config

import (
	"fmt"
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type Config struct {
	Port        string
	DBHost      string
	DBPort      string
	DBUser      string
	DBPassword  string
	DBName      string
	Environment string

	// Market data provider
	ProviderBaseURL string
	ProviderAPIKey  string

	// Telegram notifications
	TelegramBotToken string
	TelegramChatID   string

	// Optional MongoDB mirror for snapshot summaries
	MongoURI string

	Monitor MonitorConfig
}

// MonitorConfig holds the operational constants of the monitoring pipeline.
// These are tuning knobs, not business rules, so every one of them can be
// overridden from the environment.
type MonitorConfig struct {
	// Staleness tier thresholds in days
	RecentMaxDays int // below this = RECENT
	MediumMaxDays int // up to this = MEDIUM, beyond = STALE

	// Lookback window requested from the provider, per tier
	RecentLookbackDays int
	MediumLookbackDays int
	StaleLookbackDays  int

	// Provider batch sizes, per tier
	RecentBatchSize int
	MediumBatchSize int
	StaleBatchSize  int

	// Real-time snapshot pass
	RealtimeBatchSize int
	RecentPeriods     int // trailing periods fetched for snapshot building

	// Indicator windows
	ShortMAWindow int
	LongMAWindow  int

	// Alerting
	AlertThreshold   float64 // default percent-change threshold
	TopAlertsPerType int
	MaxAlertRetries  int

	// Concurrency
	FetchWorkers        int
	BatchTimeoutSeconds int
}

var AppConfig *Config
var DB *gorm.DB

// LoadConfig loads environment variables
func LoadConfig() (*Config, error) {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	config := &Config{
		Port:        getEnv("PORT", "8080"),
		DBHost:      getEnv("DB_HOST", "localhost"),
		DBPort:      getEnv("DB_PORT", "5432"),
		DBUser:      getEnv("DB_USER", "postgres"),
		DBPassword:  getEnv("DB_PASSWORD", ""),
		DBName:      getEnv("DB_NAME", "stock_monitor_db"),
		Environment: getEnv("ENVIRONMENT", "development"),

		ProviderBaseURL: getEnv("PROVIDER_BASE_URL", "https://query1.finance.yahoo.com"),
		ProviderAPIKey:  getEnv("PROVIDER_API_KEY", ""),

		TelegramBotToken: getEnv("TELEGRAM_BOT_TOKEN", ""),
		TelegramChatID:   getEnv("TELEGRAM_CHAT_ID", ""),

		MongoURI: getEnv("MONGODB_URI", ""),

		Monitor: LoadMonitorConfig(),
	}

	AppConfig = config
	return config, nil
}

// LoadMonitorConfig reads the pipeline tuning knobs from the environment.
func LoadMonitorConfig() MonitorConfig {
	return MonitorConfig{
		RecentMaxDays: getEnvInt("MONITOR_RECENT_MAX_DAYS", 7),
		MediumMaxDays: getEnvInt("MONITOR_MEDIUM_MAX_DAYS", 30),

		RecentLookbackDays: getEnvInt("MONITOR_RECENT_LOOKBACK_DAYS", 7),
		MediumLookbackDays: getEnvInt("MONITOR_MEDIUM_LOOKBACK_DAYS", 30),
		StaleLookbackDays:  getEnvInt("MONITOR_STALE_LOOKBACK_DAYS", 365),

		RecentBatchSize: getEnvInt("MONITOR_RECENT_BATCH_SIZE", 200),
		MediumBatchSize: getEnvInt("MONITOR_MEDIUM_BATCH_SIZE", 100),
		StaleBatchSize:  getEnvInt("MONITOR_STALE_BATCH_SIZE", 50),

		RealtimeBatchSize: getEnvInt("MONITOR_REALTIME_BATCH_SIZE", 200),
		RecentPeriods:     getEnvInt("MONITOR_RECENT_PERIODS", 7),

		ShortMAWindow: getEnvInt("MONITOR_SHORT_MA_WINDOW", 50),
		LongMAWindow:  getEnvInt("MONITOR_LONG_MA_WINDOW", 200),

		AlertThreshold:   getEnvFloat("MONITOR_ALERT_THRESHOLD", 2.0),
		TopAlertsPerType: getEnvInt("MONITOR_TOP_ALERTS_PER_TYPE", 10),
		MaxAlertRetries:  getEnvInt("MONITOR_MAX_ALERT_RETRIES", 5),

		FetchWorkers:        getEnvInt("MONITOR_FETCH_WORKERS", 4),
		BatchTimeoutSeconds: getEnvInt("MONITOR_BATCH_TIMEOUT_SECONDS", 30),
	}
}

// InitDB initializes database connection
func InitDB() (*gorm.DB, error) {
	// Log connection info (masked for security)
	log.Printf("Connecting to database: host=%s port=%s user=%s dbname=%s",
		maskHost(AppConfig.DBHost),
		AppConfig.DBPort,
		AppConfig.DBUser,
		AppConfig.DBName,
	)

	dsn := fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%s sslmode=require TimeZone=UTC",
		AppConfig.DBHost,
		AppConfig.DBUser,
		AppConfig.DBPassword,
		AppConfig.DBName,
		AppConfig.DBPort,
	)

	var logLevel logger.LogLevel
	if AppConfig.Environment == "production" {
		logLevel = logger.Error
	} else {
		logLevel = logger.Info
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logLevel),
	})

	if err != nil {
		log.Printf("Database connection error: %v", err)
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Verify connection with ping
	sqlDB, err := db.DB()
	if err != nil {
		log.Printf("Failed to get underlying database: %v", err)
		return nil, fmt.Errorf("failed to get database: %w", err)
	}

	if err := sqlDB.Ping(); err != nil {
		log.Printf("Database ping failed: %v", err)
		return nil, fmt.Errorf("database ping failed: %w", err)
	}

	log.Printf("Database connection verified successfully")
	DB = db
	return db, nil
}

// maskHost masks host for logging, preserving domain structure
func maskHost(host string) string {
	if len(host) <= 3 {
		return "***"
	}
	if len(host) <= 15 {
		return host[:3] + "***"
	}
	return host[:8] + "***" + host[len(host)-10:]
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		log.Printf("Invalid integer for %s=%q, using default %d", key, value, defaultValue)
		return defaultValue
	}
	return n
}

func getEnvFloat(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		log.Printf("Invalid number for %s=%q, using default %.2f", key, value, defaultValue)
		return defaultValue
	}
	return f
}
