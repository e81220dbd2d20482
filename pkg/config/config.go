package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Pipeline PipelineConfig
	HTTP     HTTPConfig
	Logging  LoggingConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
	SMTP     SMTPConfig
}

// PipelineConfig drives topology generation and the simulation cadence
type PipelineConfig struct {
	LengthKm         float64
	SensorIntervalKm float64
	TickInterval     time.Duration
	StartLat         float64
	StartLng         float64
	AutoStart        bool
	AutoDetect       bool
	FlowTolerance    float64
	HistorySize      int
}

type HTTPConfig struct {
	Addr string
}

type LoggingConfig struct {
	Level      string
	Dir        string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

func (d DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode)
}

type RedisConfig struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
}

type KafkaConfig struct {
	Enabled     bool
	Brokers     []string
	TopicAlerts string
}

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	To       string
}

func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not present)
	_ = godotenv.Load()

	config := &Config{
		Pipeline: PipelineConfig{
			LengthKm:         getEnvAsFloat("PIPELINE_LENGTH_KM", 20),
			SensorIntervalKm: getEnvAsFloat("SENSOR_INTERVAL_KM", 1),
			TickInterval:     time.Duration(getEnvAsInt("TICK_INTERVAL_MS", 3000)) * time.Millisecond,
			StartLat:         getEnvAsFloat("PIPELINE_START_LAT", 12.9716),
			StartLng:         getEnvAsFloat("PIPELINE_START_LNG", 77.5946),
			AutoStart:        getEnvAsBool("SIMULATION_AUTOSTART", true),
			AutoDetect:       getEnvAsBool("LEAK_AUTO_DETECT", false),
			FlowTolerance:    getEnvAsFloat("LEAK_FLOW_TOLERANCE", 25),
			HistorySize:      getEnvAsInt("HISTORY_SIZE", 20),
		},
		HTTP: HTTPConfig{
			Addr: getEnv("HTTP_ADDR", ":8080"),
		},
		Logging: LoggingConfig{
			Level:      getEnv("LOG_LEVEL", "info"),
			Dir:        getEnv("LOG_DIR", "logs"),
			MaxSizeMB:  getEnvAsInt("LOG_MAX_SIZE_MB", 50),
			MaxBackups: getEnvAsInt("LOG_MAX_BACKUPS", 5),
			MaxAgeDays: getEnvAsInt("LOG_MAX_AGE_DAYS", 14),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvAsInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "pipeline_user"),
			Password: getEnv("DB_PASSWORD", "pipeline_pass"),
			DBName:   getEnv("DB_NAME", "pipeline_db"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Enabled:  getEnvAsBool("REDIS_ENABLED", false),
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		Kafka: KafkaConfig{
			Enabled:     getEnvAsBool("KAFKA_ENABLED", false),
			Brokers:     strings.Split(getEnv("KAFKA_BROKERS", "localhost:9092"), ","),
			TopicAlerts: getEnv("KAFKA_TOPIC_ALERTS", "pipeline.alerts"),
		},
		SMTP: SMTPConfig{
			Host:     getEnv("SMTP_HOST", "smtp.gmail.com"),
			Port:     getEnvAsInt("SMTP_PORT", 587),
			Username: getEnv("SMTP_USERNAME", ""),
			Password: getEnv("SMTP_PASSWORD", ""),
			From:     getEnv("SMTP_FROM", "pipeline-monitor@example.com"),
			To:       getEnv("SMTP_TO", "operations@example.com"),
		},
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate rejects settings the engine cannot run with
func (c *Config) Validate() error {
	var errs []error
	if c.Pipeline.LengthKm < 0 {
		errs = append(errs, fmt.Errorf("PIPELINE_LENGTH_KM must not be negative, got %v", c.Pipeline.LengthKm))
	}
	if c.Pipeline.SensorIntervalKm <= 0 {
		errs = append(errs, fmt.Errorf("SENSOR_INTERVAL_KM must be positive, got %v", c.Pipeline.SensorIntervalKm))
	}
	if c.Pipeline.TickInterval <= 0 {
		errs = append(errs, fmt.Errorf("TICK_INTERVAL_MS must be positive, got %v", c.Pipeline.TickInterval))
	}
	if c.Pipeline.HistorySize <= 0 {
		errs = append(errs, fmt.Errorf("HISTORY_SIZE must be positive, got %d", c.Pipeline.HistorySize))
	}
	return errors.Join(errs...)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}
