package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"walink/pkg/logger"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

// Config holds all application configuration
type Config struct {
	Server   ServerConfig   `json:"server"`
	Database DatabaseConfig `json:"database"`
	WhatsApp WhatsAppConfig `json:"whatsapp"`
	Logging  LoggingConfig  `json:"logging"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string        `json:"host"`
	Port         int           `json:"port"`
	ReadTimeout  time.Duration `json:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout"`
	IdleTimeout  time.Duration `json:"idle_timeout"`
	EnableCORS   bool          `json:"enable_cors"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host            string        `json:"host"`
	Port            int           `json:"port"`
	User            string        `json:"user"`
	Password        string        `json:"password,omitempty"`
	Name            string        `json:"name"`
	SSLMode         string        `json:"ssl_mode"`
	Debug           bool          `json:"debug"`
	MaxOpenConns    int           `json:"max_open_conns"`
	MaxIdleConns    int           `json:"max_idle_conns"`
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `json:"conn_max_idle_time"`
}

// WhatsAppConfig holds connection supervisor configuration
type WhatsAppConfig struct {
	QRTimeout            time.Duration `json:"qr_timeout"`
	ReconnectInterval    time.Duration `json:"reconnect_interval"`
	MaxReconnectAttempts int           `json:"max_reconnect_attempts"`
	KeepAliveInterval    time.Duration `json:"keep_alive_interval"`
	MaxDevicesPerUser    int           `json:"max_devices_per_user"`
	AutoConnect          bool          `json:"auto_connect"`
	PrintQR              bool          `json:"print_qr"`
	LogLevel             string        `json:"log_level"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level       string `json:"level"`
	Format      string `json:"format"` // "json" or "console"
	ColorOutput bool   `json:"color_output"`
	TimeFormat  string `json:"time_format"`
	File        string `json:"file"`
}

// Load loads configuration from environment variables and .env file
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Debug().Err(err).Msg("No .env file loaded")
	}

	config := &Config{
		Server:   loadServerConfig(),
		Database: loadDatabaseConfig(),
		WhatsApp: loadWhatsAppConfig(),
		Logging:  loadLoggingConfig(),
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

func loadServerConfig() ServerConfig {
	return ServerConfig{
		Host:         getEnvOrDefault("SERVER_HOST", "0.0.0.0"),
		Port:         getEnvAsIntOrDefault("SERVER_PORT", 8080),
		ReadTimeout:  getEnvAsDurationOrDefault("SERVER_READ_TIMEOUT", 30*time.Second),
		WriteTimeout: getEnvAsDurationOrDefault("SERVER_WRITE_TIMEOUT", 30*time.Second),
		IdleTimeout:  getEnvAsDurationOrDefault("SERVER_IDLE_TIMEOUT", 120*time.Second),
		EnableCORS:   getEnvAsBoolOrDefault("SERVER_ENABLE_CORS", true),
	}
}

func loadDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		Host:            getEnvOrDefault("DB_HOST", "localhost"),
		Port:            getEnvAsIntOrDefault("DB_PORT", 5432),
		User:            getEnvOrDefault("DB_USER", "walink"),
		Password:        os.Getenv("DB_PASSWORD"),
		Name:            getEnvOrDefault("DB_NAME", "walink"),
		SSLMode:         getEnvOrDefault("DB_SSL_MODE", "disable"),
		Debug:           getEnvAsBoolOrDefault("DB_DEBUG", false),
		MaxOpenConns:    getEnvAsIntOrDefault("DB_MAX_OPEN_CONNS", 25),
		MaxIdleConns:    getEnvAsIntOrDefault("DB_MAX_IDLE_CONNS", 5),
		ConnMaxLifetime: getEnvAsDurationOrDefault("DB_CONN_MAX_LIFETIME", 5*time.Minute),
		ConnMaxIdleTime: getEnvAsDurationOrDefault("DB_CONN_MAX_IDLE_TIME", 5*time.Minute),
	}
}

func loadWhatsAppConfig() WhatsAppConfig {
	return WhatsAppConfig{
		QRTimeout:            getEnvAsDurationOrDefault("WA_QR_TIMEOUT", 120*time.Second),
		ReconnectInterval:    getEnvAsDurationOrDefault("WA_RECONNECT_INTERVAL", 5*time.Second),
		MaxReconnectAttempts: getEnvAsIntOrDefault("WA_MAX_RECONNECT_ATTEMPTS", 5),
		KeepAliveInterval:    getEnvAsDurationOrDefault("WA_KEEPALIVE_INTERVAL", 60*time.Second),
		MaxDevicesPerUser:    getEnvAsIntOrDefault("WA_MAX_DEVICES_PER_USER", 50),
		AutoConnect:          getEnvAsBoolOrDefault("WA_AUTO_CONNECT", true),
		PrintQR:              getEnvAsBoolOrDefault("WA_PRINT_QR", false),
		LogLevel:             getEnvOrDefault("WA_LOG_LEVEL", "INFO"),
	}
}

func loadLoggingConfig() LoggingConfig {
	return LoggingConfig{
		Level:       getEnvOrDefault("LOG_LEVEL", "info"),
		Format:      getEnvOrDefault("LOG_FORMAT", "console"),
		ColorOutput: getEnvAsBoolOrDefault("LOG_COLOR", true),
		TimeFormat:  getEnvOrDefault("LOG_TIME_FORMAT", time.RFC3339),
		File:        os.Getenv("LOG_FILE"),
	}
}

// Validate checks the configuration for consistency
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}
	if c.Database.Name == "" {
		return fmt.Errorf("database name is required")
	}
	if c.WhatsApp.QRTimeout <= 0 {
		return fmt.Errorf("QR timeout must be positive")
	}
	if c.WhatsApp.ReconnectInterval <= 0 {
		return fmt.Errorf("reconnect interval must be positive")
	}
	if c.WhatsApp.MaxReconnectAttempts < 0 {
		return fmt.Errorf("max reconnect attempts cannot be negative")
	}
	if c.WhatsApp.MaxDevicesPerUser < 1 {
		return fmt.Errorf("max devices per user must be at least 1")
	}
	if !isValidLogLevel(c.Logging.Level) {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}
	return nil
}

// GetServerAddress returns the host:port the server listens on
func (c *Config) GetServerAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// SetupLogger applies the logging configuration to the global logger
func (c *Config) SetupLogger() {
	logger.SetGlobalLogger(logger.New(logger.Config{
		Level:       c.Logging.Level,
		Format:      c.Logging.Format,
		ColorOutput: c.Logging.ColorOutput,
		TimeFormat:  c.Logging.TimeFormat,
		File:        c.Logging.File,
	}))
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvAsBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvAsDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func isValidLogLevel(level string) bool {
	switch strings.ToLower(level) {
	case "trace", "debug", "info", "warn", "warning", "error", "fatal", "panic", "disabled":
		return true
	default:
		return false
	}
}
