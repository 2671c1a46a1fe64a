// Package logger configures the process-wide zerolog logger.
package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config holds logger configuration
type Config struct {
	Level       string `json:"level"`
	Format      string `json:"format"` // "json" or "console"
	ColorOutput bool   `json:"color_output"`
	TimeFormat  string `json:"time_format"`
	File        string `json:"file"` // optional rotating log file
}

// Logger wraps zerolog.Logger with additional functionality
type Logger struct {
	*zerolog.Logger
	config Config
}

// New creates a new logger instance with the given configuration
func New(config Config) *Logger {
	zerolog.SetGlobalLevel(parseLogLevel(config.Level))

	if config.TimeFormat != "" {
		zerolog.TimeFieldFormat = config.TimeFormat
	}

	var output io.Writer = os.Stdout
	if config.File != "" {
		output = io.MultiWriter(os.Stdout, &lumberjack.Logger{
			Filename:   config.File,
			MaxSize:    50, // megabytes
			MaxBackups: 5,
			MaxAge:     14, // days
			Compress:   true,
		})
	}

	var logger zerolog.Logger
	switch strings.ToLower(config.Format) {
	case "console", "pretty":
		logger = zerolog.New(zerolog.ConsoleWriter{
			Out:        output,
			TimeFormat: config.TimeFormat,
			NoColor:    !config.ColorOutput,
		}).With().Timestamp().Str("service", "walink").Logger()
	default:
		logger = zerolog.New(output).With().Timestamp().Str("service", "walink").Logger()
	}

	return &Logger{
		Logger: &logger,
		config: config,
	}
}

// NewDefault creates a logger with default configuration
func NewDefault() *Logger {
	return New(Config{
		Level:       "info",
		Format:      "console",
		ColorOutput: true,
		TimeFormat:  time.RFC3339,
	})
}

// SetGlobalLogger installs the logger as the zerolog global
func SetGlobalLogger(logger *Logger) {
	log.Logger = *logger.Logger
}

// WithComponent creates a logger with a component field
func (l *Logger) WithComponent(component string) *Logger {
	newLogger := l.Logger.With().Str("component", component).Logger()
	return &Logger{
		Logger: &newLogger,
		config: l.config,
	}
}

// WithDeviceID creates a logger with a device ID field
func (l *Logger) WithDeviceID(deviceID string) *Logger {
	newLogger := l.Logger.With().Str("device_id", deviceID).Logger()
	return &Logger{
		Logger: &newLogger,
		config: l.config,
	}
}

// parseLogLevel converts string level to zerolog.Level
func parseLogLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "fatal":
		return zerolog.FatalLevel
	case "disabled":
		return zerolog.Disabled
	default:
		return zerolog.InfoLevel
	}
}
