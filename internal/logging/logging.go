// Package logging builds the zap loggers used throughout gdrivefs.
package logging

import (
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds logging configuration.
type Config struct {
	Level  string // DEBUG, INFO, WARN, ERROR
	Format string // console, json
	File   string // empty logs to stderr; a path is appended to

	// MaxSizeMB rotates File once it would exceed this size. 0 never rotates.
	MaxSizeMB  int
	MaxBackups int
}

// New builds a logger from cfg. Unknown levels fall back to info.
func New(cfg Config) (*zap.Logger, error) {
	level := ParseLevel(cfg.Level)

	var config zap.Config
	switch cfg.Format {
	case "", "console":
		config = zap.NewDevelopmentConfig()
		config.Development = false
		config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	case "json":
		config = zap.NewProductionConfig()
		config.Sampling = nil
		config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	default:
		return nil, fmt.Errorf("unknown log format %q", cfg.Format)
	}

	config.Level = zap.NewAtomicLevelAt(level)
	config.OutputPaths = []string{"stderr"}
	config.ErrorOutputPaths = []string{"stderr"}

	if cfg.File == "" {
		logger, err := config.Build(zap.AddStacktrace(zapcore.ErrorLevel))
		if err != nil {
			return nil, fmt.Errorf("failed to build logger: %w", err)
		}
		return logger.Named("gdrivefs"), nil
	}

	file, err := OpenRotatingFile(cfg.File, cfg.MaxSizeMB, cfg.MaxBackups)
	if err != nil {
		return nil, err
	}
	encoder := zapcore.NewConsoleEncoder(config.EncoderConfig)
	if config.Encoding == "json" {
		encoder = zapcore.NewJSONEncoder(config.EncoderConfig)
	}
	core := zapcore.NewCore(encoder, file, config.Level)
	logger := zap.New(core,
		zap.AddCaller(),
		zap.AddStacktrace(zapcore.ErrorLevel),
		zap.ErrorOutput(zapcore.Lock(os.Stderr)))
	return logger.Named("gdrivefs"), nil
}

// ParseLevel maps a configured level name to a zap level.
func ParseLevel(name string) zapcore.Level {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(strings.ToLower(name))); err != nil {
		return zapcore.InfoLevel
	}
	return level
}

// OrNop returns logger, or a no-op logger when it is nil.
func OrNop(logger *zap.Logger) *zap.Logger {
	if logger == nil {
		return zap.NewNop()
	}
	return logger
}
