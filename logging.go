package main

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/log"
)

// LoggerOptions configures a logger.
type LoggerOptions struct {
	// Level is the minimum level (debug, info, warn, error).
	Level           string
	Output          io.Writer
	Prefix          string
	TimeFormat      string
	ReportTimestamp bool
}

// DefaultLoggerOptions returns the options used by the CLI and the suite.
func DefaultLoggerOptions() LoggerOptions {
	return LoggerOptions{
		Level:           "info",
		Output:          os.Stderr,
		Prefix:          "parkpay",
		TimeFormat:      time.Kitchen,
		ReportTimestamp: true,
	}
}

func parseLevel(level string) log.Level {
	switch strings.ToLower(level) {
	case "debug":
		return log.DebugLevel
	case "warn", "warning":
		return log.WarnLevel
	case "error":
		return log.ErrorLevel
	default:
		return log.InfoLevel
	}
}

// NewLogger creates a logger from opts.
func NewLogger(opts LoggerOptions) *log.Logger {
	if opts.Output == nil {
		opts.Output = os.Stderr
	}
	return log.NewWithOptions(opts.Output, log.Options{
		Level:           parseLevel(opts.Level),
		Prefix:          opts.Prefix,
		TimeFormat:      opts.TimeFormat,
		ReportTimestamp: opts.ReportTimestamp,
	})
}

// NewDefaultLogger creates the default logger, honoring PARKPAY_LOG_LEVEL.
func NewDefaultLogger() *log.Logger {
	opts := DefaultLoggerOptions()
	if level := os.Getenv("PARKPAY_LOG_LEVEL"); level != "" {
		opts.Level = level
	}
	return NewLogger(opts)
}

// discardLogger drops everything; used when a component is built without one.
func discardLogger() *log.Logger {
	return log.NewWithOptions(io.Discard, log.Options{})
}
