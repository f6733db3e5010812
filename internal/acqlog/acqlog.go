// Package acqlog implements structured logging for the acquisition core,
// grounded on the teacher's internal/log/logger.go (slog handler over a
// multi-writer, file outputs rotated via lumberjack). The console/Loki
// dual-output surface is dropped: the acquisition daemon has one log
// sink (console or a rotated file), not a fleet-wide log pipeline.
package acqlog

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Config selects the logger's level, format, and output.
type Config struct {
	Level  string // debug|info|warn|error
	Format string // json|text
	Output OutputConfig
}

// OutputConfig names a single log sink: console, or a rotated file.
type OutputConfig struct {
	Type       string // console|file
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// Init builds a slog.Logger from cfg and installs it as the process
// default.
func Init(cfg Config) (*slog.Logger, error) {
	level, err := parseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("acqlog: invalid level: %w", err)
	}

	writer, err := createWriter(cfg.Output)
	if err != nil {
		return nil, fmt.Errorf("acqlog: create output (%s): %w", cfg.Output.Type, err)
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	switch strings.ToLower(cfg.Format) {
	case "json", "":
		handler = slog.NewJSONHandler(writer, opts)
	case "text":
		handler = slog.NewTextHandler(writer, opts)
	default:
		return nil, fmt.Errorf("acqlog: unsupported format %q (must be json or text)", cfg.Format)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger, nil
}

func parseLevel(levelStr string) (slog.Level, error) {
	switch strings.ToLower(levelStr) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown level: %s", levelStr)
	}
}

func createWriter(output OutputConfig) (io.Writer, error) {
	switch strings.ToLower(output.Type) {
	case "", "console", "stdout":
		return os.Stdout, nil
	case "file":
		if output.Path == "" {
			return nil, fmt.Errorf("file output requires 'path' field")
		}
		return &lumberjack.Logger{
			Filename:   output.Path,
			MaxSize:    output.MaxSizeMB,
			MaxBackups: output.MaxBackups,
			MaxAge:     output.MaxAgeDays,
			Compress:   output.Compress,
		}, nil
	default:
		return nil, fmt.Errorf("unsupported output type: %s", output.Type)
	}
}
