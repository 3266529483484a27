// Package logger builds the process-wide slog logger.
package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

type Config struct {
	Debug   bool
	DataDir string
	// stderr copy in debug mode, os.Stderr when nil
	Console io.Writer
}

// New returns a logger writing to a rotating file under DataDir/logs. In debug mode the
// output is mirrored to the console and the level drops to debug. The returned closer
// releases the log file.
func New(cfg Config) (*slog.Logger, io.Closer, error) {
	logDir := filepath.Join(cfg.DataDir, "logs")
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, nil, fmt.Errorf("creating log directory: %w", err)
	}
	fileWriter := &lumberjack.Logger{
		Filename:   filepath.Join(logDir, "hydrosync.log"),
		MaxSize:    10, // megabytes
		MaxBackups: 3,
		MaxAge:     28, // days
		Compress:   true,
	}

	level := log.InfoLevel
	var writer io.Writer = fileWriter
	if cfg.Debug {
		level = log.DebugLevel
		console := cfg.Console
		if console == nil {
			console = os.Stderr
		}
		writer = io.MultiWriter(console, fileWriter)
	}

	handler := log.NewWithOptions(writer, log.Options{
		ReportCaller:    cfg.Debug,
		ReportTimestamp: true,
		Level:           level,
		Prefix:          "hydrosync",
	})
	return slog.New(handler), fileWriter, nil
}
