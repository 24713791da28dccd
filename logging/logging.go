// Package logging builds the process logger.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options controls logger construction.
type Options struct {
	Level  string // logrus level name, default info
	Format string // "text" or "json"
	// File, when set, receives a rotated copy of every line.
	File string
	// Stderr keeps writing to stderr when File is set.
	Stderr bool
}

// Configure sets up logrus with optional rotation.
func Configure(opts Options) (*logrus.Logger, error) {
	logger := logrus.New()
	switch strings.ToLower(opts.Format) {
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{})
	case "", "text":
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	default:
		return nil, fmt.Errorf("unknown log format %q", opts.Format)
	}

	level := logrus.InfoLevel
	if opts.Level != "" {
		lvl, err := logrus.ParseLevel(strings.ToLower(opts.Level))
		if err != nil {
			return nil, err
		}
		level = lvl
	}
	logger.SetLevel(level)

	if opts.File == "" {
		logger.SetOutput(os.Stderr)
		return logger, nil
	}

	if err := os.MkdirAll(filepath.Dir(opts.File), 0o755); err != nil {
		return nil, err
	}
	rotator := &lumberjack.Logger{
		Filename:   opts.File,
		MaxSize:    20, // megabytes
		MaxBackups: 3,
		MaxAge:     30,
	}
	if opts.Stderr {
		logger.SetOutput(io.MultiWriter(os.Stderr, rotator))
	} else {
		logger.SetOutput(rotator)
	}
	return logger, nil
}

// Discard returns a logger that drops everything.
func Discard() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}
