// Package logger holds the process-wide zap logger. Console output goes to
// stderr so stdout stays free for tables and reports; an optional JSON file
// is rotated by lumberjack.
package logger

import (
	"io"
	"os"
	"sync"

	"github.com/natefinch/lumberjack"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Options configures a logger
type Options struct {
	Debug   bool
	File    string    // JSON log file, empty disables file output
	Console io.Writer // defaults to os.Stderr
}

// Rotation limits of the JSON log file
const (
	fileMaxSizeMB  = 50
	fileMaxBackups = 5
	fileMaxAgeDays = 30
)

const rootName = "tilefilter"

var (
	log  *zap.Logger
	once sync.Once
)

// Setup builds the global logger. Only the first call takes effect.
func Setup(opts Options) {
	once.Do(func() {
		log = New(opts)
	})
}

// New builds a logger without touching the global one
func New(opts Options) *zap.Logger {
	level := zapcore.InfoLevel
	consoleConfig := zap.NewProductionEncoderConfig()
	if opts.Debug {
		level = zapcore.DebugLevel
		consoleConfig = zap.NewDevelopmentEncoderConfig()
	}
	consoleConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	console := opts.Console
	if console == nil {
		console = os.Stderr
	}
	cores := []zapcore.Core{
		zapcore.NewCore(zapcore.NewConsoleEncoder(consoleConfig), zapcore.AddSync(console), level),
	}

	if opts.File != "" {
		cores = append(cores, zapcore.NewCore(
			zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()),
			zapcore.AddSync(&lumberjack.Logger{
				Filename:   opts.File,
				MaxSize:    fileMaxSizeMB,
				MaxBackups: fileMaxBackups,
				MaxAge:     fileMaxAgeDays,
			}),
			level,
		))
	}

	return zap.New(zapcore.NewTee(cores...), zap.AddStacktrace(zapcore.ErrorLevel)).Named(rootName)
}

// Get returns the global logger, setting up a console logger on first use
func Get() *zap.Logger {
	Setup(Options{})
	return log
}

// Named returns the global logger scoped to a component, e.g. "cache"
func Named(component string) *zap.Logger {
	return Get().Named(component)
}

// Sync flushes buffered log entries. Sync errors on a terminal are ignored.
func Sync() {
	if log != nil {
		_ = log.Sync()
	}
}
