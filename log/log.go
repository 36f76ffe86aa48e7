package log

import (
	"fmt"
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

type Config struct {
	Level       string `yaml:"level"`
	Encoding    string `yaml:"encoding"` // console or json
	Development bool   `yaml:"development"`

	// File, when set, receives a copy of the log, rotated by size.
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

var (
	mu     sync.RWMutex
	sugar  = newDefault()
	levels = zap.NewAtomicLevelAt(zapcore.InfoLevel)
)

func newDefault() *zap.SugaredLogger {
	cfg := zap.NewProductionConfig()
	cfg.Encoding = "console"
	cfg.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05")
	cfg.DisableStacktrace = true
	l, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		return zap.NewNop().Sugar()
	}
	return l.Sugar()
}

// build assembles the logger for c. Output goes to stderr and, when
// configured, to a rotating file.
func build(c Config, w ...zapcore.WriteSyncer) *zap.Logger {
	encCfg := zap.NewProductionEncoderConfig()
	if c.Development {
		encCfg = zap.NewDevelopmentEncoderConfig()
	}
	encCfg.EncodeTime = zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05")

	var enc zapcore.Encoder
	if c.Encoding == "json" {
		enc = zapcore.NewJSONEncoder(encCfg)
	} else {
		enc = zapcore.NewConsoleEncoder(encCfg)
	}

	if len(w) == 0 {
		w = append(w, zapcore.Lock(os.Stderr))
	}
	if c.File != "" {
		maxSize := c.MaxSizeMB
		if maxSize <= 0 {
			maxSize = 50
		}
		w = append(w, zapcore.AddSync(&lumberjack.Logger{
			Filename:   c.File,
			MaxSize:    maxSize,
			MaxBackups: c.MaxBackups,
			MaxAge:     c.MaxAgeDays,
			Compress:   c.Compress,
		}))
	}

	opts := []zap.Option{zap.AddCaller(), zap.AddCallerSkip(1)}
	if c.Development {
		opts = append(opts, zap.Development(), zap.AddStacktrace(zapcore.ErrorLevel))
	}
	return zap.New(zapcore.NewCore(enc, zapcore.NewMultiWriteSyncer(w...), levels), opts...)
}

// Init replaces the package logger. It is safe to call more than once.
func Init(c Config) error {
	lvl := zapcore.InfoLevel
	if c.Level != "" {
		if err := lvl.Set(c.Level); err != nil {
			return fmt.Errorf("log level %q: %w", c.Level, err)
		}
	}
	levels.SetLevel(lvl)

	l := build(c)

	mu.Lock()
	old := sugar
	sugar = l.Sugar()
	mu.Unlock()
	_ = old.Sync()
	return nil
}

// Use installs an externally built logger, mostly for tests.
func Use(l *zap.Logger) {
	mu.Lock()
	sugar = l.WithOptions(zap.AddCallerSkip(1)).Sugar()
	mu.Unlock()
}

func get() *zap.SugaredLogger {
	mu.RLock()
	defer mu.RUnlock()
	return sugar
}

// Named returns a child logger carrying the given key/value pairs.
func Named(name string, kv ...interface{}) *zap.SugaredLogger {
	return get().Desugar().WithOptions(zap.AddCallerSkip(-1)).Sugar().Named(name).With(kv...)
}

func DebugEnabled() bool {
	return levels.Enabled(zapcore.DebugLevel)
}

func Sync() {
	_ = get().Sync()
}

func Errorf(format string, args ...interface{}) {
	get().Errorf(format, args...)
}

func Warnf(format string, args ...interface{}) {
	get().Warnf(format, args...)
}

func Debugf(format string, args ...interface{}) {
	get().Debugf(format, args...)
}

func Infof(format string, args ...interface{}) {
	get().Infof(format, args...)
}

func Info(args ...interface{}) {
	get().Info(args...)
}

func Error(args ...interface{}) {
	get().Error(args...)
}

func Debug(args ...interface{}) {
	get().Debug(args...)
}
