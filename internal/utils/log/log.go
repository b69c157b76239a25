package log

import (
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type (
	Config struct {
		Development bool
		Level       string
	}
)

var (
	mu     sync.RWMutex
	logger = newDefault()
)

func newDefault() *zap.Logger {
	l, err := build(zap.NewProductionConfig())
	if err != nil {
		return zap.NewNop()
	}
	return l
}

// build skips this package's wrappers so entries carry the real call site.
func build(zcfg zap.Config) (*zap.Logger, error) {
	return zcfg.Build(zap.AddCallerSkip(1))
}

// Init replaces the process-wide logger.
func Init(cfg Config) error {
	var zcfg zap.Config
	if cfg.Development {
		zcfg = zap.NewDevelopmentConfig()
	} else {
		zcfg = zap.NewProductionConfig()
	}

	if cfg.Level != "" {
		lvl, err := zapcore.ParseLevel(cfg.Level)
		if err != nil {
			return err
		}
		zcfg.Level = zap.NewAtomicLevelAt(lvl)
	}

	l, err := build(zcfg)
	if err != nil {
		return err
	}

	Set(l)
	return nil
}

// Set swaps the logger, tests use it with zaptest or zap.NewNop.
func Set(l *zap.Logger) {
	mu.Lock()
	defer mu.Unlock()
	logger = l
}

func L() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return logger
}

func Debug(msg string, fields ...zap.Field) { L().Debug(msg, fields...) }

func Info(msg string, fields ...zap.Field) { L().Info(msg, fields...) }

func Warn(msg string, fields ...zap.Field) { L().Warn(msg, fields...) }

func Error(msg string, fields ...zap.Field) { L().Error(msg, fields...) }

func Fatal(msg string, fields ...zap.Field) { L().Fatal(msg, fields...) }

func Sync() error { return L().Sync() }
