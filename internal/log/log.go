package log

import (
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Level string

const (
	LevelDebug Level = "DEBUG"
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARN"
	LevelError Level = "ERROR"
)

var (
	mu         sync.RWMutex
	base       *zap.Logger
	sugar      *zap.SugaredLogger
	atomicLvl  = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	loggerOnce sync.Once
)

// initLogger installs a console logger on first use so that packages can log
// before main has called Init (and tests never need to).
func initLogger() {
	loggerOnce.Do(func() {
		mu.Lock()
		defer mu.Unlock()
		if base != nil {
			return
		}
		cfg := zap.NewDevelopmentConfig()
		cfg.Level = atomicLvl
		l, err := cfg.Build(zap.AddCallerSkip(2))
		if err != nil {
			l = zap.NewNop()
		}
		base = l
		sugar = l.Sugar()
	})
}

// Init builds the process logger.
//
// format "json" selects zap's production encoder with ISO8601 timestamps on
// stdout; anything else selects the human readable console encoder.
func Init(level, format string) error {
	atomicLvl.SetLevel(toZapLevel(ParseLevel(level)))

	var cfg zap.Config
	if format == "json" {
		cfg = zap.NewProductionConfig()
		cfg.EncoderConfig.TimeKey = "timestamp"
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		cfg.OutputPaths = []string{"stdout"}
		cfg.ErrorOutputPaths = []string{"stderr"}
	} else {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = atomicLvl

	l, err := cfg.Build(zap.AddCallerSkip(2))
	if err != nil {
		return err
	}
	Replace(l.With(zap.String("service_name", "sleepalarm")))
	return nil
}

// Replace swaps the underlying zap logger. Tests use it with zap.NewNop or
// an observer core.
func Replace(l *zap.Logger) {
	loggerOnce.Do(func() {})
	mu.Lock()
	defer mu.Unlock()
	base = l
	sugar = l.Sugar()
}

// Logger returns the underlying zap logger for components that take one
// injected (store, notify).
func Logger() *zap.Logger {
	initLogger()
	mu.RLock()
	defer mu.RUnlock()
	// base skips the facade frames; direct callers need their own.
	return base.WithOptions(zap.AddCallerSkip(-2))
}

// Sync flushes buffered entries.
func Sync() {
	initLogger()
	mu.RLock()
	defer mu.RUnlock()
	_ = base.Sync()
}

func SetLevel(l Level) {
	initLogger()
	atomicLvl.SetLevel(toZapLevel(l))
}

// ParseLevel maps config strings ("debug", "info", ...) to a Level.
// Unknown values fall back to INFO.
func ParseLevel(s string) Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return LevelDebug
	case "WARN", "WARNING":
		return LevelWarn
	case "ERROR":
		return LevelError
	default:
		return LevelInfo
	}
}

func Debug(msg string, kv ...any) {
	logWithLevel(LevelDebug, msg, kv...)
}

func Info(msg string, kv ...any) {
	logWithLevel(LevelInfo, msg, kv...)
}

func Warn(msg string, kv ...any) {
	logWithLevel(LevelWarn, msg, kv...)
}

func Error(msg string, err error, kv ...any) {
	// Prepend error into key-value list.
	extended := append([]any{"err", err}, kv...)
	logWithLevel(LevelError, msg, extended...)
}

func logWithLevel(level Level, msg string, kv ...any) {
	initLogger()
	mu.RLock()
	s := sugar
	mu.RUnlock()

	// Odd trailing keys are dropped, matching the old line formatter.
	if len(kv)%2 == 1 {
		kv = kv[:len(kv)-1]
	}

	switch level {
	case LevelDebug:
		s.Debugw(msg, kv...)
	case LevelWarn:
		s.Warnw(msg, kv...)
	case LevelError:
		s.Errorw(msg, kv...)
	default:
		s.Infow(msg, kv...)
	}
}

func toZapLevel(l Level) zapcore.Level {
	switch l {
	case LevelDebug:
		return zapcore.DebugLevel
	case LevelWarn:
		return zapcore.WarnLevel
	case LevelError:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}
