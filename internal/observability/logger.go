// File: internal/observability/logger.go
package observability

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/xkilldash9x/nafauto/internal/config"
)

var (
	globalLogger atomic.Pointer[zap.Logger]
	once         sync.Once
)

const colorReset = "\x1b[0m"

// palette holds the colors a level may be configured with.
var palette = map[string]string{
	"red":     "\x1b[31m",
	"green":   "\x1b[32m",
	"yellow":  "\x1b[33m",
	"magenta": "\x1b[35m",
	"cyan":    "\x1b[36m",
}

const timeLayout = "2006-01-02T15:04:05.000Z07:00"

// Initialize sets up the global logger. Console output goes to consoleWriter;
// when LogFile is set, JSON lines also go to a rotated file so a batch can be
// reconciled against the database afterwards.
func Initialize(cfg config.LoggerConfig, consoleWriter zapcore.WriteSyncer) {
	once.Do(func() {
		level := zap.NewAtomicLevel()
		if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
			level.SetLevel(zap.InfoLevel)
		}

		console := jsonEncoder()
		if cfg.Format == "console" {
			console = consoleEncoder(cfg.Colors)
		}
		cores := []zapcore.Core{zapcore.NewCore(console, consoleWriter, level)}

		if cfg.LogFile != "" {
			rotated := &lumberjack.Logger{
				Filename:   cfg.LogFile,
				MaxSize:    cfg.MaxSize,
				MaxBackups: cfg.MaxBackups,
				MaxAge:     cfg.MaxAge,
				Compress:   cfg.Compress,
			}
			cores = append(cores, zapcore.NewCore(jsonEncoder(), zapcore.AddSync(rotated), level))
		}

		options := []zap.Option{zap.AddStacktrace(zap.ErrorLevel)}
		if cfg.AddSource {
			options = append(options, zap.AddCaller())
		}

		logger := zap.New(zapcore.NewTee(cores...), options...).Named(cfg.ServiceName)
		globalLogger.Store(logger)
		zap.ReplaceGlobals(logger)
		zap.RedirectStdLog(logger)
	})
}

// InitializeLogger initializes the global logger on stdout.
func InitializeLogger(cfg config.LoggerConfig) {
	Initialize(cfg, zapcore.Lock(os.Stdout))
}

// ResetForTest clears the global logger so Initialize can run again. Tests only.
func ResetForTest() {
	globalLogger.Store(nil)
	once = sync.Once{}
}

func baseEncoderConfig() zapcore.EncoderConfig {
	ec := zap.NewProductionEncoderConfig()
	ec.EncodeTime = zapcore.TimeEncoderOfLayout(timeLayout)
	// Timeouts and jitter show up in logs as "1.5s", not nanoseconds.
	ec.EncodeDuration = zapcore.StringDurationEncoder
	return ec
}

func jsonEncoder() zapcore.Encoder {
	ec := baseEncoderConfig()
	ec.EncodeLevel = zapcore.CapitalLevelEncoder
	return zapcore.NewJSONEncoder(ec)
}

// consoleEncoder prints one colored line per entry with the logger name as a prefix.
func consoleEncoder(colors config.ColorConfig) zapcore.Encoder {
	ec := baseEncoderConfig()
	ec.EncodeLevel = levelEncoder(levelColors(colors))
	ec.EncodeName = func(name string, enc zapcore.PrimitiveArrayEncoder) {
		enc.AppendString(name + ".")
	}
	return zapcore.NewConsoleEncoder(ec)
}

// levelColors resolves the configured color names. Unknown names leave the level plain.
func levelColors(c config.ColorConfig) map[zapcore.Level]string {
	named := map[zapcore.Level]string{
		zapcore.DebugLevel:  c.Debug,
		zapcore.InfoLevel:   c.Info,
		zapcore.WarnLevel:   c.Warn,
		zapcore.ErrorLevel:  c.Error,
		zapcore.DPanicLevel: c.DPanic,
		zapcore.PanicLevel:  c.Panic,
		zapcore.FatalLevel:  c.Fatal,
	}
	resolved := make(map[zapcore.Level]string, len(named))
	for lvl, name := range named {
		if code, ok := palette[strings.ToLower(name)]; ok {
			resolved[lvl] = code
		}
	}
	return resolved
}

func levelEncoder(colors map[zapcore.Level]string) zapcore.LevelEncoder {
	return func(l zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
		text := l.CapitalString()
		if code, ok := colors[l]; ok {
			text = code + text + colorReset
		}
		enc.AppendString(text)
	}
}

// GetLogger returns the global logger, or a development logger if Initialize
// has not run yet.
func GetLogger() *zap.Logger {
	if logger := globalLogger.Load(); logger != nil {
		return logger
	}
	l, err := zap.NewDevelopment()
	if err != nil {
		return zap.NewNop()
	}
	l.Warn("Global logger requested before initialization; using fallback.")
	return l.Named("fallback")
}

// Sync flushes buffered entries. Call it before exiting.
func Sync() {
	logger := globalLogger.Load()
	if logger == nil {
		return
	}
	if err := logger.Sync(); err != nil && !terminalSyncError(err) {
		fmt.Fprintln(os.Stderr, "Error: failed to sync logger:", err)
	}
}

// terminalSyncError reports errors from fsync on a terminal or pipe, which
// several platforms refuse.
func terminalSyncError(err error) bool {
	msg := err.Error()
	for _, s := range []string{"sync /dev/stdout", "invalid argument", "operation not supported", "inappropriate ioctl"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}
