package logger

import (
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

type Logger struct {
	SugaredLogger *zap.SugaredLogger
}

// Options controls encoder and output. File enables a rotating log file in
// addition to stderr.
type Options struct {
	Mode       string
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

func New(opts Options) (*Logger, error) {
	var encCfg zapcore.EncoderConfig
	var enc zapcore.Encoder
	level := zap.NewAtomicLevelAt(zap.DebugLevel)
	switch strings.ToLower(opts.Mode) {
	case "prod", "production":
		encCfg = zap.NewProductionEncoderConfig()
		encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
		enc = zapcore.NewJSONEncoder(encCfg)
		level = zap.NewAtomicLevelAt(zap.InfoLevel)
	case "dev", "development", "":
		encCfg = zap.NewDevelopmentEncoderConfig()
		enc = zapcore.NewConsoleEncoder(encCfg)
	default:
		return nil, fmt.Errorf("unknown log mode %q", opts.Mode)
	}

	sinks := []zapcore.WriteSyncer{zapcore.Lock(os.Stderr)}
	if opts.File != "" {
		sinks = append(sinks, zapcore.AddSync(&lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    orDefault(opts.MaxSizeMB, 10),
			MaxBackups: orDefault(opts.MaxBackups, 3),
			MaxAge:     orDefault(opts.MaxAgeDays, 28),
			Compress:   true,
		}))
	}
	core := zapcore.NewCore(enc, zapcore.NewMultiWriteSyncer(sinks...), level)
	return &Logger{SugaredLogger: zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1)).Sugar()}, nil
}

// Nop discards everything.
func Nop() *Logger {
	return &Logger{SugaredLogger: zap.NewNop().Sugar()}
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

func (l *Logger) Sync() {
	_ = l.SugaredLogger.Sync()
}

func (l *Logger) Debug(msg string, keysAndValues ...interface{}) {
	l.SugaredLogger.Debugw(msg, sanitizeKVs(keysAndValues)...)
}
func (l *Logger) Info(msg string, keysAndValues ...interface{}) {
	l.SugaredLogger.Infow(msg, sanitizeKVs(keysAndValues)...)
}
func (l *Logger) Warn(msg string, keysAndValues ...interface{}) {
	l.SugaredLogger.Warnw(msg, sanitizeKVs(keysAndValues)...)
}
func (l *Logger) Error(msg string, keysAndValues ...interface{}) {
	l.SugaredLogger.Errorw(msg, sanitizeKVs(keysAndValues)...)
}
func (l *Logger) With(keysAndValues ...interface{}) *Logger {
	return &Logger{SugaredLogger: l.SugaredLogger.With(sanitizeKVs(keysAndValues)...)}
}

func sanitizeKVs(kv []interface{}) []interface{} {
	if len(kv) == 0 {
		return kv
	}
	out := make([]interface{}, 0, len(kv))
	for i := 0; i < len(kv); i += 2 {
		if i == len(kv)-1 {
			out = append(out, kv[i])
			break
		}
		key := fmt.Sprint(kv[i])
		if isRedactKey(strings.ToLower(key)) {
			out = append(out, key, "[REDACTED]")
			continue
		}
		out = append(out, key, kv[i+1])
	}
	return out
}

func isRedactKey(key string) bool {
	switch {
	case strings.Contains(key, "token"),
		strings.Contains(key, "authorization"),
		strings.Contains(key, "password"),
		strings.Contains(key, "secret"),
		strings.Contains(key, "api_key"),
		strings.Contains(key, "apikey"),
		strings.Contains(key, "email"):
		return true
	default:
		return false
	}
}
