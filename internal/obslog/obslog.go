package obslog

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// 전역 로거. 초기화 전에는 Nop.
var globalLogger *zap.Logger = zap.NewNop()

// L returns the process-wide logger.
func L() *zap.Logger { return globalLogger }

// Options controls logger construction. Zero value means console-only JSON at info.
type Options struct {
	Level     string // debug|info|warn|error
	Format    string // json|console
	Console   bool
	FilePath  string // empty disables file output
	AddCaller bool
}

// InitFromEnv initializes the global logger from LOG_* environment variables.
func InitFromEnv() error {
	return Init(Options{
		Level:     getenvDefault("LOG_LEVEL", "info"),
		Format:    strings.ToLower(strings.TrimSpace(getenvDefault("LOG_FORMAT", "json"))),
		Console:   strings.EqualFold(getenvDefault("LOG_TO_CONSOLE", "true"), "true"),
		FilePath:  fileFromEnv(),
		AddCaller: strings.EqualFold(getenvDefault("LOG_CALLER", "false"), "true"),
	})
}

// Init builds and installs the global logger.
func Init(opts Options) error {
	level := parseLevel(opts.Level)
	enc := encoderFor(opts.Format)

	var cores []zapcore.Core
	if opts.Console {
		cores = append(cores, zapcore.NewCore(enc, zapcore.AddSync(os.Stdout), level))
	}
	if strings.TrimSpace(opts.FilePath) != "" {
		if err := ensureDir(filepath.Dir(opts.FilePath)); err != nil {
			return err
		}
		f, err := os.OpenFile(opts.FilePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		cores = append(cores, zapcore.NewCore(encoderFor(opts.Format), zapcore.AddSync(f), level))
	}
	if len(cores) == 0 {
		cores = append(cores, zapcore.NewCore(enc, zapcore.AddSync(os.Stdout), level))
	}

	logger := zap.New(zapcore.NewTee(cores...))
	if opts.AddCaller {
		logger = logger.WithOptions(zap.AddCaller())
	}
	logger = logger.WithOptions(zap.AddStacktrace(zapcore.ErrorLevel))
	globalLogger = logger
	return nil
}

func fileFromEnv() string {
	if !strings.EqualFold(getenvDefault("LOG_TO_FILE", "false"), "true") {
		return ""
	}
	return strings.TrimSpace(getenvDefault("LOG_FILE", filepath.Join("logs", "playroom.log")))
}

func encoderFor(format string) zapcore.Encoder {
	switch format {
	case "console":
		cfg := zap.NewProductionEncoderConfig()
		cfg.EncodeTime = zapcore.ISO8601TimeEncoder
		cfg.EncodeLevel = zapcore.CapitalLevelEncoder
		return zapcore.NewConsoleEncoder(cfg)
	default:
		cfg := zap.NewProductionEncoderConfig()
		cfg.EncodeTime = zapcore.ISO8601TimeEncoder
		cfg.EncodeLevel = zapcore.LowercaseLevelEncoder
		return zapcore.NewJSONEncoder(cfg)
	}
}

func ensureDir(dir string) error {
	if strings.TrimSpace(dir) == "" || dir == "." {
		return nil
	}
	if _, err := os.Stat(dir); err == nil {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

func parseLevel(s string) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

func getenvDefault(k, def string) string {
	v := os.Getenv(k)
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}
