// Package engine wires the collection, analysis, alerting, and
// remediation components into the long-running daemon.
package engine

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/ftahirops/sqlsentinel/config"
)

// NewLogger builds the process logger: JSON to a rotating file when one
// is configured, console encoding to stderr otherwise.
func NewLogger(cfg config.LoggingConfig) *zap.Logger {
	level := zapcore.InfoLevel
	_ = level.Set(cfg.Level)

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "ts"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var core zapcore.Core
	if cfg.File != "" {
		sink := zapcore.AddSync(&lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			Compress:   true,
		})
		core = zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), sink, level)
	} else {
		core = zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), zapcore.AddSync(os.Stderr), level)
	}
	return zap.New(core)
}
