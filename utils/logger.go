package utils

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gorm.io/gorm/logger"
)

func levelFromString(l string) zapcore.Level {
	switch l {
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

// NewLogger builds the process logger: console output in dev, JSON otherwise.
func NewLogger(level string, dev bool) (*zap.Logger, error) {
	if level == "" && dev {
		level = "debug"
	}
	lvl := levelFromString(level)
	if dev {
		c := zap.NewDevelopmentConfig()
		c.Level = zap.NewAtomicLevelAt(lvl)
		return c.Build()
	}

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	core := zapcore.NewCore(zapcore.NewJSONEncoder(encoderCfg), zapcore.AddSync(os.Stdout), lvl)
	return zap.New(core, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel)), nil
}

// GormLogLevel maps the service log level onto GORM's SQL logging.
func GormLogLevel(level string) logger.LogLevel {
	switch levelFromString(level) {
	case zapcore.DebugLevel:
		return logger.Info
	case zapcore.InfoLevel, zapcore.WarnLevel:
		return logger.Warn
	default:
		return logger.Error
	}
}
