package logging

import (
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"adjusterhub/internal/apperr"
	"adjusterhub/internal/config"
)

func New(cfg config.LogConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(strings.ToLower(strings.TrimSpace(cfg.Level)))
	if err != nil {
		return nil, fmt.Errorf("parse log level failed: %w", err)
	}

	var zcfg zap.Config
	if cfg.Format == "json" {
		zcfg = zap.NewProductionConfig()
	} else {
		zcfg = zap.NewDevelopmentConfig()
		zcfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	zcfg.Level = zap.NewAtomicLevelAt(level)
	zcfg.EncoderConfig.TimeKey = "ts"
	zcfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := zcfg.Build()
	if err != nil {
		return nil, fmt.Errorf("build logger failed: %w", err)
	}
	return logger, nil
}

// LogError writes err at a level chosen by its classified severity. Client faults stay
// out of the error stream; server faults carry the underlying cause.
func LogError(log *zap.Logger, err error, fields ...zap.Field) {
	if log == nil || err == nil {
		return
	}
	classified := apperr.Classify(err)
	fields = append(fields,
		zap.String("kind", string(classified.Kind)),
		zap.Int("code", classified.Code),
	)

	switch classified.Severity() {
	case apperr.SeverityLow:
		log.Info(classified.Message, fields...)
	case apperr.SeverityMedium:
		log.Warn(classified.Message, fields...)
	default:
		cause := classified.Cause
		if cause == nil {
			cause = errors.New(classified.Message)
		}
		log.Error(classified.Message, append(fields, zap.Error(cause))...)
	}
}
