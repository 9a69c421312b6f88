package logger

import (
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	// FieldProvider names the remote service a component talks to.
	FieldProvider = "provider"
	// FieldModel names the model served by the provider.
	FieldModel = "model"
)

// StringField is a string-valued structured logging field.
type StringField struct {
	Key   string
	Value string
}

// StringFields converts key/value pairs into zap fields, trimming whitespace
// and dropping entries with an empty key or value.
func StringFields(fields ...StringField) []zap.Field {
	result := make([]zap.Field, 0, len(fields))
	for _, field := range fields {
		key := strings.TrimSpace(field.Key)
		value := strings.TrimSpace(field.Value)
		if key == "" || value == "" {
			continue
		}

		result = append(result, zap.String(key, value))
	}

	return result
}

// WithFields attaches fields to logger. A nil logger becomes a no-op one.
func WithFields(logger *zap.Logger, fields ...zap.Field) *zap.Logger {
	if logger == nil {
		logger = zap.NewNop()
	}

	if len(fields) == 0 {
		return logger
	}

	return logger.With(fields...)
}

// ProviderFields describes a remote provider and model. Empty values are skipped.
func ProviderFields(provider, model string) []zap.Field {
	return StringFields(
		StringField{Key: FieldProvider, Value: provider},
		StringField{Key: FieldModel, Value: model},
	)
}

// WithProvider attaches the provider fields to logger.
func WithProvider(logger *zap.Logger, provider, model string) *zap.Logger {
	return WithFields(logger, ProviderFields(provider, model)...)
}

// WaitProgress returns a sleep progress callback that logs at debug level.
func WaitProgress(logger *zap.Logger) func(label string, remaining time.Duration) {
	logger = WithFields(logger)
	return func(label string, remaining time.Duration) {
		logger.Debug("waiting",
			zap.String("reason", label),
			zap.Duration("remaining", remaining.Round(time.Second)),
		)
	}
}
