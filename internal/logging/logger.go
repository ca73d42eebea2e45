// Package logging builds the service's logrus logger and keeps demographic values out of log output.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/pds-match-service/internal/domain"
)

// Redacted replaces the value of a sensitive field.
const Redacted = "[REDACTED]"

const maxValueLength = 1000

// sensitivePatterns match field keys whose values are personal data or credentials.
var sensitivePatterns = []string{
	"given", "family", "name", "birth", "gender", "postcode", "postal", "address",
	"phone", "email", "demographics", "password", "token", "secret", "api_key", "apikey",
}

// New creates a logger from the logging configuration. Output is "stdout", "stderr" or a file path.
func New(config domain.LoggingConfig) (*logrus.Logger, error) {
	logger := logrus.New()

	level, err := logrus.ParseLevel(config.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	if config.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: time.RFC3339Nano,
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime:  "timestamp",
				logrus.FieldKeyLevel: "level",
				logrus.FieldKeyMsg:   "message",
			},
		})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{
			TimestampFormat: time.RFC3339,
			FullTimestamp:   true,
		})
	}

	out, err := openOutput(config.Output)
	if err != nil {
		return nil, err
	}
	logger.SetOutput(out)

	if config.RedactPII {
		logger.AddHook(NewRedactionHook())
	}

	return logger, nil
}

func openOutput(output string) (io.Writer, error) {
	switch strings.ToLower(output) {
	case "", "stdout":
		return os.Stdout, nil
	case "stderr":
		return os.Stderr, nil
	default:
		f, err := os.OpenFile(output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640)
		if err != nil {
			return nil, fmt.Errorf("failed to open log output %s: %w", output, err)
		}
		return f, nil
	}
}

// RedactFields returns a copy of fields with sensitive values masked and long values truncated.
func RedactFields(fields logrus.Fields) logrus.Fields {
	redacted := make(logrus.Fields, len(fields))
	for k, v := range fields {
		redacted[k] = redactValue(k, v)
	}
	return redacted
}

// IsSensitiveKey reports whether a field key names personal data or a credential.
func IsSensitiveKey(key string) bool {
	lowerKey := strings.ToLower(key)
	for _, pattern := range sensitivePatterns {
		if strings.Contains(lowerKey, pattern) {
			return true
		}
	}
	return false
}

func redactValue(key string, value interface{}) interface{} {
	if IsSensitiveKey(key) {
		return Redacted
	}
	if str, ok := value.(string); ok && len(str) > maxValueLength {
		return str[:maxValueLength] + "... [TRUNCATED]"
	}
	return value
}

// RedactionHook masks sensitive fields on every entry before it is formatted.
type RedactionHook struct{}

// NewRedactionHook creates a redaction hook
func NewRedactionHook() *RedactionHook {
	return &RedactionHook{}
}

// Levels implements logrus.Hook
func (h *RedactionHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

// Fire implements logrus.Hook
func (h *RedactionHook) Fire(entry *logrus.Entry) error {
	for k, v := range entry.Data {
		entry.Data[k] = redactValue(k, v)
	}
	return nil
}
