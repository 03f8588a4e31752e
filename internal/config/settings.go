package config

import (
	"strings"

	"github.com/spf13/cast"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// Settings is a key-based lookup over the loaded configuration with typed accessors.
// Absent keys and unparsable values yield the caller's default.
type Settings struct {
	source *viper.Viper
	logger *zap.Logger
}

// NewSettings wraps the viper instance holding the merged configuration.
func NewSettings(source *viper.Viper, logger *zap.Logger) *Settings {
	if source == nil {
		source = viper.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Settings{source: source, logger: logger}
}

// Lookup returns the raw string value and whether the key is set.
func (s *Settings) Lookup(key string) (string, bool) {
	normalized := normalizeKey(key)
	if normalized == "" || !s.source.IsSet(normalized) {
		return "", false
	}
	value, err := cast.ToStringE(s.source.Get(normalized))
	if err != nil {
		s.logger.Warn("setting is not representable as text", zap.String("key", normalized), zap.Error(err))
		return "", false
	}
	return value, true
}

// GetString returns the value for key, or defaultValue when absent or empty.
func (s *Settings) GetString(key, defaultValue string) string {
	value, ok := s.Lookup(key)
	if !ok || value == "" {
		return defaultValue
	}
	return value
}

// GetInt returns the integer value for key, or defaultValue when absent or unparsable.
func (s *Settings) GetInt(key string, defaultValue int) int {
	value, ok := s.Lookup(key)
	if !ok || value == "" {
		return defaultValue
	}
	parsed, err := cast.ToIntE(strings.TrimSpace(value))
	if err != nil {
		s.logger.Warn("setting is not an integer", zap.String("key", normalizeKey(key)), zap.Error(err))
		return defaultValue
	}
	return parsed
}

// GetBool returns the boolean value for key, or defaultValue when absent or unparsable.
func (s *Settings) GetBool(key string, defaultValue bool) bool {
	value, ok := s.Lookup(key)
	if !ok || value == "" {
		return defaultValue
	}
	parsed, err := cast.ToBoolE(strings.TrimSpace(value))
	if err != nil {
		s.logger.Warn("setting is not a boolean", zap.String("key", normalizeKey(key)), zap.Error(err))
		return defaultValue
	}
	return parsed
}

func normalizeKey(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}
