// Copyright 2024 AI Health Assistant Project
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config loads service configuration from an optional YAML file,
// a .env file and the environment.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/your-org/ai-health-assistant/internal/completion"
	"github.com/your-org/ai-health-assistant/internal/prompt"
	"github.com/your-org/ai-health-assistant/internal/records"
	"github.com/your-org/ai-health-assistant/internal/sanitize"
)

// EnvPrefix prefixes environment overrides, e.g. HEALTH_ASSISTANT_SERVER_PORT
const EnvPrefix = "HEALTH_ASSISTANT"

var (
	// ErrInvalidConfigValue is returned when a configuration value is invalid
	ErrInvalidConfigValue = errors.New("invalid configuration value")
)

// Config represents the complete application configuration
type Config struct {
	Server     ServerConfig      `mapstructure:"server"`
	Completion completion.Config `mapstructure:"completion"`
	Prompt     PromptConfig      `mapstructure:"prompt"`
	Sanitize   SanitizeConfig    `mapstructure:"sanitize"`
	Breaker    BreakerConfig     `mapstructure:"breaker"`
	Records    records.Config    `mapstructure:"records"`
	RateLimit  RateLimitConfig   `mapstructure:"rate_limit"`
	Logging    LoggingConfig     `mapstructure:"logging"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Mode            string        `mapstructure:"mode"`
	StaticDir       string        `mapstructure:"static_dir"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins"`
	TrustedProxies  []string      `mapstructure:"trusted_proxies"`
	HealthTimeout   time.Duration `mapstructure:"health_timeout"`
	MaxBodyBytes    int64         `mapstructure:"max_body_bytes"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// Address returns host:port for the listener
func (s ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// PromptConfig contains sampling parameters and the scheme table location
type PromptConfig struct {
	Chat        prompt.Sampling `mapstructure:"chat"`
	Analysis    prompt.Sampling `mapstructure:"analysis"`
	SchemesPath string          `mapstructure:"schemes_path"`
}

// Builder returns the prompt builder configuration
func (p PromptConfig) Builder() prompt.Config {
	return prompt.Config{Chat: p.Chat, Analysis: p.Analysis}
}

// SanitizeConfig bounds conversational replies
type SanitizeConfig struct {
	Chat sanitize.Limits `mapstructure:"chat"`
}

// BreakerConfig controls the circuit breaker around the completion service
type BreakerConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	MaxFailures  int           `mapstructure:"max_failures"`
	ResetTimeout time.Duration `mapstructure:"reset_timeout"`
}

// RateLimitConfig controls the per-client limiter on /api routes
type RateLimitConfig struct {
	Enabled           bool    `mapstructure:"enabled"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

// ValidationError represents a configuration validation error
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("configuration validation failed for field '%s': %s", e.Field, e.Message)
}

// Load reads configuration. A missing default config file is fine: every
// setting has a default and the completion credential is optional.
func Load(configPath string) (*Config, error) {
	// .env is optional
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	found, err := setConfigFile(v, configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to set config file: %w", err)
	}

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetEnvPrefix(EnvPrefix)

	if found {
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	setEnvironmentMappings(v)

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validateConfig(&config); err != nil {
		return nil, err
	}
	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "")
	v.SetDefault("server.port", 3000)
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.static_dir", "")
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("server.trusted_proxies", []string{})
	v.SetDefault("server.health_timeout", 5*time.Second)
	v.SetDefault("server.max_body_bytes", 15<<20)
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 60*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	// Completion defaults
	v.SetDefault("completion.api_key", "")
	v.SetDefault("completion.base_url", completion.DefaultBaseURL)
	v.SetDefault("completion.chat_model", completion.DefaultChatModel)
	v.SetDefault("completion.analysis_model", completion.DefaultAnalysisModel)
	v.SetDefault("completion.vision_model", completion.DefaultAnalysisModel)
	v.SetDefault("completion.timeout", completion.DefaultTimeout)

	// Prompt defaults
	defaults := prompt.DefaultConfig()
	v.SetDefault("prompt.chat.temperature", defaults.Chat.Temperature)
	v.SetDefault("prompt.chat.max_tokens", defaults.Chat.MaxTokens)
	v.SetDefault("prompt.chat.top_p", defaults.Chat.TopP)
	v.SetDefault("prompt.analysis.temperature", defaults.Analysis.Temperature)
	v.SetDefault("prompt.analysis.max_tokens", defaults.Analysis.MaxTokens)
	v.SetDefault("prompt.analysis.top_p", defaults.Analysis.TopP)
	v.SetDefault("prompt.schemes_path", "")

	// Sanitizer defaults
	v.SetDefault("sanitize.chat.max_sentences", sanitize.ChatLimits.MaxSentences)
	v.SetDefault("sanitize.chat.max_chars", sanitize.ChatLimits.MaxChars)

	// Circuit breaker defaults
	v.SetDefault("breaker.enabled", true)
	v.SetDefault("breaker.max_failures", 5)
	v.SetDefault("breaker.reset_timeout", 30*time.Second)

	// Records defaults
	v.SetDefault("records.storage_type", records.StorageTypeFile)
	v.SetDefault("records.file_path", "./data/records.jsonl")
	v.SetDefault("records.db_path", "./data/records.db")
	v.SetDefault("records.mongo_uri", "")
	v.SetDefault("records.mongo_database", records.DefaultMongoDatabase)
	v.SetDefault("records.mongo_collection", records.DefaultMongoCollection)
	v.SetDefault("records.queue_size", records.DefaultQueueSize)
	v.SetDefault("records.write_timeout", records.DefaultWriteTimeout)

	// Rate limit defaults
	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.requests_per_second", 2.0)
	v.SetDefault("rate_limit.burst", 10)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")
}

// setConfigFile points viper at the config file. It reports whether a file
// was found; only an explicitly requested file must exist.
func setConfigFile(v *viper.Viper, configPath string) (bool, error) {
	if envPath := os.Getenv("CONFIG_PATH"); envPath != "" {
		configPath = envPath
	}

	if configPath != "" {
		if _, err := os.Stat(configPath); err != nil {
			return false, fmt.Errorf("config file does not exist: %s", configPath)
		}
		v.SetConfigFile(configPath)
		return true, nil
	}

	for _, path := range []string{"./configs/config.yaml", "./config.yaml"} {
		if _, err := os.Stat(path); err == nil {
			v.SetConfigFile(path)
			return true, nil
		}
	}
	return false, nil
}

// setEnvironmentMappings maps the conventional unprefixed variables
func setEnvironmentMappings(v *viper.Viper) {
	envMappings := []struct {
		envVar    string
		configKey string
	}{
		{"COMPLETION_API_KEY", "completion.api_key"},
		{"GEMINI_API_KEY", "completion.api_key"},
		{"COMPLETION_BASE_URL", "completion.base_url"},
		{"PORT", "server.port"},
		{"STATIC_DIR", "server.static_dir"},
		{"MONGODB_URI", "records.mongo_uri"},
		{"RECORDS_STORAGE_TYPE", "records.storage_type"},
		{"LOG_LEVEL", "logging.level"},
		{"LOG_FORMAT", "logging.format"},
		{"LOG_OUTPUT", "logging.output"},
	}

	// later entries win, so GEMINI_API_KEY beats COMPLETION_API_KEY
	for _, m := range envMappings {
		if value := os.Getenv(m.envVar); value != "" {
			v.Set(m.configKey, value)
		}
	}
}

// validateConfig collects every invalid value into one error
func validateConfig(config *Config) error {
	var errs []ValidationError
	add := func(field, message string) {
		errs = append(errs, ValidationError{Field: field, Message: message})
	}

	if config.Server.Port <= 0 || config.Server.Port > 65535 {
		add("server.port", "port must be between 1 and 65535")
	}
	if !contains([]string{"debug", "release", "test"}, config.Server.Mode) {
		add("server.mode", "mode must be one of: debug, release, test")
	}
	for _, proxy := range config.Server.TrustedProxies {
		if !validProxy(proxy) {
			add("server.trusted_proxies", fmt.Sprintf("%q is not an IP address or CIDR", proxy))
		}
	}
	if config.Server.HealthTimeout <= 0 {
		add("server.health_timeout", "health_timeout must be greater than 0")
	}

	if config.Completion.Timeout <= 0 {
		add("completion.timeout", "timeout must be greater than 0")
	}
	if config.Completion.BaseURL == "" {
		add("completion.base_url", "base_url is required")
	}

	for name, s := range map[string]prompt.Sampling{"prompt.chat": config.Prompt.Chat, "prompt.analysis": config.Prompt.Analysis} {
		if s.MaxTokens <= 0 {
			add(name+".max_tokens", "max_tokens must be greater than 0")
		}
		if s.Temperature < 0 || s.Temperature > 2 {
			add(name+".temperature", "temperature must be between 0 and 2")
		}
		if s.TopP <= 0 || s.TopP > 1 {
			add(name+".top_p", "top_p must be in (0, 1]")
		}
	}

	if config.Sanitize.Chat.MaxSentences < 0 || config.Sanitize.Chat.MaxChars < 0 {
		add("sanitize.chat", "limits must not be negative")
	}

	if config.Breaker.Enabled {
		if config.Breaker.MaxFailures <= 0 {
			add("breaker.max_failures", "max_failures must be greater than 0")
		}
		if config.Breaker.ResetTimeout <= 0 {
			add("breaker.reset_timeout", "reset_timeout must be greater than 0")
		}
	}

	validStorageTypes := []string{records.StorageTypeNone, records.StorageTypeFile, records.StorageTypeSQLite, records.StorageTypeMongo}
	switch {
	case !contains(validStorageTypes, config.Records.StorageType):
		add("records.storage_type", fmt.Sprintf("storage type must be one of: %s", strings.Join(validStorageTypes, ", ")))
	case config.Records.StorageType == records.StorageTypeMongo && config.Records.MongoURI == "":
		add("records.mongo_uri", "mongo_uri is required for mongo storage. Set via config file or MONGODB_URI environment variable")
	case config.Records.StorageType == records.StorageTypeFile && config.Records.FilePath == "":
		add("records.file_path", "file_path is required for file storage")
	case config.Records.StorageType == records.StorageTypeSQLite && config.Records.DBPath == "":
		add("records.db_path", "db_path is required for sqlite storage")
	}

	if config.RateLimit.Enabled {
		if config.RateLimit.RequestsPerSecond <= 0 {
			add("rate_limit.requests_per_second", "requests_per_second must be greater than 0")
		}
		if config.RateLimit.Burst <= 0 {
			add("rate_limit.burst", "burst must be greater than 0")
		}
	}

	validLogLevels := []string{"debug", "info", "warn", "error"}
	if !contains(validLogLevels, config.Logging.Level) {
		add("logging.level", fmt.Sprintf("log level must be one of: %s", strings.Join(validLogLevels, ", ")))
	}
	validLogFormats := []string{"json", "text"}
	if !contains(validLogFormats, config.Logging.Format) {
		add("logging.format", fmt.Sprintf("log format must be one of: %s", strings.Join(validLogFormats, ", ")))
	}

	if len(errs) == 0 {
		return nil
	}
	messages := make([]string, 0, len(errs))
	for _, err := range errs {
		messages = append(messages, err.Error())
	}
	return fmt.Errorf("%w:\n%s", ErrInvalidConfigValue, strings.Join(messages, "\n"))
}

// MaskSensitiveValues returns a copy of the config with secrets masked
func (c *Config) MaskSensitiveValues() *Config {
	masked := *c
	if masked.Completion.APIKey != "" {
		masked.Completion.APIKey = maskValue(masked.Completion.APIKey)
	}
	if masked.Records.MongoURI != "" {
		masked.Records.MongoURI = maskValue(masked.Records.MongoURI)
	}
	return &masked
}

// maskValue masks sensitive values, showing only the first 4 characters
func maskValue(value string) string {
	if len(value) <= 8 {
		return strings.Repeat("*", len(value))
	}
	return value[:4] + strings.Repeat("*", len(value)-4)
}

func validProxy(proxy string) bool {
	if net.ParseIP(proxy) != nil {
		return true
	}
	_, _, err := net.ParseCIDR(proxy)
	return err == nil
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}

// WatchConfig reloads the config file on change and passes every valid new
// config to callback. It fails when there is no file to watch.
func WatchConfig(configPath string, logger *zap.Logger, callback func(*Config)) error {
	v := viper.New()

	found, err := setConfigFile(v, configPath)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("no config file to watch")
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		logger.Info("Config file changed", zap.String("file", e.Name), zap.String("op", e.Op.String()))

		config, err := Load(configPath)
		if err != nil {
			logger.Error("Failed to reload config", zap.Error(err))
			return
		}
		callback(config)
	})
	v.WatchConfig()

	return nil
}
