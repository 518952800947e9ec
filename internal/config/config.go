// Package config handles configuration and credential management for agentchat.
package config

import (
	"encoding/json"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

const (
	// EnvPrefix prefixes every environment override, e.g. AGENTCHAT_BASE_URL
	EnvPrefix = "AGENTCHAT"
	// EnvHome relocates the configuration directory
	EnvHome = "AGENTCHAT_HOME"

	TransportSSE       = "sse"
	TransportWebSocket = "websocket"
)

// LogConfig configures the logger
type LogConfig struct {
	Level  string `mapstructure:"level" json:"level"`   // trace, debug, info, warn, error
	Format string `mapstructure:"format" json:"format"` // console or json
}

// ArchiveConfig configures the local transcript archive
type ArchiveConfig struct {
	Enabled bool   `mapstructure:"enabled" json:"enabled"`
	Dir     string `mapstructure:"dir" json:"dir,omitempty"`
}

// MarkdownConfig configures markdown rendering options
type MarkdownConfig struct {
	Style            string `mapstructure:"style" json:"style"` // "dark", "light", or path to JSON theme
	Width            int    `mapstructure:"width" json:"width"`
	EnableEmoji      bool   `mapstructure:"enable_emoji" json:"enable_emoji"`
	PreserveNewLines bool   `mapstructure:"preserve_newlines" json:"preserve_newlines"`
}

// Config represents the user configuration
type Config struct {
	BaseURL       string `mapstructure:"base_url" json:"base_url"`
	StreamPath    string `mapstructure:"stream_path" json:"stream_path"`
	Transport     string `mapstructure:"transport" json:"transport"`
	WebSocketPath string `mapstructure:"websocket_path" json:"websocket_path"`
	// TimeoutSeconds bounds every non-streaming request
	TimeoutSeconds    int            `mapstructure:"timeout_seconds" json:"timeout_seconds"`
	PageSize          int            `mapstructure:"page_size" json:"page_size"`
	ConversationLimit int            `mapstructure:"conversation_limit" json:"conversation_limit"`
	CopyToClipboard   bool           `mapstructure:"copy_to_clipboard" json:"copy_to_clipboard"`
	Log               LogConfig      `mapstructure:"log" json:"log"`
	Archive           ArchiveConfig  `mapstructure:"archive" json:"archive"`
	Markdown          MarkdownConfig `mapstructure:"markdown" json:"markdown"`
}

// DefaultMarkdownConfig returns the default markdown configuration
func DefaultMarkdownConfig() MarkdownConfig {
	return MarkdownConfig{
		Style:            "dark",
		Width:            80,
		EnableEmoji:      true,
		PreserveNewLines: true,
	}
}

// DefaultConfig returns the default configuration
func DefaultConfig() Config {
	return Config{
		BaseURL:           "http://localhost:8080",
		StreamPath:        "/api/doChatWithManus",
		Transport:         TransportSSE,
		WebSocketPath:     "/ws/chat",
		TimeoutSeconds:    20,
		PageSize:          50,
		ConversationLimit: 20,
		CopyToClipboard:   false,
		Log:               LogConfig{Level: "info", Format: "console"},
		Archive:           ArchiveConfig{Enabled: true},
		Markdown:          DefaultMarkdownConfig(),
	}
}

// Timeout returns the request timeout as a duration
func (c Config) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// Validate checks values that would otherwise fail late
func (c Config) Validate() error {
	if strings.TrimSpace(c.BaseURL) == "" {
		return errors.New("base_url must not be empty")
	}
	switch c.Transport {
	case TransportSSE, TransportWebSocket:
	default:
		return errors.Errorf("unknown transport %q (want %s or %s)", c.Transport, TransportSSE, TransportWebSocket)
	}
	if c.TimeoutSeconds <= 0 {
		return errors.New("timeout_seconds must be positive")
	}
	if c.PageSize <= 0 {
		return errors.New("page_size must be positive")
	}
	return nil
}

// GetConfigDir returns the configuration directory path
func GetConfigDir() (string, error) {
	if dir := os.Getenv(EnvHome); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", errors.Wrap(err, "failed to get home directory")
	}
	return filepath.Join(home, ".agentchat"), nil
}

// EnsureConfigDir creates the configuration directory if it doesn't exist
func EnsureConfigDir() (string, error) {
	configDir, err := GetConfigDir()
	if err != nil {
		return "", err
	}

	// Use 0o700 for sensitive directories (contains credentials)
	if err := os.MkdirAll(configDir, 0o700); err != nil {
		return "", errors.Wrap(err, "failed to create config directory")
	}
	return configDir, nil
}

// GetConfigPath returns the path to the config file
func GetConfigPath() (string, error) {
	configDir, err := GetConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, "config.json"), nil
}

// GetCredentialsPath returns the path to the credentials file
func GetCredentialsPath() (string, error) {
	configDir, err := GetConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, "credentials.json"), nil
}

// GetArchiveDir returns the archive root from config, defaulting to the
// configuration directory.
func GetArchiveDir(cfg Config) (string, error) {
	if cfg.Archive.Dir != "" {
		return expandHome(cfg.Archive.Dir)
	}
	return GetConfigDir()
}

func expandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", errors.Wrap(err, "failed to get home directory")
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}

func setDefaults(v *viper.Viper) {
	d := DefaultConfig()
	v.SetDefault("base_url", d.BaseURL)
	v.SetDefault("stream_path", d.StreamPath)
	v.SetDefault("transport", d.Transport)
	v.SetDefault("websocket_path", d.WebSocketPath)
	v.SetDefault("timeout_seconds", d.TimeoutSeconds)
	v.SetDefault("page_size", d.PageSize)
	v.SetDefault("conversation_limit", d.ConversationLimit)
	v.SetDefault("copy_to_clipboard", d.CopyToClipboard)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
	v.SetDefault("archive.enabled", d.Archive.Enabled)
	v.SetDefault("archive.dir", d.Archive.Dir)
	v.SetDefault("markdown.style", d.Markdown.Style)
	v.SetDefault("markdown.width", d.Markdown.Width)
	v.SetDefault("markdown.enable_emoji", d.Markdown.EnableEmoji)
	v.SetDefault("markdown.preserve_newlines", d.Markdown.PreserveNewLines)
}

// LoadConfig loads the configuration from configPath, or from config.json
// in the configuration directory when configPath is empty. Environment
// variables (AGENTCHAT_BASE_URL, AGENTCHAT_LOG_LEVEL, ...) override the file.
// A missing file is not an error.
func LoadConfig(configPath string) (Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath == "" {
		var err error
		if configPath, err = GetConfigPath(); err != nil {
			return DefaultConfig(), err
		}
	}
	v.SetConfigFile(configPath)
	v.SetConfigType("json")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return DefaultConfig(), errors.Wrap(err, "failed to read config file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return DefaultConfig(), errors.Wrap(err, "failed to parse config file")
	}
	return cfg, nil
}

// SaveConfig saves the configuration to disk
func SaveConfig(cfg Config) error {
	configDir, err := EnsureConfigDir()
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to marshal config")
	}

	configPath := filepath.Join(configDir, "config.json")
	if err := os.WriteFile(configPath, data, 0o600); err != nil {
		return errors.Wrap(err, "failed to write config file")
	}
	return nil
}

// Keys lists the settable configuration keys in display order
func Keys() []string {
	return []string{
		"base_url", "stream_path", "transport", "websocket_path",
		"timeout_seconds", "page_size", "conversation_limit", "copy_to_clipboard",
		"log.level", "log.format", "archive.enabled", "archive.dir",
		"markdown.style", "markdown.width",
	}
}

// Get returns the string form of key
func Get(cfg Config, key string) (string, error) {
	switch key {
	case "base_url":
		return cfg.BaseURL, nil
	case "stream_path":
		return cfg.StreamPath, nil
	case "transport":
		return cfg.Transport, nil
	case "websocket_path":
		return cfg.WebSocketPath, nil
	case "timeout_seconds":
		return strconv.Itoa(cfg.TimeoutSeconds), nil
	case "page_size":
		return strconv.Itoa(cfg.PageSize), nil
	case "conversation_limit":
		return strconv.Itoa(cfg.ConversationLimit), nil
	case "copy_to_clipboard":
		return strconv.FormatBool(cfg.CopyToClipboard), nil
	case "log.level":
		return cfg.Log.Level, nil
	case "log.format":
		return cfg.Log.Format, nil
	case "archive.enabled":
		return strconv.FormatBool(cfg.Archive.Enabled), nil
	case "archive.dir":
		return cfg.Archive.Dir, nil
	case "markdown.style":
		return cfg.Markdown.Style, nil
	case "markdown.width":
		return strconv.Itoa(cfg.Markdown.Width), nil
	}
	return "", errors.Errorf("unknown config key %q", key)
}

// Set parses value and stores it under key
func Set(cfg *Config, key, value string) error {
	value = strings.TrimSpace(value)

	intValue := func() (int, error) {
		n, err := strconv.Atoi(value)
		if err != nil || n <= 0 {
			return 0, errors.Errorf("%s must be a positive integer, got %q", key, value)
		}
		return n, nil
	}
	boolValue := func() (bool, error) {
		b, err := strconv.ParseBool(value)
		if err != nil {
			return false, errors.Errorf("%s must be true or false, got %q", key, value)
		}
		return b, nil
	}

	var err error
	switch key {
	case "base_url":
		cfg.BaseURL = strings.TrimRight(value, "/")
	case "stream_path":
		cfg.StreamPath = value
	case "transport":
		if value != TransportSSE && value != TransportWebSocket {
			return errors.Errorf("transport must be %s or %s", TransportSSE, TransportWebSocket)
		}
		cfg.Transport = value
	case "websocket_path":
		cfg.WebSocketPath = value
	case "timeout_seconds":
		cfg.TimeoutSeconds, err = intValue()
	case "page_size":
		cfg.PageSize, err = intValue()
	case "conversation_limit":
		cfg.ConversationLimit, err = intValue()
	case "copy_to_clipboard":
		cfg.CopyToClipboard, err = boolValue()
	case "log.level":
		cfg.Log.Level = strings.ToLower(value)
	case "log.format":
		cfg.Log.Format = strings.ToLower(value)
	case "archive.enabled":
		cfg.Archive.Enabled, err = boolValue()
	case "archive.dir":
		cfg.Archive.Dir = value
	case "markdown.style":
		cfg.Markdown.Style = value
	case "markdown.width":
		cfg.Markdown.Width, err = intValue()
	default:
		return errors.Errorf("unknown config key %q", key)
	}
	return err
}
