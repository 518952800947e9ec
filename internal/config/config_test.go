package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.BaseURL != "http://localhost:8080" {
		t.Errorf("Expected default base URL 'http://localhost:8080', got '%s'", cfg.BaseURL)
	}
	if cfg.Transport != TransportSSE {
		t.Errorf("Expected transport %q, got %q", TransportSSE, cfg.Transport)
	}
	if cfg.Timeout() != 20*time.Second {
		t.Errorf("Expected 20s timeout, got %v", cfg.Timeout())
	}
	if cfg.PageSize != 50 || cfg.ConversationLimit != 20 {
		t.Errorf("Unexpected page sizes: %d / %d", cfg.PageSize, cfg.ConversationLimit)
	}
	if !cfg.Archive.Enabled {
		t.Error("Expected archive to be enabled by default")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Default config should be valid: %v", err)
	}
}

func TestGetConfigDir_EnvOverride(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(EnvHome, dir)

	got, err := GetConfigDir()
	if err != nil {
		t.Fatalf("GetConfigDir() returned error: %v", err)
	}
	if got != dir {
		t.Errorf("GetConfigDir() = %s, want %s", got, dir)
	}

	path, _ := GetConfigPath()
	if path != filepath.Join(dir, "config.json") {
		t.Errorf("GetConfigPath() = %s", path)
	}
	credPath, _ := GetCredentialsPath()
	if credPath != filepath.Join(dir, "credentials.json") {
		t.Errorf("GetCredentialsPath() = %s", credPath)
	}
}

func TestLoadConfig_FileNotExists(t *testing.T) {
	t.Setenv(EnvHome, t.TempDir())

	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig() returned error: %v", err)
	}
	if cfg != DefaultConfig() {
		t.Errorf("LoadConfig() without file = %+v, want defaults", cfg)
	}
}

func TestLoadConfig_FileAndEnv(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(EnvHome, dir)

	content := `{"base_url":"https://chat.example.com","page_size":10,"log":{"level":"debug"},"markdown":{"style":"light"}}`
	if err := os.WriteFile(filepath.Join(dir, "config.json"), []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("AGENTCHAT_TRANSPORT", "websocket")
	t.Setenv("AGENTCHAT_LOG_FORMAT", "json")

	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig() returned error: %v", err)
	}

	if cfg.BaseURL != "https://chat.example.com" {
		t.Errorf("BaseURL = %s", cfg.BaseURL)
	}
	if cfg.PageSize != 10 {
		t.Errorf("PageSize = %d", cfg.PageSize)
	}
	if cfg.Log.Level != "debug" || cfg.Log.Format != "json" {
		t.Errorf("Log = %+v", cfg.Log)
	}
	if cfg.Transport != TransportWebSocket {
		t.Errorf("Transport = %s, want env override", cfg.Transport)
	}
	if cfg.Markdown.Style != "light" || cfg.Markdown.Width != 80 {
		t.Errorf("Markdown = %+v", cfg.Markdown)
	}
	if cfg.ConversationLimit != 20 {
		t.Errorf("ConversationLimit should keep its default, got %d", cfg.ConversationLimit)
	}
}

func TestLoadConfig_InvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path)
	if err == nil {
		t.Fatal("Expected error for broken config file")
	}
	if cfg != DefaultConfig() {
		t.Error("Expected defaults on error")
	}
}

func TestSaveConfig_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(EnvHome, dir)

	cfg := DefaultConfig()
	cfg.BaseURL = "http://10.0.0.2:9000"
	cfg.Archive.Enabled = false
	if err := SaveConfig(cfg); err != nil {
		t.Fatalf("SaveConfig() returned error: %v", err)
	}

	info, err := os.Stat(filepath.Join(dir, "config.json"))
	if err != nil {
		t.Fatalf("config file not written: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("config file mode = %v, want 0600", info.Mode().Perm())
	}

	loaded, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig() returned error: %v", err)
	}
	if loaded != cfg {
		t.Errorf("round trip mismatch:\n got %+v\nwant %+v", loaded, cfg)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"websocket", func(c *Config) { c.Transport = TransportWebSocket }, false},
		{"empty base url", func(c *Config) { c.BaseURL = " " }, true},
		{"unknown transport", func(c *Config) { c.Transport = "grpc" }, true},
		{"zero timeout", func(c *Config) { c.TimeoutSeconds = 0 }, true},
		{"zero page", func(c *Config) { c.PageSize = 0 }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			if err := cfg.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestSetAndGet(t *testing.T) {
	tests := []struct {
		key     string
		value   string
		want    string
		wantErr bool
	}{
		{"base_url", "https://x.example/", "https://x.example", false},
		{"transport", "websocket", "websocket", false},
		{"transport", "carrier-pigeon", "", true},
		{"timeout_seconds", "45", "45", false},
		{"timeout_seconds", "-1", "", true},
		{"page_size", "abc", "", true},
		{"copy_to_clipboard", "true", "true", false},
		{"copy_to_clipboard", "maybe", "", true},
		{"log.level", "DEBUG", "debug", false},
		{"archive.enabled", "false", "false", false},
		{"markdown.width", "120", "120", false},
		{"no.such.key", "1", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.key+"="+tt.value, func(t *testing.T) {
			cfg := DefaultConfig()
			err := Set(&cfg, tt.key, tt.value)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Set() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			got, err := Get(cfg, tt.key)
			if err != nil {
				t.Fatalf("Get() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Get(%s) = %q, want %q", tt.key, got, tt.want)
			}
		})
	}
}

func TestKeysAreGettable(t *testing.T) {
	cfg := DefaultConfig()
	for _, key := range Keys() {
		if _, err := Get(cfg, key); err != nil {
			t.Errorf("Get(%s) failed: %v", key, err)
		}
	}
}

func TestGetArchiveDir(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(EnvHome, dir)

	cfg := DefaultConfig()
	got, err := GetArchiveDir(cfg)
	if err != nil || got != dir {
		t.Errorf("GetArchiveDir() = %s, %v; want %s", got, err, dir)
	}

	cfg.Archive.Dir = "/var/tmp/agentchat"
	got, _ = GetArchiveDir(cfg)
	if got != "/var/tmp/agentchat" {
		t.Errorf("GetArchiveDir() = %s", got)
	}

	home, _ := os.UserHomeDir()
	cfg.Archive.Dir = "~/chats"
	got, _ = GetArchiveDir(cfg)
	if got != filepath.Join(home, "chats") {
		t.Errorf("GetArchiveDir() = %s, want home expansion", got)
	}
}
