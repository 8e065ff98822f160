package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.MaxVideoDuration != 3600 {
		t.Errorf("default max duration = %d, want 3600", cfg.MaxVideoDuration)
	}
	if cfg.MaxFileSize != 500*1024*1024 {
		t.Errorf("default max file size = %d, want 500MiB", cfg.MaxFileSize)
	}
	if cfg.CacheTTL != 300 {
		t.Errorf("default cache ttl = %d, want 300", cfg.CacheTTL)
	}
	if cfg.Qualities[0] != "best" {
		t.Errorf("default qualities should start with best, got %v", cfg.Qualities)
	}
	total := 0
	for _, s := range cfg.MetadataStrategies {
		total += s.Attempts
	}
	if total > 3 {
		t.Errorf("default metadata strategies allow %d attempts, want at most 3", total)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{"valid defaults", func(c *Config) {}, false},
		{"empty download dir", func(c *Config) { c.DownloadDir = "" }, true},
		{"zero duration", func(c *Config) { c.MaxVideoDuration = 0 }, true},
		{"negative size", func(c *Config) { c.MaxFileSize = -1 }, true},
		{"zero retention", func(c *Config) { c.TempFileRetention = 0 }, true},
		{"zero ttl", func(c *Config) { c.CacheTTL = 0 }, true},
		{"bad quality", func(c *Config) { c.Qualities = []string{"best", "4k"} }, true},
		{"missing best", func(c *Config) { c.Qualities = []string{"720p"} }, true},
		{"custom height", func(c *Config) { c.Qualities = []string{"best", "1440p"} }, false},
		{"bad log format", func(c *Config) { c.LogFormat = "xml" }, true},
		{"json logs", func(c *Config) { c.LogFormat = "json" }, false},
		{"bad proxy", func(c *Config) { c.ProxyURL = "not a url" }, true},
		{"socks proxy", func(c *Config) { c.ProxyURL = "socks5://127.0.0.1:9050" }, false},
		{"no strategies", func(c *Config) { c.DownloadStrategies = nil }, true},
		{"unnamed strategy", func(c *Config) { c.MetadataStrategies[0].Name = "" }, true},
		{"too many attempts", func(c *Config) { c.MetadataStrategies[0].Attempts = 9 }, true},
		{"metadata budget exceeded", func(c *Config) { c.MetadataStrategies[0].Attempts = 3 }, true},
		{"single metadata strategy at budget", func(c *Config) {
			c.MetadataStrategies = c.MetadataStrategies[:1]
			c.MetadataStrategies[0].Attempts = 3
		}, false},
		{"download budget unchanged", func(c *Config) { c.DownloadStrategies[0].Attempts = 5 }, false},
		{"zero fragments", func(c *Config) { c.ConcurrentFragments = 0 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoadFromTOML(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", tmpDir)

	content := `
download_dir = "/srv/tubefetch"
max_video_duration = 1800
cookies_file = "/etc/tubefetch/cookies.txt"
qualities = ["best", "720p"]

[[metadata_strategy]]
name = "web-only"
player_clients = ["web"]
timeout = 15
attempts = 1
`
	dir := filepath.Join(tmpDir, "tubefetch")
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "config.toml"), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.DownloadDir != "/srv/tubefetch" {
		t.Errorf("download_dir = %q, want /srv/tubefetch", cfg.DownloadDir)
	}
	if cfg.MaxDuration() != 30*time.Minute {
		t.Errorf("max duration = %v, want 30m", cfg.MaxDuration())
	}
	if cfg.CookiesFile != "/etc/tubefetch/cookies.txt" {
		t.Errorf("cookies_file = %q", cfg.CookiesFile)
	}
	if len(cfg.Qualities) != 2 || cfg.Qualities[1] != "720p" {
		t.Errorf("qualities = %v", cfg.Qualities)
	}
	if len(cfg.MetadataStrategies) != 1 || cfg.MetadataStrategies[0].Name != "web-only" {
		t.Fatalf("metadata strategies = %+v", cfg.MetadataStrategies)
	}
	if len(cfg.MetadataStrategies[0].PlayerSkip) != 0 {
		t.Errorf("file strategy should not inherit default player_skip, got %v", cfg.MetadataStrategies[0].PlayerSkip)
	}
	if cfg.MetadataStrategies[0].Timeout() != 15*time.Second {
		t.Errorf("timeout = %v, want 15s", cfg.MetadataStrategies[0].Timeout())
	}
	if len(cfg.DownloadStrategies) != 2 {
		t.Errorf("download strategies should keep defaults, got %d", len(cfg.DownloadStrategies))
	}
	// Untouched keys keep their defaults.
	if cfg.CacheTTL != 300 {
		t.Errorf("cache_ttl = %d, want default 300", cfg.CacheTTL)
	}
}

func TestLoadUnknownKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("max_duration = 10\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("Load() should reject unknown keys")
	}
}

func TestLoadRejectsMetadataAttemptOverrun(t *testing.T) {
	content := `
[[metadata_strategy]]
name = "a"
player_clients = ["android"]
timeout = 30
attempts = 5

[[metadata_strategy]]
name = "b"
player_clients = ["web"]
timeout = 30
attempts = 5
`
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("Load() should reject metadata strategies totalling 10 attempts")
	}
}

func TestLoadMissingFile(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() should not error on missing file: %v", err)
	}
	if cfg.MaxVideoDuration != 3600 {
		t.Errorf("missing file should return defaults, got max duration = %d", cfg.MaxVideoDuration)
	}
}

func TestLoadMissingExplicitFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.toml")); err == nil {
		t.Error("Load() should fail when an explicit config path does not exist")
	}
}

func TestEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("max_video_duration = 1800\ncache_ttl = 60\n"), 0644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("MAX_VIDEO_DURATION", "7200")
	t.Setenv("YT_COOKIES_FILE", "  /tmp/cookies.txt ")
	t.Setenv("AVAILABLE_QUALITIES", "best,480P")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.MaxVideoDuration != 7200 {
		t.Errorf("env should override file: got %d", cfg.MaxVideoDuration)
	}
	if cfg.CacheTTL != 60 {
		t.Errorf("unset env must keep file value: got %d", cfg.CacheTTL)
	}
	if cfg.CookiesFile != "/tmp/cookies.txt" {
		t.Errorf("cookies file = %q, want trimmed path", cfg.CookiesFile)
	}
	if len(cfg.Qualities) != 2 || cfg.Qualities[1] != "480p" {
		t.Errorf("qualities = %v, want [best 480p]", cfg.Qualities)
	}
}

func TestEnvInvalidValue(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("CACHE_TTL", "five minutes")

	if _, err := Load(""); err == nil {
		t.Error("Load() should fail on a non-numeric CACHE_TTL")
	}
}

func TestExpandDownloadDir(t *testing.T) {
	cfg := Default()
	cfg.DownloadDir = "/tmp/test-downloads"

	dir, err := cfg.ExpandDownloadDir()
	if err != nil {
		t.Fatalf("ExpandDownloadDir() error: %v", err)
	}
	if dir != "/tmp/test-downloads" {
		t.Errorf("got %q, want /tmp/test-downloads", dir)
	}
}
