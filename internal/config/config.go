// Package config handles TOML-based configuration loading and validation.
// Values merge as defaults < config file < environment < CLI flags; the
// environment names match the ones operators already export for yt-dlp
// wrappers (YT_COOKIES_FILE, MAX_VIDEO_DURATION, ...).
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v10"

	"tubefetch/internal/format"
)

// StrategyConfig is one extraction attempt profile, tried in list order.
type StrategyConfig struct {
	Name           string   `toml:"name"`
	PlayerClients  []string `toml:"player_clients"`
	PlayerSkip     []string `toml:"player_skip"`
	TimeoutSeconds int      `toml:"timeout"`
	Attempts       int      `toml:"attempts"`
}

// Timeout returns the per-attempt timeout.
func (s StrategyConfig) Timeout() time.Duration {
	return time.Duration(s.TimeoutSeconds) * time.Second
}

// Config holds all application configuration.
type Config struct {
	DownloadDir         string   `toml:"download_dir"`
	MaxVideoDuration    int      `toml:"max_video_duration"`  // seconds
	MaxFileSize         int64    `toml:"max_file_size"`       // bytes
	TempFileRetention   int      `toml:"temp_file_retention"` // seconds
	CookiesFile         string   `toml:"cookies_file"`
	ProxyURL            string   `toml:"proxy_url"`
	CacheTTL            int      `toml:"cache_ttl"` // seconds
	Qualities           []string `toml:"qualities"`
	YtDlpPath           string   `toml:"ytdlp_path"`
	UserAgent           string   `toml:"user_agent"`
	Referer             string   `toml:"referer"`
	DownloadRetries     int      `toml:"download_retries"`
	ConcurrentFragments int      `toml:"concurrent_fragments"`
	PageFallback        bool     `toml:"page_fallback"`
	LogLevel            string   `toml:"log_level"`
	LogFormat           string   `toml:"log_format"`
	Debug               bool     `toml:"debug"`

	MetadataStrategies []StrategyConfig `toml:"metadata_strategy"`
	DownloadStrategies []StrategyConfig `toml:"download_strategy"`
}

// envOverrides mirrors the environment surface. Pointers distinguish
// "unset" from a zero value so that the file keeps precedence when a
// variable is absent.
type envOverrides struct {
	DownloadDir         *string  `env:"DOWNLOAD_FOLDER"`
	MaxVideoDuration    *int     `env:"MAX_VIDEO_DURATION"`
	MaxFileSize         *int64   `env:"MAX_FILE_SIZE"`
	TempFileRetention   *int     `env:"TEMP_FILE_RETENTION"`
	CookiesFile         *string  `env:"YT_COOKIES_FILE"`
	ProxyURL            *string  `env:"YT_PROXY_URL"`
	CacheTTL            *int     `env:"CACHE_TTL"`
	Qualities           []string `env:"AVAILABLE_QUALITIES" envSeparator:","`
	YtDlpPath           *string  `env:"YTDLP_PATH"`
	UserAgent           *string  `env:"YT_USER_AGENT"`
	Referer             *string  `env:"YT_REFERER"`
	DownloadRetries     *int     `env:"DOWNLOAD_RETRIES"`
	ConcurrentFragments *int     `env:"CONCURRENT_FRAGMENTS"`
	PageFallback        *bool    `env:"PAGE_FALLBACK"`
	LogLevel            *string  `env:"LOG_LEVEL"`
	LogFormat           *string  `env:"LOG_FORMAT"`
}

// DefaultUserAgent is a desktop Chrome string; the upstream serves fewer
// challenges to it than to library defaults.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		DownloadDir:         "~/.cache/tubefetch/downloads",
		MaxVideoDuration:    3600,
		MaxFileSize:         500 * 1024 * 1024,
		TempFileRetention:   3600,
		CacheTTL:            300,
		Qualities:           []string{"best", "1080p", "720p", "480p", "360p"},
		YtDlpPath:           "yt-dlp",
		UserAgent:           DefaultUserAgent,
		Referer:             "https://www.youtube.com/",
		DownloadRetries:     10,
		ConcurrentFragments: 4,
		LogLevel:            "info",
		LogFormat:           "console",
		MetadataStrategies: []StrategyConfig{
			{Name: "android-web", PlayerClients: []string{"android", "web"}, PlayerSkip: []string{"webpage", "configs"}, TimeoutSeconds: 30, Attempts: 2},
			{Name: "tv-embedded", PlayerClients: []string{"tv_embedded", "web_embedded"}, TimeoutSeconds: 30, Attempts: 1},
		},
		DownloadStrategies: []StrategyConfig{
			{Name: "android-web", PlayerClients: []string{"android", "web"}, PlayerSkip: []string{"webpage", "configs"}, TimeoutSeconds: 600, Attempts: 2},
			{Name: "ios-web", PlayerClients: []string{"ios", "web"}, TimeoutSeconds: 600, Attempts: 1},
		},
	}
}

// configDir returns the XDG-compliant config directory.
func configDir() (string, error) {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "tubefetch"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("getting home directory: %w", err)
	}
	return filepath.Join(home, ".config", "tubefetch"), nil
}

// ConfigPath returns the path to the config file.
func ConfigPath() (string, error) {
	dir, err := configDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// Load reads the config file at path (or the default location when path
// is empty), merges it over the defaults and applies environment overrides.
// A missing file at the default location is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		p, err := ConfigPath()
		if err == nil {
			path = p
		}
	}

	if path != "" {
		if err := cfg.mergeFile(path, explicit); err != nil {
			return nil, err
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

func (c *Config) mergeFile(path string, mustExist bool) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && !mustExist {
			return nil
		}
		return fmt.Errorf("reading config: %w", err)
	}

	// Strategy tables in the file replace the defaults wholesale rather
	// than merging element by element.
	metaDefaults, dlDefaults := c.MetadataStrategies, c.DownloadStrategies
	c.MetadataStrategies, c.DownloadStrategies = nil, nil

	md, err := toml.Decode(string(data), c)
	if err != nil {
		return fmt.Errorf("parsing config %s: %w", path, err)
	}
	if c.MetadataStrategies == nil {
		c.MetadataStrategies = metaDefaults
	}
	if c.DownloadStrategies == nil {
		c.DownloadStrategies = dlDefaults
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return fmt.Errorf("parsing config %s: unknown key %q", path, undecoded[0].String())
	}
	return nil
}

func (c *Config) applyEnv() error {
	var o envOverrides
	if err := env.Parse(&o); err != nil {
		return fmt.Errorf("parsing environment: %w", err)
	}

	setString(&c.DownloadDir, o.DownloadDir)
	setInt(&c.MaxVideoDuration, o.MaxVideoDuration)
	if o.MaxFileSize != nil {
		c.MaxFileSize = *o.MaxFileSize
	}
	setInt(&c.TempFileRetention, o.TempFileRetention)
	setString(&c.CookiesFile, o.CookiesFile)
	setString(&c.ProxyURL, o.ProxyURL)
	setInt(&c.CacheTTL, o.CacheTTL)
	if len(o.Qualities) > 0 {
		c.Qualities = o.Qualities
	}
	setString(&c.YtDlpPath, o.YtDlpPath)
	setString(&c.UserAgent, o.UserAgent)
	setString(&c.Referer, o.Referer)
	setInt(&c.DownloadRetries, o.DownloadRetries)
	setInt(&c.ConcurrentFragments, o.ConcurrentFragments)
	if o.PageFallback != nil {
		c.PageFallback = *o.PageFallback
	}
	setString(&c.LogLevel, o.LogLevel)
	setString(&c.LogFormat, o.LogFormat)

	c.CookiesFile = strings.TrimSpace(c.CookiesFile)
	c.ProxyURL = strings.TrimSpace(c.ProxyURL)
	for i, q := range c.Qualities {
		c.Qualities[i] = strings.ToLower(strings.TrimSpace(q))
	}
	return nil
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

func setInt(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}

// MaxMetadataAttempts caps upstream calls for a single metadata lookup,
// summed over every metadata strategy.
const MaxMetadataAttempts = 3

// Validate checks config values are within acceptable bounds.
func (c *Config) Validate() error {
	if c.DownloadDir == "" {
		return fmt.Errorf("download directory cannot be empty")
	}
	if c.MaxVideoDuration <= 0 {
		return fmt.Errorf("max_video_duration must be positive, got %d", c.MaxVideoDuration)
	}
	if c.MaxFileSize <= 0 {
		return fmt.Errorf("max_file_size must be positive, got %d", c.MaxFileSize)
	}
	if c.TempFileRetention <= 0 {
		return fmt.Errorf("temp_file_retention must be positive, got %d", c.TempFileRetention)
	}
	if c.CacheTTL <= 0 {
		return fmt.Errorf("cache_ttl must be positive, got %d", c.CacheTTL)
	}
	if c.DownloadRetries < 0 {
		return fmt.Errorf("download_retries cannot be negative, got %d", c.DownloadRetries)
	}
	if c.ConcurrentFragments < 1 {
		return fmt.Errorf("concurrent_fragments must be at least 1, got %d", c.ConcurrentFragments)
	}

	hasBest := false
	for _, q := range c.Qualities {
		if !format.ValidToken(q) {
			return fmt.Errorf("unsupported quality %q (valid: best or <height>p)", q)
		}
		if strings.EqualFold(q, format.Best) {
			hasBest = true
		}
	}
	if !hasBest {
		return fmt.Errorf("qualities must include %q", format.Best)
	}

	if err := validateStrategies("metadata_strategy", c.MetadataStrategies); err != nil {
		return err
	}
	if err := validateStrategies("download_strategy", c.DownloadStrategies); err != nil {
		return err
	}
	total := 0
	for _, s := range c.MetadataStrategies {
		total += s.Attempts
	}
	if total > MaxMetadataAttempts {
		return fmt.Errorf("metadata_strategy: %d attempts in total, at most %d allowed", total, MaxMetadataAttempts)
	}

	validFormats := map[string]bool{"console": true, "json": true}
	if !validFormats[strings.ToLower(c.LogFormat)] {
		return fmt.Errorf("unsupported log format %q (valid: console, json)", c.LogFormat)
	}

	if c.ProxyURL != "" {
		u, err := url.Parse(c.ProxyURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("invalid proxy URL %q", c.ProxyURL)
		}
	}

	return nil
}

func validateStrategies(key string, list []StrategyConfig) error {
	if len(list) == 0 {
		return fmt.Errorf("%s: at least one strategy is required", key)
	}
	for i, s := range list {
		if strings.TrimSpace(s.Name) == "" {
			return fmt.Errorf("%s[%d]: name cannot be empty", key, i)
		}
		if s.TimeoutSeconds <= 0 {
			return fmt.Errorf("%s %q: timeout must be positive", key, s.Name)
		}
		if s.Attempts < 1 || s.Attempts > 5 {
			return fmt.Errorf("%s %q: attempts must be between 1 and 5, got %d", key, s.Name, s.Attempts)
		}
	}
	return nil
}

// ExpandDownloadDir resolves ~ in the download directory path.
func (c *Config) ExpandDownloadDir() (string, error) {
	dir := c.DownloadDir
	if strings.HasPrefix(dir, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("expanding home dir: %w", err)
		}
		dir = filepath.Join(home, dir[2:])
	}
	return filepath.Abs(dir)
}

// Retention returns the temporary-file retention window.
func (c *Config) Retention() time.Duration {
	return time.Duration(c.TempFileRetention) * time.Second
}

// MaxDuration returns the longest accepted video duration.
func (c *Config) MaxDuration() time.Duration {
	return time.Duration(c.MaxVideoDuration) * time.Second
}

// CacheLifetime returns the metadata cache TTL.
func (c *Config) CacheLifetime() time.Duration {
	return time.Duration(c.CacheTTL) * time.Second
}
