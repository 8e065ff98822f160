// Package cmd implements the CLI commands using Cobra.
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"tubefetch/internal/artifact"
	"tubefetch/internal/cache"
	"tubefetch/internal/config"
	"tubefetch/internal/download"
	"tubefetch/internal/extract"
	"tubefetch/internal/httputil"
	"tubefetch/internal/logging"
	"tubefetch/internal/media"
	"tubefetch/internal/metrics"
	"tubefetch/internal/service"
)

// Version is set at build time via ldflags.
var Version = "dev"

// Global flags
var (
	flagConfig      string
	flagDebug       bool
	flagLogFormat   string
	flagCookies     string
	flagProxy       string
	flagMetricsFile string
)

// cfg holds the loaded configuration (merged: defaults < file < env < flags).
var (
	cfg      *config.Config
	logger   zerolog.Logger
	registry = prometheus.NewRegistry()
)

var rootCmd = &cobra.Command{
	Use:   "tubefetch",
	Short: "Resolve and download YouTube media through yt-dlp",
	Long: `tubefetch validates YouTube URLs, downloads video or audio in a chosen
quality through yt-dlp, and cleans up every temporary file it creates.`,
	SilenceUsage:      true,
	PersistentPreRunE: loadConfig,
}

// Execute runs the root command with SIGINT/SIGTERM wired to cancellation.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()

	if flagMetricsFile != "" {
		if werr := prometheus.WriteToTextfile(flagMetricsFile, registry); werr != nil {
			fmt.Fprintf(os.Stderr, "writing metrics: %v\n", werr)
		}
	}
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "Config file (default: $XDG_CONFIG_HOME/tubefetch/config.toml)")
	rootCmd.PersistentFlags().BoolVarP(&flagDebug, "debug", "x", false, "Debug logging to stderr")
	rootCmd.PersistentFlags().StringVar(&flagLogFormat, "log-format", "", "Log format: console | json")
	rootCmd.PersistentFlags().StringVar(&flagCookies, "cookies", "", "Netscape cookies.txt passed to yt-dlp")
	rootCmd.PersistentFlags().StringVar(&flagProxy, "proxy", "", "Proxy URL for every upstream request")
	rootCmd.PersistentFlags().StringVar(&flagMetricsFile, "metrics-textfile", "", "Write Prometheus metrics to this file on exit")

	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(downloadCmd)
	rootCmd.AddCommand(sweepCmd)
	rootCmd.AddCommand(versionCmd)
}

// loadConfig loads and merges configuration, then builds the logger.
func loadConfig(cmd *cobra.Command, args []string) error {
	var err error
	cfg, err = config.Load(flagConfig)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// CLI flags override config file and environment values
	if flagCookies != "" {
		cfg.CookiesFile = flagCookies
	}
	if flagProxy != "" {
		cfg.ProxyURL = flagProxy
	}
	if flagLogFormat != "" {
		cfg.LogFormat = flagLogFormat
	}
	if flagDebug {
		cfg.Debug = true
	}
	if cfg.Debug {
		cfg.LogLevel = "debug"
	}

	// Re-validate after flag overrides
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger, err = logging.New(cfg.LogLevel, cfg.LogFormat, os.Stderr)
	if err != nil {
		return fmt.Errorf("configuring logging: %w", err)
	}
	return nil
}

func newArtifacts(m *metrics.Metrics) (*artifact.Manager, error) {
	dir, err := cfg.ExpandDownloadDir()
	if err != nil {
		return nil, err
	}
	return artifact.New(dir, cfg.MaxFileSize, logging.Component(logger, "artifact"), m), nil
}

// newService wires the full stack. Commands that never call the engine
// pass withEngine=false so a missing yt-dlp does not stop them.
func newService(withEngine bool) (*service.Service, error) {
	m := metrics.New(registry)

	arts, err := newArtifacts(m)
	if err != nil {
		return nil, err
	}
	settings := service.Settings{Qualities: cfg.Qualities, Retention: cfg.Retention()}
	if !withEngine {
		return service.New(settings, nil, arts, logging.Component(logger, "service")), nil
	}

	engine, err := extract.NewYtDlp(cfg.YtDlpPath, logging.Component(logger, "ytdlp"))
	if err != nil {
		return nil, err
	}

	var fallback extract.MetadataFetcher
	if cfg.PageFallback {
		client, err := httputil.NewClient(httputil.WithTimeout(cfg.MetadataStrategies[0].Timeout()))
		if err != nil {
			return nil, err
		}
		fallback = extract.NewWatchPage(client)
	}

	orch := download.New(engine,
		cache.New[string, *media.VideoMetadata](cfg.CacheLifetime()),
		arts,
		download.Options{
			MaxDuration: cfg.MaxDuration(),
			Qualities:   cfg.Qualities,
			Credentials: download.Credentials{
				CookiesFile: cfg.CookiesFile,
				ProxyURL:    cfg.ProxyURL,
			},
			UserAgent:           cfg.UserAgent,
			Referer:             cfg.Referer,
			MetadataStrategies:  download.StrategiesFromConfig(cfg.MetadataStrategies),
			DownloadStrategies:  download.StrategiesFromConfig(cfg.DownloadStrategies),
			DownloadRetries:     cfg.DownloadRetries,
			ConcurrentFragments: cfg.ConcurrentFragments,
			Fallback:            fallback,
		},
		logging.Component(logger, "orchestrator"),
		m,
	)

	return service.New(settings, orch, arts, logging.Component(logger, "service")), nil
}
