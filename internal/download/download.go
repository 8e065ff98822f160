// Package download orchestrates metadata resolution and media downloads
// through the extraction engine. Engine calls go through ordered strategies
// with bounded retries; results are verified on disk before they are
// handed back.
package download

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"tubefetch/internal/artifact"
	"tubefetch/internal/cache"
	"tubefetch/internal/extract"
	"tubefetch/internal/format"
	"tubefetch/internal/httputil"
	"tubefetch/internal/media"
	"tubefetch/internal/metrics"
	"tubefetch/internal/videoid"
)

// Credentials are applied to every engine call.
type Credentials struct {
	CookiesFile string
	ProxyURL    string
}

// Options configures an Orchestrator.
type Options struct {
	OutputDir           string
	MaxDuration         time.Duration
	Qualities           []string
	Credentials         Credentials
	UserAgent           string
	Referer             string
	MetadataStrategies  []Strategy
	DownloadStrategies  []Strategy
	DownloadRetries     int
	ConcurrentFragments int

	// Fallback is consulted once for metadata when every strategy failed
	// for a reason other than an authentication challenge.
	Fallback extract.MetadataFetcher
}

// Option adjusts an Orchestrator.
type Option func(*Orchestrator)

// WithBackOff replaces the retry policy used within a strategy.
func WithBackOff(f func() backoff.BackOff) Option {
	return func(o *Orchestrator) { o.newBackOff = f }
}

// MetadataCache is the cache shape the orchestrator needs.
type MetadataCache = cache.TTL[string, *media.VideoMetadata]

// Orchestrator resolves metadata and downloads media.
type Orchestrator struct {
	extractor  extract.Extractor
	cache      *MetadataCache
	artifacts  *artifact.Manager
	opts       Options
	log        zerolog.Logger
	metrics    *metrics.Metrics
	newBackOff func() backoff.BackOff
	group      singleflight.Group
}

// New creates an Orchestrator. OutputDir defaults to the artifact directory.
func New(extractor extract.Extractor, c *MetadataCache, artifacts *artifact.Manager, opts Options, log zerolog.Logger, m *metrics.Metrics, options ...Option) *Orchestrator {
	if opts.OutputDir == "" {
		opts.OutputDir = artifacts.Dir()
	}
	o := &Orchestrator{
		extractor:  extractor,
		cache:      c,
		artifacts:  artifacts,
		opts:       opts,
		log:        log,
		metrics:    m,
		newBackOff: defaultBackOff,
	}
	for _, opt := range options {
		opt(o)
	}
	return o
}

// ResolveMetadata validates rawURL and returns its metadata, from the cache
// when a fresh entry exists.
func (o *Orchestrator) ResolveMetadata(ctx context.Context, rawURL string) (*media.VideoMetadata, error) {
	id, err := videoid.Resolve(rawURL)
	if err != nil {
		return nil, err
	}
	return o.Metadata(ctx, id)
}

// Metadata returns metadata for an already validated identifier.
// Concurrent misses for the same identifier share one upstream fetch.
func (o *Orchestrator) Metadata(ctx context.Context, id string) (*media.VideoMetadata, error) {
	if md, ok := o.cache.Get(id); ok {
		o.metrics.RecordCacheLookup(true)
		o.log.Debug().Str("video_id", id).Msg("metadata cache hit")
		return md, nil
	}
	o.metrics.RecordCacheLookup(false)

	if err := ctx.Err(); err != nil {
		return nil, abandoned(err)
	}

	// The shared fetch outlives any single caller; per-strategy timeouts
	// bound it.
	fetchCtx := context.WithoutCancel(ctx)
	ch := o.group.DoChan(id, func() (any, error) {
		if md, ok := o.cache.Get(id); ok {
			return md, nil
		}
		info, err := o.fetchMetadata(fetchCtx, id)
		if err != nil {
			return nil, err
		}
		md := o.toMetadata(id, info)
		if o.tooLong(md.Duration) {
			return nil, o.errTooLong(md.Duration)
		}
		o.cache.Put(id, md)
		return md, nil
	})

	var res singleflight.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		o.log.Debug().Str("video_id", id).Msg("caller left in-flight metadata fetch")
		return nil, abandoned(ctx.Err())
	}
	if res.Err != nil {
		o.log.Warn().Err(res.Err).Str("video_id", id).Str("kind", media.KindOf(res.Err).String()).Msg("metadata resolution failed")
		return nil, res.Err
	}
	if res.Shared {
		o.log.Debug().Str("video_id", id).Msg("joined in-flight metadata fetch")
	}
	return res.Val.(*media.VideoMetadata), nil
}

func abandoned(err error) error {
	return media.Wrap(media.KindExtractionFailed, err, "metadata lookup cancelled: "+err.Error())
}

func (o *Orchestrator) fetchMetadata(ctx context.Context, id string) (*extract.Info, error) {
	url := videoid.WatchURL(id)
	base := o.requestOptions()

	var info *extract.Info
	err := o.walk(ctx, metrics.ModeMetadata, o.opts.MetadataStrategies, func(actx context.Context, s Strategy) error {
		i, err := o.extractor.FetchMetadata(actx, url, s.apply(base))
		if err != nil {
			return err
		}
		info = i
		return nil
	})
	if err == nil {
		return info, nil
	}

	if o.opts.Fallback == nil || ctx.Err() != nil || media.KindOf(err) == media.KindAuthenticationRequired {
		return nil, err
	}

	o.log.Info().Str("video_id", id).Msg("all metadata strategies failed, trying watch page")
	fctx, cancel := context.WithTimeout(ctx, fallbackTimeout(o.opts.MetadataStrategies))
	defer cancel()
	fallback, ferr := o.opts.Fallback.FetchMetadata(fctx, url, o.requestOptions())
	if ferr != nil {
		o.log.Warn().Err(ferr).Str("video_id", id).Msg("watch page fallback failed")
		return nil, err
	}
	return fallback, nil
}

func fallbackTimeout(strategies []Strategy) time.Duration {
	if len(strategies) > 0 && strategies[0].Timeout > 0 {
		return strategies[0].Timeout
	}
	return 30 * time.Second
}

// requestOptions builds the options shared by every engine call, with
// credentials applied.
func (o *Orchestrator) requestOptions() extract.Options {
	return o.applyCredentials(extract.Options{
		UserAgent: o.opts.UserAgent,
		Referer:   o.opts.Referer,
	})
}

func (o *Orchestrator) applyCredentials(opts extract.Options) extract.Options {
	if path := o.opts.Credentials.CookiesFile; path != "" {
		if _, err := os.Stat(path); err == nil {
			opts.CookiesFile = path
		} else {
			o.log.Warn().Str("cookies_file", path).Err(err).Msg("cookies file configured but not readable, continuing without it")
		}
	}
	if o.opts.Credentials.ProxyURL != "" {
		opts.Proxy = o.opts.Credentials.ProxyURL
	}
	return opts
}

func (o *Orchestrator) toMetadata(id string, info *extract.Info) *media.VideoMetadata {
	duration := int(info.Duration)
	if duration < 0 {
		duration = 0
	}
	md := &media.VideoMetadata{
		ID:             id,
		Title:          orDefault(info.Title, "Untitled"),
		Thumbnail:      info.Thumbnail,
		Duration:       duration,
		DurationString: media.FormatDuration(duration),
		Uploader:       orDefault(info.Uploader, "Unknown"),
		ViewCount:      info.ViewCount,
		Qualities:      qualityOptions(info.Heights(), o.opts.Qualities),
		URL:            videoid.WatchURL(id),
	}
	if md.ViewCount < 0 {
		md.ViewCount = 0
	}
	return md
}

// qualityOptions lists "best" followed by each configured height the
// upstream actually offers, in configured order.
func qualityOptions(heights map[int]bool, configured []string) []media.QualityOption {
	out := []media.QualityOption{media.BestQuality}
	seen := map[string]bool{format.Best: true}
	for _, token := range configured {
		token = strings.ToLower(strings.TrimSpace(token))
		h, ok := format.Height(token)
		if !ok || seen[token] || !heights[h] {
			continue
		}
		seen[token] = true
		out = append(out, media.QualityOption{Value: token, Label: token, Note: fmt.Sprintf("%dp", h)})
	}
	return out
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}

func (o *Orchestrator) tooLong(seconds int) bool {
	return o.opts.MaxDuration > 0 && time.Duration(seconds)*time.Second > o.opts.MaxDuration
}

func (o *Orchestrator) errTooLong(seconds int) error {
	return media.Errorf(media.KindContentTooLong, "video too long (%s). Maximum allowed: %s",
		media.FormatDuration(seconds), media.FormatDuration(int(o.opts.MaxDuration.Seconds())))
}

// Download fetches req through the download strategies and verifies the
// artifact. On error no artifact is left for the caller to clean up,
// except what the age sweep will collect.
func (o *Orchestrator) Download(ctx context.Context, req media.DownloadRequest) (*media.DownloadResult, error) {
	res, err := o.download(ctx, req)
	status := "success"
	var size int64
	if err != nil {
		status = media.KindOf(err).String()
		o.log.Warn().Err(err).Str("video_id", req.ID).Str("kind", status).Msg("download failed")
	} else {
		size = res.Size
		o.log.Info().
			Str("video_id", res.ID).
			Str("file", res.FileName).
			Float64("size_mb", res.SizeMB).
			Msg("download complete")
	}
	o.metrics.RecordDownload(req.Kind.String(), status, size)
	return res, err
}

func (o *Orchestrator) download(ctx context.Context, req media.DownloadRequest) (*media.DownloadResult, error) {
	expr, err := format.Resolve(req.Quality, req.Kind)
	if err != nil {
		return nil, err
	}

	id := req.ID
	if id == "" {
		if id, err = videoid.Resolve(req.URL); err != nil {
			return nil, err
		}
	}

	if md, ok := o.cache.Get(id); ok && o.tooLong(md.Duration) {
		return nil, o.errTooLong(md.Duration)
	}

	if err := o.artifacts.Ensure(); err != nil {
		return nil, err
	}

	base := o.requestOptions()
	base.Format = expr.Selector
	base.OutputTemplate = filepath.Join(o.opts.OutputDir, "%(id)s.%(ext)s")
	base.Retries = o.opts.DownloadRetries
	base.ConcurrentFragments = o.opts.ConcurrentFragments
	if expr.ExtractAudio {
		base.ExtractAudio = true
		base.AudioFormat = expr.AudioCodec
		base.AudioQuality = expr.AudioQuality
	} else {
		base.MergeFormat = expr.MergeFormat
	}

	o.log.Info().Str("video_id", id).Str("kind", req.Kind.String()).Str("format", expr.Selector).Msg("starting download")

	url := videoid.WatchURL(id)
	var (
		info     *extract.Info
		reported string
	)
	err = o.walk(ctx, metrics.ModeDownload, o.opts.DownloadStrategies, func(actx context.Context, s Strategy) error {
		i, p, err := o.extractor.FetchAndDownload(actx, url, s.apply(base))
		if err != nil {
			return err
		}
		info, reported = i, p
		return nil
	})
	if err != nil {
		return nil, err
	}

	path, err := o.artifactPath(id, info, reported, expr)
	if err != nil {
		return nil, err
	}

	size, err := o.artifacts.Verify(path)
	if err != nil {
		return nil, err
	}

	quality := format.Best
	if expr.ExtractAudio {
		quality = expr.AudioQuality + "k"
	} else if q := strings.ToLower(strings.TrimSpace(req.Quality)); q != "" {
		quality = q
	}

	return &media.DownloadResult{
		ID:          id,
		Title:       orDefault(info.Title, "video"),
		FilePath:    path,
		FileName:    filepath.Base(path),
		Size:        size,
		SizeMB:      media.SizeMB(size),
		Ext:         strings.TrimPrefix(filepath.Ext(path), "."),
		Quality:     quality,
		Kind:        req.Kind,
		ContentType: o.artifacts.ContentType(path),
	}, nil
}

// artifactPath works out where the engine wrote the file and checks that
// it lies inside the output directory.
func (o *Orchestrator) artifactPath(id string, info *extract.Info, reported string, expr format.Expression) (string, error) {
	path := reported
	if path == "" {
		var err error
		if path, err = o.locateArtifact(id, info, expr); err != nil {
			return "", err
		}
	}
	if expr.ExtractAudio {
		path = strings.TrimSuffix(path, filepath.Ext(path)) + "." + expr.AudioCodec
	}

	safe, err := httputil.ContainedPath(o.opts.OutputDir, path)
	if err != nil {
		return "", media.Wrap(media.KindExtractionFailed, err, "engine wrote outside the download directory")
	}
	return safe, nil
}

// locateArtifact finds <id>.<ext> when the engine did not report a path.
// The merge container only applies when streams were merged, so the source
// extension and finally any finished <id>.* file are tried as well.
func (o *Orchestrator) locateArtifact(id string, info *extract.Info, expr format.Expression) (string, error) {
	var first string
	for _, ext := range []string{expr.Ext(), info.Ext} {
		if ext == "" {
			continue
		}
		path := filepath.Join(o.opts.OutputDir, id+"."+ext)
		if first == "" {
			first = path
		}
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}

	matches, _ := filepath.Glob(filepath.Join(o.opts.OutputDir, id+".*"))
	var finished []string
	for _, m := range matches {
		switch filepath.Ext(m) {
		case ".part", ".ytdl", ".temp":
			continue
		}
		finished = append(finished, m)
	}
	if len(finished) == 1 {
		return finished[0], nil
	}

	if first == "" {
		return "", media.Errorf(media.KindDownloadIncomplete, "download finished but the engine reported no file")
	}
	return first, nil
}
