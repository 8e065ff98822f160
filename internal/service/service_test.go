package service

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tubefetch/internal/artifact"
	"tubefetch/internal/cache"
	"tubefetch/internal/config"
	"tubefetch/internal/download"
	"tubefetch/internal/extract"
	"tubefetch/internal/media"
)

const testID = "dQw4w9WgXcQ"

var now = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

type stubExtractor struct {
	mu       sync.Mutex
	meta     int
	download int
}

func (s *stubExtractor) FetchMetadata(context.Context, string, extract.Options) (*extract.Info, error) {
	s.mu.Lock()
	s.meta++
	s.mu.Unlock()
	return &extract.Info{ID: testID, Title: "Clip", Duration: 90, Formats: []extract.Format{{Height: 720}}}, nil
}

func (s *stubExtractor) FetchAndDownload(_ context.Context, _ string, opts extract.Options) (*extract.Info, string, error) {
	s.mu.Lock()
	s.download++
	s.mu.Unlock()
	ext := "mp4"
	if opts.ExtractAudio {
		ext = "mp3"
	}
	path := filepath.Join(filepath.Dir(opts.OutputTemplate), testID+"."+ext)
	if err := os.WriteFile(path, []byte("media-bytes"), 0644); err != nil {
		return nil, "", err
	}
	return &extract.Info{ID: testID, Title: "Clip", Ext: ext}, path, nil
}

func newService(t *testing.T) (*Service, *stubExtractor, string) {
	t.Helper()
	cfg := config.Default()
	dir := t.TempDir()
	clock := func() time.Time { return now }

	ext := &stubExtractor{}
	arts := artifact.New(dir, cfg.MaxFileSize, zerolog.Nop(), nil, artifact.WithClock(clock))
	orch := download.New(ext,
		cache.New[string, *media.VideoMetadata](cfg.CacheLifetime(), cache.WithClock(clock)),
		arts,
		download.Options{
			MaxDuration:        cfg.MaxDuration(),
			Qualities:          cfg.Qualities,
			MetadataStrategies: download.StrategiesFromConfig(cfg.MetadataStrategies),
			DownloadStrategies: download.StrategiesFromConfig(cfg.DownloadStrategies),
		},
		zerolog.Nop(), nil,
		download.WithBackOff(func() backoff.BackOff { return &backoff.ZeroBackOff{} }),
	)
	svc := New(Settings{Qualities: cfg.Qualities, Retention: cfg.Retention()}, orch, arts, zerolog.Nop())
	return svc, ext, dir
}

func oldFile(t *testing.T, dir, name string, age time.Duration) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("stale"), 0644))
	require.NoError(t, os.Chtimes(path, now.Add(-age), now.Add(-age)))
	return path
}

func TestValidateSweepsFirst(t *testing.T) {
	svc, ext, dir := newService(t)
	stale := oldFile(t, dir, "stale.mp4", 2*time.Hour)

	md, err := svc.Validate(context.Background(), "https://youtu.be/"+testID)
	require.NoError(t, err)
	assert.Equal(t, testID, md.ID)
	assert.Equal(t, 1, ext.meta)
	assert.NoFileExists(t, stale)
}

func TestValidateInvalidURLStillSweeps(t *testing.T) {
	svc, ext, dir := newService(t)
	stale := oldFile(t, dir, "stale.mp4", 2*time.Hour)

	_, err := svc.Validate(context.Background(), "not a url")
	assert.ErrorIs(t, err, media.ErrInvalidInput)
	assert.Zero(t, ext.meta)
	assert.NoFileExists(t, stale)
}

func TestDownloadValidation(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		quality string
		kind    string
	}{
		{"empty url", "  ", "best", "video"},
		{"bad kind", "https://youtu.be/" + testID, "best", "gif"},
		{"unconfigured quality", "https://youtu.be/" + testID, "1440p", "video"},
		{"malformed quality", "https://youtu.be/" + testID, "hd", ""},
		{"bad url", "https://example.com/watch?v=" + testID, "best", "video"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, ext, _ := newService(t)
			_, err := svc.Download(context.Background(), tt.url, tt.quality, tt.kind)
			assert.ErrorIs(t, err, media.ErrInvalidInput)
			assert.Zero(t, ext.download)
		})
	}
}

func TestDownloadAudioIgnoresQuality(t *testing.T) {
	svc, _, _ := newService(t)

	res, err := svc.Download(context.Background(), "https://youtu.be/"+testID, "garbage", "audio")
	require.NoError(t, err)
	assert.Equal(t, media.Audio, res.Kind)
	assert.Equal(t, "mp3", res.Ext)
}

func TestDownloadDefaultsToBest(t *testing.T) {
	svc, _, _ := newService(t)

	res, err := svc.Download(context.Background(), "https://youtu.be/"+testID, "", "")
	require.NoError(t, err)
	assert.Equal(t, "best", res.Quality)
	assert.Equal(t, media.Video, res.Kind)
}

func TestDownloadThenDeliver(t *testing.T) {
	svc, _, _ := newService(t)

	res, err := svc.Download(context.Background(), "https://youtu.be/"+testID, "720p", "video")
	require.NoError(t, err)
	assert.FileExists(t, res.FilePath)

	var buf bytes.Buffer
	n, err := svc.Deliver(res, &buf)
	require.NoError(t, err)
	assert.Equal(t, res.Size, n)
	assert.Equal(t, "media-bytes", buf.String())
	assert.NoFileExists(t, res.FilePath)
}

func TestDownloadThenOpen(t *testing.T) {
	svc, _, _ := newService(t)

	res, err := svc.Download(context.Background(), "https://youtu.be/"+testID, "best", "video")
	require.NoError(t, err)

	d, err := svc.Open(res)
	require.NoError(t, err)
	data, err := io.ReadAll(d)
	require.NoError(t, err)
	assert.Equal(t, "media-bytes", string(data))
	assert.FileExists(t, res.FilePath, "file stays until the stream is closed")

	require.NoError(t, d.Close())
	assert.NoFileExists(t, res.FilePath)
}

func TestSweepOldFilesDefaultRetention(t *testing.T) {
	svc, _, dir := newService(t)
	stale := oldFile(t, dir, "stale.mp4", 4000*time.Second)
	fresh := oldFile(t, dir, "fresh.mp4", 10*time.Second)

	report := svc.SweepOldFiles(0)

	assert.Equal(t, []string{"stale.mp4"}, report.Removed)
	assert.NoFileExists(t, stale)
	assert.FileExists(t, fresh)
}
