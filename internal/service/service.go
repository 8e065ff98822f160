// Package service exposes the caller-facing operations: validate a URL,
// download media, and reclaim old artifacts.
package service

import (
	"context"
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"tubefetch/internal/artifact"
	"tubefetch/internal/download"
	"tubefetch/internal/format"
	"tubefetch/internal/media"
	"tubefetch/internal/videoid"
)

// Settings are the limits the facade enforces itself.
type Settings struct {
	Qualities []string
	Retention time.Duration
}

// Service wires the orchestrator and the artifact manager together.
type Service struct {
	settings  Settings
	orch      *download.Orchestrator
	artifacts *artifact.Manager
	log       zerolog.Logger
}

// New creates a Service.
func New(settings Settings, orch *download.Orchestrator, artifacts *artifact.Manager, log zerolog.Logger) *Service {
	return &Service{settings: settings, orch: orch, artifacts: artifacts, log: log}
}

// Validate sweeps expired artifacts, then resolves metadata for rawURL.
func (s *Service) Validate(ctx context.Context, rawURL string) (*media.VideoMetadata, error) {
	s.SweepOldFiles(s.settings.Retention)
	return s.orch.ResolveMetadata(ctx, rawURL)
}

// Download validates the request and fetches the artifact. The caller owns
// the returned file and must hand it to Deliver or Open.
func (s *Service) Download(ctx context.Context, rawURL, quality, kind string) (*media.DownloadResult, error) {
	if strings.TrimSpace(rawURL) == "" {
		return nil, media.Errorf(media.KindInvalidInput, "URL not provided")
	}

	k, err := media.ParseKind(kind)
	if err != nil {
		return nil, err
	}

	if k == media.Video {
		if quality, err = format.Validate(quality, s.settings.Qualities); err != nil {
			return nil, err
		}
	}

	id, err := videoid.Resolve(rawURL)
	if err != nil {
		return nil, err
	}

	return s.orch.Download(ctx, media.DownloadRequest{
		URL:     rawURL,
		ID:      id,
		Quality: quality,
		Kind:    k,
	})
}

// SweepOldFiles removes artifacts older than retention. A non-positive
// retention uses the configured window.
func (s *Service) SweepOldFiles(retention time.Duration) artifact.SweepReport {
	if retention <= 0 {
		retention = s.settings.Retention
	}
	return s.artifacts.Sweep(retention)
}

// Deliver streams the artifact to w and deletes it afterwards.
func (s *Service) Deliver(res *media.DownloadResult, w io.Writer) (int64, error) {
	return s.artifacts.Deliver(res.FilePath, w)
}

// Open returns a reader over the artifact that deletes it on Close.
func (s *Service) Open(res *media.DownloadResult) (*artifact.Delivery, error) {
	return s.artifacts.Open(res.FilePath)
}
