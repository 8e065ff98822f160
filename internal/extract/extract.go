// Package extract talks to the media extraction engine. The YtDlp adapter
// drives the yt-dlp binary; WatchPage is a metadata-only scraper used when
// every engine strategy has failed.
package extract

import (
	"context"
	"fmt"
	"time"
)

// Options are the per-call engine settings. Zero values mean "engine default".
type Options struct {
	Format              string
	OutputTemplate      string
	UserAgent           string
	Referer             string
	SocketTimeout       time.Duration
	Retries             int
	ConcurrentFragments int
	CookiesFile         string
	Proxy               string
	PlayerClients       []string
	PlayerSkip          []string
	ExtractAudio        bool
	AudioFormat         string
	AudioQuality        string
	MergeFormat         string
}

// Format is one entry of the upstream format list.
type Format struct {
	FormatID string `json:"format_id"`
	Ext      string `json:"ext"`
	Height   int    `json:"height"`
	VCodec   string `json:"vcodec"`
}

// RequestedDownload describes a file the engine wrote.
type RequestedDownload struct {
	Filepath string `json:"filepath"`
	Ext      string `json:"ext"`
}

// Info is the subset of the engine's JSON info dict the service uses.
type Info struct {
	ID                 string              `json:"id"`
	Title              string              `json:"title"`
	Thumbnail          string              `json:"thumbnail"`
	Duration           float64             `json:"duration"`
	Uploader           string              `json:"uploader"`
	ViewCount          int64               `json:"view_count"`
	Ext                string              `json:"ext"`
	Formats            []Format            `json:"formats"`
	RequestedDownloads []RequestedDownload `json:"requested_downloads"`
	Filename           string              `json:"_filename"`
}

// FilePath is the path the engine reported writing, or "".
func (i *Info) FilePath() string {
	for j := len(i.RequestedDownloads) - 1; j >= 0; j-- {
		if p := i.RequestedDownloads[j].Filepath; p != "" {
			return p
		}
	}
	return i.Filename
}

// Heights returns the distinct positive format heights.
func (i *Info) Heights() map[int]bool {
	heights := make(map[int]bool)
	for _, f := range i.Formats {
		if f.Height > 0 {
			heights[f.Height] = true
		}
	}
	return heights
}

// MetadataFetcher fetches an info dict without downloading media.
type MetadataFetcher interface {
	FetchMetadata(ctx context.Context, url string, opts Options) (*Info, error)
}

// Extractor also downloads. The returned path is where the engine says it
// wrote the artifact and may be empty.
type Extractor interface {
	MetadataFetcher
	FetchAndDownload(ctx context.Context, url string, opts Options) (*Info, string, error)
}

// UpstreamError is a failure reported by the engine or the upstream site.
type UpstreamError struct {
	Message  string
	ExitCode int
}

func (e *UpstreamError) Error() string {
	if e.ExitCode != 0 {
		return fmt.Sprintf("%s (exit status %d)", e.Message, e.ExitCode)
	}
	return e.Message
}
