// Package media defines shared types for the tubefetch application.
package media

import (
	"fmt"
	"math"
	"strings"

	"tubefetch/internal/httputil"
)

// Kind selects whether a download keeps the video track or only the audio.
type Kind int

const (
	Video Kind = iota
	Audio
)

func (k Kind) String() string {
	switch k {
	case Video:
		return "video"
	case Audio:
		return "audio"
	default:
		return "unknown"
	}
}

// MarshalText encodes the kind by name so JSON output reads "video"/"audio".
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// ParseKind parses a requested download kind. An empty string means video.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "video":
		return Video, nil
	case "audio":
		return Audio, nil
	default:
		return Video, Errorf(KindInvalidInput, "unsupported download type %q (valid: video, audio)", s)
	}
}

// QualityOption is one selectable quality for a video.
type QualityOption struct {
	Value string `json:"value"` // "best", "720p", ...
	Label string `json:"label"`
	Note  string `json:"note"`
}

// BestQuality is always offered and always first.
var BestQuality = QualityOption{
	Value: "best",
	Label: "Best quality",
	Note:  "Highest quality available",
}

// VideoMetadata is the resolved, cacheable description of a video.
// Values are shared through the cache and must not be mutated.
type VideoMetadata struct {
	ID             string          `json:"video_id"`
	Title          string          `json:"title"`
	Thumbnail      string          `json:"thumbnail"`
	Duration       int             `json:"duration"` // seconds
	DurationString string          `json:"duration_string"`
	Uploader       string          `json:"uploader"`
	ViewCount      int64           `json:"view_count"`
	Qualities      []QualityOption `json:"qualities"`
	URL            string          `json:"url"`
}

// DownloadRequest is a single download ask, derived from caller input.
type DownloadRequest struct {
	URL     string
	ID      string
	Quality string
	Kind    Kind
}

// DownloadResult describes a verified artifact on disk.
type DownloadResult struct {
	ID          string  `json:"video_id"`
	Title       string  `json:"title"`
	FilePath    string  `json:"file_path"`
	FileName    string  `json:"file_name"`
	Size        int64   `json:"file_size"`
	SizeMB      float64 `json:"file_size_mb"`
	Ext         string  `json:"ext"` // without the leading dot
	Quality     string  `json:"quality"`
	Kind        Kind    `json:"download_type"`
	ContentType string  `json:"content_type"`
}

// DownloadName is the file name offered to the user, built from the title.
func (r *DownloadResult) DownloadName() string {
	if r.Ext == "" {
		return httputil.SanitizeFilename(r.Title)
	}
	return httputil.SanitizeFilename(r.Title) + "." + r.Ext
}

// FormatDuration renders seconds as "M:SS" or "H:MM:SS".
func FormatDuration(seconds int) string {
	if seconds <= 0 {
		return "0:00"
	}
	hours := seconds / 3600
	minutes := (seconds % 3600) / 60
	secs := seconds % 60
	if hours > 0 {
		return fmt.Sprintf("%d:%02d:%02d", hours, minutes, secs)
	}
	return fmt.Sprintf("%d:%02d", minutes, secs)
}

// SizeMB converts bytes to mebibytes rounded to two decimals.
func SizeMB(bytes int64) float64 {
	return math.Round(float64(bytes)/(1024*1024)*100) / 100
}
