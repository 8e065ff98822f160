// Package format turns abstract quality requests into yt-dlp format
// selection expressions.
package format

import (
	"fmt"
	"strconv"
	"strings"

	"tubefetch/internal/media"
)

// Best is the unconstrained quality token.
const Best = "best"

// Audio post-processing target.
const (
	AudioCodec   = "mp3"
	AudioBitrate = "192"
)

// Expression tells the extraction engine which streams to pick and how to
// post-process them.
type Expression struct {
	Selector     string
	ExtractAudio bool
	AudioCodec   string
	AudioQuality string
	MergeFormat  string
}

// Ext is the extension the artifact ends up with when it is fixed by
// post-processing, or "" when it follows the source stream.
func (e Expression) Ext() string {
	if e.ExtractAudio {
		return e.AudioCodec
	}
	return e.MergeFormat
}

// Resolve maps quality and kind to an Expression. Audio ignores quality.
func Resolve(quality string, kind media.Kind) (Expression, error) {
	if kind == media.Audio {
		return Expression{
			Selector:     "bestaudio/best",
			ExtractAudio: true,
			AudioCodec:   AudioCodec,
			AudioQuality: AudioBitrate,
		}, nil
	}

	q := strings.ToLower(strings.TrimSpace(quality))
	if q == Best {
		return Expression{Selector: Best}, nil
	}

	h, ok := Height(q)
	if !ok {
		return Expression{}, media.Errorf(media.KindInvalidInput, "malformed quality %q (expected \"best\" or \"<height>p\")", quality)
	}

	// Split streams capped at h, then a combined stream capped at h, then anything.
	return Expression{
		Selector:    fmt.Sprintf("bestvideo[height<=%d]+bestaudio/best[height<=%d]/best", h, h),
		MergeFormat: "mp4",
	}, nil
}

// Height parses a "<N>p" token. N must be a positive decimal integer.
func Height(token string) (int, bool) {
	t := strings.ToLower(strings.TrimSpace(token))
	digits, found := strings.CutSuffix(t, "p")
	if !found || digits == "" {
		return 0, false
	}
	for _, r := range digits {
		if r < '0' || r > '9' {
			return 0, false
		}
	}
	h, err := strconv.Atoi(digits)
	if err != nil || h <= 0 {
		return 0, false
	}
	return h, true
}

// Validate normalises quality and checks it against the available tokens.
// An empty quality means best.
func Validate(quality string, available []string) (string, error) {
	q := strings.ToLower(strings.TrimSpace(quality))
	if q == "" {
		return Best, nil
	}
	for _, a := range available {
		if strings.ToLower(a) == q {
			return q, nil
		}
	}
	return "", media.Errorf(media.KindInvalidInput, "quality %q not available (valid: %s)", quality, strings.Join(available, ", "))
}

// ValidToken reports whether token is "best" or "<N>p".
func ValidToken(token string) bool {
	if strings.EqualFold(strings.TrimSpace(token), Best) {
		return true
	}
	_, ok := Height(token)
	return ok
}
