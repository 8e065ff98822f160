// Package videoid extracts canonical YouTube video identifiers from
// user-supplied URLs. No network access happens here.
package videoid

import (
	"net/url"
	"regexp"
	"strings"

	"tubefetch/internal/media"
)

// Length is the fixed size of a video identifier.
const Length = 11

var (
	// Tried in order; the first match wins. The identifier segment must
	// end the path component, so 12-character segments are rejected.
	urlPatterns = []*regexp.Regexp{
		regexp.MustCompile(`^(?:https?://)?(?:www\.)?youtube\.com/watch\?v=([a-zA-Z0-9_-]{11})(?:$|[?&#/])`),
		regexp.MustCompile(`^(?:https?://)?(?:www\.)?youtu\.be/([a-zA-Z0-9_-]{11})(?:$|[?&#/])`),
		regexp.MustCompile(`^(?:https?://)?(?:www\.)?youtube\.com/embed/([a-zA-Z0-9_-]{11})(?:$|[?&#/])`),
		regexp.MustCompile(`^(?:https?://)?(?:www\.)?youtube\.com/v/([a-zA-Z0-9_-]{11})(?:$|[?&#/])`),
	}

	idPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]{11}$`)
)

// Resolve returns the identifier carried by rawURL.
func Resolve(rawURL string) (string, error) {
	s := strings.TrimSpace(rawURL)
	if s == "" {
		return "", media.Errorf(media.KindInvalidInput, "URL not provided")
	}

	for _, p := range urlPatterns {
		if m := p.FindStringSubmatch(s); m != nil {
			return m[1], nil
		}
	}

	if id, ok := fromQuery(s); ok {
		return id, nil
	}

	return "", media.Errorf(media.KindInvalidInput, "invalid YouTube URL: %q", s)
}

// fromQuery accepts any youtube.com/youtu.be URL whose first v parameter
// is a well-formed identifier, e.g. m.youtube.com/watch?feature=share&v=...
func fromQuery(s string) (string, bool) {
	u, err := url.Parse(s)
	if err != nil {
		return "", false
	}
	host := strings.ToLower(u.Host)
	if !strings.Contains(host, "youtube.com") && !strings.Contains(host, "youtu.be") {
		return "", false
	}
	values, ok := u.Query()["v"]
	if !ok || len(values) == 0 {
		return "", false
	}
	id := values[0]
	if len(id) != Length || !idPattern.MatchString(id) {
		return "", false
	}
	return id, true
}

// Valid reports whether id has the identifier shape.
func Valid(id string) bool {
	return idPattern.MatchString(id)
}

// WatchURL is the canonical page URL for id.
func WatchURL(id string) string {
	return "https://www.youtube.com/watch?v=" + id
}
