package extract

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"

	"tubefetch/internal/httputil"
)

// maxPageBytes caps how much of a watch page is read.
const maxPageBytes = 8 << 20

var isoDuration = regexp.MustCompile(`^P(?:(\d+)D)?(?:T(?:(\d+)H)?(?:(\d+)M)?(?:(\d+)S)?)?$`)

// WatchPage scrapes the public watch page for basic metadata. It returns
// no formats, so callers only ever offer "best" for videos resolved here.
type WatchPage struct {
	client *http.Client

	mu      sync.Mutex
	proxied map[string]*http.Client
}

// NewWatchPage creates a scraper using client for direct requests.
func NewWatchPage(client *http.Client) *WatchPage {
	return &WatchPage{client: client, proxied: make(map[string]*http.Client)}
}

// FetchMetadata fetches url and reads the embedded microdata.
func (w *WatchPage) FetchMetadata(ctx context.Context, url string, opts Options) (*Info, error) {
	client, err := w.clientFor(opts.Proxy)
	if err != nil {
		return nil, err
	}

	var cookies []*http.Cookie
	if opts.CookiesFile != "" {
		cookies, err = loadCookies(opts.CookiesFile)
		if err != nil {
			return nil, err
		}
	}

	resp, err := httputil.Get(ctx, client, url, opts.UserAgent, cookies...)
	if err != nil {
		return nil, fmt.Errorf("fetching watch page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &UpstreamError{Message: fmt.Sprintf("HTTP Error %d: %s", resp.StatusCode, http.StatusText(resp.StatusCode))}
	}

	doc, err := goquery.NewDocumentFromReader(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return nil, fmt.Errorf("parsing watch page: %w", err)
	}

	return parseWatchPage(doc)
}

func (w *WatchPage) clientFor(proxy string) (*http.Client, error) {
	if proxy == "" {
		return w.client, nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if c, ok := w.proxied[proxy]; ok {
		return c, nil
	}
	c, err := httputil.NewClient(httputil.WithProxy(proxy))
	if err != nil {
		return nil, err
	}
	w.proxied[proxy] = c
	return c, nil
}

func parseWatchPage(doc *goquery.Document) (*Info, error) {
	meta := func(selector string) string {
		v, _ := doc.Find(selector).First().Attr("content")
		return strings.TrimSpace(v)
	}

	info := &Info{
		ID:        meta(`meta[itemprop="identifier"]`),
		Title:     meta(`meta[property="og:title"]`),
		Thumbnail: meta(`meta[property="og:image"]`),
		Uploader:  meta(`[itemprop="author"] [itemprop="name"]`),
	}
	if info.Title == "" {
		info.Title = meta(`meta[name="title"]`)
	}
	if d, ok := parseISODuration(meta(`meta[itemprop="duration"]`)); ok {
		info.Duration = float64(d)
	}
	if n, err := strconv.ParseInt(meta(`meta[itemprop="interactionCount"]`), 10, 64); err == nil {
		info.ViewCount = n
	}

	if info.ID == "" && info.Title == "" {
		text := strings.ToLower(doc.Find("body").Text())
		if strings.Contains(text, "sign in to confirm") {
			return nil, &UpstreamError{Message: "Sign in to confirm you're not a bot"}
		}
		return nil, &UpstreamError{Message: "watch page did not contain video metadata"}
	}
	return info, nil
}

// parseISODuration parses the PnDTnHnMnS subset used by schema.org.
func parseISODuration(s string) (int, bool) {
	m := isoDuration.FindStringSubmatch(s)
	if m == nil || s == "P" || s == "PT" {
		return 0, false
	}
	total := 0
	for i, unit := range []int{86400, 3600, 60, 1} {
		if m[i+1] == "" {
			continue
		}
		n, err := strconv.Atoi(m[i+1])
		if err != nil {
			return 0, false
		}
		total += n * unit
	}
	return total, true
}

// loadCookies reads a Netscape cookies.txt file. "#HttpOnly_" prefixed
// lines are real cookies; other comment lines are skipped.
func loadCookies(path string) ([]*http.Cookie, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading cookies file: %w", err)
	}

	var cookies []*http.Cookie
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		line = strings.TrimPrefix(line, "#HttpOnly_")
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.Split(line, "\t")
		if len(parts) < 7 {
			continue
		}
		cookies = append(cookies, &http.Cookie{
			Name:   parts[5],
			Value:  parts[6],
			Domain: parts[0],
			Path:   parts[2],
			Secure: strings.EqualFold(parts[3], "TRUE"),
		})
	}
	return cookies, nil
}
