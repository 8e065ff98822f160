package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"tubefetch/internal/httputil"
)

// maxStderrMessage bounds how much engine output ends up in an error.
const maxStderrMessage = 512

const waitDelay = 5 * time.Second

// YtDlp runs the yt-dlp binary. Arguments are always passed as an explicit
// slice; no shell is involved.
type YtDlp struct {
	path string
	log  zerolog.Logger
}

// NewYtDlp resolves the binary (a name on PATH or an absolute path).
func NewYtDlp(binary string, log zerolog.Logger) (*YtDlp, error) {
	if binary == "" {
		binary = "yt-dlp"
	}
	path, err := exec.LookPath(binary)
	if err != nil {
		return nil, fmt.Errorf("yt-dlp not found: %w", err)
	}
	return &YtDlp{path: path, log: log}, nil
}

// FetchMetadata runs the engine in simulate mode and decodes its info dict.
func (y *YtDlp) FetchMetadata(ctx context.Context, url string, opts Options) (*Info, error) {
	info, _, err := y.run(ctx, BuildArgs(url, opts, false))
	return info, err
}

// FetchAndDownload runs the engine for real and reports the written path.
func (y *YtDlp) FetchAndDownload(ctx context.Context, url string, opts Options) (*Info, string, error) {
	return y.run(ctx, BuildArgs(url, opts, true))
}

func (y *YtDlp) run(ctx context.Context, args []string) (*Info, string, error) {
	cmd := exec.CommandContext(ctx, y.path, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	// ffmpeg children can outlive a killed yt-dlp and hold the pipes open.
	cmd.WaitDelay = waitDelay

	y.log.Debug().Strs("args", args).Msg("running yt-dlp")

	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, "", fmt.Errorf("yt-dlp: %w", ctxErr)
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return nil, "", &UpstreamError{
				Message:  stderrMessage(stderr.String(), exitErr.ExitCode()),
				ExitCode: exitErr.ExitCode(),
			}
		}
		return nil, "", fmt.Errorf("running yt-dlp: %w", err)
	}

	var info Info
	if err := json.Unmarshal(stdout.Bytes(), &info); err != nil {
		return nil, "", &UpstreamError{Message: fmt.Sprintf("decoding yt-dlp output: %v", err)}
	}
	return &info, info.FilePath(), nil
}

// BuildArgs assembles the engine command line. Metadata mode never touches
// media bytes and asks for the smallest useful info surface.
func BuildArgs(url string, opts Options, download bool) []string {
	args := []string{"--dump-single-json", "--no-playlist", "--no-warnings", "--no-progress"}

	extractorArgs := playerArgs(opts)
	if download {
		args = append(args, "--no-simulate")
	} else {
		args = append(args, "--skip-download")
		extractorArgs = append(extractorArgs, "skip=dash,hls")
	}
	if len(extractorArgs) > 0 {
		args = append(args, "--extractor-args", "youtube:"+strings.Join(extractorArgs, ";"))
	}

	if opts.UserAgent != "" {
		args = append(args, "--user-agent", opts.UserAgent)
	}
	if opts.Referer != "" {
		args = append(args, "--referer", opts.Referer)
	}
	if opts.SocketTimeout > 0 {
		args = append(args, "--socket-timeout", strconv.Itoa(int(opts.SocketTimeout.Seconds())))
	}
	if opts.CookiesFile != "" {
		args = append(args, "--cookies", opts.CookiesFile)
	}
	if opts.Proxy != "" {
		args = append(args, "--proxy", opts.Proxy)
	}

	if download {
		if opts.Format != "" {
			args = append(args, "-f", opts.Format)
		}
		if opts.OutputTemplate != "" {
			args = append(args, "-o", opts.OutputTemplate)
		}
		if opts.Retries > 0 {
			n := strconv.Itoa(opts.Retries)
			args = append(args, "--retries", n, "--fragment-retries", n)
		}
		if opts.ConcurrentFragments > 1 {
			args = append(args, "--concurrent-fragments", strconv.Itoa(opts.ConcurrentFragments))
		}
		if opts.ExtractAudio {
			args = append(args, "-x")
			if opts.AudioFormat != "" {
				args = append(args, "--audio-format", opts.AudioFormat)
			}
			if opts.AudioQuality != "" {
				args = append(args, "--audio-quality", opts.AudioQuality)
			}
		} else if opts.MergeFormat != "" {
			args = append(args, "--merge-output-format", opts.MergeFormat)
		}
	}

	// "--" keeps a hostile URL from being read as an option.
	return append(args, "--", url)
}

func playerArgs(opts Options) []string {
	var out []string
	if len(opts.PlayerClients) > 0 {
		out = append(out, "player_client="+strings.Join(opts.PlayerClients, ","))
	}
	if len(opts.PlayerSkip) > 0 {
		out = append(out, "player_skip="+strings.Join(opts.PlayerSkip, ","))
	}
	return out
}

// stderrMessage picks the last "ERROR:" line, or falls back to the
// trimmed output.
func stderrMessage(stderr string, exitCode int) string {
	var last string
	for _, line := range strings.Split(stderr, "\n") {
		line = strings.TrimSpace(line)
		if rest, ok := strings.CutPrefix(line, "ERROR:"); ok {
			last = strings.TrimSpace(rest)
		}
	}
	if last == "" {
		last = strings.TrimSpace(stderr)
	}
	if last == "" {
		return fmt.Sprintf("yt-dlp exited with status %d", exitCode)
	}
	if len(last) > maxStderrMessage {
		last = httputil.TruncateUTF8(last, maxStderrMessage) + "..."
	}
	return last
}
