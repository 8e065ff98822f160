// Package artifact owns downloaded files from the moment they are verified
// until they are deleted, either after delivery or by the age sweep.
package artifact

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog"

	"tubefetch/internal/media"
	"tubefetch/internal/metrics"
)

// DefaultContentType is reported when detection fails.
const DefaultContentType = "application/octet-stream"

// reserved names are never swept.
var reserved = map[string]bool{
	".gitkeep": true,
	".keep":    true,
}

// Manager verifies, delivers and reclaims files in one directory.
type Manager struct {
	dir     string
	maxSize int64
	now     func() time.Time
	log     zerolog.Logger
	metrics *metrics.Metrics
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock replaces the time source used by Sweep.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// New creates a manager for dir. A maxSize of zero disables the size check.
func New(dir string, maxSize int64, log zerolog.Logger, m *metrics.Metrics, opts ...Option) *Manager {
	mgr := &Manager{
		dir:     dir,
		maxSize: maxSize,
		now:     time.Now,
		log:     log,
		metrics: m,
	}
	for _, opt := range opts {
		opt(mgr)
	}
	return mgr
}

// Dir returns the managed directory.
func (m *Manager) Dir() string { return m.dir }

// Ensure creates the directory if needed.
func (m *Manager) Ensure() error {
	if err := os.MkdirAll(m.dir, 0755); err != nil {
		return fmt.Errorf("creating download directory: %w", err)
	}
	return nil
}

// Verify checks that path is a non-empty regular file within the size
// limit. Oversized files are removed before the error is returned.
func (m *Manager) Verify(path string) (int64, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return 0, media.Wrap(media.KindDownloadIncomplete, err, "download completed but file not found")
	}
	if fi.IsDir() {
		return 0, media.Errorf(media.KindDownloadIncomplete, "download produced a directory, not a file")
	}
	size := fi.Size()
	if size == 0 {
		return 0, media.Errorf(media.KindDownloadIncomplete, "downloaded file is empty")
	}
	if m.maxSize > 0 && size > m.maxSize {
		m.remove(path)
		return 0, media.Errorf(media.KindFileTooLarge, "file too large (%s). Maximum size: %s",
			humanize.IBytes(uint64(size)), humanize.IBytes(uint64(m.maxSize)))
	}
	return size, nil
}

// ContentType sniffs the file's MIME type.
func (m *Manager) ContentType(path string) string {
	mt, err := mimetype.DetectFile(path)
	if err != nil {
		return DefaultContentType
	}
	return mt.String()
}

// Delivery streams an artifact and deletes it when closed.
type Delivery struct {
	*os.File
	mgr  *Manager
	once sync.Once
}

// Open returns a reader whose Close removes the file. Close is safe to
// call more than once; the file is removed on the first call.
func (m *Manager) Open(path string) (*Delivery, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, media.Wrap(media.KindDownloadIncomplete, err, "artifact is no longer available")
	}
	return &Delivery{File: f, mgr: m}, nil
}

// Close closes the underlying file, then removes it.
func (d *Delivery) Close() error {
	var err error
	d.once.Do(func() {
		err = d.File.Close()
		d.mgr.remove(d.File.Name())
	})
	return err
}

// Deliver copies the artifact at path to w and deletes it on every exit
// path, including a write failure on w.
func (m *Manager) Deliver(path string, w io.Writer) (int64, error) {
	d, err := m.Open(path)
	if err != nil {
		m.metrics.RecordDelivery("error")
		return 0, err
	}
	defer d.Close()

	n, err := io.Copy(w, d)
	if err != nil {
		m.metrics.RecordDelivery("aborted")
		return n, fmt.Errorf("delivering %s: %w", filepath.Base(path), err)
	}
	m.metrics.RecordDelivery("success")
	m.log.Debug().Str("file", filepath.Base(path)).Str("size", humanize.IBytes(uint64(n))).Msg("delivered")
	return n, nil
}

// SweepReport summarises one sweep.
type SweepReport struct {
	Removed []string
	Failed  int
	Freed   int64
}

// Sweep deletes regular files in the directory whose modification time is
// strictly older than retention. Individual failures are logged and
// counted; they never stop the sweep.
func (m *Manager) Sweep(retention time.Duration) SweepReport {
	var report SweepReport

	entries, err := os.ReadDir(m.dir)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			m.log.Warn().Err(err).Str("dir", m.dir).Msg("sweep could not list directory")
		}
		return report
	}

	now := m.now()
	for _, e := range entries {
		if e.IsDir() || reserved[e.Name()] {
			continue
		}
		info, err := e.Info()
		if err != nil {
			// Raced with a delivery that already removed it.
			if !errors.Is(err, fs.ErrNotExist) {
				report.Failed++
				m.log.Warn().Err(err).Str("file", e.Name()).Msg("sweep could not stat file")
			}
			continue
		}
		if !info.Mode().IsRegular() || now.Sub(info.ModTime()) <= retention {
			continue
		}

		path := filepath.Join(m.dir, e.Name())
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			report.Failed++
			m.log.Warn().Err(err).Str("file", e.Name()).Msg("sweep could not remove file")
			continue
		}
		report.Removed = append(report.Removed, e.Name())
		report.Freed += info.Size()
	}

	m.metrics.RecordSweep(len(report.Removed), report.Failed)
	if len(report.Removed) > 0 {
		m.log.Info().Int("removed", len(report.Removed)).Str("freed", humanize.IBytes(uint64(report.Freed))).Msg("swept old files")
	}
	return report
}

func (m *Manager) remove(path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		m.log.Warn().Err(err).Str("file", filepath.Base(path)).Msg("failed to remove artifact")
	}
}
