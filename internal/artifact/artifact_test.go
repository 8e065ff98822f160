package artifact

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tubefetch/internal/media"
	"tubefetch/internal/metrics"
)

var t0 = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

func newManager(t *testing.T, maxSize int64) (*Manager, string) {
	t.Helper()
	dir := t.TempDir()
	return New(dir, maxSize, zerolog.Nop(), nil, WithClock(func() time.Time { return t0 })), dir
}

func writeFile(t *testing.T, dir, name string, data string, age time.Duration) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(data), 0644))
	mtime := t0.Add(-age)
	require.NoError(t, os.Chtimes(path, mtime, mtime))
	return path
}

func TestSweepByAge(t *testing.T) {
	m, dir := newManager(t, 0)
	old := writeFile(t, dir, "old.mp4", "old", 4000*time.Second)
	fresh := writeFile(t, dir, "fresh.mp4", "fresh", 10*time.Second)

	report := m.Sweep(3600 * time.Second)

	assert.Equal(t, []string{"old.mp4"}, report.Removed)
	assert.Zero(t, report.Failed)
	assert.Equal(t, int64(3), report.Freed)
	assert.NoFileExists(t, old)
	assert.FileExists(t, fresh)
}

func TestSweepIsIdempotent(t *testing.T) {
	m, dir := newManager(t, 0)
	writeFile(t, dir, "a.mp3", "a", 2*time.Hour)
	writeFile(t, dir, "b.mp3", "b", 3*time.Hour)

	first := m.Sweep(time.Hour)
	second := m.Sweep(time.Hour)

	assert.Len(t, first.Removed, 2)
	assert.Empty(t, second.Removed)
}

func TestSweepBoundaryIsExclusive(t *testing.T) {
	m, dir := newManager(t, 0)
	path := writeFile(t, dir, "edge.mp4", "x", time.Hour)

	assert.Empty(t, m.Sweep(time.Hour).Removed)
	assert.FileExists(t, path)
}

func TestSweepSkipsReservedAndDirs(t *testing.T) {
	m, dir := newManager(t, 0)
	keep := writeFile(t, dir, ".gitkeep", "", 48*time.Hour)
	keep2 := writeFile(t, dir, ".keep", "", 48*time.Hour)
	sub := filepath.Join(dir, "nested")
	require.NoError(t, os.Mkdir(sub, 0755))
	require.NoError(t, os.Chtimes(sub, t0.Add(-48*time.Hour), t0.Add(-48*time.Hour)))

	report := m.Sweep(time.Hour)

	assert.Empty(t, report.Removed)
	assert.FileExists(t, keep)
	assert.FileExists(t, keep2)
	assert.DirExists(t, sub)
}

func TestSweepMissingDir(t *testing.T) {
	m := New(filepath.Join(t.TempDir(), "missing"), 0, zerolog.Nop(), nil)
	report := m.Sweep(time.Hour)
	assert.Empty(t, report.Removed)
	assert.Zero(t, report.Failed)
}

func TestSweepRecordsMetrics(t *testing.T) {
	met := metrics.New(prometheus.NewRegistry())
	dir := t.TempDir()
	m := New(dir, 0, zerolog.Nop(), met, WithClock(func() time.Time { return t0 }))
	writeFile(t, dir, "a.mp4", "a", 2*time.Hour)

	m.Sweep(time.Hour)

	assert.Equal(t, 1.0, testutil.ToFloat64(met.SweptFiles.WithLabelValues("removed")))
}

func TestVerify(t *testing.T) {
	m, dir := newManager(t, 10)

	ok := writeFile(t, dir, "ok.mp4", "12345", 0)
	size, err := m.Verify(ok)
	require.NoError(t, err)
	assert.Equal(t, int64(5), size)

	_, err = m.Verify(filepath.Join(dir, "absent.mp4"))
	assert.ErrorIs(t, err, media.ErrDownloadIncomplete)

	empty := writeFile(t, dir, "empty.mp4", "", 0)
	_, err = m.Verify(empty)
	assert.ErrorIs(t, err, media.ErrDownloadIncomplete)

	_, err = m.Verify(dir)
	assert.ErrorIs(t, err, media.ErrDownloadIncomplete)
}

func TestVerifyTooLargeRemovesFile(t *testing.T) {
	m, dir := newManager(t, 10)
	big := writeFile(t, dir, "big.mp4", strings.Repeat("x", 11), 0)

	_, err := m.Verify(big)

	assert.ErrorIs(t, err, media.ErrFileTooLarge)
	assert.NoFileExists(t, big)
}

func TestDeliverDeletesOnSuccess(t *testing.T) {
	m, dir := newManager(t, 0)
	path := writeFile(t, dir, "clip.mp4", "payload", 0)

	var sb strings.Builder
	n, err := m.Deliver(path, &sb)

	require.NoError(t, err)
	assert.Equal(t, int64(7), n)
	assert.Equal(t, "payload", sb.String())
	assert.NoFileExists(t, path)
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("client disconnected") }

func TestDeliverDeletesOnWriteFailure(t *testing.T) {
	m, dir := newManager(t, 0)
	path := writeFile(t, dir, "clip.mp4", "payload", 0)

	_, err := m.Deliver(path, failingWriter{})

	require.Error(t, err)
	assert.NoFileExists(t, path)
}

func TestDeliverMissingFile(t *testing.T) {
	m, dir := newManager(t, 0)
	_, err := m.Deliver(filepath.Join(dir, "gone.mp4"), &strings.Builder{})
	assert.ErrorIs(t, err, media.ErrDownloadIncomplete)
}

func TestDeliveryCloseRemovesOnce(t *testing.T) {
	m, dir := newManager(t, 0)
	path := writeFile(t, dir, "clip.mp4", "payload", 0)

	d, err := m.Open(path)
	require.NoError(t, err)
	assert.FileExists(t, path)

	require.NoError(t, d.Close())
	assert.NoFileExists(t, path)

	// A file with the same name written after the first Close must survive
	// a second Close.
	writeFile(t, dir, "clip.mp4", "new", 0)
	assert.NoError(t, d.Close())
	assert.FileExists(t, path)
}

func TestContentType(t *testing.T) {
	m, dir := newManager(t, 0)
	png := writeFile(t, dir, "thumb", "\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR", 0)
	assert.Equal(t, "image/png", m.ContentType(png))
	assert.Equal(t, DefaultContentType, m.ContentType(filepath.Join(dir, "absent")))
}

func TestEnsure(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "a", "b")
	m := New(dir, 0, zerolog.Nop(), nil)
	require.NoError(t, m.Ensure())
	assert.DirExists(t, dir)
	assert.Equal(t, dir, m.Dir())
}
