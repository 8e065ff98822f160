package ui

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"tubefetch/internal/media"
)

func TestRenderMetadata(t *testing.T) {
	md := &media.VideoMetadata{
		ID:             "dQw4w9WgXcQ",
		Title:          "Never Gonna Give You Up",
		DurationString: "3:33",
		Uploader:       "Rick Astley",
		ViewCount:      1234567,
		Qualities:      []media.QualityOption{media.BestQuality, {Value: "720p"}},
		URL:            "https://www.youtube.com/watch?v=dQw4w9WgXcQ",
	}

	out := RenderMetadata(md)
	for _, want := range []string{"Never Gonna Give You Up", "Rick Astley", "3:33", "1,234,567", "best, 720p", md.URL} {
		if !strings.Contains(out, want) {
			t.Errorf("RenderMetadata() missing %q:\n%s", want, out)
		}
	}
}

func TestRenderResult(t *testing.T) {
	res := &media.DownloadResult{Title: "Clip", Size: 3 * 1024 * 1024, Ext: "mp4", ContentType: "video/mp4"}
	out := RenderResult(res, "/tmp/Clip.mp4")
	for _, want := range []string{"Clip", "/tmp/Clip.mp4", "3.0 MiB", "video/mp4"} {
		if !strings.Contains(out, want) {
			t.Errorf("RenderResult() missing %q:\n%s", want, out)
		}
	}
}

func TestRenderError(t *testing.T) {
	if out := RenderError(errors.New("boom")); !strings.Contains(out, "boom") {
		t.Errorf("RenderError() = %q", out)
	}
}

func TestRunWithSpinnerNonTerminal(t *testing.T) {
	f, err := os.Create(filepath.Join(t.TempDir(), "out"))
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	called := false
	want := errors.New("fn failed")
	got := RunWithSpinner(f, "working", func() error {
		called = true
		return want
	})
	if !called {
		t.Fatal("fn was not called")
	}
	if !errors.Is(got, want) {
		t.Errorf("RunWithSpinner() = %v, want %v", got, want)
	}

	info, _ := f.Stat()
	if info.Size() != 0 {
		t.Errorf("non-terminal output should stay clean, wrote %d bytes", info.Size())
	}
}

func TestSpinnerModelQuitsWhenDone(t *testing.T) {
	m := newSpinnerModel("downloading")
	if !strings.Contains(m.View(), "downloading") {
		t.Errorf("View() = %q", m.View())
	}

	next, cmd := m.Update(doneMsg{})
	if cmd == nil {
		t.Fatal("expected quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("done should quit the program")
	}
	if next.View() != "" {
		t.Errorf("View() after done = %q, want empty", next.View())
	}
}
