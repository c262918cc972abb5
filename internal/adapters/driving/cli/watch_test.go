package cli

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatchAndRun_RerunsOnChange(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "main.typ")
	require.NoError(t, os.WriteFile(input, []byte("= Title"), 0644))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runs := make(chan struct{}, 10)
	done := make(chan error, 1)
	go func() {
		done <- watchAndRun(ctx, []string{input}, 20*time.Millisecond, func(context.Context) {
			runs <- struct{}{}
		})
	}()

	waitRun := func() {
		t.Helper()
		select {
		case <-runs:
		case <-time.After(5 * time.Second):
			t.Fatal("timed out waiting for a run")
		}
	}

	waitRun()
	require.NoError(t, os.WriteFile(input, []byte("= Changed"), 0644))
	waitRun()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not stop")
	}
}

func TestRelevant(t *testing.T) {
	dir := t.TempDir()
	manifest := filepath.Join(dir, "typst.toml")
	files := map[string]bool{manifest: true}

	tests := []struct {
		name  string
		event fsnotify.Event
		want  bool
	}{
		{name: "manifest written", event: fsnotify.Event{Name: manifest, Op: fsnotify.Write}, want: true},
		{name: "typ file created", event: fsnotify.Event{Name: filepath.Join(dir, "chapter.typ"), Op: fsnotify.Create}, want: true},
		{name: "typ file renamed", event: fsnotify.Event{Name: filepath.Join(dir, "old.typ"), Op: fsnotify.Rename}, want: true},
		{name: "output written", event: fsnotify.Event{Name: filepath.Join(dir, "shell-index.toml"), Op: fsnotify.Write}, want: false},
		{name: "chmod", event: fsnotify.Event{Name: manifest, Op: fsnotify.Chmod}, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, relevant(tt.event, files))
		})
	}
}
