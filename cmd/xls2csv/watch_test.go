package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestDirWatcherMatches(t *testing.T) {
	w := &dirWatcher{extensions: []string{".xls", "XLSX"}}
	tests := map[string]bool{
		"/d/book.xls":   true,
		"/d/BOOK.XLS":   true,
		"/d/book.xlsx":  true,
		"/d/book.csv":   false,
		"/d/~$book.xls": false,
		"/d/noext":      false,
	}
	for path, want := range tests {
		if got := w.matches(path); got != want {
			t.Errorf("matches(%q)=%v, want %v", path, got, want)
		}
	}

	all := &dirWatcher{}
	if !all.matches("/d/anything.bin") {
		t.Errorf("watcher without extensions should match every file")
	}
}

func TestDirWatcherConverts(t *testing.T) {
	dir := t.TempDir()
	writeSample(t, dir, "existing.xls")

	converted := make(chan string, 16)
	w := &dirWatcher{
		dir:        dir,
		extensions: []string{".xls"},
		debounce:   50 * time.Millisecond,
		logger:     zap.NewNop(),
		convert: func(path string) error {
			converted <- filepath.Base(path)
			return nil
		},
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.run(ctx) }()

	expect := func(name string) {
		t.Helper()
		select {
		case got := <-converted:
			if got != name {
				t.Fatalf("converted %q, want %q", got, name)
			}
		case <-time.After(5 * time.Second):
			t.Fatalf("timed out waiting for %s", name)
		}
	}
	expect("existing.xls")

	// not a workbook by content, so it is skipped even though the name matches
	if err := os.WriteFile(filepath.Join(dir, "fake.xls"), []byte("text"), 0o644); err != nil {
		t.Fatal(err)
	}
	writeSample(t, dir, "new.xls")
	expect("new.xls")

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("watcher did not stop")
	}
	close(converted)
	for extra := range converted {
		if extra != "new.xls" {
			t.Fatalf("unexpected conversion of %s", extra)
		}
	}
}

func TestDirWatcherCancelDropsPending(t *testing.T) {
	called := make(chan struct{}, 1)
	w := &dirWatcher{
		debounce: time.Hour,
		logger:   zap.NewNop(),
		pending:  make(map[string]*time.Timer),
		convert: func(string) error {
			called <- struct{}{}
			return nil
		},
	}
	w.schedule("/d/a.xls")
	w.schedule("/d/a.xls")
	w.cancel("/d/a.xls")
	w.stop()
	select {
	case <-called:
		t.Fatalf("cancelled conversion ran")
	default:
	}
	if len(w.pending) != 0 {
		t.Fatalf("pending=%v", w.pending)
	}
}
