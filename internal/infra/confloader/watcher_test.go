package confloader

import (
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func TestNewWatcher(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))

	w, err := NewWatcher(WithWatcherLogger(logger))
	if err != nil {
		t.Fatalf("NewWatcher() error = %v", err)
	}
	defer w.Stop()

	if w.watcher == nil || w.done == nil {
		t.Error("NewWatcher() left fields unset")
	}
	if w.logger != logger {
		t.Error("WithWatcherLogger() option not applied")
	}
}

func TestWatcher_Watch_NonexistentDir(t *testing.T) {
	w, err := NewWatcher()
	if err != nil {
		t.Fatalf("NewWatcher() error = %v", err)
	}
	defer w.Stop()

	if err := w.Watch("/nonexistent/path/config.yaml"); err == nil {
		t.Error("Watch() expected error for nonexistent directory")
	}
}

func TestWatcher_StopTwice(t *testing.T) {
	w, err := NewWatcher()
	if err != nil {
		t.Fatalf("NewWatcher() error = %v", err)
	}
	w.StartAsync()
	if err := w.Stop(); err != nil {
		t.Errorf("Stop() error = %v", err)
	}
	if err := w.Stop(); err != nil {
		t.Errorf("second Stop() error = %v", err)
	}
}

func TestWatcher_ConcurrentCallbacks(t *testing.T) {
	w, err := NewWatcher()
	if err != nil {
		t.Fatalf("NewWatcher() error = %v", err)
	}
	defer w.Stop()

	var (
		mu    sync.Mutex
		count int
	)
	for i := 0; i < 2; i++ {
		w.OnChange(func(string) {
			mu.Lock()
			count++
			mu.Unlock()
		})
	}

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.notifyCallbacks("/test/path")
		}()
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	if count != 100 {
		t.Errorf("count = %d, want 100", count)
	}
}

func TestWatcher_FileChange(t *testing.T) {
	dir := t.TempDir()
	watched := filepath.Join(dir, "savevault.yaml")
	other := filepath.Join(dir, "other.txt")
	if err := os.WriteFile(watched, []byte("log:\n  level: info\n"), 0644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	w, err := NewWatcher()
	if err != nil {
		t.Fatalf("NewWatcher() error = %v", err)
	}
	if err := w.Watch(watched); err != nil {
		t.Fatalf("Watch() error = %v", err)
	}

	changed := make(chan string, 10)
	w.OnChange(func(path string) {
		select {
		case changed <- path:
		default:
		}
	})
	w.StartAsync()
	defer w.Stop()
	time.Sleep(100 * time.Millisecond)

	// Files next to the watched one are ignored.
	if err := os.WriteFile(other, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(watched, []byte("log:\n  level: debug\n"), 0644); err != nil {
		t.Fatal(err)
	}

	select {
	case path := <-changed:
		if filepath.Base(path) != "savevault.yaml" {
			t.Errorf("callback path = %q, want the watched file", path)
		}
	case <-time.After(2 * time.Second):
		t.Error("OnChange() callback was not triggered within timeout")
	}
}

func TestWatcher_FileReplacedByRename(t *testing.T) {
	dir := t.TempDir()
	watched := filepath.Join(dir, "state.json")
	if err := os.WriteFile(watched, []byte("{}"), 0644); err != nil {
		t.Fatal(err)
	}

	w, err := NewWatcher()
	if err != nil {
		t.Fatalf("NewWatcher() error = %v", err)
	}
	if err := w.Watch(watched); err != nil {
		t.Fatalf("Watch() error = %v", err)
	}
	changed := make(chan string, 10)
	w.OnChange(func(path string) {
		select {
		case changed <- path:
		default:
		}
	})
	w.StartAsync()
	defer w.Stop()
	time.Sleep(100 * time.Millisecond)

	tmp := filepath.Join(dir, "state.json.tmp")
	if err := os.WriteFile(tmp, []byte(`{"a":1}`), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.Rename(tmp, watched); err != nil {
		t.Fatal(err)
	}

	select {
	case <-changed:
	case <-time.After(2 * time.Second):
		t.Error("rename over the watched file was not reported")
	}
}
