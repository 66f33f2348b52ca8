package reload

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
)

// startWatcher writes body to a fresh config file and runs a watcher on it.
func startWatcher(t *testing.T, body string, poll time.Duration, setup func(*Watcher)) (*Watcher, string) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "mimir.yaml")
	if body != "" {
		if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	w := NewWatcher(path, poll, testLogger())
	if setup != nil {
		setup(w)
	}
	go w.Run(t.Context())

	// Let the watcher take its initial fingerprint and subscribe.
	time.Sleep(50 * time.Millisecond)
	return w, path
}

func expectChange(t *testing.T, w *Watcher) {
	t.Helper()
	select {
	case <-w.Changes():
	case <-time.After(2 * time.Second):
		t.Fatal("no change detected")
	}
}

func expectNoChange(t *testing.T, w *Watcher, msg string) {
	t.Helper()
	select {
	case <-w.Changes():
		t.Fatal(msg)
	case <-time.After(300 * time.Millisecond):
	}
}

func TestWatcher_DetectsContentChange(t *testing.T) {
	t.Parallel()

	w, path := startWatcher(t, "version: \"1\"\n", 0, nil)
	if err := os.WriteFile(path, []byte("version: \"1\"\nlog: {level: debug}\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	expectChange(t, w)
}

func TestWatcher_DetectsAtomicSave(t *testing.T) {
	t.Parallel()

	w, path := startWatcher(t, "version: \"1\"\n", 0, nil)

	tmp := path + ".swp"
	if err := os.WriteFile(tmp, []byte("version: \"1\"\nchat.engine: {}\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Rename(tmp, path); err != nil {
		t.Fatal(err)
	}
	expectChange(t, w)
}

func TestWatcher_CoalescesBurst(t *testing.T) {
	t.Parallel()

	w, path := startWatcher(t, "version: \"1\"\n", 0, nil)
	for i := range 5 {
		body := []byte("version: \"1\"\n# edit " + string(rune('a'+i)) + "\n")
		if err := os.WriteFile(path, body, 0o644); err != nil {
			t.Fatal(err)
		}
	}
	expectChange(t, w)
	expectNoChange(t, w, "a burst of writes should signal once")
}

func TestWatcher_IgnoresTouch(t *testing.T) {
	t.Parallel()

	body := "version: \"1\"\n"
	w, path := startWatcher(t, body, 0, nil)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	future := time.Now().Add(time.Hour)
	if err := os.Chtimes(path, future, future); err != nil {
		t.Fatal(err)
	}
	expectNoChange(t, w, "rewriting identical content should not signal a change")
}

func TestWatcher_IgnoresSiblingFiles(t *testing.T) {
	t.Parallel()

	w, path := startWatcher(t, "version: \"1\"\n", 0, nil)
	if err := os.WriteFile(filepath.Join(filepath.Dir(path), "other.yaml"), []byte("x: 1\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	expectNoChange(t, w, "other files in the directory should not signal a change")
}

func TestWatcher_MissingFile(t *testing.T) {
	t.Parallel()

	w, _ := startWatcher(t, "", 10*time.Millisecond, nil)
	expectNoChange(t, w, "missing file should not signal a change")
}

func TestWatcher_PollsWhenEventsUnavailable(t *testing.T) {
	t.Parallel()

	w, path := startWatcher(t, "version: \"1\"\n", 10*time.Millisecond, func(w *Watcher) {
		w.newNotifier = func(string) (*fsnotify.Watcher, error) {
			return nil, errors.New("inotify limit reached")
		}
	})
	if err := os.WriteFile(path, []byte("version: \"1\"\nlog: {level: warn}\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	expectChange(t, w)
}

func TestNewWatcher_CleansPath(t *testing.T) {
	t.Parallel()

	w := NewWatcher("conf/../mimir.yaml", 0, nil)
	if w.path != "mimir.yaml" {
		t.Errorf("path = %q, want mimir.yaml", w.path)
	}
	if w.logger == nil || w.newNotifier == nil {
		t.Error("defaults not applied")
	}
}
