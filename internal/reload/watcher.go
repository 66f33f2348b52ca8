// Package reload applies configuration changes to a running application,
// triggered by SIGHUP or by edits to the configuration file.
package reload

import (
	"context"
	"crypto/sha256"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

const (
	// defaultPollInterval is used when filesystem events cannot be set up.
	defaultPollInterval = 5 * time.Second

	// settleDelay groups the burst of events an editor emits for one save.
	settleDelay = 100 * time.Millisecond
)

// Watcher signals when the content of a configuration file changes.
// Edits are picked up from filesystem events on the file's directory, so
// editors that save by renaming a temporary file are seen too. Touching the
// file without changing it does not trigger a reload.
type Watcher struct {
	path    string
	poll    time.Duration
	logger  *slog.Logger
	changes chan struct{}
	last    [sha256.Size]byte

	// newNotifier opens the event source; replaced in tests.
	newNotifier func(dir string) (*fsnotify.Watcher, error)
}

// NewWatcher creates a watcher for path. When poll is positive the file is
// also re-read on that interval, for network mounts that deliver no events.
func NewWatcher(path string, poll time.Duration, logger *slog.Logger) *Watcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{
		path:        filepath.Clean(path),
		poll:        poll,
		logger:      logger,
		changes:     make(chan struct{}, 1),
		newNotifier: watchDir,
	}
}

func watchDir(dir string) (*fsnotify.Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fw.Add(dir); err != nil {
		_ = fw.Close()
		return nil, err
	}
	return fw, nil
}

// Changes delivers one value per detected change. Changes that arrive
// while a previous one is still pending are coalesced.
func (w *Watcher) Changes() <-chan struct{} {
	return w.changes
}

// Run watches until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) {
	w.last, _ = w.fingerprint()

	var (
		events <-chan fsnotify.Event
		errs   <-chan error
	)
	poll := w.poll
	fw, err := w.newNotifier(filepath.Dir(w.path))
	if err != nil {
		if poll <= 0 {
			poll = defaultPollInterval
		}
		w.logger.Warn("config file events unavailable, polling instead",
			"path", w.path,
			"interval", poll,
			"error", err,
		)
	} else {
		defer func() { _ = fw.Close() }()
		events, errs = fw.Events, fw.Errors
	}

	var tick <-chan time.Time
	if poll > 0 {
		ticker := time.NewTicker(poll)
		defer ticker.Stop()
		tick = ticker.C
	}

	settle := time.NewTimer(settleDelay)
	settle.Stop()
	defer settle.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if filepath.Clean(ev.Name) != w.path || ev.Op == fsnotify.Chmod {
				continue
			}
			settle.Reset(settleDelay)
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			w.logger.Warn("config watcher error", "path", w.path, "error", err)
		case <-settle.C:
			w.check()
		case <-tick:
			w.check()
		}
	}
}

// check signals a change when the file content differs from the last seen.
func (w *Watcher) check() {
	current, ok := w.fingerprint()
	// A missing file is usually an editor mid-save.
	if !ok || current == w.last {
		return
	}
	w.last = current
	select {
	case w.changes <- struct{}{}:
	default:
	}
}

func (w *Watcher) fingerprint() ([sha256.Size]byte, bool) {
	raw, err := os.ReadFile(w.path)
	if err != nil {
		return [sha256.Size]byte{}, false
	}
	return sha256.Sum256(raw), true
}
