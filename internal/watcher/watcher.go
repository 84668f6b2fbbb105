// Package watcher rebuilds a project when its sources change.
package watcher

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/DeusData/fntrace/internal/discover"
)

const (
	baseInterval = 1 * time.Second
	maxInterval  = 60 * time.Second
)

type fileSnapshot struct {
	modTime time.Time
	size    int64
}

type rootState struct {
	snapshot map[string]fileSnapshot
	interval time.Duration
	nextPoll time.Time
}

// BuildFunc is called when a change is detected under root.
type BuildFunc func(ctx context.Context, root string) error

// Watcher polls one project root with an adaptive interval. Filesystem
// notifications, when available, make the next poll happen immediately.
type Watcher struct {
	root    string
	opts    *discover.Options
	buildFn BuildFunc
	state   rootState
	ctx     context.Context
}

// New creates a Watcher for root. opts selects the files that count as
// sources and may be nil.
func New(root string, opts *discover.Options, buildFn BuildFunc) *Watcher {
	return &Watcher{
		root:    root,
		opts:    opts,
		buildFn: buildFn,
		ctx:     context.Background(),
	}
}

// Run blocks until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) {
	w.ctx = ctx
	ticker := time.NewTicker(baseInterval)
	defer ticker.Stop()

	var events <-chan fsnotify.Event
	fw, err := w.notifier()
	if err != nil {
		slog.Debug("watcher.notify_unavailable", "err", err)
	} else {
		defer fw.Close()
		events = fw.Events
		go drainErrors(fw)
	}

	w.poll()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if ev.Has(fsnotify.Create) {
				addTree(fw, ev.Name, w.skipDirs())
			}
			// Wake early; the snapshot diff decides whether to build.
			w.state.nextPoll = time.Time{}
		case <-ticker.C:
			w.poll()
		}
	}
}

func drainErrors(fw *fsnotify.Watcher) {
	for err := range fw.Errors {
		slog.Debug("watcher.notify", "err", err)
	}
}

func (w *Watcher) skipDirs() map[string]bool {
	skip := make(map[string]bool)
	if w.opts != nil {
		for _, d := range w.opts.SkipDirs {
			skip[filepath.Clean(d)] = true
		}
	}
	return skip
}

// notifier registers every non-ignored directory under root.
func (w *Watcher) notifier() (*fsnotify.Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	addTree(fw, w.root, w.skipDirs())
	return fw, nil
}

func addTree(fw *fsnotify.Watcher, dir string, skip map[string]bool) {
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			return nil
		}
		if path != dir && (discover.IGNORE_PATTERNS[d.Name()] || skip[path]) {
			return filepath.SkipDir
		}
		if addErr := fw.Add(path); addErr != nil {
			slog.Debug("watcher.add", "path", path, "err", addErr)
		}
		return nil
	})
}

// poll snapshots the root when due and compares with the previous snapshot.
// The first poll captures a baseline without building.
func (w *Watcher) poll() {
	now := time.Now()
	if now.Before(w.state.nextPoll) {
		return
	}
	state := &w.state

	if _, err := os.Stat(w.root); err != nil {
		slog.Warn("watcher.root_gone", "path", w.root)
		state.nextPoll = now.Add(maxInterval)
		return
	}

	snap, err := captureSnapshot(w.ctx, w.root, w.opts)
	if err != nil {
		slog.Warn("watcher.snapshot", "path", w.root, "err", err)
		state.nextPoll = now.Add(state.interval)
		return
	}

	interval := pollInterval(len(snap))

	if state.snapshot == nil {
		slog.Debug("watcher.baseline", "path", w.root, "files", len(snap))
		state.snapshot = snap
		state.interval = interval
		state.nextPoll = now.Add(interval)
		return
	}

	if snapshotsEqual(state.snapshot, snap) {
		state.interval = interval
		state.nextPoll = now.Add(interval)
		return
	}

	slog.Info("watcher.changed", "path", w.root, "files", len(snap))
	if err := w.buildFn(w.ctx, w.root); err != nil {
		slog.Warn("watcher.build", "path", w.root, "err", err)
		// Old snapshot stays so the next cycle retries.
		state.nextPoll = time.Now().Add(interval)
		return
	}

	state.snapshot = snap
	state.interval = interval
	state.nextPoll = time.Now().Add(interval)
}

// captureSnapshot records mtime and size for every discovered source file.
func captureSnapshot(ctx context.Context, root string, opts *discover.Options) (map[string]fileSnapshot, error) {
	files, err := discover.Discover(ctx, root, opts)
	if err != nil {
		return nil, err
	}

	snap := make(map[string]fileSnapshot, len(files))
	for _, f := range files {
		info, statErr := os.Stat(f.Path)
		if statErr != nil {
			continue
		}
		snap[f.RelPath] = fileSnapshot{
			modTime: info.ModTime(),
			size:    info.Size(),
		}
	}
	return snap, nil
}

// snapshotsEqual returns true if both snapshots hold the same files with the
// same mtime and size.
func snapshotsEqual(a, b map[string]fileSnapshot) bool {
	if len(a) != len(b) {
		return false
	}
	for path, aSnap := range a {
		bSnap, ok := b[path]
		if !ok {
			return false
		}
		if !aSnap.modTime.Equal(bSnap.modTime) || aSnap.size != bSnap.size {
			return false
		}
	}
	return true
}

// pollInterval is 1s plus 1s per 500 files, capped at maxInterval.
func pollInterval(fileCount int) time.Duration {
	d := baseInterval + time.Duration(fileCount/500)*time.Second
	if d > maxInterval {
		d = maxInterval
	}
	return d
}
