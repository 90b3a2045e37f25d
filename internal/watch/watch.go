// Package watch triggers rebuilds when component sources change.
package watch

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is how long the tree must be quiet before a rebuild.
const DefaultDebounce = 300 * time.Millisecond

// Watcher watches directory trees recursively.
type Watcher struct {
	fs       *fsnotify.Watcher
	ignore   []string
	debounce time.Duration
	progress io.Writer
}

// New watches every directory under roots except those under ignore and
// hidden directories such as .git.
func New(roots, ignore []string, debounce time.Duration) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	w := &Watcher{fs: fw, debounce: debounce}
	for _, p := range ignore {
		w.ignore = append(w.ignore, filepath.Clean(p))
	}
	for _, root := range roots {
		if err := w.addTree(root); err != nil {
			fw.Close()
			return nil, err
		}
	}
	return w, nil
}

// SetProgress sets the writer for progress logging.
func (w *Watcher) SetProgress(out io.Writer) {
	w.progress = out
}

func (w *Watcher) logf(format string, args ...any) {
	if w.progress != nil {
		fmt.Fprintf(w.progress, format+"\n", args...)
	}
}

// Close stops watching.
func (w *Watcher) Close() error {
	return w.fs.Close()
}

// WatchList returns the directories currently watched.
func (w *Watcher) WatchList() []string {
	list := w.fs.WatchList()
	sort.Strings(list)
	return list
}

func (w *Watcher) addTree(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return fmt.Errorf("walk %s: %w", path, err)
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && w.ignored(path) {
			return filepath.SkipDir
		}
		if err := w.fs.Add(path); err != nil {
			return fmt.Errorf("watch %s: %w", path, err)
		}
		return nil
	})
}

// ignored reports whether path is hidden or inside an ignored directory.
func (w *Watcher) ignored(path string) bool {
	if strings.HasPrefix(filepath.Base(path), ".") {
		return true
	}
	path = filepath.Clean(path)
	for _, ig := range w.ignore {
		if path == ig || strings.HasPrefix(path, ig+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

// Run calls onChange with the changed paths each time the watched trees have
// been quiet for the debounce interval. It returns when ctx is done.
func (w *Watcher) Run(ctx context.Context, onChange func(ctx context.Context, paths []string)) error {
	changes := make(chan string)
	go w.forward(ctx, changes)
	return collect(ctx, changes, w.debounce, func(paths []string) {
		onChange(ctx, paths)
	})
}

// forward filters fsnotify events into changes and watches new directories.
func (w *Watcher) forward(ctx context.Context, changes chan<- string) {
	defer close(changes)
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.fs.Events:
			if !ok {
				return
			}
			if event.Op == fsnotify.Chmod || w.ignored(event.Name) {
				continue
			}
			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := w.addTree(event.Name); err != nil {
						w.logf("warning: %v", err)
					}
				}
			}
			select {
			case changes <- event.Name:
			case <-ctx.Done():
				return
			}
		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			w.logf("warning: watch: %v", err)
		}
	}
}

// collect batches paths from in and calls fn once in has been quiet for wait.
func collect(ctx context.Context, in <-chan string, wait time.Duration, fn func(paths []string)) error {
	pending := make(map[string]bool)
	timer := time.NewTimer(wait)
	timer.Stop()
	defer timer.Stop()

	var fire <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case p, ok := <-in:
			if !ok {
				return ctx.Err()
			}
			pending[p] = true
			timer.Reset(wait)
			fire = timer.C
		case <-fire:
			fire = nil
			paths := make([]string, 0, len(pending))
			for p := range pending {
				paths = append(paths, p)
			}
			sort.Strings(paths)
			pending = make(map[string]bool)
			fn(paths)
		}
	}
}
