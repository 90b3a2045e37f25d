package pipeline

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/lucasnoah/wasmfactory/internal/taskcache"
	"github.com/lucasnoah/wasmfactory/internal/toolchain"
)

// runExternal executes a build command unless its targets are already newer
// than its sources. force always executes it. cmd.Dir must be absolute.
func (r *Runner) runExternal(ctx context.Context, cmd taskcache.ExternalCommand, force bool) (bool, error) {
	if !force {
		fresh, err := targetsFresh(cmd)
		if err != nil {
			return false, err
		}
		if fresh {
			return true, nil
		}
	}

	for _, d := range cmd.RmDirs {
		if err := os.RemoveAll(within(cmd.Dir, d)); err != nil {
			return false, fmt.Errorf("remove dir %s: %w", d, err)
		}
	}
	for _, d := range cmd.MkDirs {
		if err := os.MkdirAll(within(cmd.Dir, d), 0o755); err != nil {
			return false, fmt.Errorf("create dir %s: %w", d, err)
		}
	}

	if _, err := toolchain.RunChecked(ctx, r.cmd, cmd.Dir, cmd.Command); err != nil {
		return false, err
	}
	return false, nil
}

// targetsFresh reports whether every target pattern matches at least one file
// and the oldest target is not older than the newest source. Commands without
// both sources and targets are never fresh.
func targetsFresh(cmd taskcache.ExternalCommand) (bool, error) {
	if len(cmd.Sources) == 0 || len(cmd.Targets) == 0 {
		return false, nil
	}
	fsys := os.DirFS(cmd.Dir)

	var newestSource time.Time
	sources := 0
	for _, pattern := range cmd.Sources {
		err := eachMatch(fsys, pattern, func(mod time.Time) {
			sources++
			if mod.After(newestSource) {
				newestSource = mod
			}
		})
		if err != nil {
			return false, err
		}
	}
	if sources == 0 {
		return false, nil
	}

	var oldestTarget time.Time
	for _, pattern := range cmd.Targets {
		matched := 0
		err := eachMatch(fsys, pattern, func(mod time.Time) {
			matched++
			if oldestTarget.IsZero() || mod.Before(oldestTarget) {
				oldestTarget = mod
			}
		})
		if err != nil {
			return false, err
		}
		if matched == 0 {
			return false, nil
		}
	}
	return !oldestTarget.Before(newestSource), nil
}

// eachMatch calls fn with the modification time of every regular file
// matching pattern.
func eachMatch(fsys fs.FS, pattern string, fn func(time.Time)) error {
	pattern = path.Clean(filepath.ToSlash(pattern))
	matches, err := doublestar.Glob(fsys, pattern)
	if err != nil {
		return fmt.Errorf("glob %q: %w", pattern, err)
	}
	for _, m := range matches {
		info, err := fs.Stat(fsys, m)
		if err != nil {
			return fmt.Errorf("stat %s: %w", m, err)
		}
		if info.Mode().IsRegular() {
			fn(info.ModTime())
		}
	}
	return nil
}

func within(dir, p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(dir, p)
}
