package watcher

import (
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
)

// skipDirNames are directory names never scanned in whole-disk mode;
// caches, VCS metadata, and build trees churn constantly and never
// contain user media worth reporting.
var skipDirNames = map[string]struct{}{
	".Trash":       {},
	".cache":       {},
	".npm":         {},
	".yarn":        {},
	".gradle":      {},
	".cargo":       {},
	"node_modules": {},
	".git":         {},
	"__pycache__":  {},
	".venv":        {},
	"venv":         {},
	"Caches":       {},
	"Containers":   {},
	"DerivedData":  {},
}

// Scan walks every watched root and reports new candidates. Safe to
// call concurrently; overlapping scans cannot double-report because
// the seen-set insertion is part of the report path.
func (w *Watcher) Scan() {
	w.mu.RLock()
	running := w.running
	roots := append([]string(nil), w.roots...)
	wholeDisk := w.wholeDisk
	w.mu.RUnlock()
	if !running {
		return
	}

	for _, root := range roots {
		if !accessible(root) {
			continue
		}
		w.scanRoot(root, wholeDisk)
	}
}

// scanRoot walks one root, skipping inaccessible subtrees silently.
func (w *Watcher) scanRoot(root string, applySkipList bool) {
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			if applySkipList {
				if _, skip := skipDirNames[d.Name()]; skip {
					return filepath.SkipDir
				}
			}
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return nil
		}
		w.consider(path, info.Size(), info.ModTime())
		return nil
	})
	if err != nil {
		w.log.Debug("scan root", zap.String("root", root), zap.Error(err))
	}
}

// consider applies the candidate policy and reports matches.
func (w *Watcher) consider(path string, size int64, modTime time.Time) {
	w.mu.RLock()
	_, extOK := w.exts[strings.ToLower(filepath.Ext(path))]
	started := w.startTime
	w.mu.RUnlock()

	if !extOK {
		return
	}
	if size == 0 {
		// Still being written; a later scan picks it up.
		return
	}
	if modTime.Before(started) {
		return
	}

	w.report(path, fingerprint(path, modTime))
}

// report inserts the fingerprint before dispatching so overlapping
// scans never double-report the same file.
func (w *Watcher) report(path, fp string) {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	if _, dup := w.seen[fp]; dup {
		w.mu.Unlock()
		return
	}
	w.seen[fp] = struct{}{}
	w.detected = append(w.detected, path)
	w.mu.Unlock()

	w.log.Info("new media file detected", zap.String("path", path))
	if w.onFile != nil {
		w.onFile(path)
	}
}

// primeSeen marks matching files that predate the watcher start as
// already seen, without reporting them.
func (w *Watcher) primeSeen(roots []string) {
	w.mu.RLock()
	exts := w.exts
	started := w.startTime
	w.mu.RUnlock()

	for _, root := range roots {
		if !accessible(root) {
			continue
		}
		_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				if d != nil && d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
			if d.IsDir() {
				return nil
			}
			if _, ok := exts[strings.ToLower(filepath.Ext(path))]; !ok {
				return nil
			}
			info, err := d.Info()
			if err != nil {
				return nil
			}
			if info.ModTime().Before(started) {
				w.mu.Lock()
				w.seen[fingerprint(path, info.ModTime())] = struct{}{}
				w.mu.Unlock()
			}
			return nil
		})
	}
}

// fingerprint builds the path + modification-time deduplication key.
func fingerprint(path string, modTime time.Time) string {
	return path + "|" + modTime.UTC().Format(time.RFC3339Nano)
}

// accessible probes a directory with a lightweight listing attempt.
// Any error means the folder is skipped; the probe itself must never
// trigger an interactive permission prompt.
func accessible(dir string) bool {
	f, err := os.Open(dir)
	if err != nil {
		return false
	}
	defer f.Close()

	if _, err := f.Readdirnames(1); err != nil && err != io.EOF {
		return false
	}
	return true
}

// accessibleOnly filters a root list down to readable directories.
func accessibleOnly(dirs []string) []string {
	out := make([]string, 0, len(dirs))
	for _, dir := range dirs {
		if accessible(dir) {
			out = append(out, dir)
		}
	}
	return out
}

// commonUserDirs is the fixed root list used in whole-disk mode when
// no explicit folders apply.
func commonUserDirs() []string {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil
	}
	return []string{
		filepath.Join(home, "Desktop"),
		filepath.Join(home, "Documents"),
		filepath.Join(home, "Downloads"),
		filepath.Join(home, "Movies"),
		filepath.Join(home, "Music"),
	}
}

// subdirectories lists root and every directory below it.
func subdirectories(root string) []string {
	dirs := []string{root}
	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() && path != root {
			dirs = append(dirs, path)
		}
		return nil
	})
	return dirs
}
