package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"
)

// DefaultMaxFileSize is the roll-over size used when none is configured
const DefaultMaxFileSize int64 = 100 * 1024 * 1024

var numberedLogFile = regexp.MustCompile(`^app-\d{4}-W\d{2}_(\d{2})\.log$`)

// RotatingWriter writes to one log file per ISO week (logs/app-2026-W42.log). When a
// file reaches maxSize the writer continues in app-2026-W42_01.log, _02 and so on.
// Files older than the retention period are removed by Cleanup.
type RotatingWriter struct {
	dir       string
	retention time.Duration
	maxSize   int64
	now       func() time.Time

	mu   sync.Mutex
	file *os.File
	week string
	size int64
}

// NewRotatingWriter opens the file for the current week. A maxSize of 0 disables
// size based roll-over.
func NewRotatingWriter(dir string, retentionWeeks int, maxSize int64) (*RotatingWriter, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log directory %s: %w", dir, err)
	}

	w := &RotatingWriter{
		dir:       dir,
		retention: time.Duration(retentionWeeks) * 7 * 24 * time.Hour,
		maxSize:   maxSize,
		now:       time.Now,
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.open(weekKey(w.now()), false); err != nil {
		return nil, err
	}
	return w, nil
}

// weekKey formats t as YYYY-Www using the ISO week
func weekKey(t time.Time) string {
	year, week := t.ISOWeek()
	return fmt.Sprintf("%d-W%02d", year, week)
}

// open switches to the right file for week. Caller holds mu.
func (w *RotatingWriter) open(week string, full bool) error {
	if w.file != nil {
		w.file.Close()
		w.file = nil
	}

	name := w.pickFile(week, full)
	path := filepath.Join(w.dir, name)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open log file %s: %w", path, err)
	}

	w.file = f
	w.week = week
	w.size = 0
	if info, err := f.Stat(); err == nil {
		w.size = info.Size()
	}
	return nil
}

// pickFile returns the first file of the week that still has room
func (w *RotatingWriter) pickFile(week string, full bool) string {
	base := fmt.Sprintf("app-%s.log", week)
	if !full {
		info, err := os.Stat(filepath.Join(w.dir, base))
		if err != nil || w.maxSize == 0 || info.Size() < w.maxSize {
			return base
		}
	}

	highest, size := w.lastNumbered(week)
	if highest > 0 && size < w.maxSize && !full {
		return fmt.Sprintf("app-%s_%02d.log", week, highest)
	}
	return fmt.Sprintf("app-%s_%02d.log", week, highest+1)
}

func (w *RotatingWriter) lastNumbered(week string) (int, int64) {
	matches, _ := filepath.Glob(filepath.Join(w.dir, fmt.Sprintf("app-%s_??.log", week)))

	highest := 0
	var size int64
	for _, m := range matches {
		sub := numberedLogFile.FindStringSubmatch(filepath.Base(m))
		if len(sub) < 2 {
			continue
		}
		n, _ := strconv.Atoi(sub[1])
		if n <= highest {
			continue
		}
		highest = n
		size = 0
		if info, err := os.Stat(m); err == nil {
			size = info.Size()
		}
	}
	return highest, size
}

func (w *RotatingWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	week := weekKey(w.now())
	switch {
	case week != w.week:
		if err := w.open(week, false); err != nil {
			return 0, err
		}
	case w.maxSize > 0 && w.size+int64(len(p)) > w.maxSize && w.size > 0:
		if err := w.open(week, true); err != nil {
			return 0, err
		}
	}

	if w.file == nil {
		return 0, fmt.Errorf("no log file available")
	}

	n, err := w.file.Write(p)
	w.size += int64(n)
	return n, err
}

// Cleanup removes log files last modified before the retention period and returns how
// many were deleted
func (w *RotatingWriter) Cleanup() (int, error) {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return 0, fmt.Errorf("failed to read log directory: %w", err)
	}

	cutoff := w.now().Add(-w.retention)
	deleted := 0
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, "app-") || !strings.HasSuffix(name, ".log") {
			continue
		}
		info, err := e.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}
		if os.Remove(filepath.Join(w.dir, name)) == nil {
			deleted++
		}
	}
	return deleted, nil
}

// CurrentFile returns the path being written to
func (w *RotatingWriter) CurrentFile() string {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file == nil {
		return ""
	}
	return w.file.Name()
}

func (w *RotatingWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file == nil {
		return nil
	}
	err := w.file.Close()
	w.file = nil
	return err
}
