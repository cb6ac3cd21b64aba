package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

const backupTimeFormat = "2006-01-02T15-04-05.000"

// RotatingFile is a zapcore.WriteSyncer that moves the log file aside once
// it would grow past maxBytes and keeps at most maxBackups old copies.
type RotatingFile struct {
	mu         sync.Mutex
	path       string
	maxBytes   int64
	maxBackups int
	file       *os.File
	size       int64
	now        func() time.Time
}

// OpenRotatingFile opens path for appending, creating its directory.
func OpenRotatingFile(path string, maxSizeMB, maxBackups int) (*RotatingFile, error) {
	if path == "" {
		return nil, fmt.Errorf("log file path is required")
	}
	r := &RotatingFile{
		path:       path,
		maxBytes:   int64(maxSizeMB) * 1024 * 1024,
		maxBackups: maxBackups,
		now:        time.Now,
	}
	if err := r.open(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *RotatingFile) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.file == nil {
		return 0, os.ErrClosed
	}
	if r.maxBytes > 0 && r.size > 0 && r.size+int64(len(p)) > r.maxBytes {
		if err := r.rotate(); err != nil {
			return 0, fmt.Errorf("failed to rotate log file: %w", err)
		}
	}

	n, err := r.file.Write(p)
	r.size += int64(n)
	return n, err
}

func (r *RotatingFile) Sync() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.file == nil {
		return nil
	}
	return r.file.Sync()
}

func (r *RotatingFile) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.file == nil {
		return nil
	}
	err := r.file.Close()
	r.file = nil
	return err
}

func (r *RotatingFile) open() error {
	if err := os.MkdirAll(filepath.Dir(r.path), 0750); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}
	file, err := os.OpenFile(r.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	info, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return fmt.Errorf("failed to stat log file: %w", err)
	}
	r.file = file
	r.size = info.Size()
	return nil
}

func (r *RotatingFile) rotate() error {
	if err := r.file.Close(); err != nil {
		return err
	}
	r.file = nil

	if err := os.Rename(r.path, r.backupName(r.now().UTC())); err != nil && !os.IsNotExist(err) {
		return err
	}
	r.prune()
	return r.open()
}

// backupName turns /var/log/gdrivefs.log into /var/log/gdrivefs-<time>.log.
func (r *RotatingFile) backupName(t time.Time) string {
	dir, base := filepath.Split(r.path)
	ext := filepath.Ext(base)
	return filepath.Join(dir, strings.TrimSuffix(base, ext)+"-"+t.Format(backupTimeFormat)+ext)
}

// prune removes the oldest backups beyond maxBackups. 0 keeps every backup.
func (r *RotatingFile) prune() {
	if r.maxBackups <= 0 {
		return
	}
	backups := r.backups()
	if len(backups) <= r.maxBackups {
		return
	}
	for _, name := range backups[:len(backups)-r.maxBackups] {
		_ = os.Remove(name)
	}
}

// backups lists existing backup files, oldest first.
func (r *RotatingFile) backups() []string {
	dir, base := filepath.Split(r.path)
	if dir == "" {
		dir = "."
	}
	ext := filepath.Ext(base)
	prefix := strings.TrimSuffix(base, ext) + "-"

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	var names []string
	for _, entry := range entries {
		name := entry.Name()
		if name == base || entry.IsDir() || !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, ext) {
			continue
		}
		names = append(names, filepath.Join(dir, name))
	}
	// timestamps sort lexically
	sort.Strings(names)
	return names
}
