package logger

import (
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

const backupTimeFormat = "20060102T150405.000"

// RotationOptions configures a RotatingWriter
type RotationOptions struct {
	Path     string
	MaxBytes int64         // rotate before a write would exceed this, <= 0 rotates before every write after the first
	MaxAge   time.Duration // backups older than this are deleted, 0 keeps all
	Compress bool          // gzip backups in the background
	Clock    clockwork.Clock
}

// RotatingWriter appends to a log file and moves it aside once it grows past
// MaxBytes. Backups are named <stem>-<timestamp><ext>, for example
// tagrelay-20261016T101500.000.log. Safe for concurrent use.
type RotatingWriter struct {
	opts RotationOptions

	mu   sync.Mutex
	file *os.File
	size int64

	// background gzip jobs, waited for by Close
	pending sync.WaitGroup
}

// OpenRotating opens or creates the log file and drops expired backups
func OpenRotating(opts RotationOptions) (*RotatingWriter, error) {
	if opts.Path == "" {
		return nil, errors.New("log file path is required")
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if err := os.MkdirAll(filepath.Dir(opts.Path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	w := &RotatingWriter{opts: opts}
	if err := w.open(); err != nil {
		return nil, err
	}
	w.prune()

	return w, nil
}

func (w *RotatingWriter) open() error {
	f, err := os.OpenFile(w.opts.Path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return fmt.Errorf("failed to stat log file: %w", err)
	}
	w.file = f
	w.size = info.Size()
	return nil
}

// Write appends p, rotating first when p would push the file past MaxBytes.
// A single record is never split across files.
func (w *RotatingWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file == nil {
		return 0, os.ErrClosed
	}
	if w.size > 0 && w.size+int64(len(p)) > w.opts.MaxBytes {
		if err := w.rotate(); err != nil {
			return 0, fmt.Errorf("failed to rotate log file: %w", err)
		}
	}

	n, err := w.file.Write(p)
	w.size += int64(n)
	return n, err
}

// Close closes the file and waits for pending compression
func (w *RotatingWriter) Close() error {
	w.mu.Lock()
	var err error
	if w.file != nil {
		err = w.file.Close()
		w.file = nil
	}
	w.mu.Unlock()

	w.pending.Wait()
	return err
}

// Backups lists rotated files, compressed or not, oldest name first
func (w *RotatingWriter) Backups() ([]string, error) {
	dir := filepath.Dir(w.opts.Path)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var out []string
	for _, e := range entries {
		if !e.IsDir() && w.isBackup(e.Name()) {
			out = append(out, filepath.Join(dir, e.Name()))
		}
	}
	return out, nil
}

// rotate must be called with w.mu held
func (w *RotatingWriter) rotate() error {
	if err := w.file.Close(); err != nil {
		return err
	}
	w.file = nil

	backup := w.backupName(w.opts.Clock.Now())
	if err := os.Rename(w.opts.Path, backup); err != nil {
		// Keep logging into the old file rather than losing records
		if openErr := w.open(); openErr != nil {
			return errors.Join(err, openErr)
		}
		return err
	}

	if err := w.open(); err != nil {
		return err
	}

	if w.opts.Compress {
		w.pending.Add(1)
		go func() {
			defer w.pending.Done()
			_ = gzipFile(backup)
		}()
	}
	w.prune()
	return nil
}

func (w *RotatingWriter) split() (dir, stem, ext string) {
	dir = filepath.Dir(w.opts.Path)
	base := filepath.Base(w.opts.Path)
	ext = filepath.Ext(base)
	stem = strings.TrimSuffix(base, ext)
	return dir, stem, ext
}

// backupName returns an unused backup path for a rotation at t
func (w *RotatingWriter) backupName(t time.Time) string {
	dir, stem, ext := w.split()
	stamp := t.UTC().Format(backupTimeFormat)

	name := filepath.Join(dir, stem+"-"+stamp+ext)
	for i := 1; exists(name) || exists(name+".gz"); i++ {
		name = filepath.Join(dir, fmt.Sprintf("%s-%s-%d%s", stem, stamp, i, ext))
	}
	return name
}

func (w *RotatingWriter) isBackup(name string) bool {
	_, stem, ext := w.split()
	name = strings.TrimSuffix(name, ".gz")
	return strings.HasPrefix(name, stem+"-") && strings.HasSuffix(name, ext) && len(name) > len(stem)+1+len(ext)
}

// prune removes backups last modified before MaxAge
func (w *RotatingWriter) prune() {
	if w.opts.MaxAge <= 0 {
		return
	}
	backups, err := w.Backups()
	if err != nil {
		return
	}

	cutoff := w.opts.Clock.Now().Add(-w.opts.MaxAge)
	for _, path := range backups {
		info, err := os.Stat(path)
		if err == nil && info.ModTime().Before(cutoff) {
			_ = os.Remove(path)
		}
	}
}

// gzipFile replaces path with path.gz
func gzipFile(path string) error {
	src, err := os.Open(path)
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := os.Create(path + ".gz")
	if err != nil {
		return err
	}

	gzw := gzip.NewWriter(dst)
	_, copyErr := io.Copy(gzw, src)
	if err := errors.Join(copyErr, gzw.Close(), dst.Close()); err != nil {
		_ = os.Remove(path + ".gz")
		return err
	}

	return os.Remove(path)
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
