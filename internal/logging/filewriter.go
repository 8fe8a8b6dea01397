package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/klauspost/compress/gzip"

	"github.com/dmmcquay/chess-study/internal/config"
)

const backupTimeFormat = "20060102-150405.000"

// FileWriter is a log file that rotates once it reaches a size limit.
// Rotated files are renamed with a timestamp suffix, optionally gzipped, and
// pruned by count and age.
type FileWriter struct {
	mu          sync.Mutex
	file        *os.File
	path        string
	maxSize     int64
	maxBackups  int
	maxAge      time.Duration
	compress    bool
	currentSize int64

	compressing sync.WaitGroup
	stopCh      chan struct{}
	closeOnce   sync.Once
}

// NewFileWriter opens cfg.Path for appending. A MaxSizeMB of 0 disables
// rotation; MaxBackups and MaxAgeDays of 0 keep every backup.
func NewFileWriter(cfg *config.LogFileConfig) (*FileWriter, error) {
	fw := &FileWriter{
		path:       cfg.Path,
		maxSize:    int64(cfg.MaxSizeMB) * 1024 * 1024,
		maxBackups: cfg.MaxBackups,
		maxAge:     time.Duration(cfg.MaxAgeDays) * 24 * time.Hour,
		compress:   cfg.Compress,
		stopCh:     make(chan struct{}),
	}

	if err := os.MkdirAll(filepath.Dir(fw.path), 0o750); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	fw.mu.Lock()
	err := fw.openFile()
	if err == nil && fw.maxSize > 0 && fw.currentSize >= fw.maxSize {
		err = fw.rotate()
	}
	fw.mu.Unlock()
	if err != nil {
		return nil, err
	}

	go fw.cleanupLoop()
	return fw, nil
}

func (fw *FileWriter) Write(p []byte) (int, error) {
	fw.mu.Lock()
	defer fw.mu.Unlock()

	if fw.file == nil {
		return 0, os.ErrClosed
	}
	if fw.maxSize > 0 && fw.currentSize > 0 && fw.currentSize+int64(len(p)) > fw.maxSize {
		if err := fw.rotate(); err != nil {
			return 0, err
		}
	}

	n, err := fw.file.Write(p)
	fw.currentSize += int64(n)
	return n, err
}

// Close closes the file and waits for pending compressions.
func (fw *FileWriter) Close() error {
	fw.closeOnce.Do(func() { close(fw.stopCh) })
	fw.compressing.Wait()

	fw.mu.Lock()
	defer fw.mu.Unlock()
	if fw.file == nil {
		return nil
	}
	err := fw.file.Close()
	fw.file = nil
	return err
}

func (fw *FileWriter) openFile() error {
	file, err := os.OpenFile(fw.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600) // #nosec G304 -- path comes from configuration
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	info, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return fmt.Errorf("failed to stat log file: %w", err)
	}
	fw.file = file
	fw.currentSize = info.Size()
	return nil
}

// rotate moves the current file aside and starts a new one. The caller holds fw.mu.
func (fw *FileWriter) rotate() error {
	if err := fw.file.Close(); err != nil {
		return err
	}
	fw.file = nil

	backup := fw.backupName(time.Now())
	if err := os.Rename(fw.path, backup); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to rotate log file: %w", err)
	}

	if err := fw.openFile(); err != nil {
		return err
	}

	if fw.compress {
		fw.compressing.Add(1)
		go func() {
			defer fw.compressing.Done()
			if err := compressFile(backup); err != nil {
				fmt.Fprintf(os.Stderr, "failed to compress %s: %v\n", backup, err)
			}
			fw.performCleanup()
		}()
		return nil
	}

	fw.pruneBackups()
	return nil
}

func (fw *FileWriter) backupName(t time.Time) string {
	name := fmt.Sprintf("%s.%s", fw.path, t.Format(backupTimeFormat))
	for i := 1; ; i++ {
		if _, err := os.Stat(name); os.IsNotExist(err) {
			if _, err := os.Stat(name + ".gz"); os.IsNotExist(err) {
				return name
			}
		}
		name = fmt.Sprintf("%s.%s-%d", fw.path, t.Format(backupTimeFormat), i)
	}
}

// compressFile gzips path into path.gz and removes the original.
func compressFile(path string) error {
	src, err := os.Open(path) // #nosec G304 -- a backup this writer created
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := os.OpenFile(path+".gz", os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}

	zw := gzip.NewWriter(dst)
	zw.Name = filepath.Base(path)
	if _, err := io.Copy(zw, src); err != nil {
		_ = zw.Close()
		_ = dst.Close()
		return err
	}
	if err := zw.Close(); err != nil {
		_ = dst.Close()
		return err
	}
	if err := dst.Close(); err != nil {
		return err
	}
	return os.Remove(path)
}

func (fw *FileWriter) cleanupLoop() {
	fw.performCleanup()

	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			fw.performCleanup()
		case <-fw.stopCh:
			return
		}
	}
}

func (fw *FileWriter) performCleanup() {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	fw.pruneBackups()
}

// pruneBackups removes backups older than maxAge and all but the newest
// maxBackups. The caller holds fw.mu.
func (fw *FileWriter) pruneBackups() {
	matches, err := filepath.Glob(fw.path + ".*")
	if err != nil {
		return
	}

	type backup struct {
		path    string
		modTime time.Time
	}
	var backups []backup
	for _, m := range matches {
		// Uncompressed backups may still be in the compressor's hands
		if fw.compress && !strings.HasSuffix(m, ".gz") {
			continue
		}
		info, err := os.Stat(m)
		if err != nil || info.IsDir() {
			continue
		}
		backups = append(backups, backup{path: m, modTime: info.ModTime()})
	}
	// Newest first
	sort.Slice(backups, func(i, j int) bool {
		if backups[i].modTime.Equal(backups[j].modTime) {
			return backups[i].path > backups[j].path
		}
		return backups[i].modTime.After(backups[j].modTime)
	})

	cutoff := time.Now().Add(-fw.maxAge)
	for i, b := range backups {
		tooMany := fw.maxBackups > 0 && i >= fw.maxBackups
		tooOld := fw.maxAge > 0 && b.modTime.Before(cutoff)
		if tooMany || tooOld {
			_ = os.Remove(b.path) // Best effort
		}
	}
}
