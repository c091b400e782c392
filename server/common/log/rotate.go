package log

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// RotatingFile is an io.Writer that renames the current file aside once it
// would grow past maxSizeBytes. Write errors are reported on stderr and never
// returned, so a broken log file does not break the console output.
type RotatingFile struct {
	mu           sync.Mutex
	filePath     string
	maxSizeBytes int64
	file         *os.File
}

func NewRotatingFile(path string, maxSizeBytes int64) *RotatingFile {
	return &RotatingFile{filePath: path, maxSizeBytes: maxSizeBytes}
}

func (r *RotatingFile) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.ensureOpen(); err != nil {
		fmt.Fprintf(os.Stderr, "logger open file error: %v\n", err)
		return len(p), nil
	}
	if err := r.rotateIfNeeded(int64(len(p))); err != nil {
		fmt.Fprintf(os.Stderr, "logger rotate error: %v\n", err)
		return len(p), nil
	}
	if _, err := r.file.Write(p); err != nil {
		fmt.Fprintf(os.Stderr, "logger write error: %v\n", err)
	}
	return len(p), nil
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

func (r *RotatingFile) ensureOpen() error {
	if r.file != nil {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(r.filePath), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(r.filePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	r.file = f
	return nil
}

func (r *RotatingFile) rotateIfNeeded(incomingSize int64) error {
	stat, err := r.file.Stat()
	if err != nil {
		return err
	}
	if stat.Size() == 0 || stat.Size()+incomingSize <= r.maxSizeBytes {
		return nil
	}
	if err := r.file.Close(); err != nil {
		return err
	}
	r.file = nil

	rotatedPath, err := nextRotatedPath(r.filePath)
	if err != nil {
		return err
	}
	if err := os.Rename(r.filePath, rotatedPath); err != nil {
		return err
	}
	f, err := os.OpenFile(r.filePath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	r.file = f
	return nil
}

func nextRotatedPath(currentPath string) (string, error) {
	dir := filepath.Dir(currentPath)
	ext := filepath.Ext(currentPath)
	base := strings.TrimSuffix(filepath.Base(currentPath), ext)
	ts := time.Now().Format("20060102_150405")

	for index := 1; ; index++ {
		candidate := filepath.Join(dir, fmt.Sprintf("%s_%s_%d%s", base, ts, index, ext))
		if _, err := os.Stat(candidate); os.IsNotExist(err) {
			return candidate, nil
		} else if err != nil {
			return "", err
		}
	}
}
