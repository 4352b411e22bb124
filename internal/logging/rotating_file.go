package logging

import (
	"fmt"
	"os"
	"sync"

	"game-house/internal/config"
)

// rotatingFile appends to cfg.File and rolls it over once it would grow past
// cfg.MaxMB. The last cfg.Backups files are kept as file.1, file.2 and so on;
// with no backups the file is truncated instead.
type rotatingFile struct {
	path    string
	limit   int64
	backups int

	mu   sync.Mutex
	f    *os.File
	size int64
}

func openRotatingFile(cfg config.LogConfig) (*rotatingFile, error) {
	mb := cfg.MaxMB
	if mb <= 0 {
		mb = 10
	}
	r := &rotatingFile{path: cfg.File, limit: int64(mb) << 20, backups: max(cfg.Backups, 0)}
	if err := r.open(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *rotatingFile) open() error {
	f, err := os.OpenFile(r.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open log file %q: %w", r.path, err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return fmt.Errorf("stat log file %q: %w", r.path, err)
	}
	r.f, r.size = f, info.Size()
	return nil
}

func (r *rotatingFile) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.f == nil {
		if err := r.open(); err != nil {
			return 0, err
		}
	}
	if r.size > 0 && r.size+int64(len(p)) > r.limit {
		if err := r.rotate(); err != nil {
			return 0, err
		}
	}
	n, err := r.f.Write(p)
	r.size += int64(n)
	return n, err
}

func (r *rotatingFile) rotate() error {
	_ = r.f.Close()
	r.f = nil
	if r.backups == 0 {
		if err := os.Truncate(r.path, 0); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("truncate log file %q: %w", r.path, err)
		}
		return r.open()
	}
	for i := r.backups - 1; i >= 1; i-- {
		_ = os.Rename(r.backupName(i), r.backupName(i+1))
	}
	if err := os.Rename(r.path, r.backupName(1)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("rotate log file %q: %w", r.path, err)
	}
	return r.open()
}

func (r *rotatingFile) backupName(i int) string {
	return fmt.Sprintf("%s.%d", r.path, i)
}

func (r *rotatingFile) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.f == nil {
		return nil
	}
	err := r.f.Close()
	r.f = nil
	return err
}
