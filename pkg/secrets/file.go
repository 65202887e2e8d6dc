package secrets

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// DirSource reads secrets from one file per secret in a directory, the way
// Kubernetes mounts a Secret volume. Files must not be readable by group or
// others.
//
// Values are cached until a file in the directory changes when watching is
// enabled, or until Refresh is called.
type DirSource struct {
	dir    string
	logger *slog.Logger

	mu     sync.RWMutex
	values map[string]string

	watcher   *fsnotify.Watcher
	onChange  func()
	closeOnce sync.Once
	stopCh    chan struct{}
	doneCh    chan struct{}
}

// NewDirSource creates a source over dir. When watch is true, onChange (which
// may be nil) is called after any file in dir is written, created, renamed
// or removed.
func NewDirSource(dir string, watch bool, onChange func(), logger *slog.Logger) (*DirSource, error) {
	if logger == nil {
		logger = slog.Default()
	}

	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve secrets directory: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("failed to stat secrets directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("secrets path is not a directory: %s", dir)
	}

	s := &DirSource{
		dir:      abs,
		logger:   logger.With("component", "secrets.file"),
		values:   make(map[string]string),
		onChange: onChange,
	}

	if watch {
		w, err := fsnotify.NewWatcher()
		if err != nil {
			return nil, fmt.Errorf("failed to create secrets watcher: %w", err)
		}
		if err := w.Add(abs); err != nil {
			_ = w.Close()
			return nil, fmt.Errorf("failed to watch secrets directory: %w", err)
		}
		s.watcher = w
		s.stopCh = make(chan struct{})
		s.doneCh = make(chan struct{})
		go s.watchLoop()
	}

	return s, nil
}

// Get reads the file named name.
func (s *DirSource) Get(ctx context.Context, name string) (string, error) {
	s.mu.RLock()
	value, ok := s.values[name]
	s.mu.RUnlock()
	if ok {
		return value, nil
	}

	path := filepath.Join(s.dir, name)
	if !strings.HasPrefix(path, s.dir+string(filepath.Separator)) {
		return "", fmt.Errorf("invalid secret name %q: must name a file inside %s", name, s.dir)
	}

	info, err := os.Lstat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%w: %s (no file in %s)", ErrNotFound, name, s.dir)
		}
		return "", fmt.Errorf("failed to stat secret file: %w", err)
	}
	if !info.Mode().IsRegular() {
		return "", fmt.Errorf("secret %q is not a regular file", name)
	}
	if perm := info.Mode().Perm(); perm&0o077 != 0 {
		return "", fmt.Errorf("insecure permissions on secret %q: %o (must not be accessible by group or others)", name, perm)
	}

	data, err := os.ReadFile(path) // #nosec G304 -- path is confined to s.dir above
	if err != nil {
		return "", fmt.Errorf("failed to read secret file: %w", err)
	}
	value = strings.TrimSpace(string(data))

	s.mu.Lock()
	s.values[name] = value
	s.mu.Unlock()

	return value, nil
}

// Name returns "file".
func (s *DirSource) Name() string {
	return "file"
}

// Refresh drops every cached value.
func (s *DirSource) Refresh() {
	s.mu.Lock()
	s.values = make(map[string]string)
	s.mu.Unlock()
}

// Close stops watching. It is safe to call on a source without a watcher.
func (s *DirSource) Close() error {
	if s.watcher == nil {
		return nil
	}
	var err error
	s.closeOnce.Do(func() {
		close(s.stopCh)
		<-s.doneCh
		err = s.watcher.Close()
	})
	return err
}

func (s *DirSource) watchLoop() {
	defer close(s.doneCh)

	for {
		select {
		case event, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}

			s.logger.Debug("secret file changed", "file", filepath.Base(event.Name), "op", event.Op.String())
			s.Refresh()
			if s.onChange != nil {
				s.onChange()
			}

		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			s.logger.Error("secrets watcher error", "error", err)

		case <-s.stopCh:
			return
		}
	}
}
