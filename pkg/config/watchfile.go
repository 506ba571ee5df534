package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const fileDebounce = 100 * time.Millisecond

// fileProvider reads a local YAML file and watches it through fsnotify.
// It watches the containing directory rather than the file itself, so
// editors that replace the file on save keep the watch alive.
type fileProvider struct {
	path string

	mu      sync.Mutex
	watcher *fsnotify.Watcher
	closed  bool
}

func newFileProvider(path string) (*fileProvider, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}
	return &fileProvider{path: abs}, nil
}

func (p *fileProvider) ReadBytes() ([]byte, error) {
	data, err := os.ReadFile(p.path)
	if err != nil {
		return nil, fmt.Errorf("read config file %s: %w", p.path, err)
	}
	return data, nil
}

func (p *fileProvider) Read() (map[string]interface{}, error) {
	return nil, errors.New("file provider does not support direct reads")
}

func (p *fileProvider) Watch(cb func(event interface{}, err error)) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return errors.New("file provider is closed")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create file watcher: %w", err)
	}

	dir := filepath.Dir(p.path)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return fmt.Errorf("watch directory %s: %w", dir, err)
	}
	p.watcher = watcher

	go p.watchLoop(watcher, filepath.Base(p.path), cb)
	return nil
}

func (p *fileProvider) watchLoop(watcher *fsnotify.Watcher, name string, cb func(event interface{}, err error)) {
	// Coalesces editor save bursts into a single reload.
	var debounce *time.Timer

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				if debounce != nil {
					debounce.Stop()
				}
				return
			}
			if filepath.Base(event.Name) != name {
				continue
			}

			switch {
			case event.Op&(fsnotify.Write|fsnotify.Create) != 0:
				if debounce != nil {
					debounce.Stop()
				}
				debounce = time.AfterFunc(fileDebounce, func() {
					cb(nil, nil)
				})

			case event.Op&fsnotify.Remove != 0:
				slog.Warn("config file removed, waiting for it to reappear", "path", p.path)
				go p.rewatch(watcher, cb)
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			cb(nil, err)
		}
	}
}

// rewatch polls for the file to be recreated after a delete. Some tools
// remove and rewrite instead of truncating, which drops the directory
// entry the watch was registered against.
func (p *fileProvider) rewatch(watcher *fsnotify.Watcher, cb func(event interface{}, err error)) {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for i := 0; i < 10; i++ {
		<-ticker.C

		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			return
		}
		p.mu.Unlock()

		if _, err := os.Stat(p.path); err != nil {
			continue
		}
		if err := watcher.Add(filepath.Dir(p.path)); err != nil {
			continue
		}
		slog.Info("re-established config file watch", "path", p.path)
		cb(nil, nil)
		return
	}
	cb(nil, fmt.Errorf("config file %s did not reappear after deletion", p.path))
}

func (p *fileProvider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.closed = true
	if p.watcher != nil {
		err := p.watcher.Close()
		p.watcher = nil
		return err
	}
	return nil
}
