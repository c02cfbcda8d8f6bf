//go:build windows

package main

import (
	"path/filepath"
	"sync"
	"time"
)

// FileWatcher polls the package directories it watches
type FileWatcher struct {
	states   map[string]dirState
	mu       sync.Mutex
	deb      *debouncer
	stopChan chan struct{}
}

func NewFileWatcher(onChange func(string)) (*FileWatcher, error) {
	return &FileWatcher{
		states:   make(map[string]dirState),
		deb:      newDebouncer(500*time.Millisecond, onChange),
		stopChan: make(chan struct{}),
	}, nil
}

// AddDir watches the files of a directory, including files created later
func (fw *FileWatcher) AddDir(dir string) error {
	absPath, err := filepath.Abs(dir)
	if err != nil {
		return err
	}

	fw.mu.Lock()
	fw.states[absPath] = scanDir(absPath)
	fw.mu.Unlock()

	return nil
}

// Watch blocks until Close, calling onChange for every changed file
func (fw *FileWatcher) Watch() {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			fw.checkFiles()
		case <-fw.stopChan:
			return
		}
	}
}

func (fw *FileWatcher) checkFiles() {
	fw.mu.Lock()
	defer fw.mu.Unlock()

	for dir, old := range fw.states {
		cur := scanDir(dir)
		for _, path := range old.changed(cur) {
			fw.deb.trigger(path)
		}
		fw.states[dir] = cur
	}
}

func (fw *FileWatcher) Close() error {
	close(fw.stopChan)
	fw.deb.stop()
	return nil
}
