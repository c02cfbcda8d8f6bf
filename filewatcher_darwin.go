//go:build darwin

package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

// FileWatcher reports changes to the package directories it watches. A
// kqueue event on a directory or one of its files triggers a rescan of the
// directory.
type FileWatcher struct {
	kq       int
	watchMap map[int]string // fd -> directory
	states   map[string]dirState
	mu       sync.Mutex
	deb      *debouncer
	done     chan struct{}
}

func NewFileWatcher(onChange func(string)) (*FileWatcher, error) {
	kq, err := unix.Kqueue()
	if err != nil {
		return nil, fmt.Errorf("kqueue failed: %v", err)
	}

	return &FileWatcher{
		kq:       kq,
		watchMap: make(map[int]string),
		states:   make(map[string]dirState),
		deb:      newDebouncer(500*time.Millisecond, onChange),
		done:     make(chan struct{}),
	}, nil
}

func (fw *FileWatcher) register(path, dir string) error {
	fd, err := unix.Open(path, unix.O_RDONLY, 0)
	if err != nil {
		return fmt.Errorf("failed to open %s: %v", path, err)
	}

	event := unix.Kevent_t{
		Ident:  uint64(fd),
		Filter: unix.EVFILT_VNODE,
		Flags:  unix.EV_ADD | unix.EV_CLEAR,
		Fflags: unix.NOTE_WRITE | unix.NOTE_ATTRIB | unix.NOTE_DELETE | unix.NOTE_RENAME,
	}

	if _, err := unix.Kevent(fw.kq, []unix.Kevent_t{event}, nil, nil); err != nil {
		unix.Close(fd)
		return fmt.Errorf("failed to add kevent for %s: %v", path, err)
	}

	fw.watchMap[fd] = dir
	return nil
}

// AddDir watches the files of a directory, including files created later
func (fw *FileWatcher) AddDir(dir string) error {
	absPath, err := filepath.Abs(dir)
	if err != nil {
		return err
	}

	fw.mu.Lock()
	defer fw.mu.Unlock()
	if err := fw.register(absPath, absPath); err != nil {
		return err
	}
	state := scanDir(absPath)
	for path := range state {
		if err := fw.register(path, absPath); err != nil {
			return err
		}
	}
	fw.states[absPath] = state
	return nil
}

// Watch blocks until Close, calling onChange for every changed file
func (fw *FileWatcher) Watch() {
	events := make([]unix.Kevent_t, 10)
	timeout := unix.NsecToTimespec(int64(500 * time.Millisecond))

	for {
		select {
		case <-fw.done:
			return
		default:
		}

		n, err := unix.Kevent(fw.kq, nil, events, &timeout)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			if VerboseMode {
				fmt.Fprintf(os.Stderr, "Error reading kevent: %v\n", err)
			}
			time.Sleep(100 * time.Millisecond)
			continue
		}

		dirs := make(map[string]bool)
		fw.mu.Lock()
		for i := 0; i < n; i++ {
			if dir := fw.watchMap[int(events[i].Ident)]; dir != "" {
				dirs[dir] = true
			}
		}
		for dir := range dirs {
			cur := scanDir(dir)
			for _, path := range fw.states[dir].changed(cur) {
				if _, known := fw.states[dir][path]; !known {
					fw.register(path, dir)
				}
				fw.deb.trigger(path)
			}
			fw.states[dir] = cur
		}
		fw.mu.Unlock()
	}
}

func (fw *FileWatcher) Close() error {
	close(fw.done)
	fw.deb.stop()

	fw.mu.Lock()
	defer fw.mu.Unlock()

	for fd := range fw.watchMap {
		unix.Close(fd)
	}

	return unix.Close(fw.kq)
}
