// Completion: 100% - Platform-specific module complete
//go:build linux

package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"
)

// FileWatcher reports changes to the package directories it watches
type FileWatcher struct {
	fd       int
	watchMap map[int]string
	mu       sync.Mutex
	deb      *debouncer
	done     chan struct{}
}

func NewFileWatcher(onChange func(string)) (*FileWatcher, error) {
	fd, err := unix.InotifyInit1(unix.IN_NONBLOCK | unix.IN_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("inotify_init failed: %v", err)
	}

	return &FileWatcher{
		fd:       fd,
		watchMap: make(map[int]string),
		deb:      newDebouncer(500*time.Millisecond, onChange),
		done:     make(chan struct{}),
	}, nil
}

const dirEvents = unix.IN_CLOSE_WRITE | unix.IN_MOVED_TO | unix.IN_MOVED_FROM | unix.IN_CREATE | unix.IN_DELETE

// AddDir watches the files of a directory, including files created later
func (fw *FileWatcher) AddDir(dir string) error {
	absPath, err := filepath.Abs(dir)
	if err != nil {
		return err
	}

	wd, err := unix.InotifyAddWatch(fw.fd, absPath, dirEvents)
	if err != nil {
		return fmt.Errorf("failed to watch %s: %v", absPath, err)
	}

	fw.mu.Lock()
	fw.watchMap[wd] = absPath
	fw.mu.Unlock()

	return nil
}

// Watch blocks until Close, calling onChange for every changed file
func (fw *FileWatcher) Watch() {
	buf := make([]byte, (unix.SizeofInotifyEvent+unix.NAME_MAX+1)*16)

	for {
		select {
		case <-fw.done:
			return
		default:
		}

		n, err := unix.Read(fw.fd, buf)
		if err != nil {
			if err == unix.EAGAIN || err == unix.EWOULDBLOCK || err == unix.EINTR {
				time.Sleep(100 * time.Millisecond)
				continue
			}
			if VerboseMode {
				fmt.Fprintf(os.Stderr, "Error reading inotify events: %v\n", err)
			}
			return
		}

		offset := 0
		for offset+unix.SizeofInotifyEvent <= n {
			event := (*unix.InotifyEvent)(unsafe.Pointer(&buf[offset]))
			nameBytes := buf[offset+unix.SizeofInotifyEvent : offset+unix.SizeofInotifyEvent+int(event.Len)]
			offset += unix.SizeofInotifyEvent + int(event.Len)

			if event.Mask&dirEvents == 0 {
				continue
			}
			name := string(bytes.TrimRight(nameBytes, "\x00"))
			if !watchedName(name) {
				continue
			}
			fw.mu.Lock()
			dir := fw.watchMap[int(event.Wd)]
			fw.mu.Unlock()

			if dir != "" {
				fw.deb.trigger(filepath.Join(dir, name))
			}
		}
	}
}

func (fw *FileWatcher) Close() error {
	close(fw.done)
	fw.deb.stop()
	return unix.Close(fw.fd)
}
