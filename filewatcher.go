package main

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// watchedName reports whether a file of the package directory takes part
// in a build: non-test Go files and the config side-car. The state side-car
// and the output directory change during a build and are ignored.
func watchedName(name string) bool {
	if name == ConfigFileName {
		return true
	}
	if strings.HasPrefix(name, ".") || strings.HasPrefix(name, "_") {
		return false
	}
	return strings.HasSuffix(name, ".go") && !strings.HasSuffix(name, "_test.go")
}

// dirState maps the watched files of a directory to their modification time
type dirState map[string]time.Time

func scanDir(dir string) dirState {
	state := make(dirState)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return state
	}
	for _, e := range entries {
		if e.IsDir() || !watchedName(e.Name()) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		state[filepath.Join(dir, e.Name())] = info.ModTime()
	}
	return state
}

// changed lists the files added, removed or modified since old
func (old dirState) changed(cur dirState) []string {
	var out []string
	for path, t := range cur {
		if prev, ok := old[path]; !ok || t.After(prev) {
			out = append(out, path)
		}
	}
	for path := range old {
		if _, ok := cur[path]; !ok {
			out = append(out, path)
		}
	}
	return out
}

// debouncer coalesces bursts of events on the same path, as editors tend
// to write a file more than once when saving it
type debouncer struct {
	mu     sync.Mutex
	timers map[string]*time.Timer
	delay  time.Duration
	fire   func(string)
}

func newDebouncer(delay time.Duration, fire func(string)) *debouncer {
	return &debouncer{timers: make(map[string]*time.Timer), delay: delay, fire: fire}
}

func (d *debouncer) trigger(path string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if timer, exists := d.timers[path]; exists {
		timer.Stop()
	}

	d.timers[path] = time.AfterFunc(d.delay, func() {
		d.fire(path)
		d.mu.Lock()
		delete(d.timers, path)
		d.mu.Unlock()
	})
}

func (d *debouncer) stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for path, timer := range d.timers {
		timer.Stop()
		delete(d.timers, path)
	}
}
