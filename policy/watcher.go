package policy

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/inconshreveable/log15"
)

// FileWatcher watches a FileChangeTrigger's paths and, checking every
// PollInterval, invokes onThreshold once the count of matching changes
// accumulated since the last firing reaches MinChangeThreshold, then
// resets its counter -- the batching
// behavior that keeps a snapshot policy from firing on every single
// write during, say, an apt-get upgrade inside the capsule.
type FileWatcher struct {
	trigger     FileChangeTrigger
	onThreshold func()

	fsw     *fsnotify.Watcher
	log     log15.Logger
	mu      sync.Mutex
	pending int
	done    chan struct{}
}

func NewFileWatcher(trigger FileChangeTrigger, onThreshold func()) (*FileWatcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, Error.Wrap(err)
	}
	for _, p := range trigger.Paths {
		if err := fsw.Add(p); err != nil {
			fsw.Close()
			return nil, Error.Wrap(err)
		}
	}
	if trigger.MinChangeThreshold <= 0 {
		trigger.MinChangeThreshold = 1
	}
	if trigger.PollInterval <= 0 {
		trigger.PollInterval = time.Second
	}
	return &FileWatcher{
		trigger:     trigger,
		onThreshold: onThreshold,
		fsw:         fsw,
		log:         log15.New("module", "policy.filewatcher"),
		done:        make(chan struct{}),
	}, nil
}

func (w *FileWatcher) Start() {
	go w.pump()
	go w.tick()
}

func (w *FileWatcher) Stop() {
	close(w.done)
	w.fsw.Close()
}

func (w *FileWatcher) pump() {
	for {
		select {
		case <-w.done:
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if !w.matches(ev.Name) {
				continue
			}
			w.mu.Lock()
			w.pending++
			w.mu.Unlock()
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.log.Error("watch error", "err", err)
		}
	}
}

func (w *FileWatcher) tick() {
	t := time.NewTicker(w.trigger.PollInterval)
	defer t.Stop()
	for {
		select {
		case <-w.done:
			return
		case <-t.C:
			w.mu.Lock()
			count := w.pending
			if count >= w.trigger.MinChangeThreshold {
				w.pending = 0
			}
			w.mu.Unlock()
			if count >= w.trigger.MinChangeThreshold {
				w.onThreshold()
			}
		}
	}
}

func (w *FileWatcher) matches(path string) bool {
	for _, deny := range w.trigger.ExcludeGlobs {
		if ok, _ := filepath.Match(deny, filepath.Base(path)); ok {
			return false
		}
	}
	if len(w.trigger.IncludeGlobs) == 0 {
		return true
	}
	for _, inc := range w.trigger.IncludeGlobs {
		if ok, _ := filepath.Match(inc, filepath.Base(path)); ok {
			return true
		}
	}
	return false
}
