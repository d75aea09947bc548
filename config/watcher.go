package config

import (
	"errors"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/shaban/plughost/logging"
)

// DefaultDebounce collapses the burst of events an editor save produces.
const DefaultDebounce = 100 * time.Millisecond

// ErrWatcherClosed is returned by Close on a closed watcher.
var ErrWatcherClosed = errors.New("config watcher closed")

// Watcher reloads a settings file when it is written or recreated and applies
// it to a target. Options the target rejects, for example those that cannot
// change while the engine runs, are logged and reported to the reload
// callback; the watcher keeps running.
type Watcher struct {
	path     string
	target   Target
	logger   logging.Logger
	debounce time.Duration
	env      string

	mu       sync.Mutex
	onReload func(*Settings, error)

	fsw    *fsnotify.Watcher
	done   chan struct{}
	wg     sync.WaitGroup
	closed bool
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithDebounce sets the quiet period before a change is reloaded.
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d >= 0 {
			w.debounce = d
		}
	}
}

// WithEnvPrefix applies environment overrides after every reload.
func WithEnvPrefix(prefix string) WatcherOption {
	return func(w *Watcher) { w.env = prefix }
}

// WithWatcherLogger sets the logger.
func WithWatcherLogger(l logging.Logger) WatcherOption {
	return func(w *Watcher) { w.logger = l }
}

// NewWatcher starts watching path. The containing directory is watched so
// that files replaced by rename are picked up.
func NewWatcher(path string, target Target, opts ...WatcherOption) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	w := &Watcher{
		path:     abs,
		target:   target,
		logger:   logging.Default(),
		debounce: DefaultDebounce,
		done:     make(chan struct{}),
	}
	for _, o := range opts {
		o(w)
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(filepath.Dir(abs)); err != nil {
		fsw.Close()
		return nil, err
	}
	w.fsw = fsw
	w.wg.Add(1)
	go w.loop()
	return w, nil
}

// OnReload sets a callback invoked after every reload attempt.
func (w *Watcher) OnReload(fn func(*Settings, error)) {
	w.mu.Lock()
	w.onReload = fn
	w.mu.Unlock()
}

// Close stops watching and waits for the event loop to exit.
func (w *Watcher) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return ErrWatcherClosed
	}
	w.closed = true
	w.mu.Unlock()

	close(w.done)
	err := w.fsw.Close()
	w.wg.Wait()
	return err
}

func (w *Watcher) loop() {
	defer w.wg.Done()
	var (
		timer *time.Timer
		fire  <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()
	for {
		select {
		case <-w.done:
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != w.path || !(ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create)) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			fire = timer.C
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("config watcher error", "path", w.path, "error", err)
		case <-fire:
			fire = nil
			w.reload()
		}
	}
}

// reload loads the file and applies it.
func (w *Watcher) reload() {
	s, err := Load(w.path)
	if err == nil && w.env != "" {
		err = s.ApplyEnv(w.env)
	}
	if err == nil {
		err = s.Apply(w.target)
	}
	if err != nil {
		w.logger.Warn("config reload incomplete", "path", w.path, "error", err)
	} else {
		w.logger.Info("config reloaded", "path", w.path)
	}

	w.mu.Lock()
	fn := w.onReload
	w.mu.Unlock()
	if fn != nil {
		fn(s, err)
	}
}
