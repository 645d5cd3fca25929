package notify

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/fsnotify/fsnotify"

	"github.com/scrypster/agentmemory/internal/engine"
)

// Watcher consumes notification files and dispatches them to a callback.
// Each file is delivered at most once and removed after reading.
type Watcher struct {
	dir      string
	callback func(engine.Notification)
	logger   *slog.Logger
	watcher  *fsnotify.Watcher
	done     chan struct{}
}

// NewWatcher creates a watcher for Dir(dataPath).
func NewWatcher(dataPath string, callback func(engine.Notification), logger *slog.Logger) *Watcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{
		dir:      Dir(dataPath),
		callback: callback,
		logger:   logger,
		done:     make(chan struct{}),
	}
}

// Start drains files already present, then watches for new ones. Call Stop
// to release the watcher.
func (nw *Watcher) Start() error {
	if err := os.MkdirAll(nw.dir, 0o700); err != nil {
		return err
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := w.Add(nw.dir); err != nil {
		_ = w.Close()
		return err
	}
	nw.watcher = w

	// Drain after Add so nothing written in between is missed.
	nw.drainExisting()

	go nw.loop()
	nw.logger.Info("notify: watching for notifications", "dir", nw.dir)
	return nil
}

// Stop shuts down the watcher and waits for the loop to exit.
func (nw *Watcher) Stop() {
	if nw.watcher == nil {
		return
	}
	_ = nw.watcher.Close()
	<-nw.done
}

func (nw *Watcher) loop() {
	defer close(nw.done)
	for {
		select {
		case evt, ok := <-nw.watcher.Events:
			if !ok {
				return
			}
			if evt.Op&fsnotify.Create != 0 && strings.HasSuffix(evt.Name, fileSuffix) {
				nw.processFile(evt.Name)
			}
		case err, ok := <-nw.watcher.Errors:
			if !ok {
				return
			}
			nw.logger.Warn("notify: watcher error", "error", err)
		}
	}
}

func (nw *Watcher) drainExisting() {
	entries, err := os.ReadDir(nw.dir)
	if err != nil {
		return
	}
	var names []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), fileSuffix) {
			names = append(names, entry.Name())
		}
	}
	// Names start with a nanosecond timestamp.
	sort.Strings(names)
	for _, name := range names {
		nw.processFile(filepath.Join(nw.dir, name))
	}
}

func (nw *Watcher) processFile(path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		return // consumed by another reader
	}
	if err := os.Remove(path); err != nil {
		return
	}

	var n engine.Notification
	if err := json.Unmarshal(data, &n); err != nil {
		nw.logger.Warn("notify: invalid notification file", "file", filepath.Base(path), "error", err)
		return
	}
	if n.EventID != "" && nw.callback != nil {
		nw.callback(n)
	}
}
