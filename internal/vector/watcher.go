package vector

import (
	"log"
	"os"
	"strings"

	"github.com/fsnotify/fsnotify"
)

// Watcher invalidates cached indexes when another process rewrites their
// files on disk (e.g. cogmem-reindex run against a live server). A write
// or remove of conv_<id>.vec / conv_<id>.map.json evicts <id> from the
// registry so the next access reloads from disk.
type Watcher struct {
	registry *Registry
	watcher  *fsnotify.Watcher
	done     chan struct{}
}

// NewWatcher creates a watcher over the registry's index directory.
func NewWatcher(registry *Registry) *Watcher {
	return &Watcher{
		registry: registry,
		done:     make(chan struct{}),
	}
}

// Start begins watching. Call Stop to clean up.
func (w *Watcher) Start() error {
	if err := os.MkdirAll(w.registry.Dir(), 0o700); err != nil {
		return err
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := fw.Add(w.registry.Dir()); err != nil {
		_ = fw.Close()
		return err
	}
	w.watcher = fw

	go w.loop()
	log.Printf("vector: watching %s for external index changes", w.registry.Dir())
	return nil
}

// Stop shuts down the watcher. Safe to call when Start never ran or
// failed; there is no loop to wait for in that case.
func (w *Watcher) Stop() {
	if w.watcher == nil {
		return
	}
	_ = w.watcher.Close()
	<-w.done
}

func (w *Watcher) loop() {
	defer close(w.done)

	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Remove) {
				continue
			}
			// Atomic saves rename temp files into place; skip the temps.
			if strings.Contains(event.Name, ".tmp-") {
				continue
			}
			if conv := ConversationFromFile(event.Name); conv != "" {
				w.registry.Invalidate(conv)
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("vector: watcher error: %v", err)
		}
	}
}
