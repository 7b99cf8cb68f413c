// Package watchfolder watches downloads_root for .torrent files an operator
// drops in by hand and registers them with the seed manager as seed_all
// desired state, adapted from internal/watcher/watcher.go's fsnotify
// debounce pattern (stripped of its DCP-package-specific file matching and
// retargeted at a single file extension).
package watchfolder

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/shardkeeper/shardkeeper/internal/torrentdriver"
)

// Adder is the subset of seedmanager.Manager this package depends on.
type Adder interface {
	AddExternal(ctx context.Context, path, infoHash string) error
}

// Watcher monitors downloads_root for newly written .torrent files.
type Watcher struct {
	fsWatcher *fsnotify.Watcher
	root      string
	adder     Adder

	debounce time.Duration
	mu       sync.Mutex
	pending  map[string]time.Time

	stopCh chan struct{}
}

// New creates a Watcher rooted at downloadsRoot. Call Start to begin
// watching.
func New(downloadsRoot string, adder Adder) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("watchfolder: create fsnotify watcher: %w", err)
	}
	return &Watcher{
		fsWatcher: fsw,
		root:      downloadsRoot,
		adder:     adder,
		debounce:  2 * time.Second,
		pending:   make(map[string]time.Time),
		stopCh:    make(chan struct{}),
	}, nil
}

// Start begins watching the root directory.
func (w *Watcher) Start(ctx context.Context) error {
	if err := w.fsWatcher.Add(w.root); err != nil {
		return fmt.Errorf("watchfolder: watch %s: %w", w.root, err)
	}
	log.Printf("[watchfolder] watching %s for dropped .torrent files", w.root)

	go w.processEvents(ctx)
	go w.processPending(ctx)
	return nil
}

// Stop stops the watcher.
func (w *Watcher) Stop() {
	close(w.stopCh)
	w.fsWatcher.Close()
}

func (w *Watcher) processEvents(ctx context.Context) {
	for {
		select {
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			log.Printf("[watchfolder] watcher error: %v", err)

		case <-w.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if !strings.EqualFold(filepath.Ext(event.Name), ".torrent") {
		return
	}
	if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
		return
	}

	w.mu.Lock()
	w.pending[event.Name] = time.Now()
	w.mu.Unlock()
}

func (w *Watcher) processPending(ctx context.Context) {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			w.flushPending(ctx)
		case <-w.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

// flushPending registers every pending path whose debounce window has
// elapsed — waiting out the debounce avoids registering a .torrent file
// while it's still being written to disk.
func (w *Watcher) flushPending(ctx context.Context) {
	now := time.Now()
	w.mu.Lock()
	var ready []string
	for path, seenAt := range w.pending {
		if now.Sub(seenAt) >= w.debounce {
			ready = append(ready, path)
			delete(w.pending, path)
		}
	}
	w.mu.Unlock()

	for _, path := range ready {
		w.register(ctx, path)
	}
}

func (w *Watcher) register(ctx context.Context, path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		log.Printf("[watchfolder] read %s: %v", path, err)
		return
	}

	infoHash, err := torrentdriver.InfoHashFromTorrentBytes(data)
	if err != nil {
		log.Printf("[watchfolder] %s: not a valid .torrent file: %v", path, err)
		return
	}

	rel, err := filepath.Rel(w.root, path)
	if err != nil {
		rel = path
	}

	if err := w.adder.AddExternal(ctx, rel, infoHash); err != nil {
		log.Printf("[watchfolder] register %s (%s): %v", rel, infoHash, err)
		return
	}
	log.Printf("[watchfolder] registered dropped torrent %s (info_hash=%s)", rel, infoHash)
}
