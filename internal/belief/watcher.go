package belief

import (
	"context"
	"hash/fnv"
	"os"
	"path/filepath"
	"sync"
	"time"

	"datanerd/internal/logging"

	"github.com/fsnotify/fsnotify"
)

// Watcher monitors a drop directory for documents (.txt, .md, .html) and
// ingests them into the belief store on behalf of a configured user. Rapid
// saves are debounced so an editor writing in bursts triggers one ingestion.
type Watcher struct {
	mu          sync.RWMutex
	watcher     *fsnotify.Watcher
	store       *Store
	userID      string
	datasetID   string
	watchDir    string
	debounceMap map[string]time.Time
	debounceDur time.Duration
	ingested    map[string]uint64 // path -> content hash, skips unchanged re-saves
	stopCh      chan struct{}
	doneCh      chan struct{}
	running     bool

	stats WatcherStats
}

// WatcherStats tracks ingestion activity for diagnostics.
type WatcherStats struct {
	FilesIngested int
	ChunksStored  int
	FilesSkipped  int
	Errors        int
	LastFile      string
	LastEventTime time.Time
}

// NewWatcher creates a Watcher over watchDir. Beliefs it creates belong to
// userID (and datasetID, when non-empty).
func NewWatcher(store *Store, watchDir, userID, datasetID string) (*Watcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{
		watcher:     watcher,
		store:       store,
		userID:      userID,
		datasetID:   datasetID,
		watchDir:    watchDir,
		debounceMap: make(map[string]time.Time),
		debounceDur: 500 * time.Millisecond,
		ingested:    make(map[string]uint64),
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}, nil
}

// Start begins watching the drop directory. Non-blocking; the event loop
// runs in a goroutine until Stop or context cancellation.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	if err := os.MkdirAll(w.watchDir, 0755); err != nil {
		logging.Get(logging.CategoryIngest).Warn("Watcher: failed to create drop dir %s: %v (continuing anyway)", w.watchDir, err)
	}
	if err := w.watcher.Add(w.watchDir); err != nil {
		logging.Get(logging.CategoryIngest).Warn("Watcher: initial watch failed (dir may not exist): %v", err)
	} else {
		logging.Ingest("Watcher: watching drop directory: %s", w.watchDir)
	}

	go w.run(ctx)
	return nil
}

// Stop stops the watcher and waits for the event loop to drain.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.mu.Unlock()

	close(w.stopCh)
	<-w.doneCh

	if err := w.watcher.Close(); err != nil {
		logging.Get(logging.CategoryIngest).Error("Watcher: error closing watcher: %v", err)
	}
	logging.Ingest("Watcher: stopped")
}

// run is the main event loop.
func (w *Watcher) run(ctx context.Context) {
	defer close(w.doneCh)

	debounceTicker := time.NewTicker(100 * time.Millisecond)
	defer debounceTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			logging.IngestDebug("Watcher: context cancelled")
			return

		case <-w.stopCh:
			logging.IngestDebug("Watcher: stop signal received")
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				logging.IngestDebug("Watcher: event channel closed")
				return
			}
			w.handleEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				logging.IngestDebug("Watcher: error channel closed")
				return
			}
			logging.Get(logging.CategoryIngest).Error("Watcher error: %v", err)
			w.mu.Lock()
			w.stats.Errors++
			w.mu.Unlock()

		case <-debounceTicker.C:
			w.processDebouncedEvents(ctx)
		}
	}
}

// handleEvent records create/write events for supported documents. Removes
// and renames are ignored: ingestion is additive, beliefs outlive the file.
func (w *Watcher) handleEvent(event fsnotify.Event) {
	if !supportedDocExt(event.Name) {
		return
	}
	if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
		return
	}

	logging.IngestDebug("Watcher: %s event for %s", event.Op, event.Name)

	w.mu.Lock()
	w.stats.LastEventTime = time.Now()
	w.stats.LastFile = event.Name
	w.debounceMap[event.Name] = time.Now()
	w.mu.Unlock()
}

// processDebouncedEvents ingests files whose events settled past the
// debounce window.
func (w *Watcher) processDebouncedEvents(ctx context.Context) {
	w.mu.Lock()
	now := time.Now()
	toProcess := make([]string, 0)
	for path, eventTime := range w.debounceMap {
		if now.Sub(eventTime) >= w.debounceDur {
			toProcess = append(toProcess, path)
			delete(w.debounceMap, path)
		}
	}
	w.mu.Unlock()

	for _, path := range toProcess {
		w.ingestFile(ctx, path)
	}
}

// ingestFile reads, extracts, and ingests one document. Unchanged content
// (same hash as the last ingest of this path) is skipped.
func (w *Watcher) ingestFile(ctx context.Context, path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			logging.IngestDebug("Watcher: file vanished before ingest: %s", path)
			return
		}
		logging.Get(logging.CategoryIngest).Error("Watcher: failed to read %s: %v", path, err)
		w.mu.Lock()
		w.stats.Errors++
		w.mu.Unlock()
		return
	}

	text, err := ExtractDocumentText(path, data)
	if err != nil {
		logging.Get(logging.CategoryIngest).Error("Watcher: failed to extract text from %s: %v", path, err)
		w.mu.Lock()
		w.stats.Errors++
		w.mu.Unlock()
		return
	}

	h := fnv.New64a()
	h.Write([]byte(text))
	sum := h.Sum64()

	w.mu.Lock()
	if prev, ok := w.ingested[path]; ok && prev == sum {
		w.stats.FilesSkipped++
		w.mu.Unlock()
		logging.IngestDebug("Watcher: content unchanged, skipping %s", path)
		return
	}
	w.mu.Unlock()

	n, err := w.store.IngestDocument(ctx, w.userID, w.datasetID, filepath.Base(path), text)
	if err != nil {
		logging.Get(logging.CategoryIngest).Error("Watcher: ingestion failed for %s: %v", path, err)
		w.mu.Lock()
		w.stats.Errors++
		w.mu.Unlock()
		return
	}

	w.mu.Lock()
	w.ingested[path] = sum
	w.stats.FilesIngested++
	w.stats.ChunksStored += n
	w.mu.Unlock()
	logging.Ingest("Watcher: ingested %s (%d chunks)", path, n)
}

// IngestExisting scans the drop directory once and ingests every supported
// document already present. Useful at startup, before events begin flowing.
func (w *Watcher) IngestExisting(ctx context.Context) error {
	entries, err := os.ReadDir(w.watchDir)
	if err != nil {
		if os.IsNotExist(err) {
			logging.IngestDebug("Watcher: drop dir does not exist yet: %s", w.watchDir)
			return nil
		}
		return err
	}
	for _, entry := range entries {
		if entry.IsDir() || !supportedDocExt(entry.Name()) {
			continue
		}
		w.ingestFile(ctx, filepath.Join(w.watchDir, entry.Name()))
	}
	return nil
}

// GetStats returns a snapshot of watcher activity.
func (w *Watcher) GetStats() WatcherStats {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.stats
}

// IsWatching reports whether the event loop is running.
func (w *Watcher) IsWatching() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.running
}

// WatchDir returns the directory being watched.
func (w *Watcher) WatchDir() string {
	return w.watchDir
}
