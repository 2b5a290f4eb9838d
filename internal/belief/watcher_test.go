package belief

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fsnotify/fsnotify"

	"datanerd/internal/types"
)

func newTestWatcher(t *testing.T, store *Store, dir string) *Watcher {
	t.Helper()
	w, err := NewWatcher(store, dir, "user-1", "ds-1")
	if err != nil {
		t.Fatalf("NewWatcher failed: %v", err)
	}
	w.debounceDur = 0 // settle immediately so tests drive the loop directly
	t.Cleanup(func() { _ = w.watcher.Close() })
	return w
}

func writeDoc(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write %s: %v", name, err)
	}
	return path
}

func TestWatcherStartStop(t *testing.T) {
	store := newTestStore(t)
	dir := t.TempDir()
	w, err := NewWatcher(store, dir, "user-1", "")
	if err != nil {
		t.Fatalf("NewWatcher failed: %v", err)
	}

	ctx := context.Background()
	if err := w.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if !w.IsWatching() {
		t.Error("Watcher should report running after Start")
	}
	// Second Start is a no-op.
	if err := w.Start(ctx); err != nil {
		t.Errorf("Re-Start should be harmless: %v", err)
	}

	w.Stop()
	if w.IsWatching() {
		t.Error("Watcher should report stopped after Stop")
	}
	// Second Stop is a no-op.
	w.Stop()
}

func TestWatcherIngestExisting(t *testing.T) {
	store := newTestStore(t)
	dir := t.TempDir()

	writeDoc(t, dir, "notes.txt", strings.Repeat("Renewals lapse after support spikes. ", 10))
	writeDoc(t, dir, "report.html", "<html><body><p>Margins shrank in the EU region.</p></body></html>")
	writeDoc(t, dir, "data.csv", "a,b\n1,2\n") // unsupported, must be skipped
	if err := os.Mkdir(filepath.Join(dir, "subdir"), 0755); err != nil {
		t.Fatalf("Failed to create subdir: %v", err)
	}

	w := newTestWatcher(t, store, dir)
	if err := w.IngestExisting(context.Background()); err != nil {
		t.Fatalf("IngestExisting failed: %v", err)
	}

	stats := w.GetStats()
	if stats.FilesIngested != 2 {
		t.Errorf("Expected 2 files ingested, got %d", stats.FilesIngested)
	}
	if stats.ChunksStored < 2 {
		t.Errorf("Expected at least 2 chunks stored, got %d", stats.ChunksStored)
	}

	count, err := store.BeliefCount(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("BeliefCount failed: %v", err)
	}
	if count != stats.ChunksStored {
		t.Errorf("Store has %d beliefs but watcher reports %d chunks", count, stats.ChunksStored)
	}

	beliefs, err := store.ListBeliefs(context.Background(), "user-1", "ds-1", 100)
	if err != nil {
		t.Fatalf("ListBeliefs failed: %v", err)
	}
	for _, b := range beliefs {
		if b.Source != types.SourceDocumentIngested {
			t.Errorf("Watched document produced source %s", b.Source)
		}
	}
}

func TestWatcherIngestExistingMissingDir(t *testing.T) {
	store := newTestStore(t)
	dir := filepath.Join(t.TempDir(), "never-created")
	w := newTestWatcher(t, store, dir)

	if err := w.IngestExisting(context.Background()); err != nil {
		t.Errorf("Missing drop dir should not error: %v", err)
	}
}

func TestWatcherDebouncesRapidSaves(t *testing.T) {
	store := newTestStore(t)
	dir := t.TempDir()
	path := writeDoc(t, dir, "notes.md", strings.Repeat("The west region lags on conversions. ", 8))
	w := newTestWatcher(t, store, dir)
	ctx := context.Background()

	// Editor saving in a burst: several events, one settled ingestion.
	w.handleEvent(fsnotify.Event{Name: path, Op: fsnotify.Create})
	w.handleEvent(fsnotify.Event{Name: path, Op: fsnotify.Write})
	w.handleEvent(fsnotify.Event{Name: path, Op: fsnotify.Write})
	w.processDebouncedEvents(ctx)

	stats := w.GetStats()
	if stats.FilesIngested != 1 {
		t.Errorf("Burst of events should ingest once, got %d", stats.FilesIngested)
	}

	// Another save with identical content skips the re-ingest.
	w.handleEvent(fsnotify.Event{Name: path, Op: fsnotify.Write})
	w.processDebouncedEvents(ctx)

	stats = w.GetStats()
	if stats.FilesIngested != 1 {
		t.Errorf("Unchanged content should not re-ingest, got %d ingests", stats.FilesIngested)
	}
	if stats.FilesSkipped != 1 {
		t.Errorf("Unchanged content should count as skipped, got %d", stats.FilesSkipped)
	}
}

func TestWatcherReingestsChangedContent(t *testing.T) {
	store := newTestStore(t)
	dir := t.TempDir()
	path := writeDoc(t, dir, "notes.txt", "First draft of the findings.")
	w := newTestWatcher(t, store, dir)
	ctx := context.Background()

	w.handleEvent(fsnotify.Event{Name: path, Op: fsnotify.Write})
	w.processDebouncedEvents(ctx)

	writeDoc(t, dir, "notes.txt", "Second draft with a different conclusion.")
	w.handleEvent(fsnotify.Event{Name: path, Op: fsnotify.Write})
	w.processDebouncedEvents(ctx)

	stats := w.GetStats()
	if stats.FilesIngested != 2 {
		t.Errorf("Changed content should re-ingest, got %d ingests", stats.FilesIngested)
	}
}

func TestWatcherIgnoresUnsupportedAndRemovals(t *testing.T) {
	store := newTestStore(t)
	dir := t.TempDir()
	w := newTestWatcher(t, store, dir)
	ctx := context.Background()

	w.handleEvent(fsnotify.Event{Name: filepath.Join(dir, "data.csv"), Op: fsnotify.Write})
	w.handleEvent(fsnotify.Event{Name: filepath.Join(dir, "gone.txt"), Op: fsnotify.Remove})
	w.processDebouncedEvents(ctx)

	stats := w.GetStats()
	if stats.FilesIngested != 0 || stats.Errors != 0 {
		t.Errorf("Unsupported and removal events should be ignored: %+v", stats)
	}

	count, _ := store.BeliefCount(ctx, "user-1")
	if count != 0 {
		t.Errorf("No beliefs should be stored, got %d", count)
	}
}

func TestWatcherVanishedFileIsNotAnError(t *testing.T) {
	store := newTestStore(t)
	dir := t.TempDir()
	w := newTestWatcher(t, store, dir)
	ctx := context.Background()

	// Event for a file deleted before the debounce settles.
	w.handleEvent(fsnotify.Event{Name: filepath.Join(dir, "fleeting.txt"), Op: fsnotify.Create})
	w.processDebouncedEvents(ctx)

	stats := w.GetStats()
	if stats.Errors != 0 {
		t.Errorf("Vanished file should not count as an error, got %d", stats.Errors)
	}
	if stats.FilesIngested != 0 {
		t.Errorf("Vanished file should not be ingested, got %d", stats.FilesIngested)
	}
}
