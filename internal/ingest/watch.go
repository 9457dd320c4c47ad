package ingest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"village-assist/internal/extract"
	"village-assist/internal/store"
)

// DefaultSettle is how long a file must stay quiet before it is ingested.
const DefaultSettle = 500 * time.Millisecond

// Watcher ingests supported files dropped into a directory.
type Watcher struct {
	ingester *Ingester
	dir      string
	settle   time.Duration

	mu      sync.Mutex
	pending map[string]*time.Timer
	wg      sync.WaitGroup
}

func NewWatcher(ing *Ingester, dir string, settle time.Duration) *Watcher {
	if settle <= 0 {
		settle = DefaultSettle
	}
	return &Watcher{ingester: ing, dir: dir, settle: settle, pending: make(map[string]*time.Timer)}
}

// Run ingests files in the directory that no ready or processing document
// already covers, then watches for new and modified files until ctx is done.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer fw.Close()

	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return fmt.Errorf("create docs dir: %w", err)
	}
	if err := fw.Add(w.dir); err != nil {
		return fmt.Errorf("watch %s: %w", w.dir, err)
	}
	w.ingester.log.Info("watching documents directory", "dir", w.dir)

	if err := w.scan(ctx); err != nil {
		w.ingester.log.Warn("initial document scan failed", "err", err)
	}

	defer w.stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if ev.Has(fsnotify.Create) || ev.Has(fsnotify.Write) {
				if extract.Supported(ev.Name) {
					w.schedule(ctx, ev.Name)
				}
			}
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.ingester.log.Warn("watcher error", "err", err)
		}
	}
}

func (w *Watcher) scan(ctx context.Context) error {
	docs, err := w.ingester.store.ListDocuments(ctx, store.StatusReady, store.StatusProcessing)
	if err != nil {
		return fmt.Errorf("list documents: %w", err)
	}
	known := make(map[string]bool, len(docs))
	for _, d := range docs {
		known[d.Filename] = true
	}

	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return fmt.Errorf("read %s: %w", w.dir, err)
	}
	for _, e := range entries {
		if e.IsDir() || !extract.Supported(e.Name()) || known[e.Name()] {
			continue
		}
		w.ingest(ctx, filepath.Join(w.dir, e.Name()))
	}
	return nil
}

// schedule coalesces bursts of write events for one file into one ingestion.
func (w *Watcher) schedule(ctx context.Context, path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.pending[path]; ok && t.Stop() {
		t.Reset(w.settle)
		return
	}
	w.wg.Add(1)
	var t *time.Timer
	t = time.AfterFunc(w.settle, func() {
		defer w.wg.Done()
		w.mu.Lock()
		if w.pending[path] == t {
			delete(w.pending, path)
		}
		w.mu.Unlock()
		w.ingest(ctx, path)
	})
	w.pending[path] = t
}

func (w *Watcher) ingest(ctx context.Context, path string) {
	if ctx.Err() != nil {
		return
	}
	doc, err := w.ingester.IngestFile(ctx, path)
	if err != nil {
		w.ingester.log.Error("failed to ingest watched file", "path", path, "err", err)
		return
	}
	w.ingester.log.Info("ingested watched file", "path", path, "document_id", doc.ID)
}

func (w *Watcher) stop() {
	w.mu.Lock()
	for path, t := range w.pending {
		if t.Stop() {
			w.wg.Done()
		}
		delete(w.pending, path)
	}
	w.mu.Unlock()
	w.wg.Wait()
}
