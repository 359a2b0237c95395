// Package watcher indexes documents dropped under a study directory tree.
//
// Files are picked up when their path relative to the root has the shape
// <study>/rag_files/<name>.(pdf|txt|md). Bursts of writes to the same file
// are debounced into a single reindex.
package watcher

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/tjfontaine/rag-chat-proxy/internal/rag"
	"github.com/tjfontaine/rag-chat-proxy/internal/storage"
)

// DefaultDebounce is the quiet period before a changed file is reindexed.
const DefaultDebounce = 500 * time.Millisecond

const ragDir = "rag_files"

// Indexer indexes one file on disk.
type Indexer interface {
	IndexFile(ctx context.Context, studyID, path, source string) rag.IndexResult
}

// Remover drops a document's chunks. storage.DocumentStore satisfies it.
type Remover interface {
	DeleteDocument(ctx context.Context, studyID, source string) error
}

// Watcher reindexes documents as they change on disk.
type Watcher struct {
	root     string
	indexer  Indexer
	remover  Remover
	debounce time.Duration
	logger   *slog.Logger

	fsw *fsnotify.Watcher

	mu      sync.Mutex
	pending map[string]time.Time

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithDebounce overrides DefaultDebounce.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(w *Watcher) {
		if l != nil {
			w.logger = l
		}
	}
}

// WithRemover deletes a document's chunks when its file disappears.
func WithRemover(r Remover) Option {
	return func(w *Watcher) {
		w.remover = r
	}
}

// New creates a watcher over root. Call Start to begin watching.
func New(root string, indexer Indexer, opts ...Option) (*Watcher, error) {
	if indexer == nil {
		return nil, errors.New("watcher requires an indexer")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	w := &Watcher{
		root:     abs,
		indexer:  indexer,
		debounce: DefaultDebounce,
		logger:   slog.Default(),
		pending:  make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// ParsePath reports the study and source for a path relative to the watch
// root. Source is the slash-separated relative path.
func ParsePath(rel string) (studyID, source string, ok bool) {
	rel = filepath.ToSlash(filepath.Clean(rel))
	parts := strings.Split(rel, "/")
	if len(parts) != 3 || parts[1] != ragDir {
		return "", "", false
	}
	if parts[0] == "" || parts[0] == "." || parts[0] == ".." || parts[2] == "" {
		return "", "", false
	}
	if !rag.SupportedExtension(parts[2]) {
		return "", "", false
	}
	return parts[0], rel, true
}

// SourceFor returns the source a file named name gets when dropped into
// studyID's document directory.
func SourceFor(studyID, name string) string {
	return filepath.ToSlash(filepath.Join(studyID, ragDir, name))
}

// Start watches the tree and processes changes until ctx is cancelled or
// Close is called. The root is created if it does not exist.
func (w *Watcher) Start(ctx context.Context) error {
	if err := os.MkdirAll(w.root, 0o755); err != nil {
		return err
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	w.fsw = fsw
	if err := w.addRecursive(w.root); err != nil {
		fsw.Close()
		return err
	}

	ctx, w.cancel = context.WithCancel(ctx)
	w.wg.Add(2)
	go w.processEvents(ctx)
	go w.processPending(ctx)

	w.logger.Info("document watcher started",
		slog.String("root", w.root),
		slog.Duration("debounce", w.debounce),
	)
	return nil
}

// Sync indexes every matching file already present under the root.
func (w *Watcher) Sync(ctx context.Context) (int, error) {
	indexed := 0
	err := filepath.WalkDir(w.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() {
			return nil
		}
		if w.index(ctx, path) {
			indexed++
		}
		return nil
	})
	if errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}
	return indexed, err
}

// Close stops watching and waits for in-flight indexing to finish.
func (w *Watcher) Close() error {
	if w.cancel != nil {
		w.cancel()
	}
	var err error
	if w.fsw != nil {
		err = w.fsw.Close()
	}
	w.wg.Wait()
	return err
}

func (w *Watcher) addRecursive(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if err := w.fsw.Add(path); err != nil {
			w.logger.Warn("failed to watch directory", slog.String("path", path), slog.String("error", err.Error()))
		}
		return nil
	})
}

func (w *Watcher) processEvents(ctx context.Context) {
	defer w.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handleEvent(ctx, event)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watch error", slog.String("error", err.Error()))
		}
	}
}

func (w *Watcher) handleEvent(ctx context.Context, event fsnotify.Event) {
	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.addRecursive(event.Name); err != nil {
				w.logger.Warn("failed to watch new directory", slog.String("path", event.Name))
			}
			// Files copied in with the directory produce no events of their own.
			_ = filepath.WalkDir(event.Name, func(path string, d fs.DirEntry, err error) error {
				if err == nil && !d.IsDir() {
					w.schedule(path)
				}
				return nil
			})
			return
		}
	}

	switch {
	case event.Has(fsnotify.Write), event.Has(fsnotify.Create):
		w.schedule(event.Name)
	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		w.remove(ctx, event.Name)
	}
}

func (w *Watcher) schedule(path string) {
	w.mu.Lock()
	w.pending[path] = time.Now()
	w.mu.Unlock()
}

func (w *Watcher) processPending(ctx context.Context) {
	defer w.wg.Done()

	tick := w.debounce / 5
	if tick < 10*time.Millisecond {
		tick = 10 * time.Millisecond
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, path := range w.due(time.Now()) {
				w.index(ctx, path)
			}
		}
	}
}

func (w *Watcher) due(now time.Time) []string {
	w.mu.Lock()
	defer w.mu.Unlock()

	var ready []string
	for path, changed := range w.pending {
		if now.Sub(changed) >= w.debounce {
			ready = append(ready, path)
			delete(w.pending, path)
		}
	}
	return ready
}

// index runs the indexer for path when it matches the drop layout.
func (w *Watcher) index(ctx context.Context, path string) bool {
	studyID, source, ok := w.match(path)
	if !ok {
		w.logger.Debug("skipping file outside document layout", slog.String("path", path))
		return false
	}

	start := time.Now()
	res := w.indexer.IndexFile(ctx, studyID, path, source)
	if !res.Success {
		w.logger.Error("document indexing failed",
			slog.String("study_id", studyID),
			slog.String("source", source),
			slog.String("error", res.Error),
		)
		return false
	}
	w.logger.Info("document indexed",
		slog.String("study_id", studyID),
		slog.String("source", source),
		slog.Int("chunks", res.ChunksIndexed),
		slog.Duration("duration", time.Since(start)),
	)
	return true
}

func (w *Watcher) remove(ctx context.Context, path string) {
	w.mu.Lock()
	delete(w.pending, path)
	w.mu.Unlock()

	if w.remover == nil {
		return
	}
	studyID, source, ok := w.match(path)
	if !ok {
		return
	}
	err := w.remover.DeleteDocument(ctx, studyID, source)
	switch {
	case errors.Is(err, storage.ErrNotFound):
	case err != nil:
		w.logger.Error("failed to remove document",
			slog.String("source", source),
			slog.String("error", err.Error()),
		)
	default:
		w.logger.Info("document removed", slog.String("study_id", studyID), slog.String("source", source))
	}
}

func (w *Watcher) match(path string) (string, string, bool) {
	rel, err := filepath.Rel(w.root, path)
	if err != nil {
		return "", "", false
	}
	return ParsePath(rel)
}
