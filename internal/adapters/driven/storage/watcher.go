package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ErrWatcherFailed indicates the filesystem watcher could not start.
var ErrWatcherFailed = errors.New("failed to initialize filesystem watcher")

// DefaultSettleDelay is how long a file must stay quiet before it is submitted.
const DefaultSettleDelay = 2 * time.Second

// Submitter enqueues a document for ingestion.
type Submitter interface {
	Submit(ctx context.Context, source string) (string, error)
}

// WatcherConfig holds the inbox watcher settings.
type WatcherConfig struct {
	Store     *FileStore
	Submitter Submitter

	// SettleDelay debounces the burst of writes a single copy produces
	SettleDelay time.Duration
	Logger      *slog.Logger
}

// Watcher submits files that appear or change under the store root.
type Watcher struct {
	store     *FileStore
	submitter Submitter
	settle    time.Duration
	logger    *slog.Logger

	watcher *fsnotify.Watcher

	mu      sync.Mutex
	pending map[string]*time.Timer
	wg      sync.WaitGroup
	stop    chan struct{}
	once    sync.Once
}

// NewWatcher creates an inbox watcher.
func NewWatcher(cfg WatcherConfig) (*Watcher, error) {
	if cfg.Store == nil || cfg.Submitter == nil {
		return nil, errors.New("watcher requires a store and a submitter")
	}
	if cfg.SettleDelay <= 0 {
		cfg.SettleDelay = DefaultSettleDelay
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrWatcherFailed, err)
	}

	return &Watcher{
		store:     cfg.Store,
		submitter: cfg.Submitter,
		settle:    cfg.SettleDelay,
		logger:    cfg.Logger,
		watcher:   w,
		pending:   make(map[string]*time.Timer),
		stop:      make(chan struct{}),
	}, nil
}

// Start watches the root and every non-hidden subdirectory.
func (w *Watcher) Start(ctx context.Context) error {
	err := filepath.WalkDir(w.store.Root(), func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if p != w.store.Root() && isHidden(d.Name()) {
			return filepath.SkipDir
		}
		return w.watcher.Add(p)
	})
	if err != nil {
		return fmt.Errorf("watch %s: %w", w.store.Root(), err)
	}

	w.wg.Add(1)
	go w.processEvents(ctx)

	w.logger.Info("inbox watcher started", "root", w.store.Root(), "settle_delay", w.settle)
	return nil
}

// Stop closes the watcher, drops pending submissions and waits for the loop to exit.
func (w *Watcher) Stop() {
	w.once.Do(func() {
		close(w.stop)
		_ = w.watcher.Close()

		w.mu.Lock()
		for key, t := range w.pending {
			t.Stop()
			delete(w.pending, key)
		}
		w.mu.Unlock()
	})
	w.wg.Wait()
}

func (w *Watcher) processEvents(ctx context.Context) {
	defer w.wg.Done()
	for {
		select {
		case <-w.stop:
			return
		case <-ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handle(ctx, event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("inbox watcher error", "error", err)
		}
	}
}

func (w *Watcher) handle(ctx context.Context, event fsnotify.Event) {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
		return
	}
	if isHidden(filepath.Base(event.Name)) {
		return
	}

	info, err := os.Stat(event.Name)
	if err != nil {
		return
	}
	if info.IsDir() {
		if event.Has(fsnotify.Create) {
			if err := w.watcher.Add(event.Name); err != nil {
				w.logger.Warn("failed to watch new directory", "path", event.Name, "error", err)
			}
		}
		return
	}
	if !info.Mode().IsRegular() {
		return
	}

	key, err := w.store.keyFor(event.Name)
	if err != nil {
		return
	}
	w.schedule(ctx, key)
}

// schedule (re)starts the settle timer for key.
func (w *Watcher) schedule(ctx context.Context, key string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if t, ok := w.pending[key]; ok {
		t.Reset(w.settle)
		return
	}
	w.pending[key] = time.AfterFunc(w.settle, func() {
		w.mu.Lock()
		delete(w.pending, key)
		w.mu.Unlock()

		select {
		case <-w.stop:
			return
		default:
		}
		w.submit(ctx, key)
	})
}

func (w *Watcher) submit(ctx context.Context, key string) {
	taskID, err := w.submitter.Submit(ctx, key)
	if err != nil {
		w.logger.Error("failed to submit arrived document", "source", key, "error", err)
		return
	}
	w.logger.Info("submitted arrived document", "source", key, "task_id", taskID)
}
