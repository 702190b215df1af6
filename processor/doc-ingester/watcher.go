package docingester

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

// eventChannelBuffer is the size of the inbox event channel.
const eventChannelBuffer = 100

// InboxEvent signals a PDF that has settled in the inbox.
type InboxEvent struct {
	// Path is the absolute file path.
	Path string
	// Name is the file name without directory.
	Name string
}

// InboxWatcher watches a flat inbox directory for dropped PDFs. Events fire
// only after a file stops changing for the settle delay, and only once per
// content hash, so partially copied or re-touched files do not double
// ingest.
type InboxWatcher struct {
	dir         string
	settleDelay time.Duration
	watcher     *fsnotify.Watcher
	logger      *slog.Logger

	// Settling: last-seen time per path, flushed by the ticker.
	pendingMu sync.Mutex
	pending   map[string]time.Time

	// Hash-based duplicate suppression
	hashMu sync.Mutex
	hashes map[string]string

	events chan InboxEvent

	droppedEvents atomic.Int64
}

// NewInboxWatcher creates the inbox watcher.
func NewInboxWatcher(dir string, settleDelay time.Duration, logger *slog.Logger) (*InboxWatcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &InboxWatcher{
		dir:         dir,
		settleDelay: settleDelay,
		watcher:     fsw,
		logger:      logger,
		pending:     make(map[string]time.Time),
		hashes:      make(map[string]string),
		events:      make(chan InboxEvent, eventChannelBuffer),
	}, nil
}

// Events returns the channel of settled inbox files.
func (w *InboxWatcher) Events() <-chan InboxEvent {
	return w.events
}

// Start begins watching the inbox directory.
func (w *InboxWatcher) Start(ctx context.Context) error {
	if err := os.MkdirAll(w.dir, 0755); err != nil {
		return err
	}
	if err := w.watcher.Add(w.dir); err != nil {
		return err
	}

	go w.processEvents(ctx)

	w.logger.Info("Inbox watcher started",
		"dir", w.dir,
		"settle_delay", w.settleDelay)
	return nil
}

// Stop stops the watcher. The events channel is closed by processEvents.
func (w *InboxWatcher) Stop() error {
	return w.watcher.Close()
}

// ScanExisting queues PDFs already present in the inbox.
func (w *InboxWatcher) ScanExisting() error {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return err
	}

	now := time.Now().Add(-w.settleDelay)
	w.pendingMu.Lock()
	defer w.pendingMu.Unlock()
	for _, entry := range entries {
		if entry.IsDir() || !isPDF(entry.Name()) {
			continue
		}
		path := filepath.Join(w.dir, entry.Name())
		// Backdated so the next flush picks them up immediately.
		w.pending[path] = now
	}
	return nil
}

func isPDF(name string) bool {
	return strings.EqualFold(filepath.Ext(name), ".pdf")
}

// processEvents handles fsnotify events and flushes settled files.
func (w *InboxWatcher) processEvents(ctx context.Context) {
	defer close(w.events)
	ticker := time.NewTicker(w.settleDelay / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleFSEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("Watcher error", "error", err)

		case <-ticker.C:
			w.flushSettled(ctx)
		}
	}
}

// handleFSEvent marks a PDF as pending, resetting its settle clock.
func (w *InboxWatcher) handleFSEvent(event fsnotify.Event) {
	if !isPDF(event.Name) {
		return
	}

	if event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
		w.pendingMu.Lock()
		delete(w.pending, event.Name)
		w.pendingMu.Unlock()
		return
	}

	if event.Has(fsnotify.Create) || event.Has(fsnotify.Write) {
		w.pendingMu.Lock()
		w.pending[event.Name] = time.Now()
		w.pendingMu.Unlock()
		w.logger.Debug("Inbox change detected", "path", event.Name, "op", event.Op.String())
	}
}

// flushSettled emits events for files that have been quiet long enough.
func (w *InboxWatcher) flushSettled(ctx context.Context) {
	cutoff := time.Now().Add(-w.settleDelay)

	w.pendingMu.Lock()
	var settled []string
	for path, seen := range w.pending {
		if seen.Before(cutoff) || seen.Equal(cutoff) {
			settled = append(settled, path)
			delete(w.pending, path)
		}
	}
	w.pendingMu.Unlock()

	for _, path := range settled {
		select {
		case <-ctx.Done():
			return
		default:
		}

		info, err := os.Stat(path)
		if err != nil || info.IsDir() {
			continue
		}

		hash, err := fileHash(path)
		if err != nil {
			w.logger.Warn("Failed to hash inbox file", "path", path, "error", err)
			continue
		}

		w.hashMu.Lock()
		seen := w.hashes[path] == hash
		w.hashes[path] = hash
		w.hashMu.Unlock()
		if seen {
			continue
		}

		w.sendEvent(InboxEvent{Path: path, Name: filepath.Base(path)})
	}
}

func fileHash(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// sendEvent sends an event to the output channel without blocking.
func (w *InboxWatcher) sendEvent(event InboxEvent) {
	select {
	case w.events <- event:
		w.logger.Debug("Inbox file settled", "path", event.Path)
	default:
		dropped := w.droppedEvents.Add(1)
		w.logger.Warn("Event channel full, dropping event",
			"path", event.Path,
			"total_dropped", dropped)
	}
}

// DroppedEvents returns the number of events dropped due to channel overflow.
func (w *InboxWatcher) DroppedEvents() int64 {
	return w.droppedEvents.Load()
}
