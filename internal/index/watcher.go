package index

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/decisionrecords/internal/models"
	"github.com/starford/decisionrecords/internal/parser"
	"github.com/starford/decisionrecords/internal/storage"
)

// Event kinds passed to EventCallback.
const (
	EventCreated = "created"
	EventUpdated = "updated"
	EventDeleted = "deleted"
)

const reconcileDelay = 200 * time.Millisecond

// EventCallback is called after a watcher-driven index change.
// kind is one of EventCreated, EventUpdated, EventDeleted.
type EventCallback func(kind string, path string)

// Watch starts an fsnotify watcher on the record directory and keeps the
// index current until ctx is cancelled. Records are kept in a single flat
// directory, so subdirectories are not watched.
//
// Rename events trigger a debounced reconciliation pass that removes stale
// entries and indexes files that arrived under a new name.
func Watch(ctx context.Context, db *DB, store storage.Provider, phrases *parser.Phrases, logger *slog.Logger, cb EventCallback) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	root := store.Root()
	if err := w.Add(root); err != nil {
		return err
	}

	logger.Info("watcher: started", slog.String("root", root))

	var reconcileTimer *time.Timer
	var reconcileCh <-chan time.Time

	scheduleReconcile := func() {
		if reconcileTimer == nil {
			reconcileTimer = time.NewTimer(reconcileDelay)
			reconcileCh = reconcileTimer.C
		} else {
			reconcileTimer.Reset(reconcileDelay)
		}
	}

	notify := func(kind, name string) {
		if cb != nil {
			cb(kind, name)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if reconcileTimer != nil {
				reconcileTimer.Stop()
			}
			logger.Info("watcher: stopped")
			return nil

		case <-reconcileCh:
			reconcile(db, store, phrases, logger, cb)

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}

			name, ok := recordName(root, ev.Name)
			if !ok {
				continue
			}

			switch {
			case ev.Op&(fsnotify.Create|fsnotify.Write) != 0:
				info, statErr := os.Stat(ev.Name)
				if statErr != nil || info.IsDir() {
					continue
				}
				data, readErr := store.Read(name)
				if readErr != nil {
					logger.Warn("watcher: read failed", slog.String("path", name), slog.String("error", readErr.Error()))
					continue
				}
				meta := models.RecordMetadata{Name: name, Checksum: storage.Checksum(data), UpdatedAt: info.ModTime()}
				if idxErr := indexFile(db, phrases, meta, data); idxErr != nil {
					logger.Warn("watcher: index failed", slog.String("path", name), slog.String("error", idxErr.Error()))
					continue
				}
				kind := EventUpdated
				if ev.Op&fsnotify.Create != 0 {
					kind = EventCreated
				}
				logger.Debug("watcher: indexed", slog.String("path", name), slog.String("op", kind))
				notify(kind, name)

			case ev.Op&fsnotify.Remove != 0:
				if delErr := db.DeleteRecord(name); delErr != nil {
					logger.Warn("watcher: delete failed", slog.String("path", name), slog.String("error", delErr.Error()))
					continue
				}
				logger.Debug("watcher: deleted", slog.String("path", name))
				notify(EventDeleted, name)

			case ev.Op&fsnotify.Rename != 0:
				// Rename fires on the old path only; the new name arrives
				// as a separate Create.
				if delErr := db.DeleteRecord(name); delErr != nil {
					logger.Warn("watcher: rename delete failed", slog.String("path", name), slog.String("error", delErr.Error()))
				} else {
					notify(EventDeleted, name)
				}
				scheduleReconcile()
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

// recordName maps an absolute event path to a record file name. Lock files,
// temp files and anything that is not a numbered md/rst record are ignored.
func recordName(root, abs string) (string, bool) {
	rel, err := filepath.Rel(root, abs)
	if err != nil || strings.ContainsAny(rel, `/\`) {
		return "", false
	}
	if strings.HasPrefix(rel, ".") {
		return "", false
	}
	if _, ok := models.FormatOf(rel); !ok {
		return "", false
	}
	return rel, parser.RecordID(rel) > 0
}

// reconcile removes index entries whose file is gone and indexes files that
// are new or changed.
func reconcile(db *DB, store storage.Provider, phrases *parser.Phrases, logger *slog.Logger, cb EventCallback) {
	checksums, err := db.AllChecksums()
	if err != nil {
		logger.Warn("reconcile: all checksums failed", slog.String("error", err.Error()))
		return
	}

	metas, err := store.List()
	if err != nil {
		logger.Warn("reconcile: list failed", slog.String("error", err.Error()))
		return
	}

	disk := make(map[string]models.RecordMetadata, len(metas))
	for _, m := range metas {
		if parser.RecordID(m.Name) > 0 {
			disk[m.Name] = m
		}
	}

	for p := range checksums {
		if _, ok := disk[p]; ok {
			continue
		}
		if delErr := db.DeleteRecord(p); delErr == nil {
			logger.Debug("reconcile: removed stale", slog.String("path", p))
			if cb != nil {
				cb(EventDeleted, p)
			}
		}
	}

	for p, m := range disk {
		old, known := checksums[p]
		if old == m.Checksum {
			continue
		}
		data, readErr := store.Read(p)
		if readErr != nil {
			continue
		}
		if idxErr := indexFile(db, phrases, m, data); idxErr != nil {
			continue
		}
		logger.Debug("reconcile: indexed", slog.String("path", p))
		if cb != nil {
			kind := EventCreated
			if known {
				kind = EventUpdated
			}
			cb(kind, p)
		}
	}
}
