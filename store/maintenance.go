package store

import (
	"context"
	stderrors "errors"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"
)

const gcDiscardRatio = 0.5

// GCWorker reclaims BadgerDB value-log space on a fixed interval. It runs
// under the engine supervisor and stops with its context.
type GCWorker struct {
	db       *badger.DB
	log      *slog.Logger
	interval time.Duration
}

func NewGCWorker(db *badger.DB, log *slog.Logger, interval time.Duration) *GCWorker {
	return &GCWorker{db: db, log: log, interval: interval}
}

func (w *GCWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			// Badger reports ErrNoRewrite when there was nothing to
			// reclaim; that is the common case, not a failure.
			err := w.db.RunValueLogGC(gcDiscardRatio)
			if err != nil && !stderrors.Is(err, badger.ErrNoRewrite) {
				w.log.Warn("Value log GC failed", "error", err)
			}
		}
	}
}
