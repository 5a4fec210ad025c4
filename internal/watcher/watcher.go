// Package watcher keeps in-memory settings in sync with the database.
package watcher

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/router-for-me/strepsil/internal/models"
	internalsettings "github.com/router-for-me/strepsil/internal/settings"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const (
	// DefaultPollInterval controls how often the settings table is checked.
	DefaultPollInterval = 5 * time.Second
	// defaultQueryTimeout bounds each poll query.
	defaultQueryTimeout = 10 * time.Second
)

// Refresher reloads a snapshot from storage.
type Refresher interface {
	RefreshSnapshot(ctx context.Context, snap *internalsettings.Snapshot) error
}

// SettingsWatcher reloads the settings snapshot when another writer changes the table.
type SettingsWatcher struct {
	db           *gorm.DB
	refresher    Refresher
	snap         *internalsettings.Snapshot
	pollInterval time.Duration

	mu        sync.Mutex
	latestAt  time.Time
	latestKey string
	hasLatest bool
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// NewSettingsWatcher constructs a watcher. A non-positive interval uses DefaultPollInterval.
func NewSettingsWatcher(db *gorm.DB, refresher Refresher, snap *internalsettings.Snapshot, interval time.Duration) *SettingsWatcher {
	if db == nil || refresher == nil || snap == nil {
		return nil
	}
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &SettingsWatcher{db: db, refresher: refresher, snap: snap, pollInterval: interval}
}

// Start launches the polling loop.
func (w *SettingsWatcher) Start(ctx context.Context) {
	if w == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	w.mu.Lock()
	if w.cancel != nil {
		w.mu.Unlock()
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.mu.Unlock()

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.run(runCtx)
	}()
	log.Infof("settings watcher started (poll_interval=%s)", w.pollInterval)
}

// Stop cancels the loop and waits for it to exit.
func (w *SettingsWatcher) Stop() {
	if w == nil {
		return
	}
	w.mu.Lock()
	if w.cancel != nil {
		w.cancel()
		w.cancel = nil
	}
	w.mu.Unlock()
	w.wg.Wait()
}

// run polls until ctx is cancelled.
func (w *SettingsWatcher) run(ctx context.Context) {
	w.Poll(ctx, true)

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.Poll(ctx, false)
		}
	}
}

// Poll refreshes the snapshot when the newest settings row differs from the last one seen.
// It reports whether a reload happened.
func (w *SettingsWatcher) Poll(ctx context.Context, force bool) bool {
	if w == nil {
		return false
	}
	qctx, cancel := context.WithTimeout(ctx, defaultQueryTimeout)
	defer cancel()

	// latestRow captures the newest setting timestamp for change detection.
	type latestRow struct {
		Key       string    `gorm:"column:key"`
		UpdatedAt time.Time `gorm:"column:updated_at"`
	}
	var latest latestRow
	hasLatest := true
	errLatest := w.db.WithContext(qctx).
		Model(&models.Setting{}).
		Select("key", "updated_at").
		Order("updated_at DESC, key DESC").
		Limit(1).
		Take(&latest).Error
	if errLatest != nil {
		if errors.Is(errLatest, context.Canceled) {
			return false
		}
		if !errors.Is(errLatest, gorm.ErrRecordNotFound) {
			log.WithError(errLatest).Warn("settings watcher: query latest row failed")
			return false
		}
		hasLatest = false
	}
	latestKey := strings.TrimSpace(latest.Key)
	latestAt := latest.UpdatedAt.UTC()

	w.mu.Lock()
	unchanged := w.hasLatest == hasLatest && latestAt.Equal(w.latestAt) && latestKey == w.latestKey
	w.mu.Unlock()
	if !force && unchanged {
		return false
	}

	if errRefresh := w.refresher.RefreshSnapshot(qctx, w.snap); errRefresh != nil {
		log.WithError(errRefresh).Warn("settings watcher: refresh snapshot failed")
		return false
	}
	if !force {
		log.Infof("settings watcher: settings changed, reloaded (latest_updated_at=%s latest_key=%s)", latestAt.Format(time.RFC3339Nano), latestKey)
	}

	w.mu.Lock()
	w.latestAt = latestAt
	w.latestKey = latestKey
	w.hasLatest = hasLatest
	w.mu.Unlock()
	return true
}
