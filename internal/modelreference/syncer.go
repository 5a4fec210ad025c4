// Package modelreference syncs public model price references from models.dev.
package modelreference

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Sync defaults.
const (
	DefaultModelsURL      = "https://models.dev/api.json"
	DefaultSyncInterval   = 6 * time.Hour
	defaultRequestTimeout = 15 * time.Second
	maxPayloadBytes       = 32 << 20
)

// errNotModified reports a 304 for the last seen ETag.
var errNotModified = errors.New("price syncer: payload not modified")

// Syncer periodically refreshes the price_references table.
type Syncer struct {
	db       *gorm.DB
	url      string
	interval time.Duration
	client   *http.Client
	now      func() time.Time

	mu   sync.Mutex
	etag string
}

// NewSyncer constructs a syncer. Empty url and non-positive interval use the defaults.
func NewSyncer(db *gorm.DB, url string, interval time.Duration) *Syncer {
	if db == nil {
		return nil
	}
	if strings.TrimSpace(url) == "" {
		url = DefaultModelsURL
	}
	if interval <= 0 {
		interval = DefaultSyncInterval
	}
	return &Syncer{
		db:       db,
		url:      strings.TrimSpace(url),
		interval: interval,
		client:   &http.Client{Timeout: defaultRequestTimeout},
		now:      time.Now,
	}
}

// Start syncs once immediately, then on every interval until ctx is done.
func (s *Syncer) Start(ctx context.Context) {
	if s == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	go func() {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			if err := s.SyncOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.WithError(err).Warn("price syncer: sync failed")
			}
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
	log.Infof("price reference syncer started (url=%s interval=%s)", s.url, s.interval)
}

// SyncOnce fetches the payload and stores its references. An unchanged payload is a no-op.
func (s *Syncer) SyncOnce(ctx context.Context) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("price syncer: nil db")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	body, etag, err := s.fetch(ctx)
	if errors.Is(err, errNotModified) {
		log.Debug("price syncer: payload unchanged")
		return nil
	}
	if err != nil {
		return err
	}

	refs, err := ParseModelsPayload(body)
	if err != nil {
		return err
	}
	if len(refs) == 0 {
		return fmt.Errorf("price syncer: payload has no models")
	}
	if err = StoreReferences(ctx, s.db, refs, s.now().UTC()); err != nil {
		return err
	}

	s.mu.Lock()
	s.etag = etag
	s.mu.Unlock()
	log.Infof("price syncer: stored %d references", len(refs))
	return nil
}

// fetch downloads the payload, sending the last ETag so the server can answer 304.
func (s *Syncer) fetch(ctx context.Context) ([]byte, string, error) {
	reqCtx, cancel := context.WithTimeout(ctx, defaultRequestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, "", fmt.Errorf("price syncer: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	s.mu.Lock()
	if s.etag != "" {
		req.Header.Set("If-None-Match", s.etag)
	}
	s.mu.Unlock()

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("price syncer: request failed: %w", err)
	}
	defer func() {
		if errClose := resp.Body.Close(); errClose != nil {
			log.WithError(errClose).Warn("price syncer: close response body failed")
		}
	}()

	switch {
	case resp.StatusCode == http.StatusNotModified:
		return nil, "", errNotModified
	case resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices:
		return nil, "", fmt.Errorf("price syncer: unexpected status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPayloadBytes))
	if err != nil {
		return nil, "", fmt.Errorf("price syncer: read response: %w", err)
	}
	return body, resp.Header.Get("ETag"), nil
}
