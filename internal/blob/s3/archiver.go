package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/moonbotlabs/moonbot/internal/domain"
)

// BlobWriter is the upload surface the archiver needs. Writer implements it.
type BlobWriter interface {
	Put(ctx context.Context, key string, data io.Reader, contentType string) error
	PutMultipart(ctx context.Context, key string, data io.Reader, partSize int64) error
}

// archiveRecord is one JSONL line. The position's own codec leaves the asset
// identifier to the enclosing book key, so the record carries it explicitly.
type archiveRecord struct {
	Asset    string          `json:"asset"`
	Position domain.Position `json:"position"`
}

// Archiver periodically snapshots closed positions (sold and failed) to
// object storage as JSONL, one object per run keyed by timestamp. The ledger
// only ever holds the current lifecycle state per asset, so these snapshots
// are the durable trade history.
//
// Archival is read-only against the store: nothing is deleted from the
// ledger here.
type Archiver struct {
	store    domain.PositionStore
	writer   BlobWriter
	interval time.Duration
	prefix   string
	logger   *slog.Logger
}

// NewArchiver creates an Archiver uploading under prefix every interval.
// A non-positive interval defaults to one hour.
func NewArchiver(store domain.PositionStore, writer BlobWriter, interval time.Duration, prefix string, logger *slog.Logger) *Archiver {
	if interval <= 0 {
		interval = time.Hour
	}
	if prefix == "" {
		prefix = "archive"
	}
	return &Archiver{
		store:    store,
		writer:   writer,
		interval: interval,
		prefix:   prefix,
		logger:   logger.With(slog.String("component", "archiver")),
	}
}

// Run archives on the configured interval until ctx is cancelled. Upload
// failures are logged and retried next interval; the trading loops never
// wait on archival.
func (a *Archiver) Run(ctx context.Context) error {
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	a.logger.Info("archiver started", slog.Duration("interval", a.interval))
	defer a.logger.Info("archiver stopped")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			count, err := a.ArchiveClosed(ctx, time.Now().UTC())
			if err != nil {
				a.logger.Error("archive run failed",
					slog.String("error", err.Error()),
				)
				continue
			}
			if count > 0 {
				a.logger.Info("archived closed positions", slog.Int("count", count))
			}
		}
	}
}

// ArchiveClosed uploads every sold and failed position as one JSONL object.
// It returns the number of positions archived; zero closed positions skip
// the upload entirely.
func (a *Archiver) ArchiveClosed(ctx context.Context, now time.Time) (int, error) {
	book, err := a.store.Load(ctx)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive load: %w", err)
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	count := 0
	for _, asset := range book.Assets() {
		pos, ok := book.Get(asset)
		if !ok || pos.Monitorable() {
			continue
		}
		if err := enc.Encode(archiveRecord{Asset: asset, Position: pos}); err != nil {
			return 0, fmt.Errorf("s3blob: archive encode %s: %w", asset, err)
		}
		count++
	}
	if count == 0 {
		return 0, nil
	}

	key := fmt.Sprintf("%s/closed/%s.jsonl", a.prefix, now.Format("2006-01-02T150405Z"))

	if int64(buf.Len()) >= minPartSize {
		err = a.writer.PutMultipart(ctx, key, &buf, minPartSize)
	} else {
		err = a.writer.Put(ctx, key, &buf, "application/x-ndjson")
	}
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive upload: %w", err)
	}
	return count, nil
}
