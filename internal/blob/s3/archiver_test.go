package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moonbotlabs/moonbot/internal/domain"
	"github.com/moonbotlabs/moonbot/internal/store/file"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

// capturingWriter records uploads in memory.
type capturingWriter struct {
	key         string
	contentType string
	data        []byte
	puts        int
	err         error
}

func (w *capturingWriter) Put(_ context.Context, key string, data io.Reader, contentType string) error {
	w.puts++
	if w.err != nil {
		return w.err
	}
	w.key = key
	w.contentType = contentType
	b, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	w.data = b
	return nil
}

func (w *capturingWriter) PutMultipart(_ context.Context, key string, data io.Reader, _ int64) error {
	return w.Put(context.Background(), key, data, "")
}

func seedStore(t *testing.T, positions ...domain.Position) *file.Ledger {
	t.Helper()
	store := file.Open(filepath.Join(t.TempDir(), "positions.json"), testLogger())
	book := domain.NewPositionBook()
	for _, p := range positions {
		book.Set(p.Asset, p)
	}
	require.NoError(t, store.Save(context.Background(), book))
	return store
}

func TestArchiveClosedRecordsCarryAsset(t *testing.T) {
	store := seedStore(t,
		domain.Position{Asset: "MOON", Status: domain.PositionStatusSold, ExitPrice: 0.0002, Proceeds: 0.2},
		domain.Position{Asset: "OPEN", Status: domain.PositionStatusBought, UnitsHeld: 100},
		domain.Position{Asset: "DEAD", Status: domain.PositionStatusFailed, InvestedAmount: 0.1},
	)
	w := &capturingWriter{}
	a := NewArchiver(store, w, time.Hour, "archive", testLogger())

	now := time.Date(2026, 9, 1, 12, 30, 45, 0, time.UTC)
	count, err := a.ArchiveClosed(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	assert.Equal(t, "archive/closed/2026-09-01T123045Z.jsonl", w.key)
	assert.Equal(t, "application/x-ndjson", w.contentType)

	// One record per closed position, each attributable to its asset.
	var records []archiveRecord
	dec := json.NewDecoder(bytes.NewReader(w.data))
	for dec.More() {
		var rec archiveRecord
		require.NoError(t, dec.Decode(&rec))
		records = append(records, rec)
	}
	require.Len(t, records, 2)

	assert.Equal(t, "MOON", records[0].Asset)
	assert.Equal(t, domain.PositionStatusSold, records[0].Position.Status)
	assert.Equal(t, 0.2, records[0].Position.Proceeds)

	assert.Equal(t, "DEAD", records[1].Asset)
	assert.Equal(t, domain.PositionStatusFailed, records[1].Position.Status)
}

func TestArchiveClosedSkipsUploadWhenNothingClosed(t *testing.T) {
	store := seedStore(t,
		domain.Position{Asset: "OPEN", Status: domain.PositionStatusBought, UnitsHeld: 100},
	)
	w := &capturingWriter{}
	a := NewArchiver(store, w, time.Hour, "archive", testLogger())

	count, err := a.ArchiveClosed(context.Background(), time.Now().UTC())
	require.NoError(t, err)
	assert.Zero(t, count)
	assert.Zero(t, w.puts)
}

func TestArchiveClosedSurfacesStoreFailure(t *testing.T) {
	path := filepath.Join(t.TempDir(), "positions.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))
	store := file.Open(path, testLogger())

	w := &capturingWriter{}
	a := NewArchiver(store, w, time.Hour, "archive", testLogger())

	_, err := a.ArchiveClosed(context.Background(), time.Now().UTC())
	require.ErrorIs(t, err, domain.ErrCorruptStore)
	assert.Zero(t, w.puts)
}

func TestArchiveClosedSurfacesUploadFailure(t *testing.T) {
	store := seedStore(t,
		domain.Position{Asset: "MOON", Status: domain.PositionStatusSold, Proceeds: 0.2},
	)
	w := &capturingWriter{err: assert.AnError}
	a := NewArchiver(store, w, time.Hour, "archive", testLogger())

	_, err := a.ArchiveClosed(context.Background(), time.Now().UTC())
	require.ErrorIs(t, err, assert.AnError)
}
