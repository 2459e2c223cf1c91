// Package file implements domain.PositionStore on a single JSON file. The
// in-memory book is authoritative and guarded by one mutex — the single
// serialization point for every mutation — with write-through persistence.
// Writes go to a temp file in the same directory and are renamed into place
// so a reader never observes a partially written snapshot.
package file

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/moonbotlabs/moonbot/internal/domain"
)

// Ledger is the file-backed position store.
type Ledger struct {
	path   string
	logger *slog.Logger

	mu sync.Mutex
	// book is nil while the backing file is unreadable; Load keeps retrying
	// the disk read so a corrupt store heals once the operator fixes it.
	book *domain.PositionBook
}

// Open creates a Ledger backed by the file at path. A missing or empty file
// yields an empty book. Malformed content is NOT fatal: the error is logged
// and surfaced from Load so the calling loop can back off and retry instead
// of clobbering the operator's data with an empty snapshot.
func Open(path string, logger *slog.Logger) *Ledger {
	l := &Ledger{
		path:   path,
		logger: logger.With(slog.String("component", "file_ledger")),
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.reload(); err != nil {
		l.logger.Error("initial load failed, will retry on access",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
	}
	return l
}

// reload reads the backing file into memory. Caller must hold l.mu.
func (l *Ledger) reload() error {
	data, err := os.ReadFile(l.path)
	if errors.Is(err, fs.ErrNotExist) {
		l.book = domain.NewPositionBook()
		return nil
	}
	if err != nil {
		return fmt.Errorf("file: read %s: %w", l.path, err)
	}
	if len(data) == 0 {
		l.book = domain.NewPositionBook()
		return nil
	}

	book := domain.NewPositionBook()
	if err := json.Unmarshal(data, book); err != nil {
		return fmt.Errorf("file: parse %s: %w: %v", l.path, domain.ErrCorruptStore, err)
	}
	l.book = book
	return nil
}

// ready ensures the in-memory book is loaded. Caller must hold l.mu.
func (l *Ledger) ready() error {
	if l.book != nil {
		return nil
	}
	return l.reload()
}

// Load returns a deep copy of the current book.
func (l *Ledger) Load(_ context.Context) (*domain.PositionBook, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.ready(); err != nil {
		return nil, err
	}
	return l.book.Clone(), nil
}

// Save atomically replaces the full book on disk and in memory. It
// serializes against Update/Upsert through the same mutex, so a full-snapshot
// writer cannot clobber a concurrent per-asset update.
func (l *Ledger) Save(_ context.Context, book *domain.PositionBook) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	snapshot := book.Clone()
	if err := l.persist(snapshot); err != nil {
		return err
	}
	l.book = snapshot
	return nil
}

// Update applies fn to the position for asset and persists the result. The
// asset must exist; absent assets yield domain.ErrNotFound.
func (l *Ledger) Update(_ context.Context, asset string, fn func(*domain.Position) error) (domain.Position, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.ready(); err != nil {
		return domain.Position{}, err
	}
	pos, ok := l.book.Get(asset)
	if !ok {
		return domain.Position{}, fmt.Errorf("file: update %s: %w", asset, domain.ErrNotFound)
	}
	return l.apply(asset, pos, fn)
}

// Upsert applies fn to the position for asset, creating a zero-value record
// when absent, and persists the result.
func (l *Ledger) Upsert(_ context.Context, asset string, fn func(p *domain.Position, created bool) error) (domain.Position, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.ready(); err != nil {
		return domain.Position{}, err
	}
	pos, ok := l.book.Get(asset)
	if !ok {
		pos = domain.Position{Asset: asset}
	}
	return l.apply(asset, pos, func(p *domain.Position) error {
		return fn(p, !ok)
	})
}

// apply runs fn on a copy, persists the whole book with the mutated record,
// and only then publishes it to memory. Caller must hold l.mu.
func (l *Ledger) apply(asset string, pos domain.Position, fn func(*domain.Position) error) (domain.Position, error) {
	if err := fn(&pos); err != nil {
		return domain.Position{}, err
	}

	next := l.book.Clone()
	next.Set(asset, pos)
	if err := l.persist(next); err != nil {
		return domain.Position{}, err
	}
	l.book = next
	return pos, nil
}

// persist writes the book to a temp file in the target directory and renames
// it over the backing file. Caller must hold l.mu.
func (l *Ledger) persist(book *domain.PositionBook) error {
	compact, err := json.Marshal(book)
	if err != nil {
		return fmt.Errorf("file: marshal book: %w", err)
	}
	var indented bytes.Buffer
	if err := json.Indent(&indented, compact, "", "  "); err != nil {
		return fmt.Errorf("file: indent book: %w", err)
	}
	indented.WriteByte('\n')
	pretty := indented.Bytes()

	dir := filepath.Dir(l.path)
	tmp, err := os.CreateTemp(dir, ".positions-*.json")
	if err != nil {
		return fmt.Errorf("file: create temp in %s: %w", dir, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(pretty); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("file: write %s: %w", tmpName, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("file: sync %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("file: close %s: %w", tmpName, err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("file: chmod %s: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, l.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("file: rename %s: %w", tmpName, err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.PositionStore = (*Ledger)(nil)
