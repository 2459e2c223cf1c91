package file

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moonbotlabs/moonbot/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func openTestLedger(t *testing.T) (*Ledger, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "positions.json")
	return Open(path, testLogger()), path
}

func TestLoadMissingFileYieldsEmptyBook(t *testing.T) {
	l, _ := openTestLedger(t)

	book, err := l.Load(context.Background())
	require.NoError(t, err)
	assert.Zero(t, book.Len())
}

func TestLoadEmptyFileYieldsEmptyBook(t *testing.T) {
	path := filepath.Join(t.TempDir(), "positions.json")
	require.NoError(t, os.WriteFile(path, nil, 0o644))

	l := Open(path, testLogger())
	book, err := l.Load(context.Background())
	require.NoError(t, err)
	assert.Zero(t, book.Len())
}

func TestSaveLoadRoundTrip(t *testing.T) {
	l, path := openTestLedger(t)
	ctx := context.Background()

	in := domain.NewPositionBook()
	in.Set("ZETA", domain.Position{Asset: "ZETA", InvestedAmount: 0.1, UnitsHeld: 100, EntryPrice: 0.001, Status: domain.PositionStatusBought})
	in.Set("ALPHA", domain.Position{Asset: "ALPHA", Status: domain.PositionStatusSold, ExitPrice: 0.2, Proceeds: 2})
	require.NoError(t, l.Save(ctx, in))

	// A fresh ledger re-reads from disk.
	out, err := Open(path, testLogger()).Load(ctx)
	require.NoError(t, err)

	assert.Equal(t, []string{"ZETA", "ALPHA"}, out.Assets())
	zeta, ok := out.Get("ZETA")
	require.True(t, ok)
	assert.Equal(t, 0.001, zeta.EntryPrice)
}

func TestPersistedFileFormat(t *testing.T) {
	l, path := openTestLedger(t)

	book := domain.NewPositionBook()
	book.Set("MOON", domain.Position{Asset: "MOON", EntryPrice: 0.5, Status: domain.PositionStatusBought})
	require.NoError(t, l.Save(context.Background(), book))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	// Ten decimal places on the entry price, trailing newline, indented.
	assert.Contains(t, string(data), "0.5000000000")
	assert.True(t, bytes.HasSuffix(data, []byte("\n")))
	assert.Contains(t, string(data), "  \"MOON\"")
}

func TestCorruptFileSurfacesErrorWithoutClobbering(t *testing.T) {
	path := filepath.Join(t.TempDir(), "positions.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	l := Open(path, testLogger())
	_, err := l.Load(context.Background())
	require.ErrorIs(t, err, domain.ErrCorruptStore)

	// The malformed file must survive untouched for the operator.
	data, readErr := os.ReadFile(path)
	require.NoError(t, readErr)
	assert.Equal(t, "{not json", string(data))
}

func TestCorruptFileHealsAfterRepair(t *testing.T) {
	path := filepath.Join(t.TempDir(), "positions.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	l := Open(path, testLogger())
	ctx := context.Background()

	_, err := l.Load(ctx)
	require.ErrorIs(t, err, domain.ErrCorruptStore)

	require.NoError(t, os.WriteFile(path, []byte(`{"MOON":{"invested_amount":0.1,"units_held":100,"entry_price":0.0010000000,"last_price":0,"status":"bought","exit_price":0,"proceeds":0}}`), 0o644))

	book, err := l.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, book.Len())
}

func TestUpdateMissingAssetReturnsNotFound(t *testing.T) {
	l, _ := openTestLedger(t)

	_, err := l.Update(context.Background(), "MOON", func(*domain.Position) error { return nil })
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestUpdateErrorFromFnPersistsNothing(t *testing.T) {
	l, _ := openTestLedger(t)
	ctx := context.Background()

	_, err := l.Upsert(ctx, "MOON", func(p *domain.Position, _ bool) error {
		return p.ApplyBuy("MOON", 0.1, 100, 0.001)
	})
	require.NoError(t, err)

	_, err = l.Update(ctx, "MOON", func(p *domain.Position) error {
		p.UnitsHeld = 0
		return assert.AnError
	})
	require.ErrorIs(t, err, assert.AnError)

	book, err := l.Load(ctx)
	require.NoError(t, err)
	p, _ := book.Get("MOON")
	assert.Equal(t, 100.0, p.UnitsHeld)
}

func TestUpsertReportsCreation(t *testing.T) {
	l, _ := openTestLedger(t)
	ctx := context.Background()

	var sawCreated bool
	_, err := l.Upsert(ctx, "MOON", func(p *domain.Position, created bool) error {
		sawCreated = created
		return p.ApplyBuy("MOON", 0.1, 100, 0.001)
	})
	require.NoError(t, err)
	assert.True(t, sawCreated)

	_, err = l.Upsert(ctx, "MOON", func(p *domain.Position, created bool) error {
		sawCreated = created
		return p.ApplyBuy("MOON", 0.1, 100, 0.001)
	})
	require.NoError(t, err)
	assert.False(t, sawCreated)
}

func TestLoadReturnsIsolatedCopy(t *testing.T) {
	l, _ := openTestLedger(t)
	ctx := context.Background()

	_, err := l.Upsert(ctx, "MOON", func(p *domain.Position, _ bool) error {
		return p.ApplyBuy("MOON", 0.1, 100, 0.001)
	})
	require.NoError(t, err)

	book, err := l.Load(ctx)
	require.NoError(t, err)
	book.Set("MOON", domain.Position{Asset: "MOON", Status: domain.PositionStatusFailed})

	fresh, err := l.Load(ctx)
	require.NoError(t, err)
	p, _ := fresh.Get("MOON")
	assert.Equal(t, domain.PositionStatusBought, p.Status)
}

func TestConcurrentUpdatesLoseNothing(t *testing.T) {
	l, _ := openTestLedger(t)
	ctx := context.Background()

	_, err := l.Upsert(ctx, "MOON", func(p *domain.Position, _ bool) error {
		return p.ApplyBuy("MOON", 1, 1, 1)
	})
	require.NoError(t, err)

	const writers = 8
	const perWriter = 25

	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perWriter; j++ {
				_, err := l.Update(ctx, "MOON", func(p *domain.Position) error {
					p.UnitsHeld++
					return nil
				})
				if err != nil {
					t.Error(err)
					return
				}
			}
		}()
	}
	wg.Wait()

	book, err := l.Load(ctx)
	require.NoError(t, err)
	p, _ := book.Get("MOON")
	assert.Equal(t, 1.0+writers*perWriter, p.UnitsHeld)
}
