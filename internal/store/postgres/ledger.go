package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/moonbotlabs/moonbot/internal/domain"
)

// Ledger implements domain.PositionStore on the positions table. Update and
// Upsert serialize per asset with SELECT ... FOR UPDATE, so concurrent
// read-modify-write cycles from the monitor and schedulers never lose a
// write even across multiple processes.
type Ledger struct {
	pool *pgxpool.Pool
}

// NewLedger creates a Ledger backed by the given connection pool.
func NewLedger(pool *pgxpool.Pool) *Ledger {
	return &Ledger{pool: pool}
}

const positionCols = `asset, invested_amount, units_held, entry_price,
	last_price, status, exit_price, proceeds`

func scanPosition(row pgx.Row) (domain.Position, error) {
	var p domain.Position
	var status string

	err := row.Scan(
		&p.Asset, &p.InvestedAmount, &p.UnitsHeld, &p.EntryPrice,
		&p.LastPrice, &status, &p.ExitPrice, &p.Proceeds,
	)
	if err != nil {
		return domain.Position{}, err
	}
	p.Status = domain.PositionStatus(status)
	if !p.Status.Valid() {
		return domain.Position{}, fmt.Errorf("%w: position %s has status %q",
			domain.ErrCorruptStore, p.Asset, status)
	}
	return p, nil
}

// Load returns the full book ordered by first-open sequence.
func (l *Ledger) Load(ctx context.Context) (*domain.PositionBook, error) {
	rows, err := l.pool.Query(ctx,
		`SELECT `+positionCols+` FROM positions ORDER BY opened_seq`)
	if err != nil {
		return nil, fmt.Errorf("postgres: load positions: %w", err)
	}
	defer rows.Close()

	book := domain.NewPositionBook()
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: load positions: %w", err)
		}
		book.Set(p.Asset, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: load positions: %w", err)
	}
	return book, nil
}

// Save replaces the whole table with the given book in one transaction,
// reinserting in book order so opened_seq reflects it.
func (l *Ledger) Save(ctx context.Context, book *domain.PositionBook) error {
	tx, err := l.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: save positions: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM positions`); err != nil {
		return fmt.Errorf("postgres: save positions: clear: %w", err)
	}
	for _, asset := range book.Assets() {
		p, _ := book.Get(asset)
		if err := insertPosition(ctx, tx, p); err != nil {
			return fmt.Errorf("postgres: save positions: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: save positions: commit: %w", err)
	}
	return nil
}

// Update applies fn to the locked row for asset and persists the result.
func (l *Ledger) Update(ctx context.Context, asset string, fn func(*domain.Position) error) (domain.Position, error) {
	var out domain.Position
	err := l.withTx(ctx, func(tx pgx.Tx) error {
		p, err := lockPosition(ctx, tx, asset)
		if err != nil {
			return err
		}
		if err := fn(&p); err != nil {
			return err
		}
		if err := updatePosition(ctx, tx, p); err != nil {
			return err
		}
		out = p
		return nil
	})
	if err != nil {
		return domain.Position{}, fmt.Errorf("postgres: update %s: %w", asset, err)
	}
	return out, nil
}

// Upsert is Update but creates the row when absent.
func (l *Ledger) Upsert(ctx context.Context, asset string, fn func(p *domain.Position, created bool) error) (domain.Position, error) {
	var out domain.Position
	err := l.withTx(ctx, func(tx pgx.Tx) error {
		created := false
		p, err := lockPosition(ctx, tx, asset)
		if errors.Is(err, domain.ErrNotFound) {
			created = true
			p = domain.Position{}
		} else if err != nil {
			return err
		}

		if err := fn(&p, created); err != nil {
			return err
		}

		if created {
			err = insertPosition(ctx, tx, p)
		} else {
			err = updatePosition(ctx, tx, p)
		}
		if err != nil {
			return err
		}
		out = p
		return nil
	})
	if err != nil {
		return domain.Position{}, fmt.Errorf("postgres: upsert %s: %w", asset, err)
	}
	return out, nil
}

// withTx runs fn inside a transaction, committing on success.
func (l *Ledger) withTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := l.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// lockPosition reads the row for asset with FOR UPDATE.
func lockPosition(ctx context.Context, tx pgx.Tx, asset string) (domain.Position, error) {
	row := tx.QueryRow(ctx,
		`SELECT `+positionCols+` FROM positions WHERE asset = $1 FOR UPDATE`, asset)

	p, err := scanPosition(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Position{}, domain.ErrNotFound
	}
	return p, err
}

func insertPosition(ctx context.Context, tx pgx.Tx, p domain.Position) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO positions (
			asset, invested_amount, units_held, entry_price,
			last_price, status, exit_price, proceeds, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())`,
		p.Asset, p.InvestedAmount, p.UnitsHeld, p.EntryPrice,
		p.LastPrice, string(p.Status), p.ExitPrice, p.Proceeds,
	)
	if err != nil {
		return fmt.Errorf("insert %s: %w", p.Asset, err)
	}
	return nil
}

func updatePosition(ctx context.Context, tx pgx.Tx, p domain.Position) error {
	tag, err := tx.Exec(ctx, `
		UPDATE positions SET
			invested_amount = $2,
			units_held      = $3,
			entry_price     = $4,
			last_price      = $5,
			status          = $6,
			exit_price      = $7,
			proceeds        = $8,
			updated_at      = NOW()
		WHERE asset = $1`,
		p.Asset, p.InvestedAmount, p.UnitsHeld, p.EntryPrice,
		p.LastPrice, string(p.Status), p.ExitPrice, p.Proceeds,
	)
	if err != nil {
		return fmt.Errorf("update %s: %w", p.Asset, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// Compile-time interface check.
var _ domain.PositionStore = (*Ledger)(nil)
