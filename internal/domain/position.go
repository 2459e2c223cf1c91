// Package domain defines the core types and interfaces of the position
// lifecycle engine: positions and their state machine, the ordered position
// book, and the store, lock, and client contracts implemented elsewhere.
package domain

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// PositionStatus tracks where a position is in its lifecycle.
type PositionStatus string

const (
	// PositionStatusBought marks an open position that is monitored and
	// eligible to sell.
	PositionStatusBought PositionStatus = "bought"
	// PositionStatusSold marks a closed position. It may be reopened by a
	// subsequent buy of the same asset.
	PositionStatusSold PositionStatus = "sold"
	// PositionStatusFailed marks a position whose sell retries were
	// exhausted. Terminal; no automatic action is taken on it.
	PositionStatusFailed PositionStatus = "failed"
)

// Valid reports whether s is one of the three known statuses.
func (s PositionStatus) Valid() bool {
	switch s {
	case PositionStatusBought, PositionStatusSold, PositionStatusFailed:
		return true
	}
	return false
}

// Position is the record of an open or closed holding in one asset. Exactly
// one record exists per asset; closed positions are kept as history and may
// be reopened by a new buy.
type Position struct {
	Asset          string
	InvestedAmount float64
	UnitsHeld      float64
	EntryPrice     float64
	LastPrice      float64
	Status         PositionStatus
	ExitPrice      float64
	Proceeds       float64
}

// ApplyBuy folds a buy fill into the position.
//
// A fresh record (empty status) opens in bought state. A sold position is
// reopened: exit price and proceeds reset, entry and size overwritten with
// the new fill. A bought position accumulates invested amount and units
// without touching the entry price. A failed position rejects the buy with
// ErrPositionFailed; reopening it is an operator decision, never automatic.
func (p *Position) ApplyBuy(asset string, amount, units, price float64) error {
	switch p.Status {
	case PositionStatusFailed:
		return fmt.Errorf("apply buy %s: %w", asset, ErrPositionFailed)

	case PositionStatusBought:
		p.InvestedAmount += amount
		p.UnitsHeld += units
		return nil

	case PositionStatusSold, "":
		p.Asset = asset
		p.InvestedAmount = amount
		p.UnitsHeld = units
		p.EntryPrice = price
		p.LastPrice = 0
		p.Status = PositionStatusBought
		p.ExitPrice = 0
		p.Proceeds = 0
		return nil

	default:
		return fmt.Errorf("apply buy %s: unknown status %q", asset, p.Status)
	}
}

// MarkSold closes the position with the realized exit price and proceeds.
func (p *Position) MarkSold(exitPrice, proceeds float64) error {
	if p.Status != PositionStatusBought {
		return fmt.Errorf("mark sold %s: status %q is not %q", p.Asset, p.Status, PositionStatusBought)
	}
	p.Status = PositionStatusSold
	p.ExitPrice = exitPrice
	p.Proceeds = proceeds
	p.UnitsHeld = 0
	return nil
}

// MarkFailed transitions the position to the terminal failed state after
// sell-retry exhaustion.
func (p *Position) MarkFailed() error {
	if p.Status != PositionStatusBought {
		return fmt.Errorf("mark failed %s: status %q is not %q", p.Asset, p.Status, PositionStatusBought)
	}
	p.Status = PositionStatusFailed
	return nil
}

// Monitorable reports whether the monitor loop should poll this position.
func (p Position) Monitorable() bool {
	return p.Status == PositionStatusBought
}

// TakeProfitPrice returns the price at or above which a take-profit sell
// triggers, for a take-profit percentage (e.g. 10 for 10 %).
func (p Position) TakeProfitPrice(takeProfitPct float64) float64 {
	return p.EntryPrice * (1 + takeProfitPct/100)
}

// StopLossPrice returns the price at or below which a stop-loss sell
// triggers, for a stop-loss percentage (e.g. 10 for 10 %).
func (p Position) StopLossPrice(stopLossPct float64) float64 {
	return p.EntryPrice * (1 - stopLossPct/100)
}

// positionJSON is the persisted wire form of a Position. The asset identifier
// is the enclosing object key, not a field.
type positionJSON struct {
	InvestedAmount float64         `json:"invested_amount"`
	UnitsHeld      float64         `json:"units_held"`
	EntryPrice     json.RawMessage `json:"entry_price"`
	LastPrice      float64         `json:"last_price"`
	Status         PositionStatus  `json:"status"`
	ExitPrice      float64         `json:"exit_price"`
	Proceeds       float64         `json:"proceeds"`
}

// MarshalJSON writes the persisted form. The entry price is rendered with at
// least ten decimal places so low-priced assets survive round-trips through
// external tooling that truncates floats.
func (p Position) MarshalJSON() ([]byte, error) {
	return json.Marshal(positionJSON{
		InvestedAmount: p.InvestedAmount,
		UnitsHeld:      p.UnitsHeld,
		EntryPrice:     formatPrice(p.EntryPrice),
		LastPrice:      p.LastPrice,
		Status:         p.Status,
		ExitPrice:      p.ExitPrice,
		Proceeds:       p.Proceeds,
	})
}

// UnmarshalJSON reads the persisted form. The asset identifier is restored by
// the PositionBook decoder from the object key.
func (p *Position) UnmarshalJSON(data []byte) error {
	var raw positionJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	entry := 0.0
	if len(raw.EntryPrice) > 0 {
		v, err := strconv.ParseFloat(strings.Trim(string(raw.EntryPrice), `"`), 64)
		if err != nil {
			return fmt.Errorf("parse entry_price: %w", err)
		}
		entry = v
	}
	p.InvestedAmount = raw.InvestedAmount
	p.UnitsHeld = raw.UnitsHeld
	p.EntryPrice = entry
	p.LastPrice = raw.LastPrice
	p.Status = raw.Status
	p.ExitPrice = raw.ExitPrice
	p.Proceeds = raw.Proceeds
	return nil
}

// formatPrice renders a price as a JSON number with at least ten decimal
// places, keeping the full shortest-round-trip precision when it is longer.
func formatPrice(v float64) json.RawMessage {
	shortest := strconv.FormatFloat(v, 'f', -1, 64)
	dot := strings.IndexByte(shortest, '.')
	if dot == -1 {
		return json.RawMessage(shortest + ".0000000000")
	}
	if decimals := len(shortest) - dot - 1; decimals < 10 {
		return json.RawMessage(shortest + strings.Repeat("0", 10-decimals))
	}
	return json.RawMessage(shortest)
}
