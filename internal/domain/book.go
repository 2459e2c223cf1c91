package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// PositionBook is an insertion-ordered mapping from asset identifier to
// position. Order matters: the monitor loop sweeps positions in the order
// they were first recorded, so serialization must preserve it (Go maps and
// encoding/json both sort keys, hence the custom codec below).
type PositionBook struct {
	order   []string
	byAsset map[string]Position
}

// NewPositionBook returns an empty book.
func NewPositionBook() *PositionBook {
	return &PositionBook{byAsset: make(map[string]Position)}
}

// Len returns the number of positions in the book.
func (b *PositionBook) Len() int {
	return len(b.order)
}

// Get returns the position for asset and whether it exists.
func (b *PositionBook) Get(asset string) (Position, bool) {
	p, ok := b.byAsset[asset]
	return p, ok
}

// Set inserts or replaces the position for asset. A new asset is appended to
// the sweep order; an existing asset keeps its original slot.
func (b *PositionBook) Set(asset string, p Position) {
	if b.byAsset == nil {
		b.byAsset = make(map[string]Position)
	}
	if _, ok := b.byAsset[asset]; !ok {
		b.order = append(b.order, asset)
	}
	b.byAsset[asset] = p
}

// Assets returns the asset identifiers in insertion order. The slice is a
// copy and safe to mutate.
func (b *PositionBook) Assets() []string {
	out := make([]string, len(b.order))
	copy(out, b.order)
	return out
}

// Positions returns all positions in insertion order.
func (b *PositionBook) Positions() []Position {
	out := make([]Position, 0, len(b.order))
	for _, asset := range b.order {
		out = append(out, b.byAsset[asset])
	}
	return out
}

// Clone returns a deep copy of the book.
func (b *PositionBook) Clone() *PositionBook {
	c := &PositionBook{
		order:   make([]string, len(b.order)),
		byAsset: make(map[string]Position, len(b.byAsset)),
	}
	copy(c.order, b.order)
	for k, v := range b.byAsset {
		c.byAsset[k] = v
	}
	return c
}

// MarshalJSON encodes the book as a JSON object keyed by asset, with keys in
// insertion order.
func (b *PositionBook) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, asset := range b.order {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(asset)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		val, err := json.Marshal(b.byAsset[asset])
		if err != nil {
			return nil, fmt.Errorf("marshal position %s: %w", asset, err)
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes a JSON object keyed by asset, recording keys in the
// order they appear so the sweep order survives a round-trip.
func (b *PositionBook) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("position book: expected object, got %v", tok)
	}

	b.order = nil
	b.byAsset = make(map[string]Position)

	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		asset, ok := tok.(string)
		if !ok {
			return fmt.Errorf("position book: expected asset key, got %v", tok)
		}
		var pos Position
		if err := dec.Decode(&pos); err != nil {
			return fmt.Errorf("position book: decode %s: %w", asset, err)
		}
		pos.Asset = asset
		if !pos.Status.Valid() {
			return fmt.Errorf("position book: %s has unknown status %q", asset, pos.Status)
		}
		b.Set(asset, pos)
	}

	// Consume the closing brace.
	if _, err := dec.Token(); err != nil {
		return err
	}
	return nil
}
