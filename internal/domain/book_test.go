package domain

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBookPreservesInsertionOrder(t *testing.T) {
	b := NewPositionBook()
	b.Set("ZETA", Position{Asset: "ZETA", Status: PositionStatusBought})
	b.Set("ALPHA", Position{Asset: "ALPHA", Status: PositionStatusBought})
	b.Set("MOON", Position{Asset: "MOON", Status: PositionStatusBought})

	assert.Equal(t, []string{"ZETA", "ALPHA", "MOON"}, b.Assets())

	// Overwriting keeps the original slot.
	b.Set("ALPHA", Position{Asset: "ALPHA", Status: PositionStatusSold})
	assert.Equal(t, []string{"ZETA", "ALPHA", "MOON"}, b.Assets())
	assert.Equal(t, 3, b.Len())

	p, ok := b.Get("ALPHA")
	require.True(t, ok)
	assert.Equal(t, PositionStatusSold, p.Status)
}

func TestBookJSONKeyOrder(t *testing.T) {
	b := NewPositionBook()
	b.Set("ZETA", Position{Status: PositionStatusBought})
	b.Set("ALPHA", Position{Status: PositionStatusSold})

	data, err := json.Marshal(b)
	require.NoError(t, err)

	// encoding/json would sort these; the book must not.
	assert.Less(t, bytes.Index(data, []byte(`"ZETA"`)), bytes.Index(data, []byte(`"ALPHA"`)))
}

func TestBookJSONRoundTrip(t *testing.T) {
	in := NewPositionBook()
	in.Set("ZETA", Position{Asset: "ZETA", InvestedAmount: 0.1, UnitsHeld: 100, EntryPrice: 0.001, Status: PositionStatusBought})
	in.Set("ALPHA", Position{Asset: "ALPHA", Status: PositionStatusSold, ExitPrice: 0.2, Proceeds: 2})

	data, err := json.Marshal(in)
	require.NoError(t, err)

	out := NewPositionBook()
	require.NoError(t, json.Unmarshal(data, out))

	assert.Equal(t, in.Assets(), out.Assets())
	for _, asset := range in.Assets() {
		want, _ := in.Get(asset)
		got, ok := out.Get(asset)
		require.True(t, ok, asset)
		assert.Equal(t, want, got, asset)
	}
}

func TestBookUnmarshalRestoresAssetKeys(t *testing.T) {
	raw := `{"MOON":{"invested_amount":0.1,"units_held":100,"entry_price":0.0010000000,"last_price":0,"status":"bought","exit_price":0,"proceeds":0}}`

	b := NewPositionBook()
	require.NoError(t, json.Unmarshal([]byte(raw), b))

	p, ok := b.Get("MOON")
	require.True(t, ok)
	assert.Equal(t, "MOON", p.Asset)
}

func TestBookUnmarshalRejectsUnknownStatus(t *testing.T) {
	raw := `{"MOON":{"invested_amount":0.1,"units_held":100,"entry_price":0.001,"last_price":0,"status":"limbo","exit_price":0,"proceeds":0}}`

	b := NewPositionBook()
	err := json.Unmarshal([]byte(raw), b)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "limbo")
}

func TestBookUnmarshalRejectsNonObject(t *testing.T) {
	b := NewPositionBook()
	assert.Error(t, json.Unmarshal([]byte(`[1,2,3]`), b))
}

func TestBookCloneIsDeep(t *testing.T) {
	b := NewPositionBook()
	b.Set("MOON", Position{Asset: "MOON", Status: PositionStatusBought, UnitsHeld: 100})

	c := b.Clone()
	c.Set("MOON", Position{Asset: "MOON", Status: PositionStatusSold})
	c.Set("NEW", Position{Asset: "NEW", Status: PositionStatusBought})

	p, _ := b.Get("MOON")
	assert.Equal(t, PositionStatusBought, p.Status)
	assert.Equal(t, 1, b.Len())
	assert.Equal(t, 2, c.Len())
}
