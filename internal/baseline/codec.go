package baseline

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrCorrupt marks persisted state that could not be parsed.
var ErrCorrupt = errors.New("baseline: persisted state corrupt")

// Record is the bounded history of one symbol, oldest value first.
type Record struct {
	Values    []float64
	UpdatedAt time.Time
}

// Snapshot is the whole persisted state.
type Snapshot map[string]Record

type recordJSON struct {
	History   []float64 `json:"history"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Encode serialises a snapshot as {"SYMBOL":{"history":[...],"updated_at":...}}.
func Encode(snap Snapshot) ([]byte, error) {
	out := make(map[string]recordJSON, len(snap))
	for symbol, rec := range snap {
		values := rec.Values
		if values == nil {
			values = []float64{}
		}
		out[symbol] = recordJSON{History: values, UpdatedAt: rec.UpdatedAt.UTC()}
	}
	data, err := json.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("encode baseline snapshot: %w", err)
	}
	return data, nil
}

// Decode parses a snapshot. The legacy {"SYMBOL":[...]} layout is accepted;
// such records are stamped with loadedAt. Any parse failure wraps ErrCorrupt.
func Decode(data []byte, loadedAt time.Time) (Snapshot, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}

	snap := make(Snapshot, len(raw))
	for symbol, msg := range raw {
		trimmed := bytes.TrimSpace(msg)
		if len(trimmed) > 0 && trimmed[0] == '[' {
			var values []float64
			if err := json.Unmarshal(trimmed, &values); err != nil {
				return nil, fmt.Errorf("%w: symbol %s: %v", ErrCorrupt, symbol, err)
			}
			snap[symbol] = Record{Values: values, UpdatedAt: loadedAt}
			continue
		}

		var rec recordJSON
		if err := json.Unmarshal(trimmed, &rec); err != nil {
			return nil, fmt.Errorf("%w: symbol %s: %v", ErrCorrupt, symbol, err)
		}
		updated := rec.UpdatedAt
		if updated.IsZero() {
			updated = loadedAt
		}
		snap[symbol] = Record{Values: rec.History, UpdatedAt: updated}
	}
	return snap, nil
}
