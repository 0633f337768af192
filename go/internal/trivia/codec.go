package trivia

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// The store carries plain JSON value trees (map[string]any). These helpers
// round-trip domain structs through that representation.

// Encode converts a domain struct to a store value tree.
func Encode(v any) (map[string]any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode store value: %w", err)
	}
	var out map[string]any
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&out); err != nil {
		return nil, fmt.Errorf("decode store value: %w", err)
	}
	return out, nil
}

// Decode converts a store value tree into a domain struct. A nil value is
// JSON null and leaves out untouched.
func Decode(value any, out any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode intermediate value: %w", err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode store value: %w", err)
	}
	return nil
}

// DecodePlayers converts the players container node into a map keyed by
// player ID. Missing or empty nodes decode to an empty map.
func DecodePlayers(value any) (map[string]Player, error) {
	players := make(map[string]Player)
	if value == nil {
		return players, nil
	}
	if err := Decode(value, &players); err != nil {
		return nil, err
	}
	for id, p := range players {
		if p.ID == "" {
			p.ID = id
			players[id] = p
		}
	}
	return players, nil
}
