package types

import (
	"bytes"
	"encoding/json"
)

// Nullable tracks whether a JSON field was present, and whether it was an
// explicit null. PATCH bodies use it to tell "leave unchanged" apart from
// "clear".
type Nullable[T any] struct {
	Valid bool
	Value *T
}

// UnmarshalJSON implements json.Unmarshaler.
func (n *Nullable[T]) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil
	}

	n.Valid = true
	if bytes.Equal(trimmed, []byte("null")) {
		n.Value = nil
		return nil
	}

	var parsed T
	if err := json.Unmarshal(trimmed, &parsed); err != nil {
		return err
	}
	n.Value = &parsed
	return nil
}

// Set reports whether the field carried a non-null value.
func (n Nullable[T]) Set() bool {
	return n.Valid && n.Value != nil
}

// Null reports whether the field was an explicit null.
func (n Nullable[T]) Null() bool {
	return n.Valid && n.Value == nil
}
