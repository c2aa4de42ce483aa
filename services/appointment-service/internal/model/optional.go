package model

import (
	"bytes"
	"encoding/json"
)

// Optional distinguishes an absent field from an explicit null. Set is true when the
// field was present; a nil Value with Set means "clear".
type Optional[T any] struct {
	Set   bool
	Value *T
}

func Some[T any](v T) Optional[T] {
	return Optional[T]{Set: true, Value: &v}
}

func Clear[T any]() Optional[T] {
	return Optional[T]{Set: true}
}

func (o *Optional[T]) UnmarshalJSON(data []byte) error {
	o.Set = true
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		o.Value = nil
		return nil
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	o.Value = &v
	return nil
}

// Apply returns the new value for current under o.
func (o Optional[T]) Apply(current T, zero T) T {
	if !o.Set {
		return current
	}
	if o.Value == nil {
		return zero
	}
	return *o.Value
}
