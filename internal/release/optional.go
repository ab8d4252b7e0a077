package release

import "encoding/json"

// Optional holds a value that may be absent.
//
// The zero value is absent. Optional marshals to JSON null when absent and to
// the bare value otherwise, so it can be dropped straight into a payload map.
type Optional[T any] struct {
	value T
	set   bool
}

// Some returns an Optional holding v.
func Some[T any](v T) Optional[T] {
	return Optional[T]{value: v, set: true}
}

// None returns an absent Optional.
func None[T any]() Optional[T] {
	return Optional[T]{}
}

// NonEmpty returns Some(s) for a non-empty string and None otherwise.
func NonEmpty(s string) Optional[string] {
	if s == "" {
		return None[string]()
	}
	return Some(s)
}

// Get returns the value and whether it is present.
func (o Optional[T]) Get() (T, bool) {
	return o.value, o.set
}

// IsSet reports whether a value is present.
func (o Optional[T]) IsSet() bool {
	return o.set
}

// OrElse returns the value, or fallback when absent.
func (o Optional[T]) OrElse(fallback T) T {
	if !o.set {
		return fallback
	}
	return o.value
}

// MarshalJSON implements json.Marshaler.
func (o Optional[T]) MarshalJSON() ([]byte, error) {
	if !o.set {
		return []byte("null"), nil
	}
	return json.Marshal(o.value)
}

// UnmarshalJSON implements json.Unmarshaler. JSON null leaves o absent.
func (o *Optional[T]) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*o = Optional[T]{}
		return nil
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*o = Some(v)
	return nil
}
