package graph

import (
	"errors"
	"fmt"
)

// ErrPropertyKind is returned when a value's kind is not allowed for a
// property slot.
var ErrPropertyKind = errors.New("property kind not allowed")

// Schema maps property names to the kinds each may hold. Names absent from
// the schema accept any valid value.
type Schema map[string][]Kind

func (s Schema) Check(name string, v Value) error {
	if !v.Valid() {
		return fmt.Errorf("property %q: %w: invalid value", name, ErrPropertyKind)
	}
	kinds, ok := s[name]
	if !ok {
		return nil
	}
	for _, k := range kinds {
		if k == v.Kind() {
			return nil
		}
	}
	return fmt.Errorf("property %q: %w: got %s, want one of %v", name, ErrPropertyKind, v.Kind(), kinds)
}
