package model

import (
	"encoding/json"
	"fmt"

	"github.com/agenthands/snowball/internal/core/common"
)

// CoauthorPair is one observed co-authorship between a queried author and a
// coauthor. It encodes as a two-element JSON array.
type CoauthorPair [2]string

func (p CoauthorPair) Author() string   { return p[0] }
func (p CoauthorPair) Coauthor() string { return p[1] }

// UnmarshalJSON rejects arrays that do not hold exactly two identifiers.
func (p *CoauthorPair) UnmarshalJSON(b []byte) error {
	var ids []string
	if err := json.Unmarshal(b, &ids); err != nil {
		return fmt.Errorf("coauthor pair %s: %w: %v", b, common.ErrMalformedInput, err)
	}
	if len(ids) != 2 {
		return fmt.Errorf("coauthor pair %s has %d elements: %w", b, len(ids), common.ErrMalformedInput)
	}
	p[0], p[1] = ids[0], ids[1]
	return nil
}
