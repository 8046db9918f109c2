package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agenthands/snowball/internal/core/common"
)

func TestCoauthorPair_UnmarshalJSON(t *testing.T) {
	var pairs []CoauthorPair
	require.NoError(t, json.Unmarshal([]byte(`[["A","B"],["B","C"]]`), &pairs))
	assert.Equal(t, []CoauthorPair{{"A", "B"}, {"B", "C"}}, pairs)

	for name, input := range map[string]string{
		"three elements": `[["A","B","EXTRA"]]`,
		"one element":    `[["A"]]`,
		"empty":          `[[]]`,
		"not strings":    `[[1,2]]`,
		"object":         `[{"a":"b"}]`,
	} {
		var got []CoauthorPair
		err := json.Unmarshal([]byte(input), &got)
		assert.ErrorIs(t, err, common.ErrMalformedInput, name)
	}
}
