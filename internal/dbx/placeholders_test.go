package dbx

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPlaceholders(t *testing.T) {
	assert.Equal(t, "", Placeholders(1, 0))
	assert.Equal(t, "$1", Placeholders(1, 1))
	assert.Equal(t, "$2, $3, $4", Placeholders(2, 3))
}

func TestArgs(t *testing.T) {
	assert.Equal(t, []any{"a", "b"}, Args([]string{"a", "b"}))
	assert.Empty(t, Args(nil))
}
