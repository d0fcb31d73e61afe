package masking

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMaskEmail(t *testing.T) {
	assert.Equal(t, "j****@example.com", MaskEmail("jane.doe@example.com"))
	assert.Equal(t, "****", MaskEmail("abc"))
}

func TestMaskMetadata(t *testing.T) {
	out := MaskMetadata(map[string]any{
		"sponsor_email": "sam@example.org",
		"reset_token":   "abcdefghijkl",
		"status":        "pending",
		"nested":        map[string]any{"email": "x@y.z"},
		" ":             "dropped",
	})

	assert.Equal(t, "s****@example.org", out["sponsor_email"])
	assert.Equal(t, "****ijkl", out["reset_token"])
	assert.Equal(t, "pending", out["status"])
	assert.Equal(t, map[string]any{"email": "x****@y.z"}, out["nested"])
	assert.NotContains(t, out, "")
	assert.Nil(t, MaskMetadata(nil))
}
