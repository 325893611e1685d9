package checksum

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/starford/mem/internal/models"
)

func TestSum(t *testing.T) {
	assert.Equal(t, "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855", Sum(nil))
	assert.Len(t, Sum([]byte("x")), 64)
}

func TestOfTracksEncodedFields(t *testing.T) {
	ts := time.Date(2025, 1, 19, 12, 0, 0, 0, time.UTC)
	m := models.Mem{Path: "a", Title: "A", CreatedAt: ts, UpdatedAt: ts, Content: "body"}
	base := Of(m)

	// Path lives in the file name, not the file.
	moved := m
	moved.Path = "b"
	assert.Equal(t, base, Of(moved))

	// Sub-second precision is not persisted.
	jitter := m
	jitter.UpdatedAt = ts.Add(300 * time.Millisecond)
	assert.Equal(t, base, Of(jitter))

	edited := m
	edited.Content = "changed"
	assert.NotEqual(t, base, Of(edited))

	tagged := m
	tagged.Tags = []string{"x"}
	assert.NotEqual(t, base, Of(tagged))
}
