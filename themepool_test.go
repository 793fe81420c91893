package ragquiz

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestThemePoolDedupAndOrder(t *testing.T) {
	pool := NewThemePool([]string{"go", "", "sql", "go", "http"}, 10, nil)
	assert.Equal(t, []string{"go", "sql", "http"}, pool.All())
	assert.Equal(t, 3, pool.Size())
	assert.False(t, pool.IsEmpty())
}

func TestThemePoolCap(t *testing.T) {
	pool := NewThemePool([]string{"a", "b", "c", "d", "e"}, 3, nil)
	assert.Equal(t, 3, pool.Size())

	// maxSize below one is clamped to one.
	pool = NewThemePool([]string{"a", "b"}, 0, nil)
	assert.Equal(t, 1, pool.Size())
}

func TestThemePoolShuffleKeepsMembers(t *testing.T) {
	themes := []string{"a", "b", "c", "d", "e"}
	pool := NewThemePool(themes, 10, rand.New(rand.NewSource(42)))
	assert.ElementsMatch(t, themes, pool.All())
}

func TestThemePoolAt(t *testing.T) {
	pool := NewThemePool([]string{"a", "b", "c"}, 3, nil)
	assert.Equal(t, "a", pool.At(0))
	assert.Equal(t, "b", pool.At(1))
	assert.Equal(t, "c", pool.At(2))
	// Wraps around modulo the size.
	assert.Equal(t, "a", pool.At(3))
	assert.Equal(t, "b", pool.At(7))
}

func TestThemePoolNilSafe(t *testing.T) {
	var pool *ThemePool
	assert.Equal(t, 0, pool.Size())
	assert.True(t, pool.IsEmpty())
	assert.Equal(t, "", pool.At(0))
	assert.Nil(t, pool.All())

	empty := NewThemePool(nil, 3, nil)
	assert.True(t, empty.IsEmpty())
	assert.Equal(t, "", empty.At(5))
}
