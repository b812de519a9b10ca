package textutil

import (
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", Truncate("short", 10))
	assert.Equal(t, "abc", Truncate("abcdef", 3))
	assert.Equal(t, "", Truncate("abc", 0))

	// "é" is two bytes and "日" three; a cut inside either backs off to the rune start.
	assert.Equal(t, "caf", Truncate("café", 4))
	assert.Equal(t, "café", Truncate("café", 5))
	assert.Equal(t, "a", Truncate("a日本", 3))
	assert.Equal(t, "a日", Truncate("a日本", 4))

	ua := "Mozilla/5.0 (Ünïcødé) 😀😀😀"
	for max := 0; max <= len(ua); max++ {
		got := Truncate(ua, max)
		assert.True(t, utf8.ValidString(got), "max=%d", max)
		assert.LessOrEqual(t, len(got), max)
	}
}
