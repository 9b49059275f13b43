package middleware

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRateLimiterAllow(t *testing.T) {
	rl := NewRateLimiter(2, time.Hour)
	defer rl.Close()

	assert.True(t, rl.Allow("vasya\x00cinema"))
	assert.True(t, rl.Allow("vasya\x00cinema"))
	assert.False(t, rl.Allow("vasya\x00cinema"))

	// Другой ключ не задет
	assert.True(t, rl.Allow("petya\x00cinema"))
	assert.True(t, rl.Allow("vasya\x00anime"))
}

func TestRateLimiterWindowSlides(t *testing.T) {
	rl := NewRateLimiter(1, 50*time.Millisecond)
	defer rl.Close()

	assert.True(t, rl.Allow("vasya"))
	assert.False(t, rl.Allow("vasya"))

	time.Sleep(60 * time.Millisecond)
	assert.True(t, rl.Allow("vasya"))
}

func TestRateLimiterCloseIdempotent(t *testing.T) {
	rl := NewRateLimiter(1, time.Hour)
	rl.Close()
	rl.Close()
}
