package policy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTokenBucketDrainsAndRefills(t *testing.T) {
	b := NewTokenBucket(2, 1, 100*time.Millisecond)
	now := time.Now()

	assert.True(t, b.Allow(now))
	assert.True(t, b.Allow(now))
	assert.False(t, b.Allow(now))

	later := now.Add(250 * time.Millisecond)
	assert.InDelta(t, 2, b.Tokens(later), 0.001)
	assert.True(t, b.Allow(later))
}

func TestTokenBucketNilAllowsAll(t *testing.T) {
	var b *TokenBucket
	assert.Nil(t, NewTokenBucket(0, 1, time.Second))
	assert.True(t, b.Allow(time.Now()))
}
