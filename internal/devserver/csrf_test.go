package devserver

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCSRFTokens_evictsOldest(t *testing.T) {
	c := newCSRFTokens(3)

	first := c.issue()
	second := c.issue()
	c.issue()
	require.True(t, c.valid(first))

	latest := c.issue()
	assert.False(t, c.valid(first), "oldest token is forgotten once the cap is exceeded")
	assert.True(t, c.valid(second))
	assert.True(t, c.valid(latest))
	assert.Equal(t, 3, c.size())

	for range 100 {
		c.issue()
	}
	assert.Equal(t, 3, c.size())
	assert.False(t, c.valid(latest))
}

func TestCSRFTokens_rotate(t *testing.T) {
	c := newCSRFTokens(maxCSRFTokens)
	token := c.issue()

	c.rotate()
	assert.False(t, c.valid(token))
	assert.Zero(t, c.size())
	assert.False(t, c.valid(""))

	assert.True(t, c.valid(c.issue()))
}
