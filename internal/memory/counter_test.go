package memory

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"deepthinks/pkg/logger"
)

func TestCountEmptyTextIsZero(t *testing.T) {
	c := NewCounter(logger.NewMetrics(nil))
	assert.Equal(t, 0, c.Count("", "gpt-4o-mini"))
}

func TestCountDeterministicAndPositive(t *testing.T) {
	c := NewCounter(logger.NewMetrics(nil))
	text := "The quick brown fox jumps over the lazy dog."
	n1 := c.Count(text, "gpt-4o-mini")
	n2 := c.Count(text, "gpt-4o-mini")
	assert.Positive(t, n1)
	assert.Equal(t, n1, n2)
}

func TestCountUnknownModelFallsBack(t *testing.T) {
	c := NewCounter(logger.NewMetrics(nil))
	text := "hello token counting world"
	n := c.Count(text, "some-unreleased-model-v99")
	// Falls back to the default encoding instead of failing the turn.
	assert.Positive(t, n)
	assert.Equal(t, n, c.Count(text, "some-unreleased-model-v99"))
}
