package tokencount

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHeuristic_Estimate(t *testing.T) {
	h := Heuristic{}

	assert.Equal(t, 0, h.Estimate(""))
	assert.Equal(t, 1, h.Estimate("hi"), "non-empty text is at least one token")
	assert.Equal(t, 25, h.Estimate(strings.Repeat("a", 100)))
}

func TestBPEEstimator_EmptyText(t *testing.T) {
	e := NewEstimator()
	assert.Equal(t, 0, e.Estimate(""))
}

func TestBPEEstimator_NonEmptyTextIsPositive(t *testing.T) {
	e := NewEstimator()
	n := e.Estimate("The quick brown fox jumps over the lazy dog.")
	assert.Greater(t, n, 0)
}
