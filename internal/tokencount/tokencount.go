// Package tokencount estimates token counts for cost accounting.
//
// Uses the cl100k_base BPE when the encoding loads; falls back to a
// characters-per-token heuristic otherwise (first use may download the
// encoding, so the fallback keeps startup network-free environments working).
package tokencount

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
	"github.com/rs/zerolog/log"
)

// HeuristicRatio is the approximate number of characters per token, used
// when no BPE encoding is available.
const HeuristicRatio = 4

// Estimator estimates the token count of a text.
type Estimator interface {
	Estimate(text string) int
}

// BPEEstimator counts tokens with tiktoken, falling back to the heuristic.
type BPEEstimator struct {
	once sync.Once
	enc  *tiktoken.Tiktoken
}

// NewEstimator returns the default estimator.
func NewEstimator() *BPEEstimator {
	return &BPEEstimator{}
}

// Estimate returns the estimated token count for text.
func (e *BPEEstimator) Estimate(text string) int {
	if text == "" {
		return 0
	}

	e.once.Do(func() {
		enc, err := tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			log.Debug().Err(err).Msg("tiktoken encoding unavailable, using character heuristic")
			return
		}
		e.enc = enc
	})

	if e.enc != nil {
		return len(e.enc.Encode(text, nil, nil))
	}
	return heuristic(text)
}

// Heuristic is a pure length-based estimator for tests and constrained builds.
type Heuristic struct{}

// Estimate returns len(text)/HeuristicRatio, minimum 1 for non-empty text.
func (Heuristic) Estimate(text string) int {
	return heuristic(text)
}

func heuristic(text string) int {
	if text == "" {
		return 0
	}
	n := len(text) / HeuristicRatio
	if n == 0 {
		n = 1
	}
	return n
}
