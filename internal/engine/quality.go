package engine

import (
	"errors"
	"fmt"

	"github.com/quartzmem/quartz/internal/fingerprint"
)

// ErrInvalidQuality is returned when a quality component falls outside
// [0,1]. Out-of-range input is rejected, never clamped.
var ErrInvalidQuality = errors.New("quality component out of [0,1]")

// QualityVector is the caller-supplied importance signal. Its four
// components are opaque to the store — whatever upstream computes them
// from, only their magnitudes matter here.
type QualityVector [4]float64

// Validate checks every component is in [0,1].
func (q QualityVector) Validate() error {
	for i, v := range q {
		if v < 0 || v > 1 {
			return fmt.Errorf("%w: component %d = %f", ErrInvalidQuality, i, v)
		}
	}
	return nil
}

// Importance folds the vector into a single retention score in [0,1].
// The first component carries golden-ratio weight; the normalizer keeps
// the result bounded for in-range inputs ([1,1,1,1] → 1, [0,0,0,0] → 0).
func (q QualityVector) Importance() float64 {
	return (fingerprint.Phi*q[0] + q[1] + q[2] + q[3]) / (3 + fingerprint.Phi)
}
