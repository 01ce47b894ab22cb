package main

import (
	"errors"
	"math"
)

type Vector []float32

var ErrAIDisabled = errors.New("ai build is disabled")

// Cosine returns the cosine similarity of two vectors, or 0 if either has
// zero magnitude or the dimensions disagree.
func Cosine(a, b Vector) float64 {
	if len(a) != len(b) {
		return 0
	}

	var dot, na, nb float64

	for i := range a {
		x := float64(a[i])
		y := float64(b[i])

		dot += x * y
		na += x * x
		nb += y * y
	}

	den := math.Sqrt(na) * math.Sqrt(nb)
	if den == 0 {
		return 0
	}

	return dot / den
}
