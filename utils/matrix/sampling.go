// Package matrix provides random sampling helpers for building synthetic point batches.
package matrix

import (
	"gonum.org/v1/gonum/stat/distuv"
)

// SampleNUniform samples n values uniformly in [vMin, vMax).
func SampleNUniform(n int, vMin, vMax float64) []float64 {
	z := make([]float64, n)
	dist := distuv.Uniform{
		Min: vMin,
		Max: vMax,
	}
	for i := range z {
		z[i] = dist.Rand()
	}
	return z
}

// SampleNNormal samples n values from a normal distribution centered on (vMax+vMin) / 2, keeping
// only samples that fall in [vMin, vMax].
func SampleNNormal(n int, vMin, vMax float64) []float64 {
	z := make([]float64, n)
	dist := distuv.Normal{
		Mu:    (vMax + vMin) / 2,
		Sigma: (vMax - vMin) * 0.25,
	}
	for i := range z {
		val := dist.Rand()
		for val < vMin || val > vMax {
			val = dist.Rand()
		}
		z[i] = val
	}
	return z
}
