package compute

import (
	"math"

	"github.com/montanaflynn/stats"
	"github.com/pkg/errors"
)

// EquivalenceReport summarizes the element-wise absolute difference between two backends' outputs.
type EquivalenceReport struct {
	Backends      [2]string
	Values        int
	MaxAbsDiff    float64
	MeanAbsDiff   float64
	StdDevAbsDiff float64
	// NaNMismatches counts elements that are NaN in exactly one output.
	NaNMismatches int
}

// Within reports whether the outputs agree within tol and on every NaN.
func (r *EquivalenceReport) Within(tol float64) bool {
	return r.NaNMismatches == 0 && r.MaxAbsDiff <= tol
}

// Compare runs fn over the same input on both backends and reports how far their outputs differ.
func Compare(a, b Backend, in []float32, inStride, outStride int, fn PointFunc) (*EquivalenceReport, error) {
	if inStride <= 0 || len(in)%inStride != 0 {
		return nil, errors.Wrapf(ErrInvalidBuffer, "input length %d is not a multiple of stride %d", len(in), inStride)
	}
	n := len(in) / inStride
	outA := make([]float32, n*outStride)
	outB := make([]float32, n*outStride)
	if err := a.Run(in, inStride, outA, outStride, fn); err != nil {
		return nil, errors.Wrapf(err, "backend %s", a.Name())
	}
	if err := b.Run(in, inStride, outB, outStride, fn); err != nil {
		return nil, errors.Wrapf(err, "backend %s", b.Name())
	}
	return Diff(a.Name(), b.Name(), outA, outB)
}

// Diff compares two output buffers of equal length.
func Diff(nameA, nameB string, outA, outB []float32) (*EquivalenceReport, error) {
	if len(outA) != len(outB) {
		return nil, errors.Wrapf(ErrInvalidBuffer, "outputs differ in length: %d vs %d", len(outA), len(outB))
	}
	report := &EquivalenceReport{Backends: [2]string{nameA, nameB}, Values: len(outA)}
	diffs := make(stats.Float64Data, 0, len(outA))
	for i := range outA {
		va, vb := float64(outA[i]), float64(outB[i])
		nanA, nanB := math.IsNaN(va), math.IsNaN(vb)
		switch {
		case nanA && nanB:
			diffs = append(diffs, 0)
		case nanA || nanB:
			report.NaNMismatches++
		default:
			diffs = append(diffs, math.Abs(va-vb))
		}
	}
	if len(diffs) == 0 {
		return report, nil
	}
	var err error
	if report.MaxAbsDiff, err = diffs.Max(); err != nil {
		return nil, err
	}
	if report.MeanAbsDiff, err = diffs.Mean(); err != nil {
		return nil, err
	}
	if report.StdDevAbsDiff, err = diffs.StandardDeviation(); err != nil {
		return nil, err
	}
	return report, nil
}
