// Package compute contains the bulk execution backends that apply a per-point function across a
// packed point buffer.
package compute

import (
	"github.com/pkg/errors"
)

// ErrInvalidBuffer is returned when input and output buffers do not describe the same number of
// points.
var ErrInvalidBuffer = errors.New("invalid point buffer")

// PointFunc transforms a single point. in holds one input point (inStride values) and out
// receives one output point (outStride values). A PointFunc must only read in and write out so
// that points can be processed in any order.
type PointFunc func(in, out []float32)

// Backend applies a PointFunc to every point of a packed, row-major float32 buffer. Output point i
// is always produced from input point i.
type Backend interface {
	Name() string
	Run(in []float32, inStride int, out []float32, outStride int, fn PointFunc) error
}

// CheckBuffers validates the buffer layout and returns the number of points.
func CheckBuffers(in []float32, inStride int, out []float32, outStride int) (int, error) {
	if inStride <= 0 || outStride <= 0 {
		return 0, errors.Wrapf(ErrInvalidBuffer, "strides must be positive, got in=%d out=%d", inStride, outStride)
	}
	if len(in)%inStride != 0 {
		return 0, errors.Wrapf(ErrInvalidBuffer, "input length %d is not a multiple of stride %d", len(in), inStride)
	}
	n := len(in) / inStride
	if len(out) != n*outStride {
		return 0, errors.Wrapf(ErrInvalidBuffer, "output length %d, expected %d for %d points", len(out), n*outStride, n)
	}
	return n, nil
}

// Sequential is the reference backend: a plain loop on the calling goroutine.
type Sequential struct{}

// NewSequential returns the reference backend.
func NewSequential() *Sequential {
	return &Sequential{}
}

// Name returns "sequential".
func (s *Sequential) Name() string {
	return "sequential"
}

// Run applies fn to each point in order.
func (s *Sequential) Run(in []float32, inStride int, out []float32, outStride int, fn PointFunc) error {
	n, err := CheckBuffers(in, inStride, out, outStride)
	if err != nil {
		return err
	}
	runRange(in, inStride, out, outStride, fn, 0, n)
	return nil
}

func runRange(in []float32, inStride int, out []float32, outStride int, fn PointFunc, from, to int) {
	for i := from; i < to; i++ {
		fn(in[i*inStride:(i+1)*inStride:(i+1)*inStride], out[i*outStride:(i+1)*outStride:(i+1)*outStride])
	}
}
