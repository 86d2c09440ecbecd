package config

import (
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	goutils "go.viam.com/utils"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/panorama/rimage/transform"
)

// CameraParameters are the calibrated parameters of one camera. K and P are given row by row.
// NewK, the intrinsics of the undistorted view, defaults to K.
type CameraParameters struct {
	Type       transform.CameraType `json:"type"`
	K          [][]float64          `json:"k"`
	NewK       [][]float64          `json:"new_k,omitempty"`
	Distortion []float64            `json:"distortion,omitempty"`
	P          [][]float64          `json:"p,omitempty"`
}

// Validate checks the shapes and the distortion vector without inverting anything.
func (cp *CameraParameters) Validate(path string) error {
	var allErrs error
	if _, err := transform.AcceptedCoefficientCounts(cp.Type); err != nil {
		allErrs = multierr.Append(allErrs, goutils.NewConfigValidationError(path, err))
	} else if _, err := transform.PrepareDistortion(cp.Type, cp.Distortion); err != nil {
		allErrs = multierr.Append(allErrs, goutils.NewConfigValidationError(path, err))
	}
	if len(cp.K) == 0 {
		allErrs = multierr.Append(allErrs, goutils.NewConfigValidationFieldRequiredError(path, "k"))
	} else if _, err := cp.Intrinsics(); err != nil {
		allErrs = multierr.Append(allErrs, goutils.NewConfigValidationError(path, err))
	}
	if len(cp.NewK) != 0 {
		if _, err := cp.NewIntrinsics(); err != nil {
			allErrs = multierr.Append(allErrs, goutils.NewConfigValidationError(path, err))
		}
	}
	if len(cp.P) != 0 {
		if _, err := cp.Projection(); err != nil {
			allErrs = multierr.Append(allErrs, goutils.NewConfigValidationError(path, err))
		}
	}
	return allErrs
}

// Intrinsics returns K as a 3x3 matrix.
func (cp *CameraParameters) Intrinsics() (*mat.Dense, error) {
	return shaped("k", cp.K, 3, 3)
}

// NewIntrinsics returns NewK as a 3x3 matrix, or K when NewK is unset.
func (cp *CameraParameters) NewIntrinsics() (*mat.Dense, error) {
	if len(cp.NewK) == 0 {
		return cp.Intrinsics()
	}
	return shaped("new_k", cp.NewK, 3, 3)
}

// Projection returns P as a 3x4 matrix.
func (cp *CameraParameters) Projection() (*mat.Dense, error) {
	if len(cp.P) == 0 {
		return nil, errors.Wrap(transform.ErrInvalidMatrixShape, "camera has no projection matrix")
	}
	return shaped("p", cp.P, 3, 4)
}

func shaped(name string, rows [][]float64, r, c int) (*mat.Dense, error) {
	m, err := transform.NewMatrix(rows)
	if err != nil {
		return nil, errors.Wrap(err, name)
	}
	if gotR, gotC := m.Dims(); gotR != r || gotC != c {
		return nil, transform.NewInvalidMatrixShapeError(name, r, c, gotR, gotC)
	}
	return m, nil
}
