package transform

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrInvalidMatrixShape is returned when a matrix or coefficient vector does not have the
	// dimensions (or finite values) an operation expects.
	ErrInvalidMatrixShape = errors.New("invalid matrix shape")
	// ErrSingularMatrix is returned when an operation needs the inverse of a matrix that is
	// singular or too badly conditioned to invert.
	ErrSingularMatrix = errors.New("singular matrix")
	// ErrUnsupportedCameraType is returned when no projection model is registered for a camera type.
	ErrUnsupportedCameraType = errors.New("unsupported camera type")
)

// NewInvalidMatrixShapeError is used when a matrix named name is not rows x cols.
func NewInvalidMatrixShapeError(name string, rows, cols, gotRows, gotCols int) error {
	return errors.Wrapf(ErrInvalidMatrixShape, "%s must be %dx%d, got %dx%d", name, rows, cols, gotRows, gotCols)
}

// NewSingularMatrixError is used when the matrix named name cannot be inverted.
func NewSingularMatrixError(name, msg string) error {
	return errors.Wrapf(ErrSingularMatrix, "cannot invert %s: %s", name, msg)
}

// NewUnsupportedCameraTypeError is used when a camera type has no distortion model.
func NewUnsupportedCameraTypeError(cameraType CameraType) error {
	return errors.Wrap(ErrUnsupportedCameraType, fmt.Sprintf("no model registered for %v", cameraType))
}
