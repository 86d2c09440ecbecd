package transform

import (
	"math"

	"github.com/pkg/errors"
)

// Distorter maps between ideal pinhole-normalized coordinates (x/z, y/z) and the coordinates a
// camera model actually images before its intrinsics are applied.
type Distorter interface {
	CameraType() CameraType
	// Parameters returns the coefficients in the order they were supplied.
	Parameters() []float64
	// Distort takes an ideal normalized point to the model's image plane.
	Distort(x, y float64) (float64, float64)
	// Undistort is the inverse of Distort.
	Undistort(x, y float64) (float64, float64)
}

// NewDistorter returns the Distorter of cameraType built from its coefficients.
func NewDistorter(cameraType CameraType, coefficients []float64) (Distorter, error) {
	if err := checkCoefficientCount(cameraType, len(coefficients)); err != nil {
		return nil, err
	}
	for i, c := range coefficients {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return nil, errors.Wrapf(ErrInvalidMatrixShape, "%v distortion coefficient %d is not finite", cameraType, i)
		}
	}
	switch cameraType {
	case PinholeCamera:
		return NewBrownConrady(coefficients), nil
	case FisheyeCamera:
		return NewKannalaBrandt(coefficients), nil
	case DivisionCamera:
		return NewDivision(coefficients), nil
	case CylindricalCamera:
		return &Cylindrical{}, nil
	case UnknownCamera:
		fallthrough
	default:
		return nil, NewUnsupportedCameraTypeError(cameraType)
	}
}

// AcceptedCoefficientCounts lists the distortion vector lengths a camera type accepts.
func AcceptedCoefficientCounts(cameraType CameraType) ([]int, error) {
	switch cameraType {
	case PinholeCamera:
		return []int{0, 4, 5, 8}, nil
	case FisheyeCamera:
		return []int{0, 4}, nil
	case DivisionCamera:
		return []int{0, 1}, nil
	case CylindricalCamera:
		return []int{0}, nil
	case UnknownCamera:
		fallthrough
	default:
		return nil, NewUnsupportedCameraTypeError(cameraType)
	}
}

func checkCoefficientCount(cameraType CameraType, n int) error {
	counts, err := AcceptedCoefficientCounts(cameraType)
	if err != nil {
		return err
	}
	for _, c := range counts {
		if c == n {
			return nil
		}
	}
	return errors.Wrapf(ErrInvalidMatrixShape, "%v distortion expects one of %v coefficients, got %d", cameraType, counts, n)
}

// padCoefficients copies in into a slice of length n, filling missing values with 0.
func padCoefficients(in []float64, n int) []float64 {
	out := make([]float64, n)
	copy(out, in)
	return out
}
