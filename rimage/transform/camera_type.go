package transform

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// CameraType selects the projection convention and distortion formula of a camera.
type CameraType int

// The supported camera models. New models are added here, in cameraTypeNames and in
// NewDistorter; call sites never change.
const (
	// UnknownCamera is the zero value and has no model.
	UnknownCamera CameraType = iota
	// PinholeCamera is a perspective camera with Brown-Conrady / rational lens distortion.
	PinholeCamera
	// FisheyeCamera is a wide-angle camera following the Kannala-Brandt equidistant model.
	FisheyeCamera
	// DivisionCamera is a fisheye variant described by the one-parameter division model.
	DivisionCamera
	// CylindricalCamera maps azimuth linearly onto the image x axis.
	CylindricalCamera
)

var cameraTypeNames = map[CameraType]string{
	UnknownCamera:     "unknown",
	PinholeCamera:     "pinhole",
	FisheyeCamera:     "fisheye",
	DivisionCamera:    "division",
	CylindricalCamera: "cylindrical",
}

// CameraTypes returns every camera type that has a registered model.
func CameraTypes() []CameraType {
	return []CameraType{PinholeCamera, FisheyeCamera, DivisionCamera, CylindricalCamera}
}

func (t CameraType) String() string {
	if name, ok := cameraTypeNames[t]; ok {
		return name
	}
	return "CameraType(" + strconv.Itoa(int(t)) + ")"
}

// ParseCameraType returns the camera type with the given name, case insensitively.
func ParseCameraType(name string) (CameraType, error) {
	lower := strings.ToLower(strings.TrimSpace(name))
	for t, n := range cameraTypeNames {
		if t != UnknownCamera && n == lower {
			return t, nil
		}
	}
	return UnknownCamera, errors.Wrapf(ErrUnsupportedCameraType, "unknown camera type %q", name)
}

// MarshalText implements encoding.TextMarshaler.
func (t CameraType) MarshalText() ([]byte, error) {
	if _, ok := cameraTypeNames[t]; !ok || t == UnknownCamera {
		return nil, NewUnsupportedCameraTypeError(t)
	}
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *CameraType) UnmarshalText(text []byte) error {
	parsed, err := ParseCameraType(string(text))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}
