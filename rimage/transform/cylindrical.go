package transform

import "math"

// Cylindrical projects onto a vertical cylinder around the camera: the image x axis is the
// azimuth θ = atan(x) and the image y axis is the height y / √(1+x²) on the unit cylinder.
// It takes no coefficients.
type Cylindrical struct{}

// CameraType returns CylindricalCamera.
func (c *Cylindrical) CameraType() CameraType {
	return CylindricalCamera
}

// Parameters returns an empty slice.
func (c *Cylindrical) Parameters() []float64 {
	return []float64{}
}

// Distort maps a normalized pinhole point onto the cylinder.
func (c *Cylindrical) Distort(x, y float64) (float64, float64) {
	return math.Atan(x), y / math.Sqrt(1+x*x)
}

// Undistort maps a cylinder point back to the pinhole plane. Azimuths at or beyond 90 degrees
// have no pinhole image and return NaN.
func (c *Cylindrical) Undistort(theta, h float64) (float64, float64) {
	if math.Abs(theta) >= math.Pi/2 {
		return math.NaN(), math.NaN()
	}
	return math.Tan(theta), h / math.Cos(theta)
}
