package transform

import "math"

// Division is the one-parameter division model: p_u = p_d / (1 + λ·r_d²).
type Division struct {
	Lambda float64 `json:"lambda"`

	n int
}

// NewDivision takes in zero or one coefficient.
func NewDivision(inp []float64) *Division {
	c := padCoefficients(inp, 1)
	return &Division{c[0], len(inp)}
}

// CameraType returns DivisionCamera.
func (d *Division) CameraType() CameraType {
	return DivisionCamera
}

// Parameters returns the coefficients that were supplied.
func (d *Division) Parameters() []float64 {
	return []float64{d.Lambda}[:d.n]
}

// Distort solves λ·r_u·r_d² - r_d + r_u = 0 for the root nearest r_u. Points beyond the model's
// image circle have no solution and return NaN.
func (d *Division) Distort(x, y float64) (float64, float64) {
	ru := math.Hypot(x, y)
	if ru < 1e-12 || d.Lambda == 0 {
		return x, y
	}
	disc := 1 - 4*d.Lambda*ru*ru
	if disc < 0 {
		return math.NaN(), math.NaN()
	}
	// 2r/(1+√disc) is (1-√disc)/(2λr) without the cancellation for small λ.
	rd := 2 * ru / (1 + math.Sqrt(disc))
	scale := rd / ru
	return x * scale, y * scale
}

// Undistort is closed form.
func (d *Division) Undistort(xd, yd float64) (float64, float64) {
	den := 1 + d.Lambda*(xd*xd+yd*yd)
	if den <= 0 {
		return math.NaN(), math.NaN()
	}
	return xd / den, yd / den
}
