package transform

import "math"

// KannalaBrandt is the equidistant fisheye model with four polynomial coefficients applied to the
// incidence angle: θd = θ(1 + k1θ² + k2θ⁴ + k3θ⁶ + k4θ⁸).
type KannalaBrandt struct {
	K1 float64 `json:"k1"`
	K2 float64 `json:"k2"`
	K3 float64 `json:"k3"`
	K4 float64 `json:"k4"`

	n int
}

// NewKannalaBrandt takes in a slice of floats that will be passed into the struct in order.
func NewKannalaBrandt(inp []float64) *KannalaBrandt {
	c := padCoefficients(inp, 4)
	return &KannalaBrandt{c[0], c[1], c[2], c[3], len(inp)}
}

// CameraType returns FisheyeCamera.
func (kb *KannalaBrandt) CameraType() CameraType {
	return FisheyeCamera
}

// Parameters returns the coefficients that were supplied.
func (kb *KannalaBrandt) Parameters() []float64 {
	return []float64{kb.K1, kb.K2, kb.K3, kb.K4}[:kb.n]
}

func (kb *KannalaBrandt) thetaD(theta float64) float64 {
	t2 := theta * theta
	t4 := t2 * t2
	t6 := t4 * t2
	t8 := t4 * t4
	return theta * (1 + kb.K1*t2 + kb.K2*t4 + kb.K3*t6 + kb.K4*t8)
}

// Distort maps a normalized pinhole point to the fisheye image plane.
func (kb *KannalaBrandt) Distort(x, y float64) (float64, float64) {
	r := math.Hypot(x, y)
	if r < 1e-12 {
		return x, y
	}
	scale := kb.thetaD(math.Atan(r)) / r
	return x * scale, y * scale
}

// Undistort recovers θ from θd with Newton iterations and returns the pinhole point tan(θ) away
// from the axis. Angles at or beyond 90 degrees have no pinhole image and return NaN.
func (kb *KannalaBrandt) Undistort(xd, yd float64) (float64, float64) {
	rd := math.Hypot(xd, yd)
	if rd < 1e-12 {
		return xd, yd
	}
	theta := math.Min(rd, math.Pi/2)
	for i := 0; i < undistortMaxIterations; i++ {
		t2 := theta * theta
		t4 := t2 * t2
		t6 := t4 * t2
		t8 := t4 * t4
		f := kb.thetaD(theta) - rd
		if math.Abs(f) < undistortTolerance {
			break
		}
		df := 1 + 3*kb.K1*t2 + 5*kb.K2*t4 + 7*kb.K3*t6 + 9*kb.K4*t8
		if df == 0 {
			break
		}
		theta -= f / df
	}
	if theta < 0 || theta >= math.Pi/2 {
		return math.NaN(), math.NaN()
	}
	scale := math.Tan(theta) / rd
	return xd * scale, yd * scale
}
