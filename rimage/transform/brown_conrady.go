package transform

import "math"

// BrownConrady is the OpenCV rational lens model used by pinhole cameras. Coefficients follow the
// OpenCV order k1, k2, p1, p2, k3, k4, k5, k6; missing trailing values are zero.
type BrownConrady struct {
	RadialK1     float64 `json:"rk1"`
	RadialK2     float64 `json:"rk2"`
	TangentialP1 float64 `json:"tp1"`
	TangentialP2 float64 `json:"tp2"`
	RadialK3     float64 `json:"rk3"`
	RationalK4   float64 `json:"rk4"`
	RationalK5   float64 `json:"rk5"`
	RationalK6   float64 `json:"rk6"`

	n int
}

const (
	undistortMaxIterations = 20
	undistortTolerance     = 1e-12

	// residual, relative to the distorted radius, above which an inverse is rejected
	undistortMaxResidual = 1e-9
	// points checked along [0, r] for a fold in the radial curve
	foldSamples = 16
)

// NewBrownConrady takes in a slice of floats that will be passed into the struct in order.
func NewBrownConrady(inp []float64) *BrownConrady {
	c := padCoefficients(inp, 8)
	return &BrownConrady{c[0], c[1], c[2], c[3], c[4], c[5], c[6], c[7], len(inp)}
}

// CameraType returns PinholeCamera.
func (bc *BrownConrady) CameraType() CameraType {
	return PinholeCamera
}

// Parameters returns the coefficients that were supplied, in OpenCV order.
func (bc *BrownConrady) Parameters() []float64 {
	all := []float64{
		bc.RadialK1, bc.RadialK2, bc.TangentialP1, bc.TangentialP2,
		bc.RadialK3, bc.RationalK4, bc.RationalK5, bc.RationalK6,
	}
	return all[:bc.n]
}

// radial returns the rational radial factor and its derivative with respect to r².
func (bc *BrownConrady) radial(r2 float64) (float64, float64) {
	r4 := r2 * r2
	r6 := r4 * r2
	num := 1 + bc.RadialK1*r2 + bc.RadialK2*r4 + bc.RadialK3*r6
	den := 1 + bc.RationalK4*r2 + bc.RationalK5*r4 + bc.RationalK6*r6
	dNum := bc.RadialK1 + 2*bc.RadialK2*r2 + 3*bc.RadialK3*r4
	dDen := bc.RationalK4 + 2*bc.RationalK5*r2 + 3*bc.RationalK6*r4
	return num / den, (dNum*den - num*dDen) / (den * den)
}

// Distort applies the forward model:
//
//	x_d = x·R(r²) + 2·p1·x·y + p2·(r² + 2x²)
//	y_d = y·R(r²) + p1·(r² + 2y²) + 2·p2·x·y
//
// with R(r²) = (1 + k1·r² + k2·r⁴ + k3·r⁶) / (1 + k4·r² + k5·r⁴ + k6·r⁶).
func (bc *BrownConrady) Distort(x, y float64) (float64, float64) {
	r2 := x*x + y*y
	rad, _ := bc.radial(r2)
	xd := x*rad + 2*bc.TangentialP1*x*y + bc.TangentialP2*(r2+2*x*x)
	yd := y*rad + bc.TangentialP1*(r2+2*y*y) + 2*bc.TangentialP2*x*y
	return xd, yd
}

// Undistort solves Distort(xu, yu) = (xd, yd) with Newton-Raphson iterations, starting from the
// distorted point. Points with no solution on the inner branch of the radial curve, such as pixels
// beyond the image circle of a strong barrel lens, return NaN.
func (bc *BrownConrady) Undistort(xd, yd float64) (float64, float64) {
	xu, yu := xd, yd
	for i := 0; i < undistortMaxIterations; i++ {
		r2 := xu*xu + yu*yu
		rad, dRad := bc.radial(r2)

		errX := xu*rad + 2*bc.TangentialP1*xu*yu + bc.TangentialP2*(r2+2*xu*xu) - xd
		errY := yu*rad + bc.TangentialP1*(r2+2*yu*yu) + 2*bc.TangentialP2*xu*yu - yd
		if errX*errX+errY*errY < undistortTolerance*undistortTolerance {
			break
		}

		// J = [[dxd/dxu, dxd/dyu], [dyd/dxu, dyd/dyu]]
		dxdDxu := rad + 2*xu*xu*dRad + 2*bc.TangentialP1*yu + 6*bc.TangentialP2*xu
		dxdDyu := 2*xu*yu*dRad + 2*bc.TangentialP1*xu + 2*bc.TangentialP2*yu
		dydDxu := 2*xu*yu*dRad + 2*bc.TangentialP1*xu + 2*bc.TangentialP2*yu
		dydDyu := rad + 2*yu*yu*dRad + 6*bc.TangentialP1*yu + 2*bc.TangentialP2*xu

		det := dxdDxu*dydDyu - dxdDyu*dydDxu
		if det == 0 {
			break
		}
		xu -= (dydDyu*errX - dxdDyu*errY) / det
		yu -= (-dydDxu*errX + dxdDxu*errY) / det
	}

	gotX, gotY := bc.Distort(xu, yu)
	residual := math.Hypot(gotX-xd, gotY-yd)
	if !(residual <= undistortMaxResidual*math.Max(1, math.Hypot(xd, yd))) || !bc.monotonicTo(math.Hypot(xu, yu)) {
		return math.NaN(), math.NaN()
	}
	return xu, yu
}

// monotonicTo reports whether r·R(r²) increases on (0, r]. Past the first fold the model maps
// several radii onto one distorted radius and only the innermost branch is the camera's image.
func (bc *BrownConrady) monotonicTo(r float64) bool {
	for i := 1; i <= foldSamples; i++ {
		ri := r * float64(i) / foldSamples
		r2 := ri * ri
		rad, dRad := bc.radial(r2)
		if rad+2*r2*dRad <= 0 {
			return false
		}
	}
	return true
}
