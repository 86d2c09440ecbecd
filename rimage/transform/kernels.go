package transform

import (
	"math"

	"go.viam.com/panorama/rimage/transform/compute"
)

// Kernels read float32 points, do the arithmetic of a single point in float64 against matrices
// widened from the prepared buffers, and narrow the result back to float32.

var nan32 = float32(math.NaN())

// applyMat3 applies the row-major 3x3 m to (x, y, 1) and dehomogenizes.
func applyMat3(m []float64, x, y float64) (float64, float64) {
	u := m[0]*x + m[1]*y + m[2]
	v := m[3]*x + m[4]*y + m[5]
	w := m[6]*x + m[7]*y + m[8]
	if w == 0 {
		return math.NaN(), math.NaN()
	}
	return u / w, v / w
}

// store2D narrows (x, y) into out. Values that are not finite in float32 become NaN.
func store2D(out []float32, x, y float64) {
	fx, fy := float32(x), float32(y)
	if isFinite32(fx) && isFinite32(fy) {
		out[0], out[1] = fx, fy
		return
	}
	out[0], out[1] = nan32, nan32
}

func isFinite32(v float32) bool {
	return !math.IsNaN(float64(v)) && !math.IsInf(float64(v), 0)
}

// pix2CenterKernel: K⁻¹, then the model's undistortion.
func pix2CenterKernel(kInv []float64, d Distorter) compute.PointFunc {
	return func(in, out []float32) {
		x, y := applyMat3(kInv, float64(in[0]), float64(in[1]))
		x, y = d.Undistort(x, y)
		store2D(out, x, y)
	}
}

// pix2UndistortedPixKernel: old K⁻¹, undistortion, then the new intrinsics.
func pix2UndistortedPixKernel(oldKInv, newK []float64, d Distorter) compute.PointFunc {
	return func(in, out []float32) {
		x, y := applyMat3(oldKInv, float64(in[0]), float64(in[1]))
		x, y = d.Undistort(x, y)
		x, y = applyMat3(newK, x, y)
		store2D(out, x, y)
	}
}

// undistortedPix2PixKernel: new K⁻¹, the model's distortion, then the old intrinsics.
func undistortedPix2PixKernel(newKInv, oldK []float64, d Distorter) compute.PointFunc {
	return func(in, out []float32) {
		x, y := applyMat3(newKInv, float64(in[0]), float64(in[1]))
		x, y = d.Distort(x, y)
		x, y = applyMat3(oldK, x, y)
		store2D(out, x, y)
	}
}

// world2PixKernel applies the 3x4 extrinsic matrix rt (K⁻¹·P) to a world point, drops points
// at or behind the image plane, distorts and applies K.
func world2PixKernel(rt, k []float64, d Distorter) compute.PointFunc {
	return func(in, out []float32) {
		wx, wy, wz := float64(in[0]), float64(in[1]), float64(in[2])
		cx := rt[0]*wx + rt[1]*wy + rt[2]*wz + rt[3]
		cy := rt[4]*wx + rt[5]*wy + rt[6]*wz + rt[7]
		cz := rt[8]*wx + rt[9]*wy + rt[10]*wz + rt[11]
		if !(cz > 0) {
			out[0], out[1] = nan32, nan32
			return
		}
		x, y := d.Distort(cx/cz, cy/cz)
		x, y = applyMat3(k, x, y)
		store2D(out, x, y)
	}
}
