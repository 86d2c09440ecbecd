package transform

import (
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/panorama/logging"
	"go.viam.com/panorama/rimage/transform/compute"
)

// Engine maps points between raw pixels, undistorted pixels, the normalized camera plane and
// the world. An Engine holds no mutable state: every call prepares its own buffers from the
// matrices it is given, so one Engine may be shared by any number of goroutines.
//
// Every batch method returns a slice of the same length as its input, where output i is the
// image of input i. Points without an image (behind the camera, outside a model's domain) come
// back as NaN coordinates rather than errors. An empty batch returns an empty slice after the
// camera parameters have been validated.
type Engine struct {
	backend compute.Backend
	opts    PrepareOptions
	logger  logging.Logger
}

// NewEngine returns an Engine running its batches on backend. A nil backend uses the sequential
// reference backend.
func NewEngine(backend compute.Backend, opts PrepareOptions, logger logging.Logger) *Engine {
	if backend == nil {
		backend = compute.NewSequential()
	}
	return &Engine{backend: backend, opts: opts, logger: logger}
}

// Backend returns the backend batches run on.
func (e *Engine) Backend() compute.Backend {
	return e.backend
}

func (e *Engine) fail(op string, cameraType CameraType, err error) error {
	e.logger.Debugw("transform rejected", "op", op, "camera_type", cameraType.String(), "error", err)
	return errors.Wrap(err, op)
}

// Pix2Center maps raw pixels to undistorted, principal point centered, normalized camera
// coordinates: K⁻¹ followed by the undistortion of cameraType.
func (e *Engine) Pix2Center(
	points []Point2D,
	cameraType CameraType,
	distortion []float64,
	k mat.Matrix,
) ([]Point2D, error) {
	const op = "Pix2Center"
	dist, err := prepareDistorter(cameraType, distortion)
	if err != nil {
		return nil, e.fail(op, cameraType, err)
	}
	kPrep, err := PrepareIntrinsics("K", k, true, e.opts)
	if err != nil {
		return nil, e.fail(op, cameraType, err)
	}
	return e.run2D(op, cameraType, packPoints2D(points), 2, pix2CenterKernel(kPrep.inverse, dist))
}

// Pix2CenterPoint is the single point form of Pix2Center.
func (e *Engine) Pix2CenterPoint(point Point2D, cameraType CameraType, distortion []float64, k mat.Matrix) (Point2D, error) {
	return single(e.Pix2Center([]Point2D{point}, cameraType, distortion, k))
}

// Pix2UndistortedPix maps raw pixels of a camera with intrinsics oldK to the pixels they would
// have in a distortion free camera with intrinsics newK.
func (e *Engine) Pix2UndistortedPix(
	points []Point2D,
	cameraType CameraType,
	newK mat.Matrix,
	distortion []float64,
	oldK mat.Matrix,
) ([]Point2D, error) {
	const op = "Pix2UndistortedPix"
	dist, err := prepareDistorter(cameraType, distortion)
	if err != nil {
		return nil, e.fail(op, cameraType, err)
	}
	oldPrep, err := PrepareIntrinsics("oldK", oldK, true, e.opts)
	if err != nil {
		return nil, e.fail(op, cameraType, err)
	}
	newPrep, err := PrepareIntrinsics("newK", newK, false, e.opts)
	if err != nil {
		return nil, e.fail(op, cameraType, err)
	}
	return e.run2D(op, cameraType, packPoints2D(points), 2,
		pix2UndistortedPixKernel(oldPrep.inverse, newPrep.K.Float64(), dist))
}

// Pix2UndistortedPixPoint is the single point form of Pix2UndistortedPix.
func (e *Engine) Pix2UndistortedPixPoint(
	point Point2D,
	cameraType CameraType,
	newK mat.Matrix,
	distortion []float64,
	oldK mat.Matrix,
) (Point2D, error) {
	return single(e.Pix2UndistortedPix([]Point2D{point}, cameraType, newK, distortion, oldK))
}

// UndistortedPix2Pix is the inverse of Pix2UndistortedPix: it maps a pixel of the distortion
// free camera newK back to the raw pixel of the camera oldK.
func (e *Engine) UndistortedPix2Pix(
	point Point2D,
	cameraType CameraType,
	oldK mat.Matrix,
	distortion []float64,
	newK mat.Matrix,
) (Point2D, error) {
	return single(e.UndistortedPixes2Pix([]Point2D{point}, cameraType, oldK, distortion, newK))
}

// UndistortedPixes2Pix is the batch form of UndistortedPix2Pix.
func (e *Engine) UndistortedPixes2Pix(
	points []Point2D,
	cameraType CameraType,
	oldK mat.Matrix,
	distortion []float64,
	newK mat.Matrix,
) ([]Point2D, error) {
	const op = "UndistortedPix2Pix"
	dist, err := prepareDistorter(cameraType, distortion)
	if err != nil {
		return nil, e.fail(op, cameraType, err)
	}
	oldPrep, err := PrepareIntrinsics("oldK", oldK, false, e.opts)
	if err != nil {
		return nil, e.fail(op, cameraType, err)
	}
	newPrep, err := PrepareIntrinsics("newK", newK, true, e.opts)
	if err != nil {
		return nil, e.fail(op, cameraType, err)
	}
	return e.run2D(op, cameraType, packPoints2D(points), 2,
		undistortedPix2PixKernel(newPrep.inverse, oldPrep.K.Float64(), dist))
}

// World3d2Pix projects a world point to a raw pixel. P is the full projection matrix K[R|t]; the
// point is taken to camera coordinates with K⁻¹·P, divided by its depth, distorted by the model of
// cameraType and mapped through K. Points at or behind the camera project to NaN.
func (e *Engine) World3d2Pix(
	point Point3D,
	cameraType CameraType,
	k mat.Matrix,
	distortion []float64,
	p mat.Matrix,
) (Point2D, error) {
	return single(e.World3ds2Pix([]Point3D{point}, cameraType, k, distortion, p))
}

// World3ds2Pix is the batch form of World3d2Pix.
func (e *Engine) World3ds2Pix(
	points []Point3D,
	cameraType CameraType,
	k mat.Matrix,
	distortion []float64,
	p mat.Matrix,
) ([]Point2D, error) {
	const op = "World3d2Pix"
	dist, err := prepareDistorter(cameraType, distortion)
	if err != nil {
		return nil, e.fail(op, cameraType, err)
	}
	kPrep, err := PrepareIntrinsics("K", k, true, e.opts)
	if err != nil {
		return nil, e.fail(op, cameraType, err)
	}
	pPrep, err := PrepareProjection("P", p)
	if err != nil {
		return nil, e.fail(op, cameraType, err)
	}
	rt, err := PrepareExtrinsics(kPrep, pPrep)
	if err != nil {
		return nil, e.fail(op, cameraType, err)
	}
	return e.run2D(op, cameraType, packPoints3D(points), 3, world2PixKernel(rt.Float64(), kPrep.K.Float64(), dist))
}

func (e *Engine) run2D(op string, cameraType CameraType, in []float32, inStride int, fn compute.PointFunc) ([]Point2D, error) {
	n := len(in) / inStride
	if n == 0 {
		return []Point2D{}, nil
	}
	out := make([]float32, 2*n)
	if err := e.backend.Run(in, inStride, out, 2, fn); err != nil {
		return nil, e.fail(op, cameraType, err)
	}
	return unpackPoints2D(out), nil
}

func prepareDistorter(cameraType CameraType, distortion []float64) (Distorter, error) {
	buf, err := PrepareDistortion(cameraType, distortion)
	if err != nil {
		return nil, err
	}
	return buf.Distorter(cameraType)
}

func single(points []Point2D, err error) (Point2D, error) {
	if err != nil {
		return Point2D{}, err
	}
	return points[0], nil
}
