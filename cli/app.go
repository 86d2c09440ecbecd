// Package cli contains the panoproj command line tool, which applies the projection engine to
// points read from standard input.
package cli

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"github.com/urfave/cli/v2"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/panorama/config"
	"go.viam.com/panorama/logging"
	"go.viam.com/panorama/rimage/transform"
	"go.viam.com/panorama/rimage/transform/compute"
	"go.viam.com/panorama/utils/matrix"
)

const (
	// Flags.
	flagConfig     = "config"
	flagDebug      = "debug"
	flagBackend    = "backend"
	flagCamera     = "camera"
	flagType       = "type"
	flagK          = "k"
	flagNewK       = "new-k"
	flagDistortion = "distortion"
	flagP          = "p"
	flagPoints     = "points"
	flagTolerance  = "tolerance"
)

// NewApp returns the panoproj application. Points are read from in and results are written to
// out, one point per line.
func NewApp(in io.Reader, out io.Writer) *cli.App {
	var logger logging.Logger
	cameraFlags := []cli.Flag{
		&cli.StringFlag{
			Name:  flagCamera,
			Usage: "use camera `NAME` from the config file",
		},
		&cli.StringFlag{
			Name:  flagType,
			Usage: "camera model: pinhole, fisheye, division or cylindrical",
			Value: transform.PinholeCamera.String(),
		},
		&cli.Float64SliceFlag{
			Name:  flagK,
			Usage: "intrinsic matrix as 9 row-major values",
		},
		&cli.Float64SliceFlag{
			Name:  flagNewK,
			Usage: "intrinsic matrix of the undistorted view as 9 row-major values (defaults to k)",
		},
		&cli.Float64SliceFlag{
			Name:  flagDistortion,
			Usage: "distortion coefficients of the camera model",
		},
		&cli.Float64SliceFlag{
			Name:  flagP,
			Usage: "projection matrix K[R|t] as 12 row-major values",
		},
	}

	pointCommand := func(name, usage string, dims int, run func(*session, []float64) ([]transform.Point2D, error)) *cli.Command {
		return &cli.Command{
			Name:      name,
			Usage:     usage,
			ArgsUsage: "< points",
			Flags:     cameraFlags,
			Action: func(c *cli.Context) error {
				s, err := newSession(c, logger)
				if err != nil {
					return err
				}
				values, err := readValues(in, dims)
				if err != nil {
					return err
				}
				pts, err := run(s, values)
				if err != nil {
					return err
				}
				return writePoints(out, pts)
			},
		}
	}

	return &cli.App{
		Name:      "panoproj",
		Usage:     "map points between pixels, normalized camera coordinates and the world",
		Writer:    out,
		ErrWriter: out,
		Reader:    in,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    flagConfig,
				Aliases: []string{"c"},
				Usage:   "load configuration from `FILE`",
			},
			&cli.StringFlag{
				Name:  flagBackend,
				Usage: "compute backend: sequential or parallel (overrides the config)",
			},
			&cli.BoolFlag{
				Name:  flagDebug,
				Usage: "enable debug logging",
			},
		},
		Before: func(c *cli.Context) error {
			if c.Bool(flagDebug) {
				logger = logging.NewDebugLogger("panoproj")
			} else {
				logger = logging.NewLogger("panoproj")
			}
			logging.ReplaceGlobal(logger)
			return nil
		},
		Commands: []*cli.Command{
			pointCommand("pix2center", "raw pixels to undistorted normalized coordinates", 2,
				func(s *session, values []float64) ([]transform.Point2D, error) {
					return s.engine.Pix2Center(points2D(values), s.camera.Type, s.camera.Distortion, s.k)
				}),
			pointCommand("undistort", "raw pixels to pixels of the undistorted view", 2,
				func(s *session, values []float64) ([]transform.Point2D, error) {
					return s.engine.Pix2UndistortedPix(points2D(values), s.camera.Type, s.newK, s.camera.Distortion, s.k)
				}),
			pointCommand("distort", "pixels of the undistorted view to raw pixels", 2,
				func(s *session, values []float64) ([]transform.Point2D, error) {
					return s.engine.UndistortedPixes2Pix(points2D(values), s.camera.Type, s.k, s.camera.Distortion, s.newK)
				}),
			pointCommand("world2pix", "world points to raw pixels", 3,
				func(s *session, values []float64) ([]transform.Point2D, error) {
					p, err := s.camera.Projection()
					if err != nil {
						return nil, err
					}
					return s.engine.World3ds2Pix(points3D(values), s.camera.Type, s.k, s.camera.Distortion, p)
				}),
			{
				Name:  "compare",
				Usage: "run every transform on both backends over random points and report the differences",
				Flags: append([]cli.Flag{
					&cli.IntFlag{
						Name:  flagPoints,
						Usage: "number of random points",
						Value: 100000,
					},
					&cli.Float64Flag{
						Name:  flagTolerance,
						Usage: "largest absolute difference, in pixels, that still counts as equivalent",
						Value: 1e-3,
					},
				}, cameraFlags...),
				Action: func(c *cli.Context) error {
					s, err := newSession(c, logger)
					if err != nil {
						return err
					}
					return compareBackends(c, s, out, logger)
				},
			},
		},
	}
}

type session struct {
	cfg    *config.Config
	camera config.CameraParameters
	k      *mat.Dense
	newK   *mat.Dense
	engine *transform.Engine
}

func newSession(c *cli.Context, logger logging.Logger) (*session, error) {
	cfg := config.Default()
	if path := c.String(flagConfig); path != "" {
		var err error
		if cfg, err = config.Read(path); err != nil {
			return nil, err
		}
	}
	if backend := c.String(flagBackend); backend != "" {
		cfg.Backend = backend
	}
	if err := cfg.Validate(""); err != nil {
		return nil, err
	}
	if !c.Bool(flagDebug) {
		logger.SetLevel(cfg.LogLevel)
	}

	camera, err := cameraFromFlags(c, cfg)
	if err != nil {
		return nil, err
	}
	s := &session{cfg: cfg, camera: camera, engine: cfg.NewEngine(logger)}
	if s.k, err = camera.Intrinsics(); err != nil {
		return nil, err
	}
	if s.newK, err = camera.NewIntrinsics(); err != nil {
		return nil, err
	}
	logger.Debugw("session ready", "backend", s.engine.Backend().Name(), "camera_type", camera.Type.String())
	return s, nil
}

func cameraFromFlags(c *cli.Context, cfg *config.Config) (config.CameraParameters, error) {
	if name := c.String(flagCamera); name != "" {
		camera, ok := cfg.Cameras[name]
		if !ok {
			return config.CameraParameters{}, errors.Errorf("no camera named %q in config", name)
		}
		return camera, nil
	}

	cameraType, err := transform.ParseCameraType(c.String(flagType))
	if err != nil {
		return config.CameraParameters{}, err
	}
	camera := config.CameraParameters{Type: cameraType, Distortion: c.Float64Slice(flagDistortion)}
	if camera.K, err = rows(flagK, c.Float64Slice(flagK), 3); err != nil {
		return config.CameraParameters{}, err
	}
	if camera.NewK, err = rows(flagNewK, c.Float64Slice(flagNewK), 3); err != nil {
		return config.CameraParameters{}, err
	}
	if camera.P, err = rows(flagP, c.Float64Slice(flagP), 4); err != nil {
		return config.CameraParameters{}, err
	}
	if err := camera.Validate("flags"); err != nil {
		return config.CameraParameters{}, err
	}
	return camera, nil
}

// rows splits row-major values into rows of cols values. No values gives no rows.
func rows(name string, values []float64, cols int) ([][]float64, error) {
	if len(values) == 0 {
		return nil, nil
	}
	if len(values)%cols != 0 {
		return nil, errors.Wrapf(transform.ErrInvalidMatrixShape, "--%s has %d values, expected a multiple of %d", name, len(values), cols)
	}
	return lo.Chunk(values, cols), nil
}

// readValues reads whitespace separated numbers; their count must be a multiple of dims.
func readValues(in io.Reader, dims int) ([]float64, error) {
	scanner := bufio.NewScanner(in)
	scanner.Split(bufio.ScanWords)
	var values []float64
	for scanner.Scan() {
		v, err := strconv.ParseFloat(scanner.Text(), 64)
		if err != nil {
			return nil, errors.Wrapf(err, "value %d", len(values))
		}
		values = append(values, v)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if len(values)%dims != 0 {
		return nil, errors.Errorf("read %d values, which is not a whole number of %dD points", len(values), dims)
	}
	return values, nil
}

// points2D groups values read by readValues into points. Calling it with a count that is not a
// multiple of 2 is a bug.
func points2D(values []float64) []transform.Point2D {
	return lo.Map(lo.Chunk(values, 2), func(v []float64, _ int) transform.Point2D {
		return transform.Point2DFromR2(r2.Point{X: v[0], Y: v[1]})
	})
}

func points3D(values []float64) []transform.Point3D {
	return lo.Map(lo.Chunk(values, 3), func(v []float64, _ int) transform.Point3D {
		return transform.Point3DFromR3(r3.Vector{X: v[0], Y: v[1], Z: v[2]})
	})
}

func writePoints(out io.Writer, pts []transform.Point2D) error {
	w := bufio.NewWriter(out)
	for _, p := range pts {
		if _, err := fmt.Fprintf(w, "%s %s\n", formatFloat(p.X), formatFloat(p.Y)); err != nil {
			return err
		}
	}
	return w.Flush()
}

func formatFloat(v float32) string {
	return strconv.FormatFloat(float64(v), 'g', -1, 32)
}

type namedTransform struct {
	name string
	run  func(e *transform.Engine) ([]transform.Point2D, error)
}

// compareBackends maps the same random batch with the sequential and the parallel backend.
func compareBackends(c *cli.Context, s *session, out io.Writer, logger logging.Logger) error {
	n := c.Int(flagPoints)
	if n <= 0 {
		return errors.Errorf("--%s must be positive", flagPoints)
	}
	width, height := 2*s.k.At(0, 2), 2*s.k.At(1, 2)
	xs := matrix.SampleNUniform(n, 0, width)
	ys := matrix.SampleNUniform(n, 0, height)
	raw := make([]transform.Point2D, n)
	for i := range raw {
		raw[i] = transform.Point2D{X: float32(xs[i]), Y: float32(ys[i])}
	}

	sequential := transform.NewEngine(compute.NewSequential(), s.cfg.Prepare, logger)
	parallel := transform.NewEngine(compute.NewParallel(compute.ParallelOptions{
		Workers:                  s.cfg.Parallel.Workers,
		MinBatch:                 s.cfg.Parallel.MinBatch,
		MaxConcurrentSubmissions: s.cfg.Parallel.MaxConcurrentSubmissions,
	}), s.cfg.Prepare, logger)

	transforms := []namedTransform{
		{"pix2center", func(e *transform.Engine) ([]transform.Point2D, error) {
			return e.Pix2Center(raw, s.camera.Type, s.camera.Distortion, s.k)
		}},
		{"undistort", func(e *transform.Engine) ([]transform.Point2D, error) {
			return e.Pix2UndistortedPix(raw, s.camera.Type, s.newK, s.camera.Distortion, s.k)
		}},
		{"distort", func(e *transform.Engine) ([]transform.Point2D, error) {
			return e.UndistortedPixes2Pix(raw, s.camera.Type, s.k, s.camera.Distortion, s.newK)
		}},
	}
	if p, err := s.camera.Projection(); err == nil {
		depths := matrix.SampleNNormal(n, 0.5, 50)
		world := make([]transform.Point3D, n)
		for i, pix := range raw {
			// back-project through the ideal pinhole so the points land inside the image
			x := (float64(pix.X) - s.k.At(0, 2)) / s.k.At(0, 0)
			y := (float64(pix.Y) - s.k.At(1, 2)) / s.k.At(1, 1)
			world[i] = transform.Point3DFromR3(r3.Vector{X: x, Y: y, Z: 1}.Mul(depths[i]))
		}
		transforms = append(transforms, namedTransform{"world2pix", func(e *transform.Engine) ([]transform.Point2D, error) {
			return e.World3ds2Pix(world, s.camera.Type, s.k, s.camera.Distortion, p)
		}})
	}

	tolerance := c.Float64(flagTolerance)
	var failed []string
	for _, tf := range transforms {
		want, err := tf.run(sequential)
		if err != nil {
			return errors.Wrap(err, tf.name)
		}
		got, err := tf.run(parallel)
		if err != nil {
			return errors.Wrap(err, tf.name)
		}
		report, err := compute.Diff(sequential.Backend().Name(), parallel.Backend().Name(), flatten(want), flatten(got))
		if err != nil {
			return errors.Wrap(err, tf.name)
		}
		fmt.Fprintf(out, "%-10s max=%.3g mean=%.3g stddev=%.3g nan_mismatches=%d\n",
			tf.name, report.MaxAbsDiff, report.MeanAbsDiff, report.StdDevAbsDiff, report.NaNMismatches)
		if !report.Within(tolerance) {
			failed = append(failed, tf.name)
		}
	}
	if len(failed) != 0 {
		return errors.Errorf("backends disagree beyond %g on %s", tolerance, strings.Join(failed, ", "))
	}
	return nil
}

func flatten(pts []transform.Point2D) []float32 {
	return lo.FlatMap(pts, func(p transform.Point2D, _ int) []float32 { return []float32{p.X, p.Y} })
}
