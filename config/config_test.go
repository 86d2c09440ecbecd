package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/multierr"
	"go.viam.com/test"
	goutils "go.viam.com/utils"

	"go.viam.com/panorama/logging"
	"go.viam.com/panorama/rimage/transform"
	"go.viam.com/panorama/utils/queue"
)

var fisheyeAttributes = map[string]interface{}{
	"type":       "fisheye",
	"k":          []interface{}{[]interface{}{800, 0, 640}, []interface{}{0, 800, 360}, []interface{}{0, 0, 1}},
	"distortion": []interface{}{0.05, -0.01, 0.002, -0.0005},
}

func TestDefault(t *testing.T) {
	cfg := Default()
	test.That(t, cfg.Validate(""), test.ShouldBeNil)
	test.That(t, cfg.Backend, test.ShouldEqual, BackendSequential)
	test.That(t, cfg.Queue.Size, test.ShouldEqual, DefaultQueueSize)
	test.That(t, cfg.Queue.Policy, test.ShouldEqual, queue.RejectNew)
	test.That(t, cfg.FailurePolicy, test.ShouldEqual, FailureSkip)
	test.That(t, cfg.Prepare.MaxConditionNumber, test.ShouldEqual, transform.DefaultMaxConditionNumber)
	test.That(t, cfg.LogLevel, test.ShouldEqual, logging.INFO)
	test.That(t, cfg.NewBackend().Name(), test.ShouldEqual, "sequential")
}

func TestDecodeAttributes(t *testing.T) {
	cfg, err := DecodeAttributes(map[string]interface{}{
		"backend":        "parallel",
		"parallel":       map[string]interface{}{"workers": 3, "min_batch": 16},
		"prepare":        map[string]interface{}{"max_condition_number": 1e9},
		"queue":          map[string]interface{}{"size": 4, "policy": "evict_oldest"},
		"failure_policy": "reuse",
		"log_level":      "debug",
		"cameras":        map[string]interface{}{"left": fisheyeAttributes},
	})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cfg.Validate("session"), test.ShouldBeNil)
	test.That(t, cfg.Parallel, test.ShouldResemble, ParallelConfig{Workers: 3, MinBatch: 16})
	test.That(t, cfg.Prepare.MaxConditionNumber, test.ShouldEqual, 1e9)
	test.That(t, cfg.Queue, test.ShouldResemble, QueueConfig{Size: 4, Policy: queue.EvictOldest})
	test.That(t, cfg.FailurePolicy, test.ShouldEqual, FailureReuse)
	test.That(t, cfg.LogLevel, test.ShouldEqual, logging.DEBUG)
	test.That(t, cfg.NewBackend().Name(), test.ShouldEqual, "parallel")

	left := cfg.Cameras["left"]
	test.That(t, left.Type, test.ShouldEqual, transform.FisheyeCamera)
	k, err := left.Intrinsics()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, k.At(0, 2), test.ShouldEqual, 640.0)
	newK, err := left.NewIntrinsics()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, newK.RawMatrix().Data, test.ShouldResemble, k.RawMatrix().Data)
	_, err = left.Projection()
	test.That(t, errors.Is(err, transform.ErrInvalidMatrixShape), test.ShouldBeTrue)

	engine := cfg.NewEngine(logging.NewTestLogger(t))
	pt, err := engine.Pix2CenterPoint(transform.Point2D{X: 640, Y: 360}, left.Type, left.Distortion, k)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, float64(pt.X), test.ShouldAlmostEqual, 0, 1e-6)

	_, err = DecodeAttributes(map[string]interface{}{"backend": "parallel", "gpu": true})
	test.That(t, err, test.ShouldNotBeNil)

	_, err = DecodeAttributes(map[string]interface{}{"cameras": map[string]interface{}{
		"bad": map[string]interface{}{"type": "orthographic"},
	}})
	test.That(t, err, test.ShouldNotBeNil)
}

func TestValidateCollectsEveryError(t *testing.T) {
	cfg := Default()
	cfg.Backend = "gpu"
	cfg.Queue.Size = -2
	cfg.FailurePolicy = "retry"
	cfg.LogLevel = logging.Level(7)
	cfg.Cameras = map[string]CameraParameters{
		"nok": {Type: transform.PinholeCamera},
		"bad_distortion": {
			Type:       transform.DivisionCamera,
			K:          [][]float64{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}},
			Distortion: []float64{0.1, 0.2},
		},
	}
	err := cfg.Validate("session")
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, multierr.Errors(err), test.ShouldHaveLength, 6)
	test.That(t, err.Error(), test.ShouldContainSubstring,
		goutils.NewConfigValidationFieldRequiredError("session.cameras.nok", "k").Error())
	test.That(t, errors.Is(err, queue.ErrInvalidSize), test.ShouldBeTrue)
	test.That(t, errors.Is(err, transform.ErrInvalidMatrixShape), test.ShouldBeTrue)
}

func TestCameraParametersValidate(t *testing.T) {
	cam := CameraParameters{
		Type: transform.PinholeCamera,
		K:    [][]float64{{1000, 0, 320}, {0, 1000, 240}, {0, 0, 1}},
		NewK: [][]float64{{900, 0, 320}, {0, 900, 240}},
		P:    [][]float64{{1000, 0, 320, 0}, {0, 1000, 240, 0}, {0, 0, 1, 0}},
	}
	err := cam.Validate("cam")
	test.That(t, errors.Is(err, transform.ErrInvalidMatrixShape), test.ShouldBeTrue)
	test.That(t, err.Error(), test.ShouldContainSubstring, "new_k must be 3x3, got 2x3")

	cam.NewK = append(cam.NewK, []float64{0, 0, 1})
	test.That(t, cam.Validate("cam"), test.ShouldBeNil)
	p, err := cam.Projection()
	test.That(t, err, test.ShouldBeNil)
	rows, cols := p.Dims()
	test.That(t, rows, test.ShouldEqual, 3)
	test.That(t, cols, test.ShouldEqual, 4)

	cam.P[1] = []float64{0, 1000}
	test.That(t, errors.Is(cam.Validate("cam"), transform.ErrInvalidMatrixShape), test.ShouldBeTrue)

	cam = CameraParameters{Type: transform.CameraType(12), K: [][]float64{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}}}
	test.That(t, errors.Is(cam.Validate("cam"), transform.ErrUnsupportedCameraType), test.ShouldBeTrue)
}

func TestRead(t *testing.T) {
	t.Setenv("PANORAMA_TEST_QUEUE_SIZE", "3")
	dir := t.TempDir()
	path := filepath.Join(dir, "session.json")
	doc := `{
		"backend": "parallel",
		"log_level": "warn",
		"queue": {"size": ${PANORAMA_TEST_QUEUE_SIZE}, "policy": "evict_oldest"},
		"cameras": {
			"front": {"type": "pinhole", "k": [[1000, 0, 320], [0, 1000, 240], [0, 0, 1]], "distortion": [0.1, 0.01, 0, 0]}
		}
	}`
	test.That(t, os.WriteFile(path, []byte(doc), 0o600), test.ShouldBeNil)

	cfg, err := Read(path)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cfg.Queue.Size, test.ShouldEqual, 3)
	test.That(t, cfg.Queue.Policy, test.ShouldEqual, queue.EvictOldest)
	test.That(t, cfg.Cameras["front"].Distortion, test.ShouldHaveLength, 4)
	test.That(t, cfg.LogLevel, test.ShouldEqual, logging.WARN)

	_, err = FromReader(strings.NewReader(`{"log_level": "loud"}`))
	test.That(t, err, test.ShouldNotBeNil)

	_, err = FromReader(strings.NewReader(`{"backend": "sequential", "cameras": {"x": {"type": "pinhole"}}}`))
	test.That(t, err, test.ShouldNotBeNil)

	_, err = FromReader(strings.NewReader(`{"unknown": 1}`))
	test.That(t, err, test.ShouldNotBeNil)

	_, err = Read(filepath.Join(dir, "missing.json"))
	test.That(t, err, test.ShouldNotBeNil)
}
