package cli

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"go.viam.com/test"

	"go.viam.com/panorama/rimage/transform"
)

const testK = "1000,0,320,0,1000,240,0,0,1"

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	app := NewApp(strings.NewReader(stdin), &out)
	err := app.Run(append([]string{"panoproj"}, args...))
	return out.String(), err
}

func parseOutput(t *testing.T, out string) [][2]float64 {
	t.Helper()
	var pts [][2]float64
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		fields := strings.Fields(line)
		test.That(t, fields, test.ShouldHaveLength, 2)
		x, err := strconv.ParseFloat(fields[0], 64)
		test.That(t, err, test.ShouldBeNil)
		y, err := strconv.ParseFloat(fields[1], 64)
		test.That(t, err, test.ShouldBeNil)
		pts = append(pts, [2]float64{x, y})
	}
	return pts
}

func TestPix2CenterCommand(t *testing.T) {
	out, err := run(t, "320 240\n1320 240\n320\n-760\n", "pix2center", "--k", testK)
	test.That(t, err, test.ShouldBeNil)
	pts := parseOutput(t, out)
	test.That(t, pts, test.ShouldHaveLength, 3)
	want := [][2]float64{{0, 0}, {1, 0}, {0, -1}}
	for i := range want {
		test.That(t, pts[i][0], test.ShouldAlmostEqual, want[i][0], 1e-6)
		test.That(t, pts[i][1], test.ShouldAlmostEqual, want[i][1], 1e-6)
	}
}

func TestWorld2PixCommand(t *testing.T) {
	out, err := run(t, "0 0 5\n0 0 -5\n", "world2pix", "--k", testK, "--p", "1000,0,320,0,0,1000,240,0,0,0,1,0")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out, test.ShouldEqual, "320 240\nNaN NaN\n")

	_, err = run(t, "0 0 5\n", "world2pix", "--k", testK)
	test.That(t, errors.Is(err, transform.ErrInvalidMatrixShape), test.ShouldBeTrue)
}

func TestUndistortDistortCommands(t *testing.T) {
	args := []string{"--type", "fisheye", "--k", testK, "--distortion", "0.05,-0.01,0.002,-0.0005"}
	out, err := run(t, "10 20\n600 400\n", append([]string{"undistort"}, args...)...)
	test.That(t, err, test.ShouldBeNil)

	back, err := run(t, out, append([]string{"distort"}, args...)...)
	test.That(t, err, test.ShouldBeNil)
	pts := parseOutput(t, back)
	test.That(t, pts, test.ShouldHaveLength, 2)
	test.That(t, pts[0][0], test.ShouldAlmostEqual, 10, 1e-3)
	test.That(t, pts[0][1], test.ShouldAlmostEqual, 20, 1e-3)
	test.That(t, pts[1][0], test.ShouldAlmostEqual, 600, 1e-3)
	test.That(t, pts[1][1], test.ShouldAlmostEqual, 400, 1e-3)
}

func TestCommandErrors(t *testing.T) {
	_, err := run(t, "1 2 3", "pix2center", "--k", testK)
	test.That(t, err, test.ShouldNotBeNil)

	_, err = run(t, "1 x", "pix2center", "--k", testK)
	test.That(t, err, test.ShouldNotBeNil)

	_, err = run(t, "1 2", "pix2center", "--k", "1,2,3,4")
	test.That(t, errors.Is(err, transform.ErrInvalidMatrixShape), test.ShouldBeTrue)

	_, err = run(t, "1 2", "pix2center", "--k", "0,0,0,0,0,0,0,0,0")
	test.That(t, errors.Is(err, transform.ErrSingularMatrix), test.ShouldBeTrue)

	_, err = run(t, "1 2", "pix2center", "--type", "orthographic", "--k", testK)
	test.That(t, errors.Is(err, transform.ErrUnsupportedCameraType), test.ShouldBeTrue)

	_, err = run(t, "1 2", "pix2center")
	test.That(t, err, test.ShouldNotBeNil)

	_, err = run(t, "1 2", "--backend", "gpu", "pix2center", "--k", testK)
	test.That(t, err, test.ShouldNotBeNil)
}

func TestCompareCommand(t *testing.T) {
	out, err := run(t, "", "--backend", "parallel", "compare", "--points", "3000",
		"--type", "division", "--k", testK, "--distortion", "-0.2",
		"--p", "1000,0,320,0,0,1000,240,0,0,0,1,0")
	test.That(t, err, test.ShouldBeNil)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	test.That(t, lines, test.ShouldHaveLength, 4)
	for _, line := range lines {
		test.That(t, line, test.ShouldContainSubstring, "max=0 ")
		test.That(t, line, test.ShouldEndWith, "nan_mismatches=0")
	}

	_, err = run(t, "", "compare", "--points", "0", "--k", testK)
	test.That(t, err, test.ShouldNotBeNil)
}

func TestConfigCamera(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	doc := `{"cameras": {"front": {"type": "cylindrical", "k": [[1000, 0, 320], [0, 1000, 240], [0, 0, 1]]}}}`
	test.That(t, os.WriteFile(path, []byte(doc), 0o600), test.ShouldBeNil)

	out, err := run(t, "320 240", "--config", path, "pix2center", "--camera", "front")
	test.That(t, err, test.ShouldBeNil)
	pts := parseOutput(t, out)
	test.That(t, pts[0][0], test.ShouldAlmostEqual, 0, 1e-6)

	_, err = run(t, "320 240", "--config", path, "pix2center", "--camera", "back")
	test.That(t, err, test.ShouldNotBeNil)
}
