package transform

import (
	"math"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
)

// Point2D is an image or normalized-plane coordinate in single precision.
type Point2D struct {
	X float32 `json:"x"`
	Y float32 `json:"y"`
}

// Point3D is a world coordinate in single precision.
type Point3D struct {
	X float32 `json:"x"`
	Y float32 `json:"y"`
	Z float32 `json:"z"`
}

// IsNaN reports whether either coordinate is NaN, which is how points without an image are marked.
func (p Point2D) IsNaN() bool {
	return math.IsNaN(float64(p.X)) || math.IsNaN(float64(p.Y))
}

// Point2DFromR2 narrows an r2.Point.
func Point2DFromR2(p r2.Point) Point2D {
	return Point2D{X: float32(p.X), Y: float32(p.Y)}
}

// Point3DFromR3 narrows an r3.Vector.
func Point3DFromR3(v r3.Vector) Point3D {
	return Point3D{X: float32(v.X), Y: float32(v.Y), Z: float32(v.Z)}
}

func packPoints2D(pts []Point2D) []float32 {
	buf := make([]float32, 2*len(pts))
	for i, p := range pts {
		buf[2*i] = p.X
		buf[2*i+1] = p.Y
	}
	return buf
}

func packPoints3D(pts []Point3D) []float32 {
	buf := make([]float32, 3*len(pts))
	for i, p := range pts {
		buf[3*i] = p.X
		buf[3*i+1] = p.Y
		buf[3*i+2] = p.Z
	}
	return buf
}

func unpackPoints2D(buf []float32) []Point2D {
	pts := make([]Point2D, len(buf)/2)
	for i := range pts {
		pts[i] = Point2D{X: buf[2*i], Y: buf[2*i+1]}
	}
	return pts
}
