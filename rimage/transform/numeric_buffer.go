package transform

import (
	"fmt"
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// NumericBuffer is the single precision, contiguous, row-major form of a matrix or coefficient
// vector as it is handed to a compute backend. Element (i, j) is Data[i*Cols+j].
type NumericBuffer struct {
	Rows int
	Cols int
	Data []float32
}

// CheckValid checks that the buffer is contiguous for its shape and holds only finite values.
func (b *NumericBuffer) CheckValid() error {
	if b == nil {
		return errors.Wrap(ErrInvalidMatrixShape, "buffer is nil")
	}
	if b.Rows < 0 || b.Cols < 0 || len(b.Data) != b.Rows*b.Cols {
		return errors.Wrapf(ErrInvalidMatrixShape, "buffer of %d values cannot be %dx%d", len(b.Data), b.Rows, b.Cols)
	}
	for i, v := range b.Data {
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
			return errors.Wrapf(ErrInvalidMatrixShape, "element (%d, %d) is not finite", i/b.Cols, i%b.Cols)
		}
	}
	return nil
}

// At returns element (i, j).
func (b *NumericBuffer) At(i, j int) float32 {
	return b.Data[i*b.Cols+j]
}

// Float64 returns the values widened to float64, row-major.
func (b *NumericBuffer) Float64() []float64 {
	data := make([]float64, len(b.Data))
	for i, v := range b.Data {
		data[i] = float64(v)
	}
	return data
}

// Dense widens the buffer back into a gonum matrix.
func (b *NumericBuffer) Dense() *mat.Dense {
	return mat.NewDense(b.Rows, b.Cols, b.Float64())
}

// Float is the set of element types a caller may hold matrices in.
type Float interface {
	~float32 | ~float64
}

// NewMatrix builds a gonum matrix from rows of any float type. Rows must be non-empty and of
// equal length.
func NewMatrix[T Float](rows [][]T) (*mat.Dense, error) {
	if len(rows) == 0 || len(rows[0]) == 0 {
		return nil, errors.Wrap(ErrInvalidMatrixShape, "matrix has no elements")
	}
	cols := len(rows[0])
	data := make([]float64, 0, len(rows)*cols)
	for i, row := range rows {
		if len(row) != cols {
			return nil, errors.Wrapf(ErrInvalidMatrixShape, "row %d has %d columns, expected %d", i, len(row), cols)
		}
		for _, v := range row {
			data = append(data, float64(v))
		}
	}
	return mat.NewDense(len(rows), cols, data), nil
}

// PrepareMatrix checks that m is rows x cols and converts it to a NumericBuffer. Values that do not
// survive the conversion to float32 are rejected.
func PrepareMatrix(name string, m mat.Matrix, rows, cols int) (*NumericBuffer, error) {
	if m == nil {
		return nil, errors.Wrapf(ErrInvalidMatrixShape, "%s is nil", name)
	}
	gotRows, gotCols := m.Dims()
	if gotRows != rows || gotCols != cols {
		return nil, NewInvalidMatrixShapeError(name, rows, cols, gotRows, gotCols)
	}
	buf := &NumericBuffer{Rows: rows, Cols: cols, Data: make([]float32, rows*cols)}
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			buf.Data[i*cols+j] = float32(m.At(i, j))
		}
	}
	if err := buf.CheckValid(); err != nil {
		return nil, errors.Wrap(err, name)
	}
	return buf, nil
}

// PrepareOptions holds the thresholds used when a matrix must be inverted.
type PrepareOptions struct {
	// MinAbsDeterminant rejects matrices whose |det| is at or below it. Zero rejects only an
	// exactly zero determinant.
	MinAbsDeterminant float64 `json:"min_abs_determinant"`
	// MaxConditionNumber rejects matrices whose condition number exceeds it. Zero uses
	// DefaultMaxConditionNumber.
	MaxConditionNumber float64 `json:"max_condition_number"`
}

// DefaultMaxConditionNumber is the 2-norm condition number above which a matrix is treated as
// singular.
const DefaultMaxConditionNumber = 1e7

// DefaultPrepareOptions returns the default inversion thresholds.
func DefaultPrepareOptions() PrepareOptions {
	return PrepareOptions{MaxConditionNumber: DefaultMaxConditionNumber}
}

// Intrinsics is a prepared 3x3 intrinsic matrix and, when requested, its inverse.
type Intrinsics struct {
	K *NumericBuffer

	// inverse of the single precision K, in double precision.
	inverse []float64
}

// Inverse returns K⁻¹ as computed from the single precision K, or nil when the intrinsics were
// prepared without inversion. Kernels apply this matrix in double precision.
func (in *Intrinsics) Inverse() *mat.Dense {
	if in.inverse == nil {
		return nil
	}
	return mat.NewDense(3, 3, append([]float64(nil), in.inverse...))
}

// PrepareIntrinsics checks that k is 3x3 and converts it. When invert is set it also inverts the
// converted matrix in double precision and rejects matrices that are singular under opts. The
// inverse is never rounded to float32.
func PrepareIntrinsics(name string, k mat.Matrix, invert bool, opts PrepareOptions) (*Intrinsics, error) {
	buf, err := PrepareMatrix(name, k, 3, 3)
	if err != nil {
		return nil, err
	}
	prepared := &Intrinsics{K: buf}
	if !invert {
		return prepared, nil
	}
	inv, err := invert3x3(name, buf.Dense(), opts)
	if err != nil {
		return nil, err
	}
	prepared.inverse = mat.DenseCopyOf(inv).RawMatrix().Data
	return prepared, nil
}

func invert3x3(name string, k *mat.Dense, opts PrepareOptions) (*mat.Dense, error) {
	det := mat.Det(k)
	if math.IsNaN(det) || math.Abs(det) <= opts.MinAbsDeterminant || det == 0 {
		return nil, NewSingularMatrixError(name, fmt.Sprintf("determinant is %g", det))
	}
	maxCond := opts.MaxConditionNumber
	if maxCond <= 0 {
		maxCond = DefaultMaxConditionNumber
	}
	if cond := mat.Cond(k, 2); math.IsInf(cond, 0) || math.IsNaN(cond) || cond > maxCond {
		return nil, NewSingularMatrixError(name, fmt.Sprintf("condition number %g exceeds %g", cond, maxCond))
	}
	var inv mat.Dense
	if err := inv.Inverse(k); err != nil {
		return nil, NewSingularMatrixError(name, err.Error())
	}
	return &inv, nil
}

// PrepareProjection checks that p is 3x4 and converts it.
func PrepareProjection(name string, p mat.Matrix) (*NumericBuffer, error) {
	return PrepareMatrix(name, p, 3, 4)
}

// PrepareDistortion checks coefficients against cameraType and converts them to a 1xN buffer.
func PrepareDistortion(cameraType CameraType, coefficients []float64) (*NumericBuffer, error) {
	if err := checkCoefficientCount(cameraType, len(coefficients)); err != nil {
		return nil, err
	}
	buf := &NumericBuffer{Rows: 1, Cols: len(coefficients), Data: make([]float32, len(coefficients))}
	for i, c := range coefficients {
		buf.Data[i] = float32(c)
	}
	if err := buf.CheckValid(); err != nil {
		return nil, errors.Wrapf(err, "%v distortion", cameraType)
	}
	return buf, nil
}

// Distorter returns the model for cameraType built from the prepared coefficients.
func (b *NumericBuffer) Distorter(cameraType CameraType) (Distorter, error) {
	coefficients := make([]float64, len(b.Data))
	for i, v := range b.Data {
		coefficients[i] = float64(v)
	}
	return NewDistorter(cameraType, coefficients)
}

// PrepareExtrinsics removes the intrinsics from a prepared projection matrix P = K[R|t], returning
// the 3x4 buffer K⁻¹·P that takes world points to camera coordinates.
func PrepareExtrinsics(k *Intrinsics, p *NumericBuffer) (*NumericBuffer, error) {
	if k == nil || k.inverse == nil {
		return nil, errors.Wrap(ErrSingularMatrix, "intrinsics were prepared without an inverse")
	}
	if err := p.CheckValid(); err != nil {
		return nil, err
	}
	if p.Rows != 3 || p.Cols != 4 {
		return nil, NewInvalidMatrixShapeError("P", 3, 4, p.Rows, p.Cols)
	}
	var rt mat.Dense
	rt.Mul(mat.NewDense(3, 3, k.inverse), p.Dense())
	return PrepareMatrix("extrinsics", &rt, 3, 4)
}
