package stats

import (
	"errors"
	"fmt"
	"math"
)

// PivotTolerance is the smallest pivot accepted during inversion.
const PivotTolerance = 1e-10

var (
	ErrSingular        = errors.New("matrix is singular")
	ErrUnderdetermined = errors.New("fewer rows than columns")
	ErrDimension       = errors.New("dimension mismatch")
)

// Matrix is a dense row-major matrix.
type Matrix [][]float64

func NewMatrix(rows, cols int) Matrix {
	m := make(Matrix, rows)
	for i := range m {
		m[i] = make([]float64, cols)
	}
	return m
}

func (m Matrix) Rows() int { return len(m) }

func (m Matrix) Cols() int {
	if len(m) == 0 {
		return 0
	}
	return len(m[0])
}

func Transpose(m Matrix) Matrix {
	t := NewMatrix(m.Cols(), m.Rows())
	for i, row := range m {
		for j, v := range row {
			t[j][i] = v
		}
	}
	return t
}

func Multiply(a, b Matrix) (Matrix, error) {
	if a.Cols() != b.Rows() {
		return nil, fmt.Errorf("%w: %dx%d * %dx%d", ErrDimension, a.Rows(), a.Cols(), b.Rows(), b.Cols())
	}
	out := NewMatrix(a.Rows(), b.Cols())
	for i := range a {
		for k, aik := range a[i] {
			if aik == 0 {
				continue
			}
			for j := range b[k] {
				out[i][j] += aik * b[k][j]
			}
		}
	}
	return out, nil
}

func MultiplyVec(a Matrix, v []float64) ([]float64, error) {
	if a.Cols() != len(v) {
		return nil, fmt.Errorf("%w: %dx%d * %d", ErrDimension, a.Rows(), a.Cols(), len(v))
	}
	out := make([]float64, a.Rows())
	for i, row := range a {
		for j, x := range row {
			out[i] += x * v[j]
		}
	}
	return out, nil
}

// Inverse computes the inverse of a square matrix by Gauss-Jordan
// elimination with partial pivoting. A pivot below PivotTolerance yields
// ErrSingular rather than an unstable result.
func Inverse(m Matrix) (Matrix, error) {
	n := m.Rows()
	if n == 0 || m.Cols() != n {
		return nil, fmt.Errorf("%w: inverse of %dx%d", ErrDimension, n, m.Cols())
	}

	aug := NewMatrix(n, 2*n)
	for i := 0; i < n; i++ {
		copy(aug[i], m[i])
		aug[i][n+i] = 1
	}

	for col := 0; col < n; col++ {
		pivot := col
		for r := col + 1; r < n; r++ {
			if math.Abs(aug[r][col]) > math.Abs(aug[pivot][col]) {
				pivot = r
			}
		}
		if math.Abs(aug[pivot][col]) < PivotTolerance {
			return nil, fmt.Errorf("%w: pivot %d", ErrSingular, col)
		}
		aug[col], aug[pivot] = aug[pivot], aug[col]

		p := aug[col][col]
		for j := range aug[col] {
			aug[col][j] /= p
		}

		for r := 0; r < n; r++ {
			if r == col {
				continue
			}
			f := aug[r][col]
			if f == 0 {
				continue
			}
			for j := range aug[r] {
				aug[r][j] -= f * aug[col][j]
			}
		}
	}

	inv := NewMatrix(n, n)
	for i := range inv {
		copy(inv[i], aug[i][n:])
	}
	return inv, nil
}

// LeastSquares solves β = (XᵀX)⁻¹Xᵀy. X must have at least as many rows as
// columns.
func LeastSquares(x Matrix, y []float64) ([]float64, error) {
	if x.Rows() != len(y) {
		return nil, fmt.Errorf("%w: %d rows, %d targets", ErrDimension, x.Rows(), len(y))
	}
	if x.Rows() < x.Cols() {
		return nil, fmt.Errorf("%w: %d rows, %d columns", ErrUnderdetermined, x.Rows(), x.Cols())
	}

	xt := Transpose(x)
	xtx, err := Multiply(xt, x)
	if err != nil {
		return nil, err
	}
	inv, err := Inverse(xtx)
	if err != nil {
		return nil, err
	}
	xty, err := MultiplyVec(xt, y)
	if err != nil {
		return nil, err
	}
	return MultiplyVec(inv, xty)
}

// Dot is the inner product of equal-length vectors.
func Dot(a, b []float64) float64 {
	var s float64
	for i := range a {
		s += a[i] * b[i]
	}
	return s
}
