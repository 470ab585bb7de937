package linalg

import (
	"fmt"
	"math"
	"strings"
)

// Matrix is a dense row-major matrix of float64.
//
// A Matrix value holds a slice, so plain assignment shares storage. Use Clone
// for an independent copy. Every operation that returns a Matrix returns a
// freshly allocated one.
type Matrix struct {
	rows, cols int
	values     []float64
	empty      bool
}

// NewMatrix returns a zero-filled rows x cols matrix flagged as empty until a
// value is set.
func NewMatrix(rows, cols int) Matrix {
	if rows < 0 {
		rows = 0
	}
	if cols < 0 {
		cols = 0
	}
	return Matrix{rows: rows, cols: cols, values: make([]float64, rows*cols), empty: true}
}

// NewMatrixFrom copies values (row-major) into a new rows x cols matrix.
func NewMatrixFrom(rows, cols int, values []float64) (Matrix, error) {
	if rows < 0 || cols < 0 || len(values) != rows*cols {
		return Matrix{}, fmt.Errorf("%w: %d values for a %dx%d matrix", ErrDimensionMismatch, len(values), rows, cols)
	}
	m := Matrix{rows: rows, cols: cols, values: make([]float64, len(values))}
	copy(m.values, values)
	return m, nil
}

// Identity returns the n x n identity matrix.
func Identity(n int) Matrix {
	m := NewMatrix(n, n)
	for i := 0; i < n; i++ {
		m.values[i+i*n] = 1
	}
	m.empty = false
	return m
}

func (m Matrix) Rows() int { return m.rows }
func (m Matrix) Cols() int { return m.cols }

// IsEmpty reports whether the matrix has no storage or was never written.
func (m Matrix) IsEmpty() bool { return m.empty || len(m.values) == 0 }

func (m Matrix) IsSquare() bool { return m.rows == m.cols }

// At returns the value at (row, col). It panics on out-of-range indices like
// a slice access would.
func (m Matrix) At(row, col int) float64 {
	m.checkIndex(row, col)
	return m.values[col+row*m.cols]
}

// Set writes v at (row, col) and clears the empty flag.
func (m *Matrix) Set(row, col int, v float64) {
	m.checkIndex(row, col)
	m.values[col+row*m.cols] = v
	m.empty = false
}

func (m Matrix) checkIndex(row, col int) {
	if row < 0 || row >= m.rows || col < 0 || col >= m.cols {
		panic(fmt.Sprintf("linalg: index (%d,%d) out of range for %dx%d matrix", row, col, m.rows, m.cols))
	}
}

// Clone returns a deep copy.
func (m Matrix) Clone() Matrix {
	out := Matrix{rows: m.rows, cols: m.cols, empty: m.empty, values: make([]float64, len(m.values))}
	copy(out.values, m.values)
	return out
}

// RawValues returns a copy of the row-major values.
func (m Matrix) RawValues() []float64 {
	out := make([]float64, len(m.values))
	copy(out, m.values)
	return out
}

func (m Matrix) Transposed() Matrix {
	out := Matrix{rows: m.cols, cols: m.rows, empty: m.empty, values: make([]float64, len(m.values))}
	for r := 0; r < m.rows; r++ {
		for c := 0; c < m.cols; c++ {
			out.values[r+c*out.cols] = m.values[c+r*m.cols]
		}
	}
	return out
}

// Scale multiplies every element by s in place.
func (m *Matrix) Scale(s float64) {
	for i := range m.values {
		m.values[i] *= s
	}
}

// Determinant uses partial-pivot Gaussian elimination for n > 2.
//
// A pivot that is exactly zero yields a determinant of exactly zero. There is
// no tolerance, so a nearly singular matrix may still report a tiny non-zero
// determinant, and a matrix whose elimination happens to produce an exact zero
// pivot reports 0.
func (m Matrix) Determinant() (float64, error) {
	if !m.IsSquare() {
		return 0, fmt.Errorf("%w: determinant of %dx%d matrix", ErrNonSquareMatrix, m.rows, m.cols)
	}
	if len(m.values) == 0 {
		return 0, ErrEmptyMatrix
	}
	n := m.rows
	switch n {
	case 1:
		return m.values[0], nil
	case 2:
		return m.values[0]*m.values[3] - m.values[1]*m.values[2], nil
	}

	a := m.RawValues()
	det := 1.0
	for i := 0; i < n; i++ {
		pivot := i
		for k := i + 1; k < n; k++ {
			if math.Abs(a[i+k*n]) > math.Abs(a[i+pivot*n]) {
				pivot = k
			}
		}
		if pivot != i {
			for c := 0; c < n; c++ {
				a[c+i*n], a[c+pivot*n] = a[c+pivot*n], a[c+i*n]
			}
			det = -det
		}
		p := a[i+i*n]
		if p == 0 {
			return 0, nil
		}
		det *= p
		for k := i + 1; k < n; k++ {
			f := a[i+k*n] / p
			for c := i; c < n; c++ {
				a[c+k*n] -= f * a[c+i*n]
			}
		}
	}
	return det, nil
}

// minor returns m without the given row and column.
func (m Matrix) minor(row, col int) Matrix {
	out := NewMatrix(m.rows-1, m.cols-1)
	i := 0
	for r := 0; r < m.rows; r++ {
		if r == row {
			continue
		}
		for c := 0; c < m.cols; c++ {
			if c == col {
				continue
			}
			out.values[i] = m.values[c+r*m.cols]
			i++
		}
	}
	out.empty = false
	return out
}

func (m Matrix) Cofactor() (Matrix, error) {
	if !m.IsSquare() {
		return Matrix{}, fmt.Errorf("%w: cofactor of %dx%d matrix", ErrNonSquareMatrix, m.rows, m.cols)
	}
	if len(m.values) == 0 {
		return Matrix{}, ErrEmptyMatrix
	}
	out := NewMatrix(m.rows, m.cols)
	if m.rows == 1 {
		// The minor of a 1x1 matrix is 0x0, whose determinant is 1.
		out.Set(0, 0, 1)
		return out, nil
	}
	for r := 0; r < m.rows; r++ {
		for c := 0; c < m.cols; c++ {
			det, err := m.minor(r, c).Determinant()
			if err != nil {
				return Matrix{}, err
			}
			if (r+c)%2 == 1 {
				det = -det
			}
			out.Set(r, c, det)
		}
	}
	return out, nil
}

func (m Matrix) Inverted() (Matrix, error) {
	det, err := m.Determinant()
	if err != nil {
		return Matrix{}, err
	}
	if det == 0 || math.IsNaN(det) || math.IsInf(det, 0) {
		return Matrix{}, fmt.Errorf("%w: determinant is %v", ErrSingularMatrix, det)
	}
	cof, err := m.Cofactor()
	if err != nil {
		return Matrix{}, err
	}
	inv := cof.Transposed()
	inv.Scale(1 / det)
	return inv, nil
}

// Multiply returns l*r.
func Multiply(l, r Matrix) (Matrix, error) {
	var out Matrix
	if err := MultiplyInto(&out, l, r); err != nil {
		return Matrix{}, err
	}
	return out, nil
}

// MultiplyInto stores l*r in dst. dst may alias l or r.
func MultiplyInto(dst *Matrix, l, r Matrix) error {
	if dst == nil {
		return fmt.Errorf("linalg: nil destination")
	}
	if l.cols != r.rows {
		return fmt.Errorf("%w: multiply %dx%d by %dx%d", ErrDimensionMismatch, l.rows, l.cols, r.rows, r.cols)
	}
	out := NewMatrix(l.rows, r.cols)
	for i := 0; i < l.rows; i++ {
		for j := 0; j < r.cols; j++ {
			var acc float64
			for k := 0; k < l.cols; k++ {
				acc += l.values[k+i*l.cols] * r.values[j+k*r.cols]
			}
			out.values[j+i*out.cols] = acc
		}
	}
	out.empty = l.IsEmpty() && r.IsEmpty()
	*dst = out
	return nil
}

func Sum(l, r Matrix) (Matrix, error) {
	var out Matrix
	if err := SumInto(&out, l, r); err != nil {
		return Matrix{}, err
	}
	return out, nil
}

func SumInto(dst *Matrix, l, r Matrix) error {
	return elementwise(dst, l, r, "sum", func(a, b float64) float64 { return a + b })
}

func Subtract(l, r Matrix) (Matrix, error) {
	var out Matrix
	if err := SubtractInto(&out, l, r); err != nil {
		return Matrix{}, err
	}
	return out, nil
}

func SubtractInto(dst *Matrix, l, r Matrix) error {
	return elementwise(dst, l, r, "subtract", func(a, b float64) float64 { return a - b })
}

func elementwise(dst *Matrix, l, r Matrix, op string, fn func(a, b float64) float64) error {
	if dst == nil {
		return fmt.Errorf("linalg: nil destination")
	}
	if l.rows != r.rows || l.cols != r.cols {
		return fmt.Errorf("%w: %s %dx%d and %dx%d", ErrDimensionMismatch, op, l.rows, l.cols, r.rows, r.cols)
	}
	out := NewMatrix(l.rows, l.cols)
	for i := range out.values {
		out.values[i] = fn(l.values[i], r.values[i])
	}
	out.empty = l.IsEmpty() && r.IsEmpty()
	*dst = out
	return nil
}

// Equal reports exact element-wise equality. Callers that need a tolerance
// compare values themselves.
func Equal(l, r Matrix) bool {
	if l.rows != r.rows || l.cols != r.cols {
		return false
	}
	for i := range l.values {
		if l.values[i] != r.values[i] {
			return false
		}
	}
	return true
}

func (m Matrix) String() string {
	var sb strings.Builder
	sb.WriteByte('[')
	for r := 0; r < m.rows; r++ {
		if r > 0 {
			sb.WriteString("; ")
		}
		for c := 0; c < m.cols; c++ {
			if c > 0 {
				sb.WriteString(", ")
			}
			fmt.Fprintf(&sb, "%g", m.values[c+r*m.cols])
		}
	}
	sb.WriteByte(']')
	return sb.String()
}
