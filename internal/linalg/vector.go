package linalg

import (
	"fmt"
	"math"
)

// Vector is a column matrix.
type Vector struct {
	m Matrix
}

func NewVector(n int) Vector {
	return Vector{m: NewMatrix(n, 1)}
}

func VectorOf(values ...float64) Vector {
	v := Vector{m: NewMatrix(len(values), 1)}
	copy(v.m.values, values)
	v.m.empty = len(values) == 0
	return v
}

// VectorFromMatrix copies a single-column matrix into a Vector.
func VectorFromMatrix(m Matrix) (Vector, error) {
	if m.cols != 1 {
		return Vector{}, fmt.Errorf("%w: vector needs 1 column, got %dx%d", ErrDimensionMismatch, m.rows, m.cols)
	}
	return Vector{m: m.Clone()}, nil
}

func (v Vector) Len() int      { return v.m.rows }
func (v Vector) IsEmpty() bool { return v.m.IsEmpty() }

func (v Vector) At(i int) float64 { return v.m.At(i, 0) }

// Set writes x at row i and clears the empty flag.
func (v *Vector) Set(i int, x float64) { v.m.Set(i, 0, x) }

// Matrix returns the vector as an independent Nx1 matrix.
func (v Vector) Matrix() Matrix { return v.m.Clone() }

func (v Vector) Values() []float64 { return v.m.RawValues() }

func (v Vector) Clone() Vector { return Vector{m: v.m.Clone()} }

func (v *Vector) Scale(s float64) { v.m.Scale(s) }

func (v Vector) Norm() float64 {
	var sum float64
	for _, x := range v.m.values {
		sum += x * x
	}
	return math.Sqrt(sum)
}

// Normalize scales v to unit length. The vector is left unchanged when its
// norm is too small to divide by.
func (v *Vector) Normalize() error {
	n := v.Norm()
	if n < normEpsilon || math.IsNaN(n) || math.IsInf(n, 0) {
		return fmt.Errorf("%w: norm %v", ErrDegenerateNormalize, n)
	}
	v.m.Scale(1 / n)
	return nil
}

func ProductElementwise(l, r Vector) (Vector, error) {
	if l.Len() != r.Len() {
		return Vector{}, fmt.Errorf("%w: elementwise product of %d and %d rows", ErrDimensionMismatch, l.Len(), r.Len())
	}
	out := NewVector(l.Len())
	for i := range out.m.values {
		out.m.values[i] = l.m.values[i] * r.m.values[i]
	}
	out.m.empty = l.IsEmpty() && r.IsEmpty()
	return out, nil
}

func (v Vector) String() string { return v.m.Transposed().String() }
