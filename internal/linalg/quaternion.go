package linalg

import (
	"fmt"
	"math"
)

// Quaternion is a rotation quaternion in (w, x, y, z) order.
type Quaternion struct {
	W, X, Y, Z float64
}

// IdentityQuaternion is the no-rotation quaternion (1, 0, 0, 0).
func IdentityQuaternion() Quaternion { return Quaternion{W: 1} }

func QuaternionFromValues(v [4]float64) Quaternion {
	return Quaternion{W: v[0], X: v[1], Y: v[2], Z: v[3]}
}

func QuaternionFromVector(v Vector) (Quaternion, error) {
	if v.Len() != 4 {
		return Quaternion{}, fmt.Errorf("%w: quaternion needs 4 rows, got %d", ErrDimensionMismatch, v.Len())
	}
	return Quaternion{W: v.At(0), X: v.At(1), Y: v.At(2), Z: v.At(3)}, nil
}

func QuaternionFromMatrix(m Matrix) (Quaternion, error) {
	v, err := VectorFromMatrix(m)
	if err != nil {
		return Quaternion{}, err
	}
	return QuaternionFromVector(v)
}

// PureQuaternion returns (0, x, y, z).
func PureQuaternion(x, y, z float64) Quaternion {
	return Quaternion{X: x, Y: y, Z: z}
}

func (q Quaternion) Values() [4]float64 { return [4]float64{q.W, q.X, q.Y, q.Z} }

func (q Quaternion) Vector() Vector { return VectorOf(q.W, q.X, q.Y, q.Z) }

func (q Quaternion) Norm() float64 {
	return math.Sqrt(q.W*q.W + q.X*q.X + q.Y*q.Y + q.Z*q.Z)
}

func (q *Quaternion) Normalize() error {
	n := q.Norm()
	if n < normEpsilon || math.IsNaN(n) || math.IsInf(n, 0) {
		return fmt.Errorf("%w: quaternion norm %v", ErrDegenerateNormalize, n)
	}
	q.Scale(1 / n)
	return nil
}

func (q *Quaternion) Scale(s float64) {
	q.W *= s
	q.X *= s
	q.Y *= s
	q.Z *= s
}

// Conjugate negates the vector part in place.
func (q *Quaternion) Conjugate() {
	q.X = -q.X
	q.Y = -q.Y
	q.Z = -q.Z
}

// Conjugated returns a conjugated copy.
func (q Quaternion) Conjugated() Quaternion {
	q.Conjugate()
	return q
}

// Hamilton returns the Hamilton product l*r.
func Hamilton(l, r Quaternion) Quaternion {
	return Quaternion{
		W: l.W*r.W - l.X*r.X - l.Y*r.Y - l.Z*r.Z,
		X: l.W*r.X + l.X*r.W + l.Y*r.Z - l.Z*r.Y,
		Y: l.W*r.Y - l.X*r.Z + l.Y*r.W + l.Z*r.X,
		Z: l.W*r.Z + l.X*r.Y - l.Y*r.X + l.Z*r.W,
	}
}

func (q Quaternion) Add(o Quaternion) Quaternion {
	return Quaternion{W: q.W + o.W, X: q.X + o.X, Y: q.Y + o.Y, Z: q.Z + o.Z}
}

func (q Quaternion) Sub(o Quaternion) Quaternion {
	return Quaternion{W: q.W - o.W, X: q.X - o.X, Y: q.Y - o.Y, Z: q.Z - o.Z}
}

// Rotate returns q * [0,v] * conj(q) as a 3-vector.
func (q Quaternion) Rotate(x, y, z float64) (float64, float64, float64) {
	h := Hamilton(Hamilton(q, PureQuaternion(x, y, z)), q.Conjugated())
	return h.X, h.Y, h.Z
}

func (q Quaternion) RotationMatrix() Matrix {
	w, x, y, z := q.W, q.X, q.Y, q.Z
	m, _ := NewMatrixFrom(3, 3, []float64{
		1 - 2*(y*y+z*z), 2 * (x*y - w*z), 2 * (x*z + w*y),
		2 * (x*y + w*z), 1 - 2*(x*x+z*z), 2 * (y*z - w*x),
		2 * (x*z - w*y), 2 * (y*z + w*x), 1 - 2*(x*x+y*y),
	})
	return m
}

// EulerAngles extracts roll, pitch and yaw from the rotation matrix. The
// negated atan2/asin terms are part of the wire convention hosts expect.
func (q Quaternion) EulerAngles() EulerAngles {
	r := q.RotationMatrix()
	return EulerAngles{
		Roll:  -math.Atan2(r.At(2, 1), r.At(2, 2)),
		Pitch: -math.Asin(clampUnit(-r.At(2, 0))),
		Yaw:   -math.Atan2(r.At(1, 0), r.At(0, 0)),
	}
}

func clampUnit(v float64) float64 {
	return math.Max(-1, math.Min(1, v))
}

func (q Quaternion) String() string {
	return fmt.Sprintf("(%g, %g, %g, %g)", q.W, q.X, q.Y, q.Z)
}
