package linalg

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"gonum.org/v1/gonum/num/quat"
)

func randomUnitQuaternion(rng *rand.Rand) Quaternion {
	for {
		q := Quaternion{W: rng.NormFloat64(), X: rng.NormFloat64(), Y: rng.NormFloat64(), Z: rng.NormFloat64()}
		if err := q.Normalize(); err == nil {
			return q
		}
	}
}

func toNumber(q Quaternion) quat.Number {
	return quat.Number{Real: q.W, Imag: q.X, Jmag: q.Y, Kmag: q.Z}
}

func quatClose(a, b Quaternion, tol float64) bool {
	return math.Abs(a.W-b.W) <= tol && math.Abs(a.X-b.X) <= tol && math.Abs(a.Y-b.Y) <= tol && math.Abs(a.Z-b.Z) <= tol
}

func TestVector_Normalize(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	for i := 0; i < 100; i++ {
		v := VectorOf(rng.NormFloat64()*100, rng.NormFloat64(), rng.NormFloat64()*1e-3)
		if err := v.Normalize(); err != nil {
			t.Fatalf("Normalize() error: %v", err)
		}
		if n := v.Norm(); math.Abs(n-1) > 1e-5 {
			t.Fatalf("norm=%v want 1", n)
		}
	}
}

func TestVector_NormalizeZeroFails(t *testing.T) {
	v := VectorOf(0, 0, 0)
	err := v.Normalize()
	if !errors.Is(err, ErrDegenerateNormalize) {
		t.Fatalf("err=%v want %v", err, ErrDegenerateNormalize)
	}
	for i := 0; i < v.Len(); i++ {
		if v.At(i) != 0 {
			t.Fatalf("vector modified on failed normalize: %v", v)
		}
	}
}

func TestProductElementwise(t *testing.T) {
	got, err := ProductElementwise(VectorOf(1, 2, 3), VectorOf(1, -1, 2))
	if err != nil {
		t.Fatalf("ProductElementwise() error: %v", err)
	}
	if want := []float64{1, -2, 6}; got.Len() != 3 || got.At(0) != want[0] || got.At(1) != want[1] || got.At(2) != want[2] {
		t.Fatalf("product=%v want %v", got, want)
	}
	if _, err := ProductElementwise(VectorOf(1, 2), VectorOf(1, 2, 3)); !errors.Is(err, ErrDimensionMismatch) {
		t.Fatalf("err=%v want %v", err, ErrDimensionMismatch)
	}
}

func TestVectorFromMatrix_RequiresOneColumn(t *testing.T) {
	if _, err := VectorFromMatrix(NewMatrix(2, 2)); !errors.Is(err, ErrDimensionMismatch) {
		t.Fatalf("err=%v want %v", err, ErrDimensionMismatch)
	}
	m, _ := NewMatrixFrom(4, 1, []float64{1, 2, 3, 4})
	q, err := QuaternionFromMatrix(m)
	if err != nil {
		t.Fatalf("QuaternionFromMatrix() error: %v", err)
	}
	if q != (Quaternion{W: 1, X: 2, Y: 3, Z: 4}) {
		t.Fatalf("q=%v want (1, 2, 3, 4)", q)
	}
	if _, err := QuaternionFromVector(VectorOf(1, 2, 3)); !errors.Is(err, ErrDimensionMismatch) {
		t.Fatalf("err=%v want %v", err, ErrDimensionMismatch)
	}
}

func TestHamilton_IdentityIsNeutral(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	id := IdentityQuaternion()
	for i := 0; i < 100; i++ {
		q := randomUnitQuaternion(rng)
		if got := Hamilton(q, id); got != q {
			t.Fatalf("q*1=%v want %v", got, q)
		}
		if got := Hamilton(id, q); got != q {
			t.Fatalf("1*q=%v want %v", got, q)
		}
	}
}

func TestHamilton_MatchesGonum(t *testing.T) {
	rng := rand.New(rand.NewSource(9))
	for i := 0; i < 100; i++ {
		l, r := randomUnitQuaternion(rng), randomUnitQuaternion(rng)
		got := Hamilton(l, r)
		n := quat.Mul(toNumber(l), toNumber(r))
		want := Quaternion{W: n.Real, X: n.Imag, Y: n.Jmag, Z: n.Kmag}
		if !quatClose(got, want, 1e-12) {
			t.Fatalf("l*r=%v want %v", got, want)
		}
	}
}

// Composing rotations by quaternion product must match composing their
// rotation matrices.
func TestHamilton_ComposesRotations(t *testing.T) {
	rng := rand.New(rand.NewSource(13))
	for i := 0; i < 100; i++ {
		a, b := randomUnitQuaternion(rng), randomUnitQuaternion(rng)
		got := Hamilton(a, b).RotationMatrix()
		want, err := Multiply(a.RotationMatrix(), b.RotationMatrix())
		if err != nil {
			t.Fatalf("Multiply() error: %v", err)
		}
		for r := 0; r < 3; r++ {
			for c := 0; c < 3; c++ {
				if d := math.Abs(got.At(r, c) - want.At(r, c)); d > 1e-9 {
					t.Fatalf("R(a*b)(%d,%d)=%v want %v", r, c, got.At(r, c), want.At(r, c))
				}
			}
		}
	}
}

func TestConjugate_NegatesEachAxis(t *testing.T) {
	q := Quaternion{W: 1, X: 2, Y: 3, Z: 4}
	q.Conjugate()
	if q != (Quaternion{W: 1, X: -2, Y: -3, Z: -4}) {
		t.Fatalf("conjugate=%v want (1, -2, -3, -4)", q)
	}
	n := quat.Conj(toNumber(Quaternion{W: 1, X: 2, Y: 3, Z: 4}))
	if q != (Quaternion{W: n.Real, X: n.Imag, Y: n.Jmag, Z: n.Kmag}) {
		t.Fatalf("conjugate=%v disagrees with gonum %v", q, n)
	}
}

func TestQuaternion_NormalizeZeroFails(t *testing.T) {
	var q Quaternion
	if err := q.Normalize(); !errors.Is(err, ErrDegenerateNormalize) {
		t.Fatalf("err=%v want %v", err, ErrDegenerateNormalize)
	}
}

func TestQuaternion_RotateByConjugateRoundTrip(t *testing.T) {
	// 90 degrees about z.
	q := Quaternion{W: math.Cos(math.Pi / 4), Z: math.Sin(math.Pi / 4)}
	x, y, z := q.Rotate(1, 0, 0)
	if math.Abs(x) > 1e-12 || math.Abs(y-1) > 1e-12 || math.Abs(z) > 1e-12 {
		t.Fatalf("rotated=(%v,%v,%v) want (0,1,0)", x, y, z)
	}
}

func TestIdentityQuaternion_EulerAnglesAreZero(t *testing.T) {
	e := Quaternion{W: 1}.EulerAngles()
	if e.Roll != 0 || e.Pitch != 0 || e.Yaw != 0 {
		t.Fatalf("euler=%+v want zeros", e)
	}
}

func TestEulerAngles_QuaternionRoundTrip(t *testing.T) {
	steps := []float64{-2.9, -1.5, -0.7, 0, 0.3, 1.2, 2.6}
	pitches := []float64{-1.4, -0.9, -0.2, 0, 0.5, 1.1, 1.45}
	for _, r := range steps {
		for _, p := range pitches {
			for _, y := range steps {
				in := EulerAngles{Roll: r, Pitch: p, Yaw: y}
				q, err := in.Quaternion()
				if err != nil {
					t.Fatalf("Quaternion() error: %v", err)
				}
				if n := q.Norm(); math.Abs(n-1) > 1e-9 {
					t.Fatalf("norm=%v want 1", n)
				}
				out := q.EulerAngles()
				if math.Abs(out.Roll-r) > 1e-3 || math.Abs(out.Pitch-p) > 1e-3 || math.Abs(out.Yaw-y) > 1e-3 {
					t.Fatalf("round trip %+v -> %+v", in, out)
				}
			}
		}
	}
}

func TestEulerAngles_RotationMatrixMatchesQuaternion(t *testing.T) {
	in := EulerAngles{Roll: 0.4, Pitch: -0.3, Yaw: 1.9}
	q, err := in.Quaternion()
	if err != nil {
		t.Fatalf("Quaternion() error: %v", err)
	}
	got := q.RotationMatrix()
	want := in.RotationMatrix()
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			if d := math.Abs(got.At(r, c) - want.At(r, c)); d > 1e-9 {
				t.Fatalf("(%d,%d)=%v want %v", r, c, got.At(r, c), want.At(r, c))
			}
		}
	}
}

func TestDegreesRadians(t *testing.T) {
	if got := ToDegrees(math.Pi); math.Abs(got-180) > 1e-12 {
		t.Fatalf("ToDegrees(pi)=%v want 180", got)
	}
	if got := ToRadians(90); math.Abs(got-math.Pi/2) > 1e-15 {
		t.Fatalf("ToRadians(90)=%v want pi/2", got)
	}
	e := EulerAngles{Roll: 30, Pitch: -45, Yaw: 90}.Radians().Degrees()
	if math.Abs(e.Roll-30) > 1e-12 || math.Abs(e.Pitch+45) > 1e-12 || math.Abs(e.Yaw-90) > 1e-12 {
		t.Fatalf("degrees round trip=%+v", e)
	}
}
