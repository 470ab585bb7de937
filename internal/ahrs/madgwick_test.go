package ahrs

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/num/quat"

	"bodynodes/internal/linalg"
)

func testConfig() Config {
	return Config{
		SamplePeriod: 10 * time.Millisecond,
		Gain:         0.1,
		GyroScale:    1,
		AxisSigns:    [3]float64{1, 1, 1},
	}
}

func newTestFilter(t *testing.T, cfg Config, q linalg.Quaternion) *Filter {
	t.Helper()
	f, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	f.Init(q)
	return f
}

// predictedGravity is the accelerometer direction the estimate expects at rest.
func predictedGravity(q linalg.Quaternion) r3.Vector {
	return r3.Vector{
		X: 2 * (q.X*q.Z - q.W*q.Y),
		Y: 2 * (q.W*q.X + q.Y*q.Z),
		Z: 2 * (0.5 - q.X*q.X - q.Y*q.Y),
	}
}

func quatDiff(a, b linalg.Quaternion) float64 {
	return a.Sub(b).Norm()
}

func TestNew_Validation(t *testing.T) {
	cases := []struct {
		name string
		mod  func(*Config)
	}{
		{name: "zero_gain", mod: func(c *Config) { c.Gain = 0 }},
		{name: "negative_gain", mod: func(c *Config) { c.Gain = -1 }},
		{name: "zero_period", mod: func(c *Config) { c.SamplePeriod = 0 }},
		{name: "zero_gyro_scale", mod: func(c *Config) { c.GyroScale = 0 }},
		{name: "bad_sign", mod: func(c *Config) { c.AxisSigns[1] = 0.5 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := testConfig()
			tc.mod(&cfg)
			if _, err := New(cfg); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestUpdate_BeforeInitFails(t *testing.T) {
	f, err := New(testConfig())
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	err = f.UpdateIMU(linalg.VectorOf(0, 0, 0), linalg.VectorOf(0, 0, 1), 10)
	if !errors.Is(err, ErrUninitializedFilter) {
		t.Fatalf("UpdateIMU err=%v want %v", err, ErrUninitializedFilter)
	}
	err = f.UpdateMARG(linalg.VectorOf(0, 0, 0), linalg.VectorOf(0, 0, 1), linalg.VectorOf(1, 0, 0), 10)
	if !errors.Is(err, ErrUninitializedFilter) {
		t.Fatalf("UpdateMARG err=%v want %v", err, ErrUninitializedFilter)
	}
	if _, err := f.Quaternion(); !errors.Is(err, ErrUninitializedFilter) {
		t.Fatalf("Quaternion err=%v want %v", err, ErrUninitializedFilter)
	}
}

func TestUpdateIMU_StaticLevelIsFixedPoint(t *testing.T) {
	f := newTestFilter(t, testConfig(), linalg.IdentityQuaternion())
	for i := 1; i <= 200; i++ {
		if err := f.UpdateIMU(linalg.VectorOf(0, 0, 0), linalg.VectorOf(0, 0, 1), uint64(i*10)); err != nil {
			t.Fatalf("UpdateIMU() error: %v", err)
		}
	}
	q, _ := f.Quaternion()
	if q != linalg.IdentityQuaternion() {
		t.Fatalf("q=%v want identity", q)
	}
}

func TestUpdateIMU_StaticInputConverges(t *testing.T) {
	cfg := testConfig()
	start := linalg.Quaternion{W: math.Cos(0.15), X: math.Sin(0.15)}
	f := newTestFilter(t, cfg, start)

	prev, _ := f.Quaternion()
	var lastDiff float64
	for i := 1; i <= 2000; i++ {
		if err := f.UpdateIMU(linalg.VectorOf(0, 0, 0), linalg.VectorOf(0, 0, 1), uint64(i*10)); err != nil {
			t.Fatalf("UpdateIMU() error: %v", err)
		}
		q, _ := f.Quaternion()
		lastDiff = quatDiff(q, prev)
		prev = q
	}

	// Each correction step is bounded by gain*dt.
	if bound := cfg.Gain*cfg.SamplePeriod.Seconds() + 1e-9; lastDiff > bound {
		t.Fatalf("last step=%v want <= %v", lastDiff, bound)
	}
	g := predictedGravity(prev)
	if d := g.Sub(r3.Vector{Z: 1}).Norm(); d > 0.01 {
		t.Fatalf("gravity error=%v (g=%v q=%v)", d, g, prev)
	}
}

func TestUpdateIMU_IntegratesYawRate(t *testing.T) {
	f := newTestFilter(t, testConfig(), linalg.IdentityQuaternion())
	// 1 rad/s about z for 1s.
	for i := 1; i <= 101; i++ {
		if err := f.UpdateIMU(linalg.VectorOf(0, 0, 1), linalg.VectorOf(0, 0, 1), uint64(1000+i*10)); err != nil {
			t.Fatalf("UpdateIMU() error: %v", err)
		}
	}
	q, _ := f.Quaternion()
	e := q.EulerAngles()
	// The wire convention reports a positive z rotation as negative yaw.
	if math.Abs(e.Yaw+1.01) > 1e-2 {
		t.Fatalf("yaw=%v want about -1.01", e.Yaw)
	}
	if math.Abs(e.Roll) > 1e-9 || math.Abs(e.Pitch) > 1e-9 {
		t.Fatalf("roll=%v pitch=%v want 0", e.Roll, e.Pitch)
	}
}

func TestUpdateIMU_AxisSignsAndGyroScale(t *testing.T) {
	cfg := testConfig()
	cfg.AxisSigns = [3]float64{1, 1, -1}
	cfg.GyroScale = math.Pi / 180
	f := newTestFilter(t, cfg, linalg.IdentityQuaternion())
	// -57.3 deg/s about a flipped z axis is +1 rad/s; accel z flips too.
	for i := 1; i <= 10; i++ {
		if err := f.UpdateIMU(linalg.VectorOf(0, 0, -180/math.Pi), linalg.VectorOf(0, 0, -1), uint64(i*10)); err != nil {
			t.Fatalf("UpdateIMU() error: %v", err)
		}
	}
	q, _ := f.Quaternion()
	if q.Z <= 0 {
		t.Fatalf("q=%v want positive rotation about z", q)
	}
}

func TestUpdate_AdaptiveSamplePeriod(t *testing.T) {
	cfg := testConfig()
	cfg.SamplePeriod = 30 * time.Millisecond
	f := newTestFilter(t, cfg, linalg.IdentityQuaternion())

	step := func(ts uint64) {
		t.Helper()
		if err := f.UpdateIMU(linalg.VectorOf(0, 0, 0), linalg.VectorOf(0, 0, 1), ts); err != nil {
			t.Fatalf("UpdateIMU() error: %v", err)
		}
	}

	step(5000)
	if got := f.SamplePeriod(); got != 30*time.Millisecond {
		t.Fatalf("period=%s want 30ms after first sample", got)
	}
	step(5012)
	if got := f.SamplePeriod(); got != 12*time.Millisecond {
		t.Fatalf("period=%s want 12ms", got)
	}
	// A repeated timestamp keeps the previous period.
	step(5012)
	if got := f.SamplePeriod(); got != 12*time.Millisecond {
		t.Fatalf("period=%s want 12ms", got)
	}

	f.Init(linalg.IdentityQuaternion())
	if got := f.SamplePeriod(); got != 30*time.Millisecond {
		t.Fatalf("period=%s want 30ms after Init", got)
	}
}

func TestUpdateIMU_ZeroAccelLeavesStateUntouched(t *testing.T) {
	start := linalg.Quaternion{W: math.Cos(0.2), Y: math.Sin(0.2)}
	f := newTestFilter(t, testConfig(), start)

	err := f.UpdateIMU(linalg.VectorOf(1, 2, 3), linalg.VectorOf(0, 0, 0), 100)
	if !errors.Is(err, linalg.ErrDegenerateNormalize) {
		t.Fatalf("err=%v want %v", err, linalg.ErrDegenerateNormalize)
	}
	q, _ := f.Quaternion()
	if q != start {
		t.Fatalf("q=%v want unchanged %v", q, start)
	}
	if got := f.SamplePeriod(); got != 10*time.Millisecond {
		t.Fatalf("period=%s want unchanged", got)
	}
}

func TestUpdate_WrongInputLength(t *testing.T) {
	f := newTestFilter(t, testConfig(), linalg.IdentityQuaternion())
	err := f.UpdateIMU(linalg.VectorOf(0, 0), linalg.VectorOf(0, 0, 1), 10)
	if !errors.Is(err, linalg.ErrDimensionMismatch) {
		t.Fatalf("err=%v want %v", err, linalg.ErrDimensionMismatch)
	}
	err = f.UpdateMARG(linalg.VectorOf(0, 0, 0), linalg.VectorOf(0, 0, 1), linalg.VectorOf(1, 0), 10)
	if !errors.Is(err, linalg.ErrDimensionMismatch) {
		t.Fatalf("err=%v want %v", err, linalg.ErrDimensionMismatch)
	}
}

func TestUpdateMARG_ConvergesToHeading(t *testing.T) {
	cfg := testConfig()
	truth := linalg.Quaternion{W: math.Cos(0.25), Z: math.Sin(0.25)}
	earthField := r3.Vector{X: 0.4, Z: -0.9}

	// Sensor-frame readings are the earth references rotated by the inverse
	// of the true orientation.
	inv := truth.Conjugated()
	ax, ay, az := inv.Rotate(0, 0, 1)
	mx, my, mz := inv.Rotate(earthField.X, earthField.Y, earthField.Z)

	f := newTestFilter(t, cfg, linalg.IdentityQuaternion())
	for i := 1; i <= 3000; i++ {
		s := Sample{
			TimestampMs: uint64(i * 10),
			Accel:       r3.Vector{X: ax, Y: ay, Z: az},
			Mag:         &r3.Vector{X: mx, Y: my, Z: mz},
		}
		if err := f.Update(s); err != nil {
			t.Fatalf("Update() error: %v", err)
		}
	}
	q, _ := f.Quaternion()
	dot := q.W*truth.W + q.X*truth.X + q.Y*truth.Y + q.Z*truth.Z
	if math.Abs(dot) < 0.999 {
		t.Fatalf("q=%v want close to %v (dot=%v)", q, truth, dot)
	}
}

func TestUpdateMARG_ZeroMagFails(t *testing.T) {
	f := newTestFilter(t, testConfig(), linalg.IdentityQuaternion())
	err := f.UpdateMARG(linalg.VectorOf(0, 0, 0), linalg.VectorOf(0, 0, 1), linalg.VectorOf(0, 0, 0), 10)
	if !errors.Is(err, linalg.ErrDegenerateNormalize) {
		t.Fatalf("err=%v want %v", err, linalg.ErrDegenerateNormalize)
	}
}

func TestFilter_Deterministic(t *testing.T) {
	cfg := DefaultConfig()
	a := newTestFilter(t, cfg, linalg.IdentityQuaternion())
	b := newTestFilter(t, cfg, linalg.IdentityQuaternion())

	for i := 1; i <= 500; i++ {
		ts := uint64(i*30 + i%7)
		x := float64(i)
		s := Sample{
			TimestampMs: ts,
			Gyro:        r3.Vector{X: math.Sin(x / 10), Y: math.Cos(x / 13), Z: 0.3},
			Accel:       r3.Vector{X: 0.1 * math.Sin(x/17), Y: 0.05, Z: 1},
		}
		if i%3 == 0 {
			s.Mag = &r3.Vector{X: 0.3, Y: 0.1 * math.Cos(x/5), Z: -0.8}
		}
		if err := a.Update(s); err != nil {
			t.Fatalf("a.Update() error: %v", err)
		}
		if err := b.Update(s); err != nil {
			t.Fatalf("b.Update() error: %v", err)
		}
		qa, _ := a.Quaternion()
		qb, _ := b.Quaternion()
		if qa != qb {
			t.Fatalf("step %d: %v != %v", i, qa, qb)
		}
		if n := qa.Norm(); math.Abs(n-1) > 1e-9 {
			t.Fatalf("step %d: norm=%v want 1", i, n)
		}
	}
}

// The gyro term must match q*[0,w]/2 as computed by an independent
// quaternion implementation.
func TestUpdateIMU_GyroTermMatchesGonum(t *testing.T) {
	cfg := testConfig()
	start := linalg.Quaternion{W: math.Cos(0.3), X: math.Sin(0.3) * 0.6, Z: math.Sin(0.3) * 0.8}
	f := newTestFilter(t, cfg, start)

	// Feed the accelerometer the estimate's own gravity so the correction is zero.
	g := predictedGravity(start)
	w := r3.Vector{X: 0.2, Y: -0.4, Z: 0.7}
	if err := f.Update(Sample{TimestampMs: 10, Gyro: w, Accel: g}); err != nil {
		t.Fatalf("Update() error: %v", err)
	}

	n := quat.Mul(quat.Number{Real: start.W, Imag: start.X, Jmag: start.Y, Kmag: start.Z}, quat.Number{Imag: w.X, Jmag: w.Y, Kmag: w.Z})
	dt := cfg.SamplePeriod.Seconds()
	want := linalg.Quaternion{
		W: start.W + 0.5*dt*n.Real,
		X: start.X + 0.5*dt*n.Imag,
		Y: start.Y + 0.5*dt*n.Jmag,
		Z: start.Z + 0.5*dt*n.Kmag,
	}
	if err := want.Normalize(); err != nil {
		t.Fatalf("Normalize() error: %v", err)
	}
	got, _ := f.Quaternion()
	if d := quatDiff(got, want); d > 1e-6 {
		t.Fatalf("q=%v want %v (diff %v)", got, want, d)
	}
}
