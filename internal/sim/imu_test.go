package sim

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"

	"bodynodes/internal/ahrs"
	"bodynodes/internal/orientation"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 12, 20, 19, 0, 0, 0, time.UTC)}
}

func TestIMU_ReadBeforeBegin(t *testing.T) {
	s := &IMU{YawRateDPS: 10}
	if _, err := s.Read(orientation.KindGyro); !errors.Is(err, errNotStarted) {
		t.Fatalf("err=%v want %v", err, errNotStarted)
	}
	if s.Calibrated() {
		t.Fatalf("expected uncalibrated before Begin")
	}
}

func TestIMU_YawFollowsRate(t *testing.T) {
	clk := newClock()
	s := &IMU{YawRateDPS: 10, Now: clk.Now}
	if err := s.Begin(); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	clk.Advance(9 * time.Second)
	if got := s.Yaw(clk.Now()); math.Abs(got-math.Pi/2) > 1e-12 {
		t.Fatalf("yaw=%v want π/2", got)
	}
	// Wraps after one revolution.
	clk.Advance(36 * time.Second)
	if got := s.Yaw(clk.Now()); math.Abs(got-math.Pi/2) > 1e-12 {
		t.Fatalf("yaw after wrap=%v want π/2", got)
	}

	s.YawRateDPS = -10
	if got := s.Yaw(clk.Now()); math.Abs(got-3*math.Pi/2) > 1e-12 {
		t.Fatalf("yaw=%v want 3π/2", got)
	}
}

func TestIMU_ReadingsAreConsistent(t *testing.T) {
	clk := newClock()
	s := &IMU{YawRateDPS: 25, MagDipDeg: 60, Now: clk.Now}
	_ = s.Begin()
	clk.Advance(1700 * time.Millisecond)

	gyro, err := s.Read(orientation.KindGyro)
	if err != nil || gyro[2] != 25 || gyro[0] != 0 || gyro[1] != 0 {
		t.Fatalf("gyro=%v err=%v", gyro, err)
	}
	accel, _ := s.Read(orientation.KindAccel)
	if accel[2] != 1 {
		t.Fatalf("accel=%v want (0,0,1)", accel)
	}

	// The body-frame field rotated by the true attitude is the earth field.
	m := s.Mag(clk.Now())
	x, y, z := s.Truth(clk.Now()).Rotate(m.X, m.Y, m.Z)
	dip := 60 * math.Pi / 180
	if math.Abs(x-math.Cos(dip)) > 1e-12 || math.Abs(y) > 1e-12 || math.Abs(z+math.Sin(dip)) > 1e-12 {
		t.Fatalf("earth field=(%v,%v,%v)", x, y, z)
	}

	q, _ := s.Read(orientation.KindQuaternion)
	if len(q) != 4 || math.Abs(q[0]*q[0]+q[3]*q[3]-1) > 1e-12 {
		t.Fatalf("quaternion=%v", q)
	}
}

func TestIMU_CalibrateAfter(t *testing.T) {
	clk := newClock()
	s := &IMU{CalibrateAfter: time.Second, Now: clk.Now}
	_ = s.Begin()
	if s.Calibrated() {
		t.Fatalf("calibrated too early")
	}
	clk.Advance(time.Second)
	if !s.Calibrated() {
		t.Fatalf("expected calibrated after delay")
	}
}

func TestIMU_FilterTracksTruth(t *testing.T) {
	clk := newClock()
	imu := &IMU{YawRateDPS: 20, MagDipDeg: 45, Now: clk.Now}

	fusion := ahrs.Config{
		SamplePeriod: 30 * time.Millisecond,
		Gain:         0.8,
		GyroScale:    math.Pi / 180,
		AxisSigns:    [3]float64{1, 1, 1},
	}
	cfg := orientation.DefaultConfig()
	cfg.Fusion = &fusion
	cfg.UseMagnetometer = true

	logger, _ := test.NewNullLogger()
	sensor, err := orientation.NewSensor(imu, cfg, orientation.WithClock(clk.Now), orientation.WithLogger(logger))
	if err != nil {
		t.Fatalf("NewSensor: %v", err)
	}
	sensor.Init()

	var last orientation.Data
	got := 0
	for i := 0; i < 400; i++ {
		clk.Advance(30 * time.Millisecond)
		if d, ok := sensor.Poll(); ok {
			last = d
			got++
		}
	}
	if got < 390 {
		t.Fatalf("readings=%d want ~400", got)
	}
	truth := imu.Truth(clk.Now()).Values()
	dot := 0.0
	for i := range truth {
		dot += truth[i] * last.Values[i]
	}
	if math.Abs(dot) < 0.99 {
		t.Fatalf("filter=%v truth=%v dot=%v", last.Values, truth, dot)
	}
}
