package sim

import (
	"errors"
	"math"
	"time"

	"github.com/golang/geo/r3"

	"bodynodes/internal/linalg"
	"bodynodes/internal/orientation"
)

var errNotStarted = errors.New("sim: imu not started")

// IMU is a level sensor spinning about the vertical axis at a constant rate.
// Readings are a pure function of the time since Begin, so two IMUs sharing a
// clock report identical data.
type IMU struct {
	// YawRateDPS is the spin rate in deg/s. Positive spins counter-clockwise
	// seen from above.
	YawRateDPS float64
	// MagDipDeg tilts the simulated earth field below the horizon.
	MagDipDeg float64
	// CalibrateAfter keeps Calibrated false for this long after Begin.
	CalibrateAfter time.Duration
	// Now defaults to time.Now.
	Now func() time.Time

	start time.Time
	begun bool
}

func (s *IMU) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *IMU) Begin() error {
	s.start = s.now()
	s.begun = true
	return nil
}

func (s *IMU) Calibrated() bool {
	return s.begun && s.now().Sub(s.start) >= s.CalibrateAfter
}

// Yaw returns the heading in radians at now, wrapped to [0, 2π).
func (s *IMU) Yaw(now time.Time) float64 {
	if s.YawRateDPS == 0 {
		return 0
	}
	// One revolution per period keeps the phase exact over long runs.
	period := time.Duration(float64(time.Second) * 360 / math.Abs(s.YawRateDPS))
	elapsed := now.Sub(s.start)
	if elapsed < 0 {
		elapsed = 0
	}
	phase := float64(elapsed%period) / float64(period)
	yaw := 2 * math.Pi * phase
	if s.YawRateDPS < 0 && yaw != 0 {
		yaw = 2*math.Pi - yaw
	}
	return yaw
}

// Truth returns the true orientation at now.
func (s *IMU) Truth(now time.Time) linalg.Quaternion {
	half := s.Yaw(now) / 2
	return linalg.QuaternionFromValues([4]float64{math.Cos(half), 0, 0, math.Sin(half)})
}

// Mag returns the earth field seen in the sensor frame at now, unit length.
func (s *IMU) Mag(now time.Time) r3.Vector {
	dip := s.MagDipDeg * math.Pi / 180
	yaw := s.Yaw(now)
	h := math.Cos(dip)
	return r3.Vector{X: h * math.Cos(yaw), Y: -h * math.Sin(yaw), Z: -math.Sin(dip)}
}

func (s *IMU) Read(kind orientation.DataKind) ([]float64, error) {
	if !s.begun {
		return nil, errNotStarted
	}
	now := s.now()
	switch kind {
	case orientation.KindGyro:
		return []float64{0, 0, s.YawRateDPS}, nil
	case orientation.KindAccel:
		return []float64{0, 0, 1}, nil
	case orientation.KindMag:
		m := s.Mag(now)
		return []float64{m.X, m.Y, m.Z}, nil
	case orientation.KindQuaternion:
		v := s.Truth(now).Values()
		return v[:], nil
	default:
		return nil, orientation.ErrNoData
	}
}
