package ahrs

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/golang/geo/r3"

	"bodynodes/internal/linalg"
)

var ErrUninitializedFilter = errors.New("ahrs: filter used before Init")

// Config is fixed for the lifetime of a Filter.
type Config struct {
	// SamplePeriod is the initial integration step. After the second update
	// it is replaced by the spacing of consecutive sample timestamps.
	SamplePeriod time.Duration
	// Gain weights the accelerometer/magnetometer correction against gyro
	// integration.
	Gain float64
	// GyroScale converts raw gyro readings to rad/s.
	GyroScale float64
	// AxisSigns flips sensor axes to match the body frame. Each entry is +1 or -1.
	AxisSigns [3]float64
}

// DefaultConfig mirrors the values the LSM9DS1 node shipped with.
func DefaultConfig() Config {
	return Config{
		SamplePeriod: 30 * time.Millisecond,
		Gain:         0.8,
		GyroScale:    0.02,
		AxisSigns:    [3]float64{1, -1, 1},
	}
}

// Sample is one driver reading. Mag is nil for 6-axis sensors.
type Sample struct {
	TimestampMs uint64
	Gyro        r3.Vector
	Accel       r3.Vector
	Mag         *r3.Vector
}

// Filter is a Madgwick gradient-descent orientation filter.
//
// A Filter is not safe for concurrent use. Each one is owned by a single
// orientation sensor and updated from one goroutine.
type Filter struct {
	gain      float64
	gyroScale float64
	axisSigns linalg.Vector

	nominalPeriodMs uint32
	samplePeriodMs  uint32
	lastTimestampMs uint64

	q           linalg.Quaternion
	initialized bool
}

func New(cfg Config) (*Filter, error) {
	if cfg.SamplePeriod < time.Millisecond {
		return nil, fmt.Errorf("ahrs: sample period must be >= 1ms")
	}
	if cfg.Gain <= 0 || math.IsNaN(cfg.Gain) || math.IsInf(cfg.Gain, 0) {
		return nil, fmt.Errorf("ahrs: gain must be > 0")
	}
	if cfg.GyroScale == 0 || math.IsNaN(cfg.GyroScale) || math.IsInf(cfg.GyroScale, 0) {
		return nil, fmt.Errorf("ahrs: gyro scale must be non-zero")
	}
	for i, s := range cfg.AxisSigns {
		if s != 1 && s != -1 {
			return nil, fmt.Errorf("ahrs: axis sign %d is %v, want +1 or -1", i, s)
		}
	}
	period := uint32(cfg.SamplePeriod / time.Millisecond)
	return &Filter{
		gain:            cfg.Gain,
		gyroScale:       cfg.GyroScale,
		axisSigns:       linalg.VectorOf(cfg.AxisSigns[0], cfg.AxisSigns[1], cfg.AxisSigns[2]),
		nominalPeriodMs: period,
		samplePeriodMs:  period,
	}, nil
}

// Init sets the starting orientation. Calling it again resets the filter.
func (f *Filter) Init(q linalg.Quaternion) {
	f.q = q
	f.initialized = true
	f.lastTimestampMs = 0
	f.samplePeriodMs = f.nominalPeriodMs
}

func (f *Filter) Initialized() bool { return f.initialized }

func (f *Filter) Quaternion() (linalg.Quaternion, error) {
	if !f.initialized {
		return linalg.Quaternion{}, ErrUninitializedFilter
	}
	return f.q, nil
}

func (f *Filter) SamplePeriod() time.Duration {
	return time.Duration(f.samplePeriodMs) * time.Millisecond
}

// Update feeds one sample, using the magnetometer when present.
func (f *Filter) Update(s Sample) error {
	gyro, accel := vec3(s.Gyro), vec3(s.Accel)
	if s.Mag == nil {
		return f.UpdateIMU(gyro, accel, s.TimestampMs)
	}
	return f.UpdateMARG(gyro, accel, vec3(*s.Mag), s.TimestampMs)
}

func vec3(v r3.Vector) linalg.Vector { return linalg.VectorOf(v.X, v.Y, v.Z) }

// UpdateIMU runs one fusion step from gyro and accelerometer readings.
// On error the filter state is left unchanged.
func (f *Filter) UpdateIMU(gyro, accel linalg.Vector, timestampMs uint64) error {
	st, err := f.begin(gyro, accel, timestampMs)
	if err != nil {
		return err
	}
	q := st.q
	a := st.accel

	obj := linalg.VectorOf(
		2*(q.X*q.Z-q.W*q.Y)-a.At(0),
		2*(q.W*q.X+q.Y*q.Z)-a.At(1),
		2*(0.5-q.X*q.X-q.Y*q.Y)-a.At(2),
	)
	jt, _ := linalg.NewMatrixFrom(4, 3, []float64{
		-2 * q.Y, 2 * q.X, 0,
		2 * q.Z, 2 * q.W, -4 * q.X,
		-2 * q.W, 2 * q.Z, -4 * q.Y,
		2 * q.X, 2 * q.Y, 0,
	})
	return f.finish(st, jt, obj)
}

// UpdateMARG runs one fusion step that also corrects heading from the
// magnetometer. On error the filter state is left unchanged.
func (f *Filter) UpdateMARG(gyro, accel, magn linalg.Vector, timestampMs uint64) error {
	st, err := f.begin(gyro, accel, timestampMs)
	if err != nil {
		return err
	}
	if magn.Len() != 3 {
		return fmt.Errorf("ahrs: magnetometer: %w: got %d values", linalg.ErrDimensionMismatch, magn.Len())
	}
	m, err := linalg.ProductElementwise(magn, f.axisSigns)
	if err != nil {
		return err
	}
	if err := m.Normalize(); err != nil {
		return fmt.Errorf("ahrs: magnetometer: %w", err)
	}

	q := st.q
	a := st.accel

	// Earth-frame reference field from the current estimate.
	hx, hy, hz := q.Rotate(m.At(0), m.At(1), m.At(2))
	bx := math.Sqrt(hx*hx + hy*hy)
	bz := hz

	obj := linalg.VectorOf(
		2*(q.X*q.Z-q.W*q.Y)-a.At(0),
		2*(q.W*q.X+q.Y*q.Z)-a.At(1),
		2*(0.5-q.X*q.X-q.Y*q.Y)-a.At(2),
		2*bx*(0.5-q.Y*q.Y-q.Z*q.Z)+2*bz*(q.X*q.Z-q.W*q.Y)-m.At(0),
		2*bx*(q.X*q.Y-q.W*q.Z)+2*bz*(q.W*q.X+q.Y*q.Z)-m.At(1),
		2*bx*(q.W*q.Y+q.X*q.Z)+2*bz*(0.5-q.X*q.X-q.Y*q.Y)-m.At(2),
	)
	jt, _ := linalg.NewMatrixFrom(4, 6, []float64{
		-2 * q.Y, 2 * q.X, 0, -2 * bz * q.Y, -2*bx*q.Z + 2*bz*q.X, 2 * bx * q.Y,
		2 * q.Z, 2 * q.W, -4 * q.X, 2 * bz * q.Z, 2*bx*q.Y + 2*bz*q.W, 2*bx*q.Z - 4*bz*q.X,
		-2 * q.W, 2 * q.Z, -4 * q.Y, -4*bx*q.Y - 2*bz*q.W, 2*bx*q.X + 2*bz*q.Z, 2*bx*q.W - 4*bz*q.Y,
		2 * q.X, 2 * q.Y, 0, -4*bx*q.Z + 2*bz*q.X, -2*bx*q.W + 2*bz*q.Y, 2 * bx * q.X,
	})
	return f.finish(st, jt, obj)
}

// step carries one update from begin to finish without touching the filter.
type step struct {
	q           linalg.Quaternion
	qDot        linalg.Quaternion
	accel       linalg.Vector
	periodMs    uint32
	timestampMs uint64
}

func (f *Filter) begin(gyro, accel linalg.Vector, timestampMs uint64) (step, error) {
	if !f.initialized {
		return step{}, ErrUninitializedFilter
	}
	if gyro.Len() != 3 || accel.Len() != 3 {
		return step{}, fmt.Errorf("ahrs: %w: gyro has %d values, accel has %d", linalg.ErrDimensionMismatch, gyro.Len(), accel.Len())
	}

	g, err := linalg.ProductElementwise(gyro, f.axisSigns)
	if err != nil {
		return step{}, err
	}
	g.Scale(f.gyroScale)
	a, err := linalg.ProductElementwise(accel, f.axisSigns)
	if err != nil {
		return step{}, err
	}

	period := f.samplePeriodMs
	if f.lastTimestampMs != 0 && timestampMs > f.lastTimestampMs {
		d := timestampMs - f.lastTimestampMs
		if d > math.MaxUint32 {
			d = math.MaxUint32
		}
		period = uint32(d)
	}

	q := f.q
	if err := q.Normalize(); err != nil {
		return step{}, fmt.Errorf("ahrs: orientation: %w", err)
	}

	qDot := linalg.Hamilton(q, linalg.PureQuaternion(g.At(0), g.At(1), g.At(2)))
	qDot.Scale(0.5)

	if err := a.Normalize(); err != nil {
		return step{}, fmt.Errorf("ahrs: accelerometer: %w", err)
	}
	return step{q: q, qDot: qDot, accel: a, periodMs: period, timestampMs: timestampMs}, nil
}

func (f *Filter) finish(st step, jt linalg.Matrix, obj linalg.Vector) error {
	grad, err := f.gradient(jt, obj)
	if err != nil {
		return err
	}
	qDot := st.qDot.Sub(grad)
	qDot.Scale(float64(st.periodMs) / 1000)

	next := st.q.Add(qDot)
	if err := next.Normalize(); err != nil {
		return fmt.Errorf("ahrs: orientation: %w", err)
	}

	f.q = next
	f.samplePeriodMs = st.periodMs
	f.lastTimestampMs = st.timestampMs
	return nil
}

// gradient returns normalize(jt*obj)*gain. An objective that is already
// satisfied yields a zero correction.
func (f *Filter) gradient(jt linalg.Matrix, obj linalg.Vector) (linalg.Quaternion, error) {
	prod, err := linalg.Multiply(jt, obj.Matrix())
	if err != nil {
		return linalg.Quaternion{}, err
	}
	g, err := linalg.QuaternionFromMatrix(prod)
	if err != nil {
		return linalg.Quaternion{}, err
	}
	if err := g.Normalize(); err != nil {
		if errors.Is(err, linalg.ErrDegenerateNormalize) {
			return linalg.Quaternion{}, nil
		}
		return linalg.Quaternion{}, err
	}
	g.Scale(f.gain)
	return g, nil
}
