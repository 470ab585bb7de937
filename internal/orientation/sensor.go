package orientation

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang/geo/r3"

	"bodynodes/internal/ahrs"
	"bodynodes/internal/linalg"
)

// TypeOrientationAbs is the message type of absolute orientation readings.
const TypeOrientationAbs = "orientation_abs"

// DataKind selects what a Driver reads.
type DataKind int

const (
	KindGyro DataKind = iota
	KindAccel
	KindMag
	KindQuaternion
)

func (k DataKind) String() string {
	switch k {
	case KindGyro:
		return "gyro"
	case KindAccel:
		return "accel"
	case KindMag:
		return "mag"
	case KindQuaternion:
		return "quaternion"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// ErrNoData is returned by drivers that have nothing new for a kind.
var ErrNoData = errors.New("orientation: no data")

// Driver is the hardware side of a sensor.
//
// Read returns 3 values for gyro, accel and mag and 4 values (w, x, y, z)
// for quaternion.
type Driver interface {
	Begin() error
	Calibrated() bool
	Read(kind DataKind) ([]float64, error)
}

type Status int

const (
	StatusNotAccessible Status = iota
	StatusWorking
	StatusCalibrating
)

func (s Status) String() string {
	switch s {
	case StatusNotAccessible:
		return "not_accessible"
	case StatusWorking:
		return "working"
	case StatusCalibrating:
		return "calibrating"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

type Config struct {
	// ReadInterval is the minimum spacing between driver reads.
	ReadInterval time.Duration
	// ReconnectCooldown is the minimum spacing between init attempts while
	// the sensor is not accessible.
	ReconnectCooldown time.Duration
	Realign           Realignment
	// Fusion configures the AHRS filter for raw IMUs. Nil means the driver
	// fuses on chip and reports a quaternion.
	Fusion          *ahrs.Config
	UseMagnetometer bool
}

func DefaultConfig() Config {
	return Config{
		ReadInterval:      30 * time.Millisecond,
		ReconnectCooldown: 5 * time.Second,
		Realign:           IdentityRealignment(),
	}
}

// Data is one orientation reading in (w, x, y, z) order.
type Data struct {
	Type   string
	Values [4]float64
}

// Sensor runs the init/read/calibration cycle of one driver and turns its
// readings into orientation data.
//
// Sensor is not safe for concurrent use; the node's poll loop owns it.
type Sensor struct {
	cycle
	cfg    Config
	filter *ahrs.Filter

	firstZeros bool
	hook       func(ahrs.Sample)
}

func NewSensor(drv Driver, cfg Config, opts ...Option) (*Sensor, error) {
	o := applyOptions(opts)
	c, err := newCycle(drv, cfg.ReadInterval, cfg.ReconnectCooldown, o)
	if err != nil {
		return nil, err
	}
	if err := cfg.Realign.Validate(); err != nil {
		return nil, err
	}

	s := &Sensor{cycle: c, cfg: cfg, hook: o.hook}
	if cfg.Fusion != nil {
		if err := cfg.Realign.validateVector(); err != nil {
			return nil, err
		}
		f, err := ahrs.New(*cfg.Fusion)
		if err != nil {
			return nil, err
		}
		s.filter = f
	}
	return s, nil
}

func (s *Sensor) Status() Status { return s.status }

// Init tries to bring the driver up. On failure the sensor stays
// not accessible and Poll retries after the reconnect cooldown.
func (s *Sensor) Init() {
	if !s.begin() {
		return
	}
	s.firstZeros = true
	if s.filter != nil {
		s.filter.Init(linalg.IdentityQuaternion())
	}
}

// Poll runs one cycle. It reports false when there is no new reading: inside
// the read interval, while reconnecting or calibrating, or when the driver or
// filter failed this cycle.
func (s *Sensor) Poll() (Data, bool) {
	now, ok := s.due(s.Init)
	if !ok {
		return Data{}, false
	}
	if s.filter == nil {
		return s.pollFused()
	}
	return s.pollRaw(now)
}

func (s *Sensor) pollFused() (Data, bool) {
	raw, err := s.read(KindQuaternion, 4)
	if err != nil {
		s.skip(err)
		return Data{}, false
	}
	if !s.checkZeros(raw) {
		return Data{}, false
	}
	if !s.checkCalibrated() {
		return Data{}, false
	}
	return Data{Type: TypeOrientationAbs, Values: s.cfg.Realign.Realign([4]float64(raw))}, true
}

func (s *Sensor) pollRaw(now time.Time) (Data, bool) {
	gyro, err := s.read(KindGyro, 3)
	if err != nil {
		s.skip(err)
		return Data{}, false
	}
	accel, err := s.read(KindAccel, 3)
	if err != nil {
		s.skip(err)
		return Data{}, false
	}
	if !s.checkZeros(accel) {
		return Data{}, false
	}

	sample := ahrs.Sample{
		TimestampMs: uint64(now.UnixMilli()),
		Gyro:        s.vector(gyro),
		Accel:       s.vector(accel),
	}
	if s.cfg.UseMagnetometer {
		mag, err := s.read(KindMag, 3)
		if err != nil {
			s.skip(err)
			return Data{}, false
		}
		m := s.vector(mag)
		sample.Mag = &m
	}
	if s.hook != nil {
		s.hook(sample)
	}
	if err := s.filter.Update(sample); err != nil {
		s.skip(err)
		return Data{}, false
	}
	if !s.checkCalibrated() {
		return Data{}, false
	}
	q, err := s.filter.Quaternion()
	if err != nil {
		s.skip(err)
		return Data{}, false
	}
	return Data{Type: TypeOrientationAbs, Values: q.Values()}, true
}

func (s *Sensor) vector(v []float64) r3.Vector {
	out := s.cfg.Realign.Realign3([3]float64(v))
	return r3.Vector{X: out[0], Y: out[1], Z: out[2]}
}

// checkZeros applies the disconnect heuristic: once a sensor has produced a
// non-zero reading, an exactly all-zero reading is taken to mean it dropped
// off the bus. Zeros before the first non-zero reading are skipped. A real
// reading can be all zeros, so this can misfire.
func (s *Sensor) checkZeros(v []float64) bool {
	for _, x := range v {
		if x != 0 {
			s.firstZeros = false
			return true
		}
	}
	if !s.firstZeros {
		s.log.Warn("sensor returned all zeros, assuming disconnected")
		s.disconnected()
	}
	return false
}
