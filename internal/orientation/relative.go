package orientation

import (
	"fmt"
	"time"
)

// Message types of the relative readings.
const (
	TypeAccelerationRel    = "acceleration_rel"
	TypeAngularVelocityRel = "angularvelocity_rel"
)

// RelativeConfig configures a sensor that forwards one realigned 3-axis
// channel of a raw IMU: accel in g or gyro in deg/s, as the driver reports it.
type RelativeConfig struct {
	// Kind is KindAccel or KindGyro.
	Kind              DataKind
	ReadInterval      time.Duration
	ReconnectCooldown time.Duration
	// Realign uses the x, y and z entries only.
	Realign Realignment
}

func DefaultRelativeConfig(kind DataKind) RelativeConfig {
	return RelativeConfig{
		Kind:              kind,
		ReadInterval:      30 * time.Millisecond,
		ReconnectCooldown: 5 * time.Second,
		Realign:           IdentityRealignment(),
	}
}

// RelData is one relative reading in (x, y, z) order.
type RelData struct {
	Type   string
	Values [3]float64
}

// RelativeSensor goes through the same init, reconnect, read interval and
// calibration cycle as Sensor but runs no filter and no zero heuristic.
type RelativeSensor struct {
	cycle
	typ     string
	kind    DataKind
	realign Realignment
}

func NewRelativeSensor(drv Driver, cfg RelativeConfig, opts ...Option) (*RelativeSensor, error) {
	var typ string
	switch cfg.Kind {
	case KindAccel:
		typ = TypeAccelerationRel
	case KindGyro:
		typ = TypeAngularVelocityRel
	default:
		return nil, fmt.Errorf("orientation: no relative reading for %v", cfg.Kind)
	}
	c, err := newCycle(drv, cfg.ReadInterval, cfg.ReconnectCooldown, applyOptions(opts))
	if err != nil {
		return nil, err
	}
	if err := cfg.Realign.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.Realign.validateVector(); err != nil {
		return nil, err
	}
	c.log = c.log.WithField("sensor", typ)
	return &RelativeSensor{cycle: c, typ: typ, kind: cfg.Kind, realign: cfg.Realign}, nil
}

func (s *RelativeSensor) Type() string   { return s.typ }
func (s *RelativeSensor) Status() Status { return s.status }

func (s *RelativeSensor) Init() { s.begin() }

// Poll runs one cycle and reports false when there is no new reading.
func (s *RelativeSensor) Poll() (RelData, bool) {
	if _, ok := s.due(s.Init); !ok {
		return RelData{}, false
	}
	raw, err := s.read(s.kind, 3)
	if err != nil {
		s.skip(err)
		return RelData{}, false
	}
	if !s.checkCalibrated() {
		return RelData{}, false
	}
	return RelData{Type: s.typ, Values: s.realign.Realign3([3]float64(raw))}, true
}
