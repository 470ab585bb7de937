package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"bodynodes/internal/message"
)

const (
	DriverMPU6050 = "mpu6050"
	DriverBNO055  = "bno055"
	DriverSim     = "sim"
)

// DefaultHostDest is the multicast group hosts listen on.
const DefaultHostDest = "239.192.1.99:12345"

type Config struct {
	Node      NodeConfig      `yaml:"node"`
	Host      HostConfig      `yaml:"host"`
	Sensor    SensorConfig    `yaml:"sensor"`
	AHRS      AHRSConfig      `yaml:"ahrs"`
	Record    RecordConfig    `yaml:"record"`
	Replay    ReplayConfig    `yaml:"replay"`
	Web       WebConfig       `yaml:"web"`
	StatusLED StatusLEDConfig `yaml:"status_led"`
	Log       LogConfig       `yaml:"log"`
}

type NodeConfig struct {
	Bodypart string `yaml:"bodypart"`
	Player   string `yaml:"player"`
}

type HostConfig struct {
	Dest string `yaml:"dest"`
	// MinChange skips orientation messages in which no component moved more
	// than this since the last one sent. Zero sends every reading.
	MinChange float64 `yaml:"min_change"`
}

type SensorConfig struct {
	Driver            string        `yaml:"driver"`
	I2CBus            int           `yaml:"i2c_bus"`
	Address           uint16        `yaml:"address"`
	ReadInterval      time.Duration `yaml:"read_interval"`
	ReconnectCooldown time.Duration `yaml:"reconnect_cooldown"`
	UseMagnetometer   bool          `yaml:"use_magnetometer"`
	Realign           RealignConfig `yaml:"realign"`
	Sim               SimConfig     `yaml:"sim"`

	AccelerationRel    RelativeSensorConfig `yaml:"acceleration_rel"`
	AngularVelocityRel RelativeSensorConfig `yaml:"angularvelocity_rel"`
}

// RelativeSensorConfig enables forwarding of one raw IMU channel. Realign
// lists the source axis (x, y or z) and sign of each output axis.
type RelativeSensorConfig struct {
	Enable  bool          `yaml:"enable"`
	Realign RealignConfig `yaml:"realign"`
}

// RealignConfig lists, per output channel (w, x, y, z), the source channel
// and the sign applied to it.
type RealignConfig struct {
	Order []string  `yaml:"order"`
	Signs []float64 `yaml:"signs"`
}

type SimConfig struct {
	YawRateDPS float64 `yaml:"yaw_rate_dps"`
}

type AHRSConfig struct {
	SamplePeriod time.Duration `yaml:"sample_period"`
	Gain         float64       `yaml:"gain"`
	GyroScale    float64       `yaml:"gyro_scale"`
	AxisSigns    []float64     `yaml:"axis_signs"`
}

type RecordConfig struct {
	Enable bool   `yaml:"enable"`
	Path   string `yaml:"path"`
}

type ReplayConfig struct {
	Enable bool    `yaml:"enable"`
	Path   string  `yaml:"path"`
	Speed  float64 `yaml:"speed"`
	Loop   bool    `yaml:"loop"`
}

type WebConfig struct {
	Enable bool   `yaml:"enable"`
	Listen string `yaml:"listen"`
}

type StatusLEDConfig struct {
	Enable bool `yaml:"enable"`
	GPIO   int  `yaml:"gpio"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

// Raw reports whether the configured driver needs the AHRS filter.
func (s SensorConfig) Raw() bool { return s.Driver != DriverBNO055 }

var lineRE = regexp.MustCompile(`^line \d+: `)

func Load(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}

	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		var te *yaml.TypeError
		if errors.As(err, &te) {
			msgs := make([]string, len(te.Errors))
			for i, e := range te.Errors {
				msgs[i] = lineRE.ReplaceAllString(e, "")
			}
			return Config{}, fmt.Errorf("config contains invalid fields: %s", strings.Join(msgs, "; "))
		}
		return Config{}, err
	}

	if err := DefaultAndValidate(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// DefaultAndValidate fills unset fields and rejects inconsistent settings.
func DefaultAndValidate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}

	cfg.Node.Bodypart = strings.TrimSpace(cfg.Node.Bodypart)
	if cfg.Node.Bodypart == "" {
		return fmt.Errorf("node.bodypart is required")
	}
	if !message.ValidBodypart(cfg.Node.Bodypart) {
		return fmt.Errorf("node.bodypart %q is not a known bodypart", cfg.Node.Bodypart)
	}
	if hasControlChars(cfg.Node.Player) {
		return fmt.Errorf("node.player must not contain control characters")
	}

	if cfg.Host.Dest == "" {
		cfg.Host.Dest = DefaultHostDest
	}
	if cfg.Host.MinChange < 0 {
		return fmt.Errorf("host.min_change must be >= 0")
	}

	if err := defaultSensor(&cfg.Sensor); err != nil {
		return err
	}
	if err := defaultAHRS(&cfg.AHRS, cfg.Sensor.ReadInterval); err != nil {
		return err
	}

	if cfg.Record.Enable && cfg.Record.Path == "" {
		return fmt.Errorf("record.path is required when record.enable is true")
	}
	if cfg.Replay.Enable {
		if cfg.Replay.Path == "" {
			return fmt.Errorf("replay.path is required when replay.enable is true")
		}
		if cfg.Replay.Speed == 0 {
			cfg.Replay.Speed = 1
		}
		if cfg.Replay.Speed < 0 {
			return fmt.Errorf("replay.speed must be > 0")
		}
		if !cfg.Sensor.Raw() {
			return fmt.Errorf("replay requires a raw sensor driver, not %q", cfg.Sensor.Driver)
		}
	}
	if cfg.Record.Enable && cfg.Replay.Enable {
		return fmt.Errorf("record and replay cannot both be enabled")
	}
	if cfg.Record.Enable && !cfg.Sensor.Raw() {
		return fmt.Errorf("record requires a raw sensor driver, not %q", cfg.Sensor.Driver)
	}

	if cfg.Web.Listen == "" {
		cfg.Web.Listen = ":8080"
	}

	if cfg.StatusLED.Enable && cfg.StatusLED.GPIO <= 0 {
		return fmt.Errorf("status_led.gpio must be > 0 when status_led.enable is true")
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if _, err := logrus.ParseLevel(cfg.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}

	return nil
}

func defaultSensor(s *SensorConfig) error {
	s.Driver = strings.ToLower(strings.TrimSpace(s.Driver))
	if s.Driver == "" {
		s.Driver = DriverMPU6050
	}
	switch s.Driver {
	case DriverMPU6050, DriverBNO055, DriverSim:
	default:
		return fmt.Errorf("sensor.driver must be one of mpu6050, bno055, sim")
	}
	if s.I2CBus < 0 {
		return fmt.Errorf("sensor.i2c_bus must be >= 0")
	}
	if s.I2CBus == 0 {
		s.I2CBus = 1
	}
	if s.ReadInterval <= 0 {
		s.ReadInterval = 30 * time.Millisecond
	}
	if s.ReconnectCooldown <= 0 {
		s.ReconnectCooldown = 5 * time.Second
	}
	if s.UseMagnetometer && s.Driver != DriverSim {
		return fmt.Errorf("sensor.use_magnetometer is not supported by driver %q", s.Driver)
	}
	if s.Driver == DriverSim && s.Sim.YawRateDPS == 0 {
		s.Sim.YawRateDPS = 10
	}

	r := &s.Realign
	if len(r.Order) == 0 {
		r.Order = []string{"w", "x", "y", "z"}
	}
	if len(r.Signs) == 0 {
		r.Signs = []float64{1, 1, 1, 1}
	}
	if len(r.Order) != 4 {
		return fmt.Errorf("sensor.realign.order must list 4 axes")
	}
	if len(r.Signs) != 4 {
		return fmt.Errorf("sensor.realign.signs must list 4 signs")
	}
	seen := map[string]bool{}
	for i, a := range r.Order {
		a = strings.ToLower(strings.TrimSpace(a))
		switch a {
		case "w", "x", "y", "z":
		default:
			return fmt.Errorf("sensor.realign.order[%d] must be one of w, x, y, z", i)
		}
		if seen[a] {
			return fmt.Errorf("sensor.realign.order uses %s twice", a)
		}
		seen[a] = true
		r.Order[i] = a
	}
	for i, v := range r.Signs {
		if v != 1 && v != -1 {
			return fmt.Errorf("sensor.realign.signs[%d] must be 1 or -1", i)
		}
	}
	if s.Raw() && r.Order[0] != "w" {
		return fmt.Errorf("sensor.realign.order[0] must be w for driver %q", s.Driver)
	}

	if err := defaultRelative(&s.AccelerationRel, "sensor.acceleration_rel", s); err != nil {
		return err
	}
	return defaultRelative(&s.AngularVelocityRel, "sensor.angularvelocity_rel", s)
}

func defaultRelative(rc *RelativeSensorConfig, name string, s *SensorConfig) error {
	if rc.Enable && !s.Raw() {
		return fmt.Errorf("%s requires a raw sensor driver, not %q", name, s.Driver)
	}
	r := &rc.Realign
	if len(r.Order) == 0 {
		r.Order = []string{"x", "y", "z"}
	}
	if len(r.Signs) == 0 {
		r.Signs = []float64{1, 1, 1}
	}
	if len(r.Order) != 3 {
		return fmt.Errorf("%s.realign.order must list 3 axes", name)
	}
	if len(r.Signs) != 3 {
		return fmt.Errorf("%s.realign.signs must list 3 signs", name)
	}
	seen := map[string]bool{}
	for i, a := range r.Order {
		a = strings.ToLower(strings.TrimSpace(a))
		switch a {
		case "x", "y", "z":
		default:
			return fmt.Errorf("%s.realign.order[%d] must be one of x, y, z", name, i)
		}
		if seen[a] {
			return fmt.Errorf("%s.realign.order uses %s twice", name, a)
		}
		seen[a] = true
		r.Order[i] = a
	}
	for i, v := range r.Signs {
		if v != 1 && v != -1 {
			return fmt.Errorf("%s.realign.signs[%d] must be 1 or -1", name, i)
		}
	}
	return nil
}

func defaultAHRS(a *AHRSConfig, readInterval time.Duration) error {
	if a.SamplePeriod <= 0 {
		a.SamplePeriod = readInterval
	}
	if a.Gain == 0 {
		a.Gain = 0.8
	}
	if a.Gain < 0 {
		return fmt.Errorf("ahrs.gain must be > 0")
	}
	// Drivers report gyro rates in deg/s.
	if a.GyroScale == 0 {
		a.GyroScale = math.Pi / 180
	}
	if a.GyroScale < 0 {
		return fmt.Errorf("ahrs.gyro_scale must be > 0")
	}
	if len(a.AxisSigns) == 0 {
		a.AxisSigns = []float64{1, 1, 1}
	}
	if len(a.AxisSigns) != 3 {
		return fmt.Errorf("ahrs.axis_signs must list 3 signs")
	}
	for i, v := range a.AxisSigns {
		if v != 1 && v != -1 {
			return fmt.Errorf("ahrs.axis_signs[%d] must be 1 or -1", i)
		}
	}
	return nil
}

func hasControlChars(s string) bool {
	for _, r := range s {
		if r < 0x20 || r == 0x7f {
			return true
		}
	}
	return false
}
