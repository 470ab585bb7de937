package orientation

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"bodynodes/internal/ahrs"
)

type options struct {
	now  func() time.Time
	log  logrus.FieldLogger
	hook func(ahrs.Sample)
}

type Option func(*options)

func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

func WithLogger(l logrus.FieldLogger) Option {
	return func(o *options) {
		if l != nil {
			o.log = l
		}
	}
}

// WithSampleHook registers fn to receive every raw sample fed to the filter.
// Relative sensors run no filter and ignore it.
func WithSampleHook(fn func(ahrs.Sample)) Option {
	return func(o *options) { o.hook = fn }
}

func applyOptions(opts []Option) options {
	o := options{now: time.Now, log: logrus.StandardLogger()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// cycle holds the init, reconnect, read interval and calibration state every
// sensor kind goes through.
type cycle struct {
	drv          Driver
	readInterval time.Duration
	cooldown     time.Duration

	status        Status
	lastRead      time.Time
	lastReconnect time.Time

	now func() time.Time
	log logrus.FieldLogger
}

func newCycle(drv Driver, readInterval, cooldown time.Duration, o options) (cycle, error) {
	if drv == nil {
		return cycle{}, fmt.Errorf("orientation: driver is nil")
	}
	if readInterval < 0 {
		return cycle{}, fmt.Errorf("orientation: read interval must be >= 0")
	}
	if cooldown < 0 {
		return cycle{}, fmt.Errorf("orientation: reconnect cooldown must be >= 0")
	}
	return cycle{
		drv:          drv,
		readInterval: readInterval,
		cooldown:     cooldown,
		status:       StatusNotAccessible,
		now:          o.now,
		log:          o.log,
	}, nil
}

// begin calls Begin on the driver and reports whether it came up.
func (c *cycle) begin() bool {
	c.lastReconnect = c.now()
	if err := c.drv.Begin(); err != nil {
		c.log.WithError(err).Debug("sensor init failed")
		c.setStatus(StatusNotAccessible)
		return false
	}
	c.lastRead = time.Time{}
	c.setStatus(StatusWorking)
	return true
}

// due reports whether this poll may read the driver. While not accessible it
// calls reinit once per cooldown; that cycle never reads.
func (c *cycle) due(reinit func()) (time.Time, bool) {
	now := c.now()
	if c.status == StatusNotAccessible {
		if !c.lastReconnect.IsZero() && now.Sub(c.lastReconnect) < c.cooldown {
			return now, false
		}
		reinit()
		return now, false
	}
	if !c.lastRead.IsZero() && now.Sub(c.lastRead) < c.readInterval {
		return now, false
	}
	c.lastRead = now
	return now, true
}

func (c *cycle) setStatus(st Status) {
	if st == c.status {
		return
	}
	c.log.WithFields(logrus.Fields{"from": c.status.String(), "to": st.String()}).Info("sensor status changed")
	c.status = st
}

func (c *cycle) read(kind DataKind, n int) ([]float64, error) {
	v, err := c.drv.Read(kind)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", kind, err)
	}
	if len(v) != n {
		return nil, fmt.Errorf("read %s: got %d values, want %d", kind, len(v), n)
	}
	return v, nil
}

func (c *cycle) skip(err error) {
	c.log.WithError(err).Debug("sensor cycle skipped")
}

func (c *cycle) disconnected() {
	c.setStatus(StatusNotAccessible)
	c.lastReconnect = c.now()
}

func (c *cycle) checkCalibrated() bool {
	if !c.drv.Calibrated() {
		c.setStatus(StatusCalibrating)
		return false
	}
	c.setStatus(StatusWorking)
	return true
}
