package statusled

import (
	"time"

	"bodynodes/internal/orientation"
)

// BlinkPeriod is the toggle interval while the sensor is calibrating.
const BlinkPeriod = 500 * time.Millisecond

// LED is a single on/off status light.
type LED interface {
	Set(on bool) error
	Close() error
}

// Open returns the GPIO-backed LED on pin.
func Open(pin int) (LED, error) { return openGPIOFn(pin) }

// Nop is an LED that does nothing, used when no status LED is wired.
type Nop struct{}

func (Nop) Set(bool) error { return nil }
func (Nop) Close() error   { return nil }

// Indicator shows the sensor status on an LED: steady on when the sensor is
// not accessible, blinking while it calibrates, off when it works.
type Indicator struct {
	led        LED
	on         bool
	known      bool
	lastToggle time.Time
}

func NewIndicator(led LED) *Indicator {
	if led == nil {
		led = Nop{}
	}
	return &Indicator{led: led}
}

// On reports the last state written to the LED.
func (i *Indicator) On() bool { return i.on }

func (i *Indicator) Update(st orientation.Status, now time.Time) error {
	switch st {
	case orientation.StatusNotAccessible:
		return i.set(true, now)
	case orientation.StatusCalibrating:
		if !i.known || now.Sub(i.lastToggle) >= BlinkPeriod {
			return i.set(!i.on, now)
		}
		return nil
	default:
		return i.set(false, now)
	}
}

func (i *Indicator) set(on bool, now time.Time) error {
	if i.known && i.on == on {
		return nil
	}
	if err := i.led.Set(on); err != nil {
		return err
	}
	i.on = on
	i.known = true
	i.lastToggle = now
	return nil
}

func (i *Indicator) Close() error { return i.led.Close() }
