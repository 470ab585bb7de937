package mpu6050

import (
	"fmt"
	"time"

	"github.com/golang/geo/r3"

	"bodynodes/internal/orientation"
)

var sleep = time.Sleep

// MPU-6050 6-axis IMU. No magnetometer and no on-chip fusion, so the node
// runs the AHRS filter on its readings.
//
// WHO_AM_I at 0x75 returns 0x68 regardless of the AD0 pin.

const (
	addrDefault = 0x68

	regSmplrtDiv   = 0x19
	regConfig      = 0x1A
	regGyroConfig  = 0x1B
	regAccelConfig = 0x1C
	regIntEnable   = 0x38
	regAccelXoutH  = 0x3B // accel(6) temp(2) gyro(6)
	regPwrMgmt1    = 0x6B
	regWhoAmI      = 0x75
	whoAmIVal      = 0x68

	bitReset    = 0x80
	clkPLLGyroX = 0x01
	dlpf44Hz    = 0x03

	fsGyro500dps = 0x08
	fsAccel4g    = 0x08

	burstLen = 14
)

type Sample struct {
	Time time.Time
	// Accel in g.
	Accel r3.Vector
	// Gyro in deg/s.
	Gyro r3.Vector
}

type regIO interface {
	ReadRegU8(reg byte) (byte, error)
	ReadReg(reg byte, dst []byte) error
	WriteReg(reg, value byte) error
}

type Device struct {
	dev regIO

	scaleAccel float64
	scaleGyro  float64

	// One burst read serves the gyro and accel reads of one poll cycle.
	cached       Sample
	accelPending bool
}

func DefaultAddress() uint16 { return addrDefault }

// New wraps a register interface. No I/O happens until Begin.
func New(dev regIO) (*Device, error) {
	if dev == nil {
		return nil, fmt.Errorf("mpu6050: dev is nil")
	}
	return &Device{dev: dev}, nil
}

// Begin probes WHO_AM_I, resets the chip and configures 500 dps / 4 g at 50 Hz.
func (d *Device) Begin() error {
	who, err := d.dev.ReadRegU8(regWhoAmI)
	if err != nil {
		return fmt.Errorf("mpu6050: whoami read failed: %w", err)
	}
	if who != whoAmIVal {
		return fmt.Errorf("mpu6050: whoami=0x%02X want 0x%02X", who, whoAmIVal)
	}

	if err := d.dev.WriteReg(regPwrMgmt1, bitReset); err != nil {
		return fmt.Errorf("mpu6050: reset failed: %w", err)
	}
	sleep(100 * time.Millisecond)

	// Wake with the gyro X PLL as clock source.
	if err := d.dev.WriteReg(regPwrMgmt1, clkPLLGyroX); err != nil {
		return fmt.Errorf("mpu6050: wake failed: %w", err)
	}
	sleep(10 * time.Millisecond)

	if err := d.dev.WriteReg(regIntEnable, 0x00); err != nil {
		return fmt.Errorf("mpu6050: interrupt disable failed: %w", err)
	}

	// With the DLPF enabled the gyro rate is 1 kHz; 1000/(19+1) = 50 Hz.
	if err := d.dev.WriteReg(regConfig, dlpf44Hz); err != nil {
		return fmt.Errorf("mpu6050: dlpf config failed: %w", err)
	}
	if err := d.dev.WriteReg(regSmplrtDiv, 19); err != nil {
		return fmt.Errorf("mpu6050: sample rate config failed: %w", err)
	}
	if err := d.dev.WriteReg(regGyroConfig, fsGyro500dps); err != nil {
		return fmt.Errorf("mpu6050: gyro config failed: %w", err)
	}
	if err := d.dev.WriteReg(regAccelConfig, fsAccel4g); err != nil {
		return fmt.Errorf("mpu6050: accel config failed: %w", err)
	}

	d.scaleAccel = 4.0 / 32768.0
	d.scaleGyro = 500.0 / 32768.0
	d.accelPending = false
	return nil
}

// Calibrated is always true: the MPU-6050 has no calibration state.
func (d *Device) Calibrated() bool { return true }

func (d *Device) ReadSample() (Sample, error) {
	if d == nil {
		return Sample{}, fmt.Errorf("mpu6050: device is nil")
	}
	if d.scaleAccel == 0 {
		return Sample{}, fmt.Errorf("mpu6050: not initialized")
	}
	buf := make([]byte, burstLen)
	if err := d.dev.ReadReg(regAccelXoutH, buf); err != nil {
		return Sample{}, fmt.Errorf("mpu6050: read sensors failed: %w", err)
	}

	be := func(i int) float64 { return float64(int16(buf[i])<<8 | int16(buf[i+1])) }

	return Sample{
		Time:  time.Now(),
		Accel: r3.Vector{X: be(0) * d.scaleAccel, Y: be(2) * d.scaleAccel, Z: be(4) * d.scaleAccel},
		// buf[6:8] is temperature.
		Gyro: r3.Vector{X: be(8) * d.scaleGyro, Y: be(10) * d.scaleGyro, Z: be(12) * d.scaleGyro},
	}, nil
}

// Read implements orientation.Driver. A gyro read performs the burst and the
// following accel read reuses it.
func (d *Device) Read(kind orientation.DataKind) ([]float64, error) {
	switch kind {
	case orientation.KindGyro:
		s, err := d.ReadSample()
		if err != nil {
			return nil, err
		}
		d.cached = s
		d.accelPending = true
		return []float64{s.Gyro.X, s.Gyro.Y, s.Gyro.Z}, nil
	case orientation.KindAccel:
		if !d.accelPending {
			s, err := d.ReadSample()
			if err != nil {
				return nil, err
			}
			d.cached = s
		}
		d.accelPending = false
		a := d.cached.Accel
		return []float64{a.X, a.Y, a.Z}, nil
	default:
		return nil, orientation.ErrNoData
	}
}
