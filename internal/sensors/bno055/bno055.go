package bno055

import (
	"fmt"
	"time"

	"bodynodes/internal/orientation"
)

var sleep = time.Sleep

// BNO055 9-axis IMU with on-chip fusion. The node reads its quaternion
// directly and bypasses the AHRS filter.

const (
	addrDefault = 0x28
	addrAlt     = 0x29

	regChipID     = 0x00
	chipIDVal     = 0xA0
	regPageID     = 0x07
	regQuatWLSB   = 0x20 // w, x, y, z as little-endian int16
	regCalibStat  = 0x35
	regOprMode    = 0x3D
	regPwrMode    = 0x3E
	regSysTrigger = 0x3F

	modeConfig     = 0x00
	modeNDOFFMCOff = 0x0B

	pwrNormal   = 0x00
	trigReset   = 0x20
	trigExtClk  = 0x80
	quatLSBPer1 = 16384.0

	// Calibration is good enough to trust once the system level reaches 2 of 3.
	minSysCalibration = 2
)

type regIO interface {
	ReadRegU8(reg byte) (byte, error)
	ReadReg(reg byte, dst []byte) error
	WriteReg(reg, value byte) error
}

// Calibration holds the 0..3 calibration levels reported by CALIB_STAT.
type Calibration struct {
	Sys, Gyro, Accel, Mag uint8
}

func parseCalibration(v byte) Calibration {
	return Calibration{
		Sys:   (v >> 6) & 0x03,
		Gyro:  (v >> 4) & 0x03,
		Accel: (v >> 2) & 0x03,
		Mag:   v & 0x03,
	}
}

type Device struct {
	dev regIO
}

func DefaultAddress() uint16   { return addrDefault }
func AlternateAddress() uint16 { return addrAlt }

// New wraps a register interface. No I/O happens until Begin.
func New(dev regIO) (*Device, error) {
	if dev == nil {
		return nil, fmt.Errorf("bno055: dev is nil")
	}
	return &Device{dev: dev}, nil
}

func (d *Device) chipID() error {
	id, err := d.dev.ReadRegU8(regChipID)
	if err != nil {
		return fmt.Errorf("bno055: chip id read failed: %w", err)
	}
	if id != chipIDVal {
		return fmt.Errorf("bno055: chip id=0x%02X want 0x%02X", id, chipIDVal)
	}
	return nil
}

// Begin resets the chip and starts 9-axis fusion with the external crystal.
func (d *Device) Begin() error {
	if err := d.chipID(); err != nil {
		// The chip needs up to ~850ms after power-on before it answers.
		sleep(time.Second)
		if err := d.chipID(); err != nil {
			return err
		}
	}

	if err := d.setMode(modeConfig); err != nil {
		return err
	}
	if err := d.dev.WriteReg(regSysTrigger, trigReset); err != nil {
		return fmt.Errorf("bno055: reset failed: %w", err)
	}
	sleep(650 * time.Millisecond)

	var err error
	for i := 0; i < 20; i++ {
		if err = d.chipID(); err == nil {
			break
		}
		sleep(10 * time.Millisecond)
	}
	if err != nil {
		return fmt.Errorf("bno055: no answer after reset: %w", err)
	}

	if err := d.dev.WriteReg(regPwrMode, pwrNormal); err != nil {
		return fmt.Errorf("bno055: power mode failed: %w", err)
	}
	sleep(10 * time.Millisecond)
	if err := d.dev.WriteReg(regPageID, 0); err != nil {
		return fmt.Errorf("bno055: page select failed: %w", err)
	}
	if err := d.dev.WriteReg(regSysTrigger, trigExtClk); err != nil {
		return fmt.Errorf("bno055: external crystal failed: %w", err)
	}
	sleep(10 * time.Millisecond)

	return d.setMode(modeNDOFFMCOff)
}

func (d *Device) setMode(mode byte) error {
	if err := d.dev.WriteReg(regOprMode, mode); err != nil {
		return fmt.Errorf("bno055: set mode 0x%02X failed: %w", mode, err)
	}
	// 7ms from config mode, 19ms into config mode.
	sleep(30 * time.Millisecond)
	return nil
}

func (d *Device) Calibration() (Calibration, error) {
	v, err := d.dev.ReadRegU8(regCalibStat)
	if err != nil {
		return Calibration{}, fmt.Errorf("bno055: calibration read failed: %w", err)
	}
	return parseCalibration(v), nil
}

// Calibrated reports whether the system calibration level is at least 2.
// A failed read counts as not calibrated.
func (d *Device) Calibrated() bool {
	c, err := d.Calibration()
	if err != nil {
		return false
	}
	return c.Sys >= minSysCalibration
}

func (d *Device) Quaternion() ([4]float64, error) {
	var buf [8]byte
	if err := d.dev.ReadReg(regQuatWLSB, buf[:]); err != nil {
		return [4]float64{}, fmt.Errorf("bno055: quaternion read failed: %w", err)
	}
	var q [4]float64
	for i := range q {
		raw := int16(uint16(buf[2*i]) | uint16(buf[2*i+1])<<8)
		q[i] = float64(raw) / quatLSBPer1
	}
	return q, nil
}

// Read implements orientation.Driver. Only the fused quaternion is exposed.
func (d *Device) Read(kind orientation.DataKind) ([]float64, error) {
	if kind != orientation.KindQuaternion {
		return nil, orientation.ErrNoData
	}
	q, err := d.Quaternion()
	if err != nil {
		return nil, err
	}
	return q[:], nil
}
