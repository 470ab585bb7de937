package mpu6050

import (
	"errors"
	"math"
	"testing"
	"time"

	"bodynodes/internal/orientation"
)

type fakeI2C struct {
	regs   map[byte][]byte
	writes []writeOp
	reads  int

	// Optional overrides.
	readErrFor  map[byte]error
	writeErrFor map[byte]error
}

type writeOp struct {
	reg byte
	val byte
}

func (f *fakeI2C) ReadRegU8(reg byte) (byte, error) {
	if err := f.readErrFor[reg]; err != nil {
		return 0, err
	}
	b := f.regs[reg]
	if len(b) < 1 {
		return 0, errors.New("no reg")
	}
	return b[0], nil
}

func (f *fakeI2C) ReadReg(reg byte, dst []byte) error {
	f.reads++
	if err := f.readErrFor[reg]; err != nil {
		return err
	}
	b := f.regs[reg]
	if len(b) < len(dst) {
		return errors.New("short reg")
	}
	copy(dst, b[:len(dst)])
	return nil
}

func (f *fakeI2C) WriteReg(reg, value byte) error {
	if err := f.writeErrFor[reg]; err != nil {
		return err
	}
	f.writes = append(f.writes, writeOp{reg: reg, val: value})
	return nil
}

func noSleep(t *testing.T) {
	t.Helper()
	oldSleep := sleep
	sleep = func(time.Duration) {}
	t.Cleanup(func() { sleep = oldSleep })
}

func begun(t *testing.T, f *fakeI2C) *Device {
	t.Helper()
	d, err := New(f)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := d.Begin(); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	return d
}

func TestBegin_WhoAmIMismatch(t *testing.T) {
	noSleep(t)

	f := &fakeI2C{regs: map[byte][]byte{regWhoAmI: {0x00}}}
	d, err := New(f)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := d.Begin(); err == nil {
		t.Fatalf("expected error")
	}
}

func TestBegin_WritesExpectedInitRegisters(t *testing.T) {
	noSleep(t)

	f := &fakeI2C{regs: map[byte][]byte{regWhoAmI: {whoAmIVal}}}
	begun(t, f)

	want := []writeOp{
		{regPwrMgmt1, bitReset},
		{regPwrMgmt1, clkPLLGyroX},
		{regIntEnable, 0x00},
		{regConfig, dlpf44Hz},
		{regSmplrtDiv, 19},
		{regGyroConfig, fsGyro500dps},
		{regAccelConfig, fsAccel4g},
	}
	if len(f.writes) != len(want) {
		t.Fatalf("writes=%v want %v", f.writes, want)
	}
	for i := range want {
		if f.writes[i] != want[i] {
			t.Fatalf("write[%d]=%+v want %+v", i, f.writes[i], want[i])
		}
	}
}

func TestBegin_InterruptDisableErrorPropagates(t *testing.T) {
	noSleep(t)

	busErr := errors.New("nack")
	f := &fakeI2C{regs: map[byte][]byte{regWhoAmI: {whoAmIVal}}, writeErrFor: map[byte]error{regIntEnable: busErr}}
	d, err := New(f)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := d.Begin(); !errors.Is(err, busErr) {
		t.Fatalf("err=%v want %v", err, busErr)
	}
	if _, err := d.ReadSample(); err == nil {
		t.Fatalf("expected ReadSample to fail after a failed Begin")
	}
}

func TestNew_NilDev(t *testing.T) {
	if _, err := New(nil); err == nil {
		t.Fatalf("expected error")
	}
}

func TestReadSample_ScalesBurst(t *testing.T) {
	noSleep(t)

	burst := []byte{
		0x20, 0x00, // ax = 8192 -> 1 g
		0xE0, 0x00, // ay = -8192 -> -1 g
		0x00, 0x00, // az
		0x12, 0x34, // temp
		0x40, 0x00, // gx = 16384 -> 250 dps
		0x00, 0x00, // gy
		0xC0, 0x00, // gz = -16384 -> -250 dps
	}
	f := &fakeI2C{regs: map[byte][]byte{regWhoAmI: {whoAmIVal}, regAccelXoutH: burst}}
	d := begun(t, f)

	s, err := d.ReadSample()
	if err != nil {
		t.Fatalf("ReadSample: %v", err)
	}
	if math.Abs(s.Accel.X-1) > 1e-12 || math.Abs(s.Accel.Y+1) > 1e-12 || s.Accel.Z != 0 {
		t.Fatalf("accel=%v want (1,-1,0)", s.Accel)
	}
	if math.Abs(s.Gyro.X-250) > 1e-9 || s.Gyro.Y != 0 || math.Abs(s.Gyro.Z+250) > 1e-9 {
		t.Fatalf("gyro=%v want (250,0,-250)", s.Gyro)
	}
}

func TestRead_GyroThenAccelShareOneBurst(t *testing.T) {
	noSleep(t)

	burst := make([]byte, burstLen)
	burst[4] = 0x20 // az = 1 g
	f := &fakeI2C{regs: map[byte][]byte{regWhoAmI: {whoAmIVal}, regAccelXoutH: burst}}
	d := begun(t, f)

	if _, err := d.Read(orientation.KindGyro); err != nil {
		t.Fatalf("Read(gyro): %v", err)
	}
	a, err := d.Read(orientation.KindAccel)
	if err != nil {
		t.Fatalf("Read(accel): %v", err)
	}
	if f.reads != 1 {
		t.Fatalf("burst reads=%d want 1", f.reads)
	}
	if len(a) != 3 || math.Abs(a[2]-1) > 1e-12 {
		t.Fatalf("accel=%v want [0 0 1]", a)
	}

	// A lone accel read performs its own burst.
	if _, err := d.Read(orientation.KindAccel); err != nil {
		t.Fatalf("Read(accel): %v", err)
	}
	if f.reads != 2 {
		t.Fatalf("burst reads=%d want 2", f.reads)
	}
}

func TestRead_UnsupportedKinds(t *testing.T) {
	noSleep(t)

	f := &fakeI2C{regs: map[byte][]byte{regWhoAmI: {whoAmIVal}}}
	d := begun(t, f)
	for _, k := range []orientation.DataKind{orientation.KindMag, orientation.KindQuaternion} {
		if _, err := d.Read(k); !errors.Is(err, orientation.ErrNoData) {
			t.Fatalf("Read(%v) err=%v want %v", k, err, orientation.ErrNoData)
		}
	}
}

func TestRead_BusErrorPropagates(t *testing.T) {
	noSleep(t)

	busErr := errors.New("nack")
	f := &fakeI2C{regs: map[byte][]byte{regWhoAmI: {whoAmIVal}}, readErrFor: map[byte]error{regAccelXoutH: busErr}}
	d := begun(t, f)
	if _, err := d.Read(orientation.KindGyro); !errors.Is(err, busErr) {
		t.Fatalf("err=%v want %v", err, busErr)
	}
}

func TestReadSample_BeforeBegin(t *testing.T) {
	d, _ := New(&fakeI2C{})
	if _, err := d.ReadSample(); err == nil {
		t.Fatalf("expected error")
	}
}
