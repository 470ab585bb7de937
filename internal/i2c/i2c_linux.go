//go:build linux

package i2c

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Register access on /dev/i2c-N. Each access is one I2C_RDWR ioctl carrying
// a write segment and a read segment, so the register pointer write and the
// data read are joined by a repeated start.

const (
	ioctlI2CRdwr = 0x0707
	flagRead     = 0x0001
)

// segment mirrors struct i2c_msg.
type segment struct {
	addr  uint16
	flags uint16
	len   uint16
	buf   uintptr
}

// rdwrArgs mirrors struct i2c_rdwr_ioctl_data.
type rdwrArgs struct {
	segs  uintptr
	nsegs uint32
}

// Bus is an open I2C adapter. Devices on it share the file descriptor and
// their transfers are serialized.
type Bus struct {
	mu   sync.Mutex
	f    *os.File
	path string
}

// BusPath returns the character device of bus number n.
func BusPath(n int) string { return fmt.Sprintf("/dev/i2c-%d", n) }

func Open(path string) (*Bus, error) {
	path = filepath.Clean(path)
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("i2c: open %s: %w", path, err)
	}
	return &Bus{f: f, path: path}, nil
}

func (b *Bus) Path() string {
	if b == nil {
		return ""
	}
	return b.path
}

func (b *Bus) Close() error {
	if b == nil {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.f == nil {
		return nil
	}
	err := b.f.Close()
	b.f = nil
	return err
}

// Dev returns the device at 7-bit address addr. Nothing is sent until the
// first register access.
func (b *Bus) Dev(addr uint16) *Dev {
	if b == nil {
		return nil
	}
	return &Dev{bus: b, addr: addr}
}

type Dev struct {
	bus  *Bus
	addr uint16
}

func (d *Dev) Addr() uint16 {
	if d == nil {
		return 0
	}
	return d.addr
}

func (d *Dev) ReadReg(reg byte, dst []byte) error {
	return d.transfer([]byte{reg}, dst)
}

func (d *Dev) ReadRegU8(reg byte) (byte, error) {
	var b [1]byte
	if err := d.transfer([]byte{reg}, b[:]); err != nil {
		return 0, err
	}
	return b[0], nil
}

// ReadRegs reads n consecutive registers starting at reg.
func (d *Dev) ReadRegs(reg byte, n int) ([]byte, error) {
	if n <= 0 {
		return nil, fmt.Errorf("i2c: invalid read length %d", n)
	}
	buf := make([]byte, n)
	if err := d.transfer([]byte{reg}, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

func (d *Dev) WriteReg(reg, value byte) error {
	return d.transfer([]byte{reg, value}, nil)
}

func (d *Dev) transfer(w, r []byte) error {
	if d == nil || d.bus == nil {
		return errors.New("i2c: device not open")
	}
	if d.addr == 0 || d.addr > 0x7F {
		return fmt.Errorf("i2c: invalid address 0x%X", d.addr)
	}

	var segs []segment
	if len(w) > 0 {
		segs = append(segs, segment{addr: d.addr, len: uint16(len(w)), buf: uintptr(unsafe.Pointer(&w[0]))})
	}
	if len(r) > 0 {
		segs = append(segs, segment{addr: d.addr, flags: flagRead, len: uint16(len(r)), buf: uintptr(unsafe.Pointer(&r[0]))})
	}
	if len(segs) == 0 {
		return nil
	}

	d.bus.mu.Lock()
	defer d.bus.mu.Unlock()
	if d.bus.f == nil {
		return errors.New("i2c: device not open")
	}
	args := rdwrArgs{segs: uintptr(unsafe.Pointer(&segs[0])), nsegs: uint32(len(segs))}
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, d.bus.f.Fd(), ioctlI2CRdwr, uintptr(unsafe.Pointer(&args)))
	if errno != 0 {
		return fmt.Errorf("i2c: transfer to 0x%02X on %s: %w", d.addr, d.bus.path, errno)
	}
	return nil
}
