package replay

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/golang/geo/r3"

	"bodynodes/internal/ahrs"
)

// Log format: line-oriented text.
//
// - Blank lines ignored.
// - Lines starting with '#' ignored.
// - Line "START" marks a new recording session (sensor re-init or restart).
// - Data lines are: <t_ms>,gx,gy,gz,ax,ay,az[,mx,my,mz]
//   where t_ms is the sample timestamp in milliseconds and the rest are the
//   realigned gyro, accel and optional magnetometer readings in driver units.

type Record struct {
	// Start is set on START markers; Sample is empty then.
	Start  bool
	Sample ahrs.Sample
}

type Reader struct {
	r io.Reader
}

func NewReader(r io.Reader) *Reader {
	return &Reader{r: r}
}

func (rr *Reader) ReadAll() ([]Record, error) {
	s := bufio.NewScanner(rr.r)
	s.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	recs := make([]Record, 0, 1024)
	lineNo := 0
	for s.Scan() {
		lineNo++
		line := strings.TrimSpace(s.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if line == "START" {
			recs = append(recs, Record{Start: true})
			continue
		}
		smp, err := parseSample(line)
		if err != nil {
			return nil, fmt.Errorf("replay line %d: %w", lineNo, err)
		}
		recs = append(recs, Record{Sample: smp})
	}
	if err := s.Err(); err != nil {
		return nil, err
	}
	return recs, nil
}

// ReadFile reads a whole sample log from path.
func ReadFile(path string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return NewReader(f).ReadAll()
}

func parseSample(line string) (ahrs.Sample, error) {
	fields := strings.Split(line, ",")
	if len(fields) != 7 && len(fields) != 10 {
		return ahrs.Sample{}, fmt.Errorf("want 7 or 10 fields, got %d", len(fields))
	}
	ts, err := strconv.ParseUint(strings.TrimSpace(fields[0]), 10, 64)
	if err != nil {
		return ahrs.Sample{}, fmt.Errorf("invalid timestamp %q: %w", fields[0], err)
	}
	vals := make([]float64, len(fields)-1)
	for i, f := range fields[1:] {
		v, err := strconv.ParseFloat(strings.TrimSpace(f), 64)
		if err != nil {
			return ahrs.Sample{}, fmt.Errorf("invalid value %q: %w", f, err)
		}
		vals[i] = v
	}
	smp := ahrs.Sample{
		TimestampMs: ts,
		Gyro:        r3.Vector{X: vals[0], Y: vals[1], Z: vals[2]},
		Accel:       r3.Vector{X: vals[3], Y: vals[4], Z: vals[5]},
	}
	if len(vals) == 9 {
		smp.Mag = &r3.Vector{X: vals[6], Y: vals[7], Z: vals[8]}
	}
	return smp, nil
}

type Writer struct {
	f      *os.File
	w      *bufio.Writer
	closed bool
}

func CreateWriter(path string) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	bw := bufio.NewWriterSize(f, 64*1024)
	if _, err := bw.WriteString("START\n"); err != nil {
		_ = f.Close()
		return nil, err
	}
	return &Writer{f: f, w: bw}, nil
}

func formatFloat(v float64) string { return strconv.FormatFloat(v, 'g', -1, 64) }

func (ww *Writer) WriteSample(s ahrs.Sample) error {
	if ww.closed {
		return errors.New("replay writer is closed")
	}
	parts := []string{
		strconv.FormatUint(s.TimestampMs, 10),
		formatFloat(s.Gyro.X), formatFloat(s.Gyro.Y), formatFloat(s.Gyro.Z),
		formatFloat(s.Accel.X), formatFloat(s.Accel.Y), formatFloat(s.Accel.Z),
	}
	if s.Mag != nil {
		parts = append(parts, formatFloat(s.Mag.X), formatFloat(s.Mag.Y), formatFloat(s.Mag.Z))
	}
	_, err := ww.w.WriteString(strings.Join(parts, ",") + "\n")
	return err
}

// WriteStart marks a new session, e.g. after the sensor was re-initialized.
func (ww *Writer) WriteStart() error {
	if ww.closed {
		return errors.New("replay writer is closed")
	}
	_, err := ww.w.WriteString("START\n")
	return err
}

func (ww *Writer) Flush() error {
	if ww.closed {
		return nil
	}
	return ww.w.Flush()
}

func (ww *Writer) Close() error {
	if ww.closed {
		return nil
	}
	ww.closed = true
	if err := ww.w.Flush(); err != nil {
		_ = ww.f.Close()
		return err
	}
	return ww.f.Close()
}

type Sleeper interface {
	Sleep(d time.Duration)
}

type realSleeper struct{}

func (realSleeper) Sleep(d time.Duration) { time.Sleep(d) }

// Play replays records with their relative timing.
//
// The callback gets every sample; start is true for the first sample after a
// START marker (and for the very first sample of each loop). Waits follow the
// sample timestamps; non-increasing timestamps do not wait.
//
// speedMultiplier: 1.0 = real time, 2.0 = 2x speed (half waits), 0.5 = half speed.
func Play(records []Record, speedMultiplier float64, loop bool, sleeper Sleeper, cb func(s ahrs.Sample, start bool) error) error {
	if speedMultiplier <= 0 {
		return fmt.Errorf("speedMultiplier must be > 0")
	}
	if sleeper == nil {
		sleeper = realSleeper{}
	}
	if cb == nil {
		return errors.New("callback is nil")
	}
	if !hasSamples(records) {
		return errors.New("no samples")
	}

	for {
		var lastMs uint64
		haveLast := false
		start := true

		for _, r := range records {
			if r.Start {
				haveLast = false
				start = true
				continue
			}

			ts := r.Sample.TimestampMs
			if haveLast && ts > lastMs {
				wait := time.Duration(ts-lastMs) * time.Millisecond
				wait = time.Duration(float64(wait) / speedMultiplier)
				if wait > 0 {
					sleeper.Sleep(wait)
				}
			}

			if err := cb(r.Sample, start); err != nil {
				return err
			}

			start = false
			lastMs = ts
			haveLast = true
		}

		if !loop {
			return nil
		}
	}
}

func hasSamples(records []Record) bool {
	for _, r := range records {
		if !r.Start {
			return true
		}
	}
	return false
}
