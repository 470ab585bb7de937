//go:build linux && (arm || arm64)

package statusled

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/warthog618/go-gpiocdev"
)

const consumer = "bodynode-status"

// gpioChips lists the character devices to search for the LED line. The
// header sits on gpiochip0 on most boards and on gpiochip4 on some Pi 5
// kernels, so those go first.
func gpioChips() []string {
	chips := []string{"/dev/gpiochip0", "/dev/gpiochip4"}
	seen := map[string]bool{chips[0]: true, chips[1]: true}
	entries, _ := os.ReadDir("/dev")
	var rest []string
	for _, e := range entries {
		p := filepath.Join("/dev", e.Name())
		if strings.HasPrefix(e.Name(), "gpiochip") && !seen[p] {
			rest = append(rest, p)
		}
	}
	sort.Strings(rest)
	return append(chips, rest...)
}

// openGPIO claims BCM line GPIO<pin> as an output, starting dark.
func openGPIO(pin int) (LED, error) {
	if pin <= 0 {
		return nil, fmt.Errorf("statusled: invalid gpio pin %d", pin)
	}
	name := fmt.Sprintf("GPIO%d", pin)
	for _, path := range gpioChips() {
		if led, ok := claimLine(path, name); ok {
			return led, nil
		}
	}
	return nil, fmt.Errorf("statusled: no free gpio line %q", name)
}

func claimLine(chipPath, name string) (*gpiodLED, bool) {
	chip, err := gpiocdev.NewChip(chipPath)
	if err != nil {
		return nil, false
	}
	offset, err := chip.FindLine(name)
	if err == nil {
		line, err := chip.RequestLine(offset, gpiocdev.AsOutput(0), gpiocdev.WithConsumer(consumer))
		if err == nil {
			return &gpiodLED{chip: chip, line: line}, true
		}
	}
	_ = chip.Close()
	return nil, false
}

var openGPIOFn = openGPIO

type gpiodLED struct {
	chip *gpiocdev.Chip
	line *gpiocdev.Line
}

func (g *gpiodLED) Set(on bool) error {
	if g == nil || g.line == nil {
		return fmt.Errorf("statusled: line released")
	}
	if on {
		return g.line.SetValue(1)
	}
	return g.line.SetValue(0)
}

// Close turns the LED off and releases the line and chip.
func (g *gpiodLED) Close() error {
	if g == nil || g.line == nil {
		return nil
	}
	errOff := g.line.SetValue(0)
	errLine := g.line.Close()
	g.line = nil
	var errChip error
	if g.chip != nil {
		errChip = g.chip.Close()
		g.chip = nil
	}
	return errors.Join(errOff, errLine, errChip)
}
