//go:build !linux || (!arm && !arm64)

package statusled

import "fmt"

func openGPIO(pin int) (LED, error) {
	return nil, fmt.Errorf("statusled: gpio unsupported on this platform")
}

var openGPIOFn = openGPIO
