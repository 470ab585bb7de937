package orientation

import (
	"fmt"
	"strings"
)

// Axis indexes a (w, x, y, z) channel.
type Axis int

const (
	AxisW Axis = iota
	AxisX
	AxisY
	AxisZ
)

func (a Axis) String() string {
	switch a {
	case AxisW:
		return "w"
	case AxisX:
		return "x"
	case AxisY:
		return "y"
	case AxisZ:
		return "z"
	default:
		return fmt.Sprintf("axis(%d)", int(a))
	}
}

func ParseAxis(s string) (Axis, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "w":
		return AxisW, nil
	case "x":
		return AxisX, nil
	case "y":
		return AxisY, nil
	case "z":
		return AxisZ, nil
	default:
		return 0, fmt.Errorf("unknown axis %q (want w, x, y or z)", s)
	}
}

// Realignment maps sensor channels onto the body frame of one mounting.
// Output channel i takes Signs[i] * raw[Order[i]].
type Realignment struct {
	Order [4]Axis
	Signs [4]float64
}

func IdentityRealignment() Realignment {
	return Realignment{
		Order: [4]Axis{AxisW, AxisX, AxisY, AxisZ},
		Signs: [4]float64{1, 1, 1, 1},
	}
}

func (r Realignment) Validate() error {
	var seen [4]bool
	for i, a := range r.Order {
		if a < AxisW || a > AxisZ {
			return fmt.Errorf("realign: order[%d] is %v", i, a)
		}
		if seen[a] {
			return fmt.Errorf("realign: axis %v used twice", a)
		}
		seen[a] = true
	}
	for i, s := range r.Signs {
		if s != 1 && s != -1 {
			return fmt.Errorf("realign: sign[%d] is %v, want +1 or -1", i, s)
		}
	}
	return nil
}

// validateVector checks that x, y and z only draw from vector channels.
func (r Realignment) validateVector() error {
	if r.Order[AxisW] != AxisW {
		return fmt.Errorf("realign: raw 3-axis sensors need w mapped to w, got %v", r.Order[AxisW])
	}
	return nil
}

func (r Realignment) Realign(raw [4]float64) [4]float64 {
	var out [4]float64
	for i := range out {
		out[i] = r.Signs[i] * raw[r.Order[i]]
	}
	return out
}

// Realign3 applies the x, y and z entries to a vector reading.
func (r Realignment) Realign3(raw [3]float64) [3]float64 {
	out := r.Realign([4]float64{0, raw[0], raw[1], raw[2]})
	return [3]float64{out[1], out[2], out[3]}
}
