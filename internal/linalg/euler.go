package linalg

import "math"

// EulerAngles holds roll, pitch and yaw in radians.
type EulerAngles struct {
	Roll, Pitch, Yaw float64
}

func ToDegrees(rad float64) float64 { return rad * 180 / math.Pi }
func ToRadians(deg float64) float64 { return deg * math.Pi / 180 }

func (e EulerAngles) Degrees() EulerAngles {
	return EulerAngles{Roll: ToDegrees(e.Roll), Pitch: ToDegrees(e.Pitch), Yaw: ToDegrees(e.Yaw)}
}

func (e EulerAngles) Radians() EulerAngles {
	return EulerAngles{Roll: ToRadians(e.Roll), Pitch: ToRadians(e.Pitch), Yaw: ToRadians(e.Yaw)}
}

func (e EulerAngles) Vector() Vector { return VectorOf(e.Roll, e.Pitch, e.Yaw) }

// RotationMatrix composes Ryaw * Rpitch * Rroll.
func (e EulerAngles) RotationMatrix() Matrix {
	cy, sy := math.Cos(e.Yaw), math.Sin(e.Yaw)
	cp, sp := math.Cos(e.Pitch), math.Sin(e.Pitch)
	cr, sr := math.Cos(e.Roll), math.Sin(e.Roll)

	yaw, _ := NewMatrixFrom(3, 3, []float64{
		cy, sy, 0,
		-sy, cy, 0,
		0, 0, 1,
	})
	pitch, _ := NewMatrixFrom(3, 3, []float64{
		cp, 0, -sp,
		0, 1, 0,
		sp, 0, cp,
	})
	roll, _ := NewMatrixFrom(3, 3, []float64{
		1, 0, 0,
		0, cr, sr,
		0, -sr, cr,
	})

	pr, _ := Multiply(pitch, roll)
	out, _ := Multiply(yaw, pr)
	return out
}

// Quaternion converts the rotation matrix with the trace/largest-diagonal
// branch selection and normalizes the result.
func (e EulerAngles) Quaternion() (Quaternion, error) {
	r := e.RotationMatrix()
	r00, r11, r22 := r.At(0, 0), r.At(1, 1), r.At(2, 2)
	trace := r00 + r11 + r22

	var q Quaternion
	switch {
	case trace > 0:
		s := 2 * math.Sqrt(1+trace)
		q.W = s / 4
		q.X = (r.At(2, 1) - r.At(1, 2)) / s
		q.Y = (r.At(0, 2) - r.At(2, 0)) / s
		q.Z = (r.At(1, 0) - r.At(0, 1)) / s
	case r00 >= r11 && r00 >= r22:
		s := 2 * math.Sqrt(1+r00-r11-r22)
		q.X = s / 4
		q.W = (r.At(2, 1) - r.At(1, 2)) / s
		q.Y = (r.At(0, 1) + r.At(1, 0)) / s
		q.Z = (r.At(0, 2) + r.At(2, 0)) / s
	case r11 >= r22:
		s := 2 * math.Sqrt(1+r11-r00-r22)
		q.Y = s / 4
		q.W = (r.At(0, 2) - r.At(2, 0)) / s
		q.X = (r.At(0, 1) + r.At(1, 0)) / s
		q.Z = (r.At(1, 2) + r.At(2, 1)) / s
	default:
		s := 2 * math.Sqrt(1+r22-r00-r11)
		q.Z = s / 4
		q.W = (r.At(1, 0) - r.At(0, 1)) / s
		q.X = (r.At(0, 2) + r.At(2, 0)) / s
		q.Y = (r.At(1, 2) + r.At(2, 1)) / s
	}
	if err := q.Normalize(); err != nil {
		return Quaternion{}, err
	}
	return q, nil
}
