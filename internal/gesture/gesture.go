// Package gesture recognizes how the block is being handled from its
// telemetry: which face points up, turning about that face, and shaking.
package gesture

import (
	"math"
	"time"

	"github.com/relabs-tech/block_telemetry/internal/telemetry"
)

// Face names the axis and sign that points up.
type Face string

const (
	FaceNone   Face = ""
	FacePlusX  Face = "x+"
	FaceMinusX Face = "x-"
	FacePlusY  Face = "y+"
	FaceMinusY Face = "y-"
	FacePlusZ  Face = "z+"
	FaceMinusZ Face = "z-"
)

// Config holds detection thresholds. Acceleration thresholds are in the
// units of the calibrated telemetry.
type Config struct {
	Gravity           float64
	Tolerance         float64
	RotationThreshold float64 // rad/s
	ShakeThreshold    float64
	ShakeCount        int // consecutive-ish shaking samples for one shake
	ShakeCountMax     int
	Dwell             time.Duration
}

// DefaultConfig matches telemetry calibrated to g.
var DefaultConfig = Config{
	Gravity:           1,
	Tolerance:         0.05,
	RotationThreshold: 1,
	ShakeThreshold:    1.5,
	ShakeCount:        3,
	ShakeCountMax:     10,
	Dwell:             250 * time.Millisecond,
}

// FaceOf returns the face pointing up when exactly gravity (within
// tolerance) acts along one axis. X wins over Y, Y over Z.
func FaceOf(m telemetry.Message, gravity, tolerance float64) (Face, bool) {
	near := func(v float64) bool {
		return math.Abs(math.Abs(v)-gravity) < tolerance
	}
	switch {
	case near(m.AccX):
		if m.AccX > 0 {
			return FacePlusX, true
		}
		return FaceMinusX, true
	case near(m.AccY):
		if m.AccY > 0 {
			return FacePlusY, true
		}
		return FaceMinusY, true
	case near(m.AccZ):
		if m.AccZ > 0 {
			return FacePlusZ, true
		}
		return FaceMinusZ, true
	}
	return FaceNone, false
}

// RotationAbout returns +1 or -1 when the block turns about the up axis
// faster than threshold, 0 otherwise. The sign is flipped for '+' faces so
// that clockwise seen from above is always +1.
func RotationAbout(face Face, m telemetry.Message, threshold float64) int {
	if len(face) != 2 {
		return 0
	}
	var rate float64
	switch face[0] {
	case 'x':
		rate = m.GyrX
	case 'y':
		rate = m.GyrY
	case 'z':
		rate = m.GyrZ
	default:
		return 0
	}
	if face[1] == '+' {
		rate = -rate
	}
	if math.Abs(rate) > threshold {
		if rate > 0 {
			return 1
		}
		return -1
	}
	return 0
}

// IsShaking reports whether the acceleration magnitude exceeds threshold.
func IsShaking(m telemetry.Message, threshold float64) bool {
	mag := math.Sqrt(m.AccX*m.AccX + m.AccY*m.AccY + m.AccZ*m.AccZ)
	return mag > threshold
}
