package orientation

import (
	"math"

	"github.com/relabs-tech/block_telemetry/internal/telemetry"
)

// Pose is the block's tilt in degrees. Heading cannot be recovered from an
// accelerometer alone, so there is no yaw.
type Pose struct {
	Roll  float64 `json:"roll"`
	Pitch float64 `json:"pitch"`
}

// FromAccel computes roll and pitch from acceleration in any unit:
//
//	roll  = atan2(ay, az)
//	pitch = atan2(-ax, sqrt(ay² + az²))
func FromAccel(ax, ay, az float64) Pose {
	rollRad := math.Atan2(ay, az)
	pitchRad := math.Atan2(-ax, math.Sqrt(ay*ay+az*az))

	return Pose{
		Roll:  rollRad * 180.0 / math.Pi,
		Pitch: pitchRad * 180.0 / math.Pi,
	}
}

// FromMessage computes the tilt of a calibrated telemetry message.
func FromMessage(m telemetry.Message) Pose {
	return FromAccel(m.AccX, m.AccY, m.AccZ)
}
