package orientation

import (
	"math"
)

// Pose is roll, pitch and yaw in degrees.
type Pose struct {
	Roll  float64 `json:"roll"`
	Pitch float64 `json:"pitch"`
	Yaw   float64 `json:"yaw"`
}

// Euler returns the pose in the controller's [roll, pitch, yaw] order.
func (p Pose) Euler() [3]float32 {
	return [3]float32{float32(p.Roll), float32(p.Pitch), float32(p.Yaw)}
}

// ComputePoseFromAccel computes roll and pitch from accelerometer data only.
// Yaw is 0.
//
// Uses simple tilt formulas:
//
//	roll  = atan2(ay, az)
//	pitch = atan2(-ax, sqrt(ay² + az²))
func ComputePoseFromAccel(ax, ay, az float64) Pose {
	rollRad := math.Atan2(ay, az)
	pitchRad := math.Atan2(-ax, math.Sqrt(ay*ay+az*az))

	return Pose{
		Roll:  rollRad * 180.0 / math.Pi,
		Pitch: pitchRad * 180.0 / math.Pi,
	}
}

// Complementary fuses integrated gyro rates with the accelerometer tilt.
// Alpha weights the gyro path; 1 trusts the gyro only. Yaw is gyro-only
// and wraps to (-180, 180].
type Complementary struct {
	Alpha float64

	pose   Pose
	primed bool
}

// NewComplementary returns a filter that initializes from the first
// accelerometer sample.
func NewComplementary(alpha float64) *Complementary {
	return &Complementary{Alpha: alpha}
}

// Update advances the filter by dt seconds. Rates are in degrees/second
// around roll, pitch and yaw; the accelerometer may be in any unit.
func (c *Complementary) Update(ax, ay, az, rollRate, pitchRate, yawRate, dt float64) Pose {
	acc := ComputePoseFromAccel(ax, ay, az)
	if !c.primed {
		c.pose = acc
		c.primed = true
		return c.pose
	}

	c.pose.Roll = c.Alpha*(c.pose.Roll+rollRate*dt) + (1-c.Alpha)*acc.Roll
	c.pose.Pitch = c.Alpha*(c.pose.Pitch+pitchRate*dt) + (1-c.Alpha)*acc.Pitch
	c.pose.Yaw = wrap180(c.pose.Yaw + yawRate*dt)
	return c.pose
}

// Pose returns the last estimate.
func (c *Complementary) Pose() Pose {
	return c.pose
}

func wrap180(deg float64) float64 {
	for deg > 180 {
		deg -= 360
	}
	for deg <= -180 {
		deg += 360
	}
	return deg
}
