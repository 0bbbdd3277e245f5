// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package board

import (
	"fmt"
	"math"
	"time"

	"github.com/relabs-tech/flight_core/internal/config"
	"github.com/relabs-tech/flight_core/internal/mathx"
	"github.com/relabs-tech/flight_core/internal/mixer"
	"github.com/relabs-tech/flight_core/internal/rc"
)

// SimParams are the rigid-body constants of the simulated airframe.
type SimParams struct {
	// RollPitchGain is angular acceleration (rad/s²) per unit of
	// differential thrust on roll and pitch.
	RollPitchGain float64
	// YawGain is angular acceleration (rad/s²) per unit of prop torque.
	YawGain float64
	// Damping is the aerodynamic rate damping in 1/s.
	Damping float64
}

// DefaultSimParams returns a small, well damped quad.
func DefaultSimParams() SimParams {
	return SimParams{
		RollPitchGain: 40,
		YawGain:       8,
		Damping:       2,
	}
}

// Sim is a deterministic attitude-only quadcopter model. Motor pulses
// become thrust in [0,1]; differential thrust through the airframe table
// becomes angular acceleration; the gyro is the body rate scaled by the
// configured gyro scale. It also serves scripted stick channels.
type Sim struct {
	params    SimParams
	table     mixer.Table
	pwm       config.PWMConfig
	gyroScale float64

	micros uint64
	thrust [mixer.NumMotors]float64
	rates  [3]float64 // rad/s
	euler  [3]float64 // rad

	channels []uint16
	linkLost bool
}

// NewSim builds a level, motionless simulator with sticks centered and the
// throttle down.
func NewSim(cfg *config.Config, table mixer.Table, params SimParams) *Sim {
	s := &Sim{
		params:    params,
		table:     table,
		pwm:       cfg.PWM,
		gyroScale: float64(cfg.IMU.GyroScale),
		channels:  make([]uint16, rc.NumChannels),
	}
	for i := range s.channels {
		s.channels[i] = cfg.RC.Mid
	}
	s.channels[rc.Throttle] = uint16(cfg.PWM.Min)
	s.channels[cfg.RC.AuxChannel%rc.NumChannels] = uint16(cfg.PWM.Min)
	return s
}

// Step integrates the model over dt and advances the clock.
func (s *Sim) Step(dt time.Duration) error {
	if dt <= 0 {
		return fmt.Errorf("sim: non-positive step %v", dt)
	}
	sec := dt.Seconds()

	var torque [3]float64
	for i, mix := range s.table {
		torque[0] += s.thrust[i] * float64(mix.Roll)
		torque[1] += s.thrust[i] * float64(mix.Pitch)
		torque[2] -= s.thrust[i] * float64(mix.Yaw)
	}
	gains := [3]float64{s.params.RollPitchGain, s.params.RollPitchGain, s.params.YawGain}

	for axis := 0; axis < 3; axis++ {
		accel := gains[axis]*torque[axis] - s.params.Damping*s.rates[axis]
		s.rates[axis] += accel * sec
		s.euler[axis] += s.rates[axis] * sec
	}
	s.euler[2] = wrapPi(s.euler[2])

	s.micros += uint64(dt.Microseconds())
	return nil
}

// Micros implements Board.
func (s *Sim) Micros() uint64 {
	return s.micros
}

// ReadGyro implements Board.
func (s *Sim) ReadGyro() ([3]int16, error) {
	var g [3]int16
	for axis, r := range s.rates {
		g[axis] = mathx.SaturateInt16(int64(r * s.gyroScale))
	}
	return g, nil
}

// ReadOrientation implements Board.
func (s *Sim) ReadOrientation() ([3]float32, error) {
	var e [3]float32
	for axis, a := range s.euler {
		e[axis] = float32(a * 180 / math.Pi)
	}
	return e, nil
}

// WriteMotor implements Board; the pulse maps linearly onto thrust.
func (s *Sim) WriteMotor(index int, value int16) error {
	if index < 0 || index >= mixer.NumMotors {
		return fmt.Errorf("sim: motor index %d out of range", index)
	}
	thrust := mathx.MapRange(float64(value), float64(s.pwm.Min), float64(s.pwm.Max), 0, 1)
	s.thrust[index] = mathx.Constrain(thrust, 0, 1)
	return nil
}

// ReadChannels implements rc.ChannelSource. The simulated transmitter
// delivers a fresh frame every tick unless the link is cut.
func (s *Sim) ReadChannels() ([]uint16, bool) {
	if s.linkLost {
		return nil, false
	}
	out := make([]uint16, len(s.channels))
	copy(out, s.channels)
	return out, true
}

// SetChannels scripts the sticks.
func (s *Sim) SetChannels(channels []uint16) {
	copy(s.channels, channels)
}

// SetChannel scripts a single channel.
func (s *Sim) SetChannel(index int, value uint16) {
	if index < 0 || index >= len(s.channels) {
		return
	}
	s.channels[index] = value
}

// SetLinkLost cuts or restores the simulated receiver link.
func (s *Sim) SetLinkLost(lost bool) {
	s.linkLost = lost
}

// Disturb adds an angular rate kick in rad/s, e.g. a gust.
func (s *Sim) Disturb(roll, pitch, yaw float64) {
	s.rates[0] += roll
	s.rates[1] += pitch
	s.rates[2] += yaw
}

// Thrust returns the normalized thrust of each motor.
func (s *Sim) Thrust() [mixer.NumMotors]float64 {
	return s.thrust
}

func wrapPi(a float64) float64 {
	for a >= math.Pi {
		a -= 2 * math.Pi
	}
	for a < -math.Pi {
		a += 2 * math.Pi
	}
	return a
}
