// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package mixer maps throttle and the stabilizer's axis corrections onto
// four motor commands through a fixed airframe table.
package mixer

import (
	"errors"
	"fmt"
	"log"

	"github.com/relabs-tech/flight_core/internal/config"
	"github.com/relabs-tech/flight_core/internal/mathx"
	"github.com/relabs-tech/flight_core/internal/rc"
	"github.com/relabs-tech/flight_core/internal/stabilize"
)

// NumMotors is fixed by the quadcopter airframe.
const NumMotors = 4

// ErrMotorIndex is returned for a motor index outside 0..NumMotors-1.
var ErrMotorIndex = errors.New("mixer: motor index out of range")

// MotorMix is one row of the mix table.
type MotorMix struct {
	Throttle float32 `yaml:"throttle"`
	Roll     float32 `yaml:"roll"`
	Pitch    float32 `yaml:"pitch"`
	Yaw      float32 `yaml:"yaw"`
}

// Table holds one MotorMix per motor and encodes the airframe geometry.
type Table [NumMotors]MotorMix

// QuadX is the reference quad-X airframe.
var QuadX = Table{
	{Throttle: +1, Roll: -1, Pitch: +1, Yaw: -1}, // right rear
	{Throttle: +1, Roll: -1, Pitch: -1, Yaw: +1}, // right front
	{Throttle: +1, Roll: +1, Pitch: +1, Yaw: +1}, // left rear
	{Throttle: +1, Roll: +1, Pitch: -1, Yaw: -1}, // left front
}

// MotorWriter receives the final command of every motor once per tick.
type MotorWriter interface {
	WriteMotor(index int, value int16) error
}

// Mixer owns the disarmed-motor table. Not safe for concurrent use.
type Mixer struct {
	pwm   config.PWMConfig
	table Table
	out   MotorWriter

	disarmed [NumMotors]int16
	motors   [NumMotors]int16
}

// New stores the configuration and sets every disarmed value to pwm.Min.
// out may be nil when only the returned commands are needed.
func New(pwm config.PWMConfig, table Table, out MotorWriter) *Mixer {
	m := &Mixer{pwm: pwm, table: table, out: out}
	for i := range m.disarmed {
		m.disarmed[i] = pwm.Min
	}
	return m
}

// Update mixes one tick and writes the result. The order is fixed:
// group-saturate, per-motor clamp, throttle-down override, disarmed
// override, write.
func (m *Mixer) Update(armed, throttleDown bool, demands rc.Demands, axisPID [3]int16) [NumMotors]int16 {
	var raw [NumMotors]int32

	for i, mix := range m.table {
		raw[i] = int32(float32(demands[rc.Throttle])*mix.Throttle +
			float32(axisPID[stabilize.AxisPitch])*mix.Pitch +
			float32(axisPID[stabilize.AxisRoll])*mix.Roll -
			float32(axisPID[stabilize.AxisYaw])*mix.Yaw)
	}

	maxMotor := raw[0]
	for i := 1; i < NumMotors; i++ {
		if raw[i] > maxMotor {
			maxMotor = raw[i]
		}
	}

	pwmMin, pwmMax := int32(m.pwm.Min), int32(m.pwm.Max)
	for i := range raw {
		// Keep differential thrust when one motor hits the ceiling
		if maxMotor > pwmMax {
			raw[i] -= maxMotor - pwmMax
		}

		raw[i] = mathx.Constrain(raw[i], pwmMin, pwmMax)

		// No spin-up from a yaw stick while arming
		if throttleDown {
			raw[i] = pwmMin
		}

		if !armed {
			raw[i] = int32(m.disarmed[i])
		}

		m.motors[i] = int16(raw[i])
	}

	if m.out != nil {
		for i, v := range m.motors {
			if err := m.out.WriteMotor(i, v); err != nil {
				log.Printf("mixer: write motor %d: %v", i, err)
			}
		}
	}

	return m.motors
}

// Motors returns the commands of the last Update.
func (m *Mixer) Motors() [NumMotors]int16 {
	return m.motors
}

// SetDisarmed sets the value one motor outputs while disarmed, e.g. for a
// ground-station motor test. The value is clamped to the PWM range.
func (m *Mixer) SetDisarmed(index int, value int16) error {
	if index < 0 || index >= NumMotors {
		return fmt.Errorf("%w: %d", ErrMotorIndex, index)
	}
	m.disarmed[index] = mathx.Constrain(value, m.pwm.Min, m.pwm.Max)
	return nil
}

// Disarmed returns the disarmed-motor table.
func (m *Mixer) Disarmed() [NumMotors]int16 {
	return m.disarmed
}

// PWM returns the output bounds.
func (m *Mixer) PWM() config.PWMConfig {
	return m.pwm
}

// Table returns the airframe table in use.
func (m *Mixer) Table() Table {
	return m.table
}
