// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package board holds the platform side of the control loop: the Board
// contract and its simulated, recorded-replay and hardware variants.
package board

import "time"

// Board is what the control core needs from the platform. Readings must
// use the controller's axis order (roll, pitch, yaw) and sign convention.
type Board interface {
	// Micros is a strictly monotonic microsecond clock.
	Micros() uint64
	// ReadGyro returns the body rates in gyro counts.
	ReadGyro() ([3]int16, error)
	// ReadOrientation returns roll, pitch, yaw in degrees.
	ReadOrientation() ([3]float32, error)
	// WriteMotor outputs one motor pulse in PWM microseconds.
	WriteMotor(index int, value int16) error
}

// Stepper is implemented by boards that advance only when told to, such
// as the simulator and the replay board. The control loop steps them once
// at the start of every tick.
type Stepper interface {
	Step(dt time.Duration) error
}
