// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package stabilize implements the dual-loop attitude controller: a rate
// PID on every axis, blended with an angle (leveling) loop on roll and
// pitch according to stick deflection.
//
// All arithmetic is integer fixed-point with float32 gains. Products are
// truncated toward zero and every accumulator is clamped before it is
// used, so Update never fails and never overflows.
package stabilize

import (
	"github.com/relabs-tech/flight_core/internal/config"
	"github.com/relabs-tech/flight_core/internal/mathx"
	"github.com/relabs-tech/flight_core/internal/rc"
)

// Axis indices, shared with rc.Roll, rc.Pitch and rc.Yaw.
const (
	AxisRoll  = rc.Roll
	AxisPitch = rc.Pitch
	AxisYaw   = rc.Yaw
)

const (
	GyroIntegralLimit  = 16000
	AngleIntegralLimit = 10000

	// GyroSaturation zeroes the rate integral above this gyro magnitude.
	GyroSaturation = 640
	// YawDemandLimit zeroes the yaw integral above this yaw demand.
	YawDemandLimit = 100
	// YawJumpLimit bounds the yaw output beyond the yaw demand.
	YawJumpLimit = 100

	// maxProp is full stick deflection for the level/rate blend.
	maxProp = rc.MaxAxisDemand
)

// State is the controller memory that persists across ticks.
type State struct {
	ErrorGyroI  [3]int32
	ErrorAngleI [2]int32

	LastGyro [2]int16
	Delta1   [2]int32
	Delta2   [2]int32
}

// Stabilize owns its State exclusively. Not safe for concurrent use.
type Stabilize struct {
	// AxisPID is the output of the last Update, indexed by axis.
	AxisPID [3]int16

	state State

	pid config.PIDConfig
	imu config.IMUConfig
}

// New returns an initialized controller.
func New(pid config.PIDConfig, imu config.IMUConfig) *Stabilize {
	s := &Stabilize{}
	s.Init(pid, imu)
	return s
}

// Init stores the configuration, zeroes the derivative history and resets
// the integrals.
func (s *Stabilize) Init(pid config.PIDConfig, imu config.IMUConfig) {
	s.pid = pid
	s.imu = imu

	for axis := 0; axis < 2; axis++ {
		s.state.LastGyro[axis] = 0
		s.state.Delta1[axis] = 0
		s.state.Delta2[axis] = 0
	}

	s.ResetIntegral()
}

// ResetIntegral zeroes every integral accumulator and nothing else.
func (s *Stabilize) ResetIntegral() {
	s.state.ErrorGyroI = [3]int32{}
	s.state.ErrorAngleI = [2]int32{}
}

// State returns a copy of the controller memory.
func (s *Stabilize) State() State {
	return s.state
}

// Update computes AxisPID for one tick. euler is in degrees; gyro is in
// the controller's rate units.
func (s *Stabilize) Update(demands rc.Demands, gyro [3]int16, euler [3]float32) [3]int16 {
	// Roll and pitch level on the Euler angles
	s.AxisPID[AxisRoll] = s.computeLevelPID(demands, gyro, euler, AxisRoll)
	s.AxisPID[AxisPitch] = s.computeLevelPID(demands, gyro, euler, AxisPitch)

	// Yaw: P straight from the stick, no D
	iTermYaw := s.computeITermGyro(s.pid.YawP, s.pid.YawI, demands, gyro, AxisYaw)
	yaw := s.computePID(s.pid.YawP, int32(demands[AxisYaw]), iTermYaw, 0, gyro, AxisYaw)

	// Bound the yaw correction around the yaw demand
	limit := YawJumpLimit + mathx.Abs(int32(demands[rc.Yaw]))
	s.AxisPID[AxisYaw] = mathx.SaturateInt16(mathx.Constrain(yaw, -limit, limit))

	return s.AxisPID
}

func (s *Stabilize) computeITermGyro(rateP, rateI float32, demands rc.Demands, gyro [3]int16, axis int) int32 {
	errorRate := int32(float32(demands[axis])*rateP - float32(gyro[axis]))

	// Avoid integral windup
	s.state.ErrorGyroI[axis] = mathx.Constrain(s.state.ErrorGyroI[axis]+errorRate, -GyroIntegralLimit, GyroIntegralLimit)

	if mathx.Abs(int32(gyro[axis])) > GyroSaturation ||
		(axis == AxisYaw && mathx.Abs(int32(demands[axis])) > YawDemandLimit) {
		s.state.ErrorGyroI[axis] = 0
	}

	return int32(float32(s.state.ErrorGyroI[axis])*rateI) >> s.pid.ITermShift
}

func (s *Stabilize) computePID(rateP float32, pTerm, iTerm, dTerm int32, gyro [3]int16, axis int) int32 {
	pTerm = int32(float32(pTerm) - float32(gyro[axis])*rateP)
	return pTerm + iTerm - dTerm + int32(s.pid.SoftwareTrim[axis])
}

func (s *Stabilize) computeLevelPID(demands rc.Demands, gyro [3]int16, euler [3]float32, axis int) int16 {
	iTermGyro := s.computeITermGyro(s.pid.RatePitchRollP, s.pid.RatePitchRollI, demands, gyro, axis)

	// Max inclination
	maxIncl := s.imu.MaxAngleInclination
	errorAngle := int32(float32(mathx.Constrain(2*int32(demands[axis]), -maxIncl, maxIncl)) - 10*euler[axis])

	pTermAccel := int32(float32(errorAngle) * s.pid.LevelP)

	// Avoid integral windup
	s.state.ErrorAngleI[axis] = mathx.Constrain(s.state.ErrorAngleI[axis]+errorAngle, -AngleIntegralLimit, AngleIntegralLimit)

	prop := mathx.Abs(int32(demands[rc.Pitch]))
	if r := mathx.Abs(int32(demands[rc.Roll])); r > prop {
		prop = r
	}
	prop = mathx.Constrain(prop, 0, maxProp)

	pTerm := (pTermAccel*(maxProp-prop) + int32(demands[axis])*prop) / maxProp
	iTerm := (iTermGyro * prop) / maxProp

	// 3-tap sum of gyro deltas
	delta := int32(gyro[axis]) - int32(s.state.LastGyro[axis])
	s.state.LastGyro[axis] = gyro[axis]
	deltaSum := s.state.Delta1[axis] + s.state.Delta2[axis] + delta
	s.state.Delta2[axis] = s.state.Delta1[axis]
	s.state.Delta1[axis] = delta
	dTerm := int32(float32(deltaSum) * s.pid.RatePitchRollD)

	return mathx.SaturateInt16(s.computePID(s.pid.RatePitchRollP, pTerm, iTerm, dTerm, gyro, axis))
}
