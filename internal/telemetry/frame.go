// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package telemetry carries flight state off the control loop and motor
// test commands back into it.
package telemetry

import (
	"encoding/json"
	"fmt"
)

// Frame is one control-loop tick as seen from the ground.
type Frame struct {
	Tick         uint64     `json:"tick"`
	Micros       uint64     `json:"micros"`
	Armed        bool       `json:"armed"`
	ThrottleDown bool       `json:"throttle_down"`
	Failsafe     bool       `json:"failsafe"`
	SensorFault  bool       `json:"sensor_fault"`
	Aux          uint8      `json:"aux"`
	Demands      [4]int16   `json:"demands"` // roll, pitch, yaw, throttle
	Gyro         [3]int16   `json:"gyro"`
	Euler        [3]float32 `json:"euler"` // degrees
	AxisPID      [3]int16   `json:"axis_pid"`
	Motors       [4]int16   `json:"motors"`
}

// MotorCommand sets the value one motor outputs while disarmed.
type MotorCommand struct {
	Index int   `json:"index"`
	Value int16 `json:"value"`
}

// DecodeFrame parses a Frame payload.
func DecodeFrame(payload []byte) (Frame, error) {
	var f Frame
	if err := json.Unmarshal(payload, &f); err != nil {
		return Frame{}, fmt.Errorf("telemetry: decode frame: %w", err)
	}
	return f, nil
}

// DecodeMotorCommand parses a MotorCommand payload and checks the index.
func DecodeMotorCommand(payload []byte) (MotorCommand, error) {
	var cmd MotorCommand
	if err := json.Unmarshal(payload, &cmd); err != nil {
		return MotorCommand{}, fmt.Errorf("telemetry: decode motor command: %w", err)
	}
	if cmd.Index < 0 || cmd.Index > 3 {
		return MotorCommand{}, fmt.Errorf("telemetry: motor index %d out of range", cmd.Index)
	}
	return cmd, nil
}
