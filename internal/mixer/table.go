// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package mixer

import (
	"fmt"
	"math"
	"os"

	"gopkg.in/yaml.v2"
)

// airframeFile is the YAML layout of a custom airframe:
//
//	name: quadx
//	motors:
//	  - {throttle: 1, roll: -1, pitch: 1, yaw: -1}
//	  ...
type airframeFile struct {
	Name   string     `yaml:"name"`
	Motors []MotorMix `yaml:"motors"`
}

// LoadTable reads an airframe mix table from a YAML file.
func LoadTable(path string) (Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Table{}, fmt.Errorf("mixer: read airframe file: %w", err)
	}
	return ParseTable(data)
}

// ParseTable decodes an airframe YAML document. Exactly NumMotors rows with
// finite coefficients are required.
func ParseTable(data []byte) (Table, error) {
	var af airframeFile
	if err := yaml.UnmarshalStrict(data, &af); err != nil {
		return Table{}, fmt.Errorf("mixer: parse airframe: %w", err)
	}
	if len(af.Motors) != NumMotors {
		return Table{}, fmt.Errorf("mixer: airframe %q has %d motors, want %d", af.Name, len(af.Motors), NumMotors)
	}

	var t Table
	for i, m := range af.Motors {
		for _, c := range []float32{m.Throttle, m.Roll, m.Pitch, m.Yaw} {
			f := float64(c)
			if math.IsNaN(f) || math.IsInf(f, 0) || math.Abs(f) > 4 {
				return Table{}, fmt.Errorf("mixer: airframe %q motor %d: coefficient %v out of range", af.Name, i, c)
			}
		}
		t[i] = m
	}
	return t, nil
}
