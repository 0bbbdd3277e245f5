// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package board

import (
	"github.com/relabs-tech/flight_core/internal/config"
	"github.com/relabs-tech/flight_core/internal/rc"
)

// ScriptStep moves sticks and optionally kicks the airframe once the
// script reaches tick At (1-based).
type ScriptStep struct {
	At       uint64
	Channels map[int]uint16
	Kick     [3]float64 // rad/s
}

// Script is a stick profile played against a Sim. It is the loop's
// channel source: every ReadChannels call is one tick.
type Script struct {
	sim   *Sim
	steps []ScriptStep
	tick  uint64
	next  int
}

// NewScript plays steps, ordered by At, against sim.
func NewScript(sim *Sim, steps []ScriptStep) *Script {
	return &Script{sim: sim, steps: steps}
}

// ReadChannels implements rc.ChannelSource.
func (s *Script) ReadChannels() ([]uint16, bool) {
	s.tick++
	for s.next < len(s.steps) && s.steps[s.next].At <= s.tick {
		step := s.steps[s.next]
		for ch, v := range step.Channels {
			s.sim.SetChannel(ch, v)
		}
		if step.Kick != [3]float64{} {
			s.sim.Disturb(step.Kick[0], step.Kick[1], step.Kick[2])
		}
		s.next++
	}
	return s.sim.ReadChannels()
}

// Done reports whether every step has been played.
func (s *Script) Done() bool {
	return s.next >= len(s.steps)
}

// DemoFlight arms, climbs to mid throttle, takes a roll gust, rolls right
// briefly, then throttles down and disarms.
func DemoFlight(cfg *config.Config) []ScriptStep {
	low := uint16(cfg.PWM.Min)
	high := uint16(cfg.PWM.Max)
	mid := cfg.RC.Mid
	return []ScriptStep{
		{At: 1, Channels: map[int]uint16{rc.Throttle: low, rc.Yaw: high}},
		{At: 40, Channels: map[int]uint16{rc.Yaw: mid}},
		{At: 60, Channels: map[int]uint16{rc.Throttle: 1550}},
		{At: 200, Kick: [3]float64{2, 0, 0}},
		{At: 600, Channels: map[int]uint16{rc.Roll: 1600}},
		{At: 700, Channels: map[int]uint16{rc.Roll: mid}},
		{At: 1000, Channels: map[int]uint16{rc.Throttle: low}},
		{At: 1020, Channels: map[int]uint16{rc.Yaw: low}},
		{At: 1100, Channels: map[int]uint16{rc.Yaw: mid}},
	}
}
