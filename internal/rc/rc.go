// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package rc turns raw receiver pulses into normalized stick demands and
// tracks the arming state driven by stick gestures.
package rc

import (
	"github.com/relabs-tech/flight_core/internal/config"
	"github.com/relabs-tech/flight_core/internal/mathx"
)

// Demand indices. Roll, pitch and yaw share their index with the
// corresponding stabilizer axis.
const (
	Roll = iota
	Pitch
	Yaw
	Throttle
)

// NumChannels is the number of receiver channels the RC layer keeps.
const NumChannels = 8

// MaxAxisDemand bounds the roll, pitch and yaw demands.
const MaxAxisDemand = 500

// Demands is one tick of pilot demand: roll, pitch, yaw in
// [-MaxAxisDemand, +MaxAxisDemand] and throttle in [pwm.Min, pwm.Max].
type Demands [4]int16

// ChannelSource supplies raw receiver pulses in microseconds.
type ChannelSource interface {
	// ReadChannels returns the latest frame and whether it arrived since
	// the previous call.
	ReadChannels() ([]uint16, bool)
}

// RC converts receiver channels into Demands. Not safe for concurrent use.
type RC struct {
	cfg config.RCConfig
	pwm config.PWMConfig

	pitchRollLookup [6]int32
	throttleLookup  [11]int32

	channels [NumChannels]uint16
	demands  Demands

	armed        bool
	gesture      int
	gestureTicks int
}

// New builds the stick curves from cfg. Until the first Update the sticks
// read centered with the throttle down.
func New(cfg config.RCConfig, pwm config.PWMConfig) *RC {
	r := &RC{cfg: cfg, pwm: pwm}

	for i := range r.pitchRollLookup {
		n := int32(i)
		r.pitchRollLookup[i] = (2500 + int32(cfg.Expo8)*(n*n-25)) * n * int32(cfg.Rate8) / 2500
	}

	mid := int32(cfg.ThrottleMid8)
	expo := int32(cfg.ThrottleExpo8)
	for i := range r.throttleLookup {
		tmp := 10*int32(i) - mid
		y := int32(1)
		if tmp > 0 {
			y = 100 - mid
		}
		if tmp < 0 {
			y = mid
		}
		v := 10*mid + tmp*(100-expo+expo*(tmp*tmp)/(y*y))/10
		r.throttleLookup[i] = int32(pwm.Min) + (int32(pwm.Max)-int32(pwm.Min))*v/1000
	}

	for i := range r.channels {
		r.channels[i] = cfg.Mid
	}
	r.channels[Throttle] = uint16(pwm.Min)
	r.compute()
	return r
}

// Update processes one receiver frame. Missing trailing channels keep
// their previous value.
func (r *RC) Update(channels []uint16) {
	copy(r.channels[:], channels)
	r.compute()
	r.updateGesture()
}

// Demands returns the demands computed by the last Update.
func (r *RC) Demands() Demands {
	return r.demands
}

// Channels returns the raw pulses seen by the last Update.
func (r *RC) Channels() [NumChannels]uint16 {
	return r.channels
}

// ThrottleIsDown reports whether the throttle stick is below MinCheck.
func (r *RC) ThrottleIsDown() bool {
	return r.channels[Throttle] < r.cfg.MinCheck
}

// IsArmed reports the arming state set by the stick gesture.
func (r *RC) IsArmed() bool {
	return r.armed
}

// Disarm drops the armed state, e.g. on failsafe.
func (r *RC) Disarm() {
	r.armed = false
	r.gesture = 0
	r.gestureTicks = 0
}

// Aux returns the position of the three-position aux switch.
func (r *RC) Aux() uint8 {
	if r.cfg.AuxChannel >= NumChannels {
		return 0
	}
	v := r.channels[r.cfg.AuxChannel]
	switch {
	case v < 1300:
		return 0
	case v < 1700:
		return 1
	default:
		return 2
	}
}

func (r *RC) compute() {
	for axis := Roll; axis <= Yaw; axis++ {
		raw := int32(r.channels[axis]) - int32(r.cfg.Mid)
		tmp := mathx.Constrain(mathx.Abs(raw), 0, MaxAxisDemand)

		var cmd int32
		if axis == Yaw {
			cmd = tmp
		} else {
			cmd = interpolate(r.pitchRollLookup[:], tmp)
		}
		if raw < 0 {
			cmd = -cmd
		}
		r.demands[axis] = int16(cmd)
	}

	low := int32(r.cfg.MinCheck)
	high := int32(r.pwm.Max)
	tmp := mathx.Constrain(int32(r.channels[Throttle]), low, high)
	tmp = (tmp - low) * 1000 / (high - low)
	r.demands[Throttle] = int16(interpolate(r.throttleLookup[:], tmp))
}

// interpolate reads a lookup table with one entry per 100 input units.
func interpolate(lookup []int32, tmp int32) int32 {
	idx := tmp / 100
	if int(idx) >= len(lookup)-1 {
		return lookup[len(lookup)-1]
	}
	return lookup[idx] + (tmp-idx*100)*(lookup[idx+1]-lookup[idx])/100
}

func (r *RC) sticksCentered() bool {
	for _, axis := range []int{Roll, Pitch} {
		v := r.channels[axis]
		if v < r.cfg.MinCheck || v > r.cfg.MaxCheck {
			return false
		}
	}
	return true
}

// updateGesture arms on throttle-down + yaw-right and disarms on
// throttle-down + yaw-left, each held for ArmDelayTicks updates.
func (r *RC) updateGesture() {
	gesture := 0
	if r.ThrottleIsDown() && r.sticksCentered() {
		yaw := r.channels[Yaw]
		switch {
		case yaw > r.cfg.MaxCheck:
			gesture = 1
		case yaw < r.cfg.MinCheck:
			gesture = -1
		}
	}

	if gesture == 0 || gesture != r.gesture {
		r.gesture = gesture
		r.gestureTicks = 0
		if gesture == 0 {
			return
		}
	}

	r.gestureTicks++
	if r.gestureTicks < r.cfg.ArmDelayTicks {
		return
	}
	r.armed = gesture > 0
}
