// Package mathx holds the small saturating helpers shared by the control code.
package mathx

import "golang.org/x/exp/constraints"

// Constrain clamps value into [low, high].
func Constrain[T constraints.Ordered](value, low, high T) T {
	if value < low {
		return low
	}
	if value > high {
		return high
	}
	return value
}

// Abs returns the absolute value of a signed number.
func Abs[T constraints.Signed | constraints.Float](v T) T {
	if v < 0 {
		return -v
	}
	return v
}

// MapRange maps value from one range to another.
func MapRange[T constraints.Float](value, fromMin, fromMax, toMin, toMax T) T {
	return (value-fromMin)/(fromMax-fromMin)*(toMax-toMin) + toMin
}

// SaturateInt16 narrows v to int16 without wrapping.
func SaturateInt16[T constraints.Signed](v T) int16 {
	if int64(v) > 32767 {
		return 32767
	}
	if int64(v) < -32768 {
		return -32768
	}
	return int16(v)
}
