// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import (
	"fmt"
	"time"

	"github.com/relabs-tech/flight_core/internal/imu"
)

// GyroBias is the at-rest gyro offset in counts.
type GyroBias [3]float64

// Apply returns the bias-corrected gyro counts of a sample.
func (b GyroBias) Apply(r imu.IMURaw) [3]float64 {
	return [3]float64{
		float64(r.Gx) - b[0],
		float64(r.Gy) - b[1],
		float64(r.Gz) - b[2],
	}
}

// EstimateGyroBias averages n samples taken interval apart while the
// airframe sits still. Read errors are skipped; it fails only when no
// sample could be read.
func EstimateGyroBias(src imu.IMURawSource, n int, interval time.Duration) (GyroBias, error) {
	if n <= 0 {
		return GyroBias{}, fmt.Errorf("gyro bias: sample count %d", n)
	}
	var sum [3]float64
	got := 0
	var lastErr error
	for i := 0; i < n; i++ {
		r, err := src.ReadRaw()
		if err != nil {
			lastErr = err
		} else {
			sum[0] += float64(r.Gx)
			sum[1] += float64(r.Gy)
			sum[2] += float64(r.Gz)
			got++
		}
		if interval > 0 {
			time.Sleep(interval)
		}
	}
	if got == 0 {
		return GyroBias{}, fmt.Errorf("gyro bias: no samples: %w", lastErr)
	}
	return GyroBias{sum[0] / float64(got), sum[1] / float64(got), sum[2] / float64(got)}, nil
}
