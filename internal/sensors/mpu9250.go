// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import (
	"fmt"
	"log"

	"github.com/relabs-tech/flight_core/internal/imu"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/devices/v3/mpu9250"
	"periph.io/x/host/v3"
)

// Full-scale settings selectable through IMU_GYRO_RANGE / IMU_ACCEL_RANGE.
var (
	gyroRangeDPS  = []int{250, 500, 1000, 2000}
	accelRangeG   = []int{2, 4, 8, 16}
	gyroLSBPerDPS = []float64{131, 65.5, 32.8, 16.4}
)

// GyroLSBPerDPS returns the gyro sensitivity for a range setting (0..3).
func GyroLSBPerDPS(gyroRange byte) float64 {
	if int(gyroRange) >= len(gyroLSBPerDPS) {
		return gyroLSBPerDPS[0]
	}
	return gyroLSBPerDPS[gyroRange]
}

// MPU9250 is the flight IMU on SPI.
type MPU9250 struct {
	name string
	dev  *mpu9250.MPU9250
}

// NewMPU9250 initializes the MPU9250 on spiDev with chip select csPin,
// applies the full-scale ranges and runs self-test and calibration.
// Self-test and calibration failures are logged, not fatal.
func NewMPU9250(name, spiDev, csPin string, gyroRange, accelRange byte) (*MPU9250, error) {
	if int(gyroRange) >= len(gyroRangeDPS) || int(accelRange) >= len(accelRangeG) {
		return nil, fmt.Errorf("%s IMU: invalid range gyro=%d accel=%d", name, gyroRange, accelRange)
	}

	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("%s IMU: periph host init: %w", name, err)
	}

	cs := gpioreg.ByName(csPin)
	if cs == nil {
		return nil, fmt.Errorf("%s IMU: CS pin %q not found", name, csPin)
	}

	tr, err := mpu9250.NewSpiTransport(spiDev, cs)
	if err != nil {
		return nil, fmt.Errorf("%s IMU: SPI transport (%s): %w", name, spiDev, err)
	}

	dev, err := mpu9250.New(tr)
	if err != nil {
		return nil, fmt.Errorf("%s IMU: device creation: %w", name, err)
	}

	if err := dev.Init(); err != nil {
		return nil, fmt.Errorf("%s IMU: initialization: %w", name, err)
	}

	if err := dev.SetAccelRange(accelRange); err != nil {
		return nil, fmt.Errorf("%s IMU: set accel range: %w", name, err)
	}
	log.Printf("%s IMU: accelerometer range set to %d (±%dg)", name, accelRange, accelRangeG[accelRange])

	if err := dev.SetGyroRange(gyroRange); err != nil {
		return nil, fmt.Errorf("%s IMU: set gyro range: %w", name, err)
	}
	log.Printf("%s IMU: gyroscope range set to %d (±%d°/s)", name, gyroRange, gyroRangeDPS[gyroRange])

	testResult, err := dev.SelfTest()
	if err != nil {
		log.Printf("Warning: %s IMU self-test failed: %v", name, err)
	} else {
		log.Printf("%s IMU self-test passed:", name)
		log.Printf("  Accelerometer deviation: X: %.2f%%, Y: %.2f%%, Z: %.2f%%",
			testResult.AccelDeviation.X, testResult.AccelDeviation.Y, testResult.AccelDeviation.Z)
		log.Printf("  Gyroscope deviation: X: %.2f%%, Y: %.2f%%, Z: %.2f%%",
			testResult.GyroDeviation.X, testResult.GyroDeviation.Y, testResult.GyroDeviation.Z)
	}

	if err := dev.Calibrate(); err != nil {
		log.Printf("Warning: %s IMU calibration failed: %v", name, err)
	} else {
		log.Printf("%s IMU calibration complete", name)
	}

	return &MPU9250{name: name, dev: dev}, nil
}

// ReadRaw reads accelerometer and gyroscope counts.
func (s *MPU9250) ReadRaw() (imu.IMURaw, error) {
	ax, err := s.dev.GetAccelerationX()
	if err != nil {
		return imu.IMURaw{}, fmt.Errorf("%s IMU accel X: %w", s.name, err)
	}
	ay, err := s.dev.GetAccelerationY()
	if err != nil {
		return imu.IMURaw{}, fmt.Errorf("%s IMU accel Y: %w", s.name, err)
	}
	az, err := s.dev.GetAccelerationZ()
	if err != nil {
		return imu.IMURaw{}, fmt.Errorf("%s IMU accel Z: %w", s.name, err)
	}

	gx, err := s.dev.GetRotationX()
	if err != nil {
		return imu.IMURaw{}, fmt.Errorf("%s IMU gyro X: %w", s.name, err)
	}
	gy, err := s.dev.GetRotationY()
	if err != nil {
		return imu.IMURaw{}, fmt.Errorf("%s IMU gyro Y: %w", s.name, err)
	}
	gz, err := s.dev.GetRotationZ()
	if err != nil {
		return imu.IMURaw{}, fmt.Errorf("%s IMU gyro Z: %w", s.name, err)
	}

	return imu.IMURaw{
		Source: s.name,
		Ax:     ax,
		Ay:     ay,
		Az:     az,
		Gx:     gx,
		Gy:     gy,
		Gz:     gz,
	}, nil
}
