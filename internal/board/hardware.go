// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package board

import (
	"fmt"
	"log"
	"math"
	"time"

	"github.com/relabs-tech/flight_core/internal/config"
	"github.com/relabs-tech/flight_core/internal/imu"
	"github.com/relabs-tech/flight_core/internal/mathx"
	"github.com/relabs-tech/flight_core/internal/mixer"
	"github.com/relabs-tech/flight_core/internal/orientation"
	"github.com/relabs-tech/flight_core/internal/sensors"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/devices/v3/pca9685"
)

// pca9685 counter resolution per PWM period.
const pwmCounts = 4096

// biasSamples taken at startup with the airframe on the ground.
const biasSamples = 200

// Hardware is the real airframe: an MPU9250 over SPI for rates and
// attitude, and ESCs driven by a PCA9685 over I2C.
type Hardware struct {
	imu    imu.IMURawSource
	bias   sensors.GyroBias
	filter *orientation.Complementary

	lsbPerDPS float64
	gyroScale float64

	bus      i2c.BusCloser
	pwm      *pca9685.Dev
	channels [mixer.NumMotors]int
	freqHz   int
	pwmMin   int16

	start      time.Time
	lastMicros uint64
	lastSample uint64
}

// NewHardware brings up the IMU and the PWM driver, estimates the gyro
// bias and parks every ESC at the minimum pulse.
func NewHardware(cfg *config.Config) (*Hardware, error) {
	src, err := sensors.NewMPU9250("flight", cfg.IMUSPIDevice, cfg.IMUCSPin, cfg.IMU.GyroRange, cfg.IMU.AccelRange)
	if err != nil {
		return nil, err
	}

	bias, err := sensors.EstimateGyroBias(src, biasSamples, 2*time.Millisecond)
	if err != nil {
		return nil, fmt.Errorf("hardware: %w", err)
	}
	log.Printf("hardware: gyro bias X=%.1f Y=%.1f Z=%.1f counts", bias[0], bias[1], bias[2])

	bus, err := i2creg.Open(cfg.PWMI2CBus)
	if err != nil {
		return nil, fmt.Errorf("hardware: open I2C bus %q: %w", cfg.PWMI2CBus, err)
	}

	dev, err := pca9685.NewI2C(bus, cfg.PWMI2CAddr)
	if err != nil {
		bus.Close()
		return nil, fmt.Errorf("hardware: PCA9685 at 0x%02X: %w", cfg.PWMI2CAddr, err)
	}
	if err := dev.SetPwmFreq(physic.Frequency(cfg.PWMFrequency) * physic.Hertz); err != nil {
		bus.Close()
		return nil, fmt.Errorf("hardware: set PWM frequency: %w", err)
	}
	log.Printf("hardware: PCA9685 at 0x%02X, %d Hz, motor channels %v", cfg.PWMI2CAddr, cfg.PWMFrequency, cfg.MotorChannels)

	h := &Hardware{
		imu:       src,
		bias:      bias,
		filter:    orientation.NewComplementary(cfg.IMU.FilterAlpha),
		lsbPerDPS: sensors.GyroLSBPerDPS(cfg.IMU.GyroRange),
		gyroScale: float64(cfg.IMU.GyroScale),
		bus:       bus,
		pwm:       dev,
		channels:  cfg.MotorChannels,
		freqHz:    cfg.PWMFrequency,
		pwmMin:    cfg.PWM.Min,
		start:     time.Now(),
	}

	for i := 0; i < mixer.NumMotors; i++ {
		if err := h.WriteMotor(i, cfg.PWM.Min); err != nil {
			h.Close()
			return nil, err
		}
	}
	return h, nil
}

// Micros implements Board.
func (h *Hardware) Micros() uint64 {
	now := uint64(time.Since(h.start).Microseconds())
	if now <= h.lastMicros {
		now = h.lastMicros + 1
	}
	h.lastMicros = now
	return now
}

// ReadGyro implements Board. It samples the IMU and feeds the attitude
// filter, so it must run before ReadOrientation in each tick.
func (h *Hardware) ReadGyro() ([3]int16, error) {
	raw, err := h.imu.ReadRaw()
	if err != nil {
		return [3]int16{}, err
	}
	now := h.Micros()

	dps := h.bias.Apply(raw)
	for i := range dps {
		dps[i] /= h.lsbPerDPS
	}

	dt := 0.0
	if h.lastSample != 0 {
		dt = float64(now-h.lastSample) / 1e6
	}
	h.lastSample = now
	h.filter.Update(float64(raw.Ax), float64(raw.Ay), float64(raw.Az), dps[0], dps[1], dps[2], dt)

	var g [3]int16
	for axis, d := range dps {
		g[axis] = mathx.SaturateInt16(int64(d * math.Pi / 180 * h.gyroScale))
	}
	return g, nil
}

// ReadOrientation implements Board.
func (h *Hardware) ReadOrientation() ([3]float32, error) {
	return h.filter.Pose().Euler(), nil
}

// WriteMotor implements Board; the pulse width in microseconds becomes a
// PCA9685 off-count.
func (h *Hardware) WriteMotor(index int, value int16) error {
	if index < 0 || index >= mixer.NumMotors {
		return fmt.Errorf("hardware: motor index %d out of range", index)
	}
	off := int64(value) * pwmCounts * int64(h.freqHz) / 1_000_000
	off = mathx.Constrain(off, 0, pwmCounts-1)
	if err := h.pwm.SetPwm(h.channels[index], 0, gpio.Duty(off)); err != nil {
		return fmt.Errorf("hardware: motor %d: %w", index, err)
	}
	return nil
}

// Close stops every motor and releases the I2C bus.
func (h *Hardware) Close() error {
	for i := 0; i < mixer.NumMotors; i++ {
		if err := h.WriteMotor(i, h.pwmMin); err != nil {
			log.Printf("hardware: stop motor %d: %v", i, err)
		}
	}
	return h.bus.Close()
}
