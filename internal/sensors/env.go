// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import (
	"fmt"

	"github.com/relabs-tech/flight_core/internal/env"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/devices/v3/bmxx80"
	"periph.io/x/host/v3"
)

// BMP is a BMP280/BME280 barometer on SPI.
type BMP struct {
	port spi.PortCloser
	dev  *bmxx80.Dev
}

// NewBMP opens the barometer on spiDev.
func NewBMP(spiDev string) (*BMP, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("BMP: periph host init: %w", err)
	}

	port, err := spireg.Open(spiDev)
	if err != nil {
		return nil, fmt.Errorf("BMP: SPI open %s: %w", spiDev, err)
	}

	dev, err := bmxx80.NewSPI(port, &bmxx80.DefaultOpts)
	if err != nil {
		port.Close()
		return nil, fmt.Errorf("BMP: init: %w", err)
	}
	return &BMP{port: port, dev: dev}, nil
}

// Read senses temperature and pressure.
func (b *BMP) Read() (env.Sample, error) {
	var e physic.Env
	if err := b.dev.Sense(&e); err != nil {
		return env.Sample{}, fmt.Errorf("BMP sense: %w", err)
	}

	pressurePa := float64(e.Pressure) / float64(physic.Pascal)
	return env.Sample{
		Source:      "baro",
		Temperature: e.Temperature.Celsius(),
		Pressure:    pressurePa,
		AltitudeM:   env.PressureAltitude(pressurePa, env.SeaLevelPa),
	}, nil
}

// Close halts the sensor and releases the SPI port.
func (b *BMP) Close() error {
	if err := b.dev.Halt(); err != nil {
		b.port.Close()
		return fmt.Errorf("BMP halt: %w", err)
	}
	return b.port.Close()
}
