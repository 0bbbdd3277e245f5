package env

import "math"

// Standard atmosphere at sea level.
const SeaLevelPa = 101325.0

// Sample represents a single environmental measurement (BMP).
type Sample struct {
	Source string `json:"source"`

	Temperature float64 `json:"temp_c"`      // °C
	Pressure    float64 `json:"pressure_pa"` // Pa
	AltitudeM   float64 `json:"altitude_m"`  // pressure altitude
}

// PressureAltitude converts static pressure to altitude in meters with the
// international barometric formula, relative to refPa.
func PressureAltitude(pressurePa, refPa float64) float64 {
	if pressurePa <= 0 || refPa <= 0 {
		return math.NaN()
	}
	return 44330.0 * (1 - math.Pow(pressurePa/refPa, 1/5.255))
}
