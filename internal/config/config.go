// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package config

import (
	"bufio"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"sync"
)

// PIDConfig holds the gains of the rate loop and the level loop.
// Gains are immutable for the duration of a flight.
type PIDConfig struct {
	LevelP float32

	RatePitchRollP float32
	RatePitchRollI float32
	RatePitchRollD float32

	YawP float32
	YawI float32

	// SoftwareTrim is added to the roll, pitch and yaw outputs.
	SoftwareTrim [3]int16

	// ITermShift is the fixed-point divide applied to the rate integral term.
	ITermShift uint
}

// IMUConfig describes how the controller interprets sensor data.
type IMUConfig struct {
	// MaxAngleInclination is in tenths of a degree.
	MaxAngleInclination int32
	// GyroScale converts rad/s into gyro counts.
	GyroScale  float32
	LoopMicros uint32
	// Gyroscope: 0=±250°/s, 1=±500°/s, 2=±1000°/s, 3=±2000°/s
	GyroRange byte
	// Accelerometer: 0=±2g, 1=±4g, 2=±8g, 3=±16g
	AccelRange byte
	// Weight of the gyro path in the complementary filter (0..1).
	FilterAlpha float64
}

// PWMConfig bounds every motor output.
type PWMConfig struct {
	Min int16
	Max int16
}

// RCConfig describes the receiver channels and stick curves.
type RCConfig struct {
	Mid      uint16
	MinCheck uint16
	MaxCheck uint16

	Rate8         uint8
	Expo8         uint8
	ThrottleMid8  uint8
	ThrottleExpo8 uint8

	// ArmDelayTicks is how long the arm/disarm stick gesture must be held.
	ArmDelayTicks int
	// FailsafeMillis disarms when no receiver frame arrived for this long.
	FailsafeMillis int
	AuxChannel     int
}

// Config holds all application configuration values.
type Config struct {
	PID PIDConfig
	IMU IMUConfig
	PWM PWMConfig
	RC  RCConfig

	// Airframe
	MixerTableFile string

	// Board: "sim", "hardware" or "replay"
	Board      string
	ReplayFile string
	RecordFile string
	// SimProfile: "demo" flies a scripted profile on the sim board, "none"
	// leaves the sticks centered with the throttle down
	SimProfile string

	// Hardware
	IMUSPIDevice  string
	IMUCSPin      string
	PWMI2CBus     string
	PWMI2CAddr    uint16
	PWMFrequency  int // Hz
	MotorChannels [4]int

	// Receiver
	RCSerialPort string
	RCBaudRate   int

	// GPS
	GPSSerialPort string
	GPSBaudRate   int

	// Barometer
	BMPSPIDevice      string
	EnvSampleInterval int // milliseconds

	// MQTT
	MQTTBroker          string
	MQTTClientIDFlight  string
	MQTTClientIDConsole string
	MQTTClientIDWeb     string
	MQTTClientIDDisplay string
	MQTTClientIDGPS     string
	MQTTClientIDEnv     string

	// Topics
	TopicTelemetry    string
	TopicMotorCommand string
	TopicGPS          string
	TopicEnv          string

	// Timing
	TelemetryEvery int // ticks

	// Web Server
	WebServerPort int

	// Display
	DisplayI2CAddr        uint16
	DisplayUpdateInterval int // milliseconds

	// Logging
	LogFile       string
	LogMaxSizeMB  int
	LogMaxBackups int
	LogMaxAgeDays int
	LogCompress   bool
}

// ssd1306Addr is the only address the SSD1306 driver talks to.
const ssd1306Addr = 0x3C

// Package-level unexported variables for the singleton:
// globalConfig is set once by InitGlobal and read through Get.
var (
	globalConfig *Config
	configOnce   sync.Once
	configMu     sync.RWMutex
)

// Default returns the reference configuration used by the simulator board.
func Default() *Config {
	return &Config{
		PID: PIDConfig{
			LevelP:         0.10,
			RatePitchRollP: 0.125,
			RatePitchRollI: 0.05,
			RatePitchRollD: 0.01,
			YawP:           0.1,
			YawI:           0.05,
			ITermShift:     6,
		},
		IMU: IMUConfig{
			MaxAngleInclination: 500,
			GyroScale:           250,
			LoopMicros:          10000,
			GyroRange:           3,
			AccelRange:          2,
			FilterAlpha:         0.98,
		},
		PWM: PWMConfig{Min: 1000, Max: 2000},
		RC: RCConfig{
			Mid:            1500,
			MinCheck:       1100,
			MaxCheck:       1900,
			Rate8:          90,
			Expo8:          65,
			ThrottleMid8:   50,
			ThrottleExpo8:  0,
			ArmDelayTicks:  20,
			FailsafeMillis: 500,
			AuxChannel:     4,
		},
		Board:         "sim",
		SimProfile:    "demo",
		IMUSPIDevice:  "/dev/spidev0.0",
		IMUCSPin:      "8",
		PWMI2CBus:     "",
		PWMI2CAddr:    0x40,
		PWMFrequency:  400,
		MotorChannels: [4]int{0, 1, 2, 3},

		RCSerialPort:  "/dev/ttyAMA1",
		RCBaudRate:    115200,
		GPSSerialPort: "/dev/serial0",
		GPSBaudRate:   9600,

		BMPSPIDevice:      "/dev/spidev0.1",
		EnvSampleInterval: 1000,

		MQTTBroker:          "tcp://localhost:1883",
		MQTTClientIDFlight:  "flight-core",
		MQTTClientIDConsole: "flight-console",
		MQTTClientIDWeb:     "flight-web",
		MQTTClientIDDisplay: "flight-display",
		MQTTClientIDGPS:     "flight-gps",
		MQTTClientIDEnv:     "flight-env",

		TopicTelemetry:    "flight/telemetry",
		TopicMotorCommand: "flight/motors/disarmed",
		TopicGPS:          "flight/gps",
		TopicEnv:          "flight/env",

		TelemetryEvery: 10,
		WebServerPort:  8080,

		DisplayI2CAddr:        ssd1306Addr,
		DisplayUpdateInterval: 250,

		LogMaxSizeMB:  10,
		LogMaxBackups: 3,
		LogMaxAgeDays: 28,
	}
}

// Load reads the configuration file and returns a Config struct.
// Keys not present in the file keep their Default() value.
func Load(configPath string) (*Config, error) {
	file, err := os.Open(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	cfg := Default()
	scanner := bufio.NewScanner(file)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		// Parse KEY=VALUE
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid config line %d: %q", lineNum, line)
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		if err := cfg.setValue(key, value); err != nil {
			return nil, fmt.Errorf("config line %d: %w", lineNum, err)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// setValue sets a config value based on the key.
func (c *Config) setValue(key, value string) error {
	switch key {
	// PID gains
	case "PID_LEVEL_P":
		return parseGain(key, value, &c.PID.LevelP)
	case "PID_RATE_PITCHROLL_P":
		return parseGain(key, value, &c.PID.RatePitchRollP)
	case "PID_RATE_PITCHROLL_I":
		return parseGain(key, value, &c.PID.RatePitchRollI)
	case "PID_RATE_PITCHROLL_D":
		return parseGain(key, value, &c.PID.RatePitchRollD)
	case "PID_YAW_P":
		return parseGain(key, value, &c.PID.YawP)
	case "PID_YAW_I":
		return parseGain(key, value, &c.PID.YawI)
	case "PID_ITERM_SHIFT":
		val, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", key, value, err)
		}
		if val < 0 || val > 16 {
			return fmt.Errorf("%s must be 0-16, got %d", key, val)
		}
		c.PID.ITermShift = uint(val)
	case "TRIM_ROLL":
		return parseInt16(key, value, &c.PID.SoftwareTrim[0])
	case "TRIM_PITCH":
		return parseInt16(key, value, &c.PID.SoftwareTrim[1])
	case "TRIM_YAW":
		return parseInt16(key, value, &c.PID.SoftwareTrim[2])

	// IMU
	case "IMU_MAX_ANGLE_INCLINATION":
		val, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", key, value, err)
		}
		c.IMU.MaxAngleInclination = int32(val)
	case "IMU_GYRO_SCALE":
		return parseGain(key, value, &c.IMU.GyroScale)
	case "IMU_LOOP_MICROS":
		val, err := strconv.ParseUint(value, 10, 32)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", key, value, err)
		}
		c.IMU.LoopMicros = uint32(val)
	case "IMU_GYRO_RANGE":
		rangeVal, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid IMU_GYRO_RANGE %q: %w", value, err)
		}
		if rangeVal < 0 || rangeVal > 3 {
			return fmt.Errorf("IMU_GYRO_RANGE must be 0-3 (0=±250°/s, 1=±500°/s, 2=±1000°/s, 3=±2000°/s), got %d", rangeVal)
		}
		c.IMU.GyroRange = byte(rangeVal)
	case "IMU_ACCEL_RANGE":
		rangeVal, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid IMU_ACCEL_RANGE %q: %w", value, err)
		}
		if rangeVal < 0 || rangeVal > 3 {
			return fmt.Errorf("IMU_ACCEL_RANGE must be 0-3 (0=±2g, 1=±4g, 2=±8g, 3=±16g), got %d", rangeVal)
		}
		c.IMU.AccelRange = byte(rangeVal)
	case "IMU_FILTER_ALPHA":
		alpha, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", key, value, err)
		}
		c.IMU.FilterAlpha = alpha

	// PWM
	case "PWM_MIN":
		return parseInt16(key, value, &c.PWM.Min)
	case "PWM_MAX":
		return parseInt16(key, value, &c.PWM.Max)

	// RC
	case "RC_MID":
		return parseUint16(key, value, &c.RC.Mid)
	case "RC_MIN_CHECK":
		return parseUint16(key, value, &c.RC.MinCheck)
	case "RC_MAX_CHECK":
		return parseUint16(key, value, &c.RC.MaxCheck)
	case "RC_RATE":
		return parseUint8(key, value, &c.RC.Rate8)
	case "RC_EXPO":
		return parseUint8(key, value, &c.RC.Expo8)
	case "RC_THROTTLE_MID":
		return parseUint8(key, value, &c.RC.ThrottleMid8)
	case "RC_THROTTLE_EXPO":
		return parseUint8(key, value, &c.RC.ThrottleExpo8)
	case "RC_ARM_DELAY_TICKS":
		return parseInt(key, value, &c.RC.ArmDelayTicks)
	case "RC_FAILSAFE_MS":
		return parseInt(key, value, &c.RC.FailsafeMillis)
	case "RC_AUX_CHANNEL":
		return parseInt(key, value, &c.RC.AuxChannel)

	// Airframe
	case "MIXER_TABLE_FILE":
		c.MixerTableFile = value

	// Board
	case "BOARD":
		c.Board = strings.ToLower(value)
	case "REPLAY_FILE":
		c.ReplayFile = value
	case "RECORD_FILE":
		c.RecordFile = value
	case "SIM_PROFILE":
		c.SimProfile = strings.ToLower(value)

	// Hardware
	case "IMU_SPI_DEVICE":
		c.IMUSPIDevice = value
	case "IMU_CS_PIN":
		c.IMUCSPin = value
	case "PWM_I2C_BUS":
		c.PWMI2CBus = value
	case "PWM_I2C_ADDR":
		addr, err := strconv.ParseUint(value, 0, 16)
		if err != nil {
			return fmt.Errorf("invalid PWM_I2C_ADDR %q: %w", value, err)
		}
		c.PWMI2CAddr = uint16(addr)
	case "PWM_FREQUENCY":
		return parseInt(key, value, &c.PWMFrequency)
	case "MOTOR_CHANNELS":
		fields := strings.Split(value, ",")
		if len(fields) != 4 {
			return fmt.Errorf("MOTOR_CHANNELS needs 4 comma separated channels, got %q", value)
		}
		for i, f := range fields {
			ch, err := strconv.Atoi(strings.TrimSpace(f))
			if err != nil {
				return fmt.Errorf("invalid MOTOR_CHANNELS entry %q: %w", f, err)
			}
			if ch < 0 || ch > 15 {
				return fmt.Errorf("MOTOR_CHANNELS entries must be 0-15, got %d", ch)
			}
			c.MotorChannels[i] = ch
		}

	// Receiver
	case "RC_SERIAL_PORT":
		c.RCSerialPort = value
	case "RC_BAUD_RATE":
		return parseInt(key, value, &c.RCBaudRate)

	// GPS
	case "GPS_SERIAL_PORT":
		c.GPSSerialPort = value
	case "GPS_BAUD_RATE":
		return parseInt(key, value, &c.GPSBaudRate)

	// Barometer
	case "BMP_SPI_DEVICE":
		c.BMPSPIDevice = value
	case "ENV_SAMPLE_INTERVAL":
		return parseInt(key, value, &c.EnvSampleInterval)

	// MQTT
	case "MQTT_BROKER":
		c.MQTTBroker = value
	case "MQTT_CLIENT_ID_FLIGHT":
		c.MQTTClientIDFlight = value
	case "MQTT_CLIENT_ID_CONSOLE":
		c.MQTTClientIDConsole = value
	case "MQTT_CLIENT_ID_WEB":
		c.MQTTClientIDWeb = value
	case "MQTT_CLIENT_ID_DISPLAY":
		c.MQTTClientIDDisplay = value
	case "MQTT_CLIENT_ID_GPS":
		c.MQTTClientIDGPS = value
	case "MQTT_CLIENT_ID_ENV":
		c.MQTTClientIDEnv = value

	// Topics
	case "TOPIC_TELEMETRY":
		c.TopicTelemetry = value
	case "TOPIC_MOTOR_COMMAND":
		c.TopicMotorCommand = value
	case "TOPIC_GPS":
		c.TopicGPS = value
	case "TOPIC_ENV":
		c.TopicEnv = value

	// Timing
	case "TELEMETRY_EVERY":
		return parseInt(key, value, &c.TelemetryEvery)

	// Web Server
	case "WEB_SERVER_PORT":
		return parseInt(key, value, &c.WebServerPort)

	// Display
	case "DISPLAY_I2C_ADDR":
		addr, err := strconv.ParseUint(value, 0, 16)
		if err != nil {
			return fmt.Errorf("invalid DISPLAY_I2C_ADDR %q: %w", value, err)
		}
		c.DisplayI2CAddr = uint16(addr)
	case "DISPLAY_UPDATE_INTERVAL":
		return parseInt(key, value, &c.DisplayUpdateInterval)

	// Logging
	case "LOG_FILE":
		c.LogFile = value
	case "LOG_MAX_SIZE_MB":
		return parseInt(key, value, &c.LogMaxSizeMB)
	case "LOG_MAX_BACKUPS":
		return parseInt(key, value, &c.LogMaxBackups)
	case "LOG_MAX_AGE_DAYS":
		return parseInt(key, value, &c.LogMaxAgeDays)
	case "LOG_COMPRESS":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid LOG_COMPRESS %q: %w", value, err)
		}
		c.LogCompress = b

	default:
		return fmt.Errorf("unknown config key: %q", key)
	}

	return nil
}

func parseGain(key, value string, dst *float32) error {
	f, err := strconv.ParseFloat(value, 32)
	if err != nil {
		return fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	*dst = float32(f)
	return nil
}

func parseInt(key, value string, dst *int) error {
	v, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	*dst = v
	return nil
}

func parseInt16(key, value string, dst *int16) error {
	v, err := strconv.ParseInt(value, 10, 16)
	if err != nil {
		return fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	*dst = int16(v)
	return nil
}

func parseUint16(key, value string, dst *uint16) error {
	v, err := strconv.ParseUint(value, 10, 16)
	if err != nil {
		return fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	*dst = uint16(v)
	return nil
}

func parseUint8(key, value string, dst *uint8) error {
	v, err := strconv.ParseUint(value, 10, 8)
	if err != nil {
		return fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	*dst = uint8(v)
	return nil
}

func finite(f float32) bool {
	return !math.IsNaN(float64(f)) && !math.IsInf(float64(f), 0)
}

// validate rejects configurations the control path must never see.
func (c *Config) validate() error {
	gains := map[string]float32{
		"PID_LEVEL_P":          c.PID.LevelP,
		"PID_RATE_PITCHROLL_P": c.PID.RatePitchRollP,
		"PID_RATE_PITCHROLL_I": c.PID.RatePitchRollI,
		"PID_RATE_PITCHROLL_D": c.PID.RatePitchRollD,
		"PID_YAW_P":            c.PID.YawP,
		"PID_YAW_I":            c.PID.YawI,
		"IMU_GYRO_SCALE":       c.IMU.GyroScale,
	}
	for name, g := range gains {
		if !finite(g) {
			return fmt.Errorf("%s must be finite, got %v", name, g)
		}
	}
	if c.PWM.Min >= c.PWM.Max {
		return fmt.Errorf("PWM_MIN (%d) must be below PWM_MAX (%d)", c.PWM.Min, c.PWM.Max)
	}
	if c.IMU.MaxAngleInclination <= 0 {
		return fmt.Errorf("IMU_MAX_ANGLE_INCLINATION must be positive, got %d", c.IMU.MaxAngleInclination)
	}
	if c.IMU.FilterAlpha < 0 || c.IMU.FilterAlpha > 1 {
		return fmt.Errorf("IMU_FILTER_ALPHA must be 0-1, got %v", c.IMU.FilterAlpha)
	}
	if c.IMU.LoopMicros == 0 {
		return fmt.Errorf("IMU_LOOP_MICROS is required")
	}
	if c.RC.MinCheck >= c.RC.MaxCheck {
		return fmt.Errorf("RC_MIN_CHECK (%d) must be below RC_MAX_CHECK (%d)", c.RC.MinCheck, c.RC.MaxCheck)
	}
	if int32(c.RC.MinCheck) < int32(c.PWM.Min) || int32(c.RC.MinCheck) >= int32(c.PWM.Max) {
		return fmt.Errorf("RC_MIN_CHECK (%d) must be within [PWM_MIN, PWM_MAX) (%d, %d)", c.RC.MinCheck, c.PWM.Min, c.PWM.Max)
	}
	if c.RC.ThrottleMid8 > 100 {
		return fmt.Errorf("RC_THROTTLE_MID must be 0-100, got %d", c.RC.ThrottleMid8)
	}
	if c.RC.ThrottleExpo8 > 100 {
		return fmt.Errorf("RC_THROTTLE_EXPO must be 0-100, got %d", c.RC.ThrottleExpo8)
	}
	if c.RC.Expo8 > 100 {
		return fmt.Errorf("RC_EXPO must be 0-100, got %d", c.RC.Expo8)
	}
	if c.RC.AuxChannel < 4 {
		return fmt.Errorf("RC_AUX_CHANNEL must not overlap the stick channels, got %d", c.RC.AuxChannel)
	}
	switch c.Board {
	case "sim", "hardware":
	case "replay":
		if c.ReplayFile == "" {
			return fmt.Errorf("REPLAY_FILE is required when BOARD=replay")
		}
	default:
		return fmt.Errorf("BOARD must be sim, hardware or replay, got %q", c.Board)
	}
	if c.SimProfile != "demo" && c.SimProfile != "none" {
		return fmt.Errorf("SIM_PROFILE must be demo or none, got %q", c.SimProfile)
	}
	if c.TelemetryEvery <= 0 {
		return fmt.Errorf("TELEMETRY_EVERY must be positive, got %d", c.TelemetryEvery)
	}
	if c.DisplayI2CAddr != ssd1306Addr {
		return fmt.Errorf("DISPLAY_I2C_ADDR must be 0x%02X, the SSD1306 driver address, got 0x%02X", ssd1306Addr, c.DisplayI2CAddr)
	}
	if c.DisplayUpdateInterval <= 0 || c.EnvSampleInterval <= 0 {
		return fmt.Errorf("DISPLAY_UPDATE_INTERVAL and ENV_SAMPLE_INTERVAL must be positive")
	}
	return nil
}

// InitGlobal initializes the global configuration from file.
// Uses sync.Once to ensure this only runs once, even if called multiple times.
func InitGlobal(configPath string) error {
	var err error
	configOnce.Do(func() {
		configMu.Lock()
		defer configMu.Unlock()
		globalConfig, err = Load(configPath)
	})
	return err
}

// Get returns the global configuration instance.
// InitGlobal must be called first, or this will return nil.
func Get() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return globalConfig
}
