package app

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/flight_core/internal/board"
	"github.com/relabs-tech/flight_core/internal/config"
	"github.com/relabs-tech/flight_core/internal/gps"
	"github.com/relabs-tech/flight_core/internal/mixer"
	"github.com/relabs-tech/flight_core/internal/telemetry"
)

func TestFormatFrameState(t *testing.T) {
	tests := []struct {
		frame telemetry.Frame
		state string
	}{
		{telemetry.Frame{}, "DISARMED"},
		{telemetry.Frame{Armed: true}, "ARMED"},
		{telemetry.Frame{Armed: true, Failsafe: true}, "FAILSAFE"},
		{telemetry.Frame{Armed: true, Failsafe: true, SensorFault: true}, "SENSOR"},
	}
	for _, tt := range tests {
		assert.Contains(t, formatFrame(tt.frame), " "+tt.state+" ")
	}

	line := formatFrame(telemetry.Frame{Tick: 12, Demands: [4]int16{0, 0, 0, 1500}, Motors: [4]int16{1490, 1510, 1500, 1500}})
	assert.True(t, strings.HasPrefix(line, "[FLT     12]"), line)
	assert.Contains(t, line, "thr=1500")
	assert.Contains(t, line, "m=1490 1510 1500 1500")
}

func TestFormatFix(t *testing.T) {
	line := formatFix(gps.Fix{Latitude: 48.1173, Longitude: 11.516667, Satellites: 8, Validity: "A"})
	assert.Contains(t, line, "lat=48.117300")
	assert.Contains(t, line, "sats=8")
}

func TestFlightStatusLines(t *testing.T) {
	assert.Equal(t, []string{"", "Flight link", "Waiting..."}, flightStatusLines(telemetry.Frame{}, false))

	lines := flightStatusLines(telemetry.Frame{
		Armed:   true,
		Demands: [4]int16{0, 0, 0, 1400},
		Euler:   [3]float32{1.5, -2, 90},
		Motors:  [4]int16{1400, 1401, 1402, 1403},
	}, true)
	require.Len(t, lines, 5)
	assert.Equal(t, "ARMED T:1400", lines[0])
	assert.Equal(t, "R:  1.5 P: -2.0", lines[1])
	assert.Equal(t, "M:1400 1401", lines[3])

	lines = flightStatusLines(telemetry.Frame{SensorFault: true}, true)
	assert.Equal(t, "SENSOR FAULT T:0", lines[0])
}

func TestGPSLines(t *testing.T) {
	assert.Equal(t, []string{"", "GPS Position", "Waiting..."}, gpsLines(gps.Fix{}, false))

	lines := gpsLines(gps.Fix{Latitude: -33.8688, Longitude: -151.2093, AltitudeM: 58.4, Satellites: 9, Validity: "A"}, true)
	assert.Equal(t, []string{"33.8688S", "151.2093W", "Alt: 58m", "Sats: 9 A"}, lines)
}

func TestLoadTable(t *testing.T) {
	cfg := config.Default()
	table, err := loadTable(cfg)
	require.NoError(t, err)
	assert.Equal(t, mixer.QuadX, table)

	path := filepath.Join(t.TempDir(), "plus.yaml")
	doc := `name: plus
motors:
  - {throttle: 1, roll: 0, pitch: 1, yaw: -1}
  - {throttle: 1, roll: -1, pitch: 0, yaw: 1}
  - {throttle: 1, roll: 0, pitch: -1, yaw: -1}
  - {throttle: 1, roll: 1, pitch: 0, yaw: 1}
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))
	cfg.MixerTableFile = path
	table, err = loadTable(cfg)
	require.NoError(t, err)
	assert.Equal(t, float32(-1), table[1].Roll)

	cfg.MixerTableFile = filepath.Join(t.TempDir(), "missing.yaml")
	_, err = loadTable(cfg)
	assert.Error(t, err)
}

func TestOpenPlatformSim(t *testing.T) {
	cfg := config.Default()
	p, err := openPlatform(testContext(t), cfg, mixer.QuadX)
	require.NoError(t, err)
	defer p.Close()
	assert.NotNil(t, p.board)
	assert.IsType(t, &board.Script{}, p.source)
	assert.Nil(t, p.replay)

	cfg.SimProfile = "none"
	p, err = openPlatform(testContext(t), cfg, mixer.QuadX)
	require.NoError(t, err)
	assert.IsType(t, &board.Sim{}, p.source)
}

func TestOpenPlatformUnknownBoard(t *testing.T) {
	cfg := config.Default()
	cfg.Board = "rocket"
	_, err := openPlatform(testContext(t), cfg, mixer.QuadX)
	assert.Error(t, err)
}

// testContext returns a context cancelled when the test finishes.
func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return ctx
}
