package stabilize

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/flight_core/internal/config"
	"github.com/relabs-tech/flight_core/internal/rc"
)

func newTestStabilize(trim [3]int16) *Stabilize {
	cfg := config.Default()
	cfg.PID.SoftwareTrim = trim
	return New(cfg.PID, cfg.IMU)
}

func TestZeroInputYieldsTrim(t *testing.T) {
	s := newTestStabilize([3]int16{3, -2, 1})

	for i := 0; i < 100; i++ {
		out := s.Update(rc.Demands{0, 0, 0, 1500}, [3]int16{}, [3]float32{})
		require.Equal(t, [3]int16{3, -2, 1}, out)
	}
	assert.Equal(t, State{}, s.State())
}

func TestLevelingOpposesTilt(t *testing.T) {
	s := newTestStabilize([3]int16{})

	out := s.Update(rc.Demands{0, 0, 0, 1500}, [3]int16{}, [3]float32{10, -5, 0})
	assert.Equal(t, int16(-10), out[AxisRoll])
	assert.Equal(t, int16(5), out[AxisPitch])
	assert.Equal(t, int16(0), out[AxisYaw])
}

func TestFullStickIsRateMode(t *testing.T) {
	s := newTestStabilize([3]int16{})

	// full roll deflection ignores the attitude entirely
	out := s.Update(rc.Demands{500, 0, 0, 1500}, [3]int16{}, [3]float32{30, 30, 0})
	assert.Equal(t, int16(500), out[AxisRoll])
	assert.Equal(t, int16(0), out[AxisPitch])
}

func TestYawOutputClamped(t *testing.T) {
	s := newTestStabilize([3]int16{})

	out := s.Update(rc.Demands{0, 0, 0, 1500}, [3]int16{0, 0, 2000}, [3]float32{})
	assert.Equal(t, int16(-YawJumpLimit), out[AxisYaw])

	out = s.Update(rc.Demands{0, 0, 50, 1500}, [3]int16{0, 0, 3000}, [3]float32{})
	assert.Equal(t, int16(-150), out[AxisYaw])
}

func TestGyroSaturationZeroesIntegral(t *testing.T) {
	s := newTestStabilize([3]int16{})

	s.Update(rc.Demands{0, 0, 0, 1500}, [3]int16{-300, 0, 0}, [3]float32{})
	assert.Equal(t, int32(300), s.State().ErrorGyroI[AxisRoll])

	s.Update(rc.Demands{0, 0, 0, 1500}, [3]int16{700, 0, 0}, [3]float32{})
	assert.Equal(t, int32(0), s.State().ErrorGyroI[AxisRoll])
}

func TestLargeYawDemandZeroesYawIntegral(t *testing.T) {
	s := newTestStabilize([3]int16{})

	s.Update(rc.Demands{0, 0, 0, 1500}, [3]int16{0, 0, 100}, [3]float32{})
	assert.Equal(t, int32(-100), s.State().ErrorGyroI[AxisYaw])

	s.Update(rc.Demands{0, 0, 200, 1500}, [3]int16{0, 0, 100}, [3]float32{})
	assert.Equal(t, int32(0), s.State().ErrorGyroI[AxisYaw])
}

func TestDerivativeHistory(t *testing.T) {
	s := newTestStabilize([3]int16{})

	s.Update(rc.Demands{}, [3]int16{100, 0, 0}, [3]float32{})
	st := s.State()
	assert.Equal(t, int16(100), st.LastGyro[AxisRoll])
	assert.Equal(t, int32(100), st.Delta1[AxisRoll])
	assert.Equal(t, int32(0), st.Delta2[AxisRoll])

	s.Update(rc.Demands{}, [3]int16{100, 0, 0}, [3]float32{})
	st = s.State()
	assert.Equal(t, int32(0), st.Delta1[AxisRoll])
	assert.Equal(t, int32(100), st.Delta2[AxisRoll])
}

func TestIntegralsStayBounded(t *testing.T) {
	s := newTestStabilize([3]int16{10, 10, 10})
	rng := rand.New(rand.NewSource(1))

	for i := 0; i < 20000; i++ {
		var d rc.Demands
		for axis := 0; axis < 3; axis++ {
			d[axis] = int16(rng.Intn(2*rc.MaxAxisDemand+1) - rc.MaxAxisDemand)
		}
		d[rc.Throttle] = 1500
		gyro := [3]int16{
			int16(rng.Intn(65536) - 32768),
			int16(rng.Intn(1281) - 640),
			int16(rng.Intn(1281) - 640),
		}
		euler := [3]float32{
			rng.Float32()*360 - 180,
			rng.Float32()*180 - 90,
			rng.Float32()*360 - 180,
		}

		out := s.Update(d, gyro, euler)

		st := s.State()
		for axis := 0; axis < 3; axis++ {
			require.LessOrEqual(t, st.ErrorGyroI[axis], int32(GyroIntegralLimit))
			require.GreaterOrEqual(t, st.ErrorGyroI[axis], int32(-GyroIntegralLimit))
		}
		for axis := 0; axis < 2; axis++ {
			require.LessOrEqual(t, st.ErrorAngleI[axis], int32(AngleIntegralLimit))
			require.GreaterOrEqual(t, st.ErrorAngleI[axis], int32(-AngleIntegralLimit))
		}

		limit := int16(YawJumpLimit) + d[rc.Yaw]
		if d[rc.Yaw] < 0 {
			limit = int16(YawJumpLimit) - d[rc.Yaw]
		}
		require.LessOrEqual(t, out[AxisYaw], limit)
		require.GreaterOrEqual(t, out[AxisYaw], -limit)
	}
}

func TestResetIntegralKeepsDerivativeHistory(t *testing.T) {
	s := newTestStabilize([3]int16{})

	for i := 0; i < 10; i++ {
		s.Update(rc.Demands{200, -100, 50, 1500}, [3]int16{int16(10 * i), -20, 30}, [3]float32{5, -3, 0})
	}
	before := s.State()
	require.NotZero(t, before.ErrorGyroI[AxisPitch])
	require.NotZero(t, before.ErrorAngleI[AxisRoll])

	s.ResetIntegral()
	after := s.State()
	assert.Equal(t, [3]int32{}, after.ErrorGyroI)
	assert.Equal(t, [2]int32{}, after.ErrorAngleI)
	assert.Equal(t, before.LastGyro, after.LastGyro)
	assert.Equal(t, before.Delta1, after.Delta1)
	assert.Equal(t, before.Delta2, after.Delta2)
}

func TestInitClearsEverything(t *testing.T) {
	s := newTestStabilize([3]int16{})
	s.Update(rc.Demands{100, 100, 0, 1500}, [3]int16{50, 50, 50}, [3]float32{1, 1, 0})

	cfg := config.Default()
	s.Init(cfg.PID, cfg.IMU)
	assert.Equal(t, State{}, s.State())
}

// After a reset the integrals are gone, but the derivative taps still hold
// the last gyro samples, so a zero-input tick is not pure trim until the
// three-tap history has drained.
func TestZeroInputAfterResetDrainsDerivative(t *testing.T) {
	s := newTestStabilize([3]int16{})

	for i := 0; i < 10; i++ {
		s.Update(rc.Demands{100, -50, 0, 1500}, [3]int16{750, 0, 0}, [3]float32{4, -2, 0})
	}
	s.ResetIntegral()

	// deltaSum = -750, D = int32(-750 * 0.01) = -7 for three ticks
	for i := 0; i < 3; i++ {
		out := s.Update(rc.Demands{0, 0, 0, 1500}, [3]int16{}, [3]float32{})
		require.Equal(t, [3]int16{7, 0, 0}, out, "tick %d", i)
	}

	out := s.Update(rc.Demands{0, 0, 0, 1500}, [3]int16{}, [3]float32{})
	assert.Equal(t, [3]int16{0, 0, 0}, out)
	assert.Equal(t, [3]int32{}, s.State().ErrorGyroI)
	assert.Equal(t, [2]int32{}, s.State().ErrorAngleI)
}
