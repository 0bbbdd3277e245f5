package mixer

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/flight_core/internal/config"
	"github.com/relabs-tech/flight_core/internal/rc"
)

type recordingWriter struct {
	writes [NumMotors][]int16
	fail   bool
}

func (w *recordingWriter) WriteMotor(index int, value int16) error {
	w.writes[index] = append(w.writes[index], value)
	if w.fail {
		return errors.New("bus error")
	}
	return nil
}

var testPWM = config.PWMConfig{Min: 1000, Max: 2000}

func TestEqualMotorsWithoutCorrection(t *testing.T) {
	m := New(testPWM, QuadX, nil)
	out := m.Update(true, false, rc.Demands{0, 0, 0, 1500}, [3]int16{})
	assert.Equal(t, [NumMotors]int16{1500, 1500, 1500, 1500}, out)
}

func TestAxisCorrections(t *testing.T) {
	m := New(testPWM, QuadX, nil)
	// roll 100, pitch 50, yaw 20
	out := m.Update(true, false, rc.Demands{0, 0, 0, 1500}, [3]int16{100, 50, 20})
	assert.Equal(t, [NumMotors]int16{1470, 1330, 1630, 1570}, out)
}

func TestCeilingKeepsDifferential(t *testing.T) {
	m := New(testPWM, QuadX, nil)
	out := m.Update(true, false, rc.Demands{0, 0, 0, 1900}, [3]int16{200, 0, 0})
	assert.Equal(t, [NumMotors]int16{1600, 1600, 2000, 2000}, out)
}

func TestFloorClamps(t *testing.T) {
	m := New(testPWM, QuadX, nil)
	out := m.Update(true, false, rc.Demands{0, 0, 0, 1050}, [3]int16{200, 0, 0})
	assert.Equal(t, [NumMotors]int16{1000, 1000, 1250, 1250}, out)
}

func TestOutputsAlwaysInRange(t *testing.T) {
	m := New(testPWM, QuadX, nil)
	for _, thr := range []int16{1000, 1200, 1500, 1800, 2000} {
		for _, pid := range []int16{-32768, -3000, -500, 0, 500, 3000, 32767} {
			out := m.Update(true, false, rc.Demands{0, 0, 0, thr}, [3]int16{pid, -pid, pid})
			for i, v := range out {
				assert.GreaterOrEqual(t, v, testPWM.Min, "motor %d thr %d pid %d", i, thr, pid)
				assert.LessOrEqual(t, v, testPWM.Max, "motor %d thr %d pid %d", i, thr, pid)
			}
		}
	}
}

func TestSaturationKeepsMotorOrder(t *testing.T) {
	m := New(testPWM, QuadX, nil)
	rng := rand.New(rand.NewSource(7))

	for n := 0; n < 5000; n++ {
		thr := int16(1000 + rng.Intn(1001))
		pid := [3]int16{int16(rng.Intn(1601) - 800), int16(rng.Intn(1601) - 800), int16(rng.Intn(1601) - 800)}
		out := m.Update(true, false, rc.Demands{0, 0, 0, thr}, pid)

		var raw [NumMotors]int32
		for i, mix := range QuadX {
			raw[i] = int32(thr) + int32(mix.Pitch)*int32(pid[1]) + int32(mix.Roll)*int32(pid[0]) - int32(mix.Yaw)*int32(pid[2])
		}

		for i := range out {
			require.LessOrEqual(t, out[i], testPWM.Max)
			require.GreaterOrEqual(t, out[i], testPWM.Min)
			for j := range out {
				if raw[i] < raw[j] {
					require.LessOrEqual(t, out[i], out[j], "thr %d pid %v raw %v out %v", thr, pid, raw, out)
				}
				// differential thrust survives the ceiling while both stay off the floor
				if out[i] > testPWM.Min && out[j] > testPWM.Min {
					require.Equal(t, raw[i]-raw[j], int32(out[i])-int32(out[j]), "thr %d pid %v raw %v out %v", thr, pid, raw, out)
				}
			}
		}
	}
}

func TestThrottleDownHoldsMinimum(t *testing.T) {
	m := New(testPWM, QuadX, nil)
	out := m.Update(true, true, rc.Demands{0, 0, 500, 1000}, [3]int16{300, -300, 400})
	assert.Equal(t, [NumMotors]int16{1000, 1000, 1000, 1000}, out)
}

func TestDisarmedOverridesEverything(t *testing.T) {
	m := New(testPWM, QuadX, nil)
	require.NoError(t, m.SetDisarmed(2, 1200))

	out := m.Update(false, false, rc.Demands{0, 0, 0, 1800}, [3]int16{100, 100, 100})
	assert.Equal(t, [NumMotors]int16{1000, 1000, 1200, 1000}, out)

	// throttle down does not override the motor test value
	out = m.Update(false, true, rc.Demands{0, 0, 0, 1000}, [3]int16{})
	assert.Equal(t, [NumMotors]int16{1000, 1000, 1200, 1000}, out)

	// armed ignores the disarmed table
	out = m.Update(true, false, rc.Demands{0, 0, 0, 1500}, [3]int16{})
	assert.Equal(t, [NumMotors]int16{1500, 1500, 1500, 1500}, out)
}

func TestSetDisarmed(t *testing.T) {
	m := New(testPWM, QuadX, nil)
	assert.Equal(t, [NumMotors]int16{1000, 1000, 1000, 1000}, m.Disarmed())

	assert.ErrorIs(t, m.SetDisarmed(4, 1500), ErrMotorIndex)
	assert.ErrorIs(t, m.SetDisarmed(-1, 1500), ErrMotorIndex)

	require.NoError(t, m.SetDisarmed(0, 2500))
	require.NoError(t, m.SetDisarmed(1, 500))
	assert.Equal(t, [NumMotors]int16{2000, 1000, 1000, 1000}, m.Disarmed())
}

func TestWritesEveryMotorEachUpdate(t *testing.T) {
	w := &recordingWriter{}
	m := New(testPWM, QuadX, w)

	m.Update(true, false, rc.Demands{0, 0, 0, 1500}, [3]int16{})
	m.Update(false, false, rc.Demands{0, 0, 0, 1500}, [3]int16{})

	for i := 0; i < NumMotors; i++ {
		assert.Equal(t, []int16{1500, 1000}, w.writes[i])
	}
	assert.Equal(t, [NumMotors]int16{1000, 1000, 1000, 1000}, m.Motors())
}

func TestWriteErrorsDoNotStopTheMix(t *testing.T) {
	w := &recordingWriter{fail: true}
	m := New(testPWM, QuadX, w)

	out := m.Update(true, false, rc.Demands{0, 0, 0, 1500}, [3]int16{})
	assert.Equal(t, [NumMotors]int16{1500, 1500, 1500, 1500}, out)
	for i := 0; i < NumMotors; i++ {
		assert.Len(t, w.writes[i], 1)
	}
}
