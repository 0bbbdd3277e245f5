package rc

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/relabs-tech/flight_core/internal/config"
)

func newTestRC() *RC {
	cfg := config.Default()
	return New(cfg.RC, cfg.PWM)
}

// sticks returns a frame with the given roll, pitch, yaw and throttle and
// the aux switch low.
func sticks(roll, pitch, yaw, throttle uint16) []uint16 {
	return []uint16{roll, pitch, yaw, throttle, 1000, 1500, 1500, 1500}
}

func TestInitialState(t *testing.T) {
	r := newTestRC()
	assert.Equal(t, Demands{0, 0, 0, 1000}, r.Demands())
	assert.True(t, r.ThrottleIsDown())
	assert.False(t, r.IsArmed())
}

func TestPitchRollCurve(t *testing.T) {
	r := newTestRC()

	cases := []struct {
		pulse uint16
		want  int16
	}{
		{1500, 0},
		{1650, 57},
		{1700, 81},
		{2000, 450},
		{2100, 450},
		{1300, -81},
		{1000, -450},
	}
	for _, c := range cases {
		r.Update(sticks(c.pulse, c.pulse, 1500, 1000))
		assert.Equal(t, c.want, r.Demands()[Roll], "roll pulse %d", c.pulse)
		assert.Equal(t, c.want, r.Demands()[Pitch], "pitch pulse %d", c.pulse)
	}
}

func TestYawIsLinear(t *testing.T) {
	r := newTestRC()
	r.Update(sticks(1500, 1500, 1600, 1000))
	assert.Equal(t, int16(100), r.Demands()[Yaw])
	r.Update(sticks(1500, 1500, 900, 1000))
	assert.Equal(t, int16(-500), r.Demands()[Yaw])
}

func TestThrottleCurve(t *testing.T) {
	r := newTestRC()
	cases := map[uint16]int16{
		1000: 1000,
		1100: 1000,
		1550: 1500,
		2000: 2000,
	}
	for pulse, want := range cases {
		r.Update(sticks(1500, 1500, 1500, pulse))
		assert.Equal(t, want, r.Demands()[Throttle], "throttle pulse %d", pulse)
	}
}

func TestDemandsStayBounded(t *testing.T) {
	r := newTestRC()
	for p := 800; p <= 2200; p += 7 {
		pulse := uint16(p)
		r.Update(sticks(pulse, pulse, pulse, pulse))
		d := r.Demands()
		for axis := Roll; axis <= Yaw; axis++ {
			assert.LessOrEqual(t, d[axis], int16(MaxAxisDemand))
			assert.GreaterOrEqual(t, d[axis], int16(-MaxAxisDemand))
		}
		assert.GreaterOrEqual(t, d[Throttle], int16(1000))
		assert.LessOrEqual(t, d[Throttle], int16(2000))
	}
}

func TestArmGesture(t *testing.T) {
	r := newTestRC()
	arm := sticks(1500, 1500, 2000, 1000)

	for i := 0; i < 19; i++ {
		r.Update(arm)
	}
	assert.False(t, r.IsArmed(), "armed before the delay")

	r.Update(arm)
	assert.True(t, r.IsArmed())

	// stays armed with sticks released
	r.Update(sticks(1500, 1500, 1500, 1500))
	assert.True(t, r.IsArmed())

	disarm := sticks(1500, 1500, 1000, 1000)
	for i := 0; i < 20; i++ {
		r.Update(disarm)
	}
	assert.False(t, r.IsArmed())
}

func TestArmGestureInterrupted(t *testing.T) {
	r := newTestRC()
	arm := sticks(1500, 1500, 2000, 1000)

	for i := 0; i < 10; i++ {
		r.Update(arm)
	}
	r.Update(sticks(1500, 1500, 1500, 1000))
	for i := 0; i < 10; i++ {
		r.Update(arm)
	}
	assert.False(t, r.IsArmed())
}

func TestNoArmWithThrottleUp(t *testing.T) {
	r := newTestRC()
	for i := 0; i < 50; i++ {
		r.Update(sticks(1500, 1500, 2000, 1400))
	}
	assert.False(t, r.IsArmed())
}

func TestDisarm(t *testing.T) {
	r := newTestRC()
	for i := 0; i < 20; i++ {
		r.Update(sticks(1500, 1500, 2000, 1000))
	}
	assert.True(t, r.IsArmed())
	r.Disarm()
	assert.False(t, r.IsArmed())
}

func TestAuxSwitch(t *testing.T) {
	r := newTestRC()
	frame := sticks(1500, 1500, 1500, 1000)
	for pulse, want := range map[uint16]uint8{1000: 0, 1299: 0, 1500: 1, 1700: 2, 2000: 2} {
		frame[4] = pulse
		r.Update(frame)
		assert.Equal(t, want, r.Aux(), "aux pulse %d", pulse)
	}
}

func TestShortFrameKeepsTrailingChannels(t *testing.T) {
	r := newTestRC()
	r.Update(sticks(1500, 1500, 1500, 1550))
	r.Update([]uint16{1700, 1500})
	assert.Equal(t, int16(81), r.Demands()[Roll])
	assert.Equal(t, int16(1500), r.Demands()[Throttle])
}
