package sensors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/flight_core/internal/imu"
)

type scriptedIMU struct {
	samples []imu.IMURaw
	errs    []error
	n       int
}

func (s *scriptedIMU) ReadRaw() (imu.IMURaw, error) {
	i := s.n % len(s.samples)
	s.n++
	if s.errs != nil && s.errs[i] != nil {
		return imu.IMURaw{}, s.errs[i]
	}
	return s.samples[i], nil
}

func TestEstimateGyroBias(t *testing.T) {
	src := &scriptedIMU{samples: []imu.IMURaw{
		{Gx: 10, Gy: -4, Gz: 0},
		{Gx: 12, Gy: -6, Gz: 2},
	}}
	bias, err := EstimateGyroBias(src, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, GyroBias{11, -5, 1}, bias)
	assert.Equal(t, 10, src.n)

	got := bias.Apply(imu.IMURaw{Gx: 111, Gy: -5, Gz: 1})
	assert.Equal(t, [3]float64{100, 0, 0}, got)
}

func TestEstimateGyroBiasSkipsErrors(t *testing.T) {
	src := &scriptedIMU{
		samples: []imu.IMURaw{{Gx: 3}, {Gx: 999}},
		errs:    []error{nil, errors.New("spi glitch")},
	}
	bias, err := EstimateGyroBias(src, 4, 0)
	require.NoError(t, err)
	assert.Equal(t, GyroBias{3, 0, 0}, bias)
}

func TestEstimateGyroBiasFails(t *testing.T) {
	dead := errors.New("no device")
	src := &scriptedIMU{samples: []imu.IMURaw{{}}, errs: []error{dead}}
	_, err := EstimateGyroBias(src, 3, 0)
	assert.ErrorIs(t, err, dead)

	_, err = EstimateGyroBias(src, 0, 0)
	assert.Error(t, err)
}

func TestGyroLSBPerDPS(t *testing.T) {
	assert.Equal(t, 131.0, GyroLSBPerDPS(0))
	assert.Equal(t, 16.4, GyroLSBPerDPS(3))
	assert.Equal(t, 131.0, GyroLSBPerDPS(9))
}
