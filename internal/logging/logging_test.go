package logging

import (
	"log"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/flight_core/internal/config"
)

func TestSetupWritesLogFile(t *testing.T) {
	defer log.SetOutput(os.Stderr)

	cfg := config.Default()
	cfg.LogFile = filepath.Join(t.TempDir(), "flight.log")

	closer := Setup(cfg)
	log.Printf("flight: armed")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(cfg.LogFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), "flight: armed")
	assert.Contains(t, string(data), "logging: writing to")
}

func TestSetupWithoutFile(t *testing.T) {
	defer log.SetOutput(os.Stderr)

	closer := Setup(config.Default())
	assert.NoError(t, closer.Close())
}
