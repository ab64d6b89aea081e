package logger_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rezonia/invoice-engine/internal/logger"
)

func TestSetup_FileOutputJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "engine.log")

	err := logger.Setup(logger.LogConfig{Level: "debug", Format: "json", Output: path})
	require.NoError(t, err)
	defer func() { _ = logger.Setup(logger.DefaultConfig()) }()

	l := logger.WithComponent("signature")
	l.Info().Str("serial", "MOCK-CERT-001").Msg("engine ready")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"component":"signature"`)
	assert.Contains(t, string(data), `"serial":"MOCK-CERT-001"`)
	assert.Equal(t, zerolog.DebugLevel, zerolog.GlobalLevel())
}

func TestSetup_InvalidLevel(t *testing.T) {
	err := logger.Setup(logger.LogConfig{Level: "loud"})
	assert.Error(t, err)
}
