package observability

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLogLevel(t *testing.T) {
	tests := map[string]zerolog.Level{
		"debug":   zerolog.DebugLevel,
		"INFO":    zerolog.InfoLevel,
		"warning": zerolog.WarnLevel,
		"error":   zerolog.ErrorLevel,
		"bogus":   zerolog.InfoLevel,
	}
	for in, want := range tests {
		assert.Equal(t, want, parseLogLevel(in), in)
	}
}

func TestComponentAndSecurityEvent(t *testing.T) {
	var buf bytes.Buffer
	logger := Component(InitLogger("info", &buf), "callbacks")

	SecurityEvent(logger).Str("reason", "bad signature").Msg("Callback rejected")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "callbacks", entry["component"])
	assert.Equal(t, "security", entry["event"])
	assert.Equal(t, "warn", entry["level"])
}

func TestInitLogger_FiltersBelowLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := InitLogger("error", &buf)
	logger.Info().Msg("hidden")
	assert.Empty(t, buf.String())
}
