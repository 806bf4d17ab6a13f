package log

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewLevels(t *testing.T) {
	var buf bytes.Buffer
	prod := New(&buf, "prod")
	prod.Debug().Msg("hidden")
	require.Zero(t, buf.Len())

	dev := New(&buf, "dev")
	dev.Debug().Msg("shown")
	require.Contains(t, buf.String(), "shown")
}

func TestComponent(t *testing.T) {
	var buf bytes.Buffer
	logger := Component(New(&buf, "prod"), "poller")
	logger.Info().Msg("poller: старт")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	require.Equal(t, "poller", entry["component"])
	require.Equal(t, "feedback-relay", entry["service"])
	require.NotEmpty(t, entry["time"])
}
