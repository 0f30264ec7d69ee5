package log

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want Level
	}{
		{"debug", DebugLevel},
		{" WARN ", WarnLevel},
		{"error", ErrorLevel},
		{"info", InfoLevel},
		{"", InfoLevel},
		{"verbose", InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLevel(tt.in))
		})
	}
}

func TestInitJSONWithComponent(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: DebugLevel, JSONOutput: true, Output: &buf})
	defer zerolog.SetGlobalLevel(zerolog.InfoLevel)

	logger := WithComponent("queue")
	logger = WithGroup(logger, "regular")
	logger.Info().Msg("Event persisted")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "queue", entry["component"])
	assert.Equal(t, "regular", entry["group"])
	assert.Equal(t, "Event persisted", entry["message"])
	assert.Equal(t, "info", entry["level"])
}

func TestInitConsoleOutput(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: ParseLevel("bogus"), Output: &buf})
	defer zerolog.SetGlobalLevel(zerolog.InfoLevel)

	logger := WithComponent("scheduler")
	logger.Debug().Msg("hidden")
	logger.Info().Msg("Flush scheduled")
	assert.Contains(t, buf.String(), "Flush scheduled")
	assert.NotContains(t, buf.String(), "hidden")
	assert.NotContains(t, buf.String(), `"level"`)
}

func TestInitLevelFilters(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: ErrorLevel, JSONOutput: true, Output: &buf})
	defer zerolog.SetGlobalLevel(zerolog.InfoLevel)

	logger := WithComponent("syncer")
	logger.Info().Msg("hidden")
	logger.Warn().Msg("hidden")
	assert.Empty(t, buf.String())

	logger.Error().Msg("Upload failed")
	assert.Contains(t, buf.String(), "Upload failed")
}
