package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestNewFiltersBelowConfiguredLevel(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, "warn")

	log.Info().Msg("should be dropped")
	require.Empty(t, buf.String())

	log.Warn().Msg("should appear")
	require.Contains(t, buf.String(), "should appear")
}

func TestNewFallsBackToInfoForUnknownLevel(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, "not-a-level")

	require.Equal(t, zerolog.InfoLevel, log.GetLevel())
}

func TestNewIsCaseAndWhitespaceInsensitive(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, "  DEBUG  ")

	require.Equal(t, zerolog.DebugLevel, log.GetLevel())
}

func TestNewEmitsValidJSONWithTimestamp(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, "info")

	log.Info().Str("key", "value").Msg("hello")

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	require.Equal(t, "hello", decoded["message"])
	require.Equal(t, "value", decoded["key"])
	require.Contains(t, decoded, "time")
}

func TestDefaultTagsComponentName(t *testing.T) {
	log := Default("manager", false)
	require.Equal(t, zerolog.InfoLevel, log.GetLevel())
}

func TestDefaultDebugEnablesDebugLevel(t *testing.T) {
	log := Default("manager", true)
	require.Equal(t, zerolog.DebugLevel, log.GetLevel())
}
