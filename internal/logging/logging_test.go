package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestNew_JSON verifies json output carries level, message and timestamp and
// honours the level filter.
func TestNew_JSON(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	l, err := New(&buf, Options{Level: "WARN", Format: "json"})
	require.NoError(t, err)

	l.Info().Msg("dropped")
	l.Warn().Str("feed", "a.xml").Msg("kept")

	var line map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line))
	assert.Equal(t, "warn", line["level"])
	assert.Equal(t, "kept", line["message"])
	assert.Equal(t, "a.xml", line["feed"])
	assert.Contains(t, line, "time")
}

// TestNew_Console verifies the console writer is used by default.
func TestNew_Console(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	l, err := New(&buf, Options{})
	require.NoError(t, err)
	l.Info().Msg("hello")
	assert.Contains(t, buf.String(), "INF")
	assert.Contains(t, buf.String(), "hello")
}

// TestNew_Invalid verifies bad level and format names are reported.
func TestNew_Invalid(t *testing.T) {
	t.Parallel()

	_, err := New(nil, Options{Level: "loud"})
	require.Error(t, err)
	_, err = New(nil, Options{Format: "xml"})
	require.Error(t, err)
}
