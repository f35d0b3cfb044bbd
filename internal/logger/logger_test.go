package logger

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, DEBUG, ParseLevel("debug"))
	assert.Equal(t, WARN, ParseLevel("WARNING"))
	assert.Equal(t, ERROR, ParseLevel(" error "))
	assert.Equal(t, INFO, ParseLevel(""))
	assert.Equal(t, INFO, ParseLevel("verbose"))
}

func TestLoggerFiltersBelowMinLevel(t *testing.T) {
	var buf bytes.Buffer
	log, err := NewLogger(Options{Level: "WARN", Output: &buf})
	require.NoError(t, err)

	log.Info("ORDER", "should be dropped")
	log.Warn("ORDER", "should be kept")

	out := buf.String()
	assert.NotContains(t, out, "should be dropped")
	assert.Contains(t, out, "should be kept")
	assert.Contains(t, out, "[ORDER")
}

func TestLoggerWritesJSONFile(t *testing.T) {
	dir := t.TempDir()
	var buf bytes.Buffer

	log, err := NewLogger(Options{Service: "test-worker", Level: "DEBUG", Dir: dir, Output: &buf})
	require.NoError(t, err)

	log.LogOrder("COMPLETED", "order-1", "done")
	log.Close()

	matches, err := filepath.Glob(filepath.Join(dir, "test-worker-*.log"))
	require.NoError(t, err)
	require.Len(t, matches, 1)

	data, err := os.ReadFile(matches[0])
	require.NoError(t, err)

	var found bool
	for _, line := range strings.Split(strings.TrimSpace(string(data)), "\n") {
		var entry map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &entry))
		if entry["category"] == "ORDER" {
			found = true
			assert.Equal(t, "INFO", entry["level"])
			assert.Equal(t, "[COMPLETED] order-1 - done", entry["message"])
		}
	}
	assert.True(t, found, "order entry should be in the log file")
}

func TestNopLoggerDiscards(t *testing.T) {
	log := NewNop()
	log.Error("ANY", "nothing happens")
	log.Close()
}
