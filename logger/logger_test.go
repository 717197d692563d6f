package logger

import (
	"bytes"
	"encoding/json"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConsoleLoggerLevels(t *testing.T) {
	var buf bytes.Buffer
	c := &consoleLogger{out: &buf, mu: &sync.Mutex{}, metadata: map[string]interface{}{}, logLevel: LevelInfo}

	c.Debug("hidden %d", 1)
	c.Info("shown %d", 2)
	c.Error("error %s", "boom")

	out := buf.String()
	assert.NotContains(t, out, "hidden 1")
	assert.Contains(t, out, "shown 2")
	assert.Contains(t, out, "error boom")
}

func TestConsoleLoggerPrefixAndMetadata(t *testing.T) {
	var buf bytes.Buffer
	c := &consoleLogger{out: &buf, mu: &sync.Mutex{}, metadata: map[string]interface{}{}, logLevel: LevelTrace}

	l := c.WithPrefix("cache").With(map[string]interface{}{"backend": "sqlite"})
	l.Info("opened")

	out := buf.String()
	assert.Contains(t, out, "cache")
	assert.Contains(t, out, `"backend":"sqlite"`)

	// The parent logger is unchanged.
	buf.Reset()
	c.Info("plain")
	assert.NotContains(t, buf.String(), "cache")
}

func TestJSONLogger(t *testing.T) {
	var buf bytes.Buffer
	c := &jsonLogger{out: &buf, mu: &sync.Mutex{}, metadata: map[string]interface{}{}, logLevel: LevelDebug}

	c.WithPrefix("janitor").Debug("swept %d entries", 3)

	var entry JSONLogEntry
	assert.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(buf.String())), &entry))
	assert.Equal(t, "DEBUG", entry.Severity)
	assert.Equal(t, "swept 3 entries", entry.Message)
	assert.Equal(t, "janitor", entry.Prefix)
}

func TestTestLoggerRecords(t *testing.T) {
	l := NewTestLogger()
	l.Warn("fallback to %s", "file")
	entries := l.Entries()
	assert.Len(t, entries, 1)
	assert.Equal(t, "WARN", entries[0].Severity)
	assert.Equal(t, "fallback to file", entries[0].Message)
}
