package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWithWriter(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(&buf, "meshlog", "prod")

	log.Debug("hidden")
	log.Info("checkpoint_done", "location_id", "1")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "checkpoint_done", line["msg"])
	assert.Equal(t, "meshlog", line["app"])
	assert.Equal(t, "prod", line["env"])
	assert.Equal(t, "1", line["location_id"])
}

func TestNewWithWriter_DevLogsDebug(t *testing.T) {
	var buf bytes.Buffer
	NewWithWriter(&buf, "meshlog", "dev").Debug("visible")
	assert.Contains(t, buf.String(), "visible")
}
