package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInit_StdBackendDefaultsForDev(t *testing.T) {
	var buf bytes.Buffer
	cfg := Init(Config{Env: EnvDev, Service: "relay-test", Output: &buf})

	assert.Equal(t, BackendStd, cfg.Backend)
	assert.NotEmpty(t, cfg.InstanceID)

	slog.Info("hello", "room", "room-42")
	out := buf.String()
	assert.Contains(t, out, "msg=hello")
	assert.Contains(t, out, "room=room-42")
	assert.Contains(t, out, "service=relay-test")
	assert.Contains(t, out, "instance_id="+cfg.InstanceID)
}

func TestInit_ZapBackendWritesJSON(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Env: EnvProd, Service: "relay-test", Version: "v1", InstanceID: "i-1", Output: &buf})

	slog.Warn("chat persist failed", "room", "room-42")

	line := strings.TrimSpace(buf.String())
	require.NotEmpty(t, line)

	var rec map[string]any
	require.NoError(t, json.Unmarshal([]byte(line), &rec))
	assert.Equal(t, "chat persist failed", rec["msg"])
	assert.Equal(t, "WARN", rec["level"])
	assert.Equal(t, "room-42", rec["room"])
	assert.Equal(t, "i-1", rec["instance_id"])
}

func TestInit_DebugLevel(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Env: EnvDev, Debug: true, Output: &buf})

	slog.Debug("probe")
	assert.Contains(t, buf.String(), "msg=probe")
}

func TestParseEnvAndLevel(t *testing.T) {
	assert.Equal(t, EnvProd, ParseEnv("Production"))
	assert.Equal(t, EnvStage, ParseEnv("staging"))
	assert.Equal(t, EnvDev, ParseEnv(""))

	assert.Equal(t, slog.LevelDebug, ParseLevel("debug"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("WARN"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("nonsense"))
}
