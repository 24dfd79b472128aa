package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_PassesValidationOnceNodeIDIsSet(t *testing.T) {
	cfg := Default()
	cfg.NodeID = "node-a"

	assert.NoError(t, cfg.Validate())
}

func TestDefault_FailsValidationWithoutNodeID(t *testing.T) {
	cfg := Default()

	assert.Error(t, cfg.Validate())
}

func TestParseInterval_ParsesMinutesHoursSeconds(t *testing.T) {
	cases := map[string]time.Duration{
		"30s": 30 * time.Second,
		"10m": 10 * time.Minute,
		"1h":  time.Hour,
	}
	for raw, want := range cases {
		got, err := ParseInterval(raw)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestParseInterval_RejectsUnknownUnit(t *testing.T) {
	_, err := ParseInterval("10x")

	assert.Error(t, err)
}

func TestParsePosition_ParsesCoordinatePair(t *testing.T) {
	pos, err := ParsePosition("1.5,2.25")

	require.NoError(t, err)
	assert.Equal(t, 1.5, pos.X)
	assert.Equal(t, 2.25, pos.Y)
	assert.True(t, pos.Set)
}

func TestParsePosition_RejectsMalformedInput(t *testing.T) {
	_, err := ParsePosition("not-a-position")

	assert.Error(t, err)
}

func TestNodeRole_UnmarshalTextRejectsUnknownRole(t *testing.T) {
	var r NodeRole
	err := r.UnmarshalText([]byte("overlord"))

	assert.Error(t, err)
}

func TestLoadFile_MergesOverDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "senseye.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
node_id = "node-a"
mesh_port = 9000
`), 0o644))

	cfg, err := LoadFile(path)

	require.NoError(t, err)
	assert.Equal(t, "node-a", cfg.NodeID)
	assert.Equal(t, 9000, cfg.MeshPort)
	// Untouched fields keep their defaults.
	assert.Equal(t, Default().SenseIntervalSeconds, cfg.SenseIntervalSeconds)
}

func TestBuild_CLIFlagsOverrideFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "senseye.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
node_id = "from-file"
mesh_port = 9000
`), 0o644))

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	BindFlags(fs)
	require.NoError(t, fs.Parse([]string{"--config", path, "--node-id", "from-cli", "--mesh-port", "9500"}))

	cfg, err := Build(fs)

	require.NoError(t, err)
	assert.Equal(t, "from-cli", cfg.NodeID)
	assert.Equal(t, 9500, cfg.MeshPort)
}
