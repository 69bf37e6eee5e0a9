package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "tuning.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_OverridesOnlySetFields(t *testing.T) {
	path := writeConfig(t, `{"autoRange":{"sat":90},"temporal":{"f0":0.2}}`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 90, cfg.GetSat(80))
	assert.Equal(t, 50, cfg.GetPct(50)) // untouched, falls back to default
	assert.Equal(t, 0.2, cfg.GetF0(0.1))
	assert.Equal(t, 64.0, cfg.GetNV(64.0))
}

func TestLoad_RejectsNonJSONExtension(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tuning.txt")
	require.NoError(t, os.WriteFile(path, []byte("{}"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoad_RejectsOutOfRangeValues(t *testing.T) {
	path := writeConfig(t, `{"temporal":{"f0":1.5}}`)

	_, err := Load(path)
	assert.Error(t, err)
}

func TestEmpty_FallsBackToDefaultsEverywhere(t *testing.T) {
	cfg := Empty()

	assert.Equal(t, 80, cfg.GetSat(80))
	assert.False(t, cfg.TelemetryEnabled())
	assert.Equal(t, "", cfg.TelemetryDBPath())
}

func TestNilConfig_BehavesLikeEmpty(t *testing.T) {
	var cfg *Config

	assert.Equal(t, 80, cfg.GetSat(80))
	assert.False(t, cfg.TelemetryEnabled())
}
