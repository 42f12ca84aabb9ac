package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fpw-project/fpw/internal/gate"
)

func TestDefaults(t *testing.T) {
	require.NoError(t, Initialize())

	assert.Equal(t, StoreDoltEmbedded, GetString("store.mode"))
	assert.Equal(t, 3306, GetInt("store.port"))
	assert.Equal(t, 10*time.Second, GetDuration("poll.interval"))
	assert.Equal(t, 3, GetInt("poll.error-threshold"))
	assert.Equal(t, 30*time.Second, GetDuration("fas.timeout"))
	assert.False(t, GetBool("randomize"))
	assert.Empty(t, ConfigFileUsed())
}

func TestEnvironmentBinding(t *testing.T) {
	tests := []struct {
		env   string
		value string
		check func(t *testing.T)
	}{
		{"FPW_STORE_MODE", "memory", func(t *testing.T) { assert.Equal(t, "memory", GetString("store.mode")) }},
		{"FPW_POLL_ERROR_THRESHOLD", "5", func(t *testing.T) { assert.Equal(t, 5, GetInt("poll.error-threshold")) }},
		{"FPW_FAS_TIMEOUT", "5s", func(t *testing.T) { assert.Equal(t, 5*time.Second, GetDuration("fas.timeout")) }},
		{"FPW_RANDOMIZE", "true", func(t *testing.T) { assert.True(t, GetBool("randomize")) }},
	}
	for _, tt := range tests {
		t.Run(tt.env, func(t *testing.T) {
			t.Setenv(tt.env, tt.value)
			require.NoError(t, Initialize())
			tt.check(t)
		})
	}
}

func writeProjectConfig(t *testing.T, root, content string) {
	t.Helper()
	dir := filepath.Join(root, DirName)
	require.NoError(t, os.MkdirAll(dir, 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(content), 0o600))
}

func chdir(t *testing.T, dir string) {
	t.Helper()
	old, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(old) })
}

func TestConfigFileDiscoveryWalksUp(t *testing.T) {
	root := t.TempDir()
	writeProjectConfig(t, root, `
store:
  mode: dolt-server
  port: 3307
poll:
  interval: 2s
gates:
  process:
    mode: auto
  reset:
    prompt: "Wipe it?"
  bogus:
    mode: auto
`)
	nested := filepath.Join(root, "a", "b")
	require.NoError(t, os.MkdirAll(nested, 0o750))
	chdir(t, nested)

	require.NoError(t, Initialize())
	t.Cleanup(ResetForTesting)

	assert.Equal(t, filepath.Join(root, DirName, "config.yaml"), ConfigFileUsed())
	mode, err := StoreMode()
	require.NoError(t, err)
	assert.Equal(t, StoreDoltServer, mode)
	assert.Equal(t, 3307, GetInt("store.port"))
	assert.Equal(t, 2*time.Second, GetDuration("poll.interval"))

	// environment beats the file
	t.Setenv("FPW_STORE_PORT", "4000")
	require.NoError(t, Initialize())
	assert.Equal(t, 4000, GetInt("store.port"))

	policy, err := GatePolicy()
	require.NoError(t, err)
	assert.Len(t, policy.Gates, 2)
	assert.Equal(t, "auto", policy.Gates[gate.TransitionProcess].Mode)
	assert.Equal(t, "Wipe it?", policy.Gates[gate.TransitionReset].Prompt)
}

func TestExplicitConfigPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "custom.yaml")
	require.NoError(t, os.WriteFile(path, []byte("fas:\n  url: https://fas.example\n"), 0o600))
	t.Setenv("FPW_CONFIG", path)

	require.NoError(t, Initialize())
	t.Cleanup(ResetForTesting)
	assert.Equal(t, "https://fas.example", GetString("fas.url"))
}

func TestInvalidConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.yaml")
	require.NoError(t, os.WriteFile(path, []byte("store: [unclosed"), 0o600))
	t.Setenv("FPW_CONFIG", path)
	assert.Error(t, Initialize())
}

func TestStoreModeValidation(t *testing.T) {
	require.NoError(t, Initialize())
	Set("store.mode", "sqlite")
	_, err := StoreMode()
	assert.Error(t, err)

	Set("store.mode", "MEMORY")
	mode, err := StoreMode()
	require.NoError(t, err)
	assert.Equal(t, StoreMemory, mode)
}

func TestBindFlag(t *testing.T) {
	require.NoError(t, Initialize())
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.Duration("interval", time.Minute, "")
	require.NoError(t, BindFlag("poll.interval", fs.Lookup("interval")))

	// an unset flag does not shadow the default
	assert.Equal(t, 10*time.Second, GetDuration("poll.interval"))

	require.NoError(t, fs.Parse([]string{"--interval=3s"}))
	assert.Equal(t, 3*time.Second, GetDuration("poll.interval"))

	assert.Error(t, BindFlag("x", nil))
}

func TestRedacted(t *testing.T) {
	require.NoError(t, Initialize())
	Set("fas.token", "s3cret")

	settings := Redacted()
	found := map[string]string{}
	for _, s := range settings {
		found[s.Key] = s.Value
	}
	assert.Equal(t, "********", found["fas.token"])
	assert.Equal(t, "", found["store.password"], "empty secrets stay empty")
	assert.Equal(t, StoreDoltEmbedded, found["store.mode"])

	for i := 1; i < len(settings); i++ {
		assert.Less(t, settings[i-1].Key, settings[i].Key)
	}
}
