package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
)

func TestWriteDefaultConfig_CreatesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	require.NoError(t, WriteDefaultConfig(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	content := string(data)
	require.Contains(t, content, "listen_port: 12345")
	require.Contains(t, content, "idle_timeout: 10s")
	require.Contains(t, content, "ntfy.sh/{topic}")
	require.Contains(t, content, "# Amicus Configuration")
}

func TestWriteDefaultConfig_CreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".amicus", "config.yaml")

	require.NoError(t, WriteDefaultConfig(path))

	_, err := os.Stat(path)
	require.NoError(t, err)
}

func TestWriteDefaultConfig_AtomicWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	require.NoError(t, WriteDefaultConfig(path))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, entry := range entries {
		require.NotContains(t, entry.Name(), ".tmp", "temp file left behind: %s", entry.Name())
	}
}

func TestWriteDefaultConfig_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, WriteDefaultConfig(path))

	v := viper.New()
	v.SetConfigFile(path)
	require.NoError(t, v.ReadInConfig())

	var cfg Config
	require.NoError(t, v.Unmarshal(&cfg))

	want := Defaults()
	require.Equal(t, want.ListenIP, cfg.ListenIP)
	require.Equal(t, want.ListenPort, cfg.ListenPort)
	require.Equal(t, want.Ntfy.URL, cfg.Ntfy.URL)
	require.Equal(t, want.Watchdog.IdleTimeout, cfg.Watchdog.IdleTimeout)
	require.Equal(t, want.Log.Level, cfg.Log.Level)
	require.Equal(t, want.Tracing.Exporter, cfg.Tracing.Exporter)
	require.Equal(t, want.Tracing.SampleRate, cfg.Tracing.SampleRate)
	require.NoError(t, Validate(cfg))
}

func TestWriteDefaultConfig_Overwrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("listen_port: 9999\n"), 0o644))

	require.NoError(t, WriteDefaultConfig(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), "listen_port: 12345")
}
