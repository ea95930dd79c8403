package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := Defaults()

	require.Equal(t, "0.0.0.0", cfg.ListenIP)
	require.Equal(t, 12345, cfg.ListenPort)
	require.Empty(t, cfg.IPBlock)
	require.Empty(t, cfg.Interface)
	require.Equal(t, "https://ntfy.sh/{topic}", cfg.Ntfy.URL)
	require.Empty(t, cfg.Ntfy.Topic)
	require.Equal(t, 10*time.Second, cfg.Watchdog.IdleTimeout)
	require.Equal(t, "info", cfg.Log.Level)
}

func TestDefaults_Tracing(t *testing.T) {
	cfg := Defaults()

	require.False(t, cfg.Tracing.Enabled)
	require.Equal(t, "file", cfg.Tracing.Exporter)
	require.Equal(t, 1.0, cfg.Tracing.SampleRate)
	require.Equal(t, "amicus", cfg.Tracing.ServiceName)
}

func TestDefaults_AreValid(t *testing.T) {
	require.NoError(t, Validate(Defaults()))
}

func TestValidate_PortOutOfRange(t *testing.T) {
	cfg := Defaults()
	cfg.ListenPort = 0
	err := Validate(cfg)
	require.Error(t, err)
	require.Contains(t, err.Error(), "listen_port")

	cfg.ListenPort = 70000
	require.Error(t, Validate(cfg))
}

func TestValidate_BadListenIP(t *testing.T) {
	cfg := Defaults()
	cfg.ListenIP = "not-an-address"
	err := Validate(cfg)
	require.Error(t, err)
	require.Contains(t, err.Error(), "listen_ip")
}

func TestValidate_BadIPBlock(t *testing.T) {
	cfg := Defaults()
	cfg.IPBlock = "300.0.0.0/8"
	err := Validate(cfg)
	require.Error(t, err)
	require.Contains(t, err.Error(), "ip_block")
}

func TestValidate_ValidIPBlock(t *testing.T) {
	cfg := Defaults()
	cfg.IPBlock = "10.0.0.0/8"
	require.NoError(t, Validate(cfg))
}

func TestValidate_NegativeIdleTimeout(t *testing.T) {
	cfg := Defaults()
	cfg.Watchdog.IdleTimeout = -time.Second
	err := Validate(cfg)
	require.Error(t, err)
	require.Contains(t, err.Error(), "idle_timeout")
}

func TestValidate_ZeroIdleTimeoutDisablesWatchdog(t *testing.T) {
	cfg := Defaults()
	cfg.Watchdog.IdleTimeout = 0
	require.NoError(t, Validate(cfg))
}

func TestValidate_NtfyURLMissingPlaceholder(t *testing.T) {
	cfg := Defaults()
	cfg.Ntfy.URL = "https://ntfy.sh/fixed-topic"
	err := Validate(cfg)
	require.Error(t, err)
	require.Contains(t, err.Error(), "{topic}")
}

func TestValidate_NtfyTopicWithoutURL(t *testing.T) {
	cfg := Defaults()
	cfg.Ntfy.URL = ""
	cfg.Ntfy.Topic = "recordings"
	err := Validate(cfg)
	require.Error(t, err)
	require.Contains(t, err.Error(), "ntfy.topic")
}

func TestValidate_EmptyNtfyURLWithoutTopic(t *testing.T) {
	cfg := Defaults()
	cfg.Ntfy.URL = ""
	require.NoError(t, Validate(cfg))
}

func TestValidate_BadLogLevel(t *testing.T) {
	cfg := Defaults()
	cfg.Log.Level = "loud"
	err := Validate(cfg)
	require.Error(t, err)
	require.Contains(t, err.Error(), "log.level")
}

func TestValidate_LogLevels(t *testing.T) {
	for _, level := range []string{"debug", "info", "warn", "warning", "error", ""} {
		cfg := Defaults()
		cfg.Log.Level = level
		require.NoError(t, Validate(cfg), "level %q should be accepted", level)
	}
}

func TestValidate_SampleRateOutOfRange(t *testing.T) {
	cfg := Defaults()
	cfg.Tracing.SampleRate = 1.5
	require.Error(t, Validate(cfg))

	cfg.Tracing.SampleRate = -0.1
	require.Error(t, Validate(cfg))
}

func TestValidate_BadExporter(t *testing.T) {
	cfg := Defaults()
	cfg.Tracing.Exporter = "jaeger"
	err := Validate(cfg)
	require.Error(t, err)
	require.Contains(t, err.Error(), "exporter")
}

func TestValidate_EnabledFileExporterNeedsPath(t *testing.T) {
	cfg := Defaults()
	cfg.Tracing.Enabled = true
	cfg.Tracing.Exporter = "file"
	cfg.Tracing.FilePath = ""
	require.Error(t, Validate(cfg))

	cfg.Tracing.FilePath = "/tmp/traces.jsonl"
	require.NoError(t, Validate(cfg))
}

func TestValidate_EnabledOTLPExporterNeedsEndpoint(t *testing.T) {
	cfg := Defaults()
	cfg.Tracing.Enabled = true
	cfg.Tracing.Exporter = "otlp"
	cfg.Tracing.OTLPEndpoint = ""
	require.Error(t, Validate(cfg))
}

func TestValidate_DisabledTracingSkipsExporterRequirements(t *testing.T) {
	cfg := Defaults()
	cfg.Tracing.Enabled = false
	cfg.Tracing.Exporter = "file"
	cfg.Tracing.FilePath = ""
	require.NoError(t, Validate(cfg))
}
