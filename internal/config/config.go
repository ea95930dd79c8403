// Package config provides configuration types, defaults, and persistence
// for amicus.
package config

import (
	"fmt"
	"net/netip"
	"strings"
	"time"

	"github.com/iagocq/amicus/internal/log"
	"github.com/iagocq/amicus/internal/netutil"
	"github.com/iagocq/amicus/internal/tracing"
)

// Config holds all configuration options for the amicus server. The
// listener keys are flat and mirror the server command's flags, which
// override them.
type Config struct {
	// ListenIP is the address the worker listener binds to.
	ListenIP string `mapstructure:"listen_ip"`

	// ListenPort is the TCP port workers connect to.
	ListenPort int `mapstructure:"listen_port"`

	// IPBlock restricts workers to a CIDR block. Empty allows everyone.
	IPBlock string `mapstructure:"ip_block"`

	// Interface binds to the first IPv4 address of the named interface
	// instead of ListenIP.
	Interface string `mapstructure:"interface"`

	Ntfy     NtfyConfig     `mapstructure:"ntfy"`
	Watchdog WatchdogConfig `mapstructure:"watchdog"`
	Theme    ThemeConfig    `mapstructure:"theme"`
	Log      LogConfig      `mapstructure:"log"`
	Tracing  tracing.Config `mapstructure:"tracing"`
}

// NtfyConfig holds push notification settings.
type NtfyConfig struct {
	// URL is the push endpoint template; {topic} is replaced with Topic.
	URL string `mapstructure:"url"`

	// Topic enables push notifications when set.
	Topic string `mapstructure:"topic"`
}

// WatchdogConfig holds idle session detection settings.
type WatchdogConfig struct {
	// IdleTimeout kicks sessions that send nothing for this long. Zero
	// disables kicking. Applies live on config reload.
	IdleTimeout time.Duration `mapstructure:"idle_timeout"`
}

// ThemeConfig holds dashboard color overrides as hex strings. Empty
// values keep the built-in colors. Applies live on config reload.
type ThemeConfig struct {
	Highlight string `mapstructure:"highlight"`
	Subtle    string `mapstructure:"subtle"`
	Error     string `mapstructure:"error"`
	Success   string `mapstructure:"success"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	// Level is the minimum severity written: debug, info, warn, error.
	Level string `mapstructure:"level"`

	// File is the log file path. Empty falls back to the default path
	// when --debug enables file logging.
	File string `mapstructure:"file"`
}

// DefaultNtfyURL is the endpoint template used when none is configured.
const DefaultNtfyURL = "https://ntfy.sh/{topic}"

// DefaultIdleTimeout is how long a session may stay silent before the
// watchdog kicks it.
const DefaultIdleTimeout = 10 * time.Second

// Defaults returns a Config with the stock values: listen everywhere on
// 12345, no IP restriction, 10s idle kicking, notifications off.
func Defaults() Config {
	return Config{
		ListenIP:   "0.0.0.0",
		ListenPort: 12345,
		Ntfy:       NtfyConfig{URL: DefaultNtfyURL},
		Watchdog:   WatchdogConfig{IdleTimeout: DefaultIdleTimeout},
		Log:        LogConfig{Level: "info"},
		Tracing:    tracing.DefaultConfig(),
	}
}

// Validate checks the whole configuration. Empty optional values pass.
func Validate(cfg Config) error {
	if cfg.ListenPort < 1 || cfg.ListenPort > 65535 {
		return fmt.Errorf("listen_port must be between 1 and 65535, got %d", cfg.ListenPort)
	}
	if cfg.ListenIP != "" {
		if _, err := netip.ParseAddr(cfg.ListenIP); err != nil {
			return fmt.Errorf("listen_ip %q is not an IP address", cfg.ListenIP)
		}
	}
	if cfg.IPBlock != "" {
		if _, err := netutil.ParseCIDRFilter(cfg.IPBlock); err != nil {
			return fmt.Errorf("ip_block: %w", err)
		}
	}
	if cfg.Watchdog.IdleTimeout < 0 {
		return fmt.Errorf("watchdog.idle_timeout must not be negative, got %s", cfg.Watchdog.IdleTimeout)
	}
	if err := validateNtfy(cfg.Ntfy); err != nil {
		return err
	}
	if err := validateLog(cfg.Log); err != nil {
		return err
	}
	return validateTracing(cfg.Tracing)
}

func validateNtfy(cfg NtfyConfig) error {
	if cfg.URL != "" && !strings.Contains(cfg.URL, "{topic}") {
		return fmt.Errorf("ntfy.url must contain the {topic} placeholder, got %q", cfg.URL)
	}
	if cfg.Topic != "" && cfg.URL == "" {
		return fmt.Errorf("ntfy.topic is set but ntfy.url is empty")
	}
	return nil
}

func validateLog(cfg LogConfig) error {
	if cfg.Level == "" {
		return nil
	}
	if _, err := log.ParseLevel(cfg.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	return nil
}

func validateTracing(cfg tracing.Config) error {
	if cfg.SampleRate < 0.0 || cfg.SampleRate > 1.0 {
		return fmt.Errorf("tracing.sample_rate must be between 0.0 and 1.0, got %v", cfg.SampleRate)
	}
	switch cfg.Exporter {
	case "", "file", "stdout", "otlp":
	default:
		return fmt.Errorf("tracing.exporter must be \"file\", \"stdout\", or \"otlp\", got %q", cfg.Exporter)
	}
	if cfg.Enabled {
		if cfg.Exporter == "file" && cfg.FilePath == "" {
			return fmt.Errorf("tracing.file_path is required when exporter is \"file\"")
		}
		if cfg.Exporter == "otlp" && cfg.OTLPEndpoint == "" {
			return fmt.Errorf("tracing.otlp_endpoint is required when exporter is \"otlp\"")
		}
	}
	return nil
}
