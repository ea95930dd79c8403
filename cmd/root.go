// Package cmd wires configuration, flags, and the server command.
package cmd

import (
	"fmt"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/iagocq/amicus/internal/config"
	"github.com/iagocq/amicus/internal/paths"
)

func init() {
	// Force lipgloss/termenv to query the terminal background color BEFORE
	// any Bubble Tea program starts. This prevents the terminal's OSC 11
	// response from racing with Bubble Tea's input loop and appearing as
	// garbage text in input fields.
	//
	// See: https://github.com/charmbracelet/bubbletea/issues/1036
	_ = lipgloss.HasDarkBackground()
}

var (
	version = "dev"
	cfgFile string
	debug   bool
	cfg     config.Config
)

var rootCmd = &cobra.Command{
	Use:   "amicus",
	Short: "A terminal monitor for remote workers",
	Long: `Amicus watches remote workers over a plain TCP protocol and shows
their progress on a terminal dashboard. Run "amicus server" to start it.`,
	Version:      version,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		_ = cmd.Help()
		return fmt.Errorf("a subcommand is required")
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "",
		"config file (default: .amicus/config.yaml, then ~/.config/amicus/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false,
		"write a debug log file")
}

func initConfig() {
	defaults := config.Defaults()
	viper.SetDefault("listen_ip", defaults.ListenIP)
	viper.SetDefault("listen_port", defaults.ListenPort)
	viper.SetDefault("ip_block", defaults.IPBlock)
	viper.SetDefault("interface", defaults.Interface)
	viper.SetDefault("ntfy.url", defaults.Ntfy.URL)
	viper.SetDefault("ntfy.topic", defaults.Ntfy.Topic)
	viper.SetDefault("watchdog.idle_timeout", defaults.Watchdog.IdleTimeout)
	viper.SetDefault("theme.highlight", defaults.Theme.Highlight)
	viper.SetDefault("theme.subtle", defaults.Theme.Subtle)
	viper.SetDefault("theme.error", defaults.Theme.Error)
	viper.SetDefault("theme.success", defaults.Theme.Success)
	viper.SetDefault("log.level", defaults.Log.Level)
	viper.SetDefault("log.file", defaults.Log.File)
	viper.SetDefault("tracing.enabled", defaults.Tracing.Enabled)
	viper.SetDefault("tracing.exporter", defaults.Tracing.Exporter)
	viper.SetDefault("tracing.file_path", defaults.Tracing.FilePath)
	viper.SetDefault("tracing.otlp_endpoint", defaults.Tracing.OTLPEndpoint)
	viper.SetDefault("tracing.sample_rate", defaults.Tracing.SampleRate)
	viper.SetDefault("tracing.service_name", defaults.Tracing.ServiceName)

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		// Config lookup order:
		// 1. .amicus/config.yaml (current directory)
		// 2. ~/.config/amicus/config.yaml (user config)
		if _, err := os.Stat(paths.ProjectConfigFile); err == nil {
			viper.SetConfigFile(paths.ProjectConfigFile)
		} else {
			viper.AddConfigPath(paths.UserConfigDir())
			viper.SetConfigName("config")
			viper.SetConfigType("yaml")
		}
	}

	if err := viper.ReadInConfig(); err != nil {
		// No config file found anywhere - create a commented default at
		// .amicus/config.yaml. If the write fails, run on defaults.
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			if writeErr := config.WriteDefaultConfig(paths.ProjectConfigFile); writeErr == nil {
				viper.SetConfigFile(paths.ProjectConfigFile)
				_ = viper.ReadInConfig()
			}
		}
	}

	_ = viper.Unmarshal(&cfg)
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// SetVersion sets the version string (called from main with ldflags)
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}
