package cmd

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/fsnotify/fsnotify"
	zone "github.com/lrstanley/bubblezone"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/iagocq/amicus/internal/bus"
	"github.com/iagocq/amicus/internal/config"
	"github.com/iagocq/amicus/internal/log"
	"github.com/iagocq/amicus/internal/monitor"
	"github.com/iagocq/amicus/internal/netutil"
	"github.com/iagocq/amicus/internal/notify"
	"github.com/iagocq/amicus/internal/paths"
	"github.com/iagocq/amicus/internal/screen"
	"github.com/iagocq/amicus/internal/server"
	"github.com/iagocq/amicus/internal/tracing"
	"github.com/iagocq/amicus/internal/ui/dashboard"
	"github.com/iagocq/amicus/internal/ui/styles"
)

const (
	// watchdogSweep bounds how late after its deadline an idle session
	// gets kicked.
	watchdogSweep = time.Second

	// shutdownTimeout bounds the bus drain on exit. It must outlast the
	// notify client's HTTP timeout so a pending push can still finish.
	shutdownTimeout = 30 * time.Second
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Run the worker listener and dashboard",
	Long: `Start the TCP listener workers report to and the terminal dashboard
that shows one row per worker slot.`,
	RunE: runServer,
}

func init() {
	rootCmd.AddCommand(serverCmd)

	serverCmd.Flags().String("listen-ip", "", "address the worker listener binds to")
	serverCmd.Flags().IntP("listen-port", "p", 0, "TCP port workers connect to")
	serverCmd.Flags().String("ip-block", "", "only accept workers from this CIDR block, e.g. 10.0.0.0/8")
	serverCmd.Flags().StringP("interface", "i", "", "bind to this interface's first IPv4 address")
	serverCmd.Flags().String("ntfy-url", "", "push endpoint template, must contain {topic}")
	serverCmd.Flags().String("ntfy-topic", "", "ntfy topic; setting one enables push notifications")
	serverCmd.Flags().Duration("idle-timeout", 0, "kick sessions that send nothing for this long; 0s disables")

	bindServerFlags()
}

// bindServerFlags connects the server flags to their config keys. Split out
// so tests can restore the bindings after resetting viper.
func bindServerFlags() {
	_ = viper.BindPFlag("listen_ip", serverCmd.Flags().Lookup("listen-ip"))
	_ = viper.BindPFlag("listen_port", serverCmd.Flags().Lookup("listen-port"))
	_ = viper.BindPFlag("ip_block", serverCmd.Flags().Lookup("ip-block"))
	_ = viper.BindPFlag("interface", serverCmd.Flags().Lookup("interface"))
	_ = viper.BindPFlag("ntfy.url", serverCmd.Flags().Lookup("ntfy-url"))
	_ = viper.BindPFlag("ntfy.topic", serverCmd.Flags().Lookup("ntfy-topic"))
	_ = viper.BindPFlag("watchdog.idle_timeout", serverCmd.Flags().Lookup("idle-timeout"))
}

func runServer(_ *cobra.Command, _ []string) error {
	if cfg.Interface != "" {
		ip, err := netutil.InterfaceAddr(cfg.Interface)
		if err != nil {
			return fmt.Errorf("resolving interface %q: %w", cfg.Interface, err)
		}
		cfg.ListenIP = ip
	}
	if cfg.Tracing.FilePath == "" {
		cfg.Tracing.FilePath = paths.TracesFile()
	}
	if err := config.Validate(cfg); err != nil {
		return err
	}

	// Initialize logging if debug mode enabled (via flag or env var)
	if os.Getenv("AMICUS_DEBUG") != "" || debug {
		logPath := cfg.Log.File
		if logPath == "" {
			logPath = paths.LogFile()
		}
		cleanup, err := log.InitWithTeaLog(logPath, "amicus")
		if err != nil {
			return fmt.Errorf("initializing logging: %w", err)
		}
		defer cleanup()
	}
	if level, err := log.ParseLevel(cfg.Log.Level); err == nil {
		log.SetMinLevel(level)
	}

	styles.ApplyTheme(cfg.Theme.Highlight, cfg.Theme.Subtle, cfg.Theme.Error, cfg.Theme.Success)

	provider, err := tracing.NewProvider(cfg.Tracing)
	if err != nil {
		return fmt.Errorf("initializing tracing: %w", err)
	}

	filter, err := netutil.ParseCIDRFilter(cfg.IPBlock)
	if err != nil {
		return fmt.Errorf("parsing ip_block: %w", err)
	}

	zone.NewGlobal()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	addr := net.JoinHostPort(cfg.ListenIP, strconv.Itoa(cfg.ListenPort))

	b := bus.New()
	listener := server.NewListener(addr, filter)
	handler := server.NewHandler(provider.Tracer())
	registry := monitor.NewRegistry()
	watchdog := server.NewWatchdog(cfg.Watchdog.IdleTimeout, watchdogSweep)
	bridge := screen.New()

	// Registration order follows the topic dependencies: the listener's
	// topic must exist before the handler subscribes to it, and the
	// handler's client topics before the registry and watchdog subscribe.
	services := []bus.Service{listener, handler, registry, watchdog}
	if cfg.Ntfy.Topic != "" {
		services = append(services, notify.New(notify.Endpoint(cfg.Ntfy.URL, cfg.Ntfy.Topic)))
	}
	services = append(services, bridge)

	for _, svc := range services {
		if err := b.Register(svc); err != nil {
			return fmt.Errorf("assembling services: %w", err)
		}
	}
	for _, svc := range services {
		b.Start(ctx, svc)
	}

	log.Info(log.CatConfig, "Amicus server starting",
		"version", version,
		"instance", provider.InstanceID(),
		"listen", addr,
	)

	model := dashboard.New(ctx, bridge, b.Stats)
	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithMouseCellMotion())
	bridge.Attach(p)

	viper.OnConfigChange(func(e fsnotify.Event) { applyConfigChange(e, watchdog) })
	viper.WatchConfig()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-sigCh:
			p.Quit()
		case <-ctx.Done():
		}
	}()

	_, runErr := p.Run()

	cancel()
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancelShutdown()
	if err := b.Shutdown(shutdownCtx); err != nil {
		log.ErrorErr(log.CatBus, "bus shutdown incomplete", err)
	}
	if err := provider.Shutdown(shutdownCtx); err != nil {
		log.ErrorErr(log.CatTrace, "tracing shutdown incomplete", err)
	}

	if runErr != nil {
		return fmt.Errorf("running dashboard: %w", runErr)
	}
	return nil
}

// applyConfigChange applies the settings that can change while the server
// runs: idle timeout, theme colors, and log level. Listener and tracing
// settings need a restart.
func applyConfigChange(e fsnotify.Event, w *server.Watchdog) {
	var next config.Config
	if err := viper.Unmarshal(&next); err != nil {
		log.Warn(log.CatConfig, "config reload failed", "error", err.Error())
		return
	}
	if next.Tracing.FilePath == "" {
		next.Tracing.FilePath = paths.TracesFile()
	}
	if err := config.Validate(next); err != nil {
		log.Warn(log.CatConfig, "config reload rejected", "error", err.Error())
		return
	}

	w.SetTimeout(next.Watchdog.IdleTimeout)
	styles.ApplyTheme(next.Theme.Highlight, next.Theme.Subtle, next.Theme.Error, next.Theme.Success)
	if level, err := log.ParseLevel(next.Log.Level); err == nil {
		log.SetMinLevel(level)
	}
	cfg = next
	log.Info(log.CatConfig, "config reloaded", "file", e.Name)
}
