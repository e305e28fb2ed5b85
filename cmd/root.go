// Package cmd wires configuration, the session transport, the
// controller and the UI into the testdeck root command.
package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/testdeck/testdeck/internal/config"
	"github.com/testdeck/testdeck/internal/controller"
	"github.com/testdeck/testdeck/internal/log"
	"github.com/testdeck/testdeck/internal/prefs"
	"github.com/testdeck/testdeck/internal/pubsub"
	"github.com/testdeck/testdeck/internal/runner"
	_ "github.com/testdeck/testdeck/internal/runner/runnertest" // registers the demo provider
	"github.com/testdeck/testdeck/internal/tracing"
	"github.com/testdeck/testdeck/internal/ui"
	"github.com/testdeck/testdeck/internal/watchmode"
)

func init() {
	// Force lipgloss/termenv to query terminal background color BEFORE
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
	cfg     config.Config
	debug   bool
)

var rootCmd = &cobra.Command{
	Use:     "testdeck",
	Short:   "An interactive terminal UI for running test suites",
	Long:    `A terminal user interface for exploring, filtering, running and watching test suites against a remote test runner.`,
	Version: version,
	RunE:    runApp,
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "",
		"config file (default: .testdeck/config.yaml, then ~/.config/testdeck/config.yaml)")
	rootCmd.Flags().StringP("dir", "d", "",
		"test root directory")
	rootCmd.Flags().String("provider", "",
		"session provider (default: demo)")
	rootCmd.Flags().String("endpoint", "",
		"transport address for providers that dial a remote runner")
	rootCmd.Flags().BoolVar(&debug, "debug", false,
		"write a debug log to <dir>/.testdeck/debug.log")
	rootCmd.Flags().Bool("no-watch", false,
		"disable the file watcher")
	rootCmd.Flags().Bool("trace", false,
		"enable tracing with the stdout exporter")

	_ = viper.BindPFlag("dir", rootCmd.Flags().Lookup("dir"))
	_ = viper.BindPFlag("provider", rootCmd.Flags().Lookup("provider"))
	_ = viper.BindPFlag("endpoint", rootCmd.Flags().Lookup("endpoint"))
}

func initConfig() {
	defaults := config.Defaults()
	viper.SetDefault("dir", defaults.Dir)
	viper.SetDefault("provider", defaults.Provider)
	viper.SetDefault("ui.show_counts", defaults.UI.ShowCounts)
	viper.SetDefault("ui.show_output", defaults.UI.ShowOutput)
	viper.SetDefault("ui.show_status_bar", defaults.UI.ShowStatusBar)
	viper.SetDefault("ui.publish_delay", defaults.UI.PublishDelay)
	viper.SetDefault("watch.enabled", defaults.Watch.Enabled)
	viper.SetDefault("watch.debounce", defaults.Watch.Debounce)
	viper.SetDefault("tracing.exporter", defaults.Tracing.Exporter)
	viper.SetDefault("tracing.otlp_endpoint", defaults.Tracing.OTLPEndpoint)
	viper.SetDefault("tracing.sample_rate", defaults.Tracing.SampleRate)
	viper.SetDefault("tracing.service_name", defaults.Tracing.ServiceName)

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else if found := config.FindConfigFile("."); found != "" {
		viper.SetConfigFile(found)
	} else {
		// No config file anywhere - create a default at .testdeck/config.yaml
		defaultPath := filepath.Join(".testdeck", "config.yaml")
		if writeErr := config.WriteDefaultConfig(defaultPath); writeErr == nil {
			viper.SetConfigFile(defaultPath)
		}
		// If write fails, just continue with defaults (no config file)
	}

	if viper.ConfigFileUsed() != "" {
		_ = viper.ReadInConfig()
	}

	_ = viper.Unmarshal(&cfg)
}

func runApp(cmd *cobra.Command, args []string) error {
	if traceFlag, _ := cmd.Flags().GetBool("trace"); traceFlag {
		cfg.Tracing.Enabled = true
		cfg.Tracing.Exporter = "stdout"
	}
	if noWatch, _ := cmd.Flags().GetBool("no-watch"); noWatch {
		cfg.Watch.Enabled = false
	}
	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if cfg.Dir == "" || cfg.Dir == "." {
		wd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("getting current directory: %w", err)
		}
		cfg.Dir = wd
	}

	if debug {
		logPath := filepath.Join(cfg.Dir, ".testdeck", "debug.log")
		if err := os.MkdirAll(filepath.Dir(logPath), 0o750); err != nil {
			return fmt.Errorf("creating log directory: %w", err)
		}
		closeLog, err := log.InitWithTeaLog(logPath, "testdeck")
		if err != nil {
			return fmt.Errorf("initializing debug log: %w", err)
		}
		defer closeLog()
	}

	tracer, err := tracing.NewProvider(cfg.Tracing)
	if err != nil {
		return fmt.Errorf("initializing tracing: %w", err)
	}
	defer func() { _ = tracer.Shutdown(context.Background()) }()

	db, err := prefs.NewDB(cfg.PrefsPath())
	if err != nil {
		return fmt.Errorf("opening preference store: %w", err)
	}
	defer func() { _ = db.Close() }()
	store := prefs.NewStore(db)

	session, err := runner.New(cfg.Provider, runner.Options{
		Dir:      cfg.Dir,
		Endpoint: cfg.Endpoint,
	})
	if err != nil {
		return fmt.Errorf("connecting session: %w", err)
	}

	ctx := context.Background()
	ctrl := controller.New(ctx, controller.Config{
		Session:      session,
		Store:        store,
		PublishDelay: cfg.UI.PublishDelay,
		QueueOptions: []controller.QueueOption{controller.WithTracer(tracer.Tracer())},
	})
	if err := ctrl.Start(ctx); err != nil {
		_ = ctrl.Close()
		return fmt.Errorf("starting controller: %w", err)
	}

	watcher, err := startWatcher(session.Events())
	if err != nil {
		log.ErrorErr(log.CatWatch, "File watcher unavailable", err, "dir", cfg.Dir)
	}

	model := ui.New(ctrl, cfg.UI)
	p := tea.NewProgram(
		model,
		tea.WithAltScreen(),
		tea.WithMouseCellMotion(),
	)

	_, runErr := p.Run()

	if watcher != nil {
		_ = watcher.Stop()
	}
	if closeErr := ctrl.Close(); closeErr != nil && runErr == nil {
		runErr = closeErr
	}

	if runErr != nil {
		return fmt.Errorf("running program: %w", runErr)
	}
	return nil
}

// startWatcher starts the file watcher on the configured test root,
// publishing change batches onto the session event broker. Returns
// (nil, nil) when watching is disabled.
func startWatcher(events *pubsub.Broker[runner.Event]) (*watchmode.Watcher, error) {
	if !cfg.Watch.Enabled {
		return nil, nil
	}
	watcher, err := watchmode.NewWatcher(watchmode.WatcherConfig{
		Dir:      cfg.Dir,
		Debounce: cfg.Watch.Debounce,
	}, events)
	if err != nil {
		return nil, err
	}
	if err := watcher.Start(); err != nil {
		return nil, err
	}
	return watcher, nil
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
