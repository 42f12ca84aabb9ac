package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/fpw-project/fpw/internal/config"
	"github.com/fpw-project/fpw/internal/telemetry"
	"github.com/fpw-project/fpw/internal/ui"
)

var (
	// Version is the current version of fpw (overridden by ldflags at build time)
	Version = "0.3.0"
	// Build can be set via ldflags at compile time
	Build = "dev"
)

var (
	rootCtx    context.Context
	rootCancel context.CancelFunc

	// app holds the store and services for commands that need them; nil
	// for commands in noStoreCommands.
	fpw *app
	log *slog.Logger

	jsonOutput  bool
	verboseFlag bool
	assumeYes   bool
	configPath  string
	storeMode   string
)

// Command group IDs for help output
const (
	GroupPlans    = "plans"
	GroupWorkflow = "workflow"
	GroupServices = "services"
	GroupSetup    = "setup"
)

// noStoreCommands never open the store.
var noStoreCommands = map[string]bool{
	"version":    true,
	"help":       true,
	"completion": true,
}

func init() {
	// Initialize viper configuration
	if err := config.Initialize(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to initialize config: %v\n", err)
	}

	rootCmd.AddGroup(
		&cobra.Group{ID: GroupPlans, Title: "Working With Plans:"},
		&cobra.Group{ID: GroupWorkflow, Title: "Workflow Transitions:"},
		&cobra.Group{ID: GroupServices, Title: "Long-Running Services:"},
		&cobra.Group{ID: GroupSetup, Title: "Setup & Configuration:"},
	)

	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")
	rootCmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "Enable verbose/debug output")
	rootCmd.PersistentFlags().BoolVarP(&assumeYes, "yes", "y", false, "Confirm gated transitions without prompting")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default: discover .fpw/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&storeMode, "store", "", "Store backend: memory, dolt-embedded or dolt-server (overrides store.mode)")

	if err := config.BindFlag("store.mode", rootCmd.PersistentFlags().Lookup("store")); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
	}

	rootCmd.Flags().BoolP("version", "V", false, "Print version information")
}

var rootCmd = &cobra.Command{
	Use:   "fpw",
	Short: "fpw - Flight plan workflow and authorization",
	Long: `Drive drone flight plans from trajectory upload to FAS authorization:
schedule, process, check geoawareness and submit, with every costly
transition confirmed first.`,
	SilenceUsage: true,
	Run: func(cmd *cobra.Command, args []string) {
		if v, _ := cmd.Flags().GetBool("version"); v {
			fmt.Printf("fpw version %s (%s)\n", Version, Build)
			return
		}
		_ = cmd.Help() // Help() always returns nil for cobra commands
	},
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		setupSignalContext()
		setupLogging()
		ui.InitColor()
		reloadConfig(cmd)

		if err := telemetry.Init(rootCtx, telemetryOptions()); err != nil {
			WarnError("telemetry disabled: %v", err)
		}

		if noStoreCommands[cmd.Name()] || cmd.Annotations[annotationNoStore] == "true" {
			return
		}
		a, err := openApp(rootCtx, log)
		if err != nil {
			FatalErrorRespectJSON("%v", err)
		}
		fpw = a
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if fpw != nil {
			if err := fpw.Close(); err != nil {
				WarnError("closing store: %v", err)
			}
			fpw = nil
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := telemetry.Shutdown(shutdownCtx); err != nil {
			WarnError("flushing telemetry: %v", err)
		}
		cancel()
		if rootCancel != nil {
			rootCancel()
		}
	},
}

// annotationNoStore marks a command that runs without opening the store.
const annotationNoStore = "fpw.no-store"

func setupSignalContext() {
	rootCtx, rootCancel = signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func setupLogging() {
	level := slog.LevelInfo
	if verboseFlag {
		level = slog.LevelDebug
	}
	log = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(log)
}

// reloadConfig re-reads configuration when --config names a file, since
// init() ran before flags were parsed.
func reloadConfig(cmd *cobra.Command) {
	if configPath == "" {
		return
	}
	if err := os.Setenv("FPW_CONFIG", configPath); err != nil {
		FatalError("%v", err)
	}
	if err := config.Initialize(); err != nil {
		FatalErrorWithHint(err.Error(), "Check the file passed to --config")
	}
	if err := config.BindFlag("store.mode", cmd.Root().PersistentFlags().Lookup("store")); err != nil {
		FatalError("%v", err)
	}
}

func telemetryOptions() telemetry.Options {
	return telemetry.Options{
		ServiceName:     "fpw",
		Version:         Version,
		Enabled:         config.GetBool("telemetry.enabled"),
		Stdout:          config.GetBool("telemetry.stdout"),
		MetricsEndpoint: config.GetString("telemetry.otlp-endpoint"),
		MetricsInterval: config.GetDuration("telemetry.metrics-interval"),
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
