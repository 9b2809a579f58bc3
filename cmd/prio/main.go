package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/prioritylab/prio/internal/config"
	"github.com/prioritylab/prio/internal/rank"
	"github.com/prioritylab/prio/internal/remote"
	"github.com/prioritylab/prio/internal/storage"
	"github.com/prioritylab/prio/internal/storage/dolt"
	"github.com/prioritylab/prio/internal/storage/factory"
	"github.com/prioritylab/prio/internal/telemetry"
	"github.com/prioritylab/prio/internal/ui"
)

var (
	dbPath      string
	configPath  string
	jsonOutput  bool
	verboseFlag bool

	// Signal-aware context for graceful cancellation
	rootCtx    context.Context
	rootCancel context.CancelFunc

	store  storage.Store
	engine *rank.Engine
	logger = slog.New(slog.DiscardHandler)
)

// Command groups for organized help output
const (
	GroupTasks = "tasks"
	GroupSync  = "sync"
	GroupSetup = "setup"
)

// noDbCommands never open the task store.
var noDbCommands = []string{
	"version",
	"config",
	"help",
	"completion",
	"__complete",
}

func init() {
	rootCmd.AddGroup(&cobra.Group{ID: GroupTasks, Title: "Working With Tasks:"})
	rootCmd.AddGroup(&cobra.Group{ID: GroupSync, Title: "Sync & Data:"})
	rootCmd.AddGroup(&cobra.Group{ID: GroupSetup, Title: "Setup & Maintenance:"})

	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "Database path (default: $PRIO_DB or ~/.local/share/prio/prio.db)")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default: $PRIO_CONFIG or ~/.config/prio/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")
	rootCmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "Enable verbose/debug output")

	rootCmd.Flags().BoolP("version", "V", false, "Print version information")
}

var rootCmd = &cobra.Command{
	Use:           "prio",
	Short:         "prio - ranked task lists that work offline",
	Long:          `Keep a strictly ordered list of tasks on this machine and replicate it to a task server whenever you are online.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	Run: func(cmd *cobra.Command, args []string) {
		if v, _ := cmd.Flags().GetBool("version"); v {
			printVersion()
			return
		}
		_ = cmd.Help()
	},
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		setupSignalContext()

		if err := initConfig(cmd); err != nil {
			FatalError("%v", err)
		}
		applyConfigFlags(cmd)
		logger = newLogger(os.Stderr)
		if jsonOutput {
			ui.DisableColor()
		}

		if isNoDbCommand(cmd) {
			return
		}

		if err := telemetry.Init(rootCtx, "prio", Version); err != nil {
			WarnError("telemetry disabled: %v", err)
		}
		if err := openStore(rootCtx); err != nil {
			FatalErrorWithHint(err.Error(), "check --db, or set backend and dolt.* with `prio config set`")
		}
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		closeStore()
	},
}

func setupSignalContext() {
	if rootCtx != nil {
		return
	}
	rootCtx, rootCancel = signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// initConfig loads the config file named by --config, $PRIO_CONFIG or the
// default location.
func initConfig(cmd *cobra.Command) error {
	if cmd.Flags().Changed("config") {
		return config.InitializeWithFile(configPath)
	}
	return config.Initialize()
}

// applyConfigFlags lets explicit flags win over env and file values, and
// copies the effective values back into the flag-bound globals.
func applyConfigFlags(cmd *cobra.Command) {
	if cmd.Flags().Changed("db") {
		config.SetOverride("db", dbPath)
	}
	if cmd.Flags().Changed("json") {
		config.SetOverride("json", jsonOutput)
	}
	dbPath = config.GetString("db")
	jsonOutput = config.GetBool("json")
}

func newLogger(w *os.File) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(config.GetString("log.level")) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	if verboseFlag {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}
	if config.GetString("log.format") == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func isNoDbCommand(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if slices.Contains(noDbCommands, c.Name()) {
			return true
		}
	}
	// Root command with no subcommand just shows help.
	return !cmd.HasParent()
}

// openStore opens the configured backend and builds the rank engine over it.
func openStore(ctx context.Context) error {
	backend := config.GetString("backend")
	opts := factory.Options{Path: dbPath}
	if backend == factory.BackendDolt {
		opts.Dolt = dolt.Config{
			Host:     config.GetString("dolt.host"),
			Port:     config.GetInt("dolt.port"),
			User:     config.GetString("dolt.user"),
			Password: config.GetString("dolt.password"),
			Database: config.GetString("dolt.database"),
		}
	} else if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	s, err := factory.New(ctx, backend, opts)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	store = telemetry.WrapStore(s)
	engine = rank.New(store)
	logger.Debug("store opened", "backend", backend, "path", store.Path())
	return nil
}

func closeStore() {
	if store != nil {
		if err := store.Close(); err != nil {
			WarnError("failed to close database: %v", err)
		}
		store = nil
	}
	telemetry.Shutdown(context.Background())
	if rootCancel != nil {
		rootCancel()
	}
}

// openRemote returns the configured task server client.
func openRemote(ctx context.Context) (*remote.Client, error) {
	return remote.Open(ctx, remote.Options{
		URL:       config.GetString("remote.url"),
		Token:     config.GetString("remote.token"),
		TokenFile: config.GetString("remote.token-file"),
		Timeout:   config.GetDuration("remote.timeout"),
	})
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		FatalError("%v", err)
	}
}
