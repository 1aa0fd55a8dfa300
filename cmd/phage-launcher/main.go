// Command phage-launcher runs the terminal UI for the phage assembly
// pipeline. It starts the Python sidecar, attaches the shared state bridge,
// and hands both to the TUI.
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"pkt.systems/pslog"

	"github.com/leightonpayne/colab-phage-assembly/internal/app"
	"github.com/leightonpayne/colab-phage-assembly/internal/config"
	"github.com/leightonpayne/colab-phage-assembly/internal/service"
	"github.com/leightonpayne/colab-phage-assembly/internal/storage"
)

// version is stamped at build time via -ldflags.
var version = "dev"

type rootOptions struct {
	configPath   string
	paramsPath   string
	runsDir      string
	logFile      string
	pollInterval time.Duration
	serviceCmd   []string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := rootOptions{}
	cmd := &cobra.Command{
		Use:           "phage-launcher",
		Short:         "Terminal launcher for the phage assembly pipeline",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLauncher(cmd.Context(), opts)
		},
	}
	cmd.Flags().StringVarP(&opts.configPath, "config", "c", "launcher.yaml", "launcher config file")
	cmd.Flags().StringVarP(&opts.paramsPath, "params", "p", "", "params JSON file to preload and watch")
	cmd.Flags().StringVar(&opts.runsDir, "runs-dir", "", "directory for saved run bundles")
	cmd.Flags().DurationVar(&opts.pollInterval, "poll-interval", 0, "log poll cadence, e.g. 250ms")
	cmd.Flags().StringSliceVar(&opts.serviceCmd, "service-cmd", nil, "sidecar command override")
	cmd.Flags().StringVar(&opts.logFile, "log-file", "", "debug log file")
	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the launcher version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version)
		},
	})
	return cmd
}

// applyOverrides folds command-line flags over the config file. Flags win.
func applyOverrides(cfg *config.Config, opts rootOptions) {
	if opts.runsDir != "" {
		cfg.RunsDir = opts.runsDir
	}
	if opts.pollInterval > 0 {
		cfg.RawPollInterval = opts.pollInterval.String()
	}
	if len(opts.serviceCmd) > 0 {
		cfg.Service.Command = opts.serviceCmd
	}
	if opts.paramsPath != "" {
		cfg.ParamsFile = opts.paramsPath
	}
	if opts.logFile != "" {
		cfg.LogFile = opts.logFile
	}
}

func runLauncher(ctx context.Context, opts rootOptions) error {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}
	applyOverrides(cfg, opts)

	// The UI owns the terminal, so structured logs go to a file.
	logFile, err := os.OpenFile(cfg.LogFilePath(), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open log file %s: %w", cfg.LogFilePath(), err)
	}
	defer logFile.Close()
	logger := pslog.LoggerFromEnv(
		pslog.WithEnvWriter(logFile),
		pslog.WithEnvOptions(pslog.Options{Mode: pslog.ModeStructured}),
	)
	ctx = pslog.ContextWithLogger(ctx, logger)

	rootDir, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("determine working directory: %w", err)
	}
	rootDir, _ = filepath.Abs(rootDir)

	mgr := service.NewManager(rootDir, cfg.Service.Command)
	startupCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	if err := mgr.Start(startupCtx); err != nil {
		if dump := mgr.Logs(); dump != "" {
			logger.Error("sidecar startup output", "logs", dump)
		}
		return fmt.Errorf("start pipeline service: %w", err)
	}
	defer func() {
		if err := mgr.Stop(); err != nil {
			logger.Warn("pipeline service stop", "err", err)
		}
	}()

	bridge := service.NewBridge(mgr)
	if err := bridge.Start(ctx); err != nil {
		return fmt.Errorf("attach shared state: %w", err)
	}
	defer bridge.Close()

	store, err := storage.NewStore(cfg.RunsDirectory())
	if err != nil {
		return fmt.Errorf("initialize run storage: %w", err)
	}

	modelOpts := app.Options{
		PollInterval: cfg.PollInterval(),
		ParamsPath:   cfg.ParamsFile,
	}
	if cfg.ParamsFile != "" {
		watcher, err := config.NewParamsWatcher(cfg.ParamsFile)
		if err != nil {
			return fmt.Errorf("watch params file: %w", err)
		}
		watchCtx, stopWatch := context.WithCancel(ctx)
		defer stopWatch()
		if err := watcher.Start(watchCtx); err != nil {
			return fmt.Errorf("watch params file: %w", err)
		}
		defer func() {
			stopWatch()
			_ = watcher.Stop()
		}()
		modelOpts.ParamsEvents = watcher.Events()
	}

	model := app.NewModel(bridge, store, modelOpts)
	program := tea.NewProgram(model, tea.WithAltScreen(), tea.WithMouseCellMotion())
	if _, err := program.Run(); err != nil {
		return fmt.Errorf("tui exited: %w", err)
	}
	return nil
}
