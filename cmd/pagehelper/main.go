package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/v0xg/pagehelper/internal/config"
	"github.com/v0xg/pagehelper/internal/executor"
	"github.com/v0xg/pagehelper/internal/observability"
	"go.uber.org/zap"
)

// app carries what every subcommand needs once the config is loaded.
type app struct {
	cfgFile   string
	verbose   bool
	reportDir string

	cfg    *config.Config
	logger *zap.Logger
	out    io.Writer
}

func main() {
	// Load .env file if present (silently ignore if not found)
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := newRootCmd().ExecuteContext(ctx)
	observability.Sync()
	if err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	a := &app{}
	rootCmd := &cobra.Command{
		Use:   "pagehelper",
		Short: "Find elements, run batches of actions and validate pages",
		Long: `pagehelper locates elements on a web page by their visible text, role or
selector, runs batches of click/fill/wait operations against them and checks
the result with quick validations.

Example:
  pagehelper run login.yaml --url https://myapp.test/login`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init(cmd)
		},
	}

	rootCmd.PersistentFlags().StringVarP(&a.cfgFile, "config", "c", "", "Config file (default: ./pagehelper.yaml if present)")
	rootCmd.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "Show detailed progress")
	rootCmd.PersistentFlags().StringVar(&a.reportDir, "report-dir", "", "Directory for reports and screenshots")

	rootCmd.AddCommand(
		newFindCmd(a),
		newElementsCmd(a),
		newRunCmd(a),
		newCheckCmd(a),
		newPlanCmd(a),
	)
	return rootCmd
}

func (a *app) init(cmd *cobra.Command) error {
	cfg, err := config.Load(a.cfgFile)
	if err != nil {
		return err
	}
	if a.verbose {
		cfg.Logger.Level = "debug"
	}
	if a.reportDir != "" {
		cfg.Report.Dir = a.reportDir
	}
	observability.InitializeLogger(cfg.Logger)

	a.cfg = cfg
	a.logger = observability.GetLogger()
	a.out = cmd.OutOrStdout()
	return nil
}

func (a *app) executorOptions() executor.Options {
	return executor.Options{
		PollInterval:   a.cfg.Executor.PollInterval,
		DefaultTimeout: a.cfg.Executor.DefaultTimeout,
		DefaultWait:    a.cfg.Executor.DefaultWait,
	}
}
