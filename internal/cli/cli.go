// Package cli wires the pipeline stages into the xmc command.
package cli

import (
	"context"
	"io"
	"os"

	"github.com/Adithya-Monish-Kumar-K/xmc-toolkit/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/xmc-toolkit/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/xmc-toolkit/pkg/progress"
	"github.com/spf13/cobra"
)

// CLI holds the root command and the state shared by its subcommands.
type CLI struct {
	version    string
	configPath string
	verbose    bool
	silent     bool
	workers    int

	cfg     *config.Config
	stdout  io.Writer
	stderr  io.Writer
	rootCmd *cobra.Command
}

func New(version string) *CLI {
	c := &CLI{version: version, stdout: os.Stdout, stderr: os.Stderr}
	c.setupCommands()
	return c
}

func (c *CLI) setupCommands() {
	c.rootCmd = &cobra.Command{
		Use:           "xmc",
		Short:         "Extreme multi-label classification data and evaluation tools",
		Version:       c.version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.initApp(cmd)
		},
		Run: func(cmd *cobra.Command, args []string) {
			_ = cmd.Help()
		},
	}

	pf := c.rootCmd.PersistentFlags()
	pf.StringVarP(&c.configPath, "config", "c", "", "Path to a YAML config file")
	pf.BoolVarP(&c.verbose, "verbose", "v", false, "Enable debug logging")
	pf.BoolVarP(&c.silent, "silent", "s", false, "Only log errors and hide progress bars")
	pf.IntVarP(&c.workers, "workers", "w", 0, "Worker count (default from config)")

	c.rootCmd.AddCommand(
		c.newTFIDFCommand(),
		c.newPropensityCommand(),
		c.newMergeCommand(),
		c.newEvaluateCommand(),
		c.newLabelStatsCommand(),
	)
}

// SetOutput redirects reports and logs.
func (c *CLI) SetOutput(stdout, stderr io.Writer) {
	c.stdout = stdout
	c.stderr = stderr
	c.rootCmd.SetOut(stdout)
	c.rootCmd.SetErr(stderr)
}

func (c *CLI) SetArgs(args []string) {
	c.rootCmd.SetArgs(args)
}

// Run executes the command line. ctx cancels long-running stages.
func (c *CLI) Run(ctx context.Context) error {
	return c.rootCmd.ExecuteContext(ctx)
}

// initApp loads the configuration and applies the persistent flags. Stage
// flags are applied and the result validated by each subcommand.
func (c *CLI) initApp(cmd *cobra.Command) error {
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("workers") {
		cfg.Runtime.Workers = c.workers
	}
	if c.verbose {
		cfg.Logging.Level = "debug"
	}
	if c.silent {
		cfg.Logging.Level = "error"
	}
	logger.SetupWriter(c.stderr, cfg.Logging.Level, cfg.Logging.Format)
	c.cfg = cfg
	return nil
}

// configure applies stage flag overrides and validates the result.
func (c *CLI) configure(override func(cfg *config.Config)) error {
	if override != nil {
		override(c.cfg)
	}
	return c.cfg.Validate()
}

func (c *CLI) progress() progress.Factory {
	if c.silent {
		return progress.Silent
	}
	return progress.Bars(c.stderr)
}
