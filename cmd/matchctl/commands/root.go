// Package commands implements the matchctl command tree.
package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pds-match-service/internal/app"
	"github.com/pds-match-service/internal/config"
	"github.com/pds-match-service/internal/logging"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// SetVersionInfo sets the build information shown by --version.
func SetVersionInfo(v, c, d string) {
	version = v
	commit = c
	date = d
}

// Execute builds the command tree and runs it against os.Args.
func Execute() error {
	return NewRootCommand().Execute()
}

// cli carries the state shared by subcommands.
type cli struct {
	configFile string
	appOptions []app.Option
}

// NewRootCommand returns a fresh command tree. Options are passed to every app.New call, which
// lets tests substitute the registry client or version store.
func NewRootCommand(opts ...app.Option) *cobra.Command {
	c := &cli{appOptions: opts}

	root := &cobra.Command{
		Use:   "matchctl",
		Short: "matchctl - operate the PDS match service",
		Long: `matchctl runs operational tasks against the same configuration as the
match service: managing the algorithm version, previewing query strategies
and reconciling identifiers in bulk from CSV files.`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
		FParseErrWhitelist: cobra.FParseErrWhitelist{},
		SilenceErrors:      true,
		SilenceUsage:       true,
	}
	root.PersistentFlags().StringVar(&c.configFile, "config", "", "path to a configuration file")

	root.AddCommand(
		c.newVersionCommand(),
		newStrategiesCommand(),
		c.newReconcileFileCommand(),
	)
	return root
}

// loadApp builds the application from configuration. Logs go to the command's stderr unless a
// log file is configured.
func (c *cli) loadApp(ctx context.Context, cmd *cobra.Command) (*app.App, error) {
	var (
		manager *config.Manager
		err     error
	)
	if c.configFile != "" {
		manager, err = config.NewManagerWithFile(c.configFile)
	} else {
		manager, err = config.NewManager()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := manager.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	cfg := manager.GetConfig()
	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return nil, err
	}
	if cfg.Logging.Output != "file" {
		logger.SetOutput(cmd.ErrOrStderr())
	}

	return app.New(ctx, cfg, logger, c.appOptions...)
}
