// Package cli implements the capex-depreciation command line.
package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/iwvelando/capex-depreciation/internal/calculation"
	"github.com/iwvelando/capex-depreciation/internal/config"
	"github.com/iwvelando/capex-depreciation/internal/metrics"
	"github.com/iwvelando/capex-depreciation/internal/store"
	"github.com/iwvelando/capex-depreciation/pkg/constants"
	"github.com/iwvelando/capex-depreciation/pkg/validation"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// app is the state shared by every command of one invocation.
type app struct {
	version      string
	configPath   string
	logLevel     string
	outputFormat string

	conf    *config.Configuration
	logger  *zap.Logger
	metrics *metrics.Collector
	out     io.Writer
}

// NewRootCommand builds the command tree.
func NewRootCommand(version string) *cobra.Command {
	a := &app{version: version, logger: zap.NewNop()}

	root := &cobra.Command{
		Use:           "capex-depreciation",
		Short:         "Calculate depreciation schedules for capital investment projects",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			_ = a.logger.Sync()
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.configPath, "config", "", "path to configuration file (default "+constants.DefaultConfigFile+" when present)")
	flags.StringVar(&a.logLevel, "log-level", "", "log level override (debug, info, warn, error)")
	flags.StringVar(&a.outputFormat, "output-format", "", "type of output override: pretty, csv")

	root.AddCommand(
		a.migrateCommand(),
		a.calculateCommand(),
		a.calculateAllCommand(),
		a.importCommand(),
		a.exportCommand(),
		a.reportCommand(),
		a.projectsCommand(),
		a.methodsCommand(),
		a.serveCommand(),
		a.cleanCommand(),
		a.resetCommand(),
		a.configCommand(),
	)
	return root
}

func (a *app) setup(cmd *cobra.Command) error {
	a.out = cmd.OutOrStdout()

	path := a.configPath
	if path == "" && fileExists(constants.DefaultConfigFile) {
		path = constants.DefaultConfigFile
	}
	conf, err := config.LoadConfiguration(path)
	if err != nil {
		return fmt.Errorf("failed to load configuration at %s: %w", path, err)
	}
	a.conf = conf

	if a.outputFormat != "" {
		if err := validation.ValidateOutputFormat(a.outputFormat); err != nil {
			return err
		}
		a.conf.Output.Format = a.outputFormat
	}

	logger, err := initializeLogger(conf.Logging, a.logLevel)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	a.logger = logger

	for _, warning := range conf.ValidateConfiguration() {
		a.logger.Warn("Configuration warning: "+warning,
			zap.String("op", "cli.setup"),
		)
	}
	return nil
}

// openStore connects to the configured database and brings its schema up
// to date.
func (a *app) openStore(ctx context.Context) (*store.Store, error) {
	st, err := store.Open(ctx, a.conf.Database, a.logger)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(); err != nil {
		st.Close()
		return nil, err
	}
	return st, nil
}

func (a *app) service(st *store.Store) *calculation.Service {
	return calculation.NewService(st, calculation.Options{
		HorizonYear: a.conf.Engine.HorizonYear,
		Workers:     a.conf.Engine.Workers,
		Metrics:     a.metrics,
	}, a.logger)
}

func (a *app) csv() bool {
	return a.conf.Output.Format == constants.OutputFormatCSV
}
