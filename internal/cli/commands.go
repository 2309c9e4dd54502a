package cli

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/iwvelando/capex-depreciation/internal/importer"
	"github.com/iwvelando/capex-depreciation/internal/metrics"
	"github.com/iwvelando/capex-depreciation/internal/server"
	"github.com/iwvelando/capex-depreciation/internal/store"
	"github.com/iwvelando/capex-depreciation/pkg/output"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func (a *app) migrateCommand() *cobra.Command {
	var down bool
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := store.Open(cmd.Context(), a.conf.Database, a.logger)
			if err != nil {
				return err
			}
			defer st.Close()

			if down {
				return st.MigrateDown()
			}
			return st.Migrate()
		},
	}
	cmd.Flags().BoolVar(&down, "down", false, "roll back every migration")
	return cmd
}

func (a *app) calculateCommand() *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "calculate PROJECT_ID",
		Short: "Calculate and store the depreciation of one project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer st.Close()

			projectID := args[0]
			svc := a.service(st)

			var schedule store.Schedule
			if dryRun {
				method, records, err := svc.Preview(cmd.Context(), projectID)
				if err != nil {
					return err
				}
				schedule = store.Schedule{ProjectID: projectID, Kind: method.Kind, Records: records}
			} else {
				if _, err := svc.Run(cmd.Context(), projectID); err != nil {
					return err
				}
				if schedule, err = st.DepreciationSchedule(cmd.Context(), projectID); err != nil {
					return err
				}
			}

			if a.csv() {
				return output.CsvSchedules(a.out, []store.Schedule{schedule})
			}
			output.PrettySchedule(a.out, schedule)
			return nil
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "print the schedule without storing it")
	return cmd
}

func (a *app) calculateAllCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "calculate-all",
		Short: "Calculate and store the depreciation of every project",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer st.Close()

			report, err := a.service(st).RunAll(cmd.Context())
			if err != nil {
				return err
			}
			output.PrettyBatch(a.out, report)
			if len(report.Failed) > 0 {
				return fmt.Errorf("%d of %d projects failed", len(report.Failed), len(report.Failed)+len(report.Succeeded))
			}
			return nil
		},
	}
}

func (a *app) importCommand() *cobra.Command {
	return &cobra.Command{
		Use:       "import KIND FILE",
		Short:     "Import an xlsx sheet of projects, investments, starts or classifications",
		Args:      cobra.ExactArgs(2),
		ValidArgs: []string{"projects", "investments", "starts", "classifications"},
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := importer.ParseKind(args[0])
			if err != nil {
				return err
			}

			st, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer st.Close()

			result, err := importer.New(st, a.metrics, a.logger).ImportFile(cmd.Context(), kind, args[1])
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "imported %d %s rows\n", result.Rows, result.Kind)
			for _, w := range result.Warnings {
				fmt.Fprintf(a.out, "warning: %s\n", w)
			}
			return nil
		},
	}
}

func (a *app) exportCommand() *cobra.Command {
	var projectID string
	cmd := &cobra.Command{
		Use:   "export FILE",
		Short: "Export calculated depreciation to an xlsx workbook",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer st.Close()

			var schedules []store.Schedule
			if projectID != "" {
				if _, err := st.Project(cmd.Context(), projectID); err != nil {
					return err
				}
				schedule, err := st.DepreciationSchedule(cmd.Context(), projectID)
				if err != nil {
					return err
				}
				schedules = []store.Schedule{schedule}
			} else if schedules, err = st.DepreciationSchedules(cmd.Context()); err != nil {
				return err
			}

			file, err := os.Create(args[0])
			if err != nil {
				return err
			}
			if err := importer.ExportSchedules(file, schedules); err != nil {
				file.Close()
				return err
			}
			if err := file.Close(); err != nil {
				return err
			}

			a.logger.Info(fmt.Sprintf("exported %d schedules to %s", len(schedules), args[0]),
				zap.String("op", "cli.export"),
			)
			return nil
		},
	}
	cmd.Flags().StringVar(&projectID, "project", "", "export only this project")
	return cmd
}

func (a *app) reportCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "report [PROJECT_ID]",
		Short: "Summarize investment and depreciation by year",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer st.Close()

			var report store.Report
			if len(args) == 1 {
				report, err = st.ProjectReport(cmd.Context(), args[0])
				if err == nil {
					a.warnUncalculated(cmd, st, args[0])
				}
			} else {
				report, err = st.PortfolioReport(cmd.Context())
			}
			if err != nil {
				return err
			}

			if a.csv() {
				return output.CsvReport(a.out, report)
			}
			output.PrettyReport(a.out, report)
			return nil
		},
	}
}

// warnUncalculated flags a report whose depreciation column is empty because
// the project was never calculated.
func (a *app) warnUncalculated(cmd *cobra.Command, st *store.Store, projectID string) {
	has, err := st.HasCalculatedDepreciations(cmd.Context(), projectID)
	if err != nil || has {
		return
	}
	a.logger.Warn(fmt.Sprintf("project %s has no calculated depreciation; run calculate first", projectID),
		zap.String("op", "cli.report"),
	)
}

func (a *app) projectsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "projects",
		Short: "Manage projects",
	}

	var branch string
	search := &cobra.Command{
		Use:   "search [QUERY]",
		Short: "Search projects by id, branch, operations or description",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer st.Close()

			filter := store.ProjectFilter{Branch: branch}
			if len(args) == 1 {
				filter.Query = args[0]
			}
			projects, err := st.SearchProjects(cmd.Context(), filter)
			if err != nil {
				return err
			}
			output.PrettyProjects(a.out, projects)
			return nil
		},
	}
	search.Flags().StringVar(&branch, "branch", "", "only projects of this branch")

	var (
		projectBranch, operations, description string
		methodID                               int64
	)
	save := &cobra.Command{
		Use:   "save PROJECT_ID",
		Short: "Create or update a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer st.Close()

			p := store.Project{ID: args[0], Branch: projectBranch, Operations: operations, Description: description}
			if methodID > 0 {
				p.MethodID = &methodID
			}
			return st.SaveProject(cmd.Context(), p)
		},
	}
	save.Flags().StringVar(&projectBranch, "branch", "", "branch")
	save.Flags().StringVar(&operations, "operations", "", "operations")
	save.Flags().StringVar(&description, "description", "", "description")
	save.Flags().Int64Var(&methodID, "method", 0, "depreciation method id")

	invest := &cobra.Command{
		Use:   "invest PROJECT_ID YEAR AMOUNT [MONTH]",
		Short: "Add an investment to a project year",
		Args:  cobra.RangeArgs(3, 4),
		RunE: func(cmd *cobra.Command, args []string) error {
			year, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("invalid year %q", args[1])
			}
			amount, err := decimal.NewFromString(args[2])
			if err != nil {
				return fmt.Errorf("invalid amount %q", args[2])
			}
			inv := store.Investment{ProjectID: args[0], Year: year, Amount: amount}
			if len(args) == 4 {
				if inv.Month, err = strconv.Atoi(args[3]); err != nil {
					return fmt.Errorf("invalid month %q", args[3])
				}
			}

			st, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer st.Close()
			return st.AddInvestment(cmd.Context(), inv)
		},
	}

	start := &cobra.Command{
		Use:   "start PROJECT_ID YEAR [MONTH]",
		Short: "Mark the year and month depreciation of a project begins",
		Args:  cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			year, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("invalid year %q", args[1])
			}
			ds := store.DepreciationStart{ProjectID: args[0], Year: year, Month: 1}
			if len(args) == 3 {
				if ds.Month, err = strconv.Atoi(args[2]); err != nil {
					return fmt.Errorf("invalid month %q", args[2])
				}
			}

			st, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer st.Close()
			return st.SaveDepreciationStart(cmd.Context(), ds)
		},
	}

	cmd.AddCommand(search, save, invest, start)
	return cmd
}

func (a *app) methodsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "methods",
		Short: "Manage depreciation methods",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List depreciation methods",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer st.Close()

			methods, err := st.ListMethods(cmd.Context())
			if err != nil {
				return err
			}
			for _, m := range methods {
				switch {
				case m.Rate.Valid:
					fmt.Fprintf(a.out, "%d | %s%% per year | %s\n", m.ID, m.Rate.Decimal, m.Description)
				case m.Duration != nil:
					fmt.Fprintf(a.out, "%d | %d years | %s\n", m.ID, *m.Duration, m.Description)
				default:
					fmt.Fprintf(a.out, "%d | unset | %s\n", m.ID, m.Description)
				}
			}
			return nil
		},
	}

	var (
		rate        string
		duration    int
		description string
	)
	add := &cobra.Command{
		Use:   "add",
		Short: "Add a method with either --rate or --duration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var m store.Method
			m.Description = description
			if rate != "" {
				r, err := decimal.NewFromString(rate)
				if err != nil {
					return fmt.Errorf("invalid rate %q", rate)
				}
				m.Rate = decimal.NewNullDecimal(r)
			}
			if duration > 0 {
				m.Duration = &duration
			}

			st, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer st.Close()

			id, err := st.SaveMethod(cmd.Context(), m)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "method %d saved\n", id)
			return nil
		},
	}
	add.Flags().StringVar(&rate, "rate", "", "annual percentage rate")
	add.Flags().IntVar(&duration, "duration", 0, "lifetime in years")
	add.Flags().StringVar(&description, "description", "", "description")

	cmd.AddCommand(list, add)
	return cmd
}

func (a *app) serveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.conf.Server.Metrics {
				a.metrics = metrics.New()
			}

			st, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer st.Close()

			handler := server.NewHandler(a.logger, server.Dependencies{
				Calculator: a.service(st),
				Repository: st,
				Importer:   importer.New(st, a.metrics, a.logger),
				Metrics:    a.metrics,
			}, a.conf.Server, a.version)

			return server.ListenAndServe(cmd.Context(), a.conf.Server, handler, a.logger)
		},
	}
}

func (a *app) cleanCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "clean",
		Short: "Remove every calculated depreciation record",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer st.Close()
			return st.ClearCalculations(cmd.Context())
		},
	}
}

func (a *app) resetCommand() *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Remove all projects, investments, methods and calculations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return errors.New("reset deletes all data; pass --yes to confirm")
			}
			st, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer st.Close()
			return st.Reset(cmd.Context())
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "confirm deleting all data")
	return cmd
}

func (a *app) configCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := a.conf.YAML()
			if err != nil {
				return err
			}
			_, err = a.out.Write(data)
			return err
		},
	}
}
