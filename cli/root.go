/*
Package cli implements budgetctl, the offline companion of the server.

COMMANDS:
  distribute  Spread a total over a date range (no database)
  scurve      Print the planned-vs-actual curve of a database
  import      Load a budget document into a database and sweep
  sweep       Recompute every planned and actual row of a database

Every database command opens the same SQLite file the server uses, so it
can run against a stopped server's data or a copy of it.

SEE ALSO:
  - format.go: Table and marker rendering
  - cmd/budgetctl/main.go: Terminal detection
*/
package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/warp/budget-engine/api"
	"github.com/warp/budget-engine/budget"
	"github.com/warp/budget-engine/config"
	"github.com/warp/budget-engine/generic"
	"github.com/warp/budget-engine/store/sqlite"
)

// App carries the output surface shared by all commands.
type App struct {
	Out    io.Writer
	Format Formatter
	Logger *slog.Logger

	// DBPath is the default for --db.
	DBPath string
}

// NewRootCmd creates the top-level budgetctl command.
func NewRootCmd(app *App) *cobra.Command {
	dbPath := app.DBPath
	if dbPath == "" {
		dbPath = config.Default().DBPath
	}

	root := &cobra.Command{
		Use:           "budgetctl",
		Short:         "Budget distribution and S-curve tooling",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&dbPath, "db", dbPath, "SQLite database path")

	root.AddCommand(
		newDistributeCmd(app),
		newSCurveCmd(app, &dbPath),
		newImportCmd(app, &dbPath),
		newSweepCmd(app, &dbPath),
	)
	return root
}

// =============================================================================
// DISTRIBUTE
// =============================================================================

func newDistributeCmd(app *App) *cobra.Command {
	var start, end, total, kind string

	cmd := &cobra.Command{
		Use:   "distribute",
		Short: "Print the monthly planned values of a total over a date range",
		RunE: func(cmd *cobra.Command, args []string) error {
			k, err := budget.ParseKind(kind)
			if err != nil {
				return err
			}
			from, err := generic.ParseDate(start)
			if err != nil {
				return fmt.Errorf("invalid --start: %w", err)
			}
			amount, err := generic.ParseAmount(total)
			if err != nil {
				return fmt.Errorf("invalid --total: %w", err)
			}
			if amount.IsNegative() {
				return generic.ErrInvalidAmount
			}

			stage := budget.Stage{ID: "cli", Kind: k, Start: &from, TotalValue: amount}
			if end != "" {
				to, err := generic.ParseDate(end)
				if err != nil {
					return fmt.Errorf("invalid --end: %w", err)
				}
				stage.End = &to
			}
			period, ok := stage.Schedule()
			if !ok {
				return fmt.Errorf("--end is required for %s stages", k)
			}
			if _, err := generic.NewPeriod(period.Start, period.End); err != nil {
				return err
			}

			fmt.Fprintln(app.Out, app.Format.Header(fmt.Sprintf("%s over %s", amount, period)))
			fmt.Fprint(app.Out, app.Format.Allocations(budget.Distribute(period, amount)))
			return nil
		},
	}
	cmd.Flags().StringVar(&start, "start", "", "first day (YYYY-MM-DD)")
	cmd.Flags().StringVar(&end, "end", "", "last day, inclusive (YYYY-MM-DD)")
	cmd.Flags().StringVar(&total, "total", "", "amount to distribute")
	cmd.Flags().StringVar(&kind, "kind", string(budget.KindLabor), "stage kind; fee collapses to --start")
	_ = cmd.MarkFlagRequired("start")
	_ = cmd.MarkFlagRequired("total")
	return cmd
}

// =============================================================================
// DATABASE COMMANDS
// =============================================================================

func newSCurveCmd(app *App, dbPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "scurve",
		Short: "Print the cumulative planned-vs-actual curve",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := sqlite.New(*dbPath)
			if err != nil {
				return err
			}
			defer store.Close()

			ctx := cmd.Context()
			stages, err := store.ListStages(ctx)
			if err != nil {
				return err
			}
			values, err := store.ListMonthlyValues(ctx)
			if err != nil {
				return err
			}
			fmt.Fprint(app.Out, app.Format.SCurve(budget.BuildSCurve(stages, values, app.Logger)))
			return nil
		},
	}
}

func newImportCmd(app *App, dbPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file.json>",
		Short: "Load a budget document and recompute",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			return withHandler(app, *dbPath, func(h *api.Handler) error {
				doc, err := h.Factory.ParseBudget(data)
				if err != nil {
					return err
				}
				resp, err := h.ImportDocument(cmd.Context(), doc)
				if err != nil {
					return err
				}
				fmt.Fprintf(app.Out, "imported %q: %d stages, %d events\n", resp.Name, resp.Stages, resp.Events)
				fmt.Fprint(app.Out, app.Format.SweepRun(resp.Sweep))
				return nil
			})
		},
	}
}

func newSweepCmd(app *App, dbPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Recompute every planned and actual row",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withHandler(app, *dbPath, func(h *api.Handler) error {
				run, err := h.Sweeper.Run(cmd.Context(), api.TriggerManual)
				fmt.Fprint(app.Out, app.Format.SweepRun(api.ToSweepRunDTO(run)))
				return err
			})
		},
	}
}

func withHandler(app *App, dbPath string, fn func(*api.Handler) error) error {
	store, err := sqlite.New(dbPath)
	if err != nil {
		return err
	}
	defer store.Close()

	h := api.NewHandler(store, api.Options{Logger: app.Logger})
	defer h.Close()
	return fn(h)
}
