package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"gem-assistant/internal/store"
)

// newStatusCmd creates the status command for inspecting one run.
func newStatusCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "status <run-id>",
		Short: "Show the checkpointed state of a run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if app.Orchestrator == nil {
				return fmt.Errorf("orchestrator unavailable, check configuration and store")
			}

			cp, err := app.Orchestrator.Status(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			if output.IsJSON() {
				return output.JSON(cp)
			}

			output.Bold("Run %s", cp.RunID)
			output.Printf("  Stage:           %s\n", cp.Stage)
			output.Printf("  Evaluation date: %s\n", cp.EvaluationDate.Format("2006-01-02"))
			output.Printf("  Updated:         %s\n", cp.UpdatedAt.Format(time.RFC3339))
			if cp.Failed() {
				output.Error("  Failed at %s: %s", cp.FailureStage, cp.FailureReason)
				output.Dim("  Resume with: gem resume %s", cp.RunID)
			}
			if cp.Signal != nil {
				output.Printf("  Signal:          %s %s\n", output.Signal(cp.Signal.Kind), cp.Signal.InstrumentID)
			}
			if cp.Degraded {
				output.Warning("  Research degraded")
			}
			return nil
		},
	}
}

// newRunsCmd creates the runs command listing recent runs.
func newRunsCmd(app *App) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recent runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if app.Orchestrator == nil {
				return fmt.Errorf("orchestrator unavailable, check configuration and store")
			}

			runs, err := app.Orchestrator.ListRuns(cmd.Context(), limit)
			if err != nil {
				return err
			}

			if output.IsJSON() {
				return output.JSON(runs)
			}
			if len(runs) == 0 {
				output.Println("No runs recorded.")
				return nil
			}

			table := NewTable(output, "Run", "Stage", "Eval Date", "Signal", "Updated")
			for _, cp := range runs {
				signal := "-"
				if cp.Signal != nil {
					signal = cp.Signal.Action()
				}
				stage := string(cp.Stage)
				if cp.Failed() {
					stage = output.ColoredString(ColorRed, stage+" (failed)")
				}
				table.AddRow(cp.RunID, stage,
					cp.EvaluationDate.Format("2006-01-02"), signal,
					cp.UpdatedAt.Format("2006-01-02 15:04"))
			}
			table.Render()
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of runs to list")
	return cmd
}

// newHistoryCmd creates the history command listing persisted signals.
func newHistoryCmd(app *App) *cobra.Command {
	var (
		limit      int
		instrument string
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show persisted signal history",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if app.Store == nil {
				return fmt.Errorf("store unavailable")
			}

			signals, err := app.Store.SignalHistory(cmd.Context(), store.SignalFilter{
				InstrumentID: instrument,
				Limit:        limit,
			})
			if err != nil {
				return err
			}

			if output.IsJSON() {
				return output.JSON(signals)
			}
			if len(signals) == 0 {
				output.Println("No signals recorded.")
				return nil
			}

			table := NewTable(output, "Date", "Signal", "Instrument", "Created")
			for _, s := range signals {
				table.AddRow(
					s.EvaluationDate.Format("2006-01-02"),
					output.Signal(s.Kind),
					s.InstrumentID,
					s.CreatedAt.Format("2006-01-02 15:04"))
			}
			table.Render()
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 24, "maximum number of signals to list")
	cmd.Flags().StringVar(&instrument, "instrument", "", "filter by instrument id")
	return cmd
}
