package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"gem-assistant/internal/models"
	"gem-assistant/internal/workflow"
	"gem-assistant/pkg/utils"
)

// newAnalyzeCmd creates the analyze command, the main entry point of
// the pipeline.
func newAnalyzeCmd(app *App) *cobra.Command {
	var (
		dateStr    string
		runID      string
		noResearch bool
		noSave     bool
		noNotify   bool
	)

	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Run the momentum analysis and generate a signal",
		Long: `Fetches price history for the configured universe, ranks it by
momentum return, optionally gathers research, and produces a BUY, HOLD
or SELL signal. Progress is checkpointed; an interrupted run can be
resumed with 'gem resume <run-id>'.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if app.Orchestrator == nil {
				return fmt.Errorf("orchestrator unavailable, check configuration and store")
			}

			var evalDate time.Time
			if dateStr != "" {
				parsed, err := time.Parse("2006-01-02", dateStr)
				if err != nil {
					return fmt.Errorf("invalid --date %q, want YYYY-MM-DD: %w", dateStr, err)
				}
				evalDate = parsed
			}

			if runID == "" {
				runID = fmt.Sprintf("run-%s", time.Now().UTC().Format("20060102-150405"))
			}

			opts := workflow.Options{
				EvaluationDate:  evalDate,
				IncludeResearch: app.Config.Research.Enabled && !noResearch && app.Analyst != nil,
				MaxSubjects:     app.Config.Research.MaxSubjects,
				SaveToStore:     !noSave,
				Notify:          !noNotify,
			}

			if !output.IsJSON() {
				output.Info("Starting run %s", runID)
			}

			result, err := app.Orchestrator.Run(cmd.Context(), runID, opts)
			if err != nil {
				output.Error("Run failed: %v", err)
				output.Dim("Resume with: gem resume %s", runID)
				return err
			}

			if output.IsJSON() {
				return output.JSON(result)
			}
			printResult(output, app, result)
			return nil
		},
	}

	cmd.Flags().StringVar(&dateStr, "date", "", "evaluation date (YYYY-MM-DD, default today)")
	cmd.Flags().StringVar(&runID, "run-id", "", "run identifier (default generated)")
	cmd.Flags().BoolVar(&noResearch, "no-research", false, "skip the research stage")
	cmd.Flags().BoolVar(&noSave, "no-save", false, "do not persist the ranking and signal")
	cmd.Flags().BoolVar(&noNotify, "no-notify", false, "do not send notifications")

	return cmd
}

// newResumeCmd creates the resume command.
func newResumeCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "resume <run-id>",
		Short: "Resume an interrupted run from its checkpoint",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if app.Orchestrator == nil {
				return fmt.Errorf("orchestrator unavailable, check configuration and store")
			}

			runID := args[0]
			result, err := app.Orchestrator.Run(cmd.Context(), runID, workflow.Options{})
			if err != nil {
				output.Error("Resume failed: %v", err)
				return err
			}

			if output.IsJSON() {
				return output.JSON(result)
			}
			printResult(output, app, result)
			return nil
		},
	}
}

// printResult renders a completed run.
func printResult(output *Output, app *App, result *workflow.Result) {
	output.Println()
	output.Bold("Momentum Ranking (%s → %s)",
		result.Ranking.PeriodStart.Format("2006-01-02"),
		result.Ranking.PeriodEnd.Format("2006-01-02"))

	table := NewTable(output, "#", "Instrument", "Return")
	var tickers []string
	for _, score := range result.Ranking.Scores {
		name := score.InstrumentID
		if inst, err := models.FindInstrument(app.Config.Universe, score.InstrumentID); err == nil {
			name = inst.DisplayName
			tickers = append(tickers, inst.Ticker("stooq"))
		}
		table.AddRow(fmt.Sprintf("%d", score.Rank), name, output.FormatReturn(score.Return))
	}
	table.Render()

	output.Println()
	output.Bold("Signal: %s %s", output.Signal(result.Signal.Kind), result.Signal.InstrumentID)

	if result.Degraded {
		output.Warning("Research was partially unavailable; signal derived from prices only")
	}
	if result.Resumed {
		output.Dim("Resumed from checkpoint")
	}
	if result.Notified {
		output.Dim("Notifications sent")
	}
	output.Dim("Charts: %s", utils.StooqChartURL(tickers))
}
